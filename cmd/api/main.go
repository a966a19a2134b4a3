package main

import (
	"log"
	"os"

	"github.com/sandeepkv93/multitenant-commerce-kit/internal/app"
	"github.com/sandeepkv93/multitenant-commerce-kit/internal/di"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "migrate":
			if err := app.RunMigrationOnly(); err != nil {
				log.Fatal(err)
			}
			return
		case "seed-tenant":
			if err := app.RunSeedTenant(os.Args[2:]); err != nil {
				log.Fatal(err)
			}
			return
		}
	}

	a, err := di.InitializeApp()
	if err != nil {
		log.Fatal(err)
	}
	if err := a.Run(); err != nil {
		log.Fatal(err)
	}
}
