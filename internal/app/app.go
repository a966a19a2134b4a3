package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sandeepkv93/multitenant-commerce-kit/internal/config"
	"github.com/sandeepkv93/multitenant-commerce-kit/internal/service"
)

// App is the assembled process: the HTTP server plus the background session
// cleanup worker.
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Server  *http.Server
	Cleanup *service.SessionCleanupWorker
}

func New(cfg *config.Config, logger *slog.Logger, server *http.Server, cleanup *service.SessionCleanupWorker) *App {
	return &App{Config: cfg, Logger: logger, Server: server, Cleanup: cleanup}
}

// Run serves until SIGINT/SIGTERM, then drains in-flight requests.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Cleanup.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("server starting", "addr", a.Server.Addr, "env", a.Config.Env)
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case s := <-sig:
		a.Logger.Info("shutting down", "signal", s.String())
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return a.Server.Shutdown(shutdownCtx)
}
