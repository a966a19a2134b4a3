package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sandeepkv93/multitenant-commerce-kit/internal/http/handler"
	"github.com/sandeepkv93/multitenant-commerce-kit/internal/http/middleware"
	"github.com/sandeepkv93/multitenant-commerce-kit/internal/http/response"
)

// Deps carries everything the router assembles. Rate limiting runs before
// tenant resolution so abusive traffic never costs a directory lookup or a
// connection open.
type Deps struct {
	AuthLimiter *middleware.RateLimiter
	APILimiter  *middleware.RateLimiter
	Tenant      *middleware.TenantResolver
	Auth        *middleware.Authenticator
	AuthHandler *handler.AuthHandler
	UserHandler *handler.UserHandler
}

func New(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		response.JSON(w, req, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Use(deps.AuthLimiter.Middleware())
			r.Use(deps.Tenant.Middleware())

			r.Post("/register", deps.AuthHandler.Register)
			r.Post("/login", deps.AuthHandler.Login)
			r.Post("/refresh", deps.AuthHandler.Refresh)
			r.Post("/logout", deps.AuthHandler.Logout)
			r.Post("/verify-email", deps.AuthHandler.VerifyEmail)
			r.Post("/verify-phone", deps.AuthHandler.VerifyPhone)
			r.Post("/resend-verification", deps.AuthHandler.ResendVerification)
			r.Post("/forgot-password", deps.AuthHandler.ForgotPassword)
			r.Post("/exchange-reset-token", deps.AuthHandler.ExchangeResetToken)
			r.Post("/reset-password", deps.AuthHandler.ResetPassword)
		})

		r.Route("/users", func(r chi.Router) {
			r.Use(deps.APILimiter.Middleware())
			r.Use(deps.Tenant.Middleware())
			r.Use(deps.Auth.Middleware())

			r.Get("/me", deps.UserHandler.Me)
			r.Get("/me/sessions", deps.UserHandler.Sessions)
			r.Delete("/me/sessions/{session_id}", deps.UserHandler.RevokeSession)
		})
	})

	return r
}
