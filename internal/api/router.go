package api

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/erazemk/zaloga/internal/auth"
	"github.com/erazemk/zaloga/internal/inventory"
	"github.com/erazemk/zaloga/internal/model"
	"github.com/erazemk/zaloga/internal/notify"
)

// Deps are the collaborators the HTTP layer needs.
type Deps struct {
	DB             *sql.DB
	Inventory      *inventory.Service
	Policy         *auth.Policy
	Notifier       notify.Notifier
	JWTSecret      string
	TokenTTL       time.Duration
	ExpiringDays   int
	MaxUploadBytes int64
}

// NewRouter creates the router with all endpoints registered.
func NewRouter(d Deps) http.Handler {
	authHandler := &AuthHandler{DB: d.DB, JWTSecret: d.JWTSecret, TokenTTL: d.TokenTTL, Notifier: d.Notifier}
	usersHandler := &UsersHandler{DB: d.DB}
	stockHandler := &StockHandler{Inventory: d.Inventory, ExpiringDays: d.ExpiringDays}
	uploadsHandler := &UploadsHandler{Inventory: d.Inventory, Policy: d.Policy, MaxBytes: d.MaxUploadBytes}

	requireAdmin := RequireRole(model.RoleAdmin)
	requireManager := RequireRole(model.RoleManager)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(LoggingMiddleware)
	r.Use(MetricsMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := d.DB.PingContext(r.Context()); err != nil {
			jsonError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
		jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		// Public.
		r.Post("/auth/register", authHandler.Register)
		r.Post("/auth/verify", authHandler.Verify)
		r.Post("/auth/resend", authHandler.Resend)
		r.Post("/auth/login", authHandler.Login)

		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(d.JWTSecret, d.DB))

			r.Post("/auth/logout", authHandler.Logout)
			r.Put("/auth/password", authHandler.ChangePassword)

			// Stock: read and sell (all roles), move and price (manager+).
			r.Route("/stock", func(r chi.Router) {
				r.Get("/", stockHandler.List)
				r.Get("/expiring", stockHandler.Expiring)
				r.Get("/scan/{barcode}", stockHandler.Scan)
				r.Get("/{id}", stockHandler.Get)
				r.Get("/{id}/history", stockHandler.History)
				r.Post("/{id}/sell", stockHandler.Sell)

				r.With(requireManager).Post("/{id}/showcase", stockHandler.ToShowcase)
				r.With(requireManager).Post("/{id}/warehouse", stockHandler.ToWarehouse)
				r.With(requireManager).Post("/{id}/remove", stockHandler.Remove)
				r.With(requireManager).Post("/{id}/discount", stockHandler.Discount)
			})

			r.With(requireManager).Get("/forecast", stockHandler.Forecast)

			// Uploads (all roles).
			r.Post("/uploads", uploadsHandler.Create)
			r.Get("/uploads", uploadsHandler.List)
			r.Get("/uploads/{id}/items", uploadsHandler.Items)

			// Users (admin only).
			r.Route("/users", func(r chi.Router) {
				r.Use(requireAdmin)
				r.Get("/", usersHandler.List)
				r.Post("/", usersHandler.Create)
				r.Get("/{id}", usersHandler.Get)
				r.Put("/{id}", usersHandler.Update)
				r.Delete("/{id}", usersHandler.Delete)
			})
		})
	})

	return r
}
