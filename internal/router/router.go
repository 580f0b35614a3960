package router

import (
	"net/http"

	"kart-orders/internal/handler"
	"kart-orders/internal/middleware"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// Options carries what the router needs beyond the handlers.
type Options struct {
	APIKey  string
	IsAdmin func(userID string) bool
}

// New creates a new HTTP router with all routes and middleware configured.
func New(
	productHandler *handler.ProductHandler,
	orderHandler *handler.OrderHandler,
	opts Options,
	logger zerolog.Logger,
) http.Handler {
	isAdmin := opts.IsAdmin
	if isAdmin == nil {
		isAdmin = func(string) bool { return false }
	}

	r := chi.NewRouter()

	// Applied outermost first: RequestID -> Recovery -> Logging -> CORS -> APIKeyAuth -> Identity
	r.Use(chimw.RequestID)
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS)
	r.Use(middleware.APIKeyAuth(opts.APIKey, logger))
	r.Use(middleware.Identity(isAdmin))

	// Health check endpoint (no authentication required)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status": "healthy"}`))
	})

	r.Route("/api/products", func(r chi.Router) {
		r.Get("/", productHandler.GetAll)
		r.Get("/{id}", productHandler.GetByID)
	})

	r.Route("/api/orders", func(r chi.Router) {
		r.Use(middleware.RequireCaller(logger))

		r.Post("/", orderHandler.Create)
		r.Get("/", orderHandler.List)
		r.Get("/{id}", orderHandler.GetByID)
		r.Patch("/{id}/pay", orderHandler.Pay)
		r.Patch("/pay/{id}", orderHandler.Pay)
		r.Patch("/{id}/cancel", orderHandler.Cancel)
	})

	return r
}
