package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/sessions"
	"github.com/rs/zerolog"
)

// NewRouter assembles the HTTP surface.
func NewRouter(h *Handler, store *sessions.CookieStore, jwtSecret string, requestTimeout time.Duration, log zerolog.Logger) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(middleware.Compress(5))
	r.Use(AuthMiddleware(jwtSecret))
	r.Use(CartKeyMiddleware(store, log))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/cart", func(r chi.Router) {
			r.Get("/", h.GetCart)
			r.Delete("/", h.ClearCart)
			r.Post("/items", h.AddItem)
			r.Put("/items/{product_slug}", h.UpdateQuantity)
			r.Delete("/items/{product_slug}", h.RemoveItem)
		})
		r.Post("/checkout", h.Checkout)
		r.Post("/checkout/complete", h.CompleteCheckout)
		r.Get("/products/{slug}/access", h.CheckAccess)
	})

	return r
}
