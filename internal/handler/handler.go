// Package handler exposes the storefront over HTTP: catalog browsing, the
// session cart, checkout and sign-in.
package handler

import (
	"net/http"
	"strings"

	"github.com/alexedwards/scs/v2"
	"github.com/go-chi/chi/v5"

	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/session"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

// HandlerConfig holds non-dependency configuration for the Handler.
type HandlerConfig struct {
	// ImageBaseURL is prepended to relative image paths in product responses.
	// When empty, image paths are returned as received from the catalog.
	ImageBaseURL string
	// AfterLoginURL is where the federated callback redirects on success.
	AfterLoginURL string
}

// Handler serves the storefront API. Each request is bound to the live
// session.Session of its cookie session.
type Handler struct {
	sessions *session.Manager
	cookies  *scs.SessionManager
	catalog  product.Catalog

	imageBaseURL  string
	afterLoginURL string
}

// NewHandler constructs a Handler with the required dependencies.
func NewHandler(
	cfg HandlerConfig,
	sessions *session.Manager,
	cookies *scs.SessionManager,
	catalog product.Catalog,
) *Handler {
	if cfg.AfterLoginURL == "" {
		cfg.AfterLoginURL = "/"
	}
	return &Handler{
		sessions:      sessions,
		cookies:       cookies,
		catalog:       catalog,
		imageBaseURL:  strings.TrimRight(cfg.ImageBaseURL, "/"),
		afterLoginURL: cfg.AfterLoginURL,
	}
}

// Routes returns the router of all /api endpoints.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(
		httpmiddleware.Labeler(httpmiddleware.ChiRoute),
		httpmiddleware.LogRequests(httpmiddleware.ChiRoute),
	)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, []byte(`{"code":404,"message":"not found"}`))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, []byte(`{"code":405,"message":"method not allowed"}`))
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/products", h.ListProducts)
		r.Get("/products/{id}", h.GetProduct)
		r.Get("/products/category/{category}", h.ListCategory)

		r.Group(func(r chi.Router) {
			r.Use(h.cookies.LoadAndSave, h.bindSession)

			r.Get("/cart", h.GetCart)
			r.Delete("/cart", h.ClearCart)
			r.Post("/cart/items", h.AddItem)
			r.Delete("/cart/items/{productId}", h.RemoveItem)
			r.Post("/cart/items/{productId}/increment", h.IncrementItem)
			r.Post("/cart/items/{productId}/decrement", h.DecrementItem)

			r.Post("/checkout", h.Checkout)
			r.Post("/checkout/products/{productId}", h.BuyNow)
			r.Get("/orders", h.ListOrders)

			r.Post("/auth/signup", h.SignUp)
			r.Post("/auth/signin", h.SignIn)
			r.Post("/auth/signout", h.SignOut)
			r.Post("/auth/refresh", h.Refresh)
			r.Get("/auth/me", h.Me)
			r.Get("/auth/federated/login", h.FederatedLogin)
			r.Get("/auth/federated/callback", h.FederatedCallback)
		})
	})
	return r
}

// resolveImage prepends the image base URL to relative paths.
func (h *Handler) resolveImage(image string) string {
	if h.imageBaseURL == "" || image == "" || strings.Contains(image, "://") {
		return image
	}
	return h.imageBaseURL + "/" + strings.TrimLeft(image, "/")
}
