package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/internal/domain/cart"
)

// GetCart returns the cart of the session's current view.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	c, err := sessionFrom(r.Context()).Cart.Load(r.Context())
	h.writeCart(w, r, c, err)
}

// AddItem adds qty units of a catalog product. Title, price and image are
// taken from the catalog.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := decodeBody(r, func(d *jx.Decoder) (err error) {
		req, err = decodeAddItem(d)
		return err
	}); err != nil {
		writeError(w, r, err)
		return
	}
	if req.ProductID == "" {
		writeError(w, r, apperr.Validation("productId", "product id is required"))
		return
	}
	if req.Qty < 1 {
		writeError(w, r, apperr.Validation("qty", "quantity must be at least 1"))
		return
	}

	ctx := r.Context()
	p, err := h.catalog.Get(ctx, req.ProductID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	item := p.LineItem()
	item.Image = h.resolveImage(item.Image)

	c, err := sessionFrom(ctx).Cart.Add(ctx, item, req.Qty)
	h.writeCart(w, r, c, err)
}

// RemoveItem drops a product from the cart.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	c, err := sessionFrom(r.Context()).Cart.Remove(r.Context(), chi.URLParam(r, "productId"))
	h.writeCart(w, r, c, err)
}

// IncrementItem adds one unit of a product already in the cart.
func (h *Handler) IncrementItem(w http.ResponseWriter, r *http.Request) {
	c, err := sessionFrom(r.Context()).Cart.Increment(r.Context(), chi.URLParam(r, "productId"))
	h.writeCart(w, r, c, err)
}

// DecrementItem removes one unit of a product, dropping it at zero.
func (h *Handler) DecrementItem(w http.ResponseWriter, r *http.Request) {
	c, err := sessionFrom(r.Context()).Cart.Decrement(r.Context(), chi.URLParam(r, "productId"))
	h.writeCart(w, r, c, err)
}

// ClearCart empties the cart.
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	c, err := sessionFrom(r.Context()).Cart.Clear(r.Context())
	h.writeCart(w, r, c, err)
}

func (h *Handler) writeCart(w http.ResponseWriter, r *http.Request, c *cart.Cart, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusOK, func(e *jx.Encoder) { encodeCart(e, c) })
}
