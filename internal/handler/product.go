package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/product"
)

// ListProducts returns the whole catalog.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	ps, err := h.catalog.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.writeProducts(w, ps)
}

// ListCategory returns the products of one category.
func (h *Handler) ListCategory(w http.ResponseWriter, r *http.Request) {
	ps, err := h.catalog.ListByCategory(r.Context(), chi.URLParam(r, "category"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.writeProducts(w, ps)
}

// GetProduct returns one product.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.catalog.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	p.Image = h.resolveImage(p.Image)
	respond(w, http.StatusOK, func(e *jx.Encoder) { encodeProduct(e, *p) })
}

func (h *Handler) writeProducts(w http.ResponseWriter, ps []product.Product) {
	for i := range ps {
		ps[i].Image = h.resolveImage(ps[i].Image)
	}
	respond(w, http.StatusOK, func(e *jx.Encoder) { encodeProducts(e, ps) })
}
