package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/order"
)

// IdempotencyHeader carries the idempotency key of a checkout attempt. It
// takes precedence over the idempotencyKey body field.
const IdempotencyHeader = "Idempotency-Key"

func decodeOrderRequest(r *http.Request) (order.Request, error) {
	var req order.Request
	err := decodeBody(r, func(d *jx.Decoder) (err error) {
		req, err = decodeCheckout(d)
		return err
	})
	if k := r.Header.Get(IdempotencyHeader); k != "" {
		req.IdempotencyKey = k
	}
	return req, err
}

// Checkout places an order from the signed-in cart. A replayed attempt
// answers 200 with the original order, a new order 201.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	req, err := decodeOrderRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := sessionFrom(r.Context()).Checkout.PlaceOrder(r.Context(), req)
	writeOrderResult(w, r, res, err)
}

// BuyNow orders one unit of a product without touching the cart.
func (h *Handler) BuyNow(w http.ResponseWriter, r *http.Request) {
	req, err := decodeOrderRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := sessionFrom(r.Context()).Checkout.BuyNow(r.Context(), chi.URLParam(r, "productId"), req)
	writeOrderResult(w, r, res, err)
}

// ListOrders returns the order history of the signed-in identity.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := sessionFrom(r.Context()).Checkout.History(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("orders")
		e.ArrStart()
		for i := range orders {
			encodeOrder(e, &orders[i])
		}
		e.ArrEnd()
		e.ObjEnd()
	})
}

func writeOrderResult(w http.ResponseWriter, r *http.Request, res *order.Result, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	respond(w, status, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("order")
		encodeOrder(e, res.Order)
		e.FieldStart("replayed")
		e.Bool(res.Replayed)
		e.ObjEnd()
	})
}
