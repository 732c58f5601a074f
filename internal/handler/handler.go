// Package handler exposes the cart and order services over HTTP.
package handler

import (
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/pkg/idempotency"
)

const maxBodyBytes = 1 << 20

// Handler serves the /api routes.
type Handler struct {
	carts  *cart.Service
	orders *order.Service

	// idempotent wraps the POST routes that create orders or charge them.
	idempotent func(http.Handler) http.Handler
}

// Option configures a Handler.
type Option func(*Handler)

// WithIdempotency replays responses of POST /api/orders and
// POST /api/orders/{orderId}/pay retried with the same Idempotency-Key.
func WithIdempotency(store idempotency.Store) Option {
	return func(h *Handler) {
		h.idempotent = idempotency.Middleware(store)
	}
}

// NewHandler creates a Handler.
func NewHandler(carts *cart.Service, orders *order.Service, opts ...Option) *Handler {
	h := &Handler{
		carts:      carts,
		orders:     orders,
		idempotent: func(next http.Handler) http.Handler { return next },
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the API on r.
func (h *Handler) Register(r chi.Router) {
	r.Route("/api/cart", func(r chi.Router) {
		r.Post("/", h.AddCartItem)
		r.Get("/{userId}", h.GetCart)
		r.Delete("/{userId}/clear", h.ClearCart)
		r.Delete("/{userId}/{lineId}", h.RemoveCartItem)
	})
	r.Route("/api/orders", func(r chi.Router) {
		r.With(h.idempotent).Post("/", h.CreateOrder)
		r.Get("/", h.ListOrders)
		r.Get("/user/{userId}", h.ListUserOrders)
		r.Get("/{orderId}", h.GetOrder)
		r.Put("/{orderId}", h.UpdateOrder)
		r.Delete("/{orderId}", h.DeleteOrder)
		r.Put("/{orderId}/status", h.UpdateOrderStatus)
		r.Put("/{orderId}/confirm", h.ConfirmOrder)
		r.With(h.idempotent).Post("/{orderId}/pay", h.PayOrder)
	})
}

// pathID parses a positive integer URL parameter.
func pathID(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest("invalid %s %q", name, raw)
	}
	return id, nil
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, badRequest("read request body: %v", err)
	}
	if len(data) == 0 {
		return nil, badRequest("request body is empty")
	}
	return data, nil
}
