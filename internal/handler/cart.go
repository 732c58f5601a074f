package handler

import (
	"net/http"

	"github.com/go-faster/jx"
)

// GetCart handles GET /api/cart/{userId}.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userId")
	if err != nil {
		writeError(w, r, err)
		return
	}
	lines, err := h.carts.GetCart(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCartLines(e, lines) })
}

// AddCartItem handles POST /api/cart.
func (h *Handler) AddCartItem(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	req, err := decodeAddCartItem(data)
	if err != nil {
		writeError(w, r, badRequest("invalid cart item: %v", err))
		return
	}
	if req.UserID <= 0 || req.ProductID <= 0 {
		writeError(w, r, badRequest("userId and productId are required"))
		return
	}

	line, err := h.carts.AddItem(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCartLine(e, *line) })
}

// RemoveCartItem handles DELETE /api/cart/{userId}/{lineId}.
func (h *Handler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userId")
	if err != nil {
		writeError(w, r, err)
		return
	}
	lineID, err := pathID(r, "lineId")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.carts.RemoveItem(r.Context(), userID, lineID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// ClearCart handles DELETE /api/cart/{userId}/clear.
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userId")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.carts.ClearCart(r.Context(), userID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
