package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/foodrun/internal/domain/apperr"
)

// ListCart serves GET /api/cart.
func (h *Handler) ListCart(w http.ResponseWriter, r *http.Request) {
	lines, err := h.carts.List(r.Context(), caller(r).Subject)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	respond(w, http.StatusOK, func(e *jx.Encoder) { encodeLines(e, lines) })
}

// AddToCart serves POST /api/cart {itemId, quantity}.
func (h *Handler) AddToCart(w http.ResponseWriter, r *http.Request) {
	var (
		itemID   string
		quantity = 1
	)
	err := decodeObject(w, r, func(d *jx.Decoder, key string) (err error) {
		switch key {
		case "itemId":
			itemID, err = d.Str()
		case "quantity":
			quantity, err = d.Int()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	if itemID == "" {
		writeError(r.Context(), w, apperr.Invalid("itemId", "required"))
		return
	}

	line, err := h.carts.Add(r.Context(), caller(r).Subject, itemID, quantity)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	respond(w, http.StatusCreated, func(e *jx.Encoder) { encodeLine(e, *line) })
}

// UpdateCartLine serves PATCH /api/cart/{lineID} {quantity}. A quantity of
// zero or less removes the line and answers 204.
func (h *Handler) UpdateCartLine(w http.ResponseWriter, r *http.Request) {
	var (
		quantity int
		seen     bool
	)
	err := decodeObject(w, r, func(d *jx.Decoder, key string) (err error) {
		if key != "quantity" {
			return d.Skip()
		}
		seen = true
		quantity, err = d.Int()
		return err
	})
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	if !seen {
		writeError(r.Context(), w, apperr.Invalid("quantity", "required"))
		return
	}

	line, err := h.carts.SetQuantity(r.Context(), caller(r).Subject, chi.URLParam(r, "lineID"), quantity)
	switch {
	case err != nil:
		writeError(r.Context(), w, err)
	case line == nil:
		w.WriteHeader(http.StatusNoContent)
	default:
		respond(w, http.StatusOK, func(e *jx.Encoder) { encodeLine(e, *line) })
	}
}

// RemoveCartLine serves DELETE /api/cart/{lineID}.
func (h *Handler) RemoveCartLine(w http.ResponseWriter, r *http.Request) {
	if err := h.carts.Remove(r.Context(), caller(r).Subject, chi.URLParam(r, "lineID")); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClearCart serves DELETE /api/cart.
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.carts.Clear(r.Context(), caller(r).Subject); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

