package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"
)

// ListCoupons serves GET /api/coupons with the caller's usable coupons,
// newest first.
func (h *Handler) ListCoupons(w http.ResponseWriter, r *http.Request) {
	coupons, err := h.coupons.ListEligible(r.Context(), caller(r).Subject)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	respond(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for i := range coupons {
			encodeCoupon(e, &coupons[i])
		}
		e.ArrEnd()
	})
}

// RedeemCoupon serves POST /api/coupons/{code}/redeem. Redeeming an already
// applied coupon returns it unchanged.
func (h *Handler) RedeemCoupon(w http.ResponseWriter, r *http.Request) {
	c, err := h.coupons.Redeem(r.Context(), caller(r).Subject, chi.URLParam(r, "code"))
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	respond(w, http.StatusOK, func(e *jx.Encoder) { encodeCoupon(e, c) })
}
