package handler

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/foodrun/internal/domain/apperr"
	"github.com/xenking/foodrun/internal/domain/cart"
	"github.com/xenking/foodrun/internal/domain/challenge"
	"github.com/xenking/foodrun/internal/domain/coupon"
	"github.com/xenking/foodrun/internal/domain/order"
	"github.com/xenking/foodrun/pkg/httpmiddleware"
)

// Error kinds reported in the "kind" field of error bodies.
const (
	KindEmptyCart        = "empty_cart"
	KindUnavailableItems = "unavailable_items"
	KindMixedSeller      = "mixed_seller"
	KindNotLoggedIn      = "not_logged_in"
	KindOrderNotFound    = "order_not_found"
	KindNotFound         = "not_found"
	KindAlreadyAssigned  = "already_assigned"
	KindExpired          = "expired"
	KindAlreadyResolved  = "already_resolved"
	KindUnavailable      = "upstream_unavailable"
	KindInvalidInput     = "invalid_input"
	KindInternal         = "internal"
)

type apiError struct {
	status  int
	kind    string
	message string
	items   []order.UnavailableItem
}

// classify maps a domain error to its HTTP form.
func classify(err error) apiError {
	var (
		unavailable *order.UnavailableItemsError
		invalid     *apperr.InvalidInputError
		transition  *order.InvalidTransitionError
		itemGone    *cart.ItemUnavailableError
	)
	switch {
	case errors.Is(err, apperr.ErrUnavailable):
		return apiError{status: http.StatusServiceUnavailable, kind: KindUnavailable, message: "service temporarily unavailable, retry later"}
	case errors.Is(err, apperr.ErrNotLoggedIn), errors.Is(err, challenge.ErrInvalidToken):
		return apiError{status: http.StatusUnauthorized, kind: KindNotLoggedIn, message: "not logged in"}
	case errors.Is(err, order.ErrEmptyCart):
		return apiError{status: http.StatusBadRequest, kind: KindEmptyCart, message: err.Error()}
	case errors.As(err, &unavailable):
		return apiError{status: http.StatusConflict, kind: KindUnavailableItems, message: "some items are unavailable", items: unavailable.Items}
	case errors.Is(err, order.ErrMixedSeller):
		return apiError{status: http.StatusConflict, kind: KindMixedSeller, message: err.Error()}
	case errors.Is(err, order.ErrNotFound), errors.Is(err, challenge.ErrSessionNotFound):
		return apiError{status: http.StatusNotFound, kind: KindOrderNotFound, message: "order not found"}
	case errors.Is(err, cart.ErrLineNotFound), errors.Is(err, coupon.ErrNotFound):
		return apiError{status: http.StatusNotFound, kind: KindNotFound, message: err.Error()}
	case errors.Is(err, order.ErrAlreadyAssigned):
		return apiError{status: http.StatusConflict, kind: KindAlreadyAssigned, message: err.Error()}
	case errors.Is(err, challenge.ErrExpired):
		return apiError{status: http.StatusGone, kind: KindExpired, message: err.Error()}
	case errors.Is(err, challenge.ErrAlreadyResolved):
		return apiError{status: http.StatusConflict, kind: KindAlreadyResolved, message: err.Error()}
	case errors.As(err, &invalid):
		return apiError{status: http.StatusBadRequest, kind: KindInvalidInput, message: invalid.Error()}
	case errors.As(err, &transition):
		return apiError{status: http.StatusUnprocessableEntity, kind: KindInvalidInput, message: transition.Error()}
	case errors.As(err, &itemGone):
		return apiError{status: http.StatusUnprocessableEntity, kind: KindInvalidInput, message: itemGone.Error()}
	case errors.Is(err, coupon.ErrNotEligible), errors.Is(err, challenge.ErrNotInTransit):
		return apiError{status: http.StatusUnprocessableEntity, kind: KindInvalidInput, message: err.Error()}
	default:
		return apiError{status: http.StatusInternalServerError, kind: KindInternal, message: "internal server error"}
	}
}

// writeError logs unexpected failures and writes the error body.
func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	e := classify(err)
	lg := zctx.From(ctx)
	switch {
	case e.status >= http.StatusInternalServerError:
		lg.Error("Request failed", zap.String("kind", e.kind), zap.Error(err))
	default:
		lg.Debug("Request rejected", zap.String("kind", e.kind), zap.Error(err))
	}
	if len(e.items) == 0 {
		httpmiddleware.WriteError(w, e.status, e.kind, e.message)
		return
	}

	enc := jx.GetEncoder()
	defer jx.PutEncoder(enc)
	enc.ObjStart()
	enc.FieldStart("kind")
	enc.Str(e.kind)
	enc.FieldStart("message")
	enc.Str(e.message)
	enc.FieldStart("items")
	enc.ArrStart()
	for _, it := range e.items {
		enc.ObjStart()
		enc.FieldStart("itemId")
		enc.Str(it.ItemID)
		enc.FieldStart("name")
		enc.Str(it.Name)
		enc.ObjEnd()
	}
	enc.ArrEnd()
	enc.ObjEnd()
	writeJSON(w, e.status, enc)
}
