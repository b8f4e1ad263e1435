package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/foodrun/internal/domain/apperr"
	"github.com/xenking/foodrun/internal/domain/order"
)

// earningsWindow is used when a driver asks for earnings without a range.
const earningsWindow = 30 * 24 * time.Hour

// Checkout serves POST /api/checkout {lineIds?, couponCode?, payment?}.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	req := order.CheckoutRequest{CustomerID: caller(r).Subject}
	err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		switch key {
		case "lineIds":
			if d.Next() == jx.Null {
				return d.Null()
			}
			req.Subset = true
			return d.Arr(func(d *jx.Decoder) error {
				id, err := d.Str()
				if err != nil {
					return err
				}
				req.LineIDs = append(req.LineIDs, id)
				return nil
			})
		case "couponCode":
			code, err := optStr(d)
			req.CouponCode = code
			return err
		case "payment":
			p, err := optStr(d)
			req.Payment = order.PaymentStatus(p)
			return err
		default:
			return d.Skip()
		}
	})
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}

	o, err := h.orders.Checkout(r.Context(), req)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	respond(w, http.StatusCreated, func(e *jx.Encoder) { encodeOrder(e, o) })
}

// CustomerOrders serves GET /api/orders.
func (h *Handler) CustomerOrders(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, func() ([]order.Order, error) {
		return h.orders.CustomerOrders(r.Context(), caller(r).Subject)
	})
}

// CustomerOrder serves GET /api/orders/{orderID}.
func (h *Handler) CustomerOrder(w http.ResponseWriter, r *http.Request) {
	h.one(w, r, http.StatusOK, func() (*order.Order, error) {
		return h.orders.CustomerOrder(r.Context(), caller(r).Subject, chi.URLParam(r, "orderID"))
	})
}

// SellerOrders serves GET /api/seller/orders.
func (h *Handler) SellerOrders(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, func() ([]order.Order, error) {
		return h.orders.SellerOrders(r.Context(), caller(r).Seller())
	})
}

// SellerUpdateStatus serves PATCH /api/seller/orders/{orderID}/status {status}.
func (h *Handler) SellerUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var status string
	err := decodeObject(w, r, func(d *jx.Decoder, key string) (err error) {
		if key != "status" {
			return d.Skip()
		}
		status, err = d.Str()
		return err
	})
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	if status == "" {
		writeError(r.Context(), w, apperr.Invalid("status", "required"))
		return
	}
	h.one(w, r, http.StatusOK, func() (*order.Order, error) {
		return h.orders.SellerAdvance(r.Context(), caller(r).Seller(), chi.URLParam(r, "orderID"), order.Status(status))
	})
}

// AvailableOrders serves GET /api/driver/orders/available.
func (h *Handler) AvailableOrders(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, func() ([]order.Order, error) {
		return h.orders.AvailableForDrivers(r.Context())
	})
}

// ActiveDeliveries serves GET /api/driver/orders/active.
func (h *Handler) ActiveDeliveries(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, func() ([]order.Order, error) {
		return h.orders.DriverActive(r.Context(), caller(r).Subject)
	})
}

// AcceptOrder serves POST /api/driver/orders/{orderID}/accept.
func (h *Handler) AcceptOrder(w http.ResponseWriter, r *http.Request) {
	h.one(w, r, http.StatusOK, func() (*order.Order, error) {
		return h.orders.DriverAccept(r.Context(), caller(r).Subject, chi.URLParam(r, "orderID"))
	})
}

// DeliverOrder serves POST /api/driver/orders/{orderID}/delivered.
func (h *Handler) DeliverOrder(w http.ResponseWriter, r *http.Request) {
	h.one(w, r, http.StatusOK, func() (*order.Order, error) {
		return h.orders.DriverDeliver(r.Context(), caller(r).Subject, chi.URLParam(r, "orderID"))
	})
}

// DriverEarnings serves GET /api/driver/earnings?from=&to=. Bounds accept
// RFC 3339 timestamps or dates; to defaults to now and from to 30 days
// before to.
func (h *Handler) DriverEarnings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	to, err := parseBound("to", q.Get("to"), h.now())
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	from, err := parseBound("from", q.Get("from"), to.Add(-earningsWindow))
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}

	earn, err := h.orders.DriverEarnings(r.Context(), caller(r).Subject, from, to)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	respond(w, http.StatusOK, func(e *jx.Encoder) { encodeEarnings(e, from, to, earn) })
}

func parseBound(field, v string, def time.Time) (time.Time, error) {
	if v == "" {
		return def, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.DateOnly, v); err == nil {
		return t, nil
	}
	return time.Time{}, apperr.Invalid(field, "expected RFC 3339 timestamp or YYYY-MM-DD date")
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, fn func() ([]order.Order, error)) {
	orders, err := fn()
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	respond(w, http.StatusOK, func(e *jx.Encoder) { encodeOrders(e, orders) })
}

func (h *Handler) one(w http.ResponseWriter, r *http.Request, status int, fn func() (*order.Order, error)) {
	o, err := fn()
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	respond(w, status, func(e *jx.Encoder) { encodeOrder(e, o) })
}
