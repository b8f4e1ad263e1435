package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/foodrun/pkg/httpmiddleware"
)

// RouterOptions carries the cross-cutting pieces mounted around the routes.
type RouterOptions struct {
	// Middlewares run for every request, first is outermost.
	Middlewares []httpmiddleware.Middleware
	// ChallengeLimit guards the challenge routes. Nil disables limiting.
	ChallengeLimit httpmiddleware.Middleware
	// Live and Ready serve /livez and /readyz when set.
	Live, Ready http.HandlerFunc
}

// NewRouter mounts every API route.
func NewRouter(h *Handler, opts RouterOptions) http.Handler {
	r := chi.NewRouter()
	for _, m := range opts.Middlewares {
		r.Use(m)
	}
	notFound := func(w http.ResponseWriter, _ *http.Request) {
		httpmiddleware.WriteError(w, http.StatusNotFound, KindNotFound, "route not found")
	}
	r.NotFound(notFound)
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httpmiddleware.WriteError(w, http.StatusMethodNotAllowed, KindInvalidInput, "method not allowed")
	})

	if opts.Live != nil {
		r.Get("/livez", opts.Live)
	}
	if opts.Ready != nil {
		r.Get("/readyz", opts.Ready)
	}

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.identity.Require(RoleCustomer))

			r.Get("/cart", h.ListCart)
			r.Post("/cart", h.AddToCart)
			r.Delete("/cart", h.ClearCart)
			r.Patch("/cart/{lineID}", h.UpdateCartLine)
			r.Delete("/cart/{lineID}", h.RemoveCartLine)

			r.Post("/checkout", h.Checkout)

			r.Get("/coupons", h.ListCoupons)
			r.Post("/coupons/{code}/redeem", h.RedeemCoupon)

			r.Get("/orders", h.CustomerOrders)
			r.Get("/orders/{orderID}", h.CustomerOrder)
		})

		r.Route("/seller", func(r chi.Router) {
			r.Use(h.identity.Require(RoleSeller))
			r.Get("/orders", h.SellerOrders)
			r.Patch("/orders/{orderID}/status", h.SellerUpdateStatus)
		})

		r.Route("/driver", func(r chi.Router) {
			r.Use(h.identity.Require(RoleDriver))
			r.Get("/orders/available", h.AvailableOrders)
			r.Get("/orders/active", h.ActiveDeliveries)
			r.Post("/orders/{orderID}/accept", h.AcceptOrder)
			r.Post("/orders/{orderID}/delivered", h.DeliverOrder)
			r.Get("/earnings", h.DriverEarnings)
		})

		r.Route("/challenges", func(r chi.Router) {
			if opts.ChallengeLimit != nil {
				r.Use(opts.ChallengeLimit)
			}
			r.With(h.identity.Require(RoleCustomer)).Post("/start", h.StartChallenge)
			// The session token is the credential for the remaining routes.
			r.Get("/session", h.InspectChallenge)
			r.Post("/complete", h.CompleteChallenge)
			r.Post("/fail", h.FailChallenge)
		})
	})
	return r
}
