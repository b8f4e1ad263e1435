// Package handler exposes the marketplace over HTTP: chi routes, jx codecs,
// bearer identity and the mapping of domain errors to stable error kinds.
package handler

import (
	"context"
	"time"

	"github.com/xenking/foodrun/internal/domain/cart"
	"github.com/xenking/foodrun/internal/domain/catalog"
	"github.com/xenking/foodrun/internal/domain/challenge"
	"github.com/xenking/foodrun/internal/domain/coupon"
	"github.com/xenking/foodrun/internal/domain/order"
)

// Carts is the cart surface used by the handlers.
type Carts interface {
	List(ctx context.Context, customerID string) ([]cart.Line, error)
	Add(ctx context.Context, customerID, itemID string, quantity int) (*cart.Line, error)
	SetQuantity(ctx context.Context, customerID, lineID string, quantity int) (*cart.Line, error)
	Remove(ctx context.Context, customerID, lineID string) error
	Clear(ctx context.Context, customerID string) error
}

// Orders is the checkout and order lifecycle surface.
type Orders interface {
	Checkout(ctx context.Context, req order.CheckoutRequest) (*order.Order, error)
	CustomerOrders(ctx context.Context, customerID string) ([]order.Order, error)
	CustomerOrder(ctx context.Context, customerID, orderID string) (*order.Order, error)
	SellerOrders(ctx context.Context, seller catalog.SellerRef) ([]order.Order, error)
	SellerAdvance(ctx context.Context, seller catalog.SellerRef, orderID string, to order.Status) (*order.Order, error)
	AvailableForDrivers(ctx context.Context) ([]order.Order, error)
	DriverActive(ctx context.Context, driverID string) ([]order.Order, error)
	DriverAccept(ctx context.Context, driverID, orderID string) (*order.Order, error)
	DriverDeliver(ctx context.Context, driverID, orderID string) (*order.Order, error)
	DriverEarnings(ctx context.Context, driverID string, from, to time.Time) (*order.Earnings, error)
}

// Coupons is the customer coupon surface.
type Coupons interface {
	ListEligible(ctx context.Context, customerID string) ([]coupon.Coupon, error)
	Redeem(ctx context.Context, customerID, code string) (*coupon.Coupon, error)
}

// Challenges is the delivery challenge surface.
type Challenges interface {
	Start(ctx context.Context, customerID, orderID string, diff challenge.Difficulty) (*challenge.Ticket, error)
	Inspect(ctx context.Context, token string) (*challenge.Session, error)
	Complete(ctx context.Context, token string) (*challenge.Reward, error)
	Fail(ctx context.Context, token string) error
}

var (
	_ Carts      = (*cart.Service)(nil)
	_ Orders     = (*order.Service)(nil)
	_ Coupons    = (*coupon.Service)(nil)
	_ Challenges = (*challenge.Manager)(nil)
)

// Handler serves the API routes.
type Handler struct {
	carts      Carts
	orders     Orders
	coupons    Coupons
	challenges Challenges
	identity   *Authenticator
	now        func() time.Time
}

// New returns a Handler backed by the given services.
func New(carts Carts, orders Orders, coupons Coupons, challenges Challenges, identity *Authenticator) *Handler {
	return &Handler{
		carts:      carts,
		orders:     orders,
		coupons:    coupons,
		challenges: challenges,
		identity:   identity,
		now:        time.Now,
	}
}
