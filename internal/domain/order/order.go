package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/foodrun/internal/domain/cart"
	"github.com/xenking/foodrun/internal/domain/catalog"
	"github.com/xenking/foodrun/internal/domain/coupon"
)

// PaymentStatus is the state of the external charge for an order.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

// Valid reports whether p is a known payment status.
func (p PaymentStatus) Valid() bool {
	switch p {
	case PaymentPending, PaymentPaid, PaymentFailed:
		return true
	}
	return false
}

// ChallengeOutcome records how the delivery challenge ended for an order.
type ChallengeOutcome string

const (
	ChallengeNotStarted ChallengeOutcome = "NOT_STARTED"
	ChallengeCompleted  ChallengeOutcome = "COMPLETED"
	ChallengeFailed     ChallengeOutcome = "FAILED"
)

// Order is an immutable priced snapshot of a checked out cart plus its
// delivery lifecycle.
type Order struct {
	ID               string
	CustomerID       string
	Seller           catalog.SellerRef
	SellerName       string
	Items            []LineItem
	Subtotal         decimal.Decimal
	DeliveryFee      decimal.Decimal
	Discount         decimal.Decimal
	CouponCode       string
	Total            decimal.Decimal
	Status           Status
	PaymentStatus    PaymentStatus
	DriverID         string
	DeliveryPayment  decimal.Decimal
	ChallengeOutcome ChallengeOutcome
	CreatedAt        time.Time
	UpdatedAt        time.Time
	DeliveredAt      *time.Time
}

// LineItem is a line frozen at checkout. Name and price never follow later
// catalog changes.
type LineItem struct {
	ItemID   string          `json:"item_id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
}

// StatusChange is one entry of an order's status audit trail.
type StatusChange struct {
	OrderID string
	From    Status
	To      Status
	Actor   string
	At      time.Time
}

// Earnings summarises a driver's completed deliveries in a period.
type Earnings struct {
	Deliveries int
	Total      decimal.Decimal
}

// Repository holds the order writes that run inside a transaction.
type Repository interface {
	// Create inserts the order and its initial status history entry.
	Create(ctx context.Context, o *Order) error
	// Lock loads the order and locks its row, or returns ErrNotFound.
	Lock(ctx context.Context, id string) (*Order, error)
	// SaveTransition persists status, driver, delivery payment, delivery
	// time and challenge outcome of o and appends change to the history.
	SaveTransition(ctx context.Context, o *Order, change StatusChange) error
}

// Reader serves the order listings.
type Reader interface {
	Get(ctx context.Context, id string) (*Order, error)
	ListByCustomer(ctx context.Context, customerID string) ([]Order, error)
	ListBySeller(ctx context.Context, seller catalog.SellerRef) ([]Order, error)
	// ListAvailable returns orders that still wait for a driver.
	ListAvailable(ctx context.Context) ([]Order, error)
	// ListActiveForDriver returns the driver's orders that are out for delivery.
	ListActiveForDriver(ctx context.Context, driverID string) ([]Order, error)
	// Earnings sums delivery payments of orders the driver delivered in [from, to).
	Earnings(ctx context.Context, driverID string, from, to time.Time) (*Earnings, error)
}

// SessionForecloser ends the challenge race for an order.
type SessionForecloser interface {
	// ForecloseActive marks every ACTIVE challenge session of the order
	// EXPIRED and returns how many were changed.
	ForecloseActive(ctx context.Context, orderID string, at time.Time) (int, error)
}

// Tx is the set of stores available inside one order transaction.
type Tx interface {
	Cart() cart.Repository
	Coupons() coupon.Repository
	Orders() Repository
	Sessions() SessionForecloser
}

// TxRunner runs fn in a transaction, committing when it returns nil.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
