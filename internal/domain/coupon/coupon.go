package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a code does not exist or belongs to
	// another customer.
	ErrNotFound = errors.New("coupon not found")
	// ErrNotEligible is returned when an explicitly requested coupon is
	// applied, expired or otherwise unusable.
	ErrNotEligible = errors.New("coupon not eligible")
	// ErrCodeSpaceExhausted is returned when the code generator keeps
	// producing codes that already exist.
	ErrCodeSpaceExhausted = errors.New("coupon code space exhausted")
)

// Coupon is a single-use percentage discount owned by one customer.
type Coupon struct {
	Code        string
	CustomerID  string
	Label       string
	DiscountPct int
	ExpiresAt   time.Time
	Applied     bool
	AppliedAt   *time.Time
	CreatedAt   time.Time
}

// EligibleFor reports whether the coupon can still be applied by customerID at now.
func (c *Coupon) EligibleFor(customerID string, now time.Time) bool {
	return c.CustomerID == customerID && !c.Applied && now.Before(c.ExpiresAt)
}

// Discount returns the discount the coupon grants on subtotal, rounded to
// whole currency units.
func (c *Coupon) Discount(subtotal decimal.Decimal) decimal.Decimal {
	return Discount(subtotal, c.DiscountPct)
}

// Discount computes round(subtotal * pct / 100), half away from zero.
func Discount(subtotal decimal.Decimal, pct int) decimal.Decimal {
	if pct <= 0 || subtotal.IsNegative() {
		return decimal.Zero
	}
	return subtotal.Mul(decimal.NewFromInt(int64(pct))).Div(decimal.NewFromInt(100)).Round(0)
}

// Repository persists coupons. A Repository bound to a transaction holds the
// row locks taken by LockEligible until the transaction ends.
type Repository interface {
	// Get returns the coupon by code or ErrNotFound.
	Get(ctx context.Context, code string) (*Coupon, error)
	// ListEligible returns the customer's unapplied, unexpired coupons,
	// newest first.
	ListEligible(ctx context.Context, customerID string, now time.Time) ([]Coupon, error)
	// LockEligible is ListEligible with the returned rows locked for update.
	LockEligible(ctx context.Context, customerID string, now time.Time) ([]Coupon, error)
	// MarkApplied flips applied to true if it is still false and reports
	// whether this call did the flip.
	MarkApplied(ctx context.Context, code string, at time.Time) (bool, error)
	// Insert stores a new coupon and reports false without error when the
	// code is already taken.
	Insert(ctx context.Context, c Coupon) (bool, error)
}
