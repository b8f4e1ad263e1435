package coupon

import (
	"context"
	"slices"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/foodrun/internal/domain/apperr"
)

// DefaultMintAttempts bounds code regeneration on collision.
const DefaultMintAttempts = 5

// Ledger holds the coupon rules that must run against a caller-provided
// Repository, usually one bound to the caller's transaction.
type Ledger struct {
	codes    CodeGenerator
	attempts int
}

// NewLedger creates a Ledger minting codes with gen.
func NewLedger(gen CodeGenerator) *Ledger {
	if gen == nil {
		gen = DefaultCodes
	}
	return &Ledger{codes: gen, attempts: DefaultMintAttempts}
}

// Claim selects and marks applied the coupon a checkout will use. With an
// empty code the best eligible coupon is chosen and (nil, nil) means the
// customer has none. An explicit code that is unknown or belongs to someone
// else is ErrNotFound. One that is expired or already applied is
// ErrNotEligible.
func (l *Ledger) Claim(ctx context.Context, repo Repository, customerID, code string, now time.Time) (*Coupon, error) {
	candidates, err := repo.LockEligible(ctx, customerID, now)
	if err != nil {
		return nil, errors.Wrap(err, "lock eligible coupons")
	}
	if code != "" {
		candidates = slices.DeleteFunc(candidates, func(c Coupon) bool { return c.Code != code })
		if len(candidates) == 0 {
			return nil, l.explain(ctx, repo, customerID, code)
		}
	}

	for len(candidates) > 0 {
		best, ok := SelectBest(candidates, customerID, now)
		if !ok {
			break
		}
		marked, err := repo.MarkApplied(ctx, best.Code, now)
		if err != nil {
			return nil, errors.Wrapf(err, "mark coupon %s applied", best.Code)
		}
		if marked {
			best.Applied = true
			best.AppliedAt = &now
			return best, nil
		}
		// Lost to a concurrent writer; try the next one.
		candidates = slices.DeleteFunc(candidates, func(c Coupon) bool { return c.Code == best.Code })
	}
	if code != "" {
		return nil, ErrNotEligible
	}
	return nil, nil
}

// explain tells an unknown or foreign code apart from an ineligible one.
func (l *Ledger) explain(ctx context.Context, repo Repository, customerID, code string) error {
	c, err := repo.Get(ctx, code)
	switch {
	case errors.Is(err, ErrNotFound):
		return ErrNotFound
	case err != nil:
		return errors.Wrap(err, "get coupon")
	case c.CustomerID != customerID:
		return ErrNotFound
	default:
		return ErrNotEligible
	}
}

// Redeem marks the customer's coupon applied. Redeeming an already applied
// coupon is a no-op that returns it unchanged.
func (l *Ledger) Redeem(ctx context.Context, repo Repository, customerID, code string, now time.Time) (*Coupon, error) {
	c, err := repo.Get(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "get coupon")
	}
	if c.CustomerID != customerID {
		return nil, ErrNotFound
	}
	if c.Applied {
		return c, nil
	}
	if !now.Before(c.ExpiresAt) {
		return nil, ErrNotEligible
	}

	marked, err := repo.MarkApplied(ctx, code, now)
	if err != nil {
		return nil, errors.Wrap(err, "mark coupon applied")
	}
	if !marked {
		return repo.Get(ctx, code)
	}
	c.Applied = true
	c.AppliedAt = &now
	return c, nil
}

// MintParams describes a coupon to issue.
type MintParams struct {
	CustomerID  string
	Label       string
	DiscountPct int
	TTL         time.Duration
}

func (p MintParams) validate() error {
	switch {
	case p.CustomerID == "":
		return apperr.Invalid("customerId", "required")
	case p.DiscountPct < 0 || p.DiscountPct > 100:
		return apperr.Invalid("discountPct", "must be between 0 and 100")
	case p.TTL <= 0:
		return apperr.Invalid("ttl", "must be positive")
	}
	return nil
}

// Mint issues a new coupon under a freshly generated code, regenerating the
// code when the store reports a collision.
func (l *Ledger) Mint(ctx context.Context, repo Repository, p MintParams, now time.Time) (*Coupon, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	for range l.attempts {
		code, err := l.codes.Generate()
		if err != nil {
			return nil, errors.Wrap(err, "generate code")
		}
		c := Coupon{
			Code:        code,
			CustomerID:  p.CustomerID,
			Label:       p.Label,
			DiscountPct: p.DiscountPct,
			ExpiresAt:   now.Add(p.TTL),
			CreatedAt:   now,
		}
		inserted, err := repo.Insert(ctx, c)
		if err != nil {
			return nil, errors.Wrap(err, "insert coupon")
		}
		if inserted {
			return &c, nil
		}
	}
	return nil, ErrCodeSpaceExhausted
}
