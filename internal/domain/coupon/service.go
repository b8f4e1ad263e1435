package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/foodrun/internal/domain/apperr"
)

// Service exposes the ledger to callers that do not run inside another
// operation's transaction.
type Service struct {
	repo   Repository
	ledger *Ledger
	cfg    Config
	now    func() time.Time
}

// Config holds coupon service settings.
type Config struct {
	// StoreTimeout bounds each store call. Zero disables it.
	StoreTimeout time.Duration
}

// NewService creates a coupon Service.
func NewService(repo Repository, ledger *Ledger, cfg Config) *Service {
	return &Service{repo: repo, ledger: ledger, cfg: cfg, now: time.Now}
}

// ListEligible returns the coupons the customer can still use, newest first.
func (s *Service) ListEligible(ctx context.Context, customerID string) ([]Coupon, error) {
	if customerID == "" {
		return nil, apperr.ErrNotLoggedIn
	}
	ctx, cancel := apperr.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	out, err := s.repo.ListEligible(ctx, customerID, s.now())
	if err != nil {
		return nil, apperr.Unavailable(errors.Wrap(err, "list eligible coupons"))
	}
	return out, nil
}

// Redeem marks one of the customer's coupons applied.
func (s *Service) Redeem(ctx context.Context, customerID, code string) (*Coupon, error) {
	if customerID == "" {
		return nil, apperr.ErrNotLoggedIn
	}
	if code == "" {
		return nil, apperr.Invalid("code", "required")
	}
	ctx, cancel := apperr.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	c, err := s.ledger.Redeem(ctx, s.repo, customerID, code, s.now())
	if err != nil {
		return nil, apperr.Unavailable(err)
	}
	return c, nil
}

// IssuePromotion mints a promotional coupon for a customer.
func (s *Service) IssuePromotion(ctx context.Context, customerID, label string, pct int, ttl time.Duration) (*Coupon, error) {
	ctx, cancel := apperr.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	c, err := s.ledger.Mint(ctx, s.repo, MintParams{
		CustomerID:  customerID,
		Label:       label,
		DiscountPct: pct,
		TTL:         ttl,
	}, s.now())
	if err != nil {
		return nil, apperr.Unavailable(err)
	}
	return c, nil
}
