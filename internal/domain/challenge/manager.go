package challenge

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/foodrun/internal/domain/apperr"
	"github.com/xenking/foodrun/internal/domain/coupon"
	"github.com/xenking/foodrun/internal/domain/order"
)

const instrumentationName = "github.com/xenking/foodrun/internal/domain/challenge"

// Config holds challenge policy values.
type Config struct {
	// Ceiling is the wall-clock limit of a session.
	Ceiling time.Duration
	// CouponTTL is how long a reward coupon stays usable.
	CouponTTL time.Duration
	// UIBaseURL is where the challenge UI is served.
	UIBaseURL string
	// StoreTimeout bounds each transaction. Zero disables it.
	StoreTimeout time.Duration
}

// Deps are the collaborators of Manager.
type Deps struct {
	Tx             TxRunner
	Signer         *Signer
	Ledger         *coupon.Ledger
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// Ticket is what a customer receives when starting a challenge.
type Ticket struct {
	Session Session
	Token   string
	URL     string
}

// Manager issues, inspects and resolves challenge sessions.
type Manager struct {
	tx     TxRunner
	signer *Signer
	ledger *coupon.Ledger
	cfg    Config
	now    func() time.Time

	tracer  trace.Tracer
	results metric.Int64Counter
}

// NewManager creates a Manager.
func NewManager(deps Deps, cfg Config) (*Manager, error) {
	if cfg.Ceiling <= 0 {
		cfg.Ceiling = 2 * time.Hour
	}
	if cfg.CouponTTL <= 0 {
		cfg.CouponTTL = 7 * 24 * time.Hour
	}
	results, err := deps.MeterProvider.Meter(instrumentationName).Int64Counter("foodrun.challenge.results",
		metric.WithDescription("Resolved challenge sessions by status and difficulty"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "results counter")
	}
	return &Manager{
		tx:      deps.Tx,
		signer:  deps.Signer,
		ledger:  deps.Ledger,
		cfg:     cfg,
		now:     time.Now,
		tracer:  deps.TracerProvider.Tracer(instrumentationName),
		results: results,
	}, nil
}

// Start opens a session for the customer's order while it is out for
// delivery. Starting again while the session is still running returns a
// fresh token for it.
func (m *Manager) Start(ctx context.Context, customerID, orderID string, diff Difficulty) (*Ticket, error) {
	if customerID == "" {
		return nil, apperr.ErrNotLoggedIn
	}
	if orderID == "" {
		return nil, apperr.Invalid("orderId", "required")
	}
	if !diff.Valid() {
		return nil, apperr.Invalid("difficulty", "must be easy, medium or hard")
	}

	ctx, span := m.tracer.Start(ctx, "challenge.Start")
	defer span.End()

	ctx, cancel := apperr.WithTimeout(ctx, m.cfg.StoreTimeout)
	defer cancel()

	var (
		session *Session
		lapsed  bool
	)
	err := m.tx.InTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := tx.Orders().Lock(ctx, orderID)
		if err != nil {
			return err
		}
		if o.CustomerID != customerID {
			return order.ErrNotFound
		}
		now := m.now()

		existing, err := tx.Sessions().GetByOrder(ctx, orderID)
		switch {
		case errors.Is(err, ErrSessionNotFound):
		case err != nil:
			return errors.Wrap(err, "get session")
		case existing.Winnable(o, now):
			session = existing
			return nil
		case existing.Status == StatusActive:
			lapsed = true
			return m.expire(ctx, tx, o, existing, now)
		default:
			return ErrAlreadyResolved
		}

		switch o.Status {
		case order.StatusOutForDelivery:
		case order.StatusDelivered:
			return ErrExpired
		default:
			return ErrNotInTransit
		}
		session = &Session{
			ID:         uuid.NewString(),
			CustomerID: customerID,
			OrderID:    orderID,
			Difficulty: diff,
			Status:     StatusActive,
			ExpiresAt:  now.Add(m.cfg.Ceiling).Truncate(time.Second),
			CreatedAt:  now,
		}
		if err := tx.Sessions().Create(ctx, session); err != nil {
			return errors.Wrap(err, "create session")
		}
		return nil
	})
	if err != nil {
		return nil, apperr.Unavailable(err)
	}
	if lapsed {
		return nil, ErrExpired
	}

	token, err := m.signer.Sign(session)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("challenge.session", session.ID))
	return &Ticket{Session: *session, Token: token, URL: m.uiURL(token)}, nil
}

func (m *Manager) uiURL(token string) string {
	base := strings.TrimRight(m.cfg.UIBaseURL, "/")
	return base + "/?session=" + url.QueryEscape(token)
}

// Inspect returns the session behind token while it can still be won.
// Any other state is reported as ErrExpired.
func (m *Manager) Inspect(ctx context.Context, token string) (*Session, error) {
	ctx, span := m.tracer.Start(ctx, "challenge.Inspect")
	defer span.End()

	var out *Session
	lapsed, err := m.withSession(ctx, token, func(ctx context.Context, tx Tx, o *order.Order, s *Session) error {
		if s.Status != StatusActive {
			return ErrExpired
		}
		out = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	if lapsed {
		return nil, ErrExpired
	}
	return out, nil
}

// Complete resolves the session as won and mints the reward coupon. It
// succeeds at most once per session.
func (m *Manager) Complete(ctx context.Context, token string) (*Reward, error) {
	ctx, span := m.tracer.Start(ctx, "challenge.Complete")
	defer span.End()

	var reward *Reward
	lapsed, err := m.withSession(ctx, token, func(ctx context.Context, tx Tx, o *order.Order, s *Session) error {
		switch s.Status {
		case StatusWon, StatusLost:
			return ErrAlreadyResolved
		case StatusExpired:
			return ErrExpired
		}
		now := m.now()
		if err := tx.Sessions().Resolve(ctx, s.ID, StatusWon, now); err != nil {
			return errors.Wrap(err, "resolve session")
		}
		c, err := m.ledger.Mint(ctx, tx.Coupons(), coupon.MintParams{
			CustomerID:  s.CustomerID,
			Label:       rewardLabel(s.Difficulty),
			DiscountPct: s.Difficulty.RewardPct(),
			TTL:         m.cfg.CouponTTL,
		}, now)
		if err != nil {
			return errors.Wrap(err, "mint reward")
		}
		if err := tx.Orders().SetChallengeOutcome(ctx, o.ID, order.ChallengeCompleted, now); err != nil {
			return errors.Wrap(err, "set challenge outcome")
		}
		reward = &Reward{Code: c.Code, Label: c.Label, DiscountPct: c.DiscountPct, ExpiresAt: c.ExpiresAt}
		m.record(ctx, StatusWon, s.Difficulty)
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if lapsed {
		return nil, ErrExpired
	}
	return reward, nil
}

// Fail forfeits the session. Failing a lost or expired session is a no-op.
func (m *Manager) Fail(ctx context.Context, token string) error {
	ctx, span := m.tracer.Start(ctx, "challenge.Fail")
	defer span.End()

	claims, err := m.signer.Verify(token)
	if err != nil && !errors.Is(err, ErrExpired) {
		return err
	}
	return m.locked(ctx, claims, func(ctx context.Context, tx Tx, o *order.Order, s *Session) error {
		switch s.Status {
		case StatusWon:
			return ErrAlreadyResolved
		case StatusLost, StatusExpired:
			return nil
		}
		now := m.now()
		if err := tx.Sessions().Resolve(ctx, s.ID, StatusLost, now); err != nil {
			return errors.Wrap(err, "resolve session")
		}
		if o.ChallengeOutcome != order.ChallengeCompleted {
			if err := tx.Orders().SetChallengeOutcome(ctx, o.ID, order.ChallengeFailed, now); err != nil {
				return errors.Wrap(err, "set challenge outcome")
			}
		}
		m.record(ctx, StatusLost, s.Difficulty)
		return nil
	})
}

// withSession verifies token and runs fn with the order and session locked,
// but only while the session is winnable or already terminal. A session
// observed past its deadline, or after delivery, is marked EXPIRED and
// committed, and lapsed is reported as true.
func (m *Manager) withSession(
	ctx context.Context,
	token string,
	fn func(ctx context.Context, tx Tx, o *order.Order, s *Session) error,
) (lapsed bool, _ error) {
	claims, err := m.signer.Verify(token)
	if err != nil {
		if errors.Is(err, ErrExpired) && claims != nil {
			if err := m.locked(ctx, claims, func(ctx context.Context, tx Tx, o *order.Order, s *Session) error {
				if s.Status == StatusActive {
					return m.expire(ctx, tx, o, s, m.now())
				}
				return nil
			}); err != nil {
				zctx.From(ctx).Warn("Expire lapsed session", zap.String("session", claims.SessionID), zap.Error(err))
			}
		}
		return false, err
	}

	err = m.locked(ctx, claims, func(ctx context.Context, tx Tx, o *order.Order, s *Session) error {
		if s.Status == StatusActive && !s.Winnable(o, m.now()) {
			lapsed = true
			return m.expire(ctx, tx, o, s, m.now())
		}
		return fn(ctx, tx, o, s)
	})
	return lapsed, err
}

// locked runs fn in a transaction holding the order row and then the
// session row named by claims.
func (m *Manager) locked(
	ctx context.Context,
	claims *Claims,
	fn func(ctx context.Context, tx Tx, o *order.Order, s *Session) error,
) error {
	ctx, cancel := apperr.WithTimeout(ctx, m.cfg.StoreTimeout)
	defer cancel()
	err := m.tx.InTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := tx.Orders().Lock(ctx, claims.OrderID)
		if err != nil {
			if errors.Is(err, order.ErrNotFound) {
				return ErrSessionNotFound
			}
			return err
		}
		s, err := tx.Sessions().Lock(ctx, claims.SessionID)
		if err != nil {
			return err
		}
		if s.OrderID != claims.OrderID || s.CustomerID != claims.CustomerID || o.CustomerID != claims.CustomerID {
			return ErrInvalidToken
		}
		return fn(ctx, tx, o, s)
	})
	return apperr.Unavailable(err)
}

// expire marks an ACTIVE session EXPIRED and fails the order's challenge.
func (m *Manager) expire(ctx context.Context, tx Tx, o *order.Order, s *Session, now time.Time) error {
	if err := tx.Sessions().Resolve(ctx, s.ID, StatusExpired, now); err != nil {
		return errors.Wrap(err, "expire session")
	}
	if o.ChallengeOutcome != order.ChallengeCompleted {
		if err := tx.Orders().SetChallengeOutcome(ctx, o.ID, order.ChallengeFailed, now); err != nil {
			return errors.Wrap(err, "set challenge outcome")
		}
	}
	m.record(ctx, StatusExpired, s.Difficulty)
	return nil
}

func (m *Manager) record(ctx context.Context, status Status, diff Difficulty) {
	m.results.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", string(status)),
		attribute.String("difficulty", string(diff)),
	))
}

func rewardLabel(d Difficulty) string {
	return "Challenge reward (" + string(d) + ")"
}
