// Package challenge runs the timed mini-game a customer can play while an
// order is on its way. Winning before the order arrives mints a coupon.
package challenge

import (
	"context"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/foodrun/internal/domain/coupon"
	"github.com/xenking/foodrun/internal/domain/order"
)

var (
	// ErrExpired is returned when the session can no longer be won because
	// its time ran out or the order was delivered.
	ErrExpired = errors.New("challenge expired")
	// ErrAlreadyResolved is returned when the session was already won or lost.
	ErrAlreadyResolved = errors.New("challenge already resolved")
	// ErrInvalidToken is returned for malformed or tampered tokens.
	ErrInvalidToken = errors.New("invalid challenge token")
	// ErrNotInTransit is returned when a challenge is started for an order
	// that no driver has picked up yet.
	ErrNotInTransit = errors.New("order is not out for delivery")
	// ErrSessionNotFound is returned when no session matches.
	ErrSessionNotFound = errors.New("challenge session not found")
)

// Difficulty selects the puzzle tier and the reward size.
type Difficulty string

const (
	Easy   Difficulty = "easy"
	Medium Difficulty = "medium"
	Hard   Difficulty = "hard"
)

var rewardTiers = map[Difficulty]int{
	Easy:   5,
	Medium: 10,
	Hard:   15,
}

// Valid reports whether d is a known difficulty.
func (d Difficulty) Valid() bool {
	_, ok := rewardTiers[d]
	return ok
}

// RewardPct returns the discount percentage granted for winning at d.
func (d Difficulty) RewardPct() int {
	return rewardTiers[d]
}

// Status is the state of a session. Every status except ACTIVE is terminal.
type Status string

const (
	StatusActive  Status = "ACTIVE"
	StatusWon     Status = "WON"
	StatusLost    Status = "LOST"
	StatusExpired Status = "EXPIRED"
)

// Session is one customer's attempt bound to one order.
type Session struct {
	ID         string
	CustomerID string
	OrderID    string
	Difficulty Difficulty
	Status     Status
	ExpiresAt  time.Time
	CreatedAt  time.Time
	ResolvedAt *time.Time
}

// Winnable reports whether the session can still be won at now: it is
// ACTIVE, its deadline has not passed and the order has not been delivered.
func (s *Session) Winnable(o *order.Order, now time.Time) bool {
	return s.Status == StatusActive && now.Before(s.ExpiresAt) && o.Status != order.StatusDelivered
}

// Reward describes the coupon minted for a won session.
type Reward struct {
	Code        string
	Label       string
	DiscountPct int
	ExpiresAt   time.Time
}

// SessionRepository persists sessions. At most one session exists per order.
type SessionRepository interface {
	// GetByOrder returns the order's session or ErrSessionNotFound.
	GetByOrder(ctx context.Context, orderID string) (*Session, error)
	// Lock loads a session by id and locks its row, or returns ErrSessionNotFound.
	Lock(ctx context.Context, id string) (*Session, error)
	Create(ctx context.Context, s *Session) error
	// Resolve moves an ACTIVE session to a terminal status.
	Resolve(ctx context.Context, id string, status Status, at time.Time) error
}

// OrderStore is the part of the order store a session touches.
type OrderStore interface {
	// Lock loads the order and locks its row, or returns order.ErrNotFound.
	Lock(ctx context.Context, id string) (*order.Order, error)
	SetChallengeOutcome(ctx context.Context, orderID string, outcome order.ChallengeOutcome, at time.Time) error
}

// Tx is the set of stores available inside one challenge transaction.
// The order row is always locked before the session row.
type Tx interface {
	Sessions() SessionRepository
	Orders() OrderStore
	Coupons() coupon.Repository
}

// TxRunner runs fn in a transaction, committing when it returns nil.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
