package repository

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/foodrun/internal/domain/challenge"
	"github.com/xenking/foodrun/internal/domain/order"
)

const (
	sessionColumns = `id, customer_id, order_id, difficulty, status, expires_at, created_at, resolved_at`

	getSessionByOrderSQL = `SELECT ` + sessionColumns + ` FROM challenge_sessions WHERE order_id = $1`

	lockSessionSQL = `SELECT ` + sessionColumns + ` FROM challenge_sessions WHERE id = $1 FOR UPDATE`

	createSessionSQL = `INSERT INTO challenge_sessions (` + sessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	resolveSessionSQL = `UPDATE challenge_sessions SET status = $2, resolved_at = $3
		WHERE id = $1 AND status = 'ACTIVE'`

	forecloseSessionsSQL = `UPDATE challenge_sessions SET status = 'EXPIRED', resolved_at = $2
		WHERE order_id = $1 AND status = 'ACTIVE'`
)

var (
	_ challenge.SessionRepository = (*SessionRepository)(nil)
	_ order.SessionForecloser     = (*SessionRepository)(nil)
)

// SessionRepository stores challenge sessions.
type SessionRepository struct {
	q Querier
}

// NewSessionRepository returns a SessionRepository that uses q.
func NewSessionRepository(q Querier) *SessionRepository {
	return &SessionRepository{q: q}
}

// GetByOrder returns the order's session or challenge.ErrSessionNotFound.
func (r *SessionRepository) GetByOrder(ctx context.Context, orderID string) (*challenge.Session, error) {
	return r.one(ctx, getSessionByOrderSQL, orderID)
}

// Lock loads and locks a session by id.
func (r *SessionRepository) Lock(ctx context.Context, id string) (*challenge.Session, error) {
	return r.one(ctx, lockSessionSQL, id)
}

func (r *SessionRepository) one(ctx context.Context, sql, arg string) (*challenge.Session, error) {
	rows, err := r.q.Query(ctx, sql, arg)
	if err != nil {
		return nil, dbError(err, "getting session")
	}
	s, err := pgx.CollectExactlyOneRow(rows, scanSession)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, challenge.ErrSessionNotFound
		}
		return nil, dbError(err, "getting session")
	}
	return &s, nil
}

// Create inserts a session. A second session for the same order violates
// the unique order_id constraint and is reported as already resolved.
func (r *SessionRepository) Create(ctx context.Context, s *challenge.Session) error {
	_, err := r.q.Exec(ctx, createSessionSQL,
		s.ID, s.CustomerID, s.OrderID, string(s.Difficulty), string(s.Status), s.ExpiresAt, s.CreatedAt, s.ResolvedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return challenge.ErrAlreadyResolved
		}
		return dbError(err, "creating session")
	}
	return nil
}

// Resolve moves an ACTIVE session to status.
func (r *SessionRepository) Resolve(ctx context.Context, id string, status challenge.Status, at time.Time) error {
	tag, err := r.q.Exec(ctx, resolveSessionSQL, id, string(status), at)
	if err != nil {
		return dbError(err, "resolving session %q", id)
	}
	if tag.RowsAffected() != 1 {
		return errors.Wrapf(challenge.ErrAlreadyResolved, "resolving session %q", id)
	}
	return nil
}

// ForecloseActive expires the order's ACTIVE sessions.
func (r *SessionRepository) ForecloseActive(ctx context.Context, orderID string, at time.Time) (int, error) {
	tag, err := r.q.Exec(ctx, forecloseSessionsSQL, orderID, at)
	if err != nil {
		return 0, dbError(err, "foreclosing sessions of order %q", orderID)
	}
	return int(tag.RowsAffected()), nil
}

func scanSession(row pgx.CollectableRow) (challenge.Session, error) {
	var (
		s          challenge.Session
		difficulty string
		status     string
	)
	err := row.Scan(&s.ID, &s.CustomerID, &s.OrderID, &difficulty, &status, &s.ExpiresAt, &s.CreatedAt, &s.ResolvedAt)
	s.Difficulty = challenge.Difficulty(difficulty)
	s.Status = challenge.Status(status)
	return s, err
}
