package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/foodrun/internal/domain/apperr"
	"github.com/xenking/foodrun/internal/domain/cart"
	"github.com/xenking/foodrun/internal/domain/challenge"
	"github.com/xenking/foodrun/internal/domain/coupon"
	"github.com/xenking/foodrun/internal/domain/order"
)

// TxManager runs functions in a transaction with a set of repositories R
// bound to it.
type TxManager[R any] struct {
	pool *pgxpool.Pool
	bind func(Querier) R
}

// NewTxManager returns a TxManager that binds repositories with bind.
func NewTxManager[R any](pool *pgxpool.Pool, bind func(Querier) R) *TxManager[R] {
	return &TxManager[R]{pool: pool, bind: bind}
}

// InTx begins a transaction, runs fn and commits when fn returns nil.
// Domain errors returned by fn pass through unchanged.
func (m *TxManager[R]) InTx(ctx context.Context, fn func(ctx context.Context, repos R) error) error {
	var fnErr error
	err := pgx.BeginFunc(ctx, m.pool, func(tx pgx.Tx) error {
		fnErr = fn(ctx, m.bind(tx))
		return fnErr
	})
	if err == nil {
		return nil
	}
	if fnErr != nil {
		return apperr.Unavailable(fnErr)
	}
	return dbError(err, "transaction")
}

type orderTx struct{ q Querier }

// OrderTx binds the checkout and order transition stores to q.
func OrderTx(q Querier) order.Tx { return orderTx{q: q} }

func (t orderTx) Cart() cart.Repository             { return NewCartRepository(t.q) }
func (t orderTx) Coupons() coupon.Repository        { return NewCouponRepository(t.q) }
func (t orderTx) Orders() order.Repository          { return NewOrderRepository(t.q) }
func (t orderTx) Sessions() order.SessionForecloser { return NewSessionRepository(t.q) }

type challengeTx struct{ q Querier }

// ChallengeTx binds the challenge session stores to q.
func ChallengeTx(q Querier) challenge.Tx { return challengeTx{q: q} }

func (t challengeTx) Sessions() challenge.SessionRepository { return NewSessionRepository(t.q) }
func (t challengeTx) Orders() challenge.OrderStore          { return NewOrderRepository(t.q) }
func (t challengeTx) Coupons() coupon.Repository            { return NewCouponRepository(t.q) }

var (
	_ order.TxRunner     = (*TxManager[order.Tx])(nil)
	_ challenge.TxRunner = (*TxManager[challenge.Tx])(nil)
)
