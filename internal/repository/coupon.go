package repository

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/foodrun/internal/domain/coupon"
)

const (
	couponColumns = `code, customer_id, label, discount_pct, expires_at, applied, applied_at, created_at`

	getCouponSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE code = $1`

	listEligibleCouponsSQL = `SELECT ` + couponColumns + ` FROM coupons
		WHERE customer_id = $1 AND NOT applied AND expires_at > $2
		ORDER BY created_at DESC, code`

	// A concurrent checkout blocks here and then re-checks NOT applied, so
	// a coupon claimed by the first transaction drops out of the second.
	lockEligibleCouponsSQL = listEligibleCouponsSQL + ` FOR UPDATE`

	markCouponAppliedSQL = `UPDATE coupons SET applied = TRUE, applied_at = $2 WHERE code = $1 AND NOT applied`

	insertCouponSQL = `INSERT INTO coupons (` + couponColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (code) DO NOTHING`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	q Querier
}

// NewCouponRepository returns a CouponRepository that uses q.
func NewCouponRepository(q Querier) *CouponRepository {
	return &CouponRepository{q: q}
}

// Get returns a coupon by code or coupon.ErrNotFound.
func (r *CouponRepository) Get(ctx context.Context, code string) (*coupon.Coupon, error) {
	rows, err := r.q.Query(ctx, getCouponSQL, code)
	if err != nil {
		return nil, dbError(err, "getting coupon %q", code)
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, dbError(err, "getting coupon %q", code)
	}
	return &c, nil
}

// ListEligible returns unapplied, unexpired coupons, newest first.
func (r *CouponRepository) ListEligible(ctx context.Context, customerID string, now time.Time) ([]coupon.Coupon, error) {
	return r.list(ctx, listEligibleCouponsSQL, customerID, now)
}

// LockEligible is ListEligible with row locks.
func (r *CouponRepository) LockEligible(ctx context.Context, customerID string, now time.Time) ([]coupon.Coupon, error) {
	return r.list(ctx, lockEligibleCouponsSQL, customerID, now)
}

func (r *CouponRepository) list(ctx context.Context, sql, customerID string, now time.Time) ([]coupon.Coupon, error) {
	rows, err := r.q.Query(ctx, sql, customerID, now)
	if err != nil {
		return nil, dbError(err, "listing eligible coupons")
	}
	out, err := pgx.CollectRows(rows, scanCoupon)
	if err != nil {
		return nil, dbError(err, "listing eligible coupons")
	}
	return out, nil
}

// MarkApplied flips the applied flag if it is still false.
func (r *CouponRepository) MarkApplied(ctx context.Context, code string, at time.Time) (bool, error) {
	tag, err := r.q.Exec(ctx, markCouponAppliedSQL, code, at)
	if err != nil {
		return false, dbError(err, "marking coupon %q applied", code)
	}
	return tag.RowsAffected() == 1, nil
}

// Insert stores c unless its code is taken.
func (r *CouponRepository) Insert(ctx context.Context, c coupon.Coupon) (bool, error) {
	tag, err := r.q.Exec(ctx, insertCouponSQL,
		c.Code, c.CustomerID, c.Label, c.DiscountPct, c.ExpiresAt, c.Applied, c.AppliedAt, c.CreatedAt,
	)
	if err != nil {
		return false, dbError(err, "inserting coupon")
	}
	return tag.RowsAffected() == 1, nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var c coupon.Coupon
	err := row.Scan(&c.Code, &c.CustomerID, &c.Label, &c.DiscountPct, &c.ExpiresAt, &c.Applied, &c.AppliedAt, &c.CreatedAt)
	return c, err
}
