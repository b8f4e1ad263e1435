package repository

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/foodrun/internal/domain/cart"
	"github.com/xenking/foodrun/internal/domain/catalog"
)

const (
	cartLineColumns = `id, customer_id, seller_kind, seller_id, item_id, quantity, created_at`

	// Inside a transaction the selected lines stay locked until commit.
	listCartLinesSQL = `SELECT ` + cartLineColumns + ` FROM cart_lines
		WHERE customer_id = $1 AND (COALESCE(cardinality($2::text[]), 0) = 0 OR id = ANY($2))
		ORDER BY created_at, id
		FOR UPDATE`

	clearCartLinesSQL = `DELETE FROM cart_lines
		WHERE customer_id = $1 AND (COALESCE(cardinality($2::text[]), 0) = 0 OR id = ANY($2))`

	addCartLineSQL = `INSERT INTO cart_lines (id, customer_id, seller_kind, seller_id, item_id, quantity)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (customer_id, seller_kind, seller_id, item_id)
		DO UPDATE SET quantity = cart_lines.quantity + EXCLUDED.quantity
		RETURNING ` + cartLineColumns

	setCartQuantitySQL = `UPDATE cart_lines SET quantity = $3 WHERE customer_id = $1 AND id = $2
		RETURNING ` + cartLineColumns
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL.
type CartRepository struct {
	q Querier
}

// NewCartRepository returns a CartRepository that uses q.
func NewCartRepository(q Querier) *CartRepository {
	return &CartRepository{q: q}
}

// ListLines returns the customer's lines, optionally restricted to lineIDs.
func (r *CartRepository) ListLines(ctx context.Context, customerID string, lineIDs []string) ([]cart.Line, error) {
	rows, err := r.q.Query(ctx, listCartLinesSQL, customerID, lineIDs)
	if err != nil {
		return nil, dbError(err, "listing cart lines")
	}
	lines, err := pgx.CollectRows(rows, scanCartLine)
	if err != nil {
		return nil, dbError(err, "listing cart lines")
	}
	return lines, nil
}

// Clear deletes the customer's lines, optionally restricted to lineIDs.
func (r *CartRepository) Clear(ctx context.Context, customerID string, lineIDs []string) (int, error) {
	tag, err := r.q.Exec(ctx, clearCartLinesSQL, customerID, lineIDs)
	if err != nil {
		return 0, dbError(err, "clearing cart lines")
	}
	return int(tag.RowsAffected()), nil
}

// AddQuantity inserts a line or increments the matching one.
func (r *CartRepository) AddQuantity(ctx context.Context, line cart.Line) (*cart.Line, error) {
	rows, err := r.q.Query(ctx, addCartLineSQL,
		line.ID, line.CustomerID, string(line.Seller.Kind), line.Seller.ID, line.ItemID, line.Quantity,
	)
	if err != nil {
		return nil, dbError(err, "adding cart line")
	}
	out, err := pgx.CollectExactlyOneRow(rows, scanCartLine)
	if err != nil {
		return nil, dbError(err, "adding cart line")
	}
	return &out, nil
}

// SetQuantity overwrites the quantity of one line.
func (r *CartRepository) SetQuantity(ctx context.Context, customerID, lineID string, quantity int) (*cart.Line, error) {
	rows, err := r.q.Query(ctx, setCartQuantitySQL, customerID, lineID, quantity)
	if err != nil {
		return nil, dbError(err, "setting cart quantity")
	}
	out, err := pgx.CollectExactlyOneRow(rows, scanCartLine)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cart.ErrLineNotFound
		}
		return nil, dbError(err, "setting cart quantity")
	}
	return &out, nil
}

func scanCartLine(row pgx.CollectableRow) (cart.Line, error) {
	var (
		l    cart.Line
		kind string
	)
	err := row.Scan(&l.ID, &l.CustomerID, &kind, &l.Seller.ID, &l.ItemID, &l.Quantity, &l.CreatedAt)
	l.Seller.Kind = catalog.SellerKind(kind)
	return l, err
}
