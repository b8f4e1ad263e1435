package repository

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/foodrun/internal/domain/catalog"
)

const (
	getItemsByIDsSQL = `SELECT id, seller_kind, seller_id, name, price, is_available
		FROM catalog_items WHERE id = ANY($1)`

	getSellerSQL = `SELECT kind, id, name, delivery_fee FROM sellers WHERE kind = $1 AND id = $2`

	upsertSellerSQL = `INSERT INTO sellers (kind, id, name, delivery_fee) VALUES ($1, $2, $3, $4)
		ON CONFLICT (kind, id) DO UPDATE SET name = EXCLUDED.name, delivery_fee = EXCLUDED.delivery_fee`

	upsertItemSQL = `INSERT INTO catalog_items (id, seller_kind, seller_id, name, price, is_available)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET seller_kind = EXCLUDED.seller_kind, seller_id = EXCLUDED.seller_id,
			name = EXCLUDED.name, price = EXCLUDED.price, is_available = EXCLUDED.is_available, updated_at = now()`
)

var _ catalog.Reader = (*CatalogRepository)(nil)

// CatalogRepository reads sellers and sellable items and lets tooling
// maintain them.
type CatalogRepository struct {
	q Querier
}

// NewCatalogRepository returns a CatalogRepository that uses q.
func NewCatalogRepository(q Querier) *CatalogRepository {
	return &CatalogRepository{q: q}
}

// GetItems returns the items matching ids. Unknown ids are omitted.
func (r *CatalogRepository) GetItems(ctx context.Context, ids []string) ([]catalog.Item, error) {
	rows, err := r.q.Query(ctx, getItemsByIDsSQL, ids)
	if err != nil {
		return nil, dbError(err, "getting catalog items")
	}
	items, err := pgx.CollectRows(rows, scanItem)
	if err != nil {
		return nil, dbError(err, "getting catalog items")
	}
	return items, nil
}

// GetSeller returns the seller or catalog.ErrSellerNotFound.
func (r *CatalogRepository) GetSeller(ctx context.Context, ref catalog.SellerRef) (*catalog.Seller, error) {
	rows, err := r.q.Query(ctx, getSellerSQL, string(ref.Kind), ref.ID)
	if err != nil {
		return nil, dbError(err, "getting seller %s", ref)
	}
	s, err := pgx.CollectExactlyOneRow(rows, scanSeller)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrSellerNotFound
		}
		return nil, dbError(err, "getting seller %s", ref)
	}
	return &s, nil
}

// UpsertSeller creates or updates a seller.
func (r *CatalogRepository) UpsertSeller(ctx context.Context, s catalog.Seller) error {
	if _, err := r.q.Exec(ctx, upsertSellerSQL, string(s.Ref.Kind), s.Ref.ID, s.Name, s.DeliveryFee); err != nil {
		return dbError(err, "upserting seller %s", s.Ref)
	}
	return nil
}

// UpsertItem creates or updates a catalog item.
func (r *CatalogRepository) UpsertItem(ctx context.Context, it catalog.Item) error {
	_, err := r.q.Exec(ctx, upsertItemSQL,
		it.ID, string(it.Seller.Kind), it.Seller.ID, it.Name, it.Price, it.IsAvailable,
	)
	if err != nil {
		return dbError(err, "upserting item %q", it.ID)
	}
	return nil
}

func scanItem(row pgx.CollectableRow) (catalog.Item, error) {
	var (
		it    catalog.Item
		kind  string
		price decimal.Decimal
	)
	err := row.Scan(&it.ID, &kind, &it.Seller.ID, &it.Name, &price, &it.IsAvailable)
	it.Seller.Kind = catalog.SellerKind(kind)
	it.Price = price
	return it, err
}

func scanSeller(row pgx.CollectableRow) (catalog.Seller, error) {
	var (
		s    catalog.Seller
		kind string
	)
	err := row.Scan(&kind, &s.Ref.ID, &s.Name, &s.DeliveryFee)
	s.Ref.Kind = catalog.SellerKind(kind)
	return s, err
}
