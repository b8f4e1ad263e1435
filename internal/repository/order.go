package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/foodrun/internal/domain/catalog"
	"github.com/xenking/foodrun/internal/domain/challenge"
	"github.com/xenking/foodrun/internal/domain/order"
)

const (
	orderColumns = `id, customer_id, seller_kind, seller_id, seller_name, items, subtotal, delivery_fee,
		discount, coupon_code, total, status, payment_status, driver_id, delivery_payment,
		challenge_outcome, created_at, updated_at, delivered_at`

	createOrderSQL = `INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`

	insertStatusHistorySQL = `INSERT INTO order_status_history (order_id, from_status, to_status, actor, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	getOrderSQL  = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	lockOrderSQL = getOrderSQL + ` FOR UPDATE`

	saveTransitionSQL = `UPDATE orders SET status = $2, driver_id = $3, delivery_payment = $4,
		delivered_at = $5, challenge_outcome = $6, updated_at = $7
		WHERE id = $1`

	setChallengeOutcomeSQL = `UPDATE orders SET challenge_outcome = $2, updated_at = $3 WHERE id = $1`

	listOrdersByCustomerSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE customer_id = $1 ORDER BY created_at DESC, id`

	listOrdersBySellerSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE seller_kind = $1 AND seller_id = $2 ORDER BY created_at DESC, id`

	listAvailableOrdersSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE driver_id IS NULL AND status IN ('placed', 'preparing', 'ready_for_pickup')
		ORDER BY created_at, id`

	listDriverActiveOrdersSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE driver_id = $1 AND status = 'out_for_delivery' ORDER BY updated_at, id`

	driverEarningsSQL = `SELECT count(*), COALESCE(sum(delivery_payment), 0) FROM orders
		WHERE driver_id = $1 AND status = 'delivered' AND delivered_at >= $2 AND delivered_at < $3`
)

var (
	_ order.Repository     = (*OrderRepository)(nil)
	_ order.Reader         = (*OrderRepository)(nil)
	_ challenge.OrderStore = (*OrderRepository)(nil)
)

// OrderRepository stores orders and their status history.
type OrderRepository struct {
	q Querier
}

// NewOrderRepository returns an OrderRepository that uses q.
func NewOrderRepository(q Querier) *OrderRepository {
	return &OrderRepository{q: q}
}

// Create persists a new order and its first history entry. The order items
// are serialized to JSON for storage in the JSONB column.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("marshaling order items: %w", err)
	}

	_, err = r.q.Exec(ctx, createOrderSQL,
		o.ID, o.CustomerID, string(o.Seller.Kind), o.Seller.ID, o.SellerName, itemsJSON,
		o.Subtotal, o.DeliveryFee, o.Discount, nullable(o.CouponCode), o.Total,
		string(o.Status), string(o.PaymentStatus), nullable(o.DriverID), o.DeliveryPayment,
		string(o.ChallengeOutcome), o.CreatedAt, o.UpdatedAt, o.DeliveredAt,
	)
	if err != nil {
		return dbError(err, "creating order %q", o.ID)
	}

	_, err = r.q.Exec(ctx, insertStatusHistorySQL, o.ID, nil, string(o.Status), "customer:"+o.CustomerID, o.CreatedAt)
	if err != nil {
		return dbError(err, "recording status of order %q", o.ID)
	}
	return nil
}

// Get returns an order by id or order.ErrNotFound.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	return r.one(ctx, getOrderSQL, id)
}

// Lock loads and locks an order by id.
func (r *OrderRepository) Lock(ctx context.Context, id string) (*order.Order, error) {
	return r.one(ctx, lockOrderSQL, id)
}

func (r *OrderRepository) one(ctx context.Context, sql, id string) (*order.Order, error) {
	rows, err := r.q.Query(ctx, sql, id)
	if err != nil {
		return nil, dbError(err, "getting order %q", id)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, dbError(err, "getting order %q", id)
	}
	return &o, nil
}

// SaveTransition writes the mutable lifecycle columns and appends change
// to the status history.
func (r *OrderRepository) SaveTransition(ctx context.Context, o *order.Order, change order.StatusChange) error {
	tag, err := r.q.Exec(ctx, saveTransitionSQL,
		o.ID, string(o.Status), nullable(o.DriverID), o.DeliveryPayment,
		o.DeliveredAt, string(o.ChallengeOutcome), o.UpdatedAt,
	)
	if err != nil {
		return dbError(err, "updating order %q", o.ID)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}

	_, err = r.q.Exec(ctx, insertStatusHistorySQL,
		change.OrderID, nullable(string(change.From)), string(change.To), change.Actor, change.At,
	)
	if err != nil {
		return dbError(err, "recording status of order %q", o.ID)
	}
	return nil
}

// SetChallengeOutcome records how the order's challenge ended.
func (r *OrderRepository) SetChallengeOutcome(ctx context.Context, orderID string, outcome order.ChallengeOutcome, at time.Time) error {
	tag, err := r.q.Exec(ctx, setChallengeOutcomeSQL, orderID, string(outcome), at)
	if err != nil {
		return dbError(err, "setting challenge outcome of order %q", orderID)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// ListByCustomer returns the customer's orders, newest first.
func (r *OrderRepository) ListByCustomer(ctx context.Context, customerID string) ([]order.Order, error) {
	return r.list(ctx, listOrdersByCustomerSQL, customerID)
}

// ListBySeller returns the seller's orders, newest first.
func (r *OrderRepository) ListBySeller(ctx context.Context, seller catalog.SellerRef) ([]order.Order, error) {
	return r.list(ctx, listOrdersBySellerSQL, string(seller.Kind), seller.ID)
}

// ListAvailable returns orders without a driver that can still be accepted.
func (r *OrderRepository) ListAvailable(ctx context.Context) ([]order.Order, error) {
	return r.list(ctx, listAvailableOrdersSQL)
}

// ListActiveForDriver returns the driver's orders out for delivery.
func (r *OrderRepository) ListActiveForDriver(ctx context.Context, driverID string) ([]order.Order, error) {
	return r.list(ctx, listDriverActiveOrdersSQL, driverID)
}

func (r *OrderRepository) list(ctx context.Context, sql string, args ...any) ([]order.Order, error) {
	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, dbError(err, "listing orders")
	}
	out, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, dbError(err, "listing orders")
	}
	return out, nil
}

// Earnings sums the driver's delivery payments in [from, to).
func (r *OrderRepository) Earnings(ctx context.Context, driverID string, from, to time.Time) (*order.Earnings, error) {
	var (
		count int64
		total decimal.Decimal
	)
	if err := r.q.QueryRow(ctx, driverEarningsSQL, driverID, from, to).Scan(&count, &total); err != nil {
		return nil, dbError(err, "summing earnings of driver %q", driverID)
	}
	return &order.Earnings{Deliveries: int(count), Total: total}, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o                order.Order
		sellerKind       string
		itemsJSON        []byte
		couponCode       *string
		driverID         *string
		status, payment  string
		challengeOutcome string
	)
	err := row.Scan(
		&o.ID, &o.CustomerID, &sellerKind, &o.Seller.ID, &o.SellerName, &itemsJSON,
		&o.Subtotal, &o.DeliveryFee, &o.Discount, &couponCode, &o.Total,
		&status, &payment, &driverID, &o.DeliveryPayment,
		&challengeOutcome, &o.CreatedAt, &o.UpdatedAt, &o.DeliveredAt,
	)
	if err != nil {
		return o, err
	}
	if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
		return o, fmt.Errorf("unmarshaling items of order %q: %w", o.ID, err)
	}
	o.Seller.Kind = catalog.SellerKind(sellerKind)
	o.Status = order.Status(status)
	o.PaymentStatus = order.PaymentStatus(payment)
	o.ChallengeOutcome = order.ChallengeOutcome(challengeOutcome)
	if couponCode != nil {
		o.CouponCode = *couponCode
	}
	if driverID != nil {
		o.DriverID = *driverID
	}
	return o, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
