package order

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/foodrun/internal/domain/cart"
	"github.com/xenking/foodrun/internal/domain/catalog"
	"github.com/xenking/foodrun/internal/domain/coupon"
)

// memStore is an in-memory store whose transactions are serialized and
// rolled back by restoring a snapshot.
type memStore struct {
	mu       sync.Mutex
	lines    []cart.Line
	coupons  map[string]coupon.Coupon
	orders   map[string]Order
	sessions map[string]string // order id -> session status
	history  []StatusChange

	// deadlines records whether each transaction ran under a deadline.
	deadlines []bool
}

func newMemStore() *memStore {
	return &memStore{
		coupons:  make(map[string]coupon.Coupon),
		orders:   make(map[string]Order),
		sessions: make(map[string]string),
	}
}

type memSnapshot struct {
	lines    []cart.Line
	coupons  map[string]coupon.Coupon
	orders   map[string]Order
	sessions map[string]string
	history  []StatusChange
}

func (m *memStore) snapshot() memSnapshot {
	return memSnapshot{
		lines:    slices.Clone(m.lines),
		coupons:  maps.Clone(m.coupons),
		orders:   maps.Clone(m.orders),
		sessions: maps.Clone(m.sessions),
		history:  slices.Clone(m.history),
	}
}

func (m *memStore) restore(s memSnapshot) {
	m.lines, m.coupons, m.orders, m.sessions, m.history = s.lines, s.coupons, s.orders, s.sessions, s.history
}

func (m *memStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	deadline, bounded := ctx.Deadline()
	m.deadlines = append(m.deadlines, bounded)
	if bounded && !time.Now().Before(deadline) {
		return context.DeadlineExceeded
	}
	snap := m.snapshot()
	if err := fn(ctx, memTx{m}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type memTx struct{ m *memStore }

func (t memTx) Cart() cart.Repository       { return memCart{t.m} }
func (t memTx) Coupons() coupon.Repository  { return memCoupons{t.m} }
func (t memTx) Orders() Repository          { return memOrders{t.m} }
func (t memTx) Sessions() SessionForecloser { return memSessions{t.m} }

type memCart struct{ m *memStore }

func selected(l cart.Line, customerID string, ids []string) bool {
	return l.CustomerID == customerID && (len(ids) == 0 || slices.Contains(ids, l.ID))
}

func (c memCart) ListLines(_ context.Context, customerID string, ids []string) ([]cart.Line, error) {
	var out []cart.Line
	for _, l := range c.m.lines {
		if selected(l, customerID, ids) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (c memCart) Clear(_ context.Context, customerID string, ids []string) (int, error) {
	before := len(c.m.lines)
	c.m.lines = slices.DeleteFunc(slices.Clone(c.m.lines), func(l cart.Line) bool {
		return selected(l, customerID, ids)
	})
	return before - len(c.m.lines), nil
}

func (c memCart) AddQuantity(_ context.Context, line cart.Line) (*cart.Line, error) {
	c.m.lines = append(c.m.lines, line)
	return &line, nil
}

func (c memCart) SetQuantity(_ context.Context, _, _ string, _ int) (*cart.Line, error) {
	return nil, cart.ErrLineNotFound
}

type memCoupons struct{ m *memStore }

func (c memCoupons) Get(_ context.Context, code string) (*coupon.Coupon, error) {
	v, ok := c.m.coupons[code]
	if !ok {
		return nil, coupon.ErrNotFound
	}
	return &v, nil
}

func (c memCoupons) ListEligible(_ context.Context, customerID string, now time.Time) ([]coupon.Coupon, error) {
	var out []coupon.Coupon
	for _, v := range c.m.coupons {
		if v.EligibleFor(customerID, now) {
			out = append(out, v)
		}
	}
	return out, nil
}

func (c memCoupons) LockEligible(ctx context.Context, customerID string, now time.Time) ([]coupon.Coupon, error) {
	return c.ListEligible(ctx, customerID, now)
}

func (c memCoupons) MarkApplied(_ context.Context, code string, at time.Time) (bool, error) {
	v, ok := c.m.coupons[code]
	if !ok || v.Applied {
		return false, nil
	}
	v.Applied = true
	v.AppliedAt = &at
	c.m.coupons[code] = v
	return true, nil
}

func (c memCoupons) Insert(_ context.Context, v coupon.Coupon) (bool, error) {
	if _, ok := c.m.coupons[v.Code]; ok {
		return false, nil
	}
	c.m.coupons[v.Code] = v
	return true, nil
}

type memOrders struct{ m *memStore }

func (o memOrders) Create(_ context.Context, v *Order) error {
	o.m.orders[v.ID] = *v
	o.m.history = append(o.m.history, StatusChange{OrderID: v.ID, To: v.Status, Actor: "customer:" + v.CustomerID, At: v.CreatedAt})
	return nil
}

func (o memOrders) Lock(_ context.Context, id string) (*Order, error) {
	v, ok := o.m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &v, nil
}

func (o memOrders) SaveTransition(_ context.Context, v *Order, change StatusChange) error {
	o.m.orders[v.ID] = *v
	o.m.history = append(o.m.history, change)
	return nil
}

type memSessions struct{ m *memStore }

func (s memSessions) ForecloseActive(_ context.Context, orderID string, _ time.Time) (int, error) {
	if s.m.sessions[orderID] != "ACTIVE" {
		return 0, nil
	}
	s.m.sessions[orderID] = "EXPIRED"
	return 1, nil
}

// memReader serves listings straight from the store.
type memReader struct{ m *memStore }

func (r memReader) Get(_ context.Context, id string) (*Order, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	v, ok := r.m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &v, nil
}

func (r memReader) filter(keep func(Order) bool) []Order {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []Order
	for _, v := range r.m.orders {
		if keep(v) {
			out = append(out, v)
		}
	}
	return out
}

func (r memReader) ListByCustomer(_ context.Context, customerID string) ([]Order, error) {
	return r.filter(func(o Order) bool { return o.CustomerID == customerID }), nil
}

func (r memReader) ListBySeller(_ context.Context, seller catalog.SellerRef) ([]Order, error) {
	return r.filter(func(o Order) bool { return o.Seller == seller }), nil
}

func (r memReader) ListAvailable(_ context.Context) ([]Order, error) {
	return r.filter(func(o Order) bool { return o.DriverID == "" && DriverCanAccept(o.Status) }), nil
}

func (r memReader) ListActiveForDriver(_ context.Context, driverID string) ([]Order, error) {
	return r.filter(func(o Order) bool { return o.DriverID == driverID && o.Status == StatusOutForDelivery }), nil
}

func (r memReader) Earnings(_ context.Context, driverID string, from, to time.Time) (*Earnings, error) {
	e := &Earnings{Total: decimal.Zero}
	for _, o := range r.filter(func(o Order) bool {
		return o.DriverID == driverID && o.DeliveredAt != nil && !o.DeliveredAt.Before(from) && o.DeliveredAt.Before(to)
	}) {
		e.Deliveries++
		e.Total = e.Total.Add(o.DeliveryPayment)
	}
	return e, nil
}

// memCatalog is a mutable catalog.
type memCatalog struct {
	mu      sync.Mutex
	items   map[string]catalog.Item
	sellers map[catalog.SellerRef]catalog.Seller
	err     error
}

func (c *memCatalog) GetItems(_ context.Context, ids []string) ([]catalog.Item, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	var out []catalog.Item
	for _, id := range ids {
		if it, ok := c.items[id]; ok {
			out = append(out, it)
		}
	}
	return out, nil
}

func (c *memCatalog) GetSeller(_ context.Context, ref catalog.SellerRef) (*catalog.Seller, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sellers[ref]
	if !ok {
		return nil, catalog.ErrSellerNotFound
	}
	return &s, nil
}
