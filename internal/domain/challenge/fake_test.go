package challenge

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/xenking/foodrun/internal/domain/coupon"
	"github.com/xenking/foodrun/internal/domain/order"
)

type memStore struct {
	mu       sync.Mutex
	orders   map[string]order.Order
	sessions map[string]Session
	coupons  map[string]coupon.Coupon
	failNext error

	// deadlines records whether each transaction ran under a deadline.
	deadlines []bool
}

func newMemStore() *memStore {
	return &memStore{
		orders:   make(map[string]order.Order),
		sessions: make(map[string]Session),
		coupons:  make(map[string]coupon.Coupon),
	}
}

func (m *memStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	deadline, bounded := ctx.Deadline()
	m.deadlines = append(m.deadlines, bounded)
	if bounded && !time.Now().Before(deadline) {
		return context.DeadlineExceeded
	}
	orders, sessions, coupons := maps.Clone(m.orders), maps.Clone(m.sessions), maps.Clone(m.coupons)
	err := fn(ctx, memTx{m})
	if err == nil && m.failNext != nil {
		err, m.failNext = m.failNext, nil
	}
	if err != nil {
		m.orders, m.sessions, m.coupons = orders, sessions, coupons
		return err
	}
	return nil
}

type memTx struct{ m *memStore }

func (t memTx) Sessions() SessionRepository { return memSessions{t.m} }
func (t memTx) Orders() OrderStore          { return memOrders{t.m} }
func (t memTx) Coupons() coupon.Repository  { return memCoupons{t.m} }

type memSessions struct{ m *memStore }

func (s memSessions) GetByOrder(_ context.Context, orderID string) (*Session, error) {
	for _, v := range s.m.sessions {
		if v.OrderID == orderID {
			return &v, nil
		}
	}
	return nil, ErrSessionNotFound
}

func (s memSessions) Lock(_ context.Context, id string) (*Session, error) {
	v, ok := s.m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return &v, nil
}

func (s memSessions) Create(_ context.Context, v *Session) error {
	s.m.sessions[v.ID] = *v
	return nil
}

func (s memSessions) Resolve(_ context.Context, id string, status Status, at time.Time) error {
	v, ok := s.m.sessions[id]
	if !ok || v.Status != StatusActive {
		return ErrSessionNotFound
	}
	v.Status = status
	v.ResolvedAt = &at
	s.m.sessions[id] = v
	return nil
}

type memOrders struct{ m *memStore }

func (o memOrders) Lock(_ context.Context, id string) (*order.Order, error) {
	v, ok := o.m.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return &v, nil
}

func (o memOrders) SetChallengeOutcome(_ context.Context, id string, outcome order.ChallengeOutcome, _ time.Time) error {
	v, ok := o.m.orders[id]
	if !ok {
		return order.ErrNotFound
	}
	v.ChallengeOutcome = outcome
	o.m.orders[id] = v
	return nil
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
