package coupon

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"
)

type memRepo struct {
	mu       sync.Mutex
	byCode   map[string]Coupon
	lostRace map[string]bool

	deadlines []bool
}

func (m *memRepo) seen(ctx context.Context) {
	_, bounded := ctx.Deadline()
	m.deadlines = append(m.deadlines, bounded)
}

func newMemRepo(coupons ...Coupon) *memRepo {
	m := &memRepo{byCode: make(map[string]Coupon), lostRace: make(map[string]bool)}
	for _, c := range coupons {
		m.byCode[c.Code] = c
	}
	return m
}

func (m *memRepo) Get(ctx context.Context, code string) (*Coupon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen(ctx)
	c, ok := m.byCode[code]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (m *memRepo) ListEligible(ctx context.Context, customerID string, now time.Time) ([]Coupon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen(ctx)
	var out []Coupon
	for _, c := range m.byCode {
		if c.EligibleFor(customerID, now) {
			out = append(out, c)
		}
	}
	slices.SortFunc(out, func(a, b Coupon) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.Code, b.Code)
	})
	return out, nil
}

func (m *memRepo) LockEligible(ctx context.Context, customerID string, now time.Time) ([]Coupon, error) {
	return m.ListEligible(ctx, customerID, now)
}

func (m *memRepo) MarkApplied(ctx context.Context, code string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen(ctx)
	if m.lostRace[code] {
		return false, nil
	}
	c, ok := m.byCode[code]
	if !ok || c.Applied {
		return false, nil
	}
	c.Applied = true
	c.AppliedAt = &at
	m.byCode[code] = c
	return true, nil
}

func (m *memRepo) Insert(ctx context.Context, c Coupon) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen(ctx)
	if _, ok := m.byCode[c.Code]; ok {
		return false, nil
	}
	m.byCode[c.Code] = c
	return true, nil
}
