package coupon

import (
	"time"
)

// SelectBest picks the coupon with the highest discount among those
// eligible for customerID at now. Ties go to the earliest created coupon,
// then to the lexicographically smallest code.
func SelectBest(coupons []Coupon, customerID string, now time.Time) (*Coupon, bool) {
	var best *Coupon
	for i := range coupons {
		c := &coupons[i]
		if !c.EligibleFor(customerID, now) {
			continue
		}
		if best == nil || better(c, best) {
			best = c
		}
	}
	if best == nil {
		return nil, false
	}
	out := *best
	return &out, true
}

func better(a, b *Coupon) bool {
	if a.DiscountPct != b.DiscountPct {
		return a.DiscountPct > b.DiscountPct
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.Code < b.Code
}
