package order

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/xenking/foodrun/internal/domain/apperr"
	"github.com/xenking/foodrun/internal/domain/cart"
	"github.com/xenking/foodrun/internal/domain/catalog"
	"github.com/xenking/foodrun/internal/domain/coupon"
)

var (
	testNow  = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	sellerS  = catalog.Restaurant("s1")
	sellerT  = catalog.Supermarket("t1")
	customer = "cust-1"
)

type testEnv struct {
	store   *memStore
	catalog *memCatalog
	svc     *Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := newMemStore()
	cat := &memCatalog{
		items: map[string]catalog.Item{
			"x": {ID: "x", Seller: sellerS, Name: "ItemX", Price: decimal.NewFromInt(10), IsAvailable: true},
			"y": {ID: "y", Seller: sellerS, Name: "ItemY", Price: decimal.NewFromInt(5), IsAvailable: true},
			"z": {ID: "z", Seller: sellerS, Name: "ItemZ", Price: decimal.NewFromInt(7), IsAvailable: false},
			"m": {ID: "m", Seller: sellerT, Name: "Milk", Price: decimal.NewFromInt(2), IsAvailable: true},
		},
		sellers: map[catalog.SellerRef]catalog.Seller{
			sellerS: {Ref: sellerS, Name: "Seller S", DeliveryFee: decimal.NewFromInt(3)},
			sellerT: {Ref: sellerT, Name: "Market T", DeliveryFee: decimal.NewFromInt(4)},
		},
	}
	svc, err := NewService(Deps{
		Tx:             store,
		Orders:         memReader{store},
		Catalog:        cat,
		Ledger:         coupon.NewLedger(nil),
		TracerProvider: tracenoop.NewTracerProvider(),
		MeterProvider:  metricnoop.NewMeterProvider(),
	}, Config{})
	require.NoError(t, err)
	svc.now = func() time.Time { return testNow }
	return &testEnv{store: store, catalog: cat, svc: svc}
}

func (e *testEnv) addLine(id, itemID string, qty int) {
	it := e.catalog.items[itemID]
	e.store.lines = append(e.store.lines, cart.Line{ID: id, CustomerID: customer, Seller: it.Seller, ItemID: itemID, Quantity: qty})
}

func (e *testEnv) addCoupon(code string, pct int, expires time.Time) {
	e.store.coupons[code] = coupon.Coupon{Code: code, CustomerID: customer, DiscountPct: pct, ExpiresAt: expires}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCheckout_PricesWithBestCoupon(t *testing.T) {
	env := newTestEnv(t)
	env.addLine("l1", "x", 2)
	env.addLine("l2", "y", 1)
	env.addCoupon("TEN", 10, testNow.Add(time.Hour))

	o, err := env.svc.Checkout(context.Background(), CheckoutRequest{CustomerID: customer})
	require.NoError(t, err)

	assert.True(t, dec("25").Equal(o.Subtotal), "subtotal %s", o.Subtotal)
	assert.True(t, dec("3").Equal(o.DeliveryFee))
	assert.True(t, dec("3").Equal(o.Discount), "discount %s", o.Discount)
	assert.True(t, dec("25").Equal(o.Total), "total %s", o.Total)
	assert.Equal(t, "TEN", o.CouponCode)
	assert.Equal(t, sellerS, o.Seller)
	assert.Equal(t, "Seller S", o.SellerName)
	assert.Equal(t, StatusPlaced, o.Status)
	assert.Equal(t, PaymentPaid, o.PaymentStatus)
	assert.Equal(t, ChallengeNotStarted, o.ChallengeOutcome)
	assert.Empty(t, env.store.lines)
	assert.True(t, env.store.coupons["TEN"].Applied)
	require.Len(t, env.store.history, 1)
	assert.Equal(t, StatusPlaced, env.store.history[0].To)
}

func TestCheckout_SelectsHighestAndDoesNotReuse(t *testing.T) {
	env := newTestEnv(t)
	env.addCoupon("A", 10, testNow.Add(time.Hour))
	env.addCoupon("B", 25, testNow.Add(time.Hour))
	env.addCoupon("C", 50, testNow.Add(-time.Hour))

	env.addLine("l1", "x", 1)
	first, err := env.svc.Checkout(context.Background(), CheckoutRequest{CustomerID: customer})
	require.NoError(t, err)
	assert.Equal(t, "B", first.CouponCode)
	assert.True(t, env.store.coupons["B"].Applied)

	env.addLine("l2", "x", 1)
	second, err := env.svc.Checkout(context.Background(), CheckoutRequest{CustomerID: customer})
	require.NoError(t, err)
	assert.Equal(t, "A", second.CouponCode)
	assert.False(t, env.store.coupons["C"].Applied)
}

func TestCheckout_SubsetLeavesOtherLines(t *testing.T) {
	env := newTestEnv(t)
	env.addLine("l1", "x", 1)
	env.addLine("l2", "y", 3)

	o, err := env.svc.Checkout(context.Background(), CheckoutRequest{CustomerID: customer, LineIDs: []string{"l2"}})
	require.NoError(t, err)
	require.Len(t, o.Items, 1)
	assert.Equal(t, "y", o.Items[0].ItemID)
	require.Len(t, env.store.lines, 1)
	assert.Equal(t, "l1", env.store.lines[0].ID)
}

func TestCheckout_Rejections(t *testing.T) {
	tests := []struct {
		name  string
		setup func(env *testEnv)
		req   CheckoutRequest
		check func(t *testing.T, err error)
	}{
		{
			name:  "empty cart",
			req:   CheckoutRequest{CustomerID: customer},
			check: func(t *testing.T, err error) { require.ErrorIs(t, err, ErrEmptyCart) },
		},
		{
			name:  "unknown subset",
			setup: func(env *testEnv) { env.addLine("l1", "x", 1) },
			req:   CheckoutRequest{CustomerID: customer, LineIDs: []string{"nope"}},
			check: func(t *testing.T, err error) { require.ErrorIs(t, err, ErrEmptyCart) },
		},
		{
			name: "mixed sellers",
			setup: func(env *testEnv) {
				env.addLine("l1", "x", 1)
				env.addLine("l2", "m", 1)
			},
			req:   CheckoutRequest{CustomerID: customer},
			check: func(t *testing.T, err error) { require.ErrorIs(t, err, ErrMixedSeller) },
		},
		{
			name: "unavailable items are all listed",
			setup: func(env *testEnv) {
				env.addLine("l1", "x", 1)
				env.addLine("l2", "z", 1)
				env.store.lines = append(env.store.lines, cart.Line{ID: "l3", CustomerID: customer, Seller: sellerS, ItemID: "gone", Quantity: 1})
			},
			req: CheckoutRequest{CustomerID: customer},
			check: func(t *testing.T, err error) {
				var ue *UnavailableItemsError
				require.ErrorAs(t, err, &ue)
				require.Len(t, ue.Items, 2)
				assert.Equal(t, "z", ue.Items[0].ItemID)
				assert.Equal(t, "ItemZ", ue.Items[0].Name)
				assert.Equal(t, "gone", ue.Items[1].ItemID)
			},
		},
		{
			name: "explicit ineligible coupon",
			setup: func(env *testEnv) {
				env.addLine("l1", "x", 1)
				env.addCoupon("OLD", 10, testNow.Add(-time.Minute))
			},
			req:   CheckoutRequest{CustomerID: customer, CouponCode: "OLD"},
			check: func(t *testing.T, err error) { require.ErrorIs(t, err, coupon.ErrNotEligible) },
		},
		{
			name: "explicit foreign coupon",
			setup: func(env *testEnv) {
				env.addLine("l1", "x", 1)
				env.store.coupons["THEIRS"] = coupon.Coupon{Code: "THEIRS", CustomerID: "someone-else", DiscountPct: 50, ExpiresAt: testNow.Add(time.Hour)}
			},
			req:   CheckoutRequest{CustomerID: customer, CouponCode: "THEIRS"},
			check: func(t *testing.T, err error) { require.ErrorIs(t, err, coupon.ErrNotFound) },
		},
		{
			name: "explicit unknown coupon",
			setup: func(env *testEnv) {
				env.addLine("l1", "x", 1)
			},
			req:   CheckoutRequest{CustomerID: customer, CouponCode: "NOPE"},
			check: func(t *testing.T, err error) { require.ErrorIs(t, err, coupon.ErrNotFound) },
		},
		{
			name:  "anonymous",
			req:   CheckoutRequest{},
			check: func(t *testing.T, err error) { require.ErrorIs(t, err, apperr.ErrNotLoggedIn) },
		},
		{
			name:  "bad payment status",
			req:   CheckoutRequest{CustomerID: customer, Payment: PaymentFailed},
			check: func(t *testing.T, err error) {
				var inv *apperr.InvalidInputError
				require.ErrorAs(t, err, &inv)
			},
		},
		{
			name: "catalog timeout",
			setup: func(env *testEnv) {
				env.addLine("l1", "x", 1)
				env.catalog.err = apperr.Unavailable(context.DeadlineExceeded)
			},
			req:   CheckoutRequest{CustomerID: customer},
			check: func(t *testing.T, err error) { require.ErrorIs(t, err, apperr.ErrUnavailable) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.addCoupon("KEEP", 20, testNow.Add(time.Hour))
			if tt.setup != nil {
				tt.setup(env)
			}
			linesBefore := len(env.store.lines)

			_, err := env.svc.Checkout(context.Background(), tt.req)
			tt.check(t, err)

			assert.Empty(t, env.store.orders, "no order on failure")
			assert.False(t, env.store.coupons["KEEP"].Applied, "no coupon consumed on failure")
			assert.Len(t, env.store.lines, linesBefore, "cart untouched on failure")
		})
	}
}

func TestCheckout_TotalClampedAtZero(t *testing.T) {
	env := newTestEnv(t)
	env.catalog.sellers[sellerS] = catalog.Seller{Ref: sellerS, Name: "Seller S", DeliveryFee: decimal.Zero}
	env.addLine("l1", "y", 1)
	env.addCoupon("ALL", 100, testNow.Add(time.Hour))

	o, err := env.svc.Checkout(context.Background(), CheckoutRequest{CustomerID: customer, Payment: PaymentPending})
	require.NoError(t, err)
	assert.True(t, o.Total.IsZero())
	assert.Equal(t, PaymentPending, o.PaymentStatus)
}

func TestCheckout_SnapshotSurvivesPriceChange(t *testing.T) {
	env := newTestEnv(t)
	env.addLine("l1", "x", 1)

	o, err := env.svc.Checkout(context.Background(), CheckoutRequest{CustomerID: customer})
	require.NoError(t, err)

	x := env.catalog.items["x"]
	x.Price = decimal.NewFromInt(99)
	env.catalog.items["x"] = x

	got, err := env.svc.CustomerOrder(context.Background(), customer, o.ID)
	require.NoError(t, err)
	assert.True(t, dec("10").Equal(got.Items[0].Price))

	_, err = env.svc.CustomerOrder(context.Background(), "someone-else", o.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCheckout_ExplicitEmptySubset(t *testing.T) {
	env := newTestEnv(t)
	env.addLine("l1", "x", 1)
	env.addCoupon("KEEP", 20, testNow.Add(time.Hour))

	_, err := env.svc.Checkout(context.Background(), CheckoutRequest{CustomerID: customer, Subset: true, LineIDs: []string{}})
	require.ErrorIs(t, err, ErrEmptyCart)
	assert.Empty(t, env.store.orders)
	assert.Len(t, env.store.lines, 1, "an empty selection never takes the whole cart")
	assert.False(t, env.store.coupons["KEEP"].Applied)

	o, err := env.svc.Checkout(context.Background(), CheckoutRequest{CustomerID: customer, Subset: true, LineIDs: []string{"l1"}})
	require.NoError(t, err)
	assert.Len(t, o.Items, 1)
}
