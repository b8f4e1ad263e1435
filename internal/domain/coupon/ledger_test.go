package coupon

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/xenking/foodrun/internal/domain/apperr"
)

type codesMock struct {
	mock.Mock
}

func (m *codesMock) Generate() (string, error) {
	args := m.Called()
	return args.String(0), args.Error(1)
}

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func TestLedger_Claim(t *testing.T) {
	later := testNow.Add(24 * time.Hour)

	t.Run("claims best and a repeat claim skips it", func(t *testing.T) {
		repo := newMemRepo(
			Coupon{Code: "A", CustomerID: "u1", DiscountPct: 10, ExpiresAt: later},
			Coupon{Code: "B", CustomerID: "u1", DiscountPct: 25, ExpiresAt: later},
			Coupon{Code: "C", CustomerID: "u1", DiscountPct: 50, ExpiresAt: testNow.Add(-time.Hour)},
		)
		l := NewLedger(nil)

		got, err := l.Claim(context.Background(), repo, "u1", "", testNow)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "B", got.Code)
		assert.True(t, got.Applied)

		stored, err := repo.Get(context.Background(), "B")
		require.NoError(t, err)
		assert.True(t, stored.Applied)

		again, err := l.Claim(context.Background(), repo, "u1", "", testNow)
		require.NoError(t, err)
		assert.Equal(t, "A", again.Code)
	})

	t.Run("no eligible coupons", func(t *testing.T) {
		got, err := NewLedger(nil).Claim(context.Background(), newMemRepo(), "u1", "", testNow)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("explicit code", func(t *testing.T) {
		repo := newMemRepo(
			Coupon{Code: "A", CustomerID: "u1", DiscountPct: 10, ExpiresAt: later},
			Coupon{Code: "B", CustomerID: "u1", DiscountPct: 25, ExpiresAt: later},
		)
		got, err := NewLedger(nil).Claim(context.Background(), repo, "u1", "A", testNow)
		require.NoError(t, err)
		assert.Equal(t, "A", got.Code)
	})

	t.Run("explicit code that cannot be claimed", func(t *testing.T) {
		repo := newMemRepo(
			Coupon{Code: "A", CustomerID: "u1", DiscountPct: 10, ExpiresAt: later, Applied: true},
			Coupon{Code: "OLD", CustomerID: "u1", DiscountPct: 10, ExpiresAt: testNow},
			Coupon{Code: "X", CustomerID: "u2", DiscountPct: 10, ExpiresAt: later},
		)
		l := NewLedger(nil)

		tests := []struct {
			code string
			want error
		}{
			{"A", ErrNotEligible},
			{"OLD", ErrNotEligible},
			{"X", ErrNotFound},
			{"NOPE", ErrNotFound},
		}
		for _, tt := range tests {
			_, err := l.Claim(context.Background(), repo, "u1", tt.code, testNow)
			require.ErrorIs(t, err, tt.want, tt.code)
		}

		stored, err := repo.Get(context.Background(), "X")
		require.NoError(t, err)
		assert.False(t, stored.Applied)
	})

	t.Run("falls through to next coupon when the best is taken concurrently", func(t *testing.T) {
		repo := newMemRepo(
			Coupon{Code: "A", CustomerID: "u1", DiscountPct: 10, ExpiresAt: later},
			Coupon{Code: "B", CustomerID: "u1", DiscountPct: 25, ExpiresAt: later},
		)
		repo.lostRace["B"] = true

		got, err := NewLedger(nil).Claim(context.Background(), repo, "u1", "", testNow)
		require.NoError(t, err)
		assert.Equal(t, "A", got.Code)
	})
}

func TestLedger_Redeem(t *testing.T) {
	later := testNow.Add(time.Hour)
	repo := newMemRepo(
		Coupon{Code: "A", CustomerID: "u1", DiscountPct: 10, ExpiresAt: later},
		Coupon{Code: "OLD", CustomerID: "u1", DiscountPct: 10, ExpiresAt: testNow},
	)
	l := NewLedger(nil)
	ctx := context.Background()

	got, err := l.Redeem(ctx, repo, "u1", "A", testNow)
	require.NoError(t, err)
	assert.True(t, got.Applied)

	again, err := l.Redeem(ctx, repo, "u1", "A", testNow.Add(time.Minute))
	require.NoError(t, err, "redeem is idempotent")
	assert.True(t, again.Applied)
	assert.Equal(t, testNow, *again.AppliedAt)

	_, err = l.Redeem(ctx, repo, "u2", "A", testNow)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = l.Redeem(ctx, repo, "u1", "NOPE", testNow)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = l.Redeem(ctx, repo, "u1", "OLD", testNow)
	require.ErrorIs(t, err, ErrNotEligible)
}

func TestLedger_Mint(t *testing.T) {
	ctx := context.Background()

	t.Run("regenerates on collision", func(t *testing.T) {
		repo := newMemRepo(Coupon{Code: "FOOD-AAAAAA", CustomerID: "u9"})
		codes := &codesMock{}
		codes.On("Generate").Return("FOOD-AAAAAA", nil).Once()
		codes.On("Generate").Return("FOOD-BBBBBB", nil).Once()

		got, err := NewLedger(codes).Mint(ctx, repo, MintParams{
			CustomerID:  "u1",
			Label:       "Challenge reward",
			DiscountPct: 10,
			TTL:         7 * 24 * time.Hour,
		}, testNow)
		require.NoError(t, err)
		assert.Equal(t, "FOOD-BBBBBB", got.Code)
		assert.Equal(t, testNow.Add(7*24*time.Hour), got.ExpiresAt)
		assert.False(t, got.Applied)
		codes.AssertExpectations(t)
	})

	t.Run("gives up after bounded attempts", func(t *testing.T) {
		repo := newMemRepo(Coupon{Code: "FOOD-AAAAAA", CustomerID: "u9"})
		codes := &codesMock{}
		codes.On("Generate").Return("FOOD-AAAAAA", nil)

		_, err := NewLedger(codes).Mint(ctx, repo, MintParams{CustomerID: "u1", DiscountPct: 5, TTL: time.Hour}, testNow)
		require.ErrorIs(t, err, ErrCodeSpaceExhausted)
		codes.AssertNumberOfCalls(t, "Generate", DefaultMintAttempts)
	})

	t.Run("rejects out of range percentage", func(t *testing.T) {
		_, err := NewLedger(nil).Mint(ctx, newMemRepo(), MintParams{CustomerID: "u1", DiscountPct: 101, TTL: time.Hour}, testNow)
		var inv *apperr.InvalidInputError
		require.True(t, errors.As(err, &inv))
		assert.Equal(t, "discountPct", inv.Field)
	})
}

func TestRandomCodes(t *testing.T) {
	re := regexp.MustCompile(`^FOOD-[A-Z0-9]{6}$`)
	seen := make(map[string]struct{})
	for range 50 {
		code, err := DefaultCodes.Generate()
		require.NoError(t, err)
		assert.Regexp(t, re, code)
		seen[code] = struct{}{}
	}
	assert.Greater(t, len(seen), 1)
}
