package catalog

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/foodrun/internal/domain/apperr"
)

var _ Reader = (*retryReader)(nil)

// retryReader repeats a read once when the first attempt failed with
// apperr.ErrUnavailable. Catalog reads are idempotent.
type retryReader struct {
	next Reader
}

// WithRetry wraps r so that unavailable reads are attempted a second time.
func WithRetry(r Reader) Reader {
	return &retryReader{next: r}
}

func (r *retryReader) GetItems(ctx context.Context, ids []string) ([]Item, error) {
	items, err := r.next.GetItems(ctx, ids)
	if shouldRetry(ctx, err) {
		items, err = r.next.GetItems(ctx, ids)
	}
	return items, err
}

func (r *retryReader) GetSeller(ctx context.Context, ref SellerRef) (*Seller, error) {
	s, err := r.next.GetSeller(ctx, ref)
	if shouldRetry(ctx, err) {
		s, err = r.next.GetSeller(ctx, ref)
	}
	return s, err
}

// shouldRetry skips the second attempt when the caller's own deadline is gone.
func shouldRetry(ctx context.Context, err error) bool {
	return err != nil && errors.Is(err, apperr.ErrUnavailable) && ctx.Err() == nil
}
