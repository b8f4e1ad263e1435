package cart

import (
	"context"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/foodrun/internal/domain/apperr"
	"github.com/xenking/foodrun/internal/domain/catalog"
)

// ItemUnavailableError is returned when adding an item that is unknown or
// currently not offered by its seller.
type ItemUnavailableError struct {
	ItemID string
}

func (e *ItemUnavailableError) Error() string {
	return "item " + e.ItemID + " is not available"
}

// Config holds cart service settings.
type Config struct {
	// StoreTimeout bounds each operation's catalog and store calls. Zero
	// disables it.
	StoreTimeout time.Duration
}

// Service implements the customer-facing cart operations.
type Service struct {
	lines   Repository
	catalog catalog.Reader
	cfg     Config
}

// NewService creates a cart Service.
func NewService(lines Repository, reader catalog.Reader, cfg Config) *Service {
	return &Service{lines: lines, catalog: reader, cfg: cfg}
}

// List returns every line in the customer's cart.
func (s *Service) List(ctx context.Context, customerID string) ([]Line, error) {
	if customerID == "" {
		return nil, apperr.ErrNotLoggedIn
	}
	ctx, cancel := apperr.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	lines, err := s.lines.ListLines(ctx, customerID, nil)
	if err != nil {
		return nil, apperr.Unavailable(errors.Wrap(err, "list cart lines"))
	}
	return lines, nil
}

// Add puts quantity units of itemID into the cart. The seller is taken from
// the catalog, never from the client.
func (s *Service) Add(ctx context.Context, customerID, itemID string, quantity int) (*Line, error) {
	if customerID == "" {
		return nil, apperr.ErrNotLoggedIn
	}
	if itemID == "" {
		return nil, apperr.Invalid("itemId", "required")
	}
	if quantity < 1 {
		return nil, apperr.Invalid("quantity", "must be at least 1")
	}

	ctx, cancel := apperr.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	items, err := s.catalog.GetItems(ctx, []string{itemID})
	if err != nil {
		return nil, apperr.Unavailable(errors.Wrap(err, "get catalog item"))
	}
	idx := slices.IndexFunc(items, func(it catalog.Item) bool { return it.ID == itemID })
	if idx < 0 || !items[idx].IsAvailable {
		return nil, &ItemUnavailableError{ItemID: itemID}
	}

	line, err := s.lines.AddQuantity(ctx, Line{
		ID:         uuid.NewString(),
		CustomerID: customerID,
		Seller:     items[idx].Seller,
		ItemID:     itemID,
		Quantity:   quantity,
	})
	if err != nil {
		return nil, apperr.Unavailable(errors.Wrap(err, "add cart line"))
	}
	return line, nil
}

// SetQuantity changes a line's quantity. A quantity below 1 removes the line
// and returns nil.
func (s *Service) SetQuantity(ctx context.Context, customerID, lineID string, quantity int) (*Line, error) {
	if customerID == "" {
		return nil, apperr.ErrNotLoggedIn
	}
	if quantity < 1 {
		return nil, s.Remove(ctx, customerID, lineID)
	}
	ctx, cancel := apperr.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	line, err := s.lines.SetQuantity(ctx, customerID, lineID, quantity)
	if err != nil {
		return nil, apperr.Unavailable(errors.Wrap(err, "set cart quantity"))
	}
	return line, nil
}

// Remove deletes one line from the customer's cart.
func (s *Service) Remove(ctx context.Context, customerID, lineID string) error {
	if customerID == "" {
		return apperr.ErrNotLoggedIn
	}
	ctx, cancel := apperr.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	n, err := s.lines.Clear(ctx, customerID, []string{lineID})
	if err != nil {
		return apperr.Unavailable(errors.Wrap(err, "remove cart line"))
	}
	if n == 0 {
		return ErrLineNotFound
	}
	return nil
}

// Clear empties the customer's cart.
func (s *Service) Clear(ctx context.Context, customerID string) error {
	if customerID == "" {
		return apperr.ErrNotLoggedIn
	}
	ctx, cancel := apperr.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	if _, err := s.lines.Clear(ctx, customerID, nil); err != nil {
		return apperr.Unavailable(errors.Wrap(err, "clear cart"))
	}
	return nil
}
