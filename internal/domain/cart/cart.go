// Package cart is the customer's transient working set of items pending
// checkout. It holds no pricing; checkout reads prices from the catalog.
package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/foodrun/internal/domain/catalog"
)

// ErrLineNotFound is returned when a cart line does not exist for the customer.
var ErrLineNotFound = errors.New("cart line not found")

// Line is one (seller, item, quantity) entry in a customer's cart.
type Line struct {
	ID         string
	CustomerID string
	Seller     catalog.SellerRef
	ItemID     string
	Quantity   int
	CreatedAt  time.Time
}

// Repository persists cart lines. Implementations bound to a transaction lock
// the returned rows in ListLines until the transaction ends.
type Repository interface {
	// ListLines returns the customer's lines, restricted to lineIDs when it
	// is non-empty. Line ids that are not the customer's are ignored.
	ListLines(ctx context.Context, customerID string, lineIDs []string) ([]Line, error)
	// Clear removes the customer's lines, restricted to lineIDs when it is
	// non-empty, and returns the number removed.
	Clear(ctx context.Context, customerID string, lineIDs []string) (int, error)
	// AddQuantity inserts the line or increments an existing line for the
	// same (customer, seller, item) and returns the stored line.
	AddQuantity(ctx context.Context, line Line) (*Line, error)
	// SetQuantity overwrites the quantity of one of the customer's lines.
	SetQuantity(ctx context.Context, customerID, lineID string, quantity int) (*Line, error)
}
