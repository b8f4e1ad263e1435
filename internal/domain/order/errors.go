package order

import (
	"fmt"
	"strings"

	"github.com/go-faster/errors"
)

var (
	// ErrEmptyCart is returned when checkout selects no cart lines.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrMixedSeller is returned when the selected lines come from more
	// than one seller.
	ErrMixedSeller = errors.New("cart contains items from more than one seller")
	// ErrNotFound is returned when an order does not exist or is not
	// visible to the caller.
	ErrNotFound = errors.New("order not found")
	// ErrAlreadyAssigned is returned when a driver tries to accept an order
	// that already has a driver.
	ErrAlreadyAssigned = errors.New("order already has a driver")
)

// UnavailableItem names an item that blocked checkout.
type UnavailableItem struct {
	ItemID string
	Name   string
}

// UnavailableItemsError lists every item that is missing from the catalog
// or currently not offered.
type UnavailableItemsError struct {
	Items []UnavailableItem
}

func (e *UnavailableItemsError) Error() string {
	ids := make([]string, len(e.Items))
	for i, it := range e.Items {
		ids[i] = it.ItemID
	}
	return "items unavailable: " + strings.Join(ids, ", ")
}

// InvalidTransitionError is returned when a status change is not allowed
// from the order's current status.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot move order from %s to %s", e.From, e.To)
}
