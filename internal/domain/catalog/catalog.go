// Package catalog describes the read-only view of sellers and their sellable
// items that checkout consumes. Catalog management lives elsewhere.
package catalog

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrSellerNotFound is returned when a seller reference does not resolve.
var ErrSellerNotFound = errors.New("seller not found")

// SellerKind tags which kind of business a seller is.
type SellerKind string

const (
	KindRestaurant  SellerKind = "restaurant"
	KindSupermarket SellerKind = "supermarket"
)

// Valid reports whether k is a known seller kind.
func (k SellerKind) Valid() bool {
	return k == KindRestaurant || k == KindSupermarket
}

// SellerRef identifies a seller: a restaurant or a supermarket. The kind is
// part of the identity, so a restaurant and a supermarket never collide.
type SellerRef struct {
	Kind SellerKind
	ID   string
}

// Restaurant returns a reference to the restaurant with the given id.
func Restaurant(id string) SellerRef { return SellerRef{Kind: KindRestaurant, ID: id} }

// Supermarket returns a reference to the supermarket with the given id.
func Supermarket(id string) SellerRef { return SellerRef{Kind: KindSupermarket, ID: id} }

// IsZero reports whether the reference is unset.
func (r SellerRef) IsZero() bool { return r.ID == "" }

func (r SellerRef) String() string { return string(r.Kind) + ":" + r.ID }

// Seller is the checkout-relevant part of a restaurant or supermarket.
type Seller struct {
	Ref         SellerRef
	Name        string
	DeliveryFee decimal.Decimal
}

// Item is a sellable item as currently listed by its seller.
type Item struct {
	ID          string
	Seller      SellerRef
	Name        string
	Price       decimal.Decimal
	IsAvailable bool
}

// Reader is the catalog lookup used by cart and checkout.
type Reader interface {
	// GetItems returns the items matching ids. Unknown ids are omitted.
	GetItems(ctx context.Context, ids []string) ([]Item, error)
	GetSeller(ctx context.Context, ref SellerRef) (*Seller, error)
}
