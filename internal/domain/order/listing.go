package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/foodrun/internal/domain/apperr"
	"github.com/xenking/foodrun/internal/domain/catalog"
)

// CustomerOrders returns the customer's orders, newest first.
func (s *Service) CustomerOrders(ctx context.Context, customerID string) ([]Order, error) {
	if customerID == "" {
		return nil, apperr.ErrNotLoggedIn
	}
	ctx, cancel := apperr.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	out, err := s.orders.ListByCustomer(ctx, customerID)
	if err != nil {
		return nil, apperr.Unavailable(errors.Wrap(err, "list customer orders"))
	}
	return out, nil
}

// CustomerOrder returns one of the customer's orders. Orders of other
// customers are reported as ErrNotFound.
func (s *Service) CustomerOrder(ctx context.Context, customerID, orderID string) (*Order, error) {
	if customerID == "" {
		return nil, apperr.ErrNotLoggedIn
	}
	ctx, cancel := apperr.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, apperr.Unavailable(err)
	}
	if o.CustomerID != customerID {
		return nil, ErrNotFound
	}
	return o, nil
}

// SellerOrders returns the orders placed with the seller.
func (s *Service) SellerOrders(ctx context.Context, seller catalog.SellerRef) ([]Order, error) {
	if seller.IsZero() {
		return nil, apperr.ErrNotLoggedIn
	}
	ctx, cancel := apperr.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	out, err := s.orders.ListBySeller(ctx, seller)
	if err != nil {
		return nil, apperr.Unavailable(errors.Wrap(err, "list seller orders"))
	}
	return out, nil
}

// AvailableForDrivers returns orders no driver has accepted yet.
func (s *Service) AvailableForDrivers(ctx context.Context) ([]Order, error) {
	ctx, cancel := apperr.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	out, err := s.orders.ListAvailable(ctx)
	if err != nil {
		return nil, apperr.Unavailable(errors.Wrap(err, "list available orders"))
	}
	return out, nil
}

// DriverActive returns the driver's orders currently out for delivery.
func (s *Service) DriverActive(ctx context.Context, driverID string) ([]Order, error) {
	if driverID == "" {
		return nil, apperr.ErrNotLoggedIn
	}
	ctx, cancel := apperr.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	out, err := s.orders.ListActiveForDriver(ctx, driverID)
	if err != nil {
		return nil, apperr.Unavailable(errors.Wrap(err, "list active deliveries"))
	}
	return out, nil
}

// DriverEarnings sums the driver's delivery payments for orders delivered
// in [from, to).
func (s *Service) DriverEarnings(ctx context.Context, driverID string, from, to time.Time) (*Earnings, error) {
	if driverID == "" {
		return nil, apperr.ErrNotLoggedIn
	}
	if !from.Before(to) {
		return nil, apperr.Invalid("from", "must be before to")
	}
	ctx, cancel := apperr.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	out, err := s.orders.Earnings(ctx, driverID, from, to)
	if err != nil {
		return nil, apperr.Unavailable(errors.Wrap(err, "driver earnings"))
	}
	return out, nil
}
