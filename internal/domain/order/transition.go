package order

import (
	"context"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xenking/foodrun/internal/domain/apperr"
	"github.com/xenking/foodrun/internal/domain/catalog"
)

// SellerAdvance moves one of the seller's orders forward through preparation.
func (s *Service) SellerAdvance(ctx context.Context, seller catalog.SellerRef, orderID string, to Status) (*Order, error) {
	if seller.IsZero() {
		return nil, apperr.ErrNotLoggedIn
	}
	if !to.Valid() {
		return nil, apperr.Invalid("status", "unknown status")
	}
	return s.transition(ctx, orderID, "seller:"+seller.String(), func(o *Order) error {
		if o.Seller != seller {
			return ErrNotFound
		}
		if !SellerCanMove(o.Status, to) {
			return &InvalidTransitionError{From: o.Status, To: to}
		}
		o.Status = to
		return nil
	}, nil)
}

// DriverAccept assigns the driver to an order waiting for pickup and puts it
// out for delivery.
func (s *Service) DriverAccept(ctx context.Context, driverID, orderID string) (*Order, error) {
	if driverID == "" {
		return nil, apperr.ErrNotLoggedIn
	}
	return s.transition(ctx, orderID, "driver:"+driverID, func(o *Order) error {
		if o.DriverID != "" {
			return ErrAlreadyAssigned
		}
		if !DriverCanAccept(o.Status) {
			return &InvalidTransitionError{From: o.Status, To: StatusOutForDelivery}
		}
		o.Status = StatusOutForDelivery
		o.DriverID = driverID
		o.DeliveryPayment = s.cfg.DeliveryPayment
		return nil
	}, nil)
}

// DriverDeliver marks the driver's order delivered. Any challenge still
// running for the order is foreclosed in the same transaction.
func (s *Service) DriverDeliver(ctx context.Context, driverID, orderID string) (*Order, error) {
	if driverID == "" {
		return nil, apperr.ErrNotLoggedIn
	}
	return s.transition(ctx, orderID, "driver:"+driverID, func(o *Order) error {
		if o.DriverID != driverID {
			return ErrNotFound
		}
		if !DriverCanDeliver(o.Status) {
			return &InvalidTransitionError{From: o.Status, To: StatusDelivered}
		}
		now := s.now()
		o.Status = StatusDelivered
		o.DeliveredAt = &now
		return nil
	}, func(ctx context.Context, tx Tx, o *Order) error {
		n, err := tx.Sessions().ForecloseActive(ctx, o.ID, *o.DeliveredAt)
		if err != nil {
			return errors.Wrap(err, "foreclose challenge")
		}
		if n > 0 && o.ChallengeOutcome != ChallengeCompleted {
			o.ChallengeOutcome = ChallengeFailed
		}
		return nil
	})
}

// transition locks the order, applies mutate, runs the optional after hook
// and saves the result with a history entry, all in one transaction.
func (s *Service) transition(
	ctx context.Context,
	orderID, actor string,
	mutate func(o *Order) error,
	after func(ctx context.Context, tx Tx, o *Order) error,
) (*Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.Transition")
	defer span.End()
	ctx, cancel := apperr.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	var out *Order
	err := s.tx.InTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := tx.Orders().Lock(ctx, orderID)
		if err != nil {
			return err
		}
		from := o.Status
		if err := mutate(o); err != nil {
			return err
		}
		if after != nil {
			if err := after(ctx, tx, o); err != nil {
				return err
			}
		}
		o.UpdatedAt = s.now()
		change := StatusChange{OrderID: o.ID, From: from, To: o.Status, Actor: actor, At: o.UpdatedAt}
		if err := tx.Orders().SaveTransition(ctx, o, change); err != nil {
			return errors.Wrap(err, "save transition")
		}
		out = o
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, apperr.Unavailable(err)
	}
	s.transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("to", string(out.Status))))
	return out, nil
}
