package order

import (
	"context"
	"slices"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/xenking/foodrun/internal/domain/apperr"
	"github.com/xenking/foodrun/internal/domain/cart"
	"github.com/xenking/foodrun/internal/domain/catalog"
)

// CheckoutRequest holds the input for turning a cart into an order.
type CheckoutRequest struct {
	CustomerID string
	// LineIDs restricts checkout to these cart lines. Empty means the whole
	// cart unless Subset is set.
	LineIDs []string
	// Subset reports that the caller selected lines explicitly. An explicit
	// but empty selection is an empty cart.
	Subset bool
	// CouponCode forces a specific coupon instead of the best eligible one.
	CouponCode string
	// Payment is the payment status the order is created with, paid when empty.
	Payment PaymentStatus
}

// Checkout converts the selected cart lines into a single placed order.
// Reading the cart, claiming a coupon, creating the order and removing the
// consumed lines happen in one transaction.
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (_ *Order, rerr error) {
	if req.CustomerID == "" {
		return nil, apperr.ErrNotLoggedIn
	}
	if req.Payment == "" {
		req.Payment = PaymentPaid
	}
	if req.Payment != PaymentPaid && req.Payment != PaymentPending {
		return nil, apperr.Invalid("payment", "must be paid or pending")
	}

	ctx, span := s.tracer.Start(ctx, "order.Checkout")
	defer func() {
		result := "ok"
		if rerr != nil {
			result = checkoutResult(rerr)
			span.RecordError(rerr)
			span.SetStatus(codes.Error, result)
		}
		s.checkouts.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
		span.End()
	}()

	if req.Subset && len(req.LineIDs) == 0 {
		return nil, ErrEmptyCart
	}

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	var placed *Order
	err := s.tx.InTx(ctx, func(ctx context.Context, tx Tx) error {
		lines, err := tx.Cart().ListLines(ctx, req.CustomerID, req.LineIDs)
		if err != nil {
			return errors.Wrap(err, "list cart lines")
		}
		if len(lines) == 0 {
			return ErrEmptyCart
		}

		o, err := s.price(ctx, req.CustomerID, lines)
		if err != nil {
			return err
		}

		now := s.now()
		claimed, err := s.ledger.Claim(ctx, tx.Coupons(), req.CustomerID, req.CouponCode, now)
		if err != nil {
			return errors.Wrap(err, "claim coupon")
		}
		if claimed != nil {
			o.Discount = claimed.Discount(o.Subtotal)
			o.CouponCode = claimed.Code
		}
		o.Total = o.Subtotal.Add(o.DeliveryFee).Sub(o.Discount)
		if o.Total.IsNegative() {
			o.Total = decimal.Zero
		}

		o.ID = uuid.NewString()
		o.PaymentStatus = req.Payment
		o.Status = StatusPlaced
		o.ChallengeOutcome = ChallengeNotStarted
		o.DeliveryPayment = decimal.Zero
		o.CreatedAt = now
		o.UpdatedAt = now

		if err := tx.Orders().Create(ctx, o); err != nil {
			return errors.Wrap(err, "create order")
		}

		consumed := make([]string, len(lines))
		for i, l := range lines {
			consumed[i] = l.ID
		}
		if _, err := tx.Cart().Clear(ctx, req.CustomerID, consumed); err != nil {
			return errors.Wrap(err, "clear consumed lines")
		}
		placed = o
		return nil
	})
	if err != nil {
		return nil, apperr.Unavailable(err)
	}
	span.SetAttributes(
		attribute.String("order.id", placed.ID),
		attribute.String("order.seller", placed.Seller.String()),
	)
	return placed, nil
}

// price resolves lines against the catalog and returns an unsaved order
// carrying the seller, the frozen line items, the subtotal and the fee.
func (s *Service) price(ctx context.Context, customerID string, lines []cart.Line) (*Order, error) {
	ids := make([]string, 0, len(lines))
	for _, l := range lines {
		if !slices.Contains(ids, l.ItemID) {
			ids = append(ids, l.ItemID)
		}
	}
	items, err := s.catalog.GetItems(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get catalog items")
	}
	byID := make(map[string]catalog.Item, len(items))
	for _, it := range items {
		byID[it.ID] = it
	}

	var unavailable []UnavailableItem
	sellers := make(map[catalog.SellerRef]struct{})
	for _, l := range lines {
		it, ok := byID[l.ItemID]
		if !ok || !it.IsAvailable {
			unavailable = append(unavailable, UnavailableItem{ItemID: l.ItemID, Name: it.Name})
			continue
		}
		sellers[it.Seller] = struct{}{}
	}
	if len(unavailable) > 0 {
		return nil, &UnavailableItemsError{Items: unavailable}
	}
	if len(sellers) > 1 {
		return nil, ErrMixedSeller
	}

	ref := byID[lines[0].ItemID].Seller
	seller, err := s.catalog.GetSeller(ctx, ref)
	if err != nil {
		if errors.Is(err, catalog.ErrSellerNotFound) {
			return nil, sellerGone(lines, byID)
		}
		return nil, errors.Wrap(err, "get seller")
	}

	o := &Order{
		CustomerID:  customerID,
		Seller:      ref,
		SellerName:  seller.Name,
		Items:       make([]LineItem, len(lines)),
		Subtotal:    decimal.Zero,
		DeliveryFee: seller.DeliveryFee,
		Discount:    decimal.Zero,
	}
	for i, l := range lines {
		it := byID[l.ItemID]
		o.Items[i] = LineItem{ItemID: it.ID, Name: it.Name, Price: it.Price, Quantity: l.Quantity}
		o.Subtotal = o.Subtotal.Add(it.Price.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return o, nil
}

func sellerGone(lines []cart.Line, byID map[string]catalog.Item) error {
	out := make([]UnavailableItem, len(lines))
	for i, l := range lines {
		out[i] = UnavailableItem{ItemID: l.ItemID, Name: byID[l.ItemID].Name}
	}
	return &UnavailableItemsError{Items: out}
}

func checkoutResult(err error) string {
	var unavailable *UnavailableItemsError
	switch {
	case errors.Is(err, ErrEmptyCart):
		return "empty_cart"
	case errors.As(err, &unavailable):
		return "unavailable_items"
	case errors.Is(err, ErrMixedSeller):
		return "mixed_seller"
	case errors.Is(err, apperr.ErrUnavailable):
		return "upstream_unavailable"
	default:
		return "error"
	}
}
