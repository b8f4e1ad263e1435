package order

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xenking/foodrun/internal/domain/catalog"
	"github.com/xenking/foodrun/internal/domain/coupon"
)

const instrumentationName = "github.com/xenking/foodrun/internal/domain/order"

// Config holds order policy values.
type Config struct {
	// DeliveryPayment is paid to a driver for every accepted order.
	DeliveryPayment decimal.Decimal
	// Timeout bounds a whole checkout including catalog reads. Zero disables it.
	Timeout time.Duration
	// StoreTimeout bounds every other store call: transitions and listings.
	// Zero disables it.
	StoreTimeout time.Duration
}

// Deps are the collaborators of Service.
type Deps struct {
	Tx             TxRunner
	Orders         Reader
	Catalog        catalog.Reader
	Ledger         *coupon.Ledger
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// Service implements checkout, the order state machine and order listings.
type Service struct {
	tx      TxRunner
	orders  Reader
	catalog catalog.Reader
	ledger  *coupon.Ledger
	cfg     Config
	now     func() time.Time

	tracer      trace.Tracer
	checkouts   metric.Int64Counter
	transitions metric.Int64Counter
}

// NewService creates an order Service.
func NewService(deps Deps, cfg Config) (*Service, error) {
	if cfg.DeliveryPayment.IsZero() {
		cfg.DeliveryPayment = decimal.NewFromInt(5)
	}
	meter := deps.MeterProvider.Meter(instrumentationName)
	checkouts, err := meter.Int64Counter("foodrun.order.checkouts",
		metric.WithDescription("Checkout attempts by result"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "checkouts counter")
	}
	transitions, err := meter.Int64Counter("foodrun.order.transitions",
		metric.WithDescription("Order status transitions"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "transitions counter")
	}
	return &Service{
		tx:          deps.Tx,
		orders:      deps.Orders,
		catalog:     deps.Catalog,
		ledger:      deps.Ledger,
		cfg:         cfg,
		now:         time.Now,
		tracer:      deps.TracerProvider.Tracer(instrumentationName),
		checkouts:   checkouts,
		transitions: transitions,
	}, nil
}
