//go:build integration

package app

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-faster/jx"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go/modules/compose"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/xenking/foodrun/internal/domain/catalog"
	"github.com/xenking/foodrun/internal/handler"
	"github.com/xenking/foodrun/internal/repository"
	"github.com/xenking/foodrun/pkg/httpmiddleware"
)

var testPool *pgxpool.Pool

type noopTelemetry struct{}

func (noopTelemetry) TracerProvider() trace.TracerProvider { return tracenoop.NewTracerProvider() }
func (noopTelemetry) MeterProvider() metric.MeterProvider  { return metricnoop.NewMeterProvider() }

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	dc, err := tc.NewDockerCompose("../repository/testdata/docker-compose.yml")
	if err != nil {
		log.Fatalf("compose init: %v", err)
	}
	defer func() {
		if err := dc.Down(context.Background(), tc.RemoveOrphans(true), tc.RemoveVolumes(true)); err != nil {
			log.Printf("compose down: %v", err)
		}
	}()

	err = dc.
		WaitForService("postgres", wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(time.Minute)).
		Up(ctx, tc.Wait(true))
	if err != nil {
		log.Fatalf("compose up: %v", err)
	}

	pg, err := dc.ServiceContainer(ctx, "postgres")
	if err != nil {
		log.Fatalf("postgres container: %v", err)
	}
	host, err := pg.Host(ctx)
	if err != nil {
		log.Fatalf("host: %v", err)
	}
	port, err := pg.MappedPort(ctx, "5432/tcp")
	if err != nil {
		log.Fatalf("mapped port: %v", err)
	}

	testPool, err = repository.NewPool(ctx, fmt.Sprintf("postgres://foodrun:foodrun@%s:%s/foodrun?sslmode=disable", host, port.Port()))
	if err != nil {
		log.Fatalf("pool: %v", err)
	}
	defer testPool.Close()

	if err := repository.RunMigrations(ctx, testPool); err != nil {
		log.Fatalf("migrations: %v", err)
	}
	return m.Run()
}

type client struct {
	t      *testing.T
	server *httptest.Server
	token  string
}

func (c *client) call(method, path, body string) (int, *jx.Decoder, string) {
	c.t.Helper()
	req, err := http.NewRequest(method, c.server.URL+path, strings.NewReader(body))
	require.NoError(c.t, err)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.server.Client().Do(req)
	require.NoError(c.t, err)
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	return resp.StatusCode, jx.DecodeBytes(raw), string(raw)
}

// field extracts a top-level string field from a JSON object.
func field(t *testing.T, d *jx.Decoder, name string) string {
	t.Helper()
	var out string
	require.NoError(t, d.Obj(func(d *jx.Decoder, key string) error {
		if key != name || d.Next() != jx.String {
			return d.Skip()
		}
		v, err := d.Str()
		out = v
		return err
	}))
	return out
}

func TestEndToEnd_CheckoutChallengeDelivery(t *testing.T) {
	ctx := context.Background()
	suffix := uuid.NewString()[:8]

	cfg := &Config{
		Auth:     AuthConfig{JWTSecret: "identity-" + suffix},
		Checkout: CheckoutConfig{Timeout: 10 * time.Second, DeliveryPayment: "5.00"},
		Store:    StoreConfig{Timeout: 5 * time.Second},
		Challenge: ChallengeConfig{
			Secret:    "challenge-" + suffix,
			Ceiling:   time.Hour,
			CouponTTL: 24 * time.Hour,
			UIBaseURL: "http://ui.test",
		},
	}
	h, err := newHandler(testPool, noopTelemetry{}, cfg)
	require.NoError(t, err)

	cat := repository.NewCatalogRepository(testPool)
	seller := catalog.Restaurant("e2e-" + suffix)
	require.NoError(t, cat.UpsertSeller(ctx, catalog.Seller{Ref: seller, Name: "E2E Diner", DeliveryFee: decimal.NewFromInt(3)}))
	item := "burger-" + suffix
	require.NoError(t, cat.UpsertItem(ctx, catalog.Item{ID: item, Seller: seller, Name: "Burger", Price: decimal.NewFromInt(12), IsAvailable: true}))

	server := httptest.NewServer(httpmiddleware.Wrap(
		handler.NewRouter(h, handler.RouterOptions{}),
		httpmiddleware.RequestID(),
		httpmiddleware.Recovery(),
	))
	defer server.Close()

	auth := handler.NewAuthenticator([]byte(cfg.Auth.JWTSecret))
	issue := func(id handler.Identity) string {
		tok, err := auth.Issue(id, time.Hour)
		require.NoError(t, err)
		return tok
	}
	customer := &client{t: t, server: server, token: issue(handler.Identity{Subject: "cust-" + suffix, Role: handler.RoleCustomer})}
	driver := &client{t: t, server: server, token: issue(handler.Identity{Subject: "drv-" + suffix, Role: handler.RoleDriver})}
	anon := &client{t: t, server: server}

	status, _, body := customer.call(http.MethodPost, "/api/cart", `{"itemId":"`+item+`","quantity":2}`)
	require.Equal(t, http.StatusCreated, status, body)

	status, d, body := customer.call(http.MethodPost, "/api/checkout", `{}`)
	require.Equal(t, http.StatusCreated, status, body)
	assert.Contains(t, body, `"total":27.00`)
	orderID := field(t, d, "id")
	require.NotEmpty(t, orderID)

	status, _, body = customer.call(http.MethodPost, "/api/checkout", `{}`)
	assert.Equal(t, http.StatusBadRequest, status, body)
	assert.Contains(t, body, `"kind":"empty_cart"`)

	status, _, body = customer.call(http.MethodPost, "/api/challenges/start", `{"orderId":"`+orderID+`","difficulty":"medium"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, status, body)
	assert.Contains(t, body, `"kind":"invalid_input"`)

	status, _, body = driver.call(http.MethodPost, "/api/driver/orders/"+orderID+"/accept", "")
	require.Equal(t, http.StatusOK, status, body)

	status, d, body = customer.call(http.MethodPost, "/api/challenges/start", `{"orderId":"`+orderID+`","difficulty":"medium"}`)
	require.Equal(t, http.StatusCreated, status, body)
	token := field(t, d, "token")
	require.NotEmpty(t, token)
	assert.Contains(t, body, `"url":"http://ui.test/?session=`)

	status, _, body = driver.call(http.MethodPost, "/api/driver/orders/"+orderID+"/delivered", "")
	require.Equal(t, http.StatusOK, status, body)
	assert.Contains(t, body, `"challengeOutcome":"FAILED"`)

	status, _, body = anon.call(http.MethodPost, "/api/challenges/complete", `{"token":"`+token+`"}`)
	assert.Equal(t, http.StatusGone, status, body)
	assert.Contains(t, body, `"kind":"expired"`)

	status, _, body = customer.call(http.MethodGet, "/api/coupons", "")
	require.Equal(t, http.StatusOK, status, body)
	assert.JSONEq(t, "[]", body)

	status, _, body = driver.call(http.MethodGet, "/api/driver/earnings", "")
	require.Equal(t, http.StatusOK, status, body)
	assert.Contains(t, body, `"deliveries":1`)
	assert.Contains(t, body, `"total":5.00`)
}

func TestEndToEnd_ChallengeWin(t *testing.T) {
	ctx := context.Background()
	suffix := uuid.NewString()[:8]

	cfg := &Config{
		Auth:      AuthConfig{JWTSecret: "identity-" + suffix},
		Checkout:  CheckoutConfig{Timeout: 10 * time.Second, DeliveryPayment: "5.00"},
		Store:     StoreConfig{Timeout: 5 * time.Second},
		Challenge: ChallengeConfig{Secret: "challenge-" + suffix, Ceiling: time.Hour, CouponTTL: 24 * time.Hour},
	}
	h, err := newHandler(testPool, noopTelemetry{}, cfg)
	require.NoError(t, err)

	cat := repository.NewCatalogRepository(testPool)
	seller := catalog.Supermarket("mart-" + suffix)
	require.NoError(t, cat.UpsertSeller(ctx, catalog.Seller{Ref: seller, Name: "Mart", DeliveryFee: decimal.NewFromInt(2)}))
	item := "milk-" + suffix
	require.NoError(t, cat.UpsertItem(ctx, catalog.Item{ID: item, Seller: seller, Name: "Milk", Price: decimal.NewFromInt(20), IsAvailable: true}))

	server := httptest.NewServer(handler.NewRouter(h, handler.RouterOptions{}))
	defer server.Close()

	auth := handler.NewAuthenticator([]byte(cfg.Auth.JWTSecret))
	tok, err := auth.Issue(handler.Identity{Subject: "cust-" + suffix, Role: handler.RoleCustomer}, time.Hour)
	require.NoError(t, err)
	drvTok, err := auth.Issue(handler.Identity{Subject: "drv-" + suffix, Role: handler.RoleDriver}, time.Hour)
	require.NoError(t, err)
	customer := &client{t: t, server: server, token: tok}
	driver := &client{t: t, server: server, token: drvTok}
	anon := &client{t: t, server: server}

	status, _, body := customer.call(http.MethodPost, "/api/cart", `{"itemId":"`+item+`"}`)
	require.Equal(t, http.StatusCreated, status, body)
	status, d, body := customer.call(http.MethodPost, "/api/checkout", `{"payment":"pending"}`)
	require.Equal(t, http.StatusCreated, status, body)
	orderID := field(t, d, "id")

	status, _, body = driver.call(http.MethodPost, "/api/driver/orders/"+orderID+"/accept", "")
	require.Equal(t, http.StatusOK, status, body)

	status, d, body = customer.call(http.MethodPost, "/api/challenges/start", `{"orderId":"`+orderID+`","difficulty":"hard"}`)
	require.Equal(t, http.StatusCreated, status, body)
	token := field(t, d, "token")

	status, d, body = anon.call(http.MethodPost, "/api/challenges/complete", `{"token":"`+token+`"}`)
	require.Equal(t, http.StatusOK, status, body)
	assert.Contains(t, body, `"discountPct":15`)
	code := field(t, d, "code")
	require.True(t, strings.HasPrefix(code, "FOOD-"), code)

	status, _, body = anon.call(http.MethodPost, "/api/challenges/complete", `{"token":"`+token+`"}`)
	assert.Equal(t, http.StatusConflict, status, body)

	// The reward is picked up automatically by the next checkout.
	status, _, body = customer.call(http.MethodPost, "/api/cart", `{"itemId":"`+item+`"}`)
	require.Equal(t, http.StatusCreated, status, body)
	status, _, body = customer.call(http.MethodPost, "/api/checkout", `{}`)
	require.Equal(t, http.StatusCreated, status, body)
	assert.Contains(t, body, `"discount":3.00`)
	assert.Contains(t, body, `"couponCode":"`+code+`"`)
	assert.Contains(t, body, `"total":19.00`)
}
