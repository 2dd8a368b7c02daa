package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	catalogdomain "github.com/revora/revora/internal/catalog/domain"
	catalogservice "github.com/revora/revora/internal/catalog/service"
	"github.com/revora/revora/internal/clock"
	commissionservice "github.com/revora/revora/internal/commission/service"
	"github.com/revora/revora/internal/config"
	directorydomain "github.com/revora/revora/internal/directory/domain"
	directoryservice "github.com/revora/revora/internal/directory/service"
	"github.com/revora/revora/internal/events"
	eventsdomain "github.com/revora/revora/internal/events/domain"
	invoicedomain "github.com/revora/revora/internal/invoice/domain"
	invoiceservice "github.com/revora/revora/internal/invoice/service"
	"github.com/revora/revora/internal/observability"
	pricingdomain "github.com/revora/revora/internal/pricing/domain"
	pricingservice "github.com/revora/revora/internal/pricing/service"
	quotaservice "github.com/revora/revora/internal/quota/service"
	"github.com/revora/revora/internal/reset"
	subdomain "github.com/revora/revora/internal/subscription/domain"
	subscriptionservice "github.com/revora/revora/internal/subscription/service"
	"github.com/revora/revora/internal/tax"
	usagedomain "github.com/revora/revora/internal/usage/domain"
	usageservice "github.com/revora/revora/internal/usage/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type apiFixture struct {
	ts    *httptest.Server
	clock *clock.FakeClock
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&catalogdomain.Service{},
		&catalogdomain.Plan{},
		&directorydomain.Reseller{},
		&directorydomain.Client{},
		&pricingdomain.PricingRule{},
		&subdomain.Subscription{},
		&usagedomain.UsageEvent{},
		&invoicedomain.Invoice{},
		&invoicedomain.InvoiceLineItem{},
		&invoicedomain.InvoiceSequence{},
		&eventsdomain.OutboxEvent{},
	))

	log := zaptest.NewLogger(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 4, 15, 10, 0, 0, 0, time.UTC))
	billing := config.NewStaticBillingConfig(config.BillingConfig{
		TaxRatePercent:   18,
		NearLimitPercent: 80,
		OverdueGraceDays: 3,
		PaymentTermDays:  14,
	})

	catalog := catalogservice.NewService(catalogservice.ServiceParam{
		DB: db, Log: log, GenID: node,
	})
	directory := directoryservice.NewService(directoryservice.ServiceParam{
		DB: db, Log: log, GenID: node,
	})
	pricing := pricingservice.NewService(pricingservice.ServiceParam{
		DB: db, Log: log, GenID: node, Catalog: catalog,
	})
	subscriptions := subscriptionservice.NewService(subscriptionservice.ServiceParam{
		DB: db, Log: log, GenID: node, Clock: clk,
		Catalog: catalog, Directory: directory,
	})
	ledger := usageservice.NewLedger(usageservice.LedgerParam{DB: db, Log: log})
	sweeper := reset.NewSweeper(reset.SweeperParam{DB: db, Log: log, Clock: clk})
	outbox := events.NewOutbox(events.OutboxParam{
		DB: db, Log: log, GenID: node, Clock: clk,
	})
	enforcer := quotaservice.NewEnforcer(quotaservice.EnforcerParam{
		DB: db, Log: log, GenID: node, Clock: clk,
		Billing: billing, Pricing: pricing, Ledger: ledger,
		Sweeper: sweeper, Outbox: outbox,
	})
	invoices := invoiceservice.NewService(invoiceservice.ServiceParam{
		DB: db, Log: log, GenID: node, Clock: clk,
		Billing: billing, Catalog: catalog, Directory: directory,
		Ledger: ledger, Tax: tax.NewResolver(billing), Outbox: outbox,
	})
	commissions := commissionservice.NewService(commissionservice.ServiceParam{
		DB: db, Log: log, Directory: directory, Invoices: invoices,
	})

	engine := NewEngine(observability.Config{}, nil)
	srv := NewServer(ServerParams{
		Gin:             engine,
		Cfg:             config.Config{},
		DB:              db,
		GenID:           node,
		CatalogSvc:      catalog,
		DirectorySvc:    directory,
		PricingSvc:      pricing,
		SubscriptionSvc: subscriptions,
		Ledger:          ledger,
		Enforcer:        enforcer,
		InvoiceSvc:      invoices,
		CommissionSvc:   commissions,
		Sweeper:         sweeper,
	})
	srv.RegisterAPIRoutes()

	ts := httptest.NewServer(engine)
	t.Cleanup(ts.Close)
	return &apiFixture{ts: ts, clock: clk}
}

func (f *apiFixture) do(t *testing.T, method, path string, body any) (int, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequest(method, f.ts.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := f.ts.Client().Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	var decoded map[string]any
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &decoded), "body: %s", raw)
	}
	return res.StatusCode, decoded
}

func dataField(t *testing.T, body map[string]any, key string) any {
	t.Helper()
	data, ok := body["data"].(map[string]any)
	require.True(t, ok, "missing data envelope: %v", body)
	return data[key]
}

func dataID(t *testing.T, body map[string]any) string {
	t.Helper()
	id, ok := dataField(t, body, "id").(string)
	require.True(t, ok, "missing data.id: %v", body)
	return id
}

func errorType(t *testing.T, body map[string]any) string {
	t.Helper()
	payload, ok := body["error"].(map[string]any)
	require.True(t, ok, "missing error envelope: %v", body)
	errType, _ := payload["type"].(string)
	return errType
}

func TestMeteringAndBillingFlow(t *testing.T) {
	f := newAPIFixture(t)

	status, body := f.do(t, http.MethodPost, "/v1/services", gin.H{
		"name": "Outbound SMS", "base_price": 25, "billing_model": "PER_MESSAGE",
	})
	require.Equal(t, http.StatusCreated, status)
	serviceID := dataID(t, body)

	status, body = f.do(t, http.MethodPost, "/v1/resellers", gin.H{
		"name": "Acme Telco", "email": "ops@acme.test", "commission_rate": 20,
	})
	require.Equal(t, http.StatusCreated, status)
	resellerID := dataID(t, body)

	status, body = f.do(t, http.MethodPost, "/v1/clients", gin.H{
		"reseller_id": resellerID, "name": "Corner Shop",
	})
	require.Equal(t, http.StatusCreated, status)
	clientID := dataID(t, body)

	status, _ = f.do(t, http.MethodPut, "/v1/pricing/rules", gin.H{
		"reseller_id": resellerID, "service_id": serviceID,
		"kind": "MARKUP_PERCENT", "markup_percent": 20,
	})
	require.Equal(t, http.StatusOK, status)

	status, body = f.do(t, http.MethodGet,
		"/v1/pricing/resolve?reseller_id="+resellerID+"&service_id="+serviceID, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(30), dataField(t, body, "unit_price"))

	status, body = f.do(t, http.MethodPost, "/v1/subscriptions", gin.H{
		"client_id": clientID, "service_id": serviceID,
		"quota_mode": "LIMITED", "usage_limit": 100, "reset_period": "MONTHLY",
	})
	require.Equal(t, http.StatusCreated, status)
	subscriptionID := dataID(t, body)

	// Fresh consume commits at the marked-up price.
	status, body = f.do(t, http.MethodPost, "/v1/usage/consume", gin.H{
		"subscription_id": subscriptionID, "units": 10, "idempotency_key": "evt-1",
	})
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, float64(10), dataField(t, body, "usage_consumed"))
	assert.Equal(t, false, dataField(t, body, "replayed"))

	// Same key conflicts but carries the original outcome, so callers can
	// treat it as settled.
	status, body = f.do(t, http.MethodPost, "/v1/usage/consume", gin.H{
		"subscription_id": subscriptionID, "units": 10, "idempotency_key": "evt-1",
	})
	require.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "duplicate_event", errorType(t, body))
	assert.Equal(t, true, dataField(t, body, "replayed"))
	assert.Equal(t, float64(10), dataField(t, body, "usage_consumed"))

	// Blowing the limit returns the counter state alongside the error.
	status, body = f.do(t, http.MethodPost, "/v1/usage/consume", gin.H{
		"subscription_id": subscriptionID, "units": 95, "idempotency_key": "evt-2",
	})
	require.Equal(t, http.StatusPaymentRequired, status)
	assert.Equal(t, "quota_exceeded", errorType(t, body))
	assert.Equal(t, float64(10), body["usage_consumed"])
	assert.Equal(t, float64(100), body["usage_limit"])

	status, body = f.do(t, http.MethodGet, "/v1/usage/events?subscription_id="+subscriptionID, nil)
	require.Equal(t, http.StatusOK, status)
	listed, ok := body["data"].([]any)
	require.True(t, ok)
	assert.Len(t, listed, 1)

	// Bill April: 10 units at 30 = 300 subtotal, 18% tax.
	status, body = f.do(t, http.MethodPost, "/v1/invoices/generate", gin.H{
		"client_id": clientID, "period_start": "2026-04-01", "period_end": "2026-05-01",
	})
	require.Equal(t, http.StatusCreated, status)
	invoiceID := dataID(t, body)
	assert.Equal(t, float64(300), dataField(t, body, "subtotal"))
	assert.Equal(t, float64(54), dataField(t, body, "tax"))
	assert.Equal(t, float64(354), dataField(t, body, "total"))

	status, _ = f.do(t, http.MethodPost, "/v1/invoices/"+invoiceID+"/send", nil)
	require.Equal(t, http.StatusOK, status)
	status, body = f.do(t, http.MethodPost, "/v1/invoices/"+invoiceID+"/mark-paid", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "PAID", dataField(t, body, "status"))

	// Commission comes off the tax-inclusive total.
	status, body = f.do(t, http.MethodGet,
		"/v1/billing/commission?reseller_id="+resellerID+"&invoice_id="+invoiceID, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(354), dataField(t, body, "base"))
	assert.Equal(t, float64(71), dataField(t, body, "amount"))

	status, body = f.do(t, http.MethodGet,
		"/v1/billing/commission/report?reseller_id="+resellerID+"&from=2026-04-01&to=2026-05-01", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), dataField(t, body, "invoice_count"))
	assert.Equal(t, float64(71), dataField(t, body, "amount"))
}

func TestEnsureResetEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	status, body := f.do(t, http.MethodPost, "/v1/services", gin.H{
		"name": "Outbound SMS", "base_price": 25, "billing_model": "PER_MESSAGE",
	})
	require.Equal(t, http.StatusCreated, status)
	serviceID := dataID(t, body)
	status, body = f.do(t, http.MethodPost, "/v1/resellers", gin.H{
		"name": "Acme Telco", "email": "ops@acme.test",
	})
	require.Equal(t, http.StatusCreated, status)
	resellerID := dataID(t, body)
	status, body = f.do(t, http.MethodPost, "/v1/clients", gin.H{
		"reseller_id": resellerID, "name": "Corner Shop",
	})
	require.Equal(t, http.StatusCreated, status)
	clientID := dataID(t, body)
	status, body = f.do(t, http.MethodPost, "/v1/subscriptions", gin.H{
		"client_id": clientID, "service_id": serviceID,
		"quota_mode": "LIMITED", "usage_limit": 100, "reset_period": "DAILY",
	})
	require.Equal(t, http.StatusCreated, status)
	subscriptionID := dataID(t, body)

	status, body = f.do(t, http.MethodPost, "/v1/usage/consume", gin.H{
		"subscription_id": subscriptionID, "units": 40, "idempotency_key": "evt-1",
	})
	require.Equal(t, http.StatusCreated, status)

	// Same day: nothing pending.
	status, body = f.do(t, http.MethodPost, "/v1/usage/ensure-reset", gin.H{
		"subscription_id": subscriptionID,
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, dataField(t, body, "reset_applied"))

	// Next day the counter folds back to zero without recording usage.
	f.clock.Advance(24 * time.Hour)
	status, body = f.do(t, http.MethodPost, "/v1/usage/ensure-reset", gin.H{
		"subscription_id": subscriptionID,
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, dataField(t, body, "reset_applied"))
	sub, ok := dataField(t, body, "subscription").(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(0), sub["usage_consumed"])
}

func TestErrorMapping(t *testing.T) {
	f := newAPIFixture(t)

	status, body := f.do(t, http.MethodGet, "/v1/services/123456789", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "not_found", errorType(t, body))

	status, body = f.do(t, http.MethodGet, "/v1/services/not-a-snowflake", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "validation_error", errorType(t, body))

	status, body = f.do(t, http.MethodPost, "/v1/services", gin.H{
		"name": "Voice", "base_price": 50, "billing_model": "PER_SYLLABLE",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_request", errorType(t, body))

	status, body = f.do(t, http.MethodPost, "/v1/usage/consume", gin.H{
		"subscription_id": "123456789", "units": 1, "idempotency_key": "evt-x",
	})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "not_found", errorType(t, body))

	status, body = f.do(t, http.MethodPost, "/v1/invoices/generate", gin.H{
		"client_id": "123456789", "period_start": "2026-05-01", "period_end": "2026-04-01",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_request", errorType(t, body))
}

func TestDuplicateSubscriptionConflict(t *testing.T) {
	f := newAPIFixture(t)

	status, body := f.do(t, http.MethodPost, "/v1/services", gin.H{
		"name": "Outbound SMS", "base_price": 25, "billing_model": "PER_MESSAGE",
	})
	require.Equal(t, http.StatusCreated, status)
	serviceID := dataID(t, body)
	status, body = f.do(t, http.MethodPost, "/v1/resellers", gin.H{
		"name": "Acme Telco", "email": "ops@acme.test",
	})
	require.Equal(t, http.StatusCreated, status)
	resellerID := dataID(t, body)
	status, body = f.do(t, http.MethodPost, "/v1/clients", gin.H{
		"reseller_id": resellerID, "name": "Corner Shop",
	})
	require.Equal(t, http.StatusCreated, status)
	clientID := dataID(t, body)

	assign := gin.H{"client_id": clientID, "service_id": serviceID}
	status, _ = f.do(t, http.MethodPost, "/v1/subscriptions", assign)
	require.Equal(t, http.StatusCreated, status)

	status, body = f.do(t, http.MethodPost, "/v1/subscriptions", assign)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "duplicate_assignment", errorType(t, body))
}
