package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	catalogservice "github.com/revora/revora/internal/catalog/service"
	"github.com/revora/revora/internal/clock"
	"github.com/revora/revora/internal/config"
	directorydomain "github.com/revora/revora/internal/directory/domain"
	directoryservice "github.com/revora/revora/internal/directory/service"
	"github.com/revora/revora/internal/events"
	eventsdomain "github.com/revora/revora/internal/events/domain"
	invoicedomain "github.com/revora/revora/internal/invoice/domain"
	invoiceservice "github.com/revora/revora/internal/invoice/service"
	"github.com/revora/revora/internal/observability/metrics"
	"github.com/revora/revora/internal/reset"
	subdomain "github.com/revora/revora/internal/subscription/domain"
	"github.com/revora/revora/internal/tax"
	usageservice "github.com/revora/revora/internal/usage/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type schedulerFixture struct {
	db    *gorm.DB
	clock *clock.FakeClock
	genID *snowflake.Node
	sched *Scheduler
}

func newSchedulerFixture(t *testing.T) *schedulerFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&directorydomain.Reseller{},
		&directorydomain.Client{},
		&subdomain.Subscription{},
		&invoicedomain.Invoice{},
		&invoicedomain.InvoiceLineItem{},
		&invoicedomain.InvoiceSequence{},
		&eventsdomain.OutboxEvent{},
	))

	log := zaptest.NewLogger(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 7, 10, 6, 0, 0, 0, time.UTC))
	billing := config.NewStaticBillingConfig(config.DefaultBillingConfig())

	m, err := metrics.New(metrics.Config{}, noop.NewMeterProvider())
	require.NoError(t, err)

	sweeper := reset.NewSweeper(reset.SweeperParam{DB: db, Log: log, Clock: clk})
	outbox := events.NewOutbox(events.OutboxParam{
		DB: db, Log: log, GenID: node, Clock: clk,
	})
	invoices := invoiceservice.NewService(invoiceservice.ServiceParam{
		DB:      db,
		Log:     log,
		GenID:   node,
		Clock:   clk,
		Billing: billing,
		Catalog: catalogservice.NewService(catalogservice.ServiceParam{
			DB: db, Log: log, GenID: node,
		}),
		Directory: directoryservice.NewService(directoryservice.ServiceParam{
			DB: db, Log: log, GenID: node,
		}),
		Ledger:  usageservice.NewLedger(usageservice.LedgerParam{DB: db, Log: log}),
		Tax:     tax.NewResolver(billing),
		Outbox:  outbox,
		Metrics: m,
	})
	dispatcher := events.NewDispatcher(events.DispatcherParam{
		Log:    log,
		Outbox: outbox,
	})

	sched, err := New(Params{
		Log:        log,
		Clock:      clk,
		Sweeper:    sweeper,
		InvoiceSvc: invoices,
		Dispatcher: dispatcher,
		Metrics:    m,
		Config:     Config{BatchSize: 50},
	})
	require.NoError(t, err)

	return &schedulerFixture{db: db, clock: clk, genID: node, sched: sched}
}

func TestRunOnceSweepsResetsAndOverdue(t *testing.T) {
	f := newSchedulerFixture(t)

	sub := subdomain.Subscription{
		ID:            f.genID.Generate(),
		ResellerID:    f.genID.Generate(),
		ClientID:      f.genID.Generate(),
		ServiceID:     f.genID.Generate(),
		Status:        subdomain.SubscriptionStatusActive,
		QuotaMode:     subdomain.QuotaLimited,
		UsageLimit:    100,
		UsageConsumed: 60,
		ResetPeriod:   subdomain.ResetDaily,
		LastResetAt:   time.Date(2026, 7, 8, 0, 0, 0, 0, time.UTC),
		Timezone:      "UTC",
	}
	require.NoError(t, f.db.Create(&sub).Error)

	issued := time.Date(2026, 6, 20, 0, 0, 0, 0, time.UTC)
	invoice := invoicedomain.Invoice{
		ID:          f.genID.Generate(),
		Number:      "INV-TEST-00001",
		ResellerID:  sub.ResellerID,
		ClientID:    sub.ClientID,
		PeriodStart: time.Date(2026, 5, 20, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   issued,
		Status:      invoicedomain.InvoiceStatusSent,
		Currency:    "INR",
		Subtotal:    1000,
		Total:       1000,
		IssuedAt:    issued,
		DueAt:       issued.AddDate(0, 0, 14),
	}
	require.NoError(t, f.db.Create(&invoice).Error)

	f.sched.RunOnce(context.Background())

	var reloadedSub subdomain.Subscription
	require.NoError(t, f.db.Where("id = ?", sub.ID).First(&reloadedSub).Error)
	assert.Zero(t, reloadedSub.UsageConsumed)

	var reloadedInvoice invoicedomain.Invoice
	require.NoError(t, f.db.Where("id = ?", invoice.ID).First(&reloadedInvoice).Error)
	assert.Equal(t, invoicedomain.InvoiceStatusOverdue, reloadedInvoice.Status)

	// The dispatch job runs after the sweeps, so the overdue event is
	// already delivered and marked.
	var pending int64
	require.NoError(t, f.db.Model(&eventsdomain.OutboxEvent{}).
		Where("published = ?", false).Count(&pending).Error)
	assert.Zero(t, pending)
	var dispatched int64
	require.NoError(t, f.db.Model(&eventsdomain.OutboxEvent{}).
		Where("published = ? AND event_type = ?", true, events.EventInvoiceOverdue).
		Count(&dispatched).Error)
	assert.Equal(t, int64(1), dispatched)

	// A second cycle finds nothing due and changes nothing.
	f.sched.RunOnce(context.Background())
	require.NoError(t, f.db.Where("id = ?", invoice.ID).First(&reloadedInvoice).Error)
	assert.Equal(t, invoicedomain.InvoiceStatusOverdue, reloadedInvoice.Status)
}

func TestNewRejectsMissingDependencies(t *testing.T) {
	_, err := New(Params{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
