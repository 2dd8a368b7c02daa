package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	catalogdomain "github.com/revora/revora/internal/catalog/domain"
	"github.com/revora/revora/internal/usage/domain"
	"github.com/revora/revora/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type ledgerFixture struct {
	db     *gorm.DB
	genID  *snowflake.Node
	ledger domain.Ledger

	resellerID     snowflake.ID
	clientID       snowflake.ID
	serviceID      snowflake.ID
	subscriptionID snowflake.ID
}

func newLedgerFixture(t *testing.T) *ledgerFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&domain.UsageEvent{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return &ledgerFixture{
		db:     db,
		genID:  node,
		ledger: NewLedger(LedgerParam{DB: db, Log: zaptest.NewLogger(t)}),

		resellerID:     node.Generate(),
		clientID:       node.Generate(),
		serviceID:      node.Generate(),
		subscriptionID: node.Generate(),
	}
}

func (f *ledgerFixture) event(key string, units, unitPrice int64, at time.Time) *domain.UsageEvent {
	return &domain.UsageEvent{
		ID:             f.genID.Generate(),
		SubscriptionID: f.subscriptionID,
		ResellerID:     f.resellerID,
		ClientID:       f.clientID,
		ServiceID:      f.serviceID,
		IdempotencyKey: key,
		Units:          units,
		UnitPrice:      unitPrice,
		Amount:         units * unitPrice,
		Currency:       "INR",
		BillingModel:   catalogdomain.BillingPerMessage,
		RecordedAt:     at,
		CreatedAt:      at,
	}
}

func (f *ledgerFixture) append(t *testing.T, event *domain.UsageEvent) {
	t.Helper()
	require.NoError(t, f.ledger.AppendInTx(context.Background(), f.db, event))
}

func TestAppendInTxDeduplicates(t *testing.T) {
	f := newLedgerFixture(t)
	at := time.Date(2026, 4, 5, 10, 0, 0, 0, time.UTC)

	f.append(t, f.event("evt-1", 10, 25, at))

	err := f.ledger.AppendInTx(context.Background(), f.db, f.event("evt-1", 10, 25, at))
	assert.ErrorIs(t, err, domain.ErrDuplicateEvent)

	err = f.ledger.AppendInTx(context.Background(), f.db, f.event("evt-2", 0, 25, at))
	assert.ErrorIs(t, err, domain.ErrInvalidUnits)

	var count int64
	require.NoError(t, f.db.Model(&domain.UsageEvent{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestAppendInTxAllowsKeyOnOtherSubscription(t *testing.T) {
	f := newLedgerFixture(t)
	at := time.Date(2026, 4, 5, 10, 0, 0, 0, time.UTC)

	f.append(t, f.event("evt-1", 10, 25, at))

	// Dedupe is per subscription, so another subscription may commit the
	// same key.
	other := f.event("evt-1", 3, 25, at)
	other.SubscriptionID = f.genID.Generate()
	f.append(t, other)

	var count int64
	require.NoError(t, f.db.Model(&domain.UsageEvent{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestListFiltersByWindow(t *testing.T) {
	f := newLedgerFixture(t)
	f.append(t, f.event("evt-1", 1, 25, time.Date(2026, 4, 5, 10, 0, 0, 0, time.UTC)))
	f.append(t, f.event("evt-2", 2, 25, time.Date(2026, 4, 15, 10, 0, 0, 0, time.UTC)))
	f.append(t, f.event("evt-3", 3, 25, time.Date(2026, 5, 2, 10, 0, 0, 0, time.UTC)))

	events, _, err := f.ledger.List(context.Background(), domain.ListUsageRequest{
		SubscriptionID: f.subscriptionID.String(),
		From:           "2026-04-10T00:00:00Z",
		To:             "2026-05-01T00:00:00Z",
	})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "evt-2", events[0].IdempotencyKey)

	// A foreign subscription sees nothing.
	events, _, err = f.ledger.List(context.Background(), domain.ListUsageRequest{
		SubscriptionID: f.genID.Generate().String(),
	})
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestListPaginatesWithCursor(t *testing.T) {
	f := newLedgerFixture(t)
	for day := 1; day <= 5; day++ {
		at := time.Date(2026, 4, day, 10, 0, 0, 0, time.UTC)
		f.append(t, f.event(fmt.Sprintf("evt-%d", day), 1, 25, at))
	}

	first, page, err := f.ledger.List(context.Background(), domain.ListUsageRequest{
		ResellerID: f.resellerID.String(),
		Pagination: pagination.Pagination{PageSize: 2},
	})
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.True(t, page.HasMore)
	require.NotEmpty(t, page.NextPageToken)
	assert.Equal(t, "evt-1", first[0].IdempotencyKey)
	assert.Equal(t, "evt-2", first[1].IdempotencyKey)

	second, page, err := f.ledger.List(context.Background(), domain.ListUsageRequest{
		ResellerID: f.resellerID.String(),
		Pagination: pagination.Pagination{PageSize: 2, PageToken: page.NextPageToken},
	})
	require.NoError(t, err)
	require.Len(t, second, 2)
	assert.True(t, page.HasMore)
	assert.Equal(t, "evt-3", second[0].IdempotencyKey)
	assert.Equal(t, "evt-4", second[1].IdempotencyKey)
}

func TestAggregateWindowGroupsByUnitPrice(t *testing.T) {
	f := newLedgerFixture(t)
	f.append(t, f.event("evt-1", 10, 25, time.Date(2026, 4, 5, 10, 0, 0, 0, time.UTC)))
	f.append(t, f.event("evt-2", 10, 25, time.Date(2026, 4, 20, 10, 0, 0, 0, time.UTC)))
	f.append(t, f.event("evt-3", 1, 30, time.Date(2026, 4, 21, 10, 0, 0, 0, time.UTC)))
	f.append(t, f.event("evt-4", 99, 25, time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)))

	from := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	rollups, err := f.ledger.AggregateWindow(context.Background(), f.resellerID, f.clientID, from, to)
	require.NoError(t, err)

	require.Len(t, rollups, 2)
	assert.Equal(t, int64(25), rollups[0].UnitPrice)
	assert.Equal(t, int64(20), rollups[0].Units)
	assert.Equal(t, int64(500), rollups[0].Amount)
	assert.Equal(t, int64(30), rollups[1].UnitPrice)
	assert.Equal(t, int64(30), rollups[1].Amount)
}
