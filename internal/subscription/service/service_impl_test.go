package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	catalogdomain "github.com/revora/revora/internal/catalog/domain"
	catalogservice "github.com/revora/revora/internal/catalog/service"
	"github.com/revora/revora/internal/clock"
	directorydomain "github.com/revora/revora/internal/directory/domain"
	directoryservice "github.com/revora/revora/internal/directory/service"
	"github.com/revora/revora/internal/subscription/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type subscriptionFixture struct {
	db      *gorm.DB
	genID   *snowflake.Node
	service domain.Service

	reseller directorydomain.Reseller
	client   directorydomain.Client
	sms      catalogdomain.Service
	plan     catalogdomain.Plan
}

func newSubscriptionFixture(t *testing.T) *subscriptionFixture {
	t.Helper()

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
		&domain.Subscription{},
	))

	log := zaptest.NewLogger(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC))

	catalog := catalogservice.NewService(catalogservice.ServiceParam{
		DB: db, Log: log, GenID: node,
	})
	directory := directoryservice.NewService(directoryservice.ServiceParam{
		DB: db, Log: log, GenID: node,
	})

	f := &subscriptionFixture{
		db:    db,
		genID: node,
		service: NewService(ServiceParam{
			DB:        db,
			Log:       log,
			GenID:     node,
			Clock:     clk,
			Catalog:   catalog,
			Directory: directory,
		}),
	}

	f.reseller = directorydomain.Reseller{
		ID: node.Generate(), Name: "Acme Telco", Email: "ops@acme.test", Active: true,
	}
	require.NoError(t, db.Create(&f.reseller).Error)
	f.client = directorydomain.Client{
		ID: node.Generate(), ResellerID: f.reseller.ID, Name: "Corner Shop", Active: true,
	}
	require.NoError(t, db.Create(&f.client).Error)
	f.sms = catalogdomain.Service{
		ID: node.Generate(), Code: "sms-outbound", Name: "Outbound SMS",
		BasePrice: 25, BillingModel: catalogdomain.BillingPerMessage,
		Currency: "INR", Active: true,
	}
	require.NoError(t, db.Create(&f.sms).Error)
	f.plan = catalogdomain.Plan{
		ID: node.Generate(), ServiceID: f.sms.ID,
		Code: "sms-bulk", Name: "Bulk SMS", PricePerUnit: 20, Active: true,
	}
	require.NoError(t, db.Create(&f.plan).Error)

	return f
}

func TestAssignDefaults(t *testing.T) {
	f := newSubscriptionFixture(t)

	sub, err := f.service.Assign(context.Background(), domain.AssignRequest{
		ClientID:  f.client.ID.String(),
		ServiceID: f.sms.ID.String(),
	})
	require.NoError(t, err)

	assert.Equal(t, f.reseller.ID, sub.ResellerID)
	assert.Equal(t, domain.SubscriptionStatusActive, sub.Status)
	assert.Equal(t, domain.QuotaUnlimited, sub.QuotaMode)
	assert.Zero(t, sub.UsageLimit)
	assert.Equal(t, domain.ResetNever, sub.ResetPeriod)
	assert.Equal(t, "UTC", sub.Timezone)
	assert.Nil(t, sub.PlanID)
}

func TestAssignWithPlanAndQuota(t *testing.T) {
	f := newSubscriptionFixture(t)

	sub, err := f.service.Assign(context.Background(), domain.AssignRequest{
		ClientID:    f.client.ID.String(),
		ServiceID:   f.sms.ID.String(),
		PlanID:      f.plan.ID.String(),
		QuotaMode:   domain.QuotaLimited,
		UsageLimit:  5000,
		ResetPeriod: domain.ResetMonthly,
		Timezone:    "Asia/Kolkata",
	})
	require.NoError(t, err)

	require.NotNil(t, sub.PlanID)
	assert.Equal(t, f.plan.ID, *sub.PlanID)
	assert.Equal(t, domain.QuotaLimited, sub.QuotaMode)
	assert.Equal(t, int64(5000), sub.UsageLimit)
	assert.Equal(t, domain.ResetMonthly, sub.ResetPeriod)
	assert.Equal(t, "Asia/Kolkata", sub.Timezone)
}

func TestAssignValidation(t *testing.T) {
	f := newSubscriptionFixture(t)

	_, err := f.service.Assign(context.Background(), domain.AssignRequest{
		ClientID:   f.client.ID.String(),
		ServiceID:  f.sms.ID.String(),
		QuotaMode:  domain.QuotaLimited,
		UsageLimit: 0,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidQuota)

	_, err = f.service.Assign(context.Background(), domain.AssignRequest{
		ClientID:    f.client.ID.String(),
		ServiceID:   f.sms.ID.String(),
		ResetPeriod: "FORTNIGHTLY",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidResetPeriod)

	_, err = f.service.Assign(context.Background(), domain.AssignRequest{
		ClientID:  f.client.ID.String(),
		ServiceID: f.sms.ID.String(),
		Timezone:  "Mars/Olympus",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidTimezone)

	_, err = f.service.Assign(context.Background(), domain.AssignRequest{
		ClientID:  f.genID.Generate().String(),
		ServiceID: f.sms.ID.String(),
	})
	assert.ErrorIs(t, err, directorydomain.ErrClientNotFound)
}

func TestAssignRejectsForeignPlan(t *testing.T) {
	f := newSubscriptionFixture(t)
	other := catalogdomain.Service{
		ID: f.genID.Generate(), Code: "voice", Name: "Voice Minutes",
		BasePrice: 50, BillingModel: catalogdomain.BillingPerMinute,
		Currency: "INR", Active: true,
	}
	require.NoError(t, f.db.Create(&other).Error)

	_, err := f.service.Assign(context.Background(), domain.AssignRequest{
		ClientID:  f.client.ID.String(),
		ServiceID: other.ID.String(),
		PlanID:    f.plan.ID.String(),
	})
	assert.ErrorIs(t, err, catalogdomain.ErrUnknownPlan)
}

func TestAssignDuplicateUntilDeactivated(t *testing.T) {
	f := newSubscriptionFixture(t)
	req := domain.AssignRequest{
		ClientID:  f.client.ID.String(),
		ServiceID: f.sms.ID.String(),
	}

	first, err := f.service.Assign(context.Background(), req)
	require.NoError(t, err)

	_, err = f.service.Assign(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrDuplicateAssignment)

	require.NoError(t, f.service.Deactivate(context.Background(), first.ID))

	second, err := f.service.Assign(context.Background(), req)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestUpdateQuota(t *testing.T) {
	f := newSubscriptionFixture(t)
	sub, err := f.service.Assign(context.Background(), domain.AssignRequest{
		ClientID:  f.client.ID.String(),
		ServiceID: f.sms.ID.String(),
	})
	require.NoError(t, err)

	updated, err := f.service.UpdateQuota(context.Background(), sub.ID, domain.UpdateQuotaRequest{
		QuotaMode:  domain.QuotaLimited,
		UsageLimit: 1000,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.QuotaLimited, updated.QuotaMode)
	assert.Equal(t, int64(1000), updated.UsageLimit)

	// Leaving LIMITED zeroes the stored limit.
	updated, err = f.service.UpdateQuota(context.Background(), sub.ID, domain.UpdateQuotaRequest{
		QuotaMode:  domain.QuotaDisabled,
		UsageLimit: 1000,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.QuotaDisabled, updated.QuotaMode)
	assert.Zero(t, updated.UsageLimit)

	_, err = f.service.UpdateQuota(context.Background(), sub.ID, domain.UpdateQuotaRequest{
		QuotaMode:  domain.QuotaLimited,
		UsageLimit: -5,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidQuota)

	_, err = f.service.UpdateQuota(context.Background(), f.genID.Generate(), domain.UpdateQuotaRequest{
		QuotaMode: domain.QuotaUnlimited,
	})
	assert.ErrorIs(t, err, domain.ErrSubscriptionNotFound)
}

func TestDeactivateIsIdempotent(t *testing.T) {
	f := newSubscriptionFixture(t)
	sub, err := f.service.Assign(context.Background(), domain.AssignRequest{
		ClientID:  f.client.ID.String(),
		ServiceID: f.sms.ID.String(),
	})
	require.NoError(t, err)

	require.NoError(t, f.service.Deactivate(context.Background(), sub.ID))
	require.NoError(t, f.service.Deactivate(context.Background(), sub.ID))

	reloaded, err := f.service.Get(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusInactive, reloaded.Status)
}

func TestListActiveOnly(t *testing.T) {
	f := newSubscriptionFixture(t)
	first, err := f.service.Assign(context.Background(), domain.AssignRequest{
		ClientID:  f.client.ID.String(),
		ServiceID: f.sms.ID.String(),
	})
	require.NoError(t, err)
	require.NoError(t, f.service.Deactivate(context.Background(), first.ID))
	second, err := f.service.Assign(context.Background(), domain.AssignRequest{
		ClientID:  f.client.ID.String(),
		ServiceID: f.sms.ID.String(),
	})
	require.NoError(t, err)

	all, err := f.service.List(context.Background(), domain.ListSubscriptionRequest{
		ClientID: f.client.ID.String(),
	})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	active, err := f.service.List(context.Background(), domain.ListSubscriptionRequest{
		ClientID:   f.client.ID.String(),
		ActiveOnly: true,
	})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, second.ID, active[0].ID)
}
