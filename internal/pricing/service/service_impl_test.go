package service

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	catalogdomain "github.com/revora/revora/internal/catalog/domain"
	catalogservice "github.com/revora/revora/internal/catalog/service"
	pricingdomain "github.com/revora/revora/internal/pricing/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type pricingFixture struct {
	db      *gorm.DB
	genID   *snowflake.Node
	service pricingdomain.Service

	resellerID snowflake.ID
	sms        catalogdomain.Service
	plan       catalogdomain.Plan
}

func newPricingFixture(t *testing.T) *pricingFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&catalogdomain.Service{},
		&catalogdomain.Plan{},
		&pricingdomain.PricingRule{},
	))

	log := zaptest.NewLogger(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	catalog := catalogservice.NewService(catalogservice.ServiceParam{
		DB: db, Log: log, GenID: node,
	})

	f := &pricingFixture{
		db:    db,
		genID: node,
		service: NewService(ServiceParam{
			DB: db, Log: log, GenID: node, Catalog: catalog,
		}),
		resellerID: node.Generate(),
	}

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

func TestResolveForWithoutRule(t *testing.T) {
	f := newPricingFixture(t)

	quote, err := f.service.ResolveFor(context.Background(), f.resellerID, f.sms.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(25), quote.UnitPrice)
	assert.Equal(t, catalogdomain.BillingPerMessage, quote.BillingModel)
	assert.Equal(t, "INR", quote.Currency)

	quote, err = f.service.ResolveFor(context.Background(), f.resellerID, f.sms.ID, &f.plan.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(20), quote.UnitPrice)
}

func TestSetRuleReplacesActiveRule(t *testing.T) {
	f := newPricingFixture(t)

	first, err := f.service.SetRule(context.Background(), pricingdomain.SetRuleRequest{
		ResellerID:  f.resellerID.String(),
		ServiceID:   f.sms.ID.String(),
		Kind:        pricingdomain.RuleCustomPrice,
		CustomPrice: 40,
	})
	require.NoError(t, err)
	assert.True(t, first.Active)

	quote, err := f.service.ResolveFor(context.Background(), f.resellerID, f.sms.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(40), quote.UnitPrice)

	// A new rule for the pair supersedes the old one.
	_, err = f.service.SetRule(context.Background(), pricingdomain.SetRuleRequest{
		ResellerID:    f.resellerID.String(),
		ServiceID:     f.sms.ID.String(),
		Kind:          pricingdomain.RuleMarkupPercent,
		MarkupPercent: 15,
	})
	require.NoError(t, err)

	quote, err = f.service.ResolveFor(context.Background(), f.resellerID, f.sms.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(29), quote.UnitPrice)

	var active int64
	require.NoError(t, f.db.Model(&pricingdomain.PricingRule{}).
		Where("active").Count(&active).Error)
	assert.Equal(t, int64(1), active)
}

func TestSetRuleValidation(t *testing.T) {
	f := newPricingFixture(t)

	_, err := f.service.SetRule(context.Background(), pricingdomain.SetRuleRequest{
		ResellerID: f.resellerID.String(),
		ServiceID:  f.sms.ID.String(),
		Kind:       "SURGE",
	})
	assert.ErrorIs(t, err, pricingdomain.ErrInvalidRuleKind)

	_, err = f.service.SetRule(context.Background(), pricingdomain.SetRuleRequest{
		ResellerID:  f.resellerID.String(),
		ServiceID:   f.sms.ID.String(),
		Kind:        pricingdomain.RuleCustomPrice,
		CustomPrice: -1,
	})
	assert.ErrorIs(t, err, pricingdomain.ErrInvalidPrice)

	_, err = f.service.SetRule(context.Background(), pricingdomain.SetRuleRequest{
		ResellerID: "bad",
		ServiceID:  f.sms.ID.String(),
		Kind:       pricingdomain.RuleCustomPrice,
	})
	assert.ErrorIs(t, err, pricingdomain.ErrInvalidReference)

	_, err = f.service.SetRule(context.Background(), pricingdomain.SetRuleRequest{
		ResellerID: f.resellerID.String(),
		ServiceID:  f.genID.Generate().String(),
		Kind:       pricingdomain.RuleCustomPrice,
	})
	assert.ErrorIs(t, err, catalogdomain.ErrUnknownService)
}

func TestClearRuleRestoresBasePrice(t *testing.T) {
	f := newPricingFixture(t)

	_, err := f.service.SetRule(context.Background(), pricingdomain.SetRuleRequest{
		ResellerID:  f.resellerID.String(),
		ServiceID:   f.sms.ID.String(),
		Kind:        pricingdomain.RuleCustomPrice,
		CustomPrice: 40,
	})
	require.NoError(t, err)

	require.NoError(t, f.service.ClearRule(context.Background(), f.resellerID, f.sms.ID))

	quote, err := f.service.ResolveFor(context.Background(), f.resellerID, f.sms.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(25), quote.UnitPrice)

	// Clearing twice is harmless.
	require.NoError(t, f.service.ClearRule(context.Background(), f.resellerID, f.sms.ID))
}
