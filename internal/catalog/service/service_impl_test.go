package service

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	catalogdomain "github.com/revora/revora/internal/catalog/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

func newCatalogFixture(t *testing.T) (catalogdomain.Catalog, *snowflake.Node) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&catalogdomain.Service{}, &catalogdomain.Plan{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return NewService(ServiceParam{
		DB: db, Log: zaptest.NewLogger(t), GenID: node,
	}), node
}

func TestCreateServiceSlugsCode(t *testing.T) {
	catalog, _ := newCatalogFixture(t)

	svc, err := catalog.CreateService(context.Background(), catalogdomain.CreateServiceRequest{
		Name:         "Outbound SMS",
		BasePrice:    25,
		BillingModel: catalogdomain.BillingPerMessage,
		Currency:     "inr",
	})
	require.NoError(t, err)

	assert.Equal(t, "outbound-sms", svc.Code)
	assert.Equal(t, "INR", svc.Currency)
	assert.True(t, svc.Active)

	byCode, err := catalog.GetServiceByCode(context.Background(), "outbound-sms")
	require.NoError(t, err)
	assert.Equal(t, svc.ID, byCode.ID)

	// Same name slugs to the same code.
	_, err = catalog.CreateService(context.Background(), catalogdomain.CreateServiceRequest{
		Name:         "Outbound SMS",
		BasePrice:    30,
		BillingModel: catalogdomain.BillingPerMessage,
	})
	assert.ErrorIs(t, err, catalogdomain.ErrDuplicateCode)
}

func TestCreateServiceValidation(t *testing.T) {
	catalog, _ := newCatalogFixture(t)

	_, err := catalog.CreateService(context.Background(), catalogdomain.CreateServiceRequest{
		Name:         "Voice",
		BasePrice:    -1,
		BillingModel: catalogdomain.BillingPerMinute,
	})
	assert.ErrorIs(t, err, catalogdomain.ErrInvalidBasePrice)

	_, err = catalog.CreateService(context.Background(), catalogdomain.CreateServiceRequest{
		Name:         "Voice",
		BasePrice:    50,
		BillingModel: "PER_SYLLABLE",
	})
	assert.ErrorIs(t, err, catalogdomain.ErrInvalidBillingModel)
}

func TestCreatePlanRequiresService(t *testing.T) {
	catalog, node := newCatalogFixture(t)

	svc, err := catalog.CreateService(context.Background(), catalogdomain.CreateServiceRequest{
		Name:         "Outbound SMS",
		BasePrice:    25,
		BillingModel: catalogdomain.BillingPerMessage,
	})
	require.NoError(t, err)

	plan, err := catalog.CreatePlan(context.Background(), catalogdomain.CreatePlanRequest{
		ServiceID:    svc.ID.String(),
		Code:         "sms-bulk",
		Name:         "Bulk SMS",
		PricePerUnit: 20,
	})
	require.NoError(t, err)
	assert.Equal(t, svc.ID, plan.ServiceID)

	fetched, err := catalog.GetPlan(context.Background(), plan.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(20), fetched.PricePerUnit)

	_, err = catalog.CreatePlan(context.Background(), catalogdomain.CreatePlanRequest{
		ServiceID:    node.Generate().String(),
		Code:         "orphan",
		Name:         "Orphan",
		PricePerUnit: 10,
	})
	assert.ErrorIs(t, err, catalogdomain.ErrUnknownService)
}

func TestListServicesActiveOnly(t *testing.T) {
	catalog, _ := newCatalogFixture(t)

	for _, name := range []string{"Outbound SMS", "Voice Minutes"} {
		_, err := catalog.CreateService(context.Background(), catalogdomain.CreateServiceRequest{
			Name:         name,
			BasePrice:    25,
			BillingModel: catalogdomain.BillingPerMessage,
		})
		require.NoError(t, err)
	}

	all, err := catalog.ListServices(context.Background(), catalogdomain.ListServiceRequest{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	active, err := catalog.ListServices(context.Background(), catalogdomain.ListServiceRequest{ActiveOnly: true})
	require.NoError(t, err)
	assert.Len(t, active, 2)
}
