// Package seed bootstraps a demo dataset for local development: one
// reseller with one client, a small service catalog and a limited
// subscription ready to consume against.
package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/revora/revora/internal/catalog/domain"
	"github.com/revora/revora/internal/config"
	directorydomain "github.com/revora/revora/internal/directory/domain"
	pricingdomain "github.com/revora/revora/internal/pricing/domain"
	subdomain "github.com/revora/revora/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	demoServiceCode   = "sms-outbound"
	demoPlanCode      = "sms-bulk"
	demoResellerEmail = "demo@revora.dev"
	demoClientEmail   = "client@revora.dev"
)

var Module = fx.Module("seed",
	fx.Invoke(runIfEnabled),
)

func runIfEnabled(cfg config.Config, db *gorm.DB, log *zap.Logger) error {
	if !cfg.SeedDemo {
		return nil
	}
	if err := EnsureDemoData(db); err != nil {
		return err
	}
	log.Info("demo data seeded")
	return nil
}

// EnsureDemoData is idempotent: existing rows are left alone, missing
// ones are created.
func EnsureDemoData(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		svc, err := ensureService(ctx, tx, node)
		if err != nil {
			return err
		}
		plan, err := ensurePlan(ctx, tx, node, svc.ID)
		if err != nil {
			return err
		}
		reseller, err := ensureReseller(ctx, tx, node)
		if err != nil {
			return err
		}
		client, err := ensureClient(ctx, tx, node, reseller.ID)
		if err != nil {
			return err
		}
		if err := ensurePricingRule(ctx, tx, node, reseller.ID, svc.ID); err != nil {
			return err
		}
		return ensureSubscription(ctx, tx, node, reseller.ID, client.ID, svc.ID, plan.ID)
	})
}

func ensureService(ctx context.Context, tx *gorm.DB, node *snowflake.Node) (catalogdomain.Service, error) {
	var svc catalogdomain.Service
	err := tx.WithContext(ctx).Where("code = ?", demoServiceCode).First(&svc).Error
	if err == nil {
		return svc, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return svc, err
	}

	now := time.Now().UTC()
	svc = catalogdomain.Service{
		ID:           node.Generate(),
		Code:         demoServiceCode,
		Name:         "Outbound SMS",
		Description:  "Per-message outbound SMS delivery",
		BasePrice:    25,
		BillingModel: catalogdomain.BillingPerMessage,
		Currency:     "INR",
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	return svc, tx.WithContext(ctx).Create(&svc).Error
}

func ensurePlan(ctx context.Context, tx *gorm.DB, node *snowflake.Node, serviceID snowflake.ID) (catalogdomain.Plan, error) {
	var plan catalogdomain.Plan
	err := tx.WithContext(ctx).
		Where("service_id = ? AND code = ?", serviceID, demoPlanCode).
		First(&plan).Error
	if err == nil {
		return plan, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return plan, err
	}

	now := time.Now().UTC()
	plan = catalogdomain.Plan{
		ID:           node.Generate(),
		ServiceID:    serviceID,
		Code:         demoPlanCode,
		Name:         "Bulk SMS",
		PricePerUnit: 20,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	return plan, tx.WithContext(ctx).Create(&plan).Error
}

func ensureReseller(ctx context.Context, tx *gorm.DB, node *snowflake.Node) (directorydomain.Reseller, error) {
	var reseller directorydomain.Reseller
	err := tx.WithContext(ctx).Where("email = ?", demoResellerEmail).First(&reseller).Error
	if err == nil {
		return reseller, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return reseller, err
	}

	now := time.Now().UTC()
	reseller = directorydomain.Reseller{
		ID:             node.Generate(),
		Name:           "Demo Reseller",
		Email:          demoResellerEmail,
		CommissionRate: 20,
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	return reseller, tx.WithContext(ctx).Create(&reseller).Error
}

func ensureClient(ctx context.Context, tx *gorm.DB, node *snowflake.Node, resellerID snowflake.ID) (directorydomain.Client, error) {
	var client directorydomain.Client
	err := tx.WithContext(ctx).
		Where("reseller_id = ? AND email = ?", resellerID, demoClientEmail).
		First(&client).Error
	if err == nil {
		return client, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return client, err
	}

	now := time.Now().UTC()
	client = directorydomain.Client{
		ID:         node.Generate(),
		ResellerID: resellerID,
		Name:       "Demo Client",
		Email:      demoClientEmail,
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	return client, tx.WithContext(ctx).Create(&client).Error
}

func ensurePricingRule(ctx context.Context, tx *gorm.DB, node *snowflake.Node, resellerID, serviceID snowflake.ID) error {
	var rule pricingdomain.PricingRule
	err := tx.WithContext(ctx).
		Where("reseller_id = ? AND service_id = ? AND active", resellerID, serviceID).
		First(&rule).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	now := time.Now().UTC()
	rule = pricingdomain.PricingRule{
		ID:            node.Generate(),
		ResellerID:    resellerID,
		ServiceID:     serviceID,
		Kind:          pricingdomain.RuleMarkupPercent,
		MarkupPercent: 15,
		Active:        true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	return tx.WithContext(ctx).Create(&rule).Error
}

func ensureSubscription(ctx context.Context, tx *gorm.DB, node *snowflake.Node, resellerID, clientID, serviceID, planID snowflake.ID) error {
	var sub subdomain.Subscription
	err := tx.WithContext(ctx).
		Where("client_id = ? AND service_id = ? AND status = ?",
			clientID, serviceID, subdomain.SubscriptionStatusActive).
		First(&sub).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	now := time.Now().UTC()
	sub = subdomain.Subscription{
		ID:          node.Generate(),
		ResellerID:  resellerID,
		ClientID:    clientID,
		ServiceID:   serviceID,
		PlanID:      &planID,
		Status:      subdomain.SubscriptionStatusActive,
		QuotaMode:   subdomain.QuotaLimited,
		UsageLimit:  10000,
		ResetPeriod: subdomain.ResetMonthly,
		LastResetAt: now,
		Timezone:    "Asia/Kolkata",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return tx.WithContext(ctx).Create(&sub).Error
}
