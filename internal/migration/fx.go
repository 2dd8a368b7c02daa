package migration

import (
	catalogdomain "github.com/revora/revora/internal/catalog/domain"
	"github.com/revora/revora/internal/config"
	directorydomain "github.com/revora/revora/internal/directory/domain"
	eventsdomain "github.com/revora/revora/internal/events/domain"
	invoicedomain "github.com/revora/revora/internal/invoice/domain"
	pricingdomain "github.com/revora/revora/internal/pricing/domain"
	subscriptiondomain "github.com/revora/revora/internal/subscription/domain"
	usagedomain "github.com/revora/revora/internal/usage/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		// Versioned SQL migrations are postgres-only. The other dialects
		// get gorm's schema sync, which covers local and test setups.
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			return RunMigrations(sqlDB)
		}
		return conn.AutoMigrate(
			&catalogdomain.Service{},
			&catalogdomain.Plan{},
			&directorydomain.Reseller{},
			&directorydomain.Client{},
			&pricingdomain.PricingRule{},
			&subscriptiondomain.Subscription{},
			&usagedomain.UsageEvent{},
			&invoicedomain.Invoice{},
			&invoicedomain.InvoiceLineItem{},
			&invoicedomain.InvoiceSequence{},
			&eventsdomain.OutboxEvent{},
		)
	}),
)
