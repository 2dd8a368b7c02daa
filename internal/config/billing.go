package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// BillingConfig holds the operator-tunable billing knobs. It is loaded from
// billing.yml and hot-reloaded, so tax and grace changes apply without a
// restart.
type BillingConfig struct {
	// TaxRatePercent is the flat tax rate applied to invoice subtotals.
	// Zero disables tax entirely.
	TaxRatePercent int64 `mapstructure:"taxRatePercent"`

	// NearLimitPercent is the consumed/limit ratio, in percent, at which a
	// quota.near_limit event is published.
	NearLimitPercent int64 `mapstructure:"nearLimitPercent"`

	// OverdueGraceDays is how long past due_at an invoice stays SENT before
	// the sweep marks it OVERDUE.
	OverdueGraceDays int `mapstructure:"overdueGraceDays"`

	// PaymentTermDays sets due_at relative to invoice_date.
	PaymentTermDays int `mapstructure:"paymentTermDays"`
}

func DefaultBillingConfig() BillingConfig {
	return BillingConfig{
		TaxRatePercent:   0,
		NearLimitPercent: 80,
		OverdueGraceDays: 3,
		PaymentTermDays:  14,
	}
}

type BillingConfigHolder struct {
	current atomic.Value // holds BillingConfig
}

func NewBillingConfigHolder() (*BillingConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("billing")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/revora/config") // Volume-mounted config
	v.AddConfigPath("/etc/revora")            // System config
	v.AddConfigPath(".")                      // Current directory (dev mode)

	v.SetEnvPrefix("REVORA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultBillingConfig()
	v.SetDefault("billing.taxRatePercent", defaults.TaxRatePercent)
	v.SetDefault("billing.nearLimitPercent", defaults.NearLimitPercent)
	v.SetDefault("billing.overdueGraceDays", defaults.OverdueGraceDays)
	v.SetDefault("billing.paymentTermDays", defaults.PaymentTermDays)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg BillingConfig
	if err := v.UnmarshalKey("billing", &cfg); err != nil {
		return nil, err
	}
	if err := validateBillingConfig(cfg); err != nil {
		return nil, err
	}

	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(_ fsnotify.Event) {
		var next BillingConfig
		if err := v.UnmarshalKey("billing", &next); err != nil {
			log.Printf("billing config reload failed: %v", err)
			return
		}
		if err := validateBillingConfig(next); err != nil {
			log.Printf("billing config reload rejected: %v", err)
			return
		}
		holder.current.Store(next)
	})

	return holder, nil
}

// NewStaticBillingConfig returns a holder pinned to cfg without file
// watching. Intended for tests.
func NewStaticBillingConfig(cfg BillingConfig) *BillingConfigHolder {
	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *BillingConfigHolder) Get() BillingConfig {
	if h == nil {
		return DefaultBillingConfig()
	}
	if cfg, ok := h.current.Load().(BillingConfig); ok {
		return cfg
	}
	return DefaultBillingConfig()
}

func validateBillingConfig(cfg BillingConfig) error {
	if cfg.TaxRatePercent < 0 || cfg.TaxRatePercent > 100 {
		return errors.New("taxRatePercent must be within [0, 100]")
	}
	if cfg.NearLimitPercent < 0 || cfg.NearLimitPercent > 100 {
		return errors.New("nearLimitPercent must be within [0, 100]")
	}
	if cfg.OverdueGraceDays < 0 {
		return errors.New("overdueGraceDays must not be negative")
	}
	if cfg.PaymentTermDays <= 0 {
		return errors.New("paymentTermDays must be positive")
	}
	return nil
}
