// Package tax computes invoice tax from the billing configuration.
package tax

import (
	"github.com/revora/revora/internal/config"
	"go.uber.org/fx"
)

// Policy turns an invoice subtotal into a tax amount in minor units.
type Policy interface {
	Apply(subtotal int64) int64
}

// zeroPolicy charges no tax.
type zeroPolicy struct{}

func (zeroPolicy) Apply(int64) int64 { return 0 }

// flatRatePolicy applies a whole-percent rate with half-up rounding.
type flatRatePolicy struct {
	ratePercent int64
}

func (p flatRatePolicy) Apply(subtotal int64) int64 {
	if subtotal <= 0 || p.ratePercent <= 0 {
		return 0
	}
	return (subtotal*p.ratePercent + 50) / 100
}

// ForRate returns the policy matching a configured whole-percent rate.
func ForRate(ratePercent int64) Policy {
	if ratePercent <= 0 {
		return zeroPolicy{}
	}
	return flatRatePolicy{ratePercent: ratePercent}
}

// Resolver rereads the hot-reloadable billing config on every invoice so a
// rate change applies to the next generation without a restart.
type Resolver struct {
	billing *config.BillingConfigHolder
}

func NewResolver(billing *config.BillingConfigHolder) *Resolver {
	return &Resolver{billing: billing}
}

// Current returns the policy for the configured rate.
func (r *Resolver) Current() Policy {
	if r == nil || r.billing == nil {
		return zeroPolicy{}
	}
	return ForRate(r.billing.Get().TaxRatePercent)
}

var Module = fx.Module("tax.policy",
	fx.Provide(NewResolver),
)
