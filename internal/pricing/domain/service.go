package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/revora/revora/internal/catalog/domain"
)

// Quote is a resolved effective price for one unit of a service.
type Quote struct {
	UnitPrice    int64                      `json:"unit_price"`
	BillingModel catalogdomain.BillingModel `json:"billing_model"`
	Currency     string                     `json:"currency"`
}

type SetRuleRequest struct {
	ResellerID    string   `json:"reseller_id"`
	ServiceID     string   `json:"service_id"`
	Kind          RuleKind `json:"kind"`
	CustomPrice   int64    `json:"custom_price"`
	MarkupPercent int64    `json:"markup_percent"`
}

type Service interface {
	// ResolveFor loads the service, optional plan and reseller rule, and
	// returns the effective unit price. Read-only.
	ResolveFor(ctx context.Context, resellerID, serviceID snowflake.ID, planID *snowflake.ID) (Quote, error)

	// SetRule replaces any active rule for the (reseller, service) pair.
	SetRule(context.Context, SetRuleRequest) (*PricingRule, error)

	// ClearRule deactivates the active rule so the base price applies again.
	ClearRule(ctx context.Context, resellerID, serviceID snowflake.ID) error
}

var (
	ErrInvalidRuleKind  = errors.New("invalid_rule_kind")
	ErrInvalidMarkup    = errors.New("invalid_markup")
	ErrInvalidPrice     = errors.New("invalid_price")
	ErrInvalidReference = errors.New("invalid_reference")
)

// Resolve picks the effective unit price. First match wins: custom price,
// markup over the base, then the base itself. The base is the plan's
// price_per_unit when a plan is attached, else the service's base_price.
func Resolve(svc catalogdomain.Service, plan *catalogdomain.Plan, rule *PricingRule) Quote {
	base := svc.BasePrice
	if plan != nil {
		base = plan.PricePerUnit
	}

	price := base
	if rule != nil && rule.Active {
		switch rule.Kind {
		case RuleCustomPrice:
			price = rule.CustomPrice
		case RuleMarkupPercent:
			price = applyMarkup(base, rule.MarkupPercent)
		}
	}

	return Quote{
		UnitPrice:    price,
		BillingModel: svc.BillingModel,
		Currency:     svc.Currency,
	}
}

// applyMarkup computes base × (1 + pct/100) in minor units, rounding half-up.
func applyMarkup(base, pct int64) int64 {
	return (base*(100+pct) + 50) / 100
}
