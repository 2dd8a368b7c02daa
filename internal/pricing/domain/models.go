// Package domain contains pricing rules and the price resolution contract.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// RuleKind selects the resolution path for a (reseller, service) pair.
type RuleKind string

const (
	RuleCustomPrice   RuleKind = "CUSTOM_PRICE"
	RuleMarkupPercent RuleKind = "MARKUP_PERCENT"
)

// PricingRule overrides a service's price for one reseller. At most one
// rule is active per (reseller, service) pair; absence of a rule means the
// base price applies.
type PricingRule struct {
	ID            snowflake.ID `json:"id" gorm:"primaryKey"`
	ResellerID    snowflake.ID `json:"reseller_id" gorm:"not null;index;uniqueIndex:ux_pricing_rule_active,priority:1,where:active"`
	ServiceID     snowflake.ID `json:"service_id" gorm:"not null;index;uniqueIndex:ux_pricing_rule_active,priority:2,where:active"`
	Kind          RuleKind     `json:"kind" gorm:"type:text;not null"`
	CustomPrice   int64        `json:"custom_price" gorm:"not null;default:0"`
	MarkupPercent int64        `json:"markup_percent" gorm:"not null;default:0"`
	Active        bool         `json:"active" gorm:"not null;default:true"`
	CreatedAt     time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (PricingRule) TableName() string { return "pricing_rules" }
