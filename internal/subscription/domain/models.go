// Package domain contains persistence models for client service subscriptions.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// SubscriptionStatus represents lifecycle states for a subscription.
type SubscriptionStatus string

const (
	SubscriptionStatusActive   SubscriptionStatus = "ACTIVE"
	SubscriptionStatusInactive SubscriptionStatus = "INACTIVE"
)

// QuotaMode disambiguates the three meanings a bare zero limit used to carry.
type QuotaMode string

const (
	QuotaUnlimited QuotaMode = "UNLIMITED"
	QuotaLimited   QuotaMode = "LIMITED"
	QuotaDisabled  QuotaMode = "DISABLED"
)

// Valid reports whether the quota mode is a known variant.
func (m QuotaMode) Valid() bool {
	switch m {
	case QuotaUnlimited, QuotaLimited, QuotaDisabled:
		return true
	}
	return false
}

// ResetPeriod is the cadence on which the consumption counter returns to zero.
type ResetPeriod string

const (
	ResetDaily   ResetPeriod = "DAILY"
	ResetWeekly  ResetPeriod = "WEEKLY"
	ResetMonthly ResetPeriod = "MONTHLY"
	ResetNever   ResetPeriod = "NEVER"
)

// Valid reports whether the reset period is a known variant.
func (p ResetPeriod) Valid() bool {
	switch p {
	case ResetDaily, ResetWeekly, ResetMonthly, ResetNever:
		return true
	}
	return false
}

// Subscription is a client's enrollment in a priced service.
//
// UsageConsumed is a cache derived from the usage_events ledger. It is only
// mutated by the ledger commit path and by period resets, both inside the
// same transaction as their ledger-side effect.
type Subscription struct {
	ID            snowflake.ID       `json:"id" gorm:"primaryKey"`
	ResellerID    snowflake.ID       `json:"reseller_id" gorm:"not null;index"`
	ClientID      snowflake.ID       `json:"client_id" gorm:"not null;index;uniqueIndex:ux_subscription_active,where:status = 'ACTIVE'"`
	ServiceID     snowflake.ID       `json:"service_id" gorm:"not null;index;uniqueIndex:ux_subscription_active,where:status = 'ACTIVE'"`
	PlanID        *snowflake.ID      `json:"plan_id,omitempty" gorm:"index"`
	Status        SubscriptionStatus `json:"status" gorm:"type:text;not null;default:'ACTIVE'"`
	QuotaMode     QuotaMode          `json:"quota_mode" gorm:"type:text;not null;default:'UNLIMITED'"`
	UsageLimit    int64              `json:"usage_limit" gorm:"not null;default:0"`
	UsageConsumed int64              `json:"usage_consumed" gorm:"not null;default:0"`
	ResetPeriod   ResetPeriod        `json:"reset_period" gorm:"type:text;not null;default:'NEVER'"`
	LastResetAt   time.Time          `json:"last_reset_at" gorm:"not null"`
	Timezone      string             `json:"timezone" gorm:"type:text;not null;default:'UTC'"`
	ExpiresAt     *time.Time         `json:"expires_at,omitempty"`
	Metadata      datatypes.JSONMap  `json:"metadata,omitempty" gorm:"type:jsonb"`
	CreatedAt     time.Time          `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time          `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }

// Consumable reports whether new usage may be recorded at the given instant.
func (s Subscription) Consumable(now time.Time) bool {
	if s.Status != SubscriptionStatusActive {
		return false
	}
	if s.QuotaMode == QuotaDisabled {
		return false
	}
	if s.ExpiresAt != nil && !now.Before(*s.ExpiresAt) {
		return false
	}
	return true
}

// Location resolves the subscription's configured zone, defaulting to UTC.
func (s Subscription) Location() *time.Location {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil || loc == nil {
		return time.UTC
	}
	return loc
}
