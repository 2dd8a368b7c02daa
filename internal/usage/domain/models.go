// Package domain contains the append-only usage ledger models.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/revora/revora/internal/catalog/domain"
	"gorm.io/datatypes"
)

// UsageEvent is one committed consumption. Rows are never updated or
// deleted; corrections are compensating events.
//
// ResellerID, ClientID and the price fields are copied from the
// subscription and the pricing resolution at commit time so historical
// rows keep the price that was actually charged.
type UsageEvent struct {
	ID             snowflake.ID               `json:"id" gorm:"primaryKey"`
	SubscriptionID snowflake.ID               `json:"subscription_id" gorm:"not null;index:ix_usage_sub_recorded,priority:1;uniqueIndex:ux_usage_idempotency,priority:1"`
	ResellerID     snowflake.ID               `json:"reseller_id" gorm:"not null;index:ix_usage_reseller_recorded,priority:1"`
	ClientID       snowflake.ID               `json:"client_id" gorm:"not null;index"`
	ServiceID      snowflake.ID               `json:"service_id" gorm:"not null;index"`
	PlanID         *snowflake.ID              `json:"plan_id,omitempty" gorm:"index"`
	IdempotencyKey string                     `json:"idempotency_key" gorm:"type:text;not null;uniqueIndex:ux_usage_idempotency,priority:2"`
	Units          int64                      `json:"units" gorm:"not null"`
	UnitPrice      int64                      `json:"unit_price" gorm:"not null"`
	Amount         int64                      `json:"amount" gorm:"not null"`
	Currency       string                     `json:"currency" gorm:"type:text;not null;default:'INR'"`
	BillingModel   catalogdomain.BillingModel `json:"billing_model" gorm:"type:text;not null"`
	RecordedAt     time.Time                  `json:"recorded_at" gorm:"not null;index:ix_usage_sub_recorded,priority:2;index:ix_usage_reseller_recorded,priority:2"`
	Metadata       datatypes.JSONMap          `json:"metadata,omitempty" gorm:"type:jsonb"`
	CreatedAt      time.Time                  `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (UsageEvent) TableName() string { return "usage_events" }

// ServiceUsage is a windowed rollup of the ledger for one service at one
// unit price.
type ServiceUsage struct {
	ServiceID snowflake.ID `json:"service_id" gorm:"column:service_id"`
	UnitPrice int64        `json:"unit_price" gorm:"column:unit_price"`
	Currency  string       `json:"currency" gorm:"column:currency"`
	Units     int64        `json:"units" gorm:"column:units"`
	Amount    int64        `json:"amount" gorm:"column:amount"`
}
