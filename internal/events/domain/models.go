// Package domain contains the outbox event model.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// OutboxEvent captures engine events for downstream delivery. Rows are
// written in the same transaction as the state change they describe.
type OutboxEvent struct {
	ID          snowflake.ID      `json:"id" gorm:"primaryKey"`
	ResellerID  snowflake.ID      `json:"reseller_id" gorm:"not null;index;uniqueIndex:ux_outbox_dedupe,priority:1"`
	EventType   string            `json:"event_type" gorm:"type:text;not null;index"`
	Payload     datatypes.JSONMap `json:"payload" gorm:"type:jsonb;not null"`
	DedupeKey   *string           `json:"dedupe_key,omitempty" gorm:"type:text;uniqueIndex:ux_outbox_dedupe,priority:2"`
	Published   bool              `json:"published" gorm:"not null;default:false;index"`
	PublishedAt *time.Time        `json:"published_at,omitempty"`
	CreatedAt   time.Time         `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (OutboxEvent) TableName() string { return "outbox_events" }
