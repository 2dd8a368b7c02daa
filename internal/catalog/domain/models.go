// Package domain contains persistence models for the service catalog.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// BillingModel describes how a service's consumption is priced.
type BillingModel string

const (
	BillingPerMinute  BillingModel = "PER_MINUTE"
	BillingPerCall    BillingModel = "PER_CALL"
	BillingPerMessage BillingModel = "PER_MESSAGE"
	BillingMonthly    BillingModel = "MONTHLY"
)

// Valid reports whether the billing model is a known variant.
func (m BillingModel) Valid() bool {
	switch m {
	case BillingPerMinute, BillingPerCall, BillingPerMessage, BillingMonthly:
		return true
	}
	return false
}

// Service is a billable offering resellers assign to their clients.
// BasePrice is in minor currency units.
type Service struct {
	ID           snowflake.ID      `json:"id" gorm:"primaryKey"`
	Code         string            `json:"code" gorm:"type:text;not null;uniqueIndex"`
	Name         string            `json:"name" gorm:"type:text;not null"`
	Description  string            `json:"description,omitempty" gorm:"type:text"`
	BasePrice    int64             `json:"base_price" gorm:"not null"`
	BillingModel BillingModel      `json:"billing_model" gorm:"type:text;not null"`
	Currency     string            `json:"currency" gorm:"type:text;not null;default:'INR'"`
	Active       bool              `json:"active" gorm:"not null;default:true"`
	Metadata     datatypes.JSONMap `json:"metadata,omitempty" gorm:"type:jsonb"`
	CreatedAt    time.Time         `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt    time.Time         `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Service) TableName() string { return "services" }

// Plan overrides a service's unit price for subscriptions attached to it.
type Plan struct {
	ID           snowflake.ID `json:"id" gorm:"primaryKey"`
	ServiceID    snowflake.ID `json:"service_id" gorm:"not null;index"`
	Code         string       `json:"code" gorm:"type:text;not null"`
	Name         string       `json:"name" gorm:"type:text;not null"`
	PricePerUnit int64        `json:"price_per_unit" gorm:"not null"`
	Active       bool         `json:"active" gorm:"not null;default:true"`
	CreatedAt    time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt    time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Plan) TableName() string { return "plans" }
