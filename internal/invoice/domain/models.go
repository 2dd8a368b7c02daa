// Package domain contains invoice models and the status machine.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "DRAFT"
	InvoiceStatusSent      InvoiceStatus = "SENT"
	InvoiceStatusPaid      InvoiceStatus = "PAID"
	InvoiceStatusOverdue   InvoiceStatus = "OVERDUE"
	InvoiceStatusCancelled InvoiceStatus = "CANCELLED"
)

// transitions is the full status machine. PAID and CANCELLED are terminal.
var transitions = map[InvoiceStatus][]InvoiceStatus{
	InvoiceStatusDraft:   {InvoiceStatusSent, InvoiceStatusCancelled},
	InvoiceStatusSent:    {InvoiceStatusPaid, InvoiceStatusOverdue, InvoiceStatusCancelled},
	InvoiceStatusOverdue: {InvoiceStatusPaid},
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to InvoiceStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Invoice is a priced statement of one client's usage over one period.
// Totals are minor units; Total is always Subtotal plus Tax exactly.
//
// One non-CANCELLED invoice may exist per client and period; cancelling
// frees the slot for regeneration.
type Invoice struct {
	ID             snowflake.ID      `json:"id" gorm:"primaryKey"`
	Number         string            `json:"number" gorm:"type:text;not null;uniqueIndex:ux_invoice_number"`
	ResellerID     snowflake.ID      `json:"reseller_id" gorm:"not null;index"`
	ClientID       snowflake.ID      `json:"client_id" gorm:"not null;index;uniqueIndex:ux_invoice_period,where:status <> 'CANCELLED'"`
	PeriodStart    time.Time         `json:"period_start" gorm:"not null;uniqueIndex:ux_invoice_period,where:status <> 'CANCELLED'"`
	PeriodEnd      time.Time         `json:"period_end" gorm:"not null;uniqueIndex:ux_invoice_period,where:status <> 'CANCELLED'"`
	Status         InvoiceStatus     `json:"status" gorm:"type:text;not null;default:'DRAFT';index"`
	Currency       string            `json:"currency" gorm:"type:text;not null;default:'INR'"`
	Subtotal       int64             `json:"subtotal" gorm:"not null"`
	Tax            int64             `json:"tax" gorm:"not null"`
	Total          int64             `json:"total" gorm:"not null"`
	TaxRatePercent int64             `json:"tax_rate_percent" gorm:"not null;default:0"`
	IssuedAt       time.Time         `json:"issued_at" gorm:"not null"`
	DueAt          time.Time         `json:"due_at" gorm:"not null;index"`
	PaidAt         *time.Time        `json:"paid_at,omitempty"`
	Metadata       datatypes.JSONMap `json:"metadata,omitempty" gorm:"type:jsonb"`
	CreatedAt      time.Time         `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt      time.Time         `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`

	LineItems []InvoiceLineItem `json:"line_items,omitempty" gorm:"foreignKey:InvoiceID"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// InvoiceLineItem is one (service, unit price) rollup on an invoice.
// Amount equals Units times UnitPrice with no rounding.
type InvoiceLineItem struct {
	ID          snowflake.ID `json:"id" gorm:"primaryKey"`
	InvoiceID   snowflake.ID `json:"invoice_id" gorm:"not null;index"`
	ServiceID   snowflake.ID `json:"service_id" gorm:"not null"`
	ServiceName string       `json:"service_name" gorm:"type:text;not null"`
	Units       int64        `json:"units" gorm:"not null"`
	UnitPrice   int64        `json:"unit_price" gorm:"not null"`
	Amount      int64        `json:"amount" gorm:"not null"`
	CreatedAt   time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (InvoiceLineItem) TableName() string { return "invoice_line_items" }

// InvoiceSequence allocates per-reseller invoice numbers.
type InvoiceSequence struct {
	ResellerID snowflake.ID `json:"reseller_id" gorm:"primaryKey"`
	NextValue  int64        `json:"next_value" gorm:"not null;default:1"`
	UpdatedAt  time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (InvoiceSequence) TableName() string { return "invoice_sequences" }
