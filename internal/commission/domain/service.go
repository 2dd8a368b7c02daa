// Package domain defines commission computation over paid invoices.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Commission is the reseller's cut of one paid invoice. The base is the
// invoice's tax-inclusive total.
type Commission struct {
	InvoiceID   snowflake.ID `json:"invoice_id"`
	ResellerID  snowflake.ID `json:"reseller_id"`
	RatePercent int64        `json:"rate_percent"`
	Base        int64        `json:"base"`
	Amount      int64        `json:"amount"`
	Currency    string       `json:"currency"`
}

// Report aggregates commissions over invoices paid inside a window.
type Report struct {
	ResellerID   snowflake.ID `json:"reseller_id"`
	From         time.Time    `json:"from"`
	To           time.Time    `json:"to"`
	InvoiceCount int64        `json:"invoice_count"`
	Base         int64        `json:"base"`
	Amount       int64        `json:"amount"`
	Currency     string       `json:"currency"`
}

type Service interface {
	CommissionFor(ctx context.Context, resellerID, invoiceID snowflake.ID) (*Commission, error)
	WindowReport(ctx context.Context, resellerID snowflake.ID, from, to time.Time) (*Report, error)
}

var (
	ErrNotEligible   = errors.New("invoice_not_eligible")
	ErrInvalidWindow = errors.New("invalid_window")
)

// Compute applies a whole-percent rate to a minor-unit base, rounding half
// up.
func Compute(base, ratePercent int64) int64 {
	if base <= 0 || ratePercent <= 0 {
		return 0
	}
	return (base*ratePercent + 50) / 100
}
