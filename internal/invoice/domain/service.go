package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type GenerateRequest struct {
	ClientID    string `json:"client_id"`
	PeriodStart string `json:"period_start"`
	PeriodEnd   string `json:"period_end"`
}

type ListInvoiceRequest struct {
	ResellerID string `form:"reseller_id"`
	ClientID   string `form:"client_id"`
	Status     string `form:"status"`
}

type Service interface {
	Generate(context.Context, GenerateRequest) (*Invoice, error)
	Get(ctx context.Context, id snowflake.ID) (*Invoice, error)
	List(context.Context, ListInvoiceRequest) ([]Invoice, error)
	Transition(ctx context.Context, id snowflake.ID, to InvoiceStatus) (*Invoice, error)
	RenderPDF(ctx context.Context, id snowflake.ID) ([]byte, error)
	SweepOverdue(ctx context.Context, batchSize int) (int, error)
}

var (
	ErrInvoiceNotFound   = errors.New("invoice_not_found")
	ErrDuplicateInvoice  = errors.New("duplicate_invoice")
	ErrInvalidTransition = errors.New("invalid_transition")
	ErrInvalidPeriod     = errors.New("invalid_period")
	ErrNoUsage           = errors.New("no_usage_in_period")
)
