package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type CreateServiceRequest struct {
	Name         string         `json:"name"`
	Description  string         `json:"description"`
	BasePrice    int64          `json:"base_price"`
	BillingModel BillingModel   `json:"billing_model"`
	Currency     string         `json:"currency"`
	Metadata     map[string]any `json:"metadata"`
}

type CreatePlanRequest struct {
	ServiceID    string `json:"service_id"`
	Code         string `json:"code"`
	Name         string `json:"name"`
	PricePerUnit int64  `json:"price_per_unit"`
}

type ListServiceRequest struct {
	ActiveOnly bool `form:"active_only"`
}

type Catalog interface {
	CreateService(context.Context, CreateServiceRequest) (*Service, error)
	GetService(ctx context.Context, id snowflake.ID) (*Service, error)
	GetServiceByCode(ctx context.Context, code string) (*Service, error)
	ListServices(context.Context, ListServiceRequest) ([]Service, error)
	CreatePlan(context.Context, CreatePlanRequest) (*Plan, error)
	GetPlan(ctx context.Context, id snowflake.ID) (*Plan, error)
}

var (
	ErrUnknownService      = errors.New("unknown_service")
	ErrUnknownPlan         = errors.New("unknown_plan")
	ErrInvalidBasePrice    = errors.New("invalid_base_price")
	ErrInvalidBillingModel = errors.New("invalid_billing_model")
	ErrDuplicateCode       = errors.New("duplicate_code")
)
