package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type CreateResellerRequest struct {
	Name           string `json:"name"`
	Email          string `json:"email"`
	CommissionRate int64  `json:"commission_rate"`
}

type CreateClientRequest struct {
	ResellerID string `json:"reseller_id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
}

type Service interface {
	CreateReseller(context.Context, CreateResellerRequest) (*Reseller, error)
	GetReseller(ctx context.Context, id snowflake.ID) (*Reseller, error)
	SetCommissionRate(ctx context.Context, id snowflake.ID, rate int64) error
	CreateClient(context.Context, CreateClientRequest) (*Client, error)
	GetClient(ctx context.Context, id snowflake.ID) (*Client, error)
	DeactivateClient(ctx context.Context, id snowflake.ID) error
}

var (
	ErrResellerNotFound      = errors.New("reseller_not_found")
	ErrClientNotFound        = errors.New("client_not_found")
	ErrInvalidCommissionRate = errors.New("invalid_commission_rate")
	ErrDuplicateEmail        = errors.New("duplicate_email")
)
