package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type AssignRequest struct {
	ClientID    string         `json:"client_id"`
	ServiceID   string         `json:"service_id"`
	PlanID      string         `json:"plan_id"`
	QuotaMode   QuotaMode      `json:"quota_mode"`
	UsageLimit  int64          `json:"usage_limit"`
	ResetPeriod ResetPeriod    `json:"reset_period"`
	Timezone    string         `json:"timezone"`
	ExpiresAt   *string        `json:"expires_at"`
	Metadata    map[string]any `json:"metadata"`
}

type UpdateQuotaRequest struct {
	QuotaMode  QuotaMode `json:"quota_mode"`
	UsageLimit int64     `json:"usage_limit"`
}

type ListSubscriptionRequest struct {
	ClientID   string `form:"client_id"`
	ServiceID  string `form:"service_id"`
	ResellerID string `form:"reseller_id"`
	ActiveOnly bool   `form:"active_only"`
}

type Service interface {
	Assign(context.Context, AssignRequest) (*Subscription, error)
	Get(ctx context.Context, id snowflake.ID) (*Subscription, error)
	List(context.Context, ListSubscriptionRequest) ([]Subscription, error)
	UpdateQuota(ctx context.Context, id snowflake.ID, req UpdateQuotaRequest) (*Subscription, error)
	Deactivate(ctx context.Context, id snowflake.ID) error
}

var (
	ErrSubscriptionNotFound = errors.New("subscription_not_found")
	ErrSubscriptionInactive = errors.New("subscription_inactive")
	ErrInvalidQuota         = errors.New("invalid_quota")
	ErrInvalidResetPeriod   = errors.New("invalid_reset_period")
	ErrInvalidTimezone      = errors.New("invalid_timezone")
	ErrDuplicateAssignment  = errors.New("duplicate_assignment")
)
