package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/revora/revora/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListUsageRequest struct {
	SubscriptionID string `form:"subscription_id"`
	ClientID       string `form:"client_id"`
	ResellerID     string `form:"reseller_id"`
	ServiceID      string `form:"service_id"`
	From           string `form:"from"`
	To             string `form:"to"`

	pagination.Pagination
}

// Ledger is the read and append surface over usage_events. Appends happen
// inside the caller's transaction so the counter increment and the ledger
// row commit or roll back together.
type Ledger interface {
	AppendInTx(ctx context.Context, tx *gorm.DB, event *UsageEvent) error
	List(ctx context.Context, req ListUsageRequest) ([]UsageEvent, *pagination.PageInfo, error)
	AggregateWindow(ctx context.Context, resellerID, clientID snowflake.ID, from, to time.Time) ([]ServiceUsage, error)
}

var (
	ErrDuplicateEvent = errors.New("duplicate_event")
	ErrInvalidUnits   = errors.New("invalid_units")
)
