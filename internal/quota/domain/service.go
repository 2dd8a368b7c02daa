// Package domain defines the quota enforcement contract.
package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	subdomain "github.com/revora/revora/internal/subscription/domain"
	usagedomain "github.com/revora/revora/internal/usage/domain"
)

type ConsumeRequest struct {
	SubscriptionID string         `json:"subscription_id"`
	Units          int64          `json:"units"`
	IdempotencyKey string         `json:"idempotency_key"`
	Metadata       map[string]any `json:"metadata"`
}

// ConsumeResult reports the committed (or replayed) outcome together with
// the counter state after the call.
type ConsumeResult struct {
	Event         *usagedomain.UsageEvent `json:"event"`
	ResellerID    snowflake.ID            `json:"reseller_id"`
	UsageConsumed int64                   `json:"usage_consumed"`
	UsageLimit    int64                   `json:"usage_limit"`
	QuotaMode     subdomain.QuotaMode     `json:"quota_mode"`
	Replayed      bool                    `json:"replayed"`
	NearLimit     bool                    `json:"near_limit"`
}

// Enforcer is the single write path into the usage ledger. Admission,
// pricing snapshot, ledger append and counter increment happen atomically
// per subscription.
type Enforcer interface {
	TryConsume(ctx context.Context, req ConsumeRequest) (*ConsumeResult, error)
}

var (
	ErrQuotaExceeded      = errors.New("quota_exceeded")
	ErrQuotaDisabled      = errors.New("quota_disabled")
	ErrMissingIdempotency = errors.New("missing_idempotency_key")
	ErrTransientStore     = errors.New("transient_store_conflict")
)
