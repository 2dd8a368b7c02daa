package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/revora/revora/internal/clock"
	"github.com/revora/revora/internal/config"
	"github.com/revora/revora/internal/events"
	"github.com/revora/revora/internal/observability/metrics"
	pricingdomain "github.com/revora/revora/internal/pricing/domain"
	"github.com/revora/revora/internal/quota/domain"
	"github.com/revora/revora/internal/reset"
	subdomain "github.com/revora/revora/internal/subscription/domain"
	usagedomain "github.com/revora/revora/internal/usage/domain"
	pkgdb "github.com/revora/revora/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// maxAttempts bounds retries on serialization conflicts before the caller
// sees ErrTransientStore.
const maxAttempts = 3

type EnforcerParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Billing *config.BillingConfigHolder
	Pricing pricingdomain.Service
	Ledger  usagedomain.Ledger
	Sweeper *reset.Sweeper
	Outbox  *events.Outbox
	Metrics *metrics.Metrics
}

type Enforcer struct {
	db  *gorm.DB
	log *zap.Logger

	genID   *snowflake.Node
	clock   clock.Clock
	billing *config.BillingConfigHolder
	pricing pricingdomain.Service
	ledger  usagedomain.Ledger
	sweeper *reset.Sweeper
	outbox  *events.Outbox
	metrics *metrics.Metrics
}

func NewEnforcer(p EnforcerParam) domain.Enforcer {
	return &Enforcer{
		db:  p.DB,
		log: p.Log.Named("quota.enforcer"),

		genID:   p.GenID,
		clock:   p.Clock,
		billing: p.Billing,
		pricing: p.Pricing,
		ledger:  p.Ledger,
		sweeper: p.Sweeper,
		outbox:  p.Outbox,
		metrics: p.Metrics,
	}
}

func (e *Enforcer) TryConsume(ctx context.Context, req domain.ConsumeRequest) (*domain.ConsumeResult, error) {
	if req.Units <= 0 {
		e.metrics.RecordConsume(ctx, "rejected_invalid")
		return nil, usagedomain.ErrInvalidUnits
	}
	key := strings.TrimSpace(req.IdempotencyKey)
	if key == "" {
		e.metrics.RecordConsume(ctx, "rejected_invalid")
		return nil, domain.ErrMissingIdempotency
	}
	subID, err := snowflake.ParseString(strings.TrimSpace(req.SubscriptionID))
	if err != nil || subID == 0 {
		e.metrics.RecordConsume(ctx, "rejected_invalid")
		return nil, subdomain.ErrSubscriptionNotFound
	}
	req.IdempotencyKey = key

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := e.consumeOnce(ctx, subID, req)
		if err == nil || !pkgdb.IsSerializationErr(err) {
			return result, err
		}
		lastErr = err
		e.metrics.RecordConsumeRetry(ctx)
		e.log.Debug("consume conflicted, retrying",
			zap.Int64("subscription_id", int64(subID)),
			zap.Int("attempt", attempt),
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt) * 10 * time.Millisecond):
		}
	}
	e.metrics.RecordConsume(ctx, "error")
	e.log.Warn("consume gave up after conflicts",
		zap.Int64("subscription_id", int64(subID)),
		zap.Error(lastErr),
	)
	return nil, domain.ErrTransientStore
}

func (e *Enforcer) consumeOnce(ctx context.Context, subID snowflake.ID, req domain.ConsumeRequest) (*domain.ConsumeResult, error) {
	now := e.clock.Now()

	// Pricing resolves on a plain read up front. The routing columns are
	// immutable after Assign, and nothing inside the transaction may take
	// a second pool connection.
	var ref subdomain.Subscription
	if err := e.db.WithContext(ctx).
		Select("reseller_id", "service_id", "plan_id").
		Where("id = ?", subID).
		First(&ref).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, subdomain.ErrSubscriptionNotFound
		}
		return nil, err
	}
	quote, err := e.pricing.ResolveFor(ctx, ref.ResellerID, ref.ServiceID, ref.PlanID)
	if err != nil {
		return nil, err
	}

	var (
		result   *domain.ConsumeResult
		exceeded *events.Event
	)
	txErr := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.WithContext(ctx)
		if !pkgdb.IsSQLite(tx) {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}

		var sub subdomain.Subscription
		if err := q.Where("id = ?", subID).First(&sub).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return subdomain.ErrSubscriptionNotFound
			}
			return err
		}

		if sub.Status != subdomain.SubscriptionStatusActive {
			return subdomain.ErrSubscriptionInactive
		}
		if sub.ExpiresAt != nil && !now.Before(*sub.ExpiresAt) {
			return subdomain.ErrSubscriptionInactive
		}
		if sub.QuotaMode == subdomain.QuotaDisabled {
			return domain.ErrQuotaDisabled
		}

		if _, err := e.sweeper.EnsureCurrent(ctx, tx, &sub, now, reset.TriggerLazy); err != nil {
			return err
		}

		// The counter is never clamped: a rejected request leaves it
		// exactly where it was.
		if sub.QuotaMode == subdomain.QuotaLimited && sub.UsageConsumed+req.Units > sub.UsageLimit {
			exceeded = &events.Event{
				ResellerID: sub.ResellerID,
				Type:       events.EventQuotaExceeded,
				Payload: events.QuotaPayload{
					SubscriptionID: sub.ID.String(),
					ClientID:       sub.ClientID.String(),
					ServiceID:      sub.ServiceID.String(),
					UsageConsumed:  sub.UsageConsumed,
					UsageLimit:     sub.UsageLimit,
				}.ToMap(),
				DedupeKey: fmt.Sprintf("quota.exceeded:%d:%d", sub.ID, sub.LastResetAt.Unix()),
			}
			result = &domain.ConsumeResult{
				ResellerID:    sub.ResellerID,
				UsageConsumed: sub.UsageConsumed,
				UsageLimit:    sub.UsageLimit,
				QuotaMode:     sub.QuotaMode,
			}
			return domain.ErrQuotaExceeded
		}

		event := &usagedomain.UsageEvent{
			ID:             e.genID.Generate(),
			SubscriptionID: sub.ID,
			ResellerID:     sub.ResellerID,
			ClientID:       sub.ClientID,
			ServiceID:      sub.ServiceID,
			PlanID:         sub.PlanID,
			IdempotencyKey: req.IdempotencyKey,
			Units:          req.Units,
			UnitPrice:      quote.UnitPrice,
			Amount:         req.Units * quote.UnitPrice,
			Currency:       quote.Currency,
			BillingModel:   quote.BillingModel,
			RecordedAt:     now,
			Metadata:       datatypes.JSONMap(req.Metadata),
			CreatedAt:      now,
		}
		if err := e.ledger.AppendInTx(ctx, tx, event); err != nil {
			return err
		}

		if err := tx.WithContext(ctx).
			Model(&subdomain.Subscription{}).
			Where("id = ?", sub.ID).
			Updates(map[string]any{
				"usage_consumed": gorm.Expr("usage_consumed + ?", req.Units),
				"updated_at":     now,
			}).Error; err != nil {
			return err
		}
		sub.UsageConsumed += req.Units

		if err := e.outbox.PublishTx(ctx, tx, events.Event{
			ResellerID: sub.ResellerID,
			Type:       events.EventUsageRecorded,
			Payload: events.UsageRecordedPayload{
				UsageEventID:   event.ID.String(),
				SubscriptionID: sub.ID.String(),
				ClientID:       sub.ClientID.String(),
				ServiceID:      sub.ServiceID.String(),
				Units:          event.Units,
				Amount:         event.Amount,
				IdempotencyKey: event.IdempotencyKey,
			}.ToMap(),
			DedupeKey: fmt.Sprintf("usage.recorded:%d:%s", sub.ID, event.IdempotencyKey),
		}); err != nil {
			return err
		}

		nearLimit := e.nearLimit(sub)
		if nearLimit {
			if err := e.outbox.PublishTx(ctx, tx, events.Event{
				ResellerID: sub.ResellerID,
				Type:       events.EventQuotaNearLimit,
				Payload: events.QuotaPayload{
					SubscriptionID: sub.ID.String(),
					ClientID:       sub.ClientID.String(),
					ServiceID:      sub.ServiceID.String(),
					UsageConsumed:  sub.UsageConsumed,
					UsageLimit:     sub.UsageLimit,
				}.ToMap(),
				DedupeKey: fmt.Sprintf("quota.near_limit:%d:%d", sub.ID, sub.LastResetAt.Unix()),
			}); err != nil {
				return err
			}
		}

		result = &domain.ConsumeResult{
			Event:         event,
			ResellerID:    sub.ResellerID,
			UsageConsumed: sub.UsageConsumed,
			UsageLimit:    sub.UsageLimit,
			QuotaMode:     sub.QuotaMode,
			NearLimit:     nearLimit,
		}
		return nil
	})

	switch {
	case txErr == nil:
		e.metrics.RecordConsume(ctx, "committed")
		return result, nil
	case txErr == domain.ErrQuotaExceeded:
		// The rejection rolled the transaction back, so the exceeded
		// event goes through its own connection.
		e.publishExceeded(ctx, exceeded)
		e.metrics.RecordConsume(ctx, "rejected_quota")
		return result, txErr
	case txErr == usagedomain.ErrDuplicateEvent:
		return e.replay(ctx, subID, req.IdempotencyKey)
	case txErr == subdomain.ErrSubscriptionInactive, txErr == domain.ErrQuotaDisabled:
		e.metrics.RecordConsume(ctx, "rejected_inactive")
		return nil, txErr
	default:
		return nil, txErr
	}
}

// replay returns the outcome of the earlier call that committed the key.
func (e *Enforcer) replay(ctx context.Context, subID snowflake.ID, key string) (*domain.ConsumeResult, error) {
	var event usagedomain.UsageEvent
	err := e.db.WithContext(ctx).
		Where("subscription_id = ? AND idempotency_key = ?", subID, key).
		First(&event).Error
	if err != nil {
		return nil, usagedomain.ErrDuplicateEvent
	}

	var sub subdomain.Subscription
	if err := e.db.WithContext(ctx).Where("id = ?", subID).First(&sub).Error; err != nil {
		return nil, err
	}

	e.metrics.RecordConsume(ctx, "replayed")
	return &domain.ConsumeResult{
		Event:         &event,
		ResellerID:    sub.ResellerID,
		UsageConsumed: sub.UsageConsumed,
		UsageLimit:    sub.UsageLimit,
		QuotaMode:     sub.QuotaMode,
		Replayed:      true,
	}, nil
}

func (e *Enforcer) nearLimit(sub subdomain.Subscription) bool {
	if sub.QuotaMode != subdomain.QuotaLimited || sub.UsageLimit <= 0 {
		return false
	}
	threshold := e.billing.Get().NearLimitPercent
	if threshold <= 0 {
		return false
	}
	return sub.UsageConsumed*100 >= sub.UsageLimit*threshold
}

func (e *Enforcer) publishExceeded(ctx context.Context, event *events.Event) {
	if event == nil {
		return
	}
	if err := e.outbox.Publish(ctx, *event); err != nil {
		e.log.Warn("exceeded event dropped",
			zap.String("dedupe_key", event.DedupeKey),
			zap.Error(err),
		)
	}
}
