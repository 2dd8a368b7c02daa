package reset

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/revora/revora/internal/clock"
	"github.com/revora/revora/internal/observability/metrics"
	subdomain "github.com/revora/revora/internal/subscription/domain"
	pkgdb "github.com/revora/revora/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	TriggerLazy  = "lazy"
	TriggerSweep = "sweep"
)

type SweeperParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Clock   clock.Clock
	Metrics *metrics.Metrics
}

// Sweeper applies period resets, both lazily from the consume path and in
// bulk from the scheduler.
type Sweeper struct {
	db      *gorm.DB
	log     *zap.Logger
	clock   clock.Clock
	metrics *metrics.Metrics
}

func NewSweeper(p SweeperParam) *Sweeper {
	return &Sweeper{
		db:      p.DB,
		log:     p.Log.Named("reset.sweeper"),
		clock:   p.Clock,
		metrics: p.Metrics,
	}
}

// EnsureCurrent zeroes the counter inside tx when the subscription's period
// has elapsed. The caller must already hold the row lock on sub. The
// in-memory sub is updated to match the row.
func (s *Sweeper) EnsureCurrent(ctx context.Context, tx *gorm.DB, sub *subdomain.Subscription, now time.Time, trigger string) (bool, error) {
	boundary, due := Due(*sub, now)
	if !due {
		return false, nil
	}

	err := tx.WithContext(ctx).
		Model(&subdomain.Subscription{}).
		Where("id = ?", sub.ID).
		Updates(map[string]any{
			"usage_consumed": 0,
			"last_reset_at":  boundary,
			"updated_at":     now,
		}).Error
	if err != nil {
		return false, err
	}

	sub.UsageConsumed = 0
	sub.LastResetAt = boundary
	sub.UpdatedAt = now

	s.metrics.RecordReset(ctx, trigger)
	s.log.Info("quota reset",
		zap.Int64("subscription_id", int64(sub.ID)),
		zap.Time("boundary", boundary),
		zap.String("trigger", trigger),
	)
	return true, nil
}

// Sweep resets every active periodic subscription whose boundary has
// passed, batchSize rows per cycle, and returns the number reset. Each row
// is handled in its own transaction so one failure does not roll back the
// rest.
func (s *Sweeper) Sweep(ctx context.Context, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 500
	}
	now := s.clock.Now()

	// Rows reset within the last hour cannot be due again for any
	// supported cadence, so skip them without zone math.
	var ids []snowflake.ID
	err := s.db.WithContext(ctx).
		Model(&subdomain.Subscription{}).
		Where("status = ? AND reset_period <> ? AND last_reset_at < ?",
			subdomain.SubscriptionStatusActive, subdomain.ResetNever, now.Add(-time.Hour)).
		Order("last_reset_at asc").
		Limit(batchSize).
		Pluck("id", &ids).Error
	if err != nil {
		return 0, err
	}

	var resets int
	for _, id := range ids {
		if ctx.Err() != nil {
			return resets, ctx.Err()
		}
		applied, err := s.sweepOne(ctx, id, now)
		if err != nil {
			s.log.Warn("sweep skipped subscription",
				zap.Int64("subscription_id", int64(id)),
				zap.Error(err),
			)
			continue
		}
		if applied {
			resets++
		}
	}
	return resets, nil
}

// EnsureSubscription applies any pending reset for a single subscription
// and returns the row as it stands afterwards.
func (s *Sweeper) EnsureSubscription(ctx context.Context, id snowflake.ID) (*subdomain.Subscription, bool, error) {
	now := s.clock.Now()
	var (
		applied bool
		sub     subdomain.Subscription
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.WithContext(ctx)
		if !pkgdb.IsSQLite(tx) {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		if err := q.Where("id = ?", id).First(&sub).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return subdomain.ErrSubscriptionNotFound
			}
			return err
		}
		var err error
		applied, err = s.EnsureCurrent(ctx, tx, &sub, now, TriggerLazy)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return &sub, applied, nil
}

func (s *Sweeper) sweepOne(ctx context.Context, id snowflake.ID, now time.Time) (bool, error) {
	var applied bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.WithContext(ctx)
		if !pkgdb.IsSQLite(tx) {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}

		var sub subdomain.Subscription
		if err := q.Where("id = ?", id).First(&sub).Error; err != nil {
			return err
		}

		var err error
		applied, err = s.EnsureCurrent(ctx, tx, &sub, now, TriggerSweep)
		return err
	})
	return applied, err
}
