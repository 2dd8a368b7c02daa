package cloudmetrics

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/revora/revora/internal/config"
	subdomain "github.com/revora/revora/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("cloud.metrics",
	fx.Provide(func() *prometheus.Registry {
		return prometheus.NewRegistry()
	}),
	fx.Provide(NewPusher),
	fx.Provide(func(cfg config.Config, registry *prometheus.Registry) *Recorder {
		if !cfg.CloudMetrics.Enabled {
			return nil
		}
		return NewRecorder(registry)
	}),
	fx.Invoke(runPushLoop),
)

func runPushLoop(lc fx.Lifecycle, cfg config.Config, registry *prometheus.Registry, pusher Pusher, recorder *Recorder, logger *zap.Logger, db *gorm.DB) {
	if pusher == nil || recorder == nil {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	interval := time.Duration(cfg.CloudMetrics.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 15 * time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			logger.Info("cloud metrics push loop started", zap.Duration("interval", interval))
			go func() {
				ticker := time.NewTicker(interval)
				defer ticker.Stop()

				pushOnce(ctx, registry, pusher, recorder, logger, db)
				for {
					select {
					case <-ticker.C:
						pushOnce(ctx, registry, pusher, recorder, logger, db)
					case <-ctx.Done():
						return
					}
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

func pushOnce(ctx context.Context, registry *prometheus.Registry, pusher Pusher, recorder *Recorder, logger *zap.Logger, db *gorm.DB) {
	updateActiveSubscriptions(ctx, recorder, db)
	if err := pusher.Push(ctx, registry); err != nil {
		logger.Warn("cloud metrics push failed", zap.Error(err))
	}
}

func updateActiveSubscriptions(ctx context.Context, recorder *Recorder, db *gorm.DB) {
	if db == nil {
		return
	}
	type row struct {
		ResellerID int64
		Count      int64
	}
	var rows []row
	err := db.WithContext(ctx).
		Model(&subdomain.Subscription{}).
		Select("reseller_id, COUNT(*) AS count").
		Where("status = ?", subdomain.SubscriptionStatusActive).
		Group("reseller_id").
		Scan(&rows).Error
	if err != nil {
		return
	}
	for _, r := range rows {
		recorder.UpdateActiveSubscriptions(formatID(r.ResellerID), int(r.Count))
	}
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
