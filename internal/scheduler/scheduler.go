// Package scheduler drives the periodic jobs: quota period resets, SENT
// invoices falling overdue, and outbox dispatch.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/revora/revora/internal/clock"
	"github.com/revora/revora/internal/events"
	invoicedomain "github.com/revora/revora/internal/invoice/domain"
	"github.com/revora/revora/internal/observability/metrics"
	"github.com/revora/revora/internal/reset"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("scheduler: invalid configuration")

type Params struct {
	fx.In

	Log        *zap.Logger
	Clock      clock.Clock
	Sweeper    *reset.Sweeper
	InvoiceSvc invoicedomain.Service
	Dispatcher *events.Dispatcher
	Metrics    *metrics.Metrics
	Config     Config `optional:"true"`
}

type Scheduler struct {
	log        *zap.Logger
	cfg        Config
	clock      clock.Clock
	sweeper    *reset.Sweeper
	invoiceSvc invoicedomain.Service
	dispatcher *events.Dispatcher
	metrics    *metrics.Metrics
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Clock == nil || p.Sweeper == nil || p.InvoiceSvc == nil || p.Dispatcher == nil || p.Metrics == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:        p.Log.Named("scheduler"),
		cfg:        p.Config.withDefaults(),
		clock:      p.Clock,
		sweeper:    p.Sweeper,
		invoiceSvc: p.InvoiceSvc,
		dispatcher: p.Dispatcher,
		metrics:    p.Metrics,
	}, nil
}

// RunForever cycles until ctx is cancelled. Each job failure is logged and
// the loop keeps going; a wedged sweep must not take the other down.
func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	s.log.Info("scheduler started", zap.Duration("interval", s.cfg.RunInterval))
	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce executes a single sweep cycle.
func (s *Scheduler) RunOnce(ctx context.Context) {
	s.runJob(ctx, "quota_reset_sweep", func(ctx context.Context) (int, error) {
		return s.sweeper.Sweep(ctx, s.cfg.BatchSize)
	})
	s.runJob(ctx, "invoice_overdue_sweep", func(ctx context.Context) (int, error) {
		return s.invoiceSvc.SweepOverdue(ctx, s.cfg.BatchSize)
	})
	s.runJob(ctx, "outbox_dispatch", func(ctx context.Context) (int, error) {
		return s.dispatcher.DispatchPending(ctx, s.cfg.BatchSize)
	})
}

func (s *Scheduler) runJob(parent context.Context, name string, fn func(ctx context.Context) (int, error)) {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	affected, err := fn(ctx)
	elapsed := s.clock.Now().Sub(start)
	s.metrics.RecordSweepDuration(ctx, name, elapsed.Seconds())

	log := s.log.With(
		zap.String("job", name),
		zap.Duration("elapsed", elapsed),
		zap.Int("affected", affected),
	)
	if err != nil {
		log.Warn("sweep finished with error", zap.Error(err))
		return
	}
	if affected > 0 {
		log.Info("sweep finished")
	} else {
		log.Debug("sweep finished, nothing due")
	}
}
