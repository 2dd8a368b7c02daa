package events

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/revora/revora/internal/config"
	"github.com/revora/revora/internal/events/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const defaultChannel = "revora.events"

type DispatcherParam struct {
	fx.In

	Log    *zap.Logger
	Config config.Config `optional:"true"`
	Outbox *Outbox
}

// Dispatcher drains unpublished outbox rows in commit order. Rows go to
// the configured redis channel when one is set; otherwise delivery is the
// structured log stream local notifiers tail.
type Dispatcher struct {
	log     *zap.Logger
	outbox  *Outbox
	redis   *redis.Client
	channel string
}

func NewDispatcher(p DispatcherParam) *Dispatcher {
	d := &Dispatcher{
		log:     p.Log.Named("events.dispatcher"),
		outbox:  p.Outbox,
		channel: strings.TrimSpace(p.Config.Events.Channel),
	}
	if d.channel == "" {
		d.channel = defaultChannel
	}
	if addr := strings.TrimSpace(p.Config.Events.RedisAddr); addr != "" {
		d.redis = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: strings.TrimSpace(p.Config.Events.RedisPassword),
		})
	}
	return d
}

// DispatchPending delivers up to limit rows and marks them published. A
// delivery failure stops the batch before the failed row so commit order
// holds on the next cycle.
func (d *Dispatcher) DispatchPending(ctx context.Context, limit int) (int, error) {
	rows, err := d.outbox.Pending(ctx, limit)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	var deliverErr error
	delivered := make([]snowflake.ID, 0, len(rows))
	for _, row := range rows {
		if err := d.deliver(ctx, row); err != nil {
			deliverErr = err
			break
		}
		delivered = append(delivered, row.ID)
	}

	if len(delivered) > 0 {
		if err := d.outbox.MarkPublished(ctx, delivered); err != nil {
			return 0, err
		}
	}
	return len(delivered), deliverErr
}

func (d *Dispatcher) deliver(ctx context.Context, row domain.OutboxEvent) error {
	if d.redis == nil {
		d.log.Info("event dispatched",
			zap.String("event_type", row.EventType),
			zap.Int64("event_id", int64(row.ID)),
			zap.Int64("reseller_id", int64(row.ResellerID)),
		)
		return nil
	}

	body, err := json.Marshal(row)
	if err != nil {
		return err
	}
	return d.redis.Publish(ctx, d.channel, body).Err()
}
