package events

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/revora/revora/internal/clock"
	"github.com/revora/revora/internal/events/domain"
	"github.com/revora/revora/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Event describes an engine event to store in the outbox.
type Event struct {
	ResellerID snowflake.ID
	Type       string
	Payload    map[string]any
	DedupeKey  string
}

type OutboxParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Metrics *metrics.Metrics
}

// Outbox inserts engine events into the outbox_events table.
type Outbox struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	metrics *metrics.Metrics
}

func NewOutbox(p OutboxParam) *Outbox {
	return &Outbox{
		db:      p.DB,
		log:     p.Log.Named("events.outbox"),
		genID:   p.GenID,
		clock:   p.Clock,
		metrics: p.Metrics,
	}
}

// Publish stores an event using the default database connection.
func (o *Outbox) Publish(ctx context.Context, event Event) error {
	return o.publish(ctx, o.db, event)
}

// PublishTx stores an event using an existing transaction.
func (o *Outbox) PublishTx(ctx context.Context, tx *gorm.DB, event Event) error {
	if tx == nil {
		return errors.New("missing_transaction")
	}
	return o.publish(ctx, tx, event)
}

func (o *Outbox) publish(ctx context.Context, db *gorm.DB, event Event) error {
	if o == nil || db == nil || o.genID == nil {
		return errors.New("outbox_unavailable")
	}
	if event.ResellerID == 0 {
		return errors.New("invalid_reseller_id")
	}
	name := strings.TrimSpace(event.Type)
	if name == "" {
		return errors.New("missing_event_type")
	}

	payload := datatypes.JSONMap{}
	for key, value := range event.Payload {
		if strings.TrimSpace(key) == "" {
			continue
		}
		payload[key] = value
	}

	record := &domain.OutboxEvent{
		ID:         o.genID.Generate(),
		ResellerID: event.ResellerID,
		EventType:  name,
		Payload:    payload,
		CreatedAt:  o.clock.Now(),
	}
	if dedupe := strings.TrimSpace(event.DedupeKey); dedupe != "" {
		record.DedupeKey = &dedupe
	}

	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "reseller_id"}, {Name: "dedupe_key"}},
			DoNothing: true,
		}).
		Create(record)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		o.metrics.RecordOutboxEvent(ctx, name)
	}
	return nil
}

// MarkPublished flips delivered rows so the dispatch loop does not replay
// them.
func (o *Outbox) MarkPublished(ctx context.Context, ids []snowflake.ID) error {
	if len(ids) == 0 {
		return nil
	}
	now := o.clock.Now()
	return o.db.WithContext(ctx).
		Model(&domain.OutboxEvent{}).
		Where("id IN ?", ids).
		Updates(map[string]any{"published": true, "published_at": now}).Error
}

// Pending returns up to limit undelivered events in commit order.
func (o *Outbox) Pending(ctx context.Context, limit int) ([]domain.OutboxEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []domain.OutboxEvent
	err := o.db.WithContext(ctx).
		Where("published = ?", false).
		Order("created_at asc, id asc").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
