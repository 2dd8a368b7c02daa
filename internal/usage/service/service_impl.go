package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/revora/revora/internal/usage/domain"
	pkgdb "github.com/revora/revora/pkg/db"
	"github.com/revora/revora/pkg/db/option"
	"github.com/revora/revora/pkg/db/pagination"
	"github.com/revora/revora/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type LedgerParam struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
}

type Ledger struct {
	db  *gorm.DB
	log *zap.Logger

	eventrepo repository.Repository[domain.UsageEvent]
}

func NewLedger(p LedgerParam) domain.Ledger {
	return &Ledger{
		db:  p.DB,
		log: p.Log.Named("usage.ledger"),

		eventrepo: repository.ProvideStore[domain.UsageEvent](p.DB),
	}
}

// AppendInTx inserts the event inside tx. An idempotency key already
// committed for the same subscription returns ErrDuplicateEvent without
// touching the ledger; other subscriptions may reuse the key freely.
func (l *Ledger) AppendInTx(ctx context.Context, tx *gorm.DB, event *domain.UsageEvent) error {
	if event.Units <= 0 {
		return domain.ErrInvalidUnits
	}

	res := tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "subscription_id"}, {Name: "idempotency_key"}},
			DoNothing: true,
		}).
		Create(event)
	if res.Error != nil {
		if pkgdb.IsDuplicateKeyErr(res.Error) {
			return domain.ErrDuplicateEvent
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrDuplicateEvent
	}
	return nil
}

func (l *Ledger) List(ctx context.Context, req domain.ListUsageRequest) ([]domain.UsageEvent, *pagination.PageInfo, error) {
	filter := &domain.UsageEvent{}
	if id, err := snowflake.ParseString(strings.TrimSpace(req.SubscriptionID)); err == nil && id != 0 {
		filter.SubscriptionID = id
	}
	if id, err := snowflake.ParseString(strings.TrimSpace(req.ClientID)); err == nil && id != 0 {
		filter.ClientID = id
	}
	if id, err := snowflake.ParseString(strings.TrimSpace(req.ResellerID)); err == nil && id != 0 {
		filter.ResellerID = id
	}
	if id, err := snowflake.ParseString(strings.TrimSpace(req.ServiceID)); err == nil && id != 0 {
		filter.ServiceID = id
	}

	opts := []option.QueryOption{
		option.WithSortBy(option.QuerySortBy{Field: "created_at"}),
		option.ApplyPagination(req.Pagination),
	}
	if from, err := time.Parse(time.RFC3339, strings.TrimSpace(req.From)); err == nil {
		opts = append(opts, option.ApplyOperator(option.Condition{Field: "recorded_at", Operator: option.GTE, Value: from.UTC()}))
	}
	if to, err := time.Parse(time.RFC3339, strings.TrimSpace(req.To)); err == nil {
		opts = append(opts, option.ApplyOperator(option.Condition{Field: "recorded_at", Operator: option.LT, Value: to.UTC()}))
	}

	items, err := l.eventrepo.Find(ctx, filter, opts...)
	if err != nil {
		return nil, nil, err
	}

	size := req.PageSize
	if size <= 0 {
		size = 10
	}
	pageInfo := pagination.BuildCursorPageInfo(items, int32(size), func(ev *domain.UsageEvent) string {
		token, _ := pagination.EncodeCursor(pagination.Cursor{
			ID:        ev.ID.String(),
			CreatedAt: ev.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		return token
	})

	if len(items) > size {
		items = items[:size]
	}
	events := make([]domain.UsageEvent, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		events = append(events, *item)
	}
	return events, pageInfo, nil
}

// AggregateWindow rolls the ledger up by service and snapshotted unit
// price over [from, to). Keeping unit price in the group key keeps every
// rollup amount equal to units times unit price exactly.
func (l *Ledger) AggregateWindow(ctx context.Context, resellerID, clientID snowflake.ID, from, to time.Time) ([]domain.ServiceUsage, error) {
	q := l.db.WithContext(ctx).
		Model(&domain.UsageEvent{}).
		Select("service_id, unit_price, currency, SUM(units) AS units, SUM(amount) AS amount").
		Where("recorded_at >= ? AND recorded_at < ?", from.UTC(), to.UTC())
	if resellerID != 0 {
		q = q.Where("reseller_id = ?", resellerID)
	}
	if clientID != 0 {
		q = q.Where("client_id = ?", clientID)
	}

	var rows []domain.ServiceUsage
	err := q.Group("service_id, unit_price, currency").
		Order("service_id, unit_price").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
