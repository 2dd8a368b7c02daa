package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/revora/revora/internal/catalog/domain"
	"github.com/revora/revora/internal/clock"
	directorydomain "github.com/revora/revora/internal/directory/domain"
	"github.com/revora/revora/internal/subscription/domain"
	pkgdb "github.com/revora/revora/pkg/db"
	"github.com/revora/revora/pkg/db/option"
	"github.com/revora/revora/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Catalog   catalogdomain.Catalog
	Directory directorydomain.Service
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID     *snowflake.Node
	clock     clock.Clock
	catalog   catalogdomain.Catalog
	directory directorydomain.Service
	subrepo   repository.Repository[domain.Subscription]
}

func NewService(p ServiceParam) domain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("subscription.service"),

		genID:     p.GenID,
		clock:     p.Clock,
		catalog:   p.Catalog,
		directory: p.Directory,
		subrepo:   repository.ProvideStore[domain.Subscription](p.DB),
	}
}

func (s *Service) Assign(ctx context.Context, req domain.AssignRequest) (*domain.Subscription, error) {
	clientID, err := snowflake.ParseString(strings.TrimSpace(req.ClientID))
	if err != nil || clientID == 0 {
		return nil, directorydomain.ErrClientNotFound
	}
	serviceID, err := snowflake.ParseString(strings.TrimSpace(req.ServiceID))
	if err != nil || serviceID == 0 {
		return nil, catalogdomain.ErrUnknownService
	}

	client, err := s.directory.GetClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if !client.Active {
		return nil, directorydomain.ErrClientNotFound
	}
	svc, err := s.catalog.GetService(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	if !svc.Active {
		return nil, catalogdomain.ErrUnknownService
	}

	var planID *snowflake.ID
	if v := strings.TrimSpace(req.PlanID); v != "" {
		id, err := snowflake.ParseString(v)
		if err != nil || id == 0 {
			return nil, catalogdomain.ErrUnknownPlan
		}
		plan, err := s.catalog.GetPlan(ctx, id)
		if err != nil {
			return nil, err
		}
		if plan.ServiceID != serviceID {
			return nil, catalogdomain.ErrUnknownPlan
		}
		planID = &id
	}

	mode := req.QuotaMode
	if mode == "" {
		mode = domain.QuotaUnlimited
	}
	if !mode.Valid() {
		return nil, domain.ErrInvalidQuota
	}
	if mode == domain.QuotaLimited && req.UsageLimit <= 0 {
		return nil, domain.ErrInvalidQuota
	}
	limit := req.UsageLimit
	if mode != domain.QuotaLimited {
		limit = 0
	}

	period := req.ResetPeriod
	if period == "" {
		period = domain.ResetNever
	}
	if !period.Valid() {
		return nil, domain.ErrInvalidResetPeriod
	}

	tz := strings.TrimSpace(req.Timezone)
	if tz == "" {
		tz = "UTC"
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return nil, domain.ErrInvalidTimezone
	}

	now := s.clock.Now()
	var expiresAt *time.Time
	if req.ExpiresAt != nil && *req.ExpiresAt != "" {
		t, err := time.Parse(time.RFC3339, *req.ExpiresAt)
		if err != nil {
			return nil, domain.ErrInvalidQuota
		}
		t = t.UTC()
		expiresAt = &t
	}

	record := &domain.Subscription{
		ID:          s.genID.Generate(),
		ResellerID:  client.ResellerID,
		ClientID:    clientID,
		ServiceID:   serviceID,
		PlanID:      planID,
		Status:      domain.SubscriptionStatusActive,
		QuotaMode:   mode,
		UsageLimit:  limit,
		ResetPeriod: period,
		LastResetAt: now,
		Timezone:    tz,
		ExpiresAt:   expiresAt,
		Metadata:    datatypes.JSONMap(req.Metadata),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.subrepo.Create(ctx, record); err != nil {
		if pkgdb.IsDuplicateKeyErr(err) {
			return nil, domain.ErrDuplicateAssignment
		}
		return nil, err
	}
	return record, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Subscription, error) {
	sub, err := s.subrepo.FindOne(ctx, &domain.Subscription{ID: id})
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, domain.ErrSubscriptionNotFound
	}
	return sub, nil
}

func (s *Service) List(ctx context.Context, req domain.ListSubscriptionRequest) ([]domain.Subscription, error) {
	filter := &domain.Subscription{}
	if id, err := snowflake.ParseString(strings.TrimSpace(req.ClientID)); err == nil && id != 0 {
		filter.ClientID = id
	}
	if id, err := snowflake.ParseString(strings.TrimSpace(req.ServiceID)); err == nil && id != 0 {
		filter.ServiceID = id
	}
	if id, err := snowflake.ParseString(strings.TrimSpace(req.ResellerID)); err == nil && id != 0 {
		filter.ResellerID = id
	}
	if req.ActiveOnly {
		filter.Status = domain.SubscriptionStatusActive
	}
	items, err := s.subrepo.Find(ctx, filter, option.WithSortBy(option.QuerySortBy{Field: "created_at", Desc: true}))
	if err != nil {
		return nil, err
	}
	subs := make([]domain.Subscription, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		subs = append(subs, *item)
	}
	return subs, nil
}

func (s *Service) UpdateQuota(ctx context.Context, id snowflake.ID, req domain.UpdateQuotaRequest) (*domain.Subscription, error) {
	if !req.QuotaMode.Valid() {
		return nil, domain.ErrInvalidQuota
	}
	if req.QuotaMode == domain.QuotaLimited && req.UsageLimit <= 0 {
		return nil, domain.ErrInvalidQuota
	}
	limit := req.UsageLimit
	if req.QuotaMode != domain.QuotaLimited {
		limit = 0
	}

	sub, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	err = s.db.WithContext(ctx).
		Model(&domain.Subscription{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"quota_mode":  req.QuotaMode,
			"usage_limit": limit,
			"updated_at":  now,
		}).Error
	if err != nil {
		return nil, err
	}

	sub.QuotaMode = req.QuotaMode
	sub.UsageLimit = limit
	sub.UpdatedAt = now
	return sub, nil
}

func (s *Service) Deactivate(ctx context.Context, id snowflake.ID) error {
	sub, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if sub.Status == domain.SubscriptionStatusInactive {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&domain.Subscription{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     domain.SubscriptionStatusInactive,
			"updated_at": s.clock.Now(),
		}).Error
}
