package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/revora/revora/internal/catalog/domain"
	pricingdomain "github.com/revora/revora/internal/pricing/domain"
	"github.com/revora/revora/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Catalog catalogdomain.Catalog
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID    *snowflake.Node
	catalog  catalogdomain.Catalog
	rulerepo repository.Repository[pricingdomain.PricingRule]
}

func NewService(p ServiceParam) pricingdomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("pricing.service"),

		genID:    p.GenID,
		catalog:  p.Catalog,
		rulerepo: repository.ProvideStore[pricingdomain.PricingRule](p.DB),
	}
}

func (s *Service) ResolveFor(ctx context.Context, resellerID, serviceID snowflake.ID, planID *snowflake.ID) (pricingdomain.Quote, error) {
	svc, err := s.catalog.GetService(ctx, serviceID)
	if err != nil {
		return pricingdomain.Quote{}, err
	}

	var plan *catalogdomain.Plan
	if planID != nil && *planID != 0 {
		plan, err = s.catalog.GetPlan(ctx, *planID)
		if err != nil {
			return pricingdomain.Quote{}, err
		}
	}

	rule, err := s.activeRule(ctx, resellerID, serviceID)
	if err != nil {
		return pricingdomain.Quote{}, err
	}

	return pricingdomain.Resolve(*svc, plan, rule), nil
}

func (s *Service) SetRule(ctx context.Context, req pricingdomain.SetRuleRequest) (*pricingdomain.PricingRule, error) {
	resellerID, err := parseID(req.ResellerID)
	if err != nil {
		return nil, err
	}
	serviceID, err := parseID(req.ServiceID)
	if err != nil {
		return nil, err
	}
	if _, err := s.catalog.GetService(ctx, serviceID); err != nil {
		return nil, err
	}

	switch req.Kind {
	case pricingdomain.RuleCustomPrice:
		if req.CustomPrice < 0 {
			return nil, pricingdomain.ErrInvalidPrice
		}
	case pricingdomain.RuleMarkupPercent:
		if req.MarkupPercent < 0 {
			return nil, pricingdomain.ErrInvalidMarkup
		}
	default:
		return nil, pricingdomain.ErrInvalidRuleKind
	}

	now := time.Now().UTC()
	record := &pricingdomain.PricingRule{
		ID:            s.genID.Generate(),
		ResellerID:    resellerID,
		ServiceID:     serviceID,
		Kind:          req.Kind,
		CustomPrice:   req.CustomPrice,
		MarkupPercent: req.MarkupPercent,
		Active:        true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	// Deactivate-then-insert inside one transaction keeps exactly one
	// active resolution path per pair.
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.deactivateActive(ctx, tx, resellerID, serviceID, now); err != nil {
			return err
		}
		return tx.Create(record).Error
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (s *Service) ClearRule(ctx context.Context, resellerID, serviceID snowflake.ID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.deactivateActive(ctx, tx, resellerID, serviceID, time.Now().UTC())
	})
}

func (s *Service) activeRule(ctx context.Context, resellerID, serviceID snowflake.ID) (*pricingdomain.PricingRule, error) {
	if resellerID == 0 || serviceID == 0 {
		return nil, nil
	}
	return s.rulerepo.FindOne(ctx, &pricingdomain.PricingRule{
		ResellerID: resellerID,
		ServiceID:  serviceID,
		Active:     true,
	})
}

func (s *Service) deactivateActive(ctx context.Context, tx *gorm.DB, resellerID, serviceID snowflake.ID, now time.Time) error {
	return tx.WithContext(ctx).
		Model(&pricingdomain.PricingRule{}).
		Where("reseller_id = ? AND service_id = ? AND active", resellerID, serviceID).
		Updates(map[string]any{"active": false, "updated_at": now}).Error
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, pricingdomain.ErrInvalidReference
	}
	return id, nil
}
