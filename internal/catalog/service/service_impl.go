package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	catalogdomain "github.com/revora/revora/internal/catalog/domain"
	pkgdb "github.com/revora/revora/pkg/db"
	"github.com/revora/revora/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID       *snowflake.Node
	servicerepo repository.Repository[catalogdomain.Service]
	planrepo    repository.Repository[catalogdomain.Plan]
}

func NewService(p ServiceParam) catalogdomain.Catalog {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("catalog.service"),

		genID:       p.GenID,
		servicerepo: repository.ProvideStore[catalogdomain.Service](p.DB),
		planrepo:    repository.ProvideStore[catalogdomain.Plan](p.DB),
	}
}

func (s *Service) CreateService(ctx context.Context, req catalogdomain.CreateServiceRequest) (*catalogdomain.Service, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, catalogdomain.ErrUnknownService
	}
	if req.BasePrice < 0 {
		return nil, catalogdomain.ErrInvalidBasePrice
	}
	if !req.BillingModel.Valid() {
		return nil, catalogdomain.ErrInvalidBillingModel
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "INR"
	}

	now := time.Now().UTC()
	record := &catalogdomain.Service{
		ID:           s.genID.Generate(),
		Code:         slug.Make(name),
		Name:         name,
		Description:  strings.TrimSpace(req.Description),
		BasePrice:    req.BasePrice,
		BillingModel: req.BillingModel,
		Currency:     currency,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if req.Metadata != nil {
		record.Metadata = datatypes.JSONMap(req.Metadata)
	}

	if err := s.servicerepo.Create(ctx, record); err != nil {
		if pkgdb.IsDuplicateKeyErr(err) {
			return nil, catalogdomain.ErrDuplicateCode
		}
		return nil, err
	}
	return record, nil
}

func (s *Service) GetService(ctx context.Context, id snowflake.ID) (*catalogdomain.Service, error) {
	if id == 0 {
		return nil, catalogdomain.ErrUnknownService
	}
	record, err := s.servicerepo.FindOne(ctx, &catalogdomain.Service{ID: id})
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, catalogdomain.ErrUnknownService
	}
	return record, nil
}

func (s *Service) GetServiceByCode(ctx context.Context, code string) (*catalogdomain.Service, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, catalogdomain.ErrUnknownService
	}
	record, err := s.servicerepo.FindOne(ctx, &catalogdomain.Service{Code: code})
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, catalogdomain.ErrUnknownService
	}
	return record, nil
}

func (s *Service) ListServices(ctx context.Context, req catalogdomain.ListServiceRequest) ([]catalogdomain.Service, error) {
	filter := &catalogdomain.Service{}
	if req.ActiveOnly {
		filter.Active = true
	}
	items, err := s.servicerepo.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	services := make([]catalogdomain.Service, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		services = append(services, *item)
	}
	return services, nil
}

func (s *Service) CreatePlan(ctx context.Context, req catalogdomain.CreatePlanRequest) (*catalogdomain.Plan, error) {
	serviceID, err := snowflake.ParseString(strings.TrimSpace(req.ServiceID))
	if err != nil || serviceID == 0 {
		return nil, catalogdomain.ErrUnknownService
	}
	if _, err := s.GetService(ctx, serviceID); err != nil {
		return nil, err
	}
	if req.PricePerUnit < 0 {
		return nil, catalogdomain.ErrInvalidBasePrice
	}

	code := strings.TrimSpace(req.Code)
	if code == "" {
		code = slug.Make(req.Name)
	}

	now := time.Now().UTC()
	record := &catalogdomain.Plan{
		ID:           s.genID.Generate(),
		ServiceID:    serviceID,
		Code:         code,
		Name:         strings.TrimSpace(req.Name),
		PricePerUnit: req.PricePerUnit,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.planrepo.Create(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

func (s *Service) GetPlan(ctx context.Context, id snowflake.ID) (*catalogdomain.Plan, error) {
	if id == 0 {
		return nil, catalogdomain.ErrUnknownPlan
	}
	record, err := s.planrepo.FindOne(ctx, &catalogdomain.Plan{ID: id})
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, catalogdomain.ErrUnknownPlan
	}
	return record, nil
}
