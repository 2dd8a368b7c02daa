package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	directorydomain "github.com/revora/revora/internal/directory/domain"
	pkgdb "github.com/revora/revora/pkg/db"
	"github.com/revora/revora/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
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

	genID        *snowflake.Node
	resellerrepo repository.Repository[directorydomain.Reseller]
	clientrepo   repository.Repository[directorydomain.Client]
}

func NewService(p ServiceParam) directorydomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("directory.service"),

		genID:        p.GenID,
		resellerrepo: repository.ProvideStore[directorydomain.Reseller](p.DB),
		clientrepo:   repository.ProvideStore[directorydomain.Client](p.DB),
	}
}

func (s *Service) CreateReseller(ctx context.Context, req directorydomain.CreateResellerRequest) (*directorydomain.Reseller, error) {
	if req.CommissionRate < 0 || req.CommissionRate > 100 {
		return nil, directorydomain.ErrInvalidCommissionRate
	}

	now := time.Now().UTC()
	record := &directorydomain.Reseller{
		ID:             s.genID.Generate(),
		Name:           strings.TrimSpace(req.Name),
		Email:          strings.ToLower(strings.TrimSpace(req.Email)),
		CommissionRate: req.CommissionRate,
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.resellerrepo.Create(ctx, record); err != nil {
		if pkgdb.IsDuplicateKeyErr(err) {
			return nil, directorydomain.ErrDuplicateEmail
		}
		return nil, err
	}
	return record, nil
}

func (s *Service) GetReseller(ctx context.Context, id snowflake.ID) (*directorydomain.Reseller, error) {
	if id == 0 {
		return nil, directorydomain.ErrResellerNotFound
	}
	record, err := s.resellerrepo.FindOne(ctx, &directorydomain.Reseller{ID: id})
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, directorydomain.ErrResellerNotFound
	}
	return record, nil
}

func (s *Service) SetCommissionRate(ctx context.Context, id snowflake.ID, rate int64) error {
	if rate < 0 || rate > 100 {
		return directorydomain.ErrInvalidCommissionRate
	}
	if _, err := s.GetReseller(ctx, id); err != nil {
		return err
	}
	return s.resellerrepo.Update(ctx, id.String(), map[string]any{
		"commission_rate": rate,
		"updated_at":      time.Now().UTC(),
	})
}

func (s *Service) CreateClient(ctx context.Context, req directorydomain.CreateClientRequest) (*directorydomain.Client, error) {
	resellerID, err := snowflake.ParseString(strings.TrimSpace(req.ResellerID))
	if err != nil || resellerID == 0 {
		return nil, directorydomain.ErrResellerNotFound
	}
	if _, err := s.GetReseller(ctx, resellerID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	record := &directorydomain.Client{
		ID:         s.genID.Generate(),
		ResellerID: resellerID,
		Name:       strings.TrimSpace(req.Name),
		Email:      strings.ToLower(strings.TrimSpace(req.Email)),
		Phone:      strings.TrimSpace(req.Phone),
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.clientrepo.Create(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

func (s *Service) GetClient(ctx context.Context, id snowflake.ID) (*directorydomain.Client, error) {
	if id == 0 {
		return nil, directorydomain.ErrClientNotFound
	}
	record, err := s.clientrepo.FindOne(ctx, &directorydomain.Client{ID: id})
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, directorydomain.ErrClientNotFound
	}
	return record, nil
}

func (s *Service) DeactivateClient(ctx context.Context, id snowflake.ID) error {
	if _, err := s.GetClient(ctx, id); err != nil {
		return err
	}
	return s.clientrepo.Update(ctx, id.String(), map[string]any{
		"active":     false,
		"updated_at": time.Now().UTC(),
	})
}
