package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/revora/revora/internal/commission/domain"
	directorydomain "github.com/revora/revora/internal/directory/domain"
	invoicedomain "github.com/revora/revora/internal/invoice/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Directory directorydomain.Service
	Invoices  invoicedomain.Service
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	directory directorydomain.Service
	invoices  invoicedomain.Service
}

func NewService(p ServiceParam) domain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("commission.service"),

		directory: p.Directory,
		invoices:  p.Invoices,
	}
}

// CommissionFor computes the reseller's cut of one invoice. Only the
// reseller's own PAID invoices are eligible.
func (s *Service) CommissionFor(ctx context.Context, resellerID, invoiceID snowflake.ID) (*domain.Commission, error) {
	reseller, err := s.directory.GetReseller(ctx, resellerID)
	if err != nil {
		return nil, err
	}

	invoice, err := s.invoices.Get(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice.ResellerID != resellerID {
		return nil, domain.ErrNotEligible
	}
	if invoice.Status != invoicedomain.InvoiceStatusPaid {
		return nil, domain.ErrNotEligible
	}

	return &domain.Commission{
		InvoiceID:   invoice.ID,
		ResellerID:  resellerID,
		RatePercent: reseller.CommissionRate,
		Base:        invoice.Total,
		Amount:      domain.Compute(invoice.Total, reseller.CommissionRate),
		Currency:    invoice.Currency,
	}, nil
}

// WindowReport sums commissions over invoices whose paid_at falls inside
// [from, to). PAID is terminal, so a settled invoice is counted exactly
// once no matter how often the window is queried.
func (s *Service) WindowReport(ctx context.Context, resellerID snowflake.ID, from, to time.Time) (*domain.Report, error) {
	if !from.Before(to) {
		return nil, domain.ErrInvalidWindow
	}
	reseller, err := s.directory.GetReseller(ctx, resellerID)
	if err != nil {
		return nil, err
	}

	var invoices []invoicedomain.Invoice
	err = s.db.WithContext(ctx).
		Where("reseller_id = ? AND status = ? AND paid_at >= ? AND paid_at < ?",
			resellerID, invoicedomain.InvoiceStatusPaid, from.UTC(), to.UTC()).
		Order("paid_at asc").
		Find(&invoices).Error
	if err != nil {
		return nil, err
	}

	report := &domain.Report{
		ResellerID: resellerID,
		From:       from.UTC(),
		To:         to.UTC(),
		Currency:   "INR",
	}
	for _, invoice := range invoices {
		report.InvoiceCount++
		report.Base += invoice.Total
		report.Amount += domain.Compute(invoice.Total, reseller.CommissionRate)
		report.Currency = invoice.Currency
	}
	return report, nil
}
