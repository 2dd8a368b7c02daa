package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/revora/revora/internal/catalog/domain"
	"github.com/revora/revora/internal/clock"
	"github.com/revora/revora/internal/config"
	directorydomain "github.com/revora/revora/internal/directory/domain"
	"github.com/revora/revora/internal/events"
	"github.com/revora/revora/internal/invoice/domain"
	"github.com/revora/revora/internal/invoice/render"
	"github.com/revora/revora/internal/observability/metrics"
	"github.com/revora/revora/internal/tax"
	usagedomain "github.com/revora/revora/internal/usage/domain"
	pkgdb "github.com/revora/revora/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ServiceParam struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Billing   *config.BillingConfigHolder
	Catalog   catalogdomain.Catalog
	Directory directorydomain.Service
	Ledger    usagedomain.Ledger
	Tax       *tax.Resolver
	Outbox    *events.Outbox
	Metrics   *metrics.Metrics
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID     *snowflake.Node
	clock     clock.Clock
	billing   *config.BillingConfigHolder
	catalog   catalogdomain.Catalog
	directory directorydomain.Service
	ledger    usagedomain.Ledger
	tax       *tax.Resolver
	outbox    *events.Outbox
	metrics   *metrics.Metrics
}

func NewService(p ServiceParam) domain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("invoice.service"),

		genID:     p.GenID,
		clock:     p.Clock,
		billing:   p.Billing,
		catalog:   p.Catalog,
		directory: p.Directory,
		ledger:    p.Ledger,
		tax:       p.Tax,
		outbox:    p.Outbox,
		metrics:   p.Metrics,
	}
}

// Generate prices the client's ledger over [period_start, period_end) and
// writes a DRAFT invoice. The ledger is the single source of the amounts:
// line items carry the snapshotted unit prices, so subtotal, tax and total
// are exact integer arithmetic.
func (s *Service) Generate(ctx context.Context, req domain.GenerateRequest) (*domain.Invoice, error) {
	clientID, err := snowflake.ParseString(strings.TrimSpace(req.ClientID))
	if err != nil || clientID == 0 {
		return nil, directorydomain.ErrClientNotFound
	}
	periodStart, err := parsePeriod(req.PeriodStart)
	if err != nil {
		return nil, err
	}
	periodEnd, err := parsePeriod(req.PeriodEnd)
	if err != nil {
		return nil, err
	}
	if !periodStart.Before(periodEnd) {
		return nil, domain.ErrInvalidPeriod
	}

	client, err := s.directory.GetClient(ctx, clientID)
	if err != nil {
		return nil, err
	}

	rollups, err := s.ledger.AggregateWindow(ctx, client.ResellerID, clientID, periodStart, periodEnd)
	if err != nil {
		return nil, err
	}
	if len(rollups) == 0 {
		return nil, domain.ErrNoUsage
	}

	now := s.clock.Now()
	billing := s.billing.Get()

	var subtotal int64
	currency := "INR"
	items := make([]domain.InvoiceLineItem, 0, len(rollups))
	for _, rollup := range rollups {
		svc, err := s.catalog.GetService(ctx, rollup.ServiceID)
		if err != nil {
			return nil, err
		}
		if rollup.Currency != "" {
			currency = rollup.Currency
		}
		subtotal += rollup.Amount
		items = append(items, domain.InvoiceLineItem{
			ID:          s.genID.Generate(),
			ServiceID:   rollup.ServiceID,
			ServiceName: svc.Name,
			Units:       rollup.Units,
			UnitPrice:   rollup.UnitPrice,
			Amount:      rollup.Amount,
			CreatedAt:   now,
		})
	}

	taxAmount := s.tax.Current().Apply(subtotal)
	record := &domain.Invoice{
		ID:             s.genID.Generate(),
		ResellerID:     client.ResellerID,
		ClientID:       clientID,
		PeriodStart:    periodStart,
		PeriodEnd:      periodEnd,
		Status:         domain.InvoiceStatusDraft,
		Currency:       currency,
		Subtotal:       subtotal,
		Tax:            taxAmount,
		Total:          subtotal + taxAmount,
		TaxRatePercent: billing.TaxRatePercent,
		IssuedAt:       now,
		DueAt:          now.AddDate(0, 0, billing.PaymentTermDays),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	for i := range items {
		items[i].InvoiceID = record.ID
	}
	record.LineItems = items

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		number, err := s.nextNumber(ctx, tx, client.ResellerID, periodStart, now)
		if err != nil {
			return err
		}
		record.Number = number
		return tx.Create(record).Error
	})
	if err != nil {
		if pkgdb.IsDuplicateKeyErr(err) {
			return nil, domain.ErrDuplicateInvoice
		}
		return nil, err
	}

	s.metrics.RecordInvoice(ctx, string(domain.InvoiceStatusDraft))
	s.log.Info("invoice generated",
		zap.String("invoice_number", record.Number),
		zap.Int64("client_id", int64(clientID)),
		zap.Int64("total", record.Total),
	)
	return record, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Invoice, error) {
	var invoice domain.Invoice
	err := s.db.WithContext(ctx).
		Preload("LineItems").
		Where("id = ?", id).
		First(&invoice).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, domain.ErrInvoiceNotFound
		}
		return nil, err
	}
	return &invoice, nil
}

func (s *Service) List(ctx context.Context, req domain.ListInvoiceRequest) ([]domain.Invoice, error) {
	q := s.db.WithContext(ctx).Model(&domain.Invoice{}).Preload("LineItems")
	if id, err := snowflake.ParseString(strings.TrimSpace(req.ResellerID)); err == nil && id != 0 {
		q = q.Where("reseller_id = ?", id)
	}
	if id, err := snowflake.ParseString(strings.TrimSpace(req.ClientID)); err == nil && id != 0 {
		q = q.Where("client_id = ?", id)
	}
	if status := strings.TrimSpace(req.Status); status != "" {
		q = q.Where("status = ?", strings.ToUpper(status))
	}

	var invoices []domain.Invoice
	if err := q.Order("created_at desc").Find(&invoices).Error; err != nil {
		return nil, err
	}
	return invoices, nil
}

// Transition moves the invoice through the status machine. Illegal moves,
// including anything out of PAID or CANCELLED, return ErrInvalidTransition.
func (s *Service) Transition(ctx context.Context, id snowflake.ID, to domain.InvoiceStatus) (*domain.Invoice, error) {
	now := s.clock.Now()

	var invoice domain.Invoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.WithContext(ctx)
		if !pkgdb.IsSQLite(tx) {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		if err := q.Where("id = ?", id).First(&invoice).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return domain.ErrInvoiceNotFound
			}
			return err
		}

		if !domain.CanTransition(invoice.Status, to) {
			return domain.ErrInvalidTransition
		}

		updates := map[string]any{"status": to, "updated_at": now}
		if to == domain.InvoiceStatusPaid {
			updates["paid_at"] = now
		}
		if err := tx.WithContext(ctx).
			Model(&domain.Invoice{}).
			Where("id = ?", id).
			Updates(updates).Error; err != nil {
			return err
		}

		invoice.Status = to
		invoice.UpdatedAt = now
		if to == domain.InvoiceStatusPaid {
			invoice.PaidAt = &now
		}

		if eventType := transitionEvent(to); eventType != "" {
			return s.outbox.PublishTx(ctx, tx, events.Event{
				ResellerID: invoice.ResellerID,
				Type:       eventType,
				Payload: events.InvoicePayload{
					InvoiceID:     invoice.ID.String(),
					InvoiceNumber: invoice.Number,
					ClientID:      invoice.ClientID.String(),
					Total:         invoice.Total,
					Status:        string(to),
				}.ToMap(),
				DedupeKey: fmt.Sprintf("%s:%d", eventType, invoice.ID),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordInvoice(ctx, string(to))
	return &invoice, nil
}

func (s *Service) RenderPDF(ctx context.Context, id snowflake.ID) ([]byte, error) {
	invoice, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	client, err := s.directory.GetClient(ctx, invoice.ClientID)
	if err != nil {
		return nil, err
	}
	reseller, err := s.directory.GetReseller(ctx, invoice.ResellerID)
	if err != nil {
		return nil, err
	}

	items := make([]render.LineItem, 0, len(invoice.LineItems))
	for _, item := range invoice.LineItems {
		items = append(items, render.LineItem{
			Description: item.ServiceName,
			Units:       item.Units,
			UnitPrice:   render.Money(item.UnitPrice, invoice.Currency),
			Amount:      render.Money(item.Amount, invoice.Currency),
		})
	}

	return render.InvoicePDF(render.InvoiceData{
		ResellerName:  reseller.Name,
		ClientName:    client.Name,
		InvoiceNumber: invoice.Number,
		Status:        string(invoice.Status),
		IssueDate:     invoice.IssuedAt.Format("2006-01-02"),
		DueDate:       invoice.DueAt.Format("2006-01-02"),
		ServicePeriod: fmt.Sprintf("%s to %s", invoice.PeriodStart.Format("2006-01-02"), invoice.PeriodEnd.Format("2006-01-02")),
		Items:         items,
		Subtotal:      render.Money(invoice.Subtotal, invoice.Currency),
		Tax:           render.Money(invoice.Tax, invoice.Currency),
		Total:         render.Money(invoice.Total, invoice.Currency),
	})
}

// SweepOverdue flips SENT invoices past due date plus grace to OVERDUE and
// returns how many moved. Called from the scheduler.
func (s *Service) SweepOverdue(ctx context.Context, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 200
	}
	now := s.clock.Now()
	cutoff := now.AddDate(0, 0, -s.billing.Get().OverdueGraceDays)

	var ids []snowflake.ID
	err := s.db.WithContext(ctx).
		Model(&domain.Invoice{}).
		Where("status = ? AND due_at < ?", domain.InvoiceStatusSent, cutoff).
		Order("due_at asc").
		Limit(batchSize).
		Pluck("id", &ids).Error
	if err != nil {
		return 0, err
	}

	var moved int
	for _, id := range ids {
		if ctx.Err() != nil {
			return moved, ctx.Err()
		}
		if _, err := s.Transition(ctx, id, domain.InvoiceStatusOverdue); err != nil {
			s.log.Warn("overdue sweep skipped invoice",
				zap.Int64("invoice_id", int64(id)),
				zap.Error(err),
			)
			continue
		}
		moved++
	}
	return moved, nil
}

// nextNumber allocates the reseller's next sequential invoice number under
// the row lock so concurrent generation cannot collide.
func (s *Service) nextNumber(ctx context.Context, tx *gorm.DB, resellerID snowflake.ID, periodStart, now time.Time) (string, error) {
	if err := tx.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&domain.InvoiceSequence{ResellerID: resellerID, NextValue: 1, UpdatedAt: now}).Error; err != nil {
		return "", err
	}

	q := tx.WithContext(ctx)
	if !pkgdb.IsSQLite(tx) {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var seq domain.InvoiceSequence
	if err := q.Where("reseller_id = ?", resellerID).First(&seq).Error; err != nil {
		return "", err
	}

	if err := tx.WithContext(ctx).
		Model(&domain.InvoiceSequence{}).
		Where("reseller_id = ?", resellerID).
		Updates(map[string]any{
			"next_value": gorm.Expr("next_value + 1"),
			"updated_at": now,
		}).Error; err != nil {
		return "", err
	}

	return fmt.Sprintf("INV-%d-%s-%05d", resellerID, periodStart.Format("200601"), seq.NextValue), nil
}

func transitionEvent(to domain.InvoiceStatus) string {
	switch to {
	case domain.InvoiceStatusSent:
		return events.EventInvoiceSent
	case domain.InvoiceStatusPaid:
		return events.EventInvoicePaid
	case domain.InvoiceStatusOverdue:
		return events.EventInvoiceOverdue
	}
	return ""
}

func parsePeriod(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, domain.ErrInvalidPeriod
}
