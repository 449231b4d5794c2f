package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/smallbiznis/rentledger/internal/invoice/domain"
	pkgdb "github.com/smallbiznis/rentledger/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// GenerateRent produces the draft rent invoice for one occupancy and one
// billing month. The invoice number is derived from the period and the
// occupancy, so a second call for the same pair hits the per-company
// unique index and fails with a conflict instead of double-billing.
func (s *Service) GenerateRent(ctx context.Context, req invoicedomain.GenerateRentRequest) (invoicedomain.Invoice, error) {
	if req.CompanyID == 0 {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidCompany
	}

	period, err := parseMonth(req.Month)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	dueDay, err := s.resolveDueDay(req.DueDay)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	occupancy, err := s.loadBillableOccupancy(ctx, req.CompanyID, req.OccupancyID)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	invoiceDate := time.Date(period.Year(), period.Month(), 1, 0, 0, 0, 0, time.UTC)
	dueDate := time.Date(period.Year(), period.Month(), clampDay(period, dueDay), 0, 0, 0, 0, time.UTC)
	invoiceNumber := rentInvoiceNumber(period, occupancy.ID)

	now := s.clock.Now()
	invoiceID := s.genID.Generate()
	invoice := invoicedomain.Invoice{
		ID:            invoiceID,
		CompanyID:     req.CompanyID,
		OccupancyID:   occupancy.ID,
		TenantID:      occupancy.TenantID,
		InvoiceNumber: invoiceNumber,
		Status:        invoicedomain.InvoiceStatusDraft,
		InvoiceDate:   invoiceDate,
		DueDate:       dueDate,
		Subtotal:      occupancy.MonthlyRent,
		TaxAmount:     0,
		TotalAmount:   occupancy.MonthlyRent,
		Currency:      occupancy.Currency,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	lineItem := invoicedomain.InvoiceLineItem{
		ID:          s.genID.Generate(),
		CompanyID:   req.CompanyID,
		InvoiceID:   invoiceID,
		Description: fmt.Sprintf("Monthly Rent - %s %d", period.Month(), period.Year()),
		Quantity:    1,
		UnitPrice:   occupancy.MonthlyRent,
		Amount:      occupancy.MonthlyRent,
		Type:        invoicedomain.LineItemTypeRent,
		CreatedAt:   now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := findInvoiceNumber(ctx, tx, req.CompanyID, invoiceNumber)
		if err != nil {
			return err
		}
		if existing != 0 {
			return invoicedomain.ErrInvoiceExists
		}

		if err := tx.WithContext(ctx).Create(&invoice).Error; err != nil {
			if pkgdb.IsDuplicateKeyErr(err) {
				return invoicedomain.ErrInvoiceExists
			}
			return err
		}
		return tx.WithContext(ctx).Create(&lineItem).Error
	})
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	invoice.LineItems = []invoicedomain.InvoiceLineItem{lineItem}

	s.metrics.RecordInvoiceGenerated(ctx, "generator")
	s.log.Info("generated rent invoice",
		zap.String("company_id", req.CompanyID.String()),
		zap.String("occupancy_id", occupancy.ID.String()),
		zap.String("invoice_number", invoiceNumber),
	)
	s.emitAudit(ctx, "invoice.generated", &invoice, map[string]any{
		"billing_month": period.Format("2006-01"),
	})
	return invoice, nil
}

func (s *Service) resolveDueDay(dueDay int) (int, error) {
	if dueDay == 0 {
		return s.billing.Get().DefaultDueDay, nil
	}
	if dueDay < 1 || dueDay > 31 {
		return 0, invoicedomain.ErrInvalidDueDay
	}
	return dueDay, nil
}

func parseMonth(raw string) (time.Time, error) {
	period, err := time.Parse("2006-01", raw)
	if err != nil {
		return time.Time{}, invoicedomain.ErrInvalidMonth
	}
	return period, nil
}

// clampDay pins the due day inside the billing month, so dueDay=31 in a
// 30-day month falls on the last day instead of rolling over.
func clampDay(period time.Time, day int) int {
	last := time.Date(period.Year(), period.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if day > last {
		return last
	}
	return day
}

// rentInvoiceNumber is the deterministic per-period number that doubles as
// the generator's idempotency key.
func rentInvoiceNumber(period time.Time, occupancyID snowflake.ID) string {
	return fmt.Sprintf("INV-%s-%s", period.Format("200601"), occupancyID.String())
}

func manualInvoiceNumber(invoiceDate time.Time, invoiceID snowflake.ID) string {
	return fmt.Sprintf("INV-%s-M%s", invoiceDate.Format("200601"), invoiceID.String())
}

func findInvoiceNumber(ctx context.Context, tx *gorm.DB, companyID snowflake.ID, number string) (snowflake.ID, error) {
	var id snowflake.ID
	err := tx.WithContext(ctx).Raw(
		`SELECT id FROM invoices WHERE company_id = ? AND invoice_number = ?`,
		companyID, number,
	).Scan(&id).Error
	if err != nil {
		return 0, err
	}
	return id, nil
}
