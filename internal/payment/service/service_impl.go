package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/rentledger/internal/audit/domain"
	"github.com/smallbiznis/rentledger/internal/clock"
	invoicedomain "github.com/smallbiznis/rentledger/internal/invoice/domain"
	"github.com/smallbiznis/rentledger/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/rentledger/internal/payment/domain"
	pkgdb "github.com/smallbiznis/rentledger/pkg/db"
	"github.com/smallbiznis/rentledger/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Metrics  *metrics.Metrics    `optional:"true"`
	AuditSvc auditdomain.Service `optional:"true"`
}

// Service is the only code path that mutates an invoice's amount_paid.
// Every operation runs as one transaction over the payment row and its
// invoice, with the invoice row locked so concurrent outstanding-balance
// checks serialize instead of losing updates.
type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock

	metrics     *metrics.Metrics
	paymentrepo repository.Repository[paymentdomain.Payment]
	auditSvc    auditdomain.Service
}

func NewService(p ServiceParam) paymentdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("payment.service"),
		genID: p.GenID,
		clock: p.Clock,

		metrics:     p.Metrics,
		paymentrepo: repository.ProvideStore[paymentdomain.Payment](p.DB),
		auditSvc:    p.AuditSvc,
	}
}

func (s *Service) Create(ctx context.Context, req paymentdomain.CreatePaymentRequest) (paymentdomain.Payment, error) {
	if req.CompanyID == 0 {
		return paymentdomain.Payment{}, invoicedomain.ErrInvalidCompany
	}
	if req.InvoiceID == 0 {
		return paymentdomain.Payment{}, invoicedomain.ErrInvoiceNotFound
	}
	if req.Amount <= 0 {
		return paymentdomain.Payment{}, paymentdomain.ErrInvalidAmount
	}
	if !paymentdomain.IsValidMethod(req.Method) {
		return paymentdomain.Payment{}, paymentdomain.ErrInvalidMethod
	}

	idempotencyKey := strings.TrimSpace(req.IdempotencyKey)
	paidAt := req.PaidAt
	if paidAt.IsZero() {
		paidAt = s.clock.Now()
	}

	var created paymentdomain.Payment
	var replayed bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if idempotencyKey != "" {
			existing, err := findByIdempotencyKey(ctx, tx, req.CompanyID, idempotencyKey)
			if err != nil {
				return err
			}
			if existing != nil {
				created = *existing
				replayed = true
				return nil
			}
		}

		invoice, err := loadInvoiceForUpdate(ctx, tx, req.CompanyID, req.InvoiceID)
		if err != nil {
			return err
		}

		outstanding := invoice.TotalAmount - invoice.AmountPaid
		if req.Amount > outstanding {
			return &paymentdomain.ExceedsTotalError{Outstanding: outstanding}
		}

		now := s.clock.Now()
		payment := paymentdomain.Payment{
			ID:        s.genID.Generate(),
			CompanyID: req.CompanyID,
			InvoiceID: invoice.ID,
			Amount:    req.Amount,
			PaidAt:    paidAt,
			Method:    req.Method,
			Reference: strings.TrimSpace(req.Reference),
			Metadata:  datatypes.JSONMap(req.Metadata),
			Notes:     strings.TrimSpace(req.Notes),
			IsActive:  true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if idempotencyKey != "" {
			payment.IdempotencyKey = &idempotencyKey
		}

		if err := tx.WithContext(ctx).Create(&payment).Error; err != nil {
			if idempotencyKey != "" && pkgdb.IsDuplicateKeyErr(err) {
				// Two retries raced past the pre-check; the first insert won.
				existing, ferr := findByIdempotencyKey(ctx, tx, req.CompanyID, idempotencyKey)
				if ferr == nil && existing != nil {
					created = *existing
					replayed = true
					return nil
				}
			}
			return err
		}

		if err := s.applyToInvoice(ctx, tx, invoice, invoice.AmountPaid+req.Amount, now); err != nil {
			return err
		}

		created = payment
		return nil
	})
	if err != nil {
		return paymentdomain.Payment{}, err
	}

	if !replayed {
		s.metrics.RecordPayment(ctx, string(created.Method))
		s.emitAudit(ctx, "payment.recorded", &created, nil)
	}
	return created, nil
}

func (s *Service) List(ctx context.Context, companyID snowflake.ID, req paymentdomain.ListPaymentRequest) ([]paymentdomain.Payment, error) {
	if companyID == 0 {
		return nil, invoicedomain.ErrInvalidCompany
	}

	stmt := s.db.WithContext(ctx).Model(&paymentdomain.Payment{}).
		Where("company_id = ?", companyID)
	if req.InvoiceID != nil {
		stmt = stmt.Where("invoice_id = ?", *req.InvoiceID)
	}
	if !req.IncludeInactive {
		stmt = stmt.Where("is_active = ?", true)
	}

	var payments []paymentdomain.Payment
	if err := stmt.Order("paid_at desc, id desc").Find(&payments).Error; err != nil {
		return nil, err
	}
	return payments, nil
}

func (s *Service) GetByID(ctx context.Context, companyID snowflake.ID, id string) (paymentdomain.Payment, error) {
	if companyID == 0 {
		return paymentdomain.Payment{}, invoicedomain.ErrInvalidCompany
	}
	paymentID, err := parsePaymentID(id)
	if err != nil {
		return paymentdomain.Payment{}, err
	}

	item, err := s.paymentrepo.FindOne(ctx, &paymentdomain.Payment{ID: paymentID, CompanyID: companyID})
	if err != nil {
		return paymentdomain.Payment{}, err
	}
	if item == nil {
		return paymentdomain.Payment{}, paymentdomain.ErrPaymentNotFound
	}
	return *item, nil
}

func (s *Service) Update(ctx context.Context, companyID snowflake.ID, id string, req paymentdomain.UpdatePaymentRequest) (paymentdomain.Payment, error) {
	if companyID == 0 {
		return paymentdomain.Payment{}, invoicedomain.ErrInvalidCompany
	}
	paymentID, err := parsePaymentID(id)
	if err != nil {
		return paymentdomain.Payment{}, err
	}
	if req.Amount != nil && *req.Amount <= 0 {
		return paymentdomain.Payment{}, paymentdomain.ErrInvalidAmount
	}
	if req.Method != nil && !paymentdomain.IsValidMethod(*req.Method) {
		return paymentdomain.Payment{}, paymentdomain.ErrInvalidMethod
	}

	var updated paymentdomain.Payment
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payment, err := loadActivePayment(ctx, tx, companyID, paymentID)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		if req.Amount != nil && *req.Amount != payment.Amount {
			invoice, err := loadInvoiceForUpdate(ctx, tx, companyID, payment.InvoiceID)
			if err != nil {
				return err
			}

			newPaid := invoice.AmountPaid - payment.Amount + *req.Amount
			if newPaid < 0 {
				return paymentdomain.ErrNegativeBalance
			}
			if newPaid > invoice.TotalAmount {
				return &paymentdomain.ExceedsTotalError{Outstanding: invoice.TotalAmount - invoice.AmountPaid + payment.Amount}
			}
			if err := s.applyToInvoice(ctx, tx, invoice, newPaid, now); err != nil {
				return err
			}
			payment.Amount = *req.Amount
		}

		if req.PaidAt != nil {
			payment.PaidAt = *req.PaidAt
		}
		if req.Method != nil {
			payment.Method = *req.Method
		}
		if req.Reference != nil {
			payment.Reference = strings.TrimSpace(*req.Reference)
		}
		if req.Notes != nil {
			payment.Notes = strings.TrimSpace(*req.Notes)
		}
		payment.UpdatedAt = now

		if err := tx.WithContext(ctx).Exec(
			`UPDATE payments
			 SET amount = ?, paid_at = ?, method = ?, reference = ?, notes = ?, updated_at = ?
			 WHERE id = ? AND company_id = ?`,
			payment.Amount, payment.PaidAt, payment.Method, payment.Reference, payment.Notes, payment.UpdatedAt,
			paymentID, companyID,
		).Error; err != nil {
			return err
		}

		updated = *payment
		return nil
	})
	if err != nil {
		return paymentdomain.Payment{}, err
	}

	s.emitAudit(ctx, "payment.updated", &updated, nil)
	return updated, nil
}

// Remove soft-deletes a payment and reverses its amount on the invoice.
func (s *Service) Remove(ctx context.Context, companyID snowflake.ID, id string) error {
	if companyID == 0 {
		return invoicedomain.ErrInvalidCompany
	}
	paymentID, err := parsePaymentID(id)
	if err != nil {
		return err
	}

	var removed paymentdomain.Payment
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payment, err := loadActivePayment(ctx, tx, companyID, paymentID)
		if err != nil {
			return err
		}
		invoice, err := loadInvoiceForUpdate(ctx, tx, companyID, payment.InvoiceID)
		if err != nil {
			return err
		}

		newPaid := invoice.AmountPaid - payment.Amount
		if newPaid < 0 {
			newPaid = 0
		}

		now := s.clock.Now()
		if err := s.applyToInvoice(ctx, tx, invoice, newPaid, now); err != nil {
			return err
		}
		if err := tx.WithContext(ctx).Exec(
			`UPDATE payments SET is_active = ?, updated_at = ? WHERE id = ? AND company_id = ?`,
			false, now, paymentID, companyID,
		).Error; err != nil {
			return err
		}

		removed = *payment
		return nil
	})
	if err != nil {
		return err
	}

	s.metrics.RecordPaymentReversal(ctx, "removed")
	s.emitAudit(ctx, "payment.removed", &removed, nil)
	return nil
}

// Activate restores a soft-deleted payment and re-applies its amount.
func (s *Service) Activate(ctx context.Context, companyID snowflake.ID, id string) (paymentdomain.Payment, error) {
	if companyID == 0 {
		return paymentdomain.Payment{}, invoicedomain.ErrInvalidCompany
	}
	paymentID, err := parsePaymentID(id)
	if err != nil {
		return paymentdomain.Payment{}, err
	}

	var activated paymentdomain.Payment
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payment, err := loadPayment(ctx, tx, companyID, paymentID)
		if err != nil {
			return err
		}
		if payment.IsActive {
			return paymentdomain.ErrPaymentActive
		}
		invoice, err := loadInvoiceForUpdate(ctx, tx, companyID, payment.InvoiceID)
		if err != nil {
			return err
		}

		newPaid := invoice.AmountPaid + payment.Amount
		if newPaid > invoice.TotalAmount {
			return &paymentdomain.ExceedsTotalError{Outstanding: invoice.TotalAmount - invoice.AmountPaid}
		}

		now := s.clock.Now()
		if err := s.applyToInvoice(ctx, tx, invoice, newPaid, now); err != nil {
			return err
		}
		if err := tx.WithContext(ctx).Exec(
			`UPDATE payments SET is_active = ?, updated_at = ? WHERE id = ? AND company_id = ?`,
			true, now, paymentID, companyID,
		).Error; err != nil {
			return err
		}

		payment.IsActive = true
		payment.UpdatedAt = now
		activated = *payment
		return nil
	})
	if err != nil {
		return paymentdomain.Payment{}, err
	}

	s.emitAudit(ctx, "payment.activated", &activated, nil)
	return activated, nil
}

// applyToInvoice writes the re-derived paid amount and the status it
// implies. Fully paid flips to paid with a paid date; dropping below the
// total reverts a paid invoice to sent and clears the paid date; the first
// money on a draft promotes it to sent.
func (s *Service) applyToInvoice(ctx context.Context, tx *gorm.DB, invoice *invoicedomain.Invoice, newPaid int64, now time.Time) error {
	previous := invoice.Status

	invoice.AmountPaid = newPaid
	switch {
	case newPaid >= invoice.TotalAmount && invoice.TotalAmount > 0:
		invoice.Status = invoicedomain.InvoiceStatusPaid
		if invoice.PaidDate == nil {
			invoice.PaidDate = &now
		}
	case previous == invoicedomain.InvoiceStatusPaid:
		invoice.Status = invoicedomain.InvoiceStatusSent
		invoice.PaidDate = nil
	case newPaid > 0 && previous == invoicedomain.InvoiceStatusDraft:
		invoice.Status = invoicedomain.InvoiceStatusSent
	}
	invoice.UpdatedAt = now

	if err := tx.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET amount_paid = ?, status = ?, paid_date = ?, updated_at = ?
		 WHERE id = ? AND company_id = ?`,
		invoice.AmountPaid, invoice.Status, invoice.PaidDate, invoice.UpdatedAt,
		invoice.ID, invoice.CompanyID,
	).Error; err != nil {
		return err
	}

	if invoice.Status != previous {
		s.metrics.RecordStatusTransition(ctx, string(previous), string(invoice.Status))
	}
	return nil
}

func (s *Service) emitAudit(ctx context.Context, action string, payment *paymentdomain.Payment, extra map[string]any) {
	if s.auditSvc == nil || payment == nil {
		return
	}
	metadata := map[string]any{
		"invoice_id": payment.InvoiceID.String(),
		"amount":     payment.Amount,
		"method":     string(payment.Method),
	}
	if payment.Reference != "" {
		metadata["reference"] = payment.Reference
	}
	for key, value := range extra {
		if key == "" {
			continue
		}
		metadata[key] = value
	}

	targetID := payment.ID.String()
	companyID := payment.CompanyID
	_ = s.auditSvc.AuditLog(ctx, &companyID, "", nil, action, "payment", &targetID, metadata)
}

func loadInvoiceForUpdate(ctx context.Context, tx *gorm.DB, companyID, invoiceID snowflake.ID) (*invoicedomain.Invoice, error) {
	var invoice invoicedomain.Invoice
	err := tx.WithContext(ctx).Raw(
		`SELECT * FROM invoices
		 WHERE id = ? AND company_id = ? AND is_active = ?`+pkgdb.RowLock(tx),
		invoiceID, companyID, true,
	).Scan(&invoice).Error
	if err != nil {
		return nil, err
	}
	if invoice.ID == 0 {
		return nil, invoicedomain.ErrInvoiceNotFound
	}
	return &invoice, nil
}

func loadPayment(ctx context.Context, tx *gorm.DB, companyID, paymentID snowflake.ID) (*paymentdomain.Payment, error) {
	var payment paymentdomain.Payment
	err := tx.WithContext(ctx).Raw(
		`SELECT * FROM payments WHERE id = ? AND company_id = ?`,
		paymentID, companyID,
	).Scan(&payment).Error
	if err != nil {
		return nil, err
	}
	if payment.ID == 0 {
		return nil, paymentdomain.ErrPaymentNotFound
	}
	return &payment, nil
}

func loadActivePayment(ctx context.Context, tx *gorm.DB, companyID, paymentID snowflake.ID) (*paymentdomain.Payment, error) {
	payment, err := loadPayment(ctx, tx, companyID, paymentID)
	if err != nil {
		return nil, err
	}
	if !payment.IsActive {
		return nil, paymentdomain.ErrPaymentNotFound
	}
	return payment, nil
}

func findByIdempotencyKey(ctx context.Context, tx *gorm.DB, companyID snowflake.ID, key string) (*paymentdomain.Payment, error) {
	var payment paymentdomain.Payment
	err := tx.WithContext(ctx).Raw(
		`SELECT * FROM payments
		 WHERE company_id = ? AND idempotency_key = ? AND is_active = ?`,
		companyID, key, true,
	).Scan(&payment).Error
	if err != nil {
		return nil, err
	}
	if payment.ID == 0 {
		return nil, nil
	}
	return &payment, nil
}

func parsePaymentID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || id == 0 {
		return 0, paymentdomain.ErrInvalidPaymentID
	}
	return id, nil
}
