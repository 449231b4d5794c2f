package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/rentledger/internal/audit/domain"
	"github.com/smallbiznis/rentledger/internal/clock"
	"github.com/smallbiznis/rentledger/internal/config"
	invoicedomain "github.com/smallbiznis/rentledger/internal/invoice/domain"
	occupancydomain "github.com/smallbiznis/rentledger/internal/occupancy/domain"
	"github.com/smallbiznis/rentledger/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/rentledger/internal/payment/domain"
	"github.com/smallbiznis/rentledger/internal/ratelimit"
	pkgdb "github.com/smallbiznis/rentledger/pkg/db"
	"github.com/smallbiznis/rentledger/pkg/db/option"
	"github.com/smallbiznis/rentledger/pkg/db/pagination"
	"github.com/smallbiznis/rentledger/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Billing  *config.BillingConfigHolder
	Metrics  *metrics.Metrics               `optional:"true"`
	Limiter  *ratelimit.BulkGenerateLimiter `optional:"true"`
	AuditSvc auditdomain.Service            `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock

	billing *config.BillingConfigHolder
	metrics *metrics.Metrics
	limiter *ratelimit.BulkGenerateLimiter

	invoicerepo   repository.Repository[invoicedomain.Invoice]
	occupancyrepo repository.Repository[occupancydomain.Occupancy]
	auditSvc      auditdomain.Service
}

func NewService(p ServiceParam) invoicedomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("invoice.service"),
		genID: p.GenID,
		clock: p.Clock,

		billing: p.Billing,
		metrics: p.Metrics,
		limiter: p.Limiter,

		invoicerepo:   repository.ProvideStore[invoicedomain.Invoice](p.DB),
		occupancyrepo: repository.ProvideStore[occupancydomain.Occupancy](p.DB),
		auditSvc:      p.AuditSvc,
	}
}

func (s *Service) Create(ctx context.Context, req invoicedomain.CreateInvoiceRequest) (invoicedomain.Invoice, error) {
	if req.CompanyID == 0 {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidCompany
	}

	occupancy, err := s.loadBillableOccupancy(ctx, req.CompanyID, req.OccupancyID)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	lineItems, subtotal, err := s.buildLineItems(req.CompanyID, req.LineItems)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	if req.TaxAmount < 0 {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidLineItem
	}

	tenantID := req.TenantID
	if tenantID == 0 {
		tenantID = occupancy.TenantID
	}
	currency := strings.TrimSpace(req.Currency)
	if currency == "" {
		currency = occupancy.Currency
	}

	now := s.clock.Now()
	invoiceDate := req.InvoiceDate
	if invoiceDate.IsZero() {
		invoiceDate = now
	}
	dueDate := req.DueDate
	if dueDate.IsZero() {
		dueDate = invoiceDate
	}

	invoiceID := s.genID.Generate()
	invoice := invoicedomain.Invoice{
		ID:            invoiceID,
		CompanyID:     req.CompanyID,
		OccupancyID:   occupancy.ID,
		TenantID:      tenantID,
		InvoiceNumber: manualInvoiceNumber(invoiceDate, invoiceID),
		Status:        invoicedomain.InvoiceStatusDraft,
		InvoiceDate:   invoiceDate,
		DueDate:       dueDate,
		Subtotal:      subtotal,
		TaxAmount:     req.TaxAmount,
		TotalAmount:   subtotal + req.TaxAmount,
		Currency:      currency,
		Notes:         strings.TrimSpace(req.Notes),
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.WithContext(ctx).Create(&invoice).Error; err != nil {
			if pkgdb.IsDuplicateKeyErr(err) {
				return invoicedomain.ErrInvoiceExists
			}
			return err
		}
		for i := range lineItems {
			lineItems[i].InvoiceID = invoiceID
			lineItems[i].CreatedAt = now
		}
		if err := tx.WithContext(ctx).Create(&lineItems).Error; err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	invoice.LineItems = make([]invoicedomain.InvoiceLineItem, 0, len(lineItems))
	for _, item := range lineItems {
		invoice.LineItems = append(invoice.LineItems, *item)
	}

	s.metrics.RecordInvoiceGenerated(ctx, "manual")
	s.emitAudit(ctx, "invoice.created", &invoice, nil)
	return invoice, nil
}

func (s *Service) List(ctx context.Context, companyID snowflake.ID, req invoicedomain.ListInvoiceRequest) (invoicedomain.ListInvoiceResponse, error) {
	if companyID == 0 {
		return invoicedomain.ListInvoiceResponse{}, invoicedomain.ErrInvalidCompany
	}

	filter := &invoicedomain.Invoice{CompanyID: companyID, IsActive: true}
	if req.Status != nil {
		if !invoicedomain.IsValidStatus(*req.Status) {
			return invoicedomain.ListInvoiceResponse{}, invoicedomain.ErrInvalidStatus
		}
		filter.Status = *req.Status
	}
	if req.OccupancyID != nil {
		filter.OccupancyID = *req.OccupancyID
	}
	if req.TenantID != nil {
		filter.TenantID = *req.TenantID
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > 250 {
		pageSize = 250
	}

	options := []option.QueryOption{
		option.WithSortBy(option.QuerySortBy{Allow: map[string]bool{"created_at": true}, Field: "created_at", Desc: true}),
		option.WithPreload("LineItems"),
		option.WithLimit(pageSize + 1),
	}
	if strings.TrimSpace(req.PageToken) != "" {
		cursor, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return invoicedomain.ListInvoiceResponse{}, err
		}
		createdAt, err := time.Parse(time.RFC3339Nano, cursor.CreatedAt)
		if err != nil {
			return invoicedomain.ListInvoiceResponse{}, err
		}
		options = append(options, option.ApplyOperator(option.Condition{
			Field:    "created_at",
			Operator: option.LT,
			Value:    createdAt,
		}))
	}
	if req.OverdueOnly {
		options = append(options,
			option.ApplyOperator(option.Condition{Field: "due_date", Operator: option.LT, Value: s.clock.Now()}),
			option.ApplyOperator(option.Condition{Field: "status", Operator: option.NEQ, Value: invoicedomain.InvoiceStatusPaid}),
			option.ApplyOperator(option.Condition{Field: "status", Operator: option.NEQ, Value: invoicedomain.InvoiceStatusCancelled}),
		)
	}
	if req.DueFrom != nil {
		options = append(options, option.ApplyOperator(option.Condition{Field: "due_date", Operator: option.GTE, Value: *req.DueFrom}))
	}
	if req.DueTo != nil {
		options = append(options, option.ApplyOperator(option.Condition{Field: "due_date", Operator: option.LTE, Value: *req.DueTo}))
	}
	if req.CreatedFrom != nil {
		options = append(options, option.ApplyOperator(option.Condition{Field: "created_at", Operator: option.GTE, Value: *req.CreatedFrom}))
	}
	if req.CreatedTo != nil {
		options = append(options, option.ApplyOperator(option.Condition{Field: "created_at", Operator: option.LTE, Value: *req.CreatedTo}))
	}

	items, err := s.invoicerepo.Find(ctx, filter, options...)
	if err != nil {
		return invoicedomain.ListInvoiceResponse{}, err
	}

	pageInfo, items := pagination.BuildCursorPageInfo(items, pageSize, func(item *invoicedomain.Invoice) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        item.ID.String(),
			CreatedAt: item.CreatedAt.Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})

	invoices := make([]invoicedomain.Invoice, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		invoices = append(invoices, *item)
	}

	resp := invoicedomain.ListInvoiceResponse{Invoices: invoices}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

func (s *Service) GetByID(ctx context.Context, companyID snowflake.ID, id string) (invoicedomain.Invoice, error) {
	if companyID == 0 {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidCompany
	}
	invoiceID, err := parseID(id)
	if err != nil {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidInvoiceID
	}

	item, err := s.invoicerepo.FindOne(ctx,
		&invoicedomain.Invoice{ID: invoiceID, CompanyID: companyID, IsActive: true},
		option.WithPreload("LineItems"),
	)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	if item == nil {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvoiceNotFound
	}
	return *item, nil
}

func (s *Service) Update(ctx context.Context, companyID snowflake.ID, id string, req invoicedomain.UpdateInvoiceRequest) (invoicedomain.Invoice, error) {
	if companyID == 0 {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidCompany
	}
	invoiceID, err := parseID(id)
	if err != nil {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidInvoiceID
	}

	var updated invoicedomain.Invoice
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := loadInvoiceForUpdate(ctx, tx, companyID, invoiceID)
		if err != nil {
			return err
		}
		if err := invoicedomain.ValidateUpdate(invoice.Status); err != nil {
			return err
		}

		now := s.clock.Now()
		if req.DueDate != nil {
			invoice.DueDate = *req.DueDate
		}
		if req.Notes != nil {
			invoice.Notes = strings.TrimSpace(*req.Notes)
		}
		if req.TaxAmount != nil {
			if *req.TaxAmount < 0 {
				return invoicedomain.ErrInvalidLineItem
			}
			invoice.TaxAmount = *req.TaxAmount
		}

		if len(req.LineItems) > 0 {
			lineItems, subtotal, err := s.buildLineItems(companyID, req.LineItems)
			if err != nil {
				return err
			}
			if err := tx.WithContext(ctx).Exec(
				`DELETE FROM invoice_line_items WHERE invoice_id = ? AND company_id = ?`,
				invoiceID, companyID,
			).Error; err != nil {
				return err
			}
			for i := range lineItems {
				lineItems[i].InvoiceID = invoiceID
				lineItems[i].CreatedAt = now
			}
			if err := tx.WithContext(ctx).Create(&lineItems).Error; err != nil {
				return err
			}
			invoice.Subtotal = subtotal
			invoice.LineItems = nil
		}

		invoice.TotalAmount = invoice.Subtotal + invoice.TaxAmount
		if invoice.TotalAmount < invoice.AmountPaid {
			return invoicedomain.ErrTotalBelowPaid
		}
		invoice.UpdatedAt = now

		if err := tx.WithContext(ctx).Exec(
			`UPDATE invoices
			 SET due_date = ?, notes = ?, tax_amount = ?, subtotal = ?, total_amount = ?, updated_at = ?
			 WHERE id = ? AND company_id = ?`,
			invoice.DueDate, invoice.Notes, invoice.TaxAmount, invoice.Subtotal, invoice.TotalAmount, invoice.UpdatedAt,
			invoiceID, companyID,
		).Error; err != nil {
			return err
		}

		updated = *invoice
		return nil
	})
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	s.emitAudit(ctx, "invoice.updated", &updated, nil)
	return s.GetByID(ctx, companyID, id)
}

// UpdateStatus applies a direct status change. Flipping an invoice straight
// to paid without a matching ledger writes a balancing adjustment payment so
// the sum of active payments still equals amount_paid.
func (s *Service) UpdateStatus(ctx context.Context, companyID snowflake.ID, id string, status invoicedomain.InvoiceStatus) (invoicedomain.Invoice, error) {
	if companyID == 0 {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidCompany
	}
	invoiceID, err := parseID(id)
	if err != nil {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidInvoiceID
	}

	var updated invoicedomain.Invoice
	var previous invoicedomain.InvoiceStatus
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := loadInvoiceForUpdate(ctx, tx, companyID, invoiceID)
		if err != nil {
			return err
		}
		if err := invoicedomain.ValidateTransition(invoice.Status, status); err != nil {
			return err
		}
		previous = invoice.Status

		now := s.clock.Now()
		invoice.Status = status
		invoice.UpdatedAt = now

		if status == invoicedomain.InvoiceStatusPaid {
			if invoice.PaidDate == nil {
				invoice.PaidDate = &now
			}
			if shortfall := invoice.TotalAmount - invoice.AmountPaid; shortfall > 0 {
				adjustment := paymentdomain.Payment{
					ID:        s.genID.Generate(),
					CompanyID: companyID,
					InvoiceID: invoiceID,
					Amount:    shortfall,
					PaidAt:    now,
					Method:    paymentdomain.MethodAdjustment,
					Notes:     "balance adjustment on manual paid transition",
					IsActive:  true,
					CreatedAt: now,
					UpdatedAt: now,
				}
				if err := tx.WithContext(ctx).Create(&adjustment).Error; err != nil {
					return err
				}
				invoice.AmountPaid = invoice.TotalAmount
			}
		}

		if err := tx.WithContext(ctx).Exec(
			`UPDATE invoices
			 SET status = ?, amount_paid = ?, paid_date = ?, updated_at = ?
			 WHERE id = ? AND company_id = ?`,
			invoice.Status, invoice.AmountPaid, invoice.PaidDate, invoice.UpdatedAt,
			invoiceID, companyID,
		).Error; err != nil {
			return err
		}

		updated = *invoice
		return nil
	})
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	s.metrics.RecordStatusTransition(ctx, string(previous), string(status))
	s.emitAudit(ctx, "invoice.status_updated", &updated, map[string]any{
		"previous_status": string(previous),
	})
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, companyID snowflake.ID, id string) error {
	if companyID == 0 {
		return invoicedomain.ErrInvalidCompany
	}
	invoiceID, err := parseID(id)
	if err != nil {
		return invoicedomain.ErrInvalidInvoiceID
	}

	var removed invoicedomain.Invoice
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := loadInvoiceForUpdate(ctx, tx, companyID, invoiceID)
		if err != nil {
			return err
		}
		if err := invoicedomain.ValidateDelete(invoice.Status); err != nil {
			return err
		}

		now := s.clock.Now()
		if err := tx.WithContext(ctx).Exec(
			`UPDATE invoices SET is_active = ?, updated_at = ? WHERE id = ? AND company_id = ?`,
			false, now, invoiceID, companyID,
		).Error; err != nil {
			return err
		}
		if err := tx.WithContext(ctx).Exec(
			`UPDATE payments SET is_active = ?, updated_at = ? WHERE invoice_id = ? AND company_id = ?`,
			false, now, invoiceID, companyID,
		).Error; err != nil {
			return err
		}

		removed = *invoice
		return nil
	})
	if err != nil {
		return err
	}

	s.emitAudit(ctx, "invoice.deleted", &removed, nil)
	return nil
}

// MarkOverdue sweeps every active sent invoice past its due date into
// overdue and returns how many rows changed.
func (s *Service) MarkOverdue(ctx context.Context, companyID snowflake.ID) (int64, error) {
	if companyID == 0 {
		return 0, invoicedomain.ErrInvalidCompany
	}

	now := s.clock.Now()
	result := s.db.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET status = ?, updated_at = ?
		 WHERE company_id = ? AND status = ? AND due_date < ? AND is_active = ?`,
		invoicedomain.InvoiceStatusOverdue, now, companyID, invoicedomain.InvoiceStatusSent, now, true,
	)
	if result.Error != nil {
		return 0, result.Error
	}

	if result.RowsAffected > 0 {
		s.metrics.RecordStatusTransition(ctx, string(invoicedomain.InvoiceStatusSent), string(invoicedomain.InvoiceStatusOverdue))
		s.log.Info("marked invoices overdue",
			zap.String("company_id", companyID.String()),
			zap.Int64("count", result.RowsAffected),
		)
	}
	return result.RowsAffected, nil
}

func (s *Service) loadBillableOccupancy(ctx context.Context, companyID, occupancyID snowflake.ID) (*occupancydomain.Occupancy, error) {
	if occupancyID == 0 {
		return nil, invoicedomain.ErrOccupancyNotFound
	}
	occupancy, err := s.occupancyrepo.FindOne(ctx, &occupancydomain.Occupancy{ID: occupancyID, CompanyID: companyID})
	if err != nil {
		return nil, err
	}
	if occupancy == nil || !occupancy.Billable() {
		return nil, invoicedomain.ErrOccupancyNotFound
	}
	return occupancy, nil
}

func (s *Service) buildLineItems(companyID snowflake.ID, inputs []invoicedomain.LineItemInput) ([]*invoicedomain.InvoiceLineItem, int64, error) {
	if len(inputs) == 0 {
		return nil, 0, invoicedomain.ErrMissingLineItems
	}

	lineItems := make([]*invoicedomain.InvoiceLineItem, 0, len(inputs))
	var subtotal int64
	for _, input := range inputs {
		description := strings.TrimSpace(input.Description)
		if description == "" || input.Quantity <= 0 || input.UnitPrice < 0 {
			return nil, 0, invoicedomain.ErrInvalidLineItem
		}
		itemType := input.Type
		if itemType == "" {
			itemType = invoicedomain.LineItemTypeOther
		}
		amount := input.Quantity * input.UnitPrice
		subtotal += amount
		lineItems = append(lineItems, &invoicedomain.InvoiceLineItem{
			ID:          s.genID.Generate(),
			CompanyID:   companyID,
			Description: description,
			Quantity:    input.Quantity,
			UnitPrice:   input.UnitPrice,
			Amount:      amount,
			Type:        itemType,
		})
	}
	return lineItems, subtotal, nil
}

func (s *Service) emitAudit(ctx context.Context, action string, invoice *invoicedomain.Invoice, extra map[string]any) {
	if s.auditSvc == nil || invoice == nil {
		return
	}
	metadata := map[string]any{
		"invoice_number": invoice.InvoiceNumber,
		"occupancy_id":   invoice.OccupancyID.String(),
		"tenant_id":      invoice.TenantID.String(),
		"status":         string(invoice.Status),
		"total_amount":   invoice.TotalAmount,
		"amount_paid":    invoice.AmountPaid,
		"currency":       invoice.Currency,
	}
	for key, value := range extra {
		if key == "" {
			continue
		}
		metadata[key] = value
	}

	targetID := invoice.ID.String()
	companyID := invoice.CompanyID
	_ = s.auditSvc.AuditLog(ctx, &companyID, "", nil, action, "invoice", &targetID, metadata)
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

func parseID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if id == 0 {
		return 0, invoicedomain.ErrInvalidInvoiceID
	}
	return id, nil
}
