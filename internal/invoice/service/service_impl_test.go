package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	auditdomain "github.com/smallbiznis/rentledger/internal/audit/domain"
	"github.com/smallbiznis/rentledger/internal/clock"
	"github.com/smallbiznis/rentledger/internal/config"
	invoicedomain "github.com/smallbiznis/rentledger/internal/invoice/domain"
	invoiceservice "github.com/smallbiznis/rentledger/internal/invoice/service"
	occupancydomain "github.com/smallbiznis/rentledger/internal/occupancy/domain"
	paymentdomain "github.com/smallbiznis/rentledger/internal/payment/domain"
	"github.com/smallbiznis/rentledger/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type noopAuditService struct{}

func (noopAuditService) AuditLog(ctx context.Context, companyID *snowflake.ID, actorType string, actorID *string, action string, targetType string, targetID *string, metadata map[string]any) error {
	return nil
}

func (noopAuditService) List(ctx context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	return auditdomain.ListAuditLogResponse{}, nil
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:invoicetest_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&occupancydomain.Occupancy{},
		&invoicedomain.Invoice{},
		&invoicedomain.InvoiceLineItem{},
		&paymentdomain.Payment{},
	))
	return db
}

type invoiceFixture struct {
	db        *gorm.DB
	node      *snowflake.Node
	clk       *clock.FakeClock
	svc       invoicedomain.Service
	companyID snowflake.ID
}

func newInvoiceFixture(t *testing.T) *invoiceFixture {
	t.Helper()
	db := setupTestDB(t)
	node, err := snowflake.NewNode(11)
	require.NoError(t, err)

	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC))
	svc := invoiceservice.NewService(invoiceservice.ServiceParam{
		DB:       db,
		Log:      zaptest.NewLogger(t),
		GenID:    node,
		Clock:    clk,
		Billing:  config.NewStaticBillingConfigHolder(config.DefaultBillingConfig()),
		AuditSvc: noopAuditService{},
	})

	return &invoiceFixture{
		db:        db,
		node:      node,
		clk:       clk,
		svc:       svc,
		companyID: node.Generate(),
	}
}

func (f *invoiceFixture) seedOccupancy(t *testing.T, rent int64, status occupancydomain.OccupancyStatus) occupancydomain.Occupancy {
	t.Helper()
	now := f.clk.Now()
	occ := occupancydomain.Occupancy{
		ID:          f.node.Generate(),
		CompanyID:   f.companyID,
		ApartmentID: f.node.Generate(),
		TenantID:    f.node.Generate(),
		MonthlyRent: rent,
		Currency:    "USD",
		StartDate:   now.AddDate(-1, 0, 0),
		Status:      status,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, f.db.Create(&occ).Error)
	return occ
}

func (f *invoiceFixture) reloadInvoice(t *testing.T, id snowflake.ID) invoicedomain.Invoice {
	t.Helper()
	var inv invoicedomain.Invoice
	require.NoError(t, f.db.Raw(`SELECT * FROM invoices WHERE id = ?`, id).Scan(&inv).Error)
	return inv
}

func TestGenerateRentInvoice(t *testing.T) {
	ctx := context.Background()
	f := newInvoiceFixture(t)
	occ := f.seedOccupancy(t, 150000, occupancydomain.OccupancyStatusActive)

	invoice, err := f.svc.GenerateRent(ctx, invoicedomain.GenerateRentRequest{
		CompanyID:   f.companyID,
		OccupancyID: occ.ID,
		Month:       "2026-03",
	})
	require.NoError(t, err)

	assert.Equal(t, fmt.Sprintf("INV-202603-%s", occ.ID.String()), invoice.InvoiceNumber)
	assert.Equal(t, invoicedomain.InvoiceStatusDraft, invoice.Status)
	assert.Equal(t, occ.TenantID, invoice.TenantID)
	assert.Equal(t, int64(150000), invoice.TotalAmount)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), invoice.InvoiceDate)
	// Default due day comes from billing config.
	assert.Equal(t, time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC), invoice.DueDate)

	require.Len(t, invoice.LineItems, 1)
	assert.Equal(t, "Monthly Rent - March 2026", invoice.LineItems[0].Description)
	assert.Equal(t, invoicedomain.LineItemTypeRent, invoice.LineItems[0].Type)
	assert.Equal(t, int64(150000), invoice.LineItems[0].Amount)
}

func TestGenerateRentIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newInvoiceFixture(t)
	occ := f.seedOccupancy(t, 90000, occupancydomain.OccupancyStatusActive)

	req := invoicedomain.GenerateRentRequest{
		CompanyID:   f.companyID,
		OccupancyID: occ.ID,
		Month:       "2026-03",
	}

	_, err := f.svc.GenerateRent(ctx, req)
	require.NoError(t, err)

	_, err = f.svc.GenerateRent(ctx, req)
	assert.ErrorIs(t, err, invoicedomain.ErrInvoiceExists)

	var count int64
	require.NoError(t, f.db.Raw(
		`SELECT COUNT(1) FROM invoices WHERE occupancy_id = ?`, occ.ID,
	).Scan(&count).Error)
	assert.Equal(t, int64(1), count)

	// A different month is a different invoice number.
	_, err = f.svc.GenerateRent(ctx, invoicedomain.GenerateRentRequest{
		CompanyID:   f.companyID,
		OccupancyID: occ.ID,
		Month:       "2026-04",
	})
	assert.NoError(t, err)
}

func TestGenerateRentValidation(t *testing.T) {
	ctx := context.Background()
	f := newInvoiceFixture(t)
	occ := f.seedOccupancy(t, 90000, occupancydomain.OccupancyStatusActive)
	ended := f.seedOccupancy(t, 90000, occupancydomain.OccupancyStatusEnded)

	_, err := f.svc.GenerateRent(ctx, invoicedomain.GenerateRentRequest{
		CompanyID: f.companyID, OccupancyID: occ.ID, Month: "March 2026",
	})
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidMonth)

	_, err = f.svc.GenerateRent(ctx, invoicedomain.GenerateRentRequest{
		CompanyID: f.companyID, OccupancyID: occ.ID, Month: "2026-03", DueDay: 32,
	})
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidDueDay)

	_, err = f.svc.GenerateRent(ctx, invoicedomain.GenerateRentRequest{
		CompanyID: f.companyID, OccupancyID: ended.ID, Month: "2026-03",
	})
	assert.ErrorIs(t, err, invoicedomain.ErrOccupancyNotFound)

	_, err = f.svc.GenerateRent(ctx, invoicedomain.GenerateRentRequest{
		CompanyID: f.node.Generate(), OccupancyID: occ.ID, Month: "2026-03",
	})
	assert.ErrorIs(t, err, invoicedomain.ErrOccupancyNotFound)
}

func TestGenerateRentClampsDueDay(t *testing.T) {
	ctx := context.Background()
	f := newInvoiceFixture(t)
	occ := f.seedOccupancy(t, 90000, occupancydomain.OccupancyStatusActive)

	invoice, err := f.svc.GenerateRent(ctx, invoicedomain.GenerateRentRequest{
		CompanyID:   f.companyID,
		OccupancyID: occ.ID,
		Month:       "2026-02",
		DueDay:      31,
	})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC), invoice.DueDate)
}

func TestBulkGenerateSkipsExisting(t *testing.T) {
	ctx := context.Background()
	f := newInvoiceFixture(t)
	occ1 := f.seedOccupancy(t, 100000, occupancydomain.OccupancyStatusActive)
	occ2 := f.seedOccupancy(t, 120000, occupancydomain.OccupancyStatusActive)
	f.seedOccupancy(t, 80000, occupancydomain.OccupancyStatusActive)
	f.seedOccupancy(t, 50000, occupancydomain.OccupancyStatusEnded)

	_, err := f.svc.GenerateRent(ctx, invoicedomain.GenerateRentRequest{
		CompanyID: f.companyID, OccupancyID: occ1.ID, Month: "2026-03",
	})
	require.NoError(t, err)

	result, err := f.svc.BulkGenerate(ctx, invoicedomain.BulkGenerateRequest{
		CompanyID: f.companyID,
		Month:     "2026-03",
	})
	require.NoError(t, err)

	assert.Equal(t, 3, result.Processed)
	assert.Equal(t, 2, result.Created)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 0, result.Failed)
	assert.Len(t, result.CreatedInvoiceIDs, 2)
	assert.Equal(t, int64(200000), result.TotalAmount)

	// With skipExisting off, every conflict is surfaced as a failure.
	skip := false
	again, err := f.svc.BulkGenerate(ctx, invoicedomain.BulkGenerateRequest{
		CompanyID:    f.companyID,
		Month:        "2026-03",
		OccupancyIDs: []snowflake.ID{occ1.ID, occ2.ID},
		SkipExisting: &skip,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, again.Processed)
	assert.Equal(t, 0, again.Created)
	assert.Equal(t, 2, again.Failed)
	require.Len(t, again.Errors, 2)
	assert.Equal(t, invoicedomain.ErrInvoiceExists.Error(), again.Errors[0].Error)
}

func TestBulkGenerateFiltersExplicitIDs(t *testing.T) {
	ctx := context.Background()
	f := newInvoiceFixture(t)
	active := f.seedOccupancy(t, 100000, occupancydomain.OccupancyStatusActive)
	ended := f.seedOccupancy(t, 90000, occupancydomain.OccupancyStatusEnded)

	result, err := f.svc.BulkGenerate(ctx, invoicedomain.BulkGenerateRequest{
		CompanyID:    f.companyID,
		Month:        "2026-03",
		OccupancyIDs: []snowflake.ID{active.ID, ended.ID, f.node.Generate()},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 0, result.Failed)
}

func TestCreateInvoiceManual(t *testing.T) {
	ctx := context.Background()
	f := newInvoiceFixture(t)
	occ := f.seedOccupancy(t, 100000, occupancydomain.OccupancyStatusActive)

	invoice, err := f.svc.Create(ctx, invoicedomain.CreateInvoiceRequest{
		CompanyID:   f.companyID,
		OccupancyID: occ.ID,
		TaxAmount:   500,
		Notes:       "  water damage repair  ",
		LineItems: []invoicedomain.LineItemInput{
			{Description: "Plumbing repair", Quantity: 2, UnitPrice: 7500, Type: invoicedomain.LineItemTypeMaintenance},
			{Description: "Call-out fee", Quantity: 1, UnitPrice: 2500},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, invoicedomain.InvoiceStatusDraft, invoice.Status)
	assert.Equal(t, occ.TenantID, invoice.TenantID)
	assert.Equal(t, int64(17500), invoice.Subtotal)
	assert.Equal(t, int64(18000), invoice.TotalAmount)
	assert.Equal(t, "water damage repair", invoice.Notes)
	assert.Equal(t, fmt.Sprintf("INV-202603-M%s", invoice.ID.String()), invoice.InvoiceNumber)
	require.Len(t, invoice.LineItems, 2)
	assert.Equal(t, invoicedomain.LineItemTypeOther, invoice.LineItems[1].Type)

	_, err = f.svc.Create(ctx, invoicedomain.CreateInvoiceRequest{
		CompanyID:   f.companyID,
		OccupancyID: occ.ID,
	})
	assert.ErrorIs(t, err, invoicedomain.ErrMissingLineItems)

	_, err = f.svc.Create(ctx, invoicedomain.CreateInvoiceRequest{
		CompanyID:   f.companyID,
		OccupancyID: occ.ID,
		LineItems:   []invoicedomain.LineItemInput{{Description: "", Quantity: 1, UnitPrice: 100}},
	})
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidLineItem)

	_, err = f.svc.Create(ctx, invoicedomain.CreateInvoiceRequest{
		CompanyID:   f.companyID,
		OccupancyID: f.node.Generate(),
		LineItems:   []invoicedomain.LineItemInput{{Description: "x", Quantity: 1, UnitPrice: 100}},
	})
	assert.ErrorIs(t, err, invoicedomain.ErrOccupancyNotFound)
}

func TestUpdateInvoiceRecomputesTotals(t *testing.T) {
	ctx := context.Background()
	f := newInvoiceFixture(t)
	occ := f.seedOccupancy(t, 100000, occupancydomain.OccupancyStatusActive)

	invoice, err := f.svc.GenerateRent(ctx, invoicedomain.GenerateRentRequest{
		CompanyID: f.companyID, OccupancyID: occ.ID, Month: "2026-03",
	})
	require.NoError(t, err)

	newDue := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)
	updated, err := f.svc.Update(ctx, f.companyID, invoice.ID.String(), invoicedomain.UpdateInvoiceRequest{
		DueDate: &newDue,
		LineItems: []invoicedomain.LineItemInput{
			{Description: "Monthly Rent - March 2026", Quantity: 1, UnitPrice: 100000, Type: invoicedomain.LineItemTypeRent},
			{Description: "Water", Quantity: 1, UnitPrice: 4000, Type: invoicedomain.LineItemTypeUtility},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, newDue, updated.DueDate.UTC())
	assert.Equal(t, int64(104000), updated.TotalAmount)
	assert.Len(t, updated.LineItems, 2)
}

func TestUpdateInvoiceGuards(t *testing.T) {
	ctx := context.Background()
	f := newInvoiceFixture(t)
	occ := f.seedOccupancy(t, 100000, occupancydomain.OccupancyStatusActive)

	invoice, err := f.svc.GenerateRent(ctx, invoicedomain.GenerateRentRequest{
		CompanyID: f.companyID, OccupancyID: occ.ID, Month: "2026-03",
	})
	require.NoError(t, err)

	// Simulate money already collected against the invoice.
	require.NoError(t, f.db.Exec(
		`UPDATE invoices SET amount_paid = ? WHERE id = ?`, 50000, invoice.ID,
	).Error)

	_, err = f.svc.Update(ctx, f.companyID, invoice.ID.String(), invoicedomain.UpdateInvoiceRequest{
		LineItems: []invoicedomain.LineItemInput{
			{Description: "Reduced rent", Quantity: 1, UnitPrice: 40000, Type: invoicedomain.LineItemTypeRent},
		},
	})
	assert.ErrorIs(t, err, invoicedomain.ErrTotalBelowPaid)

	_, err = f.svc.UpdateStatus(ctx, f.companyID, invoice.ID.String(), invoicedomain.InvoiceStatusSent)
	require.NoError(t, err)
	_, err = f.svc.UpdateStatus(ctx, f.companyID, invoice.ID.String(), invoicedomain.InvoiceStatusPaid)
	require.NoError(t, err)

	notes := "late edit"
	_, err = f.svc.Update(ctx, f.companyID, invoice.ID.String(), invoicedomain.UpdateInvoiceRequest{Notes: &notes})
	assert.ErrorIs(t, err, invoicedomain.ErrCannotUpdatePaid)
}

func TestUpdateStatusManualPaidSynthesizesAdjustment(t *testing.T) {
	ctx := context.Background()
	f := newInvoiceFixture(t)
	occ := f.seedOccupancy(t, 100000, occupancydomain.OccupancyStatusActive)

	invoice, err := f.svc.GenerateRent(ctx, invoicedomain.GenerateRentRequest{
		CompanyID: f.companyID, OccupancyID: occ.ID, Month: "2026-03",
	})
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(ctx, f.companyID, invoice.ID.String(), invoicedomain.InvoiceStatusSent)
	require.NoError(t, err)

	updated, err := f.svc.UpdateStatus(ctx, f.companyID, invoice.ID.String(), invoicedomain.InvoiceStatusPaid)
	require.NoError(t, err)

	assert.Equal(t, invoicedomain.InvoiceStatusPaid, updated.Status)
	assert.Equal(t, int64(100000), updated.AmountPaid)
	require.NotNil(t, updated.PaidDate)

	var adjustment paymentdomain.Payment
	require.NoError(t, f.db.Raw(
		`SELECT * FROM payments WHERE invoice_id = ? AND method = ?`,
		invoice.ID, paymentdomain.MethodAdjustment,
	).Scan(&adjustment).Error)
	assert.Equal(t, int64(100000), adjustment.Amount)
	assert.True(t, adjustment.IsActive)

	var sum int64
	require.NoError(t, f.db.Raw(
		`SELECT COALESCE(SUM(amount), 0) FROM payments WHERE invoice_id = ? AND is_active = ?`,
		invoice.ID, true,
	).Scan(&sum).Error)
	assert.Equal(t, updated.AmountPaid, sum)

	_, err = f.svc.UpdateStatus(ctx, f.companyID, invoice.ID.String(), invoicedomain.InvoiceStatusCancelled)
	assert.ErrorIs(t, err, invoicedomain.ErrCannotCancelPaid)
	_, err = f.svc.UpdateStatus(ctx, f.companyID, invoice.ID.String(), invoicedomain.InvoiceStatusPaid)
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidStatusTransition)
}

func TestUpdateStatusRejectsUnknownAndIllegal(t *testing.T) {
	ctx := context.Background()
	f := newInvoiceFixture(t)
	occ := f.seedOccupancy(t, 100000, occupancydomain.OccupancyStatusActive)

	invoice, err := f.svc.GenerateRent(ctx, invoicedomain.GenerateRentRequest{
		CompanyID: f.companyID, OccupancyID: occ.ID, Month: "2026-03",
	})
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(ctx, f.companyID, invoice.ID.String(), invoicedomain.InvoiceStatus("shipped"))
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidStatus)

	_, err = f.svc.UpdateStatus(ctx, f.companyID, invoice.ID.String(), invoicedomain.InvoiceStatusPaid)
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidStatusTransition)
}

func TestDeleteInvoiceCascadesToPayments(t *testing.T) {
	ctx := context.Background()
	f := newInvoiceFixture(t)
	occ := f.seedOccupancy(t, 100000, occupancydomain.OccupancyStatusActive)

	invoice, err := f.svc.GenerateRent(ctx, invoicedomain.GenerateRentRequest{
		CompanyID: f.companyID, OccupancyID: occ.ID, Month: "2026-03",
	})
	require.NoError(t, err)

	now := f.clk.Now()
	payment := paymentdomain.Payment{
		ID:        f.node.Generate(),
		CompanyID: f.companyID,
		InvoiceID: invoice.ID,
		Amount:    20000,
		PaidAt:    now,
		Method:    paymentdomain.MethodCash,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, f.db.Create(&payment).Error)

	require.NoError(t, f.svc.Delete(ctx, f.companyID, invoice.ID.String()))

	gone := f.reloadInvoice(t, invoice.ID)
	assert.False(t, gone.IsActive)

	var active int64
	require.NoError(t, f.db.Raw(
		`SELECT COUNT(1) FROM payments WHERE invoice_id = ? AND is_active = ?`,
		invoice.ID, true,
	).Scan(&active).Error)
	assert.Equal(t, int64(0), active)

	_, err = f.svc.GetByID(ctx, f.companyID, invoice.ID.String())
	assert.ErrorIs(t, err, invoicedomain.ErrInvoiceNotFound)
}

func TestDeleteInvoiceRejectsIssued(t *testing.T) {
	ctx := context.Background()
	f := newInvoiceFixture(t)
	occ := f.seedOccupancy(t, 100000, occupancydomain.OccupancyStatusActive)

	invoice, err := f.svc.GenerateRent(ctx, invoicedomain.GenerateRentRequest{
		CompanyID: f.companyID, OccupancyID: occ.ID, Month: "2026-03",
	})
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(ctx, f.companyID, invoice.ID.String(), invoicedomain.InvoiceStatusSent)
	require.NoError(t, err)

	err = f.svc.Delete(ctx, f.companyID, invoice.ID.String())
	assert.ErrorIs(t, err, invoicedomain.ErrInvoiceNotDeletable)
}

func TestMarkOverdueSweep(t *testing.T) {
	ctx := context.Background()
	f := newInvoiceFixture(t)
	due := f.seedOccupancy(t, 100000, occupancydomain.OccupancyStatusActive)
	paid := f.seedOccupancy(t, 80000, occupancydomain.OccupancyStatusActive)

	dueInv, err := f.svc.GenerateRent(ctx, invoicedomain.GenerateRentRequest{
		CompanyID: f.companyID, OccupancyID: due.ID, Month: "2026-03",
	})
	require.NoError(t, err)
	paidInv, err := f.svc.GenerateRent(ctx, invoicedomain.GenerateRentRequest{
		CompanyID: f.companyID, OccupancyID: paid.ID, Month: "2026-03",
	})
	require.NoError(t, err)

	for _, id := range []snowflake.ID{dueInv.ID, paidInv.ID} {
		_, err = f.svc.UpdateStatus(ctx, f.companyID, id.String(), invoicedomain.InvoiceStatusSent)
		require.NoError(t, err)
	}
	_, err = f.svc.UpdateStatus(ctx, f.companyID, paidInv.ID.String(), invoicedomain.InvoiceStatusPaid)
	require.NoError(t, err)

	// Still inside the month; nothing is overdue yet.
	count, err := f.svc.MarkOverdue(ctx, f.companyID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	f.clk.Advance(10 * 24 * time.Hour)

	count, err = f.svc.MarkOverdue(ctx, f.companyID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, invoicedomain.InvoiceStatusOverdue, f.reloadInvoice(t, dueInv.ID).Status)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, f.reloadInvoice(t, paidInv.ID).Status)

	// The sweep is idempotent.
	count, err = f.svc.MarkOverdue(ctx, f.companyID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestListInvoicesFiltersAndPaginates(t *testing.T) {
	ctx := context.Background()
	f := newInvoiceFixture(t)
	occ := f.seedOccupancy(t, 100000, occupancydomain.OccupancyStatusActive)

	months := []string{"2026-01", "2026-02", "2026-03"}
	for _, month := range months {
		_, err := f.svc.GenerateRent(ctx, invoicedomain.GenerateRentRequest{
			CompanyID: f.companyID, OccupancyID: occ.ID, Month: month,
		})
		require.NoError(t, err)
		f.clk.Advance(time.Hour)
	}

	page, err := f.svc.List(ctx, f.companyID, invoicedomain.ListInvoiceRequest{})
	require.NoError(t, err)
	require.Len(t, page.Invoices, 3)
	assert.False(t, page.HasMore)
	// Newest first.
	assert.Equal(t, fmt.Sprintf("INV-202603-%s", occ.ID.String()), page.Invoices[0].InvoiceNumber)
	require.Len(t, page.Invoices[0].LineItems, 1)

	first, err := f.svc.List(ctx, f.companyID, invoicedomain.ListInvoiceRequest{
		Pagination: pageSize(2),
	})
	require.NoError(t, err)
	require.Len(t, first.Invoices, 2)
	assert.True(t, first.HasMore)
	require.NotEmpty(t, first.NextPageToken)

	second, err := f.svc.List(ctx, f.companyID, invoicedomain.ListInvoiceRequest{
		Pagination: pagination.Pagination{PageSize: 2, PageToken: first.NextPageToken},
	})
	require.NoError(t, err)
	require.Len(t, second.Invoices, 1)
	assert.False(t, second.HasMore)

	status := invoicedomain.InvoiceStatusDraft
	drafts, err := f.svc.List(ctx, f.companyID, invoicedomain.ListInvoiceRequest{Status: &status})
	require.NoError(t, err)
	assert.Len(t, drafts.Invoices, 3)

	other, err := f.svc.List(ctx, f.node.Generate(), invoicedomain.ListInvoiceRequest{})
	require.NoError(t, err)
	assert.Empty(t, other.Invoices)
}

func TestListInvoicesOverdueOnly(t *testing.T) {
	ctx := context.Background()
	f := newInvoiceFixture(t)
	occ := f.seedOccupancy(t, 100000, occupancydomain.OccupancyStatusActive)
	other := f.seedOccupancy(t, 80000, occupancydomain.OccupancyStatusActive)

	lateInv, err := f.svc.GenerateRent(ctx, invoicedomain.GenerateRentRequest{
		CompanyID: f.companyID, OccupancyID: occ.ID, Month: "2026-03",
	})
	require.NoError(t, err)
	_, err = f.svc.GenerateRent(ctx, invoicedomain.GenerateRentRequest{
		CompanyID: f.companyID, OccupancyID: other.ID, Month: "2026-03", DueDay: 28,
	})
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(ctx, f.companyID, lateInv.ID.String(), invoicedomain.InvoiceStatusSent)
	require.NoError(t, err)

	f.clk.Advance(10 * 24 * time.Hour)

	late, err := f.svc.List(ctx, f.companyID, invoicedomain.ListInvoiceRequest{OverdueOnly: true})
	require.NoError(t, err)
	require.Len(t, late.Invoices, 1)
	assert.Equal(t, lateInv.ID, late.Invoices[0].ID)
}

func pageSize(n int) pagination.Pagination {
	return pagination.Pagination{PageSize: n}
}
