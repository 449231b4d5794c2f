package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/rentledger/pkg/db/pagination"
)

var (
	ErrInvalidCompany          = errors.New("invalid_company")
	ErrInvalidInvoiceID        = errors.New("invalid_invoice_id")
	ErrInvoiceNotFound         = errors.New("invoice_not_found")
	ErrInvoiceExists           = errors.New("invoice_already_exists")
	ErrOccupancyNotFound       = errors.New("occupancy_not_found")
	ErrInvalidMonth            = errors.New("invalid_month")
	ErrInvalidDueDay           = errors.New("invalid_due_day")
	ErrMissingLineItems        = errors.New("missing_line_items")
	ErrInvalidLineItem         = errors.New("invalid_line_item")
	ErrInvalidStatus           = errors.New("invalid_status")
	ErrInvalidStatusTransition = errors.New("invalid_status_transition")
	ErrCannotCancelPaid        = errors.New("cannot_cancel_paid_invoice")
	ErrCannotUpdatePaid        = errors.New("cannot_update_paid_invoice")
	ErrCannotUpdateCancelled   = errors.New("cannot_update_cancelled_invoice")
	ErrInvoiceNotDeletable     = errors.New("invoice_not_deletable")
	ErrTotalBelowPaid          = errors.New("total_below_amount_paid")
	ErrBulkRunInProgress       = errors.New("bulk_generation_in_progress")
)

type LineItemInput struct {
	Description string       `json:"description"`
	Quantity    int64        `json:"quantity"`
	UnitPrice   int64        `json:"unit_price"`
	Type        LineItemType `json:"type"`
}

type CreateInvoiceRequest struct {
	CompanyID   snowflake.ID
	OccupancyID snowflake.ID
	TenantID    snowflake.ID
	InvoiceDate time.Time
	DueDate     time.Time
	Currency    string
	Notes       string
	TaxAmount   int64
	LineItems   []LineItemInput
}

type UpdateInvoiceRequest struct {
	DueDate   *time.Time
	Notes     *string
	TaxAmount *int64
	LineItems []LineItemInput
}

type ListInvoiceRequest struct {
	pagination.Pagination
	Status      *InvoiceStatus
	OccupancyID *snowflake.ID
	TenantID    *snowflake.ID
	OverdueOnly bool
	DueFrom     *time.Time
	DueTo       *time.Time
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

type ListInvoiceResponse struct {
	pagination.PageInfo
	Invoices []Invoice `json:"invoices"`
}

type GenerateRentRequest struct {
	CompanyID   snowflake.ID
	OccupancyID snowflake.ID
	Month       string // "YYYY-MM"
	DueDay      int    // 0 means the configured default
}

type BulkGenerateRequest struct {
	CompanyID    snowflake.ID
	Month        string
	DueDay       int
	OccupancyIDs []snowflake.ID
	SkipExisting *bool // nil means true
}

// BulkItemError records a single occupancy failure inside a bulk run.
type BulkItemError struct {
	OccupancyID snowflake.ID `json:"occupancy_id"`
	Error       string       `json:"error"`
}

// BulkGenerateResult aggregates per-occupancy outcomes of one bulk run.
type BulkGenerateResult struct {
	Processed         int             `json:"processed"`
	Created           int             `json:"created"`
	Skipped           int             `json:"skipped"`
	Failed            int             `json:"failed"`
	CreatedInvoiceIDs []snowflake.ID  `json:"created_invoice_ids"`
	Errors            []BulkItemError `json:"errors"`
	TotalAmount       int64           `json:"total_amount"`
}

type Service interface {
	Create(ctx context.Context, req CreateInvoiceRequest) (Invoice, error)
	List(ctx context.Context, companyID snowflake.ID, req ListInvoiceRequest) (ListInvoiceResponse, error)
	GetByID(ctx context.Context, companyID snowflake.ID, id string) (Invoice, error)
	Update(ctx context.Context, companyID snowflake.ID, id string, req UpdateInvoiceRequest) (Invoice, error)
	UpdateStatus(ctx context.Context, companyID snowflake.ID, id string, status InvoiceStatus) (Invoice, error)
	Delete(ctx context.Context, companyID snowflake.ID, id string) error
	GenerateRent(ctx context.Context, req GenerateRentRequest) (Invoice, error)
	BulkGenerate(ctx context.Context, req BulkGenerateRequest) (BulkGenerateResult, error)
	MarkOverdue(ctx context.Context, companyID snowflake.ID) (int64, error)
}
