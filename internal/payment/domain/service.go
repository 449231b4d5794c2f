package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrInvalidPaymentID = errors.New("invalid_payment_id")
	ErrPaymentNotFound  = errors.New("payment_not_found")
	ErrInvalidAmount    = errors.New("invalid_amount")
	ErrInvalidMethod    = errors.New("invalid_method")
	ErrNegativeBalance  = errors.New("negative_invoice_balance")
	ErrExceedsTotal     = errors.New("payment_exceeds_total")
	ErrPaymentActive    = errors.New("payment_already_active")
)

// ExceedsTotalError is raised when a payment mutation would push an
// invoice past its total; it carries the outstanding balance so callers
// can surface the figure.
type ExceedsTotalError struct {
	Outstanding int64
}

func (e *ExceedsTotalError) Error() string {
	return fmt.Sprintf("payment exceeds invoice total: outstanding balance is %d", e.Outstanding)
}

func (e *ExceedsTotalError) Is(target error) bool {
	return target == ErrExceedsTotal
}

type CreatePaymentRequest struct {
	CompanyID      snowflake.ID
	InvoiceID      snowflake.ID
	Amount         int64
	PaidAt         time.Time
	Method         PaymentMethod
	Reference      string
	Metadata       map[string]any
	Notes          string
	IdempotencyKey string
}

// UpdatePaymentRequest carries a partial payment update; nil fields are
// left untouched.
type UpdatePaymentRequest struct {
	Amount    *int64
	PaidAt    *time.Time
	Method    *PaymentMethod
	Reference *string
	Notes     *string
}

type ListPaymentRequest struct {
	InvoiceID       *snowflake.ID
	IncludeInactive bool
}

type Service interface {
	Create(ctx context.Context, req CreatePaymentRequest) (Payment, error)
	List(ctx context.Context, companyID snowflake.ID, req ListPaymentRequest) ([]Payment, error)
	GetByID(ctx context.Context, companyID snowflake.ID, id string) (Payment, error)
	Update(ctx context.Context, companyID snowflake.ID, id string, req UpdatePaymentRequest) (Payment, error)
	Remove(ctx context.Context, companyID snowflake.ID, id string) error
	Activate(ctx context.Context, companyID snowflake.ID, id string) (Payment, error)
}
