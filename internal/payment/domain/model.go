// Package domain contains persistence models for the payment ledger.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// PaymentMethod enumerates payment channels.
type PaymentMethod string

const (
	MethodCash         PaymentMethod = "cash"
	MethodBankTransfer PaymentMethod = "bank_transfer"
	MethodCreditCard   PaymentMethod = "credit_card"
	MethodCheck        PaymentMethod = "check"
	MethodOnline       PaymentMethod = "online"
	// MethodAdjustment marks ledger rows synthesized when an invoice is
	// marked paid without the money having been recorded payment by payment.
	MethodAdjustment PaymentMethod = "adjustment"
)

// Payment is one ledger row against an invoice. Amount is minor units and
// always positive; reversals are soft deletes, not negative rows. The sum of
// a given invoice's active payments equals that invoice's amount_paid.
type Payment struct {
	ID             snowflake.ID      `json:"id" gorm:"primaryKey"`
	CompanyID      snowflake.ID      `json:"company_id" gorm:"not null;index"`
	InvoiceID      snowflake.ID      `json:"invoice_id" gorm:"not null;index"`
	Amount         int64             `json:"amount" gorm:"not null"`
	PaidAt         time.Time         `json:"paid_at" gorm:"not null"`
	Method         PaymentMethod     `json:"method" gorm:"type:text;not null"`
	Reference      string            `json:"reference" gorm:"type:text"`
	IdempotencyKey *string           `json:"idempotency_key,omitempty" gorm:"type:text"`
	Metadata       datatypes.JSONMap `json:"metadata" gorm:"type:jsonb"`
	Notes          string            `json:"notes" gorm:"type:text"`
	IsActive       bool              `json:"is_active" gorm:"not null;default:true"`
	CreatedAt      time.Time         `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt      time.Time         `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Payment) TableName() string { return "payments" }

// IsValidMethod reports whether m is a known payment method.
func IsValidMethod(m PaymentMethod) bool {
	switch m {
	case MethodCash, MethodBankTransfer, MethodCreditCard, MethodCheck, MethodOnline, MethodAdjustment:
		return true
	}
	return false
}
