// Package domain contains persistence models for invoicing.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// InvoiceStatus represents invoice lifecycle states.
type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "draft"
	InvoiceStatusSent      InvoiceStatus = "sent"
	InvoiceStatusPaid      InvoiceStatus = "paid"
	InvoiceStatusOverdue   InvoiceStatus = "overdue"
	InvoiceStatusCancelled InvoiceStatus = "cancelled"
)

// LineItemType classifies invoice lines.
type LineItemType string

const (
	LineItemTypeRent        LineItemType = "rent"
	LineItemTypeUtility     LineItemType = "utility"
	LineItemTypeMaintenance LineItemType = "maintenance"
	LineItemTypeOther       LineItemType = "other"
)

// Invoice represents a billing document issued to a tenant. All monetary
// fields are minor units. AmountPaid is mutated only by the payment service
// and the status-update path; it always equals the sum of the invoice's
// active payments.
type Invoice struct {
	ID            snowflake.ID      `json:"id" gorm:"primaryKey"`
	CompanyID     snowflake.ID      `json:"company_id" gorm:"not null;index;uniqueIndex:ux_invoices_company_number"`
	OccupancyID   snowflake.ID      `json:"occupancy_id" gorm:"not null;index"`
	TenantID      snowflake.ID      `json:"tenant_id" gorm:"not null;index"`
	InvoiceNumber string            `json:"invoice_number" gorm:"type:text;not null;uniqueIndex:ux_invoices_company_number"`
	Status        InvoiceStatus     `json:"status" gorm:"type:text;not null;default:'draft'"`
	InvoiceDate   time.Time         `json:"invoice_date" gorm:"not null"`
	DueDate       time.Time         `json:"due_date" gorm:"not null"`
	Subtotal      int64             `json:"subtotal" gorm:"not null;default:0"`
	TaxAmount     int64             `json:"tax_amount" gorm:"not null;default:0"`
	TotalAmount   int64             `json:"total_amount" gorm:"not null;default:0"`
	AmountPaid    int64             `json:"amount_paid" gorm:"not null;default:0"`
	PaidDate      *time.Time        `json:"paid_date"`
	Currency      string            `json:"currency" gorm:"type:text;not null;default:'USD'"`
	Notes         string            `json:"notes" gorm:"type:text"`
	Metadata      datatypes.JSONMap `json:"metadata" gorm:"type:jsonb"`
	IsActive      bool              `json:"is_active" gorm:"not null;default:true"`
	LineItems     []InvoiceLineItem `json:"line_items" gorm:"foreignKey:InvoiceID"`
	CreatedAt     time.Time         `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time         `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// InvoiceLineItem represents a line on an invoice.
type InvoiceLineItem struct {
	ID          snowflake.ID `json:"id" gorm:"primaryKey"`
	CompanyID   snowflake.ID `json:"company_id" gorm:"not null;index"`
	InvoiceID   snowflake.ID `json:"invoice_id" gorm:"not null;index"`
	Description string       `json:"description" gorm:"type:text;not null"`
	Quantity    int64        `json:"quantity" gorm:"not null;default:1"`
	UnitPrice   int64        `json:"unit_price" gorm:"not null"`
	Amount      int64        `json:"amount" gorm:"not null"`
	Type        LineItemType `json:"type" gorm:"type:text;not null;default:'other'"`
	CreatedAt   time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (InvoiceLineItem) TableName() string { return "invoice_line_items" }

// AmountDue returns the outstanding balance for an invoice snapshot.
func AmountDue(inv Invoice) int64 {
	due := inv.TotalAmount - inv.AmountPaid
	if due < 0 {
		return 0
	}
	return due
}

// IsOverdue reports whether an invoice snapshot is past due. Paid and
// cancelled invoices are never overdue.
func IsOverdue(inv Invoice, now time.Time) bool {
	switch inv.Status {
	case InvoiceStatusPaid, InvoiceStatusCancelled:
		return false
	}
	return inv.DueDate.Before(now)
}

// DaysOverdue returns whole days past due, zero when not overdue.
func DaysOverdue(inv Invoice, now time.Time) int {
	if !IsOverdue(inv, now) {
		return 0
	}
	return int(now.Sub(inv.DueDate).Hours() / 24)
}
