// Package domain contains the occupancy model. Occupancies are managed by
// the leasing side of the platform; invoicing only reads them.
package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type OccupancyStatus string

const (
	OccupancyStatusActive OccupancyStatus = "active"
	OccupancyStatusEnded  OccupancyStatus = "ended"
)

var ErrNotFound = errors.New("occupancy_not_found")

// Occupancy links a tenant to an apartment for a date range at a monthly
// rent (minor units).
type Occupancy struct {
	ID          snowflake.ID    `json:"id" gorm:"primaryKey"`
	CompanyID   snowflake.ID    `json:"company_id" gorm:"not null;index"`
	ApartmentID snowflake.ID    `json:"apartment_id" gorm:"not null;index"`
	TenantID    snowflake.ID    `json:"tenant_id" gorm:"not null;index"`
	MonthlyRent int64           `json:"monthly_rent" gorm:"not null"`
	Currency    string          `json:"currency" gorm:"type:text;not null;default:'USD'"`
	StartDate   time.Time       `json:"start_date" gorm:"not null"`
	EndDate     *time.Time      `json:"end_date"`
	Status      OccupancyStatus `json:"status" gorm:"type:text;not null;default:'active'"`
	IsActive    bool            `json:"is_active" gorm:"not null;default:true"`
	CreatedAt   time.Time       `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time       `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Occupancy) TableName() string { return "occupancies" }

// Billable reports whether an occupancy can receive a rent invoice.
func (o Occupancy) Billable() bool {
	return o.IsActive && o.Status == OccupancyStatusActive
}
