// Package seed bootstraps the default company for single-tenant and
// self-hosted deployments.
package seed

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	companydomain "github.com/smallbiznis/rentledger/internal/company/domain"
	"gorm.io/gorm"
)

const defaultCompanyName = "Main"

// EnsureDefaultCompany seeds the default company when none exists.
func EnsureDefaultCompany(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, err := ensureCompanyTx(ctx, tx, node.Generate(), defaultCompanyName)
		return err
	})
}

// EnsureDefaultCompanyWithID seeds the default company under a fixed id,
// used when deployments pin the tenant id through configuration.
func EnsureDefaultCompanyWithID(db *gorm.DB, id int64) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}
	if id == 0 {
		return errors.New("seed company id is required")
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, err := ensureCompanyTx(ctx, tx, snowflake.ID(id), defaultCompanyName)
		return err
	})
}

func ensureCompanyTx(ctx context.Context, tx *gorm.DB, id snowflake.ID, name string) (*companydomain.Company, error) {
	var company companydomain.Company
	err := tx.WithContext(ctx).Where("name = ?", name).First(&company).Error
	if err == nil {
		return &company, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	company = companydomain.Company{
		ID:       id,
		Name:     name,
		IsActive: true,
	}
	if err := tx.WithContext(ctx).Create(&company).Error; err != nil {
		return nil, err
	}
	return &company, nil
}
