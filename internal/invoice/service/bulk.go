package service

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/smallbiznis/rentledger/internal/invoice/domain"
	occupancydomain "github.com/smallbiznis/rentledger/internal/occupancy/domain"
	"go.uber.org/zap"
)

// BulkGenerate fans GenerateRent out over a set of occupancies. Each
// invoice commits independently; one occupancy's failure never aborts the
// rest of the batch. Concurrent runs for the same company are rejected.
func (s *Service) BulkGenerate(ctx context.Context, req invoicedomain.BulkGenerateRequest) (invoicedomain.BulkGenerateResult, error) {
	if req.CompanyID == 0 {
		return invoicedomain.BulkGenerateResult{}, invoicedomain.ErrInvalidCompany
	}
	if _, err := parseMonth(req.Month); err != nil {
		return invoicedomain.BulkGenerateResult{}, err
	}
	if _, err := s.resolveDueDay(req.DueDay); err != nil {
		return invoicedomain.BulkGenerateResult{}, err
	}

	skipExisting := true
	if req.SkipExisting != nil {
		skipExisting = *req.SkipExisting
	}

	companyKey := req.CompanyID.String()
	token, acquired, err := s.limiter.TryLockCompany(ctx, companyKey)
	if err != nil {
		return invoicedomain.BulkGenerateResult{}, err
	}
	if !acquired {
		return invoicedomain.BulkGenerateResult{}, invoicedomain.ErrBulkRunInProgress
	}
	defer func() {
		if err := s.limiter.ReleaseCompany(ctx, companyKey, token); err != nil {
			s.log.Warn("failed to release bulk generation lock",
				zap.String("company_id", companyKey), zap.Error(err))
		}
	}()

	occupancies, err := s.resolveOccupancies(ctx, req.CompanyID, req.OccupancyIDs)
	if err != nil {
		return invoicedomain.BulkGenerateResult{}, err
	}

	result := invoicedomain.BulkGenerateResult{
		CreatedInvoiceIDs: []snowflake.ID{},
		Errors:            []invoicedomain.BulkItemError{},
	}
	for _, occupancy := range occupancies {
		result.Processed++

		invoice, err := s.GenerateRent(ctx, invoicedomain.GenerateRentRequest{
			CompanyID:   req.CompanyID,
			OccupancyID: occupancy.ID,
			Month:       req.Month,
			DueDay:      req.DueDay,
		})
		switch {
		case err == nil:
			result.Created++
			result.CreatedInvoiceIDs = append(result.CreatedInvoiceIDs, invoice.ID)
			result.TotalAmount += invoice.TotalAmount
		case errors.Is(err, invoicedomain.ErrInvoiceExists) && skipExisting:
			result.Skipped++
		default:
			result.Failed++
			result.Errors = append(result.Errors, invoicedomain.BulkItemError{
				OccupancyID: occupancy.ID,
				Error:       err.Error(),
			})
		}
	}

	s.metrics.RecordBulkRun(ctx, companyKey)
	s.log.Info("bulk rent generation finished",
		zap.String("company_id", companyKey),
		zap.String("month", req.Month),
		zap.Int("processed", result.Processed),
		zap.Int("created", result.Created),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed),
	)
	if s.auditSvc != nil {
		companyID := req.CompanyID
		_ = s.auditSvc.AuditLog(ctx, &companyID, "", nil, "invoice.bulk_generated", "company", nil, map[string]any{
			"billing_month": req.Month,
			"processed":     result.Processed,
			"created":       result.Created,
			"skipped":       result.Skipped,
			"failed":        result.Failed,
			"total_amount":  result.TotalAmount,
		})
	}
	return result, nil
}

func (s *Service) resolveOccupancies(ctx context.Context, companyID snowflake.ID, ids []snowflake.ID) ([]*occupancydomain.Occupancy, error) {
	if len(ids) == 0 {
		return s.occupancyrepo.Find(ctx, &occupancydomain.Occupancy{
			CompanyID: companyID,
			Status:    occupancydomain.OccupancyStatusActive,
			IsActive:  true,
		})
	}

	occupancies := make([]*occupancydomain.Occupancy, 0, len(ids))
	for _, id := range ids {
		occupancy, err := s.occupancyrepo.FindOne(ctx, &occupancydomain.Occupancy{ID: id, CompanyID: companyID})
		if err != nil {
			return nil, err
		}
		if occupancy == nil || !occupancy.Billable() {
			continue
		}
		occupancies = append(occupancies, occupancy)
	}
	return occupancies, nil
}
