package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	auditdomain "github.com/smallbiznis/rentledger/internal/audit/domain"
	auditrepo "github.com/smallbiznis/rentledger/internal/audit/repository"
	auditservice "github.com/smallbiznis/rentledger/internal/audit/service"
	"github.com/smallbiznis/rentledger/internal/clock"
	"github.com/smallbiznis/rentledger/internal/companyctx"
	"github.com/smallbiznis/rentledger/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type auditFixture struct {
	db        *gorm.DB
	node      *snowflake.Node
	clk       *clock.FakeClock
	svc       auditdomain.Service
	companyID snowflake.ID
}

func newAuditFixture(t *testing.T) *auditFixture {
	t.Helper()
	dsn := fmt.Sprintf("file:audittest_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&auditdomain.AuditLog{}))

	node, err := snowflake.NewNode(12)
	require.NoError(t, err)

	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc := auditservice.NewService(auditservice.Params{
		DB:    db,
		Log:   zaptest.NewLogger(t),
		GenID: node,
		Clock: clk,
		Repo:  auditrepo.Provide(),
	})

	return &auditFixture{
		db:        db,
		node:      node,
		clk:       clk,
		svc:       svc,
		companyID: node.Generate(),
	}
}

func TestAuditLogDefaults(t *testing.T) {
	ctx := context.Background()
	f := newAuditFixture(t)

	targetID := "12345"
	err := f.svc.AuditLog(ctx, &f.companyID, "", nil, "invoice.created", "", &targetID, map[string]any{
		"invoice_number": "INV-202603-12345",
		"":               "dropped",
	})
	require.NoError(t, err)

	var entry auditdomain.AuditLog
	require.NoError(t, f.db.Raw(`SELECT * FROM audit_logs LIMIT 1`).Scan(&entry).Error)
	assert.Equal(t, "system", entry.ActorType)
	assert.Equal(t, "unknown", entry.TargetType)
	require.NotNil(t, entry.CompanyID)
	assert.Equal(t, f.companyID, *entry.CompanyID)
	require.NotNil(t, entry.TargetID)
	assert.Equal(t, targetID, *entry.TargetID)

	err = f.svc.AuditLog(ctx, &f.companyID, "user", nil, "   ", "invoice", nil, nil)
	assert.ErrorIs(t, err, auditdomain.ErrInvalidAction)
}

func TestAuditLogResolvesCompanyFromContext(t *testing.T) {
	f := newAuditFixture(t)
	ctx := companyctx.WithCompanyID(context.Background(), f.companyID)

	require.NoError(t, f.svc.AuditLog(ctx, nil, "user", nil, "payment.recorded", "payment", nil, nil))

	var entry auditdomain.AuditLog
	require.NoError(t, f.db.Raw(`SELECT * FROM audit_logs LIMIT 1`).Scan(&entry).Error)
	require.NotNil(t, entry.CompanyID)
	assert.Equal(t, f.companyID, *entry.CompanyID)
}

func TestListAuditLogs(t *testing.T) {
	ctx := context.Background()
	f := newAuditFixture(t)

	actions := []string{"invoice.created", "invoice.status_updated", "payment.recorded"}
	for _, action := range actions {
		require.NoError(t, f.svc.AuditLog(ctx, &f.companyID, "system", nil, action, "invoice", nil, nil))
		f.clk.Advance(time.Minute)
	}
	// Another company's entry stays invisible.
	otherCompany := f.node.Generate()
	require.NoError(t, f.svc.AuditLog(ctx, &otherCompany, "system", nil, "invoice.created", "invoice", nil, nil))

	resp, err := f.svc.List(ctx, auditdomain.ListAuditLogRequest{CompanyID: f.companyID})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 3)
	// Newest first.
	assert.Equal(t, "payment.recorded", resp.AuditLogs[0].Action)

	filtered, err := f.svc.List(ctx, auditdomain.ListAuditLogRequest{
		CompanyID: f.companyID,
		Action:    "invoice.created",
	})
	require.NoError(t, err)
	require.Len(t, filtered.AuditLogs, 1)

	first, err := f.svc.List(ctx, auditdomain.ListAuditLogRequest{
		CompanyID:  f.companyID,
		Pagination: pagination.Pagination{PageSize: 2},
	})
	require.NoError(t, err)
	require.Len(t, first.AuditLogs, 2)
	assert.True(t, first.HasMore)
	require.NotEmpty(t, first.NextPageToken)

	second, err := f.svc.List(ctx, auditdomain.ListAuditLogRequest{
		CompanyID:  f.companyID,
		Pagination: pagination.Pagination{PageSize: 2, PageToken: first.NextPageToken},
	})
	require.NoError(t, err)
	require.Len(t, second.AuditLogs, 1)
	assert.False(t, second.HasMore)
	assert.Equal(t, "invoice.created", second.AuditLogs[0].Action)
}

func TestListAuditLogsValidation(t *testing.T) {
	ctx := context.Background()
	f := newAuditFixture(t)

	_, err := f.svc.List(ctx, auditdomain.ListAuditLogRequest{})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidCompany)

	_, err = f.svc.List(ctx, auditdomain.ListAuditLogRequest{
		CompanyID:  f.companyID,
		Pagination: pagination.Pagination{PageToken: "not-base64!"},
	})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidPageToken)

	start := f.clk.Now()
	end := start.Add(-time.Hour)
	_, err = f.svc.List(ctx, auditdomain.ListAuditLogRequest{
		CompanyID: f.companyID,
		StartAt:   &start,
		EndAt:     &end,
	})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidTimeRange)
}
