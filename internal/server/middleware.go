package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/rentledger/internal/companyctx"
)

const HeaderCompany = "X-Company-ID"

// CompanyContext resolves the tenant from the X-Company-ID header and
// injects it into the request context. Requests without a resolvable
// company are rejected before any handler runs.
func (s *Server) CompanyContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		companyID, err := s.resolveCompanyID(c.GetHeader(HeaderCompany))
		if err != nil {
			AbortWithError(c, err)
			return
		}

		ctx := companyctx.WithCompanyID(c.Request.Context(), companyID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func (s *Server) resolveCompanyID(header string) (snowflake.ID, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		if s.cfg.DefaultCompanyID != 0 {
			return snowflake.ID(s.cfg.DefaultCompanyID), nil
		}
		return 0, newValidationError("company_id", "invalid_company", "missing X-Company-ID header")
	}

	companyID, err := snowflake.ParseString(header)
	if err != nil || companyID == 0 {
		return 0, newValidationError("company_id", "invalid_company", "malformed X-Company-ID header")
	}
	return companyID, nil
}

func (s *Server) companyFromRequest(c *gin.Context) (snowflake.ID, bool) {
	companyID, ok := companyctx.CompanyIDFromContext(c.Request.Context())
	if !ok || companyID == 0 {
		AbortWithError(c, newValidationError("company_id", "invalid_company", "missing company scope"))
		return 0, false
	}
	return companyID, true
}

// BulkGenerateRateLimit throttles bulk generation per company before the
// orchestrator does any work.
func (s *Server) BulkGenerateRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.bulkLimiter.Enabled() {
			c.Next()
			return
		}

		companyID, ok := s.companyFromRequest(c)
		if !ok {
			return
		}

		result, err := s.bulkLimiter.AllowCompany(c.Request.Context(), companyID.String())
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if !result.Allowed {
			s.obsMetrics.RecordRateLimitDenied(c.Request.Context(), companyID.String(), c.FullPath(), "bucket_empty")
			AbortWithError(c, ErrTooManyRequests)
			return
		}

		s.obsMetrics.RecordRateLimitAllowed(c.Request.Context(), companyID.String(), c.FullPath())
		c.Next()
	}
}
