package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	invoicedomain "github.com/smallbiznis/rentledger/internal/invoice/domain"
	"github.com/smallbiznis/rentledger/pkg/db/pagination"
)

type lineItemPayload struct {
	Description string `json:"description"`
	Quantity    int64  `json:"quantity"`
	UnitPrice   int64  `json:"unit_price"`
	Type        string `json:"type"`
}

type createInvoicePayload struct {
	OccupancyID string            `json:"occupancy_id" binding:"required"`
	TenantID    string            `json:"tenant_id"`
	InvoiceDate *time.Time        `json:"invoice_date"`
	DueDate     *time.Time        `json:"due_date"`
	Currency    string            `json:"currency"`
	Notes       string            `json:"notes"`
	TaxAmount   int64             `json:"tax_amount"`
	LineItems   []lineItemPayload `json:"line_items" binding:"required"`
}

type updateInvoicePayload struct {
	DueDate   *time.Time        `json:"due_date"`
	Notes     *string           `json:"notes"`
	TaxAmount *int64            `json:"tax_amount"`
	LineItems []lineItemPayload `json:"line_items"`
}

type updateInvoiceStatusPayload struct {
	Status string `json:"status" binding:"required"`
}

type generateRentPayload struct {
	OccupancyID string `json:"occupancy_id" binding:"required"`
	Month       string `json:"month" binding:"required"`
	DueDay      int    `json:"due_day"`
}

type bulkGeneratePayload struct {
	Month        string   `json:"month" binding:"required"`
	DueDay       int      `json:"due_day"`
	OccupancyIDs []string `json:"occupancy_ids"`
	SkipExisting *bool    `json:"skip_existing"`
}

func (s *Server) CreateInvoice(c *gin.Context) {
	companyID, ok := s.companyFromRequest(c)
	if !ok {
		return
	}

	var payload createInvoicePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request body"))
		return
	}

	occupancyID, err := parseIDParam(payload.OccupancyID)
	if err != nil {
		AbortWithError(c, newValidationError("occupancy_id", "invalid_occupancy_id", "invalid occupancy id"))
		return
	}
	var tenantID snowflake.ID
	if strings.TrimSpace(payload.TenantID) != "" {
		tenantID, err = parseIDParam(payload.TenantID)
		if err != nil {
			AbortWithError(c, newValidationError("tenant_id", "invalid_tenant_id", "invalid tenant id"))
			return
		}
	}

	req := invoicedomain.CreateInvoiceRequest{
		CompanyID:   companyID,
		OccupancyID: occupancyID,
		TenantID:    tenantID,
		Currency:    payload.Currency,
		Notes:       payload.Notes,
		TaxAmount:   payload.TaxAmount,
		LineItems:   toLineItemInputs(payload.LineItems),
	}
	if payload.InvoiceDate != nil {
		req.InvoiceDate = *payload.InvoiceDate
	}
	if payload.DueDate != nil {
		req.DueDate = *payload.DueDate
	}

	item, err := s.invoiceSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": item})
}

func (s *Server) ListInvoices(c *gin.Context) {
	companyID, ok := s.companyFromRequest(c)
	if !ok {
		return
	}

	req := invoicedomain.ListInvoiceRequest{
		Pagination: pagination.Pagination{
			PageToken: c.Query("page_token"),
			PageSize:  intQuery(c, "page_size"),
		},
		OverdueOnly: c.Query("overdue") == "true",
	}
	if status := strings.TrimSpace(c.Query("status")); status != "" {
		parsed := invoicedomain.InvoiceStatus(status)
		req.Status = &parsed
	}
	if occupancy := strings.TrimSpace(c.Query("occupancy_id")); occupancy != "" {
		id, err := parseIDParam(occupancy)
		if err != nil {
			AbortWithError(c, newValidationError("occupancy_id", "invalid_occupancy_id", "invalid occupancy id"))
			return
		}
		req.OccupancyID = &id
	}
	if tenant := strings.TrimSpace(c.Query("tenant_id")); tenant != "" {
		id, err := parseIDParam(tenant)
		if err != nil {
			AbortWithError(c, newValidationError("tenant_id", "invalid_tenant_id", "invalid tenant id"))
			return
		}
		req.TenantID = &id
	}

	resp, err := s.invoiceSvc.List(c.Request.Context(), companyID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Invoices, "page_info": resp.PageInfo})
}

func (s *Server) GetInvoice(c *gin.Context) {
	companyID, ok := s.companyFromRequest(c)
	if !ok {
		return
	}

	item, err := s.invoiceSvc.GetByID(c.Request.Context(), companyID, c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) UpdateInvoice(c *gin.Context) {
	companyID, ok := s.companyFromRequest(c)
	if !ok {
		return
	}

	var payload updateInvoicePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request body"))
		return
	}

	item, err := s.invoiceSvc.Update(c.Request.Context(), companyID, c.Param("id"), invoicedomain.UpdateInvoiceRequest{
		DueDate:   payload.DueDate,
		Notes:     payload.Notes,
		TaxAmount: payload.TaxAmount,
		LineItems: toLineItemInputs(payload.LineItems),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) UpdateInvoiceStatus(c *gin.Context) {
	companyID, ok := s.companyFromRequest(c)
	if !ok {
		return
	}

	var payload updateInvoiceStatusPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		AbortWithError(c, newValidationError("status", "invalid_status", "invalid status"))
		return
	}

	item, err := s.invoiceSvc.UpdateStatus(c.Request.Context(), companyID, c.Param("id"),
		invoicedomain.InvoiceStatus(strings.TrimSpace(payload.Status)))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) DeleteInvoice(c *gin.Context) {
	companyID, ok := s.companyFromRequest(c)
	if !ok {
		return
	}

	if err := s.invoiceSvc.Delete(c.Request.Context(), companyID, c.Param("id")); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) GenerateRentInvoice(c *gin.Context) {
	companyID, ok := s.companyFromRequest(c)
	if !ok {
		return
	}

	var payload generateRentPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request body"))
		return
	}
	occupancyID, err := parseIDParam(payload.OccupancyID)
	if err != nil {
		AbortWithError(c, newValidationError("occupancy_id", "invalid_occupancy_id", "invalid occupancy id"))
		return
	}

	item, err := s.invoiceSvc.GenerateRent(c.Request.Context(), invoicedomain.GenerateRentRequest{
		CompanyID:   companyID,
		OccupancyID: occupancyID,
		Month:       payload.Month,
		DueDay:      payload.DueDay,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": item})
}

func (s *Server) BulkGenerateInvoices(c *gin.Context) {
	companyID, ok := s.companyFromRequest(c)
	if !ok {
		return
	}

	var payload bulkGeneratePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request body"))
		return
	}

	occupancyIDs := make([]snowflake.ID, 0, len(payload.OccupancyIDs))
	for _, raw := range payload.OccupancyIDs {
		id, err := parseIDParam(raw)
		if err != nil {
			AbortWithError(c, newValidationError("occupancy_ids", "invalid_occupancy_id", "invalid occupancy id"))
			return
		}
		occupancyIDs = append(occupancyIDs, id)
	}

	result, err := s.invoiceSvc.BulkGenerate(c.Request.Context(), invoicedomain.BulkGenerateRequest{
		CompanyID:    companyID,
		Month:        payload.Month,
		DueDay:       payload.DueDay,
		OccupancyIDs: occupancyIDs,
		SkipExisting: payload.SkipExisting,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": result})
}

func (s *Server) MarkInvoicesOverdue(c *gin.Context) {
	companyID, ok := s.companyFromRequest(c)
	if !ok {
		return
	}

	count, err := s.invoiceSvc.MarkOverdue(c.Request.Context(), companyID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"marked_overdue": count}})
}

func toLineItemInputs(items []lineItemPayload) []invoicedomain.LineItemInput {
	inputs := make([]invoicedomain.LineItemInput, 0, len(items))
	for _, item := range items {
		inputs = append(inputs, invoicedomain.LineItemInput{
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Type:        invoicedomain.LineItemType(strings.TrimSpace(item.Type)),
		})
	}
	return inputs
}

func parseIDParam(raw string) (snowflake.ID, error) {
	return snowflake.ParseString(strings.TrimSpace(raw))
}

func intQuery(c *gin.Context, key string) int {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return 0
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0
	}
	return value
}
