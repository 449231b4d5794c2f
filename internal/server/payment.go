package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/smallbiznis/rentledger/internal/payment/domain"
)

type createPaymentPayload struct {
	InvoiceID      string         `json:"invoice_id" binding:"required"`
	Amount         int64          `json:"amount" binding:"required"`
	PaidAt         *time.Time     `json:"paid_at"`
	Method         string         `json:"method" binding:"required"`
	Reference      string         `json:"reference"`
	Metadata       map[string]any `json:"metadata"`
	Notes          string         `json:"notes"`
	IdempotencyKey string         `json:"idempotency_key"`
}

type updatePaymentPayload struct {
	Amount    *int64     `json:"amount"`
	PaidAt    *time.Time `json:"paid_at"`
	Method    *string    `json:"method"`
	Reference *string    `json:"reference"`
	Notes     *string    `json:"notes"`
}

func (s *Server) CreatePayment(c *gin.Context) {
	companyID, ok := s.companyFromRequest(c)
	if !ok {
		return
	}

	var payload createPaymentPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request body"))
		return
	}
	invoiceID, err := parseIDParam(payload.InvoiceID)
	if err != nil {
		AbortWithError(c, newValidationError("invoice_id", "invalid_invoice_id", "invalid invoice id"))
		return
	}

	req := paymentdomain.CreatePaymentRequest{
		CompanyID:      companyID,
		InvoiceID:      invoiceID,
		Amount:         payload.Amount,
		Method:         paymentdomain.PaymentMethod(strings.TrimSpace(payload.Method)),
		Reference:      payload.Reference,
		Metadata:       payload.Metadata,
		Notes:          payload.Notes,
		IdempotencyKey: payload.IdempotencyKey,
	}
	if payload.PaidAt != nil {
		req.PaidAt = *payload.PaidAt
	}

	item, err := s.paymentSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": item})
}

func (s *Server) ListPayments(c *gin.Context) {
	companyID, ok := s.companyFromRequest(c)
	if !ok {
		return
	}

	req := paymentdomain.ListPaymentRequest{
		IncludeInactive: c.Query("include_inactive") == "true",
	}
	if invoice := strings.TrimSpace(c.Query("invoice_id")); invoice != "" {
		id, err := parseIDParam(invoice)
		if err != nil {
			AbortWithError(c, newValidationError("invoice_id", "invalid_invoice_id", "invalid invoice id"))
			return
		}
		req.InvoiceID = &id
	}

	items, err := s.paymentSvc.List(c.Request.Context(), companyID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) GetPayment(c *gin.Context) {
	companyID, ok := s.companyFromRequest(c)
	if !ok {
		return
	}

	item, err := s.paymentSvc.GetByID(c.Request.Context(), companyID, c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) UpdatePayment(c *gin.Context) {
	companyID, ok := s.companyFromRequest(c)
	if !ok {
		return
	}

	var payload updatePaymentPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request body"))
		return
	}

	req := paymentdomain.UpdatePaymentRequest{
		Amount:    payload.Amount,
		PaidAt:    payload.PaidAt,
		Reference: payload.Reference,
		Notes:     payload.Notes,
	}
	if payload.Method != nil {
		method := paymentdomain.PaymentMethod(strings.TrimSpace(*payload.Method))
		req.Method = &method
	}

	item, err := s.paymentSvc.Update(c.Request.Context(), companyID, c.Param("id"), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) DeletePayment(c *gin.Context) {
	companyID, ok := s.companyFromRequest(c)
	if !ok {
		return
	}

	if err := s.paymentSvc.Remove(c.Request.Context(), companyID, c.Param("id")); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) ActivatePayment(c *gin.Context) {
	companyID, ok := s.companyFromRequest(c)
	if !ok {
		return
	}

	item, err := s.paymentSvc.Activate(c.Request.Context(), companyID, c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}
