package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/fluxpay/engine/internal/application"
	"github.com/fluxpay/engine/internal/httpresp"
	"github.com/fluxpay/engine/internal/idempotency"
	"github.com/fluxpay/engine/internal/tenant"
)

// CreditHandler handles HTTP requests for the prepaid Credit aggregate.
type CreditHandler struct {
	service *application.CreditService
}

func NewCreditHandler(service *application.CreditService) *CreditHandler {
	return &CreditHandler{service: service}
}

func (h *CreditHandler) RegisterRoutes(r *gin.RouterGroup, gate *idempotency.Gate) {
	credits := r.Group("/credits/:userId")
	{
		credits.GET("", h.GetBalance)
		credits.GET("/ledger", h.GetLedger)
		credits.POST("/reserve", idempotency.Middleware(gate, "POST /credits/:userId/reserve"), h.Reserve)
		credits.POST("/reservations/:reservationId/confirm", idempotency.Middleware(gate, "POST /credits/:userId/reservations/:reservationId/confirm"), h.Confirm)
		credits.POST("/reservations/:reservationId/cancel", idempotency.Middleware(gate, "POST /credits/:userId/reservations/:reservationId/cancel"), h.Cancel)
	}
}

func (h *CreditHandler) GetBalance(c *gin.Context) {
	tenantID, err := tenant.Require(c.Request.Context())
	if err != nil {
		httpresp.Error(c, err)
		return
	}
	dto, err := h.service.GetBalance(c.Request.Context(), tenantID, c.Param("userId"))
	if err != nil {
		httpresp.Error(c, err)
		return
	}
	httpresp.Success(c, dto)
}

func (h *CreditHandler) GetLedger(c *gin.Context) {
	tenantID, err := tenant.Require(c.Request.Context())
	if err != nil {
		httpresp.Error(c, err)
		return
	}
	entries, err := h.service.Ledger(c.Request.Context(), tenantID, c.Param("userId"))
	if err != nil {
		httpresp.Error(c, err)
		return
	}
	httpresp.Success(c, entries)
}

func (h *CreditHandler) Reserve(c *gin.Context) {
	tenantID, err := tenant.Require(c.Request.Context())
	if err != nil {
		httpresp.Error(c, err)
		return
	}

	var req application.ReserveCreditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpresp.BadRequest(c, err.Error())
		return
	}

	dto, err := h.service.Reserve(c.Request.Context(), tenantID, c.Param("userId"), req)
	if err != nil {
		httpresp.Error(c, err)
		return
	}
	httpresp.Created(c, dto)
}

func (h *CreditHandler) Confirm(c *gin.Context) {
	tenantID, err := tenant.Require(c.Request.Context())
	if err != nil {
		httpresp.Error(c, err)
		return
	}

	dto, err := h.service.Confirm(c.Request.Context(), tenantID, c.Param("userId"), c.Param("reservationId"))
	if err != nil {
		httpresp.Error(c, err)
		return
	}
	httpresp.Success(c, dto)
}

func (h *CreditHandler) Cancel(c *gin.Context) {
	tenantID, err := tenant.Require(c.Request.Context())
	if err != nil {
		httpresp.Error(c, err)
		return
	}

	dto, err := h.service.Cancel(c.Request.Context(), tenantID, c.Param("userId"), c.Param("reservationId"))
	if err != nil {
		httpresp.Error(c, err)
		return
	}
	httpresp.Success(c, dto)
}
