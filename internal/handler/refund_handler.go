package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/fluxpay/engine/internal/application"
	"github.com/fluxpay/engine/internal/httpresp"
	"github.com/fluxpay/engine/internal/idempotency"
	"github.com/fluxpay/engine/internal/platform/apperr"
	"github.com/fluxpay/engine/internal/tenant"
)

// RefundHandler handles HTTP requests for Refund operations.
type RefundHandler struct {
	service *application.RefundService
}

func NewRefundHandler(service *application.RefundService) *RefundHandler {
	return &RefundHandler{service: service}
}

// RegisterRoutes mounts refund creation and lookups under /refunds; the
// by-payment listing stays reachable from /payments/:id/refunds.
func (h *RefundHandler) RegisterRoutes(r *gin.RouterGroup, gate *idempotency.Gate) {
	r.GET("/payments/:id/refunds", h.ListRefundsByPayment)

	refunds := r.Group("/refunds")
	{
		refunds.POST("", idempotency.Middleware(gate, "POST /refunds"), h.CreateRefund)
		refunds.GET("/:id", h.GetRefund)
		refunds.POST("/:id/process", idempotency.Middleware(gate, "POST /refunds/:id/process"), h.ProcessRefund)
	}
}

func (h *RefundHandler) CreateRefund(c *gin.Context) {
	tenantID, err := tenant.Require(c.Request.Context())
	if err != nil {
		httpresp.Error(c, err)
		return
	}

	var req application.CreateRefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpresp.BadRequest(c, err.Error())
		return
	}

	dto, err := h.service.Create(c.Request.Context(), tenantID, req)
	if err != nil {
		httpresp.Error(c, err)
		return
	}
	httpresp.Created(c, dto)
}

func (h *RefundHandler) ListRefundsByPayment(c *gin.Context) {
	tenantID, err := tenant.Require(c.Request.Context())
	if err != nil {
		httpresp.Error(c, err)
		return
	}

	paymentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpresp.Error(c, apperr.NewValidationError("VAL_001", "invalid payment id"))
		return
	}

	dtos, err := h.service.ListByPayment(c.Request.Context(), tenantID, paymentID)
	if err != nil {
		httpresp.Error(c, err)
		return
	}
	httpresp.Success(c, dtos)
}

func (h *RefundHandler) GetRefund(c *gin.Context) {
	tenantID, err := tenant.Require(c.Request.Context())
	if err != nil {
		httpresp.Error(c, err)
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpresp.Error(c, apperr.NewValidationError("VAL_001", "invalid refund id"))
		return
	}

	dto, err := h.service.Get(c.Request.Context(), tenantID, id)
	if err != nil {
		httpresp.Error(c, err)
		return
	}
	httpresp.Success(c, dto)
}

func (h *RefundHandler) ProcessRefund(c *gin.Context) {
	tenantID, err := tenant.Require(c.Request.Context())
	if err != nil {
		httpresp.Error(c, err)
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpresp.Error(c, apperr.NewValidationError("VAL_001", "invalid refund id"))
		return
	}

	dto, err := h.service.Process(c.Request.Context(), tenantID, id)
	if err != nil {
		httpresp.Error(c, err)
		return
	}
	httpresp.Success(c, dto)
}
