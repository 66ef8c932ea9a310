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

// PaymentHandler handles HTTP requests for the Payment two-phase commit.
type PaymentHandler struct {
	service *application.PaymentService
}

func NewPaymentHandler(service *application.PaymentService) *PaymentHandler {
	return &PaymentHandler{service: service}
}

// RegisterRoutes mounts the payment routes. Create is idempotency-guarded;
// Approve and Confirm are explicit state-transition calls against an
// already-created payment and are exempt, same as Get.
func (h *PaymentHandler) RegisterRoutes(r *gin.RouterGroup, gate *idempotency.Gate) {
	payments := r.Group("/payments")
	{
		payments.POST("", idempotency.Middleware(gate, "POST /payments"), h.CreatePayment)
		payments.GET("/:id", h.GetPayment)
		payments.GET("/order/:orderId", h.GetPaymentByOrder)
		payments.POST("/:id/approve", h.ApprovePayment)
		payments.POST("/:id/confirm", h.ConfirmPayment)
	}
}

func (h *PaymentHandler) CreatePayment(c *gin.Context) {
	tenantID, err := tenant.Require(c.Request.Context())
	if err != nil {
		httpresp.Error(c, err)
		return
	}

	var req application.CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpresp.BadRequest(c, err.Error())
		return
	}

	dto, err := h.service.CreatePayment(c.Request.Context(), tenantID, req)
	if err != nil {
		httpresp.Error(c, err)
		return
	}
	httpresp.Created(c, dto)
}

func (h *PaymentHandler) GetPayment(c *gin.Context) {
	tenantID, err := tenant.Require(c.Request.Context())
	if err != nil {
		httpresp.Error(c, err)
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpresp.Error(c, apperr.NewValidationError("VAL_001", "invalid payment id"))
		return
	}

	dto, err := h.service.Get(c.Request.Context(), tenantID, id)
	if err != nil {
		httpresp.Error(c, err)
		return
	}
	httpresp.Success(c, dto)
}

func (h *PaymentHandler) GetPaymentByOrder(c *gin.Context) {
	tenantID, err := tenant.Require(c.Request.Context())
	if err != nil {
		httpresp.Error(c, err)
		return
	}

	orderID, err := uuid.Parse(c.Param("orderId"))
	if err != nil {
		httpresp.Error(c, apperr.NewValidationError("VAL_001", "invalid order id"))
		return
	}

	dto, err := h.service.GetByOrder(c.Request.Context(), tenantID, orderID)
	if err != nil {
		httpresp.Error(c, err)
		return
	}
	httpresp.Success(c, dto)
}

func (h *PaymentHandler) ApprovePayment(c *gin.Context) {
	tenantID, err := tenant.Require(c.Request.Context())
	if err != nil {
		httpresp.Error(c, err)
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpresp.Error(c, apperr.NewValidationError("VAL_001", "invalid payment id"))
		return
	}

	var req application.ApprovePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpresp.BadRequest(c, err.Error())
		return
	}

	dto, err := h.service.Approve(c.Request.Context(), tenantID, id, req)
	if err != nil {
		httpresp.Error(c, err)
		return
	}
	httpresp.Success(c, dto)
}

func (h *PaymentHandler) ConfirmPayment(c *gin.Context) {
	tenantID, err := tenant.Require(c.Request.Context())
	if err != nil {
		httpresp.Error(c, err)
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpresp.Error(c, apperr.NewValidationError("VAL_001", "invalid payment id"))
		return
	}

	dto, err := h.service.Confirm(c.Request.Context(), tenantID, id)
	if err != nil {
		httpresp.Error(c, err)
		return
	}
	httpresp.Success(c, dto)
}
