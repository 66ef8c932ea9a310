package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/fluxpay/engine/internal/application"
	"github.com/fluxpay/engine/internal/httpresp"
	"github.com/fluxpay/engine/internal/idempotency"
	"github.com/fluxpay/engine/internal/platform/apperr"
	"github.com/fluxpay/engine/internal/tenant"
)

// OrderHandler handles HTTP requests for Order operations.
type OrderHandler struct {
	service *application.OrderService
}

func NewOrderHandler(service *application.OrderService) *OrderHandler {
	return &OrderHandler{service: service}
}

// RegisterRoutes mounts the order routes on the given API group. gate
// guards the two mutating endpoints per spec §4.1.
func (h *OrderHandler) RegisterRoutes(r *gin.RouterGroup, gate *idempotency.Gate) {
	orders := r.Group("/orders")
	{
		orders.POST("", idempotency.Middleware(gate, "POST /orders"), h.CreateOrder)
		orders.GET("/:id", h.GetOrder)
		orders.GET("", h.ListOrders)
		orders.POST("/:id/cancel", idempotency.Middleware(gate, "POST /orders/:id/cancel"), h.CancelOrder)
	}
}

func (h *OrderHandler) CreateOrder(c *gin.Context) {
	tenantID, err := tenant.Require(c.Request.Context())
	if err != nil {
		httpresp.Error(c, err)
		return
	}

	var req application.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpresp.BadRequest(c, err.Error())
		return
	}

	dto, err := h.service.CreateOrder(c.Request.Context(), tenantID, req)
	if err != nil {
		httpresp.Error(c, err)
		return
	}
	httpresp.Created(c, dto)
}

func (h *OrderHandler) GetOrder(c *gin.Context) {
	tenantID, err := tenant.Require(c.Request.Context())
	if err != nil {
		httpresp.Error(c, err)
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpresp.Error(c, apperr.NewValidationError("VAL_001", "invalid order id"))
		return
	}

	dto, err := h.service.GetOrder(c.Request.Context(), tenantID, id)
	if err != nil {
		httpresp.Error(c, err)
		return
	}
	httpresp.Success(c, dto)
}

func (h *OrderHandler) ListOrders(c *gin.Context) {
	tenantID, err := tenant.Require(c.Request.Context())
	if err != nil {
		httpresp.Error(c, err)
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	dtos, total, err := h.service.ListOrders(c.Request.Context(), tenantID, c.Query("userId"), page, limit)
	if err != nil {
		httpresp.Error(c, err)
		return
	}
	httpresp.Paginated(c, dtos, total, page, limit)
}

func (h *OrderHandler) CancelOrder(c *gin.Context) {
	tenantID, err := tenant.Require(c.Request.Context())
	if err != nil {
		httpresp.Error(c, err)
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpresp.Error(c, apperr.NewValidationError("VAL_001", "invalid order id"))
		return
	}

	dto, err := h.service.CancelOrder(c.Request.Context(), tenantID, id)
	if err != nil {
		httpresp.Error(c, err)
		return
	}
	httpresp.Success(c, dto)
}
