package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/fluxpay/engine/internal/application"
	"github.com/fluxpay/engine/internal/httpresp"
	"github.com/fluxpay/engine/internal/outbox"
	"github.com/fluxpay/engine/internal/platform/apperr"
	"github.com/fluxpay/engine/internal/saga"
	"github.com/fluxpay/engine/internal/tenant"
)

// AdminHandler exposes operational visibility into payments, the
// transactional outbox, and saga instances, replacing the teacher's
// promo/subscription admin surface with FluxPay's own.
type AdminHandler struct {
	paymentService *application.PaymentService
	outboxRepo     outbox.Repository
	sagaRepo       saga.Repository
}

func NewAdminHandler(paymentService *application.PaymentService, outboxRepo outbox.Repository, sagaRepo saga.Repository) *AdminHandler {
	return &AdminHandler{paymentService: paymentService, outboxRepo: outboxRepo, sagaRepo: sagaRepo}
}

func (h *AdminHandler) RegisterRoutes(r *gin.RouterGroup) {
	admin := r.Group("/admin")
	{
		admin.GET("/payments", h.ListPayments)
		admin.GET("/outbox", h.ListOutbox)
		admin.GET("/sagas/:id", h.GetSaga)
	}
}

func pagination(c *gin.Context) (page, limit int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return page, limit
}

// ListPayments handles GET /api/v1/admin/payments.
func (h *AdminHandler) ListPayments(c *gin.Context) {
	tenantID, err := tenant.Require(c.Request.Context())
	if err != nil {
		httpresp.Error(c, err)
		return
	}

	page, limit := pagination(c)
	payments, total, err := h.paymentService.ListAll(c.Request.Context(), tenantID, page, limit)
	if err != nil {
		httpresp.Error(c, err)
		return
	}
	httpresp.Paginated(c, payments, total, page, limit)
}

// ListOutbox handles GET /api/v1/admin/outbox?status=PENDING|PROCESSING|PUBLISHED|FAILED.
func (h *AdminHandler) ListOutbox(c *gin.Context) {
	tenantID, err := tenant.Require(c.Request.Context())
	if err != nil {
		httpresp.Error(c, err)
		return
	}

	page, limit := pagination(c)
	status := outbox.Status(c.Query("status"))
	events, total, err := h.outboxRepo.ListByStatus(c.Request.Context(), tenantID, status, page, limit)
	if err != nil {
		httpresp.Error(c, err)
		return
	}
	httpresp.Paginated(c, events, total, page, limit)
}

// GetSaga handles GET /api/v1/admin/sagas/:id.
func (h *AdminHandler) GetSaga(c *gin.Context) {
	instance, steps, err := h.sagaRepo.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		httpresp.Error(c, err)
		return
	}
	if instance == nil {
		httpresp.Error(c, apperr.NewNotFoundError("SYS_005", "saga instance", c.Param("id")))
		return
	}
	httpresp.Success(c, gin.H{"instance": instance, "steps": steps})
}
