package handler

import (
	"encoding/json"
	"errors"
	"io"

	"github.com/gin-gonic/gin"

	"github.com/fluxpay/engine/internal/application"
	"github.com/fluxpay/engine/internal/httpresp"
	"github.com/fluxpay/engine/internal/pg"
	"github.com/fluxpay/engine/internal/platform/apperr"
	"github.com/fluxpay/engine/internal/tenant"
)

// WebhookHandler receives inbound payment gateway webhook deliveries.
type WebhookHandler struct {
	service *application.WebhookService
}

func NewWebhookHandler(service *application.WebhookService) *WebhookHandler {
	return &WebhookHandler{service: service}
}

func (h *WebhookHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/webhooks/pg/:vendor", h.HandlePGWebhook)
}

// HandlePGWebhook handles POST /api/v1/webhooks/pg/:vendor. The body is
// read raw: signature verification must run over exactly the bytes the
// vendor sent, before any JSON re-encoding could change them.
func (h *WebhookHandler) HandlePGWebhook(c *gin.Context) {
	tenantID, err := tenant.Require(c.Request.Context())
	if err != nil {
		httpresp.Error(c, err)
		return
	}

	rawBody, err := io.ReadAll(c.Request.Body)
	if err != nil {
		httpresp.Error(c, apperr.NewValidationError("VAL_001", "failed to read webhook body"))
		return
	}

	var peek struct {
		PGTransactionID string `json:"pgTransactionId"`
	}
	if err := json.Unmarshal(rawBody, &peek); err != nil || peek.PGTransactionID == "" {
		httpresp.Error(c, apperr.NewValidationError("VAL_001", "malformed webhook payload"))
		return
	}

	signature := c.GetHeader("X-Signature")
	if err := h.service.HandlePGWebhook(c.Request.Context(), tenantID, peek.PGTransactionID, rawBody, signature); err != nil {
		httpresp.Error(c, mapWebhookError(err))
		return
	}
	httpresp.Success(c, gin.H{"received": true})
}

func mapWebhookError(err error) error {
	switch {
	case errors.Is(err, pg.ErrBadSignature):
		return apperr.NewValidationError("VAL_001", "webhook signature mismatch")
	case errors.Is(err, pg.ErrStaleTimestamp):
		return apperr.NewValidationError("VAL_001", "webhook timestamp outside tolerance window")
	case errors.Is(err, pg.ErrDuplicateNonce):
		return apperr.NewConflictError("VAL_005", "webhook nonce already seen")
	}
	if _, ok := apperr.As(err); ok {
		return err
	}
	return apperr.NewValidationError("VAL_001", err.Error())
}
