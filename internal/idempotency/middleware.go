package idempotency

import (
	"bytes"
	"io"
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/fluxpay/engine/internal/tenant"
)

// Header carries the client-supplied idempotency key on guarded endpoints.
const Header = "X-Idempotency-Key"

var uuidRe = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// responseRecorder captures the body a handler writes so it can be stashed
// in the idempotency gate after the handler returns.
type responseRecorder struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

// Middleware guards a mutating endpoint with the idempotency gate. Exempt
// endpoints (state transitions, health/admin, DELETE) must not mount this.
// Per spec §9, any guarded path reached with no client key fails closed.
func Middleware(gate *Gate, endpoint string) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientKey := c.GetHeader(Header)
		if clientKey == "" {
			writeEnvelopeError(c, http.StatusBadRequest, "VAL_002", "X-Idempotency-Key header is required")
			return
		}
		if !uuidRe.MatchString(clientKey) {
			writeEnvelopeError(c, http.StatusBadRequest, "VAL_003", "X-Idempotency-Key must be a UUID")
			return
		}

		tenantID := tenant.FromContext(c.Request.Context())

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			writeEnvelopeError(c, http.StatusBadRequest, "VAL_001", "failed to read request body")
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		key := Key{TenantID: tenantID, Endpoint: endpoint, ClientKey: clientKey}
		payloadHash := HashPayload(body)

		result, err := gate.AcquireLock(c.Request.Context(), key, payloadHash, DefaultTTL)
		if err != nil {
			writeEnvelopeError(c, http.StatusInternalServerError, "SYS_001", "idempotency gate error")
			return
		}

		switch result.Decision {
		case DecisionHit:
			c.Data(result.HTTPStatus, "application/json", result.Response)
			c.Abort()
			return
		case DecisionConflict:
			writeEnvelopeError(c, http.StatusUnprocessableEntity, "VAL_004", "idempotency key reused with a different request body")
			c.Abort()
			return
		case DecisionProcessing:
			writeEnvelopeError(c, http.StatusConflict, "VAL_005", "a request with this idempotency key is already being processed; retry later")
			c.Abort()
			return
		}

		rec := &responseRecorder{ResponseWriter: c.Writer, body: &bytes.Buffer{}}
		c.Writer = rec
		c.Set("idempotency_key", key)
		c.Set("idempotency_payload_hash", payloadHash)

		c.Next()

		if len(c.Errors) > 0 || c.IsAborted() {
			_ = gate.ReleaseLock(c.Request.Context(), key)
			return
		}

		_ = gate.Store(c.Request.Context(), key, payloadHash, rec.body.Bytes(), rec.Status(), DefaultTTL)
	}
}

func writeEnvelopeError(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"data":    nil,
		"error":   gin.H{"code": code, "message": msg},
	})
}

// NewClientKeySuggestion is a convenience helper for tests/clients that
// need a fresh, valid idempotency key.
func NewClientKeySuggestion() string {
	return uuid.New().String()
}
