// Package httpresp rebuilds the teacher's lib-common/response envelope and
// error-code mapping (spec §6): every response is
// {success, data|null, error|null, metadata{timestamp, traceId?, requestId?}}.
package httpresp

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fluxpay/engine/internal/middleware"
	"github.com/fluxpay/engine/internal/platform/apperr"
)

// Metadata is the envelope's metadata block.
type Metadata struct {
	Timestamp time.Time `json:"timestamp"`
	TraceID   string    `json:"traceId,omitempty"`
	RequestID string    `json:"requestId,omitempty"`
}

// ErrorBody is the envelope's error block.
type ErrorBody struct {
	Code        string            `json:"code"`
	Message     string            `json:"message"`
	FieldErrors map[string]string `json:"fieldErrors,omitempty"`
}

// Envelope is the fixed response shape every FluxPay endpoint returns.
type Envelope struct {
	Success  bool        `json:"success"`
	Data     interface{} `json:"data"`
	Error    *ErrorBody  `json:"error"`
	Metadata Metadata    `json:"metadata"`
}

func meta(c *gin.Context) Metadata {
	return Metadata{
		Timestamp: time.Now().UTC(),
		RequestID: c.GetString(middleware.RequestIDHeader),
	}
}

// Success writes a 200 envelope with data.
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Envelope{Success: true, Data: data, Metadata: meta(c)})
}

// Created writes a 201 envelope with data.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Envelope{Success: true, Data: data, Metadata: meta(c)})
}

// Paginated writes a 200 envelope wrapping a page of results.
func Paginated(c *gin.Context, items interface{}, total int64, page, limit int) {
	c.JSON(http.StatusOK, Envelope{
		Success: true,
		Data: gin.H{
			"items": items,
			"total": total,
			"page":  page,
			"limit": limit,
		},
		Metadata: meta(c),
	})
}

// BadRequest writes a 400 envelope for a plain validation failure.
func BadRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, Envelope{
		Success:  false,
		Error:    &ErrorBody{Code: "VAL_001", Message: msg},
		Metadata: meta(c),
	})
}

// codeToStatus is the fixed code->HTTP-status mapping from spec §6.
var codeToStatus = map[string]int{
	"ORD_001": http.StatusNotFound,
	"ORD_002": http.StatusBadRequest,
	"ORD_003": http.StatusBadRequest,
	"PAY_001": http.StatusNotFound,
	"PAY_002": http.StatusConflict,
	"PAY_003": http.StatusBadRequest,
	"PAY_004": http.StatusBadRequest,
	"PAY_005": http.StatusBadGateway,
	"PAY_006": http.StatusBadRequest,
	"PAY_007": http.StatusUnprocessableEntity,
	"PAY_008": http.StatusNotFound,
	"CRD_001": http.StatusNotFound,
	"CRD_002": http.StatusUnprocessableEntity,
	"CRD_003": http.StatusConflict,
	"CRD_004": http.StatusConflict,
	"VAL_001": http.StatusBadRequest,
	"VAL_002": http.StatusBadRequest,
	"VAL_003": http.StatusBadRequest,
	"VAL_004": http.StatusUnprocessableEntity,
	"VAL_005": http.StatusConflict,
	"TNT_001": http.StatusBadRequest,
	"SYS_001": http.StatusInternalServerError,
	"SYS_002": http.StatusInternalServerError,
	"SYS_003": http.StatusGatewayTimeout,
	"SYS_004": http.StatusServiceUnavailable,
	"SYS_005": http.StatusNotFound,
}

// kindFallback maps an apperr.Kind to a status when the code itself isn't
// in the fixed table above (defensive default, never reached for the
// documented codes).
var kindFallback = map[apperr.Kind]int{
	apperr.KindValidation: http.StatusBadRequest,
	apperr.KindConflict:   http.StatusConflict,
	apperr.KindNotFound:   http.StatusNotFound,
	apperr.KindUpstream:   http.StatusBadGateway,
	apperr.KindInvariant:  http.StatusInternalServerError,
	apperr.KindTimeout:    http.StatusGatewayTimeout,
}

// Error maps a domain error to the fixed envelope+status contract and
// writes it. PG-vendor-specific details never leak past this boundary —
// callers must have already wrapped them via apperr.NewUpstreamError.
func Error(c *gin.Context, err error) {
	ae, ok := apperr.As(err)
	if !ok {
		c.JSON(http.StatusInternalServerError, Envelope{
			Success:  false,
			Error:    &ErrorBody{Code: "SYS_001", Message: "internal server error"},
			Metadata: meta(c),
		})
		return
	}

	status, ok := codeToStatus[ae.Code]
	if !ok {
		status = kindFallback[ae.Kind]
		if status == 0 {
			status = http.StatusInternalServerError
		}
	}

	c.JSON(status, Envelope{
		Success:  false,
		Error:    &ErrorBody{Code: ae.Code, Message: ae.Message},
		Metadata: meta(c),
	})
}
