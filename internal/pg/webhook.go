package pg

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/fluxpay/engine/internal/platform/apperr"
)

// WebhookTimestampTolerance is spec §6's "timestamp tolerance ±5 min".
const WebhookTimestampTolerance = 5 * time.Minute

// WebhookPayload is the canonical body a PG vendor posts to
// /webhooks/pg/{vendor}.
type WebhookPayload struct {
	PGTransactionID string    `json:"pgTransactionId"`
	Status          string    `json:"status"`
	Timestamp       time.Time `json:"timestamp"`
	Nonce           string    `json:"nonce"`
}

// VerifySignature checks an HMAC-SHA256 signature over the raw canonical
// body, per spec §4.4 ("Verify HMAC-SHA256 signature over canonical
// payload; reject mismatches").
func VerifySignature(secret, rawBody, signatureHex string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(rawBody))
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signatureHex))
}

// ProcessedWebhookStore dedups webhook deliveries by pg_transaction_id
// and tracks nonces within the timestamp tolerance window.
type ProcessedWebhookStore interface {
	SeenTransaction(ctx context.Context, pgTransactionID string) (bool, error)
	SeenNonce(ctx context.Context, nonce string) (bool, error)
	MarkProcessed(ctx context.Context, pgTransactionID, nonce string, at time.Time) error
}

// ReconcileTarget abstracts the payment whose status a webhook may
// advance, decoupling reconciliation from the payment package's full
// repository surface.
type ReconcileTarget interface {
	CurrentStatusRank() int
	ApplyStatus(status string) error
}

// Reconciler applies incoming webhook updates with out-of-order
// tolerance, per spec §4.4: "compute the rank of incoming status vs
// current status; if incoming_rank <= current_rank, respond 200 and do
// nothing."
type Reconciler struct {
	secret string
	store  ProcessedWebhookStore
	rank   map[string]int
	logger *zap.Logger
	now    func() time.Time
}

func NewReconciler(secret string, store ProcessedWebhookStore, rank map[string]int, logger *zap.Logger) *Reconciler {
	return &Reconciler{secret: secret, store: store, rank: rank, logger: logger, now: time.Now}
}

var (
	ErrBadSignature   = errors.New("pg webhook: signature mismatch")
	ErrStaleTimestamp = errors.New("pg webhook: timestamp outside tolerance window")
	ErrDuplicateNonce = errors.New("pg webhook: nonce already seen")
)

// Process verifies, dedups, and (if newer) applies a webhook delivery to
// target. Returns nil both for a successful application and for a
// tolerated out-of-order or duplicate-transaction no-op, so both cases
// respond 200; a replayed nonce returns ErrDuplicateNonce instead.
func (r *Reconciler) Process(ctx context.Context, rawBody []byte, signatureHex string, target ReconcileTarget) error {
	if !VerifySignature(r.secret, string(rawBody), signatureHex) {
		return ErrBadSignature
	}

	var payload WebhookPayload
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return apperr.NewValidationError("VAL_001", "malformed webhook payload")
	}

	if d := r.now().UTC().Sub(payload.Timestamp); d > WebhookTimestampTolerance || d < -WebhookTimestampTolerance {
		return ErrStaleTimestamp
	}

	seenNonce, err := r.store.SeenNonce(ctx, payload.Nonce)
	if err != nil {
		return apperr.NewUpstreamError("SYS_001", "webhook nonce lookup failed", err)
	}
	if seenNonce {
		return ErrDuplicateNonce
	}

	seenTxn, err := r.store.SeenTransaction(ctx, payload.PGTransactionID)
	if err != nil {
		return apperr.NewUpstreamError("SYS_001", "webhook dedup lookup failed", err)
	}

	incomingRank := r.rank[payload.Status]
	if seenTxn || incomingRank <= target.CurrentStatusRank() {
		r.logger.Info("pg webhook: out-of-order or duplicate, no-op",
			zap.String("pg_transaction_id", payload.PGTransactionID),
			zap.String("status", payload.Status),
		)
		return r.store.MarkProcessed(ctx, payload.PGTransactionID, payload.Nonce, r.now().UTC())
	}

	if err := target.ApplyStatus(payload.Status); err != nil {
		return err
	}

	return r.store.MarkProcessed(ctx, payload.PGTransactionID, payload.Nonce, r.now().UTC())
}
