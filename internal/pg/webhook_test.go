package pg

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "whsec_test"

func sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

type memoryWebhookStore struct {
	mu    sync.Mutex
	txns  map[string]bool
	nonce map[string]bool
}

func newMemoryWebhookStore() *memoryWebhookStore {
	return &memoryWebhookStore{txns: map[string]bool{}, nonce: map[string]bool{}}
}

func (s *memoryWebhookStore) SeenTransaction(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txns[id], nil
}

func (s *memoryWebhookStore) SeenNonce(_ context.Context, nonce string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nonce[nonce], nil
}

func (s *memoryWebhookStore) MarkProcessed(_ context.Context, id, nonce string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txns[id] = true
	s.nonce[nonce] = true
	return nil
}

type fakeTarget struct {
	rank   int
	status string
}

func (f *fakeTarget) CurrentStatusRank() int { return f.rank }
func (f *fakeTarget) ApplyStatus(status string) error {
	f.status = status
	f.rank = paymentRank[status]
	return nil
}

var paymentRank = map[string]int{
	"READY": 0, "PROCESSING": 1, "APPROVED": 2, "CONFIRMED": 3, "FAILED": 4, "REFUNDED": 5,
}

func newBody(t *testing.T, txnID, status string, nonce string) []byte {
	t.Helper()
	body, err := json.Marshal(WebhookPayload{
		PGTransactionID: txnID,
		Status:          status,
		Timestamp:       time.Now().UTC(),
		Nonce:           nonce,
	})
	require.NoError(t, err)
	return body
}

func TestReconciler_RejectsBadSignature(t *testing.T) {
	r := NewReconciler(testSecret, newMemoryWebhookStore(), paymentRank, zap.NewNop())
	body := newBody(t, "txn-1", "APPROVED", "n1")

	err := r.Process(context.Background(), body, "deadbeef", &fakeTarget{})
	require.ErrorIs(t, err, ErrBadSignature)
}

func TestReconciler_AppliesNewerStatus(t *testing.T) {
	r := NewReconciler(testSecret, newMemoryWebhookStore(), paymentRank, zap.NewNop())
	target := &fakeTarget{rank: paymentRank["PROCESSING"]}
	body := newBody(t, "txn-1", "APPROVED", "n1")

	err := r.Process(context.Background(), body, sign(body), target)
	require.NoError(t, err)
	require.Equal(t, "APPROVED", target.status)
}

func TestReconciler_OutOfOrderDeliveryIsNoOp(t *testing.T) {
	r := NewReconciler(testSecret, newMemoryWebhookStore(), paymentRank, zap.NewNop())
	target := &fakeTarget{rank: paymentRank["CONFIRMED"], status: "CONFIRMED"}

	body := newBody(t, "txn-1", "APPROVED", "n-late")
	err := r.Process(context.Background(), body, sign(body), target)
	require.NoError(t, err)
	require.Equal(t, "CONFIRMED", target.status)
}

func TestReconciler_DuplicateTransactionIsNoOp(t *testing.T) {
	store := newMemoryWebhookStore()
	r := NewReconciler(testSecret, store, paymentRank, zap.NewNop())
	target := &fakeTarget{rank: paymentRank["PROCESSING"]}

	body1 := newBody(t, "txn-1", "CONFIRMED", "n1")
	require.NoError(t, r.Process(context.Background(), body1, sign(body1), target))
	require.Equal(t, "CONFIRMED", target.status)

	body2 := newBody(t, "txn-1", "CONFIRMED", "n2")
	require.NoError(t, r.Process(context.Background(), body2, sign(body2), target))
	require.Equal(t, "CONFIRMED", target.status)
}

func TestReconciler_RejectsStaleTimestamp(t *testing.T) {
	r := NewReconciler(testSecret, newMemoryWebhookStore(), paymentRank, zap.NewNop())
	body, err := json.Marshal(WebhookPayload{
		PGTransactionID: "txn-1",
		Status:          "APPROVED",
		Timestamp:       time.Now().UTC().Add(-10 * time.Minute),
		Nonce:           "n1",
	})
	require.NoError(t, err)

	err = r.Process(context.Background(), body, sign(body), &fakeTarget{})
	require.ErrorIs(t, err, ErrStaleTimestamp)
}
