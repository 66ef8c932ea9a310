package pg

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MockClient is a development/testing Client implementation, adapted
// from the teacher's MockStripeAdapter: it simulates a PG vendor's
// behavior without any real network call, useful for local runs and the
// integration test's "PG mocked to sleep" scenarios (via WithSleep/FailNext
// hooks below).
type MockClient struct {
	logger   *zap.Logger
	sleep    func(ctx context.Context) error
	failNext int
}

func NewMockClient(logger *zap.Logger) *MockClient {
	return &MockClient{logger: logger}
}

// WithSleep installs a hook invoked before RequestApproval returns,
// letting tests simulate a slow PG (spec §8 scenario 4: "PG mocked to
// sleep 20s").
func (m *MockClient) WithSleep(sleep func(ctx context.Context) error) *MockClient {
	m.sleep = sleep
	return m
}

// FailNext makes the next n calls of any kind return an error, to drive
// the circuit breaker's failure-rate window in tests.
func (m *MockClient) FailNext(n int) {
	m.failNext = n
}

func (m *MockClient) maybeFail() error {
	if m.failNext > 0 {
		m.failNext--
		return fmt.Errorf("mock pg: simulated failure")
	}
	return nil
}

func (m *MockClient) RequestApproval(ctx context.Context, orderRef string, amount int64, currency, method string) (ApprovalResult, error) {
	if m.sleep != nil {
		if err := m.sleep(ctx); err != nil {
			return ApprovalResult{}, err
		}
	}
	if err := m.maybeFail(); err != nil {
		return ApprovalResult{}, err
	}

	txnID := fmt.Sprintf("txn_mock_%s", uuid.New().String()[:8])
	key := fmt.Sprintf("%s_key", txnID)

	m.logger.Info("[MOCK PG] approval requested",
		zap.String("order_ref", orderRef),
		zap.Int64("amount", amount),
		zap.String("currency", currency),
		zap.String("method", method),
	)

	return ApprovalResult{PGTransactionID: txnID, PGKey: key, OK: true}, nil
}

func (m *MockClient) Confirm(ctx context.Context, pgKey string) error {
	if err := m.maybeFail(); err != nil {
		return err
	}
	m.logger.Info("[MOCK PG] confirmed", zap.String("pg_key", pgKey))
	return nil
}

func (m *MockClient) Cancel(ctx context.Context, pgKey, reason string) error {
	if err := m.maybeFail(); err != nil {
		return err
	}
	m.logger.Info("[MOCK PG] cancelled", zap.String("pg_key", pgKey), zap.String("reason", reason))
	return nil
}

func (m *MockClient) Refund(ctx context.Context, pgKey string, amount int64, reason string) (string, error) {
	if err := m.maybeFail(); err != nil {
		return "", err
	}
	refundID := fmt.Sprintf("re_mock_%s", uuid.New().String()[:8])
	m.logger.Info("[MOCK PG] refunded",
		zap.String("pg_key", pgKey),
		zap.Int64("amount", amount),
		zap.String("reason", reason),
	)
	return refundID, nil
}
