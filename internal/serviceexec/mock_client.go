package serviceexec

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// MockClient simulates the fronted service's rendering step, mirroring
// internal/pg's MockClient shape: no real network call, with FailNext for
// driving saga-compensation tests.
type MockClient struct {
	logger   *zap.Logger
	failNext int
}

func NewMockClient(logger *zap.Logger) *MockClient {
	return &MockClient{logger: logger}
}

// FailNext makes the next n calls of any kind return an error.
func (m *MockClient) FailNext(n int) {
	m.failNext = n
}

func (m *MockClient) maybeFail() error {
	if m.failNext > 0 {
		m.failNext--
		return fmt.Errorf("mock service: simulated failure")
	}
	return nil
}

func (m *MockClient) Execute(ctx context.Context, tenantID, orderID string) error {
	if err := m.maybeFail(); err != nil {
		return err
	}
	m.logger.Info("[MOCK SERVICE] executed", zap.String("tenant_id", tenantID), zap.String("order_id", orderID))
	return nil
}

func (m *MockClient) Cancel(ctx context.Context, tenantID, orderID string) error {
	if err := m.maybeFail(); err != nil {
		return err
	}
	m.logger.Info("[MOCK SERVICE] cancelled", zap.String("tenant_id", tenantID), zap.String("order_id", orderID))
	return nil
}
