//go:build integration

package main_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxpay/engine/internal/application"
	"github.com/fluxpay/engine/internal/eventbus"
	"github.com/fluxpay/engine/internal/outbox"
	"github.com/fluxpay/engine/internal/pg"
	"github.com/fluxpay/engine/internal/repository"
	"github.com/fluxpay/engine/internal/saga"
	"github.com/fluxpay/engine/internal/serviceexec"
)

// TestConfirm_RunsFulfillmentSaga_PublishesCompletionEvents verifies that
// confirming an approved payment drives the payment_fulfillment saga to
// completion: the service is executed, the payment settles, the order
// completes, and both outbox-published events land on Kafka.
func TestConfirm_RunsFulfillmentSaga_PublishesCompletionEvents(t *testing.T) {
	infra := setupContainers(t)
	defer infra.Cleanup()
	logger := newTestLogger()

	orderRepo := repository.NewOrderRepository(infra.DB)
	paymentRepo := repository.NewPaymentRepository(infra.DB)
	outboxRepo := repository.NewOutboxRepository(infra.DB)
	sagaRepo := repository.NewSagaRepository(infra.DB)
	uow := repository.NewGormUnitOfWork(infra.DB)

	pgClient := pg.NewMockClient(logger)
	serviceClient := serviceexec.NewMockClient(logger)

	sagaEngine := saga.NewEngine(sagaRepo, logger, 30*time.Second)
	sagaEngine.Register(application.NewPaymentFulfillmentDefinition(application.PaymentSagaDeps{
		UOW:           uow,
		Payments:      paymentRepo,
		Orders:        orderRepo,
		PGClient:      pgClient,
		ServiceClient: serviceClient,
		Logger:        logger,
	}))

	paymentSvc := application.NewPaymentService(uow, paymentRepo, orderRepo, pgClient, sagaEngine, 2*time.Hour, logger)

	bus := eventbus.NewKafkaBus(infra.KafkaBrokers, logger)
	defer bus.Close()
	publisher := outbox.NewPublisher(outboxRepo, bus, outbox.PublisherConfig{
		PollInterval: 500 * time.Millisecond,
		BatchSize:    20,
		MaxRetries:   3,
	}, logger)
	pubCtx, pubCancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer pubCancel()
	go publisher.Run(pubCtx)

	tenantID := "tenant-integration"
	_, paymentID := seedApprovedPayment(t, infra.DB, tenantID, "user-1", 5000)

	_, err := paymentSvc.Confirm(context.Background(), tenantID, paymentID)
	require.NoError(t, err, "confirm should start the payment_fulfillment saga")

	confirmed := waitForPaymentStatus(t, infra.DB, paymentID, "CONFIRMED", 15*time.Second)
	assert.NotNil(t, confirmed.ConfirmedAt)

	completedOrder := waitForOrderStatus(t, infra.DB, confirmed.OrderID, "COMPLETED", 15*time.Second)
	assert.NotNil(t, completedOrder.CompletedAt)

	paymentEvt := consumeOneEvent(t, infra.KafkaBrokers, "fluxpay.events.payment", "payment.confirmed", 15*time.Second)
	var paymentPayload struct {
		ID string `json:"id"`
	}
	require.NoError(t, paymentEvt.ParseData(&paymentPayload))
	assert.Equal(t, paymentID.String(), paymentPayload.ID)

	orderEvt := consumeOneEvent(t, infra.KafkaBrokers, "fluxpay.events.order", "order.completed", 15*time.Second)
	var orderPayload struct {
		ID string `json:"id"`
	}
	require.NoError(t, orderEvt.ParseData(&orderPayload))
	assert.Equal(t, confirmed.OrderID.String(), orderPayload.ID)
}

// TestConfirm_ServiceExecutionFails_FailsOrderLeavesPaymentUntouched
// verifies that when the first saga step (execute_service) fails, the
// order is marked FAILED directly and the payment is left APPROVED,
// since nothing settled yet and there is nothing to compensate (spec
// §4.3: compensation only runs for steps strictly before the failed
// one).
func TestConfirm_ServiceExecutionFails_FailsOrderLeavesPaymentUntouched(t *testing.T) {
	infra := setupContainers(t)
	defer infra.Cleanup()
	logger := newTestLogger()

	orderRepo := repository.NewOrderRepository(infra.DB)
	paymentRepo := repository.NewPaymentRepository(infra.DB)
	sagaRepo := repository.NewSagaRepository(infra.DB)
	uow := repository.NewGormUnitOfWork(infra.DB)

	pgClient := pg.NewMockClient(logger)
	serviceClient := serviceexec.NewMockClient(logger)
	serviceClient.FailNext(1)

	sagaEngine := saga.NewEngine(sagaRepo, logger, 30*time.Second)
	sagaEngine.Register(application.NewPaymentFulfillmentDefinition(application.PaymentSagaDeps{
		UOW:           uow,
		Payments:      paymentRepo,
		Orders:        orderRepo,
		PGClient:      pgClient,
		ServiceClient: serviceClient,
		Logger:        logger,
	}))

	paymentSvc := application.NewPaymentService(uow, paymentRepo, orderRepo, pgClient, sagaEngine, 2*time.Hour, logger)

	tenantID := "tenant-integration"
	_, paymentID := seedApprovedPayment(t, infra.DB, tenantID, "user-2", 3000)

	_, err := paymentSvc.Confirm(context.Background(), tenantID, paymentID)
	require.NoError(t, err, "confirm should start the saga even though a step will fail")

	var orderModel repository.OrderModel
	require.Eventually(t, func() bool {
		var payment repository.PaymentModel
		if err := infra.DB.Where("id = ?", paymentID).First(&payment).Error; err != nil {
			return false
		}
		if err := infra.DB.Where("id = ?", payment.OrderID).First(&orderModel).Error; err != nil {
			return false
		}
		return orderModel.Status == "FAILED"
	}, 15*time.Second, 200*time.Millisecond, "order did not transition to FAILED")

	var payment repository.PaymentModel
	require.NoError(t, infra.DB.Where("id = ?", paymentID).First(&payment).Error)
	assert.Equal(t, "APPROVED", payment.Status, "payment must stay APPROVED: nothing settled to compensate")
}

// TestConfirm_Idempotent_SameCorrelationDoesNotRerunSaga verifies that
// calling Confirm twice for the same payment does not start a second
// saga instance: the second call is rejected by the payment state guard
// (the payment is already CONFIRMED), and exactly one instance exists for
// the correlation id before and after it.
func TestConfirm_Idempotent_SameCorrelationDoesNotRerunSaga(t *testing.T) {
	infra := setupContainers(t)
	defer infra.Cleanup()
	logger := newTestLogger()

	orderRepo := repository.NewOrderRepository(infra.DB)
	paymentRepo := repository.NewPaymentRepository(infra.DB)
	sagaRepo := repository.NewSagaRepository(infra.DB)
	uow := repository.NewGormUnitOfWork(infra.DB)

	pgClient := pg.NewMockClient(logger)
	serviceClient := serviceexec.NewMockClient(logger)

	sagaEngine := saga.NewEngine(sagaRepo, logger, 30*time.Second)
	sagaEngine.Register(application.NewPaymentFulfillmentDefinition(application.PaymentSagaDeps{
		UOW:           uow,
		Payments:      paymentRepo,
		Orders:        orderRepo,
		PGClient:      pgClient,
		ServiceClient: serviceClient,
		Logger:        logger,
	}))

	paymentSvc := application.NewPaymentService(uow, paymentRepo, orderRepo, pgClient, sagaEngine, 2*time.Hour, logger)

	tenantID := "tenant-integration"
	_, paymentID := seedApprovedPayment(t, infra.DB, tenantID, "user-3", 1200)

	ctx := context.Background()
	_, err := paymentSvc.Confirm(ctx, tenantID, paymentID)
	require.NoError(t, err)
	waitForPaymentStatus(t, infra.DB, paymentID, "CONFIRMED", 15*time.Second)

	var instanceCount int64
	require.NoError(t, infra.DB.Model(&repository.SagaInstanceModel{}).
		Where("tenant_id = ? AND correlation_id = ?", tenantID, "confirm:"+paymentID.String()).
		Count(&instanceCount).Error)
	assert.Equal(t, int64(1), instanceCount, "only one saga instance should exist for this correlation id")

	_, err = paymentSvc.Confirm(ctx, tenantID, paymentID)
	assert.Error(t, err, "confirming an already-CONFIRMED payment must be rejected by the payment state guard")

	require.NoError(t, infra.DB.Model(&repository.SagaInstanceModel{}).
		Where("tenant_id = ? AND correlation_id = ?", tenantID, "confirm:"+paymentID.String()).
		Count(&instanceCount).Error)
	assert.Equal(t, int64(1), instanceCount, "a rejected re-confirm must not create a second saga instance")
}
