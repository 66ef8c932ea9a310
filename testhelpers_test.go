//go:build integration

package main_test

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	kafkamodule "github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/fluxpay/engine/internal/eventbus"
	"github.com/fluxpay/engine/internal/repository"
)

// testInfra holds shared test infrastructure, grounded on the teacher's
// testcontainers-backed Postgres+Kafka harness.
type testInfra struct {
	DB           *gorm.DB
	KafkaBrokers []string
	Cleanup      func()
}

// setupContainers starts PostgreSQL and Kafka testcontainers and returns a
// connected GORM DB migrated with every FluxPay model.
func setupContainers(t *testing.T) *testInfra {
	t.Helper()
	ctx := context.Background()

	pgReq := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "test_fluxpay",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	pgContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: pgReq,
		Started:          true,
	})
	require.NoError(t, err, "failed to start PostgreSQL container")

	pgHost, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	pgPort, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("host=%s port=%s user=test password=test dbname=test_fluxpay sslmode=disable", pgHost, pgPort.Port())

	var db *gorm.DB
	require.Eventually(t, func() bool {
		var err error
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
		if err != nil {
			return false
		}
		sqlDB, err := db.DB()
		if err != nil {
			return false
		}
		return sqlDB.Ping() == nil
	}, 30*time.Second, time.Second, "PostgreSQL not ready for connections")

	require.NoError(t, db.AutoMigrate(
		&repository.OrderModel{},
		&repository.PaymentModel{},
		&repository.CreditModel{},
		&repository.CreditLedgerModel{},
		&repository.ReservationModel{},
		&repository.RefundModel{},
		&repository.OutboxModel{},
		&repository.SagaInstanceModel{},
		&repository.SagaStepModel{},
		&repository.IdempotencyModel{},
		&repository.ProcessedEventModel{},
		&repository.ProcessedWebhookModel{},
	))

	kafkaContainer, err := kafkamodule.Run(ctx, "confluentinc/confluent-local:7.5.0")
	require.NoError(t, err, "failed to start Kafka container")

	kafkaBrokers, err := kafkaContainer.Brokers(ctx)
	require.NoError(t, err, "failed to get Kafka brokers")

	createTopics(t, kafkaBrokers, "fluxpay.events.order", "fluxpay.events.payment")

	cleanup := func() {
		if err := kafkaContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate Kafka container: %v", err)
		}
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate PostgreSQL container: %v", err)
		}
	}

	return &testInfra{DB: db, KafkaBrokers: kafkaBrokers, Cleanup: cleanup}
}

// seedApprovedPayment inserts a PAID order with a matching APPROVED
// payment, the precondition PaymentService.Confirm requires before it
// will start the payment_fulfillment saga.
func seedApprovedPayment(t *testing.T, db *gorm.DB, tenantID, userID string, amount int64) (orderID, paymentID uuid.UUID) {
	t.Helper()
	orderID = uuid.New()
	paymentID = uuid.New()
	now := time.Now().UTC()

	order := repository.OrderModel{
		ID:          orderID,
		TenantID:    tenantID,
		UserID:      userID,
		Currency:    "USD",
		LineItems:   []byte(`[{"sku":"svc-1","quantity":1,"unit_price":` + fmt.Sprint(amount) + `}]`),
		TotalAmount: amount,
		Status:      "PAID",
		CreatedAt:   now,
		UpdatedAt:   now,
		PaidAt:      &now,
	}
	require.NoError(t, db.Create(&order).Error, "failed to seed order")

	payment := repository.PaymentModel{
		ID:              paymentID,
		TenantID:        tenantID,
		OrderID:         orderID,
		Amount:          amount,
		Currency:        "USD",
		Status:          "APPROVED",
		PaymentMethod:   "card",
		PGTransactionID: fmt.Sprintf("pg_txn_%s", uuid.New().String()[:8]),
		PGPaymentKey:    fmt.Sprintf("pg_key_%s", uuid.New().String()[:8]),
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
		ApprovedAt:      &now,
	}
	require.NoError(t, db.Create(&payment).Error, "failed to seed payment")

	return orderID, paymentID
}

// waitForPaymentStatus polls the payments table until status matches.
func waitForPaymentStatus(t *testing.T, db *gorm.DB, paymentID uuid.UUID, expected string, timeout time.Duration) repository.PaymentModel {
	t.Helper()
	var result repository.PaymentModel
	require.Eventually(t, func() bool {
		var model repository.PaymentModel
		if err := db.Where("id = ?", paymentID).First(&model).Error; err != nil {
			return false
		}
		if model.Status == expected {
			result = model
			return true
		}
		return false
	}, timeout, 200*time.Millisecond, "payment did not transition to %s", expected)
	return result
}

// waitForOrderStatus polls the orders table until status matches.
func waitForOrderStatus(t *testing.T, db *gorm.DB, orderID uuid.UUID, expected string, timeout time.Duration) repository.OrderModel {
	t.Helper()
	var result repository.OrderModel
	require.Eventually(t, func() bool {
		var model repository.OrderModel
		if err := db.Where("id = ?", orderID).First(&model).Error; err != nil {
			return false
		}
		if model.Status == expected {
			result = model
			return true
		}
		return false
	}, timeout, 200*time.Millisecond, "order did not transition to %s", expected)
	return result
}

// consumeOneEvent reads from a Kafka topic until it finds an event of the
// expected type, grounded on the teacher's equivalent helper.
func consumeOneEvent(t *testing.T, brokers []string, topic, expectedType string, timeout time.Duration) eventbus.CloudEvent {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	groupID := fmt.Sprintf("test-assert-%s", uuid.New().String()[:8])
	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     brokers,
		GroupID:     groupID,
		Topic:       topic,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafkago.FirstOffset,
	})
	defer func() { _ = reader.Close() }()

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				t.Fatalf("timed out waiting for event type %q on topic %q", expectedType, topic)
			}
			continue
		}
		ce, err := eventbus.ParseCloudEvent(msg.Value)
		if err != nil {
			continue
		}
		if ce.Type == expectedType {
			return ce
		}
	}
}

// createTopics pre-creates Kafka topics so producers don't fail with "Unknown Topic".
func createTopics(t *testing.T, brokers []string, topics ...string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", brokers[0])
	require.NoError(t, err, "failed to dial Kafka for topic creation")
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err, "failed to get Kafka controller")

	controllerConn, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, fmt.Sprintf("%d", controller.Port)))
	require.NoError(t, err, "failed to connect to Kafka controller")
	defer controllerConn.Close()

	topicConfigs := make([]kafkago.TopicConfig, len(topics))
	for i, topic := range topics {
		topicConfigs[i] = kafkago.TopicConfig{Topic: topic, NumPartitions: 1, ReplicationFactor: 1}
	}
	require.NoError(t, controllerConn.CreateTopics(topicConfigs...), "failed to create Kafka topics")

	time.Sleep(time.Second)
}

func newTestLogger() *zap.Logger {
	l, _ := zap.NewDevelopment()
	return l
}
