package application

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fluxpay/engine/internal/domain/order"
	"github.com/fluxpay/engine/internal/domain/payment"
	"github.com/fluxpay/engine/internal/pg"
	"github.com/fluxpay/engine/internal/saga"
	"github.com/fluxpay/engine/internal/serviceexec"
)

// SagaTypePaymentFulfillment is the one saga FluxPay runs today: "Create
// Order -> Process Payment -> Execute Service -> Complete" (spec §4.3),
// picked up from the settle side once a payment is APPROVED.
const SagaTypePaymentFulfillment = "payment_fulfillment"

// PaymentSagaDeps bundles what the fulfillment saga's steps need, built
// once at startup and closed over by NewPaymentFulfillmentDefinition.
type PaymentSagaDeps struct {
	UOW           UnitOfWork
	Payments      payment.Repository
	Orders        order.Repository
	PGClient      pg.Client
	ServiceClient serviceexec.Client
	Logger        *zap.Logger
}

func sagaString(sc *saga.StepContext, key string) string {
	v, _ := sc.Get(key)
	s, _ := v.(string)
	return s
}

func sagaInt64(sc *saga.StepContext, key string) int64 {
	v, _ := sc.Get(key)
	switch n := v.(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	default:
		return 0
	}
}

// NewPaymentFulfillmentDefinition builds the saga.Definition for
// SagaTypePaymentFulfillment: execute_service, then confirm_payment (the
// settle side of the two-phase commit), then complete_order. Each step
// and its compensator is idempotent, since a crash can replay either
// half (spec §4.3 "Idempotency of steps").
//
// Order failure is not modeled as its own saga step: execute_service and
// confirm_payment fail the order directly when their own call fails, and
// confirm_payment's compensator fails the order once the charge has been
// reversed (or was never settled), which covers a complete_order failure.
// Order.Fail rejects an order that is already terminal and
// failOrderBestEffort then returns without writing, so the call sites
// never conflict.
func NewPaymentFulfillmentDefinition(deps PaymentSagaDeps) saga.Definition {
	return saga.Definition{
		SagaType: SagaTypePaymentFulfillment,
		Steps: []saga.Step{
			{
				Name:       "execute_service",
				Execute:    executeServiceStep(deps),
				Compensate: cancelServiceStep(deps),
			},
			{
				Name:       "confirm_payment",
				Execute:    confirmPaymentStep(deps),
				Compensate: refundPaymentStep(deps),
			},
			{
				Name:    "complete_order",
				Execute: completeOrderStep(deps),
			},
		},
	}
}

// failOrderBestEffort marks the order FAILED and emits the matching
// outbox event. Errors are logged, not returned: this runs alongside a
// step that has already failed or is compensating, and the order status
// update must never mask the original cause.
func failOrderBestEffort(ctx context.Context, deps PaymentSagaDeps, tenantID, orderIDStr string) {
	orderID, err := uuid.Parse(orderIDStr)
	if err != nil {
		deps.Logger.Error("payment saga: cannot parse order_id for fail", zap.Error(err))
		return
	}
	o, err := deps.Orders.FindByID(ctx, tenantID, orderID)
	if err != nil {
		deps.Logger.Error("payment saga: failed to load order for fail", zap.Error(err))
		return
	}
	if err := o.Fail(); err != nil {
		return // already terminal
	}
	err = deps.UOW.Execute(ctx, func(ctx context.Context, repos TxRepos) error {
		if err := repos.Orders.Update(ctx, o); err != nil {
			return err
		}
		event, err := newOutboxEvent(tenantID, "order", o.ID().String(), "order.failed", toOrderDTO(o))
		if err != nil {
			return err
		}
		return repos.Outbox.Insert(ctx, event)
	})
	if err != nil {
		deps.Logger.Error("payment saga: failed to persist order failure", zap.Error(err))
	}
}

func executeServiceStep(deps PaymentSagaDeps) func(context.Context, *saga.StepContext) error {
	return func(ctx context.Context, sc *saga.StepContext) error {
		tenantID := sagaString(sc, "tenant_id")
		orderID := sagaString(sc, "order_id")
		if err := deps.ServiceClient.Execute(ctx, tenantID, orderID); err != nil {
			failOrderBestEffort(ctx, deps, tenantID, orderID)
			return fmt.Errorf("execute_service: %w", err)
		}
		return nil
	}
}

func cancelServiceStep(deps PaymentSagaDeps) func(context.Context, *saga.StepContext) error {
	return func(ctx context.Context, sc *saga.StepContext) error {
		tenantID := sagaString(sc, "tenant_id")
		orderID := sagaString(sc, "order_id")
		return deps.ServiceClient.Cancel(ctx, tenantID, orderID)
	}
}

func confirmPaymentStep(deps PaymentSagaDeps) func(context.Context, *saga.StepContext) error {
	return func(ctx context.Context, sc *saga.StepContext) error {
		tenantID := sagaString(sc, "tenant_id")
		orderID := sagaString(sc, "order_id")
		paymentID, err := uuid.Parse(sagaString(sc, "payment_id"))
		if err != nil {
			return fmt.Errorf("confirm_payment: invalid payment_id: %w", err)
		}

		p, err := deps.Payments.FindByID(ctx, tenantID, paymentID)
		if err != nil {
			return err
		}
		if p.Status() == payment.StatusConfirmed {
			return nil // already confirmed, replayed after a crash
		}

		pgKey := sagaString(sc, "pg_key")
		if err := deps.PGClient.Confirm(ctx, pgKey); err != nil {
			failOrderBestEffort(ctx, deps, tenantID, orderID)
			return fmt.Errorf("confirm_payment: gateway confirm failed: %w", err)
		}
		if err := p.Confirm(); err != nil {
			return err
		}

		return deps.UOW.Execute(ctx, func(ctx context.Context, repos TxRepos) error {
			if err := repos.Payments.Update(ctx, p); err != nil {
				return err
			}
			event, err := newOutboxEvent(tenantID, "payment", p.ID().String(), "payment.confirmed", toPaymentDTO(p))
			if err != nil {
				return err
			}
			return repos.Outbox.Insert(ctx, event)
		})
	}
}

func refundPaymentStep(deps PaymentSagaDeps) func(context.Context, *saga.StepContext) error {
	return func(ctx context.Context, sc *saga.StepContext) error {
		tenantID := sagaString(sc, "tenant_id")
		orderID := sagaString(sc, "order_id")
		paymentID, err := uuid.Parse(sagaString(sc, "payment_id"))
		if err != nil {
			return fmt.Errorf("refund_payment compensation: invalid payment_id: %w", err)
		}

		p, err := deps.Payments.FindByID(ctx, tenantID, paymentID)
		if err != nil {
			return err
		}
		if p.Status() != payment.StatusConfirmed {
			failOrderBestEffort(ctx, deps, tenantID, orderID)
			return nil // never settled, nothing to refund
		}

		pgKey := sagaString(sc, "pg_key")
		amount := sagaInt64(sc, "amount")
		if _, err := deps.PGClient.Refund(ctx, pgKey, amount, "saga compensation: downstream step failed"); err != nil {
			return fmt.Errorf("refund_payment compensation: gateway refund failed: %w", err)
		}
		if err := p.Refund(); err != nil {
			return err
		}

		err = deps.UOW.Execute(ctx, func(ctx context.Context, repos TxRepos) error {
			if err := repos.Payments.Update(ctx, p); err != nil {
				return err
			}
			event, err := newOutboxEvent(tenantID, "payment", p.ID().String(), "payment.refunded", toPaymentDTO(p))
			if err != nil {
				return err
			}
			return repos.Outbox.Insert(ctx, event)
		})
		if err != nil {
			return err
		}

		failOrderBestEffort(ctx, deps, tenantID, orderID)
		return nil
	}
}

func completeOrderStep(deps PaymentSagaDeps) func(context.Context, *saga.StepContext) error {
	return func(ctx context.Context, sc *saga.StepContext) error {
		tenantID := sagaString(sc, "tenant_id")
		orderID, err := uuid.Parse(sagaString(sc, "order_id"))
		if err != nil {
			return fmt.Errorf("complete_order: invalid order_id: %w", err)
		}

		o, err := deps.Orders.FindByID(ctx, tenantID, orderID)
		if err != nil {
			return err
		}
		if o.Status() == order.StatusCompleted {
			return nil
		}
		if err := o.Complete(); err != nil {
			return err
		}

		return deps.UOW.Execute(ctx, func(ctx context.Context, repos TxRepos) error {
			if err := repos.Orders.Update(ctx, o); err != nil {
				return err
			}
			event, err := newOutboxEvent(tenantID, "order", o.ID().String(), "order.completed", toOrderDTO(o))
			if err != nil {
				return err
			}
			return repos.Outbox.Insert(ctx, event)
		})
	}
}
