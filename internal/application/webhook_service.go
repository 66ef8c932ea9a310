package application

import (
	"context"

	"go.uber.org/zap"

	"github.com/fluxpay/engine/internal/domain/payment"
	"github.com/fluxpay/engine/internal/pg"
)

// webhookStatusRank maps the vendor-agnostic status strings a PG vendor
// posts in a webhook to spec §4.4's out-of-order tolerance ranking. The
// vocabulary matches payment.Status exactly: FluxPay's webhook contract
// reuses the Payment state names rather than inventing vendor-specific
// ones.
var webhookStatusRank = map[string]int{
	string(payment.StatusProcessing): payment.StatusRank(payment.StatusProcessing),
	string(payment.StatusApproved):   payment.StatusRank(payment.StatusApproved),
	string(payment.StatusConfirmed):  payment.StatusRank(payment.StatusConfirmed),
	string(payment.StatusFailed):     payment.StatusRank(payment.StatusFailed),
	string(payment.StatusRefunded):   payment.StatusRank(payment.StatusRefunded),
}

// paymentReconcileTarget adapts a loaded Payment to pg.ReconcileTarget,
// persisting the applied transition (and its outbox event) atomically
// through the Unit of Work once the reconciler decides to apply it.
type paymentReconcileTarget struct {
	ctx context.Context
	uow UnitOfWork
	p   *payment.Payment
}

func (t *paymentReconcileTarget) CurrentStatusRank() int {
	return payment.StatusRank(t.p.Status())
}

func (t *paymentReconcileTarget) ApplyStatus(status string) error {
	var eventType string
	switch payment.Status(status) {
	case payment.StatusApproved:
		if t.p.Status() != payment.StatusProcessing {
			return nil
		}
		if err := t.p.Approve(t.p.PGTransactionID(), t.p.PGPaymentKey()); err != nil {
			return err
		}
		eventType = "payment.approved"
	case payment.StatusConfirmed:
		if t.p.Status() != payment.StatusApproved {
			return nil
		}
		if err := t.p.Confirm(); err != nil {
			return err
		}
		eventType = "payment.confirmed"
	case payment.StatusFailed:
		if err := t.p.Fail("reconciled from payment gateway webhook"); err != nil {
			return nil
		}
		eventType = "payment.failed"
	case payment.StatusRefunded:
		if err := t.p.Refund(); err != nil {
			return nil
		}
		eventType = "payment.refunded"
	default:
		return nil
	}

	return t.uow.Execute(t.ctx, func(ctx context.Context, repos TxRepos) error {
		if err := repos.Payments.Update(ctx, t.p); err != nil {
			return err
		}
		event, err := newOutboxEvent(t.p.TenantID(), "payment", t.p.ID().String(), eventType, toPaymentDTO(t.p))
		if err != nil {
			return err
		}
		return repos.Outbox.Insert(ctx, event)
	})
}

// WebhookService receives inbound payment gateway webhook deliveries and
// reconciles them against the matching Payment.
type WebhookService struct {
	reconciler *pg.Reconciler
	payments   payment.Repository
	uow        UnitOfWork
	logger     *zap.Logger
}

func NewWebhookService(secret string, store pg.ProcessedWebhookStore, payments payment.Repository, uow UnitOfWork, logger *zap.Logger) *WebhookService {
	return &WebhookService{
		reconciler: pg.NewReconciler(secret, store, webhookStatusRank, logger),
		payments:   payments,
		uow:        uow,
		logger:     logger,
	}
}

// HandlePGWebhook verifies and applies one webhook delivery. pgTransactionID
// must be extracted by the HTTP handler from the same raw body before
// calling this (the reconciler re-parses rawBody internally to verify
// the signature covers exactly what was received).
func (s *WebhookService) HandlePGWebhook(ctx context.Context, tenantID, pgTransactionID string, rawBody []byte, signatureHex string) error {
	p, err := s.payments.FindByPGTransactionID(ctx, tenantID, pgTransactionID)
	if err != nil {
		return err
	}

	target := &paymentReconcileTarget{ctx: ctx, uow: s.uow, p: p}
	if err := s.reconciler.Process(ctx, rawBody, signatureHex, target); err != nil {
		return err
	}
	return nil
}
