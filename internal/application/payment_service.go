package application

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fluxpay/engine/internal/domain/order"
	"github.com/fluxpay/engine/internal/domain/payment"
	"github.com/fluxpay/engine/internal/pg"
	"github.com/fluxpay/engine/internal/platform/apperr"
	"github.com/fluxpay/engine/internal/saga"
)

// CreatePaymentRequest is the DTO for POST /api/v1/payments.
type CreatePaymentRequest struct {
	OrderID uuid.UUID `json:"orderId" binding:"required"`
}

// ApprovePaymentRequest is the DTO for POST /api/v1/payments/{id}/approve.
type ApprovePaymentRequest struct {
	PaymentMethod string `json:"paymentMethod" binding:"required"`
}

// PaymentDTO is the API response shape for a Payment.
type PaymentDTO struct {
	ID              uuid.UUID  `json:"id"`
	OrderID         uuid.UUID  `json:"orderId"`
	Amount          int64      `json:"amount"`
	Currency        string     `json:"currency"`
	Status          string     `json:"status"`
	PaymentMethod   string     `json:"paymentMethod,omitempty"`
	PGTransactionID string     `json:"pgTransactionId,omitempty"`
	FailureReason   string     `json:"failureReason,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
	ApprovedAt      *time.Time `json:"approvedAt,omitempty"`
	ConfirmedAt     *time.Time `json:"confirmedAt,omitempty"`
	FailedAt        *time.Time `json:"failedAt,omitempty"`
	RefundedAt      *time.Time `json:"refundedAt,omitempty"`
}

// PaymentService orchestrates the Payment two-phase commit (spec §4.4):
// CreatePayment/Approve persist the hold directly, while Confirm hands
// off to the payment_fulfillment saga (execute_service -> confirm ->
// complete_order), since confirming is only valid once downstream
// execution has succeeded.
type PaymentService struct {
	uow            UnitOfWork
	payments       payment.Repository
	orders         order.Repository
	pgClient       pg.Client
	sagaEngine     *saga.Engine
	maxApprovalAge time.Duration
	logger         *zap.Logger
}

func NewPaymentService(
	uow UnitOfWork,
	payments payment.Repository,
	orders order.Repository,
	pgClient pg.Client,
	sagaEngine *saga.Engine,
	maxApprovalAge time.Duration,
	logger *zap.Logger,
) *PaymentService {
	return &PaymentService{
		uow:            uow,
		payments:       payments,
		orders:         orders,
		pgClient:       pgClient,
		sagaEngine:     sagaEngine,
		maxApprovalAge: maxApprovalAge,
		logger:         logger,
	}
}

// CreatePayment creates a READY payment for a PENDING order. Spec §3: at
// most one live payment per order.
func (s *PaymentService) CreatePayment(ctx context.Context, tenantID string, req CreatePaymentRequest) (*PaymentDTO, error) {
	o, err := s.orders.FindByID(ctx, tenantID, req.OrderID)
	if err != nil {
		return nil, err
	}
	if o.Status() != order.StatusPending {
		return nil, apperr.NewInvalidStateError("ORD_003", string(o.Status()), "payment creation requires a PENDING order")
	}
	if existing, err := s.payments.FindByOrderID(ctx, tenantID, o.ID()); err == nil && existing != nil {
		return nil, apperr.NewConflictError("PAY_007", "a payment already exists for this order")
	}

	p, err := payment.New(tenantID, o.ID(), o.TotalAmount(), o.Currency())
	if err != nil {
		return nil, err
	}

	err = s.uow.Execute(ctx, func(ctx context.Context, repos TxRepos) error {
		if err := repos.Payments.Save(ctx, p); err != nil {
			return err
		}
		event, err := newOutboxEvent(tenantID, "payment", p.ID().String(), "payment.created", toPaymentDTO(p))
		if err != nil {
			return err
		}
		return repos.Outbox.Insert(ctx, event)
	})
	if err != nil {
		return nil, err
	}
	dto := toPaymentDTO(p)
	return &dto, nil
}

// Approve requests a hold/authorization from the payment gateway and, on
// success, moves the payment to APPROVED and the order to PAID. The PG
// call happens outside any database transaction: an irreversible
// external side effect must never be rolled back by a later local error.
func (s *PaymentService) Approve(ctx context.Context, tenantID string, paymentID uuid.UUID, req ApprovePaymentRequest) (*PaymentDTO, error) {
	p, err := s.payments.FindByID(ctx, tenantID, paymentID)
	if err != nil {
		return nil, err
	}
	if err := p.StartProcessing(req.PaymentMethod); err != nil {
		return nil, err
	}

	result, err := s.pgClient.RequestApproval(ctx, p.ID().String(), p.Amount(), p.Currency(), req.PaymentMethod)
	if err != nil || !result.OK {
		reason := req.PaymentMethod + " authorization declined"
		if err != nil {
			reason = err.Error()
		} else if result.Error != "" {
			reason = result.Error
		}
		if failErr := p.Fail(reason); failErr != nil {
			return nil, failErr
		}
		txErr := s.uow.Execute(ctx, func(ctx context.Context, repos TxRepos) error {
			if err := repos.Payments.Update(ctx, p); err != nil {
				return err
			}
			event, err := newOutboxEvent(tenantID, "payment", p.ID().String(), "payment.failed", toPaymentDTO(p))
			if err != nil {
				return err
			}
			if err := repos.Outbox.Insert(ctx, event); err != nil {
				return err
			}

			// A declined/timed-out authorization leaves nothing to
			// compensate: the order never moved past PENDING, so it's
			// cancelled directly rather than left stranded.
			o, err := repos.Orders.FindByID(ctx, tenantID, p.OrderID())
			if err != nil {
				return err
			}
			if cancelErr := o.Cancel(); cancelErr == nil {
				if err := repos.Orders.Update(ctx, o); err != nil {
					return err
				}
				orderEvent, err := newOutboxEvent(tenantID, "order", o.ID().String(), "order.cancelled", toOrderDTO(o))
				if err != nil {
					return err
				}
				if err := repos.Outbox.Insert(ctx, orderEvent); err != nil {
					return err
				}
			}
			return nil
		})
		if txErr != nil {
			return nil, txErr
		}
		return nil, apperr.NewUpstreamError("PAY_002", "payment gateway declined authorization", err)
	}

	if err := p.Approve(result.PGTransactionID, result.PGKey); err != nil {
		return nil, err
	}

	err = s.uow.Execute(ctx, func(ctx context.Context, repos TxRepos) error {
		if err := repos.Payments.Update(ctx, p); err != nil {
			return err
		}
		o, err := repos.Orders.FindByID(ctx, tenantID, p.OrderID())
		if err != nil {
			return err
		}
		if o.Status() == order.StatusPending {
			if err := o.MarkPaid(); err != nil {
				return err
			}
			if err := repos.Orders.Update(ctx, o); err != nil {
				return err
			}
			orderEvent, err := newOutboxEvent(tenantID, "order", o.ID().String(), "order.paid", toOrderDTO(o))
			if err != nil {
				return err
			}
			if err := repos.Outbox.Insert(ctx, orderEvent); err != nil {
				return err
			}
		}
		event, err := newOutboxEvent(tenantID, "payment", p.ID().String(), "payment.approved", toPaymentDTO(p))
		if err != nil {
			return err
		}
		return repos.Outbox.Insert(ctx, event)
	})
	if err != nil {
		return nil, err
	}

	dto := toPaymentDTO(p)
	return &dto, nil
}

// Confirm starts (or resumes, idempotently by correlation id) the
// payment_fulfillment saga: execute downstream service, settle the
// charge, complete the order. Compensation on failure refunds the
// charge and cancels the service execution in reverse order (spec §4.3).
func (s *PaymentService) Confirm(ctx context.Context, tenantID string, paymentID uuid.UUID) (*PaymentDTO, error) {
	p, err := s.payments.FindByID(ctx, tenantID, paymentID)
	if err != nil {
		return nil, err
	}
	if p.Status() != payment.StatusApproved {
		return nil, apperr.NewInvalidStateError("PAY_006", string(p.Status()), string(payment.StatusConfirmed))
	}
	if p.IsApprovalExpired(time.Now().UTC(), s.maxApprovalAge) {
		return nil, apperr.NewInvalidStateError("PAY_004", string(payment.StatusApproved), "expired, re-approval required")
	}

	correlationID := "confirm:" + p.ID().String()
	sagaID := uuid.New().String()
	seed := map[string]interface{}{
		"tenant_id":  tenantID,
		"payment_id": p.ID().String(),
		"order_id":   p.OrderID().String(),
		"pg_key":     p.PGPaymentKey(),
		"amount":     p.Amount(),
		"currency":   p.Currency(),
	}

	if _, err := s.sagaEngine.Start(ctx, SagaTypePaymentFulfillment, tenantID, correlationID, sagaID, seed); err != nil {
		return nil, apperr.NewUpstreamError("PAY_008", "failed to start payment fulfillment saga", err)
	}

	final, err := s.payments.FindByID(ctx, tenantID, paymentID)
	if err != nil {
		return nil, err
	}
	dto := toPaymentDTO(final)
	return &dto, nil
}

func (s *PaymentService) Get(ctx context.Context, tenantID string, id uuid.UUID) (*PaymentDTO, error) {
	p, err := s.payments.FindByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	dto := toPaymentDTO(p)
	return &dto, nil
}

func (s *PaymentService) GetByOrder(ctx context.Context, tenantID string, orderID uuid.UUID) (*PaymentDTO, error) {
	p, err := s.payments.FindByOrderID(ctx, tenantID, orderID)
	if err != nil {
		return nil, err
	}
	dto := toPaymentDTO(p)
	return &dto, nil
}

// ListAll supports the admin observability endpoint.
func (s *PaymentService) ListAll(ctx context.Context, tenantID string, page, limit int) ([]PaymentDTO, int64, error) {
	payments, total, err := s.payments.ListAll(ctx, tenantID, page, limit)
	if err != nil {
		return nil, 0, err
	}
	dtos := make([]PaymentDTO, len(payments))
	for i, p := range payments {
		dtos[i] = toPaymentDTO(p)
	}
	return dtos, total, nil
}

func toPaymentDTO(p *payment.Payment) PaymentDTO {
	return PaymentDTO{
		ID:              p.ID(),
		OrderID:         p.OrderID(),
		Amount:          p.Amount(),
		Currency:        p.Currency(),
		Status:          string(p.Status()),
		PaymentMethod:   p.PaymentMethod(),
		PGTransactionID: p.PGTransactionID(),
		FailureReason:   p.FailureReason(),
		CreatedAt:       p.CreatedAt(),
		UpdatedAt:       p.UpdatedAt(),
		ApprovedAt:      p.ApprovedAt(),
		ConfirmedAt:     p.ConfirmedAt(),
		FailedAt:        p.FailedAt(),
		RefundedAt:      p.RefundedAt(),
	}
}
