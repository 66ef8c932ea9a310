package application

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fluxpay/engine/internal/domain/payment"
	"github.com/fluxpay/engine/internal/domain/refund"
	"github.com/fluxpay/engine/internal/pg"
	"github.com/fluxpay/engine/internal/platform/apperr"
)

// CreateRefundRequest is the DTO for POST /api/v1/refunds.
type CreateRefundRequest struct {
	PaymentID uuid.UUID `json:"paymentId" binding:"required"`
	Amount    int64     `json:"amount" binding:"required,gt=0"`
	Reason    string    `json:"reason" binding:"required"`
}

// RefundDTO is the API response shape for a Refund.
type RefundDTO struct {
	ID          uuid.UUID  `json:"id"`
	PaymentID   uuid.UUID  `json:"paymentId"`
	Amount      int64      `json:"amount"`
	Currency    string     `json:"currency"`
	Status      string     `json:"status"`
	Reason      string     `json:"reason"`
	PGRefundID  string     `json:"pgRefundId,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	FailedAt    *time.Time `json:"failedAt,omitempty"`
}

// RefundService orchestrates partial/full refunds against a CONFIRMED
// payment, enforcing spec §3's invariant that the sum of completed
// refunds never exceeds the payment amount (a cross-aggregate check the
// Refund type itself cannot make).
type RefundService struct {
	uow      UnitOfWork
	refunds  refund.Repository
	payments payment.Repository
	pgClient pg.Client
	logger   *zap.Logger
}

func NewRefundService(uow UnitOfWork, refunds refund.Repository, payments payment.Repository, pgClient pg.Client, logger *zap.Logger) *RefundService {
	return &RefundService{uow: uow, refunds: refunds, payments: payments, pgClient: pgClient, logger: logger}
}

// Create validates the requested amount against the payment's remaining
// refundable balance and persists a REQUESTED refund. The payment is
// identified by req.PaymentID, not a URL path segment: refund creation is
// mounted at POST /api/v1/refunds.
func (s *RefundService) Create(ctx context.Context, tenantID string, req CreateRefundRequest) (*RefundDTO, error) {
	paymentID := req.PaymentID
	p, err := s.payments.FindByID(ctx, tenantID, paymentID)
	if err != nil {
		return nil, err
	}
	if p.Status() != payment.StatusConfirmed {
		return nil, apperr.NewInvalidStateError("PAY_007", string(p.Status()), "refund requires a CONFIRMED payment")
	}

	alreadyRefunded, err := s.refunds.SumCompleted(ctx, tenantID, paymentID)
	if err != nil {
		return nil, err
	}
	if alreadyRefunded+req.Amount > p.Amount() {
		return nil, apperr.NewValidationError("PAY_007", "refund amount exceeds the payment's remaining refundable balance")
	}

	r, err := refund.New(tenantID, paymentID, req.Amount, p.Currency(), req.Reason)
	if err != nil {
		return nil, err
	}

	err = s.uow.Execute(ctx, func(ctx context.Context, repos TxRepos) error {
		if err := repos.Refunds.Save(ctx, r); err != nil {
			return err
		}
		event, err := newOutboxEvent(tenantID, "refund", r.ID().String(), "refund.requested", toRefundDTO(r))
		if err != nil {
			return err
		}
		return repos.Outbox.Insert(ctx, event)
	})
	if err != nil {
		return nil, err
	}
	dto := toRefundDTO(r)
	return &dto, nil
}

// Process calls the payment gateway to execute a REQUESTED refund and
// persists the outcome. The gateway call runs outside any database
// transaction, the same as PaymentService.Approve: an irreversible
// external side effect must never be rolled back by a later local error.
func (s *RefundService) Process(ctx context.Context, tenantID string, refundID uuid.UUID) (*RefundDTO, error) {
	r, err := s.refunds.FindByID(ctx, tenantID, refundID)
	if err != nil {
		return nil, err
	}
	if err := r.StartProcessing(); err != nil {
		return nil, err
	}

	p, err := s.payments.FindByID(ctx, tenantID, r.PaymentID())
	if err != nil {
		return nil, err
	}

	pgRefundID, err := s.pgClient.Refund(ctx, p.PGPaymentKey(), r.Amount(), r.Reason())
	if err != nil {
		if failErr := r.Fail(err.Error()); failErr != nil {
			return nil, failErr
		}
		txErr := s.uow.Execute(ctx, func(ctx context.Context, repos TxRepos) error {
			if err := repos.Refunds.Update(ctx, r); err != nil {
				return err
			}
			event, err := newOutboxEvent(tenantID, "refund", r.ID().String(), "refund.failed", toRefundDTO(r))
			if err != nil {
				return err
			}
			return repos.Outbox.Insert(ctx, event)
		})
		if txErr != nil {
			return nil, txErr
		}
		return nil, apperr.NewUpstreamError("PAY_005", "payment gateway refund failed", err)
	}

	if err := r.Complete(pgRefundID); err != nil {
		return nil, err
	}

	err = s.uow.Execute(ctx, func(ctx context.Context, repos TxRepos) error {
		if err := repos.Refunds.Update(ctx, r); err != nil {
			return err
		}
		event, err := newOutboxEvent(tenantID, "refund", r.ID().String(), "refund.completed", toRefundDTO(r))
		if err != nil {
			return err
		}
		return repos.Outbox.Insert(ctx, event)
	})
	if err != nil {
		return nil, err
	}
	dto := toRefundDTO(r)
	return &dto, nil
}

func (s *RefundService) Get(ctx context.Context, tenantID string, id uuid.UUID) (*RefundDTO, error) {
	r, err := s.refunds.FindByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	dto := toRefundDTO(r)
	return &dto, nil
}

func (s *RefundService) ListByPayment(ctx context.Context, tenantID string, paymentID uuid.UUID) ([]RefundDTO, error) {
	refunds, err := s.refunds.ListByPayment(ctx, tenantID, paymentID)
	if err != nil {
		return nil, err
	}
	dtos := make([]RefundDTO, len(refunds))
	for i, r := range refunds {
		dtos[i] = toRefundDTO(r)
	}
	return dtos, nil
}

func toRefundDTO(r *refund.Refund) RefundDTO {
	return RefundDTO{
		ID:          r.ID(),
		PaymentID:   r.PaymentID(),
		Amount:      r.Amount(),
		Currency:    r.Currency(),
		Status:      string(r.Status()),
		Reason:      r.Reason(),
		PGRefundID:  r.PGRefundID(),
		CreatedAt:   r.CreatedAt(),
		UpdatedAt:   r.UpdatedAt(),
		CompletedAt: r.CompletedAt(),
		FailedAt:    r.FailedAt(),
	}
}
