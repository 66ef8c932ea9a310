package application

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fluxpay/engine/internal/domain/credit"
	"github.com/fluxpay/engine/internal/platform/apperr"
)

// CreditBalanceDTO is the API response shape for a user's Credit row.
type CreditBalanceDTO struct {
	UserID         string    `json:"userId"`
	Balance        int64     `json:"balance"`
	ReservedAmount int64     `json:"reservedAmount"`
	Available      int64     `json:"available"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// ReserveCreditRequest is the DTO for POST /api/v1/credits/{userId}/reserve.
type ReserveCreditRequest struct {
	Amount      int64  `json:"amount" binding:"required,gt=0"`
	ReferenceID string `json:"referenceId" binding:"required"`
}

// ReservationDTO echoes back the reservation a caller must present to
// Confirm or Cancel.
type ReservationDTO struct {
	ReservationID string           `json:"reservationId"`
	Amount        int64            `json:"amount"`
	Balance       CreditBalanceDTO `json:"balance"`
}

// CreditService orchestrates the prepaid Credit aggregate's two-phase
// reserve/confirm/cancel and refund, per spec §4.5. Ledger entries are
// not published to the outbox: they are internal bookkeeping for a
// balance that is never, on its own, externally observable state (see
// DESIGN.md).
type CreditService struct {
	credits credit.Repository
	logger  *zap.Logger
}

func NewCreditService(credits credit.Repository, logger *zap.Logger) *CreditService {
	return &CreditService{credits: credits, logger: logger}
}

func (s *CreditService) GetBalance(ctx context.Context, tenantID, userID string) (*CreditBalanceDTO, error) {
	c, err := s.credits.GetOrCreate(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	dto := toCreditBalanceDTO(c)
	return &dto, nil
}

// Reserve is Phase 1: hold funds against a future charge, e.g. while a
// payment gateway authorization is pending.
func (s *CreditService) Reserve(ctx context.Context, tenantID, userID string, req ReserveCreditRequest) (*ReservationDTO, error) {
	c, err := s.credits.GetOrCreate(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	entry, err := c.Reserve(req.Amount, req.ReferenceID)
	if err != nil {
		return nil, err
	}
	if err := s.credits.Update(ctx, c, entry); err != nil {
		return nil, err
	}
	s.logger.Info("credit reserved", zap.String("user_id", userID), zap.String("tenant_id", tenantID), zap.Int64("amount", req.Amount))
	return &ReservationDTO{
		ReservationID: entry.ID.String(),
		Amount:        req.Amount,
		Balance:       toCreditBalanceDTO(c),
	}, nil
}

// Confirm is Phase 2a: settle a reservation, permanently deducting from
// balance. Re-checks the reservation hasn't already been settled (spec
// §4.5 idempotency).
func (s *CreditService) Confirm(ctx context.Context, tenantID, userID, reservationID string) (*CreditBalanceDTO, error) {
	res, err := s.credits.GetReservation(ctx, tenantID, reservationID)
	if err != nil {
		return nil, err
	}
	if res.Status != credit.ReservationOpen {
		return nil, apperr.NewConflictError("CRD_004", "reservation already settled")
	}

	c, err := s.credits.GetOrCreate(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	entry, err := c.Confirm(res.Amount, reservationID)
	if err != nil {
		return nil, err
	}
	if err := s.credits.Update(ctx, c, entry); err != nil {
		return nil, err
	}
	if err := s.credits.MarkReservation(ctx, tenantID, reservationID, credit.ReservationConfirmed); err != nil {
		return nil, err
	}
	dto := toCreditBalanceDTO(c)
	return &dto, nil
}

// Cancel is Phase 2b: release a reservation without charging the user,
// e.g. when the order it was funding is cancelled or the saga
// compensates.
func (s *CreditService) Cancel(ctx context.Context, tenantID, userID, reservationID string) (*CreditBalanceDTO, error) {
	res, err := s.credits.GetReservation(ctx, tenantID, reservationID)
	if err != nil {
		return nil, err
	}
	if res.Status != credit.ReservationOpen {
		return nil, apperr.NewConflictError("CRD_004", "reservation already settled")
	}

	c, err := s.credits.GetOrCreate(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	entry, err := c.Cancel(res.Amount, reservationID)
	if err != nil {
		return nil, err
	}
	if err := s.credits.Update(ctx, c, entry); err != nil {
		return nil, err
	}
	if err := s.credits.MarkReservation(ctx, tenantID, reservationID, credit.ReservationCancelled); err != nil {
		return nil, err
	}
	dto := toCreditBalanceDTO(c)
	return &dto, nil
}

// Refund credits a user's balance back, e.g. mirroring a payment refund
// for an order originally funded by credit.
func (s *CreditService) Refund(ctx context.Context, tenantID, userID string, amount int64, referenceID string) (*CreditBalanceDTO, error) {
	c, err := s.credits.GetOrCreate(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	entry, err := c.Refund(amount, referenceID)
	if err != nil {
		return nil, err
	}
	if err := s.credits.Update(ctx, c, entry); err != nil {
		return nil, err
	}
	dto := toCreditBalanceDTO(c)
	return &dto, nil
}

// Ledger returns the full append-only ledger for a user, oldest first,
// for audits and the balance-reconstruction invariant (spec §8).
func (s *CreditService) Ledger(ctx context.Context, tenantID, userID string) ([]credit.LedgerEntry, error) {
	return s.credits.Ledger(ctx, tenantID, userID)
}

func toCreditBalanceDTO(c *credit.Credit) CreditBalanceDTO {
	return CreditBalanceDTO{
		UserID:         c.UserID(),
		Balance:        c.Balance(),
		ReservedAmount: c.ReservedAmount(),
		Available:      c.Available(),
		UpdatedAt:      c.UpdatedAt(),
	}
}
