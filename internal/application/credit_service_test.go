package application

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fluxpay/engine/internal/domain/credit"
	"github.com/fluxpay/engine/internal/platform/apperr"
)

// fakeCreditRepository is an in-memory credit.Repository double, in the
// teacher's style of testing application services against a hand-rolled
// fake rather than a mock-generation library.
type fakeCreditRepository struct {
	balances     map[string]*credit.Credit
	reservations map[string]*credit.Reservation
	ledger       map[string][]credit.LedgerEntry
}

func newFakeCreditRepository() *fakeCreditRepository {
	return &fakeCreditRepository{
		balances:     make(map[string]*credit.Credit),
		reservations: make(map[string]*credit.Reservation),
		ledger:       make(map[string][]credit.LedgerEntry),
	}
}

func key(tenantID, userID string) string { return tenantID + ":" + userID }

func (f *fakeCreditRepository) GetOrCreate(ctx context.Context, tenantID, userID string) (*credit.Credit, error) {
	k := key(tenantID, userID)
	if c, ok := f.balances[k]; ok {
		return c, nil
	}
	c := credit.New(tenantID, userID)
	f.balances[k] = c
	return c, nil
}

func (f *fakeCreditRepository) Update(ctx context.Context, c *credit.Credit, entry credit.LedgerEntry) error {
	f.balances[key(c.TenantID(), c.UserID())] = c
	f.ledger[key(c.TenantID(), c.UserID())] = append(f.ledger[key(c.TenantID(), c.UserID())], entry)
	if entry.Type == credit.EntryReserve {
		f.reservations[entry.ID.String()] = &credit.Reservation{
			ID:        entry.ID.String(),
			TenantID:  c.TenantID(),
			UserID:    c.UserID(),
			Amount:    entry.Amount,
			Status:    credit.ReservationOpen,
			CreatedAt: entry.CreatedAt,
		}
	}
	return nil
}

func (f *fakeCreditRepository) GetReservation(ctx context.Context, tenantID, reservationID string) (*credit.Reservation, error) {
	res, ok := f.reservations[reservationID]
	if !ok {
		return nil, apperr.NewNotFoundError("CRD_003", "reservation", reservationID)
	}
	return res, nil
}

func (f *fakeCreditRepository) MarkReservation(ctx context.Context, tenantID, reservationID string, status credit.ReservationStatus) error {
	res, ok := f.reservations[reservationID]
	if !ok {
		return apperr.NewNotFoundError("CRD_003", "reservation", reservationID)
	}
	res.Status = status
	return nil
}

func (f *fakeCreditRepository) Ledger(ctx context.Context, tenantID, userID string) ([]credit.LedgerEntry, error) {
	return f.ledger[key(tenantID, userID)], nil
}

func newTestCreditService() (*CreditService, *fakeCreditRepository) {
	logger := zap.NewNop()
	repo := newFakeCreditRepository()
	return NewCreditService(repo, logger), repo
}

func TestCreditService_ReserveThenConfirm_DeductsBalance(t *testing.T) {
	svc, repo := newTestCreditService()
	ctx := context.Background()

	c, _ := repo.GetOrCreate(ctx, "tenant-a", "user-1")
	entry, err := c.Refund(10000, "seed")
	require.NoError(t, err)
	require.NoError(t, repo.Update(ctx, c, entry))

	reservation, err := svc.Reserve(ctx, "tenant-a", "user-1", ReserveCreditRequest{Amount: 4000, ReferenceID: uuid.New().String()})
	require.NoError(t, err)
	assert.Equal(t, int64(4000), reservation.Balance.ReservedAmount)
	assert.Equal(t, int64(6000), reservation.Balance.Available)

	balance, err := svc.Confirm(ctx, "tenant-a", "user-1", reservation.ReservationID)
	require.NoError(t, err)
	assert.Equal(t, int64(6000), balance.Balance)
	assert.Equal(t, int64(0), balance.ReservedAmount)
}

func TestCreditService_ReserveThenCancel_ReleasesHoldWithoutCharging(t *testing.T) {
	svc, repo := newTestCreditService()
	ctx := context.Background()

	c, _ := repo.GetOrCreate(ctx, "tenant-a", "user-2")
	entry, err := c.Refund(5000, "seed")
	require.NoError(t, err)
	require.NoError(t, repo.Update(ctx, c, entry))

	reservation, err := svc.Reserve(ctx, "tenant-a", "user-2", ReserveCreditRequest{Amount: 2000, ReferenceID: uuid.New().String()})
	require.NoError(t, err)

	balance, err := svc.Cancel(ctx, "tenant-a", "user-2", reservation.ReservationID)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), balance.Balance)
	assert.Equal(t, int64(0), balance.ReservedAmount)
	assert.Equal(t, int64(5000), balance.Available)
}

func TestCreditService_ConfirmAlreadySettledReservation_IsRejected(t *testing.T) {
	svc, repo := newTestCreditService()
	ctx := context.Background()

	c, _ := repo.GetOrCreate(ctx, "tenant-a", "user-3")
	entry, err := c.Refund(1000, "seed")
	require.NoError(t, err)
	require.NoError(t, repo.Update(ctx, c, entry))

	reservation, err := svc.Reserve(ctx, "tenant-a", "user-3", ReserveCreditRequest{Amount: 500, ReferenceID: uuid.New().String()})
	require.NoError(t, err)

	_, err = svc.Confirm(ctx, "tenant-a", "user-3", reservation.ReservationID)
	require.NoError(t, err)

	_, err = svc.Confirm(ctx, "tenant-a", "user-3", reservation.ReservationID)
	require.Error(t, err)
	ae, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, "CRD_004", ae.Code)
}

func TestCreditService_ReserveMoreThanAvailable_Fails(t *testing.T) {
	svc, repo := newTestCreditService()
	ctx := context.Background()

	c, _ := repo.GetOrCreate(ctx, "tenant-a", "user-4")
	entry, err := c.Refund(100, "seed")
	require.NoError(t, err)
	require.NoError(t, repo.Update(ctx, c, entry))

	_, err = svc.Reserve(ctx, "tenant-a", "user-4", ReserveCreditRequest{Amount: 200, ReferenceID: uuid.New().String()})
	require.Error(t, err)
}
