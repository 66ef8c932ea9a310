package credit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxpay/engine/internal/platform/apperr"
)

func TestCredit_ReserveConfirmCancelRefund_MaintainLedgerInvariant(t *testing.T) {
	c := Reconstitute("default", "user-1", 10000, 0, 1, time.Now().UTC())
	var entries []LedgerEntry

	reserve, err := c.Reserve(4000, "res-1")
	require.NoError(t, err)
	entries = append(entries, reserve)
	assert.Equal(t, int64(4000), c.ReservedAmount())
	assert.Equal(t, int64(6000), c.Available())

	confirm, err := c.Confirm(4000, "res-1")
	require.NoError(t, err)
	entries = append(entries, confirm)
	assert.Equal(t, int64(6000), c.Balance())
	assert.Equal(t, int64(0), c.ReservedAmount())

	balance, reserved := ReconstructBalance(entries)
	assert.Equal(t, c.Balance(), balance)
	assert.Equal(t, c.ReservedAmount(), reserved)
}

func TestCredit_ReserveExactlyAvailableSucceeds(t *testing.T) {
	c := Reconstitute("default", "user-1", 1000, 0, 1, time.Now().UTC())
	_, err := c.Reserve(1000, "res-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), c.Available())
}

func TestCredit_ReserveAboveAvailableFailsWithCRD002(t *testing.T) {
	c := Reconstitute("default", "user-1", 1000, 0, 1, time.Now().UTC())
	_, err := c.Reserve(1001, "res-1")
	require.Error(t, err)
	ae, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, "CRD_002", ae.Code)
}

func TestCredit_CancelReleasesReservationWithoutChargingBalance(t *testing.T) {
	c := Reconstitute("default", "user-1", 10000, 0, 1, time.Now().UTC())
	_, err := c.Reserve(2000, "res-1")
	require.NoError(t, err)

	_, err = c.Cancel(2000, "res-1")
	require.NoError(t, err)
	assert.Equal(t, int64(10000), c.Balance())
	assert.Equal(t, int64(0), c.ReservedAmount())
}

func TestCredit_ConfirmMoreThanReservedFails(t *testing.T) {
	c := Reconstitute("default", "user-1", 10000, 500, 1, time.Now().UTC())
	_, err := c.Confirm(501, "res-1")
	require.Error(t, err)
}

func TestCredit_Refund_IncreasesBalanceOnly(t *testing.T) {
	c := Reconstitute("default", "user-1", 1000, 0, 1, time.Now().UTC())
	_, err := c.Refund(500, "pay-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1500), c.Balance())
	assert.Equal(t, int64(0), c.ReservedAmount())
}

func TestReconstructBalance_FromFullLedgerSequence(t *testing.T) {
	entries := []LedgerEntry{
		{Type: EntryReserve, Amount: 3000},
		{Type: EntryConfirm, Amount: -3000},
		{Type: EntryRefund, Amount: 500},
	}
	balance, reserved := ReconstructBalance(entries)
	assert.Equal(t, int64(-2500), balance)
	assert.Equal(t, int64(0), reserved)
}
