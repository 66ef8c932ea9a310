package refund

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxpay/engine/internal/platform/apperr"
)

func TestNew_RejectsNonPositiveAmount(t *testing.T) {
	_, err := New("default", uuid.New(), 0, "KRW", "owner request")
	require.Error(t, err)
	ae, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, "PAY_007", ae.Code)
}

func TestRefund_HappyPathTransitionsToCompleted(t *testing.T) {
	r, err := New("default", uuid.New(), 5000, "KRW", "owner request")
	require.NoError(t, err)
	require.Equal(t, StatusRequested, r.Status())

	require.NoError(t, r.StartProcessing())
	assert.Equal(t, StatusProcessing, r.Status())

	require.NoError(t, r.Complete("pg-refund-1"))
	assert.Equal(t, StatusCompleted, r.Status())
	assert.Equal(t, "pg-refund-1", r.PGRefundID())
	assert.NotNil(t, r.CompletedAt())
}

func TestRefund_FailFromProcessing(t *testing.T) {
	r, err := New("default", uuid.New(), 5000, "KRW", "owner request")
	require.NoError(t, err)
	require.NoError(t, r.StartProcessing())

	require.NoError(t, r.Fail("gateway declined"))
	assert.Equal(t, StatusFailed, r.Status())
	assert.Equal(t, "gateway declined", r.Reason())
	assert.NotNil(t, r.FailedAt())
}

func TestRefund_TerminalStatusesAreAbsorbing(t *testing.T) {
	for _, tc := range []struct {
		name  string
		build func() *Refund
	}{
		{
			name: "completed",
			build: func() *Refund {
				r, _ := New("default", uuid.New(), 100, "KRW", "x")
				_ = r.StartProcessing()
				_ = r.Complete("pg-1")
				return r
			},
		},
		{
			name: "failed",
			build: func() *Refund {
				r, _ := New("default", uuid.New(), 100, "KRW", "x")
				_ = r.StartProcessing()
				_ = r.Fail("declined")
				return r
			},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			r := tc.build()
			err := r.StartProcessing()
			require.Error(t, err)
			ae, ok := apperr.As(err)
			require.True(t, ok)
			assert.Equal(t, "PAY_006", ae.Code)
		})
	}
}

func TestRefund_IllegalTransitionNeverSilentlyIgnored(t *testing.T) {
	r, err := New("default", uuid.New(), 100, "KRW", "x")
	require.NoError(t, err)

	err = r.Complete("pg-1")
	require.Error(t, err)
	assert.Equal(t, StatusRequested, r.Status())
}

func TestReconstitute_PreservesAllFields(t *testing.T) {
	id := uuid.New()
	paymentID := uuid.New()
	r, err := New("tenant-a", paymentID, 2500, "USD", "customer request")
	require.NoError(t, err)
	require.NoError(t, r.StartProcessing())
	require.NoError(t, r.Complete("pg-99"))

	rebuilt := Reconstitute(id, "tenant-a", paymentID, 2500, "USD", StatusCompleted,
		"customer request", "pg-99", r.CreatedAt(), r.UpdatedAt(), r.CompletedAt(), r.FailedAt())

	assert.Equal(t, id, rebuilt.ID())
	assert.Equal(t, "tenant-a", rebuilt.TenantID())
	assert.Equal(t, paymentID, rebuilt.PaymentID())
	assert.Equal(t, int64(2500), rebuilt.Amount())
	assert.Equal(t, "USD", rebuilt.Currency())
	assert.Equal(t, StatusCompleted, rebuilt.Status())
	assert.Equal(t, "pg-99", rebuilt.PGRefundID())
}
