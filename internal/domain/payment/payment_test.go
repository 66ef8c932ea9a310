package payment

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxpay/engine/internal/platform/apperr"
)

func TestNew_RejectsNonPositiveAmount(t *testing.T) {
	_, err := New("default", uuid.New(), 0, "KRW")
	require.Error(t, err)
	ae, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, "PAY_006", ae.Code)
}

func TestPayment_HappyPathTransitionsToConfirmed(t *testing.T) {
	p, err := New("default", uuid.New(), 20000, "KRW")
	require.NoError(t, err)
	require.Equal(t, StatusReady, p.Status())

	require.NoError(t, p.StartProcessing("CARD"))
	assert.Equal(t, StatusProcessing, p.Status())

	require.NoError(t, p.Approve("txn-1", "key-1"))
	assert.Equal(t, StatusApproved, p.Status())
	assert.Equal(t, "txn-1", p.PGTransactionID())

	require.NoError(t, p.Confirm())
	assert.Equal(t, StatusConfirmed, p.Status())
	assert.NotNil(t, p.ConfirmedAt())
}

func TestPayment_TerminalStatusesAreAbsorbing(t *testing.T) {
	for _, tc := range []struct {
		name  string
		build func() *Payment
	}{
		{
			name: "failed",
			build: func() *Payment {
				p, _ := New("default", uuid.New(), 100, "KRW")
				_ = p.StartProcessing("CARD")
				_ = p.Fail("pg down")
				return p
			},
		},
		{
			name: "refunded",
			build: func() *Payment {
				p, _ := New("default", uuid.New(), 100, "KRW")
				_ = p.StartProcessing("CARD")
				_ = p.Approve("t", "k")
				_ = p.Confirm()
				_ = p.Refund()
				return p
			},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			p := tc.build()
			err := p.StartProcessing("CARD")
			require.Error(t, err)
			ae, ok := apperr.As(err)
			require.True(t, ok)
			assert.Equal(t, "PAY_006", ae.Code)
		})
	}
}

func TestPayment_IllegalTransitionNeverSilentlyIgnored(t *testing.T) {
	p, err := New("default", uuid.New(), 100, "KRW")
	require.NoError(t, err)

	err = p.Confirm()
	require.Error(t, err)
	assert.Equal(t, StatusReady, p.Status())
}

func TestPayment_IsApprovalExpired(t *testing.T) {
	p, err := New("default", uuid.New(), 100, "KRW")
	require.NoError(t, err)
	require.NoError(t, p.StartProcessing("CARD"))

	now := *p.ProcessingAt()
	assert.False(t, p.IsApprovalExpired(now.Add(23*time.Hour), 0))
	assert.True(t, p.IsApprovalExpired(now.Add(25*time.Hour), 0))
}

func TestStatusRank_OrdersTheStateMachineForWebhookReconciliation(t *testing.T) {
	assert.Less(t, StatusRank(StatusReady), StatusRank(StatusProcessing))
	assert.Less(t, StatusRank(StatusProcessing), StatusRank(StatusApproved))
	assert.Less(t, StatusRank(StatusApproved), StatusRank(StatusConfirmed))
	assert.Less(t, StatusRank(StatusConfirmed), StatusRank(StatusRefunded))
}
