package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RejectsEmptyLineItems(t *testing.T) {
	_, err := New("default", "user-1", "KRW", nil, nil)
	require.Error(t, err)
}

func TestNew_DerivesTotalAmount(t *testing.T) {
	o, err := New("default", "user-1", "KRW", []LineItem{
		{ProductID: "P1", Quantity: 2, UnitPrice: 10000},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(20000), o.TotalAmount())
	assert.Equal(t, StatusPending, o.Status())
}

func TestOrder_MarkPaidSetsPaidAt(t *testing.T) {
	o, err := New("default", "user-1", "KRW", []LineItem{{ProductID: "P1", Quantity: 1, UnitPrice: 100}}, nil)
	require.NoError(t, err)

	require.NoError(t, o.MarkPaid())
	assert.Equal(t, StatusPaid, o.Status())
	require.NotNil(t, o.PaidAt())
}

func TestOrder_CompleteRequiresPaidFirst(t *testing.T) {
	o, err := New("default", "user-1", "KRW", []LineItem{{ProductID: "P1", Quantity: 1, UnitPrice: 100}}, nil)
	require.NoError(t, err)

	err = o.Complete()
	require.Error(t, err)

	require.NoError(t, o.MarkPaid())
	require.NoError(t, o.Complete())
	assert.Equal(t, StatusCompleted, o.Status())
	assert.NotNil(t, o.PaidAt())
	assert.NotNil(t, o.CompletedAt())
}

func TestOrder_FailIsTerminal(t *testing.T) {
	o, err := New("default", "user-1", "KRW", []LineItem{{ProductID: "P1", Quantity: 1, UnitPrice: 100}}, nil)
	require.NoError(t, err)

	require.NoError(t, o.Fail())
	assert.Equal(t, StatusFailed, o.Status())

	require.Error(t, o.Fail())
	require.Error(t, o.MarkPaid())
}
