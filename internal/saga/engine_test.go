package saga

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeRepo is an in-memory Repository, mirroring the teacher's
// preference for mockable repository dependencies in unit tests.
type fakeRepo struct {
	mu        sync.Mutex
	instances map[string]*Instance
	steps     map[string][]StepRecord
	byCorr    map[string]string // tenantID:correlationID -> sagaID
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		instances: map[string]*Instance{},
		steps:     map[string][]StepRecord{},
		byCorr:    map[string]string{},
	}
}

func corrKey(tenantID, correlationID string) string { return tenantID + ":" + correlationID }

func (r *fakeRepo) FindByCorrelation(_ context.Context, tenantID, correlationID string) (*Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.byCorr[corrKey(tenantID, correlationID)]; ok {
		cp := *r.instances[id]
		return &cp, nil
	}
	return nil, nil
}

func (r *fakeRepo) Create(_ context.Context, instance *Instance, steps []StepRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *instance
	r.instances[instance.SagaID] = &cp
	r.steps[instance.SagaID] = steps
	r.byCorr[corrKey(instance.TenantID, instance.CorrelationID)] = instance.SagaID
	return nil
}

func (r *fakeRepo) ClaimNext(_ context.Context, now time.Time, lease time.Duration) (*Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inst := range r.instances {
		if inst.Status == InstanceStarted || inst.Status == InstanceProcessing {
			cp := *inst
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeRepo) Get(_ context.Context, sagaID string) (*Instance, []StepRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst := r.instances[sagaID]
	cp := *inst
	stepsCopy := append([]StepRecord(nil), r.steps[sagaID]...)
	return &cp, stepsCopy, nil
}

func (r *fakeRepo) UpdateInstance(_ context.Context, instance *Instance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *instance
	r.instances[instance.SagaID] = &cp
	return nil
}

func (r *fakeRepo) UpdateStep(_ context.Context, step *StepRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	steps := r.steps[step.SagaID]
	for i := range steps {
		if steps[i].StepOrder == step.StepOrder {
			steps[i] = *step
			break
		}
	}
	r.steps[step.SagaID] = steps
	return nil
}

func TestEngine_AllStepsSucceed_CompletesInstance(t *testing.T) {
	repo := newFakeRepo()
	engine := NewEngine(repo, zap.NewNop(), time.Minute)

	var executed []string
	engine.Register(Definition{
		SagaType: "payment_saga",
		Steps: []Step{
			{Name: "create_order", Execute: func(ctx context.Context, sc *StepContext) error {
				executed = append(executed, "create_order")
				sc.Set("order_id", "order-1")
				return nil
			}},
			{Name: "process_payment", Execute: func(ctx context.Context, sc *StepContext) error {
				executed = append(executed, "process_payment")
				return nil
			}},
		},
	})

	instance, err := engine.Start(context.Background(), "payment_saga", "default", "corr-1", "saga-1", nil)
	require.NoError(t, err)
	require.Equal(t, InstanceCompleted, instance.Status)
	require.Equal(t, []string{"create_order", "process_payment"}, executed)
}

func TestEngine_StepFailure_CompensatesInReverseOrder(t *testing.T) {
	repo := newFakeRepo()
	engine := NewEngine(repo, zap.NewNop(), time.Minute)

	var compensated []string
	engine.Register(Definition{
		SagaType: "payment_saga",
		Steps: []Step{
			{
				Name:       "create_order",
				Execute:    func(ctx context.Context, sc *StepContext) error { return nil },
				Compensate: func(ctx context.Context, sc *StepContext) error { compensated = append(compensated, "create_order"); return nil },
			},
			{
				Name:       "reserve_credit",
				Execute:    func(ctx context.Context, sc *StepContext) error { return nil },
				Compensate: func(ctx context.Context, sc *StepContext) error { compensated = append(compensated, "reserve_credit"); return nil },
			},
			{
				Name: "process_payment",
				Execute: func(ctx context.Context, sc *StepContext) error {
					return fmt.Errorf("pg declined")
				},
			},
		},
	})

	instance, err := engine.Start(context.Background(), "payment_saga", "default", "corr-2", "saga-2", nil)
	require.NoError(t, err)
	require.Equal(t, InstanceCompensated, instance.Status)
	require.Equal(t, []string{"reserve_credit", "create_order"}, compensated)
}

func TestEngine_RetryWithSameCorrelationReturnsExistingInstance(t *testing.T) {
	repo := newFakeRepo()
	engine := NewEngine(repo, zap.NewNop(), time.Minute)

	calls := 0
	engine.Register(Definition{
		SagaType: "payment_saga",
		Steps: []Step{
			{Name: "step1", Execute: func(ctx context.Context, sc *StepContext) error { calls++; return nil }},
		},
	})

	first, err := engine.Start(context.Background(), "payment_saga", "default", "corr-3", "saga-3", nil)
	require.NoError(t, err)

	second, err := engine.Start(context.Background(), "payment_saga", "default", "corr-3", "saga-other-id", nil)
	require.NoError(t, err)

	require.Equal(t, first.SagaID, second.SagaID)
	require.Equal(t, 1, calls)
}

func TestEngine_CompensationFailure_MarksInstanceFailed(t *testing.T) {
	repo := newFakeRepo()
	engine := NewEngine(repo, zap.NewNop(), time.Minute)

	engine.Register(Definition{
		SagaType: "payment_saga",
		Steps: []Step{
			{
				Name:       "reserve_credit",
				Execute:    func(ctx context.Context, sc *StepContext) error { return nil },
				Compensate: func(ctx context.Context, sc *StepContext) error { return fmt.Errorf("compensation unreachable") },
			},
			{
				Name:    "process_payment",
				Execute: func(ctx context.Context, sc *StepContext) error { return fmt.Errorf("pg declined") },
			},
		},
	})

	instance, err := engine.Start(context.Background(), "payment_saga", "default", "corr-4", "saga-4", nil)
	require.NoError(t, err)
	require.Equal(t, InstanceFailed, instance.Status)
}
