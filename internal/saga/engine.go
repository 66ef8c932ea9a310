package saga

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// StepContext is the mutable per-execution context threaded through a
// saga's steps, backed by the persisted ContextBlob so a step can both
// read what earlier steps left behind and leave data for compensators.
type StepContext struct {
	Blob map[string]interface{}
}

func (c *StepContext) Set(key string, value interface{}) {
	if c.Blob == nil {
		c.Blob = make(map[string]interface{})
	}
	c.Blob[key] = value
}

func (c *StepContext) Get(key string) (interface{}, bool) {
	v, ok := c.Blob[key]
	return v, ok
}

// Step is a single named step of a saga definition: idempotent forward
// action plus idempotent compensator, per spec §4.3 "Idempotency of
// steps". Actions and compensators re-run safely after a crash.
type Step struct {
	Name       string
	Execute    func(ctx context.Context, sc *StepContext) error
	Compensate func(ctx context.Context, sc *StepContext) error
}

// Definition is the static, ordered step sequence for one saga type (e.g.
// "payment_saga"), looked up by Engine.Register.
type Definition struct {
	SagaType string
	Steps    []Step
}

// Engine owns saga definitions and drives claimed instances through
// forward execution with reverse-order compensation on failure, per spec
// §4.3.
type Engine struct {
	repo        Repository
	definitions map[string]Definition
	logger      *zap.Logger
	leaseDuration time.Duration
	now         func() time.Time
}

func NewEngine(repo Repository, logger *zap.Logger, leaseDuration time.Duration) *Engine {
	return &Engine{
		repo:          repo,
		definitions:   make(map[string]Definition),
		logger:        logger,
		leaseDuration: leaseDuration,
		now:           time.Now,
	}
}

func (e *Engine) Register(def Definition) {
	e.definitions[def.SagaType] = def
}

// Start creates (or returns, if one already exists for this correlation)
// a saga instance and runs it to completion or failure inline. Spec §4.3
// "Correlation and uniqueness": a retry with the same correlation returns
// the existing instance instead of creating a second saga.
func (e *Engine) Start(ctx context.Context, sagaType, tenantID, correlationID, sagaID string, seedContext map[string]interface{}) (*Instance, error) {
	existing, err := e.repo.FindByCorrelation(ctx, tenantID, correlationID)
	if err != nil {
		return nil, fmt.Errorf("find existing saga: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	def, ok := e.definitions[sagaType]
	if !ok {
		return nil, fmt.Errorf("saga: no definition registered for type %q", sagaType)
	}

	now := e.now().UTC()
	instance := &Instance{
		SagaID:        sagaID,
		SagaType:      sagaType,
		TenantID:      tenantID,
		CorrelationID: correlationID,
		Status:        InstanceStarted,
		CurrentStep:   0,
		ContextBlob:   seedContext,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	steps := make([]StepRecord, len(def.Steps))
	for i, s := range def.Steps {
		steps[i] = StepRecord{
			SagaID:    sagaID,
			StepOrder: i,
			StepName:  s.Name,
			Status:    StepPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
	}

	if err := e.repo.Create(ctx, instance, steps); err != nil {
		return nil, fmt.Errorf("create saga instance: %w", err)
	}

	e.Run(ctx, instance.SagaID)

	final, _, err := e.repo.Get(ctx, instance.SagaID)
	if err != nil {
		return nil, err
	}
	return final, nil
}

// ClaimAndRun claims the next reclaimable instance (STARTED or PROCESSING
// with an expired lease) and drives it, for background workers doing
// crash recovery per spec §4.3 "Concurrency".
func (e *Engine) ClaimAndRun(ctx context.Context) (bool, error) {
	instance, err := e.repo.ClaimNext(ctx, e.now().UTC(), e.leaseDuration)
	if err != nil {
		return false, err
	}
	if instance == nil {
		return false, nil
	}
	e.Run(ctx, instance.SagaID)
	return true, nil
}

// Run drives a single instance through forward execution and, on
// failure, reverse-order compensation.
func (e *Engine) Run(ctx context.Context, sagaID string) {
	instance, steps, err := e.repo.Get(ctx, sagaID)
	if err != nil {
		e.logger.Error("saga: failed to load instance", zap.String("saga_id", sagaID), zap.Error(err))
		return
	}
	def, ok := e.definitions[instance.SagaType]
	if !ok {
		e.logger.Error("saga: no definition for instance", zap.String("saga_id", sagaID), zap.String("saga_type", instance.SagaType))
		return
	}

	sc := &StepContext{Blob: instance.ContextBlob}
	if instance.Status == InstanceStarted {
		instance.Status = InstanceProcessing
	}

	failedAt := -1
	for i := instance.CurrentStep; i < len(def.Steps); i++ {
		step := def.Steps[i]
		stepRec := &steps[i]
		stepRec.Status = StepPending
		_ = e.repo.UpdateStep(ctx, stepRec)

		e.logger.Info("saga: executing step", zap.String("saga_id", sagaID), zap.String("step", step.Name))

		if err := step.Execute(ctx, sc); err != nil {
			errMsg := err.Error()
			stepRec.Status = StepFailed
			stepRec.Error = &errMsg
			stepRec.StepData = sc.Blob
			_ = e.repo.UpdateStep(ctx, stepRec)

			e.logger.Error("saga: step failed, entering compensation",
				zap.String("saga_id", sagaID), zap.String("step", step.Name), zap.Error(err))

			failedAt = i
			instance.Status = InstanceCompensating
			instance.Error = &errMsg
			instance.ContextBlob = sc.Blob
			_ = e.repo.UpdateInstance(ctx, instance)
			break
		}

		stepRec.Status = StepExecuted
		stepRec.StepData = sc.Blob
		_ = e.repo.UpdateStep(ctx, stepRec)

		instance.CurrentStep = i + 1
		instance.ContextBlob = sc.Blob
		_ = e.repo.UpdateInstance(ctx, instance)
	}

	if failedAt < 0 {
		instance.Status = InstanceCompleted
		_ = e.repo.UpdateInstance(ctx, instance)
		e.logger.Info("saga: completed", zap.String("saga_id", sagaID))
		return
	}

	e.compensate(ctx, instance, def, steps, failedAt, sc)
}

// compensationMaxRetries bounds retries of a single compensator before the
// instance is marked FAILED, per spec §4.3 ("FAILED only after bounded
// retries").
const compensationMaxRetries = 3

func (e *Engine) compensate(ctx context.Context, instance *Instance, def Definition, steps []StepRecord, failedAt int, sc *StepContext) {
	for i := failedAt - 1; i >= 0; i-- {
		step := def.Steps[i]
		if step.Compensate == nil {
			instance.CurrentStep = i
			_ = e.repo.UpdateInstance(ctx, instance)
			continue
		}
		stepRec := &steps[i]

		e.logger.Info("saga: compensating step", zap.String("saga_id", instance.SagaID), zap.String("step", step.Name))

		if err := e.compensateWithRetry(ctx, step, sc); err != nil {
			errMsg := err.Error()
			stepRec.Error = &errMsg
			_ = e.repo.UpdateStep(ctx, stepRec)

			instance.Status = InstanceFailed
			instance.Error = &errMsg
			_ = e.repo.UpdateInstance(ctx, instance)

			e.logger.Error("saga: compensation failed after bounded retries, requires human intervention",
				zap.String("saga_id", instance.SagaID), zap.String("step", step.Name), zap.Error(err))
			return
		}

		stepRec.Status = StepCompensated
		_ = e.repo.UpdateStep(ctx, stepRec)

		// current_step moves backward one per compensated step, mirroring
		// forward execution's current_step = i + 1.
		instance.CurrentStep = i
		instance.ContextBlob = sc.Blob
		_ = e.repo.UpdateInstance(ctx, instance)
	}

	instance.Status = InstanceCompensated
	instance.ContextBlob = sc.Blob
	_ = e.repo.UpdateInstance(ctx, instance)
	e.logger.Info("saga: compensated", zap.String("saga_id", instance.SagaID))
}

// compensateWithRetry retries a single compensator with bounded exponential
// backoff, the same 1s/2s/4s schedule used for PG retries, so a transient
// failure during compensation doesn't immediately fail the whole instance.
func (e *Engine) compensateWithRetry(ctx context.Context, step Step, sc *StepContext) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.Multiplier = 2
	bounded := backoff.WithMaxRetries(bo, compensationMaxRetries)

	return backoff.Retry(func() error {
		return step.Compensate(ctx, sc)
	}, backoff.WithContext(bounded, ctx))
}
