// Package saga implements the persisted saga orchestrator from spec §4.3:
// deterministic forward execution with reverse-order compensation,
// row-level claim/lease ownership for crash recovery, and
// (tenant_id, correlation_id) dedup. Generalized from the teacher's
// in-memory internal/saga/payment_saga.go Saga/SagaStep engine.
package saga

import "time"

type InstanceStatus string

const (
	InstanceStarted      InstanceStatus = "STARTED"
	InstanceProcessing   InstanceStatus = "PROCESSING"
	InstanceCompleted    InstanceStatus = "COMPLETED"
	InstanceCompensating InstanceStatus = "COMPENSATING"
	InstanceCompensated  InstanceStatus = "COMPENSATED"
	InstanceFailed       InstanceStatus = "FAILED"
)

type StepStatus string

const (
	StepPending     StepStatus = "PENDING"
	StepExecuted    StepStatus = "EXECUTED"
	StepCompensated StepStatus = "COMPENSATED"
	StepFailed      StepStatus = "FAILED"
)

// Instance is the persisted saga run, per spec §4.3 "Instance model".
type Instance struct {
	SagaID        string
	SagaType      string
	TenantID      string
	CorrelationID string
	Status        InstanceStatus
	CurrentStep   int
	ContextBlob   map[string]interface{}
	Error         *string
	ClaimedAt     *time.Time
	ClaimLease    *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// StepRecord is the persisted per-step row tracked alongside Instance.
type StepRecord struct {
	SagaID    string
	StepOrder int
	StepName  string
	Status    StepStatus
	StepData  map[string]interface{}
	Error     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}
