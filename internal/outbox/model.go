// Package outbox implements the transactional outbox and its polling
// publisher, grounded on the teacher pack's eCo13rus-order_system
// pkg/outbox worker, adapted to FluxPay's exact claim-batch discipline
// from spec §4.2 (SKIP LOCKED claim, PROCESSING lease, exponential
// backoff, janitor sweep for crashed publishers).
package outbox

import "time"

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusPublished  Status = "PUBLISHED"
	StatusFailed     Status = "FAILED"
)

// Event is a single row of the outbox table. A PENDING row always has a
// matching committed state change written in the same DB transaction; the
// insert discipline is enforced by callers (repositories), never by this
// package.
type Event struct {
	EventID       string
	TenantID      string
	AggregateType string
	AggregateID   string
	EventType     string
	Topic         string
	Payload       []byte
	Status        Status
	RetryCount    int
	CreatedAt     time.Time
	ClaimedAt     *time.Time
	PublishedAt   *time.Time
	NextAttemptAt time.Time
	Error         *string
}

// NewEvent builds a PENDING row ready to be inserted alongside the
// aggregate's own state-change write, in the same transaction.
func NewEvent(eventID, tenantID, aggregateType, aggregateID, eventType, topic string, payload []byte) Event {
	now := time.Now().UTC()
	return Event{
		EventID:       eventID,
		TenantID:      tenantID,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Topic:         topic,
		Payload:       payload,
		Status:        StatusPending,
		CreatedAt:     now,
		NextAttemptAt: now,
	}
}

// PartitionKey is the (tenant_id, aggregate_id) key spec §4.2 requires for
// per-aggregate publish ordering.
func (e Event) PartitionKey() string {
	return e.TenantID + ":" + e.AggregateID
}

// Backoff returns the exponential delay (1s, 2s, 4s, ...) before the next
// publish attempt given the current retry count, per spec §4.2.
func Backoff(retryCount int) time.Duration {
	d := time.Second
	for i := 0; i < retryCount; i++ {
		d *= 2
	}
	return d
}
