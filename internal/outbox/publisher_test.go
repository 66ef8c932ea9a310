package outbox

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fluxpay/engine/internal/eventbus"
)

// fakeRepo is an in-memory Repository used to exercise Publisher/Janitor
// without a database, mirroring the teacher's preference for mockable
// repository interfaces in unit tests.
type fakeRepo struct {
	mu     sync.Mutex
	events map[string]*Event
	now    func() time.Time
}

func newFakeRepo(events ...Event) *fakeRepo {
	r := &fakeRepo{events: make(map[string]*Event), now: time.Now}
	for i := range events {
		e := events[i]
		r.events[e.EventID] = &e
	}
	return r
}

func (r *fakeRepo) Insert(_ context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[event.EventID] = &event
	return nil
}

func (r *fakeRepo) ClaimBatch(_ context.Context, limit int) ([]Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	now := r.now().UTC()
	for _, e := range r.events {
		if e.Status != StatusPending || e.NextAttemptAt.After(now) {
			continue
		}
		e.Status = StatusProcessing
		e.ClaimedAt = &now
		out = append(out, *e)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *fakeRepo) MarkPublished(_ context.Context, eventID string, publishedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.events[eventID]
	e.Status = StatusPublished
	e.PublishedAt = &publishedAt
	return nil
}

func (r *fakeRepo) MarkFailedAttempt(_ context.Context, eventID string, maxRetries int, lastErr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.events[eventID]
	oldRetryCount := e.RetryCount
	e.RetryCount++
	e.Error = &lastErr
	if e.RetryCount >= maxRetries {
		e.Status = StatusFailed
	} else {
		e.Status = StatusPending
		e.NextAttemptAt = r.now().UTC().Add(Backoff(oldRetryCount))
	}
	return nil
}

func (r *fakeRepo) ReclaimStuck(_ context.Context, olderThan time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, e := range r.events {
		if e.Status == StatusProcessing && e.ClaimedAt != nil && e.ClaimedAt.Before(olderThan) {
			e.Status = StatusPending
			e.ClaimedAt = nil
			n++
		}
	}
	return n, nil
}

func (r *fakeRepo) DeletePublishedBefore(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, e := range r.events {
		if e.Status == StatusPublished && e.PublishedAt != nil && e.PublishedAt.Before(before) {
			delete(r.events, id)
			n++
		}
	}
	return n, nil
}

func (r *fakeRepo) get(id string) Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.events[id]
}

func TestPublisher_ProcessOnce_PublishesPendingRow(t *testing.T) {
	evt := NewEvent("evt-1", "default", "payment", "pay-1", "payment.confirmed", "fluxpay.payment", []byte(`{}`))
	repo := newFakeRepo(evt)
	bus := eventbus.NewMemoryBus()

	pub := NewPublisher(repo, bus, DefaultPublisherConfig(), zap.NewNop())
	pub.ProcessOnce(context.Background())

	got := repo.get("evt-1")
	require.Equal(t, StatusPublished, got.Status)
	require.Len(t, bus.Published(), 1)
	require.Equal(t, "default:pay-1", bus.Published()[0].Key)
}

func TestPublisher_ProcessOnce_RetriesThenDeadLetters(t *testing.T) {
	evt := NewEvent("evt-1", "default", "payment", "pay-1", "payment.confirmed", "fluxpay.payment", []byte(`{}`))
	repo := newFakeRepo(evt)
	clock := time.Now().UTC()
	repo.now = func() time.Time { return clock }
	bus := eventbus.NewMemoryBus()
	bus.FailNext(3)

	cfg := DefaultPublisherConfig()
	cfg.MaxRetries = 3
	pub := NewPublisher(repo, bus, cfg, zap.NewNop())

	pub.ProcessOnce(context.Background())
	require.Equal(t, StatusPending, repo.get("evt-1").Status)
	require.Equal(t, 1, repo.get("evt-1").RetryCount)

	// A retry before next_attempt_at elapses must not reclaim the row.
	pub.ProcessOnce(context.Background())
	require.Equal(t, 1, repo.get("evt-1").RetryCount)

	clock = clock.Add(Backoff(0))
	pub.ProcessOnce(context.Background())
	require.Equal(t, StatusPending, repo.get("evt-1").Status)
	require.Equal(t, 2, repo.get("evt-1").RetryCount)

	clock = clock.Add(Backoff(1))
	pub.ProcessOnce(context.Background())
	require.Equal(t, StatusFailed, repo.get("evt-1").Status)
	require.Equal(t, 3, repo.get("evt-1").RetryCount)
}

func TestJanitor_ReclaimsStuckProcessingRows(t *testing.T) {
	stale := time.Now().UTC().Add(-time.Minute)
	evt := NewEvent("evt-1", "default", "payment", "pay-1", "payment.confirmed", "fluxpay.payment", []byte(`{}`))
	evt.Status = StatusProcessing
	evt.ClaimedAt = &stale
	repo := newFakeRepo(evt)

	j := NewJanitor(repo, DefaultJanitorConfig(), zap.NewNop())
	j.sweepStuck(context.Background())

	got := repo.get("evt-1")
	require.Equal(t, StatusPending, got.Status)
	require.Nil(t, got.ClaimedAt)
}

func TestBackoff_DoublesPerRetry(t *testing.T) {
	require.Equal(t, time.Second, Backoff(0))
	require.Equal(t, 2*time.Second, Backoff(1))
	require.Equal(t, 4*time.Second, Backoff(2))
}
