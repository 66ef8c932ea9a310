package outbox

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fluxpay/engine/internal/eventbus"
)

// PublisherConfig mirrors the teacher's WorkerConfig shape.
type PublisherConfig struct {
	PollInterval time.Duration
	BatchSize    int
	MaxRetries   int
}

func DefaultPublisherConfig() PublisherConfig {
	return PublisherConfig{
		PollInterval: 100 * time.Millisecond,
		BatchSize:    100,
		MaxRetries:   3,
	}
}

// Publisher polls the outbox table and hands claimed rows to the event bus,
// per spec §4.2: claim batch with SKIP LOCKED, publish with
// (tenant_id, aggregate_id) partition key, ack or backoff-and-retry, and
// dead-letter after MaxRetries.
type Publisher struct {
	repo   Repository
	bus    eventbus.Bus
	cfg    PublisherConfig
	logger *zap.Logger
	now    func() time.Time
}

func NewPublisher(repo Repository, bus eventbus.Bus, cfg PublisherConfig, logger *zap.Logger) *Publisher {
	return &Publisher{repo: repo, bus: bus, cfg: cfg, logger: logger, now: time.Now}
}

// Run blocks, polling at cfg.PollInterval until ctx is cancelled.
func (p *Publisher) Run(ctx context.Context) {
	p.logger.Info("starting outbox publisher",
		zap.Duration("poll_interval", p.cfg.PollInterval),
		zap.Int("batch_size", p.cfg.BatchSize),
		zap.Int("max_retries", p.cfg.MaxRetries),
	)

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("stopping outbox publisher")
			return
		case <-ticker.C:
			p.processBatch(ctx)
		}
	}
}

func (p *Publisher) processBatch(ctx context.Context) {
	batch, err := p.repo.ClaimBatch(ctx, p.cfg.BatchSize)
	if err != nil {
		p.logger.Error("failed to claim outbox batch", zap.Error(err))
		return
	}
	if len(batch) == 0 {
		return
	}

	p.logger.Debug("claimed outbox batch", zap.Int("count", len(batch)))

	for _, evt := range batch {
		select {
		case <-ctx.Done():
			return
		default:
		}
		p.publishOne(ctx, evt)
	}
}

func (p *Publisher) publishOne(ctx context.Context, evt Event) {
	err := p.bus.Publish(ctx, evt.Topic, evt.PartitionKey(), evt.Payload)
	if err != nil {
		p.logger.Warn("outbox publish failed",
			zap.String("event_id", evt.EventID),
			zap.String("topic", evt.Topic),
			zap.Int("retry_count", evt.RetryCount),
			zap.Error(err),
		)
		if markErr := p.repo.MarkFailedAttempt(ctx, evt.EventID, p.cfg.MaxRetries, err.Error()); markErr != nil {
			p.logger.Error("failed to record outbox publish failure", zap.String("event_id", evt.EventID), zap.Error(markErr))
		}
		return
	}

	if err := p.repo.MarkPublished(ctx, evt.EventID, p.now().UTC()); err != nil {
		p.logger.Error("failed to mark outbox event published", zap.String("event_id", evt.EventID), zap.Error(err))
		return
	}

	p.logger.Debug("outbox event published",
		zap.String("event_id", evt.EventID),
		zap.String("topic", evt.Topic),
		zap.String("event_type", evt.EventType),
	)
}

// ProcessOnce runs a single claim-and-publish cycle; exported for tests and
// for synchronous draining in integration setups.
func (p *Publisher) ProcessOnce(ctx context.Context) {
	p.processBatch(ctx)
}
