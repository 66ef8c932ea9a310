package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fluxpay/engine/internal/outbox"
)

// OutboxModel is the GORM persistence model for the outbox table.
type OutboxModel struct {
	EventID       string    `gorm:"column:event_id;type:varchar(64);primaryKey"`
	TenantID      string    `gorm:"column:tenant_id;type:varchar(64);not null;index:idx_outbox_tenant"`
	AggregateType string    `gorm:"column:aggregate_type;type:varchar(50);not null"`
	AggregateID   string    `gorm:"column:aggregate_id;type:varchar(64);not null;index:idx_outbox_aggregate"`
	EventType     string    `gorm:"column:event_type;type:varchar(100);not null"`
	Topic         string    `gorm:"column:topic;type:varchar(100);not null"`
	Payload       []byte    `gorm:"column:payload;type:json;not null"`
	Status        string    `gorm:"column:status;type:varchar(20);not null;default:'PENDING';index:idx_outbox_status"`
	RetryCount    int       `gorm:"column:retry_count;not null;default:0"`
	CreatedAt     time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	ClaimedAt     *time.Time `gorm:"column:claimed_at;type:timestamptz"`
	PublishedAt   *time.Time `gorm:"column:published_at;type:timestamptz"`
	NextAttemptAt time.Time `gorm:"column:next_attempt_at;type:timestamptz;not null;default:now()"`
	Error         *string   `gorm:"column:error;type:text"`
}

func (OutboxModel) TableName() string { return "outbox_events" }

// OutboxRepository is the GORM-based implementation of outbox.Repository.
// ClaimBatch uses SELECT ... FOR UPDATE SKIP LOCKED inside a transaction
// so multiple publisher instances never contend for, or double-claim, the
// same row.
type OutboxRepository struct {
	db *gorm.DB
}

func NewOutboxRepository(db *gorm.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

func (r *OutboxRepository) Insert(ctx context.Context, event outbox.Event) error {
	return r.db.WithContext(ctx).Create(outboxToModel(event)).Error
}

func (r *OutboxRepository) ClaimBatch(ctx context.Context, limit int) ([]outbox.Event, error) {
	var claimed []OutboxModel

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []OutboxModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ? AND next_attempt_at <= ?", string(outbox.StatusPending), time.Now().UTC()).
			Order("created_at ASC").
			Limit(limit).
			Find(&rows).Error
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}

		now := time.Now().UTC()
		ids := make([]string, len(rows))
		for i, row := range rows {
			ids[i] = row.EventID
			rows[i].Status = string(outbox.StatusProcessing)
			rows[i].ClaimedAt = &now
		}

		if err := tx.Model(&OutboxModel{}).
			Where("event_id IN ?", ids).
			Updates(map[string]interface{}{
				"status":     string(outbox.StatusProcessing),
				"claimed_at": now,
			}).Error; err != nil {
			return err
		}

		claimed = rows
		return nil
	})
	if err != nil {
		return nil, err
	}

	events := make([]outbox.Event, len(claimed))
	for i, m := range claimed {
		events[i] = outboxToDomain(m)
	}
	return events, nil
}

func (r *OutboxRepository) MarkPublished(ctx context.Context, eventID string, publishedAt time.Time) error {
	return r.db.WithContext(ctx).Model(&OutboxModel{}).
		Where("event_id = ?", eventID).
		Updates(map[string]interface{}{
			"status":       string(outbox.StatusPublished),
			"published_at": publishedAt,
		}).Error
}

func (r *OutboxRepository) MarkFailedAttempt(ctx context.Context, eventID string, maxRetries int, lastErr string) error {
	var model OutboxModel
	if err := r.db.WithContext(ctx).Where("event_id = ?", eventID).First(&model).Error; err != nil {
		return err
	}

	nextRetryCount := model.RetryCount + 1
	nextStatus := string(outbox.StatusPending)
	nextAttemptAt := time.Now().UTC().Add(outbox.Backoff(model.RetryCount))
	if nextRetryCount >= maxRetries {
		nextStatus = string(outbox.StatusFailed)
	}

	return r.db.WithContext(ctx).Model(&OutboxModel{}).
		Where("event_id = ?", eventID).
		Updates(map[string]interface{}{
			"status":          nextStatus,
			"retry_count":     nextRetryCount,
			"error":           lastErr,
			"claimed_at":      nil,
			"next_attempt_at": nextAttemptAt,
		}).Error
}

func (r *OutboxRepository) ReclaimStuck(ctx context.Context, olderThan time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&OutboxModel{}).
		Where("status = ? AND claimed_at < ?", string(outbox.StatusProcessing), olderThan).
		Updates(map[string]interface{}{
			"status":     string(outbox.StatusPending),
			"claimed_at": nil,
		})
	return result.RowsAffected, result.Error
}

func (r *OutboxRepository) DeletePublishedBefore(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("status = ? AND published_at < ?", string(outbox.StatusPublished), before).
		Delete(&OutboxModel{})
	return result.RowsAffected, result.Error
}

func (r *OutboxRepository) ListByStatus(ctx context.Context, tenantID string, status outbox.Status, page, limit int) ([]outbox.Event, int64, error) {
	q := r.db.WithContext(ctx).Model(&OutboxModel{}).Where("tenant_id = ?", tenantID)
	if status != "" {
		q = q.Where("status = ?", string(status))
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var models []OutboxModel
	offset := (page - 1) * limit
	err := q.Order("created_at DESC").Offset(offset).Limit(limit).Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	events := make([]outbox.Event, len(models))
	for i, m := range models {
		events[i] = outboxToDomain(m)
	}
	return events, total, nil
}

func outboxToDomain(m OutboxModel) outbox.Event {
	return outbox.Event{
		EventID:       m.EventID,
		TenantID:      m.TenantID,
		AggregateType: m.AggregateType,
		AggregateID:   m.AggregateID,
		EventType:     m.EventType,
		Topic:         m.Topic,
		Payload:       m.Payload,
		Status:        outbox.Status(m.Status),
		RetryCount:    m.RetryCount,
		CreatedAt:     m.CreatedAt,
		ClaimedAt:     m.ClaimedAt,
		PublishedAt:   m.PublishedAt,
		NextAttemptAt: m.NextAttemptAt,
		Error:         m.Error,
	}
}

func outboxToModel(e outbox.Event) *OutboxModel {
	return &OutboxModel{
		EventID:       e.EventID,
		TenantID:      e.TenantID,
		AggregateType: e.AggregateType,
		AggregateID:   e.AggregateID,
		EventType:     e.EventType,
		Topic:         e.Topic,
		Payload:       e.Payload,
		Status:        string(e.Status),
		RetryCount:    e.RetryCount,
		CreatedAt:     e.CreatedAt,
		ClaimedAt:     e.ClaimedAt,
		PublishedAt:   e.PublishedAt,
		NextAttemptAt: e.NextAttemptAt,
		Error:         e.Error,
	}
}
