package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// ProcessedEventModel records a consumer-side event_id that has already
// been applied, so at-least-once delivery (spec §3/§6) yields at-most-once
// effect on this consumer.
type ProcessedEventModel struct {
	EventID     string    `gorm:"column:event_id;type:varchar(64);primaryKey"`
	ConsumerName string   `gorm:"column:consumer_name;type:varchar(100);primaryKey"`
	ProcessedAt time.Time `gorm:"column:processed_at;type:timestamptz;not null"`
}

func (ProcessedEventModel) TableName() string { return "processed_events" }

// ProcessedEventRepository backs consumer-side event dedup: before
// applying an inbound event's effect, the caller checks Seen; after
// applying it (in the same DB transaction as the effect, where possible)
// the caller calls MarkProcessed.
type ProcessedEventRepository struct {
	db *gorm.DB
}

func NewProcessedEventRepository(db *gorm.DB) *ProcessedEventRepository {
	return &ProcessedEventRepository{db: db}
}

func (r *ProcessedEventRepository) Seen(ctx context.Context, consumerName, eventID string) (bool, error) {
	var model ProcessedEventModel
	err := r.db.WithContext(ctx).
		Where("consumer_name = ? AND event_id = ?", consumerName, eventID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *ProcessedEventRepository) MarkProcessed(ctx context.Context, consumerName, eventID string) error {
	err := r.db.WithContext(ctx).Create(&ProcessedEventModel{
		EventID:      eventID,
		ConsumerName: consumerName,
		ProcessedAt:  time.Now().UTC(),
	}).Error
	if err != nil && isUniqueViolation(err) {
		return nil
	}
	return err
}
