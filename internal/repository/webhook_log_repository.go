package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// ProcessedWebhookModel records a processed PG webhook delivery, keyed by
// the PG transaction id, with the delivery nonce kept alongside for the
// separate nonce-replay check.
type ProcessedWebhookModel struct {
	PGTransactionID string    `gorm:"column:pg_transaction_id;type:varchar(255);primaryKey"`
	Nonce           string    `gorm:"column:nonce;type:varchar(255);not null;uniqueIndex:idx_webhook_nonce"`
	ProcessedAt     time.Time `gorm:"column:processed_at;type:timestamptz;not null"`
}

func (ProcessedWebhookModel) TableName() string { return "processed_webhooks" }

// WebhookLogRepository is the GORM-based implementation of
// pg.ProcessedWebhookStore, backing the reconciler's transaction-id and
// nonce dedup checks.
type WebhookLogRepository struct {
	db *gorm.DB
}

func NewWebhookLogRepository(db *gorm.DB) *WebhookLogRepository {
	return &WebhookLogRepository{db: db}
}

func (r *WebhookLogRepository) SeenTransaction(ctx context.Context, id string) (bool, error) {
	var model ProcessedWebhookModel
	err := r.db.WithContext(ctx).Where("pg_transaction_id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *WebhookLogRepository) SeenNonce(ctx context.Context, nonce string) (bool, error) {
	var model ProcessedWebhookModel
	err := r.db.WithContext(ctx).Where("nonce = ?", nonce).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *WebhookLogRepository) MarkProcessed(ctx context.Context, id, nonce string, processedAt time.Time) error {
	return r.db.WithContext(ctx).Create(&ProcessedWebhookModel{
		PGTransactionID: id,
		Nonce:           nonce,
		ProcessedAt:     processedAt,
	}).Error
}
