package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/fluxpay/engine/internal/idempotency"
)

// IdempotencyModel is the GORM persistence model for the durable-tier
// idempotency record. (tenant_id, endpoint, client_key) is the natural key.
type IdempotencyModel struct {
	TenantID    string    `gorm:"column:tenant_id;type:varchar(64);primaryKey"`
	Endpoint    string    `gorm:"column:endpoint;type:varchar(255);primaryKey"`
	ClientKey   string    `gorm:"column:client_key;type:varchar(255);primaryKey"`
	PayloadHash string    `gorm:"column:payload_hash;type:varchar(64);not null"`
	Response    []byte    `gorm:"column:response;type:json"`
	HTTPStatus  int       `gorm:"column:http_status;not null;default:0"`
	CreatedAt   time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	ExpiresAt   time.Time `gorm:"column:expires_at;type:timestamptz;not null;index:idx_idempotency_expires"`
}

func (IdempotencyModel) TableName() string { return "idempotency_records" }

// IdempotencyRepository is the GORM-based implementation of
// idempotency.Store, the durable tier behind the fast cache tier.
type IdempotencyRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewIdempotencyRepository(db *gorm.DB) *IdempotencyRepository {
	return &IdempotencyRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (r *IdempotencyRepository) InsertPlaceholder(ctx context.Context, key idempotency.Key, payloadHash string, ttl time.Duration) error {
	now := r.now()

	var existing IdempotencyModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND endpoint = ? AND client_key = ?", key.TenantID, key.Endpoint, key.ClientKey).
		First(&existing).Error
	if err == nil {
		if existing.ExpiresAt.After(now) {
			return idempotency.ErrAlreadyExists
		}
		return r.db.WithContext(ctx).Model(&IdempotencyModel{}).
			Where("tenant_id = ? AND endpoint = ? AND client_key = ?", key.TenantID, key.Endpoint, key.ClientKey).
			Updates(map[string]interface{}{
				"payload_hash": payloadHash,
				"response":     nil,
				"http_status":  0,
				"created_at":   now,
				"expires_at":   now.Add(ttl),
			}).Error
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	model := IdempotencyModel{
		TenantID:    key.TenantID,
		Endpoint:    key.Endpoint,
		ClientKey:   key.ClientKey,
		PayloadHash: payloadHash,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return idempotency.ErrAlreadyExists
	}
	return nil
}

func (r *IdempotencyRepository) Get(ctx context.Context, key idempotency.Key) (*idempotency.Record, error) {
	var model IdempotencyModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND endpoint = ? AND client_key = ?", key.TenantID, key.Endpoint, key.ClientKey).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, idempotency.ErrNotFound
		}
		return nil, err
	}
	if !model.ExpiresAt.After(r.now()) {
		return nil, idempotency.ErrNotFound
	}
	return &idempotency.Record{
		TenantID:    model.TenantID,
		Endpoint:    model.Endpoint,
		ClientKey:   model.ClientKey,
		PayloadHash: model.PayloadHash,
		Response:    model.Response,
		HTTPStatus:  model.HTTPStatus,
		CreatedAt:   model.CreatedAt,
		ExpiresAt:   model.ExpiresAt,
	}, nil
}

func (r *IdempotencyRepository) Complete(ctx context.Context, key idempotency.Key, payloadHash string, response []byte, status int, ttl time.Duration) error {
	now := r.now()
	result := r.db.WithContext(ctx).Model(&IdempotencyModel{}).
		Where("tenant_id = ? AND endpoint = ? AND client_key = ?", key.TenantID, key.Endpoint, key.ClientKey).
		Updates(map[string]interface{}{
			"payload_hash": payloadHash,
			"response":     response,
			"http_status":  status,
			"expires_at":   now.Add(ttl),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		model := IdempotencyModel{
			TenantID:    key.TenantID,
			Endpoint:    key.Endpoint,
			ClientKey:   key.ClientKey,
			PayloadHash: payloadHash,
			Response:    response,
			HTTPStatus:  status,
			CreatedAt:   now,
			ExpiresAt:   now.Add(ttl),
		}
		return r.db.WithContext(ctx).Create(&model).Error
	}
	return nil
}

func (r *IdempotencyRepository) Delete(ctx context.Context, key idempotency.Key) error {
	return r.db.WithContext(ctx).
		Where("tenant_id = ? AND endpoint = ? AND client_key = ?", key.TenantID, key.Endpoint, key.ClientKey).
		Delete(&IdempotencyModel{}).Error
}
