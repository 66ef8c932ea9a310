package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	refundDomain "github.com/fluxpay/engine/internal/domain/refund"
	"github.com/fluxpay/engine/internal/platform/apperr"
)

type RefundModel struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey"`
	TenantID    string     `gorm:"type:varchar(64);not null;index:idx_refunds_tenant"`
	PaymentID   uuid.UUID  `gorm:"type:uuid;not null;index:idx_refunds_payment"`
	Amount      int64      `gorm:"not null"`
	Currency    string     `gorm:"type:varchar(3);not null"`
	Status      string     `gorm:"type:varchar(20);not null;default:'REQUESTED'"`
	Reason      string     `gorm:"type:text"`
	PGRefundID  string     `gorm:"type:varchar(255)"`
	CreatedAt   time.Time  `gorm:"type:timestamptz;not null;default:now()"`
	UpdatedAt   time.Time  `gorm:"type:timestamptz;not null;default:now()"`
	CompletedAt *time.Time `gorm:"type:timestamptz"`
	FailedAt    *time.Time `gorm:"type:timestamptz"`
}

func (RefundModel) TableName() string { return "refunds" }

type RefundRepository struct {
	db *gorm.DB
}

func NewRefundRepository(db *gorm.DB) *RefundRepository {
	return &RefundRepository{db: db}
}

func (r *RefundRepository) Save(ctx context.Context, rf *refundDomain.Refund) error {
	return r.db.WithContext(ctx).Create(refundToModel(rf)).Error
}

func (r *RefundRepository) Update(ctx context.Context, rf *refundDomain.Refund) error {
	return r.db.WithContext(ctx).Save(refundToModel(rf)).Error
}

func (r *RefundRepository) FindByID(ctx context.Context, tenantID string, id uuid.UUID) (*refundDomain.Refund, error) {
	var model RefundModel
	err := r.db.WithContext(ctx).Where("id = ? AND tenant_id = ?", id, tenantID).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NewNotFoundError("PAY_008", "refund", id.String())
		}
		return nil, err
	}
	return refundToDomain(&model), nil
}

func (r *RefundRepository) ListByPayment(ctx context.Context, tenantID string, paymentID uuid.UUID) ([]*refundDomain.Refund, error) {
	var models []RefundModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND payment_id = ?", tenantID, paymentID).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	refunds := make([]*refundDomain.Refund, len(models))
	for i := range models {
		refunds[i] = refundToDomain(&models[i])
	}
	return refunds, nil
}

func (r *RefundRepository) SumCompleted(ctx context.Context, tenantID string, paymentID uuid.UUID) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&RefundModel{}).
		Where("tenant_id = ? AND payment_id = ? AND status = ?", tenantID, paymentID, string(refundDomain.StatusCompleted)).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&total).Error
	return total, err
}

func refundToDomain(m *RefundModel) *refundDomain.Refund {
	return refundDomain.Reconstitute(
		m.ID, m.TenantID, m.PaymentID, m.Amount, m.Currency,
		refundDomain.Status(m.Status), m.Reason, m.PGRefundID,
		m.CreatedAt, m.UpdatedAt, m.CompletedAt, m.FailedAt,
	)
}

func refundToModel(r *refundDomain.Refund) *RefundModel {
	return &RefundModel{
		ID:          r.ID(),
		TenantID:    r.TenantID(),
		PaymentID:   r.PaymentID(),
		Amount:      r.Amount(),
		Currency:    r.Currency(),
		Status:      string(r.Status()),
		Reason:      r.Reason(),
		PGRefundID:  r.PGRefundID(),
		CreatedAt:   r.CreatedAt(),
		UpdatedAt:   r.UpdatedAt(),
		CompletedAt: r.CompletedAt(),
		FailedAt:    r.FailedAt(),
	}
}
