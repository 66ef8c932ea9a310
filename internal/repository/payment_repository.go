package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	paymentDomain "github.com/fluxpay/engine/internal/domain/payment"
	"github.com/fluxpay/engine/internal/platform/apperr"
)

// PaymentModel is the GORM persistence model for the payments table.
// Unique index on order_id enforces spec §3's "at most one Payment per
// order_id".
type PaymentModel struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID        string    `gorm:"type:varchar(64);not null;index:idx_payments_tenant"`
	OrderID         uuid.UUID `gorm:"type:uuid;uniqueIndex;not null"`
	Amount          int64     `gorm:"not null"`
	Currency        string    `gorm:"type:varchar(3);not null"`
	Status          string    `gorm:"type:varchar(20);not null;default:'READY'"`
	PaymentMethod   string    `gorm:"type:varchar(50)"`
	PGTransactionID string    `gorm:"type:varchar(255)"`
	PGPaymentKey    string    `gorm:"type:varchar(255)"`
	FailureReason   string    `gorm:"type:text"`
	Version         int64     `gorm:"not null;default:1"`
	CreatedAt       time.Time `gorm:"type:timestamptz;not null;default:now()"`
	UpdatedAt       time.Time `gorm:"type:timestamptz;not null;default:now()"`
	ProcessingAt    *time.Time `gorm:"type:timestamptz"`
	ApprovedAt      *time.Time `gorm:"type:timestamptz"`
	ConfirmedAt     *time.Time `gorm:"type:timestamptz"`
	FailedAt        *time.Time `gorm:"type:timestamptz"`
	RefundedAt      *time.Time `gorm:"type:timestamptz"`
}

func (PaymentModel) TableName() string { return "payments" }

// PaymentRepository is the GORM-based implementation of payment.Repository.
type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) FindByID(ctx context.Context, tenantID string, id uuid.UUID) (*paymentDomain.Payment, error) {
	var model PaymentModel
	err := r.db.WithContext(ctx).Where("id = ? AND tenant_id = ?", id, tenantID).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NewNotFoundError("PAY_001", "payment", id.String())
		}
		return nil, err
	}
	return paymentToDomain(&model), nil
}

func (r *PaymentRepository) FindByOrderID(ctx context.Context, tenantID string, orderID uuid.UUID) (*paymentDomain.Payment, error) {
	var model PaymentModel
	err := r.db.WithContext(ctx).Where("order_id = ? AND tenant_id = ?", orderID, tenantID).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NewNotFoundError("PAY_001", "payment", orderID.String())
		}
		return nil, err
	}
	return paymentToDomain(&model), nil
}

func (r *PaymentRepository) FindByPGTransactionID(ctx context.Context, tenantID, pgTransactionID string) (*paymentDomain.Payment, error) {
	var model PaymentModel
	err := r.db.WithContext(ctx).Where("pg_transaction_id = ? AND tenant_id = ?", pgTransactionID, tenantID).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NewNotFoundError("PAY_001", "payment", pgTransactionID)
		}
		return nil, err
	}
	return paymentToDomain(&model), nil
}

func (r *PaymentRepository) Save(ctx context.Context, p *paymentDomain.Payment) error {
	model := paymentToModel(p)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	return nil
}

// Update persists changes with optimistic locking: the WHERE clause
// checks the previous version, and a zero RowsAffected means another
// writer won the race.
func (r *PaymentRepository) Update(ctx context.Context, p *paymentDomain.Payment) error {
	model := paymentToModel(p)
	previousVersion := p.Version() - 1

	result := r.db.WithContext(ctx).
		Model(&PaymentModel{}).
		Where("id = ? AND version = ?", model.ID, previousVersion).
		Updates(model)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperr.NewConflictError("VAL_005", "payment was modified by another transaction")
	}
	return nil
}

func (r *PaymentRepository) ListAll(ctx context.Context, tenantID string, page, limit int) ([]*paymentDomain.Payment, int64, error) {
	var total int64
	r.db.WithContext(ctx).Model(&PaymentModel{}).Where("tenant_id = ?", tenantID).Count(&total)

	var models []PaymentModel
	offset := (page - 1) * limit
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	payments := make([]*paymentDomain.Payment, len(models))
	for i := range models {
		payments[i] = paymentToDomain(&models[i])
	}
	return payments, total, nil
}

func paymentToDomain(m *PaymentModel) *paymentDomain.Payment {
	return paymentDomain.Reconstitute(
		m.ID,
		m.TenantID,
		m.OrderID,
		m.Amount,
		m.Currency,
		paymentDomain.Status(m.Status),
		m.PaymentMethod,
		m.PGTransactionID,
		m.PGPaymentKey,
		m.FailureReason,
		m.Version,
		m.CreatedAt,
		m.UpdatedAt,
		m.ProcessingAt,
		m.ApprovedAt,
		m.ConfirmedAt,
		m.FailedAt,
		m.RefundedAt,
	)
}

func paymentToModel(p *paymentDomain.Payment) *PaymentModel {
	return &PaymentModel{
		ID:              p.ID(),
		TenantID:        p.TenantID(),
		OrderID:         p.OrderID(),
		Amount:          p.Amount(),
		Currency:        p.Currency(),
		Status:          string(p.Status()),
		PaymentMethod:   p.PaymentMethod(),
		PGTransactionID: p.PGTransactionID(),
		PGPaymentKey:    p.PGPaymentKey(),
		FailureReason:   p.FailureReason(),
		Version:         p.Version(),
		CreatedAt:       p.CreatedAt(),
		UpdatedAt:       p.UpdatedAt(),
		ProcessingAt:    p.ProcessingAt(),
		ApprovedAt:      p.ApprovedAt(),
		ConfirmedAt:     p.ConfirmedAt(),
		FailedAt:        p.FailedAt(),
		RefundedAt:      p.RefundedAt(),
	}
}
