package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	creditDomain "github.com/fluxpay/engine/internal/domain/credit"
	"github.com/fluxpay/engine/internal/platform/apperr"
)

// CreditModel is the GORM persistence model for the per-user credit
// balance row. (tenant_id, user_id) is the natural key.
type CreditModel struct {
	TenantID       string    `gorm:"type:varchar(64);primaryKey"`
	UserID         string    `gorm:"type:varchar(255);primaryKey"`
	Balance        int64     `gorm:"not null;default:0"`
	ReservedAmount int64     `gorm:"not null;default:0"`
	Version        int64     `gorm:"not null;default:1"`
	UpdatedAt      time.Time `gorm:"type:timestamptz;not null;default:now()"`
}

func (CreditModel) TableName() string { return "credits" }

// CreditLedgerModel is one append-only row of the credit ledger.
type CreditLedgerModel struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID     string    `gorm:"type:varchar(64);not null;index:idx_ledger_tenant_user"`
	UserID       string    `gorm:"type:varchar(255);not null;index:idx_ledger_tenant_user"`
	Type         string    `gorm:"type:varchar(20);not null"`
	Amount       int64     `gorm:"not null"`
	BalanceAfter int64     `gorm:"not null"`
	ReferenceID  string    `gorm:"type:varchar(255);index"`
	CreatedAt    time.Time `gorm:"type:timestamptz;not null;default:now()"`
}

func (CreditLedgerModel) TableName() string { return "credit_ledger" }

// ReservationModel tracks whether a RESERVE ledger entry has been
// confirmed, cancelled, or is still open, so Confirm/Cancel can be
// safely retried.
type ReservationModel struct {
	ID        string    `gorm:"type:varchar(255);primaryKey"`
	TenantID  string    `gorm:"type:varchar(64);not null;index:idx_reservations_tenant"`
	UserID    string    `gorm:"type:varchar(255);not null"`
	Amount    int64     `gorm:"not null"`
	Status    string    `gorm:"type:varchar(20);not null;default:'OPEN'"`
	CreatedAt time.Time `gorm:"type:timestamptz;not null;default:now()"`
}

func (ReservationModel) TableName() string { return "credit_reservations" }

// CreditRepository is the GORM-based implementation of credit.Repository.
type CreditRepository struct {
	db *gorm.DB
}

func NewCreditRepository(db *gorm.DB) *CreditRepository {
	return &CreditRepository{db: db}
}

func (r *CreditRepository) GetOrCreate(ctx context.Context, tenantID, userID string) (*creditDomain.Credit, error) {
	var model CreditModel
	err := r.db.WithContext(ctx).Where("tenant_id = ? AND user_id = ?", tenantID, userID).First(&model).Error
	if err == nil {
		return creditModelToDomain(&model), nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	fresh := creditDomain.New(tenantID, userID)
	model = CreditModel{
		TenantID:       tenantID,
		UserID:         userID,
		Balance:        fresh.Balance(),
		ReservedAmount: fresh.ReservedAmount(),
		Version:        fresh.Version(),
		UpdatedAt:      fresh.UpdatedAt(),
	}
	// Tolerate a concurrent first-use race: if another request created
	// the row first, fall back to reading it instead of erroring.
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		var reloaded CreditModel
		if reErr := r.db.WithContext(ctx).Where("tenant_id = ? AND user_id = ?", tenantID, userID).First(&reloaded).Error; reErr == nil {
			return creditModelToDomain(&reloaded), nil
		}
		return nil, err
	}
	return creditModelToDomain(&model), nil
}

// Update persists the optimistically-locked balance row, appends the
// ledger entry, and (for a RESERVE entry) records an open reservation,
// all within one transaction.
func (r *CreditRepository) Update(ctx context.Context, c *creditDomain.Credit, entry creditDomain.LedgerEntry) error {
	previousVersion := c.Version() - 1

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&CreditModel{}).
			Where("tenant_id = ? AND user_id = ? AND version = ?", c.TenantID(), c.UserID(), previousVersion).
			Updates(map[string]interface{}{
				"balance":         c.Balance(),
				"reserved_amount": c.ReservedAmount(),
				"version":         c.Version(),
				"updated_at":      c.UpdatedAt(),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return apperr.NewConflictError("CRD_003", "credit balance was modified by another transaction")
		}

		if err := tx.Create(&CreditLedgerModel{
			ID:           entry.ID,
			TenantID:     entry.TenantID,
			UserID:       entry.UserID,
			Type:         string(entry.Type),
			Amount:       entry.Amount,
			BalanceAfter: entry.BalanceAfter,
			ReferenceID:  entry.ReferenceID,
			CreatedAt:    entry.CreatedAt,
		}).Error; err != nil {
			return err
		}

		if entry.Type == creditDomain.EntryReserve {
			return tx.Create(&ReservationModel{
				ID:        entry.ID.String(),
				TenantID:  entry.TenantID,
				UserID:    entry.UserID,
				Amount:    entry.Amount,
				Status:    string(creditDomain.ReservationOpen),
				CreatedAt: entry.CreatedAt,
			}).Error
		}
		return nil
	})
}

func (r *CreditRepository) GetReservation(ctx context.Context, tenantID, reservationID string) (*creditDomain.Reservation, error) {
	var model ReservationModel
	err := r.db.WithContext(ctx).Where("id = ? AND tenant_id = ?", reservationID, tenantID).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NewNotFoundError("CRD_001", "reservation", reservationID)
		}
		return nil, err
	}
	return &creditDomain.Reservation{
		ID:        model.ID,
		TenantID:  model.TenantID,
		UserID:    model.UserID,
		Amount:    model.Amount,
		Status:    creditDomain.ReservationStatus(model.Status),
		CreatedAt: model.CreatedAt,
	}, nil
}

func (r *CreditRepository) MarkReservation(ctx context.Context, tenantID, reservationID string, status creditDomain.ReservationStatus) error {
	result := r.db.WithContext(ctx).Model(&ReservationModel{}).
		Where("id = ? AND tenant_id = ?", reservationID, tenantID).
		Update("status", string(status))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperr.NewNotFoundError("CRD_001", "reservation", reservationID)
	}
	return nil
}

func (r *CreditRepository) Ledger(ctx context.Context, tenantID, userID string) ([]creditDomain.LedgerEntry, error) {
	var models []CreditLedgerModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND user_id = ?", tenantID, userID).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	entries := make([]creditDomain.LedgerEntry, len(models))
	for i, m := range models {
		entries[i] = creditDomain.LedgerEntry{
			ID:           m.ID,
			TenantID:     m.TenantID,
			UserID:       m.UserID,
			Type:         creditDomain.EntryType(m.Type),
			Amount:       m.Amount,
			BalanceAfter: m.BalanceAfter,
			ReferenceID:  m.ReferenceID,
			CreatedAt:    m.CreatedAt,
		}
	}
	return entries, nil
}

func creditModelToDomain(m *CreditModel) *creditDomain.Credit {
	return creditDomain.Reconstitute(m.TenantID, m.UserID, m.Balance, m.ReservedAmount, m.Version, m.UpdatedAt)
}
