package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	orderDomain "github.com/fluxpay/engine/internal/domain/order"
	"github.com/fluxpay/engine/internal/platform/apperr"
)

// OrderModel is the GORM persistence model for the orders table.
type OrderModel struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID    string    `gorm:"type:varchar(64);not null;index:idx_orders_tenant"`
	UserID      string    `gorm:"type:varchar(255);not null;index:idx_orders_user"`
	Currency    string    `gorm:"type:varchar(3);not null"`
	LineItems   []byte    `gorm:"type:json;not null"`
	TotalAmount int64     `gorm:"not null"`
	Status      string    `gorm:"type:varchar(20);not null;default:'PENDING'"`
	Metadata    []byte    `gorm:"type:json"`
	CreatedAt   time.Time `gorm:"type:timestamptz;not null;default:now()"`
	UpdatedAt   time.Time `gorm:"type:timestamptz;not null;default:now()"`
	PaidAt      *time.Time `gorm:"type:timestamptz"`
	CompletedAt *time.Time `gorm:"type:timestamptz"`
}

func (OrderModel) TableName() string { return "orders" }

type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) Save(ctx context.Context, o *orderDomain.Order) error {
	model, err := orderToModel(o)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(model).Error
}

func (r *OrderRepository) Update(ctx context.Context, o *orderDomain.Order) error {
	model, err := orderToModel(o)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Save(model).Error
}

func (r *OrderRepository) FindByID(ctx context.Context, tenantID string, id uuid.UUID) (*orderDomain.Order, error) {
	var model OrderModel
	err := r.db.WithContext(ctx).Where("id = ? AND tenant_id = ?", id, tenantID).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NewNotFoundError("ORD_001", "order", id.String())
		}
		return nil, err
	}
	return orderToDomain(&model)
}

func (r *OrderRepository) ListByUser(ctx context.Context, tenantID, userID string, page, limit int) ([]*orderDomain.Order, int64, error) {
	var total int64
	r.db.WithContext(ctx).Model(&OrderModel{}).Where("tenant_id = ? AND user_id = ?", tenantID, userID).Count(&total)

	var models []OrderModel
	offset := (page - 1) * limit
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND user_id = ?", tenantID, userID).
		Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	orders := make([]*orderDomain.Order, len(models))
	for i := range models {
		o, err := orderToDomain(&models[i])
		if err != nil {
			return nil, 0, err
		}
		orders[i] = o
	}
	return orders, total, nil
}

func orderToDomain(m *OrderModel) (*orderDomain.Order, error) {
	var lineItems []orderDomain.LineItem
	if err := json.Unmarshal(m.LineItems, &lineItems); err != nil {
		return nil, err
	}
	var metadata map[string]string
	if len(m.Metadata) > 0 {
		if err := json.Unmarshal(m.Metadata, &metadata); err != nil {
			return nil, err
		}
	}
	return orderDomain.Reconstitute(
		m.ID, m.TenantID, m.UserID, m.Currency,
		lineItems, m.TotalAmount, orderDomain.Status(m.Status), metadata,
		m.CreatedAt, m.UpdatedAt, m.PaidAt, m.CompletedAt,
	), nil
}

func orderToModel(o *orderDomain.Order) (*OrderModel, error) {
	lineItems, err := json.Marshal(o.LineItems())
	if err != nil {
		return nil, err
	}
	var metadata []byte
	if o.Metadata() != nil {
		metadata, err = json.Marshal(o.Metadata())
		if err != nil {
			return nil, err
		}
	}
	return &OrderModel{
		ID:          o.ID(),
		TenantID:    o.TenantID(),
		UserID:      o.UserID(),
		Currency:    o.Currency(),
		LineItems:   lineItems,
		TotalAmount: o.TotalAmount(),
		Status:      string(o.Status()),
		Metadata:    metadata,
		CreatedAt:   o.CreatedAt(),
		UpdatedAt:   o.UpdatedAt(),
		PaidAt:      o.PaidAt(),
		CompletedAt: o.CompletedAt(),
	}, nil
}
