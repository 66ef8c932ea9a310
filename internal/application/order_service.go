package application

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fluxpay/engine/internal/domain/order"
)

// CreateOrderRequest is the DTO for POST /api/v1/orders.
type CreateOrderRequest struct {
	UserID    string             `json:"userId" binding:"required"`
	Currency  string             `json:"currency" binding:"required,len=3"`
	LineItems []LineItemRequest  `json:"lineItems" binding:"required,min=1,dive"`
	Metadata  map[string]string  `json:"metadata,omitempty"`
}

type LineItemRequest struct {
	ProductID string `json:"productId" binding:"required"`
	Quantity  int64  `json:"quantity" binding:"required,gt=0"`
	UnitPrice int64  `json:"unitPrice" binding:"gte=0"`
}

// OrderDTO is the API response shape for an Order.
type OrderDTO struct {
	ID          uuid.UUID           `json:"id"`
	UserID      string              `json:"userId"`
	Currency    string              `json:"currency"`
	LineItems   []LineItemRequest   `json:"lineItems"`
	TotalAmount int64               `json:"totalAmount"`
	Status      string              `json:"status"`
	Metadata    map[string]string   `json:"metadata,omitempty"`
	CreatedAt   time.Time           `json:"createdAt"`
	UpdatedAt   time.Time           `json:"updatedAt"`
	PaidAt      *time.Time          `json:"paidAt,omitempty"`
	CompletedAt *time.Time          `json:"completedAt,omitempty"`
}

// OrderService orchestrates Order use cases, emitting an outbox event
// alongside every persisted state change (spec §4.2).
type OrderService struct {
	uow    UnitOfWork
	orders order.Repository
	logger *zap.Logger
}

func NewOrderService(uow UnitOfWork, orders order.Repository, logger *zap.Logger) *OrderService {
	return &OrderService{uow: uow, orders: orders, logger: logger}
}

func (s *OrderService) CreateOrder(ctx context.Context, tenantID string, req CreateOrderRequest) (*OrderDTO, error) {
	lineItems := make([]order.LineItem, len(req.LineItems))
	for i, li := range req.LineItems {
		lineItems[i] = order.LineItem{ProductID: li.ProductID, Quantity: li.Quantity, UnitPrice: li.UnitPrice}
	}

	o, err := order.New(tenantID, req.UserID, req.Currency, lineItems, req.Metadata)
	if err != nil {
		return nil, err
	}

	err = s.uow.Execute(ctx, func(ctx context.Context, repos TxRepos) error {
		if err := repos.Orders.Save(ctx, o); err != nil {
			return err
		}
		event, err := newOutboxEvent(tenantID, "order", o.ID().String(), "order.created", toOrderDTO(o))
		if err != nil {
			return err
		}
		return repos.Outbox.Insert(ctx, event)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("order created", zap.String("order_id", o.ID().String()), zap.String("tenant_id", tenantID))
	dto := toOrderDTO(o)
	return &dto, nil
}

func (s *OrderService) GetOrder(ctx context.Context, tenantID string, id uuid.UUID) (*OrderDTO, error) {
	o, err := s.orders.FindByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	dto := toOrderDTO(o)
	return &dto, nil
}

func (s *OrderService) ListOrders(ctx context.Context, tenantID, userID string, page, limit int) ([]OrderDTO, int64, error) {
	orders, total, err := s.orders.ListByUser(ctx, tenantID, userID, page, limit)
	if err != nil {
		return nil, 0, err
	}
	dtos := make([]OrderDTO, len(orders))
	for i, o := range orders {
		dtos[i] = toOrderDTO(o)
	}
	return dtos, total, nil
}

// CancelOrder transitions a PENDING order to CANCELLED, e.g. when the
// client abandons checkout before a payment is created.
func (s *OrderService) CancelOrder(ctx context.Context, tenantID string, id uuid.UUID) (*OrderDTO, error) {
	var o *order.Order
	err := s.uow.Execute(ctx, func(ctx context.Context, repos TxRepos) error {
		var err error
		o, err = repos.Orders.FindByID(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if err := o.Cancel(); err != nil {
			return err
		}
		if err := repos.Orders.Update(ctx, o); err != nil {
			return err
		}
		event, err := newOutboxEvent(tenantID, "order", o.ID().String(), "order.cancelled", toOrderDTO(o))
		if err != nil {
			return err
		}
		return repos.Outbox.Insert(ctx, event)
	})
	if err != nil {
		return nil, err
	}
	dto := toOrderDTO(o)
	return &dto, nil
}

func toOrderDTO(o *order.Order) OrderDTO {
	items := make([]LineItemRequest, len(o.LineItems()))
	for i, li := range o.LineItems() {
		items[i] = LineItemRequest{ProductID: li.ProductID, Quantity: li.Quantity, UnitPrice: li.UnitPrice}
	}
	return OrderDTO{
		ID:          o.ID(),
		UserID:      o.UserID(),
		Currency:    o.Currency(),
		LineItems:   items,
		TotalAmount: o.TotalAmount(),
		Status:      string(o.Status()),
		Metadata:    o.Metadata(),
		CreatedAt:   o.CreatedAt(),
		UpdatedAt:   o.UpdatedAt(),
		PaidAt:      o.PaidAt(),
		CompletedAt: o.CompletedAt(),
	}
}
