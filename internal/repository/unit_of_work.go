package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/fluxpay/engine/internal/application"
)

// GormUnitOfWork is the GORM-backed implementation of application.UnitOfWork,
// grounded on the gorm.DB.Transaction pattern already used by
// CreditRepository.Update, OutboxRepository.ClaimBatch, and
// SagaRepository.ClaimNext/Create.
type GormUnitOfWork struct {
	db *gorm.DB
}

func NewGormUnitOfWork(db *gorm.DB) *GormUnitOfWork {
	return &GormUnitOfWork{db: db}
}

func (u *GormUnitOfWork) Execute(ctx context.Context, fn func(ctx context.Context, repos application.TxRepos) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repos := application.TxRepos{
			Orders:   NewOrderRepository(tx),
			Payments: NewPaymentRepository(tx),
			Credits:  NewCreditRepository(tx),
			Refunds:  NewRefundRepository(tx),
			Outbox:   NewOutboxRepository(tx),
		}
		return fn(ctx, repos)
	})
}
