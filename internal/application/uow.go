package application

import (
	"context"

	"github.com/fluxpay/engine/internal/domain/credit"
	"github.com/fluxpay/engine/internal/domain/order"
	"github.com/fluxpay/engine/internal/domain/payment"
	"github.com/fluxpay/engine/internal/domain/refund"
	"github.com/fluxpay/engine/internal/outbox"
)

// TxRepos bundles the transaction-scoped repositories a unit of work hands
// to its callback, so an aggregate's state change and its outbox row are
// always written atomically (spec §4.2: "every committed state change has
// exactly one corresponding outbox row").
type TxRepos struct {
	Orders   order.Repository
	Payments payment.Repository
	Credits  credit.Repository
	Refunds  refund.Repository
	Outbox   outbox.Repository
}

// UnitOfWork runs fn inside a single database transaction. The concrete
// implementation lives in internal/repository, keeping this package free
// of a GORM dependency.
type UnitOfWork interface {
	Execute(ctx context.Context, fn func(ctx context.Context, repos TxRepos) error) error
}
