package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/mmeshcher/comanda/internal/model"
)

// Tx описывает единицу работы над хранилищем. Методы Lock* блокируют строку
// до конца транзакции, поэтому проверка состояния и запись выполняются атомарно.
type Tx interface {
	NextOrderNumber(ctx context.Context, at time.Time) (string, error)
	NextAccountNumber(ctx context.Context, at time.Time) (string, error)

	LockTable(ctx context.Context, number int) (*model.Table, error)
	UpdateTableState(ctx context.Context, number int, state model.TableState) error

	// BillingAccountForTable возвращает счёт стола в статусе open или closed либо nil.
	BillingAccountForTable(ctx context.Context, table int) (*model.Account, error)
	LockAccount(ctx context.Context, id int64) (*model.Account, error)
	InsertAccount(ctx context.Context, a *model.Account) error
	UpdateAccount(ctx context.Context, a *model.Account) error
	// SumAccountOrders суммирует итоги неотменённых заказов счёта.
	SumAccountOrders(ctx context.Context, accountID int64) (int64, error)

	LockOrder(ctx context.Context, id int64) (*model.Order, error)
	InsertOrder(ctx context.Context, o *model.Order) error
	UpdateOrder(ctx context.Context, o *model.Order) error
	DeleteOrder(ctx context.Context, id int64) error
	InsertItem(ctx context.Context, item *model.OrderItem) error
	UpdateItem(ctx context.Context, item model.OrderItem) error
	DeleteItem(ctx context.Context, orderID, itemID int64) error
	AppendStatusChange(ctx context.Context, c model.StatusChange) error

	HasModifications(ctx context.Context, orderID int64, statuses ...model.ModificationStatus) (bool, error)
	InsertModification(ctx context.Context, m *model.ModificationRequest) error
	LockModification(ctx context.Context, id int64) (*model.ModificationRequest, error)
	UpdateModification(ctx context.Context, m *model.ModificationRequest) error
}

func formatNumber(prefix string, at time.Time, seq int64) string {
	return fmt.Sprintf("%s-%s-%04d", prefix, at.UTC().Format("20060102"), seq)
}

func notFound(what string, id any) error {
	return fmt.Errorf("%w: %s %v does not exist", model.ErrNotFound, what, id)
}
