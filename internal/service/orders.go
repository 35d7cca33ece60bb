package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/comanda/internal/model"
	"github.com/mmeshcher/comanda/internal/repository"
	"github.com/mmeshcher/comanda/internal/validation"
)

// CreateOrderInput описывает новый заказ. TableNumber == nil означает заказ на вынос;
// AccountID позволяет добавить заказ на вынос в уже открытый счёт.
type CreateOrderInput struct {
	TableNumber  *int
	AccountID    *int64
	PartySize    int
	Observations string
	Items        []model.ItemSnapshot
}

// CreateOrder создаёт заказ в статусе pending и открывает счёт стола либо добавляет заказ в открытый.
func (s *Service) CreateOrder(ctx context.Context, actor model.Actor, in CreateOrderInput) (*model.Order, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := validation.Items(in.Items); err != nil {
		return nil, err
	}
	if in.PartySize < 0 {
		return nil, fmt.Errorf("%w: party size %d must not be negative", model.ErrValidation, in.PartySize)
	}
	if in.TableNumber != nil && in.AccountID != nil {
		return nil, fmt.Errorf("%w: a table order cannot target a take-out account", model.ErrValidation)
	}
	if err := validation.Text("observations", in.Observations); err != nil {
		return nil, err
	}

	now, err := s.Now(ctx)
	if err != nil {
		return nil, err
	}

	var order model.Order
	err = s.repo.InTx(ctx, func(tx repository.Tx) error {
		acc, err := s.accountForNewOrder(ctx, tx, actor, in, now)
		if err != nil {
			return err
		}

		number, err := tx.NextOrderNumber(ctx, now)
		if err != nil {
			return err
		}

		items := make([]model.OrderItem, 0, len(in.Items))
		for _, it := range in.Items {
			items = append(items, model.OrderItem{
				Name:        strings.TrimSpace(it.Name),
				Quantity:    it.Quantity,
				UnitPrice:   it.UnitPrice,
				Restriction: it.Restriction,
				Note:        it.Note,
			})
		}

		order = model.Order{
			Number:       number,
			TableNumber:  in.TableNumber,
			Waiter:       actor.ID,
			PartySize:    in.PartySize,
			Takeout:      in.TableNumber == nil,
			Observations: in.Observations,
			Status:       model.OrderPending,
			Total:        model.ItemsTotal(items),
			AccountID:    acc.ID,
			CreatedAt:    now,
			UpdatedAt:    now,
			Items:        items,
		}
		if err := tx.InsertOrder(ctx, &order); err != nil {
			return err
		}

		if err := tx.AppendStatusChange(ctx, model.StatusChange{
			OrderID: order.ID, Status: order.Status, ChangedBy: actor.ID, ChangedAt: now,
		}); err != nil {
			return err
		}

		return resumAccount(ctx, tx, acc)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("order created",
		zap.String("order", order.Number),
		zap.Int64("account_id", order.AccountID),
		zap.String("waiter", actor.ID),
		zap.Int64("total", order.Total),
	)
	s.notify(ctx, model.Event{
		Type:        model.EventOrderCreated,
		OrderID:     order.ID,
		OrderNumber: order.Number,
		AccountID:   order.AccountID,
		NewStatus:   string(order.Status),
		ChangedBy:   actor.ID,
		Timestamp:   now,
	})

	return &order, nil
}

// accountForNewOrder находит или открывает счёт, к которому относится новый заказ.
func (s *Service) accountForNewOrder(ctx context.Context, tx repository.Tx, actor model.Actor, in CreateOrderInput, now time.Time) (*model.Account, error) {
	switch {
	case in.TableNumber != nil:
		table, err := tx.LockTable(ctx, *in.TableNumber)
		if err != nil {
			return nil, err
		}

		acc, err := tx.BillingAccountForTable(ctx, table.Number)
		if err != nil {
			return nil, err
		}
		if acc != nil {
			if acc.Status != model.AccountOpen {
				return nil, fmt.Errorf("%w: table %d already has account %s %s for billing; collect it before taking new orders",
					model.ErrConflict, table.Number, acc.Number, acc.Status)
			}
			return acc, nil
		}

		acc, err = openAccount(ctx, tx, actor, in.TableNumber, now)
		if err != nil {
			return nil, err
		}
		if table.State == model.TableAvailable {
			if err := tx.UpdateTableState(ctx, table.Number, model.TableOccupied); err != nil {
				return nil, err
			}
		}
		return acc, nil

	case in.AccountID != nil:
		acc, err := tx.LockAccount(ctx, *in.AccountID)
		if err != nil {
			return nil, err
		}
		if !acc.Takeout {
			return nil, fmt.Errorf("%w: account %s belongs to a table, not to a take-out ticket", model.ErrValidation, acc.Number)
		}
		if acc.Status != model.AccountOpen {
			return nil, fmt.Errorf("%w: take-out account %s is %s and accepts no more orders",
				model.ErrInvalidTransition, acc.Number, acc.Status)
		}
		return acc, nil

	default:
		return openAccount(ctx, tx, actor, nil, now)
	}
}

func openAccount(ctx context.Context, tx repository.Tx, actor model.Actor, table *int, now time.Time) (*model.Account, error) {
	number, err := tx.NextAccountNumber(ctx, now)
	if err != nil {
		return nil, err
	}

	acc := &model.Account{
		Number:      number,
		TableNumber: table,
		Takeout:     table == nil,
		Waiter:      actor.ID,
		Status:      model.AccountOpen,
		OpenedAt:    now,
	}
	if err := tx.InsertAccount(ctx, acc); err != nil {
		return nil, err
	}
	return acc, nil
}

// TransitionOrder переводит заказ в следующий статус. Разрешены только рёбра
// pending → preparing → ready → delivered и отмена из любого нетерминального статуса.
func (s *Service) TransitionOrder(ctx context.Context, actor model.Actor, orderID int64, next model.OrderStatus) (*model.Order, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if !next.Valid() {
		return nil, fmt.Errorf("%w: unknown order status %q", model.ErrValidation, next)
	}

	now, err := s.Now(ctx)
	if err != nil {
		return nil, err
	}

	var (
		order model.Order
		prev  model.OrderStatus
	)
	err = s.repo.InTx(ctx, func(tx repository.Tx) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		prev = o.Status

		if o.Status.Terminal() {
			return fmt.Errorf("%w: order %s is already %s",
				model.ErrInvalidTransition, o.Number, o.Status)
		}
		if !o.Status.CanTransitionTo(next) {
			return fmt.Errorf("%w: order %s cannot move from %s to %s",
				model.ErrInvalidTransition, o.Number, o.Status, next)
		}

		var acc *model.Account
		if next == model.OrderCancelled {
			acc, err = tx.LockAccount(ctx, o.AccountID)
			if err != nil {
				return err
			}
			if acc.Status == model.AccountCollected {
				return fmt.Errorf("%w: order %s belongs to account %s which is already collected",
					model.ErrInvalidTransition, o.Number, acc.Number)
			}
		}

		o.Status = next
		o.UpdatedAt = now
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}
		if err := tx.AppendStatusChange(ctx, model.StatusChange{
			OrderID: o.ID, Status: next, ChangedBy: actor.ID, ChangedAt: now,
		}); err != nil {
			return err
		}

		if acc != nil {
			if err := resumAccount(ctx, tx, acc); err != nil {
				return err
			}
		}

		order = *o
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("order status changed",
		zap.String("order", order.Number),
		zap.String("from", string(prev)),
		zap.String("to", string(next)),
		zap.String("by", actor.ID),
	)
	s.notify(ctx, model.Event{
		Type:        model.EventOrderStatusChanged,
		OrderID:     order.ID,
		OrderNumber: order.Number,
		AccountID:   order.AccountID,
		OldStatus:   string(prev),
		NewStatus:   string(next),
		ChangedBy:   actor.ID,
		Timestamp:   now,
	})

	return &order, nil
}

// DeleteOrder удаляет заказ напрямую. Допустимо только для заказа в статусе pending,
// у которого нет ни ожидающих, ни одобренных запросов на изменение; удалять может
// официант заказа или менеджер. Во всех остальных случаях нужен запрос на удаление.
func (s *Service) DeleteOrder(ctx context.Context, actor model.Actor, orderID int64) error {
	if err := requireActor(actor); err != nil {
		return err
	}

	now, err := s.Now(ctx)
	if err != nil {
		return err
	}

	var order model.Order
	err = s.repo.InTx(ctx, func(tx repository.Tx) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if o.Waiter != actor.ID && actor.Role != model.RoleManager {
			return fmt.Errorf("%w: order %s belongs to waiter %s; request a deletion instead",
				model.ErrForbidden, o.Number, o.Waiter)
		}
		if o.Status != model.OrderPending {
			return fmt.Errorf("%w: order %s is %s; only pending orders can be deleted directly, request a deletion instead",
				model.ErrInvalidTransition, o.Number, o.Status)
		}

		touched, err := tx.HasModifications(ctx, o.ID, model.ModificationPending, model.ModificationApproved)
		if err != nil {
			return err
		}
		if touched {
			return fmt.Errorf("%w: order %s has modification requests; it can only be removed through a deletion request",
				model.ErrInvalidTransition, o.Number)
		}

		acc, err := tx.LockAccount(ctx, o.AccountID)
		if err != nil {
			return err
		}
		if acc.Status == model.AccountCollected {
			return fmt.Errorf("%w: account %s is already collected", model.ErrInvalidTransition, acc.Number)
		}

		if err := tx.DeleteOrder(ctx, o.ID); err != nil {
			return err
		}

		order = *o
		return resumAccount(ctx, tx, acc)
	})
	if err != nil {
		return err
	}

	s.logger.Info("order deleted", zap.String("order", order.Number), zap.String("by", actor.ID))
	s.notify(ctx, model.Event{
		Type:        model.EventOrderDeleted,
		OrderID:     order.ID,
		OrderNumber: order.Number,
		AccountID:   order.AccountID,
		OldStatus:   string(order.Status),
		ChangedBy:   actor.ID,
		Timestamp:   now,
	})
	return nil
}

// GetOrder возвращает заказ с позициями.
func (s *Service) GetOrder(ctx context.Context, id int64) (*model.Order, error) {
	return s.repo.GetOrder(ctx, id)
}

// ListOrders возвращает заказы в указанных статусах.
func (s *Service) ListOrders(ctx context.Context, statuses []model.OrderStatus) ([]model.Order, error) {
	for _, st := range statuses {
		if !st.Valid() {
			return nil, fmt.Errorf("%w: unknown order status %q", model.ErrValidation, st)
		}
	}
	return s.repo.ListOrders(ctx, statuses)
}

// OrderHistory возвращает журнал смены статусов заказа.
func (s *Service) OrderHistory(ctx context.Context, orderID int64) ([]model.StatusChange, error) {
	if _, err := s.repo.GetOrder(ctx, orderID); err != nil {
		return nil, err
	}
	return s.repo.OrderHistory(ctx, orderID)
}
