package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mmeshcher/comanda/internal/model"
	"github.com/mmeshcher/comanda/internal/repository"
	"github.com/mmeshcher/comanda/internal/validation"
)

// CloseAccount закрывает счёт для выставления: новые заказы в него больше не попадают.
// Готовность кухни не проверяется.
func (s *Service) CloseAccount(ctx context.Context, actor model.Actor, accountID int64) (*model.Account, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}

	now, err := s.Now(ctx)
	if err != nil {
		return nil, err
	}

	var acc model.Account
	err = s.repo.InTx(ctx, func(tx repository.Tx) error {
		a, err := tx.LockAccount(ctx, accountID)
		if err != nil {
			return err
		}
		if !a.Status.CanTransitionTo(model.AccountClosed) {
			return fmt.Errorf("%w: account %s is already %s", model.ErrInvalidTransition, a.Number, a.Status)
		}

		a.Status = model.AccountClosed
		a.ClosedAt = &now
		if err := tx.UpdateAccount(ctx, a); err != nil {
			return err
		}
		acc = *a
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("account closed",
		zap.String("account", acc.Number),
		zap.Int64("total", acc.Total),
		zap.String("by", actor.ID),
	)
	s.notify(ctx, model.Event{
		Type:      model.EventAccountClosed,
		AccountID: acc.ID,
		OldStatus: string(model.AccountOpen),
		NewStatus: string(acc.Status),
		ChangedBy: actor.ID,
		Timestamp: now,
	})

	return &acc, nil
}

// CollectAccount фиксирует оплату закрытого счёта. Полученная сумма не сверяется
// с итогом счёта: разница означает чаевые или округление. Статус collected терминальный.
func (s *Service) CollectAccount(ctx context.Context, actor model.Actor, accountID int64, method string, amount int64) (*model.Account, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := validation.PaymentMethod(method, s.settings.PaymentMethods); err != nil {
		return nil, err
	}
	if amount < 0 {
		return nil, fmt.Errorf("%w: collected amount %d must not be negative", model.ErrValidation, amount)
	}

	// Стол блокируется раньше счёта, как и при создании заказа.
	current, err := s.repo.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	now, err := s.Now(ctx)
	if err != nil {
		return nil, err
	}

	var acc model.Account
	err = s.repo.InTx(ctx, func(tx repository.Tx) error {
		var table *model.Table
		if current.TableNumber != nil {
			table, err = tx.LockTable(ctx, *current.TableNumber)
			if err != nil {
				return err
			}
		}

		a, err := tx.LockAccount(ctx, accountID)
		if err != nil {
			return err
		}
		if a.Status != model.AccountClosed {
			if a.Status == model.AccountOpen {
				return fmt.Errorf("%w: account %s is still open; close it before collecting", model.ErrInvalidTransition, a.Number)
			}
			return fmt.Errorf("%w: account %s is already collected", model.ErrInvalidTransition, a.Number)
		}

		a.Status = model.AccountCollected
		a.PaymentMethod = method
		a.AmountCollected = &amount
		a.CollectedAt = &now
		if err := tx.UpdateAccount(ctx, a); err != nil {
			return err
		}

		if table != nil && table.State == model.TableOccupied {
			if err := tx.UpdateTableState(ctx, table.Number, model.TableAvailable); err != nil {
				return err
			}
		}

		acc = *a
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("account collected",
		zap.String("account", acc.Number),
		zap.Int64("total", acc.Total),
		zap.Int64("collected", amount),
		zap.String("method", method),
		zap.String("by", actor.ID),
	)
	s.notify(ctx, model.Event{
		Type:      model.EventAccountCollected,
		AccountID: acc.ID,
		OldStatus: string(model.AccountClosed),
		NewStatus: string(acc.Status),
		ChangedBy: actor.ID,
		Timestamp: now,
	})

	return &acc, nil
}

// GetAccount возвращает счёт с заказами и текущим итогом.
func (s *Service) GetAccount(ctx context.Context, id int64) (*model.Account, error) {
	return s.repo.GetAccount(ctx, id)
}

// ListAccounts возвращает счета в указанных статусах.
func (s *Service) ListAccounts(ctx context.Context, statuses []model.AccountStatus) ([]model.Account, error) {
	for _, st := range statuses {
		if !st.Valid() {
			return nil, fmt.Errorf("%w: unknown account status %q", model.ErrValidation, st)
		}
	}
	return s.repo.ListAccounts(ctx, statuses)
}
