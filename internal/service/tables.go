package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mmeshcher/comanda/internal/model"
	"github.com/mmeshcher/comanda/internal/validation"
)

// TableView описывает стол вместе с признаком доступности для нового заказа.
type TableView struct {
	model.Table
	Selectable bool
}

// IsTableSelectable сообщает, можно ли начать на столе новый счёт: у стола не должно
// быть счёта в статусе open или closed. Физическое состояние стола не учитывается.
func (s *Service) IsTableSelectable(ctx context.Context, number int) (bool, error) {
	if _, err := s.repo.GetTable(ctx, number); err != nil {
		return false, err
	}
	busy, err := s.repo.HasBillingAccount(ctx, number)
	if err != nil {
		return false, err
	}
	return !busy, nil
}

// ListTables возвращает столы зала с признаком доступности.
func (s *Service) ListTables(ctx context.Context) ([]TableView, error) {
	tables, err := s.repo.ListTables(ctx)
	if err != nil {
		return nil, err
	}

	billing, err := s.repo.ListAccounts(ctx, []model.AccountStatus{model.AccountOpen, model.AccountClosed})
	if err != nil {
		return nil, err
	}
	busy := make(map[int]struct{}, len(billing))
	for _, a := range billing {
		if a.TableNumber != nil {
			busy[*a.TableNumber] = struct{}{}
		}
	}

	res := make([]TableView, 0, len(tables))
	for _, t := range tables {
		_, taken := busy[t.Number]
		res = append(res, TableView{Table: t, Selectable: !taken})
	}
	return res, nil
}

// UpsertTable регистрирует стол или меняет его параметры. Доступно только менеджеру.
func (s *Service) UpsertTable(ctx context.Context, actor model.Actor, t model.Table) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	if actor.Role != model.RoleManager {
		return fmt.Errorf("%w: only a manager can change tables", model.ErrForbidden)
	}
	if t.Number <= 0 {
		return fmt.Errorf("%w: table number %d must be positive", model.ErrValidation, t.Number)
	}
	if t.Capacity <= 0 {
		return fmt.Errorf("%w: capacity %d must be positive", model.ErrValidation, t.Capacity)
	}
	if t.State == "" {
		t.State = model.TableAvailable
	}
	if !t.State.Valid() {
		return fmt.Errorf("%w: unknown table state %q", model.ErrValidation, t.State)
	}
	t.Location = strings.TrimSpace(t.Location)
	if err := validation.Text("location", t.Location); err != nil {
		return err
	}

	if err := s.repo.UpsertTable(ctx, t); err != nil {
		return err
	}

	s.logger.Info("table saved",
		zap.Int("table", t.Number),
		zap.String("state", string(t.State)),
		zap.String("by", actor.ID),
	)
	return nil
}
