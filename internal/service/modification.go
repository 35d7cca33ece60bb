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

// ModificationInput описывает предложение изменить или удалить заказ.
// Для edit Proposed содержит полный новый список позиций: позиции с ItemID
// сопоставляются с текущими, позиции без ItemID добавляются.
type ModificationInput struct {
	Kind     model.ModificationKind
	Proposed []model.ItemSnapshot
	Summary  string
}

// RequestModification фиксирует запрос на изменение заказа вместе с разницей позиций,
// вычисленной в момент запроса. На заказ может быть не более одного ожидающего запроса.
func (s *Service) RequestModification(ctx context.Context, actor model.Actor, orderID int64, in ModificationInput) (*model.ModificationRequest, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if !in.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown modification kind %q", model.ErrValidation, in.Kind)
	}
	if in.Kind == model.ModificationEdit {
		if err := validation.Items(in.Proposed); err != nil {
			return nil, err
		}
	}
	if err := validation.Text("summary", in.Summary); err != nil {
		return nil, err
	}

	now, err := s.Now(ctx)
	if err != nil {
		return nil, err
	}

	var req model.ModificationRequest
	err = s.repo.InTx(ctx, func(tx repository.Tx) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if o.Status == model.OrderCancelled {
			return fmt.Errorf("%w: order %s is cancelled", model.ErrInvalidTransition, o.Number)
		}

		acc, err := tx.LockAccount(ctx, o.AccountID)
		if err != nil {
			return err
		}
		if acc.Status == model.AccountCollected {
			return fmt.Errorf("%w: account %s is already collected", model.ErrInvalidTransition, acc.Number)
		}

		pending, err := tx.HasModifications(ctx, o.ID, model.ModificationPending)
		if err != nil {
			return err
		}
		if pending {
			return fmt.Errorf("%w: order %s already has a pending modification request", model.ErrConflict, o.Number)
		}

		var diff model.Diff
		if in.Kind == model.ModificationDelete {
			diff = removalDiff(o.Items)
		} else {
			diff, err = computeDiff(o.Items, in.Proposed)
			if err != nil {
				return fmt.Errorf("order %s: %w", o.Number, err)
			}
		}

		id := o.ID
		req = model.ModificationRequest{
			Kind:        in.Kind,
			OrderID:     &id,
			OrderNumber: o.Number,
			AccountID:   o.AccountID,
			Waiter:      o.Waiter,
			RequestedBy: actor.ID,
			Summary:     strings.TrimSpace(in.Summary),
			Diff:        diff,
			Status:      model.ModificationPending,
			RequestedAt: now,
		}
		return tx.InsertModification(ctx, &req)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("modification requested",
		zap.Int64("request_id", req.ID),
		zap.String("kind", string(req.Kind)),
		zap.String("order", req.OrderNumber),
		zap.String("by", actor.ID),
		zap.Int("added", len(req.Diff.Added)),
		zap.Int("removed", len(req.Diff.Removed)),
		zap.Int("modified", len(req.Diff.Modified)),
	)
	s.notify(ctx, model.Event{
		Type:           model.EventModificationRequested,
		OrderID:        *req.OrderID,
		OrderNumber:    req.OrderNumber,
		AccountID:      req.AccountID,
		ModificationID: req.ID,
		NewStatus:      string(req.Status),
		ChangedBy:      actor.ID,
		Timestamp:      now,
	})

	return &req, nil
}

// ResolveModification одобряет или отклоняет ожидающий запрос. Решение принимает
// официант заказа либо менеджер. Одобрение применяет сохранённую разницу
// и пересчитывает итоги заказа и счёта; отклонение заказ не меняет.
func (s *Service) ResolveModification(ctx context.Context, actor model.Actor, requestID int64, decision model.Decision) (*model.ModificationRequest, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if !decision.Valid() {
		return nil, fmt.Errorf("%w: unknown decision %q", model.ErrValidation, decision)
	}

	now, err := s.Now(ctx)
	if err != nil {
		return nil, err
	}

	var req model.ModificationRequest
	err = s.repo.InTx(ctx, func(tx repository.Tx) error {
		m, err := tx.LockModification(ctx, requestID)
		if err != nil {
			return err
		}
		if m.Status != model.ModificationPending {
			return fmt.Errorf("%w: modification request %d is already %s", model.ErrInvalidTransition, m.ID, m.Status)
		}
		if m.Waiter != actor.ID && actor.Role != model.RoleManager {
			return fmt.Errorf("%w: only waiter %s or a manager can resolve the request for order %s",
				model.ErrForbidden, m.Waiter, m.OrderNumber)
		}

		if decision == model.DecisionApprove {
			if err := applyModification(ctx, tx, m, now); err != nil {
				return err
			}
			m.Status = model.ModificationApproved
		} else {
			m.Status = model.ModificationRejected
		}

		m.ResolvedBy = actor.ID
		m.ResolvedAt = &now
		if err := tx.UpdateModification(ctx, m); err != nil {
			return err
		}
		req = *m
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("modification resolved",
		zap.Int64("request_id", req.ID),
		zap.String("order", req.OrderNumber),
		zap.String("status", string(req.Status)),
		zap.String("by", actor.ID),
	)
	e := model.Event{
		Type:           model.EventModificationResolved,
		OrderNumber:    req.OrderNumber,
		AccountID:      req.AccountID,
		ModificationID: req.ID,
		OldStatus:      string(model.ModificationPending),
		NewStatus:      string(req.Status),
		ChangedBy:      actor.ID,
		Timestamp:      now,
	}
	if req.OrderID != nil {
		e.OrderID = *req.OrderID
	}
	s.notify(ctx, e)

	return &req, nil
}

// applyModification применяет одобренный запрос к заказу и пересчитывает счёт.
func applyModification(ctx context.Context, tx repository.Tx, m *model.ModificationRequest, now time.Time) error {
	if m.OrderID == nil {
		return fmt.Errorf("%w: order %s no longer exists", model.ErrInvalidTransition, m.OrderNumber)
	}

	o, err := tx.LockOrder(ctx, *m.OrderID)
	if err != nil {
		return err
	}
	if o.Status == model.OrderCancelled {
		return fmt.Errorf("%w: order %s was cancelled after the request", model.ErrInvalidTransition, o.Number)
	}

	acc, err := tx.LockAccount(ctx, o.AccountID)
	if err != nil {
		return err
	}
	if acc.Status == model.AccountCollected {
		return fmt.Errorf("%w: account %s is already collected", model.ErrInvalidTransition, acc.Number)
	}

	if m.Kind == model.ModificationDelete {
		if err := tx.DeleteOrder(ctx, o.ID); err != nil {
			return err
		}
		m.OrderID = nil
		return resumAccount(ctx, tx, acc)
	}

	items, err := applyDiff(ctx, tx, o, m.Diff)
	if err != nil {
		return err
	}

	o.Items = items
	o.Total = model.ItemsTotal(items)
	o.UpdatedAt = now
	if err := tx.UpdateOrder(ctx, o); err != nil {
		return err
	}
	return resumAccount(ctx, tx, acc)
}

// applyDiff записывает разницу в позиции заказа и возвращает новый список позиций.
// Разница должна совпадать с текущими позициями: иначе заказ изменился после запроса.
func applyDiff(ctx context.Context, tx repository.Tx, o *model.Order, d model.Diff) ([]model.OrderItem, error) {
	current := make(map[int64]model.OrderItem, len(o.Items))
	for _, it := range o.Items {
		current[it.ID] = it
	}

	for _, r := range d.Removed {
		it, ok := current[r.ItemID]
		if !ok || it.Snapshot() != r {
			return nil, fmt.Errorf("%w: item %d of order %s changed since the request", model.ErrConflict, r.ItemID, o.Number)
		}
		if err := tx.DeleteItem(ctx, o.ID, it.ID); err != nil {
			return nil, err
		}
		delete(current, it.ID)
	}

	for _, c := range d.Modified {
		it, ok := current[c.ItemID]
		if !ok || it.Snapshot() != c.Before {
			return nil, fmt.Errorf("%w: item %d of order %s changed since the request", model.ErrConflict, c.ItemID, o.Number)
		}
		updated := itemFromSnapshot(o.ID, c.After)
		updated.ID = it.ID
		if err := tx.UpdateItem(ctx, updated); err != nil {
			return nil, err
		}
		current[it.ID] = updated
	}

	items := make([]model.OrderItem, 0, len(current)+len(d.Added))
	for _, it := range o.Items {
		if kept, ok := current[it.ID]; ok {
			items = append(items, kept)
		}
	}
	for _, a := range d.Added {
		it := itemFromSnapshot(o.ID, a)
		if err := tx.InsertItem(ctx, &it); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, nil
}

// computeDiff сопоставляет предложенный список позиций с текущим по ItemID.
func computeDiff(current []model.OrderItem, proposed []model.ItemSnapshot) (model.Diff, error) {
	byID := make(map[int64]model.OrderItem, len(current))
	for _, it := range current {
		byID[it.ID] = it
	}

	var d model.Diff
	seen := make(map[int64]struct{}, len(proposed))
	for _, p := range proposed {
		p.Name = strings.TrimSpace(p.Name)
		if p.ItemID == 0 {
			d.Added = append(d.Added, p)
			continue
		}

		cur, ok := byID[p.ItemID]
		if !ok {
			return model.Diff{}, fmt.Errorf("%w: item %d is not part of the order", model.ErrValidation, p.ItemID)
		}
		if _, dup := seen[p.ItemID]; dup {
			return model.Diff{}, fmt.Errorf("%w: item %d is listed twice", model.ErrValidation, p.ItemID)
		}
		seen[p.ItemID] = struct{}{}

		if before := cur.Snapshot(); before != p {
			d.Modified = append(d.Modified, model.ItemChange{ItemID: p.ItemID, Before: before, After: p})
		}
	}

	for _, it := range current {
		if _, ok := seen[it.ID]; !ok {
			d.Removed = append(d.Removed, it.Snapshot())
		}
	}
	return d, nil
}

func removalDiff(items []model.OrderItem) model.Diff {
	var d model.Diff
	for _, it := range items {
		d.Removed = append(d.Removed, it.Snapshot())
	}
	return d
}

func itemFromSnapshot(orderID int64, s model.ItemSnapshot) model.OrderItem {
	return model.OrderItem{
		OrderID:     orderID,
		Name:        s.Name,
		Quantity:    s.Quantity,
		UnitPrice:   s.UnitPrice,
		Restriction: s.Restriction,
		Note:        s.Note,
	}
}

// GetModification возвращает запрос на изменение вместе с сохранённой разницей.
func (s *Service) GetModification(ctx context.Context, id int64) (*model.ModificationRequest, error) {
	return s.repo.GetModification(ctx, id)
}

// ListPendingModifications возвращает ожидающие решения запросы официанта и (или) счёта.
func (s *Service) ListPendingModifications(ctx context.Context, filter model.ModificationFilter) ([]model.ModificationRequest, error) {
	return s.repo.ListPendingModifications(ctx, filter)
}
