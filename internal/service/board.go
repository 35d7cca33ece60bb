package service

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/comanda/internal/model"
	"github.com/mmeshcher/comanda/internal/urgency"
)

// Ticket описывает заказ на кухонном экране.
type Ticket struct {
	Order          model.Order
	ElapsedMinutes int
	Tier           urgency.Tier
	Alert          bool
}

// Board описывает состояние кухонного экрана на момент Now по часам сервера.
type Board struct {
	Now     time.Time
	Tickets []Ticket
}

// KitchenBoard возвращает активные заказы с уровнем срочности, старые первыми.
// Срочность считается от времени сервера, а не терминала.
func (s *Service) KitchenBoard(ctx context.Context) (*Board, error) {
	now, err := s.Now(ctx)
	if err != nil {
		return nil, err
	}

	orders, err := s.repo.ListOrders(ctx, model.ActiveOrderStatuses())
	if err != nil {
		return nil, err
	}
	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].CreatedAt.Before(orders[j].CreatedAt)
	})

	board := &Board{Now: now, Tickets: make([]Ticket, 0, len(orders))}
	for _, o := range orders {
		tier := s.settings.Thresholds.Tier(o.CreatedAt, now)
		board.Tickets = append(board.Tickets, Ticket{
			Order:          o,
			ElapsedMinutes: urgency.ElapsedMinutes(o.CreatedAt, now),
			Tier:           tier,
			Alert:          tier.Alert(),
		})
	}
	return board, nil
}

// StartSLAMonitor запускает фоновую проверку кухни: о каждом заказе, перешедшем
// в уровень critical, пишется одно предупреждение.
func (s *Service) StartSLAMonitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.checkSLA(ctx)
			}
		}
	}()
}

// checkSLA возвращает номера заказов, впервые достигших уровня critical.
func (s *Service) checkSLA(ctx context.Context) []string {
	board, err := s.KitchenBoard(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("sla check failed", zap.Error(err))
		}
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	active := make(map[int64]struct{}, len(board.Tickets))
	var breached []string
	for _, t := range board.Tickets {
		active[t.Order.ID] = struct{}{}
		if !t.Alert {
			continue
		}
		if _, seen := s.breached[t.Order.ID]; seen {
			continue
		}
		s.breached[t.Order.ID] = struct{}{}
		breached = append(breached, t.Order.Number)

		s.logger.Warn("sla breach",
			zap.String("order", t.Order.Number),
			zap.String("status", string(t.Order.Status)),
			zap.Int("elapsed_minutes", t.ElapsedMinutes),
			zap.String("waiter", t.Order.Waiter),
		)
	}

	for id := range s.breached {
		if _, ok := active[id]; !ok {
			delete(s.breached, id)
		}
	}
	return breached
}
