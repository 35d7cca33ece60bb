// Package service реализует бизнес-логику заказов, счетов и согласования изменений.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/comanda/internal/model"
	"github.com/mmeshcher/comanda/internal/repository"
	"github.com/mmeshcher/comanda/internal/urgency"
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	InTx(ctx context.Context, fn func(tx repository.Tx) error) error

	GetOrder(ctx context.Context, id int64) (*model.Order, error)
	ListOrders(ctx context.Context, statuses []model.OrderStatus) ([]model.Order, error)
	OrderHistory(ctx context.Context, orderID int64) ([]model.StatusChange, error)
	GetAccount(ctx context.Context, id int64) (*model.Account, error)
	ListAccounts(ctx context.Context, statuses []model.AccountStatus) ([]model.Account, error)
	HasBillingAccount(ctx context.Context, table int) (bool, error)
	GetModification(ctx context.Context, id int64) (*model.ModificationRequest, error)
	ListPendingModifications(ctx context.Context, filter model.ModificationFilter) ([]model.ModificationRequest, error)
	GetTable(ctx context.Context, number int) (*model.Table, error)
	ListTables(ctx context.Context) ([]model.Table, error)
	UpsertTable(ctx context.Context, t model.Table) error
}

// Clock возвращает время, общее для всех терминалов.
type Clock interface {
	Now(ctx context.Context) (time.Time, error)
}

// Notifier оповещает терминалы о зафиксированных изменениях.
type Notifier interface {
	Notify(ctx context.Context, e model.Event)
}

// Settings содержит настраиваемые правила сервиса.
type Settings struct {
	Thresholds     urgency.Thresholds
	PaymentMethods []string
}

// Service содержит бизнес-логику сервиса заказов.
type Service struct {
	repo     Repository
	clock    Clock
	notifier Notifier
	logger   *zap.Logger
	settings Settings

	mu       sync.Mutex
	breached map[int64]struct{}
}

// NewService создаёт сервис. notifier может быть nil.
func NewService(repo Repository, clk Clock, notifier Notifier, logger *zap.Logger, settings Settings) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if settings.Thresholds == (urgency.Thresholds{}) {
		settings.Thresholds = urgency.DefaultThresholds()
	}
	return &Service{
		repo:     repo,
		clock:    clk,
		notifier: notifier,
		logger:   logger,
		settings: settings,
		breached: make(map[int64]struct{}),
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// Now возвращает серверное время для синхронизации терминалов.
func (s *Service) Now(ctx context.Context) (time.Time, error) {
	now, err := s.clock.Now(ctx)
	if err != nil {
		return time.Time{}, fmt.Errorf("clock: %w", err)
	}
	return now, nil
}

func (s *Service) notify(ctx context.Context, e model.Event) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(context.WithoutCancel(ctx), e)
}

func requireActor(actor model.Actor) error {
	if actor.ID == "" {
		return fmt.Errorf("%w: requester identity is required", model.ErrValidation)
	}
	if !actor.Role.Valid() {
		return fmt.Errorf("%w: unknown requester role %q", model.ErrValidation, actor.Role)
	}
	return nil
}

// resumAccount пересчитывает итог счёта по всем неотменённым заказам.
func resumAccount(ctx context.Context, tx repository.Tx, acc *model.Account) error {
	total, err := tx.SumAccountOrders(ctx, acc.ID)
	if err != nil {
		return err
	}
	acc.Total = total
	return tx.UpdateAccount(ctx, acc)
}
