package service

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/comanda/internal/clock"
	"github.com/mmeshcher/comanda/internal/model"
	"github.com/mmeshcher/comanda/internal/repository"
	"github.com/mmeshcher/comanda/internal/urgency"
)

var (
	t0 = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	waiter  = model.Actor{ID: "ana", Role: model.RoleWaiter}
	waiter2 = model.Actor{ID: "luis", Role: model.RoleWaiter}
	cashier = model.Actor{ID: "caja-1", Role: model.RoleCashier}
	kitchen = model.Actor{ID: "cocina", Role: model.RoleKitchen}
	manager = model.Actor{ID: "marta", Role: model.RoleManager}
)

type recNotifier struct {
	mu     sync.Mutex
	events []model.Event
}

func (n *recNotifier) Notify(_ context.Context, e model.Event) {
	n.mu.Lock()
	n.events = append(n.events, e)
	n.mu.Unlock()
}

func (n *recNotifier) types() []model.EventType {
	n.mu.Lock()
	defer n.mu.Unlock()
	res := make([]model.EventType, 0, len(n.events))
	for _, e := range n.events {
		res = append(res, e.Type)
	}
	return res
}

type fixture struct {
	svc   *Service
	repo  *repository.MemoryRepository
	clk   *clock.Fixed
	notes *recNotifier
}

func newFixture(t *testing.T, logger *zap.Logger) *fixture {
	t.Helper()

	repo := repository.NewMemoryRepository()
	ctx := context.Background()
	require.NoError(t, repo.UpsertTable(ctx, model.Table{Number: 1, Capacity: 4, Location: "terraza", State: model.TableAvailable}))
	require.NoError(t, repo.UpsertTable(ctx, model.Table{Number: 2, Capacity: 2, Location: "salón", State: model.TableAvailable}))
	require.NoError(t, repo.UpsertTable(ctx, model.Table{Number: 3, Capacity: 6, Location: "salón", State: model.TableBlocked}))

	if logger == nil {
		logger = zaptest.NewLogger(t)
	}
	clk := clock.NewFixed(t0)
	notes := &recNotifier{}
	svc := NewService(repo, clk, notes, logger, Settings{PaymentMethods: []string{"cash", "card"}})
	return &fixture{svc: svc, repo: repo, clk: clk, notes: notes}
}

func tableNo(n int) *int { return &n }

func scenarioItems() []model.ItemSnapshot {
	return []model.ItemSnapshot{
		{Name: "Taco al pastor", Quantity: 2, UnitPrice: 850},
		{Name: "Enchiladas", Quantity: 1, UnitPrice: 1200, Restriction: "sin cebolla"},
	}
}

func (f *fixture) createTableOrder(t *testing.T, table int) *model.Order {
	t.Helper()
	o, err := f.svc.CreateOrder(context.Background(), waiter, CreateOrderInput{
		TableNumber: tableNo(table),
		PartySize:   2,
		Items:       scenarioItems(),
	})
	require.NoError(t, err)
	return o
}

// requireTotals проверяет, что итог каждого заказа равен сумме позиций,
// а итог счёта равен сумме неотменённых заказов.
func requireTotals(t *testing.T, svc *Service, accountID int64) *model.Account {
	t.Helper()

	acc, err := svc.GetAccount(context.Background(), accountID)
	require.NoError(t, err)

	var sum int64
	for _, o := range acc.Orders {
		require.Equal(t, model.ItemsTotal(o.Items), o.Total, "order %s total", o.Number)
		if o.Status != model.OrderCancelled {
			sum += o.Total
		}
	}
	require.Equal(t, sum, acc.Total, "account %s total", acc.Number)
	return acc
}

func TestCreateOrder_OpensAccountWithTotal(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	o := f.createTableOrder(t, 1)

	assert.Equal(t, int64(2900), o.Total)
	assert.Equal(t, model.OrderPending, o.Status)
	assert.Equal(t, "ORD-20260314-0001", o.Number)
	assert.Equal(t, waiter.ID, o.Waiter)
	assert.Equal(t, t0, o.CreatedAt)
	assert.False(t, o.Takeout)

	acc := requireTotals(t, f.svc, o.AccountID)
	assert.Equal(t, model.AccountOpen, acc.Status)
	assert.Equal(t, int64(2900), acc.Total)
	assert.Equal(t, "ACC-20260314-0001", acc.Number)

	tbl, err := f.repo.GetTable(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, model.TableOccupied, tbl.State)

	selectable, err := f.svc.IsTableSelectable(ctx, 1)
	require.NoError(t, err)
	assert.False(t, selectable)

	history, err := f.svc.OrderHistory(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, model.OrderPending, history[0].Status)

	assert.Equal(t, []model.EventType{model.EventOrderCreated}, f.notes.types())
}

func TestCreateOrder_SecondOrderJoinsOpenAccount(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	first := f.createTableOrder(t, 1)
	second, err := f.svc.CreateOrder(ctx, waiter2, CreateOrderInput{
		TableNumber: tableNo(1),
		Items:       []model.ItemSnapshot{{Name: "Flan", Quantity: 2, UnitPrice: 450}},
	})
	require.NoError(t, err)

	assert.Equal(t, first.AccountID, second.AccountID)
	assert.Equal(t, "ORD-20260314-0002", second.Number)

	acc := requireTotals(t, f.svc, first.AccountID)
	assert.Equal(t, int64(3800), acc.Total)
	assert.Len(t, acc.Orders, 2)
}

func TestCreateOrder_ClosedAccountBlocksTable(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	o := f.createTableOrder(t, 1)
	_, err := f.svc.CloseAccount(ctx, cashier, o.AccountID)
	require.NoError(t, err)

	_, err = f.svc.CreateOrder(ctx, waiter, CreateOrderInput{TableNumber: tableNo(1), Items: scenarioItems()})
	require.ErrorIs(t, err, model.ErrConflict)
	assert.Contains(t, err.Error(), "table 1")

	selectable, err := f.svc.IsTableSelectable(ctx, 1)
	require.NoError(t, err)
	assert.False(t, selectable)
}

func TestCreateOrder_Validation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	tests := []struct {
		name  string
		actor model.Actor
		in    CreateOrderInput
		want  error
	}{
		{
			name:  "no items",
			actor: waiter,
			in:    CreateOrderInput{TableNumber: tableNo(1)},
			want:  model.ErrValidation,
		},
		{
			name:  "zero quantity",
			actor: waiter,
			in:    CreateOrderInput{TableNumber: tableNo(1), Items: []model.ItemSnapshot{{Name: "Taco", Quantity: 0, UnitPrice: 100}}},
			want:  model.ErrValidation,
		},
		{
			name:  "negative price",
			actor: waiter,
			in:    CreateOrderInput{TableNumber: tableNo(1), Items: []model.ItemSnapshot{{Name: "Taco", Quantity: 1, UnitPrice: -1}}},
			want:  model.ErrValidation,
		},
		{
			name:  "price overflows the total",
			actor: waiter,
			in:    CreateOrderInput{TableNumber: tableNo(1), Items: []model.ItemSnapshot{{Name: "Taco", Quantity: 3, UnitPrice: math.MaxInt64 / 2}}},
			want:  model.ErrValidation,
		},
		{
			name:  "missing actor",
			actor: model.Actor{},
			in:    CreateOrderInput{TableNumber: tableNo(1), Items: scenarioItems()},
			want:  model.ErrValidation,
		},
		{
			name:  "table and account together",
			actor: waiter,
			in:    CreateOrderInput{TableNumber: tableNo(1), AccountID: new(int64), Items: scenarioItems()},
			want:  model.ErrValidation,
		},
		{
			name:  "unknown table",
			actor: waiter,
			in:    CreateOrderInput{TableNumber: tableNo(42), Items: scenarioItems()},
			want:  model.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateOrder(ctx, tt.actor, tt.in)
			require.ErrorIs(t, err, tt.want)
		})
	}

	orders, err := f.svc.ListOrders(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, orders)
	assert.Empty(t, f.notes.types())
}

func TestCreateOrder_Takeout(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	first, err := f.svc.CreateOrder(ctx, waiter, CreateOrderInput{Items: scenarioItems()})
	require.NoError(t, err)
	assert.True(t, first.Takeout)
	assert.Nil(t, first.TableNumber)

	accID := first.AccountID
	second, err := f.svc.CreateOrder(ctx, waiter, CreateOrderInput{
		AccountID: &accID,
		Items:     []model.ItemSnapshot{{Name: "Agua", Quantity: 1, UnitPrice: 300}},
	})
	require.NoError(t, err)
	assert.Equal(t, accID, second.AccountID)

	acc := requireTotals(t, f.svc, accID)
	assert.True(t, acc.Takeout)
	assert.Equal(t, int64(3200), acc.Total)

	third, err := f.svc.CreateOrder(ctx, waiter, CreateOrderInput{Items: scenarioItems()})
	require.NoError(t, err)
	assert.NotEqual(t, accID, third.AccountID)

	table := f.createTableOrder(t, 2)
	tableAcc := table.AccountID
	_, err = f.svc.CreateOrder(ctx, waiter, CreateOrderInput{AccountID: &tableAcc, Items: scenarioItems()})
	require.ErrorIs(t, err, model.ErrValidation)

	_, err = f.svc.CloseAccount(ctx, cashier, accID)
	require.NoError(t, err)
	_, err = f.svc.CreateOrder(ctx, waiter, CreateOrderInput{AccountID: &accID, Items: scenarioItems()})
	require.ErrorIs(t, err, model.ErrInvalidTransition)
}

func TestTransitionOrder_ForwardOnly(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	o := f.createTableOrder(t, 1)

	for _, next := range []model.OrderStatus{model.OrderPreparing, model.OrderReady, model.OrderDelivered} {
		f.clk.Advance(time.Minute)
		updated, err := f.svc.TransitionOrder(ctx, kitchen, o.ID, next)
		require.NoError(t, err, "transition to %s", next)
		assert.Equal(t, next, updated.Status)
	}

	_, err := f.svc.TransitionOrder(ctx, kitchen, o.ID, model.OrderPreparing)
	require.ErrorIs(t, err, model.ErrInvalidTransition)
	assert.Contains(t, err.Error(), "delivered")

	_, err = f.svc.TransitionOrder(ctx, waiter, o.ID, model.OrderCancelled)
	require.ErrorIs(t, err, model.ErrInvalidTransition)

	got, err := f.svc.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderDelivered, got.Status)
	assert.Equal(t, t0.Add(3*time.Minute), got.UpdatedAt)

	history, err := f.svc.OrderHistory(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, history, 4)
	assert.Equal(t, model.OrderDelivered, history[3].Status)
	assert.Equal(t, kitchen.ID, history[3].ChangedBy)
}

func TestTransitionOrder_RejectsSkipsAndUnknown(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	o := f.createTableOrder(t, 1)

	_, err := f.svc.TransitionOrder(ctx, waiter, o.ID, model.OrderDelivered)
	require.ErrorIs(t, err, model.ErrInvalidTransition)

	_, err = f.svc.TransitionOrder(ctx, waiter, o.ID, model.OrderStatus("served"))
	require.ErrorIs(t, err, model.ErrValidation)

	_, err = f.svc.TransitionOrder(ctx, waiter, 999, model.OrderPreparing)
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestTransitionOrder_CancelResumsAccount(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	first := f.createTableOrder(t, 1)
	second, err := f.svc.CreateOrder(ctx, waiter, CreateOrderInput{
		TableNumber: tableNo(1),
		Items:       []model.ItemSnapshot{{Name: "Flan", Quantity: 1, UnitPrice: 450}},
	})
	require.NoError(t, err)

	_, err = f.svc.TransitionOrder(ctx, kitchen, second.ID, model.OrderPreparing)
	require.NoError(t, err)
	_, err = f.svc.TransitionOrder(ctx, waiter, second.ID, model.OrderCancelled)
	require.NoError(t, err)

	acc := requireTotals(t, f.svc, first.AccountID)
	assert.Equal(t, int64(2900), acc.Total)

	_, err = f.svc.TransitionOrder(ctx, kitchen, second.ID, model.OrderReady)
	require.ErrorIs(t, err, model.ErrInvalidTransition)
}

func TestTransitionOrder_ConcurrentSingleWinner(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	o := f.createTableOrder(t, 1)
	_, err := f.svc.TransitionOrder(ctx, kitchen, o.ID, model.OrderPreparing)
	require.NoError(t, err)
	_, err = f.svc.TransitionOrder(ctx, kitchen, o.ID, model.OrderReady)
	require.NoError(t, err)

	var g errgroup.Group
	results := make([]error, 2)
	g.Go(func() error {
		_, results[0] = f.svc.TransitionOrder(ctx, kitchen, o.ID, model.OrderDelivered)
		return nil
	})
	g.Go(func() error {
		_, results[1] = f.svc.TransitionOrder(ctx, waiter, o.ID, model.OrderCancelled)
		return nil
	})
	require.NoError(t, g.Wait())

	var wins int
	for _, err := range results {
		if err == nil {
			wins++
			continue
		}
		require.ErrorIs(t, err, model.ErrInvalidTransition)
	}
	assert.Equal(t, 1, wins)
	requireTotals(t, f.svc, o.AccountID)
}

func TestAccount_CloseAndCollectWithTip(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	o := f.createTableOrder(t, 1)

	_, err := f.svc.CollectAccount(ctx, cashier, o.AccountID, "cash", 3000)
	require.ErrorIs(t, err, model.ErrInvalidTransition)

	closed, err := f.svc.CloseAccount(ctx, cashier, o.AccountID)
	require.NoError(t, err)
	assert.Equal(t, model.AccountClosed, closed.Status)
	require.NotNil(t, closed.ClosedAt)

	_, err = f.svc.CloseAccount(ctx, cashier, o.AccountID)
	require.ErrorIs(t, err, model.ErrInvalidTransition)

	f.clk.Advance(10 * time.Minute)
	collected, err := f.svc.CollectAccount(ctx, cashier, o.AccountID, "cash", 3000)
	require.NoError(t, err)
	assert.Equal(t, model.AccountCollected, collected.Status)
	assert.Equal(t, int64(2900), collected.Total)
	require.NotNil(t, collected.AmountCollected)
	assert.Equal(t, int64(3000), *collected.AmountCollected)
	assert.Equal(t, "cash", collected.PaymentMethod)
	assert.Equal(t, t0.Add(10*time.Minute), *collected.CollectedAt)

	_, err = f.svc.CollectAccount(ctx, cashier, o.AccountID, "cash", 3000)
	require.ErrorIs(t, err, model.ErrInvalidTransition)

	tbl, err := f.repo.GetTable(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, model.TableAvailable, tbl.State)

	selectable, err := f.svc.IsTableSelectable(ctx, 1)
	require.NoError(t, err)
	assert.True(t, selectable)

	next := f.createTableOrder(t, 1)
	assert.NotEqual(t, o.AccountID, next.AccountID)

	assert.Equal(t, []model.EventType{
		model.EventOrderCreated,
		model.EventAccountClosed,
		model.EventAccountCollected,
		model.EventOrderCreated,
	}, f.notes.types())
}

func TestCollectAccount_Validation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	o := f.createTableOrder(t, 1)
	_, err := f.svc.CloseAccount(ctx, cashier, o.AccountID)
	require.NoError(t, err)

	_, err = f.svc.CollectAccount(ctx, cashier, o.AccountID, "", 2900)
	require.ErrorIs(t, err, model.ErrValidation)

	_, err = f.svc.CollectAccount(ctx, cashier, o.AccountID, "bitcoin", 2900)
	require.ErrorIs(t, err, model.ErrValidation)

	_, err = f.svc.CollectAccount(ctx, cashier, o.AccountID, "card", -1)
	require.ErrorIs(t, err, model.ErrValidation)

	_, err = f.svc.CollectAccount(ctx, cashier, 999, "card", 2900)
	require.ErrorIs(t, err, model.ErrNotFound)

	acc, err := f.svc.GetAccount(ctx, o.AccountID)
	require.NoError(t, err)
	assert.Equal(t, model.AccountClosed, acc.Status)
}

func TestCollectAccount_LeavesBlockedTable(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	o, err := f.svc.CreateOrder(ctx, waiter, CreateOrderInput{TableNumber: tableNo(3), Items: scenarioItems()})
	require.NoError(t, err)

	tbl, err := f.repo.GetTable(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, model.TableBlocked, tbl.State)

	_, err = f.svc.CloseAccount(ctx, cashier, o.AccountID)
	require.NoError(t, err)
	_, err = f.svc.CollectAccount(ctx, cashier, o.AccountID, "card", 2900)
	require.NoError(t, err)

	tbl, err = f.repo.GetTable(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, model.TableBlocked, tbl.State)
}

func TestDeleteOrder_Rules(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	keep := f.createTableOrder(t, 1)
	drop, err := f.svc.CreateOrder(ctx, waiter, CreateOrderInput{
		TableNumber: tableNo(1),
		Items:       []model.ItemSnapshot{{Name: "Flan", Quantity: 1, UnitPrice: 450}},
	})
	require.NoError(t, err)

	err = f.svc.DeleteOrder(ctx, waiter2, drop.ID)
	require.ErrorIs(t, err, model.ErrForbidden)

	require.NoError(t, f.svc.DeleteOrder(ctx, waiter, drop.ID))

	_, err = f.svc.GetOrder(ctx, drop.ID)
	require.ErrorIs(t, err, model.ErrNotFound)

	acc := requireTotals(t, f.svc, keep.AccountID)
	assert.Equal(t, int64(2900), acc.Total)

	_, err = f.svc.TransitionOrder(ctx, kitchen, keep.ID, model.OrderPreparing)
	require.NoError(t, err)
	err = f.svc.DeleteOrder(ctx, waiter, keep.ID)
	require.ErrorIs(t, err, model.ErrInvalidTransition)
	err = f.svc.DeleteOrder(ctx, manager, keep.ID)
	require.ErrorIs(t, err, model.ErrInvalidTransition)
}

func TestDeleteOrder_BlockedByModificationRequest(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	o := f.createTableOrder(t, 1)
	_, err := f.svc.RequestModification(ctx, cashier, o.ID, ModificationInput{Kind: model.ModificationDelete})
	require.NoError(t, err)

	err = f.svc.DeleteOrder(ctx, waiter, o.ID)
	require.ErrorIs(t, err, model.ErrInvalidTransition)

	_, err = f.svc.GetOrder(ctx, o.ID)
	require.NoError(t, err)
}

func TestDeleteOrder_ManagerOverride(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	o := f.createTableOrder(t, 1)
	require.NoError(t, f.svc.DeleteOrder(ctx, manager, o.ID))

	acc, err := f.svc.GetAccount(ctx, o.AccountID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), acc.Total)
	assert.Equal(t, model.AccountOpen, acc.Status)
}

func TestRequestModification_ComputesDiff(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	o := f.createTableOrder(t, 1)
	taco, enchiladas := o.Items[0], o.Items[1]

	req, err := f.svc.RequestModification(ctx, cashier, o.ID, ModificationInput{
		Kind: model.ModificationEdit,
		Proposed: []model.ItemSnapshot{
			{ItemID: taco.ID, Name: taco.Name, Quantity: 3, UnitPrice: taco.UnitPrice},
			{Name: "Agua de jamaica", Quantity: 1, UnitPrice: 300},
		},
		Summary: "mesa pide otro taco y quita enchiladas",
	})
	require.NoError(t, err)

	assert.Equal(t, model.ModificationPending, req.Status)
	assert.Equal(t, waiter.ID, req.Waiter)
	assert.Equal(t, cashier.ID, req.RequestedBy)
	assert.Equal(t, o.Number, req.OrderNumber)

	require.Len(t, req.Diff.Added, 1)
	assert.Equal(t, "Agua de jamaica", req.Diff.Added[0].Name)
	require.Len(t, req.Diff.Removed, 1)
	assert.Equal(t, enchiladas.Snapshot(), req.Diff.Removed[0])
	require.Len(t, req.Diff.Modified, 1)
	assert.Equal(t, 2, req.Diff.Modified[0].Before.Quantity)
	assert.Equal(t, 3, req.Diff.Modified[0].After.Quantity)

	unchanged, err := f.svc.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2900), unchanged.Total)

	pending, err := f.svc.ListPendingModifications(ctx, model.ModificationFilter{Waiter: waiter.ID})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, req.ID, pending[0].ID)

	none, err := f.svc.ListPendingModifications(ctx, model.ModificationFilter{Waiter: waiter2.ID})
	require.NoError(t, err)
	assert.Empty(t, none)

	resolved, err := f.svc.ResolveModification(ctx, waiter, req.ID, model.DecisionApprove)
	require.NoError(t, err)
	assert.Equal(t, model.ModificationApproved, resolved.Status)
	assert.Equal(t, waiter.ID, resolved.ResolvedBy)
	require.NotNil(t, resolved.ResolvedAt)

	updated, err := f.svc.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(850*3+300), updated.Total)
	require.Len(t, updated.Items, 2)

	acc := requireTotals(t, f.svc, o.AccountID)
	assert.Equal(t, int64(2850), acc.Total)

	none, err = f.svc.ListPendingModifications(ctx, model.ModificationFilter{})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestResolveModification_EmptyDiffKeepsTotal(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	o := f.createTableOrder(t, 1)
	proposed := make([]model.ItemSnapshot, 0, len(o.Items))
	for _, it := range o.Items {
		proposed = append(proposed, it.Snapshot())
	}

	req, err := f.svc.RequestModification(ctx, cashier, o.ID, ModificationInput{Kind: model.ModificationEdit, Proposed: proposed})
	require.NoError(t, err)
	assert.True(t, req.Diff.Empty())

	_, err = f.svc.ResolveModification(ctx, waiter, req.ID, model.DecisionApprove)
	require.NoError(t, err)

	got, err := f.svc.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.Total, got.Total)
	requireTotals(t, f.svc, o.AccountID)
}

func TestRequestModification_Validation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	o := f.createTableOrder(t, 1)
	taco := o.Items[0]

	tests := []struct {
		name string
		in   ModificationInput
	}{
		{name: "unknown kind", in: ModificationInput{Kind: "merge"}},
		{name: "edit without items", in: ModificationInput{Kind: model.ModificationEdit}},
		{
			name: "foreign item",
			in: ModificationInput{Kind: model.ModificationEdit, Proposed: []model.ItemSnapshot{
				{ItemID: 12345, Name: "Taco", Quantity: 1, UnitPrice: 100},
			}},
		},
		{
			name: "duplicate item",
			in: ModificationInput{Kind: model.ModificationEdit, Proposed: []model.ItemSnapshot{
				taco.Snapshot(), taco.Snapshot(),
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.RequestModification(ctx, cashier, o.ID, tt.in)
			require.ErrorIs(t, err, model.ErrValidation)
		})
	}

	_, err := f.svc.RequestModification(ctx, cashier, 999, ModificationInput{Kind: model.ModificationDelete})
	require.ErrorIs(t, err, model.ErrNotFound)

	pending, err := f.svc.ListPendingModifications(ctx, model.ModificationFilter{})
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRequestModification_SecondPendingConflicts(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	o := f.createTableOrder(t, 1)
	first, err := f.svc.RequestModification(ctx, cashier, o.ID, ModificationInput{Kind: model.ModificationDelete})
	require.NoError(t, err)

	_, err = f.svc.RequestModification(ctx, waiter, o.ID, ModificationInput{Kind: model.ModificationDelete})
	require.ErrorIs(t, err, model.ErrConflict)

	_, err = f.svc.ResolveModification(ctx, waiter, first.ID, model.DecisionReject)
	require.NoError(t, err)

	_, err = f.svc.RequestModification(ctx, waiter, o.ID, ModificationInput{Kind: model.ModificationDelete})
	require.NoError(t, err)
}

func TestRequestModification_ConcurrentSingleWinner(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	o := f.createTableOrder(t, 1)
	proposed := []model.ItemSnapshot{{ItemID: o.Items[0].ID, Name: o.Items[0].Name, Quantity: 1, UnitPrice: o.Items[0].UnitPrice}}

	const racers = 8
	results := make([]error, racers)
	var g errgroup.Group
	for i := range racers {
		actor := cashier
		if i%2 == 1 {
			actor = waiter
		}
		g.Go(func() error {
			_, results[i] = f.svc.RequestModification(ctx, actor, o.ID, ModificationInput{
				Kind:     model.ModificationEdit,
				Proposed: proposed,
			})
			return nil
		})
	}
	require.NoError(t, g.Wait())

	var wins int
	for _, err := range results {
		if err == nil {
			wins++
			continue
		}
		require.ErrorIs(t, err, model.ErrConflict)
	}
	assert.Equal(t, 1, wins)

	pending, err := f.svc.ListPendingModifications(ctx, model.ModificationFilter{AccountID: &o.AccountID})
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestResolveModification_Authorization(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	o := f.createTableOrder(t, 1)
	req, err := f.svc.RequestModification(ctx, cashier, o.ID, ModificationInput{Kind: model.ModificationDelete})
	require.NoError(t, err)

	_, err = f.svc.ResolveModification(ctx, cashier, req.ID, model.DecisionApprove)
	require.ErrorIs(t, err, model.ErrForbidden)
	_, err = f.svc.ResolveModification(ctx, waiter2, req.ID, model.DecisionApprove)
	require.ErrorIs(t, err, model.ErrForbidden)
	_, err = f.svc.ResolveModification(ctx, waiter, req.ID, "maybe")
	require.ErrorIs(t, err, model.ErrValidation)

	rejected, err := f.svc.ResolveModification(ctx, manager, req.ID, model.DecisionReject)
	require.NoError(t, err)
	assert.Equal(t, model.ModificationRejected, rejected.Status)
	assert.Equal(t, manager.ID, rejected.ResolvedBy)

	got, err := f.svc.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.Total, got.Total)
	assert.Len(t, got.Items, 2)

	_, err = f.svc.ResolveModification(ctx, waiter, req.ID, model.DecisionApprove)
	require.ErrorIs(t, err, model.ErrInvalidTransition)

	_, err = f.svc.ResolveModification(ctx, waiter, 999, model.DecisionApprove)
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestResolveModification_DeleteLeavesAccountOpen(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	o := f.createTableOrder(t, 1)
	_, err := f.svc.TransitionOrder(ctx, kitchen, o.ID, model.OrderPreparing)
	require.NoError(t, err)

	req, err := f.svc.RequestModification(ctx, cashier, o.ID, ModificationInput{
		Kind:    model.ModificationDelete,
		Summary: "cliente se fue",
	})
	require.NoError(t, err)
	assert.Len(t, req.Diff.Removed, 2)

	resolved, err := f.svc.ResolveModification(ctx, waiter, req.ID, model.DecisionApprove)
	require.NoError(t, err)
	assert.Nil(t, resolved.OrderID)
	assert.Equal(t, o.Number, resolved.OrderNumber)

	_, err = f.svc.GetOrder(ctx, o.ID)
	require.ErrorIs(t, err, model.ErrNotFound)

	acc, err := f.svc.GetAccount(ctx, o.AccountID)
	require.NoError(t, err)
	assert.Equal(t, model.AccountOpen, acc.Status)
	assert.Equal(t, int64(0), acc.Total)
	assert.Empty(t, acc.Orders)

	stored, err := f.svc.GetModification(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ModificationApproved, stored.Status)
	assert.Nil(t, stored.OrderID)
}

func TestResolveModification_ApproveAfterCancelRollsBack(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	o := f.createTableOrder(t, 1)
	req, err := f.svc.RequestModification(ctx, cashier, o.ID, ModificationInput{
		Kind:     model.ModificationEdit,
		Proposed: []model.ItemSnapshot{o.Items[0].Snapshot()},
	})
	require.NoError(t, err)

	_, err = f.svc.TransitionOrder(ctx, waiter, o.ID, model.OrderCancelled)
	require.NoError(t, err)

	_, err = f.svc.ResolveModification(ctx, waiter, req.ID, model.DecisionApprove)
	require.ErrorIs(t, err, model.ErrInvalidTransition)

	stored, err := f.svc.GetModification(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ModificationPending, stored.Status)

	_, err = f.svc.ResolveModification(ctx, waiter, req.ID, model.DecisionReject)
	require.NoError(t, err)
}

func TestRequestModification_RefusedOnCollectedAccount(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	o := f.createTableOrder(t, 1)
	_, err := f.svc.CloseAccount(ctx, cashier, o.AccountID)
	require.NoError(t, err)

	req, err := f.svc.RequestModification(ctx, cashier, o.ID, ModificationInput{Kind: model.ModificationDelete})
	require.NoError(t, err)

	_, err = f.svc.CollectAccount(ctx, cashier, o.AccountID, "card", 2900)
	require.NoError(t, err)

	_, err = f.svc.ResolveModification(ctx, waiter, req.ID, model.DecisionApprove)
	require.ErrorIs(t, err, model.ErrInvalidTransition)

	_, err = f.svc.RequestModification(ctx, cashier, o.ID, ModificationInput{Kind: model.ModificationDelete})
	require.Error(t, err)
}

func TestKitchenBoard_UrgencyFromServerClock(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	old := f.createTableOrder(t, 1)
	f.clk.Advance(4 * time.Minute)
	fresh := f.createTableOrder(t, 2)

	delivered, err := f.svc.CreateOrder(ctx, waiter, CreateOrderInput{Items: scenarioItems()})
	require.NoError(t, err)
	for _, st := range []model.OrderStatus{model.OrderPreparing, model.OrderReady, model.OrderDelivered} {
		_, err = f.svc.TransitionOrder(ctx, kitchen, delivered.ID, st)
		require.NoError(t, err)
	}

	f.clk.Advance(time.Minute)
	board, err := f.svc.KitchenBoard(ctx)
	require.NoError(t, err)
	assert.Equal(t, t0.Add(5*time.Minute), board.Now)
	require.Len(t, board.Tickets, 2)
	assert.Equal(t, old.ID, board.Tickets[0].Order.ID)
	assert.Equal(t, 5, board.Tickets[0].ElapsedMinutes)
	assert.Equal(t, urgency.Warning, board.Tickets[0].Tier)
	assert.Equal(t, fresh.ID, board.Tickets[1].Order.ID)
	assert.Equal(t, urgency.Normal, board.Tickets[1].Tier)

	f.clk.Advance(4 * time.Minute)
	board, err = f.svc.KitchenBoard(ctx)
	require.NoError(t, err)
	assert.Equal(t, urgency.Critical, board.Tickets[0].Tier)
	assert.True(t, board.Tickets[0].Alert)
	assert.Equal(t, urgency.Warning, board.Tickets[1].Tier)
	assert.False(t, board.Tickets[1].Alert)
}

func TestCheckSLA_LogsEachBreachOnce(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	f := newFixture(t, zap.New(core))
	ctx := context.Background()

	o := f.createTableOrder(t, 1)

	assert.Empty(t, f.svc.checkSLA(ctx))

	f.clk.Advance(9 * time.Minute)
	assert.Equal(t, []string{o.Number}, f.svc.checkSLA(ctx))
	assert.Empty(t, f.svc.checkSLA(ctx))

	entries := logs.FilterMessage("sla breach").All()
	require.Len(t, entries, 1)
	assert.Equal(t, o.Number, entries[0].ContextMap()["order"])

	_, err := f.svc.TransitionOrder(ctx, waiter, o.ID, model.OrderCancelled)
	require.NoError(t, err)
	assert.Empty(t, f.svc.checkSLA(ctx))
	assert.Empty(t, f.svc.breached)
}

func TestStartSLAMonitor_StopsWithContext(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	f := newFixture(t, zap.New(core))

	f.createTableOrder(t, 1)
	f.clk.Advance(10 * time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	f.svc.StartSLAMonitor(ctx, 10*time.Millisecond)

	assert.Eventually(t, func() bool {
		return logs.FilterMessage("sla breach").Len() == 1
	}, time.Second, 10*time.Millisecond)
	cancel()

	f.svc.StartSLAMonitor(context.Background(), 0)
}

func TestTables_SelectabilityIgnoresPhysicalState(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	selectable, err := f.svc.IsTableSelectable(ctx, 3)
	require.NoError(t, err)
	assert.True(t, selectable, "blocked table without account is selectable")

	_, err = f.svc.IsTableSelectable(ctx, 42)
	require.ErrorIs(t, err, model.ErrNotFound)

	f.createTableOrder(t, 2)

	tables, err := f.svc.ListTables(ctx)
	require.NoError(t, err)
	require.Len(t, tables, 3)
	assert.True(t, tables[0].Selectable)
	assert.False(t, tables[1].Selectable)
	assert.Equal(t, model.TableOccupied, tables[1].State)
	assert.True(t, tables[2].Selectable)
}

func TestUpsertTable(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	err := f.svc.UpsertTable(ctx, waiter, model.Table{Number: 7, Capacity: 4})
	require.ErrorIs(t, err, model.ErrForbidden)

	err = f.svc.UpsertTable(ctx, manager, model.Table{Number: 0, Capacity: 4})
	require.ErrorIs(t, err, model.ErrValidation)

	err = f.svc.UpsertTable(ctx, manager, model.Table{Number: 7, Capacity: 0})
	require.ErrorIs(t, err, model.ErrValidation)

	err = f.svc.UpsertTable(ctx, manager, model.Table{Number: 7, Capacity: 4, State: "broken"})
	require.ErrorIs(t, err, model.ErrValidation)

	require.NoError(t, f.svc.UpsertTable(ctx, manager, model.Table{Number: 7, Capacity: 4, Location: " barra "}))

	tbl, err := f.repo.GetTable(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, model.TableAvailable, tbl.State)
	assert.Equal(t, "barra", tbl.Location)
}

func TestListQueries_RejectUnknownStatuses(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.ListOrders(ctx, []model.OrderStatus{"served"})
	require.ErrorIs(t, err, model.ErrValidation)

	_, err = f.svc.ListAccounts(ctx, []model.AccountStatus{"paid"})
	require.ErrorIs(t, err, model.ErrValidation)

	f.createTableOrder(t, 1)
	orders, err := f.svc.ListOrders(ctx, []model.OrderStatus{model.OrderPending})
	require.NoError(t, err)
	assert.Len(t, orders, 1)

	accounts, err := f.svc.ListAccounts(ctx, []model.AccountStatus{model.AccountClosed})
	require.NoError(t, err)
	assert.Empty(t, accounts)
}

type failingClock struct{}

func (failingClock) Now(context.Context) (time.Time, error) {
	return time.Time{}, errors.New("database unavailable")
}

func TestService_ClockFailureIsReported(t *testing.T) {
	svc := NewService(repository.NewMemoryRepository(), failingClock{}, nil, nil, Settings{})

	_, err := svc.CreateOrder(context.Background(), waiter, CreateOrderInput{Items: scenarioItems()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "clock")

	_, err = svc.KitchenBoard(context.Background())
	require.Error(t, err)
	assert.Equal(t, urgency.DefaultThresholds(), svc.settings.Thresholds)
}
