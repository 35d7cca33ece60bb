package repository

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/mmeshcher/comanda/internal/model"
)

type memState struct {
	tables   map[int]model.Table
	accounts map[int64]model.Account
	orders   map[int64]model.Order
	items    map[int64]model.OrderItem
	mods     map[int64]model.ModificationRequest
	history  []model.StatusChange

	lastID     int64
	orderSeq   int64
	accountSeq int64
}

func (s *memState) clone() memState {
	return memState{
		tables:     maps.Clone(s.tables),
		accounts:   maps.Clone(s.accounts),
		orders:     maps.Clone(s.orders),
		items:      maps.Clone(s.items),
		mods:       maps.Clone(s.mods),
		history:    slices.Clone(s.history),
		lastID:     s.lastID,
		orderSeq:   s.orderSeq,
		accountSeq: s.accountSeq,
	}
}

// MemoryRepository хранит данные в памяти процесса. Транзакции сериализуются
// одной блокировкой и откатываются восстановлением снимка состояния.
type MemoryRepository struct {
	mu sync.Mutex
	st memState
}

// NewMemoryRepository создаёт пустое хранилище в памяти.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		st: memState{
			tables:   make(map[int]model.Table),
			accounts: make(map[int64]model.Account),
			orders:   make(map[int64]model.Order),
			items:    make(map[int64]model.OrderItem),
			mods:     make(map[int64]model.ModificationRequest),
		},
	}
}

// Close ничего не делает.
func (r *MemoryRepository) Close() error {
	return nil
}

// InTx выполняет fn под общей блокировкой; при ошибке изменения отбрасываются.
func (r *MemoryRepository) InTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	snapshot := r.st.clone()
	if err := fn(&memTx{st: &r.st}); err != nil {
		r.st = snapshot
		return err
	}
	return nil
}

// GetOrder возвращает заказ с позициями.
func (r *MemoryRepository) GetOrder(_ context.Context, id int64) (*model.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.st.orders[id]
	if !ok {
		return nil, notFound("order", id)
	}
	o.Items = r.st.itemsOf(id)
	return &o, nil
}

// ListOrders возвращает заказы в указанных статусах (все, если статусы не заданы), старые первыми.
func (r *MemoryRepository) ListOrders(_ context.Context, statuses []model.OrderStatus) ([]model.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.st.ordersWhere(func(o model.Order) bool {
		return len(statuses) == 0 || slices.Contains(statuses, o.Status)
	}), nil
}

// OrderHistory возвращает журнал смены статусов заказа.
func (r *MemoryRepository) OrderHistory(_ context.Context, orderID int64) ([]model.StatusChange, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res []model.StatusChange
	for _, c := range r.st.history {
		if c.OrderID == orderID {
			res = append(res, c)
		}
	}
	return res, nil
}

// GetAccount возвращает счёт со всеми заказами и их позициями.
func (r *MemoryRepository) GetAccount(_ context.Context, id int64) (*model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.st.accounts[id]
	if !ok {
		return nil, notFound("account", id)
	}
	a.Orders = r.st.ordersWhere(func(o model.Order) bool { return o.AccountID == id })
	return &a, nil
}

// ListAccounts возвращает счета в указанных статусах без заказов.
func (r *MemoryRepository) ListAccounts(_ context.Context, statuses []model.AccountStatus) ([]model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res []model.Account
	for _, a := range r.st.accounts {
		if len(statuses) == 0 || slices.Contains(statuses, a.Status) {
			res = append(res, a)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

// HasBillingAccount сообщает, есть ли у стола счёт в статусе open или closed.
func (r *MemoryRepository) HasBillingAccount(_ context.Context, table int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.st.billingAccount(table) != nil, nil
}

// GetModification возвращает запрос на изменение.
func (r *MemoryRepository) GetModification(_ context.Context, id int64) (*model.ModificationRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.st.mods[id]
	if !ok {
		return nil, notFound("modification request", id)
	}
	return &m, nil
}

// ListPendingModifications возвращает ожидающие решения запросы.
func (r *MemoryRepository) ListPendingModifications(_ context.Context, filter model.ModificationFilter) ([]model.ModificationRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res []model.ModificationRequest
	for _, m := range r.st.mods {
		if m.Status != model.ModificationPending {
			continue
		}
		if filter.Waiter != "" && m.Waiter != filter.Waiter {
			continue
		}
		if filter.AccountID != nil && m.AccountID != *filter.AccountID {
			continue
		}
		res = append(res, m)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

// GetTable возвращает стол по номеру.
func (r *MemoryRepository) GetTable(_ context.Context, number int) (*model.Table, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.st.tables[number]
	if !ok {
		return nil, notFound("table", number)
	}
	return &t, nil
}

// ListTables возвращает все столы зала.
func (r *MemoryRepository) ListTables(_ context.Context) ([]model.Table, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res := slices.Collect(maps.Values(r.st.tables))
	sort.Slice(res, func(i, j int) bool { return res[i].Number < res[j].Number })
	return res, nil
}

// UpsertTable создаёт стол или обновляет его параметры.
func (r *MemoryRepository) UpsertTable(_ context.Context, t model.Table) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.st.tables[t.Number] = t
	return nil
}

func (s *memState) nextID() int64 {
	s.lastID++
	return s.lastID
}

func (s *memState) itemsOf(orderID int64) []model.OrderItem {
	var res []model.OrderItem
	for _, it := range s.items {
		if it.OrderID == orderID {
			res = append(res, it)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

func (s *memState) ordersWhere(keep func(model.Order) bool) []model.Order {
	var res []model.Order
	for _, o := range s.orders {
		if keep(o) {
			o.Items = s.itemsOf(o.ID)
			res = append(res, o)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].CreatedAt.Equal(res[j].CreatedAt) {
			return res[i].ID < res[j].ID
		}
		return res[i].CreatedAt.Before(res[j].CreatedAt)
	})
	return res
}

func (s *memState) billingAccount(table int) *model.Account {
	for _, a := range s.accounts {
		if a.TableNumber != nil && *a.TableNumber == table && a.Status.Billing() {
			return &a
		}
	}
	return nil
}

type memTx struct {
	st *memState
}

func (t *memTx) NextOrderNumber(_ context.Context, at time.Time) (string, error) {
	t.st.orderSeq++
	return formatNumber("ORD", at, t.st.orderSeq), nil
}

func (t *memTx) NextAccountNumber(_ context.Context, at time.Time) (string, error) {
	t.st.accountSeq++
	return formatNumber("ACC", at, t.st.accountSeq), nil
}

func (t *memTx) LockTable(_ context.Context, number int) (*model.Table, error) {
	tbl, ok := t.st.tables[number]
	if !ok {
		return nil, notFound("table", number)
	}
	return &tbl, nil
}

func (t *memTx) UpdateTableState(_ context.Context, number int, state model.TableState) error {
	tbl, ok := t.st.tables[number]
	if !ok {
		return notFound("table", number)
	}
	tbl.State = state
	t.st.tables[number] = tbl
	return nil
}

func (t *memTx) BillingAccountForTable(_ context.Context, table int) (*model.Account, error) {
	return t.st.billingAccount(table), nil
}

func (t *memTx) LockAccount(_ context.Context, id int64) (*model.Account, error) {
	a, ok := t.st.accounts[id]
	if !ok {
		return nil, notFound("account", id)
	}
	return &a, nil
}

func (t *memTx) InsertAccount(_ context.Context, a *model.Account) error {
	if a.TableNumber != nil && a.Status.Billing() && t.st.billingAccount(*a.TableNumber) != nil {
		return fmt.Errorf("%w: table already has an account awaiting payment", model.ErrConflict)
	}
	a.ID = t.st.nextID()
	a.Orders = nil
	t.st.accounts[a.ID] = *a
	return nil
}

func (t *memTx) UpdateAccount(_ context.Context, a *model.Account) error {
	if _, ok := t.st.accounts[a.ID]; !ok {
		return notFound("account", a.ID)
	}
	stored := *a
	stored.Orders = nil
	t.st.accounts[a.ID] = stored
	return nil
}

func (t *memTx) SumAccountOrders(_ context.Context, accountID int64) (int64, error) {
	var total int64
	for _, o := range t.st.orders {
		if o.AccountID == accountID && o.Status != model.OrderCancelled {
			total += o.Total
		}
	}
	return total, nil
}

func (t *memTx) LockOrder(_ context.Context, id int64) (*model.Order, error) {
	o, ok := t.st.orders[id]
	if !ok {
		return nil, notFound("order", id)
	}
	o.Items = t.st.itemsOf(id)
	return &o, nil
}

func (t *memTx) InsertOrder(ctx context.Context, o *model.Order) error {
	o.ID = t.st.nextID()
	for i := range o.Items {
		o.Items[i].OrderID = o.ID
		if err := t.InsertItem(ctx, &o.Items[i]); err != nil {
			return err
		}
	}
	stored := *o
	stored.Items = nil
	t.st.orders[o.ID] = stored
	return nil
}

func (t *memTx) UpdateOrder(_ context.Context, o *model.Order) error {
	stored, ok := t.st.orders[o.ID]
	if !ok {
		return notFound("order", o.ID)
	}
	stored.Status = o.Status
	stored.Total = o.Total
	stored.UpdatedAt = o.UpdatedAt
	t.st.orders[o.ID] = stored
	return nil
}

func (t *memTx) DeleteOrder(_ context.Context, id int64) error {
	if _, ok := t.st.orders[id]; !ok {
		return notFound("order", id)
	}
	delete(t.st.orders, id)
	for itemID, it := range t.st.items {
		if it.OrderID == id {
			delete(t.st.items, itemID)
		}
	}
	t.st.history = slices.DeleteFunc(t.st.history, func(c model.StatusChange) bool { return c.OrderID == id })
	for modID, m := range t.st.mods {
		if m.OrderID != nil && *m.OrderID == id {
			m.OrderID = nil
			t.st.mods[modID] = m
		}
	}
	return nil
}

func (t *memTx) InsertItem(_ context.Context, item *model.OrderItem) error {
	item.ID = t.st.nextID()
	t.st.items[item.ID] = *item
	return nil
}

func (t *memTx) UpdateItem(_ context.Context, item model.OrderItem) error {
	stored, ok := t.st.items[item.ID]
	if !ok || stored.OrderID != item.OrderID {
		return notFound("order item", item.ID)
	}
	t.st.items[item.ID] = item
	return nil
}

func (t *memTx) DeleteItem(_ context.Context, orderID, itemID int64) error {
	stored, ok := t.st.items[itemID]
	if !ok || stored.OrderID != orderID {
		return notFound("order item", itemID)
	}
	delete(t.st.items, itemID)
	return nil
}

func (t *memTx) AppendStatusChange(_ context.Context, c model.StatusChange) error {
	t.st.history = append(t.st.history, c)
	return nil
}

func (t *memTx) HasModifications(_ context.Context, orderID int64, statuses ...model.ModificationStatus) (bool, error) {
	for _, m := range t.st.mods {
		if m.OrderID != nil && *m.OrderID == orderID && slices.Contains(statuses, m.Status) {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) InsertModification(ctx context.Context, m *model.ModificationRequest) error {
	if m.OrderID != nil && m.Status == model.ModificationPending {
		pending, _ := t.HasModifications(ctx, *m.OrderID, model.ModificationPending)
		if pending {
			return fmt.Errorf("%w: order %s already has a pending modification request", model.ErrConflict, m.OrderNumber)
		}
	}
	m.ID = t.st.nextID()
	t.st.mods[m.ID] = *m
	return nil
}

func (t *memTx) LockModification(_ context.Context, id int64) (*model.ModificationRequest, error) {
	m, ok := t.st.mods[id]
	if !ok {
		return nil, notFound("modification request", id)
	}
	return &m, nil
}

func (t *memTx) UpdateModification(_ context.Context, m *model.ModificationRequest) error {
	stored, ok := t.st.mods[m.ID]
	if !ok {
		return notFound("modification request", m.ID)
	}
	stored.Status = m.Status
	stored.ResolvedBy = m.ResolvedBy
	stored.ResolvedAt = m.ResolvedAt
	t.st.mods[m.ID] = stored
	return nil
}
