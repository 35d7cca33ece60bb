// Package repository содержит реализации хранилища заказов, счетов и запросов на изменение.
package repository

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mmeshcher/comanda/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	orderColumns   = `id, number, table_number, waiter, party_size, takeout, observations, status, total, account_id, created_at, updated_at`
	itemColumns    = `id, order_id, name, quantity, unit_price, restriction, note`
	accountColumns = `id, number, table_number, takeout, waiter, status, total, payment_method, amount_collected, opened_at, closed_at, collected_at`
	modColumns     = `id, kind, order_id, order_number, account_id, waiter, requested_by, summary, diff, status, requested_at, resolved_by, resolved_at`
)

var retryDelays = []time.Duration{50 * time.Millisecond, 150 * time.Millisecond, 400 * time.Millisecond}

// errCommit помечает ошибку фиксации: сервер мог успеть применить транзакцию,
// поэтому повтор недопустим.
var errCommit = errors.New("commit tx")

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// withRetry повторяет транзакцию при конфликте сериализации, взаимной блокировке
// и обрыве соединения. Доменные ошибки и ошибки фиксации не повторяются.
func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error

	for i := 0; i <= len(retryDelays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		if !isRetryable(err) || i == len(retryDelays) {
			break
		}

		timer := time.NewTimer(retryDelays[i])
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}

func isRetryable(err error) bool {
	if errors.Is(err, errCommit) {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}
	return isConnectionError(err)
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// Now возвращает время сервера БД, общее для всех терминалов.
func (r *PostgresRepository) Now(ctx context.Context) (time.Time, error) {
	var now time.Time
	if err := r.pool.QueryRow(ctx, `SELECT now()`).Scan(&now); err != nil {
		return time.Time{}, fmt.Errorf("select now: %w", err)
	}
	return now.UTC(), nil
}

// InTx выполняет fn в транзакции и фиксирует её, если fn не вернула ошибку.
func (r *PostgresRepository) InTx(ctx context.Context, fn func(tx Tx) error) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		if err := fn(&pgTx{tx: tx}); err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("%w: %w", errCommit, err)
		}
		return nil
	})
}

// GetOrder возвращает заказ с позициями.
func (r *PostgresRepository) GetOrder(ctx context.Context, id int64) (*model.Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("order", id)
		}
		return nil, fmt.Errorf("select order: %w", err)
	}

	items, err := loadItems(ctx, r.pool, []int64{o.ID})
	if err != nil {
		return nil, err
	}
	o.Items = items[o.ID]
	return o, nil
}

// ListOrders возвращает заказы в указанных статусах (все, если статусы не заданы), старые первыми.
func (r *PostgresRepository) ListOrders(ctx context.Context, statuses []model.OrderStatus) ([]model.Order, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if len(statuses) == 0 {
		rows, err = r.pool.Query(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY created_at, id`)
	} else {
		rows, err = r.pool.Query(ctx,
			`SELECT `+orderColumns+` FROM orders WHERE status = ANY($1) ORDER BY created_at, id`,
			orderStatusStrings(statuses),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}

	return collectOrders(ctx, r.pool, rows)
}

// OrderHistory возвращает журнал смены статусов заказа.
func (r *PostgresRepository) OrderHistory(ctx context.Context, orderID int64) ([]model.StatusChange, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT order_id, status, changed_by, changed_at
		 FROM order_status_log
		 WHERE order_id = $1
		 ORDER BY changed_at, id`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("select status log: %w", err)
	}
	defer rows.Close()

	var res []model.StatusChange
	for rows.Next() {
		var (
			c      model.StatusChange
			status string
		)
		if err := rows.Scan(&c.OrderID, &status, &c.ChangedBy, &c.ChangedAt); err != nil {
			return nil, fmt.Errorf("scan status change: %w", err)
		}
		c.Status = model.OrderStatus(status)
		res = append(res, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// GetAccount возвращает счёт со всеми заказами и их позициями.
func (r *PostgresRepository) GetAccount(ctx context.Context, id int64) (*model.Account, error) {
	a, err := scanAccount(r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("account", id)
		}
		return nil, fmt.Errorf("select account: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE account_id = $1 ORDER BY created_at, id`, id)
	if err != nil {
		return nil, fmt.Errorf("select account orders: %w", err)
	}

	a.Orders, err = collectOrders(ctx, r.pool, rows)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ListAccounts возвращает счета в указанных статусах без заказов.
func (r *PostgresRepository) ListAccounts(ctx context.Context, statuses []model.AccountStatus) ([]model.Account, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if len(statuses) == 0 {
		rows, err = r.pool.Query(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY opened_at, id`)
	} else {
		names := make([]string, 0, len(statuses))
		for _, s := range statuses {
			names = append(names, string(s))
		}
		rows, err = r.pool.Query(ctx,
			`SELECT `+accountColumns+` FROM accounts WHERE status = ANY($1) ORDER BY opened_at, id`, names)
	}
	if err != nil {
		return nil, fmt.Errorf("select accounts: %w", err)
	}
	defer rows.Close()

	var res []model.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		res = append(res, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// HasBillingAccount сообщает, есть ли у стола счёт в статусе open или closed.
func (r *PostgresRepository) HasBillingAccount(ctx context.Context, table int) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM accounts WHERE table_number = $1 AND status IN ('open', 'closed')
		)`,
		table,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("select billing account: %w", err)
	}
	return exists, nil
}

// GetModification возвращает запрос на изменение.
func (r *PostgresRepository) GetModification(ctx context.Context, id int64) (*model.ModificationRequest, error) {
	m, err := scanModification(r.pool.QueryRow(ctx,
		`SELECT `+modColumns+` FROM modification_requests WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("modification request", id)
		}
		return nil, fmt.Errorf("select modification: %w", err)
	}
	return m, nil
}

// ListPendingModifications возвращает ожидающие решения запросы.
func (r *PostgresRepository) ListPendingModifications(ctx context.Context, filter model.ModificationFilter) ([]model.ModificationRequest, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+modColumns+`
		 FROM modification_requests
		 WHERE status = 'pending'
		   AND ($1 = '' OR waiter = $1)
		   AND ($2::BIGINT IS NULL OR account_id = $2)
		 ORDER BY requested_at, id`,
		filter.Waiter, filter.AccountID,
	)
	if err != nil {
		return nil, fmt.Errorf("select modifications: %w", err)
	}
	defer rows.Close()

	var res []model.ModificationRequest
	for rows.Next() {
		m, err := scanModification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan modification: %w", err)
		}
		res = append(res, *m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// GetTable возвращает стол по номеру.
func (r *PostgresRepository) GetTable(ctx context.Context, number int) (*model.Table, error) {
	t, err := scanTable(r.pool.QueryRow(ctx,
		`SELECT number, capacity, location, state FROM restaurant_tables WHERE number = $1`, number))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("table", number)
		}
		return nil, fmt.Errorf("select table: %w", err)
	}
	return t, nil
}

// ListTables возвращает все столы зала.
func (r *PostgresRepository) ListTables(ctx context.Context) ([]model.Table, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT number, capacity, location, state FROM restaurant_tables ORDER BY number`)
	if err != nil {
		return nil, fmt.Errorf("select tables: %w", err)
	}
	defer rows.Close()

	var res []model.Table
	for rows.Next() {
		t, err := scanTable(rows)
		if err != nil {
			return nil, fmt.Errorf("scan table: %w", err)
		}
		res = append(res, *t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// UpsertTable создаёт стол или обновляет его параметры.
func (r *PostgresRepository) UpsertTable(ctx context.Context, t model.Table) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO restaurant_tables (number, capacity, location, state)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (number) DO UPDATE
		 SET capacity = EXCLUDED.capacity, location = EXCLUDED.location, state = EXCLUDED.state`,
		t.Number, t.Capacity, t.Location, string(t.State),
	)
	if err != nil {
		return fmt.Errorf("upsert table: %w", err)
	}
	return nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) nextval(ctx context.Context, seq string) (int64, error) {
	var n int64
	if err := t.tx.QueryRow(ctx, `SELECT nextval($1::regclass)`, seq).Scan(&n); err != nil {
		return 0, fmt.Errorf("nextval %s: %w", seq, err)
	}
	return n, nil
}

func (t *pgTx) NextOrderNumber(ctx context.Context, at time.Time) (string, error) {
	n, err := t.nextval(ctx, "order_number_seq")
	if err != nil {
		return "", err
	}
	return formatNumber("ORD", at, n), nil
}

func (t *pgTx) NextAccountNumber(ctx context.Context, at time.Time) (string, error) {
	n, err := t.nextval(ctx, "account_number_seq")
	if err != nil {
		return "", err
	}
	return formatNumber("ACC", at, n), nil
}

func (t *pgTx) LockTable(ctx context.Context, number int) (*model.Table, error) {
	tbl, err := scanTable(t.tx.QueryRow(ctx,
		`SELECT number, capacity, location, state FROM restaurant_tables WHERE number = $1 FOR UPDATE`, number))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("table", number)
		}
		return nil, fmt.Errorf("lock table: %w", err)
	}
	return tbl, nil
}

func (t *pgTx) UpdateTableState(ctx context.Context, number int, state model.TableState) error {
	_, err := t.tx.Exec(ctx, `UPDATE restaurant_tables SET state = $2 WHERE number = $1`, number, string(state))
	if err != nil {
		return fmt.Errorf("update table state: %w", err)
	}
	return nil
}

func (t *pgTx) BillingAccountForTable(ctx context.Context, table int) (*model.Account, error) {
	a, err := scanAccount(t.tx.QueryRow(ctx,
		`SELECT `+accountColumns+`
		 FROM accounts
		 WHERE table_number = $1 AND status IN ('open', 'closed')
		 FOR UPDATE`,
		table,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("lock billing account: %w", err)
	}
	return a, nil
}

func (t *pgTx) LockAccount(ctx context.Context, id int64) (*model.Account, error) {
	a, err := scanAccount(t.tx.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("account", id)
		}
		return nil, fmt.Errorf("lock account: %w", err)
	}
	return a, nil
}

func (t *pgTx) InsertAccount(ctx context.Context, a *model.Account) error {
	err := t.tx.QueryRow(ctx,
		`INSERT INTO accounts (number, table_number, takeout, waiter, status, total, opened_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		a.Number, a.TableNumber, a.Takeout, a.Waiter, string(a.Status), a.Total, a.OpenedAt,
	).Scan(&a.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: table already has an account awaiting payment", model.ErrConflict)
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (t *pgTx) UpdateAccount(ctx context.Context, a *model.Account) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE accounts
		 SET status = $2, total = $3, payment_method = $4, amount_collected = $5, closed_at = $6, collected_at = $7
		 WHERE id = $1`,
		a.ID, string(a.Status), a.Total, a.PaymentMethod, a.AmountCollected, a.ClosedAt, a.CollectedAt,
	)
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	return nil
}

func (t *pgTx) SumAccountOrders(ctx context.Context, accountID int64) (int64, error) {
	var total int64
	err := t.tx.QueryRow(ctx,
		`SELECT COALESCE(SUM(total), 0)
		 FROM orders
		 WHERE account_id = $1 AND status <> $2`,
		accountID, string(model.OrderCancelled),
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum account orders: %w", err)
	}
	return total, nil
}

func (t *pgTx) LockOrder(ctx context.Context, id int64) (*model.Order, error) {
	o, err := scanOrder(t.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("order", id)
		}
		return nil, fmt.Errorf("lock order: %w", err)
	}

	items, err := loadItems(ctx, t.tx, []int64{o.ID})
	if err != nil {
		return nil, err
	}
	o.Items = items[o.ID]
	return o, nil
}

func (t *pgTx) InsertOrder(ctx context.Context, o *model.Order) error {
	err := t.tx.QueryRow(ctx,
		`INSERT INTO orders (number, table_number, waiter, party_size, takeout, observations, status, total, account_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING id`,
		o.Number, o.TableNumber, o.Waiter, o.PartySize, o.Takeout, o.Observations,
		string(o.Status), o.Total, o.AccountID, o.CreatedAt, o.UpdatedAt,
	).Scan(&o.ID)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for i := range o.Items {
		o.Items[i].OrderID = o.ID
		if err := t.InsertItem(ctx, &o.Items[i]); err != nil {
			return err
		}
	}
	return nil
}

func (t *pgTx) UpdateOrder(ctx context.Context, o *model.Order) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE orders SET status = $2, total = $3, updated_at = $4 WHERE id = $1`,
		o.ID, string(o.Status), o.Total, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	return nil
}

func (t *pgTx) DeleteOrder(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("order", id)
	}
	return nil
}

func (t *pgTx) InsertItem(ctx context.Context, item *model.OrderItem) error {
	err := t.tx.QueryRow(ctx,
		`INSERT INTO order_items (order_id, name, quantity, unit_price, restriction, note)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		item.OrderID, item.Name, item.Quantity, item.UnitPrice, item.Restriction, item.Note,
	).Scan(&item.ID)
	if err != nil {
		return fmt.Errorf("insert item: %w", err)
	}
	return nil
}

func (t *pgTx) UpdateItem(ctx context.Context, item model.OrderItem) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE order_items
		 SET name = $3, quantity = $4, unit_price = $5, restriction = $6, note = $7
		 WHERE id = $1 AND order_id = $2`,
		item.ID, item.OrderID, item.Name, item.Quantity, item.UnitPrice, item.Restriction, item.Note,
	)
	if err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("order item", item.ID)
	}
	return nil
}

func (t *pgTx) DeleteItem(ctx context.Context, orderID, itemID int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM order_items WHERE id = $1 AND order_id = $2`, itemID, orderID)
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("order item", itemID)
	}
	return nil
}

func (t *pgTx) AppendStatusChange(ctx context.Context, c model.StatusChange) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO order_status_log (order_id, status, changed_by, changed_at) VALUES ($1, $2, $3, $4)`,
		c.OrderID, string(c.Status), c.ChangedBy, c.ChangedAt,
	)
	if err != nil {
		return fmt.Errorf("insert status log: %w", err)
	}
	return nil
}

func (t *pgTx) HasModifications(ctx context.Context, orderID int64, statuses ...model.ModificationStatus) (bool, error) {
	names := make([]string, 0, len(statuses))
	for _, s := range statuses {
		names = append(names, string(s))
	}

	var exists bool
	err := t.tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM modification_requests WHERE order_id = $1 AND status = ANY($2))`,
		orderID, names,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("select modifications: %w", err)
	}
	return exists, nil
}

func (t *pgTx) InsertModification(ctx context.Context, m *model.ModificationRequest) error {
	diff, err := json.Marshal(m.Diff)
	if err != nil {
		return fmt.Errorf("marshal diff: %w", err)
	}

	err = t.tx.QueryRow(ctx,
		`INSERT INTO modification_requests (kind, order_id, order_number, account_id, waiter, requested_by, summary, diff, status, requested_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id`,
		string(m.Kind), m.OrderID, m.OrderNumber, m.AccountID, m.Waiter, m.RequestedBy,
		m.Summary, diff, string(m.Status), m.RequestedAt,
	).Scan(&m.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: order %s already has a pending modification request", model.ErrConflict, m.OrderNumber)
		}
		return fmt.Errorf("insert modification: %w", err)
	}
	return nil
}

func (t *pgTx) LockModification(ctx context.Context, id int64) (*model.ModificationRequest, error) {
	m, err := scanModification(t.tx.QueryRow(ctx,
		`SELECT `+modColumns+` FROM modification_requests WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("modification request", id)
		}
		return nil, fmt.Errorf("lock modification: %w", err)
	}
	return m, nil
}

func (t *pgTx) UpdateModification(ctx context.Context, m *model.ModificationRequest) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE modification_requests SET status = $2, resolved_by = $3, resolved_at = $4 WHERE id = $1`,
		m.ID, string(m.Status), m.ResolvedBy, m.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("update modification: %w", err)
	}
	return nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadItems(ctx context.Context, q querier, orderIDs []int64) (map[int64][]model.OrderItem, error) {
	res := make(map[int64][]model.OrderItem, len(orderIDs))
	if len(orderIDs) == 0 {
		return res, nil
	}

	rows, err := q.Query(ctx,
		`SELECT `+itemColumns+` FROM order_items WHERE order_id = ANY($1) ORDER BY id`, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("select items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it model.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.Name, &it.Quantity, &it.UnitPrice, &it.Restriction, &it.Note); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		res[it.OrderID] = append(res[it.OrderID], it)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

func collectOrders(ctx context.Context, q querier, rows pgx.Rows) ([]model.Order, error) {
	var orders []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *o)
	}
	rows.Close()

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	ids := make([]int64, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
	}

	items, err := loadItems(ctx, q, ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
	}

	return orders, nil
}

func scanOrder(row pgx.Row) (*model.Order, error) {
	var (
		o      model.Order
		status string
	)
	err := row.Scan(&o.ID, &o.Number, &o.TableNumber, &o.Waiter, &o.PartySize, &o.Takeout,
		&o.Observations, &status, &o.Total, &o.AccountID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	o.Status = model.OrderStatus(status)
	return &o, nil
}

func scanAccount(row pgx.Row) (*model.Account, error) {
	var (
		a      model.Account
		status string
	)
	err := row.Scan(&a.ID, &a.Number, &a.TableNumber, &a.Takeout, &a.Waiter, &status, &a.Total,
		&a.PaymentMethod, &a.AmountCollected, &a.OpenedAt, &a.ClosedAt, &a.CollectedAt)
	if err != nil {
		return nil, err
	}
	a.Status = model.AccountStatus(status)
	return &a, nil
}

func scanModification(row pgx.Row) (*model.ModificationRequest, error) {
	var (
		m            model.ModificationRequest
		kind, status string
		diff         []byte
	)
	err := row.Scan(&m.ID, &kind, &m.OrderID, &m.OrderNumber, &m.AccountID, &m.Waiter, &m.RequestedBy,
		&m.Summary, &diff, &status, &m.RequestedAt, &m.ResolvedBy, &m.ResolvedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(diff, &m.Diff); err != nil {
		return nil, fmt.Errorf("unmarshal diff: %w", err)
	}
	m.Kind = model.ModificationKind(kind)
	m.Status = model.ModificationStatus(status)
	return &m, nil
}

func scanTable(row pgx.Row) (*model.Table, error) {
	var (
		t     model.Table
		state string
	)
	if err := row.Scan(&t.Number, &t.Capacity, &t.Location, &state); err != nil {
		return nil, err
	}
	t.State = model.TableState(state)
	return &t, nil
}

func orderStatusStrings(statuses []model.OrderStatus) []string {
	names := make([]string, 0, len(statuses))
	for _, s := range statuses {
		names = append(names, string(s))
	}
	return names
}
