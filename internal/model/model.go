// Package model содержит доменные сущности сервиса заказов ресторана.
package model

import "time"

// Role описывает роль терминала, от имени которого выполняется операция.
type Role string

const (
	RoleWaiter  Role = "waiter"
	RoleKitchen Role = "kitchen"
	RoleCashier Role = "cashier"
	RoleManager Role = "manager"
)

// Valid сообщает, известна ли роль.
func (r Role) Valid() bool {
	switch r {
	case RoleWaiter, RoleKitchen, RoleCashier, RoleManager:
		return true
	}
	return false
}

// Actor идентифицирует сотрудника, выполняющего операцию.
type Actor struct {
	ID   string
	Role Role
}

// OrderItem описывает позицию заказа. Название и цена фиксируются в момент заказа.
type OrderItem struct {
	ID          int64
	OrderID     int64
	Name        string
	Quantity    int
	UnitPrice   int64
	Restriction string
	Note        string
}

// Subtotal возвращает стоимость позиции в копейках.
func (i OrderItem) Subtotal() int64 {
	return int64(i.Quantity) * i.UnitPrice
}

// Order описывает кухонный тикет с позициями.
type Order struct {
	ID           int64
	Number       string
	TableNumber  *int
	Waiter       string
	PartySize    int
	Takeout      bool
	Observations string
	Status       OrderStatus
	Total        int64
	AccountID    int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Items        []OrderItem
}

// ItemsTotal суммирует стоимость позиций заказа.
func ItemsTotal(items []OrderItem) int64 {
	var total int64
	for _, it := range items {
		total += it.Subtotal()
	}
	return total
}

// Account описывает счёт стола или заказа на вынос.
type Account struct {
	ID              int64
	Number          string
	TableNumber     *int
	Takeout         bool
	Waiter          string
	Status          AccountStatus
	Total           int64
	PaymentMethod   string
	AmountCollected *int64
	OpenedAt        time.Time
	ClosedAt        *time.Time
	CollectedAt     *time.Time
	Orders          []Order
}

// TableState описывает физическое состояние стола.
type TableState string

const (
	TableAvailable TableState = "available"
	TableOccupied  TableState = "occupied"
	TableBlocked   TableState = "blocked"
)

// Valid сообщает, известно ли состояние.
func (s TableState) Valid() bool {
	return s == TableAvailable || s == TableOccupied || s == TableBlocked
}

// Table описывает стол зала.
type Table struct {
	Number   int
	Capacity int
	Location string
	State    TableState
}

// StatusChange описывает запись журнала смены статусов заказа.
type StatusChange struct {
	OrderID   int64
	Status    OrderStatus
	ChangedBy string
	ChangedAt time.Time
}
