package model

// OrderStatus описывает стадию приготовления заказа.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderPreparing OrderStatus = "preparing"
	OrderReady     OrderStatus = "ready"
	OrderDelivered OrderStatus = "delivered"
	OrderCancelled OrderStatus = "cancelled"
)

var orderEdges = map[OrderStatus][]OrderStatus{
	OrderPending:   {OrderPreparing, OrderCancelled},
	OrderPreparing: {OrderReady, OrderCancelled},
	OrderReady:     {OrderDelivered, OrderCancelled},
}

var orderStatuses = []OrderStatus{OrderPending, OrderPreparing, OrderReady, OrderDelivered, OrderCancelled}

// Valid сообщает, известен ли статус.
func (s OrderStatus) Valid() bool {
	for _, st := range orderStatuses {
		if st == s {
			return true
		}
	}
	return false
}

// Terminal сообщает, что из статуса нет переходов.
func (s OrderStatus) Terminal() bool {
	return s == OrderDelivered || s == OrderCancelled
}

// Active сообщает, что заказ ещё находится на кухне.
func (s OrderStatus) Active() bool {
	return s == OrderPending || s == OrderPreparing || s == OrderReady
}

// CanTransitionTo проверяет, что переход является ребром автомата.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, st := range orderEdges[s] {
		if st == next {
			return true
		}
	}
	return false
}

// ActiveOrderStatuses возвращает статусы, отображаемые на кухонном экране.
func ActiveOrderStatuses() []OrderStatus {
	var res []OrderStatus
	for _, st := range orderStatuses {
		if st.Active() {
			res = append(res, st)
		}
	}
	return res
}

// AccountStatus описывает стадию счёта.
type AccountStatus string

const (
	AccountOpen      AccountStatus = "open"
	AccountClosed    AccountStatus = "closed"
	AccountCollected AccountStatus = "collected"
)

// Valid сообщает, известен ли статус.
func (s AccountStatus) Valid() bool {
	return s == AccountOpen || s == AccountClosed || s == AccountCollected
}

// Billing сообщает, что счёт ещё удерживает стол.
func (s AccountStatus) Billing() bool {
	return s == AccountOpen || s == AccountClosed
}

// CanTransitionTo проверяет переход open → closed → collected.
func (s AccountStatus) CanTransitionTo(next AccountStatus) bool {
	return (s == AccountOpen && next == AccountClosed) ||
		(s == AccountClosed && next == AccountCollected)
}
