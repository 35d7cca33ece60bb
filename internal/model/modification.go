package model

import "time"

// ModificationKind описывает вид запроса на изменение заказа.
type ModificationKind string

const (
	ModificationEdit   ModificationKind = "edit"
	ModificationDelete ModificationKind = "delete"
)

// Valid сообщает, известен ли вид запроса.
func (k ModificationKind) Valid() bool {
	return k == ModificationEdit || k == ModificationDelete
}

// ModificationStatus описывает стадию запроса на изменение.
type ModificationStatus string

const (
	ModificationPending  ModificationStatus = "pending"
	ModificationApproved ModificationStatus = "approved"
	ModificationRejected ModificationStatus = "rejected"
)

// Decision описывает решение официанта по запросу.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// Valid сообщает, известно ли решение.
func (d Decision) Valid() bool {
	return d == DecisionApprove || d == DecisionReject
}

// ItemSnapshot фиксирует поля позиции на момент запроса.
type ItemSnapshot struct {
	ItemID      int64  `json:"item_id,omitempty"`
	Name        string `json:"name"`
	Quantity    int    `json:"quantity"`
	UnitPrice   int64  `json:"unit_price"`
	Restriction string `json:"restriction,omitempty"`
	Note        string `json:"note,omitempty"`
}

// Snapshot снимает копию позиции.
func (i OrderItem) Snapshot() ItemSnapshot {
	return ItemSnapshot{
		ItemID:      i.ID,
		Name:        i.Name,
		Quantity:    i.Quantity,
		UnitPrice:   i.UnitPrice,
		Restriction: i.Restriction,
		Note:        i.Note,
	}
}

// ItemChange описывает изменение существующей позиции.
type ItemChange struct {
	ItemID int64        `json:"item_id"`
	Before ItemSnapshot `json:"before"`
	After  ItemSnapshot `json:"after"`
}

// Diff описывает структурированную разницу между текущими и предложенными позициями.
type Diff struct {
	Added    []ItemSnapshot `json:"added"`
	Removed  []ItemSnapshot `json:"removed"`
	Modified []ItemChange   `json:"modified"`
}

// Empty сообщает, что запрос ничего не меняет.
func (d Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Modified) == 0
}

// ModificationRequest описывает запрос на изменение или удаление отправленного заказа.
// OrderNumber сохраняется отдельно, чтобы запрос оставался читаемым после удаления заказа.
type ModificationRequest struct {
	ID          int64
	Kind        ModificationKind
	OrderID     *int64
	OrderNumber string
	AccountID   int64
	Waiter      string
	RequestedBy string
	Summary     string
	Diff        Diff
	Status      ModificationStatus
	RequestedAt time.Time
	ResolvedBy  string
	ResolvedAt  *time.Time
}

// ModificationFilter ограничивает выборку ожидающих запросов официантом и (или) счётом.
type ModificationFilter struct {
	Waiter    string
	AccountID *int64
}
