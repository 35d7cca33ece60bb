package model

import "time"

// EventType описывает вид уведомления об изменении состояния.
type EventType string

const (
	EventOrderCreated          EventType = "order.created"
	EventOrderStatusChanged    EventType = "order.status_changed"
	EventOrderDeleted          EventType = "order.deleted"
	EventAccountClosed         EventType = "account.closed"
	EventAccountCollected      EventType = "account.collected"
	EventModificationRequested EventType = "modification.requested"
	EventModificationResolved  EventType = "modification.resolved"
)

// Event описывает зафиксированное изменение, о котором оповещаются терминалы.
type Event struct {
	Type           EventType `json:"type"`
	OrderID        int64     `json:"order_id,omitempty"`
	OrderNumber    string    `json:"order_number,omitempty"`
	AccountID      int64     `json:"account_id,omitempty"`
	ModificationID int64     `json:"modification_id,omitempty"`
	OldStatus      string    `json:"old_status,omitempty"`
	NewStatus      string    `json:"new_status,omitempty"`
	ChangedBy      string    `json:"changed_by"`
	Timestamp      time.Time `json:"timestamp"`
}
