package handler

import (
	"math"
	"time"

	"github.com/mmeshcher/comanda/internal/model"
	"github.com/mmeshcher/comanda/internal/service"
)

// Денежные суммы хранятся в копейках, а в API передаются в рублях с двумя знаками.
func toMoney(cents int64) float64 {
	return float64(cents) / 100
}

func fromMoney(v float64) int64 {
	return int64(math.Round(v * 100))
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type sessionRequest struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

type sessionResponse struct {
	ID    string `json:"id"`
	Role  string `json:"role"`
	Token string `json:"token"`
}

type clockResponse struct {
	Now string `json:"now"`
}

type itemRequest struct {
	ItemID      int64   `json:"item_id,omitempty"`
	Name        string  `json:"name"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	Restriction string  `json:"restriction,omitempty"`
	Note        string  `json:"note,omitempty"`
}

func (r itemRequest) snapshot() model.ItemSnapshot {
	return model.ItemSnapshot{
		ItemID:      r.ItemID,
		Name:        r.Name,
		Quantity:    r.Quantity,
		UnitPrice:   fromMoney(r.UnitPrice),
		Restriction: r.Restriction,
		Note:        r.Note,
	}
}

func snapshots(items []itemRequest) []model.ItemSnapshot {
	res := make([]model.ItemSnapshot, 0, len(items))
	for _, it := range items {
		res = append(res, it.snapshot())
	}
	return res
}

type createOrderRequest struct {
	Table        *int          `json:"table,omitempty"`
	AccountID    *int64        `json:"account_id,omitempty"`
	PartySize    int           `json:"party_size"`
	Observations string        `json:"observations"`
	Items        []itemRequest `json:"items"`
}

func (r createOrderRequest) input() service.CreateOrderInput {
	return service.CreateOrderInput{
		TableNumber:  r.Table,
		AccountID:    r.AccountID,
		PartySize:    r.PartySize,
		Observations: r.Observations,
		Items:        snapshots(r.Items),
	}
}

type transitionRequest struct {
	Status string `json:"status"`
}

type collectRequest struct {
	PaymentMethod string  `json:"payment_method"`
	Amount        float64 `json:"amount"`
}

type modificationRequest struct {
	Kind    string        `json:"kind"`
	Items   []itemRequest `json:"items"`
	Summary string        `json:"summary"`
}

type resolveRequest struct {
	Decision string `json:"decision"`
}

type tableRequest struct {
	Capacity int    `json:"capacity"`
	Location string `json:"location"`
	State    string `json:"state"`
}

type itemResponse struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	Subtotal    float64 `json:"subtotal"`
	Restriction string  `json:"restriction,omitempty"`
	Note        string  `json:"note,omitempty"`
}

type orderResponse struct {
	ID           int64          `json:"id"`
	Number       string         `json:"number"`
	Table        *int           `json:"table,omitempty"`
	Waiter       string         `json:"waiter"`
	PartySize    int            `json:"party_size"`
	Takeout      bool           `json:"takeout"`
	Observations string         `json:"observations,omitempty"`
	Status       string         `json:"status"`
	Total        float64        `json:"total"`
	AccountID    int64          `json:"account_id"`
	CreatedAt    string         `json:"created_at"`
	UpdatedAt    string         `json:"updated_at"`
	Items        []itemResponse `json:"items"`
}

func newOrderResponse(o model.Order) orderResponse {
	items := make([]itemResponse, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, itemResponse{
			ID:          it.ID,
			Name:        it.Name,
			Quantity:    it.Quantity,
			UnitPrice:   toMoney(it.UnitPrice),
			Subtotal:    toMoney(it.Subtotal()),
			Restriction: it.Restriction,
			Note:        it.Note,
		})
	}
	return orderResponse{
		ID:           o.ID,
		Number:       o.Number,
		Table:        o.TableNumber,
		Waiter:       o.Waiter,
		PartySize:    o.PartySize,
		Takeout:      o.Takeout,
		Observations: o.Observations,
		Status:       string(o.Status),
		Total:        toMoney(o.Total),
		AccountID:    o.AccountID,
		CreatedAt:    formatTime(o.CreatedAt),
		UpdatedAt:    formatTime(o.UpdatedAt),
		Items:        items,
	}
}

func newOrdersResponse(orders []model.Order) []orderResponse {
	res := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		res = append(res, newOrderResponse(o))
	}
	return res
}

type statusChangeResponse struct {
	Status    string `json:"status"`
	ChangedBy string `json:"changed_by"`
	ChangedAt string `json:"changed_at"`
}

type accountResponse struct {
	ID              int64           `json:"id"`
	Number          string          `json:"number"`
	Table           *int            `json:"table,omitempty"`
	Takeout         bool            `json:"takeout"`
	Waiter          string          `json:"waiter"`
	Status          string          `json:"status"`
	Total           float64         `json:"total"`
	PaymentMethod   string          `json:"payment_method,omitempty"`
	AmountCollected *float64        `json:"amount_collected,omitempty"`
	OpenedAt        string          `json:"opened_at"`
	ClosedAt        *string         `json:"closed_at,omitempty"`
	CollectedAt     *string         `json:"collected_at,omitempty"`
	Orders          []orderResponse `json:"orders,omitempty"`
}

func newAccountResponse(a model.Account) accountResponse {
	resp := accountResponse{
		ID:            a.ID,
		Number:        a.Number,
		Table:         a.TableNumber,
		Takeout:       a.Takeout,
		Waiter:        a.Waiter,
		Status:        string(a.Status),
		Total:         toMoney(a.Total),
		PaymentMethod: a.PaymentMethod,
		OpenedAt:      formatTime(a.OpenedAt),
		ClosedAt:      formatTimePtr(a.ClosedAt),
		CollectedAt:   formatTimePtr(a.CollectedAt),
	}
	if a.AmountCollected != nil {
		v := toMoney(*a.AmountCollected)
		resp.AmountCollected = &v
	}
	if len(a.Orders) > 0 {
		resp.Orders = newOrdersResponse(a.Orders)
	}
	return resp
}

type snapshotResponse struct {
	ItemID      int64   `json:"item_id,omitempty"`
	Name        string  `json:"name"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	Restriction string  `json:"restriction,omitempty"`
	Note        string  `json:"note,omitempty"`
}

func newSnapshotResponse(s model.ItemSnapshot) snapshotResponse {
	return snapshotResponse{
		ItemID:      s.ItemID,
		Name:        s.Name,
		Quantity:    s.Quantity,
		UnitPrice:   toMoney(s.UnitPrice),
		Restriction: s.Restriction,
		Note:        s.Note,
	}
}

func newSnapshotsResponse(items []model.ItemSnapshot) []snapshotResponse {
	res := make([]snapshotResponse, 0, len(items))
	for _, it := range items {
		res = append(res, newSnapshotResponse(it))
	}
	return res
}

type changeResponse struct {
	ItemID int64            `json:"item_id"`
	Before snapshotResponse `json:"before"`
	After  snapshotResponse `json:"after"`
}

type diffResponse struct {
	Added    []snapshotResponse `json:"added"`
	Removed  []snapshotResponse `json:"removed"`
	Modified []changeResponse   `json:"modified"`
}

type modificationResponse struct {
	ID          int64        `json:"id"`
	Kind        string       `json:"kind"`
	OrderID     *int64       `json:"order_id"`
	OrderNumber string       `json:"order_number"`
	AccountID   int64        `json:"account_id"`
	Waiter      string       `json:"waiter"`
	RequestedBy string       `json:"requested_by"`
	Summary     string       `json:"summary,omitempty"`
	Diff        diffResponse `json:"diff"`
	Status      string       `json:"status"`
	RequestedAt string       `json:"requested_at"`
	ResolvedBy  string       `json:"resolved_by,omitempty"`
	ResolvedAt  *string      `json:"resolved_at,omitempty"`
}

func newModificationResponse(m model.ModificationRequest) modificationResponse {
	modified := make([]changeResponse, 0, len(m.Diff.Modified))
	for _, c := range m.Diff.Modified {
		modified = append(modified, changeResponse{
			ItemID: c.ItemID,
			Before: newSnapshotResponse(c.Before),
			After:  newSnapshotResponse(c.After),
		})
	}
	return modificationResponse{
		ID:          m.ID,
		Kind:        string(m.Kind),
		OrderID:     m.OrderID,
		OrderNumber: m.OrderNumber,
		AccountID:   m.AccountID,
		Waiter:      m.Waiter,
		RequestedBy: m.RequestedBy,
		Summary:     m.Summary,
		Diff: diffResponse{
			Added:    newSnapshotsResponse(m.Diff.Added),
			Removed:  newSnapshotsResponse(m.Diff.Removed),
			Modified: modified,
		},
		Status:      string(m.Status),
		RequestedAt: formatTime(m.RequestedAt),
		ResolvedBy:  m.ResolvedBy,
		ResolvedAt:  formatTimePtr(m.ResolvedAt),
	}
}

type tableResponse struct {
	Number     int    `json:"number"`
	Capacity   int    `json:"capacity"`
	Location   string `json:"location,omitempty"`
	State      string `json:"state"`
	Selectable bool   `json:"selectable"`
}

type selectableResponse struct {
	Table      int  `json:"table"`
	Selectable bool `json:"selectable"`
}

type ticketResponse struct {
	Order          orderResponse `json:"order"`
	ElapsedMinutes int           `json:"elapsed_minutes"`
	Tier           string        `json:"tier"`
	Alert          bool          `json:"alert"`
}

type boardResponse struct {
	Now     string           `json:"now"`
	Tickets []ticketResponse `json:"tickets"`
}

func newBoardResponse(b *service.Board) boardResponse {
	tickets := make([]ticketResponse, 0, len(b.Tickets))
	for _, t := range b.Tickets {
		tickets = append(tickets, ticketResponse{
			Order:          newOrderResponse(t.Order),
			ElapsedMinutes: t.ElapsedMinutes,
			Tier:           string(t.Tier),
			Alert:          t.Alert,
		})
	}
	return boardResponse{Now: formatTime(b.Now), Tickets: tickets}
}
