package handler

import (
	"net/http"

	"github.com/mmeshcher/comanda/internal/model"
)

// CreateOrder создаёт заказ от имени официанта терминала.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req createOrderRequest
	if !h.decode(w, r, &req) {
		return
	}

	order, err := h.service.CreateOrder(r.Context(), actor, req.input())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newOrderResponse(*order))
}

// ListOrders возвращает заказы; параметр status принимает список статусов через запятую.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	var statuses []model.OrderStatus
	for _, s := range splitQuery(r, "status") {
		statuses = append(statuses, model.OrderStatus(s))
	}

	orders, err := h.service.ListOrders(r.Context(), statuses)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrdersResponse(orders))
}

// GetOrder возвращает заказ с позициями.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	order, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderResponse(*order))
}

// OrderHistory возвращает журнал смены статусов заказа.
func (h *Handler) OrderHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	history, err := h.service.OrderHistory(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := make([]statusChangeResponse, 0, len(history))
	for _, c := range history {
		resp = append(resp, statusChangeResponse{
			Status:    string(c.Status),
			ChangedBy: c.ChangedBy,
			ChangedAt: formatTime(c.ChangedAt),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// TransitionOrder переводит заказ в следующий статус.
func (h *Handler) TransitionOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	var req transitionRequest
	if !h.decode(w, r, &req) {
		return
	}

	order, err := h.service.TransitionOrder(r.Context(), actor, id, model.OrderStatus(req.Status))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderResponse(*order))
}

// DeleteOrder удаляет заказ в статусе pending.
func (h *Handler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.DeleteOrder(r.Context(), actor, id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// KitchenBoard возвращает активные заказы со срочностью по часам сервера.
func (h *Handler) KitchenBoard(w http.ResponseWriter, r *http.Request) {
	board, err := h.service.KitchenBoard(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newBoardResponse(board))
}
