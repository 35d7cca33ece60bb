package handler

import (
	"net/http"

	"github.com/mmeshcher/comanda/internal/model"
)

// ListAccounts возвращает счета; параметр status принимает список статусов через запятую.
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	var statuses []model.AccountStatus
	for _, s := range splitQuery(r, "status") {
		statuses = append(statuses, model.AccountStatus(s))
	}

	accounts, err := h.service.ListAccounts(r.Context(), statuses)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := make([]accountResponse, 0, len(accounts))
	for _, a := range accounts {
		resp = append(resp, newAccountResponse(a))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetAccount возвращает счёт с заказами.
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	acc, err := h.service.GetAccount(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newAccountResponse(*acc))
}

// CloseAccount закрывает счёт для оплаты.
func (h *Handler) CloseAccount(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	acc, err := h.service.CloseAccount(r.Context(), actor, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newAccountResponse(*acc))
}

// CollectAccount фиксирует оплату закрытого счёта.
func (h *Handler) CollectAccount(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	var req collectRequest
	if !h.decode(w, r, &req) {
		return
	}

	acc, err := h.service.CollectAccount(r.Context(), actor, id, req.PaymentMethod, fromMoney(req.Amount))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newAccountResponse(*acc))
}
