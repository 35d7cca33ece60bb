package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mmeshcher/comanda/internal/model"
)

// ListTables возвращает столы с признаком доступности.
func (h *Handler) ListTables(w http.ResponseWriter, r *http.Request) {
	tables, err := h.service.ListTables(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := make([]tableResponse, 0, len(tables))
	for _, t := range tables {
		resp = append(resp, tableResponse{
			Number:     t.Number,
			Capacity:   t.Capacity,
			Location:   t.Location,
			State:      string(t.State),
			Selectable: t.Selectable,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// TableSelectable сообщает, можно ли начать на столе новый счёт.
func (h *Handler) TableSelectable(w http.ResponseWriter, r *http.Request) {
	number, ok := h.tableNumber(w, r)
	if !ok {
		return
	}

	selectable, err := h.service.IsTableSelectable(r.Context(), number)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, selectableResponse{Table: number, Selectable: selectable})
}

// UpsertTable регистрирует стол или меняет его параметры.
func (h *Handler) UpsertTable(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	number, ok := h.tableNumber(w, r)
	if !ok {
		return
	}

	var req tableRequest
	if !h.decode(w, r, &req) {
		return
	}

	err := h.service.UpsertTable(r.Context(), actor, model.Table{
		Number:   number,
		Capacity: req.Capacity,
		Location: req.Location,
		State:    model.TableState(req.State),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) tableNumber(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := chi.URLParam(r, "number")
	n, err := strconv.Atoi(raw)
	if err != nil {
		h.writeError(w, r, fmt.Errorf("%w: table %q is not a number", model.ErrValidation, raw))
		return 0, false
	}
	return n, true
}
