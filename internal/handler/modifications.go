package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/mmeshcher/comanda/internal/model"
	"github.com/mmeshcher/comanda/internal/service"
)

// RequestModification создаёт запрос на изменение или удаление заказа.
func (h *Handler) RequestModification(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	var req modificationRequest
	if !h.decode(w, r, &req) {
		return
	}

	m, err := h.service.RequestModification(r.Context(), actor, id, service.ModificationInput{
		Kind:     model.ModificationKind(req.Kind),
		Proposed: snapshots(req.Items),
		Summary:  req.Summary,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newModificationResponse(*m))
}

// ListPendingModifications возвращает ожидающие запросы; фильтры waiter и account необязательны.
func (h *Handler) ListPendingModifications(w http.ResponseWriter, r *http.Request) {
	filter := model.ModificationFilter{Waiter: r.URL.Query().Get("waiter")}
	if raw := r.URL.Query().Get("account"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			h.writeError(w, r, fmt.Errorf("%w: account %q is not a valid id", model.ErrValidation, raw))
			return
		}
		filter.AccountID = &id
	}

	mods, err := h.service.ListPendingModifications(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := make([]modificationResponse, 0, len(mods))
	for _, m := range mods {
		resp = append(resp, newModificationResponse(m))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetModification возвращает запрос на изменение.
func (h *Handler) GetModification(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	m, err := h.service.GetModification(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newModificationResponse(*m))
}

// ResolveModification одобряет или отклоняет запрос.
func (h *Handler) ResolveModification(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	var req resolveRequest
	if !h.decode(w, r, &req) {
		return
	}

	m, err := h.service.ResolveModification(r.Context(), actor, id, model.Decision(req.Decision))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newModificationResponse(*m))
}
