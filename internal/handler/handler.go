// Package handler содержит HTTP-обработчики API сервиса заказов.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/comanda/internal/middleware"
	"github.com/mmeshcher/comanda/internal/model"
	"github.com/mmeshcher/comanda/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	Now(ctx context.Context) (time.Time, error)

	CreateOrder(ctx context.Context, actor model.Actor, in service.CreateOrderInput) (*model.Order, error)
	TransitionOrder(ctx context.Context, actor model.Actor, orderID int64, next model.OrderStatus) (*model.Order, error)
	DeleteOrder(ctx context.Context, actor model.Actor, orderID int64) error
	GetOrder(ctx context.Context, id int64) (*model.Order, error)
	ListOrders(ctx context.Context, statuses []model.OrderStatus) ([]model.Order, error)
	OrderHistory(ctx context.Context, orderID int64) ([]model.StatusChange, error)
	KitchenBoard(ctx context.Context) (*service.Board, error)

	CloseAccount(ctx context.Context, actor model.Actor, accountID int64) (*model.Account, error)
	CollectAccount(ctx context.Context, actor model.Actor, accountID int64, method string, amount int64) (*model.Account, error)
	GetAccount(ctx context.Context, id int64) (*model.Account, error)
	ListAccounts(ctx context.Context, statuses []model.AccountStatus) ([]model.Account, error)

	RequestModification(ctx context.Context, actor model.Actor, orderID int64, in service.ModificationInput) (*model.ModificationRequest, error)
	ResolveModification(ctx context.Context, actor model.Actor, requestID int64, decision model.Decision) (*model.ModificationRequest, error)
	GetModification(ctx context.Context, id int64) (*model.ModificationRequest, error)
	ListPendingModifications(ctx context.Context, filter model.ModificationFilter) ([]model.ModificationRequest, error)

	IsTableSelectable(ctx context.Context, number int) (bool, error)
	ListTables(ctx context.Context) ([]service.TableView, error)
	UpsertTable(ctx context.Context, actor model.Actor, t model.Table) error
}

// Handler реализует HTTP-обработчики API сервиса заказов.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

// OpenSession выдаёт терминалу подписанный токен сотрудника.
func (h *Handler) OpenSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if !h.decode(w, r, &req) {
		return
	}

	actor := model.Actor{ID: strings.TrimSpace(req.ID), Role: model.Role(req.Role)}
	if actor.ID == "" || !actor.Role.Valid() {
		h.writeError(w, r, fmt.Errorf("%w: session needs an id and one of the roles waiter, kitchen, cashier, manager", model.ErrValidation))
		return
	}

	h.authMiddleware.SetAuthCookie(w, actor)
	writeJSON(w, http.StatusOK, sessionResponse{
		ID:    actor.ID,
		Role:  string(actor.Role),
		Token: h.authMiddleware.Token(actor),
	})
}

// Clock возвращает время сервера, по которому терминалы считают срочность.
func (h *Handler) Clock(w http.ResponseWriter, r *http.Request) {
	now, err := h.service.Now(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, clockResponse{Now: formatTime(now)})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.writeError(w, r, fmt.Errorf("%w: malformed JSON body: %v", model.ErrValidation, err))
		return false
	}
	return true
}

func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (model.Actor, bool) {
	actor, ok := middleware.GetActorFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
	}
	return actor, ok
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		h.writeError(w, r, fmt.Errorf("%w: %s %q is not a valid id", model.ErrValidation, name, raw))
		return 0, false
	}
	return id, true
}

// writeError переводит доменную ошибку в HTTP-статус; текст ошибки объясняет,
// какое правило не позволило выполнить операцию.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		status int
		code   string
	)
	switch {
	case errors.Is(err, model.ErrValidation):
		status, code = http.StatusBadRequest, "validation"
	case errors.Is(err, model.ErrInvalidTransition):
		status, code = http.StatusConflict, "invalid_transition"
	case errors.Is(err, model.ErrConflict):
		status, code = http.StatusConflict, "conflict"
	case errors.Is(err, model.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, model.ErrForbidden):
		status, code = http.StatusForbidden, "forbidden"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status, code = http.StatusServiceUnavailable, "unavailable"
	default:
		h.logger.Error("request failed", zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Error:   "internal",
			Message: http.StatusText(http.StatusInternalServerError),
		})
		return
	}

	writeJSON(w, status, errorResponse{Error: code, Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func splitQuery(r *http.Request, key string) []string {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil
	}
	var res []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			res = append(res, p)
		}
	}
	return res
}
