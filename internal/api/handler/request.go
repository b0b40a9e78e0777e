package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/xela07ax/getmoney-core/internal/domain"
	"github.com/xela07ax/getmoney-core/internal/infra/auth"
	"github.com/xela07ax/getmoney-core/internal/notify"
)

// RequestWorkflow Описываем, что нам нужно от сервиса
type RequestWorkflow interface {
	Create(ctx context.Context, requesterID, amount int64, comment *string) (*domain.Request, error)
	Get(ctx context.Context, id int64) (*domain.Request, error)
	ListActive(ctx context.Context, requesterID *int64) ([]*domain.Request, error)
	MonthReport(ctx context.Context, requesterID int64, year, month int) (*domain.MonthReport, error)
	Approve(ctx context.Context, id int64, eta time.Time, comment *string) (*domain.Request, error)
	Reject(ctx context.Context, id int64, comment *string) (*domain.Request, error)
	MarkSent(ctx context.Context, id int64) (*domain.Request, error)
	ConfirmReceipt(ctx context.Context, id int64) (*domain.Request, error)
	DisputeReceipt(ctx context.Context, id int64) (*domain.Request, error)
	Cancel(ctx context.Context, id int64) (*domain.Request, error)
	Remind(ctx context.Context, id int64) error
	UpdateMessageRefs(ctx context.Context, id int64, requesterMsgID, approverMsgID *int64) error
	EtaFromOption(option string) time.Time
}

type RequestHandler struct {
	service RequestWorkflow
}

func NewRequestHandler(s RequestWorkflow) *RequestHandler {
	return &RequestHandler{service: s}
}

type CreateRequest struct {
	Amount  int64   `json:"amount"`
	Comment *string `json:"comment,omitempty"`
}

func (h *RequestHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	// Кто просит — известно из токена, клиент это поле не передает
	requesterID := auth.UserIDFromContext(r.Context())

	created, err := h.service.Create(r.Context(), requesterID, req.Amount, req.Comment)
	if err != nil {
		writeOperationError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(created)
}

func (h *RequestHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := requestID(w, r)
	if !ok {
		return
	}

	req, err := h.service.Get(r.Context(), id)
	if err != nil {
		writeOperationError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(req)
}

func (h *RequestHandler) ListActive(w http.ResponseWriter, r *http.Request) {
	// Запросивший видит только свои заявки, одобряющий — все
	// (или конкретного участника через ?requester_id=)
	var filter *int64
	if auth.RoleFromContext(r.Context()) == domain.RoleRequester {
		id := auth.UserIDFromContext(r.Context())
		filter = &id
	} else if raw := r.URL.Query().Get("requester_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			http.Error(w, "invalid requester_id", http.StatusBadRequest)
			return
		}
		filter = &id
	}

	list, err := h.service.ListActive(r.Context(), filter)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(list)
}

func (h *RequestHandler) MonthReport(w http.ResponseWriter, r *http.Request) {
	year, err := strconv.Atoi(r.URL.Query().Get("year"))
	if err != nil {
		http.Error(w, "invalid year", http.StatusBadRequest)
		return
	}
	month, err := strconv.Atoi(r.URL.Query().Get("month"))
	if err != nil || month < 1 || month > 12 {
		http.Error(w, "invalid month", http.StatusBadRequest)
		return
	}

	// Отчет всегда про конкретного запросившего: сам участник — про себя,
	// одобряющий обязан указать, чей месяц смотрит
	requesterID := auth.UserIDFromContext(r.Context())
	if auth.RoleFromContext(r.Context()) == domain.RoleApprover {
		requesterID, err = strconv.ParseInt(r.URL.Query().Get("requester_id"), 10, 64)
		if err != nil {
			http.Error(w, "requester_id is required", http.StatusBadRequest)
			return
		}
	}

	report, err := h.service.MonthReport(r.Context(), requesterID, year, month)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(report)
}

type ApproveRequest struct {
	// Либо символьный вариант ("1h", "today", "tomorrow"),
	// либо готовый таймстемп из ручного ввода
	EtaOption string     `json:"eta_option,omitempty"`
	Eta       *time.Time `json:"eta,omitempty"`
	Comment   *string    `json:"comment,omitempty"`
}

func (h *RequestHandler) Approve(w http.ResponseWriter, r *http.Request) {
	id, ok := requestID(w, r)
	if !ok {
		return
	}

	var body ApproveRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	eta := h.service.EtaFromOption(body.EtaOption)
	if body.Eta != nil {
		eta = *body.Eta
	}

	h.respondTransition(w, r, func() (*domain.Request, error) {
		return h.service.Approve(r.Context(), id, eta, body.Comment)
	})
}

type RejectRequest struct {
	Comment *string `json:"comment,omitempty"`
}

func (h *RequestHandler) Reject(w http.ResponseWriter, r *http.Request) {
	id, ok := requestID(w, r)
	if !ok {
		return
	}

	var body RejectRequest
	// Тело опционально: reject можно слать и без комментария
	_ = json.NewDecoder(r.Body).Decode(&body)

	h.respondTransition(w, r, func() (*domain.Request, error) {
		return h.service.Reject(r.Context(), id, body.Comment)
	})
}

func (h *RequestHandler) MarkSent(w http.ResponseWriter, r *http.Request) {
	id, ok := requestID(w, r)
	if !ok {
		return
	}
	h.respondTransition(w, r, func() (*domain.Request, error) {
		return h.service.MarkSent(r.Context(), id)
	})
}

func (h *RequestHandler) ConfirmReceipt(w http.ResponseWriter, r *http.Request) {
	id, ok := requestID(w, r)
	if !ok {
		return
	}
	h.respondTransition(w, r, func() (*domain.Request, error) {
		return h.service.ConfirmReceipt(r.Context(), id)
	})
}

func (h *RequestHandler) DisputeReceipt(w http.ResponseWriter, r *http.Request) {
	id, ok := requestID(w, r)
	if !ok {
		return
	}
	h.respondTransition(w, r, func() (*domain.Request, error) {
		return h.service.DisputeReceipt(r.Context(), id)
	})
}

func (h *RequestHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := requestID(w, r)
	if !ok {
		return
	}
	h.respondTransition(w, r, func() (*domain.Request, error) {
		return h.service.Cancel(r.Context(), id)
	})
}

func (h *RequestHandler) Remind(w http.ResponseWriter, r *http.Request) {
	id, ok := requestID(w, r)
	if !ok {
		return
	}

	if err := h.service.Remind(r.Context(), id); err != nil {
		if errors.Is(err, notify.ErrReminderThrottled) {
			http.Error(w, "too many reminders", http.StatusTooManyRequests)
			return
		}
		writeOperationError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type MessageRefsRequest struct {
	RequesterMsgID *int64 `json:"requester_msg_id,omitempty"`
	ApproverMsgID  *int64 `json:"approver_msg_id,omitempty"`
}

func (h *RequestHandler) UpdateMessageRefs(w http.ResponseWriter, r *http.Request) {
	id, ok := requestID(w, r)
	if !ok {
		return
	}

	var body MessageRefsRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.service.UpdateMessageRefs(r.Context(), id, body.RequesterMsgID, body.ApproverMsgID); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// respondTransition — общий ответ для всех переходов:
// обновленная заявка или код отказа.
func (h *RequestHandler) respondTransition(w http.ResponseWriter, r *http.Request, op func() (*domain.Request, error)) {
	req, err := op()
	if err != nil {
		writeOperationError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(req)
}

// writeOperationError маппит доменные ошибки в HTTP коды.
// Declined — один ответ на "нет заявки" и "статус уже не тот":
// клиенту в обоих случаях делать нечего, кроме перерисовки.
func writeOperationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrDeclined):
		http.Error(w, "operation declined", http.StatusConflict)
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, "request not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func requestID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid request id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}
