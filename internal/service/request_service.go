package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/xela07ax/getmoney-core/internal/audit"
	"github.com/xela07ax/getmoney-core/internal/domain"
	"github.com/xela07ax/getmoney-core/internal/infra"
	"go.uber.org/zap"
)

// RequestRepository описывает требования к хранилищу заявок
type RequestRepository interface {
	Create(ctx context.Context, req *domain.Request) error
	GetByID(ctx context.Context, id int64) (*domain.Request, error)
	FindActive(ctx context.Context, requesterID *int64) ([]*domain.Request, error)
	FindForMonth(ctx context.Context, requesterID int64, from, to time.Time) ([]*domain.Request, error)
	Transition(ctx context.Context, id int64, target domain.RequestStatus, allowed []domain.RequestStatus, eta *time.Time, approverComment *string) (*domain.Request, error)
	UpdateMessageRefs(ctx context.Context, id int64, requesterMsgID, approverMsgID *int64) error
}

// EventNotifier — хуки уведомлений для бот-процесса.
// Доставка best-effort: ошибка логируется, операцию не откатывает.
type EventNotifier interface {
	RequestEvent(ctx context.Context, requestID int64, status domain.RequestStatus) error
	Reminder(ctx context.Context, requestID int64, status domain.RequestStatus) error
}

type RequestService struct {
	repo     RequestRepository
	notifier EventNotifier
	auditor  audit.Recorder
	logger   *zap.Logger
	metrics  *infra.Metrics

	loc *time.Location
	cfg infra.WorkflowConfig

	// Подменяется в тестах для детерминированного времени
	now func() time.Time
}

func NewRequestService(
	repo RequestRepository,
	notifier EventNotifier,
	auditor audit.Recorder,
	logger *zap.Logger,
	metrics *infra.Metrics,
	cfg infra.WorkflowConfig,
) (*RequestService, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid workflow timezone %q: %w", cfg.Timezone, err)
	}
	if metrics == nil {
		metrics = infra.NewMetrics(nil)
	}
	return &RequestService{
		repo:     repo,
		notifier: notifier,
		auditor:  auditor,
		logger:   logger.Named("request-service"),
		metrics:  metrics,
		loc:      loc,
		cfg:      cfg,
		now:      time.Now,
	}, nil
}

// Location отдает рабочую таймзону сервиса (нужна обработчикам для ETA).
func (s *RequestService) Location() *time.Location {
	return s.loc
}

// EtaFromOption считает ETA от текущего момента в рабочей таймзоне.
func (s *RequestService) EtaFromOption(option string) time.Time {
	return domain.CalculateEta(option, s.now(), s.loc)
}

// Create заводит новую заявку в статусе pending.
// Границы суммы и длину комментария бот проверяет до вызова,
// но сервис перепроверяет сам — это его инвариант, не транспорта.
func (s *RequestService) Create(ctx context.Context, requesterID, amount int64, comment *string) (*domain.Request, error) {
	defer s.observe("create")()

	if amount < s.cfg.MinAmount || amount > s.cfg.MaxAmount {
		s.metrics.Transitions.WithLabelValues("create", "declined").Inc()
		return nil, fmt.Errorf("%w: amount %d out of bounds [%d, %d]",
			domain.ErrValidation, amount, s.cfg.MinAmount, s.cfg.MaxAmount)
	}
	if comment != nil && len([]rune(*comment)) > s.cfg.CommentMaxLen {
		s.metrics.Transitions.WithLabelValues("create", "declined").Inc()
		return nil, fmt.Errorf("%w: comment exceeds %d chars", domain.ErrValidation, s.cfg.CommentMaxLen)
	}

	req := &domain.Request{
		RequesterID:      requesterID,
		Amount:           amount,
		Status:           domain.StatusPending,
		RequesterComment: comment,
	}
	if err := s.repo.Create(ctx, req); err != nil {
		s.metrics.Transitions.WithLabelValues("create", "error").Inc()
		s.logger.Error("failed to create request",
			zap.Int64("requester_id", requesterID),
			zap.Int64("amount", amount),
			zap.Error(err))
		return nil, err
	}

	s.metrics.Transitions.WithLabelValues("create", "success").Inc()
	s.recordAudit(req, "create", domain.RoleRequester)
	s.signal(ctx, req)

	s.logger.Info("request created",
		zap.Int64("request_id", req.ID),
		zap.Int64("amount", amount))
	return req, nil
}

// Get — точечная выборка; domain.ErrNotFound если заявки нет.
func (s *RequestService) Get(ctx context.Context, id int64) (*domain.Request, error) {
	return s.repo.GetByID(ctx, id)
}

// ListActive возвращает заявки, требующие внимания, новые сверху.
// requesterID == nil — полный список (экран одобряющего).
func (s *RequestService) ListActive(ctx context.Context, requesterID *int64) ([]*domain.Request, error) {
	return s.repo.FindActive(ctx, requesterID)
}

// ListForMonth — все заявки участника за календарный месяц рабочей
// таймзоны. Порядок двухкорзинный: активные раньше финальных,
// внутри корзины — новые сверху.
func (s *RequestService) ListForMonth(ctx context.Context, requesterID int64, year, month int) ([]*domain.Request, error) {
	from, to := s.monthBounds(year, month)
	return s.repo.FindForMonth(ctx, requesterID, from, to)
}

// MonthlyStats агрегирует суммы месяца. Корзины пересекаются сознательно
// (см. domain.MonthlyStats) — не "чинить".
func (s *RequestService) MonthlyStats(ctx context.Context, requesterID int64, year, month int) (domain.MonthlyStats, error) {
	requests, err := s.ListForMonth(ctx, requesterID, year, month)
	if err != nil {
		return domain.MonthlyStats{}, err
	}
	return aggregateStats(requests), nil
}

// MonthReport — список и агрегаты одним ответом (месячный экран бота).
func (s *RequestService) MonthReport(ctx context.Context, requesterID int64, year, month int) (*domain.MonthReport, error) {
	requests, err := s.ListForMonth(ctx, requesterID, year, month)
	if err != nil {
		return nil, err
	}
	return &domain.MonthReport{
		Year:     year,
		Month:    month,
		Requests: requests,
		Stats:    aggregateStats(requests),
	}, nil
}

// aggregateStats складывает суммы месяца по пересекающимся корзинам.
func aggregateStats(requests []*domain.Request) domain.MonthlyStats {
	var stats domain.MonthlyStats
	for _, r := range requests {
		stats.Requested += r.Amount
		switch r.Status {
		case domain.StatusApproved, domain.StatusSent:
			stats.Approved += r.Amount
		case domain.StatusConfirmed:
			stats.Approved += r.Amount
			stats.Confirmed += r.Amount
		case domain.StatusRejected:
			stats.Rejected += r.Amount
		}
	}
	return stats
}

// Approve переводит pending -> approved, фиксирует ETA и комментарий.
func (s *RequestService) Approve(ctx context.Context, id int64, eta time.Time, comment *string) (*domain.Request, error) {
	return s.transition(ctx, "approve", id, domain.StatusApproved, domain.RoleApprover, &eta, comment)
}

// Reject: pending/approved -> rejected.
func (s *RequestService) Reject(ctx context.Context, id int64, comment *string) (*domain.Request, error) {
	return s.transition(ctx, "reject", id, domain.StatusRejected, domain.RoleApprover, nil, comment)
}

// MarkSent: pending/approved/disputed -> sent. Прямая отправка из pending
// пропускает этап одобрения; из disputed — повторная отправка после спора.
func (s *RequestService) MarkSent(ctx context.Context, id int64) (*domain.Request, error) {
	return s.transition(ctx, "mark_sent", id, domain.StatusSent, domain.RoleApprover, nil, nil)
}

// ConfirmReceipt: sent -> confirmed (финал).
func (s *RequestService) ConfirmReceipt(ctx context.Context, id int64) (*domain.Request, error) {
	return s.transition(ctx, "confirm_receipt", id, domain.StatusConfirmed, domain.RoleRequester, nil, nil)
}

// DisputeReceipt: sent -> disputed, деньги не дошли.
func (s *RequestService) DisputeReceipt(ctx context.Context, id int64) (*domain.Request, error) {
	return s.transition(ctx, "dispute_receipt", id, domain.StatusDisputed, domain.RoleRequester, nil, nil)
}

// Cancel: pending/approved -> cancelled (финал).
func (s *RequestService) Cancel(ctx context.Context, id int64) (*domain.Request, error) {
	return s.transition(ctx, "cancel", id, domain.StatusCancelled, domain.RoleRequester, nil, nil)
}

// Remind шлет напоминание второй стороне. Переходов не делает:
// заявка лишь должна быть в статусе, где напоминание уместно.
func (s *RequestService) Remind(ctx context.Context, id int64) error {
	req, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrDeclined
		}
		return err
	}
	if !req.Status.CanRemind() {
		return domain.ErrDeclined
	}
	return s.notifier.Reminder(ctx, req.ID, req.Status)
}

// UpdateMessageRefs — прозрачное хранилище ID сообщений чата.
// Отсутствие заявки — no-op, как и в боте-предшественнике.
func (s *RequestService) UpdateMessageRefs(ctx context.Context, id int64, requesterMsgID, approverMsgID *int64) error {
	return s.repo.UpdateMessageRefs(ctx, id, requesterMsgID, approverMsgID)
}

// transition — унифицированный механизм смены статуса.
// Репозиторий атомарно проверяет allowed-набор; nil-результат без ошибки
// означает "операция отклонена" (нет заявки или статус уже не тот).
func (s *RequestService) transition(
	ctx context.Context,
	operation string,
	id int64,
	target domain.RequestStatus,
	actor domain.Role,
	eta *time.Time,
	comment *string,
) (*domain.Request, error) {
	defer s.observe(operation)()

	req, err := s.repo.Transition(ctx, id, target, domain.AllowedSources(target), eta, comment)
	if err != nil {
		s.metrics.Transitions.WithLabelValues(operation, "error").Inc()
		s.logger.Error("transition failed",
			zap.String("operation", operation),
			zap.Int64("request_id", id),
			zap.Error(err))
		return nil, err
	}
	if req == nil {
		s.metrics.Transitions.WithLabelValues(operation, "declined").Inc()
		s.logger.Info("transition declined",
			zap.String("operation", operation),
			zap.Int64("request_id", id),
			zap.String("target", string(target)))
		return nil, domain.ErrDeclined
	}

	s.metrics.Transitions.WithLabelValues(operation, "success").Inc()
	s.recordAudit(req, operation, actor)
	s.signal(ctx, req)

	s.logger.Info("request transitioned",
		zap.String("operation", operation),
		zap.Int64("request_id", req.ID),
		zap.String("new_status", string(req.Status)))
	return req, nil
}

// signal — best-effort уведомление бот-процесса. Переход уже в базе,
// поэтому сбой доставки не откатывает операцию.
func (s *RequestService) signal(ctx context.Context, req *domain.Request) {
	if s.notifier == nil {
		return
	}
	_ = s.notifier.RequestEvent(ctx, req.ID, req.Status)
}

func (s *RequestService) recordAudit(req *domain.Request, operation string, actor domain.Role) {
	if s.auditor == nil {
		return
	}
	s.auditor.Log(audit.TransitionEvent{
		ID:        uuid.New().String(),
		RequestID: req.ID,
		Operation: operation,
		Status:    req.Status,
		Actor:     string(actor),
		Amount:    req.Amount,
		Timestamp: s.now(),
	})
}

// monthBounds — границы календарного месяца в рабочей таймзоне.
func (s *RequestService) monthBounds(year, month int) (time.Time, time.Time) {
	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, s.loc)
	return from, from.AddDate(0, 1, 0)
}

func (s *RequestService) observe(operation string) func() {
	start := s.now()
	return func() {
		s.metrics.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}
