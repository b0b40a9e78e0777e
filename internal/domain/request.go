package domain

import (
	"errors"
	"time"
)

// Статусы State Machine заявки на перевод денег
type RequestStatus string

const (
	StatusPending   RequestStatus = "pending"   // Ждет решения одобряющего
	StatusApproved  RequestStatus = "approved"  // Одобрено, назначен ETA
	StatusSent      RequestStatus = "sent"      // Деньги отправлены, ждем подтверждения
	StatusConfirmed RequestStatus = "confirmed" // Получение подтверждено (финал)
	StatusRejected  RequestStatus = "rejected"  // Отклонено одобряющим (финал)
	StatusCancelled RequestStatus = "cancelled" // Отменено запросившим (финал)
	StatusDisputed  RequestStatus = "disputed"  // Запросивший заявил, что деньги не дошли
)

// AllStatuses перечисляет все семь значений — для валидации и табличных тестов.
var AllStatuses = []RequestStatus{
	StatusPending, StatusApproved, StatusSent,
	StatusConfirmed, StatusRejected, StatusCancelled, StatusDisputed,
}

var (
	ErrNotFound          = errors.New("request not found")
	ErrInvalidTransition = errors.New("invalid request status transition")

	// ErrDeclined — единый сигнал "операция не прошла" для вызывающей стороны.
	// Схлопывает ErrNotFound и ErrInvalidTransition на границе сервиса:
	// проигравший гонку или опоздавший клик получает один и тот же ответ.
	ErrDeclined = errors.New("operation declined")

	ErrValidation = errors.New("validation failed")
)

// IsFinal — терминальные статусы. Из них переходов не существует,
// заявка остается в истории для отчетов.
func (s RequestStatus) IsFinal() bool {
	return s == StatusConfirmed || s == StatusRejected || s == StatusCancelled
}

// IsActive — заявка еще требует чьего-то действия.
func (s RequestStatus) IsActive() bool {
	return !s.IsFinal()
}

// CanCancel — запросивший может отменить только до отправки денег.
func (s RequestStatus) CanCancel() bool {
	return s == StatusPending || s == StatusApproved
}

// CanRemind — по каким статусам уместно слать напоминание второй стороне.
func (s RequestStatus) CanRemind() bool {
	return s == StatusPending || s == StatusApproved || s == StatusDisputed
}

// CanConfirmReceipt — подтвердить получение можно только после отправки.
func (s RequestStatus) CanConfirmReceipt() bool {
	return s == StatusSent
}

// CanDispute — оспорить получение можно только после отправки.
func (s RequestStatus) CanDispute() bool {
	return s == StatusSent
}

// Таблица переходов: целевой статус -> допустимые исходные.
// Это единственная точка правды конечного автомата; репозиторий
// передает allowed-набор прямо в условие атомарного UPDATE.
var transitionSources = map[RequestStatus][]RequestStatus{
	StatusApproved:  {StatusPending},
	StatusRejected:  {StatusPending, StatusApproved},
	StatusSent:      {StatusPending, StatusApproved, StatusDisputed},
	StatusConfirmed: {StatusSent},
	StatusDisputed:  {StatusSent},
	StatusCancelled: {StatusPending, StatusApproved},
}

// AllowedSources возвращает набор исходных статусов, из которых
// разрешен переход в target. Пустой срез — перехода не существует.
func AllowedSources(target RequestStatus) []RequestStatus {
	return transitionSources[target]
}

// CanTransition проверяет правила конечного автомата без обращения к БД.
// Используется для предварительных проверок и в тестах; финальную гарантию
// дает условный UPDATE в репозитории.
func CanTransition(from, to RequestStatus) bool {
	for _, src := range transitionSources[to] {
		if src == from {
			return true
		}
	}
	return false
}

// Request — заявка на перевод денег между двумя участниками.
type Request struct {
	ID          int64         `json:"id"`
	RequesterID int64         `json:"requester_id"` // Кто просит деньги
	Amount      int64         `json:"amount"`       // Целое, без копеек
	Status      RequestStatus `json:"status"`

	RequesterComment *string    `json:"requester_comment,omitempty"`
	ApproverComment  *string    `json:"approver_comment,omitempty"`
	Eta              *time.Time `json:"eta,omitempty"` // Ставится только при одобрении, не очищается

	// ID сообщений чат-транспорта для редактирования ранее отправленных
	// уведомлений. Ядро их только хранит, семантики не назначает.
	RequesterMsgID *int64 `json:"requester_msg_id,omitempty"`
	ApproverMsgID  *int64 `json:"approver_msg_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
