package audit

import (
	"time"

	"github.com/xela07ax/getmoney-core/internal/domain"
)

// TransitionEvent — одна запись истории жизненного цикла заявки.
// В чатах эта история существует только в виде отредактированных
// сообщений; здесь она хранится в пригодном для разбора виде.
type TransitionEvent struct {
	ID        string               `json:"id"`         // UUID события
	RequestID int64                `json:"request_id"` // Какая заявка
	Operation string               `json:"operation"`  // create, approve, reject, mark_sent...
	Status    domain.RequestStatus `json:"status"`     // Статус после операции
	Actor     string               `json:"actor"`      // Роль инициатора: requester/approver
	Amount    int64                `json:"amount"`
	Timestamp time.Time            `json:"timestamp"`
}
