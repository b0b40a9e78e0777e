package notify

/*
Пакет notify доставляет события жизненного цикла заявок в Redis Pub/Sub.
Подписчик — бот-процесс (презентационный слой), который по событиям
перерисовывает сообщения обеих сторон.

Доставка обернута в контур надежности:
- Retry с экспоненциальным бэкоффом на кратковременные сбои Redis;
- Circuit Breaker, чтобы при лежащем Redis не тратить время ответа
  на заведомо мертвые попытки;
- Rate Limiter на напоминания — кнопка "напомнить" не должна
  превращаться в спам-канал.

Недоставленное уведомление не валит операцию: переход уже зафиксирован
в Postgres, бот догонит состояние при следующем запросе.
*/

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"github.com/xela07ax/getmoney-core/internal/domain"
	"github.com/xela07ax/getmoney-core/internal/infra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrReminderThrottled — напоминание срезано локальным лимитером.
var ErrReminderThrottled = errors.New("reminder rate limit exceeded")

// Publisher — то, что нам нужно от Redis клиента (сужение для тестов)
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

type Notifier struct {
	pub     Publisher
	cb      *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	logger  *zap.Logger
	onFail  func() // Инкремент метрики недоставленных
}

func NewNotifier(pub Publisher, logger *zap.Logger, onFail func()) *Notifier {
	// Настройка предохранителя
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "request-events",
		MaxRequests: 3,
		Interval:    5 * time.Second,
		Timeout:     30 * time.Second, // Через это время CB попробует "закрыться"
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// Более 5 ошибок подряд — открываемся (перестаем дергать Redis)
			return counts.ConsecutiveFailures > 5
		},
	})

	// Напоминания: не чаще одного в секунду, всплеск до трех
	limiter := rate.NewLimiter(rate.Limit(1), 3)

	if onFail == nil {
		onFail = func() {}
	}

	return &Notifier{
		pub:     pub,
		cb:      cb,
		limiter: limiter,
		logger:  logger.Named("notifier"),
		onFail:  onFail,
	}
}

// RequestEvent публикует смену статуса заявки.
func (n *Notifier) RequestEvent(ctx context.Context, requestID int64, status domain.RequestStatus) error {
	payload := infra.RequestEventPayload(requestID, string(status))
	if err := n.publish(ctx, infra.RedisChanRequestEvents, payload); err != nil {
		n.onFail()
		n.logger.Warn("request event delivery failed",
			zap.Int64("request_id", requestID),
			zap.String("status", string(status)),
			zap.Error(err))
		return err
	}
	return nil
}

// Reminder публикует напоминание второй стороне.
func (n *Notifier) Reminder(ctx context.Context, requestID int64, status domain.RequestStatus) error {
	if !n.limiter.Allow() {
		return ErrReminderThrottled
	}
	payload := infra.RequestEventPayload(requestID, string(status))
	if err := n.publish(ctx, infra.RedisChanReminders, payload); err != nil {
		n.onFail()
		n.logger.Warn("reminder delivery failed",
			zap.Int64("request_id", requestID),
			zap.Error(err))
		return err
	}
	return nil
}

func (n *Notifier) publish(ctx context.Context, channel, payload string) error {
	_, err := n.cb.Execute(func() (interface{}, error) {
		r := retry.New(
			retry.Context(ctx),
			retry.Attempts(3),
		)
		retryErr := r.Do(func() error {
			tCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			return n.pub.Publish(tCtx, channel, payload).Err()
		})
		return nil, retryErr
	})
	if err != nil {
		return fmt.Errorf("notify: publish to %s failed: %w", channel, err)
	}
	return nil
}
