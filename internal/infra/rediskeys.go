package infra

import "fmt"

const (
	// RedisNamespace Базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "getmoney"
)

// Каналы Pub/Sub (события для чат-транспорта)
const (
	// RedisChanRequestEvents — канал смены статусов заявок.
	// Формат сообщения: "<request_id>:<status>". Бот-процесс слушает его
	// и перерисовывает сообщения обеих сторон.
	RedisChanRequestEvents = RedisNamespace + ":requests:events"

	// RedisChanReminders — канал напоминаний ("поторопи вторую сторону").
	RedisChanReminders = RedisNamespace + ":requests:reminders"
)

// RequestEventPayload собирает сообщение для канала событий.
func RequestEventPayload(requestID int64, status string) string {
	return fmt.Sprintf("%d:%s", requestID, status)
}
