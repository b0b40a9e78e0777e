package domain

import "time"

// Символьные варианты ETA, которые присылают кнопки одобряющего.
const (
	EtaOptionHour     = "1h"
	EtaOptionToday    = "today"
	EtaOptionTomorrow = "tomorrow"
)

// CalculateEta превращает символьный вариант в конкретный момент времени.
// Границы "сегодня"/"завтра" — календарные сутки в переданной таймзоне,
// не UTC. Любой нераспознанный вариант дает дефолт now+24h.
func CalculateEta(option string, now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)

	switch option {
	case EtaOptionHour:
		return local.Add(time.Hour)
	case EtaOptionToday:
		// Сегодня в 21:00, секунды и доли обнуляем
		return time.Date(local.Year(), local.Month(), local.Day(), 21, 0, 0, 0, loc)
	case EtaOptionTomorrow:
		// Завтра в 12:00; AddDate корректно переживает границу месяца
		next := local.AddDate(0, 0, 1)
		return time.Date(next.Year(), next.Month(), next.Day(), 12, 0, 0, 0, loc)
	default:
		return local.Add(24 * time.Hour)
	}
}
