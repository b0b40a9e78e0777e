package audit

/*
Файл trail.go реализует буферизованную запись истории переходов заявок.

Архитектура та же, что у высоконагруженных audit-пайплайнов:
- Non-blocking Logging: события уходят в канал, задержки БД не влияют
  на время ответа сервиса.
- Batching: накопление в памяти и пакетная вставка (Bulk Insert)
  по таймеру или при достижении лимита пачки.
- Drain Pattern & Graceful Shutdown: при остановке канал закрывается,
  воркер вычитывает остатки и делает финальный flush — записи не теряются.
*/

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// StorageInterface определяет, куда физически сохраняются события
type StorageInterface interface {
	// WriteBatch сохраняет пачку событий за один раз
	WriteBatch(ctx context.Context, events []TransitionEvent) error
}

// Recorder — то, что нужно сервису от аудита
type Recorder interface {
	Log(event TransitionEvent)
}

// FillReporter получает текущую заполненность буфера (метрика Saturation).
// Может быть nil, тогда метрика не снимается.
type FillReporter func(fill int)

type Trail struct {
	ch            chan TransitionEvent
	repo          StorageInterface
	logger        *zap.Logger
	wg            sync.WaitGroup
	batchSize     int
	flushInterval time.Duration
	reportFill    FillReporter
	// Защита от Log после остановки (0 - открыт, 1 - закрыт)
	isClosed int32
}

func NewTrail(repo StorageInterface, logger *zap.Logger, bufferSize, batchSize int, flushInterval time.Duration, reportFill FillReporter) *Trail {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = time.Second
	}
	return &Trail{
		ch:            make(chan TransitionEvent, bufferSize),
		repo:          repo,
		logger:        logger.With(zap.String("mod", "audit-trail")),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		reportFill:    reportFill,
	}
}

func (t *Trail) Start() {
	t.wg.Add(1)
	go t.worker()
}

// Stop «запирает» вход в канал и ждет, пока воркер всё допишет.
func (t *Trail) Stop() {
	// 1. Сначала ставим флаг
	atomic.StoreInt32(&t.isClosed, 1)

	// 2. Крошечная пауза, чтобы текущие Log успели проскочить
	time.Sleep(10 * time.Millisecond)

	// 3. Drain Pattern: завершение воркера — только через закрытие канала
	t.logger.Info("stopping audit trail: closing channel and flushing buffer...")
	close(t.ch)
	t.wg.Wait()
	t.logger.Info("audit trail stopped gracefully")
}

func (t *Trail) Log(event TransitionEvent) {
	// Таймстемп всегда проставлен
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if atomic.LoadInt32(&t.isClosed) == 1 {
		t.logger.Warn("audit event dropped: trail is stopping", zap.String("id", event.ID))
		return
	}

	// Load Shedding: при переполнении буфера событие уходит хотя бы в лог
	select {
	case t.ch <- event:
	default:
		t.logger.Error("audit_buffer_overflow",
			zap.Int64("request_id", event.RequestID),
			zap.String("operation", event.Operation),
		)
	}

	if t.reportFill != nil {
		t.reportFill(len(t.ch))
	}
}

func (t *Trail) worker() {
	defer t.wg.Done()

	batch := make([]TransitionEvent, 0, t.batchSize)
	ticker := time.NewTicker(t.flushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) > 0 {
			// Background: основной контекст к этому моменту может быть закрыт
			if err := t.repo.WriteBatch(context.Background(), batch); err != nil {
				t.logger.Error("audit flush failed", zap.Error(err))
			}
			batch = batch[:0]
		}
	}

	for {
		select {
		case event, ok := <-t.ch:
			if !ok {
				// Канал закрыт в Stop(): воркер уже вычитал остатки очереди,
				// остается финальный flush
				flush()
				t.logger.Info("audit worker finished")
				return
			}
			batch = append(batch, event)
			if len(batch) >= t.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
