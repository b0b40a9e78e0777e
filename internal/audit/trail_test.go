package audit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/getmoney-core/internal/domain"
	"go.uber.org/zap"
)

type memStorage struct {
	mu      sync.Mutex
	events  []TransitionEvent
	batches int
}

func (m *memStorage) WriteBatch(_ context.Context, events []TransitionEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, events...)
	m.batches++
	return nil
}

func (m *memStorage) snapshot() ([]TransitionEvent, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]TransitionEvent, len(m.events))
	copy(cp, m.events)
	return cp, m.batches
}

func event(id string, requestID int64) TransitionEvent {
	return TransitionEvent{
		ID:        id,
		RequestID: requestID,
		Operation: "approve",
		Status:    domain.StatusApproved,
		Actor:     "approver",
		Amount:    1000,
	}
}

func TestTrailDrainsBufferOnStop(t *testing.T) {
	storage := &memStorage{}
	// Большой интервал: до Stop тикер не успеет сработать,
	// значит все записи обязаны доехать через финальный flush
	trail := NewTrail(storage, zap.NewNop(), 100, 100, time.Hour, nil)
	trail.Start()

	for i := 0; i < 25; i++ {
		trail.Log(event("", int64(i)))
	}
	trail.Stop()

	events, _ := storage.snapshot()
	require.Len(t, events, 25)
	// Таймстемп проставляется автоматически
	for _, e := range events {
		assert.False(t, e.Timestamp.IsZero())
	}
}

func TestTrailFlushesFullBatches(t *testing.T) {
	storage := &memStorage{}
	trail := NewTrail(storage, zap.NewNop(), 100, 10, time.Hour, nil)
	trail.Start()

	for i := 0; i < 30; i++ {
		trail.Log(event("", int64(i)))
	}
	trail.Stop()

	events, batches := storage.snapshot()
	assert.Len(t, events, 30)
	// 3 полных пачки по 10, без хвоста
	assert.Equal(t, 3, batches)
}

func TestTrailDropsEventsAfterStop(t *testing.T) {
	storage := &memStorage{}
	trail := NewTrail(storage, zap.NewNop(), 100, 100, time.Hour, nil)
	trail.Start()
	trail.Stop()

	// Не должно паниковать и не должно ничего записать
	trail.Log(event("late", 1))

	events, _ := storage.snapshot()
	assert.Empty(t, events)
}

func TestTrailReportsBufferFill(t *testing.T) {
	storage := &memStorage{}

	var mu sync.Mutex
	reported := false
	trail := NewTrail(storage, zap.NewNop(), 100, 100, time.Hour, func(fill int) {
		mu.Lock()
		defer mu.Unlock()
		reported = true
	})
	trail.Start()
	trail.Log(event("", 1))
	trail.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, reported)
}
