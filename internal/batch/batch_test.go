package batch

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"EmeraldKillfeed/internal/models"
)

type captureSink struct {
	mu      sync.Mutex
	batches [][]models.KillEvent
}

func (c *captureSink) InsertEvents(_ context.Context, events []models.KillEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	batch := make([]models.KillEvent, len(events))
	copy(batch, events)
	c.batches = append(c.batches, batch)
	return nil
}

func (c *captureSink) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, b := range c.batches {
		n += len(b)
	}
	return n
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestBatcher_FlushOnSize(t *testing.T) {
	sink := &captureSink{}
	b := NewBatcher(3, 600, zap.NewNop(), sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	for i := 0; i < 3; i++ {
		b.In() <- models.KillEvent{KillerID: "k", VictimID: "v"}
	}

	// Интервал огромный: пачка должна уйти по размеру
	waitFor(t, func() bool { return sink.total() == 3 })

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.batches) != 1 || len(sink.batches[0]) != 3 {
		t.Errorf("expected one batch of 3, got %v", sink.batches)
	}
}

func TestBatcher_FlushOnInterval(t *testing.T) {
	sink := &captureSink{}
	b := NewBatcher(100, 1, zap.NewNop(), sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	b.In() <- models.KillEvent{KillerID: "k", VictimID: "v"}

	waitFor(t, func() bool { return sink.total() == 1 })
}

func TestBatcher_FlushOnShutdown(t *testing.T) {
	sink := &captureSink{}
	b := NewBatcher(100, 600, zap.NewNop(), sink)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { b.Run(ctx); close(done) }()

	b.In() <- models.KillEvent{KillerID: "k", VictimID: "v"}
	b.In() <- models.KillEvent{KillerID: "k2", VictimID: "v2"}

	// Даём батчеру забрать события из канала, затем останавливаем
	waitFor(t, func() bool { return len(b.in) == 0 })
	cancel()
	<-done

	if sink.total() != 2 {
		t.Errorf("pending events must be flushed on shutdown, got %d", sink.total())
	}
}
