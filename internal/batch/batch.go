package batch

import (
	"context"
	"time"

	"go.uber.org/zap"

	"EmeraldKillfeed/internal/models"
)

// Sink принимает пачку событий (MongoDB в продакшене)
type Sink interface {
	InsertEvents(ctx context.Context, events []models.KillEvent) error
}

// Batcher накапливает события киллфида и отправляет их в хранилище пачками
// batchSize — сколько событий отправлять за раз
// batchInterval — максимальный интервал между отправками (секунды)
type Batcher struct {
	batchSize     int
	batchInterval time.Duration
	logger        *zap.Logger
	sink          Sink

	in chan models.KillEvent
}

// NewBatcher создает новый batcher
func NewBatcher(batchSize int, batchInterval int, logger *zap.Logger, sink Sink) *Batcher {
	return &Batcher{
		batchSize:     batchSize,
		batchInterval: time.Duration(batchInterval) * time.Second,
		logger:        logger,
		sink:          sink,
		in:            make(chan models.KillEvent, batchSize*2),
	}
}

// In — входной канал для событий
func (b *Batcher) In() chan<- models.KillEvent { return b.in }

// Run запускает сборку и отправку пачек в хранилище
func (b *Batcher) Run(ctx context.Context) {
	batch := make([]models.KillEvent, 0, b.batchSize)
	timer := time.NewTimer(b.batchInterval)
	defer timer.Stop()

	flush := func(reason string) {
		if len(batch) == 0 {
			return
		}
		b.logger.Info("Отправляем пачку событий", zap.Int("count", len(batch)), zap.String("reason", reason))
		err := b.sink.InsertEvents(ctx, batch)
		if err != nil {
			b.logger.Error("Ошибка при отправке пачки событий", zap.Error(err))
		} else {
			b.logger.Debug("Пачка успешно отправлена", zap.Int("count", len(batch)))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush("graceful shutdown")
			return
		case ev := <-b.in:
			batch = append(batch, ev)
			if len(batch) >= b.batchSize {
				flush("batch size reached")
				timer.Reset(b.batchInterval)
			}
		case <-timer.C:
			flush("interval")
			timer.Reset(b.batchInterval)
		}
	}
}
