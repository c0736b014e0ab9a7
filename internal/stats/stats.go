// Package stats пишет события киллфида в MongoDB и ведёт агрегаты игроков.
package stats

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"EmeraldKillfeed/internal/models"
	"EmeraldKillfeed/internal/storage"
)

const writeTimeout = 10 * time.Second

// Writer сохраняет события и обновляет статистику игроков.
// Реализует batch.Sink.
type Writer struct {
	db *storage.Database
	lg *zap.Logger
}

func NewWriter(db *storage.Database, lg *zap.Logger) *Writer {
	return &Writer{db: db, lg: lg}
}

// InsertEvents пишет пачку событий в коллекцию kills и инкрементирует
// агрегаты игроков. Частично неудачная запись агрегатов не откатывает
// события: статистика догонится на следующем проходе.
func (w *Writer) InsertEvents(ctx context.Context, events []models.KillEvent) error {
	if len(events) == 0 {
		return nil
	}

	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	docs := make([]interface{}, 0, len(events))
	for _, ev := range events {
		docs = append(docs, ev)
	}
	if _, err := w.db.Kills().InsertMany(wctx, docs, options.InsertMany().SetOrdered(false)); err != nil {
		return fmt.Errorf("insert kill events: %w", err)
	}

	if err := w.updatePlayerStats(wctx, events); err != nil {
		w.lg.Error("Ошибка обновления статистики игроков", zap.Error(err))
	}
	return nil
}

// updatePlayerStats накапливает инкременты по игрокам в памяти и
// применяет их одним bulk-запросом с upsert-ом
func (w *Writer) updatePlayerStats(ctx context.Context, events []models.KillEvent) error {
	type delta struct {
		name                    string
		kills, deaths, suicides int64
	}
	deltas := make(map[string]*delta)

	get := func(serverID, playerID, name string) *delta {
		key := serverID + "|" + playerID
		d, ok := deltas[key]
		if !ok {
			d = &delta{name: name}
			deltas[key] = d
		}
		return d
	}

	for _, ev := range events {
		if ev.EventType == models.EventSuicide {
			get(ev.ServerID, ev.VictimID, ev.VictimName).suicides++
			continue
		}
		get(ev.ServerID, ev.KillerID, ev.KillerName).kills++
		get(ev.ServerID, ev.VictimID, ev.VictimName).deaths++
	}

	ops := make([]mongo.WriteModel, 0, len(deltas))
	for key, d := range deltas {
		serverID, playerID := splitKey(key)
		inc := bson.M{}
		if d.kills > 0 {
			inc["kills"] = d.kills
		}
		if d.deaths > 0 {
			inc["deaths"] = d.deaths
		}
		if d.suicides > 0 {
			inc["suicides"] = d.suicides
		}
		ops = append(ops, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"server_id": serverID, "player_id": playerID}).
			SetUpdate(bson.M{
				"$inc": inc,
				"$set": bson.M{"name": d.name, "updated_at": time.Now()},
			}).
			SetUpsert(true))
	}
	if len(ops) == 0 {
		return nil
	}

	_, err := w.db.Players().BulkWrite(ctx, ops, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return fmt.Errorf("bulk update player stats: %w", err)
	}
	return nil
}

func splitKey(key string) (serverID, playerID string) {
	for i := 0; i < len(key); i++ {
		if key[i] == '|' {
			return key[:i], key[i+1:]
		}
	}
	return key, ""
}
