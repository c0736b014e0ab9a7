package storage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"EmeraldKillfeed/internal/config"
)

// RedisStore хранит смещения в Redis: по хэшу на сервер,
// поле — имя файла, значение — число обработанных строк.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(cfg *config.RedisConfig, prefix string) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	// Проверяем подключение с тайм-аутом
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("не удалось подключиться к Redis: %w", err)
	}
	return &RedisStore{client: rdb, prefix: prefix}, nil
}

func (r *RedisStore) key(serverID string) string {
	return r.prefix + ":" + serverID
}

func (r *RedisStore) Load(ctx context.Context) (Offsets, error) {
	offsets := make(Offsets)
	iter := r.client.Scan(ctx, 0, r.prefix+":*", 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		serverID := key[len(r.prefix)+1:]
		fields, err := r.client.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, err
		}
		files := make(map[string]int, len(fields))
		for file, raw := range fields {
			n, err := strconv.Atoi(raw)
			if err != nil {
				continue // битое значение не должно ронять загрузку
			}
			files[file] = n
		}
		offsets[serverID] = files
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return offsets, nil
}

func (r *RedisStore) Save(ctx context.Context, data Offsets) error {
	pipe := r.client.Pipeline()
	for serverID, files := range data {
		if len(files) == 0 {
			pipe.Del(ctx, r.key(serverID))
			continue
		}
		vals := make(map[string]interface{}, len(files))
		for file, n := range files {
			vals[file] = n
		}
		pipe.HSet(ctx, r.key(serverID), vals)
	}
	_, err := pipe.Exec(ctx)
	return err
}
