// Package premium отвечает за премиум-уровни гильдий и доступ к функциям бота.
package premium

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Features — минимальный премиум-уровень для каждой функции бота
var Features = map[string]int{
	"killfeed":     0,
	"basic_stats":  1,
	"stats":        1,
	"leaderboards": 1,
	"rivalries":    2,
	"bounties":     2,
	"player_links": 2,
	"economy":      2,
	"factions":     3,
	"events":       3,
	"connections":  3,
}

// TierNames — отображаемые имена премиум-уровней
var TierNames = map[int]string{
	0: "Scavenger",
	1: "Survivor",
	2: "Mercenary",
	3: "Warlord",
	4: "Overseer",
	5: "Overseer",
}

// ServerLimits — максимум игровых серверов на гильдию по уровням
var ServerLimits = map[int]int{
	0: 1,
	1: 2,
	2: 3,
	3: 5,
	4: 8,
	5: 10,
}

// Store — источник премиум-уровней (MongoDB в продакшене)
type Store interface {
	GuildTier(ctx context.Context, guildID string) (tier int, found bool, err error)
	SetGuildTier(ctx context.Context, guildID string, tier int) error
}

type cacheEntry struct {
	tier    int
	expires time.Time
}

// Resolver кэширует уровни гильдий с TTL. Запись уровня инвалидирует
// кэш сразу, поэтому случайный обход кэша не нужен.
type Resolver struct {
	store Store
	lg    *zap.Logger
	ttl   time.Duration

	mu    sync.Mutex
	cache map[string]cacheEntry
}

func NewResolver(store Store, ttl time.Duration, lg *zap.Logger) *Resolver {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Resolver{
		store: store,
		lg:    lg,
		ttl:   ttl,
		cache: make(map[string]cacheEntry),
	}
}

// GuildTier возвращает актуальный уровень гильдии.
// Ошибка хранилища деградирует до уровня 0, чтобы сбой базы
// не ронял киллфид целиком.
func (r *Resolver) GuildTier(ctx context.Context, guildID string) int {
	now := time.Now()

	r.mu.Lock()
	if e, ok := r.cache[guildID]; ok && now.Before(e.expires) {
		r.mu.Unlock()
		return e.tier
	}
	r.mu.Unlock()

	tier, found, err := r.store.GuildTier(ctx, guildID)
	if err != nil {
		r.lg.Error("Ошибка запроса премиум-уровня, используем уровень 0",
			zap.String("guild_id", guildID), zap.Error(err))
		return 0
	}
	if !found {
		tier = 0
	}

	r.mu.Lock()
	r.cache[guildID] = cacheEntry{tier: tier, expires: now.Add(r.ttl)}
	r.mu.Unlock()
	return tier
}

// HasFeatureAccess проверяет доступ гильдии к функции.
// Уровень наследует все функции младших уровней.
func (r *Resolver) HasFeatureAccess(ctx context.Context, guildID, feature string) bool {
	min, ok := Features[feature]
	if !ok {
		return false
	}
	return r.GuildTier(ctx, guildID) >= min
}

// MinimumTierFor возвращает минимальный уровень для функции
func MinimumTierFor(feature string) (int, error) {
	min, ok := Features[feature]
	if !ok {
		return 0, fmt.Errorf("неизвестная функция: %s", feature)
	}
	return min, nil
}

// TierName возвращает отображаемое имя уровня
func TierName(tier int) string {
	if name, ok := TierNames[tier]; ok {
		return name
	}
	return TierNames[0]
}

// SetGuildTier записывает уровень в хранилище и тут же инвалидирует кэш
func (r *Resolver) SetGuildTier(ctx context.Context, guildID string, tier int) error {
	if err := r.store.SetGuildTier(ctx, guildID, tier); err != nil {
		return err
	}
	r.Invalidate(guildID)
	return nil
}

// Invalidate сбрасывает кэшированный уровень гильдии
func (r *Resolver) Invalidate(guildID string) {
	r.mu.Lock()
	delete(r.cache, guildID)
	r.mu.Unlock()
}

// ValidateServerLimit проверяет, можно ли гильдии добавить ещё один сервер
func (r *Resolver) ValidateServerLimit(ctx context.Context, guildID string, current int) error {
	tier := r.GuildTier(ctx, guildID)
	limit, ok := ServerLimits[tier]
	if !ok {
		limit = ServerLimits[0]
	}
	if current >= limit {
		return fmt.Errorf("лимит серверов исчерпан: %d/%d (уровень %s)",
			current, limit, TierName(tier))
	}
	return nil
}

// Run периодически чистит кэш от просроченных записей, пока не отменён
// контекст. Без чистки записи гильдий, которые больше не запрашиваются,
// висели бы в кэше вечно.
func (r *Resolver) Run(ctx context.Context) {
	ticker := time.NewTicker(r.ttl)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// Sweep удаляет просроченные записи кэша; Run зовёт его раз в TTL
func (r *Resolver) Sweep() {
	now := time.Now()
	r.mu.Lock()
	for id, e := range r.cache {
		if now.After(e.expires) {
			delete(r.cache, id)
		}
	}
	r.mu.Unlock()
}
