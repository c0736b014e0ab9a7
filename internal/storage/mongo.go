package storage

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"EmeraldKillfeed/internal/models"
)

const queryTimeout = 3 * time.Second

// Database — обёртка над MongoDB с коллекциями гильдий, серверов и событий
type Database struct {
	db *mongo.Database
	lg *zap.Logger
}

// Connect подключается к MongoDB и проверяет соединение ping-ом с тайм-аутом
func Connect(ctx context.Context, uri, name string, lg *zap.Logger) (*Database, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		return nil, fmt.Errorf("не удалось подключиться к MongoDB: %w", err)
	}
	return &Database{db: client.Database(name), lg: lg}, nil
}

func (d *Database) Guilds() *mongo.Collection  { return d.db.Collection("guilds") }
func (d *Database) Servers() *mongo.Collection { return d.db.Collection("servers") }
func (d *Database) Kills() *mongo.Collection   { return d.db.Collection("kills") }
func (d *Database) Players() *mongo.Collection { return d.db.Collection("player_stats") }

// Close разрывает соединение с MongoDB
func (d *Database) Close(ctx context.Context) error {
	return d.db.Client().Disconnect(ctx)
}

// ListServers возвращает все игровые серверы для цикла опроса
func (d *Database) ListServers(ctx context.Context) ([]models.GameServer, error) {
	qctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	cur, err := d.Servers().Find(qctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("list servers: %w", err)
	}
	defer cur.Close(qctx)

	var servers []models.GameServer
	if err := cur.All(qctx, &servers); err != nil {
		return nil, fmt.Errorf("decode servers: %w", err)
	}
	return servers, nil
}

// GuildServers возвращает серверы, привязанные к гильдии
func (d *Database) GuildServers(ctx context.Context, guildID string) ([]models.GameServer, error) {
	qctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	cur, err := d.Servers().Find(qctx, bson.M{"guild_id": guildID})
	if err != nil {
		return nil, fmt.Errorf("guild servers %s: %w", guildID, err)
	}
	defer cur.Close(qctx)

	var servers []models.GameServer
	if err := cur.All(qctx, &servers); err != nil {
		return nil, fmt.Errorf("decode guild servers: %w", err)
	}
	return servers, nil
}

// FindPlayer ищет статистику игрока по имени без учёта регистра
func (d *Database) FindPlayer(ctx context.Context, serverID, name string) (*models.PlayerStats, error) {
	qctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var ps models.PlayerStats
	err := d.Players().FindOne(qctx, bson.M{
		"server_id": serverID,
		"name": bson.M{
			"$regex":   "^" + regexp.QuoteMeta(name) + "$",
			"$options": "i",
		},
	}).Decode(&ps)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find player %s: %w", name, err)
	}
	return &ps, nil
}

// TopPlayers возвращает лидеров сервера по убийствам
func (d *Database) TopPlayers(ctx context.Context, serverID string, limit int) ([]models.PlayerStats, error) {
	qctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "kills", Value: -1}}).SetLimit(int64(limit))
	cur, err := d.Players().Find(qctx, bson.M{"server_id": serverID}, opts)
	if err != nil {
		return nil, fmt.Errorf("top players %s: %w", serverID, err)
	}
	defer cur.Close(qctx)

	var players []models.PlayerStats
	if err := cur.All(qctx, &players); err != nil {
		return nil, fmt.Errorf("decode top players: %w", err)
	}
	return players, nil
}

// guildTierDoc — проекция документа гильдии для премиум-запросов.
// premium_tier берётся как any: в старых документах он встречается строкой.
type guildTierDoc struct {
	ID             primitive.ObjectID `bson:"_id"`
	PremiumTier    any                `bson:"premium_tier"`
	PremiumExpires *time.Time         `bson:"premium_expires"`
}

// GuildTier возвращает премиум-уровень гильдии.
// Порядок запросов: точное совпадение ID → $or по строковому и числовому
// представлению → регистронезависимый regex. Уровень нормализуется
// к int в [0, 5]; нечисловое хранимое значение и истёкший премиум
// исправляются в базе как побочный эффект.
func (d *Database) GuildTier(ctx context.Context, guildID string) (int, bool, error) {
	qctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	proj := options.FindOne().SetProjection(bson.M{"premium_tier": 1, "premium_expires": 1})

	var doc guildTierDoc
	err := d.Guilds().FindOne(qctx, bson.M{"guild_id": guildID}, proj).Decode(&doc)

	if err == mongo.ErrNoDocuments && isAllDigits(guildID) {
		n, _ := strconv.ParseInt(guildID, 10, 64)
		err = d.Guilds().FindOne(qctx, bson.M{"$or": bson.A{
			bson.M{"guild_id": guildID},
			bson.M{"guild_id": n},
		}}, proj).Decode(&doc)
	}
	if err == mongo.ErrNoDocuments {
		err = d.Guilds().FindOne(qctx, bson.M{"guild_id": bson.M{
			"$regex":   "^" + regexp.QuoteMeta(guildID) + "$",
			"$options": "i",
		}}, proj).Decode(&doc)
	}
	if err == mongo.ErrNoDocuments {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("guild tier query %s: %w", guildID, err)
	}

	tier, wasInt := normalizeTier(doc.PremiumTier)

	// Нечисловое значение в базе исправляем на месте
	if !wasInt {
		d.lg.Warn("premium_tier хранился не числом, нормализуем",
			zap.String("guild_id", guildID), zap.Int("tier", tier))
		d.writeTier(ctx, doc.ID, tier)
	}

	// Истёкший премиум откатывает уровень в 0 и тоже фиксируется в базе
	if doc.PremiumExpires != nil && doc.PremiumExpires.Before(time.Now()) && tier > 0 {
		d.lg.Info("Премиум гильдии истёк, откатываем уровень",
			zap.String("guild_id", guildID), zap.Time("expired", *doc.PremiumExpires))
		tier = 0
		d.writeTier(ctx, doc.ID, 0)
	}

	return tier, true, nil
}

// SetGuildTier выставляет премиум-уровень гильдии
func (d *Database) SetGuildTier(ctx context.Context, guildID string, tier int) error {
	qctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tier = clampTier(tier)
	_, err := d.Guilds().UpdateOne(qctx,
		bson.M{"guild_id": guildID},
		bson.M{"$set": bson.M{"premium_tier": tier, "updated_at": time.Now()}},
		options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("set guild tier %s: %w", guildID, err)
	}
	return nil
}

// writeTier пишет исправленный уровень; ошибка записи не должна
// ломать сам запрос уровня, поэтому только логируется
func (d *Database) writeTier(ctx context.Context, id primitive.ObjectID, tier int) {
	qctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	if _, err := d.Guilds().UpdateByID(qctx, id, bson.M{"$set": bson.M{"premium_tier": tier}}); err != nil {
		d.lg.Error("Не удалось записать нормализованный premium_tier", zap.Error(err))
	}
}

// normalizeTier приводит хранимое значение premium_tier к int в [0, 5].
// Второе значение — хранилось ли оно уже как целое число.
func normalizeTier(raw any) (int, bool) {
	switch v := raw.(type) {
	case int:
		return clampTier(v), true
	case int32:
		return clampTier(int(v)), true
	case int64:
		return clampTier(int(v)), true
	case float64:
		return clampTier(int(v)), false
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return clampTier(n), false
		}
		return 0, false
	case nil:
		return 0, false
	default:
		return 0, false
	}
}

func clampTier(t int) int {
	if t < 0 {
		return 0
	}
	if t > 5 {
		return 5
	}
	return t
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
