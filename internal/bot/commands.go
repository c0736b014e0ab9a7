package bot

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"EmeraldKillfeed/internal/models"
	"EmeraldKillfeed/internal/premium"
)

func commandDefinitions() []*discordgo.ApplicationCommand {
	serverOption := &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "server",
		Description: "Идентификатор игрового сервера",
		Required:    false,
	}
	return []*discordgo.ApplicationCommand{
		{
			Name:        "status",
			Description: "Состояние обработки death-логов",
			Options:     []*discordgo.ApplicationCommandOption{serverOption},
		},
		{
			Name:        "stats",
			Description: "Статистика игрока",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "player",
					Description: "Имя игрока",
					Required:    true,
				},
				serverOption,
			},
		},
		{
			Name:        "leaderboard",
			Description: "Лидеры сервера по убийствам",
			Options:     []*discordgo.ApplicationCommandOption{serverOption},
		},
		{
			Name:        "premium",
			Description: "Премиум-уровень гильдии и доступные функции",
		},
		{
			Name:        "parse-history",
			Description: "Запустить полный исторический разбор логов сервера",
			Options:     []*discordgo.ApplicationCommandOption{serverOption},
		},
	}
}

// pickServer выбирает сервер гильдии: из опции команды, либо
// единственный привязанный сервер
func (b *Bot) pickServer(ctx context.Context, i *discordgo.InteractionCreate, explicit string) (string, error) {
	servers, err := b.db.GuildServers(ctx, i.GuildID)
	if err != nil {
		return "", err
	}
	if len(servers) == 0 {
		return "", fmt.Errorf("к этой гильдии не привязано ни одного сервера")
	}
	if explicit == "" {
		return servers[0].ServerID, nil
	}
	for _, srv := range servers {
		if srv.ServerID == explicit || srv.OriginalServerID == explicit || srv.ServerName == explicit {
			return srv.ServerID, nil
		}
	}
	return "", fmt.Errorf("сервер %q не привязан к этой гильдии", explicit)
}

func optionValue(i *discordgo.InteractionCreate, name string) string {
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == name {
			return opt.StringValue()
		}
	}
	return ""
}

func (b *Bot) handleStatus(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	serverID, err := b.pickServer(ctx, i, optionValue(i, "server"))
	if err != nil {
		respond(s, i, err.Error())
		return
	}

	run, ok := b.coord.LastRun(serverID)
	if !ok {
		respond(s, i, "По этому серверу ещё не было ни одного прогона.")
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "**Последний прогон** (`%s`)\n", run.Mode)
	fmt.Fprintf(&sb, "Начат: %s\n", run.StartedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&sb, "Длительность: %s\n", run.Duration.Round(time.Millisecond))
	fmt.Fprintf(&sb, "Файлов найдено: %d, обработано: %d\n", run.FilesFound, run.FilesProcessed)
	fmt.Fprintf(&sb, "Событий: %d\n", run.EventsProcessed)
	fmt.Fprintf(&sb, "Интервал опроса: %s", b.coord.Interval(serverID))
	respond(s, i, sb.String())
}

func (b *Bot) handleStats(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !b.requireFeature(s, i, "stats") {
		return
	}

	// Запросы к базе могут не уложиться в 3 секунды взаимодействия,
	// поэтому отвечаем отложенно и потом редактируем ответ
	respondDeferred(s, i)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	player := optionValue(i, "player")
	serverID, err := b.pickServer(ctx, i, optionValue(i, "server"))
	if err != nil {
		b.editResponse(s, i, err.Error())
		return
	}

	ps, err := b.db.FindPlayer(ctx, serverID, player)
	if err != nil {
		b.lg.Error("Ошибка запроса статистики игрока", zap.Error(err))
		b.editResponse(s, i, "Не удалось получить статистику, попробуйте позже.")
		return
	}
	if ps == nil {
		b.editResponse(s, i, fmt.Sprintf("Игрок `%s` не найден на этом сервере.", player))
		return
	}

	b.editResponse(s, i, formatPlayerStats(ps))
}

func formatPlayerStats(ps *models.PlayerStats) string {
	kd := float64(ps.Kills)
	if ps.Deaths > 0 {
		kd = float64(ps.Kills) / float64(ps.Deaths)
	}
	return fmt.Sprintf("**%s**\nУбийств: %d\nСмертей: %d\nСуицидов: %d\nK/D: %.2f",
		ps.Name, ps.Kills, ps.Deaths, ps.Suicides, kd)
}

func (b *Bot) handleLeaderboard(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !b.requireFeature(s, i, "leaderboards") {
		return
	}

	respondDeferred(s, i)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	serverID, err := b.pickServer(ctx, i, optionValue(i, "server"))
	if err != nil {
		b.editResponse(s, i, err.Error())
		return
	}

	players, err := b.db.TopPlayers(ctx, serverID, 10)
	if err != nil {
		b.lg.Error("Ошибка запроса таблицы лидеров", zap.Error(err))
		b.editResponse(s, i, "Не удалось получить таблицу лидеров, попробуйте позже.")
		return
	}
	if len(players) == 0 {
		b.editResponse(s, i, "На этом сервере пока нет статистики.")
		return
	}

	b.editResponse(s, i, formatLeaderboard(players))
}

func formatLeaderboard(players []models.PlayerStats) string {
	var sb strings.Builder
	sb.WriteString("**Лидеры по убийствам:**\n")
	for idx, p := range players {
		fmt.Fprintf(&sb, "%d. `%s` — %d убийств, %d смертей\n", idx+1, p.Name, p.Kills, p.Deaths)
	}
	return sb.String()
}

func (b *Bot) handlePremium(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tier := b.resolver.GuildTier(ctx, i.GuildID)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Премиум-уровень гильдии: **%s** (%d)\n\nДоступные функции:\n", premium.TierName(tier), tier)
	for _, feature := range availableFeatures(tier) {
		fmt.Fprintf(&sb, "• %s\n", feature)
	}
	respond(s, i, sb.String())
}

// availableFeatures — функции, доступные на уровне tier, по алфавиту:
// порядок обхода map плавает от вызова к вызову
func availableFeatures(tier int) []string {
	var out []string
	for feature, min := range premium.Features {
		if tier >= min {
			out = append(out, feature)
		}
	}
	sort.Strings(out)
	return out
}

func (b *Bot) handleParseHistory(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	serverID, err := b.pickServer(ctx, i, optionValue(i, "server"))
	if err != nil {
		respond(s, i, err.Error())
		return
	}

	servers, err := b.db.GuildServers(ctx, i.GuildID)
	if err != nil {
		respond(s, i, "Не удалось получить серверы гильдии.")
		return
	}
	for _, srv := range servers {
		if srv.ServerID != serverID {
			continue
		}
		b.coord.TriggerHistorical(context.Background(), srv)
		respond(s, i, fmt.Sprintf("Исторический разбор сервера `%s` запущен. Киллфид возобновится после его завершения.", serverID))
		return
	}
	respond(s, i, "Сервер не найден.")
}
