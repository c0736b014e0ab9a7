// Package bot — Discord-интерфейс киллфида: slash-команды статистики,
// премиума и управления разбором логов.
package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"EmeraldKillfeed/internal/coordinator"
	"EmeraldKillfeed/internal/premium"
	"EmeraldKillfeed/internal/storage"
)

// Bot держит сессию Discord и зависимости обработчиков команд
type Bot struct {
	session  *discordgo.Session
	db       *storage.Database
	resolver *premium.Resolver
	coord    *coordinator.Coordinator
	lg       *zap.Logger
	commands []*discordgo.ApplicationCommand
}

func New(token string, db *storage.Database, resolver *premium.Resolver, coord *coordinator.Coordinator, lg *zap.Logger) (*Bot, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds

	b := &Bot{
		session:  session,
		db:       db,
		resolver: resolver,
		coord:    coord,
		lg:       lg,
	}
	session.AddHandler(b.handleInteraction)
	session.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		lg.Info("Discord-бот готов", zap.Int("guilds", len(r.Guilds)))
	})
	return b, nil
}

// Start открывает соединение с Discord и регистрирует slash-команды
func (b *Bot) Start() error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("open discord connection: %w", err)
	}
	if err := b.registerCommands(); err != nil {
		return fmt.Errorf("register commands: %w", err)
	}
	return nil
}

// Stop закрывает сессию Discord
func (b *Bot) Stop() error {
	if b.session != nil {
		return b.session.Close()
	}
	return nil
}

func (b *Bot) registerCommands() error {
	defs := commandDefinitions()
	registered := make([]*discordgo.ApplicationCommand, 0, len(defs))
	for _, cmd := range defs {
		rc, err := b.session.ApplicationCommandCreate(b.session.State.User.ID, "", cmd)
		if err != nil {
			return fmt.Errorf("команда %s: %w", cmd.Name, err)
		}
		registered = append(registered, rc)
	}
	b.commands = registered
	b.lg.Info("Slash-команды зарегистрированы", zap.Int("count", len(registered)))
	return nil
}

func (b *Bot) handleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}

	data := i.ApplicationCommandData()
	b.lg.Debug("Получена команда",
		zap.String("command", data.Name), zap.String("guild_id", i.GuildID))

	switch data.Name {
	case "status":
		b.handleStatus(s, i)
	case "stats":
		b.handleStats(s, i)
	case "leaderboard":
		b.handleLeaderboard(s, i)
	case "premium":
		b.handlePremium(s, i)
	case "parse-history":
		b.handleParseHistory(s, i)
	default:
		b.lg.Warn("Неизвестная команда", zap.String("command", data.Name))
	}
}

// requireFeature проверяет доступ гильдии к функции и при отказе
// сам отвечает на взаимодействие
func (b *Bot) requireFeature(s *discordgo.Session, i *discordgo.InteractionCreate, feature string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if b.resolver.HasFeatureAccess(ctx, i.GuildID, feature) {
		return true
	}
	min, _ := premium.MinimumTierFor(feature)
	respond(s, i, fmt.Sprintf("Эта функция требует премиум-уровень **%s** и выше. Текущий уровень гильдии: **%s**.",
		premium.TierName(min), premium.TierName(b.resolver.GuildTier(ctx, i.GuildID))))
	return false
}

func respond(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: content},
	})
}

// respondDeferred отвечает "думаем…": итог досылается через editResponse
func respondDeferred(s *discordgo.Session, i *discordgo.InteractionCreate) {
	s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})
}

func (b *Bot) editResponse(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Content: &content}); err != nil {
		b.lg.Warn("Не удалось обновить ответ на команду", zap.Error(err))
	}
}
