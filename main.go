package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"EmeraldKillfeed/internal/batch"
	"EmeraldKillfeed/internal/bot"
	"EmeraldKillfeed/internal/config"
	"EmeraldKillfeed/internal/coordinator"
	"EmeraldKillfeed/internal/logger"
	"EmeraldKillfeed/internal/premium"
	remote "EmeraldKillfeed/internal/sftp"
	"EmeraldKillfeed/internal/stats"
	"EmeraldKillfeed/internal/storage"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	// .env не обязателен, секреты могут приходить из окружения напрямую
	_ = godotenv.Load()

	cfg, err := config.LoadConfig("config.yaml")
	if err != nil {
		log.Fatalf("Ошибка загрузки config.yaml: %v", err)
	}

	rootLogger, err := logger.InitZap(&cfg.Logging)
	if err != nil {
		log.Fatalf("Ошибка инициализации логгера: %v", err)
	}
	lg := rootLogger.Named("main")
	defer lg.Sync()
	lg.Info("Сервис EmeraldKillfeed стартует…")

	if token := os.Getenv("DISCORD_TOKEN"); token != "" {
		cfg.Discord.Token = token
	}

	db, err := storage.Connect(ctx, cfg.Mongo.URI, cfg.Mongo.Database, lg.Named("mongo"))
	if err != nil {
		lg.Fatal("Ошибка подключения к MongoDB", zap.Error(err))
	}
	defer db.Close(context.Background())

	var offsetStore storage.OffsetStore
	switch cfg.OffsetStorage {
	case "redis":
		offsetStore, err = storage.NewRedisStore(&cfg.Redis, "killfeed:offsets")
		if err != nil {
			lg.Fatal("Ошибка подключения к Redis", zap.Error(err))
		}
	default:
		offsetStore = storage.NewFileStore(cfg.OffsetFile)
	}
	lg.Info("Хранилище смещений готово", zap.String("type", cfg.OffsetStorage))

	writer := stats.NewWriter(db, lg.Named("stats"))
	batcher := batch.NewBatcher(cfg.Processing.BatchSize, cfg.Processing.BatchInterval, lg.Named("batcher"), writer)

	dial := func(c remote.Config) (remote.Client, error) { return remote.Dial(c) }
	coord := coordinator.New(cfg, db, offsetStore, dial, batcher.In(), lg.Named("coordinator"))

	resolver := premium.NewResolver(db, 0, lg.Named("premium"))

	discordBot, err := bot.New(cfg.Discord.Token, db, resolver, coord, lg.Named("bot"))
	if err != nil {
		lg.Fatal("Ошибка создания Discord-бота", zap.Error(err))
	}
	if err := discordBot.Start(); err != nil {
		lg.Fatal("Ошибка запуска Discord-бота", zap.Error(err))
	}
	defer discordBot.Stop()

	// Параметры цикла обработки применяются на лету; подключения
	// (Mongo, Redis, Discord) требуют перезапуска
	go config.Watch(ctx, "config.yaml", lg.Named("configwatch"), func(newCfg *config.Config) {
		coord.UpdateProcessing(newCfg.Processing)
		lg.Info("config.yaml перечитан, параметры цикла обработки обновлены")
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() { defer wg.Done(); coord.Run(ctx) }()
	wg.Add(1)
	go func() { defer wg.Done(); batcher.Run(ctx) }()
	wg.Add(1)
	go func() { defer wg.Done(); resolver.Run(ctx) }()

	<-stop
	lg.Info("Получен сигнал остановки, начинаем завершение работы")
	cancel()
	wg.Wait()
	lg.Info("Сервис завершил работу")
}
