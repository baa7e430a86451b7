package main

import (
	"context"
	"log"

	"tg-collector-bot/internal/bot"
	"tg-collector-bot/internal/config"
	"tg-collector-bot/internal/game"
	"tg-collector-bot/internal/pkg/logger"
	"tg-collector-bot/internal/storage"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

func main() {
	// Конфигурация из окружения (.env при наличии)
	cfg := config.Load()
	if cfg.BotToken == "" {
		log.Fatal("TELEGRAM_BOT_TOKEN environment variable is required")
	}

	l, err := logger.CreateLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer l.Sync()

	// Подключение к Redis
	store, err := storage.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, l)
	if err != nil {
		l.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer store.Close()

	// Создание бота
	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		l.Fatal("Failed to create bot", zap.Error(err))
	}
	l.Info("Bot authorized", zap.String("account", api.Self.UserName))

	engine := game.NewEngine(store, cfg, l)
	handler := bot.NewBot(api, engine, store, cfg, l)

	// Фоновая чистка протухших предложений и токенов
	sweeper := cron.New()
	if _, err := sweeper.AddFunc(cfg.SweepSpec, engine.Sweep); err != nil {
		l.Fatal("Failed to schedule sweep", zap.Error(err))
	}
	sweeper.Start()
	defer sweeper.Stop()

	// Настройка обновлений
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := api.GetUpdatesChan(u)

	ctx := context.Background()

	// Основной цикл: каждое обновление в своей горутине; сериализацию
	// по пользователям обеспечивает реестр блокировок движка
	for update := range updates {
		update := update
		go handler.HandleUpdate(ctx, update)
	}
}
