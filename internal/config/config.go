package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config — конфигурация бота, читается из переменных окружения.
type Config struct {
	BotToken string
	LogLevel string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Окна жизни отложенных операций
	TradeTTL        time.Duration
	GiftTTL         time.Duration
	PaymentTokenTTL time.Duration

	// Кулдауны между операциями одного пользователя
	GiftCooldown    time.Duration
	PaymentCooldown time.Duration
	DailyCooldown   time.Duration

	// Лимиты
	InventoryCap     int
	RedeemWindow     time.Duration
	RedeemQuota      int
	CodeRetries      int
	CodePrefix       string
	SpawnEveryN      int
	ClaimReward      int64
	DailyReward      int64
	LeaderboardSize  int

	// Расписание фоновой чистки отложенных операций (формат robfig/cron)
	SweepSpec string

	AdminIDs []int64
}

// Load загружает конфигурацию из окружения с дефолтами.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment values")
	}

	return &Config{
		BotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		TradeTTL:        getEnvDuration("TRADE_TTL", 5*time.Minute),
		GiftTTL:         getEnvDuration("GIFT_TTL", 5*time.Minute),
		PaymentTokenTTL: getEnvDuration("PAYMENT_TOKEN_TTL", 5*time.Minute),

		GiftCooldown:    getEnvDuration("GIFT_COOLDOWN", 30*time.Second),
		PaymentCooldown: getEnvDuration("PAYMENT_COOLDOWN", 30*time.Second),
		DailyCooldown:   getEnvDuration("DAILY_COOLDOWN", 24*time.Hour),

		InventoryCap:    getEnvInt("INVENTORY_CAP", 1000),
		RedeemWindow:    getEnvDuration("REDEEM_WINDOW", time.Minute),
		RedeemQuota:     getEnvInt("REDEEM_QUOTA", 5),
		CodeRetries:     getEnvInt("CODE_RETRIES", 5),
		CodePrefix:      getEnv("CODE_PREFIX", "sanpai"),
		SpawnEveryN:     getEnvInt("SPAWN_EVERY_N", 75),
		ClaimReward:     int64(getEnvInt("CLAIM_REWARD", 50)),
		DailyReward:     int64(getEnvInt("DAILY_REWARD", 200)),
		LeaderboardSize: getEnvInt("LEADERBOARD_SIZE", 10),

		SweepSpec: getEnv("SWEEP_SPEC", "* * * * *"),

		AdminIDs: getEnvInt64List("ADMIN_IDS"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("invalid %s=%q, using default %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("invalid %s=%q, using default %s", key, v, fallback)
		return fallback
	}
	return d
}

func getEnvInt64List(key string) []int64 {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var ids []int64
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			log.Printf("invalid id %q in %s, skipping", part, key)
			continue
		}
		ids = append(ids, id)
	}
	return ids
}
