package game

import (
	"time"

	"tg-collector-bot/internal/config"
	"tg-collector-bot/internal/pkg/logger"
)

func testConfig() *config.Config {
	return &config.Config{
		TradeTTL:        5 * time.Minute,
		GiftTTL:         5 * time.Minute,
		PaymentTokenTTL: 5 * time.Minute,
		GiftCooldown:    30 * time.Second,
		PaymentCooldown: 30 * time.Second,
		DailyCooldown:   24 * time.Hour,
		InventoryCap:    1000,
		RedeemWindow:    time.Minute,
		RedeemQuota:     5,
		CodeRetries:     5,
		CodePrefix:      "sanpai",
		SpawnEveryN:     3,
		ClaimReward:     50,
		DailyReward:     200,
		LeaderboardSize: 10,
	}
}

func newTestEngine() (*Engine, *fakeStore) {
	store := newFakeStore()
	return NewEngine(store, testConfig(), logger.Nop()), store
}
