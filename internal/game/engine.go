// Package game — ядро бота: трансфер персонажей между документами
// пользователей, трейды, подарки, платежи и redeem-коды поверх хранилища
// без междокументных транзакций. Корректность держится на трех вещах:
// per-user блокировки в процессе, атомарные условные операции хранилища
// на одном документе и компенсирующие записи с recovery sink на случай
// частичных отказов.
//
// Блокировки только in-process: дизайн корректен для одного инстанса бота.
// Горизонтальное масштабирование потребует распределенного лока — это
// осознанное ограничение, а не баг.
package game

import (
	"sync"
	"time"

	"tg-collector-bot/internal/config"
	"tg-collector-bot/internal/models"
	"tg-collector-bot/internal/pkg/logger"
	"tg-collector-bot/internal/storage"

	"go.uber.org/zap"
)

// Engine владеет всем изменяемым in-process состоянием (блокировки,
// отложенные операции, кулдауны, активные спавны) явно — никаких
// package-level глобалов, в тестах поднимается свой экземпляр.
type Engine struct {
	store   storage.Store
	locks   *LockRegistry
	pending *PendingTable
	limiter *rateLimiter
	cfg     *config.Config
	log     *logger.Logger

	mu     sync.Mutex
	spawns map[int64]*models.CharacterDefinition // активный спавн по чату
	counts map[int64]int                         // счетчик сообщений по чату
}

// NewEngine собирает движок поверх хранилища.
func NewEngine(store storage.Store, cfg *config.Config, log *logger.Logger) *Engine {
	return &Engine{
		store:   store,
		locks:   NewLockRegistry(),
		pending: NewPendingTable(cfg.TradeTTL, cfg.GiftTTL, cfg.PaymentTokenTTL),
		limiter: newRateLimiter(cfg.RedeemWindow, cfg.RedeemQuota),
		cfg:     cfg,
		log:     log,
		spawns:  make(map[int64]*models.CharacterDefinition),
		counts:  make(map[int64]int),
	}
}

// Sweep — периодическая чистка протухших предложений, токенов и
// бухгалтерии кулдаунов/рейтлимита. Вызывается по расписанию из main.
func (e *Engine) Sweep() {
	removed := e.pending.Sweep(24 * time.Hour)
	e.limiter.Sweep()
	if removed > 0 {
		e.log.Info("swept expired pending offers", zap.Int("removed", removed))
	}
}
