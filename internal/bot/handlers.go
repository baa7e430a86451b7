// Package bot — телеграмный слой: разбор команд и колбэков, перевод
// ошибок движка в пользовательские сообщения. Вся логика живет в game,
// здесь только парсинг аргументов и отправка ответов.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"tg-collector-bot/internal/config"
	"tg-collector-bot/internal/game"
	"tg-collector-bot/internal/models"
	"tg-collector-bot/internal/pkg/logger"
	"tg-collector-bot/internal/storage"
	"tg-collector-bot/internal/utils"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Bot представляет Telegram бота.
type Bot struct {
	api    *tgbotapi.BotAPI
	engine *game.Engine
	store  storage.Store
	cfg    *config.Config
	log    *logger.Logger
}

// NewBot создает новый экземпляр бота.
func NewBot(api *tgbotapi.BotAPI, engine *game.Engine, store storage.Store, cfg *config.Config, l *logger.Logger) *Bot {
	return &Bot{api: api, engine: engine, store: store, cfg: cfg, log: l}
}

// HandleUpdate — точка входа для одного обновления.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil && update.Message.IsCommand():
		b.handleCommand(ctx, update.Message)
	case update.Message != nil:
		b.handleChatter(ctx, update.Message)
	}
}

// handleCommand обрабатывает команду от пользователя.
func (b *Bot) handleCommand(ctx context.Context, m *tgbotapi.Message) {
	userID := m.From.ID
	if err := b.store.EnsureUser(ctx, userID, m.From.UserName); err != nil {
		b.log.Error("ensure user failed", zap.Int64("user", userID), zap.Error(err))
	}

	msg := tgbotapi.NewMessage(m.Chat.ID, "")
	msg.ReplyToMessageID = m.MessageID

	command := m.Command()
	args := m.CommandArguments()

	switch command {
	case "start":
		b.handleStart(&msg, m.From)
	case "help":
		b.handleHelp(&msg)
	case "balance", "bal":
		b.handleBalance(ctx, &msg, userID)
	case "daily":
		b.handleDaily(ctx, &msg, userID)
	case "collection", "harem":
		b.handleCollection(ctx, &msg, m)
	case "fav":
		b.handleFav(ctx, &msg, userID, args)
	case "top":
		b.handleTop(ctx, &msg)
	case "shop":
		b.handleShop(&msg)
	case "buy":
		b.handleBuy(ctx, &msg, userID, args)
	case "claim":
		b.handleClaim(ctx, &msg, m, args)
	case "trade":
		b.handleTrade(ctx, &msg, m, args)
	case "gift":
		b.handleGift(ctx, &msg, m, args)
	case "pay":
		b.handlePay(ctx, &msg, m, args)
	case "redeem":
		b.handleRedeem(ctx, &msg, userID, args)
	case "gen":
		b.handleGen(ctx, &msg, userID, args)
	case "upload":
		b.handleUpload(ctx, &msg, userID, args)
	default:
		msg.Text = "🤔 Не знаю такой команды, смотри /help"
	}

	if msg.Text == "" {
		return
	}
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message failed", zap.Int64("chat", m.Chat.ID), zap.Error(err))
	}
}

// handleChatter — обычное сообщение чата: тикает счетчик спавна.
func (b *Bot) handleChatter(ctx context.Context, m *tgbotapi.Message) {
	def, err := b.engine.CountMessage(ctx, m.Chat.ID)
	if err != nil {
		b.log.Error("spawn roll failed", zap.Int64("chat", m.Chat.ID), zap.Error(err))
		return
	}
	if def == nil {
		return
	}
	b.sendSpawn(m.Chat.ID, def)
}

// sendSpawn выкладывает карточку заспавненного персонажа.
func (b *Bot) sendSpawn(chatID int64, def *models.CharacterDefinition) {
	caption := fmt.Sprintf("%s Появился новый персонаж из «%s»!\nУгадай имя: /claim <имя>", def.Rarity.Emoji(), def.Anime)

	if def.ImageRef != "" {
		photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(def.ImageRef))
		photo.Caption = caption
		if _, err := b.api.Send(photo); err == nil {
			return
		}
		// Фото не ушло — падаем на текст.
	}
	msg := tgbotapi.NewMessage(chatID, caption)
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send spawn failed", zap.Int64("chat", chatID), zap.Error(err))
	}
}

// handleStart обрабатывает команду /start.
func (b *Bot) handleStart(msg *tgbotapi.MessageConfig, from *tgbotapi.User) {
	msg.Text = fmt.Sprintf(`🎉 Привет, %s!

🎴 Это бот-коллекционер аниме-персонажей:
• Персонажи появляются в чате — угадывай имена через /claim
• Меняйся через /trade, дари через /gift
• Зарабатывай и трать монеты: /daily, /pay, /shop

📋 Все команды: /help`, from.FirstName)
}

// handleHelp обрабатывает команду /help.
func (b *Bot) handleHelp(msg *tgbotapi.MessageConfig) {
	msg.Text = `📋 СПИСОК КОМАНД:

🎴 КОЛЛЕКЦИЯ:
/claim <имя> - забрать появившегося персонажа
/collection - твоя коллекция (или ответом на сообщение — чужая)
/fav <id> - добавить/убрать из избранного

🔄 ОБМЕН (команды ответом на сообщение собеседника):
/trade <твой id> <его id> - предложить обмен
/gift <id> - подарить персонажа
/pay <сумма> - перевести монеты

💰 ЭКОНОМИКА:
/balance - баланс
/daily - ежедневный бонус
/shop - магазин персонажей
/buy <id> - купить персонажа
/redeem <код> - активировать код

📊 ИНФОРМАЦИЯ:
/top - таблица лидеров
/help - эта справка`
}

// handleBalance обрабатывает команду /balance.
func (b *Bot) handleBalance(ctx context.Context, msg *tgbotapi.MessageConfig, userID int64) {
	user, err := b.store.GetUser(ctx, userID)
	if err != nil {
		msg.Text = b.errText(err)
		return
	}
	msg.Text = fmt.Sprintf("💰 Баланс: %d %s\n🎴 Персонажей: %d",
		user.Balance, utils.CoinsWord(user.Balance), len(user.Characters))
}

// handleDaily обрабатывает команду /daily.
func (b *Bot) handleDaily(ctx context.Context, msg *tgbotapi.MessageConfig, userID int64) {
	left, err := b.store.ClaimDaily(ctx, userID, b.cfg.DailyCooldown, b.cfg.DailyReward)
	if err != nil {
		msg.Text = b.errText(err)
		return
	}
	if left > 0 {
		msg.Text = fmt.Sprintf("⌛ Бонус уже получен, возвращайся через %s", utils.FormatDuration(left))
		return
	}
	msg.Text = fmt.Sprintf("✅ +%d %s! Приходи завтра", b.cfg.DailyReward, utils.CoinsWord(b.cfg.DailyReward))
}

// handleCollection обрабатывает команду /collection.
func (b *Bot) handleCollection(ctx context.Context, msg *tgbotapi.MessageConfig, m *tgbotapi.Message) {
	targetID := m.From.ID
	if m.ReplyToMessage != nil && m.ReplyToMessage.From != nil {
		targetID = m.ReplyToMessage.From.ID
	}

	user, err := b.store.GetUser(ctx, targetID)
	if errors.Is(err, storage.ErrNotFound) {
		msg.Text = "📦 Коллекция пуста"
		return
	}
	if err != nil {
		msg.Text = b.errText(err)
		return
	}
	msg.Text = utils.FormatCollection(user)
}

// handleFav обрабатывает команду /fav.
func (b *Bot) handleFav(ctx context.Context, msg *tgbotapi.MessageConfig, userID int64, args string) {
	charID, err := strconv.ParseInt(strings.TrimSpace(args), 10, 64)
	if err != nil {
		msg.Text = "🚫 Укажи id персонажа: /fav 42"
		return
	}

	user, err := b.store.GetUser(ctx, userID)
	if err != nil {
		msg.Text = b.errText(err)
		return
	}
	if !user.OwnsCharacter(charID) {
		msg.Text = fmt.Sprintf("🚫 У тебя нет персонажа с id %d", charID)
		return
	}

	added, err := b.store.ToggleFavorite(ctx, userID, charID)
	if err != nil {
		msg.Text = b.errText(err)
		return
	}
	if added {
		msg.Text = "❤️ Добавлено в избранное"
	} else {
		msg.Text = "💔 Убрано из избранного"
	}
}

// handleTop обрабатывает команду /top.
func (b *Bot) handleTop(ctx context.Context, msg *tgbotapi.MessageConfig) {
	entries, err := b.store.TopBalances(ctx, b.cfg.LeaderboardSize)
	if err != nil {
		msg.Text = b.errText(err)
		return
	}
	if len(entries) == 0 {
		msg.Text = "📊 Пока пусто"
		return
	}

	var sb strings.Builder
	sb.WriteString("🏆 ТОП ПО БАЛАНСУ:\n\n")
	for i, e := range entries {
		fmt.Fprintf(&sb, "%d. %s — %d %s\n",
			i+1, utils.DisplayName(e.Username, e.UserID), e.Balance, utils.CoinsWord(e.Balance))
	}
	msg.Text = sb.String()
}

// handleShop обрабатывает команду /shop.
func (b *Bot) handleShop(msg *tgbotapi.MessageConfig) {
	msg.Text = fmt.Sprintf(`🛒 МАГАЗИН ПЕРСОНАЖЕЙ

Любой персонаж каталога покупается по цене редкости:
⚪ common — %d монет
🟣 rare — %d монет
🟡 legendary — %d монет

💡 Покупка: /buy <id персонажа>`,
		game.PriceFor(models.RarityCommon),
		game.PriceFor(models.RarityRare),
		game.PriceFor(models.RarityLegendary))
}

// handleBuy обрабатывает команду /buy.
func (b *Bot) handleBuy(ctx context.Context, msg *tgbotapi.MessageConfig, userID int64, args string) {
	charID, err := strconv.ParseInt(strings.TrimSpace(args), 10, 64)
	if err != nil {
		msg.Text = "🚫 Укажи id персонажа: /buy 42"
		return
	}

	def, price, err := b.engine.BuyCharacter(ctx, userID, charID)
	if err != nil {
		msg.Text = b.errText(err)
		return
	}
	msg.Text = fmt.Sprintf("✅ Куплено: %s за %d %s", utils.FormatCharacter(def), price, utils.CoinsWord(price))
}

// handleClaim обрабатывает команду /claim.
func (b *Bot) handleClaim(ctx context.Context, msg *tgbotapi.MessageConfig, m *tgbotapi.Message, args string) {
	inst, err := b.engine.Claim(ctx, m.Chat.ID, m.From.ID, args)
	if err != nil {
		msg.Text = b.errText(err)
		return
	}
	msg.Text = fmt.Sprintf("🎉 %s забирает %s %s! (+%d %s)",
		m.From.FirstName, inst.Rarity.Emoji(), inst.Name,
		b.cfg.ClaimReward, utils.CoinsWord(b.cfg.ClaimReward))
}

// handleRedeem обрабатывает команду /redeem.
func (b *Bot) handleRedeem(ctx context.Context, msg *tgbotapi.MessageConfig, userID int64, args string) {
	rc, err := b.engine.Redeem(ctx, userID, args)
	if err != nil {
		msg.Text = b.errText(err)
		return
	}
	switch rc.Kind {
	case models.CodeKindCharacter:
		msg.Text = "🎁 КОД АКТИВИРОВАН! Персонаж добавлен в коллекцию"
	default:
		msg.Text = fmt.Sprintf("🎁 КОД АКТИВИРОВАН! +%d %s", rc.Amount, utils.CoinsWord(rc.Amount))
	}
}

// handleGen обрабатывает команду /gen (только админы).
// Формат: /gen currency <сумма> <maxUses> или /gen character <id> <maxUses>
func (b *Bot) handleGen(ctx context.Context, msg *tgbotapi.MessageConfig, userID int64, args string) {
	if !b.isAdmin(userID) {
		msg.Text = "🚫 Только для администраторов"
		return
	}

	parts := strings.Fields(args)
	if len(parts) != 3 {
		msg.Text = "🚫 Формат: /gen currency <сумма> <maxUses> или /gen character <id> <maxUses>"
		return
	}

	payload, err1 := strconv.ParseInt(parts[1], 10, 64)
	maxUses, err2 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil {
		msg.Text = "🚫 Сумма/id и maxUses должны быть числами"
		return
	}

	var rc *models.RedeemCode
	var err error
	switch parts[0] {
	case "currency":
		rc, err = b.engine.GenerateCode(ctx, models.CodeKindCurrency, payload, 0, maxUses)
	case "character":
		rc, err = b.engine.GenerateCode(ctx, models.CodeKindCharacter, 0, payload, maxUses)
	default:
		msg.Text = "🚫 Тип кода: currency или character"
		return
	}
	if err != nil {
		msg.Text = b.errText(err)
		return
	}
	msg.Text = fmt.Sprintf("✅ Код создан: `%s` (активаций: %d)", rc.Code, rc.MaxUses)
	msg.ParseMode = tgbotapi.ModeMarkdown
}

// handleUpload обрабатывает команду /upload (только админы).
// Формат: /upload имя;аниме;редкость;ссылка_на_картинку
func (b *Bot) handleUpload(ctx context.Context, msg *tgbotapi.MessageConfig, userID int64, args string) {
	if !b.isAdmin(userID) {
		msg.Text = "🚫 Только для администраторов"
		return
	}

	parts := strings.SplitN(args, ";", 4)
	if len(parts) < 3 {
		msg.Text = "🚫 Формат: /upload имя;аниме;редкость[;картинка]"
		return
	}

	rarity, err := models.ParseRarity(parts[2])
	if err != nil {
		msg.Text = "🚫 Редкость: 1/common/⚪, 2/rare/🟣 или 3/legendary/🟡"
		return
	}

	id, err := b.store.NextCharacterID(ctx)
	if err != nil {
		msg.Text = b.errText(err)
		return
	}

	def := &models.CharacterDefinition{
		ID:     id,
		Name:   strings.TrimSpace(parts[0]),
		Anime:  strings.TrimSpace(parts[1]),
		Rarity: rarity,
	}
	if len(parts) == 4 {
		def.ImageRef = strings.TrimSpace(parts[3])
	}

	if err := b.store.SaveCharacter(ctx, def); err != nil {
		msg.Text = b.errText(err)
		return
	}
	msg.Text = fmt.Sprintf("✅ Добавлен в каталог: %s", utils.FormatCharacter(def))
}

func (b *Bot) isAdmin(userID int64) bool {
	for _, id := range b.cfg.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// errText переводит ошибку движка в сообщение пользователю. Сырой текст
// ошибок хранилища наружу не выходит.
func (b *Bot) errText(err error) string {
	var precondition *game.PreconditionError
	switch {
	case errors.As(err, &precondition):
		if precondition.Retry > 0 {
			return fmt.Sprintf("⏳ %s: еще %s", precondition.Reason, utils.FormatDuration(precondition.Retry))
		}
		return "🚫 " + precondition.Reason
	case errors.Is(err, game.ErrNotAuthorized):
		return "🚫 Это действие тебе недоступно"
	case errors.Is(err, game.ErrExpired):
		return "⌛ Время вышло, предложение больше не действует"
	case errors.Is(err, game.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		return "❌ Не найдено или уже неактуально"
	case errors.Is(err, game.ErrTransferAborted):
		return "⚠️ Состояние успело измениться, ничего не переведено. Попробуй еще раз"
	case errors.Is(err, game.ErrCompensationFailed):
		return "❌ Операция не завершена, администраторы уведомлены"
	default:
		b.log.Error("unclassified error", zap.Error(err))
		return "❌ Что-то пошло не так, попробуй позже"
	}
}
