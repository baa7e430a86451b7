package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"tg-collector-bot/internal/utils"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Команды-предложения: все три адресуются ответом на сообщение собеседника,
// подтверждение идет инлайн-кнопками. Payload колбэка — "тег:ид1:ид2".

// replyTarget достает контрагента из reply-to.
func replyTarget(m *tgbotapi.Message) (*tgbotapi.User, bool) {
	if m.ReplyToMessage == nil || m.ReplyToMessage.From == nil || m.ReplyToMessage.From.IsBot {
		return nil, false
	}
	return m.ReplyToMessage.From, true
}

// handleTrade обрабатывает команду /trade <твой id> <его id>.
func (b *Bot) handleTrade(ctx context.Context, msg *tgbotapi.MessageConfig, m *tgbotapi.Message, args string) {
	target, ok := replyTarget(m)
	if !ok {
		msg.Text = "🚫 Ответь командой на сообщение того, с кем меняешься"
		return
	}

	parts := strings.Fields(args)
	if len(parts) != 2 {
		msg.Text = "🚫 Формат: /trade <твой id> <его id> (ответом на сообщение)"
		return
	}
	giveID, err1 := strconv.ParseInt(parts[0], 10, 64)
	wantID, err2 := strconv.ParseInt(parts[1], 10, 64)
	if err1 != nil || err2 != nil {
		msg.Text = "🚫 id персонажей должны быть числами"
		return
	}

	if err := b.engine.ProposeTrade(ctx, m.From.ID, target.ID, giveID, wantID, m.Chat.ID); err != nil {
		msg.Text = b.errText(err)
		return
	}

	msg.Text = fmt.Sprintf("🔄 %s предлагает %s обмен: персонаж %d ↔ персонаж %d\nПодтвердить может только %s",
		m.From.FirstName, utils.DisplayName(target.UserName, target.ID),
		giveID, wantID, utils.DisplayName(target.UserName, target.ID))
	msg.ReplyMarkup = confirmKeyboard("tacc", "tdec", m.From.ID, target.ID)
}

// handleGift обрабатывает команду /gift <id>.
func (b *Bot) handleGift(ctx context.Context, msg *tgbotapi.MessageConfig, m *tgbotapi.Message, args string) {
	target, ok := replyTarget(m)
	if !ok {
		msg.Text = "🚫 Ответь командой на сообщение того, кому даришь"
		return
	}

	charID, err := strconv.ParseInt(strings.TrimSpace(args), 10, 64)
	if err != nil {
		msg.Text = "🚫 Формат: /gift <id персонажа> (ответом на сообщение)"
		return
	}

	if err := b.engine.OfferGift(ctx, m.From.ID, target.ID, charID, m.Chat.ID); err != nil {
		msg.Text = b.errText(err)
		return
	}

	// Подтверждает сам даритель — "подтверди, что хочешь отправить".
	msg.Text = fmt.Sprintf("🎁 Подарить персонажа %d пользователю %s?\nПодтвердить может только отправитель",
		charID, utils.DisplayName(target.UserName, target.ID))
	msg.ReplyMarkup = confirmKeyboard("gok", "gno", m.From.ID, target.ID)
}

// handlePay обрабатывает команду /pay <сумма>.
func (b *Bot) handlePay(ctx context.Context, msg *tgbotapi.MessageConfig, m *tgbotapi.Message, args string) {
	target, ok := replyTarget(m)
	if !ok {
		msg.Text = "🚫 Ответь командой на сообщение получателя"
		return
	}

	amount, err := strconv.ParseInt(strings.TrimSpace(args), 10, 64)
	if err != nil {
		msg.Text = "🚫 Формат: /pay <сумма> (ответом на сообщение)"
		return
	}

	offer, err := b.engine.ProposePayment(ctx, m.From.ID, target.ID, amount, m.Chat.ID)
	if err != nil {
		msg.Text = b.errText(err)
		return
	}

	msg.Text = fmt.Sprintf("💸 Перевести %d %s пользователю %s?\nПодтвердить может только отправитель",
		offer.Amount, utils.CoinsWord(offer.Amount), utils.DisplayName(target.UserName, target.ID))
	msg.ReplyMarkup = confirmKeyboard("pok", "pno", m.From.ID, target.ID)
}

// confirmKeyboard строит клавиатуру подтверждения с компактным payload
// "тег:ид1:ид2".
func confirmKeyboard(okTag, noTag string, a, b int64) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Подтвердить", fmt.Sprintf("%s:%d:%d", okTag, a, b)),
			tgbotapi.NewInlineKeyboardButtonData("❌ Отклонить", fmt.Sprintf("%s:%d:%d", noTag, a, b)),
		),
	)
}

// handleCallback — роутинг инлайн-кнопок подтверждения.
func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	parts := strings.Split(cb.Data, ":")
	if len(parts) != 3 {
		b.answerCallback(cb, "❌ Некорректная кнопка", true)
		return
	}
	first, err1 := strconv.ParseInt(parts[1], 10, 64)
	second, err2 := strconv.ParseInt(parts[2], 10, 64)
	if err1 != nil || err2 != nil {
		b.answerCallback(cb, "❌ Некорректная кнопка", true)
		return
	}

	actorID := cb.From.ID
	var text string
	var actErr error

	switch parts[0] {
	case "tacc":
		res, err := b.engine.AcceptTrade(ctx, first, second, actorID)
		if err == nil {
			text = fmt.Sprintf("✅ Обмен состоялся!\n%s %s ↔ %s %s",
				res.Give.Rarity.Emoji(), res.Give.Name, res.Want.Rarity.Emoji(), res.Want.Name)
		}
		actErr = err
	case "tdec":
		if actErr = b.engine.DeclineTrade(first, second, actorID); actErr == nil {
			text = "❌ Обмен отклонен"
		}
	case "gok":
		inst, err := b.engine.ConfirmGift(ctx, first, second, actorID)
		if err == nil {
			text = fmt.Sprintf("🎁 Подарок отправлен: %s %s", inst.Rarity.Emoji(), inst.Name)
		}
		actErr = err
	case "gno":
		if actErr = b.engine.CancelGift(first, second, actorID); actErr == nil {
			text = "❌ Подарок отменен"
		}
	case "pok":
		amount, err := b.engine.ConfirmPayment(ctx, first, second, actorID)
		if err == nil {
			text = fmt.Sprintf("💸 Переведено %d %s", amount, utils.CoinsWord(amount))
		}
		actErr = err
	case "pno":
		if actErr = b.engine.CancelPayment(first, second, actorID); actErr == nil {
			text = "❌ Перевод отменен"
		}
	default:
		b.answerCallback(cb, "❌ Неизвестное действие", true)
		return
	}

	if actErr != nil {
		// Ошибка показывается только кликнувшему, сообщение не трогаем.
		b.answerCallback(cb, b.errText(actErr), true)
		return
	}

	b.answerCallback(cb, "", false)
	if cb.Message != nil {
		edit := tgbotapi.NewEditMessageText(cb.Message.Chat.ID, cb.Message.MessageID, text)
		if _, err := b.api.Send(edit); err != nil {
			b.log.Error("edit message failed", zap.Error(err))
		}
	}
}

func (b *Bot) answerCallback(cb *tgbotapi.CallbackQuery, text string, alert bool) {
	answer := tgbotapi.NewCallback(cb.ID, text)
	answer.ShowAlert = alert
	if _, err := b.api.Request(answer); err != nil {
		b.log.Error("answer callback failed", zap.Error(err))
	}
}
