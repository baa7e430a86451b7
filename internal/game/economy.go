package game

import (
	"context"
	"errors"
	"fmt"

	"tg-collector-bot/internal/models"
	"tg-collector-bot/internal/storage"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Платежи между пользователями, минт/берн валюты и покупки в магазине.
// Списание у отправителя — атомарный условный декремент с предикатом
// balance >= amount на стороне хранилища: нехватка средств детектируется
// без read-then-write гонки. Кредит получателю безусловный; при его провале
// сумма компенсируется обратно отправителю.

// PriceFor возвращает цену персонажа в магазине по тиру редкости.
func PriceFor(r models.Rarity) int64 {
	switch r {
	case models.RarityRare:
		return 500
	case models.RarityLegendary:
		return 2000
	default:
		return 100
	}
}

// ProposePayment регистрирует платеж, ожидающий подтверждения тем же
// пользователем (двухшаговый поток против случайных отправок).
func (e *Engine) ProposePayment(ctx context.Context, senderID, receiverID, amount int64, chatID int64) (*Offer, error) {
	if senderID == receiverID {
		return nil, fmt.Errorf("self-payment: %w", ErrNotAuthorized)
	}
	if amount <= 0 {
		return nil, failedPrecondition("сумма должна быть положительной")
	}

	if left := e.pending.CooldownRemaining(KindPayment, senderID, e.cfg.PaymentCooldown); left > 0 {
		return nil, cooldownError(left)
	}

	sender, err := e.store.GetUser(ctx, senderID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("sender: %w", ErrNotFound)
	}
	if err != nil {
		return nil, storeErr("load sender", err)
	}
	// Ранняя проверка; точная всё равно атомарна при подтверждении.
	if sender.Balance < amount {
		return nil, failedPrecondition("недостаточно средств: %d < %d", sender.Balance, amount)
	}

	offer := &Offer{
		Kind:           KindPayment,
		InitiatorID:    senderID,
		CounterpartyID: receiverID,
		Amount:         amount,
		Token:          uuid.NewString(),
		ChatID:         chatID,
	}
	if err := e.pending.Put(offer); err != nil {
		return nil, err
	}
	return offer, nil
}

// ConfirmPayment выполняет платеж по подтверждению отправителя. Токен
// одноразовый: предложение снимается из таблицы до мутации, дубль клика
// по кнопке второй раз ничего не найдет. Протухший токен — ErrExpired,
// балансы не трогаются.
func (e *Engine) ConfirmPayment(ctx context.Context, senderID, receiverID, actorID int64) (int64, error) {
	if actorID != senderID {
		return 0, fmt.Errorf("payment confirm by %d: %w", actorID, ErrNotAuthorized)
	}

	offer, err := e.pending.Take(KindPayment, senderID, receiverID)
	if err != nil {
		return 0, err
	}

	unlock := e.locks.AcquirePair(senderID, receiverID)
	defer unlock()

	ok, err := e.store.DebitIfEnough(ctx, senderID, offer.Amount)
	if err != nil {
		return 0, storeErr("debit sender", err)
	}
	if !ok {
		return 0, failedPrecondition("недостаточно средств")
	}

	if err := e.store.AddBalance(ctx, receiverID, offer.Amount); err != nil {
		// Компенсация: вернуть сумму отправителю.
		if compErr := e.store.AddBalance(ctx, senderID, offer.Amount); compErr != nil {
			e.log.Error("CRITICAL: payment compensation failed",
				zap.Int64("from", senderID),
				zap.Int64("to", receiverID),
				zap.Int64("amount", offer.Amount),
				zap.NamedError("cause", err),
				zap.NamedError("compensation", compErr))
			return 0, fmt.Errorf("payment compensation: %w", ErrCompensationFailed)
		}
		return 0, storeErr("credit receiver", err)
	}

	e.pending.MarkCooldown(KindPayment, senderID)
	return offer.Amount, nil
}

// CancelPayment отменяет неподтвержденный платеж (только отправитель).
func (e *Engine) CancelPayment(senderID, receiverID, actorID int64) error {
	if actorID != senderID {
		return fmt.Errorf("payment cancel by %d: %w", actorID, ErrNotAuthorized)
	}
	_, err := e.pending.Take(KindPayment, senderID, receiverID)
	return err
}

// Grant безусловно начисляет валюту (минт: клеймы, бонусы, админка).
func (e *Engine) Grant(ctx context.Context, userID, amount int64) error {
	if err := e.store.AddBalance(ctx, userID, amount); err != nil {
		return storeErr("grant", err)
	}
	return nil
}

// Deduct условно списывает валюту (берн); баланс не может уйти в минус.
func (e *Engine) Deduct(ctx context.Context, userID, amount int64) error {
	ok, err := e.store.DebitIfEnough(ctx, userID, amount)
	if err != nil {
		return storeErr("deduct", err)
	}
	if !ok {
		return failedPrecondition("недостаточно средств")
	}
	return nil
}

// BuyCharacter покупает персонажа каталога за цену его редкости: атомарное
// списание, затем push; при провале push деньги возвращаются.
func (e *Engine) BuyCharacter(ctx context.Context, userID, characterID int64) (*models.CharacterDefinition, int64, error) {
	def, err := e.store.GetCharacter(ctx, characterID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, 0, fmt.Errorf("character %d: %w", characterID, ErrNotFound)
	}
	if err != nil {
		return nil, 0, storeErr("load character", err)
	}
	price := PriceFor(def.Rarity)

	unlock := e.locks.Acquire(userID)
	defer unlock()

	ok, err := e.store.DebitIfEnough(ctx, userID, price)
	if err != nil {
		return nil, 0, storeErr("debit", err)
	}
	if !ok {
		return nil, 0, failedPrecondition("недостаточно средств: нужно %d", price)
	}

	if err := e.store.PushCharacter(ctx, userID, def.Instance(), e.cfg.InventoryCap); err != nil {
		if compErr := e.store.AddBalance(ctx, userID, price); compErr != nil {
			e.log.Error("CRITICAL: purchase refund failed",
				zap.Int64("user", userID),
				zap.Int64("character", characterID),
				zap.Int64("price", price),
				zap.NamedError("cause", err),
				zap.NamedError("compensation", compErr))
			return nil, 0, fmt.Errorf("purchase refund: %w", ErrCompensationFailed)
		}
		if errors.Is(err, storage.ErrCapReached) {
			return nil, 0, failedPrecondition("инвентарь заполнен")
		}
		return nil, 0, storeErr("push character", err)
	}

	return def, price, nil
}
