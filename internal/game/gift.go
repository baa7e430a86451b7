package game

import (
	"context"
	"errors"
	"fmt"

	"tg-collector-bot/internal/models"
	"tg-collector-bot/internal/storage"
)

// Подарок — машина состояний Offered → {Confirmed, Cancelled, Expired}.
// В отличие от трейда подтверждает САМ инициатор ("подтверди, что хочешь
// отправить"), а не получатель. Между подарками одного инициатора действует
// кулдаун, независимый от трейдового.

// OfferGift регистрирует предложение подарка. Ничего не мутирует.
func (e *Engine) OfferGift(ctx context.Context, senderID, receiverID, characterID int64, chatID int64) error {
	if senderID == receiverID {
		return fmt.Errorf("self-gift: %w", ErrNotAuthorized)
	}

	if left := e.pending.CooldownRemaining(KindGift, senderID, e.cfg.GiftCooldown); left > 0 {
		return cooldownError(left)
	}

	sender, err := e.store.GetUser(ctx, senderID)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("sender: %w", ErrNotFound)
	}
	if err != nil {
		return storeErr("load sender", err)
	}
	if !sender.OwnsCharacter(characterID) {
		return failedPrecondition("у тебя нет персонажа с id %d", characterID)
	}

	return e.pending.Put(&Offer{
		Kind:           KindGift,
		InitiatorID:    senderID,
		CounterpartyID: receiverID,
		GiveID:         characterID,
		ChatID:         chatID,
	})
}

// ConfirmGift выполняет подарок по подтверждению инициатора. Предложение
// снимается до мутации; получатель может вообще не существовать — его
// документ будет создан вместе с персонажем.
func (e *Engine) ConfirmGift(ctx context.Context, senderID, receiverID, actorID int64) (*models.CharacterInstance, error) {
	if actorID != senderID {
		return nil, fmt.Errorf("gift confirm by %d: %w", actorID, ErrNotAuthorized)
	}

	offer, err := e.pending.Take(KindGift, senderID, receiverID)
	if err != nil {
		return nil, err
	}

	e.pending.MarkCooldown(KindGift, senderID)

	inst, err := e.Transfer(ctx, senderID, receiverID, offer.GiveID)
	if err != nil {
		// Никакого тихого ретрая: пользователь видит явный отказ.
		return nil, err
	}
	return inst, nil
}

// CancelGift отменяет неподтвержденный подарок (только инициатор).
func (e *Engine) CancelGift(senderID, receiverID, actorID int64) error {
	if actorID != senderID {
		return fmt.Errorf("gift cancel by %d: %w", actorID, ErrNotAuthorized)
	}
	_, err := e.pending.Take(KindGift, senderID, receiverID)
	return err
}
