package game

import (
	"context"
	"errors"
	"fmt"

	"tg-collector-bot/internal/models"
	"tg-collector-bot/internal/storage"

	"go.uber.org/zap"
)

// Трейд — машина состояний Proposed → {Accepted, Declined, Expired}.
// Предложение живет в PendingTable; принять или отклонить может только
// адресованный контрагент, личность проверяется по актору клика.

// TradeResult — итог успешного обмена.
type TradeResult struct {
	Give models.CharacterInstance // ушел от инициатора к контрагенту
	Want models.CharacterInstance // ушел от контрагента к инициатору
}

// ProposeTrade регистрирует предложение обмена: giveID — персонаж
// инициатора, wantID — персонаж контрагента. Ничего не мутирует.
func (e *Engine) ProposeTrade(ctx context.Context, initiatorID, counterpartyID, giveID, wantID int64, chatID int64) error {
	if initiatorID == counterpartyID {
		return fmt.Errorf("self-trade: %w", ErrNotAuthorized)
	}

	initiator, err := e.store.GetUser(ctx, initiatorID)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("initiator: %w", ErrNotFound)
	}
	if err != nil {
		return storeErr("load initiator", err)
	}
	if !initiator.OwnsCharacter(giveID) {
		return failedPrecondition("у тебя нет персонажа с id %d", giveID)
	}

	counterparty, err := e.store.GetUser(ctx, counterpartyID)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("counterparty: %w", ErrNotFound)
	}
	if err != nil {
		return storeErr("load counterparty", err)
	}
	if !counterparty.OwnsCharacter(wantID) {
		return failedPrecondition("у собеседника нет персонажа с id %d", wantID)
	}

	return e.pending.Put(&Offer{
		Kind:           KindTrade,
		InitiatorID:    initiatorID,
		CounterpartyID: counterpartyID,
		GiveID:         giveID,
		WantID:         wantID,
		ChatID:         chatID,
	})
}

// AcceptTrade выполняет обмен по явному подтверждению контрагента.
// Предложение снимается из таблицы до каких-либо мутаций, оба пользователя
// блокируются в каноническом порядке, владение обоими персонажами
// перепроверяется (состояние могло уйти с момента предложения). Обе ноги
// обмена идут под общей блокировкой; если вторая нога провалилась после
// успешной первой, первая откатывается до возврата ошибки.
func (e *Engine) AcceptTrade(ctx context.Context, initiatorID, counterpartyID, actorID int64) (*TradeResult, error) {
	if actorID != counterpartyID {
		return nil, fmt.Errorf("trade confirm by %d: %w", actorID, ErrNotAuthorized)
	}

	offer, err := e.pending.Take(KindTrade, initiatorID, counterpartyID)
	if err != nil {
		return nil, err
	}

	unlock := e.locks.AcquirePair(initiatorID, counterpartyID)
	defer unlock()

	// Ревалидация: оба персонажа всё еще у своих владельцев.
	initiator, err := e.store.GetUser(ctx, initiatorID)
	if err != nil {
		return nil, storeErr("load initiator", err)
	}
	counterparty, err := e.store.GetUser(ctx, counterpartyID)
	if err != nil {
		return nil, storeErr("load counterparty", err)
	}
	if !initiator.OwnsCharacter(offer.GiveID) || !counterparty.OwnsCharacter(offer.WantID) {
		return nil, fmt.Errorf("trade character vanished: %w", ErrNotFound)
	}

	give, err := e.transferLocked(ctx, initiatorID, counterpartyID, offer.GiveID)
	if err != nil {
		return nil, err
	}

	want, err := e.transferLocked(ctx, counterpartyID, initiatorID, offer.WantID)
	if err != nil {
		// Откат первой ноги до возврата ошибки.
		if _, revErr := e.transferLocked(ctx, counterpartyID, initiatorID, offer.GiveID); revErr != nil {
			e.log.Error("trade rollback failed",
				zap.Int64("initiator", initiatorID),
				zap.Int64("counterparty", counterpartyID),
				zap.Int64("character", offer.GiveID),
				zap.NamedError("cause", err),
				zap.NamedError("rollback", revErr))
			return nil, fmt.Errorf("trade rollback: %w", ErrCompensationFailed)
		}
		return nil, err
	}

	return &TradeResult{Give: *give, Want: *want}, nil
}

// DeclineTrade отклоняет предложение. Отклонить может только контрагент.
func (e *Engine) DeclineTrade(initiatorID, counterpartyID, actorID int64) error {
	if actorID != counterpartyID {
		return fmt.Errorf("trade decline by %d: %w", actorID, ErrNotAuthorized)
	}
	_, err := e.pending.Take(KindTrade, initiatorID, counterpartyID)
	return err
}
