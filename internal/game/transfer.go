package game

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tg-collector-bot/internal/models"
	"tg-collector-bot/internal/storage"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Transfer перемещает ровно один экземпляр персонажа characterID из массива
// отправителя в массив получателя. Получатель может не существовать —
// подарок новому пользователю создает его документ вместе с push.
//
// Хранилище не дает транзакций на два документа, поэтому перенос — это
// атомарный pull у отправителя, затем атомарный push получателю; при
// провале push выполняется компенсирующий push обратно отправителю, а если
// и он не прошел — экземпляр durably пишется в recovery sink. Успешный
// вызов никогда не дублирует экземпляр на обе стороны.
func (e *Engine) Transfer(ctx context.Context, senderID, receiverID, characterID int64) (*models.CharacterInstance, error) {
	if senderID == receiverID {
		return nil, fmt.Errorf("self-transfer: %w", ErrNotAuthorized)
	}

	unlock := e.locks.AcquirePair(senderID, receiverID)
	defer unlock()

	return e.transferLocked(ctx, senderID, receiverID, characterID)
}

// transferLocked — тело переноса; блокировки обоих пользователей уже
// должны быть взяты вызывающим (Transfer либо AcceptTrade).
func (e *Engine) transferLocked(ctx context.Context, senderID, receiverID, characterID int64) (*models.CharacterInstance, error) {
	sender, err := e.store.GetUser(ctx, senderID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("sender %d: %w", senderID, ErrNotFound)
	}
	if err != nil {
		return nil, storeErr("load sender", err)
	}
	if !sender.OwnsCharacter(characterID) {
		return nil, fmt.Errorf("character %d: %w", characterID, ErrNotFound)
	}

	receiver, err := e.store.GetUser(ctx, receiverID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, storeErr("load receiver", err)
	}
	if receiver != nil && len(receiver.Characters) >= e.cfg.InventoryCap {
		return nil, failedPrecondition("инвентарь получателя заполнен")
	}

	inst, err := e.store.PullCharacter(ctx, senderID, characterID)
	if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrNoEffect) {
		// Состояние ушло между чтением и удалением; ничего не изменено.
		return nil, ErrTransferAborted
	}
	if err != nil {
		return nil, storeErr("pull character", err)
	}

	if err := e.store.PushCharacter(ctx, receiverID, *inst, e.cfg.InventoryCap); err != nil {
		return nil, e.compensatePull(ctx, senderID, receiverID, *inst, err)
	}

	return inst, nil
}

// compensatePull возвращает уже снятый экземпляр отправителю после
// неудавшегося push получателю. Компенсация идет без лимита инвентаря,
// чтобы откат не мог провалиться по cap. Если компенсация не прошла,
// экземпляр пишется в recovery sink — видимое "бюро находок" вместо
// тихой потери данных.
func (e *Engine) compensatePull(ctx context.Context, senderID, receiverID int64, inst models.CharacterInstance, cause error) error {
	compErr := e.store.PushCharacter(ctx, senderID, inst, 0)
	if compErr == nil {
		if errors.Is(cause, storage.ErrCapReached) {
			return failedPrecondition("инвентарь получателя заполнен")
		}
		return storeErr("push to receiver", cause)
	}

	rec := &models.RecoveryRecord{
		ID:        uuid.NewString(),
		Character: inst,
		FromID:    senderID,
		ToID:      receiverID,
		Context:   fmt.Sprintf("push failed: %v; compensation failed: %v", cause, compErr),
		At:        time.Now(),
	}
	if sinkErr := e.store.AppendRecovery(ctx, rec); sinkErr != nil {
		e.log.Error("CRITICAL: character lost, recovery sink write failed",
			zap.Int64("character", inst.CharacterID),
			zap.Int64("from", senderID),
			zap.Int64("to", receiverID),
			zap.NamedError("cause", cause),
			zap.NamedError("compensation", compErr),
			zap.NamedError("sink", sinkErr))
		return fmt.Errorf("recovery sink write failed: %w", ErrCompensationFailed)
	}

	e.log.Error("transfer compensation failed, character written to recovery sink",
		zap.String("recovery_id", rec.ID),
		zap.Int64("character", inst.CharacterID),
		zap.Int64("from", senderID),
		zap.Int64("to", receiverID),
		zap.NamedError("cause", cause),
		zap.NamedError("compensation", compErr))
	return ErrCompensationFailed
}
