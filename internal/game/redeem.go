package game

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"tg-collector-bot/internal/models"
	"tg-collector-bot/internal/storage"

	"go.uber.org/zap"
)

// Redeem-коды: генерация с криптослучайным суффиксом и атомарное
// потребление. Вся валидность (код существует, активен, пользователь еще
// не активировал, лимит не исчерпан) проверяется хранилищем одной
// неделимой условной операцией — гонка двух одновременных активаций
// одноразового кода дает ровно один успех.

// GenerateCode создает код с фиксированным префиксом и случайным суффиксом,
// с ограниченным числом повторов при коллизии.
func (e *Engine) GenerateCode(ctx context.Context, kind models.CodeKind, amount int64, characterID int64, maxUses int) (*models.RedeemCode, error) {
	if maxUses <= 0 {
		return nil, failedPrecondition("maxUses должен быть положительным")
	}
	switch kind {
	case models.CodeKindCurrency:
		if amount <= 0 {
			return nil, failedPrecondition("сумма должна быть положительной")
		}
	case models.CodeKindCharacter:
		if _, err := e.store.GetCharacter(ctx, characterID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, fmt.Errorf("character %d: %w", characterID, ErrNotFound)
			}
			return nil, storeErr("load character", err)
		}
	default:
		return nil, failedPrecondition("неизвестный тип кода %q", kind)
	}

	for i := 0; i < e.cfg.CodeRetries; i++ {
		suffix, err := randomCodeSuffix()
		if err != nil {
			return nil, fmt.Errorf("generate code material: %w", err)
		}
		code := &models.RedeemCode{
			Code:        strings.ToLower(e.cfg.CodePrefix + "-" + suffix),
			Kind:        kind,
			Amount:      amount,
			CharacterID: characterID,
			MaxUses:     maxUses,
			Active:      true,
		}
		err = e.store.CreateCode(ctx, code)
		if errors.Is(err, storage.ErrConflict) {
			continue
		}
		if err != nil {
			return nil, storeErr("create code", err)
		}
		return code, nil
	}
	return nil, fmt.Errorf("code collision after %d retries", e.cfg.CodeRetries)
}

func randomCodeSuffix() (string, error) {
	buf := make([]byte, 3)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// Redeem активирует код для пользователя. Потребление слота атомарно;
// награда выдается только после него. Если выдача награды провалилась,
// слот компенсируется обратно (пользователь сможет повторить) — слот кода
// не теряется навсегда из-за неудавшейся выдачи.
func (e *Engine) Redeem(ctx context.Context, userID int64, rawCode string) (*models.RedeemCode, error) {
	if !e.limiter.Allow(userID) {
		return nil, failedPrecondition("слишком много попыток, подожди немного")
	}

	code := strings.ToLower(strings.TrimSpace(rawCode))
	if code == "" {
		return nil, failedPrecondition("укажи код")
	}

	consumed, err := e.store.ConsumeCode(ctx, code, userID)
	if err != nil {
		return nil, storeErr("consume code", err)
	}
	if !consumed {
		return nil, e.explainRedeemFailure(ctx, code, userID)
	}

	rc, err := e.store.GetCode(ctx, code)
	if err != nil {
		return nil, e.unconsume(ctx, code, userID, storeErr("load code after consume", err))
	}

	unlock := e.locks.Acquire(userID)
	defer unlock()

	switch rc.Kind {
	case models.CodeKindCharacter:
		def, err := e.store.GetCharacter(ctx, rc.CharacterID)
		if err != nil {
			return nil, e.unconsume(ctx, code, userID, storeErr("load reward character", err))
		}
		if err := e.store.PushCharacter(ctx, userID, def.Instance(), e.cfg.InventoryCap); err != nil {
			if errors.Is(err, storage.ErrCapReached) {
				return nil, e.unconsume(ctx, code, userID, failedPrecondition("инвентарь заполнен"))
			}
			return nil, e.unconsume(ctx, code, userID, storeErr("grant character", err))
		}
	default:
		if err := e.store.AddBalance(ctx, userID, rc.Amount); err != nil {
			return nil, e.unconsume(ctx, code, userID, storeErr("grant currency", err))
		}
	}

	return rc, nil
}

// unconsume возвращает пользователю слот кода после неудавшейся выдачи
// награды и отдает исходную причину. Провал самой компенсации — критичен.
func (e *Engine) unconsume(ctx context.Context, code string, userID int64, cause error) error {
	if err := e.store.UnconsumeCode(ctx, code, userID); err != nil && !errors.Is(err, storage.ErrNoEffect) {
		e.log.Error("CRITICAL: redeem compensation failed, code slot lost",
			zap.String("code", code),
			zap.Int64("user", userID),
			zap.NamedError("cause", cause),
			zap.NamedError("compensation", err))
		return fmt.Errorf("redeem compensation: %w", ErrCompensationFailed)
	}
	return cause
}

// explainRedeemFailure — read-only классификация причины отказа для
// точного сообщения пользователю. Единственная допустимая мутация здесь —
// идемпотентное гашение только что исчерпанного кода.
func (e *Engine) explainRedeemFailure(ctx context.Context, code string, userID int64) error {
	rc, err := e.store.GetCode(ctx, code)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("code %q: %w", code, ErrNotFound)
	}
	if err != nil {
		return storeErr("diagnose code", err)
	}

	for _, id := range rc.UsedBy {
		if id == userID {
			return failedPrecondition("ты уже активировал этот код")
		}
	}
	if len(rc.UsedBy) >= rc.MaxUses {
		if rc.Active {
			if err := e.store.DeactivateCode(ctx, code); err != nil {
				e.log.Warn("failed to deactivate exhausted code",
					zap.String("code", code), zap.Error(err))
			}
		}
		return failedPrecondition("лимит активаций кода исчерпан")
	}
	if !rc.Active {
		return fmt.Errorf("code %q inactive: %w", code, ErrExpired)
	}
	return failedPrecondition("код недоступен")
}
