package game

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"tg-collector-bot/gamble"
	"tg-collector-bot/internal/models"
	"tg-collector-bot/internal/storage"

	"go.uber.org/zap"
)

// Спавны: каждые N сообщений в чате бот выкладывает карточку случайного
// персонажа; первый, кто угадает имя через /claim, забирает экземпляр
// и награду за клейм.

const spawnRollAttempts = 5

// CountMessage учитывает сообщение чата и на каждом N-м возвращает
// нового заспавненного персонажа (иначе nil).
func (e *Engine) CountMessage(ctx context.Context, chatID int64) (*models.CharacterDefinition, error) {
	e.mu.Lock()
	e.counts[chatID]++
	hit := e.counts[chatID]%e.cfg.SpawnEveryN == 0
	e.mu.Unlock()

	if !hit {
		return nil, nil
	}

	def, err := e.rollSpawn(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		// Пустой каталог — спавнить нечего.
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("roll spawn", err)
	}

	e.mu.Lock()
	e.spawns[chatID] = def
	e.mu.Unlock()

	e.log.Info("character spawned",
		zap.Int64("chat", chatID),
		zap.Int64("character", def.ID),
		zap.String("rarity", def.Rarity.String()))
	return def, nil
}

// rollSpawn бросает редкость и подбирает под нее персонажа каталога
// (ограниченное число попыток, иначе берется последний выпавший).
func (e *Engine) rollSpawn(ctx context.Context) (*models.CharacterDefinition, error) {
	want := models.FromGambleRarity(gamble.RollRarity())

	var def *models.CharacterDefinition
	for i := 0; i < spawnRollAttempts; i++ {
		candidate, err := e.store.RandomCharacter(ctx)
		if err != nil {
			return nil, err
		}
		def = candidate
		if def.Rarity == want {
			break
		}
	}
	return def, nil
}

// Claim — попытка забрать активный спавн чата по имени персонажа.
// Сравнение без регистра, достаточно подстроки. Первый верный клейм
// снимает спавн; проверка и снятие атомарны под мьютексом движка.
func (e *Engine) Claim(ctx context.Context, chatID, userID int64, guess string) (*models.CharacterInstance, error) {
	guess = strings.ToLower(strings.TrimSpace(guess))
	if guess == "" {
		return nil, failedPrecondition("укажи имя персонажа")
	}

	e.mu.Lock()
	def, ok := e.spawns[chatID]
	if ok && strings.Contains(strings.ToLower(def.Name), guess) {
		delete(e.spawns, chatID)
	} else {
		e.mu.Unlock()
		if !ok {
			return nil, fmt.Errorf("active spawn: %w", ErrNotFound)
		}
		return nil, failedPrecondition("неверное имя")
	}
	e.mu.Unlock()

	inst := def.Instance()
	if err := e.store.PushCharacter(ctx, userID, inst, e.cfg.InventoryCap); err != nil {
		// Клейм не прошел — вернуть спавн чату.
		e.mu.Lock()
		if _, taken := e.spawns[chatID]; !taken {
			e.spawns[chatID] = def
		}
		e.mu.Unlock()
		if errors.Is(err, storage.ErrCapReached) {
			return nil, failedPrecondition("твой инвентарь заполнен")
		}
		return nil, storeErr("grant claim", err)
	}

	if err := e.store.AddBalance(ctx, userID, e.cfg.ClaimReward); err != nil {
		// Персонаж уже выдан; недоначисленная награда — не повод откатывать клейм.
		e.log.Warn("claim reward grant failed",
			zap.Int64("user", userID), zap.Error(err))
	}

	return &inst, nil
}

// ActiveSpawn возвращает текущий спавн чата (для повторного показа).
func (e *Engine) ActiveSpawn(chatID int64) (*models.CharacterDefinition, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	def, ok := e.spawns[chatID]
	return def, ok
}
