// Package storage отвечает за хранение документов пользователей, каталога
// персонажей и redeem-кодов. Интерфейс Store описывает только те операции,
// которые нужны движку: точечные чтения и атомарные условные мутации
// (conditional update, push, pull-first-match) одного документа за раз.
// Междокументных транзакций хранилище не дает — это зона ответственности
// движка (блокировки + компенсации).
package storage

import (
	"context"
	"errors"
	"time"

	"tg-collector-bot/internal/models"
)

var (
	// ErrNotFound — запрошенный документ или элемент отсутствует.
	ErrNotFound = errors.New("storage: not found")
	// ErrNoEffect — атомарная операция не изменила ни одного документа
	// (состояние успело уйти между чтением и мутацией).
	ErrNoEffect = errors.New("storage: no effect")
	// ErrCapReached — инвентарь получателя заполнен до лимита.
	ErrCapReached = errors.New("storage: inventory cap reached")
	// ErrConflict — нарушение уникальности (коллизия кода).
	ErrConflict = errors.New("storage: conflict")
)

// Store — операции хранилища, нужные движку и хендлерам.
type Store interface {
	Close() error

	// Документы пользователей.
	EnsureUser(ctx context.Context, id int64, username string) error
	GetUser(ctx context.Context, id int64) (*models.UserRecord, error)
	AddBalance(ctx context.Context, id int64, delta int64) error
	DebitIfEnough(ctx context.Context, id int64, amount int64) (bool, error)
	PullCharacter(ctx context.Context, id, characterID int64) (*models.CharacterInstance, error)
	PushCharacter(ctx context.Context, id int64, inst models.CharacterInstance, cap int) error
	ToggleFavorite(ctx context.Context, id, characterID int64) (bool, error)
	ClaimDaily(ctx context.Context, id int64, cooldown time.Duration, reward int64) (time.Duration, error)
	TopBalances(ctx context.Context, n int) ([]models.LeaderboardEntry, error)

	// Каталог персонажей.
	SaveCharacter(ctx context.Context, def *models.CharacterDefinition) error
	GetCharacter(ctx context.Context, id int64) (*models.CharacterDefinition, error)
	RandomCharacter(ctx context.Context) (*models.CharacterDefinition, error)
	NextCharacterID(ctx context.Context) (int64, error)

	// Redeem-коды.
	CreateCode(ctx context.Context, code *models.RedeemCode) error
	GetCode(ctx context.Context, code string) (*models.RedeemCode, error)
	ConsumeCode(ctx context.Context, code string, userID int64) (bool, error)
	UnconsumeCode(ctx context.Context, code string, userID int64) error
	DeactivateCode(ctx context.Context, code string) error

	// Recovery sink: append-only журнал осиротевших персонажей.
	AppendRecovery(ctx context.Context, rec *models.RecoveryRecord) error
}
