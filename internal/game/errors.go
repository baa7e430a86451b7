package game

import (
	"errors"
	"fmt"
	"time"
)

// Таксономия ошибок движка. Хендлеры переводят их в пользовательские
// сообщения через errors.Is / errors.As, сырые ошибки хранилища наружу
// не выходят.
var (
	// ErrNotAuthorized — актор не имеет права на действие
	// (чужая кнопка подтверждения, self-trade, self-gift).
	ErrNotAuthorized = errors.New("not authorized")

	// ErrNotFound — предложение, код или персонаж больше не резолвится.
	ErrNotFound = errors.New("not found")

	// ErrExpired — окно жизни предложения или токена истекло.
	ErrExpired = errors.New("expired")

	// ErrTransferAborted — атомарное удаление не дало эффекта: состояние
	// успело измениться, ничего не мутировано.
	ErrTransferAborted = errors.New("transfer aborted")

	// ErrCompensationFailed — многошаговая мутация частично применилась,
	// и откат тоже не удался. Единственный случай, требующий оператора.
	ErrCompensationFailed = errors.New("compensation failed")
)

// PreconditionError — проваленное предусловие: нехватка средств, полный
// инвентарь, дубликат предложения, активный кулдаун. Никакой мутации.
type PreconditionError struct {
	Reason string
	// Retry — сколько осталось ждать, если причина в кулдауне.
	Retry time.Duration
}

func (e *PreconditionError) Error() string {
	if e.Retry > 0 {
		return fmt.Sprintf("%s (retry in %s)", e.Reason, e.Retry.Round(time.Second))
	}
	return e.Reason
}

func failedPrecondition(format string, args ...interface{}) error {
	return &PreconditionError{Reason: fmt.Sprintf(format, args...)}
}

func cooldownError(left time.Duration) error {
	return &PreconditionError{Reason: "кулдаун еще не прошел", Retry: left}
}

// storeErr оборачивает неожиданную ошибку хранилища с именем операции.
// Такие ошибки не ретраятся автоматически — пользователь может повторить
// команду сам, двойное применение посреди трансфера недопустимо.
func storeErr(op string, err error) error {
	return fmt.Errorf("store %s: %w", op, err)
}
