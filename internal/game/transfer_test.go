package game

import (
	"context"
	"testing"

	"tg-collector-bot/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransferMovesExactlyOneCopy(t *testing.T) {
	e, store := newTestEngine()
	ctx := context.Background()

	// У отправителя две копии персонажа 7 и одна 3.
	store.seedUser(1, 100, 7, 7, 3)
	store.seedUser(2, 0)

	inst, err := e.Transfer(ctx, 1, 2, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), inst.CharacterID)

	assert.Equal(t, 1, store.countCharacter(1, 7), "у отправителя остается вторая копия")
	assert.Equal(t, 1, store.countCharacter(1, 3))
	assert.Equal(t, 1, store.countCharacter(2, 7))
}

func TestTransferToBrandNewReceiver(t *testing.T) {
	e, store := newTestEngine()
	ctx := context.Background()

	store.seedUser(1, 0, 5)
	// Пользователь 42 нигде не заведен.

	inst, err := e.Transfer(ctx, 1, 42, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), inst.CharacterID)

	assert.Equal(t, 0, store.countCharacter(1, 5))
	assert.Equal(t, 1, store.countCharacter(42, 5))
	assert.True(t, store.snapshot(42).exists, "push создает документ получателя")
}

func TestTransferSelfRejected(t *testing.T) {
	e, store := newTestEngine()
	store.seedUser(1, 0, 5)

	_, err := e.Transfer(context.Background(), 1, 1, 5)
	assert.ErrorIs(t, err, ErrNotAuthorized)
	assert.Equal(t, 1, store.countCharacter(1, 5))
}

func TestTransferCharacterNotOwned(t *testing.T) {
	e, store := newTestEngine()
	ctx := context.Background()

	store.seedUser(1, 0, 3)
	store.seedUser(2, 0)
	before1, before2 := store.snapshot(1), store.snapshot(2)

	_, err := e.Transfer(ctx, 1, 2, 99)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Equal(t, before1, store.snapshot(1), "при отказе ничего не меняется")
	assert.Equal(t, before2, store.snapshot(2))
}

func TestTransferReceiverAtCap(t *testing.T) {
	e, store := newTestEngine()
	ctx := context.Background()
	e.cfg.InventoryCap = 2

	store.seedUser(1, 0, 5)
	store.seedUser(2, 0, 10, 11)
	before1, before2 := store.snapshot(1), store.snapshot(2)

	_, err := e.Transfer(ctx, 1, 2, 5)
	var pre *PreconditionError
	require.ErrorAs(t, err, &pre)

	assert.Equal(t, before1, store.snapshot(1))
	assert.Equal(t, before2, store.snapshot(2))
}

func TestTransferAbortedWhenPullRaced(t *testing.T) {
	e, store := newTestEngine()
	ctx := context.Background()

	store.seedUser(1, 0, 5)
	store.seedUser(2, 0)
	store.pullNoEffect = true

	_, err := e.Transfer(ctx, 1, 2, 5)
	assert.ErrorIs(t, err, ErrTransferAborted)

	assert.Equal(t, 1, store.countCharacter(1, 5), "ничего не мутировано")
	assert.Equal(t, 0, store.countCharacter(2, 5))
}

func TestTransferCompensatesFailedPush(t *testing.T) {
	e, store := newTestEngine()
	ctx := context.Background()

	store.seedUser(1, 0, 5)
	store.seedUser(2, 0)
	store.failPush[2] = 1

	_, err := e.Transfer(ctx, 1, 2, 5)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCompensationFailed)

	// Экземпляр вернулся отправителю, дубликатов нет.
	assert.Equal(t, 1, store.countCharacter(1, 5))
	assert.Equal(t, 0, store.countCharacter(2, 5))
	assert.Empty(t, store.recovery)
}

func TestTransferWritesRecoveryWhenCompensationFails(t *testing.T) {
	e, store := newTestEngine()
	ctx := context.Background()

	store.seedUser(1, 0, 5)
	store.seedUser(2, 0)
	// Провалить и push получателю, и компенсирующий push отправителю.
	store.failPush[2] = 1
	store.failPush[1] = 1

	_, err := e.Transfer(ctx, 1, 2, 5)
	assert.ErrorIs(t, err, ErrCompensationFailed)

	require.Len(t, store.recovery, 1)
	rec := store.recovery[0]
	assert.Equal(t, int64(5), rec.Character.CharacterID)
	assert.Equal(t, int64(1), rec.FromID)
	assert.Equal(t, int64(2), rec.ToID)
	assert.NotEmpty(t, rec.ID)
	assert.NotEmpty(t, rec.Context)

	// Экземпляр ушел в sink, на руках его нет ни у кого.
	assert.Equal(t, 0, store.countCharacter(1, 5))
	assert.Equal(t, 0, store.countCharacter(2, 5))
}

func TestTransferCompensationAndSinkBothFail(t *testing.T) {
	e, store := newTestEngine()
	ctx := context.Background()

	store.seedUser(1, 0, 5)
	store.seedUser(2, 0)
	store.failPush[2] = 1
	store.failPush[1] = 1
	store.failRecovery = true

	_, err := e.Transfer(ctx, 1, 2, 5)
	assert.ErrorIs(t, err, ErrCompensationFailed)
	assert.Empty(t, store.recovery)
}

func TestConcurrentOpposingTransfersDoNotDeadlock(t *testing.T) {
	e, store := newTestEngine()
	ctx := context.Background()

	const rounds = 200
	store.seedUser(1, 0)
	store.seedUser(2, 0)
	for i := 0; i < rounds; i++ {
		store.seedUser(1, 0, 100)
		store.seedUser(2, 0, 200)
	}
	// seedUser перетирает баланс, но персонажи накапливаются.
	require.Equal(t, rounds, store.countCharacter(1, 100))
	require.Equal(t, rounds, store.countCharacter(2, 200))

	done := make(chan struct{}, 2)
	go func() {
		for i := 0; i < rounds; i++ {
			if _, err := e.Transfer(ctx, 1, 2, 100); err != nil {
				t.Errorf("transfer 1->2: %v", err)
			}
		}
		done <- struct{}{}
	}()
	go func() {
		for i := 0; i < rounds; i++ {
			if _, err := e.Transfer(ctx, 2, 1, 200); err != nil {
				t.Errorf("transfer 2->1: %v", err)
			}
		}
		done <- struct{}{}
	}()
	<-done
	<-done

	// Закон сохранения: все копии живы, просто поменяли владельцев.
	assert.Equal(t, rounds, store.countCharacter(2, 100))
	assert.Equal(t, rounds, store.countCharacter(1, 200))
	assert.Equal(t, 0, store.countCharacter(1, 100))
	assert.Equal(t, 0, store.countCharacter(2, 200))
}

func TestTransferConservesTotalInstances(t *testing.T) {
	e, store := newTestEngine()
	ctx := context.Background()

	store.seedUser(1, 0, 7, 7, 3)
	store.seedUser(2, 0, 9)

	_, err := e.Transfer(ctx, 1, 2, 7)
	require.NoError(t, err)

	total := func(charID int64) int {
		return store.countCharacter(1, charID) + store.countCharacter(2, charID)
	}
	assert.Equal(t, 2, total(7))
	assert.Equal(t, 1, total(3))
	assert.Equal(t, 1, total(9))

	var one, two models.UserRecord
	u1, _ := store.GetUser(ctx, 1)
	u2, _ := store.GetUser(ctx, 2)
	one, two = *u1, *u2
	assert.Len(t, one.Characters, 2)
	assert.Len(t, two.Characters, 2)
}
