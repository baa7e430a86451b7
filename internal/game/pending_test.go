package game

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTable() (*PendingTable, *time.Time) {
	table := NewPendingTable(5*time.Minute, 5*time.Minute, 5*time.Minute)
	clock := time.Now()
	table.now = func() time.Time { return clock }
	return table, &clock
}

func TestPendingPutTake(t *testing.T) {
	table, _ := newTestTable()

	require.NoError(t, table.Put(&Offer{Kind: KindGift, InitiatorID: 1, CounterpartyID: 2, GiveID: 5}))

	offer, err := table.Take(KindGift, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5), offer.GiveID)
	assert.False(t, offer.CreatedAt.IsZero())

	// Снято — второй Take пустой.
	_, err = table.Take(KindGift, 1, 2)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPendingKindsAreIndependent(t *testing.T) {
	table, _ := newTestTable()

	require.NoError(t, table.Put(&Offer{Kind: KindGift, InitiatorID: 1, CounterpartyID: 2}))
	require.NoError(t, table.Put(&Offer{Kind: KindPayment, InitiatorID: 1, CounterpartyID: 2}))
	require.NoError(t, table.Put(&Offer{Kind: KindTrade, InitiatorID: 1, CounterpartyID: 2}))

	_, err := table.Take(KindGift, 1, 2)
	assert.NoError(t, err)
	_, err = table.Take(KindPayment, 1, 2)
	assert.NoError(t, err)
	_, err = table.Take(KindTrade, 1, 2)
	assert.NoError(t, err)
}

func TestPendingDuplicateRejected(t *testing.T) {
	table, _ := newTestTable()

	require.NoError(t, table.Put(&Offer{Kind: KindGift, InitiatorID: 1, CounterpartyID: 2}))

	var pre *PreconditionError
	err := table.Put(&Offer{Kind: KindGift, InitiatorID: 1, CounterpartyID: 2})
	require.ErrorAs(t, err, &pre)

	// Та же пара в другом направлении для подарков допустима.
	assert.NoError(t, table.Put(&Offer{Kind: KindGift, InitiatorID: 2, CounterpartyID: 1}))
}

func TestPendingTradeReversePairRejected(t *testing.T) {
	table, _ := newTestTable()

	require.NoError(t, table.Put(&Offer{Kind: KindTrade, InitiatorID: 1, CounterpartyID: 2}))

	var pre *PreconditionError
	err := table.Put(&Offer{Kind: KindTrade, InitiatorID: 2, CounterpartyID: 1})
	require.ErrorAs(t, err, &pre)
}

func TestPendingExpiry(t *testing.T) {
	table, clock := newTestTable()

	require.NoError(t, table.Put(&Offer{Kind: KindTrade, InitiatorID: 1, CounterpartyID: 2}))
	*clock = clock.Add(6 * time.Minute)

	// Протухшее предложение отдается как ErrExpired и при этом снимается.
	_, err := table.Take(KindTrade, 1, 2)
	assert.ErrorIs(t, err, ErrExpired)
	_, err = table.Take(KindTrade, 1, 2)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPendingExpiredSlotReusable(t *testing.T) {
	table, clock := newTestTable()

	require.NoError(t, table.Put(&Offer{Kind: KindTrade, InitiatorID: 1, CounterpartyID: 2}))
	*clock = clock.Add(6 * time.Minute)

	// Протухшее не блокирует новое предложение той же пары.
	assert.NoError(t, table.Put(&Offer{Kind: KindTrade, InitiatorID: 1, CounterpartyID: 2}))
}

func TestPendingGetDoesNotConsume(t *testing.T) {
	table, clock := newTestTable()

	require.NoError(t, table.Put(&Offer{Kind: KindGift, InitiatorID: 1, CounterpartyID: 2}))

	_, ok := table.Get(KindGift, 1, 2)
	assert.True(t, ok)
	_, ok = table.Get(KindGift, 1, 2)
	assert.True(t, ok)

	*clock = clock.Add(6 * time.Minute)
	_, ok = table.Get(KindGift, 1, 2)
	assert.False(t, ok)
}

func TestPendingSweep(t *testing.T) {
	table, clock := newTestTable()

	require.NoError(t, table.Put(&Offer{Kind: KindTrade, InitiatorID: 1, CounterpartyID: 2}))
	require.NoError(t, table.Put(&Offer{Kind: KindGift, InitiatorID: 3, CounterpartyID: 4}))
	table.MarkCooldown(KindGift, 3)

	*clock = clock.Add(2 * time.Minute)
	require.NoError(t, table.Put(&Offer{Kind: KindPayment, InitiatorID: 5, CounterpartyID: 6}))

	*clock = clock.Add(4 * time.Minute)
	removed := table.Sweep(24 * time.Hour)
	assert.Equal(t, 2, removed, "выгребаются только протухшие")

	_, ok := table.Get(KindPayment, 5, 6)
	assert.True(t, ok, "живое предложение переживает Sweep")

	// Кулдаун в пределах retention остается.
	assert.Greater(t, table.CooldownRemaining(KindGift, 3, time.Hour), time.Duration(0))

	*clock = clock.Add(25 * time.Hour)
	table.Sweep(24 * time.Hour)
	assert.Equal(t, time.Duration(0), table.CooldownRemaining(KindGift, 3, 48*time.Hour))
}

func TestPendingCooldown(t *testing.T) {
	table, clock := newTestTable()

	assert.Equal(t, time.Duration(0), table.CooldownRemaining(KindGift, 1, 30*time.Second))

	table.MarkCooldown(KindGift, 1)
	left := table.CooldownRemaining(KindGift, 1, 30*time.Second)
	assert.Equal(t, 30*time.Second, left)

	// Кулдауны разных типов независимы.
	assert.Equal(t, time.Duration(0), table.CooldownRemaining(KindPayment, 1, 30*time.Second))

	*clock = clock.Add(31 * time.Second)
	assert.Equal(t, time.Duration(0), table.CooldownRemaining(KindGift, 1, 30*time.Second))
}
