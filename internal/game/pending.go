package game

import (
	"fmt"
	"sync"
	"time"
)

// OfferKind — тип отложенной операции.
type OfferKind int

const (
	KindTrade OfferKind = iota
	KindGift
	KindPayment
)

func (k OfferKind) String() string {
	switch k {
	case KindTrade:
		return "trade"
	case KindGift:
		return "gift"
	case KindPayment:
		return "payment"
	}
	return "unknown"
}

// Offer — отложенное предложение (трейд, подарок или платеж), ожидающее
// явного подтверждения. Инвариант таблицы: не более одного предложения
// на ключ (kind, initiator, counterparty) одновременно.
type Offer struct {
	Kind           OfferKind
	InitiatorID    int64
	CounterpartyID int64

	// Трейд: GiveID — персонаж инициатора, WantID — персонаж контрагента.
	// Подарок: только GiveID.
	GiveID int64
	WantID int64

	// Платеж.
	Amount int64
	Token  string

	CreatedAt time.Time

	// Для обновления исходного сообщения с кнопками.
	ChatID    int64
	MessageID int
}

type offerKey struct {
	kind OfferKind
	a, b int64
}

type cooldownKey struct {
	kind OfferKind
	user int64
}

// PendingTable — in-process таблица отложенных операций и кулдаунов.
// Протухание проверяется лениво при каждом доступе плюс выгребается
// периодическим Sweep. Вся таблица — явное инжектируемое состояние,
// никаких глобалов: в тестах заводится свой экземпляр.
type PendingTable struct {
	mu        sync.Mutex
	offers    map[offerKey]*Offer
	cooldowns map[cooldownKey]time.Time
	ttl       map[OfferKind]time.Duration

	// подменяется в тестах
	now func() time.Time
}

// NewPendingTable создает таблицу с окнами жизни по типам предложений.
func NewPendingTable(tradeTTL, giftTTL, paymentTTL time.Duration) *PendingTable {
	return &PendingTable{
		offers:    make(map[offerKey]*Offer),
		cooldowns: make(map[cooldownKey]time.Time),
		ttl: map[OfferKind]time.Duration{
			KindTrade:   tradeTTL,
			KindGift:    giftTTL,
			KindPayment: paymentTTL,
		},
		now: time.Now,
	}
}

func (t *PendingTable) key(kind OfferKind, initiator, counterparty int64) offerKey {
	return offerKey{kind: kind, a: initiator, b: counterparty}
}

func (t *PendingTable) expired(o *Offer) bool {
	return t.now().Sub(o.CreatedAt) > t.ttl[o.Kind]
}

// Put регистрирует предложение. Для трейдов дубликатом считается и
// обратная пара (встречное предложение тех же двух пользователей).
func (t *PendingTable) Put(o *Offer) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := t.key(o.Kind, o.InitiatorID, o.CounterpartyID)
	if cur, ok := t.offers[key]; ok && !t.expired(cur) {
		return failedPrecondition("уже есть активное предложение (%s)", o.Kind)
	}
	if o.Kind == KindTrade {
		rev := t.key(o.Kind, o.CounterpartyID, o.InitiatorID)
		if cur, ok := t.offers[rev]; ok && !t.expired(cur) {
			return failedPrecondition("встречное предложение уже существует")
		}
	}

	if o.CreatedAt.IsZero() {
		o.CreatedAt = t.now()
	}
	t.offers[key] = o
	return nil
}

// Take забирает предложение из таблицы одним действием: удаление ДО любой
// мутации исключает двойную отработку по дублю клика. Протухшее
// предложение удаляется и отдается как ErrExpired, отсутствующее — ErrNotFound.
func (t *PendingTable) Take(kind OfferKind, initiator, counterparty int64) (*Offer, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := t.key(kind, initiator, counterparty)
	o, ok := t.offers[key]
	if !ok {
		return nil, fmt.Errorf("%s offer: %w", kind, ErrNotFound)
	}
	delete(t.offers, key)
	if t.expired(o) {
		return nil, fmt.Errorf("%s offer: %w", kind, ErrExpired)
	}
	return o, nil
}

// Get возвращает живое предложение, не снимая его (для отображения).
func (t *PendingTable) Get(kind OfferKind, initiator, counterparty int64) (*Offer, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := t.key(kind, initiator, counterparty)
	o, ok := t.offers[key]
	if !ok {
		return nil, false
	}
	if t.expired(o) {
		delete(t.offers, key)
		return nil, false
	}
	return o, true
}

// MarkCooldown запоминает момент завершенной операции пользователя.
func (t *PendingTable) MarkCooldown(kind OfferKind, userID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cooldowns[cooldownKey{kind: kind, user: userID}] = t.now()
}

// CooldownRemaining возвращает, сколько осталось ждать до следующей
// операции данного типа (0 — можно).
func (t *PendingTable) CooldownRemaining(kind OfferKind, userID int64, window time.Duration) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	at, ok := t.cooldowns[cooldownKey{kind: kind, user: userID}]
	if !ok {
		return 0
	}
	left := window - t.now().Sub(at)
	if left < 0 {
		return 0
	}
	return left
}

// Sweep выгребает протухшие предложения и давно отработавшие записи
// кулдаунов. Возвращает количество удаленных предложений.
func (t *PendingTable) Sweep(cooldownRetention time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for key, o := range t.offers {
		if t.expired(o) {
			delete(t.offers, key)
			removed++
		}
	}

	cutoff := t.now().Add(-cooldownRetention)
	for key, at := range t.cooldowns {
		if at.Before(cutoff) {
			delete(t.cooldowns, key)
		}
	}

	return removed
}
