package game

import "sync"

// LockRegistry — реестр мьютексов по id пользователя. Мьютекс создается
// лениво при первом обращении и живет до конца процесса: для бота на одном
// инстансе неограниченный рост карты приемлем (см. DESIGN.md).
type LockRegistry struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// NewLockRegistry создает пустой реестр.
func NewLockRegistry() *LockRegistry {
	return &LockRegistry{locks: make(map[int64]*sync.Mutex)}
}

func (r *LockRegistry) get(id int64) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[id]
	if !ok {
		l = &sync.Mutex{}
		r.locks[id] = l
	}
	return l
}

// Acquire блокирует пользователя и возвращает функцию разблокировки.
func (r *LockRegistry) Acquire(id int64) func() {
	l := r.get(id)
	l.Lock()
	return l.Unlock
}

// AcquirePair блокирует двух пользователей в каноническом порядке
// (по возрастанию id), что исключает взаимную блокировку двух встречных
// операций A→B и B→A.
func (r *LockRegistry) AcquirePair(a, b int64) func() {
	if a == b {
		return r.Acquire(a)
	}
	if a > b {
		a, b = b, a
	}
	first := r.get(a)
	second := r.get(b)
	first.Lock()
	second.Lock()
	return func() {
		second.Unlock()
		first.Unlock()
	}
}
