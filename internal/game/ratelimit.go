package game

import (
	"sync"
	"time"
)

// rateLimiter — скользящее окно с фиксированной квотой на пользователя.
// Прикрывает redeem от перебора кодов.
type rateLimiter struct {
	mu     sync.Mutex
	window time.Duration
	quota  int
	hits   map[int64][]time.Time

	now func() time.Time
}

func newRateLimiter(window time.Duration, quota int) *rateLimiter {
	return &rateLimiter{
		window: window,
		quota:  quota,
		hits:   make(map[int64][]time.Time),
		now:    time.Now,
	}
}

// Allow регистрирует попытку и сообщает, влезла ли она в квоту.
func (l *rateLimiter) Allow(userID int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	fresh := l.hits[userID][:0]
	for _, at := range l.hits[userID] {
		if at.After(cutoff) {
			fresh = append(fresh, at)
		}
	}

	if len(fresh) >= l.quota {
		l.hits[userID] = fresh
		return false
	}
	l.hits[userID] = append(fresh, now)
	return true
}

// Sweep удаляет пользователей без свежих попыток.
func (l *rateLimiter) Sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.window)
	for userID, hits := range l.hits {
		alive := false
		for _, at := range hits {
			if at.After(cutoff) {
				alive = true
				break
			}
		}
		if !alive {
			delete(l.hits, userID)
		}
	}
}
