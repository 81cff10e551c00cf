package middleware

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// idleTTL — через сколько без апдейтов лимитер пользователя удаляется.
const idleTTL = 30 * time.Minute

type userLimiter struct {
	limiter *rate.Limiter
	last    time.Time
}

// RateLimiter ограничивает количество апдейтов от одного пользователя.
// У каждого пользователя свой token bucket: limit событий за window, столько же в запасе.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[int64]*userLimiter
	limit    int
	every    rate.Limit
	now      func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		limiters: make(map[int64]*userLimiter),
		limit:    limit,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
	if limit > 0 && window > 0 {
		rl.every = rate.Every(window / time.Duration(limit))
	} else {
		rl.every = rate.Inf
	}
	go rl.cleanup()
	return rl
}

// Close останавливает фоновую горутину очистки.
func (rl *RateLimiter) Close() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// Allow учитывает событие и сообщает, укладывается ли пользователь в лимит.
// Лимит <= 0 отключает ограничение.
func (rl *RateLimiter) Allow(userID int64) bool {
	if rl.limit <= 0 {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	ul, ok := rl.limiters[userID]
	if !ok {
		ul = &userLimiter{limiter: rate.NewLimiter(rl.every, rl.limit)}
		rl.limiters[userID] = ul
	}
	ul.last = now
	return ul.limiter.AllowN(now, 1)
}

func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopCh:
			return
		case <-ticker.C:
			rl.mu.Lock()
			cutoff := rl.now().Add(-idleTTL)
			for userID, ul := range rl.limiters {
				if ul.last.Before(cutoff) {
					delete(rl.limiters, userID)
				}
			}
			rl.mu.Unlock()
		}
	}
}
