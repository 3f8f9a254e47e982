// Package ratelimit throttles message sending per user.
//
// Each user gets a token bucket (golang.org/x/time/rate): perSecond tokens are
// refilled every second up to burst. A rejected send reports how long the
// client should wait, which the HTTP layer returns as Retry-After.
//
// The package imports nothing from the project so both handlers and ws can use it.
package ratelimit

import (
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type userLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// MessageRateLimiter keeps one token bucket per user.
//
//	limiter := ratelimit.NewMessageRateLimiter(1, 5)
//	if ok, retry := limiter.Allow(userID); !ok { return 429 with retry }
type MessageRateLimiter struct {
	mu          sync.Mutex
	limiters    map[string]*userLimiter
	perSecond   rate.Limit
	burst       int
	idleTTL     time.Duration
	stopCleanup chan struct{}
	stopOnce    sync.Once
}

// NewMessageRateLimiter starts the limiter and its cleanup goroutine. Buckets
// idle long enough to be full again are dropped.
func NewMessageRateLimiter(perSecond float64, burst int) *MessageRateLimiter {
	idle := time.Duration(float64(burst)/perSecond*float64(time.Second)) + time.Minute

	rl := &MessageRateLimiter{
		limiters:    make(map[string]*userLimiter),
		perSecond:   rate.Limit(perSecond),
		burst:       burst,
		idleTTL:     idle,
		stopCleanup: make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Allow consumes a token for userID. When the bucket is empty it returns
// false and the whole number of seconds until the next token.
func (rl *MessageRateLimiter) Allow(userID string) (bool, int) {
	now := time.Now()
	l := rl.get(userID, now)

	r := l.ReserveN(now, 1)
	if !r.OK() {
		return false, 1
	}
	delay := r.DelayFrom(now)
	if delay == 0 {
		return true, 0
	}
	r.CancelAt(now)
	return false, int(math.Ceil(delay.Seconds()))
}

func (rl *MessageRateLimiter) get(userID string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	ul, ok := rl.limiters[userID]
	if !ok {
		ul = &userLimiter{limiter: rate.NewLimiter(rl.perSecond, rl.burst)}
		rl.limiters[userID] = ul
	}
	ul.lastSeen = now
	return ul.limiter
}

// Close stops the cleanup goroutine.
func (rl *MessageRateLimiter) Close() {
	rl.stopOnce.Do(func() { close(rl.stopCleanup) })
}

func (rl *MessageRateLimiter) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup(time.Now())
		case <-rl.stopCleanup:
			return
		}
	}
}

func (rl *MessageRateLimiter) cleanup(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for userID, ul := range rl.limiters {
		if now.Sub(ul.lastSeen) > rl.idleTTL {
			delete(rl.limiters, userID)
		}
	}
}
