package signal

import (
	"sync"
	"time"

	"github.com/dkeye/Poker/internal/domain"
)

// RoomRateLimiter is a sliding-window limiter on room mutations per user.
// All tabs of one user share the budget.
type RoomRateLimiter struct {
	mu       sync.Mutex
	history  map[domain.UserID][]time.Time
	limit    int
	interval time.Duration
	now      func() time.Time
}

func NewRoomRateLimiter(limit int, interval time.Duration) *RoomRateLimiter {
	return &RoomRateLimiter{
		history:  make(map[domain.UserID][]time.Time),
		limit:    limit,
		interval: interval,
		now:      time.Now,
	}
}

func (rl *RoomRateLimiter) Allow(uid domain.UserID) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	windowStart := now.Add(-rl.interval)

	// 1. take the user's history
	attempts := rl.history[uid]

	// 2. drop attempts that fell out of the window
	fresh := make([]time.Time, 0, len(attempts))
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}

	// 3. block once the window is full
	if len(fresh) >= rl.limit {
		rl.history[uid] = fresh
		return false
	}

	// 4. otherwise record this attempt
	fresh = append(fresh, now)
	rl.history[uid] = fresh

	return true
}

// Sweep forgets users with no attempt inside the window.
func (rl *RoomRateLimiter) Sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	windowStart := rl.now().Add(-rl.interval)
	for uid, attempts := range rl.history {
		if len(attempts) == 0 || !attempts[len(attempts)-1].After(windowStart) {
			delete(rl.history, uid)
		}
	}
}

func (rl *RoomRateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.history)
}
