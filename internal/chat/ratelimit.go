package chat

import (
	"sort"
	"time"

	"designchat/internal/models"
)

const (
	DefaultRateWindow = 60 * time.Second
	DefaultRateLimit  = 10
)

// RateLimiter is a sliding-window check over send timestamps. It keeps no
// state of its own.
type RateLimiter struct {
	Window time.Duration
	Limit  int
}

func DefaultRateLimiter() RateLimiter {
	return RateLimiter{Window: DefaultRateWindow, Limit: DefaultRateLimit}
}

// Count returns how many timestamps fall inside the trailing window.
func (l RateLimiter) Count(sends []time.Time, now time.Time) int {
	n := 0
	for _, ts := range sends {
		if now.Sub(ts) < l.Window {
			n++
		}
	}
	return n
}

// Allow denies once Limit sends already fall inside the window.
func (l RateLimiter) Allow(sends []time.Time, now time.Time) error {
	if l.Limit <= 0 {
		return nil
	}
	if l.Count(sends, now) >= l.Limit {
		return ErrRateLimited
	}
	return nil
}

// Prune drops timestamps that have aged out of the window and returns the
// remainder sorted oldest first.
func (l RateLimiter) Prune(sends []time.Time, now time.Time) []time.Time {
	out := sends[:0]
	for _, ts := range sends {
		if now.Sub(ts) < l.Window {
			out = append(out, ts)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

func UserTimestamps(history []models.ConversationMessage) []time.Time {
	var out []time.Time
	for _, m := range history {
		if m.Role == models.RoleUser {
			out = append(out, m.Timestamp)
		}
	}
	return out
}
