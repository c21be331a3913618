package chat

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter applies per-session sliding-window admission control on message
// sends, with optional coarser global ceilings. Only accepted sends are
// recorded, so rejections never consume window budget.
type Limiter struct {
	mu       sync.Mutex
	limit    int
	window   time.Duration
	sessions map[string][]time.Time

	hourly *rate.Limiter
	daily  *rate.Limiter

	now func() time.Time
}

// NewLimiter creates a limiter admitting perWindow sends per rolling
// window per session. perHour and perDay are process-wide ceilings;
// zero disables them.
func NewLimiter(perWindow int, window time.Duration, perHour, perDay int) *Limiter {
	if perWindow <= 0 {
		perWindow = 1
	}
	if window <= 0 {
		window = time.Minute
	}

	l := &Limiter{
		limit:    perWindow,
		window:   window,
		sessions: make(map[string][]time.Time),
		now:      time.Now,
	}
	if perHour > 0 {
		l.hourly = rate.NewLimiter(rate.Every(time.Hour/time.Duration(perHour)), perHour)
	}
	if perDay > 0 {
		l.daily = rate.NewLimiter(rate.Every(24*time.Hour/time.Duration(perDay)), perDay)
	}
	return l
}

// Admit reports whether the session may send now, recording the send if
// admitted. The sliding window is consulted first, then the global
// ceilings, so a window rejection never consumes global budget.
func (l *Limiter) Admit(sessionID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	stamps := l.sessions[sessionID]
	kept := stamps[:0]
	for _, ts := range stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= l.limit {
		l.sessions[sessionID] = kept
		return false
	}

	if !l.admitGlobal() {
		l.sessions[sessionID] = kept
		return false
	}

	l.sessions[sessionID] = append(kept, now)
	return true
}

// admitGlobal consumes one token from each enabled ceiling, or from
// neither: a send rejected by the daily ceiling must not burn hourly
// budget.
func (l *Limiter) admitGlobal() bool {
	var res *rate.Reservation
	if l.hourly != nil {
		res = l.hourly.Reserve()
		if !res.OK() || res.Delay() > 0 {
			res.Cancel()
			return false
		}
	}
	if l.daily != nil && !l.daily.Allow() {
		if res != nil {
			res.Cancel()
		}
		return false
	}
	return true
}

// Forget discards the session's window state. Called on disconnect.
func (l *Limiter) Forget(sessionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.sessions, sessionID)
}
