package session

import (
	"context"
	"sync/atomic"
	"time"
)

// expiryMonitor re-evaluates the two expiry timestamps on a fixed
// interval, independent of any in-flight request. The busy flag keeps a
// slow tick (a server key refresh is a network call) from overlapping
// its own next invocation.
type expiryMonitor struct {
	session  *AuthSession
	interval time.Duration
	now      func() time.Time
	busy     atomic.Bool
}

func newExpiryMonitor(session *AuthSession, interval time.Duration, now func() time.Time) *expiryMonitor {
	if now == nil {
		now = time.Now
	}
	return &expiryMonitor{session: session, interval: interval, now: now}
}

func (m *expiryMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Tick(ctx, m.now())
		}
	}
}

// Tick runs one expiry check at the given instant. Reentrant calls while
// a check is still running are dropped, not queued.
func (m *expiryMonitor) Tick(ctx context.Context, now time.Time) {
	if !m.busy.CompareAndSwap(false, true) {
		return
	}
	defer m.busy.Store(false)
	m.session.checkExpiry(ctx, now)
}
