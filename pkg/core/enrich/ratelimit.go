package enrich

import (
	"sync"
	"time"
)

// HostLimiter enforces a minimum interval between fetches to the same host.
// The host table is LRU-capped so a crawl over many domains cannot grow it
// without bound.
type HostLimiter struct {
	interval time.Duration
	maxHosts int

	mu    sync.Mutex
	last  map[string]time.Time
	order []string // LRU order, oldest first
}

func NewHostLimiter(interval time.Duration, maxHosts int) *HostLimiter {
	if maxHosts <= 0 {
		maxHosts = 256
	}
	return &HostLimiter{
		interval: interval,
		maxHosts: maxHosts,
		last:     make(map[string]time.Time),
	}
}

// Reserve records an intent to fetch from host now and returns how long the
// caller must sleep first to honor the per-host interval.
func (l *HostLimiter) Reserve(host string, now time.Time) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	var wait time.Duration
	if prev, ok := l.last[host]; ok {
		if next := prev.Add(l.interval); next.After(now) {
			wait = next.Sub(now)
		}
		for i, h := range l.order {
			if h == host {
				l.order = append(l.order[:i], l.order[i+1:]...)
				break
			}
		}
	} else if len(l.last) >= l.maxHosts && len(l.order) > 0 {
		oldest := l.order[0]
		l.order = l.order[1:]
		delete(l.last, oldest)
	}

	l.last[host] = now.Add(wait)
	l.order = append(l.order, host)
	return wait
}
