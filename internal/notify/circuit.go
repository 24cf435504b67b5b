package notify

import (
	"strings"
	"sync"
	"time"
)

// BreakerConfig tunes the per-target delivery breaker.
// Trip < 0 disables it; zero values take defaults.
type BreakerConfig struct {
	Trip       int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	ResetAfter time.Duration
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.Trip == 0 {
		c.Trip = 5
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = time.Minute
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Minute
	}
	if c.ResetAfter <= 0 {
		c.ResetAfter = time.Hour
	}
	return c
}

// breakerState tracks consecutive failures for one delivery target.
//   - On success: resets failures and closes the circuit.
//   - On failure: increments failures and, once failures >= trip,
//     opens the circuit for an exponentially increasing cooldown.
type breakerState struct {
	fails       int
	openUntil   time.Time
	lastFailure time.Time
}

type breaker struct {
	mu  sync.Mutex
	cfg BreakerConfig
	m   map[string]*breakerState
}

func newBreaker(cfg BreakerConfig) *breaker {
	return &breaker{cfg: cfg.withDefaults(), m: make(map[string]*breakerState)}
}

func (b *breaker) configure(cfg BreakerConfig) {
	b.mu.Lock()
	b.cfg = cfg.withDefaults()
	b.mu.Unlock()
}

// state must be called with b.mu held.
func (b *breaker) state(now time.Time, key string) *breakerState {
	k := strings.TrimSpace(key)
	if k == "" {
		return nil
	}
	st := b.m[k]
	if st == nil {
		st = &breakerState{}
		b.m[k] = st
	}
	// Opportunistic reset if last failure was long ago.
	if !st.lastFailure.IsZero() && now.Sub(st.lastFailure) > b.cfg.ResetAfter {
		st.fails = 0
		st.openUntil = time.Time{}
	}
	return st
}

// open reports whether deliveries to key are currently suspended.
func (b *breaker) open(now time.Time, key string) (bool, time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cfg.Trip < 0 {
		return false, time.Time{}
	}
	st := b.state(now, key)
	if st == nil {
		return false, time.Time{}
	}
	if !st.openUntil.IsZero() && now.Before(st.openUntil) {
		return true, st.openUntil
	}
	return false, time.Time{}
}

func (b *breaker) record(now time.Time, key string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cfg.Trip < 0 {
		return
	}
	st := b.state(now, key)
	if st == nil {
		return
	}
	if err == nil {
		delete(b.m, strings.TrimSpace(key))
		return
	}

	st.fails++
	st.lastFailure = now
	if st.fails < b.cfg.Trip {
		return
	}

	// Exponential cooldown after tripping.
	d := b.cfg.BaseDelay
	for i := 0; i < st.fails-b.cfg.Trip; i++ {
		d *= 2
		if d >= b.cfg.MaxDelay {
			break
		}
	}
	if d > b.cfg.MaxDelay {
		d = b.cfg.MaxDelay
	}
	st.openUntil = now.Add(d)
}

// snapshot returns how many targets are tracked and how many are open.
func (b *breaker) snapshot(now time.Time) (total, open int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	total = len(b.m)
	for _, st := range b.m {
		if !st.openUntil.IsZero() && now.Before(st.openUntil) {
			open++
		}
	}
	return total, open
}
