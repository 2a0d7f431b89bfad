package live

import (
	"sync"
	"time"

	"session-service/internal/models"
)

// Countdown re-derives the display state for one session on a fixed tick
// and delivers it on C. It stops itself after emitting the expired state
// for a waiting session; started sessions keep ticking until Stop. Stop
// is safe to call more than once and must be called when the owning view
// goes away so no ticker leaks.
type Countdown struct {
	C <-chan Display

	out      chan Display
	stop     chan struct{}
	stopOnce sync.Once
}

// NewCountdown starts ticking for the session. The now func exists so
// tests can drive time; pass nil for wall clock.
func NewCountdown(session models.Session, interval time.Duration, now func() time.Time) *Countdown {
	if now == nil {
		now = time.Now
	}
	out := make(chan Display, 1)
	c := &Countdown{
		C:    out,
		out:  out,
		stop: make(chan struct{}),
	}
	go c.run(session, interval, now)
	return c
}

// Stop cancels the tick loop.
func (c *Countdown) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Countdown) run(session models.Session, interval time.Duration, now func() time.Time) {
	defer close(c.out)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Emit immediately so the banner is never blank for a tick.
	if done := c.emit(session, now()); done {
		return
	}
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			if done := c.emit(session, now()); done {
				return
			}
		}
	}
}

func (c *Countdown) emit(session models.Session, at time.Time) bool {
	d := Derive(session, at, DefaultReadyThreshold)

	// Drop the stale value if the consumer is behind; only the latest
	// display state matters.
	select {
	case <-c.out:
	default:
	}
	select {
	case c.out <- d:
	case <-c.stop:
		return true
	}

	// The countdown does not transition the session itself. Once expired
	// the server-driven started event takes over, so stop ticking.
	return d.Expired
}
