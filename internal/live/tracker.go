package live

import (
	"fmt"
	"time"

	"session-service/internal/models"
)

// DefaultReadyThreshold is how close to the scheduled start a session
// flips from waiting to ready.
const DefaultReadyThreshold = 15 * time.Minute

// State is what the live banner should render for the tracked session.
type State string

const (
	StateWaiting State = "waiting"
	StateReady   State = "ready"
	StateStarted State = "started"
)

// Display is the render state for the single live session banner.
type Display struct {
	State     State
	Countdown string
	Label     string
	Remaining time.Duration
	Elapsed   time.Duration
	Expired   bool
}

// ActiveSession picks the single session that should be shown as a live
// banner: the soonest-starting session whose live state is upcoming,
// ready or started and whose scheduled end has not passed. A started
// session wins over any scheduled one; the backend should never produce
// two, but ties are resolved deterministically anyway.
func ActiveSession(sessions []models.Session, now time.Time) (models.Session, bool) {
	var best models.Session
	found := false

	for _, s := range sessions {
		switch s.LiveStatus {
		case models.LiveUpcoming, models.LiveReady, models.LiveStarted:
		default:
			continue
		}
		if !s.EndTime.After(now) {
			continue
		}
		if !found {
			best, found = s, true
			continue
		}
		if prefer(s, best) {
			best = s
		}
	}
	return best, found
}

func prefer(a, b models.Session) bool {
	aStarted := a.LiveStatus == models.LiveStarted
	bStarted := b.LiveStatus == models.LiveStarted
	if aStarted != bStarted {
		return aStarted
	}
	return a.StartTime.Before(b.StartTime)
}

// Derive computes the display state for a session at the given instant.
// Terminal live states are not displayed by the tracker; callers should
// not pass them.
func Derive(s models.Session, now time.Time, readyThreshold time.Duration) Display {
	if s.LiveStatus == models.LiveStarted {
		elapsed := now.Sub(s.LiveStart())
		if elapsed < 0 {
			elapsed = 0
		}
		return Display{
			State:   StateStarted,
			Label:   FormatElapsed(elapsed),
			Elapsed: elapsed,
		}
	}

	remaining := s.StartTime.Sub(now)
	if remaining <= 0 {
		return Display{
			State:     StateReady,
			Countdown: "Starting now",
			Label:     "Starting now",
			Expired:   true,
		}
	}
	if remaining <= readyThreshold || s.LiveStatus == models.LiveReady {
		return Display{
			State:     StateReady,
			Countdown: FormatCountdown(remaining),
			Label:     "Ready to start",
			Remaining: remaining,
		}
	}

	countdown := FormatCountdown(remaining)
	label := countdown
	if s.Note != "" {
		label = fmt.Sprintf("%s in %s", s.Note, countdown)
	}
	return Display{
		State:     StateWaiting,
		Countdown: countdown,
		Label:     label,
		Remaining: remaining,
	}
}

// FormatCountdown renders a remaining duration as "Xh Ym", "Xm Ys" or
// "Xs" depending on magnitude.
func FormatCountdown(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60

	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}

// FormatElapsed renders elapsed time as HH:MM:SS.
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}
