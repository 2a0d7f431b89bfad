package livemonitor

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"session-service/internal/models"
	"session-service/internal/observability"
	"session-service/internal/repositories"
	"session-service/internal/ws"
)

// Monitor periodically sweeps live-eligible sessions and applies
// time-driven transitions: upcoming sessions become ready inside the
// start threshold, and confirmed sessions that never started past their
// scheduled end are marked failed. Both-user confirmations drive the
// started/completed transitions elsewhere; the sweep only handles the
// clock-driven edges.
type Monitor struct {
	sessions       repositories.SessionRepository
	hub            *ws.Hub
	readyThreshold time.Duration
	cron           *cron.Cron
	log            *zap.SugaredLogger
	now            func() time.Time
}

// New builds a Monitor sweeping on the given cron spec (seconds field
// included).
func New(sessions repositories.SessionRepository, hub *ws.Hub, readyThreshold time.Duration, log *zap.SugaredLogger) *Monitor {
	return &Monitor{
		sessions:       sessions,
		hub:            hub,
		readyThreshold: readyThreshold,
		cron:           cron.New(cron.WithSeconds(), cron.WithLocation(time.UTC)),
		log:            log,
		now:            time.Now,
	}
}

// Start schedules the sweep.
func (m *Monitor) Start(spec string) error {
	if _, err := m.cron.AddFunc(spec, func() { m.Sweep(context.Background()) }); err != nil {
		return err
	}
	m.cron.Start()
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (m *Monitor) Stop() {
	ctx := m.cron.Stop()
	<-ctx.Done()
}

// Sweep applies one round of clock-driven transitions.
func (m *Monitor) Sweep(ctx context.Context) {
	sessions, err := m.sessions.ListLive(ctx)
	if err != nil {
		m.log.Warnw("live sweep list failed", "error", err)
		return
	}
	now := m.now()

	for _, s := range sessions {
		switch {
		case (s.LiveStatus == models.LiveUpcoming || s.LiveStatus == models.LiveReady) && now.After(s.EndTime):
			// The window passed without either side confirming a start.
			m.apply(ctx, s, models.LiveFailed)
		case s.LiveStatus == models.LiveUpcoming && now.Add(m.readyThreshold).After(s.StartTime):
			m.apply(ctx, s, models.LiveReady)
		}
	}
}

func (m *Monitor) apply(ctx context.Context, s models.Session, to models.LiveStatus) {
	if err := m.sessions.SetLiveStatus(ctx, s.ID, to); err != nil {
		m.log.Warnw("live status update failed", "sessionId", s.ID, "to", to, "error", err)
		return
	}
	observability.IncLiveSweepTransition(string(to))
	m.hub.LiveStatusChanged(s, to)
	m.log.Infow("live status transition", "sessionId", s.ID, "from", s.LiveStatus, "to", to)
}
