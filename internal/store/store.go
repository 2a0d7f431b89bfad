package store

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"session-service/internal/models"
)

// Store holds the authoritative in-memory view of the sessions visible to
// one user, indexed by session id. Groupings are derived on read, never
// kept as separately maintained slices, so a full snapshot and its views
// can never drift apart.
//
// Set and Patch are called from push-event handlers with no caller able to
// react to a failure, so they log and drop bad input instead of returning
// errors.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]models.Session
	log      *zap.SugaredLogger
}

// New creates an empty Store.
func New(log *zap.SugaredLogger) *Store {
	return &Store{
		sessions: make(map[string]models.Session),
		log:      log,
	}
}

// Patch carries the optional fields a scoped push may update on a single
// session. Nil fields are left untouched.
type Patch struct {
	Status          *models.Status
	LiveStatus      *models.LiveStatus
	ActualStartTime *time.Time
	ActualEndTime   *time.Time
}

// Set replaces the whole collection with a fresh snapshot. Records
// without an id are dropped with a warning. Applying the same snapshot
// twice yields identical derived groupings.
func (s *Store) Set(sessions []models.Session) {
	next := make(map[string]models.Session, len(sessions))
	for _, sess := range sessions {
		if sess.ID == "" {
			s.log.Warnw("dropping session without id", "sender", sess.SenderID, "receiver", sess.ReceiverID)
			continue
		}
		next[sess.ID] = sess
	}

	s.mu.Lock()
	s.sessions = next
	s.mu.Unlock()
}

// Apply merges the patch into the session with the given id. A patch for
// an unknown id is a logged no-op; scoped pushes that raced a newer full
// snapshot land here and are discarded.
func (s *Store) Apply(id string, p Patch) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		s.log.Warnw("patch for unknown session ignored", "sessionId", id)
		return
	}

	if p.Status != nil {
		sess.Status = *p.Status
	}
	if p.LiveStatus != nil {
		sess.LiveStatus = *p.LiveStatus
	}
	if p.ActualStartTime != nil {
		sess.ActualStartTime = p.ActualStartTime
	}
	if p.ActualEndTime != nil {
		sess.ActualEndTime = p.ActualEndTime
	}
	s.sessions[id] = sess
}

// Get returns a session by id.
func (s *Store) Get(id string) (models.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// Len returns the number of sessions held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// All returns every session ordered by scheduled start time, id as a
// tiebreak so ordering is stable across identical snapshots.
func (s *Store) All() []models.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out
}

// NewRequests returns sessions awaiting a first response where userID is
// the receiving side.
func (s *Store) NewRequests(userID string) []models.Session {
	return s.filter(func(sess models.Session) bool {
		return sess.Status == models.StatusNewRequest && sess.ReceiverID == userID
	})
}

// Pending returns sessions in the pending state.
func (s *Store) Pending() []models.Session {
	return s.byStatus(models.StatusPending)
}

// Confirmed returns booking-confirmed sessions.
func (s *Store) Confirmed() []models.Session {
	return s.byStatus(models.StatusConfirmed)
}

// InProgress returns sessions currently underway.
func (s *Store) InProgress() []models.Session {
	return s.byStatus(models.StatusInProgress)
}

// History returns sessions that reached a terminal booking state.
func (s *Store) History() []models.Session {
	return s.filter(func(sess models.Session) bool {
		switch sess.Status {
		case models.StatusCompleted, models.StatusCancelled, models.StatusRejected,
			models.StatusDeclined, models.StatusFailed:
			return true
		}
		return false
	})
}

func (s *Store) byStatus(status models.Status) []models.Session {
	return s.filter(func(sess models.Session) bool { return sess.Status == status })
}

func (s *Store) filter(keep func(models.Session) bool) []models.Session {
	all := s.All()
	out := make([]models.Session, 0, len(all))
	for _, sess := range all {
		if keep(sess) {
			out = append(out, sess)
		}
	}
	return out
}
