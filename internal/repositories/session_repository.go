package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"session-service/internal/models"
)

var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrNotParticipant    = errors.New("user is not a session participant")
	ErrInvalidTransition = errors.New("invalid session state transition")
)

// SessionRepository abstracts session persistence.
type SessionRepository interface {
	Create(ctx context.Context, s models.Session) (models.Session, error)
	Get(ctx context.Context, id string) (models.Session, error)
	ListByUser(ctx context.Context, userID string) ([]models.Session, error)
	ListLive(ctx context.Context) ([]models.Session, error)
	UpdateStatus(ctx context.Context, id string, status models.Status) error
	SetLiveStatus(ctx context.Context, id string, ls models.LiveStatus) error
	ConfirmStart(ctx context.Context, id, userID string, at time.Time) (models.Session, bool, error)
	ConfirmEnd(ctx context.Context, id, userID string, at time.Time) (models.Session, bool, error)
	SetChecklist(ctx context.Context, id string, items models.Checklist) error
	AddComment(ctx context.Context, id string, comment models.Comment) error
	SetLastMessage(ctx context.Context, id string, at time.Time, by string) error
}

const sessionColumns = `id, sender_id, receiver_id, status, live_status,
    start_time, end_time, actual_start_time, actual_end_time, note,
    base_price AS "billing.base_price", taxes AS "billing.taxes",
    service_fee AS "billing.service_fee", total AS "billing.total",
    checklist, comments, start_confirmed, end_confirmed,
    last_message_at, last_message_by, created_at, updated_at`

// SessionRepo is a sqlx-backed repository.
type SessionRepo struct {
	db *sqlx.DB
}

// NewSessionRepo constructs a SessionRepo.
func NewSessionRepo(db *sqlx.DB) *SessionRepo {
	return &SessionRepo{db: db}
}

// Create stores a new session request.
func (r *SessionRepo) Create(ctx context.Context, s models.Session) (models.Session, error) {
	query := `INSERT INTO sessions (
            id, sender_id, receiver_id, status, live_status, start_time, end_time,
            note, base_price, taxes, service_fee, total, checklist
        ) VALUES (
            :id, :sender_id, :receiver_id, :status, :live_status, :start_time, :end_time,
            :note, :billing.base_price, :billing.taxes, :billing.service_fee, :billing.total, :checklist
        )`
	if _, err := r.db.NamedExecContext(ctx, query, s); err != nil {
		return models.Session{}, fmt.Errorf("insert session: %w", err)
	}
	return r.Get(ctx, s.ID)
}

// Get fetches a session by id with its read receipts attached.
func (r *SessionRepo) Get(ctx context.Context, id string) (models.Session, error) {
	var s models.Session
	err := r.db.GetContext(ctx, &s, `SELECT `+sessionColumns+` FROM sessions WHERE id=$1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Session{}, ErrSessionNotFound
	}
	if err != nil {
		return models.Session{}, err
	}
	if err := r.attachReceipts(ctx, []*models.Session{&s}); err != nil {
		return models.Session{}, err
	}
	return s, nil
}

// ListByUser returns every session the user participates in, newest
// scheduled first, receipts attached.
func (r *SessionRepo) ListByUser(ctx context.Context, userID string) ([]models.Session, error) {
	var sessions []models.Session
	query := `SELECT ` + sessionColumns + ` FROM sessions
        WHERE sender_id=$1 OR receiver_id=$1
        ORDER BY start_time DESC`
	if err := r.db.SelectContext(ctx, &sessions, query, userID); err != nil {
		return nil, err
	}

	refs := make([]*models.Session, len(sessions))
	for i := range sessions {
		refs[i] = &sessions[i]
	}
	if err := r.attachReceipts(ctx, refs); err != nil {
		return nil, err
	}
	return sessions, nil
}

// ListLive returns sessions whose live state may still change, for the
// background sweep.
func (r *SessionRepo) ListLive(ctx context.Context) ([]models.Session, error) {
	var sessions []models.Session
	query := `SELECT ` + sessionColumns + ` FROM sessions
        WHERE status IN ('confirmed', 'inProgress')
        AND live_status IN ('upcoming', 'ready', 'started', 'ending')`
	if err := r.db.SelectContext(ctx, &sessions, query); err != nil {
		return nil, err
	}
	return sessions, nil
}

// UpdateStatus sets the booking status.
func (r *SessionRepo) UpdateStatus(ctx context.Context, id string, status models.Status) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET status=$2, updated_at=NOW() WHERE id=$1`, id, status)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// SetLiveStatus sets the live execution state.
func (r *SessionRepo) SetLiveStatus(ctx context.Context, id string, ls models.LiveStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET live_status=$2, updated_at=NOW() WHERE id=$1`, id, ls)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// ConfirmStart records userID's start confirmation. When both
// participants have confirmed it flips the session live, returning the
// updated session and whether the start transition fired.
func (r *SessionRepo) ConfirmStart(ctx context.Context, id, userID string, at time.Time) (models.Session, bool, error) {
	return r.confirm(ctx, id, userID, at, true)
}

// ConfirmEnd records userID's end confirmation; both confirmations
// complete the session.
func (r *SessionRepo) ConfirmEnd(ctx context.Context, id, userID string, at time.Time) (models.Session, bool, error) {
	return r.confirm(ctx, id, userID, at, false)
}

func (r *SessionRepo) confirm(ctx context.Context, id, userID string, at time.Time, start bool) (models.Session, bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Session{}, false, err
	}
	defer tx.Rollback()

	var s models.Session
	err = tx.GetContext(ctx, &s, `SELECT `+sessionColumns+` FROM sessions WHERE id=$1 FOR UPDATE`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Session{}, false, ErrSessionNotFound
	}
	if err != nil {
		return models.Session{}, false, err
	}
	if !s.HasParticipant(userID) {
		return models.Session{}, false, ErrNotParticipant
	}

	if start {
		if s.Status != models.StatusConfirmed {
			return models.Session{}, false, ErrInvalidTransition
		}
		if !s.StartConfirmed.Contains(userID) {
			s.StartConfirmed = append(s.StartConfirmed, userID)
		}
		both := s.StartConfirmed.Contains(s.SenderID) && s.StartConfirmed.Contains(s.ReceiverID)
		if both {
			s.Status = models.StatusInProgress
			s.LiveStatus = models.LiveStarted
			s.ActualStartTime = &at
		}
		_, err = tx.ExecContext(ctx, `UPDATE sessions
            SET start_confirmed=$2, status=$3, live_status=$4, actual_start_time=$5, updated_at=NOW()
            WHERE id=$1`, id, s.StartConfirmed, s.Status, s.LiveStatus, s.ActualStartTime)
		if err != nil {
			return models.Session{}, false, err
		}
		if err := tx.Commit(); err != nil {
			return models.Session{}, false, err
		}
		return s, both, nil
	}

	if s.Status != models.StatusInProgress {
		return models.Session{}, false, ErrInvalidTransition
	}
	if !s.EndConfirmed.Contains(userID) {
		s.EndConfirmed = append(s.EndConfirmed, userID)
	}
	both := s.EndConfirmed.Contains(s.SenderID) && s.EndConfirmed.Contains(s.ReceiverID)
	if both {
		s.Status = models.StatusCompleted
		s.LiveStatus = models.LiveCompleted
		s.ActualEndTime = &at
	} else {
		s.LiveStatus = models.LiveEnding
	}
	_, err = tx.ExecContext(ctx, `UPDATE sessions
        SET end_confirmed=$2, status=$3, live_status=$4, actual_end_time=$5, updated_at=NOW()
        WHERE id=$1`, id, s.EndConfirmed, s.Status, s.LiveStatus, s.ActualEndTime)
	if err != nil {
		return models.Session{}, false, err
	}
	if err := tx.Commit(); err != nil {
		return models.Session{}, false, err
	}
	return s, both, nil
}

// SetChecklist replaces the session checklist.
func (r *SessionRepo) SetChecklist(ctx context.Context, id string, items models.Checklist) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET checklist=$2, updated_at=NOW() WHERE id=$1`, id, items)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// AddComment appends a comment to the session.
func (r *SessionRepo) AddComment(ctx context.Context, id string, comment models.Comment) error {
	payload := models.Comments{comment}
	res, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET comments = comments || $2, updated_at=NOW() WHERE id=$1`, id, payload)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// SetLastMessage updates the denormalized last-message fields.
func (r *SessionRepo) SetLastMessage(ctx context.Context, id string, at time.Time, by string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET last_message_at=$2, last_message_by=$3, updated_at=NOW() WHERE id=$1`, id, at, by)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *SessionRepo) attachReceipts(ctx context.Context, sessions []*models.Session) error {
	if len(sessions) == 0 {
		return nil
	}
	ids := make([]string, 0, len(sessions))
	for _, s := range sessions {
		ids = append(ids, s.ID)
	}

	query, args, err := sqlx.In(`SELECT session_id, user_id, last_read_at FROM read_receipts WHERE session_id IN (?)`, ids)
	if err != nil {
		return err
	}
	query = r.db.Rebind(query)

	var receipts []models.ReadReceipt
	if err := r.db.SelectContext(ctx, &receipts, query, args...); err != nil {
		return err
	}

	bySession := make(map[string]models.ReceiptMap)
	for _, rec := range receipts {
		if bySession[rec.SessionID] == nil {
			bySession[rec.SessionID] = make(models.ReceiptMap)
		}
		bySession[rec.SessionID][rec.UserID] = rec.LastReadAt
	}
	for _, s := range sessions {
		s.ReadReceipts = bySession[s.ID]
	}
	return nil
}

func requireRow(res sql.Result) error {
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrSessionNotFound
	}
	return nil
}
