package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Status is the booking lifecycle state of a session.
type Status string

const (
	StatusNewRequest Status = "newRequest"
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusInProgress Status = "inProgress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusRejected   Status = "rejected"
	StatusDeclined   Status = "declined"
	StatusFailed     Status = "failed"
)

// LiveStatus is the real-time execution state of a session. It is an
// independent axis from Status: a session can be booking-confirmed while
// its live state cycles upcoming -> ready -> started -> completed.
type LiveStatus string

const (
	LiveUpcoming  LiveStatus = "upcoming"
	LiveReady     LiveStatus = "ready"
	LiveStarted   LiveStatus = "started"
	LiveEnding    LiveStatus = "ending"
	LiveCompleted LiveStatus = "completed"
	LiveFailed    LiveStatus = "failed"
)

// Terminal reports whether the live state can no longer change.
func (ls LiveStatus) Terminal() bool {
	return ls == LiveCompleted || ls == LiveFailed
}

// Billing is the price breakdown attached to a session.
type Billing struct {
	BasePrice  float64 `db:"base_price" json:"basePrice"`
	Taxes      float64 `db:"taxes" json:"taxes"`
	ServiceFee float64 `db:"service_fee" json:"serviceFee"`
	Total      float64 `db:"total" json:"total"`
}

// ChecklistItem is a single care task both participants can see and tick.
type ChecklistItem struct {
	ID        string `json:"id"`
	Task      string `json:"task"`
	Checked   bool   `json:"checked"`
	CheckedBy string `json:"checkedBy,omitempty"`
}

// Checklist is stored as a jsonb column.
type Checklist []ChecklistItem

func (c Checklist) Value() (driver.Value, error) {
	if c == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(c)
}

func (c *Checklist) Scan(src interface{}) error {
	return scanJSON(src, c)
}

// Comment is a short timestamped note on a live session.
type Comment struct {
	Text string    `json:"text"`
	By   string    `json:"by,omitempty"`
	At   time.Time `json:"at"`
}

// Comments is stored as a jsonb column.
type Comments []Comment

func (c Comments) Value() (driver.Value, error) {
	if c == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(c)
}

func (c *Comments) Scan(src interface{}) error {
	return scanJSON(src, c)
}

// StringSet holds user ids that have confirmed a transition. Stored as jsonb.
type StringSet []string

func (s StringSet) Contains(v string) bool {
	for _, item := range s {
		if item == v {
			return true
		}
	}
	return false
}

func (s StringSet) Value() (driver.Value, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s)
}

func (s *StringSet) Scan(src interface{}) error {
	return scanJSON(src, s)
}

// ReceiptMap maps user id to the last time that user viewed the session chat.
type ReceiptMap map[string]time.Time

// Session is a bookable unit of care time between a seeker and a personal
// support worker. SenderID is the requesting user, ReceiverID the
// counterparty.
type Session struct {
	ID         string     `db:"id" json:"id"`
	SenderID   string     `db:"sender_id" json:"senderId"`
	ReceiverID string     `db:"receiver_id" json:"receiverId"`
	Status     Status     `db:"status" json:"status"`
	LiveStatus LiveStatus `db:"live_status" json:"liveStatus"`

	StartTime       time.Time  `db:"start_time" json:"startTime"`
	EndTime         time.Time  `db:"end_time" json:"endTime"`
	ActualStartTime *time.Time `db:"actual_start_time" json:"actualStartTime,omitempty"`
	ActualEndTime   *time.Time `db:"actual_end_time" json:"actualEndTime,omitempty"`

	Note    string  `db:"note" json:"note,omitempty"`
	Billing Billing `db:"billing" json:"billingDetails"`

	Checklist Checklist `db:"checklist" json:"checklist,omitempty"`
	Comments  Comments  `db:"comments" json:"comments,omitempty"`

	// Confirmation sets gating the started/completed transitions.
	StartConfirmed StringSet `db:"start_confirmed" json:"startConfirmed,omitempty"`
	EndConfirmed   StringSet `db:"end_confirmed" json:"endConfirmed,omitempty"`

	LastMessageAt *time.Time `db:"last_message_at" json:"lastMessageAt,omitempty"`
	LastMessageBy string     `db:"last_message_by" json:"lastMessageBy,omitempty"`

	// Per-user read receipts, assembled from the read_receipts table.
	ReadReceipts ReceiptMap `db:"-" json:"readReceipts,omitempty"`

	// Unread is a derived view field attached when enriching for a user.
	Unread bool `db:"-" json:"unread,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// Participants returns both user ids on the session.
func (s Session) Participants() []string {
	return []string{s.SenderID, s.ReceiverID}
}

// HasParticipant reports whether userID is on the session.
func (s Session) HasParticipant(userID string) bool {
	return userID == s.SenderID || userID == s.ReceiverID
}

// OtherParticipant returns the counterparty for userID.
func (s Session) OtherParticipant(userID string) string {
	if userID == s.SenderID {
		return s.ReceiverID
	}
	return s.SenderID
}

// LiveStart returns the instant elapsed time is measured from: the actual
// start when present, otherwise the scheduled start.
func (s Session) LiveStart() time.Time {
	if s.ActualStartTime != nil {
		return *s.ActualStartTime
	}
	return s.StartTime
}

func scanJSON(src, dst interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		if len(v) == 0 {
			return nil
		}
		return json.Unmarshal(v, dst)
	case string:
		if v == "" {
			return nil
		}
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("unsupported jsonb source type %T", src)
	}
}
