// Package audit records every attendance attempt, accepted or not, so
// instructors can review rejected check-ins after a session.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"discipleship/internal/attendance"
	"discipleship/internal/queue"
)

// MessageType tags audit events on the queue.
const MessageType = "audit"

// Actions.
const (
	ActionIssue    = "issue"
	ActionCheckIn  = "checkin"
	ActionCheckOut = "checkout"
	ActionJoin     = "join"
)

// Outcomes.
const (
	OutcomeAccepted         = "accepted"
	OutcomeInvalidCode      = "invalid_code"
	OutcomeOutOfRange       = "out_of_range"
	OutcomeAlreadyCheckedIn = "already_checked_in"
	OutcomeNotFound         = "not_found"
	OutcomeNotEnrolled      = "not_enrolled"
	OutcomeInvalidInput     = "invalid_input"
	OutcomeError            = "error"
)

// Event is one attendance attempt.
type Event struct {
	ID             string          `json:"id"`
	OccurredAt     time.Time       `json:"occurred_at"`
	Action         string          `json:"action"`
	Outcome        string          `json:"outcome"`
	Subject        string          `json:"subject"`
	LiveSessionID  string          `json:"live_session_id"`
	AttendanceType attendance.Type `json:"attendance_type,omitempty"`
	DistanceMeters *int            `json:"distance_meters,omitempty"`
}

// OutcomeOf classifies the error returned by an attendance operation.
func OutcomeOf(err error) string {
	var oor *attendance.OutOfRangeError
	switch {
	case err == nil:
		return OutcomeAccepted
	case errors.Is(err, attendance.ErrInvalidOrExpiredCode):
		return OutcomeInvalidCode
	case errors.As(err, &oor):
		return OutcomeOutOfRange
	case errors.Is(err, attendance.ErrAlreadyCheckedIn):
		return OutcomeAlreadyCheckedIn
	case errors.Is(err, attendance.ErrRecordNotFound),
		errors.Is(err, attendance.ErrUserNotFound),
		errors.Is(err, attendance.ErrSessionNotFound):
		return OutcomeNotFound
	case errors.Is(err, attendance.ErrNotEnrolled):
		return OutcomeNotEnrolled
	case errors.Is(err, attendance.ErrInvalidInput):
		return OutcomeInvalidInput
	default:
		return OutcomeError
	}
}

// Publisher sends audit events to the queue for the worker to persist.
type Publisher struct {
	q queue.Queue
}

// NewPublisher creates a publisher on q.
func NewPublisher(q queue.Queue) *Publisher {
	return &Publisher{q: q}
}

// Publish fills in missing id/time and enqueues the event.
func (p *Publisher) Publish(ctx context.Context, e Event) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	body, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return p.q.Publish(ctx, queue.Message{Type: MessageType, Body: body})
}

// Decode parses a queued audit event.
func Decode(msg queue.Message) (Event, error) {
	if msg.Type != MessageType {
		return Event{}, errors.New("not an audit message: " + msg.Type)
	}
	var e Event
	if err := json.Unmarshal(msg.Body, &e); err != nil {
		return Event{}, err
	}
	if e.ID == "" || e.Action == "" {
		return Event{}, errors.New("audit event missing id or action")
	}
	return e, nil
}
