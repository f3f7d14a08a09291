package attendance

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"io"
	"time"
)

// Store persists attendance windows and records.
type Store interface {
	// UpsertWindow replaces the window for w.LiveSessionID.
	UpsertWindow(ctx context.Context, w Window) error
	// GetWindow returns the window for the live session, or nil if none was issued.
	GetWindow(ctx context.Context, liveSessionID string) (*Window, error)
	// GetRecord returns the record for the pair, or nil if absent.
	GetRecord(ctx context.Context, userID, liveSessionID string) (*Record, error)
	// InsertRecord creates rec. It returns ErrAlreadyCheckedIn when a record
	// for the same user and live session already exists, including when a
	// concurrent writer won the race.
	InsertRecord(ctx context.Context, rec Record) (Record, error)
	// CloseRecord sets the leave time and duration. Returns ErrRecordNotFound
	// when there is no record for the pair.
	CloseRecord(ctx context.Context, userID, liveSessionID string, leave time.Time) (Record, error)
	// ListRecords returns the records of a live session with each attendee's
	// profile, ordered by join time.
	ListRecords(ctx context.Context, liveSessionID string) ([]Attendee, error)
}

// Directory resolves the externally managed entities the protocol refers to.
type Directory interface {
	// ResolveUser maps an identity-provider subject to a user id.
	ResolveUser(ctx context.Context, subject string) (string, error)
	LiveSession(ctx context.Context, id string) (LiveSession, error)
	IsEnrolled(ctx context.Context, userID, liveSessionID string) (bool, error)
}

// Clock abstracts the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// codeBytes is the amount of entropy in an attendance code.
const codeBytes = 16

func newCode(r io.Reader) (string, error) {
	b := make([]byte, codeBytes)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(c Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithRandom overrides the source used to generate attendance codes.
func WithRandom(r io.Reader) Option {
	return func(s *Service) { s.random = r }
}

var defaultRandom io.Reader = rand.Reader
