package attendance

import (
	"errors"
	"fmt"
	"math"
	"time"

	"discipleship/internal/geo"
)

// WindowLifetime is how long an issued attendance code stays valid.
const WindowLifetime = 10 * time.Minute

// DefaultRadiusMeters is the geofence radius used when the issuer does not supply one.
const DefaultRadiusMeters = 100.0

// Type tags how a student attended.
type Type string

const (
	InPerson Type = "in_person"
	Online   Type = "online"
)

// Status of an attendance record. Only present is reachable through check-in.
type Status string

const StatusPresent Status = "present"

var (
	ErrInvalidOrExpiredCode = errors.New("invalid or expired attendance code")
	ErrAlreadyCheckedIn     = errors.New("already checked in for this session")
	ErrRecordNotFound       = errors.New("attendance record not found")
	ErrUserNotFound         = errors.New("user not found")
	ErrSessionNotFound      = errors.New("live session not found")
	ErrNotEnrolled          = errors.New("not enrolled in this course")
	ErrNoActiveWindow       = errors.New("no active attendance window")
	ErrInvalidInput         = errors.New("invalid input")
)

// OutOfRangeError is returned when an in-person check-in is outside the geofence.
type OutOfRangeError struct {
	RadiusMeters   float64
	DistanceMeters int
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("outside attendance radius: %dm from origin, limit %gm", e.DistanceMeters, e.RadiusMeters)
}

// Window is the attendance window currently open for a live session.
// There is at most one per live session; re-issuing replaces it.
type Window struct {
	LiveSessionID string
	Code          string
	Origin        *geo.Point
	RadiusMeters  float64
	ExpiresAt     time.Time
	IssuedBy      string
	IssuedAt      time.Time
}

// ActiveAt reports whether the window accepts check-ins at t.
func (w Window) ActiveAt(t time.Time) bool {
	return t.Before(w.ExpiresAt)
}

// Record is one student's attendance for one live session.
type Record struct {
	ID              string     `json:"id"`
	UserID          string     `json:"user_id"`
	LiveSessionID   string     `json:"live_session_id"`
	JoinTime        time.Time  `json:"join_time"`
	LeaveTime       *time.Time `json:"leave_time"`
	DurationMinutes *int       `json:"total_duration"`
	Status          Status     `json:"status"`
	Latitude        *float64   `json:"latitude"`
	Longitude       *float64   `json:"longitude"`
	Type            Type       `json:"attendance_type"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Profile is the display data of a user, mirrored from the identity provider.
type Profile struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

// Attendee is a record with the attendee's profile, as listed to instructors.
type Attendee struct {
	Record
	Profile
}

// LiveSession is the externally managed event being attended.
type LiveSession struct {
	ID            string
	Title         string
	StartsAt      time.Time
	ZoomMeetingID string
}

// durationMinutes rounds the elapsed time between join and leave to whole minutes.
func durationMinutes(join, leave time.Time) int {
	return int(math.Round(leave.Sub(join).Minutes()))
}
