package attendance

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"discipleship/internal/geo"
	"discipleship/internal/qr"
)

// Service implements the secure attendance protocol: window issuance,
// code and geofence validated check-in, and check-out.
type Service struct {
	store  Store
	dir    Directory
	clock  Clock
	random io.Reader
}

// NewService creates a service backed by a store and a directory.
func NewService(store Store, dir Directory, opts ...Option) *Service {
	s := &Service{store: store, dir: dir, clock: systemClock{}, random: defaultRandom}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// now is truncated to the precision Postgres keeps.
func (s *Service) now() time.Time {
	return s.clock.Now().UTC().Truncate(time.Microsecond)
}

// IssueRequest opens an attendance window.
type IssueRequest struct {
	LiveSessionID string
	IssuerSubject string
	Origin        *geo.Point
	RadiusMeters  *float64
}

// Issued is what an instructor gets back after opening a window.
type Issued struct {
	Code      string
	QRData    string
	ExpiresAt time.Time
	Window    Window
}

// IssueWindow generates a fresh code for the live session and replaces any prior window.
func (s *Service) IssueWindow(ctx context.Context, req IssueRequest) (Issued, error) {
	radius := DefaultRadiusMeters
	if req.RadiusMeters != nil {
		radius = *req.RadiusMeters
	}
	if radius <= 0 || math.IsInf(radius, 0) || math.IsNaN(radius) {
		return Issued{}, fmt.Errorf("%w: radius must be a positive number of meters", ErrInvalidInput)
	}
	if req.Origin != nil && !req.Origin.Valid() {
		return Issued{}, fmt.Errorf("%w: origin coordinates out of range", ErrInvalidInput)
	}

	if _, err := s.dir.LiveSession(ctx, req.LiveSessionID); err != nil {
		return Issued{}, err
	}
	issuer, err := s.dir.ResolveUser(ctx, req.IssuerSubject)
	if err != nil {
		return Issued{}, err
	}

	code, err := newCode(s.random)
	if err != nil {
		return Issued{}, fmt.Errorf("generate attendance code: %w", err)
	}
	now := s.now()
	w := Window{
		LiveSessionID: req.LiveSessionID,
		Code:          code,
		Origin:        req.Origin,
		RadiusMeters:  radius,
		ExpiresAt:     now.Add(WindowLifetime),
		IssuedBy:      issuer,
		IssuedAt:      now,
	}
	if err := s.store.UpsertWindow(ctx, w); err != nil {
		return Issued{}, err
	}

	data, err := qr.Payload{SessionID: w.LiveSessionID, Code: w.Code, Expires: w.ExpiresAt.UnixMilli()}.Encode()
	if err != nil {
		return Issued{}, err
	}
	return Issued{Code: code, QRData: data, ExpiresAt: w.ExpiresAt, Window: w}, nil
}

// CheckInRequest is a student's attempt to record presence.
type CheckInRequest struct {
	Subject       string
	LiveSessionID string
	Code          string
	Location      *geo.Point
	Online        bool
}

// CheckInResult carries the created record and, when the geofence was
// evaluated, the distance from the window origin.
type CheckInResult struct {
	Record         Record
	DistanceMeters *float64
}

// CheckIn validates the code, the location and uniqueness, then records attendance.
func (s *Service) CheckIn(ctx context.Context, req CheckInRequest) (CheckInResult, error) {
	if strings.TrimSpace(req.Code) == "" {
		return CheckInResult{}, ErrInvalidOrExpiredCode
	}
	if req.Online {
		req.Location = nil
	}
	if req.Location != nil && !req.Location.Valid() {
		return CheckInResult{}, fmt.Errorf("%w: coordinates out of range", ErrInvalidInput)
	}
	userID, err := s.dir.ResolveUser(ctx, req.Subject)
	if err != nil {
		return CheckInResult{}, err
	}

	now := s.now()
	w, err := s.store.GetWindow(ctx, req.LiveSessionID)
	if err != nil {
		return CheckInResult{}, err
	}
	if w == nil || subtle.ConstantTimeCompare([]byte(w.Code), []byte(req.Code)) != 1 || !w.ActiveAt(now) {
		return CheckInResult{}, ErrInvalidOrExpiredCode
	}

	var res CheckInResult
	if !req.Online && w.Origin != nil && req.Location != nil {
		d := w.Origin.DistanceTo(*req.Location)
		res.DistanceMeters = &d
		if d > w.RadiusMeters {
			return res, &OutOfRangeError{RadiusMeters: w.RadiusMeters, DistanceMeters: int(math.Round(d))}
		}
	}

	existing, err := s.store.GetRecord(ctx, userID, req.LiveSessionID)
	if err != nil {
		return res, err
	}
	if existing != nil {
		return res, ErrAlreadyCheckedIn
	}

	rec := Record{
		ID:            uuid.NewString(),
		UserID:        userID,
		LiveSessionID: req.LiveSessionID,
		JoinTime:      now,
		Status:        StatusPresent,
		Type:          InPerson,
	}
	if req.Online {
		rec.Type = Online
	} else if req.Location != nil {
		lat, lon := req.Location.Lat, req.Location.Lon
		rec.Latitude, rec.Longitude = &lat, &lon
	}
	rec, err = s.store.InsertRecord(ctx, rec)
	if err != nil {
		return res, err
	}
	res.Record = rec
	return res, nil
}

// CheckOut closes the caller's record for the live session. Calling it again
// moves the leave time forward.
func (s *Service) CheckOut(ctx context.Context, subject, liveSessionID string) (Record, error) {
	userID, err := s.dir.ResolveUser(ctx, subject)
	if err != nil {
		return Record{}, err
	}
	return s.store.CloseRecord(ctx, userID, liveSessionID, s.now())
}

// Join records online attendance for an enrolled user following the meeting
// link directly. No code is required, and the record is created only once.
func (s *Service) Join(ctx context.Context, subject, liveSessionID string) (Record, LiveSession, error) {
	userID, err := s.dir.ResolveUser(ctx, subject)
	if err != nil {
		return Record{}, LiveSession{}, err
	}
	ls, err := s.dir.LiveSession(ctx, liveSessionID)
	if err != nil {
		return Record{}, LiveSession{}, err
	}
	enrolled, err := s.dir.IsEnrolled(ctx, userID, liveSessionID)
	if err != nil {
		return Record{}, ls, err
	}
	if !enrolled {
		return Record{}, ls, ErrNotEnrolled
	}

	if existing, err := s.store.GetRecord(ctx, userID, liveSessionID); err != nil {
		return Record{}, ls, err
	} else if existing != nil {
		return Record{}, ls, ErrAlreadyCheckedIn
	}
	rec, err := s.store.InsertRecord(ctx, Record{
		ID:            uuid.NewString(),
		UserID:        userID,
		LiveSessionID: liveSessionID,
		JoinTime:      s.now(),
		Status:        StatusPresent,
		Type:          Online,
	})
	return rec, ls, err
}

// ActiveStatus describes whether a live session currently accepts check-ins.
type ActiveStatus struct {
	Session   LiveSession
	ExpiresAt *time.Time
	Active    bool
}

// Active reports the state of the live session's window without revealing its code.
func (s *Service) Active(ctx context.Context, liveSessionID string) (ActiveStatus, error) {
	ls, err := s.dir.LiveSession(ctx, liveSessionID)
	if err != nil {
		return ActiveStatus{}, err
	}
	st := ActiveStatus{Session: ls}
	w, err := s.CurrentWindow(ctx, liveSessionID)
	switch {
	case errors.Is(err, ErrNoActiveWindow):
		return st, nil
	case err != nil:
		return st, err
	}
	st.Active = true
	st.ExpiresAt = &w.ExpiresAt
	return st, nil
}

// CurrentWindow returns the unexpired window of a live session.
func (s *Service) CurrentWindow(ctx context.Context, liveSessionID string) (Window, error) {
	w, err := s.store.GetWindow(ctx, liveSessionID)
	if err != nil {
		return Window{}, err
	}
	if w == nil || !w.ActiveAt(s.now()) {
		return Window{}, ErrNoActiveWindow
	}
	return *w, nil
}

// Attendance lists the records of a live session with attendee names and emails.
func (s *Service) Attendance(ctx context.Context, liveSessionID string) ([]Attendee, error) {
	if _, err := s.dir.LiveSession(ctx, liveSessionID); err != nil {
		return nil, err
	}
	return s.store.ListRecords(ctx, liveSessionID)
}
