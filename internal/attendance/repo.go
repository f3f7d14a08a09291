package attendance

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"discipleship/internal/geo"
)

// Repository persists attendance data in Postgres and resolves users and live sessions.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// UpsertWindow stores the window, overwriting code, geofence and expiry of any previous one.
func (r *Repository) UpsertWindow(ctx context.Context, w Window) error {
	var lat, lon *float64
	if w.Origin != nil {
		lat, lon = &w.Origin.Lat, &w.Origin.Lon
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_sessions (live_session_id, attendance_code, latitude, longitude, radius_meters, expires_at, issued_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		ON CONFLICT (live_session_id) DO UPDATE SET
			attendance_code = EXCLUDED.attendance_code,
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			radius_meters = EXCLUDED.radius_meters,
			expires_at = EXCLUDED.expires_at,
			issued_by = EXCLUDED.issued_by,
			updated_at = EXCLUDED.updated_at
	`, w.LiveSessionID, w.Code, lat, lon, w.RadiusMeters, w.ExpiresAt, w.IssuedBy, w.IssuedAt)
	return err
}

// GetWindow returns the window for a live session, or nil if none exists.
func (r *Repository) GetWindow(ctx context.Context, liveSessionID string) (*Window, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT live_session_id, attendance_code, latitude, longitude, radius_meters, expires_at, issued_by, updated_at
		FROM attendance_sessions WHERE live_session_id = $1
	`, liveSessionID)
	var (
		w        Window
		lat, lon sql.NullFloat64
	)
	if err := row.Scan(&w.LiveSessionID, &w.Code, &lat, &lon, &w.RadiusMeters, &w.ExpiresAt, &w.IssuedBy, &w.IssuedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if lat.Valid && lon.Valid {
		w.Origin = &geo.Point{Lat: lat.Float64, Lon: lon.Float64}
	}
	return &w, nil
}

const recordColumns = `id, user_id, live_session_id, join_time, leave_time, total_duration, status, latitude, longitude, attendance_type, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var (
		rec      Record
		leave    sql.NullTime
		duration sql.NullInt64
		lat, lon sql.NullFloat64
	)
	if err := row.Scan(&rec.ID, &rec.UserID, &rec.LiveSessionID, &rec.JoinTime, &leave, &duration,
		&rec.Status, &lat, &lon, &rec.Type, &rec.CreatedAt); err != nil {
		return Record{}, err
	}
	if leave.Valid {
		t := leave.Time
		rec.LeaveTime = &t
	}
	if duration.Valid {
		d := int(duration.Int64)
		rec.DurationMinutes = &d
	}
	if lat.Valid {
		rec.Latitude = &lat.Float64
	}
	if lon.Valid {
		rec.Longitude = &lon.Float64
	}
	return rec, nil
}

// GetRecord returns the record for the pair, or nil if absent.
func (r *Repository) GetRecord(ctx context.Context, userID, liveSessionID string) (*Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+`
		FROM attendance_records WHERE user_id = $1 AND live_session_id = $2
	`, userID, liveSessionID)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// InsertRecord writes a new record. The unique index on (user_id, live_session_id)
// decides concurrent attempts; the loser gets ErrAlreadyCheckedIn.
func (r *Repository) InsertRecord(ctx context.Context, rec Record) (Record, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance_records (id, user_id, live_session_id, join_time, status, latitude, longitude, attendance_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id, live_session_id) DO NOTHING
		RETURNING `+recordColumns,
		rec.ID, rec.UserID, rec.LiveSessionID, rec.JoinTime, string(rec.Status), rec.Latitude, rec.Longitude, string(rec.Type))
	out, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || isUniqueViolation(err) {
			return Record{}, ErrAlreadyCheckedIn
		}
		return Record{}, err
	}
	return out, nil
}

// CloseRecord sets leave_time and the rounded duration in one statement.
func (r *Repository) CloseRecord(ctx context.Context, userID, liveSessionID string, leave time.Time) (Record, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE attendance_records
		SET leave_time = $3,
			total_duration = ROUND(EXTRACT(EPOCH FROM ($3::timestamptz - join_time)) / 60)::int
		WHERE user_id = $1 AND live_session_id = $2
		RETURNING `+recordColumns,
		userID, liveSessionID, leave)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrRecordNotFound
		}
		return Record{}, err
	}
	return rec, nil
}

const attendeeColumns = `a.id, a.user_id, a.live_session_id, a.join_time, a.leave_time, a.total_duration, a.status, a.latitude, a.longitude, a.attendance_type, a.created_at,
	COALESCE(u.first_name, ''), COALESCE(u.last_name, ''), COALESCE(u.email, '')`

// withExtra appends destinations after the record columns.
type withExtra struct {
	rowScanner
	extra []any
}

func (s withExtra) Scan(dest ...any) error {
	return s.rowScanner.Scan(append(dest, s.extra...)...)
}

// ListRecords returns the records of a live session joined with the users'
// names and emails, ordered by join time.
func (r *Repository) ListRecords(ctx context.Context, liveSessionID string) ([]Attendee, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+attendeeColumns+`
		FROM attendance_records a
		JOIN users u ON u.id = a.user_id
		WHERE a.live_session_id = $1
		ORDER BY a.join_time ASC
	`, liveSessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Attendee
	for rows.Next() {
		var p Profile
		rec, err := scanRecord(withExtra{rows, []any{&p.FirstName, &p.LastName, &p.Email}})
		if err != nil {
			return nil, err
		}
		res = append(res, Attendee{Record: rec, Profile: p})
	}
	return res, rows.Err()
}

// ResolveUser maps an identity-provider subject to the local user id.
func (r *Repository) ResolveUser(ctx context.Context, subject string) (string, error) {
	var id string
	err := r.db.QueryRowContext(ctx, `SELECT id FROM users WHERE subject = $1`, subject).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrUserNotFound
	}
	return id, err
}

// LiveSession returns a live session by id.
func (r *Repository) LiveSession(ctx context.Context, id string) (LiveSession, error) {
	var (
		ls   LiveSession
		zoom sql.NullString
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, title, starts_at, zoom_meeting_id FROM live_sessions WHERE id = $1
	`, id).Scan(&ls.ID, &ls.Title, &ls.StartsAt, &zoom)
	if errors.Is(err, sql.ErrNoRows) {
		return LiveSession{}, ErrSessionNotFound
	}
	if err != nil {
		return LiveSession{}, err
	}
	ls.ZoomMeetingID = zoom.String
	return ls, nil
}

// IsEnrolled reports whether the user has an active enrollment in the course owning the live session.
func (r *Repository) IsEnrolled(ctx context.Context, userID, liveSessionID string) (bool, error) {
	var ok bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM enrollments e
			JOIN live_sessions ls ON ls.course_id = e.course_id
			WHERE e.user_id = $1 AND ls.id = $2 AND e.status = 'active'
		)
	`, userID, liveSessionID).Scan(&ok)
	return ok, err
}
