package audit

import (
	"context"
	"database/sql"

	"discipleship/internal/attendance"
)

// Repository persists audit events in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Insert stores e. Redelivered events with the same id are ignored.
func (r *Repository) Insert(ctx context.Context, e Event) error {
	var typ *string
	if e.AttendanceType != "" {
		s := string(e.AttendanceType)
		typ = &s
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_audit (id, occurred_at, action, outcome, subject, live_session_id, attendance_type, distance_meters)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`, e.ID, e.OccurredAt, e.Action, e.Outcome, e.Subject, e.LiveSessionID, typ, e.DistanceMeters)
	return err
}

// Page sizes for ListBySession.
const (
	DefaultListLimit = 100
	MaxListLimit     = 500
)

// ListBySession returns the most recent events of a live session, newest first.
func (r *Repository) ListBySession(ctx context.Context, liveSessionID string, limit int) ([]Event, error) {
	limit = pageSize(limit)
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, occurred_at, action, outcome, subject, live_session_id, attendance_type, distance_meters
		FROM attendance_audit
		WHERE live_session_id = $1
		ORDER BY occurred_at DESC
		LIMIT $2
	`, liveSessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Event
	for rows.Next() {
		var (
			e        Event
			typ      sql.NullString
			distance sql.NullInt64
		)
		if err := rows.Scan(&e.ID, &e.OccurredAt, &e.Action, &e.Outcome, &e.Subject, &e.LiveSessionID, &typ, &distance); err != nil {
			return nil, err
		}
		e.AttendanceType = attendance.Type(typ.String)
		if distance.Valid {
			d := int(distance.Int64)
			e.DistanceMeters = &d
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func pageSize(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	}
	return limit
}
