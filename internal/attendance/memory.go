package attendance

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is a Store kept in process memory for dev/testing. The pair
// uniqueness is enforced under the same lock as the insert, mirroring the
// unique index in Postgres.
type MemoryStore struct {
	mu       sync.Mutex
	windows  map[string]Window
	records  map[recordKey]Record
	profiles *MemoryDirectory
}

type recordKey struct {
	userID        string
	liveSessionID string
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		windows: make(map[string]Window),
		records: make(map[recordKey]Record),
	}
}

// WithDirectory makes ListRecords fill attendee profiles from d.
func (m *MemoryStore) WithDirectory(d *MemoryDirectory) *MemoryStore {
	m.profiles = d
	return m
}

func (m *MemoryStore) UpsertWindow(_ context.Context, w Window) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if w.Origin != nil {
		o := *w.Origin
		w.Origin = &o
	}
	m.windows[w.LiveSessionID] = w
	return nil
}

func (m *MemoryStore) GetWindow(_ context.Context, liveSessionID string) (*Window, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.windows[liveSessionID]
	if !ok {
		return nil, nil
	}
	return &w, nil
}

func (m *MemoryStore) GetRecord(_ context.Context, userID, liveSessionID string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[recordKey{userID, liveSessionID}]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *MemoryStore) InsertRecord(_ context.Context, rec Record) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := recordKey{rec.UserID, rec.LiveSessionID}
	if _, ok := m.records[key]; ok {
		return Record{}, ErrAlreadyCheckedIn
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = rec.JoinTime
	}
	m.records[key] = rec
	return rec, nil
}

func (m *MemoryStore) CloseRecord(_ context.Context, userID, liveSessionID string, leave time.Time) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := recordKey{userID, liveSessionID}
	rec, ok := m.records[key]
	if !ok {
		return Record{}, ErrRecordNotFound
	}
	d := durationMinutes(rec.JoinTime, leave)
	rec.LeaveTime = &leave
	rec.DurationMinutes = &d
	m.records[key] = rec
	return rec, nil
}

func (m *MemoryStore) ListRecords(_ context.Context, liveSessionID string) ([]Attendee, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []Attendee
	for k, rec := range m.records {
		if k.liveSessionID == liveSessionID {
			a := Attendee{Record: rec}
			if m.profiles != nil {
				a.Profile = m.profiles.profile(rec.UserID)
			}
			res = append(res, a)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].JoinTime.Before(res[j].JoinTime) })
	return res, nil
}

// MemoryDirectory is an in-memory Directory for dev/testing.
type MemoryDirectory struct {
	mu         sync.RWMutex
	users      map[string]string
	sessions   map[string]LiveSession
	enrollment map[recordKey]bool
	profiles   map[string]Profile
}

// NewMemoryDirectory creates an empty directory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		users:      make(map[string]string),
		sessions:   make(map[string]LiveSession),
		enrollment: make(map[recordKey]bool),
		profiles:   make(map[string]Profile),
	}
}

// AddUser registers a subject and its user id.
func (d *MemoryDirectory) AddUser(subject, userID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[subject] = userID
}

// SetProfile stores the name and email of a user id.
func (d *MemoryDirectory) SetProfile(userID string, p Profile) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.profiles[userID] = p
}

func (d *MemoryDirectory) profile(userID string) Profile {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.profiles[userID]
}

// AddLiveSession registers a live session.
func (d *MemoryDirectory) AddLiveSession(ls LiveSession) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sessions[ls.ID] = ls
}

// Enroll marks the user as enrolled in the course running the live session.
func (d *MemoryDirectory) Enroll(userID, liveSessionID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enrollment[recordKey{userID, liveSessionID}] = true
}

func (d *MemoryDirectory) ResolveUser(_ context.Context, subject string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.users[subject]
	if !ok {
		return "", ErrUserNotFound
	}
	return id, nil
}

func (d *MemoryDirectory) LiveSession(_ context.Context, id string) (LiveSession, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ls, ok := d.sessions[id]
	if !ok {
		return LiveSession{}, ErrSessionNotFound
	}
	return ls, nil
}

func (d *MemoryDirectory) IsEnrolled(_ context.Context, userID, liveSessionID string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.enrollment[recordKey{userID, liveSessionID}], nil
}
