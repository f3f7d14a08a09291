package attendance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"discipleship/internal/geo"
)

func TestMemoryStore_WindowIsCopied(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	o := geo.Point{Lat: 1, Lon: 2}

	require.NoError(t, m.UpsertWindow(ctx, Window{LiveSessionID: "ls", Code: "c", Origin: &o}))
	o.Lat = 50

	w, err := m.GetWindow(ctx, "ls")
	require.NoError(t, err)
	assert.Equal(t, 1.0, w.Origin.Lat)

	w, err = m.GetWindow(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, w)
}

func TestMemoryStore_InsertAndClose(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	join := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

	rec, err := m.InsertRecord(ctx, Record{ID: "r1", UserID: "u", LiveSessionID: "ls", JoinTime: join})
	require.NoError(t, err)
	assert.Equal(t, join, rec.CreatedAt)

	_, err = m.InsertRecord(ctx, Record{ID: "r2", UserID: "u", LiveSessionID: "ls", JoinTime: join})
	assert.ErrorIs(t, err, ErrAlreadyCheckedIn)

	_, err = m.CloseRecord(ctx, "u", "other", join)
	assert.ErrorIs(t, err, ErrRecordNotFound)

	closed, err := m.CloseRecord(ctx, "u", "ls", join.Add(30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 30, *closed.DurationMinutes)
	assert.Equal(t, "r1", closed.ID)
}

func TestMemoryDirectory(t *testing.T) {
	d := NewMemoryDirectory()
	ctx := context.Background()

	_, err := d.ResolveUser(ctx, "s")
	assert.ErrorIs(t, err, ErrUserNotFound)
	_, err = d.LiveSession(ctx, "ls")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	d.AddUser("s", "u")
	d.AddLiveSession(LiveSession{ID: "ls", Title: "t"})
	id, err := d.ResolveUser(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, "u", id)

	ok, _ := d.IsEnrolled(ctx, "u", "ls")
	assert.False(t, ok)
	d.Enroll("u", "ls")
	ok, _ = d.IsEnrolled(ctx, "u", "ls")
	assert.True(t, ok)
}

func TestMemoryStore_ListRecordsWithProfiles(t *testing.T) {
	d := NewMemoryDirectory()
	m := NewMemoryStore().WithDirectory(d)
	ctx := context.Background()
	join := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

	d.SetProfile("u2", Profile{FirstName: "Lydia", LastName: "Thyatira", Email: "lydia@example.org"})
	_, err := m.InsertRecord(ctx, Record{ID: "r2", UserID: "u2", LiveSessionID: "ls", JoinTime: join.Add(time.Minute)})
	require.NoError(t, err)
	_, err = m.InsertRecord(ctx, Record{ID: "r1", UserID: "u1", LiveSessionID: "ls", JoinTime: join})
	require.NoError(t, err)
	_, err = m.InsertRecord(ctx, Record{ID: "r3", UserID: "u1", LiveSessionID: "other", JoinTime: join})
	require.NoError(t, err)

	list, err := m.ListRecords(ctx, "ls")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "r1", list[0].ID)
	assert.Equal(t, Profile{}, list[0].Profile)
	assert.Equal(t, "r2", list[1].ID)
	assert.Equal(t, "Lydia", list[1].FirstName)
	assert.Equal(t, "lydia@example.org", list[1].Email)
}
