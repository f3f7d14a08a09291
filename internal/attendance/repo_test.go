package attendance

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"discipleship/internal/geo"
	"discipleship/internal/store"
	"discipleship/internal/store/migrate"
)

// openRepo connects to TEST_DATABASE_URL, applies migrations and seeds a user
// and a live session. Tests using it are skipped when no database is configured.
func openRepo(t *testing.T) (repo *Repository, userID, subject, sessionID string) {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	require.NoError(t, migrate.Run(dsn, "up"))

	ctx := context.Background()
	db, err := store.NewDB(ctx, dsn, store.PoolOptions{MaxOpen: 20})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	subject = "sub-" + uuid.NewString()
	sessionID = uuid.NewString()
	course := uuid.NewString()
	require.NoError(t, db.Client.QueryRowContext(ctx,
		`INSERT INTO users (subject, first_name) VALUES ($1, 'Test') RETURNING id`, subject).Scan(&userID))
	_, err = db.Client.ExecContext(ctx,
		`INSERT INTO live_sessions (id, course_id, title, starts_at) VALUES ($1, $2, 'Repo test', NOW())`, sessionID, course)
	require.NoError(t, err)
	_, err = db.Client.ExecContext(ctx,
		`INSERT INTO enrollments (user_id, course_id) VALUES ($1, $2)`, userID, course)
	require.NoError(t, err)

	return NewRepository(db.Client), userID, subject, sessionID
}

func TestRepository_Directory(t *testing.T) {
	repo, userID, subject, sessionID := openRepo(t)
	ctx := context.Background()

	id, err := repo.ResolveUser(ctx, subject)
	require.NoError(t, err)
	assert.Equal(t, userID, id)

	_, err = repo.ResolveUser(ctx, "nobody-"+uuid.NewString())
	assert.ErrorIs(t, err, ErrUserNotFound)

	ls, err := repo.LiveSession(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, "Repo test", ls.Title)

	_, err = repo.LiveSession(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrSessionNotFound)

	ok, err := repo.IsEnrolled(ctx, userID, sessionID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRepository_WindowUpsertReplaces(t *testing.T) {
	repo, userID, _, sessionID := openRepo(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	w, err := repo.GetWindow(ctx, sessionID)
	require.NoError(t, err)
	assert.Nil(t, w)

	require.NoError(t, repo.UpsertWindow(ctx, Window{
		LiveSessionID: sessionID, Code: "first", Origin: &geo.Point{Lat: 40, Lon: -75},
		RadiusMeters: 100, ExpiresAt: now.Add(WindowLifetime), IssuedBy: userID, IssuedAt: now,
	}))
	require.NoError(t, repo.UpsertWindow(ctx, Window{
		LiveSessionID: sessionID, Code: "second", RadiusMeters: 50,
		ExpiresAt: now.Add(2 * WindowLifetime), IssuedBy: userID, IssuedAt: now,
	}))

	w, err = repo.GetWindow(ctx, sessionID)
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.Equal(t, "second", w.Code)
	assert.Nil(t, w.Origin)
	assert.Equal(t, 50.0, w.RadiusMeters)
	assert.True(t, w.ExpiresAt.Equal(now.Add(2*WindowLifetime)))
}

func TestRepository_RecordLifecycle(t *testing.T) {
	repo, userID, _, sessionID := openRepo(t)
	ctx := context.Background()
	join := time.Now().UTC().Truncate(time.Microsecond)

	_, err := repo.CloseRecord(ctx, userID, sessionID, join)
	assert.ErrorIs(t, err, ErrRecordNotFound)

	lat, lon := 40.0, -75.0
	rec, err := repo.InsertRecord(ctx, Record{
		ID: uuid.NewString(), UserID: userID, LiveSessionID: sessionID, JoinTime: join,
		Status: StatusPresent, Type: InPerson, Latitude: &lat, Longitude: &lon,
	})
	require.NoError(t, err)
	assert.Equal(t, InPerson, rec.Type)
	assert.Nil(t, rec.LeaveTime)

	_, err = repo.InsertRecord(ctx, Record{
		ID: uuid.NewString(), UserID: userID, LiveSessionID: sessionID, JoinTime: join,
		Status: StatusPresent, Type: Online,
	})
	assert.ErrorIs(t, err, ErrAlreadyCheckedIn)

	closed, err := repo.CloseRecord(ctx, userID, sessionID, join.Add(45*time.Minute+31*time.Second))
	require.NoError(t, err)
	require.NotNil(t, closed.DurationMinutes)
	assert.Equal(t, 46, *closed.DurationMinutes)

	got, err := repo.GetRecord(ctx, userID, sessionID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rec.ID, got.ID)

	list, err := repo.ListRecords(ctx, sessionID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, rec.ID, list[0].ID)
	assert.Equal(t, "Test", list[0].FirstName)
	assert.Empty(t, list[0].Email)
}

func TestRepository_ConcurrentInsertsKeepOneRow(t *testing.T) {
	repo, userID, _, sessionID := openRepo(t)
	ctx := context.Background()

	const attempts = 16
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.InsertRecord(ctx, Record{
				ID: uuid.NewString(), UserID: userID, LiveSessionID: sessionID,
				JoinTime: time.Now().UTC(), Status: StatusPresent, Type: Online,
			})
			if err != nil && !errors.Is(err, ErrAlreadyCheckedIn) {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	list, err := repo.ListRecords(ctx, sessionID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
