package users

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/watzon/authhook/internal/config"
	"github.com/watzon/authhook/internal/database"
	"github.com/watzon/authhook/internal/webhooks"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := database.Open(&config.DatabaseConfig{
		Path:         filepath.Join(t.TempDir(), "users.db"),
		WALMode:      true,
		BusyTimeout:  time.Second,
		MaxOpenConns: 1,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewStore(db)
}

func TestStore_CreateAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.CreateUser(ctx, webhooks.UserRecord{
		UID:         "u1",
		Email:       " a@b.com ",
		DisplayName: "<b>Ada</b> & Bob",
		Metadata:    map[string]string{"creationTime": "2024-01-01T00:00:00Z"},
	})
	require.NoError(t, err)

	u, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "a@b.com", u.Email)
	require.Equal(t, "Ada & Bob", u.DisplayName)
	require.Equal(t, "2024-01-01T00:00:00Z", u.Metadata["creationTime"])
	require.False(t, u.CreatedAt.IsZero())
}

func TestStore_CreateIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateUser(ctx, webhooks.UserRecord{UID: "u1", Email: "a@b.com"}))
	require.NoError(t, s.CreateUser(ctx, webhooks.UserRecord{UID: "u1", Email: "c@d.com"}))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	u, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "c@d.com", u.Email)
}

func TestStore_UpdateKeepsMissingFields(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateUser(ctx, webhooks.UserRecord{
		UID:         "u1",
		Email:       "a@b.com",
		DisplayName: "Ada",
		Metadata:    map[string]string{"creationTime": "t0"},
	}))

	require.NoError(t, s.UpdateUser(ctx, webhooks.UserRecord{UID: "u1", PhoneNumber: "+15550100"}))

	u, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "a@b.com", u.Email)
	require.Equal(t, "Ada", u.DisplayName)
	require.Equal(t, "+15550100", u.PhoneNumber)
	require.Equal(t, "t0", u.Metadata["creationTime"])

	require.NoError(t, s.UpdateUser(ctx, webhooks.UserRecord{
		UID:      "u1",
		Metadata: map[string]string{"lastSignInTime": "t1"},
	}))
	u, err = s.Get(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, map[string]string{"lastSignInTime": "t1"}, u.Metadata)
}

func TestStore_UpdateUnknownInserts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpdateUser(ctx, webhooks.UserRecord{UID: "late", Email: "late@b.com"}))

	u, err := s.Get(ctx, "late")
	require.NoError(t, err)
	require.Equal(t, "late@b.com", u.Email)
	require.Nil(t, u.Metadata)
}

func TestStore_Delete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateUser(ctx, webhooks.UserRecord{UID: "u1"}))
	require.NoError(t, s.DeleteUser(ctx, "u1"))

	_, err := s.Get(ctx, "u1")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.DeleteUser(ctx, "never-existed"))
}

func TestStore_ClosedDatabaseFails(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.db.Close())

	err := s.CreateUser(context.Background(), webhooks.UserRecord{UID: "u1"})
	require.Error(t, err)
}
