package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"sparkify/internal/storage"
	"sparkify/internal/storage/sqlite"
	"sparkify/internal/testhelpers"
)

func TestDefaultStatements_Complete(t *testing.T) {
	t.Parallel()
	require.NoError(t, sqlite.DefaultStatements().Validate())
}

func TestGateway_UpsertsAreIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := testhelpers.NewSQLite(t)
	gw := db.Gateway

	for i := 0; i < 2; i++ {
		require.NoError(t, gw.Exec(ctx, storage.SongInsert, "S1", "T1", "A1", 2000, 180.5))
		require.NoError(t, gw.Exec(ctx, storage.ArtistInsert, "A1", "Art1", "LA", 34.0, -118.0))
		require.NoError(t, gw.Commit(ctx))
	}

	require.Equal(t, 1, db.Count(t, "songs"))
	require.Equal(t, 1, db.Count(t, "artists"))
}

func TestGateway_UserUpsertLastLevelWins(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := testhelpers.NewSQLite(t)
	gw := db.Gateway

	require.NoError(t, gw.Exec(ctx, storage.UserInsert, "U1", "Ann", "Lee", "F", "free"))
	require.NoError(t, gw.Exec(ctx, storage.UserInsert, "U1", "Ann", "Lee", "F", "paid"))
	require.NoError(t, gw.Commit(ctx))

	require.Equal(t, 1, db.Count(t, "users"))
	var level string
	require.NoError(t, db.DB.QueryRow(`SELECT level FROM users WHERE user_id = 'U1'`).Scan(&level))
	require.Equal(t, "paid", level)
}

func TestGateway_SongSelectSeesOwnTransaction(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := testhelpers.NewSQLite(t)
	gw := db.Gateway

	require.NoError(t, gw.Exec(ctx, storage.SongInsert, "S1", "T1", "A1", 2000, 180.5))
	require.NoError(t, gw.Exec(ctx, storage.ArtistInsert, "A1", "Art1", "LA", nil, nil))

	var songID, artistID string
	require.NoError(t, gw.QueryRow(ctx, storage.SongSelect, "T1", "Art1", 180.5).Scan(&songID, &artistID))
	require.Equal(t, "S1", songID)
	require.Equal(t, "A1", artistID)

	err := gw.QueryRow(ctx, storage.SongSelect, "T1", "Art1", 180.25).Scan(&songID, &artistID)
	require.True(t, errors.Is(err, storage.ErrNoRows), "err=%v", err)
}

func TestGateway_RollbackDiscardsUncommitted(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := testhelpers.NewSQLite(t)
	gw := db.Gateway

	require.NoError(t, gw.Exec(ctx, storage.SongInsert, "S1", "T1", "A1", 2000, 180.5))
	require.NoError(t, gw.Commit(ctx))
	require.NoError(t, gw.Exec(ctx, storage.SongInsert, "S2", "T2", "A2", 2001, 200.0))
	require.NoError(t, gw.Rollback(ctx))

	require.Equal(t, 1, db.Count(t, "songs"))
}

func TestGateway_TimeStoredAsRFC3339(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := testhelpers.NewSQLite(t)
	gw := db.Gateway

	ts := time.Date(2018, 11, 15, 0, 30, 26, 796_000_000, time.UTC)
	require.NoError(t, gw.Exec(ctx, storage.TimeInsert, ts, 0, 15, 46, 11, 2018, "Thursday"))
	require.NoError(t, gw.Commit(ctx))

	var raw string
	require.NoError(t, db.DB.QueryRow(`SELECT start_time FROM time`).Scan(&raw))
	require.Equal(t, "2018-11-15T00:30:26.796Z", raw)

	got, err := sqlite.ParseTime(raw)
	require.NoError(t, err)
	require.True(t, got.Equal(ts))
}

func TestOpen_RejectsEmptyDSN(t *testing.T) {
	t.Parallel()

	_, err := storage.Open(context.Background(), storage.Config{Kind: "sqlite"})
	require.Error(t, err)
}
