package migrate

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robcohen/peervault/pkg/storage"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestRunUpToDate(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemAdapter()
	r := NewRunner(st, zerolog.Nop(), nil)
	r.now = fixedClock(time.Unix(0, 0))

	result, err := r.Run(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, StatusUpToDate, result.Status)
}

func TestRunChainedMigrations(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemAdapter()
	require.NoError(t, st.Write(ctx, PrimaryDocumentKey, []byte("v0-data")))

	var ran []int
	migrations := []Migration{
		{FromVersion: 0, ToVersion: 1, Description: "add mime types", Migrate: func(ctx context.Context, mctx *Context) error {
			ran = append(ran, 1)
			return nil
		}},
		{FromVersion: 1, ToVersion: 2, Description: "add group ids", Migrate: func(ctx context.Context, mctx *Context) error {
			ran = append(ran, 2)
			return nil
		}},
	}
	r := NewRunner(st, zerolog.Nop(), migrations)
	r.now = fixedClock(time.Unix(1000, 0))

	result, err := r.Run(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, StatusOK, result.Status)
	assert.Equal(t, []int{1, 2}, ran)
	assert.NotEmpty(t, result.BackupKey)
	require.Len(t, result.MigrationsRun, 2)

	again, err := r.Run(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, StatusUpToDate, again.Status)
	assert.Len(t, ran, 2) // no migrations re-run
}

func TestRunNoChainFails(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemAdapter()
	r := NewRunner(st, zerolog.Nop(), []Migration{
		{FromVersion: 0, ToVersion: 1, Description: "only step"},
	})
	r.now = fixedClock(time.Unix(0, 0))

	result, err := r.Run(ctx, 5)
	require.Error(t, err)
	assert.Equal(t, StatusFailed, result.Status)
}

func TestRunStepFailureRetainsBackup(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemAdapter()
	require.NoError(t, st.Write(ctx, PrimaryDocumentKey, []byte("original")))

	migrations := []Migration{
		{FromVersion: 0, ToVersion: 1, Description: "boom", Migrate: func(ctx context.Context, mctx *Context) error {
			return assert.AnError
		}},
	}
	r := NewRunner(st, zerolog.Nop(), migrations)
	r.now = fixedClock(time.Unix(2000, 0))

	result, err := r.Run(ctx, 1)
	require.Error(t, err)
	assert.Equal(t, StatusFailed, result.Status)
	require.NotEmpty(t, result.BackupKey)

	backed, err := st.Read(ctx, result.BackupKey)
	require.NoError(t, err)
	assert.Equal(t, "original", string(backed))
}

func TestRestoreFromBackup(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemAdapter()
	require.NoError(t, st.Write(ctx, PrimaryDocumentKey, []byte("v1-data")))

	migrations := []Migration{
		{FromVersion: 1, ToVersion: 2, Description: "noop", Migrate: func(ctx context.Context, mctx *Context) error {
			return st.Write(ctx, PrimaryDocumentKey, []byte("v2-data"))
		}},
	}
	// Seed current version to 1.
	r0 := NewRunner(st, zerolog.Nop(), nil)
	r0.now = fixedClock(time.Unix(0, 0))
	require.NoError(t, st.Write(ctx, SchemaVersionKey, []byte(`{"version":1}`)))

	r := NewRunner(st, zerolog.Nop(), migrations)
	r.now = fixedClock(time.Unix(3000, 0))
	result, err := r.Run(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, StatusOK, result.Status)

	cur, err := st.Read(ctx, PrimaryDocumentKey)
	require.NoError(t, err)
	assert.Equal(t, "v2-data", string(cur))

	require.NoError(t, r.RestoreFromBackup(ctx, result.BackupKey))
	restored, err := st.Read(ctx, PrimaryDocumentKey)
	require.NoError(t, err)
	assert.Equal(t, "v1-data", string(restored))
	assert.Equal(t, 1, r.currentVersion(ctx))
}
