package migrate

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/robcohen/peervault/pkg/storage"
	"github.com/robcohen/peervault/pkg/vaulterr"
)

// SchemaVersionKey is the fixed storage key holding the current schema
// version record, per spec §6.
const SchemaVersionKey = "peervault-schema-version"

// SchemaVersion is the persisted record of which migrations have run.
type SchemaVersion struct {
	Version       int       `json:"version"`
	UpdatedAt     time.Time `json:"updatedAt"`
	MigrationsRun []string  `json:"migrationsRun"`
}

// Context is threaded through every Migration's step function.
type Context struct {
	Storage    storage.Adapter
	Logger     zerolog.Logger
	OnProgress func(step, total int)
}

// Migration is one step in the chain, transforming stored state from
// FromVersion to ToVersion.
type Migration struct {
	FromVersion int
	ToVersion   int
	Description string
	Migrate     func(ctx context.Context, mctx *Context) error
}

// Status reports the outcome of a Runner.Run call.
type Status string

const (
	StatusUpToDate Status = "up-to-date"
	StatusOK       Status = "ok"
	StatusFailed   Status = "failed"
)

// Result is returned by Run.
type Result struct {
	Status        Status
	FromVersion   int
	ToVersion     int
	MigrationsRun []string
	BackupKey     string
	Err           error
}

// PrimaryDocumentKey is the storage key snapshotted before the first
// migration step runs, so a failed chain can be rolled back. It matches
// pkg/document.SnapshotKey and spec §6's "peervault-snapshot" persisted key
// directly rather than importing pkg/document for one constant.
const PrimaryDocumentKey = "peervault-snapshot"

// Runner owns a chain of migrations and runs the subset needed to reach a
// target version, backing up state before the first step.
type Runner struct {
	storage    storage.Adapter
	logger     zerolog.Logger
	migrations []Migration
	now        func() time.Time
}

// NewRunner builds a Runner over the given migration chain. Migrations need
// not be sorted; Run walks them looking for the next FromVersion == current.
func NewRunner(st storage.Adapter, logger zerolog.Logger, migrations []Migration) *Runner {
	return &Runner{
		storage:    st,
		logger:     logger.With().Str("component", "migrate").Logger(),
		migrations: migrations,
		now:        time.Now,
	}
}

// currentVersion reads the stored schema version, treating a missing or
// unparseable record as version 0.
func (r *Runner) currentVersion(ctx context.Context) int {
	raw, err := r.storage.Read(ctx, SchemaVersionKey)
	if err != nil || len(raw) == 0 {
		return 0
	}
	var sv SchemaVersion
	if err := json.Unmarshal(raw, &sv); err != nil {
		return 0
	}
	return sv.Version
}

// chainTo finds a strictly increasing sequence of migrations from current to
// target, or nil if no such chain exists.
func (r *Runner) chainTo(current, target int) []Migration {
	byFrom := make(map[int]Migration, len(r.migrations))
	for _, m := range r.migrations {
		byFrom[m.FromVersion] = m
	}
	var chain []Migration
	v := current
	for v < target {
		m, ok := byFrom[v]
		if !ok {
			return nil
		}
		chain = append(chain, m)
		v = m.ToVersion
	}
	if v != target {
		return nil
	}
	return chain
}

// Run walks the migration chain from the stored version to target,
// snapshotting the primary document key before the first step and
// persisting the new schema version record on success.
func (r *Runner) Run(ctx context.Context, target int) (*Result, error) {
	current := r.currentVersion(ctx)
	if current >= target {
		return &Result{Status: StatusUpToDate, FromVersion: current, ToVersion: current}, nil
	}

	chain := r.chainTo(current, target)
	if chain == nil {
		err := vaulterr.New(vaulterr.CodeConfigMigrateFailed, fmt.Sprintf("no migration chain from v%d to v%d", current, target))
		return &Result{Status: StatusFailed, FromVersion: current, ToVersion: target, Err: err}, err
	}

	backupKey, err := r.backup(ctx, current)
	if err != nil {
		return &Result{Status: StatusFailed, FromVersion: current, ToVersion: target, Err: err}, err
	}

	var ran []string
	mctx := &Context{Storage: r.storage, Logger: r.logger}
	for i, m := range chain {
		step := i
		mctx.OnProgress = func(stepOf, totalOf int) {
			r.logger.Debug().Int("step", step).Int("migration_step", stepOf).Int("migration_total", totalOf).
				Str("description", m.Description).Msg("migration progress")
		}
		r.logger.Info().Int("from", m.FromVersion).Int("to", m.ToVersion).Str("description", m.Description).Msg("running migration")
		if err := m.Migrate(ctx, mctx); err != nil {
			wrapped := vaulterr.Wrap(vaulterr.CodeConfigMigrateFailed, err).WithContext("step", m.Description)
			return &Result{
				Status:        StatusFailed,
				FromVersion:   current,
				ToVersion:     target,
				MigrationsRun: ran,
				BackupKey:     backupKey,
				Err:           wrapped,
			}, wrapped
		}
		ran = append(ran, m.Description)
	}

	sv := SchemaVersion{Version: target, UpdatedAt: r.now(), MigrationsRun: ran}
	raw, err := json.Marshal(sv)
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.CodeConfigInvalid, err)
	}
	if err := r.storage.Write(ctx, SchemaVersionKey, raw); err != nil {
		wrapped := vaulterr.Wrap(vaulterr.CodeStorageWriteFail, err)
		return &Result{Status: StatusFailed, FromVersion: current, ToVersion: target, MigrationsRun: ran, BackupKey: backupKey, Err: wrapped}, wrapped
	}

	return &Result{
		Status:        StatusOK,
		FromVersion:   current,
		ToVersion:     target,
		MigrationsRun: ran,
		BackupKey:     backupKey,
	}, nil
}

type backupMeta struct {
	OriginalVersion int       `json:"originalVersion"`
	Timestamp       time.Time `json:"timestamp"`
	SourceKey       string    `json:"sourceKey"`
}

// backup snapshots the primary document key under a timestamped backup key
// pair before the first migration step runs. A missing document key (a
// brand-new vault) is not an error — there's nothing to back up yet.
func (r *Runner) backup(ctx context.Context, version int) (string, error) {
	ts := r.now().UnixMilli()
	snapshotKey := fmt.Sprintf("peervault-backup-v%d-%d-snapshot", version, ts)
	metaKey := snapshotKey[:len(snapshotKey)-len("snapshot")] + "meta"

	data, err := r.storage.Read(ctx, PrimaryDocumentKey)
	if vaulterr.HasCode(err, vaulterr.CodeStorageNotFound) {
		return "", nil
	}
	if err != nil {
		return "", vaulterr.Wrap(vaulterr.CodeStorageReadFailed, err)
	}
	if len(data) == 0 {
		return "", nil
	}
	if err := r.storage.Write(ctx, snapshotKey, data); err != nil {
		return "", vaulterr.Wrap(vaulterr.CodeStorageWriteFail, err)
	}
	meta := backupMeta{OriginalVersion: version, Timestamp: r.now(), SourceKey: PrimaryDocumentKey}
	metaRaw, err := json.Marshal(meta)
	if err != nil {
		return "", vaulterr.Wrap(vaulterr.CodeConfigInvalid, err)
	}
	if err := r.storage.Write(ctx, metaKey, metaRaw); err != nil {
		return "", vaulterr.Wrap(vaulterr.CodeStorageWriteFail, err)
	}
	r.logger.Info().Str("backup_key", snapshotKey).Msg("created pre-migration backup")
	return snapshotKey, nil
}

// RestoreFromBackup reverses backup: it restores the primary document key
// from the given snapshot key and resets the stored schema version to the
// version the backup was taken at.
func (r *Runner) RestoreFromBackup(ctx context.Context, snapshotKey string) error {
	data, err := r.storage.Read(ctx, snapshotKey)
	if vaulterr.HasCode(err, vaulterr.CodeStorageNotFound) {
		return vaulterr.New(vaulterr.CodeStorageNotFound, "backup snapshot not found: "+snapshotKey)
	}
	if err != nil {
		return vaulterr.Wrap(vaulterr.CodeStorageReadFailed, err)
	}
	metaKey := snapshotKey[:len(snapshotKey)-len("snapshot")] + "meta"
	metaRaw, err := r.storage.Read(ctx, metaKey)
	if err != nil && !vaulterr.HasCode(err, vaulterr.CodeStorageNotFound) {
		return vaulterr.Wrap(vaulterr.CodeStorageReadFailed, err)
	}
	var meta backupMeta
	if metaRaw != nil {
		if err := json.Unmarshal(metaRaw, &meta); err != nil {
			return vaulterr.Wrap(vaulterr.CodeStorageCorrupt, err)
		}
	}

	if err := r.storage.Write(ctx, PrimaryDocumentKey, data); err != nil {
		return vaulterr.Wrap(vaulterr.CodeStorageWriteFail, err)
	}

	sv := SchemaVersion{Version: meta.OriginalVersion, UpdatedAt: r.now()}
	svRaw, err := json.Marshal(sv)
	if err != nil {
		return vaulterr.Wrap(vaulterr.CodeConfigInvalid, err)
	}
	return r.storage.Write(ctx, SchemaVersionKey, svRaw)
}
