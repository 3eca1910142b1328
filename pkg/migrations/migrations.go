// Package migrations is the concrete, versioned schema chain for a
// peervault data directory, consumed by both cmd/peervault (auto-migrate
// on open) and cmd/peervault-migrate (the standalone tool), grounded on
// cmd/warren-migrate/main.go's single hardcoded migration generalized into
// a reusable, growable chain.
package migrations

import (
	"context"
	"encoding/json"

	"github.com/robcohen/peervault/pkg/migrate"
	"github.com/robcohen/peervault/pkg/vaulterr"
)

// Chain is the full ordered migration list. New migrations are appended
// here; Current is always the last entry's ToVersion.
func Chain() []migrate.Migration {
	return []migrate.Migration{
		{
			FromVersion: 0,
			ToVersion:   1,
			Description: "backfill peer record group membership",
			Migrate:     migratePeerGroupIDs,
		},
	}
}

// Current is the schema version cmd/peervault and cmd/peervault-migrate
// migrate a data directory to.
func Current() int {
	chain := Chain()
	return chain[len(chain)-1].ToVersion
}

// migratePeerGroupIDs adds the (now-required) GroupIDs field to every
// persisted peer record predating it, defaulting to an empty slice rather
// than leaving the JSON field absent.
func migratePeerGroupIDs(ctx context.Context, mctx *migrate.Context) error {
	keys, err := mctx.Storage.List(ctx, "peer:")
	if err != nil {
		return vaulterr.Wrap(vaulterr.CodeStorageReadFailed, err)
	}
	for i, key := range keys {
		raw, err := mctx.Storage.Read(ctx, key)
		if err != nil {
			return vaulterr.Wrap(vaulterr.CodeStorageReadFailed, err)
		}
		var generic map[string]json.RawMessage
		if err := json.Unmarshal(raw, &generic); err != nil {
			return vaulterr.Wrap(vaulterr.CodeStorageCorrupt, err)
		}
		if _, ok := generic["GroupIDs"]; !ok {
			generic["GroupIDs"] = json.RawMessage("[]")
			out, err := json.Marshal(generic)
			if err != nil {
				return vaulterr.Wrap(vaulterr.CodeConfigInvalid, err)
			}
			if err := mctx.Storage.Write(ctx, key, out); err != nil {
				return vaulterr.Wrap(vaulterr.CodeStorageWriteFail, err)
			}
		}
		if mctx.OnProgress != nil {
			mctx.OnProgress(i+1, len(keys))
		}
	}
	return nil
}
