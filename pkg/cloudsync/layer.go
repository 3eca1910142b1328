package cloudsync

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/robcohen/peervault/pkg/crypto"
	"github.com/robcohen/peervault/pkg/document"
	"github.com/robcohen/peervault/pkg/log"
	"github.com/robcohen/peervault/pkg/storage"
	"github.com/robcohen/peervault/pkg/types"
	"github.com/robcohen/peervault/pkg/vaulterr"
)

const (
	cursorKey = "cloudsync-cursor"
	pulledKey = "cloudsync-last-pulled"
)

// Layer publishes a vault's operation log to, and imports it from, a bucket
// shared with other devices that may never connect to each other directly.
// PathPrefix scopes every object key under <PathPrefix>/<vaultID>/.
type Layer struct {
	client         *Client
	pathPrefix     string
	suite          crypto.Suite
	keyFingerprint string
	doc            *document.Manager
	local          storage.Adapter // this device's own local state, for cursor bookkeeping
	logger         zerolog.Logger
	now            func() time.Time
}

// New builds a Layer. local is the vault's own storage.Adapter, used only
// to persist this device's push/pull cursors (never uploaded). keyFingerprint
// is pkg/crypto.Fingerprint of the vault's encryption key, published in the
// manifest so a peer can confirm out-of-band that two devices share a key
// before trusting pulled deltas.
func New(client *Client, pathPrefix string, suite crypto.Suite, keyFingerprint string, doc *document.Manager, local storage.Adapter) *Layer {
	return &Layer{
		client:         client,
		pathPrefix:     strings.Trim(pathPrefix, "/"),
		suite:          suite,
		keyFingerprint: keyFingerprint,
		doc:            doc,
		local:          local,
		logger:         log.WithComponent("cloudsync"),
		now:            time.Now,
	}
}

func (l *Layer) vaultPrefix() string {
	return l.pathPrefix + "/" + l.doc.VaultID() + "/"
}

func (l *Layer) manifestKey() string { return l.vaultPrefix() + "manifest.json" }
func (l *Layer) headKey() string     { return l.vaultPrefix() + "refs/HEAD" }
func (l *Layer) commitKey(hash string) string {
	return l.vaultPrefix() + "commits/" + hash + ".json"
}
func (l *Layer) deltaKey(id string) string {
	return l.vaultPrefix() + "deltas/" + id + ".enc"
}

type commitRecord struct {
	Hash            string    `json:"hash"`
	PreviousCommit  string    `json:"previousCommit"`
	DeltaID         string    `json:"deltaId"`
	Timestamp       time.Time `json:"timestamp"`
}

// Push exports every local change since the last Push, encrypts it, and
// uploads it as a new delta object, then advances refs/HEAD and the
// manifest to point at it. Returns (false, nil) if there was nothing new
// to push.
func (l *Layer) Push(ctx context.Context) (bool, error) {
	manifest, err := l.readManifest(ctx)
	if err != nil {
		return false, err
	}

	since, err := l.readCursor(ctx)
	if err != nil {
		return false, err
	}
	updates, err := l.doc.ExportUpdates(since)
	if err != nil {
		return false, vaulterr.Wrap(vaulterr.CodeSyncBadUpdate, err)
	}
	var probe struct {
		Ops []json.RawMessage `json:"ops"`
	}
	if err := json.Unmarshal(updates, &probe); err == nil && len(probe.Ops) == 0 {
		return false, nil
	}

	sealed, err := l.suite.Seal(updates)
	if err != nil {
		return false, err
	}

	ts := l.now().UTC()
	hash := hexSHA256(updates)
	deltaID := fmt.Sprintf("%d-%s", ts.UnixMilli(), hash[:16])

	if err := l.client.Put(ctx, l.deltaKey(deltaID), sealed); err != nil {
		return false, err
	}

	commit := commitRecord{Hash: hash, PreviousCommit: manifest.HeadCommit, DeltaID: deltaID, Timestamp: ts}
	commitRaw, err := json.Marshal(commit)
	if err != nil {
		return false, err
	}
	if err := l.client.Put(ctx, l.commitKey(hash), commitRaw); err != nil {
		return false, err
	}
	if err := l.client.Put(ctx, l.headKey(), []byte(hash)); err != nil {
		return false, err
	}

	manifest.HeadCommit = hash
	manifest.LatestDeltaID = deltaID
	manifest.UpdatedAt = ts
	manifest.VaultID = l.doc.VaultID()
	manifest.KeyFingerprint = l.keyFingerprint
	manifest.Sequence++
	if err := l.writeManifest(ctx, manifest); err != nil {
		return false, err
	}

	current := l.doc.OplogVersion()
	if err := l.writeCursor(ctx, current); err != nil {
		return false, err
	}

	l.logger.Info().Str("delta_id", deltaID).Int("bytes", len(updates)).Msg("cloudsync push complete")
	return true, nil
}

// Pull fetches every delta newer than this device's last-pulled delta and
// imports it into the local document, in ascending order. Returns (false,
// nil) if the remote manifest doesn't point anywhere new.
func (l *Layer) Pull(ctx context.Context) (bool, error) {
	manifest, err := l.readManifest(ctx)
	if err != nil {
		return false, err
	}
	if manifest.LatestDeltaID == "" {
		return false, nil
	}

	lastPulled, err := l.readLastPulled(ctx)
	if err != nil {
		return false, err
	}
	if lastPulled == manifest.LatestDeltaID {
		return false, nil
	}

	keys, err := l.client.List(ctx, l.vaultPrefix()+"deltas/")
	if err != nil {
		return false, err
	}
	sort.Strings(keys) // delta IDs are "<unixMilli>-<hash prefix>", sort by timestamp prefix

	applied := false
	for _, key := range keys {
		id := strings.TrimSuffix(strings.TrimPrefix(key, l.vaultPrefix()+"deltas/"), ".enc")
		if !deltaNewerThan(id, lastPulled) {
			continue
		}
		sealed, err := l.client.Get(ctx, key)
		if err != nil {
			return applied, err
		}
		plaintext, err := l.suite.Open(sealed)
		if err != nil {
			return applied, vaulterr.Wrap(vaulterr.CodeCryptoTagFailed, err)
		}
		if err := l.doc.ImportUpdates(plaintext); err != nil {
			return applied, vaulterr.Wrap(vaulterr.CodeSyncBadUpdate, err)
		}
		applied = true
	}

	if err := l.writeLastPulled(ctx, manifest.LatestDeltaID); err != nil {
		return applied, err
	}
	l.logger.Info().Str("latest_delta_id", manifest.LatestDeltaID).Msg("cloudsync pull complete")
	return applied, nil
}

// deltaNewerThan compares two "<unixMilli>-<hashprefix>" delta IDs by their
// numeric timestamp prefix; an empty baseline means "everything is newer".
func deltaNewerThan(id, baseline string) bool {
	if baseline == "" {
		return true
	}
	idTs, _ := strconv.ParseInt(strings.SplitN(id, "-", 2)[0], 10, 64)
	baseTs, _ := strconv.ParseInt(strings.SplitN(baseline, "-", 2)[0], 10, 64)
	return idTs > baseTs
}

func (l *Layer) readManifest(ctx context.Context) (*types.CloudManifest, error) {
	raw, err := l.client.Get(ctx, l.manifestKey())
	if vaulterr.HasCode(err, vaulterr.CodeStorageNotFound) {
		return &types.CloudManifest{FormatVersion: 1, VaultID: l.doc.VaultID(), CreatedAt: l.now().UTC()}, nil
	}
	if err != nil {
		return nil, err
	}
	var m types.CloudManifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, vaulterr.Wrap(vaulterr.CodeStorageCorrupt, err)
	}
	return &m, nil
}

func (l *Layer) writeManifest(ctx context.Context, m *types.CloudManifest) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return l.client.Put(ctx, l.manifestKey(), raw)
}

func (l *Layer) readCursor(ctx context.Context) (*document.Version, error) {
	raw, err := l.local.Read(ctx, cursorKey)
	if vaulterr.HasCode(err, vaulterr.CodeStorageNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var v document.Version
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, vaulterr.Wrap(vaulterr.CodeStorageCorrupt, err)
	}
	return &v, nil
}

func (l *Layer) writeCursor(ctx context.Context, v document.Version) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return l.local.Write(ctx, cursorKey, raw)
}

func (l *Layer) readLastPulled(ctx context.Context) (string, error) {
	raw, err := l.local.Read(ctx, pulledKey)
	if vaulterr.HasCode(err, vaulterr.CodeStorageNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func (l *Layer) writeLastPulled(ctx context.Context, id string) error {
	return l.local.Write(ctx, pulledKey, []byte(id))
}
