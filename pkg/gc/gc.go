package gc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/robcohen/peervault/pkg/storage"
	"github.com/robcohen/peervault/pkg/types"
	"github.com/robcohen/peervault/pkg/vaulterr"
)

// Config gates when the collector is allowed to run.
type Config struct {
	Enabled              bool
	MaxDocSizeMB         int
	MinHistoryDays       int
	RequirePeerConsensus bool
}

// PeerLister gives the collector read access to the peer registry without
// depending on pkg/peer directly.
type PeerLister interface {
	ListPeers(ctx context.Context) ([]types.PeerRecord, error)
}

// Compactor is satisfied by pkg/document.Manager.
type Compactor interface {
	DocSize() (int, error)
	Compact(ctx context.Context) (CompactResult, error)
	ReferencedBlobHashes() map[string]struct{}
}

// CompactResult mirrors pkg/document.CompactResult's shape so Compactor
// implementations don't need to import pkg/document's concrete type.
type CompactResult struct {
	BeforeSize int
	AfterSize  int
}

// OrphanReclaimer is satisfied by pkg/blobstore.Store.
type OrphanReclaimer interface {
	CleanOrphans(ctx context.Context, referenced map[string]struct{}) (count int, bytesReclaimed int64, err error)
}

// ConsensusReport is returned by CheckPeerConsensus.
type ConsensusReport struct {
	CanCompact bool
	Reason     string
	StalePeers []string
}

// Result reports the outcome of a completed Run.
type Result struct {
	BeforeSize         int
	AfterSize          int
	BlobsRemoved       int
	BlobBytesReclaimed int64
	Timestamp          time.Time
	Duration           time.Duration
}

const checkpointPrefix = "gc-checkpoint-"

type checkpointMeta struct {
	Timestamp     time.Time `json:"timestamp"`
	DocumentSize  int       `json:"documentSize"`
	SchemaVersion int       `json:"schemaVersion"`
}

// Collector implements the size- and freshness-gated compaction policy.
type Collector struct {
	cfg     Config
	storage storage.Adapter
	doc     Compactor
	blobs   OrphanReclaimer
	peers   PeerLister
	logger  zerolog.Logger
	now     func() time.Time

	mu sync.Mutex
}

// New builds a Collector. peers may be nil if RequirePeerConsensus is false.
func New(cfg Config, st storage.Adapter, doc Compactor, blobs OrphanReclaimer, peers PeerLister, logger zerolog.Logger) *Collector {
	return &Collector{
		cfg:     cfg,
		storage: st,
		doc:     doc,
		blobs:   blobs,
		peers:   peers,
		logger:  logger.With().Str("component", "gc").Logger(),
		now:     time.Now,
	}
}

// ShouldRun reports whether the document has crossed the configured size
// threshold.
func (c *Collector) ShouldRun() (bool, error) {
	if !c.cfg.Enabled {
		return false, nil
	}
	size, err := c.doc.DocSize()
	if err != nil {
		return false, err
	}
	threshold := int64(c.cfg.MaxDocSizeMB) * 1024 * 1024
	return int64(size) >= threshold, nil
}

// CheckPeerConsensus reports whether every known peer has synced recently
// enough that compacting the op log won't strand a peer that still needs
// history predating the compaction point.
func (c *Collector) CheckPeerConsensus(ctx context.Context) (*ConsensusReport, error) {
	if !c.cfg.RequirePeerConsensus || c.peers == nil {
		return &ConsensusReport{CanCompact: true}, nil
	}
	peers, err := c.peers.ListPeers(ctx)
	if err != nil {
		return nil, err
	}
	cutoff := c.now().Add(-time.Duration(c.cfg.MinHistoryDays) * 24 * time.Hour)

	var stale []string
	for _, p := range peers {
		if p.LastSyncTime.Before(cutoff) {
			name := p.Nickname
			if name == "" {
				name = p.NodeID
			}
			stale = append(stale, name)
		}
	}
	if len(stale) > 0 {
		return &ConsensusReport{
			CanCompact: false,
			Reason:     fmt.Sprintf("peers not recently synced: %v", stale),
			StalePeers: stale,
		}, nil
	}
	return &ConsensusReport{CanCompact: true}, nil
}

// Run executes the collection procedure: checkpoint, compact, reclaim
// orphan blobs. progress may be nil.
func (c *Collector) Run(ctx context.Context, progress func(step, total int)) (*Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := c.now()
	report := func(step int) {
		if progress != nil {
			progress(step, 3)
		}
	}

	docSize, err := c.doc.DocSize()
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.CodeStorageReadFailed, err)
	}
	if err := c.writeCheckpoint(ctx, docSize); err != nil {
		return nil, err
	}
	report(1)

	result, err := c.doc.Compact(ctx)
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.CodeSyncBadUpdate, err)
	}
	report(2)

	referenced := c.doc.ReferencedBlobHashes()
	removed, reclaimed, err := c.blobs.CleanOrphans(ctx, referenced)
	if err != nil {
		// CleanOrphans skips a blob whose metadata cannot be read, but
		// returns on the first failed delete (blobs deleted before it stay
		// deleted), so a delete error aborts the run here.
		return nil, vaulterr.Wrap(vaulterr.CodeStorageWriteFail, err)
	}
	report(3)

	c.logger.Info().
		Int("before_size", result.BeforeSize).
		Int("after_size", result.AfterSize).
		Int("blobs_removed", removed).
		Int64("bytes_reclaimed", reclaimed).
		Dur("duration", c.now().Sub(start)).
		Msg("garbage collection complete")

	return &Result{
		BeforeSize:         result.BeforeSize,
		AfterSize:          result.AfterSize,
		BlobsRemoved:       removed,
		BlobBytesReclaimed: reclaimed,
		Timestamp:          c.now(),
		Duration:           c.now().Sub(start),
	}, nil
}

// MaybeRun runs collection only if the configured gates pass, unless force
// is set. Returns (nil, nil) when gates block the run.
func (c *Collector) MaybeRun(ctx context.Context, force bool) (*Result, error) {
	if !force {
		should, err := c.ShouldRun()
		if err != nil {
			return nil, err
		}
		if !should {
			return nil, nil
		}
		report, err := c.CheckPeerConsensus(ctx)
		if err != nil {
			return nil, err
		}
		if !report.CanCompact {
			c.logger.Warn().Str("reason", report.Reason).Msg("gc blocked: peer consensus not reached")
			return nil, nil
		}
	}
	return c.Run(ctx, nil)
}

func (c *Collector) writeCheckpoint(ctx context.Context, docSize int) error {
	ts := c.now()
	key := fmt.Sprintf("%s%d", checkpointPrefix, ts.UnixMilli())

	snapshotKey := key + "-snapshot"
	metaKey := key + "-meta"

	// Matches pkg/document.SnapshotKey directly rather than importing
	// pkg/document for one constant.
	full, err := c.storage.Read(ctx, "peervault-snapshot")
	if err != nil && !vaulterr.HasCode(err, vaulterr.CodeStorageNotFound) {
		return vaulterr.Wrap(vaulterr.CodeStorageReadFailed, err)
	}
	if len(full) > 0 {
		if err := c.storage.Write(ctx, snapshotKey, full); err != nil {
			return vaulterr.Wrap(vaulterr.CodeStorageWriteFail, err)
		}
	}

	meta := checkpointMeta{Timestamp: ts, DocumentSize: docSize}
	raw, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	if err := c.storage.Write(ctx, metaKey, raw); err != nil {
		return vaulterr.Wrap(vaulterr.CodeStorageWriteFail, err)
	}
	return nil
}

// PruneCheckpoints deletes older checkpoints, keeping the newest keep by
// timestamp.
func (c *Collector) PruneCheckpoints(ctx context.Context, keep int) error {
	keys, err := c.storage.List(ctx, checkpointPrefix)
	if err != nil {
		return err
	}

	type cp struct {
		base string
		ts   int64
	}
	seen := make(map[string]int64)
	for _, k := range keys {
		base := k
		for _, suffix := range []string{"-snapshot", "-meta"} {
			if len(k) > len(suffix) && k[len(k)-len(suffix):] == suffix {
				base = k[:len(k)-len(suffix)]
				break
			}
		}
		var ts int64
		_, _ = fmt.Sscanf(base, checkpointPrefix+"%d", &ts)
		seen[base] = ts
	}

	all := make([]cp, 0, len(seen))
	for base, ts := range seen {
		all = append(all, cp{base: base, ts: ts})
	}
	if len(all) <= keep {
		return nil
	}
	// simple insertion sort descending by timestamp; checkpoint counts are small
	for i := 1; i < len(all); i++ {
		for j := i; j > 0 && all[j].ts > all[j-1].ts; j-- {
			all[j], all[j-1] = all[j-1], all[j]
		}
	}
	for _, old := range all[keep:] {
		if err := c.storage.Delete(ctx, old.base+"-snapshot"); err != nil {
			return err
		}
		if err := c.storage.Delete(ctx, old.base+"-meta"); err != nil {
			return err
		}
	}
	return nil
}
