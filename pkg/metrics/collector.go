package metrics

import (
	"context"
	"time"

	"github.com/robcohen/peervault/pkg/types"
)

// PeerLister is satisfied by pkg/peer.Manager.
type PeerLister interface {
	ListPeers(ctx context.Context) ([]types.PeerRecord, error)
}

// DocSizer is satisfied by pkg/document.Manager.
type DocSizer interface {
	DocSize() (int, error)
}

// BlobStats is satisfied by pkg/blobstore.Store.
type BlobStats interface {
	List(ctx context.Context) ([]string, error)
	TotalSize(ctx context.Context) (int64, error)
}

// Collector periodically samples the running vault's components into the
// gauges in metrics.go. It depends on narrow interfaces rather than the
// concrete pkg/peer/pkg/document/pkg/blobstore types so this package never
// needs to import them.
type Collector struct {
	peers  PeerLister
	doc    DocSizer
	blobs  BlobStats
	stopCh chan struct{}
}

// NewCollector builds a Collector. Any of peers/doc/blobs may be nil, in
// which case that dimension is skipped.
func NewCollector(peers PeerLister, doc DocSizer, blobs BlobStats) *Collector {
	return &Collector{peers: peers, doc: doc, blobs: blobs, stopCh: make(chan struct{})}
}

// Start begins periodic collection at a 15s interval, sampling once
// immediately.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	ctx := context.Background()
	c.collectPeers(ctx)
	c.collectDoc()
	c.collectBlobs(ctx)
}

func (c *Collector) collectPeers(ctx context.Context) {
	if c.peers == nil {
		return
	}
	peers, err := c.peers.ListPeers(ctx)
	if err != nil {
		return
	}
	counts := make(map[types.PeerState]int)
	for _, p := range peers {
		counts[p.State]++
	}
	for _, state := range []types.PeerState{
		types.PeerStateDisconnected, types.PeerStateConnecting,
		types.PeerStateSynced, types.PeerStateSyncing, types.PeerStateError,
	} {
		PeersTotal.WithLabelValues(string(state)).Set(float64(counts[state]))
	}
}

func (c *Collector) collectDoc() {
	if c.doc == nil {
		return
	}
	if size, err := c.doc.DocSize(); err == nil {
		DocSizeBytes.Set(float64(size))
	}
}

func (c *Collector) collectBlobs(ctx context.Context) {
	if c.blobs == nil {
		return
	}
	hashes, err := c.blobs.List(ctx)
	if err != nil {
		return
	}
	BlobCount.Set(float64(len(hashes)))
	if total, err := c.blobs.TotalSize(ctx); err == nil {
		BlobBytesTotal.Set(float64(total))
	}
}
