package gc

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robcohen/peervault/pkg/storage"
	"github.com/robcohen/peervault/pkg/types"
)

type fakeDoc struct {
	size        int
	compactCall int
	result      CompactResult
	referenced  map[string]struct{}
}

func (f *fakeDoc) DocSize() (int, error) { return f.size, nil }
func (f *fakeDoc) Compact(ctx context.Context) (CompactResult, error) {
	f.compactCall++
	return f.result, nil
}
func (f *fakeDoc) ReferencedBlobHashes() map[string]struct{} { return f.referenced }

type fakeBlobs struct {
	removed   int
	reclaimed int64
}

func (f *fakeBlobs) CleanOrphans(ctx context.Context, referenced map[string]struct{}) (int, int64, error) {
	return f.removed, f.reclaimed, nil
}

type fakePeers struct {
	peers []types.PeerRecord
}

func (f *fakePeers) ListPeers(ctx context.Context) ([]types.PeerRecord, error) {
	return f.peers, nil
}

func TestShouldRunGatesOnSizeAndEnabled(t *testing.T) {
	doc := &fakeDoc{size: 10 * 1024 * 1024}
	c := New(Config{Enabled: true, MaxDocSizeMB: 5}, storage.NewMemAdapter(), doc, &fakeBlobs{}, nil, zerolog.Nop())
	should, err := c.ShouldRun()
	require.NoError(t, err)
	assert.True(t, should)

	c2 := New(Config{Enabled: false, MaxDocSizeMB: 5}, storage.NewMemAdapter(), doc, &fakeBlobs{}, nil, zerolog.Nop())
	should2, err := c2.ShouldRun()
	require.NoError(t, err)
	assert.False(t, should2)
}

func TestCheckPeerConsensusFlagsStalePeers(t *testing.T) {
	ctx := context.Background()
	stale := types.PeerRecord{NodeID: "p1", Nickname: "laptop", LastSyncTime: time.Now().Add(-40 * 24 * time.Hour)}
	fresh := types.PeerRecord{NodeID: "p2", Nickname: "desktop", LastSyncTime: time.Now()}

	cfg := Config{RequirePeerConsensus: true, MinHistoryDays: 30}
	c := New(cfg, storage.NewMemAdapter(), &fakeDoc{}, &fakeBlobs{}, &fakePeers{peers: []types.PeerRecord{stale, fresh}}, zerolog.Nop())

	report, err := c.CheckPeerConsensus(ctx)
	require.NoError(t, err)
	assert.False(t, report.CanCompact)
	assert.Contains(t, report.Reason, "laptop")
}

func TestMaybeRunSkipsWhenBlockedByConsensus(t *testing.T) {
	ctx := context.Background()
	stale := types.PeerRecord{NodeID: "p1", Nickname: "laptop", LastSyncTime: time.Now().Add(-40 * 24 * time.Hour)}
	doc := &fakeDoc{size: 10 * 1024 * 1024}
	cfg := Config{Enabled: true, MaxDocSizeMB: 5, RequirePeerConsensus: true, MinHistoryDays: 30}
	c := New(cfg, storage.NewMemAdapter(), doc, &fakeBlobs{}, &fakePeers{peers: []types.PeerRecord{stale}}, zerolog.Nop())

	result, err := c.MaybeRun(ctx, false)
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.Equal(t, 0, doc.compactCall)
}

func TestMaybeRunForceBypassesGates(t *testing.T) {
	ctx := context.Background()
	doc := &fakeDoc{size: 1, result: CompactResult{BeforeSize: 100, AfterSize: 10}}
	blobs := &fakeBlobs{removed: 2, reclaimed: 512}
	c := New(Config{Enabled: false}, storage.NewMemAdapter(), doc, blobs, nil, zerolog.Nop())

	result, err := c.MaybeRun(ctx, true)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, 100, result.BeforeSize)
	assert.Equal(t, 10, result.AfterSize)
	assert.Equal(t, 2, result.BlobsRemoved)
	assert.Equal(t, int64(512), result.BlobBytesReclaimed)
	assert.Equal(t, 1, doc.compactCall)
}

func TestPruneCheckpointsKeepsNewest(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemAdapter()
	c := New(Config{}, st, &fakeDoc{}, &fakeBlobs{}, nil, zerolog.Nop())

	for _, ts := range []int64{1000, 2000, 3000} {
		base := "gc-checkpoint-" + time.UnixMilli(ts).Format("20060102")
		_ = base
	}
	// write three checkpoints directly with distinct numeric timestamps
	for _, ts := range []int64{1000, 2000, 3000} {
		key := checkpointPrefix + intToStr(ts)
		require.NoError(t, st.Write(ctx, key+"-snapshot", []byte("data")))
		require.NoError(t, st.Write(ctx, key+"-meta", []byte("{}")))
	}

	require.NoError(t, c.PruneCheckpoints(ctx, 1))

	remaining, err := st.List(ctx, checkpointPrefix)
	require.NoError(t, err)
	assert.Len(t, remaining, 2) // newest checkpoint's snapshot + meta
}

func intToStr(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
