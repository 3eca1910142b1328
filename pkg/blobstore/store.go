package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/robcohen/peervault/pkg/storage"
	"github.com/robcohen/peervault/pkg/types"
	"github.com/robcohen/peervault/pkg/vaulterr"
)

// DefaultMaxBlobSize is the default cap on a single blob's size (500 MiB).
const DefaultMaxBlobSize = 500 * 1024 * 1024

const (
	blobKeyPrefix     = "blob:"
	blobMetaKeyPrefix = "blob-meta:"

	getMissingConcurrency = 20
	sizeSumConcurrency    = 10
)

// Store is peervault's content-addressed blob store, backed by a
// pkg/storage.Adapter.
type Store struct {
	adapter     storage.Adapter
	maxBlobSize int64

	mu        sync.Mutex
	sizeKnown bool
	sizeTotal int64
}

// New creates a Store backed by adapter. maxBlobSize <= 0 uses
// DefaultMaxBlobSize.
func New(adapter storage.Adapter, maxBlobSize int64) *Store {
	if maxBlobSize <= 0 {
		maxBlobSize = DefaultMaxBlobSize
	}
	return &Store{adapter: adapter, maxBlobSize: maxBlobSize}
}

func hashOf(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// Add stores content, returning its hash. If the hash already exists its
// reference count is incremented rather than storing the bytes again.
func (s *Store) Add(ctx context.Context, content []byte, mimeType string) (string, error) {
	if int64(len(content)) > s.maxBlobSize {
		return "", vaulterr.New(vaulterr.CodeBlobTooLarge, "blob exceeds maximum size")
	}

	hash := hashOf(content)
	metaKey := blobMetaKeyPrefix + hash

	meta, err := s.readMeta(ctx, metaKey)
	if err != nil && !isNotFound(err) {
		return "", err
	}
	if meta != nil {
		meta.RefCount++
		return hash, s.writeMeta(ctx, metaKey, meta)
	}

	if err := s.adapter.Write(ctx, blobKeyPrefix+hash, content); err != nil {
		return "", vaulterr.Wrap(vaulterr.CodeStorageWriteFail, err)
	}
	meta = &types.BlobMeta{
		Hash:      hash,
		Size:      int64(len(content)),
		MimeType:  mimeType,
		RefCount:  1,
		CreatedAt: time.Now(),
	}
	if err := s.writeMeta(ctx, metaKey, meta); err != nil {
		return "", err
	}
	s.invalidateSize()
	return hash, nil
}

// Get returns the raw bytes for hash.
func (s *Store) Get(ctx context.Context, hash string) ([]byte, error) {
	data, err := s.adapter.Read(ctx, blobKeyPrefix+hash)
	if err != nil {
		if isNotFound(err) {
			return nil, vaulterr.New(vaulterr.CodeBlobMissing, hash)
		}
		return nil, err
	}
	return data, nil
}

// Has reports whether hash is present in the store.
func (s *Store) Has(ctx context.Context, hash string) (bool, error) {
	return s.adapter.Exists(ctx, blobKeyPrefix+hash)
}

// GetMeta returns the stored metadata for hash.
func (s *Store) GetMeta(ctx context.Context, hash string) (*types.BlobMeta, error) {
	meta, err := s.readMeta(ctx, blobMetaKeyPrefix+hash)
	if err != nil {
		if isNotFound(err) {
			return nil, vaulterr.New(vaulterr.CodeBlobMissing, hash)
		}
		return nil, err
	}
	return meta, nil
}

// List returns the hashes of every blob currently stored.
func (s *Store) List(ctx context.Context) ([]string, error) {
	keys, err := s.adapter.List(ctx, blobMetaKeyPrefix)
	if err != nil {
		return nil, err
	}
	hashes := make([]string, len(keys))
	for i, k := range keys {
		hashes[i] = k[len(blobMetaKeyPrefix):]
	}
	return hashes, nil
}

// Release decrements hash's reference count, deleting the blob entirely
// once it reaches zero.
func (s *Store) Release(ctx context.Context, hash string) error {
	metaKey := blobMetaKeyPrefix + hash
	meta, err := s.readMeta(ctx, metaKey)
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return err
	}
	meta.RefCount--
	if meta.RefCount <= 0 {
		if err := s.adapter.Delete(ctx, blobKeyPrefix+hash); err != nil {
			return err
		}
		if err := s.adapter.Delete(ctx, metaKey); err != nil {
			return err
		}
		s.invalidateSize()
		return nil
	}
	return s.writeMeta(ctx, metaKey, meta)
}

// GetMissing returns the subset of hashes not present in the store,
// probed with bounded concurrency so a large gossip batch doesn't open
// unbounded goroutines.
func (s *Store) GetMissing(ctx context.Context, hashes []string) []string {
	type result struct {
		hash    string
		present bool
	}
	results := make(chan result, len(hashes))
	sem := make(chan struct{}, getMissingConcurrency)
	var wg sync.WaitGroup

	for _, h := range hashes {
		wg.Add(1)
		sem <- struct{}{}
		go func(hash string) {
			defer wg.Done()
			defer func() { <-sem }()
			present, _ := s.Has(ctx, hash)
			results <- result{hash: hash, present: present}
		}(h)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var missing []string
	for r := range results {
		if !r.present {
			missing = append(missing, r.hash)
		}
	}
	return missing
}

// FindOrphans returns the hashes of stored blobs not present in
// referenced, the set of hashes currently reachable from the file tree.
func (s *Store) FindOrphans(ctx context.Context, referenced map[string]struct{}) ([]string, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	var orphans []string
	for _, h := range all {
		if _, ok := referenced[h]; !ok {
			orphans = append(orphans, h)
		}
	}
	return orphans, nil
}

// CleanOrphans deletes every blob not present in referenced, returning the
// count removed and the total bytes reclaimed.
func (s *Store) CleanOrphans(ctx context.Context, referenced map[string]struct{}) (int, int64, error) {
	orphans, err := s.FindOrphans(ctx, referenced)
	if err != nil {
		return 0, 0, err
	}

	var reclaimed int64
	removed := 0
	for _, h := range orphans {
		meta, err := s.GetMeta(ctx, h)
		if err != nil {
			continue
		}
		if err := s.adapter.Delete(ctx, blobKeyPrefix+h); err != nil {
			return 0, 0, err
		}
		if err := s.adapter.Delete(ctx, blobMetaKeyPrefix+h); err != nil {
			return 0, 0, err
		}
		reclaimed += meta.Size
		removed++
	}
	if removed > 0 {
		s.invalidateSize()
	}
	return removed, reclaimed, nil
}

// TotalSize returns the sum of every stored blob's size, probed with
// bounded concurrency and cached until the next mutating call.
func (s *Store) TotalSize(ctx context.Context) (int64, error) {
	s.mu.Lock()
	if s.sizeKnown {
		total := s.sizeTotal
		s.mu.Unlock()
		return total, nil
	}
	s.mu.Unlock()

	hashes, err := s.List(ctx)
	if err != nil {
		return 0, err
	}

	sizes := make(chan int64, len(hashes))
	sem := make(chan struct{}, sizeSumConcurrency)
	var wg sync.WaitGroup
	for _, h := range hashes {
		wg.Add(1)
		sem <- struct{}{}
		go func(hash string) {
			defer wg.Done()
			defer func() { <-sem }()
			if meta, err := s.GetMeta(ctx, hash); err == nil {
				sizes <- meta.Size
			}
		}(h)
	}
	go func() {
		wg.Wait()
		close(sizes)
	}()

	var total int64
	for sz := range sizes {
		total += sz
	}

	s.mu.Lock()
	s.sizeKnown = true
	s.sizeTotal = total
	s.mu.Unlock()

	return total, nil
}

func (s *Store) invalidateSize() {
	s.mu.Lock()
	s.sizeKnown = false
	s.mu.Unlock()
}

func (s *Store) readMeta(ctx context.Context, key string) (*types.BlobMeta, error) {
	data, err := s.adapter.Read(ctx, key)
	if err != nil {
		return nil, err
	}
	var meta types.BlobMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, vaulterr.Wrap(vaulterr.CodeStorageCorrupt, err)
	}
	return &meta, nil
}

func (s *Store) writeMeta(ctx context.Context, key string, meta *types.BlobMeta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return s.adapter.Write(ctx, key, data)
}

func isNotFound(err error) bool {
	return vaulterr.HasCode(err, vaulterr.CodeStorageNotFound)
}
