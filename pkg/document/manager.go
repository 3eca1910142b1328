package document

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/robcohen/peervault/pkg/log"
	"github.com/robcohen/peervault/pkg/storage"
	"github.com/robcohen/peervault/pkg/textdiff"
	"github.com/robcohen/peervault/pkg/vaulterr"
)

// SnapshotKey is the fixed storage key Save/Initialize use for the full
// document snapshot.
const SnapshotKey = "peervault-snapshot"

const changeBufferSize = 256

// Manager is the CRDT document manager: the single owner of a vault's op
// log and the derived file tree built from it. All mutation funnels
// through its methods; callers never touch the tree directly.
type Manager struct {
	mu sync.Mutex

	storage storage.Adapter
	logger  zerolog.Logger
	actor   string
	vaultID string

	log     []Op
	counter uint64
	lamport uint64
	commits []Commit

	tree          map[NodeID]*Node
	texts         map[NodeID]*textCRDT
	children      map[NodeID][]NodeID
	createLamport map[NodeID]uint64
	pathByID      map[NodeID]string
	idByPath      map[string]NodeID

	changesMu sync.Mutex
	changes   chan ChangeEvent

	subsMu sync.Mutex
	subs   map[chan []byte]struct{}
}

// snapshotPayload is the on-disk / wire shape for both Save (full
// snapshot) and ExportUpdates (filtered log).
type snapshotPayload struct {
	VaultID string `json:"vaultId"`
	Actor   string `json:"actor"`
	Counter uint64 `json:"counter"`
	Lamport uint64 `json:"lamport"`
	Log     []Op   `json:"log"`
	Commits []Commit `json:"commits"`
}

type updatePayload struct {
	Ops []Op `json:"ops"`
}

// New constructs a Manager for actor (a stable per-device identifier,
// typically the local node ID) backed by adapter.
func New(adapter storage.Adapter, actor string) *Manager {
	return &Manager{
		storage: adapter,
		actor:   actor,
		logger:  log.WithComponent("document"),
		changes: make(chan ChangeEvent, changeBufferSize),
		subs:    make(map[chan []byte]struct{}),
	}
}

// Initialize loads the persisted snapshot, or creates a fresh vault
// identity if none exists, then rebuilds the tree and path cache.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := m.storage.Read(ctx, SnapshotKey)
	if err != nil {
		if !vaulterr.HasCode(err, vaulterr.CodeStorageNotFound) {
			return err
		}
		m.vaultID = uuid.New().String()
		m.resetTree()
		m.logger.Info().Str("vault_id", m.vaultID).Msg("initialized fresh vault")
		return nil
	}

	var payload snapshotPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return vaulterr.Wrap(vaulterr.CodeStorageCorrupt, err)
	}
	m.vaultID = payload.VaultID
	m.counter = payload.Counter
	m.lamport = payload.Lamport
	m.log = payload.Log
	m.commits = payload.Commits
	if err := m.rebuildTree(); err != nil {
		return err
	}
	m.logger.Info().Str("vault_id", m.vaultID).Int("ops", len(m.log)).Msg("loaded vault snapshot")
	return nil
}

// VaultID returns the vault's identity, adopted from a peer during
// handshake if this device's vault started empty.
func (m *Manager) VaultID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.vaultID
}

// AdoptVaultID overwrites this replica's vault identity, used when
// pkg/syncsession's handshake decides to adopt a non-empty peer's vault.
func (m *Manager) AdoptVaultID(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vaultID = id
}

// Changes returns the channel file-change events (local and imported) are
// published on. The channel is never closed by the manager.
func (m *Manager) Changes() <-chan ChangeEvent { return m.changes }

// Subscribe registers a channel that receives the serialized delta of
// every local commit, for pkg/syncsession to forward to live peers. The
// channel holds up to 64 deltas and delivery is non-blocking: when it is
// full the delta is dropped for that subscriber rather than stalling local
// mutations. Dropped deltas are not coalesced or re-sent on the live
// session; the peer receives those ops at the next session's catchup.
func (m *Manager) Subscribe() <-chan []byte {
	ch := make(chan []byte, 64)
	m.subsMu.Lock()
	m.subs[ch] = struct{}{}
	m.subsMu.Unlock()
	return ch
}

// Unsubscribe removes a channel registered via Subscribe.
func (m *Manager) Unsubscribe(ch <-chan []byte) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for c := range m.subs {
		if c == ch {
			delete(m.subs, c)
			close(c)
			return
		}
	}
}

func (m *Manager) notifySubscribers(ops []Op) {
	data, err := json.Marshal(updatePayload{Ops: ops})
	if err != nil {
		m.logger.Error().Err(err).Msg("marshal local update for subscribers")
		return
	}
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for ch := range m.subs {
		select {
		case ch <- data:
		default:
			m.logger.Warn().Msg("dropping local update: subscriber buffer full")
		}
	}
}

func (m *Manager) emitChange(id NodeID, origin ChangeOrigin) {
	node := m.tree[id]
	path := m.pathByID[id]
	var snapshot *Node
	if node != nil {
		cp := *node
		snapshot = &cp
	}
	ev := ChangeEvent{Path: path, Node: snapshot, Origin: origin}
	select {
	case m.changes <- ev:
	default:
		m.logger.Warn().Str("path", path).Msg("dropping change event: channel full")
	}
}

// newOp allocates the next local OpID/Lamport and stamps the op with the
// current causal frontier as its parent set.
func (m *Manager) newOp(kind OpKind, now time.Time) Op {
	m.counter++
	m.lamport++
	return Op{
		ID:        OpID{Actor: m.actor, Counter: m.counter},
		Parent:    m.computeFrontier(),
		Actor:     m.actor,
		Lamport:   m.lamport,
		Timestamp: now,
		Kind:      kind,
	}
}

// commitOp appends op to the log and applies it to derived state. A local
// mutation should always apply cleanly since the caller resolved its
// dependencies first; an error rolls the log append back.
func (m *Manager) commitOp(op Op) (Op, error) {
	m.log = append(m.log, op)
	ready, err := m.applyOp(op)
	if err != nil || !ready {
		m.log = m.log[:len(m.log)-1]
		if err == nil {
			err = vaulterr.New(vaulterr.CodeSyncBadUpdate, "local op could not be applied")
		}
		return op, err
	}
	return op, nil
}

// finishLocalMutation records a history Commit, refreshes the path cache,
// emits change events, and notifies local-update subscribers. Called once
// per top-level mutator call (which may have produced several ops, e.g.
// a multi-character text edit).
func (m *Manager) finishLocalMutation(ops []Op, message string) {
	if len(ops) == 0 {
		return
	}
	m.resolveNameConflicts()
	m.rebuildPathCache()

	last := ops[len(ops)-1]
	ids := make([]OpID, len(ops))
	for i, op := range ops {
		ids[i] = op.ID
	}
	m.commits = append(m.commits, Commit{
		Frontier:  m.computeFrontier(),
		Timestamp: last.Timestamp,
		Actor:     m.actor,
		Lamport:   last.Lamport,
		Message:   message,
		OpIDs:     ids,
	})

	touched := touchedNodes(ops)
	for _, id := range touched {
		m.emitChange(id, OriginLocal)
	}
	m.notifySubscribers(ops)
}

func touchedNodes(ops []Op) []NodeID {
	seen := make(map[NodeID]bool)
	var out []NodeID
	for _, op := range ops {
		var id NodeID
		if op.Kind == OpSnapshot {
			for _, ns := range op.Snapshot {
				if !seen[ns.ID] {
					seen[ns.ID] = true
					out = append(out, ns.ID)
				}
			}
			continue
		}
		id = op.NodeID
		if id != "" && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// computeFrontier recomputes the heads of the op DAG: op IDs not named as
// a causal parent by any other op in the log.
func (m *Manager) computeFrontier() Frontier {
	referenced := make(map[OpID]bool, len(m.log))
	for _, op := range m.log {
		for _, p := range op.Parent {
			referenced[p] = true
		}
	}
	var f Frontier
	for _, op := range m.log {
		if !referenced[op.ID] {
			f = append(f, op.ID)
		}
	}
	return f
}

// computeVersion returns the version vector (max counter per actor)
// implied by the current log.
func (m *Manager) computeVersion() Version {
	v := make(Version)
	for _, op := range m.log {
		if op.ID.Counter > v[op.ID.Actor] {
			v[op.ID.Actor] = op.ID.Counter
		}
	}
	return v
}

// OplogVersion returns the current version vector.
func (m *Manager) OplogVersion() Version {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.computeVersion()
}

// OplogFrontiers returns the current frontier.
func (m *Manager) OplogFrontiers() Frontier {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.computeFrontier()
}

// --- File tree mutators -----------------------------------------------

// HandleFileCreate registers a new text file at path, implicitly creating
// any missing ancestor folders.
func (m *Manager) HandleFileCreate(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	segments := splitPath(path)
	if len(segments) == 0 {
		return vaulterr.New(vaulterr.CodeSyncBadUpdate, "empty path")
	}
	name := segments[len(segments)-1]
	now := time.Now()
	parent := m.ensureParentFolders(segments[:len(segments)-1], now)

	if existing, ok := m.childNamed(parent, name); ok {
		op := m.newOp(OpSetMeta, now)
		op.NodeID = existing
		if _, err := m.commitOp(op); err != nil {
			return err
		}
		m.finishLocalMutation([]Op{op}, "create "+path+" (already present)")
		return nil
	}

	op := m.newOp(OpCreate, now)
	op.NodeID = newNodeID()
	op.ParentID = parent
	op.Name = name
	op.NodeKind = NodeFile
	if _, err := m.commitOp(op); err != nil {
		return err
	}
	m.finishLocalMutation([]Op{op}, "create "+path)
	return nil
}

// HandleFileModify touches path's modification time. Content changes flow
// through SetTextContent/SetBlobHash, which update mtime themselves; this
// covers modify events that carry no content (e.g. a touch).
func (m *Manager) HandleFileModify(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.idByPath[path]
	if !ok {
		m.logger.Debug().Str("path", path).Msg("modify: no such path, ignoring")
		return nil
	}
	op := m.newOp(OpSetMeta, time.Now())
	op.NodeID = id
	if _, err := m.commitOp(op); err != nil {
		return err
	}
	m.finishLocalMutation([]Op{op}, "modify "+path)
	return nil
}

// HandleFileDelete soft-deletes the node at path.
func (m *Manager) HandleFileDelete(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.idByPath[path]
	if !ok {
		m.logger.Debug().Str("path", path).Msg("delete: no such path, ignoring")
		return nil
	}
	op := m.newOp(OpDelete, time.Now())
	op.NodeID = id
	op.Deleted = true
	if _, err := m.commitOp(op); err != nil {
		return err
	}
	m.finishLocalMutation([]Op{op}, "delete "+path)
	return nil
}

// HandleFileRename moves/renames the node at oldPath to newPath,
// implicitly creating missing ancestor folders under newPath and
// rejecting a move that would make the node its own ancestor.
func (m *Manager) HandleFileRename(ctx context.Context, oldPath, newPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.idByPath[oldPath]
	if !ok {
		m.logger.Debug().Str("path", oldPath).Msg("rename: no such path, ignoring")
		return nil
	}
	segments := splitPath(newPath)
	if len(segments) == 0 {
		return vaulterr.New(vaulterr.CodeSyncBadUpdate, "empty destination path")
	}
	name := segments[len(segments)-1]
	now := time.Now()
	newParent := m.ensureParentFolders(segments[:len(segments)-1], now)

	op := m.newOp(OpRename, now)
	op.NodeID = id
	op.NewParentID = newParent
	op.NewName = name
	if _, err := m.commitOp(op); err != nil {
		return err
	}
	m.finishLocalMutation([]Op{op}, "rename "+oldPath+" -> "+newPath)
	return nil
}

// SetTextContent diffs newText against path's current content via
// pkg/textdiff and applies the minimal set of character ops, keeping
// transmitted updates proportional to the size of the change.
func (m *Manager) SetTextContent(ctx context.Context, path, newText string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.idByPath[path]
	if !ok {
		m.logger.Debug().Str("path", path).Msg("setTextContent: no such path, ignoring")
		return nil
	}
	node := m.tree[id]
	if node.Kind != NodeFile {
		return vaulterr.New(vaulterr.CodeSyncBadUpdate, "setTextContent on non-file node")
	}
	text := m.texts[id]
	old := text.String()
	edits := textdiff.ComputeTextEdits(old, newText)
	if len(edits) == 0 {
		return nil
	}

	now := time.Now()
	var ops []Op
	// Descending position order, per spec §4.4, so earlier edits' anchors
	// in the *visible* sequence stay valid as later ones are applied.
	for i := len(edits) - 1; i >= 0; i-- {
		e := edits[i]
		for _, charID := range text.visibleIDsFrom(e.Pos, e.DeleteCount) {
			op := m.newOp(OpTextDelete, now)
			op.NodeID = id
			op.CharID = charID
			if _, err := m.commitOp(op); err != nil {
				return err
			}
			ops = append(ops, op)
		}
		anchor := text.lastVisibleIDBefore(e.Pos)
		for _, r := range e.InsertText {
			op := m.newOp(OpTextInsert, now)
			op.NodeID = id
			op.CharID = op.ID
			op.After = anchor
			op.Char = r
			if _, err := m.commitOp(op); err != nil {
				return err
			}
			ops = append(ops, op)
			anchor = op.CharID
		}
	}
	m.finishLocalMutation(ops, "edit "+path)
	return nil
}

// SetBlobHash flips the node at path to a binary file referencing hash in
// the blob store.
func (m *Manager) SetBlobHash(ctx context.Context, path, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.idByPath[path]
	if !ok {
		m.logger.Debug().Str("path", path).Msg("setBlobHash: no such path, ignoring")
		return nil
	}
	op := m.newOp(OpSetBlob, time.Now())
	op.NodeID = id
	op.BlobHash = hash
	if _, err := m.commitOp(op); err != nil {
		return err
	}
	m.finishLocalMutation([]Op{op}, "set blob "+path)
	return nil
}

// --- Read accessors ------------------------------------------------------

// ListAllPaths returns every live (non-deleted) path in the tree.
func (m *Manager) ListAllPaths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	paths := make([]string, 0, len(m.idByPath))
	for p := range m.idByPath {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// GetNode returns the node at path, or (nil,false) if it doesn't exist or
// is deleted.
func (m *Manager) GetNode(path string) (*Node, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.idByPath[path]
	if !ok {
		return nil, false
	}
	cp := *m.tree[id]
	return &cp, true
}

// GetContent returns the text content of the file at path.
func (m *Manager) GetContent(path string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.idByPath[path]
	if !ok {
		return "", vaulterr.New(vaulterr.CodeStorageNotFound, path)
	}
	if m.tree[id].Kind != NodeFile {
		return "", vaulterr.New(vaulterr.CodeSyncBadUpdate, "not a text file: "+path)
	}
	return m.tree[id].Text, nil
}

// GetBlobHash returns the blob hash of the binary file at path.
func (m *Manager) GetBlobHash(path string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.idByPath[path]
	if !ok {
		return "", vaulterr.New(vaulterr.CodeStorageNotFound, path)
	}
	if m.tree[id].Kind != NodeBinary {
		return "", vaulterr.New(vaulterr.CodeSyncBadUpdate, "not a binary file: "+path)
	}
	return m.tree[id].BlobHash, nil
}

// ReferencedBlobHashes returns the set of blob hashes referenced by every
// live binary node in the tree, used by pkg/gc's orphan sweep and by
// pkg/syncsession's blob-catchup phase.
func (m *Manager) ReferencedBlobHashes() map[string]struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]struct{})
	for _, n := range m.tree {
		if !n.Deleted && n.Kind == NodeBinary && n.BlobHash != "" {
			out[n.BlobHash] = struct{}{}
		}
	}
	return out
}

// DocSize returns the size in bytes of the current full snapshot
// encoding, used by pkg/gc to decide whether compaction should run.
func (m *Manager) DocSize() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, err := json.Marshal(snapshotPayload{
		VaultID: m.vaultID, Actor: m.actor, Counter: m.counter,
		Lamport: m.lamport, Log: m.log, Commits: m.commits,
	})
	if err != nil {
		return 0, err
	}
	return len(data), nil
}

// --- Export / import ----------------------------------------------------

// Save persists a full snapshot under SnapshotKey.
func (m *Manager) Save(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveLocked(ctx)
}

func (m *Manager) saveLocked(ctx context.Context) error {
	data, err := json.Marshal(snapshotPayload{
		VaultID: m.vaultID, Actor: m.actor, Counter: m.counter,
		Lamport: m.lamport, Log: m.log, Commits: m.commits,
	})
	if err != nil {
		return err
	}
	return m.storage.Write(ctx, SnapshotKey, data)
}

// ExportUpdates returns the ops not yet covered by since as a serialized
// byte buffer. A nil since exports the entire log (equivalent to a full
// snapshot's op content, without the wrapping vault metadata).
func (m *Manager) ExportUpdates(since *Version) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ops []Op
	for _, op := range m.log {
		if since == nil || !since.covers(op.ID) {
			ops = append(ops, op)
		}
	}
	return json.Marshal(updatePayload{Ops: ops})
}

// ImportUpdates applies ops received from a peer, deduplicating against
// ops already known, rebuilding the path cache, and emitting
// origin=remote change events for every touched node.
func (m *Manager) ImportUpdates(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var payload updatePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return vaulterr.Wrap(vaulterr.CodeSyncBadUpdate, err)
	}

	known := make(map[OpID]bool, len(m.log))
	for _, op := range m.log {
		known[op.ID] = true
	}

	var fresh []Op
	for _, op := range payload.Ops {
		if known[op.ID] {
			continue
		}
		fresh = append(fresh, op)
	}
	if len(fresh) == 0 {
		return nil
	}

	m.log = append(m.log, fresh...)
	if err := m.applyOpsWithRetry(fresh); err != nil {
		// Roll back: drop the appended ops from the log and rebuild the
		// derived tree from what remains, undoing any op of the batch that
		// applyOpsWithRetry resolved before it failed.
		m.log = m.log[:len(m.log)-len(fresh)]
		if rerr := m.rebuildTree(); rerr != nil {
			m.logger.Error().Err(rerr).Msg("rebuild tree after failed import")
		}
		return err
	}

	for _, op := range fresh {
		if op.ID.Counter > m.counter && op.Actor == m.actor {
			m.counter = op.ID.Counter
		}
		if op.Lamport > m.lamport {
			m.lamport = op.Lamport
		}
	}

	for _, id := range touchedNodes(fresh) {
		m.emitChange(id, OriginRemote)
	}
	return nil
}

// --- History & checkout -------------------------------------------------

// GetVersionHistory returns every recorded commit, most recent first
// (Lamport descending, then timestamp descending).
func (m *Manager) GetVersionHistory() []HistoryEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := make([]HistoryEntry, len(m.commits))
	for i, c := range m.commits {
		entries[i] = HistoryEntry{
			Frontier: c.Frontier, Timestamp: c.Timestamp,
			Peer: c.Actor, Lamport: c.Lamport, Message: c.Message,
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Lamport != entries[j].Lamport {
			return entries[i].Lamport > entries[j].Lamport
		}
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
	return entries
}

// View is a read-only tree as of a past checkout point.
type View struct {
	paths map[string]*Node
}

// ListAllPaths returns every live path in the view.
func (v *View) ListAllPaths() []string {
	paths := make([]string, 0, len(v.paths))
	for p := range v.paths {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// GetContent returns the text content of path in the view.
func (v *View) GetContent(path string) (string, bool) {
	n, ok := v.paths[path]
	if !ok || n.Kind != NodeFile {
		return "", false
	}
	return n.Text, true
}

// GetBlobHash returns the blob hash of path in the view.
func (v *View) GetBlobHash(path string) (string, bool) {
	n, ok := v.paths[path]
	if !ok || n.Kind != NodeBinary {
		return "", false
	}
	return n.BlobHash, true
}

// CheckoutToFrontiers replays the causal history of frontiers into an
// isolated, read-only View. If any frontier op is unknown, it falls back
// to the current live tree.
func (m *Manager) CheckoutToFrontiers(frontiers Frontier) *View {
	m.mu.Lock()
	defer m.mu.Unlock()

	byID := make(map[OpID]Op, len(m.log))
	for _, op := range m.log {
		byID[op.ID] = op
	}

	var included []Op
	visited := make(map[OpID]bool)
	var visit func(id OpID) bool
	visit = func(id OpID) bool {
		if visited[id] {
			return true
		}
		op, ok := byID[id]
		if !ok {
			return false
		}
		visited[id] = true
		for _, p := range op.Parent {
			if !visit(p) {
				return false
			}
		}
		included = append(included, op)
		return true
	}

	ok := true
	for _, f := range frontiers {
		if !visit(f) {
			ok = false
			break
		}
	}
	if !ok {
		return m.liveView()
	}

	sort.SliceStable(included, func(i, j int) bool {
		return included[i].Lamport < included[j].Lamport
	})

	snap := &Manager{actor: "checkout"}
	snap.resetTree()
	snap.log = included
	if err := snap.applyOpsWithRetry(included); err != nil {
		return m.liveView()
	}
	return snap.liveView()
}

func (m *Manager) liveView() *View {
	paths := make(map[string]*Node, len(m.idByPath))
	for p, id := range m.idByPath {
		cp := *m.tree[id]
		paths[p] = &cp
	}
	return &View{paths: paths}
}

// --- Compaction ----------------------------------------------------------

// CompactResult reports the snapshot size before and after Compact.
type CompactResult struct {
	BeforeSize int
	AfterSize  int
}

// Compact replaces the op log with a single shallow snapshot op capturing
// the current tree, discarding full history while preserving every live
// path's content.
func (m *Manager) Compact(ctx context.Context) (*CompactResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	before, err := json.Marshal(snapshotPayload{
		VaultID: m.vaultID, Actor: m.actor, Counter: m.counter,
		Lamport: m.lamport, Log: m.log, Commits: m.commits,
	})
	if err != nil {
		return nil, err
	}

	snaps := make([]NodeSnapshot, 0, len(m.tree))
	for _, n := range m.tree {
		snaps = append(snaps, NodeSnapshot{
			ID: n.ID, ParentID: n.ParentID, Name: n.Name, Kind: n.Kind,
			MimeType: n.MimeType, CTime: n.CTime, MTime: n.MTime,
			Deleted: n.Deleted, DeletedAt: n.DeletedAt,
			BlobHash: n.BlobHash, Text: n.Text,
		})
	}

	m.lamport++
	m.counter++
	op := Op{
		ID:        OpID{Actor: m.actor, Counter: m.counter},
		Actor:     m.actor,
		Lamport:   m.lamport,
		Timestamp: time.Now(),
		Kind:      OpSnapshot,
		Snapshot:  snaps,
	}
	m.log = []Op{op}
	if err := m.rebuildTree(); err != nil {
		return nil, err
	}
	if err := m.saveLocked(ctx); err != nil {
		return nil, err
	}

	after, err := json.Marshal(snapshotPayload{
		VaultID: m.vaultID, Actor: m.actor, Counter: m.counter,
		Lamport: m.lamport, Log: m.log, Commits: m.commits,
	})
	if err != nil {
		return nil, err
	}
	return &CompactResult{BeforeSize: len(before), AfterSize: len(after)}, nil
}
