package document

import (
	"sort"
	"strings"
	"time"

	"github.com/robcohen/peervault/pkg/vaulterr"
)

// rootID is the sentinel parent of every top-level entry. It never
// appears as a node in m.tree.
const rootID NodeID = ""

// resetTree clears all derived state so it can be rebuilt from scratch by
// replaying m.log.
func (m *Manager) resetTree() {
	m.tree = make(map[NodeID]*Node)
	m.texts = make(map[NodeID]*textCRDT)
	m.children = make(map[NodeID][]NodeID)
	m.createLamport = make(map[NodeID]uint64)
	m.pathByID = make(map[NodeID]string)
	m.idByPath = make(map[string]NodeID)
}

// rebuildTree replays the entire op log into fresh derived state. Used
// after Initialize loads a snapshot and after Compact replaces the log.
func (m *Manager) rebuildTree() error {
	m.resetTree()
	return m.applyOpsWithRetry(m.log)
}

// applyOpsWithRetry applies ops to the derived tree, retrying ops whose
// dependencies (an RGA anchor or a deleted node's create) haven't been
// applied yet. This lets a batch of imported ops arrive in any order as
// long as the batch is causally complete; ops still unresolved after
// len(ops) passes indicate a genuine gap and fail with sync.bad-update.
func (m *Manager) applyOpsWithRetry(ops []Op) error {
	pending := make([]Op, len(ops))
	copy(pending, ops)

	for pass := 0; len(pending) > 0 && pass <= len(pending); pass++ {
		var next []Op
		progressed := false
		for _, op := range pending {
			ready, err := m.applyOp(op)
			if err != nil {
				return err
			}
			if !ready {
				next = append(next, op)
				continue
			}
			progressed = true
		}
		pending = next
		if !progressed && len(pending) > 0 {
			break
		}
	}
	if len(pending) > 0 {
		return vaulterr.New(vaulterr.CodeSyncBadUpdate, "unresolvable ops after retry: dependency never arrived")
	}
	m.resolveNameConflicts()
	m.rebuildPathCache()
	return nil
}

// applyOp mutates derived state for a single op. It returns (false, nil)
// when the op depends on state not yet present (a retryable gap, not an
// error) and a non-nil error for a genuine structural violation such as a
// rename that would create a cycle.
func (m *Manager) applyOp(op Op) (bool, error) {
	switch op.Kind {
	case OpCreate:
		if op.ParentID != rootID {
			if _, ok := m.tree[op.ParentID]; !ok {
				return false, nil
			}
		}
		if existing, exists := m.tree[op.NodeID]; exists {
			if !existing.Deleted {
				return true, nil // already applied (dedup on replay)
			}
			// A deterministic NodeID (e.g. a lazily-recreated ancestor
			// folder, see ensureParentFolders) can land back on a node
			// that was previously soft-deleted. Revive it in place
			// rather than leaving it tombstoned and unreachable.
			if existing.ParentID != op.ParentID {
				m.removeChild(existing.ParentID, op.NodeID)
				m.children[op.ParentID] = append(m.children[op.ParentID], op.NodeID)
			}
			existing.ParentID = op.ParentID
			existing.Name = op.Name
			existing.Deleted = false
			existing.DeletedAt = nil
			if op.Timestamp.After(existing.MTime) {
				existing.MTime = op.Timestamp
			}
			m.createLamport[op.NodeID] = op.Lamport
			return true, nil
		}
		node := &Node{
			ID:       op.NodeID,
			ParentID: op.ParentID,
			Name:     op.Name,
			Kind:     op.NodeKind,
			MimeType: op.MimeType,
			CTime:    op.Timestamp,
			MTime:    op.Timestamp,
		}
		m.tree[op.NodeID] = node
		m.createLamport[op.NodeID] = op.Lamport
		m.children[op.ParentID] = append(m.children[op.ParentID], op.NodeID)
		if op.NodeKind == NodeFile {
			m.texts[op.NodeID] = newTextCRDT()
		}
		return true, nil

	case OpSetMeta:
		node, ok := m.tree[op.NodeID]
		if !ok {
			return false, nil
		}
		if op.MimeType != "" {
			node.MimeType = op.MimeType
		}
		if op.Timestamp.After(node.MTime) {
			node.MTime = op.Timestamp
		}
		return true, nil

	case OpRename:
		node, ok := m.tree[op.NodeID]
		if !ok {
			return false, nil
		}
		if op.NewParentID != rootID {
			if _, ok := m.tree[op.NewParentID]; !ok {
				return false, nil
			}
			if m.isAncestor(op.NodeID, op.NewParentID) {
				return false, vaulterr.New(vaulterr.CodeSyncBadUpdate, "rename would create a cycle").
					WithContext("node", string(op.NodeID))
			}
		}
		m.removeChild(node.ParentID, op.NodeID)
		node.ParentID = op.NewParentID
		node.Name = op.NewName
		if op.Timestamp.After(node.MTime) {
			node.MTime = op.Timestamp
		}
		m.children[op.NewParentID] = append(m.children[op.NewParentID], op.NodeID)
		return true, nil

	case OpDelete:
		node, ok := m.tree[op.NodeID]
		if !ok {
			return false, nil
		}
		node.Deleted = true
		ts := op.Timestamp
		node.DeletedAt = &ts
		if ts.After(node.MTime) {
			node.MTime = ts
		}
		return true, nil

	case OpSetBlob:
		node, ok := m.tree[op.NodeID]
		if !ok {
			return false, nil
		}
		node.Kind = NodeBinary
		node.BlobHash = op.BlobHash
		if op.MimeType != "" {
			node.MimeType = op.MimeType
		}
		delete(m.texts, op.NodeID)
		node.Text = ""
		if op.Timestamp.After(node.MTime) {
			node.MTime = op.Timestamp
		}
		return true, nil

	case OpTextInsert:
		node, ok := m.tree[op.NodeID]
		if !ok {
			return false, nil
		}
		text, ok := m.texts[op.NodeID]
		if !ok {
			return false, nil
		}
		if !op.After.isZero() && !text.has(op.After) {
			return false, nil
		}
		if text.has(op.CharID) {
			return true, nil // already applied
		}
		text.insert(op.CharID, op.After, op.Char)
		node.Text = text.String()
		if op.Timestamp.After(node.MTime) {
			node.MTime = op.Timestamp
		}
		return true, nil

	case OpTextDelete:
		node, ok := m.tree[op.NodeID]
		if !ok {
			return false, nil
		}
		text, ok := m.texts[op.NodeID]
		if !ok {
			return false, nil
		}
		if !text.has(op.CharID) {
			return false, nil
		}
		text.delete(op.CharID)
		node.Text = text.String()
		if op.Timestamp.After(node.MTime) {
			node.MTime = op.Timestamp
		}
		return true, nil

	case OpSnapshot:
		m.resetTree()
		for _, ns := range op.Snapshot {
			node := &Node{
				ID:        ns.ID,
				ParentID:  ns.ParentID,
				Name:      ns.Name,
				Kind:      ns.Kind,
				MimeType:  ns.MimeType,
				CTime:     ns.CTime,
				MTime:     ns.MTime,
				Deleted:   ns.Deleted,
				DeletedAt: ns.DeletedAt,
				BlobHash:  ns.BlobHash,
				Text:      ns.Text,
			}
			m.tree[ns.ID] = node
			m.createLamport[ns.ID] = op.Lamport
			m.children[ns.ParentID] = append(m.children[ns.ParentID], ns.ID)
			if ns.Kind == NodeFile {
				t := newTextCRDT()
				// Seed the snapshot text as a single RGA chain so future
				// local edits on this node still have valid anchors.
				var prev OpID
				for i, r := range ns.Text {
					id := OpID{Actor: "snapshot", Counter: uint64(i) + 1}
					t.insert(id, prev, r)
					prev = id
				}
				m.texts[ns.ID] = t
			}
		}
		return true, nil

	default:
		return false, vaulterr.New(vaulterr.CodeSyncBadUpdate, "unknown op kind")
	}
}

func (m *Manager) removeChild(parent, child NodeID) {
	kids := m.children[parent]
	for i, id := range kids {
		if id == child {
			m.children[parent] = append(kids[:i], kids[i+1:]...)
			return
		}
	}
}

// isAncestor reports whether candidate is node itself or an ancestor of
// it, walking the parent chain. Used to reject cycle-creating renames.
func (m *Manager) isAncestor(candidate, node NodeID) bool {
	cur := node
	for {
		if cur == candidate {
			return true
		}
		n, ok := m.tree[cur]
		if !ok || n.ParentID == rootID {
			return false
		}
		cur = n.ParentID
	}
}

// resolveNameConflicts renames the losing side of any live sibling name
// collision (two non-deleted nodes with the same parent and name,
// typically from concurrent creates on different peers). The winner is
// the node with the higher creation Lamport (ties broken by NodeID);
// the loser's name is suffixed " (conflict)" the first time it collides.
func (m *Manager) resolveNameConflicts() {
	type key struct {
		parent NodeID
		name   string
	}
	groups := make(map[key][]NodeID)
	for id, n := range m.tree {
		if n.Deleted {
			continue
		}
		k := key{parent: n.ParentID, name: n.Name}
		groups[k] = append(groups[k], id)
	}
	for _, ids := range groups {
		if len(ids) < 2 {
			continue
		}
		sort.Slice(ids, func(i, j int) bool {
			li, lj := m.createLamport[ids[i]], m.createLamport[ids[j]]
			if li != lj {
				return li > lj // higher Lamport wins, sorts first
			}
			return ids[i] < ids[j]
		})
		for _, loser := range ids[1:] {
			if !strings.HasSuffix(m.tree[loser].Name, " (conflict)") {
				m.tree[loser].Name += " (conflict)"
			}
		}
	}
}

// rebuildPathCache recomputes the path -> NodeID map (and its inverse) by
// a depth-first walk from the root, skipping deleted nodes. Per spec, a
// node with deleted=true is invisible to path lookup even though it
// remains in the tree as a tombstone.
func (m *Manager) rebuildPathCache() {
	m.pathByID = make(map[NodeID]string)
	m.idByPath = make(map[string]NodeID)

	var walk func(parent NodeID, prefix string)
	walk = func(parent NodeID, prefix string) {
		kids := append([]NodeID{}, m.children[parent]...)
		sort.Slice(kids, func(i, j int) bool { return m.tree[kids[i]].Name < m.tree[kids[j]].Name })
		for _, id := range kids {
			n := m.tree[id]
			if n.Deleted {
				continue
			}
			p := n.Name
			if prefix != "" {
				p = prefix + "/" + n.Name
			}
			m.pathByID[id] = p
			m.idByPath[p] = id
			walk(id, p)
		}
	}
	walk(rootID, "")
}

// splitPath breaks a "a/b/c" path into its segments, ignoring any leading
// or trailing slash.
func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// ensureParentFolders walks path's directory segments, creating any
// missing folder lazily (per spec: "folders are created implicitly to
// host any file"), returning the NodeID of the immediate parent.
func (m *Manager) ensureParentFolders(segments []string, now time.Time) NodeID {
	parent := rootID
	for _, seg := range segments {
		id, ok := m.childNamed(parent, seg)
		if !ok {
			op := m.newOp(OpCreate, now)
			op.NodeID = folderID(parent, seg)
			op.ParentID = parent
			op.Name = seg
			op.NodeKind = NodeFolder
			// A lazily-created ancestor folder always applies cleanly:
			// its parent was just resolved or created above.
			_, _ = m.commitOp(op)
			id = op.NodeID
		}
		parent = id
	}
	return parent
}

// childNamed finds a live child of parent with the given name.
func (m *Manager) childNamed(parent NodeID, name string) (NodeID, bool) {
	for _, id := range m.children[parent] {
		n := m.tree[id]
		if !n.Deleted && n.Name == name {
			return id, true
		}
	}
	return "", false
}
