package document

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// NodeID identifies a tree node, stable across renames and moves so a
// node's history survives them.
type NodeID string

func newNodeID() NodeID {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return NodeID(hex.EncodeToString(b))
}

// folderID derives a stable, content-addressed identity for a folder from
// its parent and name, rather than a random one. Folders are structural
// scaffolding, not independently tracked entities (spec §4.4: "folders
// are created implicitly to host any file") — two peers that
// independently create the same path concurrently must converge on one
// folder, not fork into a same-name conflict the way two independently
// authored files would.
func folderID(parent NodeID, name string) NodeID {
	sum := sha256.Sum256([]byte(string(parent) + "/" + name))
	return NodeID("folder-" + hex.EncodeToString(sum[:16]))
}

// OpID identifies one op in the log: an actor's op counter, monotonically
// increasing per actor. The zero value (empty Actor, Counter 0) is used as
// the RGA's "insert at the very start" sentinel and never assigned to a
// real op.
type OpID struct {
	Actor   string
	Counter uint64
}

func (id OpID) isZero() bool { return id.Actor == "" && id.Counter == 0 }

// less gives OpID a total order used to break ties between concurrent RGA
// siblings deterministically, independent of application order.
func (id OpID) less(other OpID) bool {
	if id.Counter != other.Counter {
		return id.Counter < other.Counter
	}
	return id.Actor < other.Actor
}

// NodeKind distinguishes the three node shapes the spec's file tree holds.
type NodeKind string

const (
	NodeFile   NodeKind = "file"
	NodeFolder NodeKind = "folder"
	NodeBinary NodeKind = "binary"
)

// OpKind tags the payload carried by an Op.
type OpKind string

const (
	OpCreate     OpKind = "create"
	OpSetMeta    OpKind = "set_meta"
	OpRename     OpKind = "rename"
	OpDelete     OpKind = "delete"
	OpSetBlob    OpKind = "set_blob"
	OpTextInsert OpKind = "text_insert"
	OpTextDelete OpKind = "text_delete"
	OpSnapshot   OpKind = "snapshot"
)

// Op is one entry in the append-only operation log. Only the fields
// relevant to Kind are populated; the rest are zero.
type Op struct {
	ID        OpID
	Parent    []OpID
	Actor     string
	Lamport   uint64
	Timestamp time.Time
	Kind      OpKind

	// OpCreate
	NodeID   NodeID
	ParentID NodeID
	Name     string
	NodeKind NodeKind
	MimeType string

	// OpRename
	NewParentID NodeID
	NewName     string

	// OpDelete
	Deleted bool

	// OpSetBlob
	BlobHash string

	// OpTextInsert / OpTextDelete
	CharID OpID
	After  OpID
	Char   rune

	// OpSnapshot
	Snapshot []NodeSnapshot
}

// NodeSnapshot is the full state of one node at compaction time, used to
// seed a fresh op log without replaying its entire history.
type NodeSnapshot struct {
	ID         NodeID
	ParentID   NodeID
	Name       string
	Kind       NodeKind
	MimeType   string
	CTime      time.Time
	MTime      time.Time
	Deleted    bool
	DeletedAt  *time.Time
	BlobHash   string
	Text       string
}

// Version is the set of the highest op counter seen per actor: an opaque
// (outside this package) encoding of a replica's knowledge, used as the
// `since` bound for ExportUpdates.
type Version map[string]uint64

// Clone returns an independent copy of v.
func (v Version) Clone() Version {
	cp := make(Version, len(v))
	for k, val := range v {
		cp[k] = val
	}
	return cp
}

// covers reports whether v has already observed op id (counter <= known).
func (v Version) covers(id OpID) bool {
	return id.Counter <= v[id.Actor]
}

// Frontier is the set of op IDs not yet superseded by any later op that
// names them as a causal parent — the heads of the op DAG, usable as a
// checkout point via Manager.CheckoutToFrontiers.
type Frontier []OpID

// Node is the exported, read-only view of one tree entry.
type Node struct {
	ID        NodeID
	ParentID  NodeID
	Name      string
	Kind      NodeKind
	MimeType  string
	CTime     time.Time
	MTime     time.Time
	Deleted   bool
	DeletedAt *time.Time
	BlobHash  string // set when Kind == NodeBinary
	Text      string // set when Kind == NodeFile
}

// Commit groups the ops produced by a single top-level mutator call
// (HandleFileCreate, SetTextContent, ...) for history display.
type Commit struct {
	Frontier  Frontier
	Timestamp time.Time
	Actor     string
	Lamport   uint64
	Message   string
	OpIDs     []OpID
}

// HistoryEntry is one line of Manager.GetVersionHistory's output.
type HistoryEntry struct {
	Frontier  Frontier
	Timestamp time.Time
	Peer      string
	Lamport   uint64
	Message   string
}

// ChangeOrigin distinguishes file-change events caused by a local mutator
// call from ones produced by importing a remote peer's updates.
type ChangeOrigin string

const (
	OriginLocal  ChangeOrigin = "local"
	OriginRemote ChangeOrigin = "remote"
)

// ChangeEvent is emitted on Manager.Changes() after every mutation,
// local or imported, so a host can refresh its view of the tree.
type ChangeEvent struct {
	Path   string
	Node   *Node // nil when the change is a deletion
	Origin ChangeOrigin
}
