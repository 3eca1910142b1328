/*
Package document implements peervault's CRDT document manager: the
authoritative, conflict-free representation of a vault's file tree, each
file's text content, and the references into the blob store for binary
files.

No CRDT library appears anywhere in the retrieval pack this module was
built from (see the repository's DESIGN.md), and the spec's required
semantics — deterministic frontiers, shallow-snapshot compaction, a
byte-exact incremental/full export split — are exact enough that importing
an unverified external API blind, with no compiler available to check the
result against, is the higher-risk path. The manager is therefore a
from-scratch, additive, commutative operation log:

  - Every mutation is appended to an ordered Op log as an Op tagged with a
    causal Parent set, an actor ID, and a Lamport clock value.
  - The file tree is derived state, rebuilt by replaying the op log in a
    deterministic total order; two replicas holding the same set of ops
    always derive the same tree, regardless of the order the ops arrived
    in (the commutativity property the sync session state machine in
    pkg/syncsession assumes).
  - Per-file text content is a small RGA (replicated growable array): each
    character is its own tombstone-capable element addressed by the op
    that inserted it, linked to the element it was inserted after. This is
    the standard op-based CRDT shape for collaborative text, chosen
    because it is the simplest structure that satisfies "operations
    commute, tombstones preserve position" without a vendored library.
  - Local edits are translated into character ops via pkg/textdiff, so the
    bytes transmitted to peers stay proportional to the size of the change
    rather than the size of the file.
*/
package document
