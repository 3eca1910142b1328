/*
Package types defines data structures shared across more than one of
peervault's components: the vault identity, blob metadata, peer records,
a schema version record, and the cloud-sync manifest shapes.

The file-tree node shape itself lives in pkg/document, not here: the
document manager exclusively owns the CRDT handle and its tree, so that
type stays private to the package that can enforce its invariants.

# Core Types

Vault identity:
  - Vault: a single synchronized tree plus its encryption key fingerprint

Content storage:
  - BlobMeta: size, mime type, and reference count for one content hash

Peering:
  - PeerRecord: a known peer's node ID, ticket, hostname, and sync state
  - PeerState: disconnected, connecting, syncing, synced, or error

Schema:
  - SchemaVersionRecord: a schema version record; pkg/migrate keeps its
    own version marker and does not use this type

# Integration Points

This package is used by pkg/blobstore (BlobMeta), pkg/peer (PeerRecord),
and pkg/cloudsync (CloudManifest). Types here are JSON-serializable
for storage via pkg/storage.Adapter.
*/
package types
