// Package gc implements peervault's garbage collector: size- and
// freshness-gated shallow-snapshot compaction of the document plus
// orphan-blob reclamation, writing a recovery checkpoint before it
// touches anything. Grounded on pkg/migrate's backup-then-mutate shape
// and wired against pkg/document and pkg/blobstore through small
// interfaces, the same boundary-by-interface style as
// pkg/storage.Adapter.
package gc
