// Package textdiff computes minimal single-edit diffs between two strings
// by common-prefix/suffix trimming. It is the bridge between a host's
// "file content changed to X" event and the per-character insert/tombstone
// operations pkg/document's text CRDT actually applies, keeping the
// operations transmitted to peers proportional to the size of the change
// rather than the size of the file.
package textdiff
