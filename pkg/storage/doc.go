/*
Package storage provides the key/value persistence abstraction every
peervault component is built on.

Two concrete Adapters are provided: BoltAdapter, an embedded BoltDB
(bbolt) database for a single-process vault daemon, and MemAdapter, an
in-memory map used by tests and in-process vault pairs. CachingAdapter
wraps either with a bounded read-through LRU, useful when a session
re-reads the same blob or document key repeatedly.

# Key layout

The adapter itself is agnostic to key meaning; the packages that write
through it define the prefixed key scheme layered on top of it
(peervault-snapshot, blob:<hash>, peer:<nodeId>, gc-checkpoint-<ts>-*,
and so on).

# Transactions

BoltAdapter uses db.View for reads and db.Update for writes, matching
BoltDB's single-writer/many-reader model. Values returned from Read are
copied out of the BoltDB-owned buffer before the transaction closes,
since bbolt only guarantees validity of returned byte slices for the
life of the transaction that produced them.
*/
package storage
