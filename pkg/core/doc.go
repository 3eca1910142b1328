// Package core wires pkg/document, pkg/blobstore, pkg/peer, pkg/gc, and
// pkg/crypto into Vault, the single in-process facade a host application
// (cmd/peervault, or an embedding GUI/mobile shell) drives. Every
// operation a host needs — local file mutations, peer pairing, garbage
// collection, key management — is a Vault method; Events() exposes the
// same pkg/events.Broker the peer and sync layers publish onto.
package core
