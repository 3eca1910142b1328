// Package encstorage wraps a pkg/storage.Adapter with at-rest encryption.
// Every value is prefixed with a 16-byte PVE1 header before being passed
// to the underlying adapter; values already on disk in plaintext (no
// recognizable header) are read through unmodified, so a vault can be
// encrypted after the fact without a hard cutover.
package encstorage
