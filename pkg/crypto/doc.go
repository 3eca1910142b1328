// Package crypto provides the AEAD suites, password-based key derivation,
// key fingerprinting, and recovery-phrase codec peervault uses to protect
// a vault's data at rest and in transit.
//
// Unlike pkg/security in the container-orchestration codebase this was
// adapted from, there is no package-level encryption key singleton here:
// callers construct a Suite with an explicit key and pass it to the
// components that need it (pkg/encstorage, pkg/syncsession).
package crypto
