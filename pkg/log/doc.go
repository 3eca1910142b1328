/*
Package log provides structured logging for peervault using zerolog.

The log package wraps zerolog to provide JSON-structured logging with
component-specific child loggers, configurable log levels, and helper
functions for common logging patterns. All logs include timestamps and
support filtering by severity level.

# Core Components

Global Logger:
  - Package-level zerolog.Logger instance
  - Initialized once via log.Init()
  - Accessible from all peervault packages

Configuration:
  - Level: filter messages below threshold (debug/info/warn/error)
  - JSONOutput: JSON vs human-readable console
  - Output: io.Writer for log destination (stdout, file)

Context Loggers:
  - WithComponent: add a component name to all logs ("blobstore", "gc", "sync-session")
  - WithVault: add vault_id context
  - WithPeer: add peer_id context
  - WithSession: add session_id context

# Usage

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

	sessLog := log.WithPeer(peerID)
	sessLog.Info().Str("state", "handshaking").Msg("session state changed")

# Integration Points

This package is used by pkg/core, pkg/peer, pkg/syncsession, pkg/gc,
pkg/migrate, and cmd/peervault for all operational logging. Secrets and
vault keys must never be logged; callers pass fingerprints (see
pkg/crypto.Fingerprint), not raw key material.
*/
package log
