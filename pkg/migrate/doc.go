// Package migrate implements peervault's schema migration runner: a
// linear version chain with a pre-migration snapshot backup and
// per-step progress reporting, directly grounded on
// cmd/warren-migrate/main.go's backup-then-migrate shape, generalized
// from a single hardcoded bucket rename into a chained, versioned runner
// usable both as a standalone CLI tool and as an auto-migrate step a
// vault runs on startup.
package migrate
