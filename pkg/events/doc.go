// Package events is the host-facing notification bus: a broker that
// fans out the event surface from spec §6 (status:change, peer:connected,
// blob:received, vault:adoption-request, ...) to any number of
// subscribers without blocking the publisher.
package events
