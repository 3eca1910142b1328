// Package peer owns the persisted peer registry and supervises one
// pkg/syncsession.Session per connected peer: dialing out for peers this
// node initiated a connection to, accepting inbound sessions from a
// pkg/peer.Transport, merging gossiped peer records, and translating
// session lifecycle events onto the host-visible pkg/events.Broker.
package peer
