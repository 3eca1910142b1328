package peer

import (
	"context"

	"github.com/robcohen/peervault/pkg/syncsession"
)

// Transport is the physical-connectivity abstraction pkg/peer drives:
// registering this node as reachable by a ticket, dialing a peer's
// ticket to get its streams, and accepting inbound connections. The
// concrete transport (QUIC/WebRTC direct connection, relay fallback) is
// out of scope (spec §1/Non-goals); tests and cmd/peervault wire in
// whatever implements this interface.
type Transport interface {
	// RegisterInvite makes this node reachable by ticket, which Manager
	// has already minted (Manager keeps pending invites in memory, not in
	// storage); Listen will later surface the
	// resulting Inbound once a peer dials it.
	RegisterInvite(ctx context.Context, ticket string) error

	// Dial redeems a ticket minted by another node's RegisterInvite,
	// returning the two streams a Session needs (main control traffic,
	// and a second dedicated to blob bytes) plus the remote node's ID.
	Dial(ctx context.Context, ticket string) (main, blob syncsession.Stream, peerNodeID string, err error)

	// Listen returns a channel of inbound connections accepted by this
	// transport, open until ctx is canceled.
	Listen(ctx context.Context) (<-chan Inbound, error)
}

// Inbound is one incoming connection handed to pkg/peer by a Transport.
type Inbound struct {
	PeerNodeID string
	Main       syncsession.Stream
	Blob       syncsession.Stream
}
