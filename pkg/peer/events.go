package peer

import (
	"context"

	"github.com/robcohen/peervault/pkg/events"
	"github.com/robcohen/peervault/pkg/syncsession"
	"github.com/robcohen/peervault/pkg/types"
)

// handleSessionEvent translates one syncsession.Event into the
// host-visible pkg/events surface and publishes it, updating the
// persisted peer record where the event implies a state change.
func (m *Manager) handleSessionEvent(ctx context.Context, nodeID string, e syncsession.Event) {
	switch e.Kind {
	case syncsession.EventSynced:
		m.setPeerSynced(ctx, nodeID)
		m.broker.Publish(&events.Event{Type: events.PeerSynced, NodeID: nodeID})

	case syncsession.EventError:
		m.broker.Publish(&events.Event{Type: events.PeerError, NodeID: nodeID, Err: e.Err})

	case syncsession.EventBlobReceived:
		m.broker.Publish(&events.Event{Type: events.BlobReceived, NodeID: nodeID, Hash: e.Hash})

	case syncsession.EventLiveUpdates:
		m.broker.Publish(&events.Event{Type: events.LiveUpdates, NodeID: nodeID})

	case syncsession.EventVaultAdoption:
		m.broker.Publish(&events.Event{
			Type: events.VaultAdoptionRequest, NodeID: nodeID,
			PeerVaultID: e.PeerVaultID, OurVaultID: e.OurVaultID,
			Respond: e.Respond,
		})

	case syncsession.EventClosed:
		m.broker.Publish(&events.Event{Type: events.PeerDisconnected, NodeID: nodeID, Reason: e.Reason})
	}
}

func (m *Manager) setPeerSynced(ctx context.Context, nodeID string) {
	m.setPeerState(ctx, nodeID, types.PeerStateSynced)
}
