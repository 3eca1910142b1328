package peer

import (
	"context"
	"time"

	"github.com/robcohen/peervault/pkg/syncsession"
	"github.com/robcohen/peervault/pkg/types"
)

// startSupervising begins a peer's outbound reconnect loop using its
// persisted ticket to redial on every attempt.
func (m *Manager) startSupervising(ctx context.Context, rec *types.PeerRecord) {
	m.startSupervisingWithStreams(ctx, rec, nil, nil)
}

// startSupervisingWithStreams is startSupervising, but the first
// connection attempt reuses an already-open pair of streams (from
// AddPeer's validating Dial) instead of dialing again.
func (m *Manager) startSupervisingWithStreams(ctx context.Context, rec *types.PeerRecord, main, blob syncsession.Stream) {
	sctx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	if old, ok := m.cancels[rec.NodeID]; ok {
		old()
	}
	m.cancels[rec.NodeID] = cancel
	m.mu.Unlock()

	m.wg.Add(1)
	go m.supervise(sctx, rec.NodeID, rec.Ticket, main, blob)
}

// supervise redials and runs a session in a loop with exponential
// backoff, until ctx is canceled or the backoff schedule is exhausted.
func (m *Manager) supervise(ctx context.Context, nodeID, ticket string, firstMain, firstBlob syncsession.Stream) {
	defer m.wg.Done()

	attempt := 0
	main, blob := firstMain, firstBlob
	for {
		if main == nil {
			var err error
			main, blob, _, err = m.transport.Dial(ctx, ticket)
			if err != nil {
				attempt++
				if attempt > m.cfg.MaxAttempts {
					m.setPeerState(ctx, nodeID, types.PeerStateError)
					m.publishError(nodeID, err)
					return
				}
				if !m.sleepBackoff(ctx, attempt) {
					return
				}
				continue
			}
		}

		m.setPeerState(ctx, nodeID, types.PeerStateSyncing)
		sess := syncsession.New(m.localNode, nodeID, main, blob, m.doc, m.blobs, m.cfg, func(e syncsession.Event) {
			m.handleSessionEvent(ctx, nodeID, e)
		})
		err := sess.Run(ctx)
		main, blob = nil, nil

		if ctx.Err() != nil {
			m.setPeerState(ctx, nodeID, types.PeerStateDisconnected)
			return
		}
		if err == nil {
			attempt = 0
			m.setPeerState(ctx, nodeID, types.PeerStateDisconnected)
			if !m.sleepBackoff(ctx, 1) {
				return
			}
			continue
		}

		attempt++
		m.setPeerState(ctx, nodeID, types.PeerStateError)
		if attempt > m.cfg.MaxAttempts {
			return
		}
		if !m.sleepBackoff(ctx, attempt) {
			return
		}
	}
}

// runInbound drives a single session from an accepted inbound connection.
// Unlike supervise, it never redials: the remote side owns reconnection
// for tickets it dialed out on.
func (m *Manager) runInbound(ctx context.Context, rec *types.PeerRecord, main, blob syncsession.Stream) {
	sctx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	if old, ok := m.cancels[rec.NodeID]; ok {
		old()
	}
	m.cancels[rec.NodeID] = cancel
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.setPeerState(sctx, rec.NodeID, types.PeerStateSyncing)
		sess := syncsession.New(m.localNode, rec.NodeID, main, blob, m.doc, m.blobs, m.cfg, func(e syncsession.Event) {
			m.handleSessionEvent(sctx, rec.NodeID, e)
		})
		err := sess.Run(sctx)
		if err != nil {
			m.setPeerState(sctx, rec.NodeID, types.PeerStateError)
		} else {
			m.setPeerState(sctx, rec.NodeID, types.PeerStateDisconnected)
		}
	}()
}

func (m *Manager) sleepBackoff(ctx context.Context, attempt int) bool {
	d := m.backoffFor(attempt)
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	case <-m.stopCh:
		return false
	}
}

func (m *Manager) backoffFor(attempt int) time.Duration {
	schedule := m.cfg.Backoff
	if len(schedule) == 0 {
		return time.Second
	}
	idx := attempt - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(schedule) {
		idx = len(schedule) - 1
	}
	return schedule[idx]
}

func (m *Manager) publishError(nodeID string, err error) {
	m.handleSessionEvent(context.Background(), nodeID, syncsession.Event{
		Kind: syncsession.EventError, PeerNodeID: nodeID, Err: err,
	})
}
