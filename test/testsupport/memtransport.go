// Package testsupport spins up in-process vault pairs over an in-memory
// transport, grounded on the teacher's test/framework cluster harness but
// shrunk from a multi-process Warren cluster to two in-process peers
// exchanging streams through Go channels.
package testsupport

import (
	"context"
	"sync"

	"github.com/robcohen/peervault/pkg/peer"
	"github.com/robcohen/peervault/pkg/syncsession"
	"github.com/robcohen/peervault/pkg/vaulterr"
)

// pipeStream is an in-process Stream over a pair of buffered channels, the
// same shape pkg/syncsession's own tests use as a transport stand-in.
type pipeStream struct {
	out chan []byte
	in  chan []byte
}

func newPipePair() (a, b *pipeStream) {
	ab := make(chan []byte, 256)
	ba := make(chan []byte, 256)
	return &pipeStream{out: ab, in: ba}, &pipeStream{out: ba, in: ab}
}

func (p *pipeStream) Send(ctx context.Context, frame []byte) error {
	cp := append([]byte(nil), frame...)
	select {
	case p.out <- cp:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pipeStream) Recv(ctx context.Context) ([]byte, error) {
	select {
	case data, ok := <-p.in:
		if !ok {
			return nil, context.Canceled
		}
		return data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *pipeStream) Close() error { return nil }

// registry is the shared "network" two or more MemTransports dial tickets
// against: RegisterInvite publishes a node's listen channel under a
// ticket, Dial redeems it.
type registry struct {
	mu        sync.Mutex
	listeners map[string]chan peer.Inbound
	tickets   map[string]string // ticket -> owning node ID
}

func newRegistry() *registry {
	return &registry{
		listeners: make(map[string]chan peer.Inbound),
		tickets:   make(map[string]string),
	}
}

// MemTransport implements pkg/peer.Transport over an in-process registry
// shared by every node built from the same NewMemNetwork call.
type MemTransport struct {
	nodeID string
	reg    *registry
	inbox  chan peer.Inbound
}

// NewMemNetwork returns a fresh shared registry. Call Node(id) on it once
// per simulated peer.
func NewMemNetwork() *registry { return newRegistry() }

// Node returns a Transport for nodeID, reachable once that node calls
// RegisterInvite and listens via Start.
func (r *registry) Node(nodeID string) *MemTransport {
	inbox := make(chan peer.Inbound, 16)
	r.mu.Lock()
	r.listeners[nodeID] = inbox
	r.mu.Unlock()
	return &MemTransport{nodeID: nodeID, reg: r, inbox: inbox}
}

func (t *MemTransport) RegisterInvite(ctx context.Context, ticket string) error {
	t.reg.mu.Lock()
	defer t.reg.mu.Unlock()
	t.reg.tickets[ticket] = t.nodeID
	return nil
}

func (t *MemTransport) Dial(ctx context.Context, ticket string) (main, blob syncsession.Stream, peerNodeID string, err error) {
	t.reg.mu.Lock()
	ownerID, ok := t.reg.tickets[ticket]
	var ownerInbox chan peer.Inbound
	if ok {
		ownerInbox, ok = t.reg.listeners[ownerID]
	}
	t.reg.mu.Unlock()
	if !ok {
		return nil, nil, "", vaulterr.New(vaulterr.CodeTransportInvalidTicket, "unknown ticket")
	}

	mainLocal, mainRemote := newPipePair()
	blobLocal, blobRemote := newPipePair()

	select {
	case ownerInbox <- peer.Inbound{PeerNodeID: t.nodeID, Main: mainRemote, Blob: blobRemote}:
	case <-ctx.Done():
		return nil, nil, "", ctx.Err()
	}
	return mainLocal, blobLocal, ownerID, nil
}

func (t *MemTransport) Listen(ctx context.Context) (<-chan peer.Inbound, error) {
	out := make(chan peer.Inbound)
	go func() {
		defer close(out)
		for {
			select {
			case in, ok := <-t.inbox:
				if !ok {
					return
				}
				select {
				case out <- in:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
