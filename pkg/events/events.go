package events

import (
	"sync"
	"time"

	"github.com/robcohen/peervault/pkg/types"
)

// Type names one of the host-visible event kinds from spec §6.
type Type string

const (
	StatusChange         Type = "status:change"
	PeerConnected         Type = "peer:connected"
	PeerSynced            Type = "peer:synced"
	PeerDisconnected      Type = "peer:disconnected"
	PeerError             Type = "peer:error"
	BlobReceived          Type = "blob:received"
	LiveUpdates           Type = "live:updates"
	VaultAdoptionRequest  Type = "vault:adoption-request"
	VaultKeyReceived      Type = "vault:key-received"
)

// Event is a discriminated union over the host event surface: only the
// fields relevant to Type are populated, matching the tagged-sum shape
// spec §9 asks for instead of an untyped metadata bag.
type Event struct {
	Type      Type
	Timestamp time.Time

	Status string // StatusChange

	Peer   *types.PeerRecord // PeerConnected
	NodeID string            // PeerSynced, PeerDisconnected, PeerError, VaultAdoptionRequest
	Reason string            // PeerDisconnected, optional

	Err error // PeerError

	Hash string // BlobReceived

	PeerVaultID string            // VaultAdoptionRequest
	OurVaultID  string            // VaultAdoptionRequest
	Respond     func(accept bool) // VaultAdoptionRequest: host calls this once, with its decision

	Key []byte // VaultKeyReceived: the vault encryption key, opaque to the transport
}

// Subscriber is a channel that receives events.
type Subscriber chan *Event

// Broker fans out published events to every live subscriber without
// blocking the publisher: a full subscriber buffer drops the event
// rather than stalling sync.
type Broker struct {
	subscribers map[Subscriber]bool
	mu          sync.RWMutex
	eventCh     chan *Event
	stopCh      chan struct{}
}

// NewBroker creates a new event broker.
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan *Event, 100),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's event distribution loop.
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker.
func (b *Broker) Stop() {
	close(b.stopCh)
}

// Subscribe creates a new subscription and returns a channel.
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 50)
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription.
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subscribers, sub)
	close(sub)
}

// Publish publishes an event to all subscribers.
func (b *Broker) Publish(event *Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.eventCh <- event:
	case <-b.stopCh:
	}
}

func (b *Broker) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
