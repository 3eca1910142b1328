package syncsession

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/robcohen/peervault/pkg/document"
	"github.com/robcohen/peervault/pkg/log"
	"github.com/robcohen/peervault/pkg/metrics"
	"github.com/robcohen/peervault/pkg/syncproto"
	"github.com/robcohen/peervault/pkg/vaulterr"
)

// Stream is a reliable, ordered, bidirectional byte-message channel: one
// pkg/syncproto frame per Send/Recv. The physical transport (QUIC stream,
// TLS socket, in-process pipe) is out of this package's scope; callers
// supply one already connected.
type Stream interface {
	Send(ctx context.Context, frame []byte) error
	Recv(ctx context.Context) ([]byte, error)
	Close() error
}

// DocumentManager is satisfied by pkg/document.Manager. Declared locally
// so this package never imports pkg/peer and pkg/peer can freely import
// this one.
type DocumentManager interface {
	VaultID() string
	AdoptVaultID(id string)
	OplogVersion() document.Version
	ExportUpdates(since *document.Version) ([]byte, error)
	ImportUpdates(data []byte) error
	ReferencedBlobHashes() map[string]struct{}
	DocSize() (int, error)
	Subscribe() <-chan []byte
	Unsubscribe(ch <-chan []byte)
}

// BlobStore is satisfied by pkg/blobstore.Store.
type BlobStore interface {
	Has(ctx context.Context, hash string) (bool, error)
	Get(ctx context.Context, hash string) ([]byte, error)
	Add(ctx context.Context, content []byte, mimeType string) (string, error)
	GetMissing(ctx context.Context, hashes []string) []string
}

// State is a step in the session state machine.
type State string

const (
	StateOpening       State = "opening"
	StateHandshaking   State = "handshaking"
	StateCatchup       State = "catchup"
	StateBlobCatchup   State = "blob_catchup"
	StateLive          State = "live"
	StateClosing       State = "closing"
)

// EventKind names one of the events a Session reports to its owner.
type EventKind string

const (
	EventSynced            EventKind = "synced"
	EventError             EventKind = "error"
	EventBlobReceived      EventKind = "blob_received"
	EventLiveUpdates       EventKind = "live_updates"
	EventVaultAdoption     EventKind = "vault_adoption_request"
	EventClosed            EventKind = "closed"
)

// Event is a session-lifecycle notification, forwarded by pkg/peer onto
// the host-visible pkg/events.Broker.
type Event struct {
	Kind        EventKind
	PeerNodeID  string
	Err         error
	Hash        string
	PeerVaultID string
	OurVaultID  string
	Respond     func(accept bool)
	Reason      string
}

// Config tunes the session's timing. The zero value is not valid; use
// DefaultConfig.
type Config struct {
	HandshakeTimeout  time.Duration
	PingInterval      time.Duration
	PongTimeout       time.Duration
	BlobBatchTimeout  time.Duration
	SnapshotTimeout   time.Duration
	ChunkSize         int
	SnapshotThreshold float64 // fraction of doc size above which updates lose to a full snapshot
	Backoff           []time.Duration
	MaxAttempts       int
}

// DefaultConfig is the production tuning, grounded in spec §4.9/§4.10.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout:  30 * time.Second,
		PingInterval:      30 * time.Second,
		PongTimeout:       15 * time.Second,
		BlobBatchTimeout:  120 * time.Second,
		SnapshotTimeout:   90 * time.Second,
		ChunkSize:         1 << 20,
		SnapshotThreshold: 0.5,
		Backoff: []time.Duration{
			1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second,
			16 * time.Second, 32 * time.Second, 60 * time.Second,
		},
		MaxAttempts: 8,
	}
}

// Session drives one peer connection's sync protocol state machine.
type Session struct {
	localNodeID string
	peerNodeID  string

	main Stream
	blob Stream

	doc   DocumentManager
	blobs BlobStore

	cfg    Config
	logger zerolog.Logger

	mu        sync.Mutex
	state     State
	errCount  int
	adopted   bool

	onEvent func(Event)

	pingSeq      uint32
	pendingPongs map[uint32]time.Time
}

// New builds a Session. main and blob are already-connected streams to
// peerNodeID; onEvent receives lifecycle notifications (nil is valid and
// discards them).
func New(localNodeID, peerNodeID string, main, blob Stream, doc DocumentManager, blobs BlobStore, cfg Config, onEvent func(Event)) *Session {
	if onEvent == nil {
		onEvent = func(Event) {}
	}
	return &Session{
		localNodeID:  localNodeID,
		peerNodeID:   peerNodeID,
		main:         main,
		blob:         blob,
		doc:          doc,
		blobs:        blobs,
		cfg:          cfg,
		logger:       log.WithComponent("syncsession").With().Str("peer", peerNodeID).Logger(),
		state:        StateOpening,
		onEvent:      onEvent,
		pendingPongs: make(map[uint32]time.Time),
	}
}

// State returns the session's current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	metrics.SessionStateTransitions.WithLabelValues(string(st)).Inc()
	s.logger.Debug().Str("state", string(st)).Msg("session state transition")
}

// Run drives the session through Opening -> ... -> Live, then stays in
// Live until ctx is canceled, the peer closes the stream, or an
// unrecoverable protocol error occurs. It always returns after emitting
// exactly one EventClosed.
func (s *Session) Run(ctx context.Context) error {
	metrics.SessionsActive.Inc()
	defer metrics.SessionsActive.Dec()

	timer := metrics.NewTimer()
	reason := "eof"
	err := s.run(ctx)
	if err != nil {
		reason = err.Error()
		s.onEvent(Event{Kind: EventError, PeerNodeID: s.peerNodeID, Err: err})
		metrics.SyncErrorsTotal.WithLabelValues(vaulterr.CodeOf(err)).Inc()
	} else {
		timer.ObserveDuration(metrics.HandshakeDuration)
	}
	s.setState(StateClosing)
	_ = s.main.Close()
	if s.blob != nil {
		_ = s.blob.Close()
	}
	s.onEvent(Event{Kind: EventClosed, PeerNodeID: s.peerNodeID, Reason: reason})
	return err
}

func (s *Session) run(ctx context.Context) error {
	s.setState(StateOpening)
	if err := s.handshake(ctx); err != nil {
		return err
	}
	s.setState(StateCatchup)
	if err := s.catchup(ctx); err != nil {
		return err
	}
	s.setState(StateBlobCatchup)
	if err := s.blobCatchup(ctx); err != nil {
		return err
	}
	s.setState(StateLive)
	s.onEvent(Event{Kind: EventSynced, PeerNodeID: s.peerNodeID})
	return s.live(ctx)
}

func (s *Session) sendMain(ctx context.Context, msg syncproto.Message) error {
	return s.main.Send(ctx, syncproto.Encode(msg, time.Now()))
}

func (s *Session) sendBlob(ctx context.Context, msg syncproto.Message) error {
	return s.blob.Send(ctx, syncproto.Encode(msg, time.Now()))
}

func (s *Session) recvMain(ctx context.Context) (syncproto.Message, error) {
	data, err := s.main.Recv(ctx)
	if err != nil {
		return nil, err
	}
	msg, _, err := syncproto.Decode(data)
	return msg, err
}

func (s *Session) recvBlob(ctx context.Context) (syncproto.Message, error) {
	data, err := s.blob.Recv(ctx)
	if err != nil {
		return nil, err
	}
	msg, _, err := syncproto.Decode(data)
	return msg, err
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, d)
}

func marshalVersion(v document.Version) []byte {
	data, _ := json.Marshal(v)
	return data
}

func unmarshalVersion(data []byte) (document.Version, error) {
	var v document.Version
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, vaulterr.Wrap(vaulterr.CodeSyncBadUpdate, err)
	}
	return v, nil
}

// versionAhead reports whether remote knows about an op from some actor
// that local hasn't seen yet.
func versionAhead(remote, local document.Version) bool {
	for actor, count := range remote {
		if count > local[actor] {
			return true
		}
	}
	return false
}

func errorf(code vaulterr.Code, format string, args ...any) error {
	return vaulterr.Wrap(code, fmt.Errorf(format, args...))
}
