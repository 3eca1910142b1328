// Package tcptransport is a minimal plain-TCP implementation of
// pkg/peer.Transport, for cmd/peervault to drive real sync sessions
// between two processes on a LAN or over a reachable address. It is
// explicitly not the transport spec §1 describes as out of scope (a
// hole-punched, end-to-end encrypted direct connection) — it exists only
// so the CLI has something concrete to dial, the way the teacher's
// pkg/network filled in host-port plumbing Warren's scheduler needed but
// never specified as its own subsystem.
package tcptransport

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/robcohen/peervault/pkg/peer"
	"github.com/robcohen/peervault/pkg/syncsession"
	"github.com/robcohen/peervault/pkg/vaulterr"
)

// Transport listens on one TCP address and rendezvous-pairs the two
// connections (main, blob) a dialer opens per session by the ticket each
// connection announces first.
type Transport struct {
	addr string
	ln   net.Listener

	mu      sync.Mutex
	pending map[string]bool        // tickets this node has registered as redeemable
	rendez  map[string]*rendezvous // ticket -> in-flight accept pairing
	inbound chan peer.Inbound
}

type rendezvous struct {
	main, blob net.Conn
}

// New starts listening on addr ("host:port"; use ":0" to pick a free
// port) and returns a Transport plus the address it ended up bound to.
func New(addr string) (*Transport, string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, "", vaulterr.Wrap(vaulterr.CodeTransportNotInit, err)
	}
	t := &Transport{
		addr:    ln.Addr().String(),
		ln:      ln,
		pending: make(map[string]bool),
		rendez:  make(map[string]*rendezvous),
		inbound: make(chan peer.Inbound, 16),
	}
	go t.acceptLoop()
	return t, t.addr, nil
}

// Addr returns the bound listen address, used to build an invite string.
func (t *Transport) Addr() string { return t.addr }

// EncodeInvite combines this transport's address with a raw ticket minted
// by pkg/peer into the compound string a user shares out of band.
func (t *Transport) EncodeInvite(ticket string) string {
	return fmt.Sprintf("%s/%s", t.addr, ticket)
}

// decodeInvite splits a compound "host:port/ticket" string back apart.
func decodeInvite(s string) (addr, ticket string, err error) {
	idx := strings.LastIndex(s, "/")
	if idx < 0 {
		return "", "", vaulterr.New(vaulterr.CodeTransportInvalidTicket, "malformed invite: missing address")
	}
	return s[:idx], s[idx+1:], nil
}

func (t *Transport) RegisterInvite(ctx context.Context, ticket string) error {
	t.mu.Lock()
	t.pending[ticket] = true
	t.mu.Unlock()
	return nil
}

// Dial connects two TCP connections to the invite's address, tags each
// with role+ticket, and returns them as the main and blob streams.
func (t *Transport) Dial(ctx context.Context, invite string) (main, blob syncsession.Stream, peerNodeID string, err error) {
	addr, ticket, err := decodeInvite(invite)
	if err != nil {
		return nil, nil, "", err
	}

	mainConn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return nil, nil, "", vaulterr.Wrap(vaulterr.CodeNetworkUnreachable, err)
	}
	if err := writeHello(mainConn, "main", ticket); err != nil {
		mainConn.Close()
		return nil, nil, "", vaulterr.Wrap(vaulterr.CodeTransportNotInit, err)
	}

	blobConn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		mainConn.Close()
		return nil, nil, "", vaulterr.Wrap(vaulterr.CodeNetworkUnreachable, err)
	}
	if err := writeHello(blobConn, "blob", ticket); err != nil {
		mainConn.Close()
		blobConn.Close()
		return nil, nil, "", vaulterr.Wrap(vaulterr.CodeTransportNotInit, err)
	}

	nodeID, err := readHello(mainConn)
	if err != nil {
		mainConn.Close()
		blobConn.Close()
		return nil, nil, "", vaulterr.Wrap(vaulterr.CodeTransportNotInit, err)
	}
	if _, err := readHello(blobConn); err != nil {
		mainConn.Close()
		blobConn.Close()
		return nil, nil, "", vaulterr.Wrap(vaulterr.CodeTransportNotInit, err)
	}

	return &netStream{conn: mainConn}, &netStream{conn: blobConn}, nodeID, nil
}

func (t *Transport) Listen(ctx context.Context) (<-chan peer.Inbound, error) {
	go func() {
		<-ctx.Done()
		_ = t.ln.Close()
	}()
	return t.inbound, nil
}

func (t *Transport) acceptLoop() {
	for {
		conn, err := t.ln.Accept()
		if err != nil {
			close(t.inbound)
			return
		}
		go t.handleConn(conn)
	}
}

// handleConn reads the connecting side's role+ticket announcement, replies
// with the fixed localNodeTag (this transport holds no node ID of its own),
// then pairs it with its sibling connection (same ticket, opposite role)
// before emitting one Inbound.
func (t *Transport) handleConn(conn net.Conn) {
	role, ticket, err := readRoleTicket(conn)
	if err != nil {
		conn.Close()
		return
	}
	t.mu.Lock()
	if !t.pending[ticket] {
		t.mu.Unlock()
		conn.Close()
		return
	}
	rz, ok := t.rendez[ticket]
	if !ok {
		rz = &rendezvous{}
		t.rendez[ticket] = rz
	}
	if role == "main" {
		rz.main = conn
	} else {
		rz.blob = conn
	}
	complete := rz.main != nil && rz.blob != nil
	if complete {
		delete(t.rendez, ticket)
		delete(t.pending, ticket)
	}
	t.mu.Unlock()

	if err := writeHello(conn, role, localNodeTag); err != nil {
		return
	}
	if complete {
		peerNodeID := ticket[:minInt(8, len(ticket))]
		t.inbound <- peer.Inbound{PeerNodeID: peerNodeID, Main: &netStream{conn: rz.main}, Blob: &netStream{conn: rz.blob}}
	}
}

const localNodeTag = "peer"

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func writeHello(conn net.Conn, role, payload string) error {
	msg := role + ":" + payload
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(msg)))
	if _, err := conn.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := conn.Write([]byte(msg))
	return err
}

func readRoleTicket(conn net.Conn) (role, ticket string, err error) {
	raw, err := readHelloRaw(conn)
	if err != nil {
		return "", "", err
	}
	idx := strings.IndexByte(raw, ':')
	if idx < 0 {
		return "", "", fmt.Errorf("malformed hello")
	}
	return raw[:idx], raw[idx+1:], nil
}

func readHello(conn net.Conn) (string, error) {
	raw, err := readHelloRaw(conn)
	if err != nil {
		return "", err
	}
	idx := strings.IndexByte(raw, ':')
	if idx < 0 {
		return raw, nil
	}
	return raw[idx+1:], nil
}

func readHelloRaw(conn net.Conn) (string, error) {
	var lenBuf [2]byte
	if _, err := io.ReadFull(conn, lenBuf[:]); err != nil {
		return "", err
	}
	n := binary.BigEndian.Uint16(lenBuf[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// netStream frames pkg/syncsession messages over a raw TCP connection with
// a u32 length prefix, applying ctx's deadline (if any) as the connection's
// deadline; canceling a ctx that has no deadline does not interrupt a
// blocked Send or Recv.
type netStream struct {
	mu   sync.Mutex
	conn net.Conn
}

func (s *netStream) Send(ctx context.Context, frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if dl, ok := ctx.Deadline(); ok {
		_ = s.conn.SetWriteDeadline(dl)
	} else {
		_ = s.conn.SetWriteDeadline(time.Time{})
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(frame)))
	if _, err := s.conn.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := s.conn.Write(frame)
	return err
}

func (s *netStream) Recv(ctx context.Context) ([]byte, error) {
	if dl, ok := ctx.Deadline(); ok {
		_ = s.conn.SetReadDeadline(dl)
	} else {
		_ = s.conn.SetReadDeadline(time.Time{})
	}
	var lenBuf [4]byte
	if _, err := io.ReadFull(s.conn, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(s.conn, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (s *netStream) Close() error { return s.conn.Close() }

// RandomNodeID mints a node identifier for first run, the way a host
// would persist a device ID alongside its data directory.
func RandomNodeID() string {
	b := make([]byte, 8)
	_, _ = io.ReadFull(rand.Reader, b)
	return hex.EncodeToString(b)
}
