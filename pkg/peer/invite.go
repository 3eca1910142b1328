package peer

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/robcohen/peervault/pkg/vaulterr"
)

// inviteTTL is how long a minted pairing ticket remains valid for
// RegisterInvite to honor, grounded on the teacher's join-token pattern
// but shortened: a vault pairing ticket is meant to be redeemed in the
// same conversation it was shared in, not held open indefinitely.
const inviteTTL = 15 * time.Minute

// invite is a locally minted pairing ticket.
type invite struct {
	Ticket    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// inviteManager mints and tracks pairing tickets this node has issued,
// mirroring pkg/manager's TokenManager (join tokens) adapted to vault
// pairing: a vault invite carries no role, and expires far sooner.
type inviteManager struct {
	mu      sync.RWMutex
	invites map[string]*invite
}

func newInviteManager() *inviteManager {
	return &inviteManager{invites: make(map[string]*invite)}
}

func (im *inviteManager) generate() (*invite, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, vaulterr.Wrap(vaulterr.CodeTransportNotInit, err)
	}
	ticket := hex.EncodeToString(raw)
	now := time.Now()
	inv := &invite{Ticket: ticket, CreatedAt: now, ExpiresAt: now.Add(inviteTTL)}

	im.mu.Lock()
	im.invites[ticket] = inv
	im.mu.Unlock()
	return inv, nil
}

// list returns every invite this node currently has outstanding.
func (im *inviteManager) list() []*invite {
	im.mu.RLock()
	defer im.mu.RUnlock()
	out := make([]*invite, 0, len(im.invites))
	for _, inv := range im.invites {
		out = append(out, inv)
	}
	return out
}

func (im *inviteManager) cleanupExpired() {
	im.mu.Lock()
	defer im.mu.Unlock()
	now := time.Now()
	for ticket, inv := range im.invites {
		if now.After(inv.ExpiresAt) {
			delete(im.invites, ticket)
		}
	}
}
