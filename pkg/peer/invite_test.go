package peer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestInviteManagerGenerateIsUnique(t *testing.T) {
	im := newInviteManager()
	a, err := im.generate()
	require.NoError(t, err)
	b, err := im.generate()
	require.NoError(t, err)
	require.NotEqual(t, a.Ticket, b.Ticket)
	require.Len(t, im.list(), 2)
}

func TestInviteManagerCleanupExpired(t *testing.T) {
	im := newInviteManager()
	inv, err := im.generate()
	require.NoError(t, err)

	im.mu.Lock()
	im.invites[inv.Ticket].ExpiresAt = time.Now().Add(-time.Second)
	im.mu.Unlock()

	im.cleanupExpired()
	require.Empty(t, im.list())
}
