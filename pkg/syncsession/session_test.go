package syncsession_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robcohen/peervault/pkg/blobstore"
	"github.com/robcohen/peervault/pkg/document"
	"github.com/robcohen/peervault/pkg/storage"
	"github.com/robcohen/peervault/pkg/syncsession"
)

// pipeStream is an in-process Stream over a pair of buffered channels,
// standing in for a real transport in tests.
type pipeStream struct {
	out chan []byte
	in  chan []byte
}

func newPipe() (a, b *pipeStream) {
	ab := make(chan []byte, 64)
	ba := make(chan []byte, 64)
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
	case data := <-p.in:
		return data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *pipeStream) Close() error { return nil }

func testConfig() syncsession.Config {
	cfg := syncsession.DefaultConfig()
	cfg.HandshakeTimeout = 5 * time.Second
	cfg.BlobBatchTimeout = 5 * time.Second
	cfg.PingInterval = time.Hour
	return cfg
}

func newVault(t *testing.T, actor string) (*document.Manager, *blobstore.Store) {
	t.Helper()
	doc := document.New(storage.NewMemAdapter(), actor)
	require.NoError(t, doc.Initialize(context.Background()))
	blobs := blobstore.New(storage.NewMemAdapter(), 0)
	return doc, blobs
}

func TestSessionConvergesTwoEmptyVaults(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	docA, blobsA := newVault(t, "alice")
	docB, blobsB := newVault(t, "bob")

	require.NoError(t, docA.HandleFileCreate(ctx, "/notes.txt"))
	require.NoError(t, docA.SetTextContent(ctx, "/notes.txt", "hello from alice"))

	mainAB, mainBA := newPipe()
	blobAB, blobBA := newPipe()

	autoAccept := func(e syncsession.Event) {
		if e.Kind == syncsession.EventVaultAdoption {
			e.Respond(true)
		}
	}
	var aEvents, bEvents []syncsession.Event
	sessA := syncsession.New("alice", "bob", mainAB, blobAB, docA, blobsA, testConfig(), func(e syncsession.Event) {
		aEvents = append(aEvents, e)
		autoAccept(e)
	})
	sessB := syncsession.New("bob", "alice", mainBA, blobBA, docB, blobsB, testConfig(), func(e syncsession.Event) {
		bEvents = append(bEvents, e)
		autoAccept(e)
	})

	liveCtx, liveCancel := context.WithCancel(ctx)
	errA := make(chan error, 1)
	errB := make(chan error, 1)
	go func() { errA <- sessA.Run(liveCtx) }()
	go func() { errB <- sessB.Run(liveCtx) }()

	deadline := time.After(3 * time.Second)
waitSynced:
	for {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for sessions to reach Live")
		default:
		}
		if sessA.State() == syncsession.StateLive && sessB.State() == syncsession.StateLive {
			break waitSynced
		}
		time.Sleep(10 * time.Millisecond)
	}

	content, err := docB.GetContent("/notes.txt")
	require.NoError(t, err)
	require.Equal(t, "hello from alice", content)

	liveCancel()
	require.NoError(t, <-errA)
	require.NoError(t, <-errB)
}
