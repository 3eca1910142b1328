package cloudsync_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robcohen/peervault/pkg/cloudsync"
	"github.com/robcohen/peervault/pkg/crypto"
	"github.com/robcohen/peervault/pkg/document"
	"github.com/robcohen/peervault/pkg/storage"
)

// fakeBucket is a minimal in-memory object store backing an httptest server,
// implementing the same flat PUT/GET/DELETE/LIST-by-prefix contract a real
// signed endpoint would.
type fakeBucket struct {
	mu   sync.Mutex
	objs map[string][]byte
}

func newFakeBucketServer(t *testing.T, bucket string) *httptest.Server {
	t.Helper()
	fb := &fakeBucket{objs: make(map[string][]byte)}
	mux := http.NewServeMux()
	mux.HandleFunc("/"+bucket+"/", func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimPrefix(r.URL.Path, "/"+bucket+"/")
		fb.mu.Lock()
		defer fb.mu.Unlock()
		switch r.Method {
		case http.MethodPut:
			body, _ := io.ReadAll(r.Body)
			fb.objs[key] = body
			w.WriteHeader(http.StatusOK)
		case http.MethodGet:
			data, ok := fb.objs[key]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.Write(data)
		case http.MethodDelete:
			delete(fb.objs, key)
			w.WriteHeader(http.StatusOK)
		}
	})
	mux.HandleFunc("/"+bucket, func(w http.ResponseWriter, r *http.Request) {
		q, _ := url.ParseQuery(r.URL.RawQuery)
		prefix := q.Get("prefix")
		fb.mu.Lock()
		var keys []string
		for k := range fb.objs {
			if strings.HasPrefix(k, prefix) {
				keys = append(keys, k)
			}
		}
		fb.mu.Unlock()
		resp, _ := json.Marshal(map[string]any{"keys": keys, "isTruncated": false})
		w.Write(resp)
	})
	return httptest.NewServer(mux)
}

func TestCloudSyncPushPullConverges(t *testing.T) {
	ctx := context.Background()
	srv := newFakeBucketServer(t, "vaults")
	defer srv.Close()

	key := make([]byte, crypto.KeySize)
	suite, err := crypto.NewSuite("aes-gcm", key)
	require.NoError(t, err)

	docA := document.New(storage.NewMemAdapter(), "alice")
	require.NoError(t, docA.Initialize(ctx))
	docA.AdoptVaultID("shared-vault")

	docB := document.New(storage.NewMemAdapter(), "bob")
	require.NoError(t, docB.Initialize(ctx))
	docB.AdoptVaultID("shared-vault")

	clientCfg := cloudsync.ClientConfig{
		Endpoint: srv.URL,
		Bucket:   "vaults",
		Creds:    cloudsync.Credentials{AccessKey: "ak", SecretKey: "sk", Region: "local"},
	}
	layerA := cloudsync.New(cloudsync.NewClient(clientCfg, nil), "prefix", suite, "fp", docA, storage.NewMemAdapter())
	layerB := cloudsync.New(cloudsync.NewClient(clientCfg, nil), "prefix", suite, "fp", docB, storage.NewMemAdapter())

	require.NoError(t, docA.HandleFileCreate(ctx, "/a.txt"))
	require.NoError(t, docA.SetTextContent(ctx, "/a.txt", "from alice"))

	pushed, err := layerA.Push(ctx)
	require.NoError(t, err)
	require.True(t, pushed)

	pulled, err := layerB.Pull(ctx)
	require.NoError(t, err)
	require.True(t, pulled)

	content, err := docB.GetContent("/a.txt")
	require.NoError(t, err)
	require.Equal(t, "from alice", content)

	// A second pull with nothing new is a no-op.
	pulled, err = layerB.Pull(ctx)
	require.NoError(t, err)
	require.False(t, pulled)
}
