package encstorage

import (
	"bytes"
	"context"
	"testing"

	"github.com/robcohen/peervault/pkg/crypto"
	"github.com/robcohen/peervault/pkg/storage"
)

func newTestWrapper(t *testing.T) (*Wrapper, storage.Adapter) {
	t.Helper()
	key := bytes.Repeat([]byte{0x77}, crypto.KeySize)
	suite, err := crypto.NewSuite("aes-gcm", key)
	if err != nil {
		t.Fatalf("NewSuite: %v", err)
	}
	backing := storage.NewMemAdapter()
	w, err := New(backing, suite)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return w, backing
}

func TestWrapperRoundTrip(t *testing.T) {
	ctx := context.Background()
	w, backing := newTestWrapper(t)

	if err := w.Write(ctx, "blob:abc", []byte("hello world")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	raw, err := backing.Read(ctx, "blob:abc")
	if err != nil {
		t.Fatalf("backing.Read: %v", err)
	}
	if !hasHeader(raw) {
		t.Fatal("expected PVE1 header on underlying stored value")
	}
	if bytes.Contains(raw, []byte("hello world")) {
		t.Fatal("plaintext leaked into underlying storage")
	}

	got, err := w.Read(ctx, "blob:abc")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "hello world" {
		t.Fatalf("got %q, want %q", got, "hello world")
	}
}

func TestWrapperPassthroughPlaintext(t *testing.T) {
	ctx := context.Background()
	w, backing := newTestWrapper(t)

	if err := backing.Write(ctx, "legacy-key", []byte("unencrypted value")); err != nil {
		t.Fatalf("backing.Write: %v", err)
	}

	got, err := w.Read(ctx, "legacy-key")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "unencrypted value" {
		t.Fatalf("got %q, want passthrough of plaintext", got)
	}
}

func TestReencryptAll(t *testing.T) {
	ctx := context.Background()
	w, backing := newTestWrapper(t)

	if err := backing.Write(ctx, "blob:a", []byte("plain a")); err != nil {
		t.Fatalf("backing.Write: %v", err)
	}
	if err := w.Write(ctx, "blob:b", []byte("already enc b")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	var seen []int
	err := w.ReencryptAll(ctx, "blob:", func(done, total int) {
		seen = append(seen, done)
		if total != 2 {
			t.Fatalf("total = %d, want 2", total)
		}
	})
	if err != nil {
		t.Fatalf("ReencryptAll: %v", err)
	}
	if len(seen) != 2 {
		t.Fatalf("progress callback called %d times, want 2", len(seen))
	}

	raw, err := backing.Read(ctx, "blob:a")
	if err != nil {
		t.Fatalf("backing.Read: %v", err)
	}
	if !hasHeader(raw) {
		t.Fatal("expected blob:a to be encrypted after ReencryptAll")
	}

	got, err := w.Read(ctx, "blob:a")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "plain a" {
		t.Fatalf("got %q, want %q", got, "plain a")
	}
}
