package encstorage

import (
	"context"

	"github.com/robcohen/peervault/pkg/crypto"
	"github.com/robcohen/peervault/pkg/storage"
	"github.com/robcohen/peervault/pkg/vaulterr"
)

const (
	magic         = "PVE1"
	headerVersion = 0x01
	headerSize    = 16
)

// Wrapper implements storage.Adapter by encrypting every value written
// through it and decrypting every value read back, using the PVE1 header
// format:
//
//	| magic "PVE1" (4) | version 0x01 (1) | reserved (11) | nonce || ciphertext+tag |
type Wrapper struct {
	next  storage.Adapter
	suite crypto.Suite
}

// New wraps next with encryption using suite. suite must not be nil.
func New(next storage.Adapter, suite crypto.Suite) (*Wrapper, error) {
	if suite == nil {
		return nil, vaulterr.New(vaulterr.CodeCryptoKeyMissing, "encstorage: suite is required")
	}
	return &Wrapper{next: next, suite: suite}, nil
}

func hasHeader(value []byte) bool {
	return len(value) >= headerSize && string(value[:4]) == magic
}

func (w *Wrapper) encode(plaintext []byte) ([]byte, error) {
	sealed, err := w.suite.Seal(plaintext)
	if err != nil {
		return nil, err
	}
	header := make([]byte, headerSize)
	copy(header[:4], magic)
	header[4] = headerVersion
	return append(header, sealed...), nil
}

func (w *Wrapper) decode(value []byte) ([]byte, error) {
	if !hasHeader(value) {
		// Backward-compatible plaintext passthrough.
		return value, nil
	}
	if value[4] != headerVersion {
		return nil, vaulterr.New(vaulterr.CodeCryptoVersionUnsupport, "unsupported PVE1 version")
	}
	return w.suite.Open(value[headerSize:])
}

func (w *Wrapper) Read(ctx context.Context, key string) ([]byte, error) {
	raw, err := w.next.Read(ctx, key)
	if err != nil {
		return nil, err
	}
	return w.decode(raw)
}

func (w *Wrapper) Write(ctx context.Context, key string, value []byte) error {
	encoded, err := w.encode(value)
	if err != nil {
		return err
	}
	return w.next.Write(ctx, key, encoded)
}

func (w *Wrapper) Delete(ctx context.Context, key string) error {
	return w.next.Delete(ctx, key)
}

func (w *Wrapper) List(ctx context.Context, prefix string) ([]string, error) {
	return w.next.List(ctx, prefix)
}

func (w *Wrapper) Exists(ctx context.Context, key string) (bool, error) {
	return w.next.Exists(ctx, key)
}

func (w *Wrapper) Close() error { return w.next.Close() }

// ReencryptAll rewrites every key under prefix through the wrapper's
// current suite, reporting progress via onProgress(done, total). Used
// after a vault adopts or rotates its encryption key.
func (w *Wrapper) ReencryptAll(ctx context.Context, prefix string, onProgress func(done, total int)) error {
	keys, err := w.next.List(ctx, prefix)
	if err != nil {
		return err
	}
	for i, key := range keys {
		raw, err := w.next.Read(ctx, key)
		if err != nil {
			return err
		}
		plaintext, err := w.decode(raw)
		if err != nil {
			return err
		}
		encoded, err := w.encode(plaintext)
		if err != nil {
			return err
		}
		if err := w.next.Write(ctx, key, encoded); err != nil {
			return err
		}
		if onProgress != nil {
			onProgress(i+1, len(keys))
		}
	}
	return nil
}

// DecryptAll rewrites every key under prefix back to plaintext, used when
// a vault owner disables at-rest encryption.
func (w *Wrapper) DecryptAll(ctx context.Context, prefix string, onProgress func(done, total int)) error {
	keys, err := w.next.List(ctx, prefix)
	if err != nil {
		return err
	}
	for i, key := range keys {
		raw, err := w.next.Read(ctx, key)
		if err != nil {
			return err
		}
		plaintext, err := w.decode(raw)
		if err != nil {
			return err
		}
		if err := w.next.Write(ctx, key, plaintext); err != nil {
			return err
		}
		if onProgress != nil {
			onProgress(i+1, len(keys))
		}
	}
	return nil
}
