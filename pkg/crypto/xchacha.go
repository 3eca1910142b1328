package crypto

import (
	"crypto/rand"
	"io"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/robcohen/peervault/pkg/vaulterr"
)

// XChaChaSuite implements Suite using XChaCha20-Poly1305 with a 192-bit
// random nonce, large enough that random generation never needs a nonce
// counter even across a vault's entire lifetime.
type XChaChaSuite struct {
	aead interface {
		NonceSize() int
		Overhead() int
		Seal(dst, nonce, plaintext, additionalData []byte) []byte
		Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
	}
}

func newXChaChaSuite(key []byte) (*XChaChaSuite, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.CodeCryptoInvalidKey, err)
	}
	return &XChaChaSuite{aead: aead}, nil
}

func (s *XChaChaSuite) NonceSize() int { return s.aead.NonceSize() }

func (s *XChaChaSuite) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, vaulterr.Wrap(vaulterr.CodeCryptoKeyMissing, err)
	}
	return s.aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (s *XChaChaSuite) Open(sealed []byte) ([]byte, error) {
	n := s.aead.NonceSize()
	if len(sealed) < n {
		return nil, vaulterr.New(vaulterr.CodeCryptoTagFailed, "ciphertext shorter than nonce")
	}
	nonce, ciphertext := sealed[:n], sealed[n:]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.CodeCryptoTagFailed, err)
	}
	return plaintext, nil
}
