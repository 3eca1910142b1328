package crypto

import "github.com/robcohen/peervault/pkg/vaulterr"

// KeySize is the size in bytes of a vault's symmetric key, used by both
// AEAD suites below.
const KeySize = 32

// Suite is an authenticated-encryption service bound to a single key.
// Two implementations are provided: AESGCMSuite (96-bit nonce, the
// default) and XChaChaSuite (192-bit nonce, for callers that prefer
// random-nonce safety over AES-NI throughput, e.g. long-lived streaming
// sessions that can't track a counter).
type Suite interface {
	// Seal encrypts plaintext, returning nonce||ciphertext||tag.
	Seal(plaintext []byte) ([]byte, error)
	// Open reverses Seal. Returns vaulterr crypto.tag-failed on auth failure.
	Open(sealed []byte) ([]byte, error)
	// NonceSize returns the nonce length this suite prepends to ciphertext.
	NonceSize() int
}

// NewSuite constructs a Suite for the given algorithm name ("aes-gcm" or
// "xchacha20-poly1305") and key.
func NewSuite(algorithm string, key []byte) (Suite, error) {
	if len(key) != KeySize {
		return nil, vaulterr.New(vaulterr.CodeCryptoInvalidKey, "key must be 32 bytes")
	}
	switch algorithm {
	case "", "aes-gcm":
		return newAESGCMSuite(key)
	case "xchacha20-poly1305":
		return newXChaChaSuite(key)
	default:
		return nil, vaulterr.New(vaulterr.CodeCryptoVersionUnsupport, algorithm)
	}
}
