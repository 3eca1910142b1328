package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"

	"golang.org/x/crypto/scrypt"

	"github.com/robcohen/peervault/pkg/vaulterr"
)

// DefaultScryptCost is the scrypt N parameter used for interactive
// password-based key derivation (roughly 100ms on commodity hardware).
const DefaultScryptCost = 32768

// NewSalt generates a random 16-byte salt for DeriveKey.
func NewSalt() ([]byte, error) {
	salt := make([]byte, 16)
	_, err := rand.Read(salt)
	return salt, err
}

// DeriveKey derives a 32-byte vault key from a user password and salt
// using scrypt with r=8, p=1, matching the interactive-login cost
// parameters from the original scrypt paper.
func DeriveKey(password string, salt []byte, cost int) ([]byte, error) {
	if cost <= 0 {
		cost = DefaultScryptCost
	}
	key, err := scrypt.Key([]byte(password), salt, cost, 8, 1, KeySize)
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.CodeCryptoInvalidKey, err)
	}
	return key, nil
}

// Fingerprint returns a short, shareable hex fingerprint of a key so two
// devices can confirm out-of-band that they hold the same vault key
// without exchanging the key itself.
func Fingerprint(key []byte) string {
	sum := sha256.Sum256(key)
	return hex.EncodeToString(sum[:8])
}
