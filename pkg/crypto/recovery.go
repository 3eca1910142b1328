package crypto

import (
	"crypto/sha256"
	"math/big"
	"strings"

	"github.com/robcohen/peervault/pkg/vaulterr"
)

// RecoveryWordCount is the number of words a recovery phrase encodes a
// 256-bit key into: 256 key bits + 8 checksum bits = 264 bits, and
// 264 / 11 bits-per-word (2048 = 2^11 word list) divides evenly into 24.
const RecoveryWordCount = 24

// EncodeRecoveryPhrase encodes a 32-byte vault key as a 24-word recovery
// phrase. The first byte of sha256(key) is appended as a checksum so
// DecodeRecoveryPhrase can detect most mistyped phrases.
func EncodeRecoveryPhrase(key []byte) ([]string, error) {
	if len(key) != KeySize {
		return nil, vaulterr.New(vaulterr.CodeCryptoInvalidKey, "key must be 32 bytes")
	}
	ensureWordlist()

	checksum := sha256.Sum256(key)
	payload := append(append([]byte{}, key...), checksum[0])

	bits := new(big.Int).SetBytes(payload)
	words := make([]string, RecoveryWordCount)
	mask := big.NewInt(2047) // 11 bits
	for i := RecoveryWordCount - 1; i >= 0; i-- {
		idx := new(big.Int).And(bits, mask).Int64()
		words[i] = wordlist[idx]
		bits.Rsh(bits, 11)
	}
	return words, nil
}

// DecodeRecoveryPhrase reverses EncodeRecoveryPhrase, returning the
// original 32-byte key and an error if the word count, a word, or the
// checksum doesn't match.
func DecodeRecoveryPhrase(words []string) ([]byte, error) {
	ensureWordlist()

	if len(words) != RecoveryWordCount {
		return nil, vaulterr.New(vaulterr.CodeCryptoInvalidKey, "recovery phrase must have 24 words")
	}

	bits := new(big.Int)
	for _, w := range words {
		idx, ok := wordIndex[strings.ToLower(strings.TrimSpace(w))]
		if !ok {
			return nil, vaulterr.New(vaulterr.CodeCryptoInvalidKey, "unknown word: "+w)
		}
		bits.Lsh(bits, 11)
		bits.Or(bits, big.NewInt(int64(idx)))
	}

	payload := bits.Bytes()
	// big.Int.Bytes() drops leading zero bytes; pad back to 33 bytes
	// (32-byte key + 1-byte checksum).
	if len(payload) < KeySize+1 {
		padded := make([]byte, KeySize+1)
		copy(padded[KeySize+1-len(payload):], payload)
		payload = padded
	}

	key := payload[:KeySize]
	checksum := payload[KeySize]

	want := sha256.Sum256(key)
	if checksum != want[0] {
		return nil, vaulterr.New(vaulterr.CodeCryptoInvalidKey, "recovery phrase checksum mismatch")
	}
	return key, nil
}
