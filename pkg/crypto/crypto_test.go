package crypto

import (
	"bytes"
	"testing"
)

func TestNewSuite(t *testing.T) {
	tests := []struct {
		name    string
		algo    string
		keyLen  int
		wantErr bool
	}{
		{name: "aes-gcm default", algo: "", keyLen: 32, wantErr: false},
		{name: "aes-gcm explicit", algo: "aes-gcm", keyLen: 32, wantErr: false},
		{name: "xchacha20-poly1305", algo: "xchacha20-poly1305", keyLen: 32, wantErr: false},
		{name: "unknown algorithm", algo: "rot13", keyLen: 32, wantErr: true},
		{name: "short key", algo: "aes-gcm", keyLen: 16, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := make([]byte, tt.keyLen)
			s, err := NewSuite(tt.algo, key)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewSuite() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && s == nil {
				t.Error("NewSuite() returned nil without error")
			}
		})
	}
}

func TestSealOpenRoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{0x11}, KeySize)
	plaintext := []byte("the quick brown fox")

	for _, algo := range []string{"aes-gcm", "xchacha20-poly1305"} {
		t.Run(algo, func(t *testing.T) {
			s, err := NewSuite(algo, key)
			if err != nil {
				t.Fatalf("NewSuite: %v", err)
			}
			sealed, err := s.Seal(plaintext)
			if err != nil {
				t.Fatalf("Seal: %v", err)
			}
			if len(sealed) <= len(plaintext) {
				t.Fatalf("sealed output not larger than plaintext")
			}
			opened, err := s.Open(sealed)
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			if !bytes.Equal(opened, plaintext) {
				t.Fatalf("round trip mismatch: got %q want %q", opened, plaintext)
			}
		})
	}
}

func TestOpenRejectsTamperedCiphertext(t *testing.T) {
	key := bytes.Repeat([]byte{0x22}, KeySize)
	s, err := NewSuite("aes-gcm", key)
	if err != nil {
		t.Fatalf("NewSuite: %v", err)
	}
	sealed, err := s.Seal([]byte("secret"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	sealed[len(sealed)-1] ^= 0xFF

	if _, err := s.Open(sealed); err == nil {
		t.Fatal("Open() succeeded on tampered ciphertext")
	}
}

func TestDeriveKeyDeterministic(t *testing.T) {
	salt := []byte("0123456789abcdef")
	k1, err := DeriveKey("hunter2", salt, 1024)
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	k2, err := DeriveKey("hunter2", salt, 1024)
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	if !bytes.Equal(k1, k2) {
		t.Fatal("DeriveKey not deterministic for same password/salt")
	}

	k3, _ := DeriveKey("different", salt, 1024)
	if bytes.Equal(k1, k3) {
		t.Fatal("DeriveKey produced same key for different passwords")
	}
}

func TestFingerprintStable(t *testing.T) {
	key := bytes.Repeat([]byte{0x33}, KeySize)
	if Fingerprint(key) != Fingerprint(key) {
		t.Fatal("Fingerprint not stable for same key")
	}
	other := bytes.Repeat([]byte{0x44}, KeySize)
	if Fingerprint(key) == Fingerprint(other) {
		t.Fatal("Fingerprint collided for different keys")
	}
}

func TestRecoveryPhraseRoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{0x55}, KeySize)
	words, err := EncodeRecoveryPhrase(key)
	if err != nil {
		t.Fatalf("EncodeRecoveryPhrase: %v", err)
	}
	if len(words) != RecoveryWordCount {
		t.Fatalf("got %d words, want %d", len(words), RecoveryWordCount)
	}

	decoded, err := DecodeRecoveryPhrase(words)
	if err != nil {
		t.Fatalf("DecodeRecoveryPhrase: %v", err)
	}
	if !bytes.Equal(decoded, key) {
		t.Fatalf("round trip mismatch: got %x want %x", decoded, key)
	}
}

func TestRecoveryPhraseRejectsBadChecksum(t *testing.T) {
	key := bytes.Repeat([]byte{0x66}, KeySize)
	words, err := EncodeRecoveryPhrase(key)
	if err != nil {
		t.Fatalf("EncodeRecoveryPhrase: %v", err)
	}

	// Corrupt one word to a different valid word, which should flip the
	// decoded payload and fail the checksum.
	words[0] = wordlist[(wordIndex[words[0]]+1)%2048]

	if _, err := DecodeRecoveryPhrase(words); err == nil {
		t.Fatal("DecodeRecoveryPhrase accepted a corrupted phrase")
	}
}
