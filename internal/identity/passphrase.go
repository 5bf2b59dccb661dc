package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/argon2"

	"axocore/internal/cryptoprim"
	"axocore/internal/domain"
	"axocore/internal/errs"
)

const (
	pageKeyBytes = 32
	saltBytes    = 16
)

// DerivePageKey derives the store's 32-byte page-encryption key from a
// user passphrase and a per-installation salt using Argon2id, producing
// the caller-supplied 32-byte key the encrypted store opens with. The
// returned key is the caller's to wipe once consumed.
func DerivePageKey(passphrase string, salt []byte) ([]byte, error) {
	if len(salt) != saltBytes {
		return nil, errs.New(errs.BadParams, "identity: salt must be 16 bytes")
	}
	return argon2.IDKey([]byte(passphrase), salt, 1<<16, 8*1024, 1, pageKeyBytes), nil
}

// NewSalt generates a fresh random salt for DerivePageKey.
func NewSalt() ([]byte, error) {
	return cryptoprim.RandBytes(saltBytes)
}

// Fingerprint returns the short, user-presented fingerprint of an X25519
// public key: SHA-256 truncated to 10 bytes, hex encoded.
func Fingerprint(pub domain.X25519Public) domain.Fingerprint {
	sum := sha256.Sum256(pub.Slice())
	return domain.Fingerprint(hex.EncodeToString(sum[:10]))
}

// FormatSalt and ParseSalt round-trip the salt for storage alongside the
// encrypted database file (the salt itself is not secret).
func FormatSalt(salt []byte) string { return hex.EncodeToString(salt) }

func ParseSalt(s string) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("identity: parse salt: %w", err)
	}
	return b, nil
}
