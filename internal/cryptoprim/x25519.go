// Package cryptoprim provides the primitive building blocks the ratchet and
// session-establishment layers compose: X25519, Ed25519, HMAC-SHA256, HKDF,
// AES-256-CBC with PKCS#7 padding, and a compiler-proof wipe.
package cryptoprim

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/curve25519"

	"axocore/internal/domain"
)

// GenerateX25519 generates a new X25519 keypair, clamping the private key
// per RFC7748.
func GenerateX25519() (priv domain.X25519Private, pub domain.X25519Public, err error) {
	if _, err = rand.Read(priv[:]); err != nil {
		return priv, pub, fmt.Errorf("x25519: generate private key: %w", err)
	}
	ClampX25519PrivateKey(&priv)
	pubBytes, err := curve25519.X25519(priv.Slice(), curve25519.Basepoint)
	if err != nil {
		return priv, pub, fmt.Errorf("x25519: compute public key: %w", err)
	}
	copy(pub[:], pubBytes)
	return priv, pub, nil
}

// GenerateX25519KeyPair is a convenience wrapper over GenerateX25519.
func GenerateX25519KeyPair() (domain.X25519KeyPair, error) {
	priv, pub, err := GenerateX25519()
	if err != nil {
		return domain.X25519KeyPair{}, err
	}
	return domain.X25519KeyPair{Priv: priv, Pub: pub}, nil
}

// DH performs a Curve25519 Diffie-Hellman between priv and pub, returning a
// 32-byte shared secret.
func DH(priv domain.X25519Private, pub domain.X25519Public) ([]byte, error) {
	secret, err := curve25519.X25519(priv.Slice(), pub.Slice())
	if err != nil {
		return nil, fmt.Errorf("x25519: DH failed: %w", err)
	}
	return secret, nil
}

// ClampX25519PrivateKey applies RFC7748 clamping to a 32-byte scalar in place.
func ClampX25519PrivateKey(k *domain.X25519Private) {
	kb := (*k)[:]
	kb[0] &= 248
	kb[31] &= 127
	kb[31] |= 64
}
