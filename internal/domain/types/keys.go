package types

// X25519Public is a Curve25519 public key.
type X25519Public [32]byte

// Slice returns the key as a []byte.
func (p X25519Public) Slice() []byte { return p[:] }

// IsZero reports whether the key is the all-zero value (absent).
func (p X25519Public) IsZero() bool { return p == X25519Public{} }

// X25519Private is a Curve25519 private scalar.
type X25519Private [32]byte

// Slice returns the key as a []byte.
func (k X25519Private) Slice() []byte { return k[:] }

// X25519KeyPair is a Curve25519 keypair used for ratchet steps.
type X25519KeyPair struct {
	Priv X25519Private `json:"priv"`
	Pub  X25519Public  `json:"pub"`
}

// IsZero reports whether the keypair was never assigned.
func (kp X25519KeyPair) IsZero() bool { return kp.Pub.IsZero() }

// Ed25519Public is an Ed25519 signing public key, used to verify signed
// pre-keys during session establishment.
type Ed25519Public [32]byte

// Slice returns the key as a []byte.
func (p Ed25519Public) Slice() []byte { return p[:] }

// Ed25519Private is an Ed25519 signing private key.
type Ed25519Private [64]byte

// Slice returns the key as a []byte.
func (k Ed25519Private) Slice() []byte { return k[:] }
