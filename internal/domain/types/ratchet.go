package types

// RatchetHeader is the parsed form of the fixed-layout header that precedes
// every envelope's ciphertext.
type RatchetHeader struct {
	DHRatchetPub X25519Public
	PNs          uint32
	Ns           uint32
	Establish    *EstablishmentBlock
}

// EstablishmentBlock carries the X3DH handshake parameters on the first
// envelope of a freshly bootstrapped session.
type EstablishmentBlock struct {
	PreKeyID       PreKeyID
	SignedPreKeyID SignedPreKeyID
	SenderIdentity X25519Public
	SenderBase     X25519Public
}
