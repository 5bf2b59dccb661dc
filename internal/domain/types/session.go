package types

// Conversation is the ratchet state for one (localUser, remoteUser,
// remoteDevice) triple. A session exists iff RootKey is set.
type Conversation struct {
	ID ConversationID `json:"-"`

	RootKey []byte `json:"root_key"`

	ChainKeySend []byte `json:"chain_key_send,omitempty"`
	ChainKeyRecv []byte `json:"chain_key_recv,omitempty"`

	DHRatchetSend X25519KeyPair `json:"dh_ratchet_send"`
	DHRatchetRecv X25519Public  `json:"dh_ratchet_recv"`

	Ns  uint32 `json:"ns"`
	Nr  uint32 `json:"nr"`
	PNs uint32 `json:"pns"`

	IdentityRemote X25519Public `json:"identity_remote"`

	// PendingEstablish is set by the session establisher on a freshly
	// bootstrapped initiator session and consumed (cleared) by the first
	// successful Encrypt call, which stamps it onto that message's header.
	PendingEstablish *EstablishmentBlock `json:"pending_establish,omitempty"`

	// ZRTPVerifyState is an opaque tri-state carried through state
	// reports; it has no cryptographic meaning to this package.
	ZRTPVerifyState byte `json:"zrtp_verify_state"`
}

// HasSession reports whether a ratchet has been established for this
// conversation: a session exists iff rootKey is set.
func (c *Conversation) HasSession() bool { return len(c.RootKey) > 0 }

// StagedMessageKey is a message key derived ahead of delivery order to
// recover an out-of-order message.
type StagedMessageKey struct {
	LocalUser    Username
	RemoteUser   Username
	RemoteDevice DeviceID
	Ns           uint32
	MessageKey   []byte // MK, 32 bytes; encKey/macKey/iv are re-derived from it on consumption
	InsertedUTC  int64
}
