package types

// OneTimePreKeyPair is the full (private+public) one-time pre-key stored
// locally; consumed and deleted on first inbound use.
type OneTimePreKeyPair struct {
	ID   PreKeyID      `json:"id"`
	Priv X25519Private `json:"priv"`
	Pub  X25519Public  `json:"pub"`
}

// OneTimePreKeyPublic is the public half published to the relay.
type OneTimePreKeyPublic struct {
	ID  PreKeyID     `json:"id"`
	Pub X25519Public `json:"pub"`
}

// SignedPreKeyPair is the current signed pre-key, rotated periodically and
// re-signed with the identity's Ed25519 key.
type SignedPreKeyPair struct {
	ID        SignedPreKeyID `json:"id"`
	Priv      X25519Private  `json:"priv"`
	Pub       X25519Public   `json:"pub"`
	Signature []byte         `json:"signature"`
}

// PreKeyBundle is the set of public keys fetched from the relay to
// bootstrap a new session.
type PreKeyBundle struct {
	Username        Username             `json:"username"`
	IdentityKey     X25519Public         `json:"identity_key"`
	SigningKey      Ed25519Public        `json:"signing_key"`
	SignedPreKeyID  SignedPreKeyID       `json:"signed_pre_key_id"`
	SignedPreKey    X25519Public         `json:"signed_pre_key"`
	SignedPreKeySig []byte               `json:"signed_pre_key_sig"`
	OneTimePreKey   *OneTimePreKeyPublic `json:"one_time_pre_key,omitempty"`
}
