package types

// Identity holds the local installation's long-term keys: an X25519 pair
// used for Diffie-Hellman agreement and an Ed25519 pair used to sign the
// published signed pre-key. Created once per installed instance and
// immutable thereafter.
type Identity struct {
	UserName Username       `json:"user_name"`
	XPub     X25519Public   `json:"xpub"`
	XPriv    X25519Private  `json:"xpriv"`
	EdPub    Ed25519Public  `json:"edpub"`
	EdPriv   Ed25519Private `json:"edpriv"`
}
