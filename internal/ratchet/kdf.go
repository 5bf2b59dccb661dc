package ratchet

import (
	"axocore/internal/cryptoprim"
)

var (
	rootInfo  = []byte("axocore|ratchet|rk")
	msgInfo   = []byte("axocore|ratchet|mk")
	suppInfo  = []byte("axocore|ratchet|supplement")
	chainKeyConst byte = 0x02
	msgKeyConst   byte = 0x01
)

// kdfRK derives a new root key and chain key from a DH output, as the root
// chain step: HKDF(S.rootKey, x25519(...)).
func kdfRK(root, dh []byte) (newRoot, chainKey []byte, err error) {
	out, err := cryptoprim.HKDF(root, dh, rootInfo, 64)
	if err != nil {
		return nil, nil, err
	}
	return out[:32], out[32:64], nil
}

// kdfCK advances a chain key one step, returning the next chain key and the
// message key for the message just produced:
// MK = HMAC(chainKey, 0x01), CK' = HMAC(chainKey, 0x02).
func kdfCK(chainKey []byte) (nextChainKey, messageKey []byte) {
	messageKey = cryptoprim.HMACSHA256(chainKey, []byte{msgKeyConst})
	nextChainKey = cryptoprim.HMACSHA256(chainKey, []byte{chainKeyConst})
	return nextChainKey, messageKey
}

// messageKeyParts splits MK into (encKey, macKey, iv) via HKDF under the
// protocol label.
func messageKeyParts(mk []byte) (encKey, macKey []byte, iv [ivLen]byte, err error) {
	out, err := cryptoprim.HKDF(nil, mk, msgInfo, 32+32+ivLen)
	if err != nil {
		return nil, nil, iv, err
	}
	encKey = out[0:32]
	macKey = out[32:64]
	copy(iv[:], out[64:64+ivLen])
	return encKey, macKey, iv, nil
}

// supplementKeyParts derives the distinct (key, iv) pair used to encrypt
// message supplements under a label separate from the payload.
func supplementKeyParts(mk []byte) (key []byte, iv [ivLen]byte, err error) {
	out, err := cryptoprim.HKDF(nil, mk, suppInfo, 32+ivLen)
	if err != nil {
		return nil, iv, err
	}
	key = out[0:32]
	copy(iv[:], out[32:32+ivLen])
	return key, iv, nil
}
