// Package ratchet implements the per-conversation Double Ratchet: the DH
// ratchet step taken lazily on first send after a peer's new public key
// arrives, the symmetric chain-key advance producing one message key per
// envelope, and the bit-exact wire codec that carries a header, optional
// establishment block, IV, ciphertext and truncated HMAC. Sealing here
// is AES-256-CBC with a detached HMAC-SHA256 tag instead of an AEAD.
package ratchet

import (
	"crypto/subtle"

	"axocore/internal/cryptoprim"
	"axocore/internal/domain"
	"axocore/internal/errs"
)

// maxSkippedGap bounds how many message keys a single envelope may force
// the engine to derive ahead of delivery order; gaps beyond this return
// ChainGapTooLarge rather than silently burning memory on a
// malicious or corrupt PN/N).
const maxSkippedGap = 1000

// Engine runs the ratchet steps and wire codec over conversations held in
// store. One Engine is shared process-wide; per-conversation serialization
// comes from its internal lock table, not from the caller.
type Engine struct {
	store     domain.Store
	locks     *lockTable
	bootstrap domain.Bootstrapper
}

// NewEngine builds an Engine over store. bootstrap may be nil; if so,
// Decrypt returns NotReady for an establishment block that names a
// conversation with no existing session, instead of creating one.
func NewEngine(store domain.Store, bootstrap domain.Bootstrapper) *Engine {
	return &Engine{store: store, locks: newLockTable(), bootstrap: bootstrap}
}

// Encrypt produces a wire envelope (and, if supplements is non-empty, a
// detached encrypted supplements blob) for plaintext addressed to id,
// advancing the conversation's sending chain by exactly one step.
func (e *Engine) Encrypt(id domain.ConversationID, plaintext, supplements []byte) (wire []byte, supplementsCT []byte, messageID int64, err error) {
	unlock := e.locks.lockFor(id.String())
	defer unlock()

	conv, ok, err := e.store.LoadConversation(id)
	if err != nil {
		return nil, nil, 0, err
	}
	if !ok || !conv.HasSession() {
		return nil, nil, 0, errs.New(errs.NotReady, "ratchet: no session for conversation")
	}

	if len(conv.ChainKeySend) == 0 {
		if err := e.ratchetStepSend(&conv); err != nil {
			return nil, nil, 0, err
		}
	}

	nextCK, mk := kdfCK(conv.ChainKeySend)
	defer cryptoprim.Wipe(mk)

	encKey, macKey, iv, err := messageKeyParts(mk)
	if err != nil {
		return nil, nil, 0, errs.Wrap(errs.Internal, "derive message key parts", err)
	}
	defer cryptoprim.WipeAll(encKey, macKey)

	header := domain.RatchetHeader{
		DHRatchetPub: conv.DHRatchetSend.Pub,
		PNs:          conv.PNs,
		Ns:           conv.Ns,
		Establish:    conv.PendingEstablish,
	}

	ciphertext, err := cryptoprim.AESCBCEncrypt(encKey, iv[:], plaintext)
	if err != nil {
		return nil, nil, 0, errs.Wrap(errs.Internal, "seal envelope", err)
	}

	hasSupplements := len(supplements) > 0
	signed := marshalSigned(header, iv, ciphertext, hasSupplements)
	var mac [macLen]byte
	copy(mac[:], cryptoprim.HMACSHA256(macKey, signed))
	wire = append(signed, mac[:]...)

	if hasSupplements {
		suppKey, suppIV, err := supplementKeyParts(mk)
		if err != nil {
			return nil, nil, 0, errs.Wrap(errs.Internal, "derive supplement key", err)
		}
		defer cryptoprim.Wipe(suppKey)
		supplementsCT, err = cryptoprim.AESCBCEncrypt(suppKey, suppIV[:], supplements)
		if err != nil {
			return nil, nil, 0, errs.Wrap(errs.Internal, "seal supplements", err)
		}
	}

	conv.ChainKeySend = nextCK
	conv.Ns++
	conv.PendingEstablish = nil

	if err := e.store.StoreConversation(conv); err != nil {
		return nil, nil, 0, err
	}
	return wire, supplementsCT, nextMessageID(), nil
}

// ratchetStepSend performs a DH ratchet step for the sending side: a fresh
// ephemeral keypair is generated, combined with the peer's last-known
// receiving public key, and folded into the root chain to derive a new
// sending chain key, lazy on first send of a turn.
func (e *Engine) ratchetStepSend(conv *domain.Conversation) error {
	kp, err := cryptoprim.GenerateX25519KeyPair()
	if err != nil {
		return errs.Wrap(errs.Internal, "generate ratchet keypair", err)
	}
	dh, err := cryptoprim.DH(kp.Priv, conv.DHRatchetRecv)
	if err != nil {
		return errs.Wrap(errs.Internal, "dh ratchet step (send)", err)
	}
	defer cryptoprim.Wipe(dh)

	newRoot, newCK, err := kdfRK(conv.RootKey, dh)
	if err != nil {
		return errs.Wrap(errs.Internal, "kdf root (send)", err)
	}
	cryptoprim.Wipe(conv.RootKey)

	conv.PNs = conv.Ns
	conv.Ns = 0
	conv.RootKey = newRoot
	conv.ChainKeySend = newCK
	conv.DHRatchetSend = kp
	return nil
}

// Decrypt recovers the plaintext (and, if present, the decrypted
// supplements) carried in a wire envelope addressed to id, performing
// whatever DH ratchet step and skipped-key staging the header implies.
func (e *Engine) Decrypt(id domain.ConversationID, wire []byte, supplementsCT []byte) (plaintext, supplements []byte, err error) {
	unlock := e.locks.lockFor(id.String())
	defer unlock()

	header, iv, ciphertext, wantMAC, hasSupplements, signedSpan, err := unmarshal(wire)
	if err != nil {
		return nil, nil, err
	}

	conv, ok, err := e.store.LoadConversation(id)
	if err != nil {
		return nil, nil, err
	}

	if header.Establish != nil {
		if !ok || !conv.HasSession() {
			if e.bootstrap == nil {
				return nil, nil, errs.New(errs.NotReady, "ratchet: no session and no bootstrapper configured")
			}
			conv, err = e.bootstrap.BootstrapResponder(id, *header.Establish)
			if err != nil {
				return nil, nil, err
			}
			ok = true
		} else if conv.IdentityRemote != header.Establish.SenderIdentity {
			return nil, nil, errs.New(errs.IdentityMismatch, "ratchet: establishment identity does not match existing session")
		}
	}
	if !ok || !conv.HasSession() {
		return nil, nil, errs.New(errs.NotReady, "ratchet: no session for conversation")
	}

	if header.DHRatchetPub != conv.DHRatchetRecv {
		if err := e.stageSkippedKeys(&conv, conv.ChainKeyRecv, conv.Nr, header.PNs); err != nil {
			return nil, nil, err
		}
		if err := e.ratchetStepRecv(&conv, header.DHRatchetPub); err != nil {
			return nil, nil, err
		}
	}

	mk, fromStaged, err := e.resolveMessageKey(&conv, header.Ns)
	if err != nil {
		return nil, nil, err
	}
	defer cryptoprim.Wipe(mk)

	encKey, macKey, wantIV, err := messageKeyParts(mk)
	if err != nil {
		return nil, nil, errs.Wrap(errs.Internal, "derive message key parts", err)
	}
	defer cryptoprim.WipeAll(encKey, macKey)

	gotMAC := cryptoprim.HMACSHA256(macKey, signedSpan)
	if subtle.ConstantTimeCompare(gotMAC[:macLen], wantMAC[:]) != 1 {
		return nil, nil, errs.New(errs.AuthFailed, "ratchet: mac mismatch")
	}
	if wantIV != iv {
		return nil, nil, errs.New(errs.AuthFailed, "ratchet: iv mismatch")
	}

	plaintext, err = cryptoprim.AESCBCDecrypt(encKey, iv[:], ciphertext)
	if err != nil {
		return nil, nil, err
	}

	if hasSupplements && len(supplementsCT) > 0 {
		suppKey, suppIV, err := supplementKeyParts(mk)
		if err != nil {
			return nil, nil, errs.Wrap(errs.Internal, "derive supplement key", err)
		}
		defer cryptoprim.Wipe(suppKey)
		supplements, err = cryptoprim.AESCBCDecrypt(suppKey, suppIV[:], supplementsCT)
		if err != nil {
			return nil, nil, err
		}
	}

	if fromStaged {
		if err := e.store.DeleteStagedMK(id, header.Ns); err != nil {
			return nil, nil, err
		}
	}
	if err := e.store.StoreConversation(conv); err != nil {
		return nil, nil, err
	}
	return plaintext, supplements, nil
}

// ratchetStepRecv performs a DH ratchet step for the receiving side when a
// header carries a new DH public key: the current send chain is retired
// (forcing a fresh send-side step on the next Encrypt), and a new receiving
// chain is derived from the root chain.
func (e *Engine) ratchetStepRecv(conv *domain.Conversation, newRemotePub domain.X25519Public) error {
	dh, err := cryptoprim.DH(conv.DHRatchetSend.Priv, newRemotePub)
	if err != nil {
		return errs.Wrap(errs.Internal, "dh ratchet step (recv)", err)
	}
	defer cryptoprim.Wipe(dh)

	newRoot, newCK, err := kdfRK(conv.RootKey, dh)
	if err != nil {
		return errs.Wrap(errs.Internal, "kdf root (recv)", err)
	}
	cryptoprim.Wipe(conv.RootKey)

	conv.RootKey = newRoot
	conv.ChainKeyRecv = newCK
	conv.DHRatchetRecv = newRemotePub
	conv.Nr = 0
	conv.ChainKeySend = nil
	return nil
}

// stageSkippedKeys derives and persists message keys for every counter in
// [fromN, upToPN) under the chain key about to be retired by a DH ratchet
// step, so an out-of-order message from the old chain can still be
// recovered later. A gap beyond maxSkippedGap
// returns ChainGapTooLarge instead of deriving unboundedly.
func (e *Engine) stageSkippedKeys(conv *domain.Conversation, chainKey []byte, fromN, upToPN uint32) error {
	if len(chainKey) == 0 || upToPN <= fromN {
		return nil
	}
	if upToPN-fromN > maxSkippedGap {
		return errs.New(errs.ChainGapTooLarge, "ratchet: skipped-key gap exceeds bound")
	}
	ck := chainKey
	for n := fromN; n < upToPN; n++ {
		nextCK, mk := kdfCK(ck)
		if err := e.store.InsertStagedMK(domain.StagedMessageKey{
			LocalUser: conv.ID.LocalUser, RemoteUser: conv.ID.RemoteUser, RemoteDevice: conv.ID.RemoteDevice,
			Ns: n, MessageKey: mk, InsertedUTC: nowUTC(),
		}); err != nil {
			return err
		}
		ck = nextCK
	}
	return nil
}

// resolveMessageKey returns the message key for counter n, preferring an
// already-staged key: a staged key, once written, is authoritative and
// consuming it never re-advances the live
// chain) over deriving fresh from the current receiving chain.
func (e *Engine) resolveMessageKey(conv *domain.Conversation, n uint32) (mk []byte, fromStaged bool, err error) {
	staged, err := e.store.LoadStagedMKs(conv.ID)
	if err != nil {
		return nil, false, err
	}
	for _, s := range staged {
		if s.Ns == n {
			return s.MessageKey, true, nil
		}
	}

	if n < conv.Nr {
		return nil, false, errs.New(errs.AuthFailed, "ratchet: message counter already consumed")
	}
	if n-conv.Nr > maxSkippedGap {
		return nil, false, errs.New(errs.ChainGapTooLarge, "ratchet: receiving gap exceeds bound")
	}
	if len(conv.ChainKeyRecv) == 0 {
		return nil, false, errs.New(errs.AuthFailed, "ratchet: no receiving chain")
	}

	ck := conv.ChainKeyRecv
	var target []byte
	for i := conv.Nr; i <= n; i++ {
		nextCK, stepMK := kdfCK(ck)
		if i == n {
			target = stepMK
		} else {
			if err := e.store.InsertStagedMK(domain.StagedMessageKey{
				LocalUser: conv.ID.LocalUser, RemoteUser: conv.ID.RemoteUser, RemoteDevice: conv.ID.RemoteDevice,
				Ns: i, MessageKey: stepMK, InsertedUTC: nowUTC(),
			}); err != nil {
				return nil, false, err
			}
		}
		ck = nextCK
	}
	conv.ChainKeyRecv = ck
	conv.Nr = n + 1
	return target, false, nil
}
