// Package x3dh implements the extended triple/quadruple Diffie-Hellman
// session establishment that bootstraps a Conversation before any ratchet
// step can run. It draws on both the local identity manager and the
// provisioning client; the
// ratchet engine calls back into it through the Bootstrapper interface when
// an inbound envelope carries an establishment block for a session that
// does not exist yet.
package x3dh

import (
	"context"
	"log/slog"

	"axocore/internal/cryptoprim"
	"axocore/internal/domain"
	"axocore/internal/errs"
	"axocore/internal/identity"
)

var _ domain.Bootstrapper = (*Establisher)(nil)

// rootInfo is the HKDF label for the X3DH root key, distinct from the
// ratchet engine's root-chain label. Initiator and responder both use it,
// so they converge on the same root key from their respective DH sets:
// rootKey = HKDF(concat(DHs)).
var rootInfo = []byte("axocore|x3dh|rk")

// Establisher builds Conversations from pre-key material, either as the
// initiator (a fresh outbound message to a peer with no session) or as the
// responder (an inbound establishment block).
type Establisher struct {
	store        domain.Store
	identity     *identity.Manager
	provisioning domain.ProvisioningClient
	log          *slog.Logger
}

func New(store domain.Store, idm *identity.Manager, provisioning domain.ProvisioningClient, log *slog.Logger) *Establisher {
	return &Establisher{store: store, identity: idm, provisioning: provisioning, log: log}
}

// EstablishInitiator fetches id's remote peer bundle, runs the DH set, and
// persists a fresh Conversation with a pending establishment block that the
// ratchet engine will stamp onto the first outbound envelope, on the first
// send to (U,D) without a session.
func (e *Establisher) EstablishInitiator(ctx context.Context, id domain.ConversationID) (domain.Conversation, error) {
	localID, ok, err := e.store.LoadIdentity()
	if err != nil {
		return domain.Conversation{}, err
	}
	if !ok {
		return domain.Conversation{}, errs.New(errs.NotReady, "x3dh: local identity not initialized")
	}

	existing, existingOK, err := e.store.LoadConversation(id)
	if err != nil {
		return domain.Conversation{}, err
	}

	bundle, err := e.provisioning.FetchPreKeyBundle(ctx, id.RemoteUser, id.RemoteDevice)
	if err != nil {
		return domain.Conversation{}, err
	}
	if !cryptoprim.VerifyEd25519(bundle.SigningKey, bundle.SignedPreKey.Slice(), bundle.SignedPreKeySig) {
		return domain.Conversation{}, errs.New(errs.BadSignedPreKeySig, "x3dh: signed pre-key signature invalid")
	}
	if existingOK && existing.HasSession() && existing.IdentityRemote != bundle.IdentityKey {
		return domain.Conversation{}, errs.New(errs.IdentityMismatch, "x3dh: peer identity key does not match existing session")
	}

	base, err := cryptoprim.GenerateX25519KeyPair()
	if err != nil {
		return domain.Conversation{}, errs.Wrap(errs.Internal, "generate ephemeral base key", err)
	}

	dh1, err := cryptoprim.DH(localID.XPriv, bundle.SignedPreKey)
	if err != nil {
		return domain.Conversation{}, errs.Wrap(errs.Internal, "dh1", err)
	}
	dh2, err := cryptoprim.DH(base.Priv, bundle.IdentityKey)
	if err != nil {
		return domain.Conversation{}, errs.Wrap(errs.Internal, "dh2", err)
	}
	dh3, err := cryptoprim.DH(base.Priv, bundle.SignedPreKey)
	if err != nil {
		return domain.Conversation{}, errs.Wrap(errs.Internal, "dh3", err)
	}
	dhs := [][]byte{dh1, dh2, dh3}
	var dh4 []byte
	if bundle.OneTimePreKey != nil {
		dh4, err = cryptoprim.DH(base.Priv, bundle.OneTimePreKey.Pub)
		if err != nil {
			return domain.Conversation{}, errs.Wrap(errs.Internal, "dh4", err)
		}
		dhs = append(dhs, dh4)
	}

	rootKey, err := deriveRootKey(dhs)
	defer cryptoprim.WipeAll(dh1, dh2, dh3)
	if dh4 != nil {
		defer cryptoprim.Wipe(dh4)
	}
	if err != nil {
		return domain.Conversation{}, errs.Wrap(errs.Internal, "derive root key", err)
	}

	establish := &domain.EstablishmentBlock{
		SignedPreKeyID: bundle.SignedPreKeyID,
		SenderIdentity: localID.XPub,
		SenderBase:     base.Pub,
	}
	if bundle.OneTimePreKey != nil {
		establish.PreKeyID = bundle.OneTimePreKey.ID
	}

	// DHRatchetSend is deliberately left unset: the ratchet engine
	// generates Alice's first actual double-ratchet keypair lazily on her
	// first Encrypt call, distinct from the ephemeral base key used only
	// for this X3DH computation: Ebase feeds the DH set, not the ratchet
	// header, on the initiator side.
	conv := domain.Conversation{
		ID:               id,
		RootKey:          rootKey,
		DHRatchetRecv:    bundle.SignedPreKey,
		IdentityRemote:   bundle.IdentityKey,
		PendingEstablish: establish,
	}
	if err := e.store.StoreConversation(conv); err != nil {
		return domain.Conversation{}, err
	}
	if e.log != nil {
		e.log.Info("session established (initiator)", "remote_user", id.RemoteUser, "remote_device", id.RemoteDevice)
	}
	return conv, nil
}

// VerifyIdentityUnchanged re-fetches the remote device's published pre-key
// bundle and compares its identity key against conv, without storing
// anything. Callers use this before sending into a session that already
// exists, to catch a peer whose identity key has changed since the session
// was established — EstablishInitiator only runs its own identity check
// when it is asked to (re-)establish, which the "session already exists"
// send path never does.
func (e *Establisher) VerifyIdentityUnchanged(ctx context.Context, id domain.ConversationID, conv domain.Conversation) error {
	bundle, err := e.provisioning.FetchPreKeyBundle(ctx, id.RemoteUser, id.RemoteDevice)
	if err != nil {
		return err
	}
	if !cryptoprim.VerifyEd25519(bundle.SigningKey, bundle.SignedPreKey.Slice(), bundle.SignedPreKeySig) {
		return errs.New(errs.BadSignedPreKeySig, "x3dh: signed pre-key signature invalid")
	}
	if conv.IdentityRemote != bundle.IdentityKey {
		return errs.New(errs.IdentityMismatch, "x3dh: peer identity key does not match existing session")
	}
	return nil
}

// BootstrapResponder mirrors EstablishInitiator from the receiving side:
// the referenced signed pre-key and (if named) one-time pre-key are loaded
// locally, the one-time pre-key is consumed, and the same DH set is run in
// the complementary direction so both sides land on the identical root key,
// on first receive with an establishment block.
func (e *Establisher) BootstrapResponder(id domain.ConversationID, establish domain.EstablishmentBlock) (domain.Conversation, error) {
	localID, ok, err := e.store.LoadIdentity()
	if err != nil {
		return domain.Conversation{}, err
	}
	if !ok {
		return domain.Conversation{}, errs.New(errs.NotReady, "x3dh: local identity not initialized")
	}

	spk, ok, err := e.store.LoadSignedPreKey(establish.SignedPreKeyID)
	if err != nil {
		return domain.Conversation{}, err
	}
	if !ok {
		return domain.Conversation{}, errs.New(errs.UnknownPreKey, "x3dh: unknown signed pre-key id")
	}

	var otk *domain.OneTimePreKeyPair
	if establish.PreKeyID != 0 {
		pair, err := e.identity.ConsumeOneTimePreKey(establish.PreKeyID)
		if err != nil {
			return domain.Conversation{}, err
		}
		otk = &pair
	}

	dh1, err := cryptoprim.DH(spk.Priv, establish.SenderIdentity)
	if err != nil {
		return domain.Conversation{}, errs.Wrap(errs.Internal, "dh1", err)
	}
	dh2, err := cryptoprim.DH(localID.XPriv, establish.SenderBase)
	if err != nil {
		return domain.Conversation{}, errs.Wrap(errs.Internal, "dh2", err)
	}
	dh3, err := cryptoprim.DH(spk.Priv, establish.SenderBase)
	if err != nil {
		return domain.Conversation{}, errs.Wrap(errs.Internal, "dh3", err)
	}
	dhs := [][]byte{dh1, dh2, dh3}
	var dh4 []byte
	if otk != nil {
		dh4, err = cryptoprim.DH(otk.Priv, establish.SenderBase)
		if err != nil {
			return domain.Conversation{}, errs.Wrap(errs.Internal, "dh4", err)
		}
		dhs = append(dhs, dh4)
	}

	rootKey, err := deriveRootKey(dhs)
	defer cryptoprim.WipeAll(dh1, dh2, dh3)
	if dh4 != nil {
		defer cryptoprim.Wipe(dh4)
	}
	if err != nil {
		return domain.Conversation{}, errs.Wrap(errs.Internal, "derive root key", err)
	}

	// DHRatchetRecv is deliberately left unset: the signed pre-key pair
	// becomes Bob's own first ratchet keypair by a mirrored construction,
	// and the engine's generic "new receiving chain"
	// branch performs the matching DH ratchet step the first time it sees
	// the sender's actual ratchet public key in a header.
	conv := domain.Conversation{
		ID:             id,
		RootKey:        rootKey,
		DHRatchetSend:  domain.X25519KeyPair{Priv: spk.Priv, Pub: spk.Pub},
		IdentityRemote: establish.SenderIdentity,
	}
	if err := e.store.StoreConversation(conv); err != nil {
		return domain.Conversation{}, err
	}
	if e.log != nil {
		e.log.Info("session established (responder)", "remote_user", id.RemoteUser, "remote_device", id.RemoteDevice)
	}
	return conv, nil
}

// deriveRootKey folds the DH set into a single root key, concatenating each
// agreement in order before a single HKDF expansion:
// rootKey = HKDF(concat(DHs)).
func deriveRootKey(dhs [][]byte) ([]byte, error) {
	var ikm []byte
	for _, dh := range dhs {
		ikm = append(ikm, dh...)
	}
	return cryptoprim.HKDF(nil, ikm, rootInfo, 32)
}
