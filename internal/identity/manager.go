package identity

import (
	"crypto/rand"
	"log/slog"
	"math/big"

	"axocore/internal/cryptoprim"
	"axocore/internal/domain"
	"axocore/internal/errs"
)

// Manager owns the local identity keypair and the one-time pre-key
// inventory.
type Manager struct {
	store domain.Store
	log   *slog.Logger
}

func New(store domain.Store, log *slog.Logger) *Manager {
	return &Manager{store: store, log: log}
}

// InitResult tells the caller whether this call created a fresh identity.
type InitResult struct {
	Identity domain.Identity
	Created  bool
}

// Init loads the local identity, generating one if absent. Re-init detects
// and preserves an existing identity.
func (m *Manager) Init(userName domain.Username) (InitResult, error) {
	if id, ok, err := m.store.LoadIdentity(); err != nil {
		return InitResult{}, errs.Wrap(errs.SqlError, "load identity", err)
	} else if ok {
		return InitResult{Identity: id, Created: false}, nil
	}

	xpriv, xpub, err := cryptoprim.GenerateX25519()
	if err != nil {
		return InitResult{}, errs.Wrap(errs.Internal, "generate x25519 identity", err)
	}
	edpriv, edpub, err := cryptoprim.GenerateEd25519()
	if err != nil {
		return InitResult{}, errs.Wrap(errs.Internal, "generate ed25519 identity", err)
	}
	id := domain.Identity{UserName: userName, XPub: xpub, XPriv: xpriv, EdPub: edpub, EdPriv: edpriv}
	if err := m.store.SaveIdentity(id); err != nil {
		return InitResult{}, errs.Wrap(errs.SqlError, "save identity", err)
	}
	if m.log != nil {
		m.log.Info("identity created", "user", userName, "fingerprint", Fingerprint(xpub))
	}
	return InitResult{Identity: id, Created: true}, nil
}

// NewSignedPreKey rotates the signed pre-key: generates a fresh X25519
// keypair, signs its public half with the identity's Ed25519 key, and
// persists it as the current signed pre-key.
func (m *Manager) NewSignedPreKey(id domain.Identity) (domain.SignedPreKeyPair, error) {
	spkID, err := randomPreKeyID()
	if err != nil {
		return domain.SignedPreKeyPair{}, err
	}
	priv, pub, err := cryptoprim.GenerateX25519()
	if err != nil {
		return domain.SignedPreKeyPair{}, errs.Wrap(errs.Internal, "generate signed pre-key", err)
	}
	sig := cryptoprim.SignEd25519(id.EdPriv, pub.Slice())
	spk := domain.SignedPreKeyPair{ID: domain.SignedPreKeyID(spkID), Priv: priv, Pub: pub, Signature: sig}
	if err := m.store.StoreSignedPreKey(spk); err != nil {
		return domain.SignedPreKeyPair{}, errs.Wrap(errs.SqlError, "store signed pre-key", err)
	}
	return spk, nil
}

// NewPreKeys generates n one-time pre-keys with ids drawn uniformly from
// [1, 2^31), skipping collisions, and returns their public halves for
// publication to the provisioning service.
func (m *Manager) NewPreKeys(n int) ([]domain.OneTimePreKeyPublic, error) {
	if n <= 0 {
		return nil, errs.New(errs.BadParams, "identity: n must be positive")
	}
	pairs := make([]domain.OneTimePreKeyPair, 0, n)
	publics := make([]domain.OneTimePreKeyPublic, 0, n)
	for len(pairs) < n {
		id, err := randomPreKeyID()
		if err != nil {
			return nil, err
		}
		exists, err := m.store.OneTimePreKeyExists(domain.PreKeyID(id))
		if err != nil {
			return nil, errs.Wrap(errs.SqlError, "check pre-key collision", err)
		}
		if exists {
			continue
		}
		priv, pub, err := cryptoprim.GenerateX25519()
		if err != nil {
			return nil, errs.Wrap(errs.Internal, "generate one-time pre-key", err)
		}
		pairs = append(pairs, domain.OneTimePreKeyPair{ID: domain.PreKeyID(id), Priv: priv, Pub: pub})
		publics = append(publics, domain.OneTimePreKeyPublic{ID: domain.PreKeyID(id), Pub: pub})
	}
	if err := m.store.StoreOneTimePreKeys(pairs); err != nil {
		return nil, errs.Wrap(errs.SqlError, "store one-time pre-keys", err)
	}
	return publics, nil
}

// GetNumPreKeys reads the local one-time pre-key count.
func (m *Manager) GetNumPreKeys() (int, error) {
	n, err := m.store.GetPreKeyCount()
	if err != nil {
		return 0, errs.Wrap(errs.SqlError, "count pre-keys", err)
	}
	return n, nil
}

// ConsumeOneTimePreKey looks up and deletes a one-time pre-key by id,
// handing the keypair to the session establisher for agreement. The
// deletion commits in its own store transaction; the session write that
// follows is a separate write, so the key stays deleted if that write fails.
func (m *Manager) ConsumeOneTimePreKey(id domain.PreKeyID) (domain.OneTimePreKeyPair, error) {
	pk, ok, err := m.store.ConsumeOneTimePreKey(id)
	if err != nil {
		return domain.OneTimePreKeyPair{}, errs.Wrap(errs.SqlError, "consume one-time pre-key", err)
	}
	if !ok {
		return domain.OneTimePreKeyPair{}, errs.New(errs.UnknownPreKey, "identity: unknown pre-key id")
	}
	return pk, nil
}

func randomPreKeyID() (uint32, error) {
	// [1, 2^31)
	max := big.NewInt(1 << 31)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return 0, errs.Wrap(errs.Internal, "generate pre-key id", err)
	}
	v := uint32(n.Int64())
	if v == 0 {
		v = 1
	}
	return v, nil
}
