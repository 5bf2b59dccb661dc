package x3dh_test

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"axocore/internal/cryptoprim"
	"axocore/internal/domain"
	"axocore/internal/identity"
	"axocore/internal/ratchet"
	"axocore/internal/store"
	"axocore/internal/x3dh"
)

// fakeProvisioning hands out a single pre-key bundle published by the
// responder side, standing in for the provisioning client's HTTP round trip.
type fakeProvisioning struct {
	bundle domain.PreKeyBundle
}

func (f *fakeProvisioning) ListDevices(ctx context.Context, user domain.Username) ([]domain.DeviceID, error) {
	return []domain.DeviceID{"b1"}, nil
}
func (f *fakeProvisioning) FetchPreKeyBundle(ctx context.Context, user domain.Username, device domain.DeviceID) (domain.PreKeyBundle, error) {
	return f.bundle, nil
}
func (f *fakeProvisioning) PublishPreKeys(ctx context.Context, bundle domain.PreKeyBundle) error {
	return nil
}
func (f *fakeProvisioning) RegisterDevice(ctx context.Context, user domain.Username, device domain.DeviceID) error {
	return nil
}
func (f *fakeProvisioning) RemoveDevice(ctx context.Context, user domain.Username, device domain.DeviceID) error {
	return nil
}

func openTestStore(t *testing.T, name string) domain.Store {
	t.Helper()
	key := bytes.Repeat([]byte{0x0b}, 32)
	st, err := store.Open(filepath.Join(t.TempDir(), name), key, nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

// TestHandshakeConvergesAndCarriesFirstMessage runs a full X3DH handshake
// between two real identities and checks the resulting sessions interoperate
// through the ratchet engine: the initiator's first encrypted envelope
// carries the establishment block, and the responder bootstraps its session
// from it and decrypts successfully.
func TestHandshakeConvergesAndCarriesFirstMessage(t *testing.T) {
	aSt := openTestStore(t, "alice.db")
	bSt := openTestStore(t, "bob.db")

	aIdm := identity.New(aSt, nil)
	bIdm := identity.New(bSt, nil)

	aInit, err := aIdm.Init("alice")
	if err != nil {
		t.Fatalf("init alice: %v", err)
	}
	bInit, err := bIdm.Init("bob")
	if err != nil {
		t.Fatalf("init bob: %v", err)
	}

	bSPK, err := bIdm.NewSignedPreKey(bInit.Identity)
	if err != nil {
		t.Fatalf("bob signed pre-key: %v", err)
	}
	bOTKs, err := bIdm.NewPreKeys(1)
	if err != nil {
		t.Fatalf("bob one-time pre-keys: %v", err)
	}

	bundle := domain.PreKeyBundle{
		Username:        "bob",
		IdentityKey:     bInit.Identity.XPub,
		SigningKey:      bInit.Identity.EdPub,
		SignedPreKeyID:  bSPK.ID,
		SignedPreKey:    bSPK.Pub,
		SignedPreKeySig: bSPK.Signature,
		OneTimePreKey:   &bOTKs[0],
	}
	prov := &fakeProvisioning{bundle: bundle}

	aEstablisher := x3dh.New(aSt, aIdm, prov, nil)
	id := domain.ConversationID{LocalUser: "alice", RemoteUser: "bob", RemoteDevice: "b1"}
	aConv, err := aEstablisher.EstablishInitiator(context.Background(), id)
	if err != nil {
		t.Fatalf("establish initiator: %v", err)
	}
	if aConv.PendingEstablish == nil {
		t.Fatal("expected a pending establishment block on the initiator side")
	}

	bEngine := ratchet.NewEngine(bSt, x3dh.New(bSt, bIdm, nil, nil))
	aEngine := ratchet.NewEngine(aSt, nil)

	wire, _, _, err := aEngine.Encrypt(id, []byte("x3dh says hi"), nil)
	if err != nil {
		t.Fatalf("encrypt first message: %v", err)
	}

	reverseID := domain.ConversationID{LocalUser: "bob", RemoteUser: "alice", RemoteDevice: "a1"}
	pt, _, err := bEngine.Decrypt(reverseID, wire, nil)
	if err != nil {
		t.Fatalf("bootstrap and decrypt: %v", err)
	}
	if string(pt) != "x3dh says hi" {
		t.Fatalf("got %q, want %q", pt, "x3dh says hi")
	}
}

func TestEstablishInitiatorRejectsBadSignature(t *testing.T) {
	aSt := openTestStore(t, "alice2.db")
	aIdm := identity.New(aSt, nil)
	if _, err := aIdm.Init("alice"); err != nil {
		t.Fatalf("init: %v", err)
	}

	forgedKP, err := cryptoprim.GenerateX25519KeyPair()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	bundle := domain.PreKeyBundle{
		Username:        "bob",
		SignedPreKey:    forgedKP.Pub,
		SignedPreKeySig: []byte("not-a-real-signature"),
	}
	prov := &fakeProvisioning{bundle: bundle}
	establisher := x3dh.New(aSt, aIdm, prov, nil)

	id := domain.ConversationID{LocalUser: "alice", RemoteUser: "bob", RemoteDevice: "b1"}
	if _, err := establisher.EstablishInitiator(context.Background(), id); err == nil {
		t.Fatal("expected an invalid signed pre-key signature to be rejected")
	}
}
