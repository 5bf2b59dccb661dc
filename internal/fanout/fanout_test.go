package fanout_test

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"axocore/internal/domain"
	"axocore/internal/fanout"
	"axocore/internal/identity"
	"axocore/internal/ratchet"
	"axocore/internal/store"
	"axocore/internal/x3dh"
)

// recordingSink hands outbound envelopes straight to a peer's ReceiveMessage,
// standing in for a transport round trip between two in-process apps.
type recordingSink struct {
	deliverTo func(raw []byte) error
}

func (s *recordingSink) SendBatch(ctx context.Context, items []domain.OutboundEnvelope) ([]int64, error) {
	accepted := make([]int64, len(items))
	for i, item := range items {
		if err := s.deliverTo(item.Bytes); err != nil {
			continue
		}
		accepted[i] = item.MessageID
	}
	return accepted, nil
}

type capturingListener struct {
	messages []domain.DecryptedMessage
	notices  []domain.NotifyAction
}

func (l *capturingListener) NotifyCallback(action domain.NotifyAction, info string, device domain.DeviceID) {
	l.notices = append(l.notices, action)
}
func (l *capturingListener) MessageReceived(msg domain.DecryptedMessage) {
	l.messages = append(l.messages, msg)
}

// bundleDirectory hands out one fixed pre-key bundle and a fixed device
// list, acting as the provisioning client for a single peer under test.
type bundleDirectory struct {
	bundle  domain.PreKeyBundle
	devices map[domain.Username][]domain.DeviceID
}

func (d *bundleDirectory) ListDevices(ctx context.Context, user domain.Username) ([]domain.DeviceID, error) {
	return d.devices[user], nil
}
func (d *bundleDirectory) FetchPreKeyBundle(ctx context.Context, user domain.Username, device domain.DeviceID) (domain.PreKeyBundle, error) {
	return d.bundle, nil
}
func (d *bundleDirectory) PublishPreKeys(ctx context.Context, bundle domain.PreKeyBundle) error {
	return nil
}
func (d *bundleDirectory) RegisterDevice(ctx context.Context, user domain.Username, device domain.DeviceID) error {
	return nil
}
func (d *bundleDirectory) RemoveDevice(ctx context.Context, user domain.Username, device domain.DeviceID) error {
	return nil
}

func openTestStore(t *testing.T, name string) domain.Store {
	t.Helper()
	key := bytes.Repeat([]byte{0x0c}, 32)
	st, err := store.Open(filepath.Join(t.TempDir(), name), key, nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

// buildPeer wires up one side of a conversation: identity, store, ratchet
// engine and establisher, everything SendMessage/ReceiveMessage needs.
func buildPeer(t *testing.T, name string, user domain.Username, device domain.DeviceID, prov domain.ProvisioningClient, sink domain.TransportSink, listener domain.InboundListener) (*fanout.App, domain.Store, *identity.Manager) {
	t.Helper()
	st := openTestStore(t, name)
	idm := identity.New(st, nil)
	if _, err := idm.Init(user); err != nil {
		t.Fatalf("init identity: %v", err)
	}
	establisher := x3dh.New(st, idm, prov, nil)
	engine := ratchet.NewEngine(st, establisher)
	app := fanout.New(st, engine, establisher, prov, sink, listener, user, device, nil)
	return app, st, idm
}

func TestSendMessageEstablishesSessionAndDelivers(t *testing.T) {
	bobListener := &capturingListener{}
	bobApp, bobSt, bobIdm := buildPeer(t, "bob.db", "bob", "b1", nil, nil, bobListener)

	bobID, ok, err := bobSt.LoadIdentity()
	if err != nil || !ok {
		t.Fatalf("load bob identity: ok=%v err=%v", ok, err)
	}
	spk, err := bobIdm.NewSignedPreKey(bobID)
	if err != nil {
		t.Fatalf("bob signed pre-key: %v", err)
	}
	otks, err := bobIdm.NewPreKeys(1)
	if err != nil {
		t.Fatalf("bob one-time pre-keys: %v", err)
	}
	bundle := domain.PreKeyBundle{
		Username: "bob", IdentityKey: bobID.XPub, SigningKey: bobID.EdPub,
		SignedPreKeyID: spk.ID, SignedPreKey: spk.Pub, SignedPreKeySig: spk.Signature,
		OneTimePreKey: &otks[0],
	}
	dir := &bundleDirectory{bundle: bundle, devices: map[domain.Username][]domain.DeviceID{"bob": {"b1"}}}

	sink := &recordingSink{deliverTo: func(raw []byte) error {
		return bobApp.ReceiveMessage(context.Background(), raw)
	}}
	aliceApp, _, _ := buildPeer(t, "alice.db", "alice", "a1", dir, sink, nil)

	accepted, err := aliceApp.SendMessage(context.Background(), domain.MessageDescriptor{Recipient: "bob", Body: []byte("hi bob")})
	if err != nil {
		t.Fatalf("send message: %v", err)
	}
	if len(accepted) != 1 {
		t.Fatalf("expected 1 accepted message id, got %d", len(accepted))
	}
	if len(bobListener.messages) != 1 {
		t.Fatalf("expected bob to receive 1 message, got %d", len(bobListener.messages))
	}
	if string(bobListener.messages[0].Plaintext) != "hi bob" {
		t.Fatalf("got %q, want %q", bobListener.messages[0].Plaintext, "hi bob")
	}
	if len(bobListener.notices) != 1 || bobListener.notices[0] != domain.NotifyDeviceScan {
		t.Fatalf("expected a device-scan notice for the first message from a new device, got %v", bobListener.notices)
	}
}

func TestSendMessageFansOutToMultipleDevices(t *testing.T) {
	bob1Listener := &capturingListener{}
	bob2Listener := &capturingListener{}
	bob1App, bob1St, bob1Idm := buildPeer(t, "bob1.db", "bob", "b1", nil, nil, bob1Listener)
	bob2App, bob2St, bob2Idm := buildPeer(t, "bob2.db", "bob", "b2", nil, nil, bob2Listener)

	makeBundle := func(st domain.Store, idm *identity.Manager) domain.PreKeyBundle {
		id, ok, err := st.LoadIdentity()
		if err != nil || !ok {
			t.Fatalf("load identity: ok=%v err=%v", ok, err)
		}
		spk, err := idm.NewSignedPreKey(id)
		if err != nil {
			t.Fatalf("signed pre-key: %v", err)
		}
		otks, err := idm.NewPreKeys(1)
		if err != nil {
			t.Fatalf("one-time pre-keys: %v", err)
		}
		return domain.PreKeyBundle{
			Username: "bob", IdentityKey: id.XPub, SigningKey: id.EdPub,
			SignedPreKeyID: spk.ID, SignedPreKey: spk.Pub, SignedPreKeySig: spk.Signature,
			OneTimePreKey: &otks[0],
		}
	}
	bundles := map[domain.DeviceID]domain.PreKeyBundle{
		"b1": makeBundle(bob1St, bob1Idm),
		"b2": makeBundle(bob2St, bob2Idm),
	}

	dir := &multiDeviceDirectory{bundles: bundles, devices: map[domain.Username][]domain.DeviceID{"bob": {"b1", "b2"}}}
	sink := &recordingSink{deliverTo: func(raw []byte) error {
		// Both devices try to decrypt; exactly one session matches per
		// envelope, the other simply errors and is ignored here.
		_ = bob1App.ReceiveMessage(context.Background(), raw)
		_ = bob2App.ReceiveMessage(context.Background(), raw)
		return nil
	}}
	aliceApp, _, _ := buildPeer(t, "alice-multi.db", "alice", "a1", dir, sink, nil)

	accepted, err := aliceApp.SendMessage(context.Background(), domain.MessageDescriptor{Recipient: "bob", Body: []byte("hi both")})
	if err != nil {
		t.Fatalf("send message: %v", err)
	}
	if len(accepted) != 2 {
		t.Fatalf("expected 2 accepted message ids, got %d", len(accepted))
	}
	if len(bob1Listener.messages) != 1 || len(bob2Listener.messages) != 1 {
		t.Fatalf("expected exactly one message delivered per device, got %d/%d", len(bob1Listener.messages), len(bob2Listener.messages))
	}
}

// TestSendMessageDetectsChangedIdentityAndSkipsDevice covers the send-side
// half of identity-change handling: once a session exists, a device whose
// published identity key no longer matches the one the session was
// established with must be skipped rather than sent to.
func TestSendMessageDetectsChangedIdentityAndSkipsDevice(t *testing.T) {
	bobListener := &capturingListener{}
	bobApp, bobSt, bobIdm := buildPeer(t, "bob-mismatch.db", "bob", "b1", nil, nil, bobListener)

	makeBundle := func(st domain.Store, idm *identity.Manager) domain.PreKeyBundle {
		id, ok, err := st.LoadIdentity()
		if err != nil || !ok {
			t.Fatalf("load identity: ok=%v err=%v", ok, err)
		}
		spk, err := idm.NewSignedPreKey(id)
		if err != nil {
			t.Fatalf("signed pre-key: %v", err)
		}
		otks, err := idm.NewPreKeys(1)
		if err != nil {
			t.Fatalf("one-time pre-keys: %v", err)
		}
		return domain.PreKeyBundle{
			Username: "bob", IdentityKey: id.XPub, SigningKey: id.EdPub,
			SignedPreKeyID: spk.ID, SignedPreKey: spk.Pub, SignedPreKeySig: spk.Signature,
			OneTimePreKey: &otks[0],
		}
	}
	bobBundle := makeBundle(bobSt, bobIdm)
	dir := &bundleDirectory{bundle: bobBundle, devices: map[domain.Username][]domain.DeviceID{"bob": {"b1"}}}

	sink := &recordingSink{deliverTo: func(raw []byte) error {
		return bobApp.ReceiveMessage(context.Background(), raw)
	}}
	aliceListener := &capturingListener{}
	aliceApp, _, _ := buildPeer(t, "alice-mismatch.db", "alice", "a1", dir, sink, aliceListener)

	if _, err := aliceApp.SendMessage(context.Background(), domain.MessageDescriptor{Recipient: "bob", Body: []byte("hi bob")}); err != nil {
		t.Fatalf("send message: %v", err)
	}
	if len(bobListener.messages) != 1 {
		t.Fatalf("expected bob to receive 1 message before the identity change, got %d", len(bobListener.messages))
	}

	// bob's device reinstalls under a fresh identity key; the directory now
	// hands out a bundle for the same (user, device) signed by that new key.
	impostorSt, impostorIdm := func() (domain.Store, *identity.Manager) {
		st := openTestStore(t, "bob-reinstalled.db")
		idm := identity.New(st, nil)
		if _, err := idm.Init("bob"); err != nil {
			t.Fatalf("init reinstalled identity: %v", err)
		}
		return st, idm
	}()
	dir.bundle = makeBundle(impostorSt, impostorIdm)

	accepted, err := aliceApp.SendMessage(context.Background(), domain.MessageDescriptor{Recipient: "bob", Body: []byte("hi again")})
	if err != nil {
		t.Fatalf("send message after identity change: %v", err)
	}
	if len(accepted) != 0 {
		t.Fatalf("expected no accepted message ids once the peer's identity changed, got %v", accepted)
	}
	if len(bobListener.messages) != 1 {
		t.Fatalf("expected no new message delivered after the identity change, still got %d", len(bobListener.messages))
	}
	found := false
	for _, n := range aliceListener.notices {
		if n == domain.NotifyIdentityChanged {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected an identity-changed notice on the sender's own side, got %v", aliceListener.notices)
	}
}

type multiDeviceDirectory struct {
	bundles map[domain.DeviceID]domain.PreKeyBundle
	devices map[domain.Username][]domain.DeviceID
}

func (d *multiDeviceDirectory) ListDevices(ctx context.Context, user domain.Username) ([]domain.DeviceID, error) {
	return d.devices[user], nil
}
func (d *multiDeviceDirectory) FetchPreKeyBundle(ctx context.Context, user domain.Username, device domain.DeviceID) (domain.PreKeyBundle, error) {
	return d.bundles[device], nil
}
func (d *multiDeviceDirectory) PublishPreKeys(ctx context.Context, bundle domain.PreKeyBundle) error {
	return nil
}
func (d *multiDeviceDirectory) RegisterDevice(ctx context.Context, user domain.Username, device domain.DeviceID) error {
	return nil
}
func (d *multiDeviceDirectory) RemoveDevice(ctx context.Context, user domain.Username, device domain.DeviceID) error {
	return nil
}
