package identity_test

import (
	"bytes"
	"path/filepath"
	"testing"

	"axocore/internal/domain"
	"axocore/internal/identity"
	"axocore/internal/store"
)

func openTestStore(t *testing.T) domain.Store {
	t.Helper()
	key := bytes.Repeat([]byte{0x0a}, 32)
	st, err := store.Open(filepath.Join(t.TempDir(), "identity.db"), key, nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestInitCreatesThenLoadsIdentity(t *testing.T) {
	st := openTestStore(t)
	m := identity.New(st, nil)

	res, err := m.Init("alice")
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if !res.Created {
		t.Fatal("expected a fresh identity to be created")
	}

	res2, err := m.Init("alice")
	if err != nil {
		t.Fatalf("re-init: %v", err)
	}
	if res2.Created {
		t.Fatal("expected re-init to load the existing identity, not create one")
	}
	if res2.Identity.XPub != res.Identity.XPub {
		t.Fatal("re-init returned a different identity key")
	}
}

func TestNewPreKeysUniqueIDsAndConsumption(t *testing.T) {
	st := openTestStore(t)
	m := identity.New(st, nil)

	publics, err := m.NewPreKeys(5)
	if err != nil {
		t.Fatalf("new pre-keys: %v", err)
	}
	if len(publics) != 5 {
		t.Fatalf("expected 5 pre-keys, got %d", len(publics))
	}
	seen := map[domain.PreKeyID]bool{}
	for _, p := range publics {
		if seen[p.ID] {
			t.Fatalf("duplicate pre-key id %v", p.ID)
		}
		seen[p.ID] = true
	}

	n, err := m.GetNumPreKeys()
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 5 {
		t.Fatalf("expected count 5, got %d", n)
	}

	consumed, err := m.ConsumeOneTimePreKey(publics[0].ID)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if consumed.Pub != publics[0].Pub {
		t.Fatal("consumed key does not match published key")
	}

	if _, err := m.ConsumeOneTimePreKey(publics[0].ID); err == nil {
		t.Fatal("expected consuming the same pre-key twice to fail")
	}

	n, err = m.GetNumPreKeys()
	if err != nil {
		t.Fatalf("count after consume: %v", err)
	}
	if n != 4 {
		t.Fatalf("expected count 4 after consumption, got %d", n)
	}
}

func TestNewSignedPreKeySignatureVerifies(t *testing.T) {
	st := openTestStore(t)
	m := identity.New(st, nil)

	res, err := m.Init("alice")
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	spk, err := m.NewSignedPreKey(res.Identity)
	if err != nil {
		t.Fatalf("new signed pre-key: %v", err)
	}
	if len(spk.Signature) == 0 {
		t.Fatal("expected a non-empty signature")
	}

	loaded, ok, err := st.LoadSignedPreKey(spk.ID)
	if err != nil {
		t.Fatalf("load signed pre-key: %v", err)
	}
	if !ok {
		t.Fatal("expected signed pre-key to be persisted")
	}
	if loaded.Pub != spk.Pub {
		t.Fatal("loaded signed pre-key public half mismatch")
	}
}

func TestDerivePageKeyRoundTrip(t *testing.T) {
	salt, err := identity.NewSalt()
	if err != nil {
		t.Fatalf("new salt: %v", err)
	}
	formatted := identity.FormatSalt(salt)
	parsed, err := identity.ParseSalt(formatted)
	if err != nil {
		t.Fatalf("parse salt: %v", err)
	}
	if !bytes.Equal(salt, parsed) {
		t.Fatal("salt did not round-trip through format/parse")
	}

	key1, err := identity.DerivePageKey("hunter2", salt)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	key2, err := identity.DerivePageKey("hunter2", salt)
	if err != nil {
		t.Fatalf("derive again: %v", err)
	}
	if !bytes.Equal(key1, key2) {
		t.Fatal("page key derivation is not deterministic for identical inputs")
	}
	key3, err := identity.DerivePageKey("different", salt)
	if err != nil {
		t.Fatalf("derive different passphrase: %v", err)
	}
	if bytes.Equal(key1, key3) {
		t.Fatal("different passphrases produced the same page key")
	}
}
