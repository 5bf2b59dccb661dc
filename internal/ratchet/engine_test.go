package ratchet_test

import (
	"bytes"
	"path/filepath"
	"testing"

	"axocore/internal/cryptoprim"
	"axocore/internal/domain"
	"axocore/internal/ratchet"
	"axocore/internal/store"
)

// openTestStore opens a fresh encrypted store under a temp directory.
func openTestStore(t *testing.T) domain.Store {
	t.Helper()
	key := bytes.Repeat([]byte{0x09}, 32)
	st, err := store.Open(filepath.Join(t.TempDir(), "ratchet.db"), key, nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

// seedMirroredConversations builds a pair of sessions sharing a root key,
// as X3DH would leave them after a completed handshake: the initiator has
// no sending chain yet (lazy ratchet step on first Encrypt) and the
// responder's DHRatchetSend is its long-lived signed pre-key pair.
func seedMirroredConversations(t *testing.T, aSt, bSt domain.Store, id domain.ConversationID) {
	t.Helper()
	rootKey := bytes.Repeat([]byte{0x42}, 32)

	bKP, err := cryptoprim.GenerateX25519KeyPair()
	if err != nil {
		t.Fatalf("generate responder keypair: %v", err)
	}

	aConv := domain.Conversation{
		ID:            id,
		RootKey:       append([]byte(nil), rootKey...),
		DHRatchetRecv: bKP.Pub,
	}
	if err := aSt.StoreConversation(aConv); err != nil {
		t.Fatalf("seed initiator conversation: %v", err)
	}

	bConv := domain.Conversation{
		ID:            reverseID(id),
		RootKey:       append([]byte(nil), rootKey...),
		DHRatchetSend: bKP,
	}
	if err := bSt.StoreConversation(bConv); err != nil {
		t.Fatalf("seed responder conversation: %v", err)
	}
}

func reverseID(id domain.ConversationID) domain.ConversationID {
	return domain.ConversationID{LocalUser: id.RemoteUser, RemoteUser: id.LocalUser, RemoteDevice: "b1"}
}

func TestEngineRoundTrip(t *testing.T) {
	aSt := openTestStore(t)
	bSt := openTestStore(t)
	id := domain.ConversationID{LocalUser: "alice", RemoteUser: "bob", RemoteDevice: "b1"}
	seedMirroredConversations(t, aSt, bSt, id)

	aEngine := ratchet.NewEngine(aSt, nil)
	bEngine := ratchet.NewEngine(bSt, nil)

	wire, _, _, err := aEngine.Encrypt(id, []byte("hello bob"), nil)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	pt, _, err := bEngine.Decrypt(reverseID(id), wire, nil)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if string(pt) != "hello bob" {
		t.Fatalf("got %q, want %q", pt, "hello bob")
	}
}

func TestEngineOutOfOrderDelivery(t *testing.T) {
	aSt := openTestStore(t)
	bSt := openTestStore(t)
	id := domain.ConversationID{LocalUser: "alice", RemoteUser: "bob", RemoteDevice: "b1"}
	seedMirroredConversations(t, aSt, bSt, id)

	aEngine := ratchet.NewEngine(aSt, nil)
	bEngine := ratchet.NewEngine(bSt, nil)

	var wires [][]byte
	for _, msg := range []string{"one", "two", "three"} {
		wire, _, _, err := aEngine.Encrypt(id, []byte(msg), nil)
		if err != nil {
			t.Fatalf("encrypt %q: %v", msg, err)
		}
		wires = append(wires, wire)
	}

	// Deliver out of order: 3rd, then 1st, then 2nd.
	order := []int{2, 0, 1}
	want := []string{"three", "one", "two"}
	for i, idx := range order {
		pt, _, err := bEngine.Decrypt(reverseID(id), wires[idx], nil)
		if err != nil {
			t.Fatalf("decrypt message %d: %v", idx, err)
		}
		if string(pt) != want[i] {
			t.Fatalf("message %d: got %q, want %q", idx, pt, want[i])
		}
	}
}

func TestEngineReplayRejected(t *testing.T) {
	aSt := openTestStore(t)
	bSt := openTestStore(t)
	id := domain.ConversationID{LocalUser: "alice", RemoteUser: "bob", RemoteDevice: "b1"}
	seedMirroredConversations(t, aSt, bSt, id)

	aEngine := ratchet.NewEngine(aSt, nil)
	bEngine := ratchet.NewEngine(bSt, nil)

	wire, _, _, err := aEngine.Encrypt(id, []byte("only once"), nil)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if _, _, err := bEngine.Decrypt(reverseID(id), wire, nil); err != nil {
		t.Fatalf("first decrypt: %v", err)
	}
	if _, _, err := bEngine.Decrypt(reverseID(id), wire, nil); err == nil {
		t.Fatal("expected replayed envelope to be rejected")
	}
}

func TestEngineBidirectionalRatchet(t *testing.T) {
	aSt := openTestStore(t)
	bSt := openTestStore(t)
	id := domain.ConversationID{LocalUser: "alice", RemoteUser: "bob", RemoteDevice: "b1"}
	seedMirroredConversations(t, aSt, bSt, id)

	aEngine := ratchet.NewEngine(aSt, nil)
	bEngine := ratchet.NewEngine(bSt, nil)

	wire, _, _, err := aEngine.Encrypt(id, []byte("ping"), nil)
	if err != nil {
		t.Fatalf("a encrypt: %v", err)
	}
	if _, _, err := bEngine.Decrypt(reverseID(id), wire, nil); err != nil {
		t.Fatalf("b decrypt: %v", err)
	}

	reply, _, _, err := bEngine.Encrypt(reverseID(id), []byte("pong"), nil)
	if err != nil {
		t.Fatalf("b encrypt: %v", err)
	}
	pt, _, err := aEngine.Decrypt(id, reply, nil)
	if err != nil {
		t.Fatalf("a decrypt reply: %v", err)
	}
	if string(pt) != "pong" {
		t.Fatalf("got %q, want %q", pt, "pong")
	}
}
