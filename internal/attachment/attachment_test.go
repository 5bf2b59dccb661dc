package attachment_test

import (
	"bytes"
	"testing"

	"axocore/internal/attachment"
	"axocore/internal/domain"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	plaintext := bytes.Repeat([]byte("segment-data-"), 200_000) // larger than DefaultSegmentSize, so it spans multiple segments
	meta := []byte(`{"name":"photo.jpg"}`)

	enc, err := attachment.EncryptNew(plaintext, meta)
	if err != nil {
		t.Fatalf("encrypt new: %v", err)
	}
	keyBlob := enc.GetKeyBLOB()

	var segments [][]byte
	for enc.BufferSize() > 0 {
		seg, err := enc.EncryptNext()
		if err != nil {
			t.Fatalf("encrypt next: %v", err)
		}
		segments = append(segments, seg)
	}
	locator := enc.GetLocator()
	if locator.Hex == "" || locator.Base64URL == "" {
		t.Fatal("expected a non-empty locator")
	}
	if len(segments) < 2 {
		t.Fatalf("expected multiple segments for this plaintext size, got %d", len(segments))
	}

	dec := attachment.DecryptNew(keyBlob)
	for _, seg := range segments {
		if err := dec.DecryptNext(seg); err != nil {
			t.Fatalf("decrypt next: %v", err)
		}
	}
	gotPlaintext, gotMeta := dec.GetDecryptedData()
	if !bytes.Equal(gotPlaintext, plaintext) {
		t.Fatal("reassembled plaintext does not match original")
	}
	if !bytes.Equal(gotMeta, meta) {
		t.Fatal("metadata did not round-trip")
	}
}

func TestDecryptRejectsTamperedSegment(t *testing.T) {
	enc, err := attachment.EncryptNew([]byte("small payload"), nil)
	if err != nil {
		t.Fatalf("encrypt new: %v", err)
	}
	seg, err := enc.EncryptNext()
	if err != nil {
		t.Fatalf("encrypt next: %v", err)
	}
	seg[len(seg)-1] ^= 0xFF

	dec := attachment.DecryptNew(enc.GetKeyBLOB())
	if err := dec.DecryptNext(seg); err == nil {
		t.Fatal("expected tampered segment to fail authentication")
	}
}

func TestDecryptRejectsWrongContentKey(t *testing.T) {
	enc, err := attachment.EncryptNew([]byte("hello"), nil)
	if err != nil {
		t.Fatalf("encrypt new: %v", err)
	}
	seg, err := enc.EncryptNext()
	if err != nil {
		t.Fatalf("encrypt next: %v", err)
	}

	wrongKey := enc.GetKeyBLOB()
	wrongKey.ContentKey = bytes.Repeat([]byte{0xAA}, len(wrongKey.ContentKey))

	dec := attachment.DecryptNew(domain.AttachmentKeyBLOB{ContentKey: wrongKey.ContentKey})
	if err := dec.DecryptNext(seg); err == nil {
		t.Fatal("expected decryption under the wrong content key to fail")
	}
}
