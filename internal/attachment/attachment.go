// Package attachment implements the chunked attachment codec: a random
// content key, fixed-size plaintext segments each
// sealed independently under XChaCha20-Poly1305 with a key-derived nonce,
// and a content-addressed locator over the finished ciphertext. Like the
// ratchet engine, which derives its CBC IV from the message key, each
// segment's nonce is derived from key material rather than taken from a
// counter; here it is a per-segment HKDF-derived XChaCha20-Poly1305 nonce.
package attachment

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"

	"golang.org/x/crypto/chacha20poly1305"

	"axocore/internal/cryptoprim"
	"axocore/internal/domain"
	"axocore/internal/errs"
)

// DefaultSegmentSize is the plaintext chunk size each segment seals
// (default 1 MiB).
const DefaultSegmentSize = 1 << 20

// contentKeySize is 512 bits.
const contentKeySize = 64

var nonceInfo = []byte("axocore|attachment|nonce")

// EncryptHandle streams an attachment's plaintext into sealed segments
// via the EncryptNew/EncryptNext/GetSegmentBLOB pipeline.
type EncryptHandle struct {
	contentKey  []byte
	segmentSize int
	meta        []byte

	plaintext []byte
	offset    int
	nextIndex uint32

	sealedSoFar []byte
}

// DecryptHandle reassembles plaintext from sealed segments fed in order
// via the DecryptNew/DecryptNext/GetDecryptedData pipeline.
type DecryptHandle struct {
	contentKey []byte
	nextIndex  uint32
	plaintext  []byte
	meta       []byte
}

// EncryptNew generates a fresh 512-bit content key and returns a handle
// ready to stream data out in DefaultSegmentSize segments.
func EncryptNew(data, meta []byte) (*EncryptHandle, error) {
	key, err := cryptoprim.RandBytes(contentKeySize)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "generate attachment content key", err)
	}
	return &EncryptHandle{contentKey: key, segmentSize: DefaultSegmentSize, meta: meta, plaintext: data}, nil
}

// GetKeyBLOB returns the content key wrapped with enough context to be
// embedded in a message.
func (h *EncryptHandle) GetKeyBLOB() domain.AttachmentKeyBLOB {
	return domain.AttachmentKeyBLOB{
		ContentKey:  append([]byte(nil), h.contentKey...),
		SegmentSize: h.segmentSize,
		TotalSize:   int64(len(h.plaintext)),
		MetaData:    h.meta,
	}
}

// BufferSize reports how many plaintext bytes remain to be sealed; callers
// repeat EncryptNext until this returns 0.
func (h *EncryptHandle) BufferSize() int {
	if h.offset >= len(h.plaintext) {
		return 0
	}
	return len(h.plaintext) - h.offset
}

// EncryptNext seals the next segment and advances the cursor.
func (h *EncryptHandle) EncryptNext() ([]byte, error) {
	if h.BufferSize() == 0 {
		return nil, errs.New(errs.BadParams, "attachment: no more segments")
	}
	end := h.offset + h.segmentSize
	if end > len(h.plaintext) {
		end = len(h.plaintext)
	}
	chunk := h.plaintext[h.offset:end]

	ct, err := sealSegment(h.contentKey, h.nextIndex, chunk)
	if err != nil {
		return nil, err
	}
	h.sealedSoFar = append(h.sealedSoFar, ct...)
	h.offset = end
	h.nextIndex++
	return ct, nil
}

// GetSegmentBLOB returns the per-segment key packet for segment n — in
// this codec the content key and nonce derivation are uniform across
// segments, so the packet is just the segment index under the shared key.
func (h *EncryptHandle) GetSegmentBLOB(n uint32) []byte {
	return []byte{byte(n >> 24), byte(n >> 16), byte(n >> 8), byte(n)}
}

// GetLocator returns the content-addressed identifier of the sealed
// attachment: SHA-256 over the concatenation of all segment ciphertexts
// sealed so far — call once encryption is complete for a stable value.
func (h *EncryptHandle) GetLocator() domain.AttachmentLocator {
	sum := sha256.Sum256(h.sealedSoFar)
	return domain.AttachmentLocator{
		Hex:       hex.EncodeToString(sum[:]),
		Base64URL: base64.RawURLEncoding.EncodeToString(sum[:]),
	}
}

// Free releases the handle's plaintext buffer.
func (h *EncryptHandle) Free() {
	cryptoprim.Wipe(h.contentKey)
	cryptoprim.Wipe(h.plaintext)
}

// DecryptNew builds a decrypt handle over a previously generated content
// key.
func DecryptNew(key domain.AttachmentKeyBLOB) *DecryptHandle {
	return &DecryptHandle{contentKey: key.ContentKey, meta: key.MetaData}
}

// DecryptNext opens the next segment in order and appends its plaintext.
func (d *DecryptHandle) DecryptNext(segmentCiphertext []byte) error {
	pt, err := openSegment(d.contentKey, d.nextIndex, segmentCiphertext)
	if err != nil {
		return err
	}
	d.plaintext = append(d.plaintext, pt...)
	d.nextIndex++
	return nil
}

// GetDecryptedData returns the reassembled plaintext and metadata.
func (d *DecryptHandle) GetDecryptedData() ([]byte, []byte) {
	return d.plaintext, d.meta
}

// Free releases the handle's buffers.
func (d *DecryptHandle) Free() {
	cryptoprim.Wipe(d.contentKey)
	cryptoprim.Wipe(d.plaintext)
}

func segmentNonce(contentKey []byte, index uint32) ([]byte, error) {
	indexBytes := []byte{byte(index >> 24), byte(index >> 16), byte(index >> 8), byte(index)}
	return cryptoprim.HKDF(indexBytes, contentKey, nonceInfo, chacha20poly1305.NonceSizeX)
}

func sealSegment(contentKey []byte, index uint32, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(contentKey[:chacha20poly1305.KeySize])
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "attachment: new aead", err)
	}
	nonce, err := segmentNonce(contentKey, index)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "attachment: derive segment nonce", err)
	}
	return aead.Seal(nil, nonce, plaintext, nil), nil
}

func openSegment(contentKey []byte, index uint32, ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(contentKey[:chacha20poly1305.KeySize])
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "attachment: new aead", err)
	}
	nonce, err := segmentNonce(contentKey, index)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "attachment: derive segment nonce", err)
	}
	pt, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, errs.New(errs.AuthFailed, "attachment: segment auth failed")
	}
	return pt, nil
}
