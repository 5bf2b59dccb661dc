package ratchet

import (
	"encoding/binary"

	"axocore/internal/domain"
	"axocore/internal/errs"
)

const (
	wireVersion = 0x01

	flagHasEstablishment = 1 << 0
	flagHasSupplements   = 1 << 1

	macLen = 8
	ivLen  = 16
)

// marshalSigned serializes everything up to (but excluding) the trailing
// MAC: the exact span the MAC is computed over.
func marshalSigned(h domain.RatchetHeader, iv [ivLen]byte, ciphertext []byte, hasSupplements bool) []byte {
	hasEstablish := h.Establish != nil
	size := 1 + 1 + 32 + 4 + 4
	if hasEstablish {
		size += 4 + 4 + 32 + 32
	}
	size += 2 + ivLen + 4 + len(ciphertext)

	buf := make([]byte, 0, size)
	buf = append(buf, wireVersion)

	flags := byte(0)
	if hasEstablish {
		flags |= flagHasEstablishment
	}
	if hasSupplements {
		flags |= flagHasSupplements
	}
	buf = append(buf, flags)

	buf = append(buf, h.DHRatchetPub.Slice()...)
	buf = be32(h.PNs, buf)
	buf = be32(h.Ns, buf)

	if hasEstablish {
		e := h.Establish
		buf = be32(uint32(e.PreKeyID), buf)
		buf = be32(uint32(e.SignedPreKeyID), buf)
		buf = append(buf, e.SenderIdentity.Slice()...)
		buf = append(buf, e.SenderBase.Slice()...)
	}

	ivLenField := make([]byte, 2)
	binary.BigEndian.PutUint16(ivLenField, uint16(ivLen))
	buf = append(buf, ivLenField...)
	buf = append(buf, iv[:]...)

	ctLenField := make([]byte, 4)
	binary.BigEndian.PutUint32(ctLenField, uint32(len(ciphertext)))
	buf = append(buf, ctLenField...)
	buf = append(buf, ciphertext...)

	return buf
}

// marshal builds the full wire envelope, signed span plus trailing MAC.
func marshal(h domain.RatchetHeader, iv [ivLen]byte, ciphertext []byte, hasSupplements bool, mac [macLen]byte) []byte {
	return append(marshalSigned(h, iv, ciphertext, hasSupplements), mac[:]...)
}

// unmarshal parses a wire envelope, splitting out the signed span so the
// caller can verify the MAC before trusting anything else in it.
func unmarshal(w []byte) (h domain.RatchetHeader, iv [ivLen]byte, ciphertext []byte, mac [macLen]byte, hasSupplements bool, signedSpan []byte, err error) {
	if len(w) < 1+1+32+4+4+2+ivLen+4+macLen {
		return h, iv, nil, mac, false, nil, errs.New(errs.AuthFailed, "wire: envelope too short")
	}
	pos := 0
	version := w[pos]
	pos++
	if version != wireVersion {
		return h, iv, nil, mac, false, nil, errs.New(errs.AuthFailed, "wire: unsupported version")
	}
	flags := w[pos]
	pos++
	hasSupplements = flags&flagHasSupplements != 0

	copy(h.DHRatchetPub[:], w[pos:pos+32])
	pos += 32
	h.PNs = binary.BigEndian.Uint32(w[pos : pos+4])
	pos += 4
	h.Ns = binary.BigEndian.Uint32(w[pos : pos+4])
	pos += 4

	if flags&flagHasEstablishment != 0 {
		if len(w)-pos < 4+4+32+32 {
			return h, iv, nil, mac, hasSupplements, nil, errs.New(errs.AuthFailed, "wire: truncated establishment block")
		}
		var e domain.EstablishmentBlock
		e.PreKeyID = domain.PreKeyID(binary.BigEndian.Uint32(w[pos : pos+4]))
		pos += 4
		e.SignedPreKeyID = domain.SignedPreKeyID(binary.BigEndian.Uint32(w[pos : pos+4]))
		pos += 4
		copy(e.SenderIdentity[:], w[pos:pos+32])
		pos += 32
		copy(e.SenderBase[:], w[pos:pos+32])
		pos += 32
		h.Establish = &e
	}

	if len(w)-pos < 2 {
		return h, iv, nil, mac, hasSupplements, nil, errs.New(errs.AuthFailed, "wire: truncated iv length")
	}
	declaredIVLen := int(binary.BigEndian.Uint16(w[pos : pos+2]))
	pos += 2
	if declaredIVLen != ivLen || len(w)-pos < ivLen {
		return h, iv, nil, mac, hasSupplements, nil, errs.New(errs.AuthFailed, "wire: bad iv length")
	}
	copy(iv[:], w[pos:pos+ivLen])
	pos += ivLen

	if len(w)-pos < 4 {
		return h, iv, nil, mac, hasSupplements, nil, errs.New(errs.AuthFailed, "wire: truncated ciphertext length")
	}
	ctLen := int(binary.BigEndian.Uint32(w[pos : pos+4]))
	pos += 4
	if ctLen < 0 || len(w)-pos < ctLen+macLen {
		return h, iv, nil, mac, hasSupplements, nil, errs.New(errs.AuthFailed, "wire: truncated ciphertext")
	}
	signedSpan = w[:pos+ctLen]
	ciphertext = w[pos : pos+ctLen]
	pos += ctLen

	copy(mac[:], w[pos:pos+macLen])
	return h, iv, ciphertext, mac, hasSupplements, signedSpan, nil
}

func be32(v uint32, buf []byte) []byte {
	tmp := make([]byte, 4)
	binary.BigEndian.PutUint32(tmp, v)
	return append(buf, tmp...)
}
