package cryptoprim

import "runtime"

// Wipe zeroes b in place. //go:noinline plus the trailing runtime.KeepAlive
// keep the optimizer from recognizing the loop as dead and eliding it —
// the buffer must actually be overwritten before the caller drops it.
//
//go:noinline
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(&b)
}

// WipeAll wipes every buffer in bs.
func WipeAll(bs ...[]byte) {
	for _, b := range bs {
		Wipe(b)
	}
}
