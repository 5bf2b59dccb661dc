package ratchet

import (
	"sync/atomic"
	"time"
)

// messageIDCounter is the 63-bit counter, seeded from wall-clock nanoseconds
// at process start, monotonically increasing thereafter regardless of clock
// changes.
var messageIDCounter int64

func init() {
	atomic.StoreInt64(&messageIDCounter, time.Now().UnixNano()&0x7fffffffffffffff)
}

// nextMessageID returns the next value in the process-wide monotonic
// sequence, masked to 63 bits.
func nextMessageID() int64 {
	return atomic.AddInt64(&messageIDCounter, 1) & 0x7fffffffffffffff
}
