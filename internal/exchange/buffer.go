package exchange

// ResponseBuffer is the fixed-capacity store a response body is streamed into. It
// is reused across requests and must be Reset before each one.
//
// A chunk is kept only if it fits entirely. The first chunk that does not fit is
// dropped and the buffer seals, so later chunks are dropped too and the retained
// bytes are always a prefix of the body.
type ResponseBuffer struct {
	data    []byte
	sealed  bool
	dropped int
}

// NewResponseBuffer allocates a buffer holding up to capacity bytes.
func NewResponseBuffer(capacity int) *ResponseBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &ResponseBuffer{data: make([]byte, 0, capacity)}
}

// Reset empties the buffer and clears the overflow state.
func (b *ResponseBuffer) Reset() {
	b.data = b.data[:0]
	b.sealed = false
	b.dropped = 0
}

// Write appends p if it fits, otherwise drops it. It never fails, so a response
// larger than the buffer is truncated rather than aborted.
func (b *ResponseBuffer) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if b.sealed || len(p) > cap(b.data)-len(b.data) {
		b.sealed = true
		b.dropped += len(p)
		return len(p), nil
	}
	b.data = append(b.data, p...)
	return len(p), nil
}

// Bytes returns the retained prefix. It is valid until the next Reset or Write.
func (b *ResponseBuffer) Bytes() []byte { return b.data }

// Len returns the number of retained bytes.
func (b *ResponseBuffer) Len() int { return len(b.data) }

// Capacity returns the usable capacity.
func (b *ResponseBuffer) Capacity() int { return cap(b.data) }

// Dropped returns the number of bytes discarded since the last Reset.
func (b *ResponseBuffer) Dropped() int { return b.dropped }

// Truncated reports whether any chunk was dropped since the last Reset.
func (b *ResponseBuffer) Truncated() bool { return b.sealed }
