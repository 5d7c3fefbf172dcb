package exchange

import (
	"bytes"
	"testing"
)

func TestResponseBuffer_KeepsFittingChunks(t *testing.T) {
	b := NewResponseBuffer(8)
	b.Write([]byte("abc"))
	b.Write([]byte("defgh"))

	if got := string(b.Bytes()); got != "abcdefgh" {
		t.Errorf("bytes = %q", got)
	}
	if b.Truncated() || b.Dropped() != 0 {
		t.Errorf("truncated = %v, dropped = %d", b.Truncated(), b.Dropped())
	}
}

func TestResponseBuffer_DropsWholeChunkAndSeals(t *testing.T) {
	b := NewResponseBuffer(8)
	b.Write([]byte("abcde"))
	b.Write([]byte("fghij")) // does not fit: dropped whole
	b.Write([]byte("k"))     // would fit, but the buffer is sealed

	if got := string(b.Bytes()); got != "abcde" {
		t.Errorf("bytes = %q, want prefix abcde", got)
	}
	if b.Dropped() != 6 {
		t.Errorf("dropped = %d, want 6", b.Dropped())
	}
	if !b.Truncated() {
		t.Error("expected truncated")
	}
}

func TestResponseBuffer_NeverExceedsCapacity(t *testing.T) {
	payload := bytes.Repeat([]byte("0123456789"), 100)
	for _, capacity := range []int{1, 7, 64, 4096} {
		for _, chunk := range []int{1, 3, 10, 512} {
			b := NewResponseBuffer(capacity)
			for i := 0; i < len(payload); i += chunk {
				b.Write(payload[i:min(i+chunk, len(payload))])
			}
			if b.Len() > capacity {
				t.Fatalf("cap %d chunk %d: len %d exceeds capacity", capacity, chunk, b.Len())
			}
			if !bytes.HasPrefix(payload, b.Bytes()) {
				t.Fatalf("cap %d chunk %d: retained bytes are not a prefix", capacity, chunk)
			}
			if b.Len()+b.Dropped() != len(payload) {
				t.Fatalf("cap %d chunk %d: kept %d + dropped %d != %d", capacity, chunk, b.Len(), b.Dropped(), len(payload))
			}
		}
	}
}

func TestResponseBuffer_Reset(t *testing.T) {
	b := NewResponseBuffer(4)
	b.Write([]byte("toolong"))
	b.Reset()

	if b.Len() != 0 || b.Dropped() != 0 || b.Truncated() {
		t.Fatalf("reset left state: len=%d dropped=%d truncated=%v", b.Len(), b.Dropped(), b.Truncated())
	}
	b.Write([]byte("ok"))
	if string(b.Bytes()) != "ok" {
		t.Errorf("bytes after reset = %q", b.Bytes())
	}
	if b.Capacity() != 4 {
		t.Errorf("capacity = %d", b.Capacity())
	}
}

func TestResponseBuffer_ExactCapacity(t *testing.T) {
	b := NewResponseBuffer(8)
	b.Write([]byte("abcd"))
	b.Write([]byte("efgh"))

	if b.Len() != 8 || b.Truncated() || b.Dropped() != 0 {
		t.Fatalf("len = %d truncated = %v dropped = %d, want all 8 bytes kept", b.Len(), b.Truncated(), b.Dropped())
	}

	b.Write([]byte("i"))
	if string(b.Bytes()) != "abcdefgh" || b.Dropped() != 1 {
		t.Errorf("bytes = %q dropped = %d", b.Bytes(), b.Dropped())
	}
}
