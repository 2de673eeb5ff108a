package buffer

import (
	"sync"
	"time"

	"github.com/vexgw/go-vex-gateway/internal/metrics"
)

// DefaultCapacity is how many received lines are retained.
const DefaultCapacity = 100

// now is a hook for tests.
var now = time.Now

// Message is one received line. Immutable once appended. Ids start at 1, are
// strictly increasing and never reused, even across device reconnects.
type Message struct {
	ID        uint64 `json:"id"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// Buffer is a bounded, ordered, id-tagged store of received lines. Exactly
// one writer (the receive loop) appends; arbitrarily many readers query
// concurrently. At capacity the oldest entry is evicted.
type Buffer struct {
	mu     sync.RWMutex
	ring   []Message
	head   int // index of the oldest entry
	count  int
	nextID uint64
}

// New creates a Buffer holding at most capacity messages (DefaultCapacity
// when <= 0).
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{ring: make([]Message, capacity)}
}

// Append stores text as a new timestamped message and returns it. O(1); the
// oldest entry is evicted when the buffer is full.
func (b *Buffer) Append(text string) Message {
	b.mu.Lock()
	b.nextID++
	m := Message{ID: b.nextID, Text: text, Timestamp: now().Format("15:04:05")}
	evicted := false
	if b.count == len(b.ring) {
		b.ring[b.head] = m
		b.head = (b.head + 1) % len(b.ring)
		evicted = true
	} else {
		b.ring[(b.head+b.count)%len(b.ring)] = m
		b.count++
	}
	size := b.count
	b.mu.Unlock()
	if evicted {
		metrics.IncEviction()
	}
	metrics.SetBufferSize(size)
	return m
}

// Since returns, in append order, every stored message with id strictly
// greater than id. The result is a copy; it never aliases the ring.
func (b *Buffer) Since(id uint64) []Message {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := []Message{}
	for i := 0; i < b.count; i++ {
		m := b.ring[(b.head+i)%len(b.ring)]
		if m.ID > id {
			out = append(out, m)
		}
	}
	return out
}

// Len returns the number of stored messages.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

// LastID returns the id of the newest message, 0 when none were appended yet.
func (b *Buffer) LastID() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.nextID
}
