// Package queue implements the producer-to-audio-thread command boundary:
// a lock-free MPSC ring buffer plus the Transaction batching built on top of
// it.
package queue

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// cacheLineSize is the typical CPU cache line size (64 bytes on x86-64).
const cacheLineSize = 64

// padding keeps hot fields off each other's cache lines to avoid false
// sharing between the producer(s) and the single consumer.
type padding [cacheLineSize]byte

// RingBuffer is a multi-producer, single-consumer ring buffer of Command
// values. Producers call TryEnqueue from any goroutine; only the audio
// thread may call Drain/TryDequeue.
type RingBuffer struct {
	_pad0 padding

	head uint64 // next write slot (producers CAS this forward)
	_pad1 padding

	tail uint64 // next read slot (consumer-only, plain store)
	_pad2 padding

	mask uint64
	data []Command

	// overflow absorbs pushes that lose the ring race when full. The audio
	// thread touches it only via Drain, which takes overflowMu (and may
	// grow dst) only when the overflow slice is non-empty; at that point it
	// can wait on a producer that holds the lock.
	overflowMu sync.Mutex
	overflow   []Command
}

// NewRingBuffer creates a ring buffer with the given capacity, rounded up to
// the next power of two.
func NewRingBuffer(capacity int) *RingBuffer {
	c := 1
	for c < capacity {
		c <<= 1
	}
	return &RingBuffer{
		mask: uint64(c - 1),
		data: make([]Command, c),
	}
}

// spinAttempts bounds how long a producer spins against a full ring before
// falling back to the overflow slice. The audio thread drains fast enough
// in practice that this is rarely reached.
const spinAttempts = 64

// TryEnqueue adds cmd to the queue. It never blocks: once the ring has been
// contended spinAttempts times it appends to the mutex-guarded overflow
// slice instead. Safe for concurrent callers.
func (q *RingBuffer) TryEnqueue(cmd Command) {
	for i := 0; i < spinAttempts; i++ {
		head := atomic.LoadUint64(&q.head)
		tail := atomic.LoadUint64(&q.tail)

		if head-tail > q.mask {
			runtime.Gosched()
			continue
		}

		if atomic.CompareAndSwapUint64(&q.head, head, head+1) {
			q.data[head&q.mask] = cmd
			return
		}
		runtime.Gosched()
	}

	q.overflowMu.Lock()
	q.overflow = append(q.overflow, cmd)
	q.overflowMu.Unlock()
}

// TryDequeue removes one Command from the ring (consumer-only). Returns
// ok=false if the ring is empty; it does not look at the overflow slice —
// callers should prefer Drain, which merges both.
func (q *RingBuffer) TryDequeue() (Command, bool) {
	tail := atomic.LoadUint64(&q.tail)
	head := atomic.LoadUint64(&q.head)

	if tail >= head {
		return Command{}, false
	}

	cmd := q.data[tail&q.mask]
	atomic.StoreUint64(&q.tail, tail+1)
	return cmd, true
}

// Drain appends every currently available command (ring, then overflow) to
// dst and returns the extended slice. Intended to be called once per audio
// block from the consumer goroutine only.
func (q *RingBuffer) Drain(dst []Command) []Command {
	for {
		cmd, ok := q.TryDequeue()
		if !ok {
			break
		}
		dst = append(dst, cmd)
	}

	if len(q.overflow) > 0 {
		q.overflowMu.Lock()
		if len(q.overflow) > 0 {
			dst = append(dst, q.overflow...)
			q.overflow = q.overflow[:0]
		}
		q.overflowMu.Unlock()
	}

	return dst
}

// Len returns an approximate count of ring-resident commands (not including
// overflow). It is a snapshot and may be stale immediately.
func (q *RingBuffer) Len() int {
	head := atomic.LoadUint64(&q.head)
	tail := atomic.LoadUint64(&q.tail)
	if head < tail {
		return 0
	}
	return int(head - tail)
}
