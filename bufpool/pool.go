// Package bufpool provides the link engine's only dynamic storage: two
// fixed-size arenas of frame-sized buffers (tx and rx), addressed by
// small integer indices rather than pointers.
//
// spec.md §9 ("Intrusive lists and pointer graphs") calls for exactly
// this re-architecture of the original ash-host-queues.c pointer-linked
// buffers: a fixed array whose buffers carry their free-list/queue link
// as a `next` index field keeps the same O(1) push/pop behaviour while
// eliminating aliasing hazards.
package bufpool

// MaxPayload is the largest DATA payload a Buffer can hold (spec.md §3).
const MaxPayload = 128

// none is the sentinel "no next buffer" index, mirroring a NULL link.
const none = -1

// Buffer is a fixed-capacity byte array plus a length, indexed by
// position in a Pool's arena.
type Buffer struct {
	Data [MaxPayload]byte
	Len  int
	next int
}

// Pool is a fixed array of buffers with an intrusive free list. A buffer
// index belongs to exactly one of {the pool's free list, a Queue, or
// "on loan" to a caller} at any time (spec.md §3 invariant).
type Pool struct {
	buffers []Buffer
	free    int // head of the free list, or none
}

// NewPool creates a Pool with the given number of buffers, all initially
// free.
func NewPool(size int) *Pool {
	p := &Pool{buffers: make([]Buffer, size)}
	p.Reset()
	return p
}

// Reset returns every buffer in the pool to the free list, discarding
// any queue membership the caller may still believe a buffer has.
func (p *Pool) Reset() {
	for i := range p.buffers {
		p.buffers[i].Len = 0
		if i == len(p.buffers)-1 {
			p.buffers[i].next = none
		} else {
			p.buffers[i].next = i + 1
		}
	}
	if len(p.buffers) == 0 {
		p.free = none
	} else {
		p.free = 0
	}
}

// Size returns the total number of buffers in the pool.
func (p *Pool) Size() int {
	return len(p.buffers)
}

// Alloc removes a buffer from the head of the free list, zeroes its
// length and payload, and returns its index. ok is false if the pool is
// exhausted.
func (p *Pool) Alloc() (idx int, ok bool) {
	if p.free == none {
		return 0, false
	}
	idx = p.free
	p.free = p.buffers[idx].next
	p.buffers[idx].Data = [MaxPayload]byte{}
	p.buffers[idx].Len = 0
	p.buffers[idx].next = none
	return idx, true
}

// Free returns a buffer to the head of the free list. The caller must
// ensure the buffer is not reachable from any Queue.
func (p *Pool) Free(idx int) {
	p.buffers[idx].next = p.free
	p.free = idx
}

// At returns a pointer to the buffer at idx, valid until the next Reset.
func (p *Pool) At(idx int) *Buffer {
	return &p.buffers[idx]
}

// FreeCount returns the number of buffers currently on the free list.
func (p *Pool) FreeCount() int {
	n := 0
	for i := p.free; i != none; i = p.buffers[i].next {
		n++
	}
	return n
}
