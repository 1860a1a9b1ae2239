// Package ringbuf implements the exchange buffer shared between a task and
// the kernel's async syscall handler.
//
// A Buffer is a fixed-capacity byte ring carrying length-prefixed frames. It
// keeps four monotonically increasing cursors:
//
//	release <= read <= write <= reserve
//
// A producer reserves a frame (advancing reserve), fills it and commits it;
// committed frames that are contiguous from write are then declared readable
// by advancing write. A consumer takes the oldest readable frame (advancing
// read) and releases it once it is done with the bytes; released frames that
// are contiguous from release give their space back to producers.
//
// Frame headers live in a side table of atomic words so that the producer and
// the consumer can run in different scheduling contexts (interrupt handler vs.
// task) without a lock.
package ringbuf

import (
	"errors"
	"sync/atomic"
)

const (
	frameAlign  = 8
	headerBytes = 8

	// flagDone marks a committed frame between write and reserve, and an
	// unreleased frame between release and read.
	flagDone uint32 = 1 << 31
	flagPad  uint32 = 1 << 30
	sizeMask        = flagPad - 1
)

var (
	// ErrSizeTooBig is returned when a frame can never fit the buffer or when
	// the requested size collides with the header flag bits.
	ErrSizeTooBig = errors.New("ringbuf: size too big")
	// ErrNoSpace is returned when the frame does not fit the space left
	// between the reservation cursor and unreleased data.
	ErrNoSpace = errors.New("ringbuf: not enough free space")
	// ErrEmpty is returned by GetValue when no committed frame is readable.
	ErrEmpty = errors.New("ringbuf: empty")
)

// Buffer is a single-producer/single-consumer frame ring.
type Buffer struct {
	_    [0]func() // prevent accidental copying.
	data []byte
	hdr  []atomic.Uint32
	size uint64

	read    atomic.Uint64
	write   atomic.Uint64
	release atomic.Uint64
	reserve atomic.Uint64
}

// New returns a buffer holding capacity bytes, rounded up to the frame
// alignment. Every frame costs an 8 byte header plus its payload padded to 8.
func New(capacity int) *Buffer {
	if capacity < 2*frameAlign {
		capacity = 2 * frameAlign
	}
	if capacity > int(sizeMask) {
		capacity = int(sizeMask) &^ (frameAlign - 1)
	}
	n := alignUp(uint64(capacity))
	return &Buffer{
		data: make([]byte, n),
		hdr:  make([]atomic.Uint32, n/frameAlign),
		size: n,
	}
}

// Cap returns the buffer capacity in bytes.
func (b *Buffer) Cap() int { return int(b.size) }

// MaxFrame returns the largest payload that fits the buffer once it has been
// drained, wherever the cursors stand.
func (b *Buffer) MaxFrame() int {
	return int((b.size/2)&^(frameAlign-1) - headerBytes)
}

// Used returns the number of bytes held by reserved, readable or unreleased
// frames.
func (b *Buffer) Used() int {
	return int(b.reserve.Load() - b.release.Load())
}

// IsEmpty reports whether there is no readable frame.
func (b *Buffer) IsEmpty() bool {
	return b.write.Load() == b.read.Load()
}

// Frame is a reserved, not yet committed region of the buffer.
type Frame struct {
	b    *Buffer
	pos  uint64
	buf  []byte
	done bool
}

// Bytes returns the writable payload of the frame.
func (f *Frame) Bytes() []byte { return f.buf }

// Commit marks the frame readable once every frame reserved before it has
// been committed too. Commit is idempotent.
func (f *Frame) Commit() {
	if f.done {
		return
	}
	f.done = true
	f.b.slot(f.pos).Store(uint32(len(f.buf)) | flagDone)
	f.b.declare()
}

// Reserve claims a frame with a payload of size bytes.
//
// Sizes with the top bit set are rejected with ErrSizeTooBig regardless of
// the free space, as are frames larger than the whole buffer.
func (b *Buffer) Reserve(size uint32) (*Frame, error) {
	if size&(flagDone|flagPad) != 0 {
		return nil, ErrSizeTooBig
	}
	need := alignUp(headerBytes + uint64(size))
	if need > b.size {
		return nil, ErrSizeTooBig
	}

	for {
		res := b.reserve.Load()
		rel := b.release.Load()

		// A frame never wraps: the tail of the ring is skipped with a
		// padding frame when the payload would not be contiguous.
		var pad uint64
		if idx := res % b.size; idx+need > b.size {
			pad = b.size - idx
		}
		if res+pad+need-rel > b.size {
			return nil, ErrNoSpace
		}
		if !b.reserve.CompareAndSwap(res, res+pad+need) {
			continue
		}

		if pad > 0 {
			b.slot(res).Store(uint32(pad) | flagPad | flagDone)
		}
		start := res + pad
		b.slot(start).Store(size)

		i := start%b.size + headerBytes
		return &Frame{b: b, pos: start, buf: b.data[i : i+uint64(size)]}, nil
	}
}

// Write copies p into a new frame and commits it.
func (b *Buffer) Write(p []byte) error {
	if uint64(len(p)) > uint64(sizeMask) {
		return ErrSizeTooBig
	}
	f, err := b.Reserve(uint32(len(p)))
	if err != nil {
		return err
	}
	copy(f.Bytes(), p)
	f.Commit()
	return nil
}

// Value is a frame taken from the buffer that has not been released yet.
type Value struct {
	b        *Buffer
	pos      uint64
	hdr      uint32
	buf      []byte
	released bool
}

// Bytes returns the frame payload. It must not be used after Release.
func (v *Value) Bytes() []byte { return v.buf }

// Release gives the frame space back to producers. Release is idempotent.
func (v *Value) Release() {
	if v.released {
		return
	}
	v.released = true
	v.b.slot(v.pos).Store(v.hdr &^ flagDone)
	v.b.reclaim()
}

// GetValue returns the oldest readable frame.
func (b *Buffer) GetValue() (*Value, error) {
	for {
		r := b.read.Load()
		if r == b.write.Load() {
			return nil, ErrEmpty
		}
		h := b.slot(r).Load()
		if !b.read.CompareAndSwap(r, r+frameLen(h)) {
			continue
		}

		if h&flagPad != 0 {
			b.slot(r).Store(h &^ flagDone)
			b.reclaim()
			continue
		}

		i := r%b.size + headerBytes
		n := uint64(h & sizeMask)
		return &Value{b: b, pos: r, hdr: h, buf: b.data[i : i+n]}, nil
	}
}

// Pop returns a copy of the oldest readable frame and releases it.
func (b *Buffer) Pop() ([]byte, error) {
	v, err := b.GetValue()
	if err != nil {
		return nil, err
	}
	out := append([]byte(nil), v.Bytes()...)
	v.Release()
	return out, nil
}

// declare advances write past the run of committed frames that follows it.
func (b *Buffer) declare() {
	for {
		w := b.write.Load()
		if w == b.reserve.Load() {
			return
		}
		h := b.slot(w).Load()
		if h&flagDone == 0 {
			return
		}
		b.write.CompareAndSwap(w, w+frameLen(h))
	}
}

// reclaim advances release past the run of released frames that follows it.
func (b *Buffer) reclaim() {
	for {
		rel := b.release.Load()
		if rel == b.read.Load() {
			return
		}
		h := b.slot(rel).Load()
		if h&flagDone != 0 {
			return
		}
		b.release.CompareAndSwap(rel, rel+frameLen(h))
	}
}

func (b *Buffer) slot(pos uint64) *atomic.Uint32 {
	return &b.hdr[(pos%b.size)/frameAlign]
}

func frameLen(h uint32) uint64 {
	if h&flagPad != 0 {
		return uint64(h & sizeMask)
	}
	return alignUp(headerBytes + uint64(h&sizeMask))
}

func alignUp(n uint64) uint64 {
	return (n + frameAlign - 1) &^ (frameAlign - 1)
}
