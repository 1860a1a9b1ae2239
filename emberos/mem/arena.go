// Package mem provides the fixed-slot arena task stacks are carved from.
package mem

import (
	"errors"
	"fmt"
	"sync"
)

var (
	ErrExhausted = errors.New("mem: arena exhausted")
	ErrBadBlock  = errors.New("mem: block not allocated from this arena")
)

const stackAlign = 16

// Block is one slot of an arena. Base and Top are arena-relative addresses.
type Block struct {
	Index int
	Base  uintptr
	Size  uintptr
}

// Top returns the 16-byte aligned initial stack pointer for the block.
func (b Block) Top() uintptr {
	return (b.Base + b.Size) &^ (stackAlign - 1)
}

// Arena hands out equally sized slots. Free slots are chained by index so
// allocation and release are O(1) without pointer chasing.
type Arena struct {
	mu       sync.Mutex
	slotSize uintptr
	mem      []byte
	next     []int
	used     []bool
	free     int
	inUse    int
}

// NewArena returns an arena of slots blocks of slotSize bytes each.
func NewArena(slots int, slotSize int) *Arena {
	if slots < 0 {
		slots = 0
	}
	if slotSize < stackAlign {
		slotSize = stackAlign
	}
	slotSize = (slotSize + stackAlign - 1) &^ (stackAlign - 1)

	a := &Arena{
		slotSize: uintptr(slotSize),
		mem:      make([]byte, slots*slotSize),
		next:     make([]int, slots),
		used:     make([]bool, slots),
		free:     -1,
	}
	for i := slots - 1; i >= 0; i-- {
		a.next[i] = a.free
		a.free = i
	}
	return a
}

// Alloc takes the lowest recently freed slot.
func (a *Arena) Alloc() (Block, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.free < 0 {
		return Block{}, ErrExhausted
	}
	i := a.free
	a.free = a.next[i]
	a.next[i] = -1
	a.used[i] = true
	a.inUse++

	clear(a.bytesLocked(i))
	return Block{Index: i, Base: uintptr(i) * a.slotSize, Size: a.slotSize}, nil
}

// Free returns a block to the arena.
func (a *Arena) Free(b Block) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if b.Index < 0 || b.Index >= len(a.used) || !a.used[b.Index] || b.Size != a.slotSize {
		return fmt.Errorf("free block %d: %w", b.Index, ErrBadBlock)
	}
	a.used[b.Index] = false
	a.next[b.Index] = a.free
	a.free = b.Index
	a.inUse--
	return nil
}

// Bytes returns the memory backing b.
func (a *Arena) Bytes(b Block) []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	if b.Index < 0 || b.Index >= len(a.used) {
		return nil
	}
	return a.bytesLocked(b.Index)
}

// InUse returns the number of allocated slots.
func (a *Arena) InUse() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.inUse
}

// Slots returns the arena capacity in slots.
func (a *Arena) Slots() int { return len(a.used) }

// SlotSize returns the size of every slot.
func (a *Arena) SlotSize() int { return int(a.slotSize) }

func (a *Arena) bytesLocked(i int) []byte {
	off := uintptr(i) * a.slotSize
	return a.mem[off : off+a.slotSize]
}
