package mem

import (
	"errors"
	"testing"
)

func TestArenaExhaustAndReuse(t *testing.T) {
	a := NewArena(3, 1024)

	var blocks []Block
	for i := 0; i < 3; i++ {
		b, err := a.Alloc()
		if err != nil {
			t.Fatalf("Alloc() #%d err = %v", i, err)
		}
		if b.Index != i {
			t.Fatalf("Alloc() #%d index = %d, want %d", i, b.Index, i)
		}
		blocks = append(blocks, b)
	}
	if _, err := a.Alloc(); !errors.Is(err, ErrExhausted) {
		t.Fatalf("Alloc() on full arena err = %v, want %v", err, ErrExhausted)
	}

	if err := a.Free(blocks[1]); err != nil {
		t.Fatalf("Free() err = %v", err)
	}
	b, err := a.Alloc()
	if err != nil {
		t.Fatalf("Alloc() after free err = %v", err)
	}
	if b.Index != 1 {
		t.Fatalf("Alloc() index = %d, want reused slot 1", b.Index)
	}
	if got := a.InUse(); got != 3 {
		t.Fatalf("InUse() = %d, want 3", got)
	}
}

func TestArenaDoubleFree(t *testing.T) {
	a := NewArena(1, 64)
	b, _ := a.Alloc()
	if err := a.Free(b); err != nil {
		t.Fatalf("Free() err = %v", err)
	}
	if err := a.Free(b); !errors.Is(err, ErrBadBlock) {
		t.Fatalf("second Free() err = %v, want %v", err, ErrBadBlock)
	}
}

func TestBlockTopAligned(t *testing.T) {
	a := NewArena(2, 1000)
	a.Alloc()
	b, _ := a.Alloc()
	if b.Top()%16 != 0 {
		t.Fatalf("Top() = %#x, want 16-byte aligned", b.Top())
	}
	if b.Top() <= b.Base || b.Top() > b.Base+b.Size {
		t.Fatalf("Top() = %#x outside block [%#x, %#x]", b.Top(), b.Base, b.Base+b.Size)
	}
}

func TestAllocClearsSlot(t *testing.T) {
	a := NewArena(1, 32)
	b, _ := a.Alloc()
	a.Bytes(b)[0] = 0xAA
	_ = a.Free(b)
	b, _ = a.Alloc()
	if a.Bytes(b)[0] != 0 {
		t.Fatalf("reused slot not cleared")
	}
}
