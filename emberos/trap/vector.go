package trap

import (
	"sync"
	"sync/atomic"

	"ember/emberos/ringbuf"
)

// Entry is a task entry point. Its return value is the task's exit code.
type Entry func(Gate) uint64

// Gate is what a running task holds to reach the kernel.
type Gate interface {
	// SVC takes a supervisor call with the given immediate.
	SVC(imm uint16, f *Frame)
	// Trap takes any other exception described by f.ESR.
	Trap(kind Kind, f *Frame)
	// Rings returns the task's submission and completion buffers.
	Rings() (sq, cq *ringbuf.Buffer)
	// Link makes entry addressable for SVCNewTask.
	Link(name string, entry Entry) uint64
}

// Handler receives resolved exceptions.
type Handler interface {
	NewTask(f *Frame)
	Syscall(f *Frame)
	Timer(ticks uint32)
	Fault(kind Kind, f *Frame)
}

// Vector dispatches exceptions to a Handler. Interrupts raised while a task
// runs are latched and delivered on the next exception return.
type Vector struct {
	h       Handler
	pending atomic.Uint32
}

// NewVector returns a vector dispatching to h.
func NewVector(h Handler) *Vector {
	return &Vector{h: h}
}

// Raise latches a timer interrupt. It is safe to call from any goroutine.
func (v *Vector) Raise() { v.pending.Add(1) }

// Pending returns the number of latched interrupts.
func (v *Vector) Pending() uint32 { return v.pending.Load() }

// Enter handles an exception taken by the running task, then delivers any
// interrupt latched meanwhile before returning to it.
func (v *Vector) Enter(kind Kind, f *Frame) {
	v.Handle(kind, f)
	v.deliver()
}

// Handle resolves one exception.
func (v *Vector) Handle(kind Kind, f *Frame) {
	switch kind {
	case IRQ, FIQ:
		v.deliver()
	case SError:
		v.h.Fault(kind, f)
	case Sync:
		if f.Class() != ClassSVC64 {
			v.h.Fault(kind, f)
			return
		}
		switch f.Imm() {
		case SVCSyscall:
			v.h.Syscall(f)
		case SVCNewTask:
			v.h.NewTask(f)
		case SVCCheckpoint:
		default:
			v.h.Fault(kind, f)
		}
	}
}

func (v *Vector) deliver() {
	if n := v.pending.Swap(0); n > 0 {
		v.h.Timer(n)
	}
}

const (
	textBase   uint64 = 0x80000
	symbolSize uint64 = 0x100
)

// Symbols links entry points to addresses so that a create-task trap can take
// its entry from a register.
type Symbols struct {
	mu     sync.Mutex
	byAddr map[uint64]symbol
	byName map[string]uint64
	free   []uint64
	next   uint64
}

type symbol struct {
	name  string
	entry Entry
}

// NewSymbols returns an empty link table.
func NewSymbols() *Symbols {
	return &Symbols{
		byAddr: make(map[uint64]symbol),
		byName: make(map[string]uint64),
		next:   textBase,
	}
}

// Link assigns an address to entry. Named entries are linked once and stay
// linked. Anonymous ones get their own address on every call, held until
// Release.
func (s *Symbols) Link(name string, entry Entry) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if name != "" {
		if addr, ok := s.byName[name]; ok {
			return addr
		}
	}
	var addr uint64
	if n := len(s.free); name == "" && n > 0 {
		addr = s.free[n-1]
		s.free = s.free[:n-1]
	} else {
		addr = s.next
		s.next += symbolSize
	}
	s.byAddr[addr] = symbol{name: name, entry: entry}
	if name != "" {
		s.byName[name] = addr
	}
	return addr
}

// Lookup returns the entry linked at addr.
func (s *Symbols) Lookup(addr uint64) (Entry, string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sym, ok := s.byAddr[addr]
	if !ok {
		return nil, "", false
	}
	return sym.entry, sym.name, true
}

// Release unlinks the anonymous entry at addr so its address can be reused.
// Named entries are left alone.
func (s *Symbols) Release(addr uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sym, ok := s.byAddr[addr]
	if !ok || sym.name != "" {
		return
	}
	delete(s.byAddr, addr)
	s.free = append(s.free, addr)
}

// Len returns the number of linked entries.
func (s *Symbols) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byAddr)
}

// Resolve returns the address of a named entry.
func (s *Symbols) Resolve(name string) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	addr, ok := s.byName[name]
	return addr, ok
}
