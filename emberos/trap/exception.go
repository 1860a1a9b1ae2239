// Package trap is the boundary between tasks and the kernel: exception kinds,
// the saved register frame, and the vector that resolves an exception into a
// kernel entry point.
package trap

import (
	"ember/emberos/arch"
	"ember/emberos/proto"
)

// Kind is the exception vector entry that was taken.
type Kind uint8

const (
	Sync Kind = iota
	IRQ
	FIQ
	SError
)

func (k Kind) String() string {
	switch k {
	case Sync:
		return "sync"
	case IRQ:
		return "irq"
	case FIQ:
		return "fiq"
	case SError:
		return "serror"
	default:
		return "unknown"
	}
}

// Class is the ESR_EL1 exception class (bits 31:26).
type Class uint8

const (
	ClassUnknown          Class = 0b000000
	ClassSVC64            Class = 0b010101
	ClassInstrAbortLower  Class = 0b100000
	ClassInstrAbortSame   Class = 0b100001
	ClassDataAbortLower   Class = 0b100100
	ClassDataAbortSame    Class = 0b100101
	ClassIllegalExecution Class = 0b001110
)

func (c Class) String() string {
	switch c {
	case ClassUnknown:
		return "unknown"
	case ClassSVC64:
		return "svc64"
	case ClassInstrAbortLower:
		return "instruction abort (lower EL)"
	case ClassInstrAbortSame:
		return "instruction abort (same EL)"
	case ClassDataAbortLower:
		return "data abort (lower EL)"
	case ClassDataAbortSame:
		return "data abort (same EL)"
	case ClassIllegalExecution:
		return "illegal execution state"
	default:
		return "reserved"
	}
}

// SVC immediates understood by the vector.
const (
	SVCSyscall    uint16 = 0 // syscall number in x8
	SVCNewTask    uint16 = 1 // entry address in x0, pid returned in x0
	SVCCheckpoint uint16 = 2 // interrupt window only
)

const (
	esrClassShift = 26
	esrIL         = 1 << 25
	esrISSMask    = 1<<25 - 1
)

// ESR builds a syndrome value for class c with the given ISS.
func ESR(c Class, iss uint32) uint64 {
	return uint64(c)<<esrClassShift | esrIL | uint64(iss)&esrISSMask
}

// Frame is the register state saved on exception entry.
type Frame struct {
	X    [9]uint64 // x0..x8
	ESR  uint64
	SPSR uint64
	FAR  uint64

	// Buf is the user memory a pointer argument refers to (message, path,
	// read destination).
	Buf []byte
}

// Class returns the exception class of the frame.
func (f *Frame) Class() Class { return Class(f.ESR >> esrClassShift & 0x3F) }

// Imm returns the SVC immediate.
func (f *Frame) Imm() uint16 { return uint16(f.ESR & 0xFFFF) }

// EL returns the level the exception was taken from.
func (f *Frame) EL() arch.Level {
	if f.SPSR&0b1100 == 0 {
		return arch.EL0
	}
	return arch.EL1
}

// Syscall returns the syscall number in x8.
func (f *Frame) Syscall() proto.Syscall { return proto.Syscall(f.X[8]) }

// Ret stores a return value in x0.
func (f *Frame) Ret(v uint64) { f.X[0] = v }
