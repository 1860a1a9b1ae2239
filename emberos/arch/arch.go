// Package arch isolates the raw register-context switch behind a narrow
// interface. The scheduler only ever holds opaque Context handles.
package arch

import "ember/emberos/mem"

// Level is an exception level (privilege).
type Level uint8

const (
	EL0 Level = iota // user
	EL1              // kernel
)

func (l Level) String() string {
	switch l {
	case EL0:
		return "EL0"
	case EL1:
		return "EL1"
	default:
		return "EL?"
	}
}

// SPSR mode bits for the levels above (EL0t and EL1h).
const (
	SPSRModeEL0t uint64 = 0b0000
	SPSRModeEL1h uint64 = 0b0101
)

// SPSR returns the saved program status mode for l.
func (l Level) SPSR() uint64 {
	if l == EL0 {
		return SPSRModeEL0t
	}
	return SPSRModeEL1h
}

// Context is a saved register block.
type Context interface {
	// StackTop is the initial stack pointer the context was built with.
	StackTop() uintptr
}

// Switcher is the low-level context switch primitive.
type Switcher interface {
	// NewContext builds a context whose first resume starts entry on stack.
	NewContext(stack mem.Block, entry func()) Context
	// Switch saves the caller into from and resumes to. It returns when from
	// is resumed again.
	Switch(from, to Context)
	// SwitchFirst resumes to without saving a previous context.
	SwitchFirst(to Context)
	// Exit resumes to (if not nil) and abandons the calling context. It does
	// not return.
	Exit(to Context)
	// Discard tears down a context that will never be resumed.
	Discard(c Context)
}
