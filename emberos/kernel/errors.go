package kernel

import "errors"

// Task errors. All of them fail the operation that raised them; ErrChangeTask
// during a context switch halts the kernel.
var (
	ErrTaskLimitReached     = errors.New("kernel: task limit reached")
	ErrStackAllocationFail  = errors.New("kernel: stack allocation failed")
	ErrInvalidTaskReference = errors.New("kernel: invalid task reference")
	ErrChangeTask           = errors.New("kernel: cannot change task")

	ErrAlreadyStarted = errors.New("kernel: scheduler already started")
	ErrDeadlock       = errors.New("kernel: no runnable task left")
)
