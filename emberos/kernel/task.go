package kernel

import (
	"fmt"

	"ember/emberos/arch"
	"ember/emberos/debug"
	"ember/emberos/mem"
	"ember/emberos/proto"
	"ember/emberos/ringbuf"
	"ember/emberos/trap"
	"ember/emberos/vfs"
)

// TaskState is the scheduling state of a task.
type TaskState uint8

const (
	NotStarted TaskState = iota
	Running
	Suspended
	Dead
	Zombie
)

func (s TaskState) String() string {
	switch s {
	case NotStarted:
		return "not started"
	case Running:
		return "running"
	case Suspended:
		return "suspended"
	case Dead:
		return "dead"
	case Zombie:
		return "zombie"
	default:
		return "unknown"
	}
}

const noParent = -1

type childReturn struct {
	code uint64
	done bool
}

// asyncReturn is the provisional result of an async open, kept so that later
// requests can name the file by the open's correlation id.
type asyncReturn struct {
	kind proto.AsyncKind
	word uint64
}

// TaskContext is one schedulable unit of execution.
type TaskContext struct {
	pid      int
	name     string
	state    TaskState
	isKernel bool
	finished bool
	exitCode uint64

	ctx       arch.Context
	stack     mem.Block
	haveStack bool
	gate      *gate

	sq *ringbuf.Buffer
	cq *ringbuf.Buffer

	files        map[uint64]*vfs.OpenedFile
	nextFD       uint64
	asyncReturns map[uint64]asyncReturn
	overflow     []proto.Result

	pipe     [][]byte
	ppid     int
	children map[int]childReturn
}

// PID returns the task's index in the task table.
func (t *TaskContext) PID() int { return t.pid }

// Name returns the name the task was spawned with.
func (t *TaskContext) Name() string { return t.name }

// IsKernel reports whether the task runs at EL1.
func (t *TaskContext) IsKernel() bool { return t.isKernel }

// Rings returns the task's submission and completion buffers.
func (t *TaskContext) Rings() (sq, cq *ringbuf.Buffer) { return t.sq, t.cq }

// NewTaskContext allocates a stack and builds a context whose first resume
// runs entry through the task trampoline.
func (k *Kernel) NewTaskContext(entry trap.Entry, isKernel bool) (*TaskContext, error) {
	stack, err := k.stacks.Alloc()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStackAllocationFail, err)
	}
	t := &TaskContext{
		pid:          -1,
		state:        NotStarted,
		isKernel:     isKernel,
		stack:        stack,
		haveStack:    true,
		sq:           ringbuf.New(k.cfg.RingSize),
		cq:           ringbuf.New(k.cfg.RingSize),
		files:        make(map[uint64]*vfs.OpenedFile),
		nextFD:       proto.FirstFileFD,
		asyncReturns: make(map[uint64]asyncReturn),
		ppid:         noParent,
		children:     make(map[int]childReturn),
	}
	t.gate = &gate{k: k, t: t, level: arch.EL1}
	t.ctx = k.sw.NewContext(stack, func() { k.trampoline(t, entry) })
	return t, nil
}

// trampoline is the first code a task runs. User tasks drop to EL0 before
// entering; the entry's return value becomes the exit code.
func (k *Kernel) trampoline(t *TaskContext, entry trap.Entry) {
	if !t.isKernel {
		t.gate.level = arch.EL0
	}
	debug.DPrintf(debug.TASK, "pid %d %q enters at %v", t.pid, t.name, t.gate.level)
	code := k.run(t, entry)
	k.tm.FinishTask(code, t.pid)
}

func (k *Kernel) run(t *TaskContext, entry trap.Entry) (code uint64) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		code = proto.ExitFault
		debug.DPrintf(debug.TASK, "pid %d %q faulted: %v", t.pid, t.name, r)
		if t.isKernel {
			k.fatal(t.pid, r)
		}
	}()
	return entry(t.gate)
}

func (k *Kernel) freeStack(t *TaskContext) {
	if !t.haveStack {
		return
	}
	t.haveStack = false
	if err := k.stacks.Free(t.stack); err != nil {
		debug.DPrintf(debug.TASK, "pid %d: free stack: %v", t.pid, err)
	}
}

// pipeLen returns the number of unread pipe bytes.
func (t *TaskContext) pipeLen() int {
	n := 0
	for _, c := range t.pipe {
		n += len(c)
	}
	return n
}

// drainPipe removes up to n bytes from the front of the pipe queue.
func (t *TaskContext) drainPipe(n int) []byte {
	var out []byte
	for len(t.pipe) > 0 && len(out) < n {
		c := t.pipe[0]
		take := min(n-len(out), len(c))
		out = append(out, c[:take]...)
		if take == len(c) {
			t.pipe = t.pipe[1:]
		} else {
			t.pipe[0] = c[take:]
		}
	}
	return out
}
