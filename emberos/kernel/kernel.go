// Package kernel is the EmberOS task manager: task contexts, the round-robin
// scheduler, async syscall dispatch and the trap handler tying them to the
// exception vector.
//
// All scheduling state hangs off one explicitly constructed Kernel. Exactly
// one task executes at a time; kernel code runs on behalf of the task that
// trapped into it.
package kernel

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"ember/emberos/arch"
	"ember/emberos/debug"
	"ember/emberos/mem"
	"ember/emberos/proto"
	"ember/emberos/trap"
	"ember/emberos/vfs"
)

// Config sizes the kernel. Zero fields take the DefaultConfig value.
type Config struct {
	// TimeQuantum is the number of timer ticks between forced switches.
	TimeQuantum uint32
	// MaxTasks is the hard ceiling of the task table.
	MaxTasks   int
	StackSize  int
	StackSlots int
	// RingSize is the capacity of each submission and completion buffer.
	RingSize int
}

// DefaultConfig returns the boot defaults.
func DefaultConfig() Config {
	return Config{
		TimeQuantum: 4,
		MaxTasks:    32,
		StackSize:   16 << 10,
		StackSlots:  32,
		RingSize:    4 << 10,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.TimeQuantum == 0 {
		c.TimeQuantum = d.TimeQuantum
	}
	if c.MaxTasks <= 0 {
		c.MaxTasks = d.MaxTasks
	}
	if c.StackSize <= 0 {
		c.StackSize = d.StackSize
	}
	if c.StackSlots <= 0 {
		c.StackSlots = c.MaxTasks
	}
	if c.RingSize <= 0 {
		c.RingSize = d.RingSize
	}
	return c
}

// Console is the byte-level console behind stdout and stdin.
type Console interface {
	Write(p []byte) (int, error)
	// TryRead copies buffered input into p without blocking.
	TryRead(p []byte) int
}

type nopConsole struct{}

func (nopConsole) Write(p []byte) (int, error) { return len(p), nil }
func (nopConsole) TryRead([]byte) int          { return 0 }

// Deps are the collaborators injected at boot. Switcher is required.
type Deps struct {
	Switcher arch.Switcher
	FS       *vfs.FS
	Console  Console
	Symbols  *trap.Symbols
}

// Kernel owns the task manager and implements trap.Handler.
type Kernel struct {
	cfg     Config
	sw      arch.Switcher
	fs      *vfs.FS
	console Console
	syms    *trap.Symbols
	stacks  *mem.Arena
	vec     *trap.Vector
	tm      *TaskManager

	ticks    atomic.Uint64
	stopping atomic.Bool
	stopErr  error

	halted   chan struct{}
	haltOnce sync.Once
	haltErr  error
}

// New builds a kernel. It panics if deps.Switcher is nil.
func New(cfg Config, deps Deps) *Kernel {
	if deps.Switcher == nil {
		panic("kernel: nil switcher")
	}
	cfg = cfg.withDefaults()
	k := &Kernel{
		cfg:     cfg,
		sw:      deps.Switcher,
		fs:      deps.FS,
		console: deps.Console,
		syms:    deps.Symbols,
		stacks:  mem.NewArena(cfg.StackSlots, cfg.StackSize),
		halted:  make(chan struct{}),
	}
	if k.fs == nil {
		k.fs = vfs.New()
	}
	if k.console == nil {
		k.console = nopConsole{}
	}
	if k.syms == nil {
		k.syms = trap.NewSymbols()
	}
	k.vec = trap.NewVector(k)
	k.tm = newTaskManager(k, cfg)
	return k
}

// Config returns the effective configuration.
func (k *Kernel) Config() Config { return k.cfg }

// Vector returns the exception vector tasks trap through.
func (k *Kernel) Vector() *trap.Vector { return k.vec }

// FS returns the file system backing fds >= proto.FirstFileFD.
func (k *Kernel) FS() *vfs.FS { return k.fs }

// Symbols returns the entry point link table.
func (k *Kernel) Symbols() *trap.Symbols { return k.syms }

// Manager returns the task manager.
func (k *Kernel) Manager() *TaskManager { return k.tm }

// Stacks returns the stack arena.
func (k *Kernel) Stacks() *mem.Arena { return k.stacks }

// Ticks returns the number of timer ticks delivered so far.
func (k *Kernel) Ticks() uint64 { return k.ticks.Load() }

// Halted is closed once the scheduler has stopped.
func (k *Kernel) Halted() <-chan struct{} { return k.halted }

// Spawn creates a task without a parent. It is used at boot before Start.
func (k *Kernel) Spawn(name string, entry trap.Entry, isKernel bool) (int, error) {
	k.syms.Link(name, entry)
	return k.spawn(name, entry, isKernel, noParent)
}

func (k *Kernel) spawn(name string, entry trap.Entry, isKernel bool, ppid int) (int, error) {
	t, err := k.NewTaskContext(entry, isKernel)
	if err != nil {
		return -1, err
	}
	t.name = name
	t.ppid = ppid
	pid, err := k.tm.AddTask(t)
	if err != nil {
		k.sw.Discard(t.ctx)
		k.freeStack(t)
		return -1, err
	}
	debug.DPrintf(debug.TASK, "spawn pid %d %q kernel=%v parent=%d", pid, name, isKernel, ppid)
	return pid, nil
}

// Start runs the scheduler until every task has finished, the kernel halts
// on an error, or ctx is done. A canceled ctx takes effect at the next trap.
func (k *Kernel) Start(ctx context.Context) error {
	return k.tm.Start(ctx)
}

func (k *Kernel) stop(err error) {
	k.stopErr = err
	k.stopping.Store(true)
	k.vec.Raise()
}

func (k *Kernel) halt(err error) {
	k.haltOnce.Do(func() {
		k.haltErr = err
		if err != nil {
			debug.DPrintf(debug.ALWAYS, "halt: %v", err)
		} else {
			debug.DPrintf(debug.SCHED, "halt: all tasks finished")
		}
		close(k.halted)
	})
}

// fatal enters panic mode and abandons the calling task. It does not return.
func (k *Kernel) fatal(pid int, v any) {
	debug.DPrintf(debug.ALWAYS, "kernel panic in pid %d: %v", pid, v)
	triggerPanic(PanicInfo{PID: pid, Value: v})
	err, ok := v.(error)
	if !ok {
		err = fmt.Errorf("kernel panic: %v", v)
	}
	k.tm.mu.Lock()
	k.tm.halted = true
	k.tm.mu.Unlock()
	k.halt(err)
	k.sw.Exit(nil)
}

// NewTask handles SVCNewTask: x0 holds the entry address, x1 the spawn flags.
func (k *Kernel) NewTask(f *trap.Frame) {
	entry, name, ok := k.syms.Lookup(f.X[0])
	k.syms.Release(f.X[0])
	if !ok {
		debug.DPrintf(debug.TRAP, "new task: no entry at %#x", f.X[0])
		f.Ret(proto.NoTask)
		return
	}
	isKernel := f.X[1]&proto.SpawnKernel != 0 && f.EL() == arch.EL1
	pid, err := k.spawn(name, entry, isKernel, k.tm.Current())
	if err != nil {
		debug.DPrintf(debug.TASK, "new task %q: %v", name, err)
		f.Ret(proto.NoTask)
		return
	}
	f.Ret(uint64(pid))
}

// Timer accounts ticks and switches task once per time quantum.
func (k *Kernel) Timer(ticks uint32) {
	n := uint64(ticks)
	after := k.ticks.Add(n)
	before := after - n
	q := uint64(k.cfg.TimeQuantum)
	if k.stopping.Load() || after/q != before/q {
		k.tm.SwitchTask()
	}
}

// Fault handles an exception the current task cannot recover from. A fault
// taken at EL1 is a kernel panic.
func (k *Kernel) Fault(kind trap.Kind, f *trap.Frame) {
	pid := k.tm.Current()
	debug.DPrintf(debug.TRAP, "pid %d: %v exception, class %v esr %#x far %#x", pid, kind, f.Class(), f.ESR, f.FAR)
	if f.EL() == arch.EL1 {
		k.fatal(pid, fmt.Errorf("%v exception at EL1: %v", kind, f.Class()))
		return
	}
	k.tm.FinishTask(proto.ExitFault, pid)
}
