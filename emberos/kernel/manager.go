package kernel

import (
	"context"
	"fmt"
	"sync"

	"ember/emberos/arch"
	"ember/emberos/debug"
	"ember/emberos/proto"
)

// TaskManager owns the task table. The pid of a task is its index.
//
// mu guards the table and every task's state. It is never held across a
// context switch.
type TaskManager struct {
	k   *Kernel
	max int

	mu       sync.Mutex
	tasks    []*TaskContext
	current  int
	started  bool
	halted   bool
	discards []arch.Context
}

func newTaskManager(k *Kernel, cfg Config) *TaskManager {
	return &TaskManager{k: k, max: cfg.MaxTasks}
}

// Current returns the pid of the running task.
func (tm *TaskManager) Current() int {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return tm.current
}

// Started reports whether Start has handed the CPU to task 0.
func (tm *TaskManager) Started() bool {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return tm.started
}

// State returns the state of pid.
func (tm *TaskManager) State(pid int) (TaskState, bool) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	t := tm.task(pid)
	if t == nil {
		return 0, false
	}
	return t.state, true
}

// Task returns the context at pid.
func (tm *TaskManager) Task(pid int) (*TaskContext, error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	t := tm.task(pid)
	if t == nil {
		return nil, fmt.Errorf("%w: pid %d", ErrInvalidTaskReference, pid)
	}
	return t, nil
}

func (tm *TaskManager) task(pid int) *TaskContext {
	if pid < 0 || pid >= len(tm.tasks) {
		return nil
	}
	return tm.tasks[pid]
}

func (tm *TaskManager) currentTask() *TaskContext {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return tm.tasks[tm.current]
}

// AddTask registers t and returns its pid. Dead slots are reused before the
// table grows, up to the task limit.
func (tm *TaskManager) AddTask(t *TaskContext) (int, error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	pid := -1
	for i, old := range tm.tasks {
		if old.state == Dead && (i != tm.current || !tm.started) {
			pid = i
			break
		}
	}
	if pid < 0 {
		if len(tm.tasks) >= tm.max {
			return -1, ErrTaskLimitReached
		}
		pid = len(tm.tasks)
		tm.tasks = append(tm.tasks, nil)
	}

	t.pid = pid
	tm.tasks[pid] = t
	if p := tm.task(t.ppid); p != nil {
		p.children[pid] = childReturn{}
	}
	return pid, nil
}

// Start hands the CPU to task 0 and blocks until the scheduler halts.
// Contexts that never got to run again are torn down before it returns.
func (tm *TaskManager) Start(ctx context.Context) error {
	k := tm.k
	tm.mu.Lock()
	if tm.started {
		tm.mu.Unlock()
		return ErrAlreadyStarted
	}
	if len(tm.tasks) == 0 || tm.tasks[0].state != NotStarted {
		tm.mu.Unlock()
		return fmt.Errorf("%w: no runnable task 0", ErrInvalidTaskReference)
	}
	tm.started = true
	tm.current = 0
	first := tm.tasks[0]
	first.state = Running
	tm.mu.Unlock()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			k.stop(context.Cause(ctx))
		case <-done:
		}
	}()

	debug.DPrintf(debug.SCHED, "start: pid 0 %q", first.name)
	k.sw.SwitchFirst(first.ctx)
	<-k.halted

	tm.mu.Lock()
	tm.halted = true
	var leftover []arch.Context
	for _, t := range tm.tasks {
		if t.ctx != nil {
			leftover = append(leftover, t.ctx)
			t.ctx = nil
		}
	}
	tm.mu.Unlock()
	k.discard(leftover)
	return k.haltErr
}

// SwitchTask drains the current task's submission buffer, then transfers the
// CPU to the next runnable task in round-robin order. It does nothing before
// Start. A finished task calling it never returns.
func (tm *TaskManager) SwitchTask() {
	k := tm.k
	tm.mu.Lock()
	if !tm.started || tm.halted {
		tm.mu.Unlock()
		return
	}
	cur := tm.current
	from := tm.tasks[cur]
	done := from.finished
	tm.mu.Unlock()

	if k.stopping.Load() {
		tm.stopAll(k.stopErr)
		return
	}

	if !done {
		k.handleAsyncSyscalls(from)
	}

	tm.mu.Lock()
	for _, t := range tm.tasks {
		tm.updateZombie(t)
	}
	leaving := from.finished

	next, ok := tm.nextRunnable(cur)
	if !ok {
		err := tm.idleError()
		tm.halted = true
		discards := tm.takeDiscards()
		tm.mu.Unlock()
		k.discard(discards)
		k.halt(err)
		k.sw.Exit(nil)
		return
	}
	if next == cur {
		discards := tm.takeDiscards()
		tm.mu.Unlock()
		k.discard(discards)
		return
	}

	a, b, err := tm.getTwoTasks(cur, next)
	if err != nil {
		tm.mu.Unlock()
		k.fatal(cur, err)
		return
	}
	tm.current = next
	b.state = Running
	fromCtx, toCtx := a.ctx, b.ctx
	if leaving {
		a.ctx = nil
	}
	discards := tm.takeDiscards()
	tm.mu.Unlock()
	k.discard(discards)

	debug.DPrintf(debug.SCHED, "switch %d -> %d", cur, next)
	if leaving {
		k.sw.Exit(toCtx)
		return
	}
	k.sw.Switch(fromCtx, toCtx)
}

func (tm *TaskManager) stopAll(err error) {
	tm.mu.Lock()
	tm.halted = true
	tm.mu.Unlock()
	tm.k.halt(err)
	tm.k.sw.Exit(nil)
}

// nextRunnable walks one full lap from cur and returns the first task that
// is Running or NotStarted. cur itself is considered last.
func (tm *TaskManager) nextRunnable(cur int) (int, bool) {
	n := len(tm.tasks)
	for i := 1; i <= n; i++ {
		idx := (cur + i) % n
		switch tm.tasks[idx].state {
		case Running, NotStarted:
			return idx, true
		}
	}
	return 0, false
}

// idleError is the halt reason when nothing is runnable: nil if every task
// finished, ErrDeadlock if some are suspended forever.
func (tm *TaskManager) idleError() error {
	for _, t := range tm.tasks {
		if !t.finished {
			return fmt.Errorf("%w: pid %d is %v", ErrDeadlock, t.pid, t.state)
		}
	}
	return nil
}

// getTwoTasks returns the departing and the incoming task of a switch.
func (tm *TaskManager) getTwoTasks(from, to int) (*TaskContext, *TaskContext, error) {
	n := len(tm.tasks)
	if n < 2 || from == to || from < 0 || to < 0 || from >= n || to >= n {
		return nil, nil, fmt.Errorf("%w: %d -> %d with %d tasks", ErrChangeTask, from, to, n)
	}
	return tm.tasks[from], tm.tasks[to], nil
}

// FinishTask ends pid with code and yields the CPU. Live children are ended
// with proto.ExitParentEnded first. Finishing a finished task only yields.
func (tm *TaskManager) FinishTask(code uint64, pid int) {
	tm.mu.Lock()
	t := tm.task(pid)
	drain := tm.started && !tm.halted && t != nil && pid == tm.current && !t.finished && t.state != Dead
	tm.mu.Unlock()
	// The exiting task's queued requests run while its fd table is still
	// live, so anything they open is closed by bury.
	if drain {
		tm.k.handleAsyncSyscalls(t)
	}

	tm.mu.Lock()
	tm.finishLocked(code, pid)
	discards := tm.takeDiscards()
	tm.mu.Unlock()
	tm.k.discard(discards)
	tm.SwitchTask()
}

// kill ends pid without yielding.
func (tm *TaskManager) kill(code uint64, pid int) bool {
	tm.mu.Lock()
	ok := tm.finishLocked(code, pid)
	discards := tm.takeDiscards()
	tm.mu.Unlock()
	tm.k.discard(discards)
	return ok
}

func (tm *TaskManager) finishLocked(code uint64, pid int) bool {
	t := tm.task(pid)
	if t == nil || t.finished || t.state == Dead {
		return false
	}
	t.finished = true
	t.exitCode = code
	debug.DPrintf(debug.TASK, "pid %d %q finished with %#x", pid, t.name, code)

	for _, c := range tm.tasks {
		if c == t || c.ppid != pid || c.state == Dead {
			continue
		}
		if c.finished {
			tm.bury(c)
			continue
		}
		tm.finishLocked(proto.ExitParentEnded, c.pid)
	}

	if tm.parentAlive(t) {
		tm.tasks[t.ppid].children[pid] = childReturn{code: code, done: true}
	}
	tm.updateZombie(t)
	return true
}

// updateZombie settles a finished task: it stays a Zombie while it holds
// pipe data for a live parent and is reaped otherwise.
func (tm *TaskManager) updateZombie(t *TaskContext) {
	if !t.finished || t.state == Dead {
		return
	}
	if len(t.pipe) > 0 && tm.parentAlive(t) {
		if t.state != Zombie {
			debug.DPrintf(debug.TASK, "pid %d zombie with %d pipe bytes", t.pid, t.pipeLen())
			t.state = Zombie
		}
	} else {
		tm.bury(t)
	}
	if t.pid != tm.current && t.ctx != nil {
		tm.discards = append(tm.discards, t.ctx)
		t.ctx = nil
	}
}

func (tm *TaskManager) bury(t *TaskContext) {
	t.state = Dead
	for fd, of := range t.files {
		_ = tm.k.fs.Close(of)
		delete(t.files, fd)
	}
	clear(t.asyncReturns)
	t.pipe = nil
	t.overflow = nil
	tm.k.freeStack(t)
	if t.pid != tm.current && t.ctx != nil {
		tm.discards = append(tm.discards, t.ctx)
		t.ctx = nil
	}
}

func (tm *TaskManager) parentAlive(t *TaskContext) bool {
	p := tm.task(t.ppid)
	return p != nil && !p.finished && p.state != Dead
}

func (tm *TaskManager) takeDiscards() []arch.Context {
	d := tm.discards
	tm.discards = nil
	return d
}

func (k *Kernel) discard(cs []arch.Context) {
	for _, c := range cs {
		k.sw.Discard(c)
	}
}
