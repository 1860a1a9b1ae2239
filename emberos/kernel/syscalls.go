package kernel

import (
	"ember/emberos/arch"
	"ember/emberos/debug"
	"ember/emberos/proto"
	"ember/emberos/trap"
	"ember/emberos/vfs"
)

// Syscall handles SVCSyscall. The syscall number is in x8, arguments in
// x0..x4 and f.Buf, and the result word goes back in x0.
func (k *Kernel) Syscall(f *trap.Frame) {
	t := k.tm.currentTask()
	sc := f.Syscall()
	debug.DPrintf(debug.TRAP, "pid %d: %v", t.pid, sc)

	if kind, ok := sc.AsyncKind(); ok {
		f.Ret(k.enqueue(t, kind, f))
		return
	}

	switch sc {
	case proto.SysStartScheduling, proto.SysYield:
		f.Ret(0)
		k.tm.SwitchTask()
	case proto.SysPrint:
		f.Ret(k.print(t, f.Buf))
	case proto.SysFinishTask:
		k.tm.FinishTask(f.X[0], t.pid)
	case proto.SysOpenFile:
		f.Ret(k.openFile(t, string(f.Buf), f.X[0] != 0))
	case proto.SysReadFile:
		data, w := k.readFile(t, f.X[0], len(f.Buf))
		copy(f.Buf, data)
		f.Ret(w)
	case proto.SysWriteFile:
		f.Ret(k.writeFile(t, f.X[0], f.Buf))
	case proto.SysSeekFile:
		f.Ret(k.seekFile(t, f.X[0], vfs.Whence(f.X[1]), int64(f.X[2])))
	case proto.SysCloseFile:
		f.Ret(k.closeFile(t, f.X[0]))
	case proto.SysCreateFile:
		f.Ret(errorWord(k.fs.Create(string(f.Buf), nil)))
	case proto.SysDeleteFile:
		f.Ret(errorWord(k.fs.Delete(string(f.Buf))))
	case proto.SysGetPID:
		f.Ret(uint64(t.pid))
	case proto.SysChildReturn:
		code, status := k.childReturn(t, int(f.X[0]))
		f.X[0], f.X[1] = code, uint64(status)
	case proto.SysReadPipe:
		data, w := k.readPipe(t, int(f.X[0]), len(f.Buf))
		copy(f.Buf, data)
		f.Ret(w)
	case proto.SysSuspend, proto.SysResume, proto.SysKill:
		k.control(t, sc, f)
	default:
		f.Ret(proto.ErrorWord(proto.CodeBadSyscall))
	}
}

func (k *Kernel) childReturn(t *TaskContext, pid int) (uint64, proto.ChildStatus) {
	k.tm.mu.Lock()
	defer k.tm.mu.Unlock()
	cr, ok := t.children[pid]
	switch {
	case !ok:
		return proto.NoTask, proto.ChildUnknown
	case !cr.done:
		return 0, proto.ChildRunning
	default:
		return cr.code, proto.ChildExited
	}
}

// control suspends, resumes or kills x0. The target must be the caller, one
// of its children, or the caller must run at EL1.
func (k *Kernel) control(t *TaskContext, sc proto.Syscall, f *trap.Frame) {
	pid := int(f.X[0])
	tm := k.tm

	tm.mu.Lock()
	c := tm.task(pid)
	allowed := c != nil && !c.finished && c.state != Dead &&
		(pid == t.pid || c.ppid == t.pid || f.EL() == arch.EL1)
	if !allowed {
		tm.mu.Unlock()
		f.Ret(proto.NoTask)
		return
	}
	switch sc {
	case proto.SysSuspend:
		if c.state == Running || c.state == NotStarted {
			c.state = Suspended
		}
	case proto.SysResume:
		if c.state == Suspended {
			c.state = Running
		}
	}
	tm.mu.Unlock()
	debug.DPrintf(debug.SCHED, "pid %d: %v pid %d", t.pid, sc, pid)

	f.Ret(0)
	if sc == proto.SysKill {
		tm.kill(proto.ExitKilled, pid)
	}
	if pid == t.pid && sc != proto.SysResume {
		tm.SwitchTask()
	}
}
