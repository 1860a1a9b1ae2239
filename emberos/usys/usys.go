// Package usys is the task-side syscall library: typed wrappers around the
// SVC ABI and direct access to the async submission and completion rings.
package usys

import (
	"errors"
	"fmt"

	"ember/emberos/proto"
	"ember/emberos/trap"
	"ember/emberos/vfs"
)

var (
	ErrNoTask      = errors.New("usys: no such task")
	ErrQueueFull   = errors.New("usys: submission queue full")
	ErrBadSyscall  = errors.New("usys: bad syscall")
	ErrBadText     = errors.New("usys: text is not valid UTF-8")
	ErrUnknownCode = errors.New("usys: unknown error code")
)

// WordError converts a failed result word into an error. It returns nil for
// a success word.
func WordError(w uint64) error {
	if !proto.IsError(w) {
		return nil
	}
	switch code := proto.ErrorCode(w); {
	case code <= uint64(vfs.CannotCloseSpecialFile):
		return vfs.FileError(code)
	case code == proto.CodeQueueFull:
		return ErrQueueFull
	case code == proto.CodeBadSyscall:
		return ErrBadSyscall
	case code == proto.CodeBadText:
		return ErrBadText
	default:
		return fmt.Errorf("%w: %#x", ErrUnknownCode, code)
	}
}

// Sys issues syscalls through a task's gate.
type Sys struct {
	g trap.Gate
}

// New wraps the gate a task entry point receives.
func New(g trap.Gate) *Sys { return &Sys{g: g} }

// Gate returns the underlying gate.
func (s *Sys) Gate() trap.Gate { return s.g }

func (s *Sys) call(sc proto.Syscall, buf []byte, args ...uint64) *trap.Frame {
	f := &trap.Frame{Buf: buf}
	copy(f.X[:8], args)
	f.X[8] = uint64(sc)
	s.g.SVC(trap.SVCSyscall, f)
	return f
}

func (s *Sys) word(sc proto.Syscall, buf []byte, args ...uint64) (uint64, error) {
	w := s.call(sc, buf, args...).X[0]
	if err := WordError(w); err != nil {
		return 0, err
	}
	return w, nil
}

// Print writes msg to the console.
func (s *Sys) Print(msg string) { s.call(proto.SysPrint, []byte(msg)) }

// Printf formats to the console.
func (s *Sys) Printf(format string, v ...any) { s.Print(fmt.Sprintf(format, v...)) }

// Yield gives up the rest of the time quantum.
func (s *Sys) Yield() { s.call(proto.SysYield, nil) }

// Checkpoint opens an interrupt window so a pending timer tick can preempt.
func (s *Sys) Checkpoint() { s.g.SVC(trap.SVCCheckpoint, &trap.Frame{}) }

// Exit finishes the task with code. It does not return once scheduling has
// started.
func (s *Sys) Exit(code uint64) { s.call(proto.SysFinishTask, nil, code) }

// PID returns the caller's pid.
func (s *Sys) PID() int { return int(s.call(proto.SysGetPID, nil).X[0]) }

// Open opens a VFS file and returns its descriptor.
func (s *Sys) Open(name string, write bool) (uint64, error) {
	var w uint64
	if write {
		w = 1
	}
	return s.word(proto.SysOpenFile, []byte(name), w)
}

// Read reads into p from fd. Zero bytes from stdin or the pipe means no data
// yet.
func (s *Sys) Read(fd uint64, p []byte) (int, error) {
	n, err := s.word(proto.SysReadFile, p, fd)
	return int(n), err
}

// Write writes p to fd.
func (s *Sys) Write(fd uint64, p []byte) (int, error) {
	n, err := s.word(proto.SysWriteFile, p, fd)
	return int(n), err
}

// Seek moves the cursor of fd and returns the new offset.
func (s *Sys) Seek(fd uint64, off int64, whence vfs.Whence) (int, error) {
	n, err := s.word(proto.SysSeekFile, nil, fd, uint64(whence), uint64(off))
	return int(n), err
}

// Close closes fd.
func (s *Sys) Close(fd uint64) error {
	_, err := s.word(proto.SysCloseFile, nil, fd)
	return err
}

// Create creates an empty VFS file.
func (s *Sys) Create(name string) error {
	_, err := s.word(proto.SysCreateFile, []byte(name))
	return err
}

// Delete removes a VFS file.
func (s *Sys) Delete(name string) error {
	_, err := s.word(proto.SysDeleteFile, []byte(name))
	return err
}

// Spawn starts entry as a child task and returns its pid. A non-empty name
// links the entry once; anonymous entries get a new address each time.
func (s *Sys) Spawn(name string, entry trap.Entry) (int, error) {
	return s.spawn(name, entry, 0)
}

// SpawnKernel is Spawn for an EL1 child. Callers at EL0 get an EL0 child.
func (s *Sys) SpawnKernel(name string, entry trap.Entry) (int, error) {
	return s.spawn(name, entry, proto.SpawnKernel)
}

func (s *Sys) spawn(name string, entry trap.Entry, flags uint64) (int, error) {
	f := &trap.Frame{}
	f.X[0] = s.g.Link(name, entry)
	f.X[1] = flags
	s.g.SVC(trap.SVCNewTask, f)
	if f.X[0] == proto.NoTask {
		return -1, ErrNoTask
	}
	return int(f.X[0]), nil
}

// ChildReturn polls the exit code of a child.
func (s *Sys) ChildReturn(pid int) (uint64, proto.ChildStatus) {
	f := s.call(proto.SysChildReturn, nil, uint64(pid))
	return f.X[0], proto.ChildStatus(f.X[1])
}

// Wait yields until child pid has exited and returns its exit code.
func (s *Sys) Wait(pid int) (uint64, error) {
	for {
		code, st := s.ChildReturn(pid)
		switch st {
		case proto.ChildExited:
			return code, nil
		case proto.ChildUnknown:
			return 0, ErrNoTask
		}
		s.Yield()
	}
}

// ReadPipe reads what child pid wrote to its pipe-out.
func (s *Sys) ReadPipe(pid int, p []byte) (int, error) {
	w := s.call(proto.SysReadPipe, p, uint64(pid)).X[0]
	if w == proto.NoTask {
		return 0, ErrNoTask
	}
	return int(w), nil
}

func (s *Sys) control(sc proto.Syscall, pid int) error {
	if s.call(sc, nil, uint64(pid)).X[0] == proto.NoTask {
		return ErrNoTask
	}
	return nil
}

// Suspend stops pid from being scheduled.
func (s *Sys) Suspend(pid int) error { return s.control(proto.SysSuspend, pid) }

// Resume makes a suspended pid runnable again.
func (s *Sys) Resume(pid int) error { return s.control(proto.SysResume, pid) }

// Kill finishes pid with proto.ExitKilled.
func (s *Sys) Kill(pid int) error { return s.control(proto.SysKill, pid) }

// AsyncTrap queues an async request through the trap path instead of
// writing the submission ring directly.
func (s *Sys) AsyncTrap(req proto.Request) error {
	f := &trap.Frame{}
	f.X[0] = req.ID
	f.X[1] = uint64(req.File.Kind)
	f.X[2] = req.File.Value
	var sc proto.Syscall
	switch req.Kind {
	case proto.AsyncPrint:
		sc, f.Buf = proto.SysAsyncPrint, req.Data
	case proto.AsyncOpenFile:
		sc, f.Buf = proto.SysAsyncOpenFile, []byte(req.Name)
		f.X[1] = 0
		if req.Write {
			f.X[1] = 1
		}
	case proto.AsyncReadFile:
		sc = proto.SysAsyncReadFile
		f.X[3] = uint64(req.Len)
	case proto.AsyncWriteFile:
		sc, f.Buf = proto.SysAsyncWriteFile, req.Data
	case proto.AsyncSeekFile:
		sc = proto.SysAsyncSeekFile
		f.X[3] = uint64(req.Whence)
		f.X[4] = uint64(req.Offset)
	case proto.AsyncCloseFile:
		sc = proto.SysAsyncCloseFile
	default:
		return ErrBadSyscall
	}
	f.X[8] = uint64(sc)
	s.g.SVC(trap.SVCSyscall, f)
	return WordError(f.X[0])
}
