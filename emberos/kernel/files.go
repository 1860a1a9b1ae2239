package kernel

import (
	"errors"
	"unicode/utf8"

	"ember/emberos/debug"
	"ember/emberos/proto"
	"ember/emberos/vfs"
)

// File descriptor operations shared by the sync syscalls and the async
// dispatcher. Each returns a result word: a value, or proto.ErrorFlag plus a
// vfs.FileError ordinal.

func fileErrorWord(e vfs.FileError) uint64 { return proto.ErrorWord(uint64(e)) }

func errorWord(err error) uint64 {
	if err == nil {
		return 0
	}
	var fe vfs.FileError
	if errors.As(err, &fe) {
		return fileErrorWord(fe)
	}
	return proto.ErrorWord(proto.CodeQueueFull)
}

func (k *Kernel) openFile(t *TaskContext, name string, write bool) uint64 {
	of, err := k.fs.Open(name, write)
	if err != nil {
		return errorWord(err)
	}
	k.tm.mu.Lock()
	fd := t.nextFD
	t.nextFD++
	t.files[fd] = of
	k.tm.mu.Unlock()
	debug.DPrintf(debug.VFS, "pid %d: open %q write=%v -> fd %d", t.pid, name, write, fd)
	return fd
}

func (k *Kernel) lookupFile(t *TaskContext, fd uint64) (*vfs.OpenedFile, bool) {
	k.tm.mu.Lock()
	defer k.tm.mu.Unlock()
	of, ok := t.files[fd]
	return of, ok
}

// readFile reads up to n bytes. Reads from stdin and the pipe never block:
// no data is a zero-length result.
func (k *Kernel) readFile(t *TaskContext, fd uint64, n int) ([]byte, uint64) {
	switch fd {
	case proto.FDStdin:
		buf := make([]byte, n)
		m := k.console.TryRead(buf)
		return buf[:m], uint64(m)
	case proto.FDPipeIn:
		data := k.readChildPipes(t, n)
		return data, uint64(len(data))
	case proto.FDStdout, proto.FDPipeOut:
		return nil, fileErrorWord(vfs.CannotReadWriteOnlyFile)
	}
	of, ok := k.lookupFile(t, fd)
	if !ok {
		return nil, fileErrorWord(vfs.ReadOnClosedFile)
	}
	data, err := k.fs.Read(of, n)
	if err != nil {
		return nil, errorWord(err)
	}
	return data, uint64(len(data))
}

func (k *Kernel) writeFile(t *TaskContext, fd uint64, data []byte) uint64 {
	switch fd {
	case proto.FDStdout:
		n, err := k.console.Write(data)
		if err != nil {
			debug.DPrintf(debug.CONSOLE, "pid %d: console write: %v", t.pid, err)
		}
		return uint64(n)
	case proto.FDPipeOut:
		chunk := append([]byte(nil), data...)
		k.tm.mu.Lock()
		if len(chunk) > 0 {
			t.pipe = append(t.pipe, chunk)
		}
		k.tm.mu.Unlock()
		return uint64(len(chunk))
	case proto.FDStdin, proto.FDPipeIn:
		return fileErrorWord(vfs.ModifyingWithoutWritePermission)
	}
	of, ok := k.lookupFile(t, fd)
	if !ok {
		return fileErrorWord(vfs.ReadOnClosedFile)
	}
	if err := k.fs.Write(of, data); err != nil {
		return errorWord(err)
	}
	return uint64(len(data))
}

// print writes UTF-8 text to the console.
func (k *Kernel) print(t *TaskContext, text []byte) uint64 {
	if !utf8.Valid(text) {
		return proto.ErrorWord(proto.CodeBadText)
	}
	return k.writeFile(t, proto.FDStdout, text)
}

func (k *Kernel) seekFile(t *TaskContext, fd uint64, whence vfs.Whence, off int64) uint64 {
	if proto.IsSpecialFD(fd) {
		return fileErrorWord(vfs.CannotSeekSpecialFile)
	}
	of, ok := k.lookupFile(t, fd)
	if !ok {
		return fileErrorWord(vfs.ReadOnClosedFile)
	}
	pos, err := k.fs.Seek(of, whence, off)
	if err != nil {
		return errorWord(err)
	}
	return uint64(pos)
}

func (k *Kernel) closeFile(t *TaskContext, fd uint64) uint64 {
	if proto.IsSpecialFD(fd) {
		return fileErrorWord(vfs.CannotCloseSpecialFile)
	}
	k.tm.mu.Lock()
	of, ok := t.files[fd]
	delete(t.files, fd)
	for id, ar := range t.asyncReturns {
		if ar.word == fd {
			delete(t.asyncReturns, id)
		}
	}
	k.tm.mu.Unlock()
	if !ok {
		return fileErrorWord(vfs.AttemptToCloseClosedFile)
	}
	debug.DPrintf(debug.VFS, "pid %d: close fd %d", t.pid, fd)
	return errorWord(k.fs.Close(of))
}

// readChildPipes reads from the first child, by ascending pid, with pipe
// data pending.
func (k *Kernel) readChildPipes(t *TaskContext, n int) []byte {
	k.tm.mu.Lock()
	defer k.tm.mu.Unlock()
	for _, c := range k.tm.tasks {
		if c == t || c.ppid != t.pid || c.state == Dead || len(c.pipe) == 0 {
			continue
		}
		return c.drainPipe(n)
	}
	return nil
}

// readPipe reads from one child's pipe. pid must be a child of t.
func (k *Kernel) readPipe(t *TaskContext, pid int, n int) ([]byte, uint64) {
	k.tm.mu.Lock()
	defer k.tm.mu.Unlock()
	if _, ok := t.children[pid]; !ok {
		return nil, proto.NoTask
	}
	c := k.tm.task(pid)
	if c == nil || c.ppid != t.pid || c.state == Dead {
		return nil, 0
	}
	data := c.drainPipe(n)
	return data, uint64(len(data))
}
