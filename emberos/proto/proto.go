// Package proto defines the syscall ABI shared by the kernel and userspace:
// syscall numbers, the result word convention and the async request/result
// frames exchanged through a task's submission and completion buffers.
package proto

// Syscall is the syscall number carried in x8 for an SVC #0.
type Syscall uint16

const (
	SysStartScheduling Syscall = iota
	SysPrint
	SysYield
	SysFinishTask
	SysOpenFile
	SysReadFile
	SysWriteFile
	SysSeekFile
	SysCloseFile
	SysAsyncPrint
	SysAsyncOpenFile
	SysAsyncReadFile
	SysAsyncWriteFile
	SysAsyncSeekFile
	SysAsyncCloseFile
	SysCreateFile
	SysDeleteFile
	SysGetPID
	SysChildReturn
	SysReadPipe
	SysSuspend
	SysResume
	SysKill
)

func (s Syscall) String() string {
	switch s {
	case SysStartScheduling:
		return "start_scheduling"
	case SysPrint:
		return "print"
	case SysYield:
		return "yield"
	case SysFinishTask:
		return "finish_task"
	case SysOpenFile:
		return "open_file"
	case SysReadFile:
		return "read_file"
	case SysWriteFile:
		return "write_file"
	case SysSeekFile:
		return "seek_file"
	case SysCloseFile:
		return "close_file"
	case SysAsyncPrint:
		return "async_print"
	case SysAsyncOpenFile:
		return "async_open_file"
	case SysAsyncReadFile:
		return "async_read_file"
	case SysAsyncWriteFile:
		return "async_write_file"
	case SysAsyncSeekFile:
		return "async_seek_file"
	case SysAsyncCloseFile:
		return "async_close_file"
	case SysCreateFile:
		return "create_file"
	case SysDeleteFile:
		return "delete_file"
	case SysGetPID:
		return "get_pid"
	case SysChildReturn:
		return "child_return"
	case SysReadPipe:
		return "read_pipe"
	case SysSuspend:
		return "suspend"
	case SysResume:
		return "resume"
	case SysKill:
		return "kill"
	default:
		return "unknown"
	}
}

// AsyncKind maps an async syscall to the request kind it enqueues.
func (s Syscall) AsyncKind() (AsyncKind, bool) {
	switch s {
	case SysAsyncPrint:
		return AsyncPrint, true
	case SysAsyncOpenFile:
		return AsyncOpenFile, true
	case SysAsyncReadFile:
		return AsyncReadFile, true
	case SysAsyncWriteFile:
		return AsyncWriteFile, true
	case SysAsyncSeekFile:
		return AsyncSeekFile, true
	case SysAsyncCloseFile:
		return AsyncCloseFile, true
	default:
		return 0, false
	}
}

// Reserved file descriptors. Descriptors from FirstFileFD on are VFS backed.
const (
	FDStdin   uint64 = 0
	FDStdout  uint64 = 1
	FDPipeIn  uint64 = 2
	FDPipeOut uint64 = 3

	FirstFileFD uint64 = 4
)

// IsSpecialFD reports whether fd is one of the reserved descriptors.
func IsSpecialFD(fd uint64) bool { return fd < FirstFileFD }

// Exit codes the kernel assigns on behalf of a task.
const (
	// NoTask is the all-ones sentinel returned in x0 when a task cannot be
	// created or referenced.
	NoTask uint64 = ^uint64(0)

	ExitParentEnded uint64 = ^uint64(0) - 1
	ExitKilled      uint64 = ^uint64(0) - 2
	ExitFault       uint64 = ^uint64(0) - 3
)

// ErrorFlag marks a result word as a failure. The remaining bits carry the
// error code (a vfs.FileError ordinal unless stated otherwise).
const ErrorFlag uint64 = 1 << 63

// CodeQueueFull is the error code returned when an async request cannot be
// queued because the submission buffer is full. It is outside the FileError
// range.
const CodeQueueFull uint64 = 0xFF

// CodeBadSyscall is returned for a syscall number the kernel does not know.
const CodeBadSyscall uint64 = 0xFE

// CodeBadText is returned when a print payload is not valid UTF-8.
const CodeBadText uint64 = 0xFD

// ChildStatus is returned in x1 by SysChildReturn.
type ChildStatus uint64

const (
	ChildExited ChildStatus = iota
	ChildRunning
	ChildUnknown
)

func (s ChildStatus) String() string {
	switch s {
	case ChildExited:
		return "exited"
	case ChildRunning:
		return "running"
	case ChildUnknown:
		return "unknown"
	default:
		return "invalid"
	}
}

// SpawnKernel is the x1 flag of SVCNewTask requesting an EL1 task. It is
// ignored for callers at EL0.
const SpawnKernel uint64 = 1

// ErrorWord tags code as a failure.
func ErrorWord(code uint64) uint64 { return code | ErrorFlag }

// IsError reports whether w carries the failure flag.
func IsError(w uint64) bool { return w&ErrorFlag != 0 }

// ErrorCode strips the failure flag from w.
func ErrorCode(w uint64) uint64 { return w &^ ErrorFlag }
