package vfs

// FileError is a recoverable file operation failure. Its ordinal is the code
// carried in syscall result words, so new variants are only ever appended.
type FileError uint8

const (
	FileNameAlreadyExists FileError = iota
	FileDoesNotExist
	AttemptToCloseClosedFile
	PositionOutOfBoundsOfFile
	ModifyingWithoutWritePermission
	ReadOnClosedFile
	FileAlreadyOpenedForWrite
	FileAlreadyOpenedForRead
	CannotDeleteOpenedFile
	CannotReadWriteOnlyFile
	CannotSeekSpecialFile
	CannotCloseSpecialFile
)

func (e FileError) Error() string { return "vfs: " + e.String() }

func (e FileError) String() string {
	switch e {
	case FileNameAlreadyExists:
		return "file name already exists"
	case FileDoesNotExist:
		return "file does not exist"
	case AttemptToCloseClosedFile:
		return "attempt to close closed file"
	case PositionOutOfBoundsOfFile:
		return "position out of bounds of file"
	case ModifyingWithoutWritePermission:
		return "modifying without write permission"
	case ReadOnClosedFile:
		return "read on closed file"
	case FileAlreadyOpenedForWrite:
		return "file already opened for write"
	case FileAlreadyOpenedForRead:
		return "file already opened for read"
	case CannotDeleteOpenedFile:
		return "cannot delete opened file"
	case CannotReadWriteOnlyFile:
		return "cannot read write-only file"
	case CannotSeekSpecialFile:
		return "cannot seek special file"
	case CannotCloseSpecialFile:
		return "cannot close special file"
	default:
		return "unknown"
	}
}
