// Package vfs is the in-memory file store behind the file syscalls.
//
// It has no persistence: files are seeded at boot (config or initrd) and live
// for the kernel's uptime.
package vfs

import (
	"sort"
	"sync"
)

// Whence selects the reference point of a seek.
type Whence uint8

const (
	SeekStart Whence = iota
	SeekCurrent
	SeekEnd
)

func (w Whence) String() string {
	switch w {
	case SeekStart:
		return "start"
	case SeekCurrent:
		return "current"
	case SeekEnd:
		return "end"
	default:
		return "unknown"
	}
}

// File is a named byte buffer plus its open state.
//
// A file is either open for a single writer or for any number of readers.
type File struct {
	data    []byte
	readers int
	writer  bool
}

// OpenedFile is one open handle on a file.
type OpenedFile struct {
	name   string
	cursor int
	write  bool
	closed bool
}

// Name returns the name the handle was opened with.
func (f *OpenedFile) Name() string { return f.name }

// Cursor returns the current offset of the handle.
func (f *OpenedFile) Cursor() int { return f.cursor }

// Writable reports whether the handle was opened for write.
func (f *OpenedFile) Writable() bool { return f.write }

// FS is the file table.
type FS struct {
	mu    sync.Mutex
	files map[string]*File
}

// New returns an empty file system.
func New() *FS {
	return &FS{files: make(map[string]*File)}
}

// Create adds a file with a copy of data.
func (fs *FS) Create(name string, data []byte) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if _, ok := fs.files[name]; ok {
		return FileNameAlreadyExists
	}
	fs.files[name] = &File{data: append([]byte(nil), data...)}
	return nil
}

// Delete removes a file that has no open handles.
func (fs *FS) Delete(name string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	f, ok := fs.files[name]
	if !ok {
		return FileDoesNotExist
	}
	if f.writer || f.readers > 0 {
		return CannotDeleteOpenedFile
	}
	delete(fs.files, name)
	return nil
}

// Stat returns the size of a file.
func (fs *FS) Stat(name string) (size int, ok bool) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	f, ok := fs.files[name]
	if !ok {
		return 0, false
	}
	return len(f.data), true
}

// List returns the file names in lexical order.
func (fs *FS) List() []string {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	names := make([]string, 0, len(fs.files))
	for name := range fs.files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open returns a handle positioned at the start of the file.
func (fs *FS) Open(name string, write bool) (*OpenedFile, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	f, ok := fs.files[name]
	if !ok {
		return nil, FileDoesNotExist
	}
	if f.writer {
		return nil, FileAlreadyOpenedForWrite
	}
	if write {
		if f.readers > 0 {
			return nil, FileAlreadyOpenedForRead
		}
		f.writer = true
	} else {
		f.readers++
	}
	return &OpenedFile{name: name, write: write}, nil
}

// Close releases a handle.
func (fs *FS) Close(of *OpenedFile) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if of.closed {
		return AttemptToCloseClosedFile
	}
	of.closed = true
	f, ok := fs.files[of.name]
	if !ok {
		return nil
	}
	if of.write {
		f.writer = false
	} else if f.readers > 0 {
		f.readers--
	}
	return nil
}

// Read returns up to n bytes from the cursor and advances it. Reads clamp at
// the end of the data.
func (fs *FS) Read(of *OpenedFile, n int) ([]byte, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	f, err := fs.lookup(of)
	if err != nil {
		return nil, err
	}
	if of.write {
		return nil, CannotReadWriteOnlyFile
	}
	if of.cursor > len(f.data) {
		return nil, PositionOutOfBoundsOfFile
	}
	if n < 0 {
		n = 0
	}
	end := of.cursor + n
	if end > len(f.data) {
		end = len(f.data)
	}
	out := append([]byte(nil), f.data[of.cursor:end]...)
	of.cursor = end
	return out, nil
}

// Write inserts msg at the cursor. Existing bytes after the cursor move right
// and the cursor itself does not move.
func (fs *FS) Write(of *OpenedFile, msg []byte) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	f, err := fs.lookup(of)
	if err != nil {
		return err
	}
	if !of.write {
		return ModifyingWithoutWritePermission
	}
	if of.cursor > len(f.data) {
		return PositionOutOfBoundsOfFile
	}
	data := make([]byte, 0, len(f.data)+len(msg))
	data = append(data, f.data[:of.cursor]...)
	data = append(data, msg...)
	data = append(data, f.data[of.cursor:]...)
	f.data = data
	return nil
}

// Seek moves the cursor relative to whence and returns the new offset. The
// result is clamped into [0, len].
func (fs *FS) Seek(of *OpenedFile, whence Whence, off int64) (int, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	f, err := fs.lookup(of)
	if err != nil {
		return 0, err
	}

	var base int64
	switch whence {
	case SeekStart:
	case SeekCurrent:
		base = int64(of.cursor)
	case SeekEnd:
		base = int64(len(f.data))
	default:
		return of.cursor, PositionOutOfBoundsOfFile
	}

	pos := base + off
	if pos < 0 {
		pos = 0
	}
	if pos > int64(len(f.data)) {
		pos = int64(len(f.data))
	}
	of.cursor = int(pos)
	return of.cursor, nil
}

func (fs *FS) lookup(of *OpenedFile) (*File, error) {
	if of == nil || of.closed {
		return nil, ReadOnClosedFile
	}
	f, ok := fs.files[of.name]
	if !ok {
		return nil, FileDoesNotExist
	}
	return f, nil
}
