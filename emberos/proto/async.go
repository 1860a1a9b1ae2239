package proto

import "encoding/binary"

// AsyncKind is the discriminant of an async request or result frame.
type AsyncKind uint8

const (
	AsyncPrint AsyncKind = iota + 1
	AsyncOpenFile
	AsyncReadFile
	AsyncWriteFile
	AsyncSeekFile
	AsyncCloseFile
)

func (k AsyncKind) String() string {
	switch k {
	case AsyncPrint:
		return "print"
	case AsyncOpenFile:
		return "open_file"
	case AsyncReadFile:
		return "read_file"
	case AsyncWriteFile:
		return "write_file"
	case AsyncSeekFile:
		return "seek_file"
	case AsyncCloseFile:
		return "close_file"
	default:
		return "unknown"
	}
}

// RefKind says how a FileRef names its file.
type RefKind uint8

const (
	// RefDescriptor is a plain file descriptor.
	RefDescriptor RefKind = iota
	// RefAsync is the correlation id of an earlier async open whose result
	// is the descriptor.
	RefAsync
)

// FileRef names the file an async read/write/seek/close applies to.
type FileRef struct {
	Kind  RefKind
	Value uint64
}

// Descriptor references an open file descriptor.
func Descriptor(fd uint64) FileRef { return FileRef{Kind: RefDescriptor, Value: fd} }

// AsyncRef references the result of the async open submitted with id.
func AsyncRef(id uint64) FileRef { return FileRef{Kind: RefAsync, Value: id} }

const fileRefBytes = 9

func putFileRef(b []byte, r FileRef) {
	b[0] = uint8(r.Kind)
	binary.LittleEndian.PutUint64(b[1:9], r.Value)
}

func fileRef(b []byte) FileRef {
	return FileRef{Kind: RefKind(b[0]), Value: binary.LittleEndian.Uint64(b[1:9])}
}

// Request is an async syscall request frame.
//
// Layout (little-endian):
//   - u8: kind (AsyncKind)
//   - u64: correlation id
//   - kind specific body:
//     Print: message bytes
//     OpenFile: u8 write flag, name bytes
//     ReadFile: file ref (u8 kind, u64 value), u32 length
//     WriteFile: file ref, data bytes
//     SeekFile: file ref, u8 whence, i64 offset
//     CloseFile: file ref
type Request struct {
	ID     uint64
	Kind   AsyncKind
	File   FileRef
	Name   string
	Write  bool
	Len    uint32
	Whence uint8
	Offset int64
	Data   []byte
}

const requestHeaderBytes = 9

// Size returns the encoded size of r.
func (r Request) Size() int {
	n := requestHeaderBytes
	switch r.Kind {
	case AsyncPrint:
		n += len(r.Data)
	case AsyncOpenFile:
		n += 1 + len(r.Name)
	case AsyncReadFile:
		n += fileRefBytes + 4
	case AsyncWriteFile:
		n += fileRefBytes + len(r.Data)
	case AsyncSeekFile:
		n += fileRefBytes + 1 + 8
	case AsyncCloseFile:
		n += fileRefBytes
	}
	return n
}

// Encode writes r into b, which must hold at least r.Size() bytes.
func (r Request) Encode(b []byte) int {
	b[0] = uint8(r.Kind)
	binary.LittleEndian.PutUint64(b[1:9], r.ID)
	body := b[requestHeaderBytes:]
	switch r.Kind {
	case AsyncPrint:
		copy(body, r.Data)
	case AsyncOpenFile:
		body[0] = 0
		if r.Write {
			body[0] = 1
		}
		copy(body[1:], r.Name)
	case AsyncReadFile:
		putFileRef(body, r.File)
		binary.LittleEndian.PutUint32(body[fileRefBytes:], r.Len)
	case AsyncWriteFile:
		putFileRef(body, r.File)
		copy(body[fileRefBytes:], r.Data)
	case AsyncSeekFile:
		putFileRef(body, r.File)
		body[fileRefBytes] = r.Whence
		binary.LittleEndian.PutUint64(body[fileRefBytes+1:], uint64(r.Offset))
	case AsyncCloseFile:
		putFileRef(body, r.File)
	}
	return r.Size()
}

// DecodeRequest parses a request frame. Byte slices in the result alias b.
func DecodeRequest(b []byte) (r Request, ok bool) {
	if len(b) < requestHeaderBytes {
		return Request{}, false
	}
	r.Kind = AsyncKind(b[0])
	r.ID = binary.LittleEndian.Uint64(b[1:9])
	body := b[requestHeaderBytes:]
	switch r.Kind {
	case AsyncPrint:
		r.Data = body
	case AsyncOpenFile:
		if len(body) < 1 {
			return Request{}, false
		}
		r.Write = body[0] != 0
		r.Name = string(body[1:])
	case AsyncReadFile:
		if len(body) != fileRefBytes+4 {
			return Request{}, false
		}
		r.File = fileRef(body)
		r.Len = binary.LittleEndian.Uint32(body[fileRefBytes:])
	case AsyncWriteFile:
		if len(body) < fileRefBytes {
			return Request{}, false
		}
		r.File = fileRef(body)
		r.Data = body[fileRefBytes:]
	case AsyncSeekFile:
		if len(body) != fileRefBytes+1+8 {
			return Request{}, false
		}
		r.File = fileRef(body)
		r.Whence = body[fileRefBytes]
		r.Offset = int64(binary.LittleEndian.Uint64(body[fileRefBytes+1:]))
	case AsyncCloseFile:
		if len(body) != fileRefBytes {
			return Request{}, false
		}
		r.File = fileRef(body)
	default:
		return Request{}, false
	}
	return r, true
}

// Result is an async syscall completion frame.
//
// Layout (little-endian):
//   - u8: kind (AsyncKind of the request)
//   - u64: correlation id of the request
//   - u64: result word (ErrorFlag set on failure)
//   - bytes: data (ReadFile only)
type Result struct {
	ID   uint64
	Kind AsyncKind
	Word uint64
	Data []byte
}

const resultHeaderBytes = 17

// Failed reports whether the result word carries the failure flag.
func (r Result) Failed() bool { return IsError(r.Word) }

// Size returns the encoded size of r.
func (r Result) Size() int { return resultHeaderBytes + len(r.Data) }

// Encode writes r into b, which must hold at least r.Size() bytes.
func (r Result) Encode(b []byte) int {
	b[0] = uint8(r.Kind)
	binary.LittleEndian.PutUint64(b[1:9], r.ID)
	binary.LittleEndian.PutUint64(b[9:17], r.Word)
	copy(b[resultHeaderBytes:], r.Data)
	return r.Size()
}

// DecodeResult parses a completion frame. Data is copied out of b.
func DecodeResult(b []byte) (r Result, ok bool) {
	if len(b) < resultHeaderBytes {
		return Result{}, false
	}
	r.Kind = AsyncKind(b[0])
	r.ID = binary.LittleEndian.Uint64(b[1:9])
	r.Word = binary.LittleEndian.Uint64(b[9:17])
	if len(b) > resultHeaderBytes {
		r.Data = append([]byte(nil), b[resultHeaderBytes:]...)
	}
	return r, true
}
