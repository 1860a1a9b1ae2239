package proto

import "testing"

func TestErrorWord(t *testing.T) {
	w := ErrorWord(7)
	if !IsError(w) {
		t.Fatalf("IsError(%#x) = false, want true", w)
	}
	if got := ErrorCode(w); got != 7 {
		t.Fatalf("ErrorCode(%#x) = %d, want 7", w, got)
	}
	if IsError(42) {
		t.Fatalf("IsError(42) = true, want false")
	}
	if !IsError(NoTask) {
		t.Fatalf("IsError(NoTask) = false, want true")
	}
}

func TestSeekRequestNegativeOffset(t *testing.T) {
	req := Request{ID: 9, Kind: AsyncSeekFile, File: AsyncRef(3), Whence: 2, Offset: -12}
	buf := make([]byte, req.Size())
	req.Encode(buf)

	got, ok := DecodeRequest(buf)
	if !ok {
		t.Fatalf("DecodeRequest() ok = false")
	}
	if got.Offset != -12 || got.File != AsyncRef(3) || got.Whence != 2 || got.ID != 9 {
		t.Fatalf("DecodeRequest() = %+v, want %+v", got, req)
	}
}

func TestDecodeRequestRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		b    []byte
	}{
		{"short header", []byte{uint8(AsyncPrint), 1, 2}},
		{"unknown kind", append([]byte{99}, make([]byte, 8)...)},
		{"open without flag", append([]byte{uint8(AsyncOpenFile)}, make([]byte, 8)...)},
		{"read wrong body", append([]byte{uint8(AsyncReadFile)}, make([]byte, 8+3)...)},
		{"close wrong body", append([]byte{uint8(AsyncCloseFile)}, make([]byte, 8+10)...)},
	}
	for _, tt := range tests {
		if _, ok := DecodeRequest(tt.b); ok {
			t.Fatalf("%s: DecodeRequest() ok = true, want false", tt.name)
		}
	}
}

func TestDecodeResultCopiesData(t *testing.T) {
	res := Result{ID: 2, Kind: AsyncReadFile, Word: 3, Data: []byte("abc")}
	buf := make([]byte, res.Size())
	res.Encode(buf)

	got, ok := DecodeResult(buf)
	if !ok {
		t.Fatalf("DecodeResult() ok = false")
	}
	buf[len(buf)-1] = 'X'
	if string(got.Data) != "abc" {
		t.Fatalf("Data = %q after source mutation, want %q", got.Data, "abc")
	}
	if got.Failed() {
		t.Fatalf("Failed() = true, want false")
	}
}

func TestAsyncKindFromSyscall(t *testing.T) {
	if k, ok := SysAsyncReadFile.AsyncKind(); !ok || k != AsyncReadFile {
		t.Fatalf("AsyncKind() = %v, %v, want %v, true", k, ok, AsyncReadFile)
	}
	if _, ok := SysReadFile.AsyncKind(); ok {
		t.Fatalf("SysReadFile.AsyncKind() ok = true, want false")
	}
}
