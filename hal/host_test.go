//go:build !tinygo

package hal

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestHostFlashMissingImage(t *testing.T) {
	t.Setenv("EMBER_FLASH_PATH", filepath.Join(t.TempDir(), "none.flash"))
	f := newHostFlash()
	if f.SizeBytes() != 0 {
		t.Fatalf("SizeBytes() = %d, want 0", f.SizeBytes())
	}
	if _, err := f.ReadAt(make([]byte, 4), 0); !errors.Is(err, ErrNotImplemented) {
		t.Fatalf("ReadAt() = %v, want ErrNotImplemented", err)
	}
}

func TestHostFlashEraseProgram(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ember.flash")
	if err := os.WriteFile(path, make([]byte, 2*hostFlashEraseBlockBytes), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("EMBER_FLASH_PATH", path)
	f := newHostFlash()
	defer f.close()

	if _, err := f.WriteAt([]byte{1}, 0); !errors.Is(err, ErrFlashWriteRequiresErase) {
		t.Fatalf("WriteAt(zeroed) = %v, want ErrFlashWriteRequiresErase", err)
	}
	if err := f.Erase(0, 100); err == nil {
		t.Fatalf("Erase(unaligned) error = nil")
	}
	if err := f.Erase(0, hostFlashEraseBlockBytes); err != nil {
		t.Fatalf("Erase() error = %v", err)
	}
	if _, err := f.WriteAt([]byte("EMBR"), 0); err != nil {
		t.Fatalf("WriteAt() error = %v", err)
	}
	buf := make([]byte, 6)
	n, err := f.ReadAt(buf, 0)
	if err != nil || n != 6 {
		t.Fatalf("ReadAt() = %d, %v", n, err)
	}
	if !bytes.Equal(buf, []byte{'E', 'M', 'B', 'R', 0xFF, 0xFF}) {
		t.Fatalf("ReadAt() = %q", buf)
	}
	n, err = f.ReadAt(buf, f.SizeBytes()-2)
	if err != nil || n != 2 {
		t.Fatalf("ReadAt(tail) = %d, %v, want 2, nil", n, err)
	}
}

func TestHostTimeStep(t *testing.T) {
	ht := newHostTime(time.Millisecond)
	ht.step()
	if got := <-ht.Ticks(); got != 1 {
		t.Fatalf("first tick = %d, want 1", got)
	}
	ht.last = time.Now().Add(-5 * time.Millisecond)
	ht.step()
	if n := len(ht.Ticks()); n < 5 {
		t.Fatalf("ticks after 5ms = %d, want >= 5", n)
	}
}

func TestHostConsoleRawWrite(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	c := &hostConsole{w: w, raw: true}
	n, err := c.Write([]byte("a\nb"))
	if err != nil || n != 3 {
		t.Fatalf("Write() = %d, %v, want 3, nil", n, err)
	}
	w.Close()
	got := make([]byte, 8)
	m, _ := r.Read(got)
	if string(got[:m]) != "a\r\nb" {
		t.Fatalf("raw output = %q, want %q", got[:m], "a\r\nb")
	}
}
