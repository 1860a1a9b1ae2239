//go:build !tinygo

package hal

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

const (
	hostFlashDefaultPath     = "ember.flash"
	hostFlashEraseBlockBytes = 4096
)

var ErrFlashWriteRequiresErase = errors.New("flash write requires erase")

// hostFlash is NOR-like flash backed by an image file. A missing image is an
// empty flash: size zero, every access ErrNotImplemented.
type hostFlash struct {
	mu    sync.Mutex
	f     *os.File
	size  uint32
	erase [hostFlashEraseBlockBytes]byte
}

// FlashPath is the host flash image, EMBER_FLASH_PATH or ember.flash.
func FlashPath() string {
	if p := os.Getenv("EMBER_FLASH_PATH"); p != "" {
		return p
	}
	return hostFlashDefaultPath
}

func newHostFlash() *hostFlash {
	hf := &hostFlash{}
	for i := range hf.erase {
		hf.erase[i] = 0xFF
	}
	f, err := os.OpenFile(FlashPath(), os.O_RDWR, 0)
	if err != nil {
		return hf
	}
	st, err := f.Stat()
	if err != nil || st.Size() > int64(^uint32(0)) {
		_ = f.Close()
		return hf
	}
	hf.f = f
	hf.size = uint32(st.Size())
	return hf
}

func (f *hostFlash) SizeBytes() uint32       { return f.size }
func (f *hostFlash) EraseBlockBytes() uint32 { return hostFlashEraseBlockBytes }

// span clips len n at off to the device and reports whether anything is left.
func (f *hostFlash) span(op string, off uint32, n int) (int, error) {
	if f.f == nil {
		return 0, ErrNotImplemented
	}
	if off >= f.size {
		return 0, fmt.Errorf("flash %s at %d: %w", op, off, os.ErrInvalid)
	}
	return min(n, int(f.size-off)), nil
}

func (f *hostFlash) ReadAt(p []byte, off uint32) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, err := f.span("read", off, len(p))
	if err != nil {
		return 0, err
	}
	return f.f.ReadAt(p[:n], int64(off))
}

func (f *hostFlash) WriteAt(p []byte, off uint32) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, err := f.span("write", off, len(p))
	if err != nil {
		return 0, err
	}
	p = p[:n]
	prev := make([]byte, n)
	if _, err := f.f.ReadAt(prev, int64(off)); err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("flash read before write at %d: %w", off, err)
	}
	for i := range p {
		if prev[i]&p[i] != p[i] {
			return 0, ErrFlashWriteRequiresErase
		}
	}
	return f.f.WriteAt(p, int64(off))
}

func (f *hostFlash) Erase(off, size uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.f == nil {
		return ErrNotImplemented
	}
	if off%hostFlashEraseBlockBytes != 0 || size%hostFlashEraseBlockBytes != 0 || uint64(off)+uint64(size) > uint64(f.size) {
		return fmt.Errorf("flash erase off=%d size=%d: %w", off, size, os.ErrInvalid)
	}
	for ; size > 0; size -= hostFlashEraseBlockBytes {
		if _, err := f.f.WriteAt(f.erase[:], int64(off)); err != nil {
			return fmt.Errorf("flash erase block at %d: %w", off, err)
		}
		off += hostFlashEraseBlockBytes
	}
	return nil
}

func (f *hostFlash) close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.f == nil {
		return nil
	}
	err := f.f.Close()
	f.f = nil
	return err
}
