package console

import (
	"bytes"
	"context"
	"image/color"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"ember/hal"
)

type memFB struct {
	w, h     int
	buf      []byte
	presents int
}

func newMemFB(w, h int) *memFB { return &memFB{w: w, h: h, buf: make([]byte, w*h*2)} }

func (f *memFB) Width() int              { return f.w }
func (f *memFB) Height() int             { return f.h }
func (f *memFB) Format() hal.PixelFormat { return hal.PixelFormatRGB565 }
func (f *memFB) StrideBytes() int        { return f.w * 2 }
func (f *memFB) Buffer() []byte          { return f.buf }
func (f *memFB) Present() error          { f.presents++; return nil }
func (f *memFB) ClearRGB(r, g, b uint8) {
	p := hal.RGB565(r, g, b)
	for i := 0; i < len(f.buf); i += 2 {
		f.buf[i], f.buf[i+1] = byte(p), byte(p>>8)
	}
}

func (f *memFB) lit() int {
	n := 0
	for i := 0; i < len(f.buf); i += 2 {
		if f.buf[i] != 0 || f.buf[i+1] != 0 {
			n++
		}
	}
	return n
}

type memDisplay struct{ fb hal.Framebuffer }

func (d memDisplay) Framebuffer() hal.Framebuffer { return d.fb }

type memSerial struct {
	mu  sync.Mutex
	in  io.Reader
	out bytes.Buffer
}

func (s *memSerial) Read(p []byte) (int, error) { return s.in.Read(p) }

func (s *memSerial) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.out.Write(p)
}

func TestWriteFansOut(t *testing.T) {
	fb := newMemFB(160, 80)
	ser := &memSerial{in: strings.NewReader("")}
	s := New(ser, memDisplay{fb: fb})
	if err := s.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	presents := fb.presents

	n, err := s.Write([]byte("hello\n"))
	if err != nil || n != 6 {
		t.Fatalf("Write() = %d, %v, want 6, nil", n, err)
	}
	if got := ser.out.String(); got != "hello\n" {
		t.Fatalf("serial = %q, want %q", got, "hello\n")
	}
	if fb.lit() == 0 {
		t.Fatalf("terminal drew nothing")
	}
	if err := s.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if err := s.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if fb.presents != presents+1 {
		t.Fatalf("presents = %d, want %d", fb.presents, presents+1)
	}

	s.Clear()
	if fb.lit() != 0 {
		t.Fatalf("Clear() left %d pixels", fb.lit())
	}
}

func TestWithoutDevices(t *testing.T) {
	s := New(nil, nil)
	if n, err := s.Write([]byte("x")); n != 1 || err != nil {
		t.Fatalf("Write() = %d, %v", n, err)
	}
	if err := s.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if err := s.PumpSerial(); err != nil {
		t.Fatalf("PumpSerial() error = %v", err)
	}
}

func TestInput(t *testing.T) {
	s := New(&memSerial{in: strings.NewReader("ls\n")}, nil)
	if err := s.PumpSerial(); err != nil {
		t.Fatalf("PumpSerial() error = %v", err)
	}
	s.Key(hal.KeyEvent{Press: true, Rune: 'é'})
	s.Key(hal.KeyEvent{Press: true, Code: hal.KeyUp})
	s.Key(hal.KeyEvent{Press: false, Code: hal.KeyUp})

	buf := make([]byte, 4)
	var got []byte
	for {
		n := s.TryRead(buf)
		if n == 0 {
			break
		}
		got = append(got, buf[:n]...)
	}
	if want := "ls\né\x1b[A"; string(got) != want {
		t.Fatalf("TryRead() = %q, want %q", got, want)
	}
}

func TestInputIsBounded(t *testing.T) {
	s := New(nil, nil)
	s.Feed(make([]byte, MaxInput-1))
	s.Feed([]byte("abc"))
	buf := make([]byte, 2*MaxInput)
	if n := s.TryRead(buf); n != MaxInput {
		t.Fatalf("TryRead() = %d, want %d", n, MaxInput)
	}
	if buf[MaxInput-1] != 'a' {
		t.Fatalf("last byte = %q, want 'a'", buf[MaxInput-1])
	}
}

type chanKeyboard chan hal.KeyEvent

func (k chanKeyboard) Events() <-chan hal.KeyEvent { return k }

func TestPumpKeys(t *testing.T) {
	s := New(nil, nil)
	kbd := make(chanKeyboard, 4)
	kbd <- hal.KeyEvent{Press: true, Code: hal.KeyEnter}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.PumpKeys(ctx, kbd) }()

	buf := make([]byte, 4)
	var n int
	for deadline := time.Now().Add(2 * time.Second); n == 0 && time.Now().Before(deadline); {
		n = s.TryRead(buf)
		time.Sleep(time.Millisecond)
	}
	if string(buf[:n]) != "\n" {
		t.Fatalf("TryRead() = %q, want newline", buf[:n])
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("PumpKeys() error = %v", err)
	}
}

func TestFillRectangleClips(t *testing.T) {
	fb := newMemFB(4, 4)
	d := newFBDisplay(fb)
	_ = d.FillRectangle(-2, -2, 4, 4, color.RGBA{R: 0xFF, A: 0xFF})
	if fb.lit() != 4 {
		t.Fatalf("lit = %d, want 4", fb.lit())
	}
	d.SetPixel(10, 10, color.RGBA{G: 0xFF})
	_ = d.ScrollUp(1, color.RGBA{})
	if fb.lit() != 2 {
		t.Fatalf("lit after scroll = %d, want 2", fb.lit())
	}
}
