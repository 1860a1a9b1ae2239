package app

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ember/emberos/config"
	"ember/emberos/kernel"
	"ember/hal"
)

type lineLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *lineLogger) WriteLineString(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, s)
}

func (l *lineLogger) WriteLineBytes(b []byte) { l.WriteLineString(string(b)) }

type serial struct {
	mu  sync.Mutex
	out bytes.Buffer
}

func (s *serial) Read([]byte) (int, error) { return 0, errors.New("no input") }

func (s *serial) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.out.Write(p)
}

func (s *serial) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.out.String()
}

type memFB struct {
	w, h int
	buf  []byte
}

func (f *memFB) Width() int              { return f.w }
func (f *memFB) Height() int             { return f.h }
func (f *memFB) Format() hal.PixelFormat { return hal.PixelFormatRGB565 }
func (f *memFB) StrideBytes() int        { return f.w * 2 }
func (f *memFB) Buffer() []byte          { return f.buf }
func (f *memFB) Present() error          { return nil }
func (f *memFB) ClearRGB(r, g, b uint8) {
	p := hal.RGB565(r, g, b)
	for i := 0; i < len(f.buf); i += 2 {
		f.buf[i], f.buf[i+1] = byte(p), byte(p>>8)
	}
}

type display struct{ fb hal.Framebuffer }

func (d display) Framebuffer() hal.Framebuffer { return d.fb }

type ticker chan uint64

func (t ticker) Ticks() <-chan uint64 { return t }

type testHAL struct {
	log   *lineLogger
	con   *serial
	disp  hal.Display
	ticks ticker
}

func newTestHAL() *testHAL {
	return &testHAL{log: &lineLogger{}, con: &serial{}, ticks: make(ticker, 16)}
}

func (h *testHAL) Logger() hal.Logger   { return h.log }
func (h *testHAL) Console() hal.Console { return h.con }
func (h *testHAL) Display() hal.Display { return h.disp }
func (h *testHAL) Input() hal.Input     { return nil }
func (h *testHAL) Flash() hal.Flash     { return nil }
func (h *testHAL) Time() hal.Time       { return h.ticks }

func waitHalt(t *testing.T, step func() error) error {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if err := step(); err != nil {
			return err
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("system did not halt")
	return nil
}

func TestBootRunsInit(t *testing.T) {
	h := newTestHAL()
	fb := &memFB{w: 160, h: 80, buf: make([]byte, 160*80*2)}
	h.disp = display{fb: fb}
	cfg := config.Default()
	cfg.Files = append(cfg.Files, config.File{Name: "notes", Data: "a b c\n"})
	cfg.Init = []string{"hello", "cat motd", "pipe notes"}

	_, step := New(context.Background(), h, cfg)
	assert.ErrorIs(t, waitHalt(t, step), hal.ErrHalt)

	out := h.con.String()
	assert.True(t, strings.HasPrefix(out, "EmberOS dev: 32 tasks, 16 KiB stacks, 2 files (0 from initrd)\n"), out)
	assert.Contains(t, out, "hello from pid 1\n")
	assert.Contains(t, out, "welcome to emberos\n")
	assert.Contains(t, out, "1 3 6 notes\n")
	assert.NotEqual(t, make([]byte, len(fb.buf)), fb.buf, "console drew on the framebuffer")
}

func TestBootError(t *testing.T) {
	cfg := config.Default()
	cfg.Init = []string{`"unterminated`}
	_, step := New(context.Background(), newTestHAL(), cfg)
	assert.ErrorIs(t, step(), config.ErrInvalid)
}

func TestStopCancelsKernel(t *testing.T) {
	h := newTestHAL()
	cfg := config.Default()
	cfg.Init = []string{"spin 100000000"}
	s, err := Boot(h, cfg)
	require.NoError(t, err)

	done := s.Start(context.Background())
	h.ticks <- 1
	require.NoError(t, s.Stop())
	select {
	case <-done:
	default:
		t.Fatal("done not closed after Stop")
	}
	select {
	case <-s.Kernel().Halted():
	default:
		t.Fatal("kernel still running after Stop")
	}
}

func TestPanicScreen(t *testing.T) {
	fb := &memFB{w: 120, h: 40, buf: make([]byte, 120*40*2)}
	lines := panicLines(kernel.PanicInfo{PID: 3, Value: "boom", Stack: []byte("main.go:1\n\nmain.go:2\n")})
	assert.Equal(t, []string{"EmberOS panic:", "pid: 3", "panic: boom", "stack:", "main.go:1", "main.go:2"}, lines)

	paintPanic(fb, lines)
	dark := 0
	for i := 0; i < len(fb.buf); i += 2 {
		if fb.buf[i] == 0 && fb.buf[i+1] == 0 {
			dark++
		}
	}
	assert.NotZero(t, dark, "text is drawn")
	assert.Less(t, dark, 120*40)
}

func TestTakeRunes(t *testing.T) {
	p, r := takeRunes("héllo", 2)
	assert.Equal(t, "hé", p)
	assert.Equal(t, "llo", r)
	p, r = takeRunes("hi", 5)
	assert.Equal(t, "hi", p)
	assert.Equal(t, "", r)
}
