// Package console multiplexes the kernel console. Output goes to the serial
// console and to a terminal drawn on the framebuffer; input from the serial
// console and the keyboard is buffered for non-blocking stdin reads.
package console

import (
	"context"
	"errors"
	"io"
	"sync"
	"unicode/utf8"

	"tinygo.org/x/tinyfont/proggy"
	"tinygo.org/x/tinyterm"

	"ember/emberos/debug"
	"ember/hal"
)

// MaxInput bounds the stdin buffer. Input beyond it is dropped.
const MaxInput = 4096

var keySeq = map[hal.KeyCode]string{
	hal.KeyUp:        "\x1b[A",
	hal.KeyDown:      "\x1b[B",
	hal.KeyRight:     "\x1b[C",
	hal.KeyLeft:      "\x1b[D",
	hal.KeyHome:      "\x1b[H",
	hal.KeyEnd:       "\x1b[F",
	hal.KeyDelete:    "\x1b[3~",
	hal.KeyEnter:     "\n",
	hal.KeyTab:       "\t",
	hal.KeyEscape:    "\x1b",
	hal.KeyBackspace: "\x7f",
}

type Service struct {
	serial hal.Console

	mu    sync.Mutex
	fb    hal.Framebuffer
	d     *fbDisplay
	term  *tinyterm.Terminal
	dirty bool
	in    []byte
}

// New returns a console over serial and disp. Either may be nil.
func New(serial hal.Console, disp hal.Display) *Service {
	s := &Service{serial: serial}
	if disp != nil {
		s.fb = disp.Framebuffer()
	}
	if s.fb != nil {
		s.d = newFBDisplay(s.fb)
		s.resetLocked()
	}
	return s
}

func (s *Service) resetLocked() {
	s.term = tinyterm.NewTerminal(s.d)
	s.term.Configure(&tinyterm.Config{
		Font:              &proggy.TinySZ8pt7b,
		FontHeight:        10,
		FontOffset:        6,
		UseSoftwareScroll: true,
	})
	s.fb.ClearRGB(0, 0, 0)
	s.dirty = true
}

// Clear blanks the terminal.
func (s *Service) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.term != nil {
		s.resetLocked()
	}
}

// Write sends p to every output. Serial errors are returned; the terminal
// never fails.
func (s *Service) Write(p []byte) (int, error) {
	s.mu.Lock()
	if s.term != nil && len(p) > 0 {
		_, _ = s.term.Write(p)
		s.dirty = true
	}
	s.mu.Unlock()
	if s.serial == nil {
		return len(p), nil
	}
	return s.serial.Write(p)
}

// Flush presents the terminal if it changed since the last flush.
func (s *Service) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.term == nil || !s.dirty {
		return nil
	}
	s.dirty = false
	return s.d.Display()
}

// TryRead takes buffered input without blocking.
func (s *Service) TryRead(p []byte) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := copy(p, s.in)
	s.in = s.in[n:]
	if len(s.in) == 0 {
		s.in = nil
	}
	return n
}

// Feed appends input bytes.
func (s *Service) Feed(p []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room := MaxInput - len(s.in)
	if room < len(p) {
		debug.DPrintf(debug.CONSOLE, "input full, dropping %d bytes", len(p)-max(room, 0))
		p = p[:max(room, 0)]
	}
	s.in = append(s.in, p...)
}

// Key feeds the bytes a key press stands for. Releases are ignored.
func (s *Service) Key(ev hal.KeyEvent) {
	if !ev.Press {
		return
	}
	if ev.Rune != 0 {
		var b [utf8.UTFMax]byte
		s.Feed(b[:utf8.EncodeRune(b[:], ev.Rune)])
		return
	}
	if seq, ok := keySeq[ev.Code]; ok {
		s.Feed([]byte(seq))
	}
}

// PumpKeys feeds keyboard events until ctx is done.
func (s *Service) PumpKeys(ctx context.Context, kbd hal.Keyboard) error {
	if kbd == nil {
		<-ctx.Done()
		return nil
	}
	events := kbd.Events()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-events:
			s.Key(ev)
		}
	}
}

// PumpSerial feeds serial input until the console reports an error. The
// read blocks, so it is not tied to a context.
func (s *Service) PumpSerial() error {
	if s.serial == nil {
		return nil
	}
	buf := make([]byte, 256)
	for {
		n, err := s.serial.Read(buf)
		if n > 0 {
			s.Feed(buf[:n])
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
