//go:build !tinygo

package hal

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"
)

// ErrHalt is returned by an app step function once the OS has stopped. The
// runners treat it as a clean exit.
var ErrHalt = errors.New("hal: halted")

// HostConfig selects the host devices.
type HostConfig struct {
	// TTY puts the controlling terminal in raw mode for console input.
	TTY bool
	// TickHz is the timer rate.
	TickHz int
	Width  int
	Height int
}

type hostHAL struct {
	logger  *hostLogger
	console *hostConsole
	fb      *hostFramebuffer
	kbd     *hostKeyboard
	t       *hostTime
	flash   *hostFlash
}

// New returns a host HAL with stdio console and default geometry.
func New() HAL {
	h, _ := newHost(HostConfig{})
	return h
}

func newHost(cfg HostConfig) (*hostHAL, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		cfg.Width, cfg.Height = 320, 240
	}
	var period time.Duration
	if cfg.TickHz > 0 {
		period = time.Second / time.Duration(cfg.TickHz)
	}
	con := newStdioConsole()
	if cfg.TTY {
		c, err := openTTYConsole()
		if err != nil {
			return nil, err
		}
		con = c
	}
	return &hostHAL{
		logger:  &hostLogger{w: os.Stderr},
		console: con,
		fb:      newHostFramebuffer(cfg.Width, cfg.Height),
		kbd:     newHostKeyboard(),
		t:       newHostTime(period),
		flash:   newHostFlash(),
	}, nil
}

func (h *hostHAL) Logger() Logger   { return h.logger }
func (h *hostHAL) Console() Console { return h.console }
func (h *hostHAL) Display() Display { return hostDisplay{fb: h.fb} }
func (h *hostHAL) Input() Input     { return hostInput{kbd: h.kbd} }
func (h *hostHAL) Flash() Flash     { return h.flash }
func (h *hostHAL) Time() Time       { return h.t }

func (h *hostHAL) close() error {
	return errors.Join(h.console.Close(), h.flash.close())
}

type hostDisplay struct {
	fb *hostFramebuffer
}

func (d hostDisplay) Framebuffer() Framebuffer { return d.fb }

type hostInput struct {
	kbd *hostKeyboard
}

func (in hostInput) Keyboard() Keyboard { return in.kbd }

type hostLogger struct {
	mu sync.Mutex
	w  *os.File
}

func (l *hostLogger) WriteLineString(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.w, s)
}

func (l *hostLogger) WriteLineBytes(b []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.w.Write(b)
	l.w.Write([]byte{'\n'})
}
