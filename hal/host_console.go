//go:build !tinygo

package hal

import (
	"bytes"
	"fmt"
	"os"
	"sync"

	"github.com/mattn/go-tty"
)

// hostConsole is stdin/stdout, or the controlling terminal in raw mode.
type hostConsole struct {
	mu      sync.Mutex
	r       *os.File
	w       *os.File
	raw     bool
	tty     *tty.TTY
	restore func() error
}

func newStdioConsole() *hostConsole {
	return &hostConsole{r: os.Stdin, w: os.Stdout}
}

func openTTYConsole() (*hostConsole, error) {
	t, err := tty.Open()
	if err != nil {
		return nil, fmt.Errorf("open tty: %w", err)
	}
	restore := t.MustRaw()
	return &hostConsole{r: t.Input(), w: t.Output(), raw: true, tty: t, restore: restore}, nil
}

func (c *hostConsole) Read(p []byte) (int, error) {
	if c.r == nil {
		return 0, ErrNotImplemented
	}
	n, err := c.r.Read(p)
	if c.raw {
		// Raw mode delivers CR for the enter key.
		for i := range p[:n] {
			if p[i] == '\r' {
				p[i] = '\n'
			}
		}
	}
	return n, err
}

func (c *hostConsole) Write(p []byte) (int, error) {
	if c.w == nil {
		return 0, ErrNotImplemented
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.raw {
		return c.w.Write(p)
	}
	if _, err := c.w.Write(bytes.ReplaceAll(p, []byte{'\n'}, []byte{'\r', '\n'})); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *hostConsole) Close() error {
	if c.tty == nil {
		return nil
	}
	if c.restore != nil {
		_ = c.restore()
	}
	return c.tty.Close()
}
