//go:build !tinygo

package arch

import (
	"runtime"
	"sync/atomic"

	"ember/emberos/mem"
)

// Host runs every context on its own goroutine and passes a single baton
// between them, so exactly one context executes at a time.
type Host struct {
	live atomic.Int32
}

// NewHost returns the host switcher.
func NewHost() *Host {
	return &Host{}
}

type hostContext struct {
	wake  chan bool // true: run, false: tear down
	entry func()
	top   uintptr
}

func (c *hostContext) StackTop() uintptr { return c.top }

// NewContext parks a goroutine until the context is first resumed.
func (h *Host) NewContext(stack mem.Block, entry func()) Context {
	c := &hostContext{wake: make(chan bool, 1), entry: entry, top: stack.Top()}
	h.live.Add(1)
	go h.trampoline(c)
	return c
}

func (h *Host) trampoline(c *hostContext) {
	defer h.live.Add(-1)
	if !<-c.wake {
		return
	}
	c.entry()
}

func (h *Host) Switch(from, to Context) {
	f, t := from.(*hostContext), to.(*hostContext)
	t.wake <- true
	if !<-f.wake {
		runtime.Goexit()
	}
}

func (h *Host) SwitchFirst(to Context) {
	to.(*hostContext).wake <- true
}

func (h *Host) Exit(to Context) {
	if to != nil {
		to.(*hostContext).wake <- true
	}
	runtime.Goexit()
}

func (h *Host) Discard(c Context) {
	select {
	case c.(*hostContext).wake <- false:
	default:
	}
}

// Live returns the number of contexts whose goroutine has not exited.
func (h *Host) Live() int { return int(h.live.Load()) }
