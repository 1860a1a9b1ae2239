//go:build !tinygo

package arch

import (
	"testing"
	"time"

	"ember/emberos/mem"
)

func waitLive(t *testing.T, h *Host, want int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for h.Live() != want {
		if time.Now().After(deadline) {
			t.Fatalf("Live() = %d, want %d", h.Live(), want)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestHostPingPong(t *testing.T) {
	h := NewHost()
	arena := mem.NewArena(2, 256)
	sa, _ := arena.Alloc()
	sb, _ := arena.Alloc()

	var trace []string
	done := make(chan struct{})
	var a, b Context
	a = h.NewContext(sa, func() {
		trace = append(trace, "a1")
		h.Switch(a, b)
		trace = append(trace, "a2")
		h.Switch(a, b)
		trace = append(trace, "a3")
		close(done)
		h.Exit(nil)
	})
	b = h.NewContext(sb, func() {
		trace = append(trace, "b1")
		h.Switch(b, a)
		trace = append(trace, "b2")
		h.Exit(a)
	})

	h.SwitchFirst(a)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for contexts")
	}

	want := []string{"a1", "b1", "a2", "b2", "a3"}
	if len(trace) != len(want) {
		t.Fatalf("trace = %v, want %v", trace, want)
	}
	for i := range want {
		if trace[i] != want[i] {
			t.Fatalf("trace = %v, want %v", trace, want)
		}
	}
	waitLive(t, h, 0)
}

func TestHostDiscard(t *testing.T) {
	h := NewHost()
	arena := mem.NewArena(1, 256)
	s, _ := arena.Alloc()

	ran := false
	c := h.NewContext(s, func() { ran = true })
	if got := c.StackTop(); got != s.Top() {
		t.Fatalf("StackTop() = %#x, want %#x", got, s.Top())
	}
	h.Discard(c)
	waitLive(t, h, 0)
	if ran {
		t.Fatal("discarded context ran its entry")
	}
}
