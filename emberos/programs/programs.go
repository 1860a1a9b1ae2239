// Package programs holds the demo programs started by init.
package programs

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"ember/emberos/trap"
	"ember/emberos/usys"
)

// Program is a task body. args[0] is the program name.
type Program func(s *usys.Sys, args []string) uint64

var ErrUnknown = errors.New("programs: unknown program")

// Registry maps program names to bodies.
type Registry struct {
	mu    sync.RWMutex
	progs map[string]Program
}

// NewRegistry returns a registry holding the built-in programs.
func NewRegistry() *Registry {
	r := &Registry{progs: make(map[string]Program)}
	r.Register("hello", Hello)
	r.Register("cat", Cat)
	r.Register("asynccat", AsyncCat)
	r.Register("echo", Echo)
	r.Register("pipe", Pipe)
	r.Register("spin", Spin)
	return r
}

// Register adds or replaces a program.
func (r *Registry) Register(name string, p Program) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progs[name] = p
}

func (r *Registry) Lookup(name string) (Program, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.progs[name]
	return p, ok
}

// Names returns the registered names in order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.progs))
	for name := range r.progs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Entry binds args to their program. The returned link name is the command
// line, so identical commands share one entry address.
func (r *Registry) Entry(args []string) (string, trap.Entry, error) {
	if len(args) == 0 {
		return "", nil, fmt.Errorf("%w: empty command", ErrUnknown)
	}
	p, ok := r.Lookup(args[0])
	if !ok {
		return "", nil, fmt.Errorf("%w: %q", ErrUnknown, args[0])
	}
	args = append([]string(nil), args...)
	return strings.Join(args, " "), func(g trap.Gate) uint64 {
		return p(usys.New(g), args)
	}, nil
}

// Run spawns args as a child of s.
func (r *Registry) Run(s *usys.Sys, args []string) (int, error) {
	name, entry, err := r.Entry(args)
	if err != nil {
		return -1, err
	}
	return s.Spawn(name, entry)
}
