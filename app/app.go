// Package app boots EmberOS on a HAL: it seeds the VFS, builds the console
// and the kernel, starts init and runs everything until the kernel halts.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"ember/emberos/arch"
	"ember/emberos/config"
	"ember/emberos/debug"
	"ember/emberos/initrd"
	"ember/emberos/kernel"
	"ember/emberos/programs"
	"ember/emberos/services/console"
	"ember/emberos/vfs"
	"ember/hal"
	"ember/internal/buildinfo"
)

// System is one booted OS instance.
type System struct {
	h   hal.HAL
	cfg *config.Config
	k   *kernel.Kernel
	con *console.Service
	reg *programs.Registry

	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Boot prepares the system without starting the scheduler.
func Boot(h hal.HAL, cfg *config.Config) (*System, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if l := h.Logger(); l != nil {
		debug.SetOutput(l)
	}
	debug.AddLabels(cfg.Debug)
	installPanicHandler(h)

	cmds, err := cfg.Commands()
	if err != nil {
		return nil, err
	}
	fs := vfs.New()
	seeded, err := initrd.Seed(fs, h.Flash())
	if err != nil {
		return nil, err
	}
	for _, f := range cfg.Files {
		if _, ok := fs.Stat(f.Name); ok {
			if err := fs.Delete(f.Name); err != nil {
				return nil, fmt.Errorf("boot: replace %q: %w", f.Name, err)
			}
		}
		if err := fs.Create(f.Name, []byte(f.Data)); err != nil {
			return nil, fmt.Errorf("boot: seed %q: %w", f.Name, err)
		}
	}

	var disp hal.Display
	if d := h.Display(); d != nil && d.Framebuffer() != nil {
		disp = d
	}
	s := &System{
		h:    h,
		cfg:  cfg,
		con:  console.New(h.Console(), disp),
		reg:  programs.NewRegistry(),
		done: make(chan struct{}),
	}
	kc := cfg.Kernel()
	s.k = kernel.New(kc, kernel.Deps{
		Switcher: arch.NewHost(),
		FS:       fs,
		Console:  s.con,
	})

	s.reg.Register("init", programs.Init(s.reg, cmds))
	name, entry, err := s.reg.Entry([]string{"init"})
	if err != nil {
		return nil, err
	}
	if _, err := s.k.Spawn(name, entry, true); err != nil {
		return nil, fmt.Errorf("boot: init: %w", err)
	}

	fmt.Fprintf(s.con, "EmberOS %s: %d tasks, %s stacks, %d files (%d from initrd)\n",
		buildinfo.Short(), kc.MaxTasks, humanize.IBytes(uint64(kc.StackSize)), len(fs.List()), seeded)
	debug.DPrintf(debug.BOOT, "config %+v", kc)
	return s, nil
}

func (s *System) Kernel() *kernel.Kernel { return s.k }

func (s *System) Console() *console.Service { return s.con }

func (s *System) Programs() *programs.Registry { return s.reg }

// Start runs the kernel, the tick pump and the console input pumps. The
// returned channel is closed once the kernel has halted and the pumps are
// done.
func (s *System) Start(ctx context.Context) <-chan struct{} {
	ctx, s.cancel = context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer s.cancel()
		return s.k.Start(gctx)
	})
	if t := s.h.Time(); t != nil {
		if ticks := t.Ticks(); ticks != nil {
			g.Go(func() error {
				for {
					select {
					case <-gctx.Done():
						return nil
					case <-ticks:
						s.k.Vector().Raise()
					}
				}
			})
		}
	}
	var kbd hal.Keyboard
	if in := s.h.Input(); in != nil {
		kbd = in.Keyboard()
	}
	g.Go(func() error { return s.con.PumpKeys(gctx, kbd) })

	// Serial reads block, so this pump is left out of the group.
	go func() {
		if err := s.con.PumpSerial(); err != nil {
			debug.DPrintf(debug.CONSOLE, "serial input: %v", err)
		}
	}()

	go func() {
		err := g.Wait()
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		s.err = err
		_ = s.con.Flush()
		close(s.done)
	}()
	return s.done
}

// Stop cancels the system and waits for it to wind down.
func (s *System) Stop() error {
	if s.cancel == nil {
		return nil
	}
	s.cancel()
	<-s.done
	return s.err
}

// Step is the runner hook: it presents the console and reports hal.ErrHalt
// (or the kernel error) once the system is done.
func (s *System) Step() error {
	select {
	case <-s.done:
		if s.err != nil {
			return s.err
		}
		return hal.ErrHalt
	default:
	}
	return s.con.Flush()
}

// New boots and starts the system for a hal runner. A boot error is
// reported by the first step.
func New(ctx context.Context, h hal.HAL, cfg *config.Config) (*System, func() error) {
	s, err := Boot(h, cfg)
	if err != nil {
		return nil, func() error { return err }
	}
	s.Start(ctx)
	return s, s.Step
}
