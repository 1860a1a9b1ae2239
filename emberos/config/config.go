// Package config loads the EmberOS boot configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/google/shlex"
	"gopkg.in/yaml.v3"

	"ember/emberos/kernel"
)

var ErrInvalid = errors.New("config: invalid")

// Size is a byte count written either as a number or as a human string such
// as "16KiB" or "4 kB".
type Size uint64

func (s *Size) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("%w: line %d: size must be a scalar", ErrInvalid, n.Line)
	}
	v, err := humanize.ParseBytes(n.Value)
	if err != nil {
		return fmt.Errorf("%w: line %d: %v", ErrInvalid, n.Line, err)
	}
	*s = Size(v)
	return nil
}

func (s Size) MarshalYAML() (any, error) { return s.String(), nil }

func (s Size) String() string { return humanize.IBytes(uint64(s)) }

// File seeds the VFS at boot.
type File struct {
	Name string `yaml:"name"`
	Data string `yaml:"data"`
}

// Config is the boot configuration.
type Config struct {
	TimeQuantum uint32 `yaml:"time_quantum"`
	MaxTasks    int    `yaml:"max_tasks"`
	StackSize   Size   `yaml:"stack_size"`
	StackSlots  int    `yaml:"stack_slots"`
	RingSize    Size   `yaml:"ring_size"`

	// TickHz is the timer interrupt rate.
	TickHz int `yaml:"tick_hz"`
	// Debug is a ";" separated list of debug labels.
	Debug string `yaml:"debug"`

	Files []File `yaml:"files"`
	// Init lists the programs the init task starts, one command line each.
	Init []string `yaml:"init"`
}

// Default returns the built-in configuration.
func Default() *Config {
	kc := kernel.DefaultConfig()
	return &Config{
		TimeQuantum: kc.TimeQuantum,
		MaxTasks:    kc.MaxTasks,
		StackSize:   Size(kc.StackSize),
		StackSlots:  kc.StackSlots,
		RingSize:    Size(kc.RingSize),
		TickHz:      100,
		Files: []File{
			{Name: "motd", Data: "welcome to emberos\n"},
		},
		Init: []string{"hello", "cat motd"},
	}
}

// Read loads path on top of the defaults.
func Read(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	c, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Parse decodes YAML from r on top of the defaults. Unknown keys are errors.
func Parse(r io.Reader) (*Config, error) {
	c := Default()
	d := yaml.NewDecoder(r)
	d.KnownFields(true)
	if err := d.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	switch {
	case c.TimeQuantum == 0:
		return fmt.Errorf("%w: time_quantum must be positive", ErrInvalid)
	case c.MaxTasks <= 0:
		return fmt.Errorf("%w: max_tasks must be positive", ErrInvalid)
	case c.StackSlots < 0:
		return fmt.Errorf("%w: stack_slots is negative", ErrInvalid)
	case c.TickHz <= 0:
		return fmt.Errorf("%w: tick_hz must be positive", ErrInvalid)
	case c.RingSize < 64:
		return fmt.Errorf("%w: ring_size %v is below 64 B", ErrInvalid, c.RingSize)
	case c.StackSize < 1024:
		return fmt.Errorf("%w: stack_size %v is below 1 KiB", ErrInvalid, c.StackSize)
	}
	seen := make(map[string]bool)
	for _, f := range c.Files {
		if f.Name == "" {
			return fmt.Errorf("%w: file without a name", ErrInvalid)
		}
		if seen[f.Name] {
			return fmt.Errorf("%w: duplicate file %q", ErrInvalid, f.Name)
		}
		seen[f.Name] = true
	}
	return nil
}

// Kernel returns the kernel sizing.
func (c *Config) Kernel() kernel.Config {
	return kernel.Config{
		TimeQuantum: c.TimeQuantum,
		MaxTasks:    c.MaxTasks,
		StackSize:   int(c.StackSize),
		StackSlots:  c.StackSlots,
		RingSize:    int(c.RingSize),
	}
}

// Commands splits the init lines into argument vectors. Blank lines are
// skipped.
func (c *Config) Commands() ([][]string, error) {
	var out [][]string
	for i, line := range c.Init {
		args, err := shlex.Split(line)
		if err != nil {
			return nil, fmt.Errorf("%w: init[%d]: %v", ErrInvalid, i, err)
		}
		if len(args) > 0 {
			out = append(out, args)
		}
	}
	return out, nil
}
