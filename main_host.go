//go:build !tinygo

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"ember/app"
	"ember/emberos/config"
	"ember/hal"
)

func main() {
	var headless hal.HeadlessConfig
	var cfgPath string
	var headlessMode bool
	flag.BoolVar(&headlessMode, "headless", false, "Run without a window.")
	flag.IntVar(&headless.Hz, "hz", 100, "Runner loop rate in headless mode.")
	flag.Uint64Var(&headless.Ticks, "ticks", 0, "Stop after N loop iterations in headless mode (0 = run until halt).")
	flag.StringVar(&cfgPath, "config", "", "Boot configuration (YAML).")
	flag.BoolVar(&headless.Host.TTY, "tty", false, "Read the console from the terminal in raw mode.")
	flag.Parse()

	cfg := config.Default()
	if cfgPath != "" {
		var err error
		if cfg, err = config.Read(cfgPath); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
	}
	headless.Host.TickHz = cfg.TickHz

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var sys *app.System
	newApp := func(h hal.HAL) func() error {
		var step func() error
		sys, step = app.New(ctx, h, cfg)
		return step
	}

	var err error
	if headlessMode {
		err = hal.RunHeadless(ctx, newApp, headless)
	} else {
		err = hal.RunWindow(newApp, headless.Host)
	}
	if sys != nil {
		err = errors.Join(err, sys.Stop())
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
