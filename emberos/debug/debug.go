// Package debug is label-selected kernel debug output.
//
// Output is controlled by the EMBERDEBUG environment variable (or the boot
// config), a list of labels such as "SCHED;ASYNC".
package debug

import (
	"bytes"
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"ember/hal"
)

const envLabels = "EMBERDEBUG"

var (
	mu     sync.RWMutex
	labels = map[Tselector]bool{}
	logger *zap.Logger
)

func init() {
	SetLabels(os.Getenv(envLabels))
	logger = newLogger(zapcore.Lock(os.Stderr))
}

// SetLabels replaces the enabled labels with the ";" separated list s.
func SetLabels(s string) {
	m := make(map[Tselector]bool)
	for _, l := range strings.Split(s, ";") {
		if l = strings.TrimSpace(l); l != "" {
			m[Tselector(l)] = true
		}
	}
	mu.Lock()
	labels = m
	mu.Unlock()
}

// AddLabels enables the labels in s in addition to those already set.
func AddLabels(s string) {
	mu.Lock()
	for _, l := range strings.Split(s, ";") {
		if l = strings.TrimSpace(l); l != "" {
			labels[Tselector(l)] = true
		}
	}
	mu.Unlock()
}

// IsLabelSet reports whether output for label is enabled.
func IsLabelSet(label Tselector) bool {
	if label == ALWAYS {
		return true
	}
	if label == NEVER {
		return false
	}
	mu.RLock()
	defer mu.RUnlock()
	return labels[label]
}

// SetOutput sends debug lines to l, one WriteLineBytes call per line.
func SetOutput(l hal.Logger) {
	z := newLogger(zapcore.AddSync(lineWriter{l: l}))
	mu.Lock()
	logger = z
	mu.Unlock()
}

func newLogger(ws zapcore.WriteSyncer) *zap.Logger {
	enc := zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		MessageKey:     "msg",
		LevelKey:       "level",
		NameKey:        "label",
		CallerKey:      "caller",
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeName:     zapcore.FullNameEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		LineEnding:     zapcore.DefaultLineEnding,
	})
	return zap.New(zapcore.NewCore(enc, ws, zapcore.DebugLevel))
}

func current() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// DPrintf logs under label if the label is enabled.
func DPrintf(label Tselector, format string, v ...any) {
	if !IsLabelSet(label) {
		return
	}
	current().Named(string(label)).Info(fmt.Sprintf(format, v...))
}

// DFatalf logs with caller details and panics with the message.
func DFatalf(format string, v ...any) {
	msg := fmt.Sprintf(format, v...)
	pc, file, line, ok := runtime.Caller(1)
	fn := runtime.FuncForPC(pc)
	if ok && fn != nil {
		current().Error("FATAL "+msg, zap.String("func", fn.Name()), zap.String("at", fmt.Sprintf("%s:%d", file, line)))
	} else {
		current().Error("FATAL (missing details) " + msg)
	}
	panic(msg)
}

type lineWriter struct {
	l hal.Logger
}

func (w lineWriter) Write(p []byte) (int, error) {
	for _, line := range bytes.Split(bytes.TrimRight(p, "\n"), []byte{'\n'}) {
		w.l.WriteLineBytes(line)
	}
	return len(p), nil
}
