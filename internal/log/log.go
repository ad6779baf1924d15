// Package log wires the go-logging backend used by every component of the
// device.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/op/go-logging.v1"
)

const logFormat = "%{time:15:04:05.000} %{level:.4s} %{module}: %{message}"

// Backend is a leveled log backend writing to stdout, a file, or nowhere.
type Backend struct {
	logging.LeveledBackend

	w io.Writer
	c io.Closer
}

// New opens a backend. An empty file logs to stdout; disable discards
// everything.
func New(file, level string, disable bool) (*Backend, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	b := &Backend{}
	switch {
	case disable:
		b.w = io.Discard
	case file == "":
		b.w = os.Stdout
	default:
		f, err := os.OpenFile(file, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
		if err != nil {
			return nil, fmt.Errorf("log: failed to open %s: %w", file, err)
		}
		b.w, b.c = f, f
	}
	formatted := logging.NewBackendFormatter(logging.NewLogBackend(b.w, "", 0),
		logging.MustStringFormatter(logFormat))
	b.LeveledBackend = logging.AddModuleLevel(formatted)
	b.SetLevel(lvl, "")
	return b, nil
}

// NewWriter returns a backend logging every level to w.
func NewWriter(w io.Writer) *Backend {
	b := &Backend{w: w}
	formatted := logging.NewBackendFormatter(logging.NewLogBackend(w, "", 0),
		logging.MustStringFormatter(logFormat))
	b.LeveledBackend = logging.AddModuleLevel(formatted)
	b.SetLevel(logging.DEBUG, "")
	return b
}

// Discard returns a backend that drops every record.
func Discard() *Backend {
	b, _ := New("", "ERROR", true)
	return b
}

// GetLogger returns a per-module logger that writes to the backend.
func (b *Backend) GetLogger(module string) *logging.Logger {
	l := logging.MustGetLogger(module)
	l.SetBackend(b)
	return l
}

// Close releases the log file, if any.
func (b *Backend) Close() error {
	if b.c == nil {
		return nil
	}
	return b.c.Close()
}

// ParseLevel maps ERROR, WARNING, NOTICE, INFO and DEBUG (any case) to a
// go-logging level.
func ParseLevel(l string) (logging.Level, error) {
	switch strings.ToUpper(l) {
	case "ERROR", "WARNING", "NOTICE", "INFO", "DEBUG":
		return logging.LogLevel(strings.ToUpper(l))
	default:
		return logging.CRITICAL, fmt.Errorf("log: invalid level: '%v'", l)
	}
}
