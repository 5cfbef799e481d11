// Package logging provides the small leveled logger used across the research
// pipeline. Components accept the Logger interface so tests can capture or
// silence output.
package logging

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
)

// Logger is the minimal leveled logging interface.
type Logger interface {
	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})
}

var (
	debugColor = color.New(color.FgHiBlack).SprintFunc()
	infoColor  = color.New(color.FgCyan).SprintFunc()
	warnColor  = color.New(color.FgYellow).SprintFunc()
	errorColor = color.New(color.FgRed).SprintFunc()
)

type writerLogger struct {
	mu        sync.Mutex
	out       io.Writer
	component string
	debug     bool
}

// New returns a logger that writes leveled, timestamped lines to out. Debug
// lines are dropped unless debug is true.
func New(out io.Writer, component string, debug bool) Logger {
	if out == nil {
		out = os.Stderr
	}
	return &writerLogger{out: out, component: component, debug: debug}
}

func (l *writerLogger) log(level, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ts := time.Now().Format("15:04:05.000")
	fmt.Fprintf(l.out, "%s %s [%s] %s\n", ts, level, l.component, fmt.Sprintf(format, args...))
}

func (l *writerLogger) Debug(format string, args ...interface{}) {
	if !l.debug {
		return
	}
	l.log(debugColor("DEBUG"), format, args...)
}

func (l *writerLogger) Info(format string, args ...interface{}) {
	l.log(infoColor("INFO"), format, args...)
}

func (l *writerLogger) Warn(format string, args ...interface{}) {
	l.log(warnColor("WARN"), format, args...)
}

func (l *writerLogger) Error(format string, args ...interface{}) {
	l.log(errorColor("ERROR"), format, args...)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

// Nop returns a logger that discards everything.
func Nop() Logger { return nopLogger{} }

// OrNop returns l, or a no-op logger when l is nil. Call sites can log
// unconditionally without nil checks.
func OrNop(l Logger) Logger {
	if l == nil {
		return Nop()
	}
	return l
}
