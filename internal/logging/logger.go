// Package logging is the leveled logger shared by the tablet engine, the
// mini cluster and the fuzz harness.
//
// Lines look like
//
//	2025/12/30 18:45:13 INFO [flush] flushed MemRowSet 3 into rowset 7
//
// where the bracketed component comes from one of the NS prefixes below.
// Fatalf never exits: it logs and hands the message to the FatalHandler,
// and a tablet that reports a fatal error moves to its failed state.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"reflect"
	"strings"
	"sync/atomic"
)

// Component prefixes.
const (
	NSTablet  = "[tablet] "
	NSFlush   = "[flush] "
	NSCompact = "[compact] "
	NSWAL     = "[wal] "
	NSMaint   = "[maint] "
	NSCluster = "[cluster] "
	NSFuzz    = "[fuzz] "
)

// Level is a logging verbosity. Higher levels log more.
type Level int

const (
	LevelError Level = iota
	LevelWarn
	LevelInfo
	LevelDebug
)

var levelNames = [...]string{"ERROR", "WARN", "INFO", "DEBUG"}

// String returns the upper-case level name.
func (l Level) String() string {
	if l < 0 || int(l) >= len(levelNames) {
		return fmt.Sprintf("Level(%d)", int(l))
	}
	return levelNames[l]
}

// ParseLevel maps a name such as "warn" or "DEBUG" to a Level.
func ParseLevel(s string) (Level, error) {
	for i, name := range levelNames {
		if strings.EqualFold(name, s) {
			return Level(i), nil
		}
	}
	return LevelInfo, fmt.Errorf("logging: unknown level %q", s)
}

// Logger is implemented by anything the engine can log through. It must be
// safe for concurrent use since maintenance runs on its own goroutine.
type Logger interface {
	Errorf(format string, args ...any)
	Warnf(format string, args ...any)
	Infof(format string, args ...any)
	Debugf(format string, args ...any)
	Fatalf(format string, args ...any)
}

// FatalHandler receives the message of every Fatalf call. It must not call
// Fatalf itself.
type FatalHandler func(msg string)

// DefaultLogger filters by level and writes through a log.Logger.
type DefaultLogger struct {
	out   *log.Logger
	level Level
	fatal atomic.Pointer[FatalHandler]
}

// NewDefaultLogger logs to stderr.
func NewDefaultLogger(level Level) *DefaultLogger { return NewLogger(os.Stderr, level) }

// NewLogger logs to w.
func NewLogger(w io.Writer, level Level) *DefaultLogger {
	return &DefaultLogger{out: log.New(w, "", log.LstdFlags), level: level}
}

// SetFatalHandler installs h to receive Fatalf messages.
func (l *DefaultLogger) SetFatalHandler(h FatalHandler) { l.fatal.Store(&h) }

// Level returns the level the logger was built with.
func (l *DefaultLogger) Level() Level { return l.level }

// Errorf logs at ERROR.
func (l *DefaultLogger) Errorf(format string, args ...any) { l.logf(LevelError, format, args) }

// Warnf logs at WARN.
func (l *DefaultLogger) Warnf(format string, args ...any) { l.logf(LevelWarn, format, args) }

// Infof logs at INFO.
func (l *DefaultLogger) Infof(format string, args ...any) { l.logf(LevelInfo, format, args) }

// Debugf logs at DEBUG.
func (l *DefaultLogger) Debugf(format string, args ...any) { l.logf(LevelDebug, format, args) }

// Fatalf is written regardless of level.
func (l *DefaultLogger) Fatalf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	_ = l.out.Output(2, "FATAL "+msg)
	if h := l.fatal.Load(); h != nil {
		(*h)(msg)
	}
}

func (l *DefaultLogger) logf(level Level, format string, args []any) {
	if level > l.level {
		return
	}
	_ = l.out.Output(3, level.String()+" "+fmt.Sprintf(format, args...))
}

// IsNil reports whether l is nil or a nil pointer in an interface.
func IsNil(l Logger) bool {
	if l == nil {
		return true
	}
	v := reflect.ValueOf(l)
	return v.Kind() == reflect.Pointer && v.IsNil()
}

// OrDefault returns l, or a WARN-level stderr logger when l is unusable.
func OrDefault(l Logger) Logger {
	if IsNil(l) {
		return NewDefaultLogger(LevelWarn)
	}
	return l
}
