// Package logger provides the leveled logger injected into the service and
// HTTP layers.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
)

// Logger is any leveled logger. Args are alternating key/value pairs.
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
}

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = map[Level]string{
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARN",
	LevelError: "ERROR",
}

// ParseLevel maps "debug", "info", "warn" or "error" to a Level; anything else is info.
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	}
	return LevelInfo
}

// Std writes through a standard library logger.
type Std struct {
	std   *log.Logger
	min   Level
	scope string
}

var _ Logger = (*Std)(nil)

func NewStd(w io.Writer, min Level) *Std {
	return &Std{std: log.New(w, "", log.LstdFlags), min: min}
}

// Default logs info and above to stderr.
func Default() *Std { return NewStd(os.Stderr, LevelInfo) }

// Discard drops everything. Used by tests.
func Discard() *Std { return NewStd(io.Discard, LevelError+1) }

// Named returns a copy that prefixes every line with [scope].
func (l *Std) Named(scope string) *Std {
	c := *l
	c.scope = scope
	return &c
}

func (l *Std) Debug(msg string, kv ...any) { l.print(LevelDebug, msg, kv) }
func (l *Std) Info(msg string, kv ...any)  { l.print(LevelInfo, msg, kv) }
func (l *Std) Warn(msg string, kv ...any)  { l.print(LevelWarn, msg, kv) }
func (l *Std) Error(msg string, kv ...any) { l.print(LevelError, msg, kv) }

func (l *Std) print(lvl Level, msg string, kv []any) {
	if lvl < l.min {
		return
	}
	var b strings.Builder
	b.WriteString(levelNames[lvl])
	b.WriteByte(' ')
	if l.scope != "" {
		b.WriteString("[" + l.scope + "] ")
	}
	b.WriteString(msg)
	for i := 0; i < len(kv); i += 2 {
		if i+1 < len(kv) {
			fmt.Fprintf(&b, " %v=%v", kv[i], kv[i+1])
		} else {
			fmt.Fprintf(&b, " %v", kv[i])
		}
	}
	l.std.Println(b.String())
}

// fields turns key/value pairs into the map form error reporters expect.
func fields(kv []any) map[string]any {
	m := make(map[string]any, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		m[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return m
}
