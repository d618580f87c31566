package logger

import (
	"encoding/json"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Hook receives every entry that passes the level filter.
type Hook func(entry map[string]any)

type core struct {
	mu    sync.Mutex
	out   io.Writer
	level atomic.Value
	hooks []Hook
}

// Logger writes one JSON object per line. Loggers derived with With share
// the writer, level and hooks of their parent.
type Logger struct {
	c      *core
	fields map[string]any
}

func New(level string) *Logger {
	return NewWithWriter(level, os.Stdout)
}

func NewWithWriter(level string, out io.Writer) *Logger {
	c := &core{out: out}
	c.level.Store(normalizeLevel(level))
	return &Logger{c: c}
}

func (l *Logger) SetLevel(level string) {
	if l == nil {
		return
	}
	l.c.level.Store(normalizeLevel(level))
}

func (l *Logger) Level() string {
	if l == nil {
		return ""
	}
	return l.c.level.Load().(string)
}

// With returns a child logger that adds fields to every entry.
func (l *Logger) With(fields map[string]any) *Logger {
	if l == nil {
		return nil
	}
	merged := make(map[string]any, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &Logger{c: l.c, fields: merged}
}

func (l *Logger) AddHook(h Hook) {
	if l == nil || h == nil {
		return
	}
	l.c.mu.Lock()
	l.c.hooks = append(l.c.hooks, h)
	l.c.mu.Unlock()
}

func (l *Logger) Debug(msg string, fields map[string]any) {
	l.log("debug", msg, fields)
}

func (l *Logger) Info(msg string, fields map[string]any) {
	l.log("info", msg, fields)
}

func (l *Logger) Warn(msg string, fields map[string]any) {
	l.log("warn", msg, fields)
}

func (l *Logger) Error(msg string, fields map[string]any) {
	l.log("error", msg, fields)
}

// Enabled reports whether an entry at level would be written. Callers use it
// to skip building fields on hot paths.
func (l *Logger) Enabled(level string) bool {
	if l == nil {
		return false
	}
	return shouldLog(level, l.Level())
}

func (l *Logger) log(level string, msg string, fields map[string]any) {
	if !l.Enabled(level) {
		return
	}

	entry := map[string]any{
		"ts":    time.Now().Format(time.RFC3339),
		"level": level,
		"msg":   msg,
	}
	for k, v := range l.fields {
		entry[k] = v
	}
	for k, v := range fields {
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		entry[k] = v
	}

	b, err := json.Marshal(entry)
	if err != nil {
		return
	}

	l.c.mu.Lock()
	_, _ = l.c.out.Write(append(b, '\n'))
	hooks := l.c.hooks
	l.c.mu.Unlock()

	for _, h := range hooks {
		h(entry)
	}
}

func normalizeLevel(level string) string {
	if _, ok := levelOrder[level]; ok {
		return level
	}
	return "info"
}

var levelOrder = map[string]int{
	"debug": 0,
	"info":  1,
	"warn":  2,
	"error": 3,
}

// ValidLevel reports whether level is one the logger understands.
func ValidLevel(level string) bool {
	_, ok := levelOrder[level]
	return ok
}

func shouldLog(level string, current string) bool {
	return levelOrder[level] >= levelOrder[current]
}
