package wsnotify

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

// testLogger implements Logger on top of an io.Writer. Loggers derived through
// WithField share the writer and its lock.
type testLogger struct {
	out    *lockedWriter
	fields map[string]any
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

func newTestLogger(writer io.Writer) Logger {
	return &testLogger{
		out:    &lockedWriter{w: writer},
		fields: make(map[string]any),
	}
}

func (l *testLogger) WithField(key string, value any) Logger {
	newLogger := &testLogger{
		out:    l.out,
		fields: make(map[string]any, len(l.fields)+1),
	}
	for k, v := range l.fields {
		newLogger.fields[k] = v
	}
	newLogger.fields[key] = value
	return newLogger
}

func (l *testLogger) formatFields() string {
	if len(l.fields) == 0 {
		return ""
	}

	keys := make([]string, 0, len(l.fields))
	for k := range l.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, l.fields[k]))
	}
	return " [" + strings.Join(parts, ", ") + "]"
}

func (l *testLogger) log(level, msg string) {
	timestamp := time.Now().Format("2006-01-02 15:04:05")
	fmt.Fprintf(l.out, "[%s] %s%s: %s\n", timestamp, level, l.formatFields(), strings.TrimRight(msg, "\n"))
}

func (l *testLogger) Debug(args ...any)                 { l.log("DEBUG", fmt.Sprint(args...)) }
func (l *testLogger) Debugf(format string, args ...any) { l.log("DEBUG", fmt.Sprintf(format, args...)) }
func (l *testLogger) Debugln(args ...any)               { l.log("DEBUG", fmt.Sprintln(args...)) }
func (l *testLogger) Info(args ...any)                  { l.log("INFO", fmt.Sprint(args...)) }
func (l *testLogger) Infof(format string, args ...any)  { l.log("INFO", fmt.Sprintf(format, args...)) }
func (l *testLogger) Infoln(args ...any)                { l.log("INFO", fmt.Sprintln(args...)) }
func (l *testLogger) Warn(args ...any)                  { l.log("WARN", fmt.Sprint(args...)) }
func (l *testLogger) Warnf(format string, args ...any)  { l.log("WARN", fmt.Sprintf(format, args...)) }
func (l *testLogger) Warnln(args ...any)                { l.log("WARN", fmt.Sprintln(args...)) }
func (l *testLogger) Error(args ...any)                 { l.log("ERROR", fmt.Sprint(args...)) }
func (l *testLogger) Errorf(format string, args ...any) { l.log("ERROR", fmt.Sprintf(format, args...)) }
func (l *testLogger) Errorln(args ...any)               { l.log("ERROR", fmt.Sprintln(args...)) }

// logBuffer is a goroutine safe buffer to assert on log output.
type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *logBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
