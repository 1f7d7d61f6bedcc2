package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level represents a logging severity
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
	FATAL
)

// String returns the string representation of Level
func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case FATAL:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a configuration string onto a Level. Unknown values yield INFO.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DEBUG
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	case "fatal":
		return FATAL
	default:
		return INFO
	}
}

// Entry is a single structured log record
type Entry struct {
	Timestamp string         `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Service   string         `json:"service,omitempty"`
	Component string         `json:"component,omitempty"`
	Model     string         `json:"model,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	Error     string         `json:"error,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
	File      string         `json:"file,omitempty"`
	Line      int            `json:"line,omitempty"`
}

// Logger writes leveled, structured log lines as text or JSON
type Logger struct {
	mu      sync.RWMutex
	level   Level
	format  string
	output  io.Writer
	service string
	exit    func(int)
}

// NewLogger creates a logger writing text at INFO level to stdout
func NewLogger() *Logger {
	return &Logger{
		level:   INFO,
		format:  "text",
		output:  os.Stdout,
		service: "forecastd",
		exit:    os.Exit,
	}
}

var (
	global     *Logger
	globalOnce sync.Once
)

// GetLogger returns the process-wide logger
func GetLogger() *Logger {
	globalOnce.Do(func() {
		global = NewLogger()
	})
	return global
}

// Init configures the process-wide logger from configuration values
func Init(level, format string) *Logger {
	l := GetLogger()
	l.SetLevel(ParseLevel(level))
	l.SetFormat(format)
	return l
}

// SetLevel sets the minimum level that is written
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// SetFormat sets the output format ("json" or "text")
func (l *Logger) SetFormat(format string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if strings.ToLower(format) == "json" {
		l.format = "json"
	} else {
		l.format = "text"
	}
}

// SetOutput sets the destination writer
func (l *Logger) SetOutput(output io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.output = output
}

// SetService sets the service name stamped on every entry
func (l *Logger) SetService(service string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.service = service
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, fields ...Field) {
	l.log(DEBUG, msg, fields...)
}

// Info logs an info message
func (l *Logger) Info(msg string, fields ...Field) {
	l.log(INFO, msg, fields...)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string, fields ...Field) {
	l.log(WARN, msg, fields...)
}

// Error logs an error message
func (l *Logger) Error(msg string, err error, fields ...Field) {
	if err != nil {
		fields = append(fields, Err(err))
	}
	l.log(ERROR, msg, fields...)
}

// Fatal logs a fatal message and exits the process
func (l *Logger) Fatal(msg string, err error, fields ...Field) {
	if err != nil {
		fields = append(fields, Err(err))
	}
	l.log(FATAL, msg, fields...)
	l.exit(1)
}

// With returns a logger that appends fields to every entry
func (l *Logger) With(fields ...Field) *FieldLogger {
	return &FieldLogger{logger: l, fields: fields}
}

func (l *Logger) log(level Level, msg string, fields ...Field) {
	l.mu.RLock()
	if level < l.level {
		l.mu.RUnlock()
		return
	}
	format, service := l.format, l.service
	l.mu.RUnlock()

	entry := newEntry(level, msg, service, fields...)

	var line string
	if format == "json" {
		if b, err := json.Marshal(entry); err == nil {
			line = string(b)
		} else {
			line = fmt.Sprintf("failed to marshal log entry: %v", err)
		}
	} else {
		line = formatText(entry)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.output, line)
}

func newEntry(level Level, msg, service string, fields ...Field) *Entry {
	entry := &Entry{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Level:     level.String(),
		Message:   msg,
		Service:   service,
		Fields:    make(map[string]any),
	}

	// newEntry <- log <- Info/Warn/... <- caller
	if _, file, line, ok := runtime.Caller(3); ok {
		entry.File = filepath.Base(file)
		entry.Line = line
	}

	for _, f := range fields {
		f.Apply(entry)
	}
	return entry
}

func formatText(entry *Entry) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s [%s] %s", entry.Timestamp, entry.Level, entry.Message)
	if entry.Component != "" {
		fmt.Fprintf(&b, " component=%s", entry.Component)
	}
	if entry.Model != "" {
		fmt.Fprintf(&b, " model=%s", entry.Model)
	}
	if entry.RequestID != "" {
		fmt.Fprintf(&b, " request_id=%s", entry.RequestID)
	}
	if entry.Error != "" {
		fmt.Fprintf(&b, " error=%q", entry.Error)
	}

	keys := make([]string, 0, len(entry.Fields))
	for k := range entry.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, entry.Fields[k])
	}

	if entry.File != "" && entry.Line != 0 {
		fmt.Fprintf(&b, " (%s:%d)", entry.File, entry.Line)
	}
	return b.String()
}

// FieldLogger carries a fixed set of fields
type FieldLogger struct {
	logger *Logger
	fields []Field
}

func (fl *FieldLogger) merge(fields []Field) []Field {
	all := make([]Field, 0, len(fl.fields)+len(fields))
	all = append(all, fl.fields...)
	return append(all, fields...)
}

// Debug logs a debug message with the carried fields
func (fl *FieldLogger) Debug(msg string, fields ...Field) {
	fl.logger.log(DEBUG, msg, fl.merge(fields)...)
}

// Info logs an info message with the carried fields
func (fl *FieldLogger) Info(msg string, fields ...Field) {
	fl.logger.log(INFO, msg, fl.merge(fields)...)
}

// Warn logs a warning with the carried fields
func (fl *FieldLogger) Warn(msg string, fields ...Field) {
	fl.logger.log(WARN, msg, fl.merge(fields)...)
}

// Error logs an error with the carried fields
func (fl *FieldLogger) Error(msg string, err error, fields ...Field) {
	if err != nil {
		fields = append(fields, Err(err))
	}
	fl.logger.log(ERROR, msg, fl.merge(fields)...)
}
