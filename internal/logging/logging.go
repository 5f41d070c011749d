// Package logging provides leveled structured logging, either as plain
// key=value text for development or as one JSON object per line.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"sort"
	"sync"
	"time"
)

// Level represents the severity of a log entry
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

var levelRank = map[Level]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// ParseLevel maps a level name to a Level, defaulting to info.
func ParseLevel(s string) Level {
	switch Level(s) {
	case LevelDebug, LevelInfo, LevelWarn, LevelError:
		return Level(s)
	default:
		return LevelInfo
	}
}

// Logger writes structured entries at or above its minimum level.
type Logger struct {
	mu       sync.Mutex
	output   io.Writer
	minLevel Level
	json     bool
}

// Entry is one structured log line.
type Entry struct {
	Level   Level                  `json:"level"`
	Time    string                 `json:"time"`
	Message string                 `json:"msg"`
	Fields  map[string]interface{} `json:"fields,omitempty"`
	Error   string                 `json:"error,omitempty"`
	Caller  string                 `json:"caller,omitempty"`
}

// New returns a Logger writing to w.
func New(w io.Writer, minLevel Level, jsonFormat bool) *Logger {
	return &Logger{output: w, minLevel: minLevel, json: jsonFormat}
}

var defaultLogger = fromEnv()

func fromEnv() *Logger {
	jsonFormat := os.Getenv("CLIP_LOG_FORMAT") == "json" || os.Getenv("CLIP_ENV") == "production"
	return New(os.Stdout, ParseLevel(os.Getenv("CLIP_LOG_LEVEL")), jsonFormat)
}

// Default returns the package-level logger.
func Default() *Logger {
	return defaultLogger
}

// SetDefault replaces the package-level logger.
func SetDefault(l *Logger) {
	defaultLogger = l
}

func (l *Logger) enabled(level Level) bool {
	return levelRank[level] >= levelRank[l.minLevel]
}

// caller returns file:line of the frame skip levels up.
func caller(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return ""
	}
	for i := len(file) - 1; i > 0; i-- {
		if file[i] == '/' {
			file = file[i+1:]
			break
		}
	}
	return fmt.Sprintf("%s:%d", file, line)
}

func (l *Logger) log(level Level, msg string, fields map[string]interface{}, err error) {
	if !l.enabled(level) {
		return
	}

	entry := Entry{
		Level:   level,
		Time:    time.Now().UTC().Format(time.RFC3339),
		Message: msg,
		Fields:  fields,
		Caller:  caller(4),
	}
	if err != nil {
		entry.Error = err.Error()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.json {
		data, _ := json.Marshal(entry)
		fmt.Fprintln(l.output, string(data))
		return
	}

	fmt.Fprintf(l.output, "[%s] %s %s", entry.Level, entry.Time, entry.Message)
	keys := make([]string, 0, len(entry.Fields))
	for k := range entry.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(l.output, " %s=%v", k, entry.Fields[k])
	}
	if entry.Error != "" {
		fmt.Fprintf(l.output, " error=%q", entry.Error)
	}
	fmt.Fprintln(l.output)
}

func (l *Logger) Debug(msg string, fields map[string]interface{}) {
	l.log(LevelDebug, msg, fields, nil)
}

func (l *Logger) Info(msg string, fields map[string]interface{}) {
	l.log(LevelInfo, msg, fields, nil)
}

func (l *Logger) Warn(msg string, fields map[string]interface{}) {
	l.log(LevelWarn, msg, fields, nil)
}

func (l *Logger) Error(msg string, fields map[string]interface{}, err error) {
	l.log(LevelError, msg, fields, err)
}

// Package-level helpers write through the default logger.

func Debug(msg string, fields map[string]interface{}) {
	defaultLogger.log(LevelDebug, msg, fields, nil)
}

func Info(msg string, fields map[string]interface{}) {
	defaultLogger.log(LevelInfo, msg, fields, nil)
}

func Warn(msg string, fields map[string]interface{}) {
	defaultLogger.log(LevelWarn, msg, fields, nil)
}

func Error(msg string, fields map[string]interface{}, err error) {
	defaultLogger.log(LevelError, msg, fields, err)
}
