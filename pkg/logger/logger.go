// Package logger provides the agent's leveled key/value logging. Every
// subsystem tags its lines with a component segment, and job-scoped code
// carries the job id so one job's spawn, stream, and callback lines can
// be followed through an interleaved log.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// LogLevel represents the severity level of a log message
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR"}

func (l LogLevel) String() string {
	if l < DEBUG || l > ERROR {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// ParseLevel maps a configuration string onto a level
func ParseLevel(level string) (LogLevel, error) {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return DEBUG, nil
	case "INFO":
		return INFO, nil
	case "WARN", "WARNING":
		return WARN, nil
	case "ERROR":
		return ERROR, nil
	default:
		return INFO, fmt.Errorf("unknown log level: %s", level)
	}
}

// Field is one key/value pair of logging context
type Field struct {
	Key   string
	Value interface{}
}

// Logger writes agent log lines. Context fields accumulate in insertion
// order, so the lines of one subsystem line up when read side by side.
type Logger struct {
	level     LogLevel
	out       *log.Logger
	component string
	jobID     int64
	fields    []Field
}

type Config struct {
	Level  LogLevel
	Output io.Writer
}

func New() *Logger {
	return NewWithConfig(Config{Level: INFO})
}

func NewWithConfig(config Config) *Logger {
	w := config.Output
	if w == nil {
		w = os.Stdout
	}
	return &Logger{
		level: config.Level,
		out:   log.New(w, "", 0),
	}
}

// clone shares the sink and copies the context
func (l *Logger) clone() *Logger {
	dup := *l
	dup.fields = append([]Field(nil), l.fields...)
	return &dup
}

// WithComponent names the subsystem a line originates from. The
// component renders as its own segment rather than a field.
func (l *Logger) WithComponent(name string) *Logger {
	dup := l.clone()
	dup.component = name
	return dup
}

// WithJob attaches the job id that every line of one job's lifecycle
// carries, from spawn through drain to the completion callback.
func (l *Logger) WithJob(id int64) *Logger {
	dup := l.clone()
	dup.jobID = id
	return dup
}

// WithField adds one context field to every line of the returned logger
func (l *Logger) WithField(key string, value interface{}) *Logger {
	dup := l.clone()
	dup.fields = append(dup.fields, Field{Key: key, Value: value})
	return dup
}

// WithFields adds alternating key/value pairs as context fields
func (l *Logger) WithFields(keyVals ...interface{}) *Logger {
	dup := l.clone()
	dup.fields = append(dup.fields, pairFields(keyVals)...)
	return dup
}

// pairFields folds an alternating key/value list into fields; a
// dangling key without a value is dropped.
func pairFields(keyVals []interface{}) []Field {
	fields := make([]Field, 0, len(keyVals)/2)
	for i := 0; i+1 < len(keyVals); i += 2 {
		fields = append(fields, Field{
			Key:   fmt.Sprintf("%v", keyVals[i]),
			Value: keyVals[i+1],
		})
	}
	return fields
}

func (l *Logger) Debug(msg string, keyVals ...interface{}) {
	l.emit(DEBUG, msg, keyVals)
}

func (l *Logger) Info(msg string, keyVals ...interface{}) {
	l.emit(INFO, msg, keyVals)
}

func (l *Logger) Warn(msg string, keyVals ...interface{}) {
	l.emit(WARN, msg, keyVals)
}

func (l *Logger) Error(msg string, keyVals ...interface{}) {
	l.emit(ERROR, msg, keyVals)
}

func (l *Logger) Fatal(msg string, keyVals ...interface{}) {
	l.emit(ERROR, msg, keyVals)
	os.Exit(1)
}

// emit renders one line:
//
//	[timestamp] LEVEL [component] message | job=7 key=value ...
//
// The job id, when set, always leads the field list.
func (l *Logger) emit(level LogLevel, msg string, keyVals []interface{}) {
	if level < l.level {
		return
	}

	var b strings.Builder
	b.WriteByte('[')
	b.WriteString(time.Now().Format("2006-01-02T15:04:05.000Z07:00"))
	b.WriteString("] ")
	b.WriteString(level.String())
	if l.component != "" {
		b.WriteString(" [")
		b.WriteString(l.component)
		b.WriteByte(']')
	}
	b.WriteByte(' ')
	b.WriteString(msg)

	fields := l.fields
	if extra := pairFields(keyVals); len(extra) > 0 {
		fields = append(append([]Field(nil), fields...), extra...)
	}

	if l.jobID > 0 || len(fields) > 0 {
		b.WriteString(" |")
		if l.jobID > 0 {
			b.WriteString(" job=")
			b.WriteString(strconv.FormatInt(l.jobID, 10))
		}
		for _, f := range fields {
			b.WriteByte(' ')
			b.WriteString(f.Key)
			b.WriteByte('=')
			b.WriteString(formatValue(f.Value))
		}
	}

	l.out.Print(b.String())
}

// formatValue keeps command lines, endpoints, and error text greppable
// as single tokens.
func formatValue(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return "<nil>"
	case string:
		if v == "" {
			return `""`
		}
		if strings.ContainsAny(v, " =|") {
			return strconv.Quote(v)
		}
		return v
	case error:
		return strconv.Quote(v.Error())
	case time.Duration:
		return v.String()
	case time.Time:
		return v.Format(time.RFC3339)
	default:
		s := fmt.Sprintf("%v", v)
		if strings.ContainsAny(s, " =|") {
			return strconv.Quote(s)
		}
		return s
	}
}

func (l *Logger) SetLevel(level LogLevel) {
	l.level = level
}

func (l *Logger) GetLevel() LogLevel {
	return l.level
}

func (l *Logger) IsDebugEnabled() bool {
	return l.level <= DEBUG
}

// The process-wide logger the agent's subsystems derive theirs from
var globalLogger = New()

func Debug(msg string, keyVals ...interface{}) {
	globalLogger.Debug(msg, keyVals...)
}

func Info(msg string, keyVals ...interface{}) {
	globalLogger.Info(msg, keyVals...)
}

func Warn(msg string, keyVals ...interface{}) {
	globalLogger.Warn(msg, keyVals...)
}

func Error(msg string, keyVals ...interface{}) {
	globalLogger.Error(msg, keyVals...)
}

func Fatal(msg string, keyVals ...interface{}) {
	globalLogger.Fatal(msg, keyVals...)
}

func WithComponent(name string) *Logger {
	return globalLogger.WithComponent(name)
}

func WithJob(id int64) *Logger {
	return globalLogger.WithJob(id)
}

func WithField(key string, value interface{}) *Logger {
	return globalLogger.WithField(key, value)
}

func WithFields(keyVals ...interface{}) *Logger {
	return globalLogger.WithFields(keyVals...)
}

func SetLevel(level LogLevel) {
	globalLogger.SetLevel(level)
}
