package log

import (
	"fmt"
	"runtime"
	"strings"
	"time"
)

const (
	DEBUG int = 0
	INFO      = 1
	WARN      = 2
	ERROR     = 3
	FATAL     = 4
)

var levelNames = []string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}

var levelAliases = map[string]int{
	"WARNING": WARN,
	"TRACE":   DEBUG,
	"OFF":     FATAL + 1,
}

func LevelToString(lv int) string {
	if lv < DEBUG || lv >= len(levelNames) {
		return "FATAL"
	}
	return levelNames[lv]
}

// StringToLevel accepts a level name (case insensitive) with an optional
// "-suffix", as in "info-sched". Unknown names mean DEBUG.
func StringToLevel(lv string) int {
	name := strings.ToUpper(strings.SplitN(strings.TrimSpace(lv), "-", 2)[0])
	for lvl, one := range levelNames {
		if one == name {
			return lvl
		}
	}
	if lvl, ok := levelAliases[name]; ok {
		return lvl
	}
	return DEBUG
}

// Field is a key/value pair attached to every record of a logger, such as
// the hart or address space it speaks for.
type Field struct {
	Key   string
	Value string
}

type Logger struct {
	category  string
	level     int
	fields    []Field
	logWriter LogWriter
}

type LogWriter interface {
	Write(info *LogInfo)
	Close()
}

func NewLogger(category string, loglevel int, logWriter LogWriter) *Logger {
	l := new(Logger)
	l.category = category
	l.level = loglevel
	if logWriter != nil {
		l.logWriter = logWriter
	} else {
		l.logWriter = NewConsoleLogWriter()
	}
	return l
}

// Discard returns a logger that writes nothing.
func Discard() *Logger {
	return NewLogger("discard", FATAL+1, nopWriter{})
}

type nopWriter struct{}

func (nopWriter) Write(*LogInfo) {}
func (nopWriter) Close()         {}

// Sub returns a logger sharing the writer and level under another category.
func (l *Logger) Sub(category string) *Logger {
	sub := new(Logger)
	sub.category = l.category + "." + category
	sub.level = l.level
	sub.fields = l.fields
	sub.logWriter = l.logWriter
	return sub
}

// With returns a logger that adds key=value to every record.
func (l *Logger) With(key string, value interface{}) *Logger {
	with := new(Logger)
	with.category = l.category
	with.level = l.level
	with.fields = append(append(make([]Field, 0, len(l.fields)+1), l.fields...), Field{Key: key, Value: fmt.Sprint(value)})
	with.logWriter = l.logWriter
	return with
}

func (l *Logger) Fields() []Field {
	return l.fields
}

func (l *Logger) Category() string {
	return l.category
}

func (l *Logger) Level() int {
	return l.level
}

func (l *Logger) BindWriter(writer LogWriter) {
	if l.logWriter != nil {
		l.logWriter.Close()
	}
	l.logWriter = writer
}

func (l *Logger) Close() {
	if l.logWriter != nil {
		l.logWriter.Close()
	}
}

func (l *Logger) Source(callstack int) string {
	if callstack < 0 {
		return ""
	}
	src := ""
	pc, _, lineno, ok := runtime.Caller(callstack + 1)
	if ok {
		src = fmt.Sprintf("%s:%d", runtime.FuncForPC(pc).Name(), lineno)
	}
	return src
}

func (l *Logger) doLog(lvl int, callstack int, any interface{}, args ...interface{}) {
	if l == nil || lvl < l.level {
		return
	}
	src := l.Source(callstack + 1)
	var msg string = ""
	switch v := any.(type) {
	case string:
		msg = v
		if len(args) > 0 {
			msg = fmt.Sprintf(msg, args...)
		}
	case error:
		msg = v.Error()
		if len(args) > 0 {
			msg = fmt.Sprintf(msg, args...)
		}
	default:
		msg = fmt.Sprint(any)
	}
	info := new(LogInfo)
	info.Category = l.category
	info.Level = lvl
	info.Message = msg
	info.Source = src
	info.Fields = l.fields
	info.SetCreated(time.Now())
	l.logWriter.Write(info)
}

func (l *Logger) Log(lvl int, arg0 interface{}, args ...interface{}) {
	l.doLog(lvl, -99, arg0, args...)
}

func (l *Logger) Debug(arg0 interface{}, args ...interface{}) {
	l.doLog(DEBUG, 1, arg0, args...)
}

func (l *Logger) Info(arg0 interface{}, args ...interface{}) {
	l.doLog(INFO, 1, arg0, args...)
}

func (l *Logger) Warn(arg0 interface{}, args ...interface{}) {
	l.doLog(WARN, 1, arg0, args...)
}

func (l *Logger) Error(arg0 interface{}, args ...interface{}) {
	l.doLog(ERROR, 1, arg0, args...)
}

func (l *Logger) Fatal(arg0 interface{}, args ...interface{}) {
	l.doLog(FATAL, 1, arg0, args...)
}
