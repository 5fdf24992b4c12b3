package log

import (
	"fmt"
	"strings"
	"time"
)

const createdLayout = "2006-01-02 15:04:05.000"

type LogInfo struct {
	Level    int
	Created  string
	Source   string
	Message  string
	Category string
	Fields   []Field
}

func NewLogInfo(level int, created string, source string, message string, category string) *LogInfo {
	info := new(LogInfo)
	info.Level = level
	info.Created = created
	info.Source = source
	info.Message = message
	info.Category = category
	return info
}

func (l *LogInfo) SetCreated(tm time.Time) {
	l.Created = tm.Format(createdLayout)
}

func (l *LogInfo) Println() {
	fmt.Println(l.FormatString())
}

func (l *LogInfo) FormatString() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] [%s] [%s] ", l.Created, l.Category, LevelToString(l.Level))
	if l.Source != "" {
		fmt.Fprintf(&b, "(%s) ", l.Source)
	}
	b.WriteString(l.Message)
	for _, f := range l.Fields {
		fmt.Fprintf(&b, " %s=%s", f.Key, f.Value)
	}
	return b.String()
}
