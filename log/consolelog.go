package log

import (
	"sync"
)

type ConsoleLogWriter struct {
	sync.Mutex
}

func (c *ConsoleLogWriter) Write(info *LogInfo) {
	if info == nil {
		return
	}
	c.Lock()
	info.Println()
	c.Unlock()
}

func (c *ConsoleLogWriter) Close() {

}

func NewConsoleLogWriter() *ConsoleLogWriter {
	c := new(ConsoleLogWriter)
	return c
}
