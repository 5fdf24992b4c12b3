package log

import (
	"fmt"
	"os"
	"path/filepath"
)

type FileLogWriter struct {
	filename string
	file     *os.File
	logchan  chan *LogInfo
	done     chan struct{}
}

func (f *FileLogWriter) Write(info *LogInfo) {
	if info == nil {
		return
	}
	f.logchan <- info
}

// Close flushes pending records and waits until the file is synced.
func (f *FileLogWriter) Close() {
	f.logchan <- nil
	<-f.done
}

func (f *FileLogWriter) dispose() {
	f.file.Sync()
	f.file.Close()
	close(f.done)
}

func NewFileLogWriter(filename string) (*FileLogWriter, error) {
	f := new(FileLogWriter)
	if dir := filepath.Dir(filename); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}
	f.filename = filename
	fd, err := os.OpenFile(f.filename, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0660)
	if err != nil {
		return nil, err
	}
	f.file = fd
	f.logchan = make(chan *LogInfo, 1024)
	f.done = make(chan struct{})
	go func() {
		defer f.dispose()
		for info := range f.logchan {
			if info == nil {
				break
			}
			_, err := fmt.Fprintln(f.file, info.FormatString())
			if err != nil {
				fmt.Fprintf(os.Stderr, "FileLogWriter(%q): %s\n", f.filename, err)
				return
			}
		}
	}()
	return f, nil
}
