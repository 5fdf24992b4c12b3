package log

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type memWriter struct {
	infos []*LogInfo
	sync.Mutex
}

func (m *memWriter) Write(info *LogInfo) {
	m.Lock()
	m.infos = append(m.infos, info)
	m.Unlock()
}

func (m *memWriter) Close() {}

func TestLevels(t *testing.T) {
	assert.Equal(t, WARN, StringToLevel("warning"))
	assert.Equal(t, ERROR, StringToLevel("ERROR"))
	assert.Equal(t, DEBUG, StringToLevel("bogus"))
	assert.Equal(t, INFO, StringToLevel(" info-sched"))
	assert.Equal(t, FATAL+1, StringToLevel("off"))
	assert.Equal(t, "INFO", LevelToString(INFO))
	assert.Equal(t, "FATAL", LevelToString(FATAL+1))

	w := new(memWriter)
	l := NewLogger("sched", WARN, w)
	l.Info("dropped")
	l.Warn("kept %d", 1)
	l.Sub("hart").Error("also kept")
	require.Len(t, w.infos, 2)
	assert.Equal(t, "kept 1", w.infos[0].Message)
	assert.Equal(t, "sched.hart", w.infos[1].Category)
	assert.Contains(t, w.infos[0].Source, "TestLevels")
}

func TestWithFields(t *testing.T) {
	w := new(memWriter)
	root := NewLogger("sched", DEBUG, w)
	hart := root.Sub("hart").With("hart", 3)
	hart.With("space", "p0").Info("switch")
	hart.Info("idle")
	root.Info("plain")

	require.Len(t, w.infos, 3)
	assert.Equal(t, []Field{{"hart", "3"}, {"space", "p0"}}, w.infos[0].Fields)
	assert.Equal(t, []Field{{"hart", "3"}}, w.infos[1].Fields)
	assert.Empty(t, w.infos[2].Fields)
	assert.True(t, strings.HasSuffix(w.infos[0].FormatString(), "switch hart=3 space=p0"))
	assert.Equal(t, "sched.hart", w.infos[1].Category)
	assert.Empty(t, root.Fields())
}

func TestDiscard(t *testing.T) {
	assert.NotPanics(t, func() {
		Discard().Fatal("nothing")
	})
}

func TestFileLogWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "sched.log")
	w, err := NewFileLogWriter(path)
	require.NoError(t, err)
	l := NewLogger("sched", DEBUG, w)
	l.Info("hart %d parked", 2)
	l.Close()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "hart 2 parked"))
}

func TestZapLogWriter(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := NewLogger("sched", DEBUG, NewZapLogWriter(zap.New(core)))
	l.With("space", "p1").Warn("queue %s full", "L3")
	l.Fatal("stop")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "queue L3 full", entries[0].Message)
	assert.Equal(t, zap.WarnLevel, entries[0].Level)
	assert.Equal(t, "sched", entries[0].ContextMap()["category"])
	assert.Equal(t, "p1", entries[0].ContextMap()["space"])
	assert.NotContains(t, entries[1].ContextMap(), "space")
	assert.Equal(t, zap.ErrorLevel, entries[1].Level)
}
