package ctx

import (
	"testing"
	"time"

	"github.com/silvernodes/silvernode-sched/utils/errutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const appYaml = `
sched:
  prio_num: 16
  harts: 2
  timer_ms: 20
  log:
    level: DEBUG
other:
  value: 3
`

func TestAppConfLookup(t *testing.T) {
	a := NewAppConf()
	require.NoError(t, a.LoadAppYaml(appYaml))
	assert.True(t, a.CheckConfExists("sched.log.level"))
	assert.False(t, a.CheckConfExists("sched.missing"))

	var level string
	require.NoError(t, a.GetConfDatas("sched.log.level", &level))
	assert.Equal(t, "DEBUG", level)

	var v int
	err := a.GetConfDatas("other.nope", &v)
	assert.Equal(t, errutil.CodeBadConf, errutil.CodeOf(err))
}

func TestMalformedConf(t *testing.T) {
	a := NewAppConf()
	err := a.LoadAppYaml("sched: [1, 2")
	assert.Equal(t, errutil.CodeBadConf, errutil.CodeOf(err))

	a = NewAppConf()
	require.NoError(t, a.LoadAppYaml("sched:\n  harts: many\n"))
	_, err = LoadSchedConf(a)
	require.Error(t, err)
	assert.Equal(t, errutil.CodeBadConf, errutil.CodeOf(err))
	assert.Contains(t, err.Error(), "decode conf sched")
}

func TestLoadSchedConf(t *testing.T) {
	a := NewAppConf()
	require.NoError(t, a.LoadAppYaml(appYaml))
	s, err := LoadSchedConf(a)
	require.NoError(t, err)
	assert.Equal(t, 16, s.PrioNum)
	assert.Equal(t, 2, s.Harts)
	assert.Equal(t, 20*time.Millisecond, s.TimerInterval())
	// untouched keys keep their defaults
	assert.Equal(t, 256, s.QueueCapacity)
	assert.Equal(t, "console", s.LogWriter)

	s, err = LoadSchedConf(NewAppConf())
	require.NoError(t, err)
	assert.Equal(t, NewSchedConf(), s)
}

func TestSchedConfValidate(t *testing.T) {
	tests := []struct {
		name string
		edit func(s *SchedConf)
	}{
		{"zero levels", func(s *SchedConf) { s.PrioNum = 0 }},
		{"too many levels", func(s *SchedConf) { s.PrioNum = MaxPrioNum + 1 }},
		{"zero capacity", func(s *SchedConf) { s.QueueCapacity = 0 }},
		{"harts above threads", func(s *SchedConf) { s.Harts = s.MaxThreads + 1 }},
		{"zero slice", func(s *SchedConf) { s.Slice = 0 }},
		{"unknown writer", func(s *SchedConf) { s.LogWriter = "syslog" }},
		{"file writer without file", func(s *SchedConf) { s.LogWriter = "file" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSchedConf()
			tt.edit(s)
			assert.Equal(t, errutil.CodeBadConf, errutil.CodeOf(s.Validate()))
		})
	}
	assert.NoError(t, NewSchedConf().Validate())
}

func TestSchedConfMarshal(t *testing.T) {
	text, err := NewSchedConf().Marshal()
	require.NoError(t, err)
	a := NewAppConf()
	require.NoError(t, a.LoadAppYaml("sched:\n  "+indent(text)))
	s, err := LoadSchedConf(a)
	require.NoError(t, err)
	assert.Equal(t, NewSchedConf(), s)
}

func indent(text string) string {
	out := ""
	for i, c := range text {
		out += string(c)
		if c == '\n' && i < len(text)-1 {
			out += "  "
		}
	}
	return out
}
