package ctx

import (
	"fmt"
	"time"

	"github.com/silvernodes/silvernode-sched/utils/errutil"
	"gopkg.in/yaml.v2"
)

// MaxPrioNum is bounded by the width of one bitmap word.
const MaxPrioNum = 64

type SchedConf struct {
	PrioNum       int    `yaml:"prio_num"`
	QueueCapacity int    `yaml:"queue_capacity"`
	MaxThreads    int    `yaml:"max_threads"`
	MaxProcs      int    `yaml:"max_procs"`
	Harts         int    `yaml:"harts"`
	Slice         int    `yaml:"slice"`
	TimerMs       int    `yaml:"timer_ms"`
	LogLevel      string `yaml:"log_level"`
	LogWriter     string `yaml:"log_writer"`
	LogFile       string `yaml:"log_file"`
	Metrics       bool   `yaml:"metrics"`
	MetricsAddr   string `yaml:"metrics_addr"`
}

func NewSchedConf() *SchedConf {
	s := new(SchedConf)
	s.PrioNum = 8
	s.QueueCapacity = 256
	s.MaxThreads = 8
	s.MaxProcs = 64
	s.Harts = 4
	s.Slice = 32
	s.TimerMs = 10
	s.LogLevel = "INFO"
	s.LogWriter = "console"
	s.Metrics = true
	s.MetricsAddr = "127.0.0.1:9464"
	return s
}

// LoadSchedConf reads the "sched" section over the defaults. A missing
// section leaves the defaults in place.
func LoadSchedConf(a *AppConf) (*SchedConf, error) {
	s := NewSchedConf()
	if a != nil && a.CheckConfExists("sched") {
		if err := a.GetConfDatas("sched", s); err != nil {
			return nil, errutil.Extend("load sched conf", err)
		}
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SchedConf) Validate() error {
	if s.PrioNum <= 0 || s.PrioNum > MaxPrioNum {
		return badConf("prio_num must be in [1, %d], got %d", MaxPrioNum, s.PrioNum)
	}
	if s.QueueCapacity <= 0 {
		return badConf("queue_capacity must be positive, got %d", s.QueueCapacity)
	}
	if s.MaxThreads <= 0 {
		return badConf("max_threads must be positive, got %d", s.MaxThreads)
	}
	if s.MaxProcs <= 0 {
		return badConf("max_procs must be positive, got %d", s.MaxProcs)
	}
	if s.Harts <= 0 || s.Harts > s.MaxThreads {
		return badConf("harts must be in [1, max_threads=%d], got %d", s.MaxThreads, s.Harts)
	}
	if s.Slice <= 0 {
		return badConf("slice must be positive, got %d", s.Slice)
	}
	switch s.LogWriter {
	case "console", "file", "zap":
	default:
		return badConf("unknown log_writer %q", s.LogWriter)
	}
	if s.LogWriter == "file" && s.LogFile == "" {
		return badConf("log_writer file needs log_file")
	}
	return nil
}

func (s *SchedConf) TimerInterval() time.Duration {
	return time.Duration(s.TimerMs) * time.Millisecond
}

func (s *SchedConf) Marshal() (string, error) {
	b, err := yaml.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func badConf(format string, args ...interface{}) error {
	return errutil.NewWithCode(errutil.CodeBadConf, fmt.Sprintf(format, args...))
}
