package silvernode

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"sync"

	"github.com/silvernodes/silvernode-sched/ctx"
	"github.com/silvernodes/silvernode-sched/kernel"
	"github.com/silvernodes/silvernode-sched/log"
	"github.com/silvernodes/silvernode-sched/metrics"
	"github.com/silvernodes/silvernode-sched/utils/errutil"
)

type SetupParam struct {
	AppConf string
	Harts   int
	Quiet   bool
}

// Pipeline hooks run around Serve. Start sees the booted kernel before the
// harts begin.
type Pipeline struct {
	Init    func(conf *ctx.SchedConf)
	Start   func(k *kernel.Kernel) error
	OnError func(err error)
}

type _SilverNode struct {
	conf    *ctx.SchedConf
	log     *log.Logger
	metrics *metrics.Metrics
	kernel  *kernel.Kernel
	sync.RWMutex
}

var _node *_SilverNode
var _setup *SetupParam
var _pipe *Pipeline

func init() {
	_node = new(_SilverNode)
	_setup = new(SetupParam)
	_pipe = new(Pipeline)
	_pipe.OnError = func(err error) {
		if _node.log != nil {
			_node.log.Error(err)
			return
		}
		fmt.Println("[ERROR]::" + err.Error())
	}
	errutil.CustomErrFunc(_pipe.OnError)
}

func Setup(param *SetupParam) {
	if param == nil {
		return
	}
	if param.AppConf != "" {
		_setup.AppConf = param.AppConf
	}
	if param.Harts > 0 {
		_setup.Harts = param.Harts
	}
	_setup.Quiet = param.Quiet
}

func BindPipeline(pipe *Pipeline) {
	if pipe == nil {
		return
	}
	if pipe.Init != nil {
		_pipe.Init = pipe.Init
	}
	if pipe.Start != nil {
		_pipe.Start = pipe.Start
	}
	if pipe.OnError != nil {
		_pipe.OnError = pipe.OnError
		errutil.CustomErrFunc(_pipe.OnError)
	}
}

// LoadConf reads the app yaml named by Setup, or only the defaults when
// none was given.
func LoadConf() (*ctx.SchedConf, error) {
	app := ctx.NewAppConf()
	if _setup.AppConf != "" {
		if err := app.LoadFile(_setup.AppConf); err != nil {
			return nil, err
		}
	}
	conf, err := ctx.LoadSchedConf(app)
	if err != nil {
		return nil, err
	}
	if _setup.Harts > 0 {
		conf.Harts = _setup.Harts
		if conf.Harts > conf.MaxThreads {
			conf.MaxThreads = conf.Harts
		}
	}
	return conf, conf.Validate()
}

func NewLogWriter(conf *ctx.SchedConf) (log.LogWriter, error) {
	switch conf.LogWriter {
	case "file":
		return log.NewFileLogWriter(conf.LogFile)
	case "zap":
		return log.NewProductionZapLogWriter()
	}
	return log.NewConsoleLogWriter(), nil
}

// Serve boots the kernel and runs it until c is cancelled.
func Serve(c context.Context) error {
	runtime.GOMAXPROCS(runtime.NumCPU())

	conf, err := LoadConf()
	if err != nil {
		return errutil.Extend("load configuration", err)
	}
	if _pipe.Init != nil {
		_pipe.Init(conf)
	}
	writer, err := NewLogWriter(conf)
	if err != nil {
		return errutil.Extend("create log writer", err)
	}
	logger := log.NewLogger("sched", log.StringToLevel(conf.LogLevel), writer)
	defer logger.Close()

	var m *metrics.Metrics
	if conf.Metrics {
		m = metrics.New()
	}
	k, err := kernel.Boot(conf, kernel.BootOptions{Logger: logger, Metrics: m})
	if err != nil {
		return errutil.Extend("boot", err)
	}
	_node.Lock()
	_node.conf = conf
	_node.log = logger
	_node.metrics = m
	_node.kernel = k
	_node.Unlock()

	var srv *http.Server
	if m != nil && conf.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		srv = &http.Server{Addr: conf.MetricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				_pipe.OnError(errutil.Extend("metrics listener", err))
			}
		}()
	}
	if !_setup.Quiet {
		printInfo(conf)
	}
	if _pipe.Start != nil {
		if err := _pipe.Start(k); err != nil {
			return err
		}
	}
	err = k.Serve(c)
	if srv != nil {
		srv.Close()
	}
	return err
}

func Kernel() *kernel.Kernel {
	_node.RLock()
	defer _node.RUnlock()

	return _node.kernel
}

func Logger() *log.Logger {
	_node.RLock()
	defer _node.RUnlock()

	return _node.log
}

func Metrics() *metrics.Metrics {
	_node.RLock()
	defer _node.RUnlock()

	return _node.metrics
}

func Error(err error) {
	_pipe.OnError(err)
}

func printInfo(conf *ctx.SchedConf) {
	fmt.Println()
	fmt.Println(BANNER)
	fmt.Println()
	info, _ := conf.Marshal()
	fmt.Println(info)
	fmt.Println()
}

const (
	VERSION string = "0.1.0"
	TITLE   string = "harts"
	BANNER         = ` ------------- github.com/silvernodes/silvernode-sched -------------
    _____ _ __                _   __          __
   / ___/(_) /   _____  _____/ | / /___  ____/ /__
   \__ \/ / / | / / _ \/ ___/  |/ / __ \/ __  / _ \
  ___/ / / /| |/ /  __/ /  / /|  / /_/ / /_/ /  __/
 /____/_/_/ |___/\___/_/  /_/ |_/\____/\__,_/\___/ sched

 --- :: v` + VERSION + "-" + TITLE + " ---"
)
