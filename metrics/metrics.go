package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/silvernodes/silvernode-sched/process"
)

const namespace = "silvernode_sched"

// Metrics collects scheduler events into a private registry. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	reg       *prometheus.Registry
	spawned   *prometheus.CounterVec
	fetched   *prometheus.CounterVec
	woken     *prometheus.CounterVec
	completed *prometheus.CounterVec
	rejected  *prometheus.CounterVec
	switches  *prometheus.CounterVec
	idle      *prometheus.CounterVec
	published *prometheus.GaugeVec
	depth     *prometheus.GaugeVec
}

func counter(name, help string, labels ...string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, labels)
}

func New() *Metrics {
	m := new(Metrics)
	m.reg = prometheus.NewRegistry()
	m.spawned = counter("coroutines_spawned_total", "Coroutines spawned.", "space", "level")
	m.fetched = counter("coroutines_fetched_total", "Coroutines fetched for polling.", "space", "level")
	m.woken = counter("coroutines_woken_total", "Pending coroutines re-enqueued.", "space", "level")
	m.completed = counter("coroutines_completed_total", "Coroutines that ran to completion.", "space", "level")
	m.rejected = counter("coroutines_rejected_total", "Spawns and wakes refused by a full queue.", "space", "level")
	m.switches = counter("task_switches_total", "Context switches into a process task.", "hart")
	m.idle = counter("idle_rounds_total", "Idle loop rounds that found nothing to run.", "hart")
	m.published = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "published_priority",
		Help:      "Last highest active priority published by a space, -1 for no work.",
	}, []string{"space"})
	m.depth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Ready queue entries per level of a space, stale ones included.",
	}, []string{"space", "level"})
	m.reg.MustRegister(m.spawned, m.fetched, m.woken, m.completed, m.rejected,
		m.switches, m.idle, m.published, m.depth)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Observer returns the event sink of one address space's executor.
func (m *Metrics) Observer(space string) process.Observer {
	if m == nil {
		return nil
	}
	return &observer{m: m, space: space}
}

func (m *Metrics) TaskSwitched(hart int) {
	if m == nil {
		return
	}
	m.switches.WithLabelValues(strconv.Itoa(hart)).Inc()
}

func (m *Metrics) IdleRound(hart int) {
	if m == nil {
		return
	}
	m.idle.WithLabelValues(strconv.Itoa(hart)).Inc()
}

func (m *Metrics) Published(space string, prio uint64) {
	if m == nil {
		return
	}
	v := float64(-1)
	if prio != process.NoWork {
		v = float64(prio)
	}
	m.published.WithLabelValues(space).Set(v)
}

// Depth samples every level's ready queue length of exec.
func (m *Metrics) Depth(space string, exec *process.Executor) {
	if m == nil || exec == nil {
		return
	}
	for level := 0; level < exec.PrioNum(); level++ {
		m.depth.WithLabelValues(space, strconv.Itoa(level)).Set(float64(exec.QueueLen(level)))
	}
}

type observer struct {
	m     *Metrics
	space string
}

func (o *observer) Spawned(level int) {
	o.m.spawned.WithLabelValues(o.space, strconv.Itoa(level)).Inc()
}

func (o *observer) Fetched(level int) {
	o.m.fetched.WithLabelValues(o.space, strconv.Itoa(level)).Inc()
}

func (o *observer) Woken(level int) {
	o.m.woken.WithLabelValues(o.space, strconv.Itoa(level)).Inc()
}

func (o *observer) Completed(level int) {
	o.m.completed.WithLabelValues(o.space, strconv.Itoa(level)).Inc()
}

func (o *observer) Rejected(level int) {
	o.m.rejected.WithLabelValues(o.space, strconv.Itoa(level)).Inc()
}
