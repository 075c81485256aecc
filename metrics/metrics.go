package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ergo_streaming"

// Metrics implements the instrumentation hooks of the followers on a
// Prometheus registry.
type Metrics struct {
	registry *prometheus.Registry

	rollForwards  prometheus.Counter
	rollBackwards prometheus.Counter
	chainHeight   prometheus.Gauge
	rpcErrors     *prometheus.CounterVec
	mempoolEvents *prometheus.CounterVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := func(name, help string) prometheus.Counter {
		c := prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		})
		registry.MustRegister(c)
		return c
	}
	m := &Metrics{
		registry:      registry,
		rollForwards:  factory("roll_forwards_total", "Blocks applied to the local chain view."),
		rollBackwards: factory("roll_backwards_total", "Blocks unapplied from the local chain view."),
	}
	m.chainHeight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "chain_height",
		Help:      "Height of the last applied block.",
	})
	registry.MustRegister(m.chainHeight)
	m.rpcErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rpc_errors_total",
		Help:      "Node RPC failures by classification.",
	}, []string{"kind"})
	registry.MustRegister(m.rpcErrors)
	m.mempoolEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "mempool_events_total",
		Help:      "Mempool transitions by kind.",
	}, []string{"kind"})
	registry.MustRegister(m.mempoolEvents)
	return m
}

func (m *Metrics) RecordRollForward(height uint32) {
	m.rollForwards.Inc()
	m.chainHeight.Set(float64(height))
}

func (m *Metrics) RecordRollBackward(height uint32) {
	m.rollBackwards.Inc()
	m.chainHeight.Set(float64(height - 1))
}

func (m *Metrics) RecordRPCError(kind string) {
	m.rpcErrors.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordMempoolEvent(kind string) {
	m.mempoolEvents.WithLabelValues(kind).Inc()
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
