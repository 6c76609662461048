// Package metrics exports the core's per-CPU-aggregated statistics (§9)
// as Prometheus metrics: request counters incremented synchronously by
// internal/dispatch, and a pull-model Collector that reads the live
// IPCP/flow tables on every scrape rather than shadowing their counters.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dif-systems/rina-core/internal/dispatch"
	"github.com/dif-systems/rina-core/internal/dm"
	"github.com/dif-systems/rina-core/internal/wire"
)

// Registry owns one process's Prometheus registry. It is never built
// against prometheus.DefaultRegisterer, so more than one Registry (e.g.
// one per test, or more than one rina-cored instance sharing a process in
// tests) can coexist without a duplicate-registration panic.
type Registry struct {
	reg *prometheus.Registry

	dispatchTotal  *prometheus.CounterVec
	dispatchErrors *prometheus.CounterVec
}

// NewRegistry builds a Registry backed by mgr: domains/IPCPs/flows are
// reported live from mgr's tables on every scrape via a registered
// statsCollector, so they never drift from what Dispatch actually sees.
func NewRegistry(mgr *dm.Manager) *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		dispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rina",
			Subsystem: "dispatch",
			Name:      "requests_total",
			Help:      "Control-device requests dispatched, by message type.",
		}, []string{"type"}),
		dispatchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rina",
			Subsystem: "dispatch",
			Name:      "errors_total",
			Help:      "Control-device requests that returned an error, by message type.",
		}, []string{"type"}),
	}
	r.reg.MustRegister(r.dispatchTotal, r.dispatchErrors, newStatsCollector(mgr))
	return r
}

// ObserveDispatch implements internal/dispatch.Recorder: it's set as the
// Dispatcher's optional Recorder field and called once per handled
// request, after the handler returns.
func (r *Registry) ObserveDispatch(msgType wire.MsgType, err error) {
	label := msgType.String()
	r.dispatchTotal.WithLabelValues(label).Inc()
	if err != nil {
		r.dispatchErrors.WithLabelValues(label).Inc()
	}
}

// Handler serves the registry's metrics in the Prometheus text exposition
// format, mounted by cmd/rina-cored at /metrics.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying prometheus.Gatherer for tests that want
// to call prometheus/testutil.GatherAndCompare directly.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

var _ dispatch.Recorder = (*Registry)(nil)
