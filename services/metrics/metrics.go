// Package metricsvc exposes the store and query metrics of the app to Prometheus.
package metricsvc

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trezcool/collegium/core/localstore"
	"github.com/trezcool/collegium/core/query"
)

const namespace = "collegium"

type Collector struct {
	reg *prometheus.Registry

	// storeOps counts local store operations.
	// Labels: collection, op (read, write, add, update, delete, clear), outcome (ok, not_found, error)
	storeOps *prometheus.CounterVec

	// queryDuration measures remote query fetches.
	// Labels: table, outcome (ok, error, cancelled)
	queryDuration *prometheus.HistogramVec
}

var (
	_ localstore.Observer = (*Collector)(nil)
	_ query.Observer      = (*Collector)(nil)
)

// New returns a Collector registered on its own registry, along with the go and process collectors.
func New() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Collector{
		reg: reg,
		storeOps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operations_total",
			Help:      "Total local store operations",
		}, []string{"collection", "op", "outcome"}),
		queryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "duration_seconds",
			Help:      "Remote query fetch duration in seconds",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"table", "outcome"}),
	}
}

func (c *Collector) ObserveStoreOp(collection, op, outcome string) {
	c.storeOps.WithLabelValues(collection, op, outcome).Inc()
}

func (c *Collector) ObserveQuery(table, outcome string, took time.Duration) {
	c.queryDuration.WithLabelValues(table, outcome).Observe(took.Seconds())
}

// Handler serves the metrics in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{Registry: c.reg})
}
