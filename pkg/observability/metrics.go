package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds all Prometheus metrics for the service. Each collector owns
// its registry so several can coexist in one process.
type Collector struct {
	registry *prometheus.Registry

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	SyncPulls      prometheus.Counter
	SyncPushes     *prometheus.CounterVec
	MigrationSteps *prometheus.CounterVec

	CategoryDeletes        prometheus.Counter
	ReassignedTransactions prometheus.Counter

	StoreOperations *prometheus.CounterVec
	StoreDuration   *prometheus.HistogramVec
}

// NewCollector creates a collector with metrics prefixed by namespace
func NewCollector(namespace string) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		SyncPulls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_pulls_total",
			Help:      "Total number of snapshot pulls",
		}),
		SyncPushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_pushes_total",
			Help:      "Snapshot pushes by outcome",
		}, []string{"result"}),
		MigrationSteps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "migration_steps_applied_total",
			Help:      "Migration steps that changed a document",
		}, []string{"step"}),
		CategoryDeletes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "category_deletes_total",
			Help:      "Total number of deleted categories",
		}),
		ReassignedTransactions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "category_reassigned_transactions_total",
			Help:      "Expense transactions moved to Other by category deletes",
		}),
		StoreOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_operations_total",
			Help:      "Snapshot store operations by outcome",
		}, []string{"operation", "status"}),
		StoreDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_operation_duration_seconds",
			Help:      "Snapshot store operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}

	c.registry.MustRegister(
		c.HTTPRequests,
		c.HTTPDuration,
		c.SyncPulls,
		c.SyncPushes,
		c.MigrationSteps,
		c.CategoryDeletes,
		c.ReassignedTransactions,
		c.StoreOperations,
		c.StoreDuration,
	)
	return c
}

// Registry exposes the underlying registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveHTTP records one finished request
func (c *Collector) ObserveHTTP(method, route string, status int, d time.Duration) {
	if c == nil {
		return
	}
	c.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// ObserveStore records one store call
func (c *Collector) ObserveStore(operation string, err error, d time.Duration) {
	if c == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.StoreOperations.WithLabelValues(operation, status).Inc()
	c.StoreDuration.WithLabelValues(operation).Observe(d.Seconds())
}

func (c *Collector) IncPull() {
	if c != nil {
		c.SyncPulls.Inc()
	}
}

func (c *Collector) IncPush(result string) {
	if c != nil {
		c.SyncPushes.WithLabelValues(result).Inc()
	}
}

func (c *Collector) IncMigrationStep(step string) {
	if c != nil {
		c.MigrationSteps.WithLabelValues(step).Inc()
	}
}

// RecordCategoryDelete counts a delete and the transactions it reassigned
func (c *Collector) RecordCategoryDelete(reassigned int) {
	if c == nil {
		return
	}
	c.CategoryDeletes.Inc()
	c.ReassignedTransactions.Add(float64(reassigned))
}
