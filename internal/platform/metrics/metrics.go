package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	DoctorsCreated  prometheus.Counter
	DoctorsDeleted  prometheus.Counter
	SearchesTotal   prometheus.Counter
	RequestDuration *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics
func New() *Metrics {
	return &Metrics{
		DoctorsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "medidir_doctors_created_total",
			Help: "Total number of doctors registered in the directory",
		}),
		DoctorsDeleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "medidir_doctors_deleted_total",
			Help: "Total number of doctors removed from the directory",
		}),
		SearchesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "medidir_doctor_searches_total",
			Help: "Total number of filtered doctor searches",
		}),
		RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "medidir_http_request_duration_seconds",
			Help:    "HTTP request latency by method and path pattern",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
	}
}

// IncrementDoctorsCreated increments the doctors created counter by 1
func (m *Metrics) IncrementDoctorsCreated() {
	m.DoctorsCreated.Inc()
}

// IncrementDoctorsDeleted increments the doctors deleted counter by 1
func (m *Metrics) IncrementDoctorsDeleted() {
	m.DoctorsDeleted.Inc()
}

// IncrementSearches increments the search counter by 1
func (m *Metrics) IncrementSearches() {
	m.SearchesTotal.Inc()
}

// ObserveRequest records one request's latency.
func (m *Metrics) ObserveRequest(method, path, status string, seconds float64) {
	m.RequestDuration.WithLabelValues(method, path, status).Observe(seconds)
}
