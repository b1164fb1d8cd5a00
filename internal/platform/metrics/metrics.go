package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var latencyBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}

// Registration provides observability for visit registration loads and saves.
// A nil *Registration is valid and records nothing.
type Registration struct {
	SaveDuration   *prometheus.HistogramVec
	SavesTotal     *prometheus.CounterVec
	LoadsTotal     *prometheus.CounterVec
	DecodeDefaults prometheus.Counter
}

// NewRegistration registers the registration metrics with reg.
func NewRegistration(reg prometheus.Registerer) *Registration {
	f := promauto.With(reg)
	return &Registration{
		SaveDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "registration_save_duration_seconds",
			Help:    "Duration of visit registration saves by outcome",
			Buckets: latencyBuckets,
		}, []string{"outcome"}),
		SavesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "registration_saves_total",
			Help: "Total number of visit registration saves by outcome",
		}, []string{"outcome"}),
		LoadsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "registration_loads_total",
			Help: "Total number of registration form loads by source (fresh or prior_visit)",
		}, []string{"source"}),
		DecodeDefaults: f.NewCounter(prometheus.CounterOpts{
			Name: "registration_decode_defaults_total",
			Help: "Stored attribute nodes that could not be read and were defaulted",
		}),
	}
}

// ObserveSave records a save and its duration.
// Call with time.Now() at the start of the operation.
func (m *Registration) ObserveSave(start time.Time, outcome string) {
	if m == nil {
		return
	}
	m.SaveDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	m.SavesTotal.WithLabelValues(outcome).Inc()
}

// IncrementLoad records a form load.
func (m *Registration) IncrementLoad(source string) {
	if m == nil {
		return
	}
	m.LoadsTotal.WithLabelValues(source).Inc()
}

// AddDecodeDefaults records n defaulted nodes from one decode.
func (m *Registration) AddDecodeDefaults(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.DecodeDefaults.Add(float64(n))
}
