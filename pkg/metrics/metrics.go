package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// CyclesTotal counts completed real-time cycles per thread.
	CyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cyclone_cycles_total",
			Help: "Total number of real-time cycles completed, by thread",
		},
		[]string{"thread"},
	)

	// CycleDuration is the wall-clock time a thread spent running its
	// function list for one cycle.
	CycleDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cyclone_cycle_duration_seconds",
			Help:    "Duration of one real-time cycle, by thread",
			Buckets: prometheus.ExponentialBuckets(0.00005, 2, 16),
		},
		[]string{"thread"},
	)

	// OverrunsTotal tracks each trigger broker's cumulative overrun count
	// (cycles in which the producer found its next ring slot still marked
	// triggered, not yet drained by the consumer). The trigger broker itself
	// already keeps this as a running total, so it is exported as a gauge
	// set to that total rather than incremented per event.
	OverrunsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cyclone_broker_overruns_total",
			Help: "Cumulative trigger broker buffer overruns, by signal",
		},
		[]string{"signal"},
	)

	// TransitionsTotal counts state machine transitions by outcome.
	TransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cyclone_transitions_total",
			Help: "Total number of state machine transitions, by event and outcome",
		},
		[]string{"event", "outcome"},
	)

	// TransitionDuration is the time from a transition request arriving
	// to the machine settling on its next state.
	TransitionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cyclone_transition_duration_seconds",
			Help:    "Duration of a state machine transition",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"event"},
	)

	// RendezvousWait is the time a thread spent blocked in a reconfiguration
	// commit barrier before either every participant arrived or it timed out.
	RendezvousWait = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cyclone_rendezvous_wait_seconds",
			Help:    "Time spent waiting at a multi-thread reconfiguration barrier",
			Buckets: prometheus.DefBuckets,
		},
	)

	// ReconfigurationsTotal counts live reconfiguration commits by outcome
	// (committed or forced-reset-on-timeout).
	ReconfigurationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cyclone_reconfigurations_total",
			Help: "Total number of live reconfiguration commits, by outcome",
		},
		[]string{"outcome"},
	)

	// BrokerExecuteDuration is the time a broker's per-cycle copy/sync step
	// took, excluding the function body itself.
	BrokerExecuteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cyclone_broker_execute_duration_seconds",
			Help:    "Duration of a broker's per-cycle execute step, by broker class",
			Buckets: prometheus.ExponentialBuckets(0.00001, 2, 16),
		},
		[]string{"class"},
	)

	// ThreadsRunning is the current number of real-time threads in the
	// Running state, by pool name.
	ThreadsRunning = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cyclone_threads_running",
			Help: "Number of embedded threads currently in the Running state, by pool",
		},
		[]string{"pool"},
	)

	// MessagesTotal counts messages sent over the runtime bus, by outcome.
	MessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cyclone_messages_total",
			Help: "Total number of messages sent over the runtime bus, by outcome",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		CyclesTotal,
		CycleDuration,
		OverrunsTotal,
		TransitionsTotal,
		TransitionDuration,
		RendezvousWait,
		ReconfigurationsTotal,
		BrokerExecuteDuration,
		ThreadsRunning,
		MessagesTotal,
	)
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
