/*
Package metrics declares the Prometheus instrumentation for the real-time
engine: per-thread cycle counts and durations, trigger broker overrun
counts, state machine transition counts and durations, reconfiguration
commit outcomes, and bus message counts. All metrics are registered at
package init and exposed via Handler for scraping.

# Usage

	timer := metrics.NewTimer()
	runCycle()
	timer.ObserveDurationVec(metrics.CycleDuration, threadName)
	metrics.CyclesTotal.WithLabelValues(threadName).Inc()

	http.Handle("/metrics", metrics.Handler())
*/
package metrics
