/*
Package log wraps zerolog with the structured fields the real-time engine
attaches to almost every line: component, state, thread and cycle.

# Usage

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})
	log.Logger.Info().Msg("engine starting")

	threadLog := log.WithThread("fast-loop")
	threadLog.Debug().Msg("thread entering Running")

	cycleLog := log.WithCycle("fast-loop", cycleCount)
	cycleLog.Warn().Msg("overrun detected")

WithComponent, WithState, WithThread and WithCycle each return a derived
zerolog.Logger; they don't mutate the package-level Logger, so a caller can
hold onto a tagged logger for the lifetime of a thread or state without
fields leaking across goroutines.

Console output (JSONOutput: false) is meant for local development; production
deployments should set JSONOutput so log lines can be shipped to whatever
aggregator the operator already runs.
*/
package log
