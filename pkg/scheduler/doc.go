/*
Package scheduler drives the real-time cycle for each (state, thread)
pair and implements live reconfiguration: preparing a target state's
broker/function bindings off the real-time thread, publishing them via a
single atomic pointer swap per thread, and, for states with more than one
thread, committing that swap only once every affected thread has reached
its own cycle boundary, using pkg/concurrency's counting rendezvous. A
timed-out commit force-resets the rendezvous and leaves every thread on
its previous configuration.

Each real-time thread is hosted on a pkg/embedded.Thread rather than a
bare goroutine, so it carries the Off/Starting/Running/Stopping lifecycle
and the timeout escalation supervisors need.
*/
package scheduler
