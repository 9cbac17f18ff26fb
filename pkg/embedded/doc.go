/*
Package embedded hosts caller-supplied callables on managed goroutines
through a stage-tagged state machine: a single-client Thread with
Off/Starting/Running/Stopping states and timeout escalation, and a Pool
that grows and shrinks a set of Threads between a minimum and maximum
size in response to the hosted callable's busy/idle signal, the
admission-control surface for embedded servers.

The scheduler's cycle loops, the state machine's dispatcher and the
application's message dispatcher host their loops on this package rather
than on bare goroutines, so they report the same observable lifecycle.
The trigger broker's consumer is the exception: it runs on a plain
goroutine.
*/
package embedded
