/*
Package broker binds a function's declared signal sets to concrete data
source memory. It is split into a planner, which inspects every
function's declared input/output signal set and every data source's
declared memory layout to synthesize a list of brokers, and a runtime,
the five broker classes themselves: DirectCopy, MultiBuffer,
SynchronisingInput, SynchronisingOutput and TriggerOutput.

Execute on every broker is the real-time hot path: no blocking, no
allocation, no branching beyond a fixed per-descriptor copy list built
once at plan time. The one exception is the synchronising brokers, which
exist specifically to block the owning thread until the data source's
next sample boundary, and the trigger broker's bookkeeping, which is a
few integer comparisons per cycle.
*/
package broker
