/*
Package datasource defines the contract every concrete I/O driver must
satisfy. Concrete drivers — UDP, TCP,
file, shared memory — are explicitly out of scope; this
package is the interface the broker planner and runtime depend on, plus an
in-memory reference implementation used by tests and the CLI's demo mode.
*/
package datasource
