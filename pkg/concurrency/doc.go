/*
Package concurrency provides the small set of primitives the rest of
Cyclone is built on: a fast polling lock for short critical sections on
the broker/scheduler fast path, a cancellable event, a counting
rendezvous for multi-thread state commit, and an unbounded queueing
message filter for the state machine's serialized transition requests.

These are intentionally minimal wrappers over sync/atomic and channels;
every blocking operation takes a bounded timeout and remains cancellable
through Close or a force release, so shutdown never has to wait on an
unbounded sleep.
*/
package concurrency
