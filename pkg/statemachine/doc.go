/*
Package statemachine implements a message-driven state machine: a typed
table of State -> Event -> (NextStateSuccess, NextStateError, Timeout,
MessageList). A dedicated embedded.Thread dequeues transition requests
from a permanent pkg/messaging filter, matches them against the current
state's events, sends every message in the matched transition's
MessageList in declared order, and moves to NextStateSuccess or
NextStateError depending on their aggregate outcome. Transitions are
serialized; requests arriving mid-transition simply queue on the filter.
*/
package statemachine
