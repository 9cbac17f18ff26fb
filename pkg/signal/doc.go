/*
Package signal defines the per-function and per-data-source signal
descriptors that the broker planner consumes. A Descriptor names one
signal a function declares on one direction: its element kind,
dimensionality, element count, samples per cycle, optional frequency
(marking the thread's synchronising signal), optional default value, and
optional range mask.
*/
package signal
