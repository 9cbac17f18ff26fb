/*
Package tree implements the in-memory, already-parsed configuration tree
that the Cyclone core consumes. Text-format parsing
(standard/JSON/XML) lives outside this package's — and this repository's —
scope; callers build a tree of Nodes directly (starting from New), or via
a thin loader such as cmd/cyclonectl's YAML fixture reader.

A Node is an ordered, named, recursively nested container of typed values.
Child order is insertion order, backed by github.com/elliotchance/orderedmap
so that iteration (which the scheduler relies on to resolve declared
function and thread order) is deterministic without a separate sort step.
*/
package tree
