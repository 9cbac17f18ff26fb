package signal

import (
	"fmt"

	"github.com/cuemby/cyclone/pkg/types"
)

// Direction is the flow of a signal relative to its owning function.
type Direction int

const (
	Input Direction = iota
	Output
)

func (d Direction) String() string {
	if d == Input {
		return "input"
	}
	return "output"
}

// Range is one closed, inclusive element-index interval [Lo, Hi] of a
// range mask.
type Range struct {
	Lo, Hi int
}

// Descriptor is one signal a function declares on one direction.
type Descriptor struct {
	Name            string
	Alias           string // name in the data source; defaults to Name
	DataSource      string
	Kind            types.Kind
	Dimensionality  types.Dimensionality
	NumberOfElements int
	Samples         int // samples per cycle; 0 and 1 both mean "one"
	Frequency       float64 // Hz; 0 means "not the synchronising signal"
	Default         *types.Value
	Ranges          []Range

	PreTriggerBuffers  int
	PostTriggerBuffers int

	// TriggerCondition decides, for a TriggerOutput signal, whether the
	// sample just captured is a trigger edge. Nil means never triggers.
	TriggerCondition func(sample []byte) bool
}

// DataSourceAlias returns the name this signal is known by on the data
// source side.
func (d *Descriptor) DataSourceAlias() string {
	if d.Alias != "" {
		return d.Alias
	}
	return d.Name
}

// SamplesPerCycle normalizes the declared Samples to a value >= 1.
func (d *Descriptor) SamplesPerCycle() int {
	if d.Samples <= 0 {
		return 1
	}
	return d.Samples
}

// IsSynchronising reports whether this signal carries a non-zero
// Frequency. At most one signal per thread may declare one; the planner
// rejects configurations that declare more.
func (d *Descriptor) IsSynchronising() bool {
	return d.Frequency > 0
}

// IsTriggered reports whether this output signal declares pre/post-trigger
// capture depth.
func (d *Descriptor) IsTriggered() bool {
	return d.PreTriggerBuffers > 0 || d.PostTriggerBuffers > 0
}

// ElementCount returns the raw element count this descriptor declares
// (before range-mask expansion).
func (d *Descriptor) ElementCount() int {
	if d.NumberOfElements <= 0 {
		return 1
	}
	return d.NumberOfElements
}

// Validate checks internal consistency of a descriptor: ranges sorted and
// disjoint and within extent, samples not negative (0 means one), and a
// scalar declaring exactly one element.
func (d *Descriptor) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("signal: descriptor has no name")
	}
	if d.DataSource == "" {
		return fmt.Errorf("signal %q: no data source declared", d.Name)
	}
	if d.Samples < 0 {
		return fmt.Errorf("signal %q: negative Samples %d", d.Name, d.Samples)
	}
	n := d.ElementCount()
	if d.Dimensionality == types.Scalar && n != 1 {
		return fmt.Errorf("signal %q: scalar with NumberOfElements=%d", d.Name, n)
	}

	// Checked in declared order: the planner lays out copies in that same
	// order, so an unsorted mask must be rejected, not silently accepted
	// after an internal sort.
	for i, r := range d.Ranges {
		if r.Lo < 0 || r.Hi < r.Lo {
			return fmt.Errorf("signal %q: malformed range [%d,%d]", d.Name, r.Lo, r.Hi)
		}
		if r.Hi >= n {
			return fmt.Errorf("signal %q: range [%d,%d] out of extent %d", d.Name, r.Lo, r.Hi, n)
		}
		if i > 0 && r.Lo <= d.Ranges[i-1].Hi {
			return fmt.Errorf("signal %q: ranges overlap or unsorted: [%d,%d] and [%d,%d]",
				d.Name, d.Ranges[i-1].Lo, d.Ranges[i-1].Hi, r.Lo, r.Hi)
		}
	}
	return nil
}

// ElementsInRanges returns the total number of elements covered by the
// range mask, or ElementCount() if there is no mask.
func (d *Descriptor) ElementsInRanges() int {
	if len(d.Ranges) == 0 {
		return d.ElementCount()
	}
	total := 0
	for _, r := range d.Ranges {
		total += r.Hi - r.Lo + 1
	}
	return total
}

// Set is the ordered collection of signal descriptors a function declares
// on one direction.
type Set []*Descriptor

// ByName looks up a descriptor by its function-side name.
func (s Set) ByName(name string) (*Descriptor, bool) {
	for _, d := range s {
		if d.Name == name {
			return d, true
		}
	}
	return nil, false
}

// Synchronising returns the single synchronising descriptor in the set, if
// any, failing if more than one is declared.
func (s Set) Synchronising() (*Descriptor, error) {
	var found *Descriptor
	for _, d := range s {
		if d.IsSynchronising() {
			if found != nil {
				return nil, fmt.Errorf("signal: multiple synchronising signals declared: %q and %q", found.Name, d.Name)
			}
			found = d
		}
	}
	return found, nil
}
