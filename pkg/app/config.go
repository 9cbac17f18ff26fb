package app

import (
	"fmt"
	"time"

	"github.com/cuemby/cyclone/pkg/scheduler"
	"github.com/cuemby/cyclone/pkg/signal"
	"github.com/cuemby/cyclone/pkg/statemachine"
	"github.com/cuemby/cyclone/pkg/tree"
	"github.com/cuemby/cyclone/pkg/types"
)

// leafValue reads the typed value of the named leaf child, if present.
func leafValue(n *tree.Node, key string) (types.Value, bool) {
	c, ok := n.Child(key, false)
	if !ok {
		return types.Value{}, false
	}
	return c.Value()
}

func leafString(n *tree.Node, key string) (string, bool) {
	v, ok := leafValue(n, key)
	if !ok {
		return "", false
	}
	return v.Text(), true
}

func leafInt(n *tree.Node, key string) (int, bool, error) {
	v, ok := leafValue(n, key)
	if !ok {
		return 0, false, nil
	}
	i, err := valueInt(v)
	if err != nil {
		return 0, true, fmt.Errorf("%s at %s: %w", key, n.Path(), err)
	}
	return i, true, nil
}

func valueInt(v types.Value) (int, error) {
	switch v.Kind {
	case types.KindInt8, types.KindInt16, types.KindInt32, types.KindInt64:
		return int(v.Int()), nil
	case types.KindUint8, types.KindUint16, types.KindUint32, types.KindUint64:
		return int(v.Uint()), nil
	case types.KindString:
		parsed, err := types.ParseText(types.KindInt64, v.Text())
		if err != nil {
			return 0, err
		}
		return int(parsed.Int()), nil
	default:
		return 0, fmt.Errorf("kind %s is not an integer", v.Kind)
	}
}

func leafFloat(n *tree.Node, key string) (float64, bool, error) {
	v, ok := leafValue(n, key)
	if !ok {
		return 0, false, nil
	}
	switch v.Kind {
	case types.KindFloat32, types.KindFloat64:
		return v.Float(), true, nil
	case types.KindInt8, types.KindInt16, types.KindInt32, types.KindInt64:
		return float64(v.Int()), true, nil
	case types.KindUint8, types.KindUint16, types.KindUint32, types.KindUint64:
		return float64(v.Uint()), true, nil
	default:
		return 0, true, fmt.Errorf("%s at %s: kind %s is not numeric", key, n.Path(), v.Kind)
	}
}

// leafDuration reads a duration leaf: a string is parsed with
// time.ParseDuration ("250ms"); a bare number is taken as milliseconds.
func leafDuration(n *tree.Node, key string) (time.Duration, bool, error) {
	v, ok := leafValue(n, key)
	if !ok {
		return 0, false, nil
	}
	if v.Kind == types.KindString {
		d, err := time.ParseDuration(v.Text())
		if err != nil {
			return 0, true, fmt.Errorf("%s at %s: %w", key, n.Path(), err)
		}
		return d, true, nil
	}
	ms, err := valueInt(v)
	if err != nil {
		return 0, true, fmt.Errorf("%s at %s: %w", key, n.Path(), err)
	}
	return time.Duration(ms) * time.Millisecond, true, nil
}

// leafStrings reads a list-valued field: either a container whose leaf
// children are the entries (in insertion order), or a single leaf.
func leafStrings(n *tree.Node, key string) []string {
	c, ok := n.Child(key, false)
	if !ok {
		return nil
	}
	if v, isLeaf := c.Value(); isLeaf {
		return []string{v.Text()}
	}
	var out []string
	for _, entry := range c.Children() {
		if v, isLeaf := entry.Value(); isLeaf {
			out = append(out, v.Text())
		}
	}
	return out
}

func leafInts(n *tree.Node, key string) ([]int, error) {
	c, ok := n.Child(key, false)
	if !ok {
		return nil, nil
	}
	if v, isLeaf := c.Value(); isLeaf {
		i, err := valueInt(v)
		if err != nil {
			return nil, fmt.Errorf("%s at %s: %w", key, n.Path(), err)
		}
		return []int{i}, nil
	}
	var out []int
	for _, entry := range c.Children() {
		v, isLeaf := entry.Value()
		if !isLeaf {
			continue
		}
		i, err := valueInt(v)
		if err != nil {
			return nil, fmt.Errorf("%s at %s: %w", key, n.Path(), err)
		}
		out = append(out, i)
	}
	return out, nil
}

// parseSignals reads a function's InputSignals or OutputSignals container
// into a signal.Set, one descriptor per child, in declared order.
func parseSignals(container *tree.Node) (signal.Set, error) {
	var set signal.Set
	for _, node := range container.Children() {
		d, err := parseSignal(node)
		if err != nil {
			return nil, err
		}
		set = append(set, d)
	}
	return set, nil
}

func parseSignal(node *tree.Node) (*signal.Descriptor, error) {
	kindText, ok := leafString(node, "Type")
	if !ok {
		return nil, fmt.Errorf("signal %s: no Type declared", node.Path())
	}
	d := &signal.Descriptor{
		Name: node.Name(),
		Kind: types.Kind(kindText),
	}
	if _, err := types.ElementSize(d.Kind); err != nil {
		return nil, fmt.Errorf("signal %s: %w", node.Path(), err)
	}

	d.Alias, _ = leafString(node, "Alias")
	d.DataSource, _ = leafString(node, "DataSource")

	dims, present, err := leafInt(node, "NumberOfDimensions")
	if err != nil {
		return nil, err
	}
	if present {
		if dims < 0 || dims > 2 {
			return nil, fmt.Errorf("signal %s: NumberOfDimensions %d out of range", node.Path(), dims)
		}
		d.Dimensionality = types.Dimensionality(dims)
	}

	if elems, err := leafInts(node, "NumberOfElements"); err != nil {
		return nil, err
	} else if len(elems) > 0 {
		total := 1
		for _, e := range elems {
			total *= e
		}
		d.NumberOfElements = total
		if !present && total > 1 {
			// NumberOfDimensions omitted on a multi-element signal: a
			// per-dim list implies its own rank, a single count a vector.
			d.Dimensionality = types.Vector
			if len(elems) > 1 {
				d.Dimensionality = types.Dimensionality(len(elems))
			}
		}
	} else {
		d.NumberOfElements = 1
	}

	if d.Samples, _, err = leafInt(node, "Samples"); err != nil {
		return nil, err
	}
	if d.Frequency, _, err = leafFloat(node, "Frequency"); err != nil {
		return nil, err
	}
	if d.PreTriggerBuffers, _, err = leafInt(node, "PreTriggerBuffers"); err != nil {
		return nil, err
	}
	if d.PostTriggerBuffers, _, err = leafInt(node, "PostTriggerBuffers"); err != nil {
		return nil, err
	}

	if rangesNode, ok := node.Child("Ranges", false); ok {
		for _, r := range rangesNode.Children() {
			lo, _, err := leafInt(r, "Lo")
			if err != nil {
				return nil, err
			}
			hi, _, err := leafInt(r, "Hi")
			if err != nil {
				return nil, err
			}
			d.Ranges = append(d.Ranges, signal.Range{Lo: lo, Hi: hi})
		}
	}

	if v, ok := leafValue(node, "Default"); ok {
		def := v
		if v.Kind != d.Kind {
			def, err = types.ParseText(d.Kind, v.Text())
			if err != nil {
				return nil, fmt.Errorf("signal %s: Default: %w", node.Path(), err)
			}
		}
		d.Default = &def
	}

	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("signal %s: %w", node.Path(), err)
	}
	return d, nil
}

// parseState reads one States.<Name> node into a StateDescriptor.
func parseState(node *tree.Node) (scheduler.StateDescriptor, error) {
	sd := scheduler.StateDescriptor{Name: node.Name()}
	threads, ok := node.Child("Threads", false)
	if !ok {
		return sd, fmt.Errorf("state %s: no Threads declared", node.Path())
	}
	for _, tn := range threads.Children() {
		td := scheduler.ThreadDescriptor{Name: tn.Name()}
		var err error
		if td.CPUAffinity, err = leafInts(tn, "CPUs"); err != nil {
			return sd, err
		}
		if td.StackSize, _, err = leafInt(tn, "StackSize"); err != nil {
			return sd, err
		}
		td.Functions = leafStrings(tn, "Functions")
		if len(td.Functions) == 0 {
			return sd, fmt.Errorf("thread %s: no Functions declared", tn.Path())
		}
		td.SynchronisingDataSource, _ = leafString(tn, "SynchronisingDataSource")
		sd.Threads = append(sd.Threads, td)
	}
	if len(sd.Threads) == 0 {
		return sd, fmt.Errorf("state %s: Threads is empty", node.Path())
	}
	return sd, nil
}

// parseTransition reads one StateMachine.<State>.<Event> node.
func parseTransition(node *tree.Node) (*statemachine.Transition, error) {
	t := &statemachine.Transition{EventName: node.Name()}
	var ok bool
	if t.NextStateSuccess, ok = leafString(node, "NextState"); !ok {
		return nil, fmt.Errorf("event %s: no NextState declared", node.Path())
	}
	t.NextStateError, _ = leafString(node, "NextStateError")
	var err error
	if t.Timeout, _, err = leafDuration(node, "Timeout"); err != nil {
		return nil, err
	}

	if messages, present := node.Child("Messages", false); present {
		for _, mn := range messages.Children() {
			spec := statemachine.MessageSpec{}
			if spec.Destination, ok = leafString(mn, "Destination"); !ok {
				return nil, fmt.Errorf("message %s: no Destination declared", mn.Path())
			}
			if spec.Function, ok = leafString(mn, "Function"); !ok {
				return nil, fmt.Errorf("message %s: no Function declared", mn.Path())
			}
			if reply, present, err := leafInt(mn, "ExpectReply"); err != nil {
				return nil, err
			} else if present {
				spec.ExpectReply = reply != 0
			}
			if spec.Timeout, _, err = leafDuration(mn, "Timeout"); err != nil {
				return nil, err
			}
			if payload, present := mn.Child("Payload", false); present {
				spec.Payload = payload
			}
			t.Messages = append(t.Messages, spec)
		}
	}
	return t, nil
}
