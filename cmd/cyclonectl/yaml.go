package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/cuemby/cyclone/pkg/tree"
	"github.com/cuemby/cyclone/pkg/types"
	"gopkg.in/yaml.v3"
)

// loadTree parses a YAML configuration file into a typed tree. It decodes
// through yaml.Node rather than a map so that declaration order survives;
// the tree's insertion order drives scheduler ordering.
func loadTree(path string) (*tree.Node, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseTree(raw)
}

func parseTree(raw []byte) (*tree.Node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse configuration: %w", err)
	}
	root := tree.New()
	if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		if err := fillNode(root, doc.Content[0]); err != nil {
			return nil, err
		}
	}
	return root, nil
}

func fillNode(dst *tree.Node, src *yaml.Node) error {
	switch src.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(src.Content); i += 2 {
			key := src.Content[i].Value
			child, _ := dst.Child(key, true)
			if err := fillNode(child, src.Content[i+1]); err != nil {
				return err
			}
		}
		return nil
	case yaml.SequenceNode:
		for i, entry := range src.Content {
			child, _ := dst.Child(strconv.Itoa(i), true)
			if err := fillNode(child, entry); err != nil {
				return err
			}
		}
		return nil
	case yaml.ScalarNode:
		v, err := scalarValue(src)
		if err != nil {
			return err
		}
		dst.SetValue(v)
		return nil
	default:
		return fmt.Errorf("unsupported YAML node kind %d at line %d", src.Kind, src.Line)
	}
}

func scalarValue(n *yaml.Node) (types.Value, error) {
	switch n.Tag {
	case "!!int":
		i, err := strconv.ParseInt(n.Value, 0, 64)
		if err != nil {
			return types.Value{}, fmt.Errorf("line %d: %w", n.Line, err)
		}
		return types.NewInt(types.KindInt64, i)
	case "!!float":
		f, err := strconv.ParseFloat(n.Value, 64)
		if err != nil {
			return types.Value{}, fmt.Errorf("line %d: %w", n.Line, err)
		}
		return types.NewFloat(types.KindFloat64, f)
	case "!!bool":
		b, err := strconv.ParseBool(n.Value)
		if err != nil {
			return types.Value{}, fmt.Errorf("line %d: %w", n.Line, err)
		}
		var u uint64
		if b {
			u = 1
		}
		return types.NewUint(types.KindUint8, u)
	default:
		return types.NewString(n.Value), nil
	}
}
