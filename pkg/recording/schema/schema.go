// Package schema declares the naming structure of recorded results and
// decomposes result values against it.
package schema

import (
	"strings"
)

// Schema is a tree mirroring the shape of a recorded result. A leaf holds
// a name (or, in a unit schema, a unit label or nothing); a node holds an
// ordered list of sub-schemas.
type Schema struct {
	label    string
	children []Schema
	node     bool
	null     bool
}

// Leaf returns a leaf schema labelled s.
func Leaf(s string) Schema { return Schema{label: s} }

// Null returns a leaf without a label, used for unit-less positions.
func Null() Schema { return Schema{null: true} }

// Node returns an internal schema node with the given children in order.
func Node(children ...Schema) Schema {
	return Schema{node: true, children: children}
}

// Names is shorthand for a flat node of named leaves.
func Names(names ...string) Schema {
	children := make([]Schema, len(names))
	for i, n := range names {
		children[i] = Leaf(n)
	}
	return Node(children...)
}

// Units is shorthand for a flat node of unit leaves; "" means no unit.
func Units(units ...string) Schema {
	children := make([]Schema, len(units))
	for i, u := range units {
		if u == "" {
			children[i] = Null()
			continue
		}
		children[i] = Leaf(u)
	}
	return Node(children...)
}

// IsNode reports whether s is an internal node.
func (s Schema) IsNode() bool { return s.node }

// IsNull reports whether s is a label-less leaf.
func (s Schema) IsNull() bool { return !s.node && s.null }

// Label returns the leaf label. It is empty for nodes and null leaves.
func (s Schema) Label() string { return s.label }

// Len returns the number of children of a node, or 0 for a leaf.
func (s Schema) Len() int { return len(s.children) }

// Child returns the i-th child of a node.
func (s Schema) Child(i int) Schema { return s.children[i] }

// String renders s in tuple notation, e.g. ("x", ("y", -)).
func (s Schema) String() string {
	var b strings.Builder
	s.write(&b)
	return b.String()
}

func (s Schema) write(b *strings.Builder) {
	switch {
	case s.node:
		b.WriteByte('(')
		for i, c := range s.children {
			if i > 0 {
				b.WriteString(", ")
			}
			c.write(b)
		}
		if len(s.children) == 1 {
			b.WriteByte(',')
		}
		b.WriteByte(')')
	case s.null:
		b.WriteByte('-')
	default:
		b.WriteByte('"')
		b.WriteString(s.label)
		b.WriteByte('"')
	}
}

// Tuple is the internal-node type of a result value. Any other value is a
// leaf.
type Tuple []any
