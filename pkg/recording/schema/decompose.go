package schema

import (
	"fmt"
	"strings"

	"Pogger/pkg/recording/archive"

	"github.com/cockroachdb/errors"
)

// ErrSchemaMismatch reports a result or unit schema whose shape does not
// match the value being decomposed.
var ErrSchemaMismatch = errors.New("schema mismatch")

// NoUnits is the absent unit schema: every leaf is written without a unit.
var NoUnits Schema

func (s Schema) absent() bool { return !s.node && !s.null && s.label == "" }

// Decompose walks value against names (and units) and writes every leaf to
// w. Array-like leaves become datasets, everything else becomes a scalar
// attribute. A nil value (or nil Tuple) is an absent result and writes
// nothing.
//
// The full shape is checked before the first write, so a mismatch leaves
// the archive untouched. Individual write failures do not stop the walk;
// they are joined into the returned error.
func Decompose(value any, names, units Schema, w archive.Writer) error {
	if value == nil {
		return nil
	}
	if t, ok := value.(Tuple); ok && t == nil {
		return nil
	}
	if err := Validate(value, names, units); err != nil {
		return err
	}

	var errs []error
	walk(value, names, units, func(name string, leaf any, unit *string) {
		var err error
		if archive.IsArray(leaf) {
			err = w.WriteArray(name, leaf, unit)
		} else {
			err = w.WriteValue(name, leaf, unit)
		}
		if err != nil {
			errs = append(errs, errors.Wrapf(err, "leaf %q", name))
		}
	})
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}

// Validate checks that value, names and units have matching shapes.
func Validate(value any, names, units Schema) error {
	return validate(value, names, units, nil)
}

func validate(value any, names, units Schema, pos []int) error {
	if names.node {
		tuple, ok := value.(Tuple)
		if !ok {
			return mismatchf(pos, "schema %s expects a tuple of %d, got %T", names, len(names.children), value)
		}
		if len(tuple) != len(names.children) {
			return mismatchf(pos, "schema %s expects %d values, got %d", names, len(names.children), len(tuple))
		}
		unitNode := units.node
		if !unitNode && !units.absent() && !units.null {
			return mismatchf(pos, "unit %q given for tuple position %s", units.label, names)
		}
		if unitNode && len(units.children) != len(names.children) {
			return mismatchf(pos, "unit schema %s does not mirror %s", units, names)
		}
		for i := range tuple {
			sub := NoUnits
			if unitNode {
				sub = units.children[i]
			}
			if err := validate(tuple[i], names.children[i], sub, append(pos, i)); err != nil {
				return err
			}
		}
		return nil
	}

	if names.null || names.label == "" {
		return mismatchf(pos, "leaf has no name")
	}
	if _, ok := value.(Tuple); ok {
		return mismatchf(pos, "leaf %q received a tuple", names.label)
	}
	if units.node {
		return mismatchf(pos, "unit schema %s given for leaf %q", units, names.label)
	}
	return nil
}

// walk visits leaves in pre-order. It assumes a validated shape.
func walk(value any, names, units Schema, visit func(name string, leaf any, unit *string)) {
	if names.node {
		tuple := value.(Tuple)
		for i := range tuple {
			sub := NoUnits
			if units.node {
				sub = units.children[i]
			}
			walk(tuple[i], names.children[i], sub, visit)
		}
		return
	}
	var unit *string
	if !units.absent() && !units.null {
		u := units.label
		unit = &u
	}
	visit(names.label, value, unit)
}

func mismatchf(pos []int, format string, args ...any) error {
	var b strings.Builder
	b.WriteString("result")
	for _, i := range pos {
		fmt.Fprintf(&b, "[%d]", i)
	}
	return errors.Wrapf(ErrSchemaMismatch, "%s: %s", b.String(), fmt.Sprintf(format, args...))
}
