package archive

import (
	"reflect"
	"slices"

	"github.com/cockroachdb/errors"
)

// IsArray reports whether v is stored as a dataset: a slice or array,
// possibly nested, whose innermost elements are numbers or booleans.
// Strings are never arrays; a []byte is an array of uint8.
func IsArray(v any) bool {
	if v == nil {
		return false
	}
	_, _, ok := elemKind(reflect.TypeOf(v))
	return ok
}

// elemKind descends through slice/array types and returns the innermost
// element kind and the nesting depth.
func elemKind(t reflect.Type) (reflect.Kind, int, bool) {
	depth := 0
	for t.Kind() == reflect.Slice || t.Kind() == reflect.Array {
		t = t.Elem()
		depth++
	}
	if depth == 0 || !isNumericKind(t.Kind()) {
		return reflect.Invalid, 0, false
	}
	return t.Kind(), depth, true
}

func isNumericKind(k reflect.Kind) bool {
	switch k {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// describeArray returns the dtype name and rectangular shape of v.
func describeArray(v any) (string, []int, error) {
	if v == nil {
		return "", nil, ErrNotArray
	}
	kind, depth, ok := elemKind(reflect.TypeOf(v))
	if !ok {
		return "", nil, errors.Wrapf(ErrNotArray, "%T", v)
	}
	shape, err := arrayShape(reflect.ValueOf(v), depth)
	if err != nil {
		return "", nil, err
	}
	return kind.String(), shape, nil
}

func arrayShape(rv reflect.Value, depth int) ([]int, error) {
	n := rv.Len()
	if depth == 1 {
		return []int{n}, nil
	}
	if n == 0 {
		return make([]int, depth), nil
	}

	var inner []int
	for i := 0; i < n; i++ {
		s, err := arrayShape(rv.Index(i), depth-1)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			inner = s
			continue
		}
		if !slices.Equal(s, inner) {
			return nil, errors.Newf("ragged array: row %d has shape %v, row 0 has %v", i, s, inner)
		}
	}
	return append([]int{n}, inner...), nil
}
