// Package archive persists recorded results into a single hierarchical
// container file.
//
// The container is a SQLite database holding three kinds of node: groups
// (namespaces), datasets (array entries) and attributes (scalars attached
// to a group or dataset). Every logical address lives under the "data"
// root group.
package archive

import (
	"github.com/cockroachdb/errors"
)

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Writer Interface
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// Writer is the write side of a hierarchical archive.
//
// Paths are slash-delimited and relative to the root group. A nil unit
// means the leaf carries no unit metadata.
type Writer interface {
	// WriteArray stores values as a dataset at path.
	WriteArray(path string, values any, unit *string) error

	// WriteValue stores value as an attribute of path's parent group.
	WriteValue(path string, value any, unit *string) error
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Layout
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

const (
	// RootGroup is the group every recorded path is nested under.
	RootGroup = "data"

	// UnitsKey is the reserved attribute holding a dataset's unit.
	UnitsKey = "_units"

	// UnitsSuffix is appended to a scalar's name to key its unit attribute.
	UnitsSuffix = "_units"
)

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Standard Errors
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

var (
	ErrStorageUnavailable = errors.New("archive storage unavailable")
	ErrWriteConflict      = errors.New("archive write conflict")
	ErrInvalidPath        = errors.New("invalid archive path")
	ErrNotArray           = errors.New("value is not array-like")
)
