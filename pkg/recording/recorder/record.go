package recorder

import (
	"Pogger/pkg/logger"
	"Pogger/pkg/recording/schema"

	"github.com/cockroachdb/errors"
)

// outcome is the result of invoking a wrapped function: a value, an error,
// or a recovered panic.
type outcome struct {
	value    any
	err      error
	panicked bool
	panicVal any
}

func (o outcome) failed() bool { return o.panicked || o.err != nil }

func invoke(fn func() (any, error)) (o outcome) {
	defer func() {
		if p := recover(); p != nil {
			o.panicked, o.panicVal = true, p
		}
	}()
	o.value, o.err = fn()
	return o
}

// Call runs fn, archives its result against names and units under the
// current context, then exports any figure not exported yet.
//
// Archiving, export and a flush of captured output happen on every exit
// path, so everything the call printed is on the terminal and in the run
// log once Call returns or re-panics. Output printed outside a recorded
// call is only guaranteed after Close.
//
// When fn fails (error or panic) its result is treated as absent, figures
// are still exported, and the failure is handed back unchanged: the same
// error is returned, or the same value re-panicked. Recording problems
// never mask a failure of fn; they are logged, and returned only when fn
// itself succeeded. fn's return value is always passed through unmodified.
func (r *Recorder) Call(names, units schema.Schema, fn func() (any, error)) (any, error) {
	o := invoke(fn)

	var result any
	if !o.failed() {
		result = o.value
	}
	recErr := r.finish(names, units, result)

	if o.panicked {
		panic(o.panicVal)
	}
	if o.err != nil {
		return o.value, o.err
	}
	return o.value, recErr
}

// finish is the cleanup stage shared by every exit path.
func (r *Recorder) finish(names, units schema.Schema, result any) error {
	var errs []error

	w := scopedWriter{w: r.archive, prefix: r.context}
	if err := schema.Decompose(result, names, units, w); err != nil {
		logger.Error("Recorder", "Failed to record result", map[string]interface{}{
			"context": r.context,
			"schema":  names.String(),
			"error":   err,
		})
		errs = append(errs, err)
	}
	if err := r.exportFigures(); err != nil {
		errs = append(errs, err)
	}
	if r.stdio != nil {
		if err := r.stdio.Sync(); err != nil {
			logger.Warn("Recorder", "Failed to flush captured output", map[string]interface{}{"error": err})
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}

// Record returns fn decorated with Call. T is usually schema.Tuple or a
// single leaf type.
func Record[T any](r *Recorder, names, units schema.Schema, fn func() (T, error)) func() (T, error) {
	return func() (T, error) {
		var out T
		_, err := r.Call(names, units, func() (any, error) {
			v, err := fn()
			out = v
			return v, err
		})
		return out, err
	}
}

// RecordWith is Record for functions taking one argument.
func RecordWith[A, T any](r *Recorder, names, units schema.Schema, fn func(A) (T, error)) func(A) (T, error) {
	return func(arg A) (T, error) {
		var out T
		_, err := r.Call(names, units, func() (any, error) {
			v, err := fn(arg)
			out = v
			return v, err
		})
		return out, err
	}
}
