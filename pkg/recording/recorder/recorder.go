// Package recorder wraps user computations, archives their results under
// a mutable context and exports the figures they leave open.
//
// A Recorder owns mutable state (its context, archive and export registry)
// without internal locking. Callers must not use one from several
// goroutines at once, nor point two processes at the same run.
package recorder

import (
	"os"
	"time"

	"Pogger/pkg/config"
	"Pogger/pkg/logger"
	"Pogger/pkg/recording/archive"
	"Pogger/pkg/recording/figure"
	"Pogger/pkg/recording/printer"
	"Pogger/pkg/recording/schema"

	"github.com/cockroachdb/errors"
)

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Errors
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

var (
	ErrSchemaMismatch     = schema.ErrSchemaMismatch
	ErrWriteConflict      = archive.ErrWriteConflict
	ErrStorageUnavailable = archive.ErrStorageUnavailable
	ErrExportFailed       = errors.New("figure export failed")
	ErrPathEscape         = errors.New("path escapes run directory")
)

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Recorder
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// Options configures a Recorder. The zero value records under the
// configured archive path with stdout/stderr capture enabled.
type Options struct {
	// BaseDir overrides the configured archive path.
	BaseDir string

	// Name is the program name used in run paths. Defaults to ProgramName().
	Name string

	// Verbose logs a confirmation for every write and export.
	Verbose bool

	// Now stamps the run. Defaults to time.Now.
	Now func() time.Time

	// Figures is the figure source. Defaults to figure.Default.
	Figures *figure.Manager

	// DisableStdio leaves os.Stdout and os.Stderr untouched.
	DisableStdio bool
}

// Recorder is the composition root tying archive, context, figure export
// and output capture together.
type Recorder struct {
	paths    Paths
	archive  *archive.Archive
	figures  *figure.Manager
	context  string
	exported map[int]struct{}
	stdio    *printer.Installation
}

// New starts a run. It fails with ErrStorageUnavailable when the run
// directory or archive cannot be created; no partial Recorder is returned.
func New(opts Options) (*Recorder, error) {
	base := opts.BaseDir
	verbose := opts.Verbose
	if base == "" {
		cfg, err := config.Load()
		if err != nil {
			return nil, err
		}
		base = cfg.ArchivePath
		verbose = verbose || cfg.Verbose
	}

	if verbose {
		logger.EnableLevel(logger.INFO)
	} else if !logger.Initialized() {
		logger.Init(logger.WARN, "pogger")
	}

	name := opts.Name
	if name == "" {
		name = ProgramName()
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	started := now()
	paths := NewPaths(base, name, started)

	if err := os.MkdirAll(paths.Figures, 0755); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "failed to create run directory"), ErrStorageUnavailable)
	}
	a, err := archive.Create(paths.Archive)
	if err != nil {
		return nil, err
	}

	figs := opts.Figures
	if figs == nil {
		figs = figure.Default
	}

	r := &Recorder{
		paths:    paths,
		archive:  a,
		figures:  figs,
		exported: make(map[int]struct{}),
	}

	entry := RunEntry{RunID: a.RunID(), Started: started, Archive: paths.Archive}
	if !opts.DisableStdio {
		inst, err := printer.Install(paths.Log)
		if err != nil {
			return nil, errors.Mark(errors.Wrap(err, "failed to capture output"), ErrStorageUnavailable)
		}
		r.stdio = inst
		entry.Log = paths.Log
	}

	if err := NewRunIndex(base, name).Append(entry); err != nil {
		logger.Warn("Recorder", "Failed to update run index", map[string]interface{}{"error": err})
	}

	logger.Info("Recorder", "Recording started", map[string]interface{}{
		"run_id":  a.RunID(),
		"archive": paths.Archive,
	})
	return r, nil
}

// Close restores the process's standard streams if this Recorder captured
// them. The archive needs no closing.
func (r *Recorder) Close() error {
	if r.stdio == nil {
		return nil
	}
	err := r.stdio.Uninstall()
	r.stdio = nil
	return err
}

// Paths returns the run's file layout.
func (r *Recorder) Paths() Paths { return r.paths }

// Archive returns the run's archive.
func (r *Recorder) Archive() *archive.Archive { return r.archive }

// SetContext sets the namespace for every later write and export. The
// empty string resets it. The previous value is not kept.
func (r *Recorder) SetContext(value string) {
	r.context = value
	logger.Debug("Recorder", "Context set", map[string]interface{}{"context": value})
}

// Context returns the active namespace.
func (r *Recorder) Context() string { return r.context }

// scopedWriter prefixes every path with a context.
type scopedWriter struct {
	w      archive.Writer
	prefix string
}

func (s scopedWriter) WriteArray(path string, values any, unit *string) error {
	return s.w.WriteArray(archive.Join(s.prefix, path), values, unit)
}

func (s scopedWriter) WriteValue(path string, value any, unit *string) error {
	return s.w.WriteValue(archive.Join(s.prefix, path), value, unit)
}
