package recorder

import (
	"path/filepath"
	"strings"

	"Pogger/pkg/logger"
	"Pogger/pkg/recording/archive"

	"github.com/cockroachdb/errors"
)

// ContextEscape replaces path separators of the context in figure file
// names.
const ContextEscape = "-"

// exportFigures saves every open figure that has not been exported during
// this Recorder's lifetime, in creation order. A figure is registered only
// once saved; failures are logged and joined, and do not stop the rest.
func (r *Recorder) exportFigures() error {
	var errs []error
	for _, f := range r.figures.Open() {
		if _, done := r.exported[f.ID()]; done {
			continue
		}

		base, err := r.figureBase(f.Label())
		var files []string
		if err == nil {
			files, err = f.Save(base)
		}
		if err != nil {
			err = errors.Mark(errors.Wrapf(err, "figure %d %q", f.ID(), f.Label()), ErrExportFailed)
			logger.Error("Recorder", "Failed to export figure", map[string]interface{}{
				"figure": f.ID(),
				"label":  f.Label(),
				"error":  err,
			})
			errs = append(errs, err)
			continue
		}

		r.exported[f.ID()] = struct{}{}
		if logger.Enabled(logger.INFO) {
			logger.Info("Recorder", "Figure exported", map[string]interface{}{
				"figure": f.ID(),
				"label":  f.Label(),
				"files":  files,
			})
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}

// figureBase builds <figures>/<run>[_<context>]_<label>, without extension.
func (r *Recorder) figureBase(label string) (string, error) {
	name := r.paths.Name
	if ctx := archive.Join(r.context); ctx != "" {
		name += "_" + strings.ReplaceAll(ctx, "/", ContextEscape)
	}
	name += "_" + label

	p := filepath.Join(r.paths.Figures, name)
	if err := validatePath(r.paths.Figures, p); err != nil {
		return "", err
	}
	return p, nil
}
