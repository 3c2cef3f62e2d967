package recorder

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Run layout
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// Paths locates the files produced by one run.
type Paths struct {
	// Dir is <base>/<name>/YYYY/MM/DD/HH-MM-SS.
	Dir string
	// Name is the per-run prefix, YYYY-MM-DDTHH-MM-SS_<name>.
	Name    string
	Archive string
	Log     string
	Figures string
}

// NewPaths lays out a run started at now for the program name under base.
func NewPaths(base, name string, now time.Time) Paths {
	dir := filepath.Join(base, name,
		now.Format("2006"), now.Format("01"), now.Format("02"), now.Format("15-04-05"))
	runName := now.Format("2006-01-02T15-04-05") + "_" + name
	return Paths{
		Dir:     dir,
		Name:    runName,
		Archive: filepath.Join(dir, runName+".db"),
		Log:     filepath.Join(dir, runName+".log"),
		Figures: filepath.Join(dir, "figures"),
	}
}

// ProgramName is the default run name: the executable's base name.
func ProgramName() string {
	return strings.TrimSuffix(filepath.Base(os.Args[0]), ".exe")
}

// validatePath ensures p stays within base.
func validatePath(base, p string) error {
	absPath, err := filepath.Abs(p)
	if err != nil {
		return errors.Wrapf(ErrPathEscape, "%v", err)
	}
	absBase, err := filepath.Abs(base)
	if err != nil {
		return errors.Wrapf(ErrPathEscape, "%v", err)
	}
	if !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) {
		return errors.Wrapf(ErrPathEscape, "%q", p)
	}
	return nil
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Run index
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// RunEntry is one line of a program's run index.
type RunEntry struct {
	RunID   string    `json:"run_id"`
	Started time.Time `json:"started"`
	Archive string    `json:"archive"`
	Log     string    `json:"log,omitempty"`
}

// RunIndex is the append-only list of runs recorded for one program name,
// stored as <base>/<name>/runs.jsonl.
type RunIndex struct {
	path string
	mu   sync.Mutex
}

// NewRunIndex returns the index for name under base.
func NewRunIndex(base, name string) *RunIndex {
	return &RunIndex{path: filepath.Join(base, name, "runs.jsonl")}
}

// Path returns the index file location.
func (h *RunIndex) Path() string { return h.path }

// Append adds a run to the index.
func (h *RunIndex) Append(e RunEntry) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	data, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "marshal run entry")
	}
	if err := os.MkdirAll(filepath.Dir(h.path), 0755); err != nil {
		return errors.Wrap(err, "create run index directory")
	}

	f, err := os.OpenFile(h.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return errors.Wrap(err, "open run index")
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return errors.Wrap(err, "append run entry")
	}
	return nil
}

// Load returns every well-formed entry, oldest first.
func (h *RunIndex) Load() ([]RunEntry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	data, err := os.ReadFile(h.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil // No runs yet
		}
		return nil, errors.Wrap(err, "read run index")
	}

	var entries []RunEntry
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var e RunEntry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			continue // Skip malformed lines
		}
		entries = append(entries, e)
	}
	return entries, nil
}
