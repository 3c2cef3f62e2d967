// Package figure keeps track of the figures a process currently has open
// and exports them to disk.
package figure

import (
	"sync"

	"github.com/cockroachdb/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/vg"
)

// Formats lists the extensions every figure is exported to: one vector
// format and one raster format.
var Formats = []string{"svg", "png"}

// Default size of exported figures.
const (
	DefaultWidth  = 6 * vg.Inch
	DefaultHeight = 4 * vg.Inch
)

// Figure is an open plot with a process-unique ID and a user label.
type Figure struct {
	id    int
	label string
	mgr   *Manager

	// Plot is the drawing surface; callers add plotters to it freely.
	Plot *plot.Plot

	Width  vg.Length
	Height vg.Length
}

// ID returns the figure number. IDs increase with creation order.
func (f *Figure) ID() int { return f.id }

// Label returns the label the figure was opened with.
func (f *Figure) Label() string { return f.label }

// Close removes the figure from its manager's open set.
func (f *Figure) Close() {
	if f.mgr != nil {
		f.mgr.remove(f)
	}
}

// Save writes the figure to base.<ext> for every entry of Formats and
// returns the written paths. It stops at the first failing format.
func (f *Figure) Save(base string) ([]string, error) {
	written := make([]string, 0, len(Formats))
	for _, ext := range Formats {
		p := base + "." + ext
		if err := f.Plot.Save(f.Width, f.Height, p); err != nil {
			return written, errors.Wrapf(err, "save figure %q as %s", f.label, ext)
		}
		written = append(written, p)
	}
	return written, nil
}

// Manager owns the set of open figures.
type Manager struct {
	mu     sync.Mutex
	nextID int
	open   []*Figure
}

// NewManager returns an empty figure manager.
func NewManager() *Manager {
	return &Manager{nextID: 1}
}

// Default is the process-wide manager used by New and Open.
var Default = NewManager()

// New opens a figure labelled label on the default manager.
func New(label string) *Figure { return Default.New(label) }

// Open lists the default manager's open figures.
func Open() []*Figure { return Default.Open() }

// New opens a figure with a fresh plot titled label.
func (m *Manager) New(label string) *Figure {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.nextID == 0 {
		m.nextID = 1
	}
	p := plot.New()
	p.Title.Text = label
	f := &Figure{
		id:     m.nextID,
		label:  label,
		mgr:    m,
		Plot:   p,
		Width:  DefaultWidth,
		Height: DefaultHeight,
	}
	m.nextID++
	m.open = append(m.open, f)
	return f
}

// Open returns the open figures in creation order.
func (m *Manager) Open() []*Figure {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Figure, len(m.open))
	copy(out, m.open)
	return out
}

// CloseAll closes every open figure.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open = nil
}

func (m *Manager) remove(f *Figure) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, o := range m.open {
		if o == f {
			m.open = append(m.open[:i], m.open[i+1:]...)
			return
		}
	}
}
