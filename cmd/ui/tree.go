// Package ui renders archive contents for the CLI
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"Pogger/pkg/recording/archive"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// Styles used when the output is a terminal.
var (
	groupStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	datasetStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	attrStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	unitStyle    = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("205"))
)

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// TreeRenderer prints an archive snapshot as an indented tree.
type TreeRenderer struct {
	Styled bool
}

func (r TreeRenderer) style(s lipgloss.Style, text string) string {
	if !r.Styled {
		return text
	}
	return s.Render(text)
}

// Render writes the tree rooted at the archive's root group to w.
func (r TreeRenderer) Render(w io.Writer, snap *archive.Snapshot) error {
	var b strings.Builder
	b.WriteString(r.style(groupStyle, archive.RootGroup+"/"))
	b.WriteByte('\n')
	r.renderGroup(&b, snap, archive.RootGroup, "")
	_, err := io.WriteString(w, b.String())
	return err
}

func (r TreeRenderer) renderGroup(b *strings.Builder, snap *archive.Snapshot, group, indent string) {
	type entry struct {
		line  string
		group string
	}
	var entries []entry

	for _, a := range snap.SortedAttributes(group) {
		entries = append(entries, entry{line: r.attrLine(a)})
	}
	groups, datasets := snap.Children(group)
	for _, p := range datasets {
		entries = append(entries, entry{line: r.datasetLine(snap.Datasets[p])})
	}
	for _, g := range groups {
		entries = append(entries, entry{line: r.style(groupStyle, lastSegment(g)+"/"), group: g})
	}

	for i, e := range entries {
		connector, childIndent := "├── ", indent+"│   "
		if i == len(entries)-1 {
			connector, childIndent = "└── ", indent+"    "
		}
		b.WriteString(indent + connector + e.line + "\n")
		if e.group != "" {
			r.renderGroup(b, snap, e.group, childIndent)
		}
	}
}

func (r TreeRenderer) datasetLine(d archive.Dataset) string {
	dims := make([]string, len(d.Shape))
	for i, n := range d.Shape {
		dims[i] = fmt.Sprint(n)
	}
	line := r.style(datasetStyle, lastSegment(d.Path)) + fmt.Sprintf("  %s[%s]", d.DType, strings.Join(dims, "x"))
	if d.Units != nil {
		line += "  " + r.style(unitStyle, "["+*d.Units+"]")
	}
	return line
}

func (r TreeRenderer) attrLine(a archive.Attribute) string {
	v, err := a.Value()
	text := formatValue(v)
	if err != nil {
		text = "<" + err.Error() + ">"
	}
	return r.style(attrStyle, "@"+a.Name) + " = " + text
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return fmt.Sprintf("%q", x)
	default:
		return fmt.Sprintf("%v", x)
	}
}

func lastSegment(p string) string {
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		return p[i+1:]
	}
	return p
}
