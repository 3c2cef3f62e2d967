package archive

import (
	"database/sql"
	"path/filepath"
	"sort"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/vmihailenco/msgpack/v5"
)

// Dataset is an array entry read back from an archive.
type Dataset struct {
	Path  string
	DType string
	Shape []int
	// Units is nil when the dataset was written without a unit.
	Units   *string
	payload []byte
}

// Decode unmarshals the dataset contents into v, typically a pointer to a
// slice of the original element type.
func (d Dataset) Decode(v any) error {
	return errors.Wrapf(msgpack.Unmarshal(d.payload, v), "decode dataset %q", d.Path)
}

// Attribute is a scalar attached to a group or dataset.
type Attribute struct {
	Owner   string
	Name    string
	payload []byte
}

// Value decodes the attribute into its generic form.
func (a Attribute) Value() (any, error) {
	var v any
	if err := msgpack.Unmarshal(a.payload, &v); err != nil {
		return nil, errors.Wrapf(err, "decode attribute %q on %q", a.Name, a.Owner)
	}
	return v, nil
}

// Decode unmarshals the attribute into v.
func (a Attribute) Decode(v any) error {
	return errors.Wrapf(msgpack.Unmarshal(a.payload, v), "decode attribute %q on %q", a.Name, a.Owner)
}

// Snapshot is a full read-only view of an archive file.
type Snapshot struct {
	RunID      string
	CreatedAt  time.Time
	Groups     []string
	Datasets   map[string]Dataset
	Attributes map[string]map[string]Attribute
}

// Attr looks up the attribute name on owner.
func (s *Snapshot) Attr(owner, name string) (Attribute, bool) {
	attrs, ok := s.Attributes[owner]
	if !ok {
		return Attribute{}, false
	}
	a, ok := attrs[name]
	return a, ok
}

// HasGroup reports whether path exists as a group.
func (s *Snapshot) HasGroup(path string) bool {
	i := sort.SearchStrings(s.Groups, path)
	return i < len(s.Groups) && s.Groups[i] == path
}

// Children returns the direct child groups and datasets of group, sorted.
func (s *Snapshot) Children(group string) (groups, datasets []string) {
	for _, g := range s.Groups {
		if parent, _ := split(g); parent == group && g != group {
			groups = append(groups, g)
		}
	}
	for p := range s.Datasets {
		if parent, _ := split(p); parent == group {
			datasets = append(datasets, p)
		}
	}
	sort.Strings(datasets)
	return groups, datasets
}

// SortedAttributes returns owner's attributes ordered by name.
func (s *Snapshot) SortedAttributes(owner string) []Attribute {
	attrs := s.Attributes[owner]
	out := make([]Attribute, 0, len(attrs))
	for _, a := range attrs {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Load reads the whole archive at path without modifying it.
func Load(path string) (*Snapshot, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve archive path %q", path)
	}
	db, err := openDB(abs, "ro")
	if err != nil {
		return nil, errors.Wrapf(err, "load archive %q", abs)
	}
	defer db.Close()

	snap := &Snapshot{
		Datasets:   make(map[string]Dataset),
		Attributes: make(map[string]map[string]Attribute),
	}
	if err := loadMeta(db, snap); err != nil {
		return nil, err
	}
	if err := loadGroups(db, snap); err != nil {
		return nil, err
	}
	if err := loadAttributes(db, snap); err != nil {
		return nil, err
	}
	if err := loadDatasets(db, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

func loadMeta(db *sql.DB, snap *Snapshot) error {
	rows, err := db.Query(`SELECT key, value FROM meta`)
	if err != nil {
		return errors.Wrap(err, "query meta")
	}
	defer rows.Close()
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return errors.Wrap(err, "scan meta")
		}
		switch key {
		case "run_id":
			snap.RunID = value
		case "created_at":
			if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
				snap.CreatedAt = ts
			}
		}
	}
	return errors.Wrap(rows.Err(), "iterate meta")
}

func loadGroups(db *sql.DB, snap *Snapshot) error {
	rows, err := db.Query(`SELECT path FROM groups ORDER BY path`)
	if err != nil {
		return errors.Wrap(err, "query groups")
	}
	defer rows.Close()
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return errors.Wrap(err, "scan group")
		}
		snap.Groups = append(snap.Groups, p)
	}
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, "iterate groups")
	}
	sort.Strings(snap.Groups)
	return nil
}

func loadAttributes(db *sql.DB, snap *Snapshot) error {
	rows, err := db.Query(`SELECT owner, name, payload FROM attributes`)
	if err != nil {
		return errors.Wrap(err, "query attributes")
	}
	defer rows.Close()
	for rows.Next() {
		var a Attribute
		if err := rows.Scan(&a.Owner, &a.Name, &a.payload); err != nil {
			return errors.Wrap(err, "scan attribute")
		}
		if snap.Attributes[a.Owner] == nil {
			snap.Attributes[a.Owner] = make(map[string]Attribute)
		}
		snap.Attributes[a.Owner][a.Name] = a
	}
	return errors.Wrap(rows.Err(), "iterate attributes")
}

func loadDatasets(db *sql.DB, snap *Snapshot) error {
	rows, err := db.Query(`SELECT path, dtype, shape, payload FROM datasets`)
	if err != nil {
		return errors.Wrap(err, "query datasets")
	}
	defer rows.Close()
	for rows.Next() {
		var (
			d         Dataset
			shapeBlob []byte
		)
		if err := rows.Scan(&d.Path, &d.DType, &shapeBlob, &d.payload); err != nil {
			return errors.Wrap(err, "scan dataset")
		}
		if err := msgpack.Unmarshal(shapeBlob, &d.Shape); err != nil {
			return errors.Wrapf(err, "decode shape of %q", d.Path)
		}
		if a, ok := snap.Attr(d.Path, UnitsKey); ok {
			var unit string
			if err := a.Decode(&unit); err != nil {
				return err
			}
			d.Units = &unit
		}
		snap.Datasets[d.Path] = d
	}
	return errors.Wrap(rows.Err(), "iterate datasets")
}
