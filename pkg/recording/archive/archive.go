package archive

import (
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"time"

	"Pogger/pkg/logger"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
	_ "modernc.org/sqlite"
)

const schemaSQL = `
CREATE TABLE groups (
    path TEXT PRIMARY KEY
);
CREATE TABLE datasets (
    path    TEXT PRIMARY KEY,
    dtype   TEXT NOT NULL,
    shape   BLOB NOT NULL,
    payload BLOB NOT NULL
);
CREATE TABLE attributes (
    owner   TEXT NOT NULL,
    name    TEXT NOT NULL,
    payload BLOB NOT NULL,
    PRIMARY KEY (owner, name)
);
CREATE TABLE meta (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Archive
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// Archive is an append-only writer over one archive file.
//
// No database handle is held between calls: every write opens the file,
// applies a single transaction and closes it again, so a failed write
// never disturbs what earlier writes committed.
//
// An Archive is not safe for concurrent use.
type Archive struct {
	path  string
	runID string

	// ensured holds groups known to be committed, to skip redundant inserts.
	ensured map[string]struct{}
}

// Create initializes a fresh archive at path, discarding any prior content.
// Any failure is marked ErrStorageUnavailable.
func Create(path string) (*Archive, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.Mark(errors.New("archive path is required"), ErrStorageUnavailable)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "resolve archive path %q", path), ErrStorageUnavailable)
	}

	for _, p := range []string{abs, abs + "-journal"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return nil, errors.Mark(errors.Wrapf(err, "truncate archive %q", p), ErrStorageUnavailable)
		}
	}

	a := &Archive{
		path:    abs,
		runID:   uuid.NewString(),
		ensured: make(map[string]struct{}),
	}

	err = a.withDB("rwc", func(db *sql.DB) error {
		if _, err := db.Exec(schemaSQL); err != nil {
			return errors.Wrap(err, "create archive schema")
		}
		if _, err := db.Exec(`INSERT INTO groups (path) VALUES (?)`, RootGroup); err != nil {
			return errors.Wrap(err, "create root group")
		}
		_, err := db.Exec(`INSERT INTO meta (key, value) VALUES ('run_id', ?), ('created_at', ?)`,
			a.runID, time.Now().UTC().Format(time.RFC3339Nano))
		return errors.Wrap(err, "write archive metadata")
	})
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "create archive %q", abs), ErrStorageUnavailable)
	}
	a.ensured[RootGroup] = struct{}{}

	logger.Debug("Archive", "Archive created", map[string]interface{}{
		"path":   abs,
		"run_id": a.runID,
	})
	return a, nil
}

// Path returns the absolute location of the archive file.
func (a *Archive) Path() string { return a.path }

// RunID returns the identifier stamped into the archive metadata.
func (a *Archive) RunID() string { return a.runID }

// WriteArray stores values as a dataset at path, creating intermediate
// groups as needed. A non-nil unit is attached under UnitsKey.
func (a *Archive) WriteArray(path string, values any, unit *string) error {
	full, err := resolve(path)
	if err != nil {
		return err
	}
	dtype, shape, err := describeArray(values)
	if err != nil {
		return errors.Wrapf(err, "write array %q", full)
	}
	payload, err := msgpack.Marshal(values)
	if err != nil {
		return errors.Wrapf(err, "encode array %q", full)
	}
	shapeBlob, err := msgpack.Marshal(shape)
	if err != nil {
		return errors.Wrapf(err, "encode shape %q", full)
	}

	parent, name := split(full)
	err = a.update(func(tx *sql.Tx, pending *[]string) error {
		if err := a.ensureGroups(tx, parent, pending); err != nil {
			return err
		}
		if found, err := exists(tx, `SELECT 1 FROM groups WHERE path = ?`, full); err != nil {
			return err
		} else if found {
			return errors.Wrapf(ErrWriteConflict, "%q is a group, cannot write an array there", full)
		}
		if found, err := exists(tx, `SELECT 1 FROM attributes WHERE owner = ? AND name = ?`, parent, name); err != nil {
			return err
		} else if found {
			return errors.Wrapf(ErrWriteConflict, "%q already holds a scalar, cannot write an array", full)
		}

		if _, err := tx.Exec(`
INSERT INTO datasets (path, dtype, shape, payload) VALUES (?, ?, ?, ?)
ON CONFLICT(path) DO UPDATE SET dtype = excluded.dtype, shape = excluded.shape, payload = excluded.payload`,
			full, dtype, shapeBlob, payload); err != nil {
			return errors.Wrapf(err, "insert dataset %q", full)
		}
		if _, err := tx.Exec(`DELETE FROM attributes WHERE owner = ? AND name = ?`, full, UnitsKey); err != nil {
			return errors.Wrapf(err, "clear units of %q", full)
		}
		if unit != nil {
			return putAttribute(tx, full, UnitsKey, *unit)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if logger.Enabled(logger.INFO) {
		logger.Info("Archive", "Array written", map[string]interface{}{
			"path":  full,
			"dtype": dtype,
			"shape": shape,
			"unit":  unitString(unit),
		})
	}
	return nil
}

// WriteValue stores value as an attribute named after path's final segment
// on its parent group. A non-nil unit is stored beside it as <name>_units.
func (a *Archive) WriteValue(path string, value any, unit *string) error {
	full, err := resolve(path)
	if err != nil {
		return err
	}
	parent, name := split(full)

	err = a.update(func(tx *sql.Tx, pending *[]string) error {
		if err := a.ensureGroups(tx, parent, pending); err != nil {
			return err
		}
		if found, err := exists(tx, `SELECT 1 FROM datasets WHERE path = ?`, full); err != nil {
			return err
		} else if found {
			return errors.Wrapf(ErrWriteConflict, "%q already holds an array, cannot write a scalar", full)
		}
		if err := putAttribute(tx, parent, name, value); err != nil {
			return err
		}
		if unit != nil {
			return putAttribute(tx, parent, name+UnitsSuffix, *unit)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if logger.Enabled(logger.INFO) {
		logger.Info("Archive", "Value written", map[string]interface{}{
			"group": parent,
			"name":  name,
			"unit":  unitString(unit),
		})
	}
	return nil
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Internals
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// ensureGroups materializes every group on the way to group. Groups that
// already exist are left alone.
func (a *Archive) ensureGroups(tx *sql.Tx, group string, pending *[]string) error {
	for _, g := range prefixes(group) {
		if _, ok := a.ensured[g]; ok {
			continue
		}
		if found, err := exists(tx, `SELECT 1 FROM datasets WHERE path = ?`, g); err != nil {
			return err
		} else if found {
			return errors.Wrapf(ErrWriteConflict, "%q is an array, cannot create a group there", g)
		}
		if _, err := tx.Exec(`INSERT OR IGNORE INTO groups (path) VALUES (?)`, g); err != nil {
			return errors.Wrapf(err, "create group %q", g)
		}
		*pending = append(*pending, g)
	}
	return nil
}

// update runs fn inside one transaction on a freshly opened handle. Groups
// appended to pending are remembered only once the transaction commits.
func (a *Archive) update(fn func(tx *sql.Tx, pending *[]string) error) error {
	var pending []string
	err := a.withDB("rw", func(db *sql.DB) error {
		tx, err := db.Begin()
		if err != nil {
			return errors.Wrap(err, "begin archive transaction")
		}
		if err := fn(tx, &pending); err != nil {
			_ = tx.Rollback()
			return err
		}
		return errors.Wrap(tx.Commit(), "commit archive transaction")
	})
	if err != nil {
		return err
	}
	for _, g := range pending {
		a.ensured[g] = struct{}{}
	}
	return nil
}

// withDB opens the archive in the given SQLite URI mode, runs fn and
// always closes the handle before returning.
func (a *Archive) withDB(mode string, fn func(db *sql.DB) error) (err error) {
	db, err := openDB(a.path, mode)
	if err != nil {
		return errors.Mark(err, ErrStorageUnavailable)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil && err == nil {
			err = errors.Wrap(cerr, "close archive")
		}
	}()
	return fn(db)
}

var uriEscaper = strings.NewReplacer("%", "%25", "?", "%3f", "#", "%23")

func openDB(path, mode string) (*sql.DB, error) {
	dsn := "file:" + uriEscaper.Replace(filepath.ToSlash(path)) + "?mode=" + mode
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open archive")
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "ping archive")
	}
	return db, nil
}

func exists(tx *sql.Tx, query string, args ...any) (bool, error) {
	var one int
	err := tx.QueryRow(query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "query archive")
	}
	return true, nil
}

func putAttribute(tx *sql.Tx, owner, name string, value any) error {
	payload, err := msgpack.Marshal(value)
	if err != nil {
		return errors.Wrapf(err, "encode attribute %q on %q", name, owner)
	}
	_, err = tx.Exec(`
INSERT INTO attributes (owner, name, payload) VALUES (?, ?, ?)
ON CONFLICT(owner, name) DO UPDATE SET payload = excluded.payload`,
		owner, name, payload)
	return errors.Wrapf(err, "write attribute %q on %q", name, owner)
}

func unitString(unit *string) string {
	if unit == nil {
		return ""
	}
	return *unit
}
