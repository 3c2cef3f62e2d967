package archive

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// Join builds a slash-delimited archive path from segments. Segments may
// themselves contain slashes; empty components are dropped so that an
// empty context contributes nothing.
func Join(segments ...string) string {
	var parts []string
	for _, s := range segments {
		for _, p := range strings.Split(s, "/") {
			if p != "" {
				parts = append(parts, p)
			}
		}
	}
	return strings.Join(parts, "/")
}

// resolve roots p under RootGroup and validates each component.
func resolve(p string) (string, error) {
	rel := Join(p)
	if rel == "" {
		return "", errors.Wrapf(ErrInvalidPath, "empty path %q", p)
	}
	for _, seg := range strings.Split(rel, "/") {
		if seg == "." || seg == ".." {
			return "", errors.Wrapf(ErrInvalidPath, "path %q contains %q", p, seg)
		}
	}
	return RootGroup + "/" + rel, nil
}

// split returns the parent group and final segment of a resolved path.
func split(full string) (parent, name string) {
	i := strings.LastIndexByte(full, '/')
	if i < 0 {
		return "", full
	}
	return full[:i], full[i+1:]
}

// prefixes lists every ancestor-or-self group of a resolved group path,
// outermost first: "data/a/b" -> ["data", "data/a", "data/a/b"].
func prefixes(group string) []string {
	if group == "" {
		return nil
	}
	segs := strings.Split(group, "/")
	out := make([]string, len(segs))
	for i := range segs {
		out[i] = strings.Join(segs[:i+1], "/")
	}
	return out
}
