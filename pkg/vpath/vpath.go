// Package vpath implements virtual filesystem path normalization.
//
// Every path that crosses the protocol boundary is normalized exactly once
// and then carried as a vpath.Path. Backends and the handle manager never
// see raw client input; they operate on normalized paths only, which makes
// a Path safe to use directly as a lookup key.
//
// A normalized path is absolute, uses single '/' separators, contains no
// "." or ".." segments, and has no trailing separator except for the root
// "/" itself.
package vpath

import (
	"errors"
	"strings"
)

// Path is a normalized virtual filesystem path.
//
// A Path is only ever produced by Normalize. The underlying string is
// immutable, so passing one around is a borrowed view: Normalize returns
// the input string unchanged (no allocation) when it is already in
// canonical form, and materializes a fresh string only when normalization
// actually rewrites it.
type Path string

// Root is the virtual filesystem root.
const Root = Path("/")

// ErrInvalidPath indicates a path that cannot be represented in the
// virtual filesystem: it contains a NUL byte or climbs above the root
// via "..".
var ErrInvalidPath = errors.New("invalid path")

// Normalize canonicalizes a raw client-supplied path.
//
// Relative paths are interpreted against the root, "." segments and
// duplicate separators are dropped, and ".." pops the previously retained
// segment. Popping past the root is an error rather than being clamped:
// a client asking for "/../etc" is asking for something outside the
// virtual tree.
//
// Normalize is idempotent and never allocates when the input is already
// normalized.
func Normalize(raw string) (Path, error) {
	if strings.IndexByte(raw, 0) >= 0 {
		return "", ErrInvalidPath
	}

	if isNormalized(raw) {
		return Path(raw), nil
	}

	// Fast path rejected the input; rebuild it segment by segment.
	segments := make([]string, 0, 8)
	for seg := range strings.SplitSeq(raw, "/") {
		switch seg {
		case "", ".":
			// Empty segments come from duplicate or leading separators.
		case "..":
			if len(segments) == 0 {
				return "", ErrInvalidPath
			}
			segments = segments[:len(segments)-1]
		default:
			segments = append(segments, seg)
		}
	}

	if len(segments) == 0 {
		return Root, nil
	}
	return Path("/" + strings.Join(segments, "/")), nil
}

// isNormalized reports whether raw is already in canonical form, in which
// case Normalize can return it as-is without allocating.
func isNormalized(raw string) bool {
	if raw == "/" {
		return true
	}
	if len(raw) == 0 || raw[0] != '/' || raw[len(raw)-1] == '/' {
		return false
	}

	rest := raw[1:]
	for len(rest) > 0 {
		idx := strings.IndexByte(rest, '/')
		var seg string
		if idx < 0 {
			seg, rest = rest, ""
		} else {
			seg, rest = rest[:idx], rest[idx+1:]
		}
		if seg == "" || seg == "." || seg == ".." {
			return false
		}
	}
	return true
}

// IsRoot reports whether p is the virtual root.
func (p Path) IsRoot() bool {
	return p == Root
}

// Key returns the backend lookup key for p: the path without its leading
// separator, empty for the root. Flat-namespace backends (memory, S3,
// badger) store objects under this key.
func (p Path) Key() string {
	if p.IsRoot() {
		return ""
	}
	return strings.TrimPrefix(string(p), "/")
}

// Base returns the final segment of p, or "/" for the root.
func (p Path) Base() string {
	if p.IsRoot() {
		return "/"
	}
	s := string(p)
	return s[strings.LastIndexByte(s, '/')+1:]
}

// Join appends a single child segment to p. The segment must not contain
// separators; it is the caller's job to normalize anything larger.
func (p Path) Join(name string) Path {
	if p.IsRoot() {
		return Path("/" + name)
	}
	return Path(string(p) + "/" + name)
}

func (p Path) String() string {
	return string(p)
}
