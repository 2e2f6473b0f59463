package hierarchy

import (
	"strings"

	"github.com/platinummonkey/orgscope/pkg/apperr"
)

const (
	// PathSeparator joins ancestor codes into a materialized path.
	PathSeparator = "."

	// MaxCodeLength bounds a single node code.
	MaxCodeLength = 50
)

func codeRuneAllowed(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z':
		return true
	case r >= 'A' && r <= 'Z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r == '_':
		return true
	}
	return false
}

// ValidateCode checks node code syntax: non-empty, at most MaxCodeLength
// characters, restricted to [A-Za-z0-9_].
func ValidateCode(code string) error {
	if code == "" {
		return apperr.NewValidation("node code must not be empty")
	}
	if len(code) > MaxCodeLength {
		return apperr.NewValidation("node code %q exceeds %d characters", code, MaxCodeLength)
	}
	for _, r := range code {
		if !codeRuneAllowed(r) {
			return apperr.NewValidation("invalid node code %q: only letters, digits and underscore allowed", code)
		}
	}
	return nil
}

// ValidatePath checks that path is non-empty and every segment is a valid code.
func ValidatePath(path string) error {
	if path == "" {
		return apperr.NewValidation("path must not be empty")
	}
	for _, segment := range strings.Split(path, PathSeparator) {
		if err := ValidateCode(segment); err != nil {
			return apperr.NewValidation("invalid path %q: %v", path, err)
		}
	}
	return nil
}

// DerivePath computes a child path from its parent's path and the child's
// code. An empty parentPath yields a root path equal to the code itself.
func DerivePath(parentPath, code string) (string, error) {
	if err := ValidateCode(code); err != nil {
		return "", err
	}
	if parentPath == "" {
		return code, nil
	}
	if err := ValidatePath(parentPath); err != nil {
		return "", err
	}
	return parentPath + PathSeparator + code, nil
}

// PathLevel returns the number of dot-separated segments minus one, i.e. the
// node's ancestor count.
func PathLevel(path string) (int, error) {
	if err := ValidatePath(path); err != nil {
		return 0, err
	}
	return strings.Count(path, PathSeparator), nil
}

// ParentPath strips the last segment of path. The second return is false for
// a single-segment (root) path.
func ParentPath(path string) (string, bool) {
	idx := strings.LastIndex(path, PathSeparator)
	if idx < 0 {
		return "", false
	}
	return path[:idx], true
}

// LastSegment returns the final code of path.
func LastSegment(path string) string {
	idx := strings.LastIndex(path, PathSeparator)
	if idx < 0 {
		return path
	}
	return path[idx+1:]
}

// IsAncestor reports whether ancestor is a strict ancestor of path. A path is
// never its own ancestor.
func IsAncestor(ancestor, path string) bool {
	if ancestor == "" || path == "" {
		return false
	}
	return strings.HasPrefix(path, ancestor+PathSeparator)
}

// IsDescendant reports whether path sits strictly below ancestor.
func IsDescendant(path, ancestor string) bool {
	return IsAncestor(ancestor, path)
}

// AncestorPaths returns every strict prefix path of path in root-to-leaf
// order, excluding path itself. A root path has no ancestors.
func AncestorPaths(path string) []string {
	segments := strings.Split(path, PathSeparator)
	if len(segments) <= 1 {
		return nil
	}
	ancestors := make([]string, 0, len(segments)-1)
	for i := 1; i < len(segments); i++ {
		ancestors = append(ancestors, strings.Join(segments[:i], PathSeparator))
	}
	return ancestors
}
