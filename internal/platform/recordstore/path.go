package recordstore

import (
	"fmt"
	"sort"
	"strings"
)

const forbiddenKeyChars = ".#$[]"

// Clean trims surrounding slashes. The empty string is the root.
func Clean(path string) string {
	return strings.Trim(strings.TrimSpace(path), "/")
}

func Split(path string) []string {
	path = Clean(path)
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

func Join(parts ...string) string {
	cleaned := make([]string, 0, len(parts))
	for _, part := range parts {
		if c := Clean(part); c != "" {
			cleaned = append(cleaned, c)
		}
	}
	return strings.Join(cleaned, "/")
}

// Validate rejects empty segments and characters the hosted tree never
// accepted in keys.
func Validate(path string) error {
	for _, seg := range Split(path) {
		if err := ValidateKey(seg); err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}
	}
	return nil
}

func ValidateKey(key string) error {
	if key == "" || strings.ContainsAny(key, forbiddenKeyChars) || strings.Contains(key, "/") {
		return fmt.Errorf("%w: key %q", ErrInvalidPath, key)
	}
	return nil
}

// IsAncestor reports whether a is a strict ancestor of b.
func IsAncestor(a, b string) bool {
	a, b = Clean(a), Clean(b)
	if a == b {
		return false
	}
	if a == "" {
		return true
	}
	return strings.HasPrefix(b, a+"/")
}

// Overlaps reports whether one path contains the other.
func Overlaps(a, b string) bool {
	a, b = Clean(a), Clean(b)
	return a == b || IsAncestor(a, b) || IsAncestor(b, a)
}

// Ancestors lists the strict ancestors of path, nearest last, excluding root.
func Ancestors(path string) []string {
	segs := Split(path)
	if len(segs) < 2 {
		return nil
	}
	out := make([]string, 0, len(segs)-1)
	for i := 1; i < len(segs); i++ {
		out = append(out, strings.Join(segs[:i], "/"))
	}
	return out
}

func sortStrings(values []string) {
	sort.Strings(values)
}
