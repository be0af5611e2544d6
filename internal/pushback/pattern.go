package pushback

import (
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// MatchesAny reports whether any pattern in patterns matches relPath.
//
// relPath is relative to the project root; directories are passed with a
// trailing '/', which is how directory-only patterns ("build/") are told apart
// from file patterns. A pattern matches when its glob matches the bare path or
// the path prefixed with '/', so "/build/" and "build/" both work for a root
// entry. Patterns without an inner '/' also match the final path component at
// any depth, the same basename rule gitignore uses.
//
// A malformed glob (for example an unterminated "[") never raises: it is kept
// verbatim and simply matches nothing. Use InvalidPatterns to report them.
func MatchesAny(patterns []string, relPath string) bool {
	_, ok := firstMatch(patterns, relPath)
	return ok
}

// InvalidPatterns returns the patterns that are not valid globs. These are
// retained in every PatternSet but can never match.
func InvalidPatterns(patterns []string) []string {
	var bad []string
	for _, p := range patterns {
		if !doublestar.ValidatePattern(filepath.ToSlash(p)) {
			bad = append(bad, p)
		}
	}
	return bad
}

// firstMatch returns the first pattern (in order) that matches relPath.
func firstMatch(patterns []string, relPath string) (string, bool) {
	norm := filepath.ToSlash(relPath)
	for _, p := range patterns {
		if matchPattern(filepath.ToSlash(p), norm) {
			return p, true
		}
	}
	return "", false
}

func matchPattern(pattern, relPath string) bool {
	if pattern == "" || relPath == "" {
		return false
	}
	if !doublestar.ValidatePattern(pattern) {
		return false
	}
	if ok, _ := doublestar.Match(pattern, relPath); ok {
		return true
	}
	if ok, _ := doublestar.Match(pattern, "/"+relPath); ok {
		return true
	}
	if isBasenamePattern(pattern) {
		ok, _ := doublestar.Match(pattern, lastComponent(relPath))
		return ok
	}
	return false
}

// isBasenamePattern reports whether pattern has no '/' other than a trailing one.
func isBasenamePattern(pattern string) bool {
	return !strings.Contains(strings.TrimSuffix(pattern, "/"), "/")
}

// lastComponent returns the final element of p, keeping a trailing '/'.
func lastComponent(p string) string {
	trimmed := strings.TrimSuffix(p, "/")
	return p[strings.LastIndex(trimmed, "/")+1:]
}

// ancestorDirs returns the directory prefixes of relPath, shallowest first,
// each with a trailing '/'. "a/b/c" yields ["a/", "a/b/"].
func ancestorDirs(relPath string) []string {
	parts := strings.Split(strings.Trim(relPath, "/"), "/")
	if len(parts) < 2 {
		return nil
	}
	dirs := make([]string, 0, len(parts)-1)
	current := ""
	for _, part := range parts[:len(parts)-1] {
		current += part + "/"
		dirs = append(dirs, current)
	}
	return dirs
}
