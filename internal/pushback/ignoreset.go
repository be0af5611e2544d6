package pushback

import (
	"path/filepath"
	"strings"
)

// PatternSources holds the four layered pattern sources in merge order.
// ProjectIncludes are the re-include lines of .backupignore with the leading
// '!' already removed.
type PatternSources struct {
	Builtins        []string
	Global          []string
	ProjectExcludes []string
	ProjectIncludes []string
	AdHocExcludes   []string
}

// PatternSet is the merged, read-only exclude/include set for one invocation.
// Evaluating a path is a pure function of the path and the set.
type PatternSet struct {
	builtins []string
	excludes []string
	includes []string
	expanded []string
	markers  []string
}

// BuildPatternSet merges the sources. Excludes are concatenated in the fixed
// order builtins, global, project, ad-hoc and every entry is kept; includes are
// expanded so that each is preceded by its parent directory markers.
func BuildPatternSet(src PatternSources) *PatternSet {
	builtins := cleanPatterns(src.Builtins)
	excludes := append([]string(nil), builtins...)
	for _, group := range [][]string{src.Global, src.ProjectExcludes, src.AdHocExcludes} {
		excludes = append(excludes, cleanPatterns(group)...)
	}

	set := &PatternSet{
		builtins: builtins,
		excludes: excludes,
		includes: cleanPatterns(src.ProjectIncludes),
	}

	authored := make(map[string]bool, len(set.includes))
	for _, p := range set.includes {
		authored[p] = true
	}

	seen := make(map[string]bool)
	for _, inc := range set.includes {
		for _, parent := range ParentDirs(inc) {
			if seen[parent] {
				continue
			}
			seen[parent] = true
			set.expanded = append(set.expanded, parent)
			if !authored[parent] {
				set.markers = append(set.markers, parent)
			}
		}
		if !seen[inc] {
			seen[inc] = true
			set.expanded = append(set.expanded, inc)
		}
	}

	return set
}

// WithAdHocExcludes returns a new set with patterns appended after every
// existing exclude. The receiver is not modified.
func (s *PatternSet) WithAdHocExcludes(patterns []string) *PatternSet {
	return BuildPatternSet(PatternSources{
		Builtins:        s.builtins,
		ProjectExcludes: s.excludes[len(s.builtins):],
		ProjectIncludes: s.includes,
		AdHocExcludes:   patterns,
	})
}

func cleanPatterns(patterns []string) []string {
	var out []string
	for _, p := range patterns {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ParentDirs returns the directory-include markers needed to reach pattern,
// shallowest first. A leading '/' is preserved on each marker.
//
//	ParentDirs("/a/b/c") == []string{"/a/", "/a/b/"}
func ParentDirs(pattern string) []string {
	anchored := strings.HasPrefix(pattern, "/")
	var parts []string
	for _, part := range strings.Split(strings.TrimPrefix(pattern, "/"), "/") {
		if part != "" {
			parts = append(parts, part)
		}
	}

	var parents []string
	current := ""
	for i := 0; i < len(parts)-1; i++ {
		if current == "" {
			current = parts[i]
		} else {
			current += "/" + parts[i]
		}
		p := current + "/"
		if anchored {
			p = "/" + p
		}
		parents = append(parents, p)
	}
	return parents
}

// Excludes returns every exclude pattern in evaluation order.
func (s *PatternSet) Excludes() []string { return append([]string(nil), s.excludes...) }

// Includes returns the user-authored re-include patterns.
func (s *PatternSet) Includes() []string { return append([]string(nil), s.includes...) }

// ExpandedIncludes returns includes with their parent markers, parents first.
func (s *PatternSet) ExpandedIncludes() []string { return append([]string(nil), s.expanded...) }

// TransferIncludes returns the include rules for a first-match filter list:
// the expanded includes, each re-included directory followed by "<dir>/**".
// The descendant rule keeps everything under a re-included directory, as
// Decide does, even when another exclude would match it.
func (s *PatternSet) TransferIncludes() []string {
	marker := make(map[string]bool, len(s.markers))
	for _, m := range s.markers {
		marker[m] = true
	}
	var rules []string
	for _, p := range s.expanded {
		rules = append(rules, p)
		if strings.HasSuffix(p, "/") && !marker[p] {
			rules = append(rules, p+"**")
		}
	}
	return rules
}

// Builtins returns the built-in exclude patterns the set was built from.
func (s *PatternSet) Builtins() []string { return append([]string(nil), s.builtins...) }

// AdditionalExcludes returns the non-builtin excludes with exact duplicates
// (and anything already present in the builtins) removed. Output only.
func (s *PatternSet) AdditionalExcludes() []string {
	seen := make(map[string]bool, len(s.builtins))
	for _, p := range s.builtins {
		seen[p] = true
	}
	var out []string
	for _, p := range s.excludes[len(s.builtins):] {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}

// DisplayExcludes returns all excludes with exact duplicates removed.
func (s *PatternSet) DisplayExcludes() []string {
	return append(s.Builtins(), s.AdditionalExcludes()...)
}

// Reason explains a Decision.
type Reason string

const (
	ReasonNotExcluded Reason = "not-excluded"
	ReasonExcluded    Reason = "excluded"
	ReasonReincluded  Reason = "reincluded"
	ReasonTraverse    Reason = "traverse"
)

// Decision is the outcome of evaluating one path against a PatternSet.
// Pattern names the exclude or include that decided it, if any.
type Decision struct {
	Excluded bool
	Reason   Reason
	Pattern  string
}

// Decide evaluates relPath. A path is excluded when an exclude pattern matches
// it or one of its ancestor directories, unless an include pattern matches it
// or an ancestor. A directory that only matches a parent marker is traversed
// so deeper re-includes stay reachable; its other contents remain excluded.
func (s *PatternSet) Decide(relPath string, isDir bool) Decision {
	candidate := strings.Trim(filepath.ToSlash(relPath), "/")
	if isDir {
		candidate += "/"
	}

	excludedBy, reincludedBy := s.evaluate(candidate)
	switch {
	case excludedBy == "":
		return Decision{Reason: ReasonNotExcluded}
	case reincludedBy != "":
		return Decision{Reason: ReasonReincluded, Pattern: reincludedBy}
	}

	if isDir {
		if marker, ok := firstMatch(s.markers, candidate); ok {
			return Decision{Reason: ReasonTraverse, Pattern: marker}
		}
	}
	return Decision{Excluded: true, Reason: ReasonExcluded, Pattern: excludedBy}
}

// evaluate returns the first exclude that matches candidate or an ancestor and
// the first real include that does. Markers are not consulted.
func (s *PatternSet) evaluate(candidate string) (excludedBy, reincludedBy string) {
	paths := append(ancestorDirs(candidate), candidate)

	for _, p := range s.excludes {
		if matchAnyPath(p, paths) {
			excludedBy = p
			break
		}
	}
	if excludedBy == "" {
		return "", ""
	}
	for _, p := range s.includes {
		if matchAnyPath(p, paths) {
			reincludedBy = p
			break
		}
	}
	return excludedBy, reincludedBy
}

func matchAnyPath(pattern string, paths []string) bool {
	pattern = filepath.ToSlash(pattern)
	for _, p := range paths {
		if matchPattern(pattern, p) {
			return true
		}
	}
	return false
}

// SealPatterns returns "<marker>*" for every marker directory that is itself
// excluded. Placed after the includes in a first-match filter list, they keep
// the siblings of a re-included path excluded, matching Decide.
func (s *PatternSet) SealPatterns() []string {
	var seals []string
	for _, m := range s.markers {
		excludedBy, reincludedBy := s.evaluate(strings.TrimPrefix(m, "/"))
		if excludedBy != "" && reincludedBy == "" {
			seals = append(seals, m+"*")
		}
	}
	return seals
}
