package fs

import (
	"bufio"
	"os"
	"path"
	"strings"
	"testing"

	"github.com/bmatcuk/doublestar/v4"

	"pushback/internal/pushback"
)

func TestWriteFilterFiles(t *testing.T) {
	t.Run("exclude file layout", func(t *testing.T) {
		set := pushback.BuildPatternSet(pushback.PatternSources{
			Builtins:        []string{"/.git/", "*.pyc"},
			Global:          []string{"*.pyc", ".DS_Store"},
			ProjectExcludes: []string{"/build/"},
			ProjectIncludes: []string{"/build/keep.txt"},
		})

		ff, err := WriteFilterFiles(t.TempDir(), set)
		if err != nil {
			t.Fatalf("WriteFilterFiles() error = %v", err)
		}
		defer ff.Close()

		exclude, err := os.ReadFile(ff.ExcludePath)
		if err != nil {
			t.Fatal(err)
		}
		wantExclude := "# Built-in excludes\n/.git/\n*.pyc\n" +
			"\n# Additional excludes\n.DS_Store\n/build/\n" +
			"\n# Siblings of re-included paths\n/build/*\n"
		if string(exclude) != wantExclude {
			t.Errorf("exclude file =\n%s\nwant\n%s", exclude, wantExclude)
		}

		include, err := os.ReadFile(ff.IncludePath)
		if err != nil {
			t.Fatal(err)
		}
		if string(include) != "/build/\n/build/keep.txt\n" {
			t.Errorf("include file = %q", include)
		}

		paths := ff.Paths()
		if paths.ExcludeFile != ff.ExcludePath || paths.IncludeFile != ff.IncludePath {
			t.Errorf("Paths() = %+v", paths)
		}
	})

	t.Run("no includes means no include file", func(t *testing.T) {
		set := pushback.BuildPatternSet(pushback.PatternSources{Builtins: []string{"/.git/"}})
		ff, err := WriteFilterFiles(t.TempDir(), set)
		if err != nil {
			t.Fatalf("WriteFilterFiles() error = %v", err)
		}
		defer ff.Close()

		if ff.IncludePath != "" {
			t.Errorf("IncludePath = %q, want empty", ff.IncludePath)
		}
		exclude, _ := os.ReadFile(ff.ExcludePath)
		if string(exclude) != "# Built-in excludes\n/.git/\n" {
			t.Errorf("exclude file = %q", exclude)
		}
	})

	t.Run("close removes both files and is idempotent", func(t *testing.T) {
		set := pushback.BuildPatternSet(pushback.PatternSources{ProjectIncludes: []string{"/a/b"}})
		ff, err := WriteFilterFiles(t.TempDir(), set)
		if err != nil {
			t.Fatalf("WriteFilterFiles() error = %v", err)
		}
		include, exclude := ff.IncludePath, ff.ExcludePath

		if err := ff.Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}
		for _, p := range []string{include, exclude} {
			if _, err := os.Stat(p); !os.IsNotExist(err) {
				t.Errorf("%s still exists after Close()", p)
			}
		}
		if err := ff.Close(); err != nil {
			t.Errorf("second Close() error = %v", err)
		}
	})

	t.Run("unwritable directory", func(t *testing.T) {
		set := pushback.BuildPatternSet(pushback.PatternSources{})
		if _, err := WriteFilterFiles("/nonexistent/dir", set); err == nil {
			t.Error("WriteFilterFiles() expected error, got nil")
		}
	})
}

type filterRule struct {
	pattern string
	include bool
}

// readFilterRules loads a filter file in rsync's order, skipping comments.
func readFilterRules(t *testing.T, file string, include bool) []filterRule {
	t.Helper()
	if file == "" {
		return nil
	}
	f, err := os.Open(file)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var rules []filterRule
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rules = append(rules, filterRule{pattern: line, include: include})
	}
	return rules
}

// rsyncMatch applies rsync's pattern rules: a trailing "/" matches only
// directories, a leading "/" anchors at the transfer root, a pattern with a
// "/" or "**" matches a trailing run of path components and anything else
// matches the final component.
func rsyncMatch(pattern, rel string, isDir bool) bool {
	if strings.HasSuffix(pattern, "/") {
		if !isDir {
			return false
		}
		pattern = strings.TrimSuffix(pattern, "/")
	}
	if strings.HasPrefix(pattern, "/") {
		ok, _ := doublestar.Match(strings.TrimPrefix(pattern, "/"), rel)
		return ok
	}
	if !strings.Contains(pattern, "/") && !strings.Contains(pattern, "**") {
		ok, _ := doublestar.Match(pattern, path.Base(rel))
		return ok
	}
	parts := strings.Split(rel, "/")
	for i := range parts {
		if ok, _ := doublestar.Match(pattern, strings.Join(parts[i:], "/")); ok {
			return true
		}
	}
	return false
}

// rsyncTransfers reports whether rsync would send rel: every ancestor
// directory and rel itself must survive a first-match walk of rules.
func rsyncTransfers(rules []filterRule, rel string, isDir bool) bool {
	parts := strings.Split(rel, "/")
	for i := range parts {
		current := strings.Join(parts[:i+1], "/")
		currentIsDir := isDir || i < len(parts)-1
		for _, r := range rules {
			if rsyncMatch(r.pattern, current, currentIsDir) {
				if !r.include {
					return false
				}
				break
			}
		}
	}
	return true
}

func TestWriteFilterFiles_MatchesDecide(t *testing.T) {
	set := pushback.BuildPatternSet(pushback.PatternSources{
		Builtins:        []string{"/.git/", "node_modules/", "*.pyc"},
		ProjectExcludes: []string{"/data/", "*.tmp", "/build/", "/logs/"},
		ProjectIncludes: []string{"/data/keep/", "/build/keep.txt", "/logs/2024/app.log"},
	})
	ff, err := WriteFilterFiles(t.TempDir(), set)
	if err != nil {
		t.Fatalf("WriteFilterFiles() error = %v", err)
	}
	defer ff.Close()

	rules := append(readFilterRules(t, ff.IncludePath, true), readFilterRules(t, ff.ExcludePath, false)...)

	tests := []struct {
		rel   string
		isDir bool
	}{
		{"src/main.go", false},
		{"src/cache.tmp", false},
		{"lib/mod.pyc", false},
		{"web/node_modules", true},
		{"web/node_modules/react/index.js", false},
		{".git/config", false},
		{"data/other.txt", false},
		{"data/other", true},
		{"data/keep", true},
		{"data/keep/report.csv", false},
		{"data/keep/x.tmp", false},
		{"data/keep/deep/y.tmp", false},
		{"data/keep/node_modules/z.js", false},
		{"build/keep.txt", false},
		{"build/other.txt", false},
		{"build/sub/keep.txt", false},
		{"logs/2024/app.log", false},
		{"logs/2024/other.log", false},
		{"logs/2023/app.log", false},
	}
	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			decided := !set.Decide(tt.rel, tt.isDir).Excluded
			if got := rsyncTransfers(rules, tt.rel, tt.isDir); got != decided {
				t.Errorf("filter files send %s = %v, Decide keeps it = %v", tt.rel, got, decided)
			}
		})
	}
}
