package fs

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"pushback/internal/pushback"
)

// FilterFiles are the scratch include/exclude files handed to rsync. They are
// written once per invocation and shared by every target.
type FilterFiles struct {
	IncludePath string // empty when the set has no includes
	ExcludePath string
}

// WriteFilterFiles renders set into temporary files under dir (os.TempDir
// when empty). The include file lists the expanded includes, parents first,
// with a descendant rule after each re-included directory.
// The exclude file lists the built-ins, the additional excludes and finally
// the seal patterns that keep siblings of re-included paths excluded.
func WriteFilterFiles(dir string, set *pushback.PatternSet) (*FilterFiles, error) {
	ff := &FilterFiles{}

	if includes := set.TransferIncludes(); len(includes) > 0 {
		path, err := writeTemp(dir, "pushback-include-*.txt", strings.Join(includes, "\n")+"\n")
		if err != nil {
			return nil, fmt.Errorf("creating include file: %w", err)
		}
		ff.IncludePath = path
	}

	path, err := writeTemp(dir, "pushback-exclude-*.txt", renderExcludes(set))
	if err != nil {
		ff.Close()
		return nil, fmt.Errorf("creating exclude file: %w", err)
	}
	ff.ExcludePath = path

	return ff, nil
}

func renderExcludes(set *pushback.PatternSet) string {
	var b strings.Builder
	b.WriteString("# Built-in excludes\n")
	for _, p := range set.Builtins() {
		b.WriteString(p + "\n")
	}
	if extra := set.AdditionalExcludes(); len(extra) > 0 {
		b.WriteString("\n# Additional excludes\n")
		for _, p := range extra {
			b.WriteString(p + "\n")
		}
	}
	if seals := set.SealPatterns(); len(seals) > 0 {
		b.WriteString("\n# Siblings of re-included paths\n")
		for _, p := range seals {
			b.WriteString(p + "\n")
		}
	}
	return b.String()
}

func writeTemp(dir, pattern, content string) (string, error) {
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return "", err
	}
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

// Paths returns the file locations in the form transfers consume.
func (ff *FilterFiles) Paths() pushback.FilterPaths {
	return pushback.FilterPaths{ExcludeFile: ff.ExcludePath, IncludeFile: ff.IncludePath}
}

// Close removes both files. It is safe to call more than once.
func (ff *FilterFiles) Close() error {
	var errs []error
	for _, p := range []*string{&ff.IncludePath, &ff.ExcludePath} {
		if *p == "" {
			continue
		}
		if err := os.Remove(*p); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
		*p = ""
	}
	return errors.Join(errs...)
}
