package fs

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// BackupIgnoreName is the per-project ignore file at the project root.
const BackupIgnoreName = ".backupignore"

// LargeFilesMarker heads every block appended by AppendBackupIgnore.
const LargeFilesMarker = "# Added by pushback (large files)"

// ParseIgnoreFile reads an ignore file and returns its raw lines.
// Returns nil and no error if the file does not exist.
func ParseIgnoreFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening ignore file: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading ignore file: %w", err)
	}
	return lines, nil
}

// LoadPatterns reads the ignore file at path and returns its patterns with
// blank lines and '#' comments dropped and surrounding whitespace trimmed.
func LoadPatterns(path string) ([]string, error) {
	lines, err := ParseIgnoreFile(path)
	if err != nil {
		return nil, err
	}
	var patterns []string
	for _, line := range lines {
		if p := strings.TrimSpace(line); p != "" && !strings.HasPrefix(p, "#") {
			patterns = append(patterns, p)
		}
	}
	return patterns, nil
}

// SplitBackupIgnore separates .backupignore patterns into excludes and
// re-includes. A leading '!' marks a re-include; the '!' is stripped and a
// bare "!" is dropped.
func SplitBackupIgnore(patterns []string) (excludes, includes []string) {
	for _, p := range patterns {
		if !strings.HasPrefix(p, "!") {
			excludes = append(excludes, p)
			continue
		}
		if inc := strings.TrimSpace(p[1:]); inc != "" {
			includes = append(includes, inc)
		}
	}
	return excludes, includes
}

// LoadBackupIgnore reads <root>/.backupignore and splits it.
func LoadBackupIgnore(root string) (excludes, includes []string, err error) {
	patterns, err := LoadPatterns(filepath.Join(root, BackupIgnoreName))
	if err != nil {
		return nil, nil, err
	}
	excludes, includes = SplitBackupIgnore(patterns)
	return excludes, includes, nil
}

// AppendBackupIgnore appends patterns to <root>/.backupignore under the large
// files marker, creating the file if needed. It returns the file's path.
func AppendBackupIgnore(root string, patterns []string) (string, error) {
	path := filepath.Join(root, BackupIgnoreName)
	if len(patterns) == 0 {
		return path, nil
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return path, fmt.Errorf("opening %s: %w", BackupIgnoreName, err)
	}

	var b strings.Builder
	b.WriteString("\n" + LargeFilesMarker + "\n")
	for _, p := range patterns {
		b.WriteString(p + "\n")
	}

	if _, err := f.WriteString(b.String()); err != nil {
		f.Close()
		return path, fmt.Errorf("writing %s: %w", BackupIgnoreName, err)
	}
	if err := f.Close(); err != nil {
		return path, fmt.Errorf("closing %s: %w", BackupIgnoreName, err)
	}
	return path, nil
}
