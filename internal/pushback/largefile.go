package pushback

import (
	"fmt"
	"path"
	"path/filepath"
)

// LargeFile is a file at or above the large-file threshold.
type LargeFile struct {
	RelPath string
	Size    int64
}

// FindLargeFiles walks root and returns every file that survives set and has
// at least minBytes, in lexical walk order. Excluded directories are pruned
// unless a re-include marker needs them. Unreadable subdirectories are skipped
// with a warning; only an unreadable root is an error.
func (s *Service) FindLargeFiles(root *Path, set *PatternSet, minBytes int64) ([]LargeFile, error) {
	var found []LargeFile
	if err := s.walk(root.String(), "", set, minBytes, &found, true); err != nil {
		return nil, err
	}
	s.logger.Debug("large file scan complete", "root", root.String(), "count", len(found))
	return found, nil
}

func (s *Service) walk(absDir, relDir string, set *PatternSet, minBytes int64, found *[]LargeFile, isRoot bool) error {
	entries, err := s.fsmgr.ReadDir(absDir)
	if err != nil {
		if isRoot {
			return fmt.Errorf("reading project directory: %w", err)
		}
		s.logger.Warn("skipping unreadable directory", "path", absDir, "error", err)
		return nil
	}

	for _, info := range entries {
		rel := info.Name()
		if relDir != "" {
			rel = path.Join(relDir, info.Name())
		}

		switch {
		case info.IsDir():
			if set.Decide(rel, true).Excluded {
				continue
			}
			if err := s.walk(filepath.Join(absDir, info.Name()), rel, set, minBytes, found, false); err != nil {
				return err
			}
		case info.Mode().IsRegular():
			if set.Decide(rel, false).Excluded {
				continue
			}
			if info.Size() >= minBytes {
				*found = append(*found, LargeFile{RelPath: rel, Size: info.Size()})
			}
		}
	}
	return nil
}

// LargeFileDecider asks a human what to do with large files.
type LargeFileDecider interface {
	// SelectIgnored returns the subset of files that should not be backed up.
	SelectIgnored(files []LargeFile) ([]LargeFile, error)

	// ConfirmPersist asks whether ignored files should be appended to .backupignore.
	ConfirmPersist(ignored []LargeFile) (bool, error)
}

// LargeFileOptions carries the force flags that bypass prompting.
type LargeFileOptions struct {
	// KeepAll keeps every large file without asking.
	KeepAll bool
	// Persist appends ignores to .backupignore without asking.
	Persist bool
}

// LargeFileDecision is the resolved answer for one scan.
type LargeFileDecision struct {
	Ignored []LargeFile
	Persist bool
}

// Patterns returns the ad-hoc root-anchored exclude patterns for the ignored files.
func (d LargeFileDecision) Patterns() []string {
	patterns := make([]string, len(d.Ignored))
	for i, f := range d.Ignored {
		patterns[i] = "/" + filepath.ToSlash(f.RelPath)
	}
	return patterns
}

// DecideLargeFiles resolves what to do with files, consulting decider only
// when opts does not already answer the question.
func DecideLargeFiles(files []LargeFile, opts LargeFileOptions, decider LargeFileDecider) (LargeFileDecision, error) {
	if len(files) == 0 || opts.KeepAll || decider == nil {
		return LargeFileDecision{}, nil
	}

	ignored, err := decider.SelectIgnored(files)
	if err != nil {
		return LargeFileDecision{}, fmt.Errorf("selecting large files: %w", err)
	}
	if len(ignored) == 0 {
		return LargeFileDecision{}, nil
	}

	persist := opts.Persist
	if !persist {
		persist, err = decider.ConfirmPersist(ignored)
		if err != nil {
			return LargeFileDecision{}, fmt.Errorf("confirming .backupignore update: %w", err)
		}
	}
	return LargeFileDecision{Ignored: ignored, Persist: persist}, nil
}
