package fs

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"pushback/internal/pushback"
)

// OSFilesystemManager is the real filesystem implementation of FilesystemManager.
type OSFilesystemManager struct{}

// NewOSFilesystemManager creates a new filesystem manager that operates on the real filesystem.
func NewOSFilesystemManager() *OSFilesystemManager {
	return &OSFilesystemManager{}
}

// Resolve expands a leading "~", makes rawPath absolute and resolves symlinks.
// The canonical form is what the project fingerprint is computed from.
func (m *OSFilesystemManager) Resolve(rawPath string) (*pushback.Path, error) {
	expanded, err := ExpandHome(rawPath)
	if err != nil {
		return nil, err
	}

	absPath, err := filepath.Abs(expanded)
	if err != nil {
		return nil, fmt.Errorf("resolving absolute path: %w", err)
	}

	canonical, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		return nil, fmt.Errorf("resolving symlinks: %w", err)
	}

	info, err := os.Stat(canonical)
	if err != nil {
		return nil, fmt.Errorf("stat path: %w", err)
	}

	return pushback.NewPath(canonical, info.IsDir()), nil
}

// ReadDir lists absPath sorted by name. Entry info comes from lstat, so
// symlinks are reported as symlinks and never followed.
func (m *OSFilesystemManager) ReadDir(absPath string) ([]fs.FileInfo, error) {
	entries, err := os.ReadDir(absPath)
	if err != nil {
		return nil, fmt.Errorf("reading directory: %w", err)
	}

	infos := make([]fs.FileInfo, 0, len(entries))
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			// Removed between listing and stat.
			continue
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name() < infos[j].Name() })
	return infos, nil
}

// ExpandHome replaces a leading "~" or "~/" with the user's home directory.
func ExpandHome(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("expanding %s: %w", p, err)
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
}

// Compile-time check that OSFilesystemManager implements pushback.FilesystemManager interface
var _ pushback.FilesystemManager = (*OSFilesystemManager)(nil)
