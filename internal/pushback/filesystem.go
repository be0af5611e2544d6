package pushback

import "io/fs"

// FilesystemManager abstracts local filesystem access so traversal can be
// tested without touching the real filesystem.
type FilesystemManager interface {
	// Resolve makes rawPath absolute, resolves symlinks and stats it.
	Resolve(rawPath string) (*Path, error)

	// ReadDir returns the entries of the directory at absPath sorted by name.
	// Entries are not followed through symlinks.
	ReadDir(absPath string) ([]fs.FileInfo, error)
}
