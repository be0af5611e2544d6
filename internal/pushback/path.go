package pushback

// Path is a validated local directory: absolute, symlinks resolved.
// Paths are created by FilesystemManager.Resolve.
type Path struct {
	absPath string
	isDir   bool
}

// NewPath creates a Path from its components.
// This is primarily for use by FilesystemManager implementations.
func NewPath(absPath string, isDir bool) *Path {
	return &Path{absPath: absPath, isDir: isDir}
}

// String returns the absolute path.
func (p *Path) String() string {
	return p.absPath
}

// IsDir reports whether the path is a directory.
func (p *Path) IsDir() bool {
	return p.isDir
}
