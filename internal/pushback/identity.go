package pushback

import (
	"crypto/sha1"
	"encoding/hex"
	"path/filepath"
)

// FingerprintLength is the number of hex characters kept from the path hash.
const FingerprintLength = 8

// ProjectIdentity identifies a local project tree on every remote.
// It is computed once per invocation and never persisted by the core.
type ProjectIdentity struct {
	CanonicalPath string
	Name          string
	Fingerprint   string
}

// NewProjectIdentity derives the identity of the project at canonicalPath,
// which must already be absolute with symlinks resolved.
func NewProjectIdentity(canonicalPath string) ProjectIdentity {
	name := filepath.Base(canonicalPath)
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = "folder"
	}
	return ProjectIdentity{
		CanonicalPath: canonicalPath,
		Name:          name,
		Fingerprint:   Fingerprint(canonicalPath),
	}
}

// Fingerprint returns the short SHA-1 hex digest of text.
func Fingerprint(text string) string {
	sum := sha1.Sum([]byte(text))
	return hex.EncodeToString(sum[:])[:FingerprintLength]
}

// BaseName is "<name>_<fingerprint>", the time-independent part of every
// remote directory name for this project.
func (id ProjectIdentity) BaseName() string {
	return id.Name + "_" + id.Fingerprint
}

// RemoteName appends timeSuffix to BaseName.
func (id ProjectIdentity) RemoteName(timeSuffix string) string {
	return id.BaseName() + timeSuffix
}
