package pushback

import (
	"sort"
	"strings"
)

// ResolutionKind records which rule produced a Resolution.
type ResolutionKind string

const (
	ResolvedExact           ResolutionKind = "exact"
	ResolvedBucket          ResolutionKind = "bucket"
	ResolvedMinted          ResolutionKind = "minted"
	ResolvedCollisionUpdate ResolutionKind = "collision-update"
	ResolvedCollisionCreate ResolutionKind = "collision-create"
)

// Resolution is the remote directory name chosen for one target.
// Candidates holds the foreign siblings when a collision was resolved.
type Resolution struct {
	Name       string
	Kind       ResolutionKind
	Candidates []string
}

// CollisionResolver turns a list of conflicting siblings into a terminal
// collision state. CollisionPolicy is the production implementation.
type CollisionResolver interface {
	Resolve(candidates []string) CollisionResult
}

// ResolveRemoteName picks the remote directory for identity in the bucket
// named by timeSuffix, given the sibling names observed on the remote.
//
// An exact match always wins silently. With snapshots enabled, an existing
// entry for the same bucket is reused and a missing bucket is minted; neither
// prompts. Without snapshots, siblings that carry the project name but a
// different fingerprint are a collision and are handed to policy. The result
// depends only on the arguments and the collision answer.
func ResolveRemoteName(id ProjectIdentity, timeSuffix string, mode SnapshotMode, listing []string, policy CollisionResolver) (Resolution, error) {
	exact := id.RemoteName(timeSuffix)
	for _, name := range listing {
		if name == exact {
			return Resolution{Name: exact, Kind: ResolvedExact}, nil
		}
	}

	if mode != SnapshotNone {
		if existing, ok := findBucketEntry(listing, exact); ok {
			return Resolution{Name: existing, Kind: ResolvedBucket}, nil
		}
		return Resolution{Name: exact, Kind: ResolvedMinted}, nil
	}

	foreign := ForeignSiblings(id, listing)
	if len(foreign) == 0 {
		return Resolution{Name: exact, Kind: ResolvedMinted}, nil
	}

	if policy == nil {
		return Resolution{Candidates: foreign}, ErrCollisionAborted
	}
	result := policy.Resolve(foreign)
	switch result.State {
	case CollisionUpdateExisting:
		return Resolution{Name: result.Target, Kind: ResolvedCollisionUpdate, Candidates: foreign}, nil
	case CollisionCreateNew:
		return Resolution{Name: exact, Kind: ResolvedCollisionCreate, Candidates: foreign}, nil
	default:
		return Resolution{Candidates: foreign}, ErrCollisionAborted
	}
}

// findBucketEntry returns the first sorted listing entry that extends prefix
// with non-digit characters, so "_I12" never adopts "_I123".
func findBucketEntry(listing []string, prefix string) (string, bool) {
	sorted := append([]string(nil), listing...)
	sort.Strings(sorted)
	for _, name := range sorted {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		rest := name[len(prefix):]
		if rest == "" || rest[0] < '0' || rest[0] > '9' {
			return name, true
		}
	}
	return "", false
}

// ForeignSiblings returns, sorted, the listing entries of the form
// "<name>_<fingerprint>[_...]" whose fingerprint differs from id's. Entries of
// another project whose name merely starts with id.Name are not foreign.
func ForeignSiblings(id ProjectIdentity, listing []string) []string {
	prefix := id.Name + "_"
	var foreign []string
	for _, name := range listing {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		fp, ok := parseFingerprint(name[len(prefix):])
		if !ok || fp == id.Fingerprint {
			continue
		}
		foreign = append(foreign, name)
	}
	sort.Strings(foreign)
	return foreign
}

func parseFingerprint(rest string) (string, bool) {
	if len(rest) < FingerprintLength {
		return "", false
	}
	if len(rest) > FingerprintLength && rest[FingerprintLength] != '_' {
		return "", false
	}
	fp := rest[:FingerprintLength]
	for _, c := range fp {
		if !strings.ContainsRune("0123456789abcdef", c) {
			return "", false
		}
	}
	return fp, true
}
