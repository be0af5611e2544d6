package remote

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"pushback/internal/pushback"
)

// MemoryRemote is an in-memory implementation of the Remote interface.
// Directories exist only as names, and each Transfer is recorded instead of
// copying data, which makes it useful for testing.
// This implementation is safe for concurrent use.
type MemoryRemote struct {
	name string
	dirs map[string]bool
	mu   sync.RWMutex

	// BaseMissing makes BaseExists report false.
	BaseMissing bool
	// Failure injection per operation.
	BaseErr     error
	ListErr     error
	TransferErr error

	transfers []pushback.TransferRequest
	failed    []pushback.TransferRequest
}

// NewMemoryRemote creates an empty in-memory remote with the given name.
// Any dirs are created under the base up front.
func NewMemoryRemote(name string, dirs ...string) *MemoryRemote {
	m := &MemoryRemote{
		name: name,
		dirs: make(map[string]bool),
	}
	for _, d := range dirs {
		m.dirs[d] = true
	}
	return m
}

func (m *MemoryRemote) Name() string { return m.name }

func (m *MemoryRemote) Describe() string { return "memory:" + m.name }

func (m *MemoryRemote) Location(dir string) string { return "memory:" + m.name + "/" + dir }

func (m *MemoryRemote) BaseExists(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if m.BaseErr != nil {
		return false, m.BaseErr
	}
	return !m.BaseMissing, nil
}

func (m *MemoryRemote) MissingBaseHint() string {
	return fmt.Sprintf("create the base of %s first", m.name)
}

// ListSiblings returns the sorted directory names that start with prefix.
func (m *MemoryRemote) ListSiblings(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.ListErr != nil {
		return nil, m.ListErr
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var names []string
	for d := range m.dirs {
		if strings.HasPrefix(d, prefix) {
			names = append(names, d)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Transfer records req and, unless it is a dry run, creates the directory.
func (m *MemoryRemote) Transfer(ctx context.Context, req pushback.TransferRequest) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", pushback.ErrInterrupted, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.TransferErr != nil {
		m.failed = append(m.failed, req)
		return m.TransferErr
	}

	m.transfers = append(m.transfers, req)
	if !req.DryRun {
		m.dirs[req.RemoteDir] = true
	}
	return nil
}

// Transfers returns every recorded transfer request in call order.
func (m *MemoryRemote) Transfers() []pushback.TransferRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]pushback.TransferRequest(nil), m.transfers...)
}

// Failed returns the requests rejected with TransferErr, in call order.
func (m *MemoryRemote) Failed() []pushback.TransferRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]pushback.TransferRequest(nil), m.failed...)
}

// Dirs returns the sorted directory names under the base.
func (m *MemoryRemote) Dirs() []string {
	names, _ := m.ListSiblings(context.Background(), "")
	return names
}

// Compile-time check that MemoryRemote implements pushback.Remote interface
var _ pushback.Remote = (*MemoryRemote)(nil)
