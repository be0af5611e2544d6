package testutil

import (
	"sync"

	"pushback/internal/pushback"
)

// StubCollisionDecider answers every collision with Choice and records the
// candidates it was shown.
type StubCollisionDecider struct {
	Choice pushback.CollisionChoice
	Err    error

	mu    sync.Mutex
	Asked [][]string
}

func (d *StubCollisionDecider) DecideCollision(candidates []string) (pushback.CollisionChoice, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Asked = append(d.Asked, candidates)
	return d.Choice, d.Err
}

// StubLargeFileDecider ignores the files listed in Ignore (by relative path)
// and answers the persist question with Persist.
type StubLargeFileDecider struct {
	Ignore  []string
	Persist bool
	Err     error

	SelectCalls  int
	PersistCalls int
}

func (d *StubLargeFileDecider) SelectIgnored(files []pushback.LargeFile) ([]pushback.LargeFile, error) {
	d.SelectCalls++
	if d.Err != nil {
		return nil, d.Err
	}
	want := make(map[string]bool, len(d.Ignore))
	for _, p := range d.Ignore {
		want[p] = true
	}
	var ignored []pushback.LargeFile
	for _, f := range files {
		if want[f.RelPath] {
			ignored = append(ignored, f)
		}
	}
	return ignored, nil
}

func (d *StubLargeFileDecider) ConfirmPersist([]pushback.LargeFile) (bool, error) {
	d.PersistCalls++
	return d.Persist, d.Err
}

var (
	_ pushback.CollisionDecider = (*StubCollisionDecider)(nil)
	_ pushback.LargeFileDecider = (*StubLargeFileDecider)(nil)
)
