package pushback

import (
	"time"

	"pushback/internal/model"
)

// History records backup runs and their per-target outcomes.
type History interface {
	CreateRun(run *model.Run) error
	RecordTarget(rec *model.TargetRecord) error
	FinishRun(runID string, status string, finishedAt time.Time) error
	ListRuns(limit int) ([]*model.Run, error)
	ListTargets(runID string) ([]*model.TargetRecord, error)
}

// NopHistory records nothing.
type NopHistory struct{}

func (NopHistory) CreateRun(*model.Run) error                        { return nil }
func (NopHistory) RecordTarget(*model.TargetRecord) error            { return nil }
func (NopHistory) FinishRun(string, string, time.Time) error         { return nil }
func (NopHistory) ListRuns(int) ([]*model.Run, error)                { return nil, nil }
func (NopHistory) ListTargets(string) ([]*model.TargetRecord, error) { return nil, nil }
