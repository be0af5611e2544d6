package database_test

import (
	"database/sql"
	"testing"
	"time"

	"pushback/internal/model"
	"pushback/internal/testutil"
)

func newRun(id string, started time.Time) *model.Run {
	return &model.Run{
		ID:           id,
		ProjectPath:  "/home/user/proj",
		ProjectName:  "proj",
		Fingerprint:  "0123abcd",
		SnapshotMode: "daily",
		TimeSuffix:   "_2024-01-15",
		StartedAt:    started,
		Status:       "running",
	}
}

func TestSQLiteHistory_Runs(t *testing.T) {
	t.Run("create and finish a run", func(t *testing.T) {
		h := testutil.NewTestHistory(t)
		started := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

		if err := h.CreateRun(newRun("run-1", started)); err != nil {
			t.Fatalf("CreateRun() error = %v", err)
		}
		if err := h.FinishRun("run-1", "success", started.Add(time.Minute)); err != nil {
			t.Fatalf("FinishRun() error = %v", err)
		}

		runs, err := h.ListRuns(10)
		if err != nil {
			t.Fatalf("ListRuns() error = %v", err)
		}
		if len(runs) != 1 {
			t.Fatalf("ListRuns() returned %d runs, want 1", len(runs))
		}
		got := runs[0]
		if got.Status != "success" {
			t.Errorf("Status = %q, want %q", got.Status, "success")
		}
		if !got.FinishedAt.Valid || !got.FinishedAt.Time.Equal(started.Add(time.Minute)) {
			t.Errorf("FinishedAt = %v, want %v", got.FinishedAt, started.Add(time.Minute))
		}
		if !got.StartedAt.Equal(started) {
			t.Errorf("StartedAt = %v, want %v", got.StartedAt, started)
		}
		if got.TimeSuffix != "_2024-01-15" || got.Fingerprint != "0123abcd" {
			t.Errorf("run = %+v, fields not round-tripped", got)
		}
	})

	t.Run("unfinished run has null finish time", func(t *testing.T) {
		h := testutil.NewTestHistory(t)
		run := newRun("run-1", time.Now().UTC())
		run.DryRun = true
		if err := h.CreateRun(run); err != nil {
			t.Fatalf("CreateRun() error = %v", err)
		}

		runs, err := h.ListRuns(1)
		if err != nil {
			t.Fatalf("ListRuns() error = %v", err)
		}
		if runs[0].FinishedAt != (sql.NullTime{}) {
			t.Errorf("FinishedAt = %v, want null", runs[0].FinishedAt)
		}
		if !runs[0].DryRun {
			t.Error("DryRun = false, want true")
		}
	})

	t.Run("finishing an unknown run fails", func(t *testing.T) {
		h := testutil.NewTestHistory(t)
		if err := h.FinishRun("missing", "success", time.Now()); err == nil {
			t.Error("FinishRun() expected error for unknown run, got nil")
		}
	})

	t.Run("lists newest first with limit", func(t *testing.T) {
		h := testutil.NewTestHistory(t)
		base := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
		for i, id := range []string{"a", "b", "c"} {
			if err := h.CreateRun(newRun(id, base.Add(time.Duration(i)*time.Hour))); err != nil {
				t.Fatalf("CreateRun(%s) error = %v", id, err)
			}
		}

		runs, err := h.ListRuns(2)
		if err != nil {
			t.Fatalf("ListRuns() error = %v", err)
		}
		if len(runs) != 2 || runs[0].ID != "c" || runs[1].ID != "b" {
			ids := make([]string, len(runs))
			for i, r := range runs {
				ids[i] = r.ID
			}
			t.Errorf("ListRuns(2) = %v, want [c b]", ids)
		}
	})
}

func TestSQLiteHistory_Targets(t *testing.T) {
	h := testutil.NewTestHistory(t)
	now := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	if err := h.CreateRun(newRun("run-1", now)); err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}

	recs := []*model.TargetRecord{
		{RunID: "run-1", Target: "nas", RemoteDir: "proj_0123abcd", Resolution: "minted", Outcome: "succeeded", FinishedAt: now},
		{RunID: "run-1", Target: "offsite", Outcome: "failed", Message: "checking remote base on offsite: boom", FinishedAt: now},
	}
	for _, rec := range recs {
		if err := h.RecordTarget(rec); err != nil {
			t.Fatalf("RecordTarget() error = %v", err)
		}
		if rec.ID == 0 {
			t.Error("RecordTarget() did not assign an ID")
		}
	}

	got, err := h.ListTargets("run-1")
	if err != nil {
		t.Fatalf("ListTargets() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ListTargets() returned %d records, want 2", len(got))
	}
	if got[0].Target != "nas" || got[1].Target != "offsite" {
		t.Errorf("ListTargets() order = [%s %s], want [nas offsite]", got[0].Target, got[1].Target)
	}
	if got[1].Message != recs[1].Message {
		t.Errorf("Message = %q, want %q", got[1].Message, recs[1].Message)
	}

	t.Run("unknown run id is rejected", func(t *testing.T) {
		err := h.RecordTarget(&model.TargetRecord{RunID: "missing", Target: "nas", Outcome: "succeeded", FinishedAt: now})
		if err == nil {
			t.Error("RecordTarget() expected foreign key error, got nil")
		}
	})
}
