package pushback_test

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"pushback/internal/pushback"
	"pushback/internal/testutil"
)

func TestService_Backup(t *testing.T) {
	id := pushback.ProjectIdentity{CanonicalPath: "/home/user/app", Name: "app", Fingerprint: "a1b2c3d4"}
	root := pushback.NewPath("/home/user/app", true)
	clock := testutil.NewStubClock(time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC))

	newRequest := func(targets ...pushback.Remote) pushback.BackupRequest {
		return pushback.BackupRequest{
			Root:      root,
			Identity:  id,
			Snapshot:  pushback.SnapshotSpec{Mode: pushback.SnapshotDaily},
			Targets:   targets,
			Patterns:  pushback.BuildPatternSet(pushback.PatternSources{Builtins: pushback.DefaultExcludes}),
			Filters:   pushback.FilterPaths{ExcludeFile: "/tmp/excl"},
			Collision: pushback.CollisionPolicy{},
		}
	}

	t.Run("transfers to every target in order", func(t *testing.T) {
		history := testutil.NewTestHistory(t)
		svc := pushback.NewService(testutil.NewMockFilesystemManager(), history, pushback.NewNopLogger(), clock, testutil.NewStubIDGenerator())
		nas := testutil.NewTestRemote("nas")
		offsite := testutil.NewTestRemote("offsite", "app_a1b2c3d4_2025-01-14")

		summary, err := svc.Backup(context.Background(), newRequest(nas, offsite))
		if err != nil {
			t.Fatalf("Backup() error = %v", err)
		}
		if !summary.OK() || summary.Status() != "success" {
			t.Errorf("summary = %+v, want all succeeded", summary.Results)
		}
		if summary.RunID != "run-1" || summary.TimeSuffix != "_2025-01-15" {
			t.Errorf("RunID, TimeSuffix = %q, %q; want run-1, _2025-01-15", summary.RunID, summary.TimeSuffix)
		}
		if !reflect.DeepEqual(summary.Succeeded(), []string{"nas", "offsite"}) {
			t.Errorf("Succeeded() = %v, want [nas offsite]", summary.Succeeded())
		}

		transfers := nas.Transfers()
		if len(transfers) != 1 {
			t.Fatalf("nas got %d transfers, want 1", len(transfers))
		}
		if transfers[0].RemoteDir != "app_a1b2c3d4_2025-01-15" || transfers[0].LocalRoot != "/home/user/app" {
			t.Errorf("transfer = %+v", transfers[0])
		}
		if transfers[0].Filters.ExcludeFile != "/tmp/excl" {
			t.Errorf("transfer filters = %+v, want the request's filter files", transfers[0].Filters)
		}
		if got := offsite.Dirs(); !reflect.DeepEqual(got, []string{"app_a1b2c3d4_2025-01-14", "app_a1b2c3d4_2025-01-15"}) {
			t.Errorf("offsite dirs = %v", got)
		}

		runs, err := history.ListRuns(10)
		if err != nil {
			t.Fatalf("ListRuns() error = %v", err)
		}
		if len(runs) != 1 || runs[0].Status != "success" || !runs[0].FinishedAt.Valid {
			t.Fatalf("runs = %+v, want one finished successful run", runs)
		}
		recs, err := history.ListTargets(runs[0].ID)
		if err != nil {
			t.Fatalf("ListTargets() error = %v", err)
		}
		if len(recs) != 2 || recs[0].Resolution != "minted" || recs[1].RemoteDir != "app_a1b2c3d4_2025-01-15" {
			t.Errorf("target records = %+v", recs)
		}
	})

	t.Run("second run in the same bucket reuses the directory", func(t *testing.T) {
		svc := newTestService(testutil.NewMockFilesystemManager())
		nas := testutil.NewTestRemote("nas")

		for i := 0; i < 2; i++ {
			if _, err := svc.Backup(context.Background(), newRequest(nas)); err != nil {
				t.Fatalf("Backup() error = %v", err)
			}
		}
		transfers := nas.Transfers()
		if len(transfers) != 2 || transfers[0].RemoteDir != transfers[1].RemoteDir {
			t.Errorf("transfers = %+v, want the same directory twice", transfers)
		}
		if got := nas.Dirs(); len(got) != 1 {
			t.Errorf("nas dirs = %v, want one directory", got)
		}
	})

	t.Run("next bucket mints a new directory without asking", func(t *testing.T) {
		weekly := testutil.FixedClock()
		decider := &testutil.StubCollisionDecider{Choice: pushback.ChoiceAbort}
		svc := pushback.NewService(testutil.NewMockFilesystemManager(), pushback.NopHistory{}, pushback.NewNopLogger(), weekly, testutil.NewStubIDGenerator())
		nas := testutil.NewTestRemote("nas")
		req := newRequest(nas)
		req.Snapshot = pushback.SnapshotSpec{Mode: pushback.SnapshotWeekly}
		req.Collision = pushback.CollisionPolicy{Decider: decider}

		first, err := svc.Backup(context.Background(), req)
		if err != nil {
			t.Fatalf("first Backup() error = %v", err)
		}
		next, err := weekly.AdvanceToNextBucket(req.Snapshot)
		if err != nil {
			t.Fatal(err)
		}
		second, err := svc.Backup(context.Background(), req)
		if err != nil {
			t.Fatalf("second Backup() error = %v", err)
		}

		if first.TimeSuffix != "_2024W03" || second.TimeSuffix != next || next != "_2024W04" {
			t.Errorf("suffixes = %q, %q (advanced to %q); want _2024W03, _2024W04", first.TimeSuffix, second.TimeSuffix, next)
		}
		if !second.OK() {
			t.Errorf("second run = %+v, want success", second.Results)
		}
		if want := []string{"app_a1b2c3d4_2024W03", "app_a1b2c3d4_2024W04"}; !reflect.DeepEqual(nas.Dirs(), want) {
			t.Errorf("nas dirs = %v, want %v", nas.Dirs(), want)
		}
		if len(decider.Asked) != 0 {
			t.Errorf("collision decider asked %v, want no questions", decider.Asked)
		}
	})

	t.Run("advancing within a bucket keeps the directory", func(t *testing.T) {
		hourly := testutil.FixedClock()
		svc := pushback.NewService(testutil.NewMockFilesystemManager(), pushback.NopHistory{}, pushback.NewNopLogger(), hourly, testutil.NewStubIDGenerator())
		nas := testutil.NewTestRemote("nas")
		req := newRequest(nas)
		req.Snapshot = pushback.SnapshotSpec{Mode: pushback.SnapshotCustom, CustomHours: 6}

		first, err := svc.Backup(context.Background(), req)
		if err != nil {
			t.Fatal(err)
		}
		hourly.Advance(time.Hour)
		second, err := svc.Backup(context.Background(), req)
		if err != nil {
			t.Fatal(err)
		}
		if first.TimeSuffix != second.TimeSuffix || len(nas.Dirs()) != 1 {
			t.Errorf("suffixes %q, %q with dirs %v; want one shared bucket", first.TimeSuffix, second.TimeSuffix, nas.Dirs())
		}
	})

	t.Run("fails closed after the first failing target", func(t *testing.T) {
		svc := newTestService(testutil.NewMockFilesystemManager())
		broken := testutil.NewTestRemote("broken")
		broken.ListErr = errors.New("connection refused")
		nas := testutil.NewTestRemote("nas")

		summary, err := svc.Backup(context.Background(), newRequest(broken, nas))
		if err != nil {
			t.Fatalf("Backup() error = %v", err)
		}
		if got := outcomes(summary); !reflect.DeepEqual(got, []pushback.Outcome{pushback.OutcomeFailed, pushback.OutcomeSkipped}) {
			t.Errorf("outcomes = %v, want [failed skipped]", got)
		}
		var remoteErr *pushback.RemoteError
		if !errors.As(summary.Results[0].Err, &remoteErr) || remoteErr.Target != "broken" {
			t.Errorf("Err = %v, want *RemoteError for broken", summary.Results[0].Err)
		}
		if len(nas.Transfers()) != 0 {
			t.Error("nas should not have been attempted")
		}
		if summary.Status() != "failed" {
			t.Errorf("Status() = %q, want failed", summary.Status())
		}
	})

	t.Run("keep going attempts every target", func(t *testing.T) {
		svc := newTestService(testutil.NewMockFilesystemManager())
		broken := testutil.NewTestRemote("broken")
		broken.TransferErr = errors.New("rsync exited with status 23")
		nas := testutil.NewTestRemote("nas")

		req := newRequest(broken, nas)
		req.KeepGoing = true
		summary, err := svc.Backup(context.Background(), req)
		if err != nil {
			t.Fatalf("Backup() error = %v", err)
		}
		if got := outcomes(summary); !reflect.DeepEqual(got, []pushback.Outcome{pushback.OutcomeFailed, pushback.OutcomeSucceeded}) {
			t.Errorf("outcomes = %v, want [failed succeeded]", got)
		}
		if !reflect.DeepEqual(summary.Failed(), []string{"broken"}) || summary.Status() != "partial" {
			t.Errorf("Failed() = %v, Status() = %q; want [broken], partial", summary.Failed(), summary.Status())
		}
	})

	t.Run("missing base fails with a hint", func(t *testing.T) {
		svc := newTestService(testutil.NewMockFilesystemManager())
		nas := testutil.NewTestRemote("nas")
		nas.BaseMissing = true

		summary, err := svc.Backup(context.Background(), newRequest(nas))
		if err != nil {
			t.Fatalf("Backup() error = %v", err)
		}
		result := summary.Results[0]
		if result.Outcome != pushback.OutcomeFailed || !errors.Is(result.Err, pushback.ErrRemoteBaseMissing) {
			t.Errorf("result = %+v, want failed with ErrRemoteBaseMissing", result)
		}
		if result.Hint == "" {
			t.Error("Hint is empty, want instructions for creating the base")
		}
	})

	t.Run("collision abort leaves the remote untouched", func(t *testing.T) {
		svc := newTestService(testutil.NewMockFilesystemManager())
		nas := testutil.NewTestRemote("nas", "app_deadbeef")

		req := newRequest(nas)
		req.Snapshot = pushback.SnapshotSpec{Mode: pushback.SnapshotNone}
		req.Collision = pushback.CollisionPolicy{Decider: &testutil.StubCollisionDecider{Choice: pushback.ChoiceAbort}}
		summary, err := svc.Backup(context.Background(), req)
		if err != nil {
			t.Fatalf("Backup() error = %v", err)
		}
		if summary.Results[0].Outcome != pushback.OutcomeAborted || !errors.Is(summary.Results[0].Err, pushback.ErrCollisionAborted) {
			t.Errorf("result = %+v, want aborted", summary.Results[0])
		}
		if len(nas.Transfers()) != 0 {
			t.Error("aborted target should not transfer")
		}
		if summary.Status() != "aborted" {
			t.Errorf("Status() = %q, want aborted", summary.Status())
		}
	})

	t.Run("cancellation interrupts and stops even with keep going", func(t *testing.T) {
		svc := newTestService(testutil.NewMockFilesystemManager())
		nas := testutil.NewTestRemote("nas")
		nas.TransferErr = pushback.ErrInterrupted
		offsite := testutil.NewTestRemote("offsite")

		req := newRequest(nas, offsite)
		req.KeepGoing = true
		summary, err := svc.Backup(context.Background(), req)
		if err != nil {
			t.Fatalf("Backup() error = %v", err)
		}
		if got := outcomes(summary); !reflect.DeepEqual(got, []pushback.Outcome{pushback.OutcomeInterrupted, pushback.OutcomeSkipped}) {
			t.Errorf("outcomes = %v, want [interrupted skipped]", got)
		}
		if !errors.Is(summary.Results[0].Err, pushback.ErrInterrupted) {
			t.Errorf("Err = %v, want ErrInterrupted", summary.Results[0].Err)
		}
		if summary.Status() != "interrupted" {
			t.Errorf("Status() = %q, want interrupted", summary.Status())
		}
	})

	t.Run("cancelled context is never a success", func(t *testing.T) {
		svc := newTestService(testutil.NewMockFilesystemManager())
		nas := testutil.NewTestRemote("nas")
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		summary, err := svc.Backup(ctx, newRequest(nas))
		if err != nil {
			t.Fatalf("Backup() error = %v", err)
		}
		if summary.Results[0].Outcome != pushback.OutcomeInterrupted {
			t.Errorf("Outcome = %s, want interrupted", summary.Results[0].Outcome)
		}
	})

	t.Run("dry run does not create directories", func(t *testing.T) {
		svc := newTestService(testutil.NewMockFilesystemManager())
		nas := testutil.NewTestRemote("nas")

		req := newRequest(nas)
		req.DryRun = true
		if _, err := svc.Backup(context.Background(), req); err != nil {
			t.Fatalf("Backup() error = %v", err)
		}
		if len(nas.Transfers()) != 1 || !nas.Transfers()[0].DryRun {
			t.Errorf("transfers = %+v, want one dry run", nas.Transfers())
		}
		if len(nas.Dirs()) != 0 {
			t.Errorf("dirs = %v, want none", nas.Dirs())
		}
	})

	t.Run("invalid requests are rejected", func(t *testing.T) {
		svc := newTestService(testutil.NewMockFilesystemManager())

		if _, err := svc.Backup(context.Background(), newRequest()); err == nil {
			t.Error("Backup() with no targets expected error, got nil")
		}
		req := newRequest(testutil.NewTestRemote("nas"))
		req.Snapshot = pushback.SnapshotSpec{Mode: pushback.SnapshotCustom}
		if _, err := svc.Backup(context.Background(), req); err == nil {
			t.Error("Backup() with custom mode and no interval expected error, got nil")
		}
	})
}

func outcomes(s *pushback.Summary) []pushback.Outcome {
	out := make([]pushback.Outcome, len(s.Results))
	for i, r := range s.Results {
		out[i] = r.Outcome
	}
	return out
}
