package pushback

import (
	"context"
	"errors"
	"fmt"

	"pushback/internal/model"
)

// Service orchestrates a backup: it resolves the remote directory for each
// target in turn and hands the transfer to the target. Pattern evaluation,
// bucketing and resolution are pure; all I/O goes through the injected
// collaborators.
type Service struct {
	fsmgr   FilesystemManager
	history History
	logger  Logger
	clock   Clock
	idgen   IDGenerator
}

// NewService creates a Service with the provided dependencies.
func NewService(fsmgr FilesystemManager, history History, logger Logger, clock Clock, idgen IDGenerator) *Service {
	if history == nil {
		history = NopHistory{}
	}
	return &Service{
		fsmgr:   fsmgr,
		history: history,
		logger:  logger,
		clock:   clock,
		idgen:   idgen,
	}
}

// Outcome is the result of one target within a run.
type Outcome string

const (
	OutcomeSucceeded   Outcome = "succeeded"
	OutcomeFailed      Outcome = "failed"
	OutcomeAborted     Outcome = "aborted"
	OutcomeInterrupted Outcome = "interrupted"
	OutcomeSkipped     Outcome = "skipped"
)

// BackupRequest is everything a run needs. Patterns, Identity and Filters are
// computed once and shared read-only by every target.
type BackupRequest struct {
	Root      *Path
	Identity  ProjectIdentity
	Snapshot  SnapshotSpec
	Targets   []Remote
	Patterns  *PatternSet
	Filters   FilterPaths
	Collision CollisionResolver

	DeleteExtraneous bool
	DryRun           bool

	// KeepGoing attempts every target even after a failure. By default the
	// run stops at the first target that does not succeed.
	KeepGoing bool
}

// TargetResult is the outcome for one target.
type TargetResult struct {
	Target     string
	Location   string
	Resolution Resolution
	Outcome    Outcome
	Err        error
	Hint       string
}

// Summary lists the per-target results of a run in selection order.
type Summary struct {
	RunID      string
	TimeSuffix string
	Results    []TargetResult
}

// Succeeded returns the names of targets that completed.
func (s *Summary) Succeeded() []string { return s.names(OutcomeSucceeded) }

// Failed returns the names of attempted targets that did not complete.
func (s *Summary) Failed() []string {
	var names []string
	for _, r := range s.Results {
		if r.Outcome != OutcomeSucceeded && r.Outcome != OutcomeSkipped {
			names = append(names, r.Target)
		}
	}
	return names
}

// Skipped returns the names of targets never attempted.
func (s *Summary) Skipped() []string { return s.names(OutcomeSkipped) }

func (s *Summary) names(o Outcome) []string {
	var names []string
	for _, r := range s.Results {
		if r.Outcome == o {
			names = append(names, r.Target)
		}
	}
	return names
}

// OK reports whether every target succeeded.
func (s *Summary) OK() bool {
	for _, r := range s.Results {
		if r.Outcome != OutcomeSucceeded {
			return false
		}
	}
	return true
}

// Has reports whether any target ended with o.
func (s *Summary) Has(o Outcome) bool {
	return len(s.names(o)) > 0
}

// Status condenses the run into one word for history.
func (s *Summary) Status() string {
	switch {
	case s.OK():
		return "success"
	case s.Has(OutcomeInterrupted):
		return "interrupted"
	case len(s.Succeeded()) > 0:
		return "partial"
	case s.Has(OutcomeFailed):
		return "failed"
	default:
		return "aborted"
	}
}

// Backup runs one resolve-then-transfer cycle per target, sequentially and in
// selection order. Per-target problems are reported in the Summary; the
// returned error is only for a request that cannot start.
func (s *Service) Backup(ctx context.Context, req BackupRequest) (*Summary, error) {
	if err := req.Snapshot.Validate(); err != nil {
		return nil, err
	}
	if len(req.Targets) == 0 {
		return nil, fmt.Errorf("no targets selected")
	}
	if req.Patterns == nil {
		req.Patterns = BuildPatternSet(PatternSources{})
	}

	now := s.clock.Now()
	summary := &Summary{
		RunID:      s.idgen.New(),
		TimeSuffix: TimeSuffix(req.Snapshot, now),
	}

	if err := s.history.CreateRun(&model.Run{
		ID:           summary.RunID,
		ProjectPath:  req.Identity.CanonicalPath,
		ProjectName:  req.Identity.Name,
		Fingerprint:  req.Identity.Fingerprint,
		SnapshotMode: string(req.Snapshot.Mode),
		TimeSuffix:   summary.TimeSuffix,
		DryRun:       req.DryRun,
		StartedAt:    now,
		Status:       "running",
	}); err != nil {
		s.logger.Warn("recording run start failed", "error", err)
	}

	s.logger.Info("backup started",
		"project", req.Identity.CanonicalPath,
		"base_name", req.Identity.BaseName(),
		"time_suffix", summary.TimeSuffix,
		"targets", len(req.Targets),
	)

	stopped := false
	for _, target := range req.Targets {
		var result TargetResult
		if stopped {
			result = TargetResult{Target: target.Name(), Outcome: OutcomeSkipped}
		} else {
			result = s.backupTarget(ctx, req, summary.TimeSuffix, target)
			switch {
			case result.Outcome == OutcomeInterrupted:
				stopped = true
			case result.Outcome != OutcomeSucceeded && !req.KeepGoing:
				stopped = true
			}
		}
		summary.Results = append(summary.Results, result)
		s.recordTarget(summary.RunID, result)
	}

	if err := s.history.FinishRun(summary.RunID, summary.Status(), s.clock.Now()); err != nil {
		s.logger.Warn("recording run finish failed", "error", err)
	}
	s.logger.Info("backup finished", "status", summary.Status())
	return summary, nil
}

func (s *Service) backupTarget(ctx context.Context, req BackupRequest, timeSuffix string, target Remote) TargetResult {
	result := TargetResult{Target: target.Name()}
	fail := func(op string, err error) TargetResult {
		if errors.Is(err, ErrInterrupted) || ctx.Err() != nil {
			result.Outcome = OutcomeInterrupted
			result.Err = fmt.Errorf("%s on %s: %w", op, target.Name(), ErrInterrupted)
		} else {
			result.Outcome = OutcomeFailed
			result.Err = &RemoteError{Target: target.Name(), Op: op, Err: err}
		}
		s.logger.Error("target failed", "target", target.Name(), "op", op, "error", err)
		return result
	}

	s.logger.Info("checking remote base", "target", target.Name(), "remote", target.Describe())
	exists, err := target.BaseExists(ctx)
	if err != nil {
		return fail("checking remote base", err)
	}
	if !exists {
		result.Hint = target.MissingBaseHint()
		return fail("checking remote base", ErrRemoteBaseMissing)
	}

	listing, err := target.ListSiblings(ctx, req.Identity.Name+"_")
	if err != nil {
		return fail("listing remote backups", err)
	}

	resolution, err := ResolveRemoteName(req.Identity, timeSuffix, req.Snapshot.Mode, listing, req.Collision)
	result.Resolution = resolution
	if errors.Is(err, ErrCollisionAborted) {
		result.Outcome = OutcomeAborted
		result.Err = err
		s.logger.Warn("collision aborted", "target", target.Name(), "candidates", resolution.Candidates)
		return result
	}
	if err != nil {
		return fail("resolving remote directory", err)
	}

	result.Location = target.Location(resolution.Name)
	s.logger.Info("remote directory resolved",
		"target", target.Name(),
		"dir", resolution.Name,
		"kind", string(resolution.Kind),
	)

	err = target.Transfer(ctx, TransferRequest{
		LocalRoot:        req.Root.String(),
		RemoteDir:        resolution.Name,
		Patterns:         req.Patterns,
		Filters:          req.Filters,
		DeleteExtraneous: req.DeleteExtraneous,
		DryRun:           req.DryRun,
	})
	if err != nil {
		return fail("transfer", err)
	}

	result.Outcome = OutcomeSucceeded
	s.logger.Info("target complete", "target", target.Name(), "location", result.Location)
	return result
}

func (s *Service) recordTarget(runID string, r TargetResult) {
	rec := &model.TargetRecord{
		RunID:      runID,
		Target:     r.Target,
		RemoteDir:  r.Resolution.Name,
		Resolution: string(r.Resolution.Kind),
		Outcome:    string(r.Outcome),
		FinishedAt: s.clock.Now(),
	}
	if r.Err != nil {
		rec.Message = r.Err.Error()
	}
	if err := s.history.RecordTarget(rec); err != nil {
		s.logger.Warn("recording target outcome failed", "target", r.Target, "error", err)
	}
}
