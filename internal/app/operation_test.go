package app

import (
	"testing"

	"pushback/internal/pushback"
	"pushback/internal/testutil"
)

func TestBackupOptions_CollisionPolicy(t *testing.T) {
	candidates := []string{"app_11111111", "app_22222222"}

	tests := []struct {
		name      string
		opts      BackupOptions
		wantState pushback.CollisionState
	}{
		{"no flags asks the decider", BackupOptions{}, pushback.CollisionUpdateExisting},
		{"force new", BackupOptions{ForceCollisionNew: true}, pushback.CollisionCreateNew},
		{"force update", BackupOptions{ForceCollisionUpdate: true}, pushback.CollisionUpdateExisting},
		{"force all creates", BackupOptions{ForceAll: true}, pushback.CollisionCreateNew},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decider := &testutil.StubCollisionDecider{Choice: pushback.ChoiceUpdate}
			got := tt.opts.CollisionPolicy(decider).Resolve(candidates)
			if got.State != tt.wantState {
				t.Errorf("Resolve() state = %v, want %v", got.State, tt.wantState)
			}
			asked := len(decider.Asked) > 0
			wantAsked := !tt.opts.ForceAll && !tt.opts.ForceCollisionNew && !tt.opts.ForceCollisionUpdate
			if asked != wantAsked {
				t.Errorf("decider asked = %v, want %v", asked, wantAsked)
			}
		})
	}
}

func TestBackupOptions_LargeFileOptions(t *testing.T) {
	tests := []struct {
		name string
		opts BackupOptions
		want pushback.LargeFileOptions
	}{
		{"defaults ask", BackupOptions{}, pushback.LargeFileOptions{}},
		{"force backupignore persists", BackupOptions{ForceBackupIgnore: true}, pushback.LargeFileOptions{Persist: true}},
		{"force all keeps and persists", BackupOptions{ForceAll: true}, pushback.LargeFileOptions{KeepAll: true, Persist: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.opts.LargeFileOptions(); got != tt.want {
				t.Errorf("LargeFileOptions() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestBackupOptions_ContinueOnFailure(t *testing.T) {
	if (BackupOptions{}).ContinueOnFailure() {
		t.Error("default should stop at the first failure")
	}
	if !(BackupOptions{KeepGoing: true}).ContinueOnFailure() {
		t.Error("KeepGoing should continue")
	}
	if !(BackupOptions{ForceAll: true}).ContinueOnFailure() {
		t.Error("ForceAll should imply keep going")
	}
}
