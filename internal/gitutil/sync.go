package gitutil

import (
	"fmt"

	"github.com/vibetrees/controlplane/internal/model"
)

// SyncStrategy selects how SyncManager reconciles a worktree's branch with
// its upstream.
type SyncStrategy string

const (
	SyncMerge  SyncStrategy = "merge"
	SyncRebase SyncStrategy = "rebase"
)

// SyncResult is the outcome of a Sync call.
type SyncResult struct {
	Strategy       SyncStrategy `json:"strategy"`
	Conflicted     bool         `json:"conflicted"`
	ConflictFiles  []string     `json:"conflictFiles,omitempty"`
	RolledBack     bool         `json:"rolledBack"`
}

// SyncManager generalizes the rebase-with-reset-fallback sequence to also
// support a merge strategy, per spec.md's SyncManager.
type SyncManager struct {
	driver *Driver
}

// NewSyncManager constructs a SyncManager around driver.
func NewSyncManager(driver *Driver) *SyncManager {
	return &SyncManager{driver: driver}
}

// Sync reconciles the worktree at path against against using strategy.
// Unless force is true, Sync refuses to run against a dirty working tree
// (uncommitted changes), returning a KindConflict error so the caller can
// surface "commit or stash first" to the user.
func (m *SyncManager) Sync(path, against string, strategy SyncStrategy, force bool) (*SyncResult, error) {
	if !force {
		dirty, err := m.driver.HasUncommittedChanges(path)
		if err != nil {
			return nil, err
		}
		if dirty {
			return nil, model.NewError(model.KindConflict, "worktree has uncommitted changes; commit, stash, or pass force=true")
		}
	}

	switch strategy {
	case SyncRebase:
		return m.rebase(path, against)
	case SyncMerge:
		return m.merge(path, against)
	default:
		return nil, model.NewError(model.KindValidation, fmt.Sprintf("unknown sync strategy %q", strategy))
	}
}

func (m *SyncManager) rebase(path, against string) (*SyncResult, error) {
	// Abort any stale in-progress rebase left over from a previous
	// interrupted run before starting a new one.
	_, _ = run(path, "rebase", "--abort")

	_, err := run(path, "rebase", against)
	if err == nil {
		return &SyncResult{Strategy: SyncRebase}, nil
	}

	conflicts, _ := m.driver.ConflictedFiles(path)
	_, _ = run(path, "rebase", "--abort")

	if _, resetErr := run(path, "reset", "--hard", against); resetErr != nil {
		return nil, model.WrapError(model.KindExternal, "rebase conflict and rollback also failed", resetErr)
	}

	return &SyncResult{Strategy: SyncRebase, Conflicted: true, ConflictFiles: conflicts, RolledBack: true}, nil
}

func (m *SyncManager) merge(path, against string) (*SyncResult, error) {
	_, err := run(path, "merge", "--no-edit", against)
	if err == nil {
		return &SyncResult{Strategy: SyncMerge}, nil
	}

	conflicts, _ := m.driver.ConflictedFiles(path)
	return &SyncResult{Strategy: SyncMerge, Conflicted: true, ConflictFiles: conflicts}, model.NewError(
		model.KindConflict, fmt.Sprintf("merge conflict against %s in %d file(s)", against, len(conflicts)))
}

// Rollback hard-resets the worktree at path to commit, discarding any
// local changes made since.
func (m *SyncManager) Rollback(path, commit string) error {
	_, err := run(path, "reset", "--hard", commit)
	return err
}
