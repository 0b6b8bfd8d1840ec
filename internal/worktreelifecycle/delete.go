package worktreelifecycle

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/vibetrees/controlplane/internal/model"
)

// Delete implements W-Delete: tear down containers, remove the git
// worktree, release its ports, and broadcast completion. name must not be
// RootBranch (I-W2) and its worktree path must live under WorktreesBase —
// this guards against a caller passing the root checkout's own path and
// having git remove the wrong thing.
func (l *Lifecycle) Delete(ctx context.Context, name string) (*model.PipelineResult, error) {
	if name == RootBranch {
		return nil, model.NewError(model.KindValidation, "the root checkout cannot be deleted")
	}

	path := l.worktreePath(name)
	rel, err := filepath.Rel(l.WorktreesBase, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return nil, model.NewError(model.KindValidation, "worktree path is not under the managed worktrees directory")
	}

	mu := l.lockFor(name)
	mu.Lock()
	defer mu.Unlock()

	pipelineID := newPipelineID()
	result := &model.PipelineResult{PipelineID: pipelineID}
	fail := func(step string, err error) (*model.PipelineResult, error) {
		result.Success = false
		result.Step = step
		result.Error = err.Error()
		l.emit(pipelineID, name, model.PipelineDelete, step, err.Error(), "error")
		return result, err
	}

	_, dirErr := os.Stat(path)
	dirExists := dirErr == nil

	if dirExists {
		envPath := filepath.Join(path, ".env")
		if err := l.runComposeDown(ctx, path, envPath, true); err != nil {
			l.emit(pipelineID, name, model.PipelineDelete, "containers-down", "non-fatal: "+err.Error(), "warn")
		} else {
			l.emit(pipelineID, name, model.PipelineDelete, "containers-down", "containers removed", "info")
		}
	}

	if dirExists {
		if err := l.Git.Remove(l.SourceRepo, path, true); err != nil {
			return fail("worktree-remove", model.WrapError(model.KindExternal, "git worktree remove failed", err))
		}
	} else {
		if err := l.Git.Prune(l.SourceRepo); err != nil {
			l.emit(pipelineID, name, model.PipelineDelete, "worktree-remove", "prune non-fatal: "+err.Error(), "warn")
		}
	}
	l.emit(pipelineID, name, model.PipelineDelete, "worktree-remove", "worktree removed", "info")

	if err := l.Ports.ReleaseWorktree(name); err != nil {
		l.emit(pipelineID, name, model.PipelineDelete, "port-release", "non-fatal: "+err.Error(), "warn")
	}

	result.Success = true
	l.emit(pipelineID, name, model.PipelineDelete, "complete", "worktree deleted", "done")
	return result, nil
}
