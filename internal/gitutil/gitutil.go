// Package gitutil wraps the git CLI for worktree lifecycle and sync
// operations: creating/listing/removing worktrees, branch inspection, and
// the retry-on-transient-lock wrapper pipelines need when several
// worktrees race on the shared .git administrative area.
//
// Every operation runs `git -C <repoPath> ...` rather than changing the
// process's working directory, so concurrent pipelines for different
// worktrees never interfere with each other's git invocation.
package gitutil

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/vibetrees/controlplane/internal/model"
)

// Retry constants for transient git errors: index.lock contention between
// concurrently-running pipelines resolves itself within a second or two in
// practice, so a short exponential backoff clears it without surfacing a
// spurious failure to the caller.
const (
	retryInitialDelay = 200 * time.Millisecond
	retryMaxAttempts  = 6
	retryMultiplier   = 2
)

var transientPatterns = []string{
	"index file open failed",
	"index.lock",
	"cannot lock ref",
	"unable to create",
}

func isTransient(errMsg string) bool {
	for _, p := range transientPatterns {
		if strings.Contains(errMsg, p) {
			return true
		}
	}
	return false
}

// sleepFunc is replaced in tests to avoid real delays.
var sleepFunc = time.Sleep

// Driver is the GitDriver (G). It is stateless — every method takes the
// repository path explicitly, matching the teacher's Manager.
type Driver struct{}

// New constructs a Driver.
func New() *Driver { return &Driver{} }

// run executes `git -C repoPath args...`, retrying with exponential
// backoff on a transient lock-contention error.
func run(repoPath string, args ...string) (string, error) {
	fullArgs := append([]string{"-C", repoPath}, args...)

	delay := retryInitialDelay
	var lastErr error
	for attempt := 0; attempt < retryMaxAttempts; attempt++ {
		// #nosec G204 — args are constructed internally, never from raw user input
		cmd := exec.Command("git", fullArgs...)
		var stdout, stderr strings.Builder
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		err := cmd.Run()
		if err == nil {
			return stdout.String(), nil
		}

		stderrStr := strings.TrimSpace(stderr.String())
		message := fmt.Sprintf("git %s failed", strings.Join(args, " "))
		if stderrStr != "" {
			message = fmt.Sprintf("%s: %s", message, stderrStr)
		}
		lastErr = model.WrapError(model.KindExternal, message, err)

		if !isTransient(stderrStr) || attempt == retryMaxAttempts-1 {
			return "", lastErr
		}
		sleepFunc(delay)
		delay *= retryMultiplier
	}
	return "", lastErr
}

// WorktreeInfo is one entry from `git worktree list --porcelain`.
type WorktreeInfo struct {
	Path   string
	Branch string
	HEAD   string
	IsBare bool
}

// Add creates a worktree at worktreePath on branch, basing a newly created
// branch on baseBranch (HEAD if empty). If branch already exists, the
// existing branch is checked out into the new worktree instead.
//
// If git reports the branch is already checked out elsewhere (stale
// administrative state left behind by a crashed pipeline, since pruned by
// the caller's preflight step but occasionally still raced), the add is
// retried once with --force.
func (d *Driver) Add(repoPath, branch, worktreePath, baseBranch string) error {
	if d.BranchExists(repoPath, branch) {
		if _, err := run(repoPath, "worktree", "add", worktreePath, branch); err != nil {
			if !isAlreadyRegistered(err) {
				return err
			}
			_, err = run(repoPath, "worktree", "add", "--force", worktreePath, branch)
			return err
		}
		return nil
	}

	args := []string{"worktree", "add", "-b", branch, worktreePath}
	if baseBranch != "" {
		args = append(args, baseBranch)
	}
	if _, err := run(repoPath, args...); err != nil {
		if !isAlreadyRegistered(err) {
			return err
		}
		forceArgs := []string{"worktree", "add", "--force", "-b", branch, worktreePath}
		if baseBranch != "" {
			forceArgs = append(forceArgs, baseBranch)
		}
		_, err = run(repoPath, forceArgs...)
		return err
	}
	return nil
}

// isAlreadyRegistered reports whether err is git's "already checked out" /
// "already registered" worktree conflict, the one case Add retries with
// --force rather than surfacing immediately.
func isAlreadyRegistered(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "already checked out") || strings.Contains(msg, "already registered") || strings.Contains(msg, "already exists")
}

// List returns every worktree registered against the repository at
// repoPath.
func (d *Driver) List(repoPath string) ([]WorktreeInfo, error) {
	output, err := run(repoPath, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, err
	}
	return parsePorcelainOutput(output), nil
}

// Remove deletes the worktree at worktreePath. force allows removing a
// worktree with uncommitted or untracked changes.
func (d *Driver) Remove(repoPath, worktreePath string, force bool) error {
	args := []string{"worktree", "remove", worktreePath}
	if force {
		args = []string{"worktree", "remove", "--force", worktreePath}
	}
	_, err := run(repoPath, args...)
	return err
}

// Prune removes administrative entries for worktrees whose directory no
// longer exists on disk (I-R3 feeds off this before the port registry
// reconciles against the result).
func (d *Driver) Prune(repoPath string) error {
	_, err := run(repoPath, "worktree", "prune")
	return err
}

// IsWorktree reports whether path is a git worktree checkout (as opposed
// to the main repository's own working directory): a worktree's .git is a
// FILE containing a "gitdir:" pointer, not a directory.
func (d *Driver) IsWorktree(path string) bool {
	gitPath := filepath.Join(path, ".git")
	info, err := os.Lstat(gitPath)
	if err != nil || info.IsDir() {
		return false
	}
	content, err := os.ReadFile(gitPath)
	if err != nil {
		return false
	}
	return strings.HasPrefix(string(content), "gitdir:")
}

// GetRepoRoot returns the top-level directory of whichever working tree
// (main or worktree) contains path.
func (d *Driver) GetRepoRoot(path string) (string, error) {
	output, err := run(path, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(output), nil
}

// GetCurrentBranch returns the short branch name checked out at path, or
// "HEAD" for a detached checkout.
func (d *Driver) GetCurrentBranch(path string) (string, error) {
	output, err := run(path, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(output), nil
}

// BranchExists reports whether branch resolves to a ref in the repository
// at repoPath.
func (d *Driver) BranchExists(repoPath, branch string) bool {
	_, err := run(repoPath, "rev-parse", "--verify", branch)
	return err == nil
}

// FetchUpstream runs `git fetch origin` for the repository at repoPath,
// under the caller-supplied suspension point budget (§5: network fetch is
// one of the operations that may block and must be cancellable — callers
// enforce the deadline by wrapping this call with their own timeout).
func (d *Driver) FetchUpstream(repoPath string) error {
	_, err := run(repoPath, "fetch", "origin")
	return err
}

// AheadBehind returns how many commits branch is ahead of and behind
// against (typically "origin/main").
func (d *Driver) AheadBehind(repoPath, branch, against string) (ahead, behind int, err error) {
	output, err := run(repoPath, "rev-list", "--left-right", "--count", branch+"..."+against)
	if err != nil {
		return 0, 0, err
	}
	fields := strings.Fields(output)
	if len(fields) != 2 {
		return 0, 0, model.NewError(model.KindInternal, "unexpected rev-list output: "+output)
	}
	ahead, _ = strconv.Atoi(fields[0])
	behind, _ = strconv.Atoi(fields[1])
	return ahead, behind, nil
}

// HasUncommittedChanges reports whether the worktree at path has any
// modified, staged, or untracked files.
func (d *Driver) HasUncommittedChanges(path string) (bool, error) {
	output, err := run(path, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(output) != "", nil
}

// ConflictedFiles returns the paths currently marked unmerged (conflict
// markers present) in the worktree at path.
func (d *Driver) ConflictedFiles(path string) ([]string, error) {
	output, err := run(path, "diff", "--name-only", "--diff-filter=U")
	if err != nil {
		return nil, err
	}
	trimmed := strings.TrimSpace(output)
	if trimmed == "" {
		return nil, nil
	}
	return strings.Split(trimmed, "\n"), nil
}

// DiffNames returns the paths that differ between from and to (e.g. two
// commit SHAs, or "HEAD~5" and "HEAD") in the worktree at path — the
// changed-file list the ChangeDetector classifies after a sync.
func (d *Driver) DiffNames(path, from, to string) ([]string, error) {
	output, err := run(path, "diff", "--name-only", from, to)
	if err != nil {
		return nil, err
	}
	trimmed := strings.TrimSpace(output)
	if trimmed == "" {
		return nil, nil
	}
	return strings.Split(trimmed, "\n"), nil
}

// LastCommit returns a summary of the most recent commit at ref in the
// worktree at path.
func (d *Driver) LastCommit(path, ref string) (*model.CommitSummary, error) {
	const sep = "\x1f"
	output, err := run(path, "log", "-1", "--format=%H"+sep+"%s"+sep+"%an"+sep+"%aI", ref)
	if err != nil {
		return nil, err
	}
	fields := strings.Split(strings.TrimSpace(output), sep)
	if len(fields) != 4 {
		return nil, model.NewError(model.KindInternal, "unexpected log output: "+output)
	}
	date, _ := time.Parse(time.RFC3339, fields[3])
	return &model.CommitSummary{SHA: fields[0], Message: fields[1], Author: fields[2], Date: date}, nil
}

func parsePorcelainOutput(output string) []WorktreeInfo {
	var worktrees []WorktreeInfo
	lines := strings.Split(strings.TrimRight(output, "\n"), "\n")

	var current *WorktreeInfo
	for _, line := range lines {
		if line == "" {
			if current != nil {
				worktrees = append(worktrees, *current)
				current = nil
			}
			continue
		}
		key, value, _ := strings.Cut(line, " ")
		switch key {
		case "worktree":
			current = &WorktreeInfo{Path: value}
		case "HEAD":
			if current != nil {
				current.HEAD = value
			}
		case "branch":
			if current != nil {
				current.Branch = value
			}
		case "bare":
			if current != nil {
				current.IsBare = true
			}
		}
	}
	if current != nil {
		worktrees = append(worktrees, *current)
	}
	return worktrees
}
