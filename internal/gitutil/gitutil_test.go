package gitutil

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// initTestRepo creates a throwaway git repository with one commit on main,
// returning its path. Tests are skipped if git is unavailable.
func initTestRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}

	dir := t.TempDir()
	runCmd(t, dir, "init", "-b", "main")
	runCmd(t, dir, "config", "user.email", "test@example.com")
	runCmd(t, dir, "config", "user.name", "Test")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("hello\n"), 0o644))
	runCmd(t, dir, "add", "-A")
	runCmd(t, dir, "commit", "-m", "initial commit")

	return dir
}

func runCmd(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %v failed: %s", args, out)
}

func TestAdd_CreatesNewBranchWorktree(t *testing.T) {
	repo := initTestRepo(t)
	d := New()

	worktreePath := filepath.Join(t.TempDir(), "feature-a")
	err := d.Add(repo, "feature-a", worktreePath, "main")
	require.NoError(t, err)

	assert := require.New(t)
	assert.True(d.IsWorktree(worktreePath))

	branch, err := d.GetCurrentBranch(worktreePath)
	require.NoError(t, err)
	assert.Equal("feature-a", branch)
}

func TestList_IncludesMainAndWorktrees(t *testing.T) {
	repo := initTestRepo(t)
	d := New()

	worktreePath := filepath.Join(t.TempDir(), "feature-b")
	require.NoError(t, d.Add(repo, "feature-b", worktreePath, "main"))

	list, err := d.List(repo)
	require.NoError(t, err)
	require.Len(t, list, 2)
}

func TestRemove_DeletesWorktree(t *testing.T) {
	repo := initTestRepo(t)
	d := New()

	worktreePath := filepath.Join(t.TempDir(), "feature-c")
	require.NoError(t, d.Add(repo, "feature-c", worktreePath, "main"))
	require.NoError(t, d.Remove(repo, worktreePath, false))

	list, err := d.List(repo)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestBranchExists(t *testing.T) {
	repo := initTestRepo(t)
	d := New()
	require.True(t, d.BranchExists(repo, "main"))
	require.False(t, d.BranchExists(repo, "does-not-exist"))
}

func TestHasUncommittedChanges(t *testing.T) {
	repo := initTestRepo(t)
	d := New()

	dirty, err := d.HasUncommittedChanges(repo)
	require.NoError(t, err)
	require.False(t, dirty)

	require.NoError(t, os.WriteFile(filepath.Join(repo, "new.txt"), []byte("x"), 0o644))
	dirty, err = d.HasUncommittedChanges(repo)
	require.NoError(t, err)
	require.True(t, dirty)
}

func TestSyncManager_RefusesDirtyWorktreeWithoutForce(t *testing.T) {
	repo := initTestRepo(t)
	d := New()
	sm := NewSyncManager(d)

	require.NoError(t, os.WriteFile(filepath.Join(repo, "new.txt"), []byte("x"), 0o644))

	_, err := sm.Sync(repo, "main", SyncRebase, false)
	require.Error(t, err)
}
