package diagnostics

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibetrees/controlplane/internal/portregistry"
)

func newTestRunner(t *testing.T) (*Runner, string) {
	t.Helper()
	base := t.TempDir()
	regPath := filepath.Join(base, "registry.json")
	reg, err := portregistry.Open(regPath)
	require.NoError(t, err)
	return &Runner{Ports: reg, WorktreesBase: base}, base
}

func TestState_ReportsMissingDirectoryAndRegistration(t *testing.T) {
	r, _ := newTestRunner(t)
	st := r.State("feature-ghost")
	assert.False(t, st.Exists)
	assert.False(t, st.Registered)
}

func TestCheckGitRegistration_FlagsMissingDirectoryAsFail(t *testing.T) {
	r, _ := newTestRunner(t)
	findings := checkGitRegistration(context.Background(), r, []string{"feature-ghost"})
	require.Len(t, findings, 1)
	assert.Equal(t, SeverityWarn, findings[0].Severity)
}

func TestCheckOrphanedPorts_ReleasesWorktreeWithNoRegistration(t *testing.T) {
	r, _ := newTestRunner(t)
	_, err := r.Ports.Allocate("feature-ghost", "web", 3000)
	require.NoError(t, err)

	findings := checkOrphanedPorts(context.Background(), r, []string{"feature-ghost"})
	require.Len(t, findings, 1)
	assert.True(t, findings[0].Fixed)
	assert.Empty(t, r.Ports.PortsOf("feature-ghost"))
}

func TestRun_UnknownCheckNameReportsFailFinding(t *testing.T) {
	r, _ := newTestRunner(t)
	findings, err := r.Run(context.Background(), []string{"not-a-real-check"})
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, SeverityFail, findings[0].Severity)
}

func TestImport_RejectsUnregisteredWorktree(t *testing.T) {
	r, base := newTestRunner(t)
	require.NoError(t, os.MkdirAll(filepath.Join(base, "feature-manual"), 0o755))
	_, err := r.Import("feature-manual")
	assert.Error(t, err)
}
