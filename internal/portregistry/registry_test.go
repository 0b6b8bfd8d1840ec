package portregistry

import (
	"net"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ports.json")
	r, err := Open(path)
	require.NoError(t, err)
	return r
}

func TestAllocate_AssignsBasePortWhenFree(t *testing.T) {
	r := newTestRegistry(t)
	port, err := r.Allocate("feature-a", "api", 30000)
	require.NoError(t, err)
	assert.Equal(t, 30000, port)
}

func TestAllocate_SkipsPortsBelow1024(t *testing.T) {
	r := newTestRegistry(t)
	port, err := r.Allocate("feature-a", "api", 80)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, port, 1024)
}

func TestAllocate_IsIdempotentForSameKey(t *testing.T) {
	r := newTestRegistry(t)
	first, err := r.Allocate("feature-a", "api", 30000)
	require.NoError(t, err)
	second, err := r.Allocate("feature-a", "api", 30000)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestAllocate_NoTwoLiveWorktreesShareAPort(t *testing.T) {
	r := newTestRegistry(t)
	a, err := r.Allocate("feature-a", "api", 30000)
	require.NoError(t, err)
	b, err := r.Allocate("feature-b", "api", 30000)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestAllocate_SkipsOSBoundPort(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer ln.Close()
	busyPort := ln.Addr().(*net.TCPAddr).Port

	r := newTestRegistry(t)
	port, err := r.Allocate("feature-a", "api", busyPort)
	require.NoError(t, err)
	assert.NotEqual(t, busyPort, port)
	assert.Greater(t, port, busyPort)
}

func TestRelease_RemovesOnlyThatServiceKey(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Allocate("feature-a", "api", 30000)
	require.NoError(t, err)
	_, err = r.Allocate("feature-a", "web", 30001)
	require.NoError(t, err)

	require.NoError(t, r.Release("feature-a", "api"))

	ports := r.PortsOf("feature-a")
	_, hasAPI := ports["api"]
	_, hasWeb := ports["web"]
	assert.False(t, hasAPI)
	assert.True(t, hasWeb)
}

func TestReleaseWorktree_RemovesEverything(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Allocate("feature-a", "api", 30000)
	require.NoError(t, err)
	require.NoError(t, r.ReleaseWorktree("feature-a"))
	assert.Empty(t, r.PortsOf("feature-a"))
}

func TestSyncFrom_KeepsStoppedButExistingWorktrees(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Allocate("feature-a", "api", 30000)
	require.NoError(t, err)
	_, err = r.Allocate("feature-b", "api", 30001)
	require.NoError(t, err)

	require.NoError(t, r.SyncFrom([]string{"feature-a"}))

	assert.NotEmpty(t, r.PortsOf("feature-a"))
	assert.Empty(t, r.PortsOf("feature-b"))
}

func TestOpen_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ports.json")
	r1, err := Open(path)
	require.NoError(t, err)
	_, err = r1.Allocate("feature-a", "api", 30000)
	require.NoError(t, err)

	r2, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, 30000, r2.PortsOf("feature-a")["api"])
}

func TestAllocate_ExhaustionReturnsKindExhaustion(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Allocate("feature-a", "api", 65535)
	require.NoError(t, err)
	_, err = r.Allocate("feature-b", "api", 65535)
	require.Error(t, err)
}
