package pty

import (
	"context"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibetrees/controlplane/internal/model"
)

func skipIfNoShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
}

func TestGetOrCreate_ReusesSessionForSameKey(t *testing.T) {
	skipIfNoShell(t)
	m := New()
	defer m.Shutdown()

	s1, err := m.GetOrCreate(context.Background(), "wt-a", model.CommandShell, os.TempDir(), 80, 24)
	require.NoError(t, err)
	s2, err := m.GetOrCreate(context.Background(), "wt-a", model.CommandShell, os.TempDir(), 80, 24)
	require.NoError(t, err)
	assert.Same(t, s1, s2)
	_ = m.Close("wt-a", model.CommandShell)
}

func TestSubscribe_ReceivesWrittenOutput(t *testing.T) {
	skipIfNoShell(t)
	m := New()
	defer m.Shutdown()

	s, err := m.GetOrCreate(context.Background(), "wt-b", model.CommandShell, os.TempDir(), 80, 24)
	require.NoError(t, err)

	ch, cancel := s.Subscribe()
	defer cancel()

	require.NoError(t, s.Write([]byte("echo hello-pty\n")))

	deadline := time.After(3 * time.Second)
	var collected []byte
	for !contains(collected, "hello-pty") {
		select {
		case chunk := <-ch:
			collected = append(collected, chunk...)
		case <-deadline:
			t.Fatalf("did not see expected output, got: %q", collected)
		}
	}
}

func TestSubscribe_ReplaysScrollbackOnLateJoin(t *testing.T) {
	skipIfNoShell(t)
	m := New()
	defer m.Shutdown()

	s, err := m.GetOrCreate(context.Background(), "wt-c", model.CommandShell, os.TempDir(), 80, 24)
	require.NoError(t, err)
	require.NoError(t, s.Write([]byte("echo before-join\n")))
	time.Sleep(300 * time.Millisecond)

	ch, cancel := s.Subscribe()
	defer cancel()

	deadline := time.After(3 * time.Second)
	var collected []byte
	for !contains(collected, "before-join") {
		select {
		case chunk := <-ch:
			collected = append(collected, chunk...)
		case <-deadline:
			t.Fatalf("did not replay scrollback, got: %q", collected)
		}
	}
}

func TestClose_DetachesAllSubscribers(t *testing.T) {
	skipIfNoShell(t)
	m := New()
	defer m.Shutdown()

	s, err := m.GetOrCreate(context.Background(), "wt-d", model.CommandShell, os.TempDir(), 80, 24)
	require.NoError(t, err)
	ch, _ := s.Subscribe()

	require.NoError(t, m.Close("wt-d", model.CommandShell))

	_, open := <-ch
	assert.False(t, open)
}

func TestWrite_AfterCloseReturnsStateError(t *testing.T) {
	skipIfNoShell(t)
	m := New()
	defer m.Shutdown()

	s, err := m.GetOrCreate(context.Background(), "wt-e", model.CommandShell, os.TempDir(), 80, 24)
	require.NoError(t, err)
	require.NoError(t, m.Close("wt-e", model.CommandShell))

	err = s.Write([]byte("x"))
	require.Error(t, err)
	var modelErr *model.Error
	require.ErrorAs(t, err, &modelErr)
	assert.Equal(t, model.KindState, modelErr.Kind)
}

func contains(haystack []byte, needle string) bool {
	return strings.Contains(string(haystack), needle)
}
