package orchestrator

import (
	"context"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func skipIfNoShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestMemoryStore_RoundTripsTask(t *testing.T) {
	store := NewMemoryStore()
	task := Task{ID: "t1", Status: TaskPending}
	require.NoError(t, store.CreateTask(task))

	got, ok := store.GetTask("t1")
	require.True(t, ok)
	assert.Equal(t, TaskPending, got.Status)
}

func TestRunTask_MarksDoneOnSuccessAndCapturesOutput(t *testing.T) {
	skipIfNoShell(t)
	o := New(NewMemoryStore(), nil, nil)
	task := Task{ID: "t1", Command: []string{"sh", "-c", "echo hello"}}

	result, err := o.RunTask(context.Background(), "s1", "feature-a", task)
	require.NoError(t, err)
	assert.Equal(t, TaskDone, result.Status)
	assert.Contains(t, result.Output, "hello")
}

func TestRunTask_MarksFailedOnNonZeroExit(t *testing.T) {
	skipIfNoShell(t)
	o := New(NewMemoryStore(), nil, nil)
	task := Task{ID: "t1", Command: []string{"sh", "-c", "exit 1"}}

	result, err := o.RunTask(context.Background(), "s1", "feature-a", task)
	require.Error(t, err)
	assert.Equal(t, TaskFailed, result.Status)
}

func TestRunPhase_StopsAtFirstFailedTask(t *testing.T) {
	skipIfNoShell(t)
	o := New(NewMemoryStore(), nil, nil)
	tasks := []Task{
		{ID: "t1", Command: []string{"sh", "-c", "exit 1"}},
		{ID: "t2", Command: []string{"sh", "-c", "echo should-not-run"}},
	}

	phase, err := o.RunPhase(context.Background(), "s1", "feature-a", Phase{ID: "p1"}, tasks)
	require.Error(t, err)
	assert.Equal(t, PhaseFailed, phase.Status)

	t2, ok := o.Store.GetTask("t2")
	require.True(t, ok)
	assert.Equal(t, TaskPending, t2.Status)
}
