// Package orchestrator implements O: the state machine and TaskExecutor
// behind the semi-attended batch runner — a Session made of ordered Phases,
// each made of Tasks that spawn an external CLI (an AI coding assistant, a
// test runner) and report back success/failure.
//
// spec.md explicitly carves the Phase/Task/Session SQL schema out of the
// core (§1's listed out-of-scope item, §9's pinned decision): this package
// defines the state machine and a narrow Store interface, and ships only an
// in-memory Store. A caller wanting durability supplies their own Store;
// none is shipped here.
package orchestrator

import (
	"bufio"
	"context"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/vibetrees/controlplane/internal/model"
	"github.com/vibetrees/controlplane/internal/progressbus"
	"github.com/vibetrees/controlplane/internal/secrets"
)

// TaskStatus is a Task's position in its own state machine.
type TaskStatus string

const (
	TaskPending TaskStatus = "pending"
	TaskRunning TaskStatus = "running"
	TaskDone    TaskStatus = "done"
	TaskFailed  TaskStatus = "failed"
)

// PhaseStatus mirrors TaskStatus one level up: a Phase is done only once
// every Task within it is done, failed if any Task within it failed.
type PhaseStatus string

const (
	PhasePending PhaseStatus = "pending"
	PhaseRunning PhaseStatus = "running"
	PhaseDone    PhaseStatus = "done"
	PhaseFailed  PhaseStatus = "failed"
)

// Task is one external-CLI invocation within a Phase.
type Task struct {
	ID        string
	PhaseID   string
	Command   []string
	Dir       string
	Status    TaskStatus
	Output    string
	StartedAt time.Time
	EndedAt   time.Time
}

// Phase is an ordered group of Tasks within a Session. Tasks within a
// Phase run sequentially; the next Phase only starts once the current one
// reaches PhaseDone.
type Phase struct {
	ID        string
	SessionID string
	Name      string
	Status    PhaseStatus
	TaskIDs   []string
}

// Session is one run of the batch orchestrator against a single worktree.
type Session struct {
	ID        string
	Worktree  string
	PhaseIDs  []string
	CreatedAt time.Time
}

// Store is the narrow persistence seam a caller may back with SQL, a flat
// file, or (as shipped here) memory. Every method is synchronous; the
// orchestrator does not assume any particular storage latency.
type Store interface {
	CreateSession(s Session) error
	GetSession(id string) (Session, bool)
	CreatePhase(p Phase) error
	GetPhase(id string) (Phase, bool)
	UpdatePhase(p Phase) error
	CreateTask(t Task) error
	GetTask(id string) (Task, bool)
	UpdateTask(t Task) error
}

// MemoryStore is the only Store this repository ships — an in-process map
// guarded by one mutex, lost on restart. A caller that needs a Session to
// survive a process restart supplies its own Store implementation; the
// SQL schema for doing so is explicitly not part of this core.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]Session
	phases   map[string]Phase
	tasks    map[string]Task
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]Session),
		phases:   make(map[string]Phase),
		tasks:    make(map[string]Task),
	}
}

func (m *MemoryStore) CreateSession(s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return nil
}

func (m *MemoryStore) GetSession(id string) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

func (m *MemoryStore) CreatePhase(p Phase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.phases[p.ID] = p
	return nil
}

func (m *MemoryStore) GetPhase(id string) (Phase, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.phases[id]
	return p, ok
}

func (m *MemoryStore) UpdatePhase(p Phase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.phases[p.ID] = p
	return nil
}

func (m *MemoryStore) CreateTask(t Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[t.ID] = t
	return nil
}

func (m *MemoryStore) GetTask(id string) (Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	return t, ok
}

func (m *MemoryStore) UpdateTask(t Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[t.ID] = t
	return nil
}

// Orchestrator drives Sessions through their Phases and Tasks, spawning
// each Task's command as a plain host process (an AI-assistant CLI or test
// runner binary — not the container runtime, so this does not go through
// internal/runtime the way W's container steps do) and broadcasting
// progress through the same ProgressBus W-Create's pipeline uses, so a
// control-UI client subscribed to a worktree sees batch-runner progress
// alongside lifecycle pipeline progress without a second event channel.
type Orchestrator struct {
	Store     Store
	Bus       *progressbus.Bus
	Sanitizer *secrets.Sanitizer
}

// New constructs an Orchestrator. sanitizer may be nil, in which case
// output is not scrubbed before being recorded on the Task — callers
// running trusted, already-sanitized commands may opt out this way.
func New(store Store, bus *progressbus.Bus, sanitizer *secrets.Sanitizer) *Orchestrator {
	return &Orchestrator{Store: store, Bus: bus, Sanitizer: sanitizer}
}

func (o *Orchestrator) emit(sessionID, worktree, step, message, level string) {
	if o.Bus == nil {
		return
	}
	o.Bus.Publish(model.ProgressEvent{
		PipelineID: sessionID,
		Worktree:   worktree,
		Kind:       model.PipelineImport,
		Step:       step,
		Message:    message,
		Level:      level,
		At:         time.Now().UTC(),
	})
}

// RunTask executes one Task's command to completion, capturing and
// sanitizing combined output, updating its status in the Store, and
// broadcasting a progress event for it.
func (o *Orchestrator) RunTask(ctx context.Context, sessionID, worktree string, task Task) (Task, error) {
	task.Status = TaskRunning
	task.StartedAt = time.Now().UTC()
	_ = o.Store.UpdateTask(task)
	o.emit(sessionID, worktree, "task:"+task.ID, "running: "+task.Command[0], "info")

	output, runErr := o.captureOutput(ctx, task)

	task.EndedAt = time.Now().UTC()
	if runErr != nil {
		task.Status = TaskFailed
		task.Output = output
		_ = o.Store.UpdateTask(task)
		o.emit(sessionID, worktree, "task:"+task.ID, "failed: "+runErr.Error(), "error")
		return task, runErr
	}

	task.Status = TaskDone
	task.Output = output
	_ = o.Store.UpdateTask(task)
	o.emit(sessionID, worktree, "task:"+task.ID, "done", "done")
	return task, nil
}

// captureOutput runs the task's command to completion and returns its
// sanitized combined stdout+stderr. Split out from RunTask so the
// status-transition bookkeeping above doesn't also have to thread the raw
// vs. sanitized text through.
func (o *Orchestrator) captureOutput(ctx context.Context, task Task) (string, error) {
	if len(task.Command) == 0 {
		return "", model.NewError(model.KindValidation, "task has an empty command")
	}
	cmd := exec.CommandContext(ctx, task.Command[0], task.Command[1:]...)
	cmd.Dir = task.Dir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", model.WrapError(model.KindInternal, "failed to attach stdout", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return "", model.WrapError(model.KindInternal, "failed to attach stderr", err)
	}

	if err := cmd.Start(); err != nil {
		return "", model.WrapError(model.KindExternal, "failed to start task command", err)
	}

	var outBuf, errBuf []byte
	done := make(chan struct{}, 2)
	go collectLines(stdout, &outBuf, done)
	go collectLines(stderr, &errBuf, done)
	<-done
	<-done

	runErr := cmd.Wait()
	text := string(outBuf) + string(errBuf)
	if o.Sanitizer != nil {
		text = o.Sanitizer.Sanitize(text).Text
	}
	if runErr != nil {
		return text, model.WrapError(model.KindExternal, "task command exited with an error", runErr)
	}
	return text, nil
}

func collectLines(r io.Reader, into *[]byte, done chan<- struct{}) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		*into = append(*into, scanner.Bytes()...)
		*into = append(*into, '\n')
	}
	done <- struct{}{}
}

// RunPhase runs every Task in a Phase sequentially, stopping at the first
// failure (a later Task in the same Phase is assumed to depend on the
// ones before it having succeeded).
func (o *Orchestrator) RunPhase(ctx context.Context, sessionID, worktree string, phase Phase, tasks []Task) (Phase, error) {
	phase.Status = PhaseRunning
	_ = o.Store.UpdatePhase(phase)
	o.emit(sessionID, worktree, "phase:"+phase.ID, "running: "+phase.Name, "info")

	for _, task := range tasks {
		result, err := o.RunTask(ctx, sessionID, worktree, task)
		if err != nil || result.Status == TaskFailed {
			phase.Status = PhaseFailed
			_ = o.Store.UpdatePhase(phase)
			o.emit(sessionID, worktree, "phase:"+phase.ID, "failed", "error")
			return phase, err
		}
	}

	phase.Status = PhaseDone
	_ = o.Store.UpdatePhase(phase)
	o.emit(sessionID, worktree, "phase:"+phase.ID, "done", "done")
	return phase, nil
}
