// Package logstream implements the LogStreamer (spec.md §4.P's other half):
// bounded-rate forwarding of container process output to WebSocket clients,
// shelling out to the container runtime's own `compose logs -f` rather than
// attaching to the Engine API directly, so the exact text a human running
// the CLI would see is what gets streamed (tags, prefixes, and color
// sequences included).
package logstream

import (
	"context"
	"regexp"
	"strings"
	"sync"

	"github.com/vibetrees/controlplane/internal/runtime"
)

// tailLines bounds how much backlog `compose logs -f` replays on attach.
const tailLines = "100"

// Level is the coarse severity a log line is tagged with for client-side
// coloring, the same three-way split the teacher's cli/colors.go uses for
// concern state (ok/warn/error) generalized to free-text log lines.
type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

var (
	errorPattern = regexp.MustCompile(`(?i)\b(error|fatal|panic|exception|traceback)\b`)
	warnPattern  = regexp.MustCompile(`(?i)\b(warn|warning|deprecated)\b`)
)

func classify(line string) Level {
	switch {
	case errorPattern.MatchString(line):
		return LevelError
	case warnPattern.MatchString(line):
		return LevelWarn
	default:
		return LevelInfo
	}
}

// Line is one log line delivered to a subscriber.
type Line struct {
	Service string `json:"service,omitempty"`
	Text    string `json:"text"`
	Level   Level  `json:"level"`
}

// Stream is one live `compose logs -f` invocation and its subscribers.
type Stream struct {
	mu          sync.Mutex
	subscribers map[chan Line]bool
	cancel      context.CancelFunc
	done        chan struct{}
}

// Subscribe attaches a subscriber to the stream. Detaching the last
// subscriber terminates the underlying child process (spec.md §4.P:
// "subscriber detach triggers child termination" — unlike PTY sessions,
// log streams have no independent life of their own).
func (s *Stream) Subscribe() (<-chan Line, func()) {
	ch := make(chan Line, 256)
	s.mu.Lock()
	s.subscribers[ch] = true
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		delete(s.subscribers, ch)
		close(ch)
		empty := len(s.subscribers) == 0
		s.mu.Unlock()
		if empty {
			s.cancel()
		}
	}
	return ch, cancel
}

func (s *Stream) publish(line Line) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subscribers {
		select {
		case ch <- line:
		default:
		}
	}
}

// Streamer is the LogStreamer: one live Stream per (worktree, service) key,
// each wrapping a `runtime compose logs -f` child process.
type Streamer struct {
	rt *runtime.Runtime

	mu      sync.Mutex
	streams map[string]*Stream
}

// New constructs a Streamer that shells out through rt.
func New(rt *runtime.Runtime) *Streamer {
	return &Streamer{rt: rt, streams: make(map[string]*Stream)}
}

func streamKey(worktreeDir, service string) string {
	return worktreeDir + "\x00" + service
}

// Attach returns the live stream for (worktreeDir, service), starting
// `compose logs -f` if one is not already running. service may be empty to
// stream every service in the compose project.
func (s *Streamer) Attach(ctx context.Context, worktreeDir, service string) (*Stream, error) {
	k := streamKey(worktreeDir, service)

	s.mu.Lock()
	if st, ok := s.streams[k]; ok {
		s.mu.Unlock()
		return st, nil
	}
	s.mu.Unlock()

	if err := s.rt.HealthCheck(ctx); err != nil {
		return nil, err
	}

	childCtx, cancel := context.WithCancel(context.Background())
	st := &Stream{
		subscribers: make(map[chan Line]bool),
		cancel:      cancel,
		done:        make(chan struct{}),
	}

	s.mu.Lock()
	s.streams[k] = st
	s.mu.Unlock()

	args := []string{"compose", "logs", "-f", "--tail", tailLines, "--no-log-prefix"}
	if service != "" {
		args = append(args, service)
	}

	go func() {
		defer close(st.done)
		defer func() {
			s.mu.Lock()
			delete(s.streams, k)
			s.mu.Unlock()
		}()

		_ = s.rt.Run(childCtx, args, runtime.Options{
			Dir: worktreeDir,
			OnStdout: func(line string) {
				st.publish(lineFrom(service, line))
			},
			OnStderr: func(line string) {
				st.publish(lineFrom(service, line))
			},
		})
	}()

	return st, nil
}

func lineFrom(service, text string) Line {
	svc := service
	if svc == "" {
		if idx := strings.Index(text, "|"); idx > 0 {
			svc = strings.TrimSpace(text[:idx])
			text = strings.TrimSpace(text[idx+1:])
		}
	}
	return Line{Service: svc, Text: text, Level: classify(text)}
}
