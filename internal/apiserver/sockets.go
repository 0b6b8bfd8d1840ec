package apiserver

import (
	"encoding/json"
	"net/http"
	"path/filepath"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/vibetrees/controlplane/internal/model"
	"github.com/vibetrees/controlplane/internal/validate"
	"github.com/vibetrees/controlplane/internal/vtlog"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// checkOrigin returns an origin-check function bound to s.AllowedOrigins;
// an empty list means every origin is accepted, the shape a local
// control-UI dev server needs since its origin varies by port.
func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range s.AllowedOrigins {
		if allowed == origin {
			return true
		}
	}
	return false
}

func (s *Server) upgrade(w http.ResponseWriter, r *http.Request) (*websocket.Conn, bool) {
	if err := validate.WebSocketURL(r.URL.RequestURI()); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil, false
	}
	upgrader.CheckOrigin = s.checkOrigin
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		vtlog.WithComponent("apiserver").Warn().Err(err).Msg("websocket upgrade failed")
		return nil, false
	}
	return conn, true
}

// handleControlSocket serves "/": a broadcast-only feed of every progress
// event the ProgressBus publishes, for the control UI's live worktree list.
func (s *Server) handleControlSocket(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	conn, ok := s.upgrade(w, r)
	if !ok {
		return
	}
	defer conn.Close()

	sub, cancel := s.Bus.Subscribe()
	defer cancel()

	// Drain client frames (pings, or a client closing) on its own goroutine
	// so a blocked write doesn't also block us from noticing disconnect.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case event, ok := <-sub:
			if !ok {
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}

// ptyControlMessage is the recognized subset of JSON frames a terminal
// socket client may send; any JSON that doesn't decode as one of these
// (or a text frame) is treated as raw input instead, per spec.md §6's PTY
// message framing.
type ptyControlMessage struct {
	Type string `json:"type"`
	Cols int    `json:"cols"`
	Rows int    `json:"rows"`
}

// handleTerminalSocket serves "/terminal/{worktree}?command={shell|claude|codex}":
// a bidirectional PTY session. Text frames are bytes to write; a JSON
// {type:"resize"} frame resizes the PTY; any other JSON is treated as
// input verbatim, matching PTYSessionManager's "not a recognized control
// message" fallback.
func (s *Server) handleTerminalSocket(w http.ResponseWriter, r *http.Request) {
	worktree := mux.Vars(r)["worktree"]
	if err := validate.WorktreeName(worktree); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	command := model.PTYCommand(r.URL.Query().Get("command"))
	if command == "" {
		command = model.CommandShell
	}
	if err := validate.PTYExecutable(string(command)); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, ok := s.upgrade(w, r)
	if !ok {
		return
	}
	defer conn.Close()

	dir := filepath.Join(s.WorktreesBase, worktree)
	session, err := s.PTY.GetOrCreate(r.Context(), worktree, command, dir, 80, 24)
	if err != nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(model.AsError(err).Error()))
		return
	}

	ch, unsubscribe := session.Subscribe()
	defer unsubscribe()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for chunk := range ch {
			if err := conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
				return
			}
		}
	}()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType == websocket.BinaryMessage {
			_ = session.Write(data)
			continue
		}

		var ctrl ptyControlMessage
		if json.Unmarshal(data, &ctrl) == nil && ctrl.Type == "resize" {
			_ = session.Resize(ctrl.Cols, ctrl.Rows)
			continue
		}
		_ = session.Write(data)
	}
	<-writerDone
}

// handleWorktreeLogsSocket serves "/logs/{worktree}": combined logs across
// every service in the compose project.
func (s *Server) handleWorktreeLogsSocket(w http.ResponseWriter, r *http.Request) {
	s.streamLogs(w, r, mux.Vars(r)["worktree"], "")
}

// handleServiceLogsSocket serves "/logs/{worktree}/{service}": logs scoped
// to a single compose service.
func (s *Server) handleServiceLogsSocket(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	s.streamLogs(w, r, vars["worktree"], vars["service"])
}

func (s *Server) streamLogs(w http.ResponseWriter, r *http.Request, worktree, service string) {
	if err := validate.WorktreeName(worktree); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if service != "" {
		if err := validate.ServiceName(service); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	conn, ok := s.upgrade(w, r)
	if !ok {
		return
	}
	defer conn.Close()

	dir := filepath.Join(s.WorktreesBase, worktree)
	stream, err := s.Logs.Attach(r.Context(), dir, service)
	if err != nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(model.AsError(err).Error()))
		return
	}

	ch, unsubscribe := stream.Subscribe()
	defer unsubscribe()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case line, ok := <-ch:
			if !ok {
				return
			}
			if s.Sanitizer != nil {
				line.Text = s.Sanitizer.Sanitize(line.Text).Text
			}
			if err := conn.WriteJSON(line); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}
