// Package apiserver implements E: the thin net/http + gorilla/websocket
// adapter over the control plane's core packages (W, G, P, B). It carries no
// business logic of its own — every handler parses/validates its input
// (via internal/validate), calls straight into the core, and sanitizes
// errors before they leave the process, per spec.md §6/§7.
//
// Route dispatch uses gorilla/mux for its path-variable matching
// (`/api/worktrees/{name}`); nothing here depends on mux beyond that.
package apiserver

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/vibetrees/controlplane/internal/changedetect"
	"github.com/vibetrees/controlplane/internal/compose"
	"github.com/vibetrees/controlplane/internal/gitutil"
	"github.com/vibetrees/controlplane/internal/logstream"
	"github.com/vibetrees/controlplane/internal/model"
	"github.com/vibetrees/controlplane/internal/portregistry"
	"github.com/vibetrees/controlplane/internal/progressbus"
	"github.com/vibetrees/controlplane/internal/pty"
	"github.com/vibetrees/controlplane/internal/secrets"
	"github.com/vibetrees/controlplane/internal/vtlog"
	"github.com/vibetrees/controlplane/internal/worktreelifecycle"
)

// Server wires the core components behind the control API and streaming
// WebSocket surface. One Server serves one source repository's worktrees.
type Server struct {
	Lifecycle *worktreelifecycle.Lifecycle
	Git       *gitutil.Driver
	Sync      *gitutil.SyncManager
	Ports     *portregistry.Registry
	Compose   *compose.Inspector
	Changes   *changedetect.Detector
	Bus       *progressbus.Bus
	PTY       *pty.Manager
	Logs      *logstream.Streamer
	Sanitizer *secrets.Sanitizer

	SourceRepo    string
	WorktreesBase string

	// AllowedOrigins restricts which Origin header a WebSocket upgrade
	// accepts from; empty means same-origin only is enforced by the
	// upgrader's default CheckOrigin.
	AllowedOrigins []string
}

// Router builds the complete *mux.Router for this Server: the JSON control
// API plus the four WebSocket endpoints.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/api/worktrees", s.handleListWorktrees).Methods(http.MethodGet)
	r.HandleFunc("/api/worktrees", s.handleCreateWorktree).Methods(http.MethodPost)
	r.HandleFunc("/api/worktrees/{name}", s.handleDeleteWorktree).Methods(http.MethodDelete)
	r.HandleFunc("/api/worktrees/{name}/close-info", s.handleCloseInfo).Methods(http.MethodGet)
	r.HandleFunc("/api/worktrees/{name}/services/{action:start|stop|restart}", s.handleServicesAction).Methods(http.MethodPost)
	r.HandleFunc("/api/worktrees/{name}/services/{service}/{action:restart|rebuild}", s.handleServiceAction).Methods(http.MethodPost)
	r.HandleFunc("/api/worktrees/{name}/updates", s.handleUpdates).Methods(http.MethodGet)
	r.HandleFunc("/api/worktrees/{name}/sync", s.handleSync).Methods(http.MethodPost)
	r.HandleFunc("/api/worktrees/{name}/rollback", s.handleRollback).Methods(http.MethodPost)
	r.HandleFunc("/api/worktrees/{name}/conflicts", s.handleConflicts).Methods(http.MethodGet)

	r.Handle("/", http.HandlerFunc(s.handleControlSocket))
	r.HandleFunc("/terminal/{worktree}", s.handleTerminalSocket)
	r.HandleFunc("/logs/{worktree}", s.handleWorktreeLogsSocket)
	r.HandleFunc("/logs/{worktree}/{service}", s.handleServiceLogsSocket)

	return r
}

// writeJSON sanitizes nothing itself (JSON bodies here are structured data,
// not free text) and writes v as the response body with status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err to its HTTP status (model.Error.HTTPStatus, or 500 for
// anything else) and writes a sanitized {error} body — the one point
// spec.md §7 requires sanitization to run before an error leaves the core.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	modelErr := model.AsError(err)
	message := modelErr.Error()
	if s.Sanitizer != nil {
		message = s.Sanitizer.Sanitize(message).Text
	}
	vtlog.WithComponent("apiserver").Warn().Str("kind", string(modelErr.Kind)).Msg(message)
	writeJSON(w, modelErr.HTTPStatus(), map[string]any{"success": false, "error": message})
}

func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return model.WrapError(model.KindValidation, "invalid JSON body", err)
	}
	return nil
}

// requestContext attaches a bounded deadline to a handler's context the way
// spec.md §5 requires for shell-outs and network calls; individual
// long-lived operations (PTY sessions, log streams) instead use the
// request's own context without this deadline.
func requestContext(r *http.Request, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), timeout)
}

const defaultRequestTimeout = 30 * time.Second
