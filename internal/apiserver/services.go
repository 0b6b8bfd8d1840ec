package apiserver

import (
	"context"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gorilla/mux"

	"github.com/vibetrees/controlplane/internal/changedetect"
	"github.com/vibetrees/controlplane/internal/gitutil"
	"github.com/vibetrees/controlplane/internal/model"
	"github.com/vibetrees/controlplane/internal/runtime"
	"github.com/vibetrees/controlplane/internal/validate"
	"github.com/vibetrees/controlplane/internal/worktreelifecycle"
)

// handleServicesAction implements POST /api/worktrees/:name/services/{start,stop,restart}.
// restart is stop immediately followed by start; W has no combined
// primitive for it since the two halves already broadcast their own
// progress events and a caller rarely needs them atomic.
func (s *Server) handleServicesAction(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	name, action := vars["name"], vars["action"]
	if err := validate.WorktreeName(name); err != nil {
		s.writeError(w, err)
		return
	}

	ctx, cancel := requestContext(r, defaultRequestTimeout)
	defer cancel()

	var result *model.PipelineResult
	var err error
	switch action {
	case "start":
		result, err = s.Lifecycle.StartServices(ctx, name)
	case "stop":
		result, err = s.Lifecycle.StopServices(ctx, name)
	case "restart":
		if result, err = s.Lifecycle.StopServices(ctx, name); err == nil {
			result, err = s.Lifecycle.StartServices(ctx, name)
		}
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": result.Success, "ports": s.Ports.PortsOf(name)})
}

// handleServiceAction implements POST /api/worktrees/:name/services/:service/{restart,rebuild}.
// Both variants are a scoped compose invocation against a single service;
// rebuild forces an image rebuild before restarting it.
func (s *Server) handleServiceAction(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	name, service, action := vars["name"], vars["service"], vars["action"]
	if err := validate.WorktreeName(name); err != nil {
		s.writeError(w, err)
		return
	}
	if err := validate.ServiceName(service); err != nil {
		s.writeError(w, err)
		return
	}

	ctx, cancel := requestContext(r, defaultRequestTimeout)
	defer cancel()

	worktreePath := filepath.Join(s.WorktreesBase, name)
	envPath := filepath.Join(worktreePath, ".env")
	args := []string{"compose"}
	if _, err := os.Stat(envPath); err == nil {
		args = append(args, "--env-file", envPath)
	}
	if action == "rebuild" {
		args = append(args, "up", "-d", "--build", service)
	} else {
		args = append(args, "restart", service)
	}
	if err := s.Lifecycle.Runtime.Run(ctx, args, runtime.Options{Dir: worktreePath}); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleUpdates(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if err := validate.WorktreeName(name); err != nil {
		s.writeError(w, err)
		return
	}
	path := filepath.Join(s.WorktreesBase, name)

	if err := s.Git.FetchUpstream(path); err != nil {
		s.writeError(w, err)
		return
	}
	ahead, behind, err := s.Git.AheadBehind(path, "HEAD", "@{upstream}")
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ahead": ahead, "behind": behind})
}

type syncRequest struct {
	Strategy    string `json:"strategy"`
	Force       bool   `json:"force"`
	SmartReload bool   `json:"smartReload"`
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if err := validate.WorktreeName(name); err != nil {
		s.writeError(w, err)
		return
	}

	var req syncRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	strategy := gitutil.SyncStrategy(req.Strategy)
	if strategy == "" {
		strategy = gitutil.SyncRebase
	}

	path := filepath.Join(s.WorktreesBase, name)
	beforeSHA := ""
	if last, err := s.Git.LastCommit(path, "HEAD"); err == nil {
		beforeSHA = last.SHA
	}

	result, err := s.Sync.Sync(path, worktreelifecycle.RootBranch, strategy, req.Force)
	if err != nil {
		s.writeError(w, err)
		return
	}

	analysis := s.analyzeChanges(path, beforeSHA)
	if req.SmartReload && analysis != nil {
		s.smartReload(r.Context(), name, path, analysis)
	}

	writeJSON(w, http.StatusOK, map[string]any{"sync": result, "changes": analysis})
}

// analyzeChanges classifies what changed between beforeSHA and the
// worktree's current HEAD (typically the sync just performed), matching
// against each compose service's build context/working dir so the result
// can drive a smart (service-scoped) reload instead of a blanket restart.
// Returns nil if there is no compose project or the diff can't be computed
// (sync already succeeded either way; this is purely advisory).
func (s *Server) analyzeChanges(worktreePath, beforeSHA string) *model.ChangeAnalysis {
	if beforeSHA == "" {
		return nil
	}
	changedFiles, err := s.Git.DiffNames(worktreePath, beforeSHA, "HEAD")
	if err != nil {
		return nil
	}

	composeFile := filepath.Join(worktreePath, "docker-compose.yml")
	services, err := s.Compose.Services(composeFile)
	if err != nil {
		return s.Changes.Analyze(changedFiles, nil)
	}
	ctxs := make([]changedetect.ServiceContext, 0, len(services))
	for _, svc := range services {
		ctxs = append(ctxs, changedetect.ServiceContext{Name: svc.Name, BuildContext: svc.BuildContext, WorkingDir: svc.WorkingDir})
	}
	return s.Changes.Analyze(changedFiles, ctxs)
}

// smartReload restarts only the services analysis marked affected (or
// every service if the _all_ sentinel is present), via the same
// start/stop compose invocations the services API uses.
func (s *Server) smartReload(ctx context.Context, name, worktreePath string, analysis *model.ChangeAnalysis) {
	if len(analysis.AffectedServices) == 0 {
		return
	}
	if analysis.AffectedServices[0] == model.AllSentinel {
		_, _ = s.Lifecycle.StopServices(ctx, name)
		_, _ = s.Lifecycle.StartServices(ctx, name)
		return
	}
	envPath := filepath.Join(worktreePath, ".env")
	args := []string{"compose"}
	if _, err := os.Stat(envPath); err == nil {
		args = append(args, "--env-file", envPath)
	}
	args = append(args, "restart")
	args = append(args, analysis.AffectedServices...)
	_ = s.Lifecycle.Runtime.Run(ctx, args, runtime.Options{Dir: worktreePath})
}

type rollbackRequest struct {
	Commit string `json:"commit"`
}

func (s *Server) handleRollback(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if err := validate.WorktreeName(name); err != nil {
		s.writeError(w, err)
		return
	}

	var req rollbackRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if req.Commit == "" {
		s.writeError(w, model.NewError(model.KindValidation, "commit is required"))
		return
	}

	path := filepath.Join(s.WorktreesBase, name)
	if err := s.Sync.Rollback(path, req.Commit); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleConflicts(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if err := validate.WorktreeName(name); err != nil {
		s.writeError(w, err)
		return
	}
	path := filepath.Join(s.WorktreesBase, name)
	files, err := s.Git.ConflictedFiles(path)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, files)
}
