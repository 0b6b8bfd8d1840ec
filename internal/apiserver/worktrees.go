package apiserver

import (
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/vibetrees/controlplane/internal/gitutil"
	"github.com/vibetrees/controlplane/internal/model"
	"github.com/vibetrees/controlplane/internal/validate"
	"github.com/vibetrees/controlplane/internal/worktreelifecycle"
)

// snapshot assembles the externally-visible Worktree view for one git
// worktree entry: git status/ahead-behind against its base, the port
// registry's current allocations, and a runtime container snapshot.
func (s *Server) snapshot(r *http.Request, info gitutil.WorktreeInfo) model.Worktree {
	name := filepath.Base(info.Path)
	wt := model.Worktree{
		Name:   name,
		Path:   info.Path,
		Branch: info.Branch,
		IsRoot: name == worktreelifecycle.RootBranch || info.Path == s.SourceRepo,
		State:  model.StateReady,
		Ports:  s.Ports.PortsOf(name),
	}

	dirty, err := s.Git.HasUncommittedChanges(info.Path)
	switch {
	case err != nil:
		wt.GitStatus = model.GitStatusUnknown
	case dirty:
		wt.GitStatus = model.GitStatusUncommitted
	default:
		wt.GitStatus = model.GitStatusClean
	}

	if ahead, behind, err := s.Git.AheadBehind(info.Path, info.Branch, "origin/"+info.Branch); err == nil {
		wt.Ahead, wt.Behind = ahead, behind
	}

	if last, err := s.Git.LastCommit(info.Path, "HEAD"); err == nil {
		wt.LastCommit = last
	}

	if containers, err := s.Lifecycle.ContainersForWorktree(r.Context(), name); err == nil {
		for _, c := range containers {
			wt.Containers = append(wt.Containers, model.ContainerStatus{Service: c.ServiceName, Name: c.ContainerName, State: c.Status})
		}
	}

	return wt
}

func (s *Server) handleListWorktrees(w http.ResponseWriter, r *http.Request) {
	entries, err := s.Git.List(s.SourceRepo)
	if err != nil {
		s.writeError(w, err)
		return
	}

	out := make([]model.Worktree, 0, len(entries))
	for _, e := range entries {
		if e.IsBare {
			continue
		}
		out = append(out, s.snapshot(r, e))
	}
	writeJSON(w, http.StatusOK, out)
}

type createWorktreeRequest struct {
	BranchName string `json:"branchName"`
	FromBranch string `json:"fromBranch"`
}

func (s *Server) handleCreateWorktree(w http.ResponseWriter, r *http.Request) {
	var req createWorktreeRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := validate.BranchName(req.BranchName); err != nil {
		s.writeError(w, err)
		return
	}

	force := r.URL.Query().Get("force") == "1"
	if req.FromBranch == "" {
		req.FromBranch = worktreelifecycle.RootBranch
	}

	if req.FromBranch == worktreelifecycle.RootBranch && !force {
		if _, behind, err := s.Git.AheadBehind(s.SourceRepo, worktreelifecycle.RootBranch, "origin/"+worktreelifecycle.RootBranch); err == nil && behind > 0 {
			dirty, _ := s.Git.HasUncommittedChanges(s.SourceRepo)
			writeJSON(w, http.StatusConflict, map[string]any{
				"needsSync":     true,
				"commitsBehind": behind,
				"hasDirtyState": dirty,
				"message":       "main is " + strconv.Itoa(behind) + " commits behind origin/main",
			})
			return
		}
	}

	ctx, cancel := requestContext(r, 5*time.Minute)
	defer cancel()

	result, err := s.Lifecycle.Create(ctx, req.BranchName, req.FromBranch)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !result.Success {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"success": false, "step": result.Step, "error": result.Error})
		return
	}

	slug := worktreelifecycle.Slugify(req.BranchName)
	info := gitutil.WorktreeInfo{Path: filepath.Join(s.WorktreesBase, slug), Branch: slug}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "worktree": s.snapshot(r, info)})
}

func (s *Server) handleDeleteWorktree(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if err := validate.WorktreeName(name); err != nil {
		s.writeError(w, err)
		return
	}

	ctx, cancel := requestContext(r, 5*time.Minute)
	defer cancel()

	result, err := s.Lifecycle.Delete(ctx, name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": result.Success, "error": result.Error})
}

func (s *Server) handleCloseInfo(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if err := validate.WorktreeName(name); err != nil {
		s.writeError(w, err)
		return
	}
	path := filepath.Join(s.WorktreesBase, name)

	ahead, behind, err := s.Git.AheadBehind(path, worktreelifecycle.RootBranch, "origin/"+worktreelifecycle.RootBranch)
	if err != nil {
		s.writeError(w, err)
		return
	}
	mainDirty, _ := s.Git.HasUncommittedChanges(s.SourceRepo)
	wtDirty, _ := s.Git.HasUncommittedChanges(path)

	writeJSON(w, http.StatusOK, map[string]any{
		"merged":        ahead == 0,
		"ahead":         ahead,
		"behind":        behind,
		"mainClean":     !mainDirty,
		"hasDirtyState": wtDirty,
	})
}
