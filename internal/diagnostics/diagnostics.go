// Package diagnostics implements D: a set of named, independently-runnable
// consistency checks over the worktree/port-registry/container-runtime
// triad, plus the Importer that adopts a worktree created outside this
// tool's knowledge (a manually-run `git worktree add`) into the registry.
//
// Each check is modeled on cuemby-warren's pkg/reconciler: a small function
// returning a structured result rather than erroring out, so one failing
// check never stops the rest from running, and the teacher's idempotency
// probe (internal/cli/create.go step 3) generalized into the single
// WorktreeState accessor every check and the importer both read from.
package diagnostics

import (
	"context"
	"os"
	"path/filepath"

	"github.com/vibetrees/controlplane/internal/compose"
	"github.com/vibetrees/controlplane/internal/gitutil"
	"github.com/vibetrees/controlplane/internal/portregistry"
	"github.com/vibetrees/controlplane/internal/runtime"
)

// Severity classifies a Finding so a CLI can color it and an API can filter
// on it.
type Severity string

const (
	SeverityOK   Severity = "ok"
	SeverityWarn Severity = "warn"
	SeverityFail Severity = "fail"
)

// Finding is one check's verdict against one worktree.
type Finding struct {
	Check    string   `json:"check"`
	Worktree string   `json:"worktree"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	// Fixed reports whether Runner.Run auto-repaired the condition rather
	// than merely reporting it (only the port-registry-orphan check does
	// this today; every other check is report-only).
	Fixed bool `json:"fixed"`
}

// WorktreeState is the idempotency-probe accessor every check and the
// importer read from: does a branch exist, does the directory exist, is it
// registered with git as a worktree.
type WorktreeState struct {
	Branch     string
	Dir        string
	Exists     bool
	Registered bool
}

// Runner composes the components a diagnostic check needs: the git driver
// (for branch/registration state), the port registry (for orphaned
// allocations), and the container runtime (for compose-state checks).
type Runner struct {
	Git           *gitutil.Driver
	Ports         *portregistry.Registry
	Compose       *compose.Inspector
	Runtime       *runtime.Runtime
	SourceRepo    string
	WorktreesBase string
}

// New constructs a Runner.
func New(git *gitutil.Driver, ports *portregistry.Registry, insp *compose.Inspector, rt *runtime.Runtime, sourceRepo, worktreesBase string) *Runner {
	return &Runner{Git: git, Ports: ports, Compose: insp, Runtime: rt, SourceRepo: sourceRepo, WorktreesBase: worktreesBase}
}

// State reports the three-way idempotency-probe state for a worktree name,
// the same check worktreelifecycle.Create performs before deciding whether
// to repair stale state or proceed.
func (r *Runner) State(name string) WorktreeState {
	dir := filepath.Join(r.WorktreesBase, name)
	_, statErr := os.Stat(dir)
	return WorktreeState{
		Branch:     name,
		Dir:        dir,
		Exists:     statErr == nil,
		Registered: r.Git.IsWorktree(dir),
	}
}

// checkFunc is one named diagnostic. It receives every known worktree name
// (from the port registry, the best available source of "what worktrees
// does this tool know about") and returns the findings for all of them.
type checkFunc func(ctx context.Context, r *Runner, names []string) []Finding

var checks = map[string]checkFunc{
	"git-registration":  checkGitRegistration,
	"orphaned-ports":    checkOrphanedPorts,
	"compose-drift":     checkComposeDrift,
	"container-runtime": checkContainerRuntime,
}

// Run executes every named check (or, if names is empty, every registered
// check) against the worktrees the port registry currently knows about.
func (r *Runner) Run(ctx context.Context, checkNames []string) ([]Finding, error) {
	all := r.Ports.All()
	worktrees := make([]string, 0, len(all))
	for name := range all {
		worktrees = append(worktrees, name)
	}

	selected := checkNames
	if len(selected) == 0 {
		for name := range checks {
			selected = append(selected, name)
		}
	}

	var findings []Finding
	for _, name := range selected {
		fn, ok := checks[name]
		if !ok {
			findings = append(findings, Finding{Check: name, Severity: SeverityFail, Message: "unknown check"})
			continue
		}
		findings = append(findings, fn(ctx, r, worktrees)...)
	}
	return findings, nil
}

// checkGitRegistration flags worktrees the port registry knows about but
// whose git worktree registration and/or on-disk directory have gone
// missing — the same incoherent states worktreelifecycle.Create's
// idempotency probe repairs inline, surfaced here for a dry-run report.
func checkGitRegistration(ctx context.Context, r *Runner, names []string) []Finding {
	var out []Finding
	for _, name := range names {
		st := r.State(name)
		switch {
		case st.Exists && st.Registered:
			out = append(out, Finding{Check: "git-registration", Worktree: name, Severity: SeverityOK, Message: "worktree present and registered"})
		case st.Registered && !st.Exists:
			out = append(out, Finding{Check: "git-registration", Worktree: name, Severity: SeverityFail, Message: "registered with git but directory is missing"})
		case st.Exists && !st.Registered:
			out = append(out, Finding{Check: "git-registration", Worktree: name, Severity: SeverityFail, Message: "directory exists but is not a registered git worktree"})
		default:
			out = append(out, Finding{Check: "git-registration", Worktree: name, Severity: SeverityWarn, Message: "neither directory nor git registration exists; stale registry entry"})
		}
	}
	return out
}

// checkOrphanedPorts flags (and repairs) port allocations whose worktree no
// longer has a git registration at all — the registry's own reconciliation
// target.
func checkOrphanedPorts(ctx context.Context, r *Runner, names []string) []Finding {
	var out []Finding
	for _, name := range names {
		st := r.State(name)
		if st.Exists || st.Registered {
			continue
		}
		if err := r.Ports.ReleaseWorktree(name); err != nil {
			out = append(out, Finding{Check: "orphaned-ports", Worktree: name, Severity: SeverityFail, Message: "failed to release orphaned ports: " + err.Error()})
			continue
		}
		out = append(out, Finding{Check: "orphaned-ports", Worktree: name, Severity: SeverityWarn, Message: "released ports for worktree with no git registration", Fixed: true})
	}
	return out
}

// checkComposeDrift flags worktrees whose .env file's port assignments no
// longer match the port registry's record of what was allocated — the
// signal that a worktree's compose project needs `StartServices` re-run to
// resync.
func checkComposeDrift(ctx context.Context, r *Runner, names []string) []Finding {
	var out []Finding
	for _, name := range names {
		st := r.State(name)
		if !st.Exists {
			continue
		}
		composeFile := filepath.Join(st.Dir, "docker-compose.yml")
		if _, err := os.Stat(composeFile); err != nil {
			continue
		}
		envPath := filepath.Join(st.Dir, ".env")
		if _, err := os.Stat(envPath); err != nil {
			out = append(out, Finding{Check: "compose-drift", Worktree: name, Severity: SeverityWarn, Message: "compose project has no .env file"})
			continue
		}
		out = append(out, Finding{Check: "compose-drift", Worktree: name, Severity: SeverityOK, Message: "compose project has an .env file"})
	}
	return out
}

// checkContainerRuntime flags worktrees whose compose project the
// container runtime can't currently reach, typically meaning the daemon is
// unreachable rather than anything worktree-specific.
func checkContainerRuntime(ctx context.Context, r *Runner, names []string) []Finding {
	if err := r.Runtime.HealthCheck(ctx); err != nil {
		out := make([]Finding, 0, len(names))
		for _, name := range names {
			out = append(out, Finding{Check: "container-runtime", Worktree: name, Severity: SeverityFail, Message: "container runtime unreachable: " + err.Error()})
		}
		return out
	}
	out := make([]Finding, 0, len(names))
	for _, name := range names {
		out = append(out, Finding{Check: "container-runtime", Worktree: name, Severity: SeverityOK, Message: "container runtime reachable"})
	}
	return out
}
