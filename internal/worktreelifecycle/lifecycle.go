// Package worktreelifecycle implements W: the worktree lifecycle pipelines
// (create, delete, start/stop services) that compose the port registry,
// compose inspector, git driver, container runtime and progress bus into
// the idempotent end-to-end operations the control API and CLI both call.
//
// The teacher inlines this orchestration directly in each Cobra command's
// RunE closure (internal/cli/create.go, remove.go, start.go, stop.go); here
// it is lifted into library functions so both the HTTP adapter and the CLI
// drive the same pipeline and cannot drift (spec.md §6's control API needs
// to invoke exactly this logic from POST /api/worktrees).
package worktreelifecycle

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/vibetrees/controlplane/internal/compose"
	"github.com/vibetrees/controlplane/internal/devcontainer"
	"github.com/vibetrees/controlplane/internal/gitutil"
	"github.com/vibetrees/controlplane/internal/model"
	"github.com/vibetrees/controlplane/internal/portregistry"
	"github.com/vibetrees/controlplane/internal/progressbus"
	"github.com/vibetrees/controlplane/internal/runtime"
)

// RootBranch is the name reserved for the primary checkout (I-W2); it is
// never a valid target for W-Delete.
const RootBranch = "main"

// Lifecycle composes R, I, G and the container runtime into the W
// pipelines. One Lifecycle is shared across every worktree of a given
// source repository.
type Lifecycle struct {
	Git      *gitutil.Driver
	Sync     *gitutil.SyncManager
	Ports    *portregistry.Registry
	Compose  *compose.Inspector
	Runtime  *runtime.Runtime
	Bus      *progressbus.Bus

	// SourceRepo is the root checkout's absolute path.
	SourceRepo string
	// WorktreesBase is the directory new worktrees are created under
	// (W-Delete step 1 rejects any path outside of it).
	WorktreesBase string

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// New constructs a Lifecycle. Callers own the lifetime of the supplied
// components (e.g. Ports should already be Open'd).
func New(git *gitutil.Driver, sync_ *gitutil.SyncManager, ports *portregistry.Registry, insp *compose.Inspector, rt *runtime.Runtime, bus *progressbus.Bus, sourceRepo, worktreesBase string) *Lifecycle {
	return &Lifecycle{
		Git:           git,
		Sync:          sync_,
		Ports:         ports,
		Compose:       insp,
		Runtime:       rt,
		Bus:           bus,
		SourceRepo:    sourceRepo,
		WorktreesBase: worktreesBase,
		locks:         make(map[string]*sync.Mutex),
	}
}

// lockFor returns (creating if necessary) the per-worktree mutex guarding
// concurrent pipelines against the same name (I-W3), using the
// double-checked-map idiom so the registration itself only briefly holds
// locksMu.
func (l *Lifecycle) lockFor(name string) *sync.Mutex {
	l.locksMu.Lock()
	defer l.locksMu.Unlock()
	m, ok := l.locks[name]
	if !ok {
		m = &sync.Mutex{}
		l.locks[name] = m
	}
	return m
}

func newPipelineID() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

func (l *Lifecycle) emit(pipelineID, worktree string, kind model.PipelineKind, step, message, level string) {
	if l.Bus == nil {
		return
	}
	l.Bus.Publish(model.ProgressEvent{
		PipelineID: pipelineID,
		Worktree:   worktree,
		Kind:       kind,
		Step:       step,
		Message:    message,
		Level:      level,
		At:         time.Now().UTC(),
	})
}

// slugifyPattern matches any rune outside the allowed branch-slug alphabet
// (spec.md §4.W step 1).
var slugifyPattern = regexp.MustCompile(`[^a-z0-9/._-]`)
var collapseDashes = regexp.MustCompile(`-+`)

// Slugify converts a branch name to a worktree directory-safe slug: lowercase,
// disallowed runes replaced with "-", consecutive "-" collapsed, "-" trimmed
// from both ends, and "/" replaced with "-" for the directory name.
func Slugify(branchName string) string {
	lower := strings.ToLower(branchName)
	repl := slugifyPattern.ReplaceAllString(lower, "-")
	repl = strings.ReplaceAll(repl, "/", "-")
	repl = collapseDashes.ReplaceAllString(repl, "-")
	return strings.Trim(repl, "-")
}

// worktreePath returns the on-disk path for a worktree of the given slug.
func (l *Lifecycle) worktreePath(slug string) string {
	return filepath.Join(l.WorktreesBase, slug)
}

// Create runs W-Create: slugify, preflight cleanup, the idempotency probe,
// `git worktree add`, .gitignore augmentation, upstream publish, port
// allocation, env file generation, dependency install, database seed copy,
// and container start.
func (l *Lifecycle) Create(ctx context.Context, branchName, fromBranch string) (*model.PipelineResult, error) {
	if fromBranch == "" {
		fromBranch = RootBranch
	}
	slug := Slugify(branchName)
	if err := model.ValidateName(slug); err != nil {
		return nil, model.WrapError(model.KindValidation, "branch name slugifies to an invalid worktree name", err)
	}

	mu := l.lockFor(slug)
	mu.Lock()
	defer mu.Unlock()

	pipelineID := newPipelineID()
	result := &model.PipelineResult{PipelineID: pipelineID}
	fail := func(step string, err error) (*model.PipelineResult, error) {
		result.Success = false
		result.Step = step
		result.Error = err.Error()
		l.emit(pipelineID, slug, model.PipelineCreate, step, err.Error(), "error")
		return result, err
	}

	path := l.worktreePath(slug)
	l.emit(pipelineID, slug, model.PipelineCreate, "slugify", fmt.Sprintf("slug=%s path=%s", slug, path), "info")

	// Step 2: preflight cleanup. Non-fatal.
	_ = l.Git.Prune(l.SourceRepo)
	l.emit(pipelineID, slug, model.PipelineCreate, "preflight", "pruned stale worktree registrations", "info")

	// Step 3: idempotency probe.
	branchExists := l.Git.BranchExists(l.SourceRepo, slug)
	_, dirErr := os.Stat(path)
	dirExists := dirErr == nil
	registered := l.Git.IsWorktree(path)

	if branchExists && dirExists && registered {
		result.Success = true
		result.Existed = true
		l.emit(pipelineID, slug, model.PipelineCreate, "idempotency-probe", "worktree already exists", "done")
		return result, nil
	}
	if registered && !dirExists {
		_ = l.Git.Remove(l.SourceRepo, path, true)
		_ = l.Git.Prune(l.SourceRepo)
	}
	if dirExists && !registered {
		if err := os.RemoveAll(path); err != nil {
			return fail("idempotency-probe", model.WrapError(model.KindState, "failed to remove unregistered stale directory", err))
		}
	}

	// Step 4: git worktree add.
	if err := l.Git.Add(l.SourceRepo, slug, path, fromBranch); err != nil {
		return fail("worktree-add", model.WrapError(model.KindExternal, "git worktree add failed", err))
	}
	l.emit(pipelineID, slug, model.PipelineCreate, "worktree-add", "worktree created", "info")

	// Step 5: .gitignore augmentation (idempotent by marker).
	if err := appendGitignoreBlock(path); err != nil {
		return fail("gitignore", model.WrapError(model.KindInternal, "failed to augment .gitignore", err))
	}

	// Step 6: publish upstream — best-effort.
	if err := l.Git.FetchUpstream(path); err != nil {
		l.emit(pipelineID, slug, model.PipelineCreate, "publish-upstream", "could not reach upstream (non-fatal): "+err.Error(), "warn")
	}

	// Step 7 + 8: port allocation and env file generation.
	envPath := filepath.Join(path, ".env")
	ports := map[string]int{}
	if _, err := os.Stat(envPath); err == nil {
		l.emit(pipelineID, slug, model.PipelineCreate, "env-file", ".env already exists, skipping", "info")
	} else {
		composeFile := filepath.Join(path, "docker-compose.yml")
		if _, statErr := os.Stat(composeFile); statErr == nil {
			services, err := l.Compose.Services(composeFile)
			if err != nil {
				return fail("port-allocation", model.WrapError(model.KindExternal, "failed to inspect compose file", err))
			}
			envVars, _ := compose.PortEnvVars(composeFile)

			for _, svc := range services {
				for i, p := range svc.Ports {
					key := serviceKey(svc, i)
					port, err := l.Ports.Allocate(slug, key, p.BasePort)
					if err != nil {
						return fail("port-allocation", model.WrapError(model.KindExhaustion, "port allocation failed", err))
					}
					ports[key] = port
				}
			}
			if err := writeEnvFile(envPath, slug, ports, envVars, services); err != nil {
				return fail("env-file", model.WrapError(model.KindInternal, "failed to write .env", err))
			}
		}
		l.emit(pipelineID, slug, model.PipelineCreate, "env-file", fmt.Sprintf("allocated %d port(s)", len(ports)), "info")
	}

	// Step 8b: devcontainer.json materialization — optional, best-effort.
	// Most worktrees are plain docker-compose projects and devcontainer.Materialize
	// is a no-op for them; worktrees whose services are described by a dev
	// container instead get worktree-scoped rewritten copies here.
	devLabels := buildLabels(model.WorktreeLabels{
		Name:         slug,
		Branch:       slug,
		WorktreePath: path,
		SourceRepo:   l.SourceRepo,
		Ports:        ports,
		CreatedAt:    nowRFC3339(),
	})
	if n, err := devcontainer.Materialize(path, slug, l.worktreeIndex(), ports, devLabels); err != nil {
		l.emit(pipelineID, slug, model.PipelineCreate, "devcontainer", "non-fatal: "+err.Error(), "warn")
	} else if n > 0 {
		l.emit(pipelineID, slug, model.PipelineCreate, "devcontainer", fmt.Sprintf("materialized %d devcontainer.json service(s)", n), "info")
	}

	// Step 9: AI-assistant config file — optional, best-effort.
	if err := writeAssistantConfig(path); err != nil {
		l.emit(pipelineID, slug, model.PipelineCreate, "assistant-config", "skipped: "+err.Error(), "warn")
	}

	// Step 10: dependency install — best-effort.
	if err := l.installDependencies(ctx, path); err != nil {
		l.emit(pipelineID, slug, model.PipelineCreate, "dependency-install", "non-fatal: "+err.Error(), "warn")
	}

	// Step 11: database seed copy — must precede container start, best-effort.
	if err := l.DbCopy(ctx, pipelineID, slug); err != nil {
		l.emit(pipelineID, slug, model.PipelineCreate, "db-copy", "non-fatal: "+err.Error(), "warn")
	}

	// Step 12: container start — best-effort per spec.md's 9-12 carve-out.
	if err := l.runComposeUp(ctx, path, envPath); err != nil {
		l.emit(pipelineID, slug, model.PipelineCreate, "container-start", "non-fatal: "+err.Error(), "warn")
	} else {
		l.emit(pipelineID, slug, model.PipelineCreate, "container-start", "containers started", "info")
	}

	result.Success = true
	l.emit(pipelineID, slug, model.PipelineCreate, "complete", "worktree ready", "done")
	return result, nil
}

// worktreeIndex returns a 0-based position for the WORKTREE_INDEX env var a
// rewritten devcontainer.json exposes to its container (e.g. for a startup
// script to derive a per-worktree database name). It is cosmetic only: the
// host ports devcontainer.Materialize writes come from the port registry,
// not from any index-based shift scheme.
func (l *Lifecycle) worktreeIndex() int {
	return len(l.Ports.All())
}

// wellKnownMultiPortSuffixes names the conventional suffix for a service's
// Nth published port (N>=1), for services whose extra ports have an
// established meaning (e.g. Temporal's 8233 is its web UI) rather than a
// generic ordinal (I-I1).
var wellKnownMultiPortSuffixes = map[string]map[int]string{
	"temporal": {1: "ui"},
}

// serviceKey returns the port-allocation key for a service's portIndex'th
// published port (I-I1): the bare service name for the first port
// regardless of how many ports the service has, and name + a stable
// suffix for every port after that — a well-known suffix when one is
// known for this service, else the "portN" fallback (N is 1-based, so the
// second port is "port2").
func serviceKey(svc model.ComposeService, portIndex int) string {
	if portIndex == 0 {
		return svc.Name
	}
	if suffixes, ok := wellKnownMultiPortSuffixes[svc.Name]; ok {
		if suffix, ok := suffixes[portIndex]; ok {
			return fmt.Sprintf("%s-%s", svc.Name, suffix)
		}
	}
	return fmt.Sprintf("%s-port%d", svc.Name, portIndex+1)
}

const gitignoreMarker = "# vibetrees-managed: do not edit below this line"

func appendGitignoreBlock(worktreePath string) error {
	gitignorePath := filepath.Join(worktreePath, ".gitignore")
	existing, _ := os.ReadFile(gitignorePath)
	if strings.Contains(string(existing), gitignoreMarker) {
		return nil
	}
	f, err := os.OpenFile(gitignorePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString("\n" + gitignoreMarker + "\n.env\n")
	return err
}

func writeAssistantConfig(worktreePath string) error {
	dir := filepath.Join(worktreePath, ".claude")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	settingsPath := filepath.Join(dir, "settings.json")
	if _, err := os.Stat(settingsPath); err == nil {
		return nil
	}
	return os.WriteFile(settingsPath, []byte("{}\n"), 0o644)
}
