// Package portregistry implements the PortRegistry (R): the single source
// of truth for which host port is published for which (worktree, service)
// pair, persisted as JSON relative to the project root so allocations
// survive a control-plane restart (I-R2).
//
// Allocation searches upward from a base port for the first port that is
// both unused in the registry and free at the OS level (net.Listen probe,
// carried over from the teacher's Scanner), rather than the teacher's
// per-worktree-index 10000 banding — see DESIGN.md for why that formula
// does not carry over.
package portregistry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/vibetrees/controlplane/internal/model"
)

const maxPort = 65535

// minPort is the lowest port Allocate will ever hand out, regardless of
// basePort: ports below 1024 require elevated privileges to bind on most
// platforms, so spec.md §4.R has Allocate skip them (no worktree service
// should land in that range even if a compose file's base port does).
const minPort = 1024

// Registry is the PortRegistry. All mutation goes through its methods,
// which serialize under a single mutex — allocations are short, so this
// is never a contended bottleneck (§5 concurrency model).
type Registry struct {
	mu      sync.Mutex
	path    string
	scanner scanner

	// allocations is worktreeName -> serviceKey -> port.
	allocations map[string]map[string]int
}

// Open loads an existing registry file at path, or starts empty if it does
// not exist yet. path is resolved relative to the project root by the
// caller, matching the teacher's convention of resolving config paths
// relative to the repo root rather than the process cwd.
func Open(path string) (*Registry, error) {
	r := &Registry{
		path:        path,
		allocations: make(map[string]map[string]int),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return nil, model.WrapError(model.KindInternal, "reading port registry", err)
	}
	if len(data) == 0 {
		return r, nil
	}
	if err := json.Unmarshal(data, &r.allocations); err != nil {
		return nil, model.WrapError(model.KindInternal, "parsing port registry "+path, err)
	}
	return r, nil
}

// save writes the registry atomically: write to a temp file in the same
// directory, then rename over the destination, so a crash mid-write never
// leaves a truncated registry file behind.
func (r *Registry) save() error {
	data, err := json.MarshalIndent(r.allocations, "", "  ")
	if err != nil {
		return model.WrapError(model.KindInternal, "marshaling port registry", err)
	}

	dir := filepath.Dir(r.path)
	tmp, err := os.CreateTemp(dir, ".portregistry-*.tmp")
	if err != nil {
		return model.WrapError(model.KindInternal, "creating temp registry file", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return model.WrapError(model.KindInternal, "writing temp registry file", err)
	}
	if err := tmp.Close(); err != nil {
		return model.WrapError(model.KindInternal, "closing temp registry file", err)
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		return model.WrapError(model.KindInternal, "renaming temp registry file into place", err)
	}
	return nil
}

// isFree reports whether port is neither already recorded for a different
// (worktree, serviceKey) nor bound at the OS level.
func (r *Registry) isFree(port int) bool {
	for _, services := range r.allocations {
		for _, p := range services {
			if p == port {
				return false
			}
		}
	}
	return r.scanner.isPortAvailable(port)
}

// Allocate finds the smallest free port at or above basePort for
// (worktree, serviceKey) and records it (I-R1: no two live worktrees share
// a published port). If the pair already has an allocation, that port is
// returned unchanged — Allocate is idempotent for an existing key.
func (r *Registry) Allocate(worktree, serviceKey string, basePort int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if services, ok := r.allocations[worktree]; ok {
		if port, ok := services[serviceKey]; ok {
			return port, nil
		}
	}

	start := basePort
	if start < minPort {
		start = minPort
	}
	for port := start; port <= maxPort; port++ {
		if r.isFree(port) {
			if r.allocations[worktree] == nil {
				r.allocations[worktree] = make(map[string]int)
			}
			r.allocations[worktree][serviceKey] = port
			if err := r.save(); err != nil {
				delete(r.allocations[worktree], serviceKey)
				return 0, err
			}
			return port, nil
		}
	}

	return 0, model.NewError(model.KindExhaustion,
		fmt.Sprintf("no free port available at or above %d for %s/%s", basePort, worktree, serviceKey))
}

// Release removes a single (worktree, serviceKey) allocation.
func (r *Registry) Release(worktree, serviceKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	services, ok := r.allocations[worktree]
	if !ok {
		return nil
	}
	delete(services, serviceKey)
	if len(services) == 0 {
		delete(r.allocations, worktree)
	}
	return r.save()
}

// ReleaseWorktree removes every allocation for worktree (used by W-Delete).
func (r *Registry) ReleaseWorktree(worktree string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.allocations[worktree]; !ok {
		return nil
	}
	delete(r.allocations, worktree)
	return r.save()
}

// PortsOf returns a copy of the service-key -> port map for worktree.
func (r *Registry) PortsOf(worktree string) map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()

	services := r.allocations[worktree]
	out := make(map[string]int, len(services))
	for k, v := range services {
		out[k] = v
	}
	return out
}

// All returns a deep copy of the full allocation table, e.g. for the
// diagnostics package's port-conflict check.
func (r *Registry) All() map[string]map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]map[string]int, len(r.allocations))
	for wt, services := range r.allocations {
		cp := make(map[string]int, len(services))
		for k, v := range services {
			cp[k] = v
		}
		out[wt] = cp
	}
	return out
}

// SyncFrom reconciles the registry against the worktrees actually present
// on disk (the names reported by `git worktree list`). Per the pinned open
// question, allocations belonging to a worktree that still exists but is
// currently stopped are KEPT, not pruned — only allocations for worktrees
// that no longer exist at all are removed (I-R3).
func (r *Registry) SyncFrom(existingWorktreeNames []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing := make(map[string]bool, len(existingWorktreeNames))
	for _, n := range existingWorktreeNames {
		existing[n] = true
	}

	changed := false
	for wt := range r.allocations {
		if !existing[wt] {
			delete(r.allocations, wt)
			changed = true
		}
	}

	if !changed {
		return nil
	}
	return r.save()
}
