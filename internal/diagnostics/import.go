package diagnostics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/vibetrees/controlplane/internal/model"
)

// Import adopts a worktree that was created outside this tool's knowledge
// (a manually run `git worktree add`, or one restored from a backup) by
// discovering its compose services and allocating registry entries for any
// port that doesn't already have one, without disturbing ports the
// registry already tracks for it.
func (r *Runner) Import(name string) (*model.PipelineResult, error) {
	st := r.State(name)
	if !st.Registered {
		return nil, model.NewError(model.KindNotFound, fmt.Sprintf("%q is not a registered git worktree", name))
	}

	composeFile := filepath.Join(st.Dir, "docker-compose.yml")
	if _, err := os.Stat(composeFile); err != nil {
		return &model.PipelineResult{Success: true}, nil
	}

	services, err := r.Compose.Services(composeFile)
	if err != nil {
		return nil, model.WrapError(model.KindExternal, "failed to inspect compose file", err)
	}

	existing := r.Ports.PortsOf(name)
	imported := 0
	for _, svc := range services {
		for i, p := range svc.Ports {
			key := svc.Name
			if len(svc.Ports) > 1 {
				key = fmt.Sprintf("%s-%d", svc.Name, i)
			}
			if _, ok := existing[key]; ok {
				continue
			}
			if _, err := r.Ports.Allocate(name, key, p.BasePort); err != nil {
				return nil, model.WrapError(model.KindExhaustion, "port allocation failed during import", err)
			}
			imported++
		}
	}

	return &model.PipelineResult{Success: true, Step: fmt.Sprintf("imported %d port(s)", imported)}, nil
}
