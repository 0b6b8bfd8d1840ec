package worktreelifecycle

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/vibetrees/controlplane/internal/compose"
	"github.com/vibetrees/controlplane/internal/model"
	"github.com/vibetrees/controlplane/internal/runtime"
)

// composeTimeout bounds a single `compose up`/`compose down` invocation.
const composeTimeout = 5 * time.Minute

func (l *Lifecycle) runComposeUp(ctx context.Context, worktreePath, envPath string) error {
	if _, err := os.Stat(filepath.Join(worktreePath, "docker-compose.yml")); err != nil {
		return nil // no compose project in this worktree; nothing to start
	}
	if err := l.Runtime.HealthCheck(ctx); err != nil {
		return err
	}
	args := []string{"compose"}
	if _, err := os.Stat(envPath); err == nil {
		args = append(args, "--env-file", envPath)
	}
	args = append(args, "up", "-d")
	return l.Runtime.Run(ctx, args, runtime.Options{Dir: worktreePath, Timeout: composeTimeout})
}

func (l *Lifecycle) runComposeDown(ctx context.Context, worktreePath, envPath string, removeVolumes bool) error {
	if _, err := os.Stat(filepath.Join(worktreePath, "docker-compose.yml")); err != nil {
		return nil
	}
	args := []string{"compose"}
	if _, err := os.Stat(envPath); err == nil {
		args = append(args, "--env-file", envPath)
	}
	args = append(args, "down")
	if removeVolumes {
		args = append(args, "-v", "--rmi", "local")
	}
	return l.Runtime.Run(ctx, args, runtime.Options{Dir: worktreePath, Timeout: composeTimeout})
}

// allocateAndWriteEnv is the shared port-discovery + .env-generation body
// used by both W-Create step 7-8 and StartServices, run only when no .env
// exists yet (idempotent re-use of an existing allocation).
func (l *Lifecycle) allocateAndWriteEnv(name, worktreePath, envPath string) (map[string]int, error) {
	composeFile := filepath.Join(worktreePath, "docker-compose.yml")
	if _, err := os.Stat(composeFile); err != nil {
		return nil, nil
	}
	if _, err := os.Stat(envPath); err == nil {
		return nil, nil
	}

	services, err := l.Compose.Services(composeFile)
	if err != nil {
		return nil, model.WrapError(model.KindExternal, "failed to inspect compose file", err)
	}
	envVars, _ := compose.PortEnvVars(composeFile)

	ports := map[string]int{}
	for _, svc := range services {
		for i, p := range svc.Ports {
			key := serviceKey(svc, i)
			port, err := l.Ports.Allocate(name, key, p.BasePort)
			if err != nil {
				return nil, model.WrapError(model.KindExhaustion, "port allocation failed", err)
			}
			ports[key] = port
		}
	}
	if err := writeEnvFile(envPath, name, ports, envVars, services); err != nil {
		return nil, model.WrapError(model.KindInternal, "failed to write .env", err)
	}
	return ports, nil
}

// StartServices re-runs port discovery and env generation (preserving an
// existing .env) then `runtime compose up -d`.
func (l *Lifecycle) StartServices(ctx context.Context, name string) (*model.PipelineResult, error) {
	mu := l.lockFor(name)
	mu.Lock()
	defer mu.Unlock()

	pipelineID := newPipelineID()
	path := l.worktreePath(name)
	envPath := filepath.Join(path, ".env")

	if _, err := l.allocateAndWriteEnv(name, path, envPath); err != nil {
		l.emit(pipelineID, name, model.PipelineCreate, "start-services", err.Error(), "error")
		return &model.PipelineResult{PipelineID: pipelineID, Success: false, Step: "start-services", Error: err.Error()}, err
	}

	l.emit(pipelineID, name, model.PipelineCreate, "start-services", "starting services", "info")
	if err := l.runComposeUp(ctx, path, envPath); err != nil {
		l.emit(pipelineID, name, model.PipelineCreate, "start-services", err.Error(), "error")
		return &model.PipelineResult{PipelineID: pipelineID, Success: false, Step: "start-services", Error: err.Error()}, err
	}
	l.emit(pipelineID, name, model.PipelineCreate, "start-services", "services started", "done")
	return &model.PipelineResult{PipelineID: pipelineID, Success: true}, nil
}

// StopServices runs `runtime compose down` without removing volumes.
func (l *Lifecycle) StopServices(ctx context.Context, name string) (*model.PipelineResult, error) {
	mu := l.lockFor(name)
	mu.Lock()
	defer mu.Unlock()

	pipelineID := newPipelineID()
	path := l.worktreePath(name)
	envPath := filepath.Join(path, ".env")

	l.emit(pipelineID, name, model.PipelineCreate, "stop-services", "stopping services", "info")
	if err := l.runComposeDown(ctx, path, envPath, false); err != nil {
		l.emit(pipelineID, name, model.PipelineCreate, "stop-services", err.Error(), "error")
		return &model.PipelineResult{PipelineID: pipelineID, Success: false, Step: "stop-services", Error: err.Error()}, err
	}
	l.emit(pipelineID, name, model.PipelineCreate, "stop-services", "services stopped", "done")
	return &model.PipelineResult{PipelineID: pipelineID, Success: true}, nil
}
