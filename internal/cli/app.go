// Package cli — app.go wires the core control-plane packages into the
// shared context every subcommand runs against, mirroring the way main.go
// assembled the teacher's Docker client before handing it to each command.
package cli

import (
	"os"
	"path/filepath"

	"github.com/vibetrees/controlplane/internal/changedetect"
	"github.com/vibetrees/controlplane/internal/compose"
	"github.com/vibetrees/controlplane/internal/config"
	"github.com/vibetrees/controlplane/internal/diagnostics"
	"github.com/vibetrees/controlplane/internal/gitutil"
	"github.com/vibetrees/controlplane/internal/logstream"
	"github.com/vibetrees/controlplane/internal/model"
	"github.com/vibetrees/controlplane/internal/portregistry"
	"github.com/vibetrees/controlplane/internal/progressbus"
	"github.com/vibetrees/controlplane/internal/pty"
	"github.com/vibetrees/controlplane/internal/runtime"
	"github.com/vibetrees/controlplane/internal/secrets"
	"github.com/vibetrees/controlplane/internal/worktreelifecycle"
)

// configPath is bound to the root command's persistent --config flag.
var configPath string

// app bundles the components every subcommand needs, constructed once per
// process invocation from the resolved configuration.
type app struct {
	cfg       *config.Config
	git       *gitutil.Driver
	sync      *gitutil.SyncManager
	ports     *portregistry.Registry
	compose   *compose.Inspector
	changes   *changedetect.Detector
	bus       *progressbus.Bus
	pty       *pty.Manager
	logs      *logstream.Streamer
	sanitizer *secrets.Sanitizer
	rt        *runtime.Runtime
	lifecycle *worktreelifecycle.Lifecycle
	diag      *diagnostics.Runner
}

// loadConfig reads configPath if it exists, falling back to an
// all-defaults configuration rooted at the current working directory
// otherwise — a bare `vibetrees create ...` invocation from
// inside a repo should not require a config file to exist first.
func loadConfig() (*config.Config, error) {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return config.Load(configPath)
		}
	}
	cwd, err := os.Getwd()
	if err != nil {
		return nil, model.WrapError(model.KindInternal, "resolving working directory", err)
	}
	cfg := config.Defaults()
	cfg.Repo.SourcePath = cwd
	return cfg, nil
}

// newApp constructs every core component against cfg. Callers that only
// need a subset (e.g. `list` never touches PTY/logstream) still pay the
// same small construction cost the teacher's NewClient() call paid for
// every subcommand.
func newApp(cfg *config.Config) (*app, error) {
	sourceRepo := cfg.Repo.SourcePath
	worktreesBase := cfg.Repo.WorktreesBase
	if !filepath.IsAbs(worktreesBase) {
		worktreesBase = filepath.Join(sourceRepo, worktreesBase)
	}
	statePath := cfg.Ports.StatePath
	if !filepath.IsAbs(statePath) {
		statePath = filepath.Join(sourceRepo, statePath)
	}

	git := gitutil.New()
	syncMgr := gitutil.NewSyncManager(git)

	ports, err := portregistry.Open(statePath)
	if err != nil {
		return nil, err
	}

	insp := compose.New()
	changes := changedetect.New()
	bus := progressbus.New()
	sanitizer := secrets.New()

	rt, err := runtime.Detect()
	if err != nil {
		return nil, err
	}
	ptyMgr := pty.New()
	logs := logstream.New(rt)

	lifecycle := worktreelifecycle.New(git, syncMgr, ports, insp, rt, bus, sourceRepo, worktreesBase)
	diag := diagnostics.New(git, ports, insp, rt, sourceRepo, worktreesBase)

	return &app{
		cfg: cfg, git: git, sync: syncMgr, ports: ports, compose: insp, changes: changes,
		bus: bus, pty: ptyMgr, logs: logs, sanitizer: sanitizer, rt: rt,
		lifecycle: lifecycle, diag: diag,
	}, nil
}

// bootstrap is the one call every RunE makes before doing anything else:
// load config, build the component set, and hand both back.
func bootstrap() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return newApp(cfg)
}
