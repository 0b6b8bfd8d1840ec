// Package compose implements the ComposeInspector (I): discovery of
// services, published ports, and volume/network ownership from a worktree's
// compose file.
//
// Parsing is deliberately split in two, matching spec.md's own separation:
// structural parsing (services/volumes/networks, normalized port and
// depends_on shapes) goes through compose-spec/compose-go/v2's loader,
// while the literal environment-variable name behind a `${VAR:-default}`
// port default is recovered with a second, independent regex pass over the
// raw file bytes — the loader resolves a variable reference to its value
// and throws the name away, but I-I2 needs the name itself.
package compose

import (
	"os"
	"sort"
	"strconv"
	"sync"

	"github.com/compose-spec/compose-go/v2/loader"
	"github.com/compose-spec/compose-go/v2/types"

	"github.com/vibetrees/controlplane/internal/model"
)

// Inspector caches parsed compose projects by absolute file path. The cache
// is read-mostly: a file is re-parsed only when ClearCache is called or the
// Inspector sees the path for the first time (§5: "the ComposeInspector
// cache is read-mostly and guarded for read/write consistency").
type Inspector struct {
	cache sync.Map // absolute path -> *types.Project
}

// New constructs an empty Inspector.
func New() *Inspector {
	return &Inspector{}
}

// ClearCache drops every cached parse, forcing the next call for any path
// to re-read and re-parse the file. Exported for tests and for the
// diagnostics package's "stale cache" check.
func (i *Inspector) ClearCache() {
	i.cache.Range(func(key, _ any) bool {
		i.cache.Delete(key)
		return true
	})
}

func (i *Inspector) load(path string) (*types.Project, error) {
	if cached, ok := i.cache.Load(path); ok {
		return cached.(*types.Project), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, model.WrapError(model.KindNotFound, "reading compose file "+path, err)
	}

	details := types.ConfigDetails{
		WorkingDir:  "",
		ConfigFiles: []types.ConfigFile{{Filename: path, Content: data}},
		Environment: map[string]string{},
	}

	project, err := loader.Load(details, func(o *loader.Options) {
		o.SkipValidation = true
		o.SkipConsistencyCheck = true
		o.ResolvePaths = false
	})
	if err != nil {
		return nil, &ComposeConfigError{Path: path, Err: err}
	}

	i.cache.Store(path, project)
	return project, nil
}

// ComposeConfigError wraps a `runtime config` / loader failure, giving
// callers the original compose file path alongside the parser's message.
type ComposeConfigError struct {
	Path string
	Err  error
}

func (e *ComposeConfigError) Error() string {
	return "invalid compose file " + e.Path + ": " + e.Err.Error()
}

func (e *ComposeConfigError) Unwrap() error { return e.Err }

// Services returns the normalized service list for the compose file at
// path, with published-port shorthand (string "HOST:CONTAINER", bare
// "PORT", or the long object form) and depends_on (array or map) already
// resolved by the loader.
func (i *Inspector) Services(path string) ([]model.ComposeService, error) {
	project, err := i.load(path)
	if err != nil {
		return nil, err
	}

	externalVolumes, externalNetworks := externalResources(project)

	// project.Services is a map[string]ServiceConfig; compose-go gives no
	// ordering guarantee over it, but downstream port allocation (I-I1) and
	// env-var correlation (I-I2) both need a stable, repeatable service
	// order across calls, so sort by name before walking it.
	names := make([]string, 0, len(project.Services))
	for name := range project.Services {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]model.ComposeService, 0, len(project.Services))
	for _, name := range names {
		svc := project.Services[name]
		ports := make([]model.ComposePort, 0, len(svc.Ports))
		for _, p := range svc.Ports {
			ports = append(ports, model.ComposePort{
				ContainerPort: int(p.Target),
				BasePort:      basePortOf(p),
				Protocol:      protocolOrDefault(p.Protocol),
			})
		}

		var dependsOn []string
		for dep := range svc.DependsOn {
			dependsOn = append(dependsOn, dep)
		}

		var volumes []string
		usesExternalVolume := false
		for _, v := range svc.Volumes {
			volumes = append(volumes, v.Source)
			if externalVolumes[v.Source] {
				usesExternalVolume = true
			}
		}

		usesExternalNetwork := false
		for netName := range svc.Networks {
			if externalNetworks[netName] {
				usesExternalNetwork = true
			}
		}

		var buildContext string
		if svc.Build != nil {
			buildContext = svc.Build.Context
		}

		out = append(out, model.ComposeService{
			Name:            svc.Name,
			Ports:           ports,
			Volumes:         volumes,
			ExternalVolume:  usesExternalVolume,
			ExternalNetwork: usesExternalNetwork,
			DependsOn:       dependsOn,
			BuildContext:    buildContext,
			WorkingDir:      svc.WorkingDir,
		})
	}
	return out, nil
}

// basePortOf returns the declared host-side default port for a service
// port entry: the Published value if a literal was given, else the
// container-side target (compose permits omitting `published`, in which
// case the runtime assigns an ephemeral host port — this system always
// treats the container port as the allocation base in that case).
func basePortOf(p types.ServicePortConfig) int {
	if p.Published != "" {
		if n, err := strconv.Atoi(p.Published); err == nil {
			return n
		}
	}
	return int(p.Target)
}

func protocolOrDefault(proto string) string {
	if proto == "" {
		return "tcp"
	}
	return proto
}

func externalResources(project *types.Project) (volumes map[string]bool, networks map[string]bool) {
	volumes = make(map[string]bool, len(project.Volumes))
	for name, v := range project.Volumes {
		if v.External.External {
			volumes[name] = true
		}
	}
	networks = make(map[string]bool, len(project.Networks))
	for name, n := range project.Networks {
		if n.External.External {
			networks[name] = true
		}
	}
	return volumes, networks
}

// HasService reports whether the compose file at path declares a service
// named name.
func (i *Inspector) HasService(path, name string) (bool, error) {
	services, err := i.Services(path)
	if err != nil {
		return false, err
	}
	for _, s := range services {
		if s.Name == name {
			return true, nil
		}
	}
	return false, nil
}

// Summary is the compact shape the diagnostics and lifecycle packages work
// from: just the service names and the port count per service.
type Summary struct {
	Services   []string
	PortsCount map[string]int
}

// ServiceSummary returns Summary for the compose file at path.
func (i *Inspector) ServiceSummary(path string) (*Summary, error) {
	services, err := i.Services(path)
	if err != nil {
		return nil, err
	}
	s := &Summary{PortsCount: make(map[string]int, len(services))}
	for _, svc := range services {
		s.Services = append(s.Services, svc.Name)
		s.PortsCount[svc.Name] = len(svc.Ports)
	}
	return s, nil
}
