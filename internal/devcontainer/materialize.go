// materialize.go wires devcontainer.json discovery and rewriting into the
// worktree creation pipeline, for worktrees whose services are described by
// a dev container rather than (or in addition to) a plain docker-compose.yml.
package devcontainer

import (
	"os"
	"path/filepath"

	"github.com/vibetrees/controlplane/internal/model"
)

func loadRawJSON(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, model.WrapError(model.KindInternal, "reading devcontainer.json", err)
	}
	return data, nil
}

// Materialize rewrites every devcontainer.json DiscoverServiceConfigs finds
// under worktreePath into worktree-specific copies, one per discovered
// service (the empty-string key covers a whole-project, single-container
// config with no per-service split).
//
// ports supplies the shifted host ports already allocated for this
// worktree (portregistry.Registry.PortsOf's shape); a service with no
// entry is rewritten with its ports left as declared in the original file.
// Materialize is a no-op, returning (0, nil), when the worktree has no
// devcontainer.json at all — most worktrees are plain docker-compose
// projects and never reach this path.
func Materialize(worktreePath, envName string, worktreeIndex int, ports map[string]int, labels map[string]string) (int, error) {
	configs := DiscoverServiceConfigs(worktreePath)
	if len(configs) == 0 {
		return 0, nil
	}

	written := 0
	for service, path := range configs {
		if err := materializeOne(worktreePath, path, service, envName, worktreeIndex, ports, labels); err != nil {
			return written, model.WrapError(model.KindInternal, "rewriting devcontainer.json for service "+serviceLabel(service), err)
		}
		written++
	}
	return written, nil
}

func serviceLabel(service string) string {
	if service == "" {
		return "(whole project)"
	}
	return service
}

func materializeOne(worktreePath, sourcePath, service, envName string, worktreeIndex int, ports map[string]int, labels map[string]string) error {
	raw, err := LoadConfig(sourcePath)
	if err != nil {
		return err
	}

	defaultService := service
	if defaultService == "" {
		defaultService = raw.Service
	}

	composeServiceCount := 0
	if composeFiles := GetComposeFiles(raw); len(composeFiles) > 0 {
		if raw.RunServices != nil {
			composeServiceCount = len(raw.RunServices)
		} else {
			composeServiceCount = 1
		}
	}
	pattern := DetectPattern(raw, composeServiceCount)

	specs := devcontainerPortSpecs(raw, defaultService, ports)

	rawJSON, err := loadRawJSON(sourcePath)
	if err != nil {
		return err
	}

	destDir := filepath.Dir(sourcePath)
	destJSON := filepath.Join(destDir, "devcontainer.json")

	var rewritten []byte
	switch pattern {
	case PatternComposeSingle, PatternComposeMulti:
		services := composeServiceNames(raw, defaultService)
		overrideData, err := GenerateComposeOverride(envName, services, specs, labels)
		if err != nil {
			return err
		}
		overridePath := "docker-compose.worktree.yml"
		if err := WriteComposeOverride(filepath.Join(destDir, overridePath), overrideData); err != nil {
			return err
		}
		rewritten, err = RewriteComposeConfig(rawJSON, envName, overridePath)
		if err != nil {
			return err
		}
	default:
		var err error
		rewritten, err = RewriteConfig(rawJSON, envName, worktreeIndex, specs, labels)
		if err != nil {
			return err
		}
	}

	if errs := ValidateGeneratedConfig(rewritten); len(errs) > 0 {
		return model.NewError(model.KindInternal, "rewritten devcontainer.json failed validation: "+errs[0].Error())
	}

	return WriteRewrittenConfig(destJSON, rewritten)
}

func composeServiceNames(raw *RawDevContainer, defaultService string) []string {
	if len(raw.RunServices) > 0 {
		return raw.RunServices
	}
	if defaultService != "" {
		return []string{defaultService}
	}
	return nil
}

// devcontainerPortSpecs merges the ports ExtractPorts found in the
// devcontainer.json with the host ports the registry already allocated for
// this worktree, keyed the same way portregistry does (serviceKey).
func devcontainerPortSpecs(raw *RawDevContainer, defaultService string, ports map[string]int) []PortSpec {
	specs := ExtractPorts(raw, defaultService)
	for i := range specs {
		key := specs[i].ServiceName
		if key == "" {
			key = defaultService
		}
		if hostPort, ok := ports[key]; ok {
			specs[i].HostPort = hostPort
		}
	}
	return specs
}
