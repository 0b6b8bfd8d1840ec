// compose.go generates the docker-compose override YAML and rewrites
// devcontainer.json for the Compose-backed patterns (single- and
// multi-service compose projects), where port shifts and labels go into
// the override file's service definitions rather than into
// runArgs/appPort, and the override's top-level `name` sets
// COMPOSE_PROJECT_NAME for isolation between worktrees.
package devcontainer

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/vibetrees/controlplane/internal/model"
)

// composeOverride is the generated docker-compose override file: a
// project name for isolation plus one override per service.
type composeOverride struct {
	Name     string                            `yaml:"name"`
	Services map[string]composeServiceOverride `yaml:"services"`
}

// composeServiceOverride holds only the fields Compose should merge over
// the base service definition: the full replacement port list (when this
// service has allocations) and the worktree management labels.
type composeServiceOverride struct {
	Ports  []string          `yaml:"ports,omitempty"`
	Labels map[string]string `yaml:"labels"`
}

// GenerateComposeOverride builds a docker-compose override YAML that sets
// COMPOSE_PROJECT_NAME to envName and, for every service in services, a
// full replacement port list (for services with allocations) plus labels
// (for every service, so containers without a port allocation are still
// discoverable). The override is meant to be appended — last, so it takes
// precedence — to devcontainer.json's dockerComposeFile array.
func GenerateComposeOverride(envName string, services []string, portAllocations []PortSpec, labels map[string]string) ([]byte, error) {
	servicePorts := make(map[string][]PortSpec)
	for _, pa := range portAllocations {
		servicePorts[pa.ServiceName] = append(servicePorts[pa.ServiceName], pa)
	}

	override := composeOverride{
		Name:     envName,
		Services: make(map[string]composeServiceOverride),
	}

	sortedServices := make([]string, len(services))
	copy(sortedServices, services)
	sort.Strings(sortedServices)

	for _, svc := range sortedServices {
		svcOverride := composeServiceOverride{
			Labels: make(map[string]string),
		}
		for k, v := range labels {
			svcOverride.Labels[k] = v
		}

		if ports, ok := servicePorts[svc]; ok {
			for _, pa := range ports {
				svcOverride.Ports = append(svcOverride.Ports, fmt.Sprintf("%d:%d", pa.HostPort, pa.ContainerPort))
			}
		}

		override.Services[svc] = svcOverride
	}

	yamlBytes, err := yaml.Marshal(&override)
	if err != nil {
		return nil, model.WrapError(model.KindInternal, "serializing compose override YAML", err)
	}

	header := fmt.Sprintf(
		"# Auto-generated for worktree environment %q\n# DO NOT EDIT - this file is regenerated on each create/start\n",
		envName,
	)

	return []byte(header + string(yamlBytes)), nil
}

// WriteComposeOverride writes the override YAML to outputPath, reusing
// WriteRewrittenConfig's directory-creation and write logic.
func WriteComposeOverride(outputPath string, data []byte) error {
	return WriteRewrittenConfig(outputPath, data)
}

// RewriteComposeConfig rewrites a devcontainer.json for the Compose
// patterns: set `name` to envName and append overrideYAMLPath to
// dockerComposeFile. Unlike RewriteConfig it never touches runArgs,
// appPort, or portsAttributes — those are the override YAML's job.
func RewriteComposeConfig(rawJSON []byte, envName, overrideYAMLPath string) ([]byte, error) {
	cleanJSON := jsonc.ToJSON(rawJSON)

	var configMap map[string]interface{}
	if err := json.Unmarshal(cleanJSON, &configMap); err != nil {
		return nil, model.WrapError(model.KindValidation, "parsing devcontainer.json for compose rewriting", err)
	}

	configMap["name"] = envName
	configMap["dockerComposeFile"] = appendComposeFile(configMap["dockerComposeFile"], overrideYAMLPath)

	result, err := json.MarshalIndent(configMap, "", "  ")
	if err != nil {
		return nil, model.WrapError(model.KindInternal, "serializing rewritten devcontainer.json", err)
	}
	result = append(result, '\n')

	return result, nil
}

// appendComposeFile normalizes dockerComposeFile (a string or array of
// strings in devcontainer.json) to an array and appends overridePath,
// unless it's already present — re-running create on the same worktree
// must not accumulate duplicate entries.
func appendComposeFile(existing interface{}, overridePath string) []interface{} {
	var files []interface{}

	switch v := existing.(type) {
	case string:
		files = []interface{}{v}
	case []interface{}:
		files = v
	default:
		files = []interface{}{}
	}

	for _, f := range files {
		if s, ok := f.(string); ok && s == overridePath {
			return files
		}
	}

	return append(files, overridePath)
}
