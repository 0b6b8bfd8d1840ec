// Package devcontainer handles parsing and analysis of devcontainer.json files.
//
// The devcontainer.json specification supports JSONC (JSON with Comments),
// so this package uses github.com/tidwall/jsonc to strip comments before
// parsing with the standard encoding/json library.
//
// Key responsibilities:
//   - Load and parse devcontainer.json (with JSONC support)
//   - Detect the configuration pattern (image / dockerfile / compose-single / compose-multi)
//   - Extract port specifications from various devcontainer.json fields
//   - Locate devcontainer.json for a worktree, at either the whole-project
//     location or per-service under .devcontainer/<service>/
package devcontainer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tidwall/jsonc"

	"github.com/vibetrees/controlplane/internal/model"
)

// ConfigPattern identifies which of the four devcontainer.json shapes a
// configuration follows.
type ConfigPattern string

const (
	PatternImage         ConfigPattern = "image"
	PatternDockerfile    ConfigPattern = "dockerfile"
	PatternComposeSingle ConfigPattern = "compose-single"
	PatternComposeMulti  ConfigPattern = "compose-multi"
)

// PortSpec is a single port forwarding/publishing intent extracted from a
// devcontainer.json file, prior to host-port allocation.
type PortSpec struct {
	ServiceName   string
	ContainerPort int
	HostPort      int
	Protocol      string
	Label         string
}

// RawDevContainer represents the raw JSON structure of a devcontainer.json file.
// Only the fields relevant to this tool are included; other fields
// are silently ignored during parsing.
//
// Several fields use interface{} types because the devcontainer.json spec allows
// multiple value types for the same field (e.g., dockerComposeFile can be a
// string or an array of strings).
type RawDevContainer struct {
	// Name is the display name for the dev container.
	Name string `json:"name"`

	// Image is the Docker image to use when the container is created directly
	// from an image (Pattern A).
	Image string `json:"image,omitempty"`

	// Build specifies how to build the Docker image from a Dockerfile (Pattern B).
	Build *BuildConfig `json:"build,omitempty"`

	// DockerComposeFile is the path(s) to Docker Compose file(s).
	// Can be a single string or an array of strings in devcontainer.json.
	// We use interface{} to handle both cases during deserialization.
	DockerComposeFile interface{} `json:"dockerComposeFile,omitempty"`

	// Service is the name of the primary service in the Docker Compose file
	// that the dev container attaches to.
	Service string `json:"service,omitempty"`

	// RunServices lists which Compose services to start. If omitted, all
	// services in the Compose file are started.
	RunServices []string `json:"runServices,omitempty"`

	// WorkspaceFolder is the path inside the container where the project
	// source will be mounted.
	WorkspaceFolder string `json:"workspaceFolder,omitempty"`

	// ForwardPorts lists ports to forward from the container to the host.
	// Each element can be an integer (container port only) or a string
	// like "service:port" for Compose multi-service setups.
	ForwardPorts []interface{} `json:"forwardPorts,omitempty"`

	// AppPort defines ports to publish from the container. Can be a single
	// string ("hostPort:containerPort"), a single integer, or an array of
	// strings/integers. We use interface{} to handle all cases.
	AppPort interface{} `json:"appPort,omitempty"`

	// PortsAttributes provides metadata (labels, auto-forward behavior) for
	// specific ports. The map key is the port number as a string.
	PortsAttributes map[string]PortAttribute `json:"portsAttributes,omitempty"`

	// ContainerEnv sets environment variables inside the container.
	ContainerEnv map[string]string `json:"containerEnv,omitempty"`

	// RunArgs provides additional arguments to pass to `docker run`.
	// Only applicable for non-Compose patterns (A/B).
	RunArgs []string `json:"runArgs,omitempty"`

	// ShutdownAction controls what happens when the dev container is stopped.
	// Common values: "none", "stopCompose".
	ShutdownAction string `json:"shutdownAction,omitempty"`
}

// BuildConfig holds the Dockerfile build configuration.
// This corresponds to the "build" object in devcontainer.json.
type BuildConfig struct {
	// Dockerfile is the relative path to the Dockerfile.
	Dockerfile string `json:"dockerfile,omitempty"`

	// Context is the Docker build context path, relative to devcontainer.json.
	Context string `json:"context,omitempty"`

	// Args are build-time variables passed to the Dockerfile via --build-arg.
	Args map[string]string `json:"args,omitempty"`
}

// PortAttribute holds metadata about a port, sourced from the
// "portsAttributes" field in devcontainer.json. These attributes
// provide display labels and auto-forwarding behavior hints.
type PortAttribute struct {
	// Label is a human-readable description for the port.
	Label string `json:"label,omitempty"`

	// OnAutoForward controls the IDE's behavior when the port is detected.
	// Common values: "notify", "openBrowser", "silent", "ignore".
	OnAutoForward string `json:"onAutoForward,omitempty"`
}

// LoadConfig reads a devcontainer.json file, strips JSONC comments, and
// parses it into a RawDevContainer struct.
func LoadConfig(devcontainerPath string) (*RawDevContainer, error) {
	data, err := os.ReadFile(devcontainerPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, model.NewError(model.KindNotFound, fmt.Sprintf("devcontainer.json not found: %s", devcontainerPath))
		}
		return nil, model.WrapError(model.KindInternal, "reading devcontainer.json", err)
	}

	// Strip JSONC comments (// and /* */) and trailing commas before parsing.
	// The devcontainer.json spec officially supports JSONC, so real-world
	// files frequently contain comments.
	cleanJSON := jsonc.ToJSON(data)

	var raw RawDevContainer
	if err := json.Unmarshal(cleanJSON, &raw); err != nil {
		return nil, model.WrapError(model.KindValidation, fmt.Sprintf("parsing devcontainer.json at %s", devcontainerPath), err)
	}

	return &raw, nil
}

// DetectPattern determines the devcontainer configuration pattern based on
// the parsed configuration fields.
//
// The composeServiceCount parameter represents the number of services
// defined in the Docker Compose file(s), determined externally by parsing
// those files — devcontainer.json itself doesn't carry that count.
func DetectPattern(raw *RawDevContainer, composeServiceCount int) ConfigPattern {
	if raw.DockerComposeFile != nil {
		if composeServiceCount >= 2 {
			return PatternComposeMulti
		}
		return PatternComposeSingle
	}
	if raw.Build != nil {
		return PatternDockerfile
	}
	return PatternImage
}

// ExtractPorts collects port specifications from all port-related fields
// in devcontainer.json and returns a normalized list of PortSpec values.
//
// The defaultServiceName parameter is used as the ServiceName for ports
// that don't specify a service (e.g., plain integers in forwardPorts).
func ExtractPorts(raw *RawDevContainer, defaultServiceName string) []PortSpec {
	var ports []PortSpec

	for _, fp := range raw.ForwardPorts {
		switch v := fp.(type) {
		case float64:
			ports = append(ports, PortSpec{ServiceName: defaultServiceName, ContainerPort: int(v), Protocol: "tcp"})
		case string:
			if ps := parseServicePort(v, defaultServiceName); ps != nil {
				ports = append(ports, *ps)
			}
		}
	}

	ports = append(ports, parseAppPort(raw.AppPort, defaultServiceName)...)

	if raw.PortsAttributes != nil {
		for i := range ports {
			portKey := strconv.Itoa(ports[i].ContainerPort)
			if attr, ok := raw.PortsAttributes[portKey]; ok {
				ports[i].Label = attr.Label
			}
		}
	}

	return ports
}

func parseServicePort(s string, defaultServiceName string) *PortSpec {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		port, err := strconv.Atoi(s)
		if err != nil {
			return nil
		}
		return &PortSpec{ServiceName: defaultServiceName, ContainerPort: port, Protocol: "tcp"}
	}
	port, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil
	}
	return &PortSpec{ServiceName: parts[0], ContainerPort: port, Protocol: "tcp"}
}

func parseAppPort(appPort interface{}, defaultServiceName string) []PortSpec {
	if appPort == nil {
		return nil
	}

	var ports []PortSpec
	switch v := appPort.(type) {
	case float64:
		ports = append(ports, PortSpec{ServiceName: defaultServiceName, ContainerPort: int(v), Protocol: "tcp"})
	case string:
		if ps := parseAppPortString(v, defaultServiceName); ps != nil {
			ports = append(ports, *ps)
		}
	case []interface{}:
		for _, item := range v {
			switch iv := item.(type) {
			case float64:
				ports = append(ports, PortSpec{ServiceName: defaultServiceName, ContainerPort: int(iv), Protocol: "tcp"})
			case string:
				if ps := parseAppPortString(iv, defaultServiceName); ps != nil {
					ports = append(ports, *ps)
				}
			}
		}
	}
	return ports
}

func parseAppPortString(s string, defaultServiceName string) *PortSpec {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) == 2 {
		hostPort, err := strconv.Atoi(parts[0])
		if err != nil {
			return nil
		}
		containerPort, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil
		}
		return &PortSpec{ServiceName: defaultServiceName, ContainerPort: containerPort, HostPort: hostPort, Protocol: "tcp"}
	}
	port, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &PortSpec{ServiceName: defaultServiceName, ContainerPort: port, Protocol: "tcp"}
}

// GetComposeFiles extracts and normalizes the dockerComposeFile field
// from a RawDevContainer into a string slice. Returns nil if unset.
func GetComposeFiles(raw *RawDevContainer) []string {
	if raw.DockerComposeFile == nil {
		return nil
	}
	switch v := raw.DockerComposeFile.(type) {
	case string:
		return []string{v}
	case []interface{}:
		files := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				files = append(files, s)
			}
		}
		return files
	default:
		return nil
	}
}

// FindDevContainerJSON searches for devcontainer.json in the standard
// whole-project locations within a worktree.
//
//  1. <projectPath>/.devcontainer/devcontainer.json (preferred, most common)
//  2. <projectPath>/.devcontainer.json (alternative, less common)
func FindDevContainerJSON(projectPath string) (string, error) {
	candidates := []string{
		filepath.Join(projectPath, ".devcontainer", "devcontainer.json"),
		filepath.Join(projectPath, ".devcontainer.json"),
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", model.NewError(model.KindNotFound, fmt.Sprintf("devcontainer.json not found in %s", projectPath))
}

// DiscoverServiceConfigs finds every devcontainer.json associated with a
// worktree, both the whole-project config (if present) and any per-service
// configs under .devcontainer/<service>/devcontainer.json — the layout a
// multi-service repo uses when each service has its own dev container
// instead of one shared one. The returned map is keyed by service name;
// the whole-project config (if found) is keyed by "" (the empty service
// name means "applies to the whole worktree").
func DiscoverServiceConfigs(projectPath string) map[string]string {
	configs := make(map[string]string)

	if path, err := FindDevContainerJSON(projectPath); err == nil {
		configs[""] = path
	}

	devcontainerDir := filepath.Join(projectPath, ".devcontainer")
	entries, err := os.ReadDir(devcontainerDir)
	if err != nil {
		return configs
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		candidate := filepath.Join(devcontainerDir, e.Name(), "devcontainer.json")
		if _, err := os.Stat(candidate); err == nil {
			configs[e.Name()] = candidate
		}
	}
	return configs
}
