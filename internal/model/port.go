package model

import "fmt"

// PortAllocation is one (worktree, serviceKey) -> publishedPort entry, the
// unit the PortRegistry persists (data model §3, PortAllocation/R-entry).
type PortAllocation struct {
	WorktreeName string `json:"worktreeName"`
	ServiceKey   string `json:"serviceKey"`
	Port         int    `json:"port"`

	// Label carries an optional human-readable description, e.g. sourced
	// from devcontainer.json's portsAttributes.label.
	Label string `json:"label,omitempty"`
}

// Validate checks field-level invariants on a single allocation.
func (p *PortAllocation) Validate() error {
	if p.WorktreeName == "" {
		return fmt.Errorf("port allocation: worktree name must not be empty")
	}
	if p.ServiceKey == "" {
		return fmt.Errorf("port allocation: service key must not be empty")
	}
	if p.Port < 1024 || p.Port > 65535 {
		return fmt.Errorf("port allocation: port %d out of range (1024-65535)", p.Port)
	}
	return nil
}

// ComposeService is the immutable-per-inspection view of one service
// defined in a compose file (data model §3, ComposeService/I-entry).
type ComposeService struct {
	Name  string          `json:"name"`
	Ports []ComposePort   `json:"ports"`
	Volumes []string      `json:"volumes,omitempty"`
	// ExternalVolume/ExternalNetwork record whether any volume/network this
	// service references is declared `external: true` at the compose-file
	// level (I-I1's "owning compose-level volume/network" flag).
	ExternalVolume  bool `json:"externalVolume"`
	ExternalNetwork bool `json:"externalNetwork"`

	DependsOn []string `json:"dependsOn,omitempty"`
	BuildContext string `json:"buildContext,omitempty"`
	WorkingDir   string `json:"workingDir,omitempty"`
}

// ComposePort is one published port entry for a service, normalized from
// whatever shorthand form the compose file used ("HOST:CONTAINER", bare
// "PORT", or the long object form with published/target).
type ComposePort struct {
	ContainerPort int    `json:"containerPort"`
	// BasePort is the default host port declared in the compose file (the
	// numeric default inside `${VAR:-N}`, or the literal host port if no
	// variable is used).
	BasePort int    `json:"basePort"`
	Protocol string `json:"protocol"`
}
