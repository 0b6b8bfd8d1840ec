package worktreelifecycle

import (
	"fmt"
	"os"
	"strings"

	"github.com/vibetrees/controlplane/internal/compose"
	"github.com/vibetrees/controlplane/internal/model"
)

// writeEnvFile writes the worktree's .env file: COMPOSE_PROJECT_NAME
// (namespacing every compose resource so parallel worktrees never collide
// on container/network/volume names) and one ENV_NAME=port line per
// allocated port (spec.md §4.W step 8).
//
// Each port's env-var name is found by value (I-I2): envVars carries the
// `${VAR:-default}` names discovered by regex scan of the raw compose file
// alongside their inline default, and that default is exactly what the
// loader resolves a published port to when no environment override is
// present, so matching on p.BasePort recovers the right name regardless of
// which order the services map iterated in, or how many literal
// (non-variable) ports sit between two variable-backed ones. A port with
// no matching default (a literal host port, e.g. Temporal's "7233") falls
// back to a derived name.
func writeEnvFile(path, slug string, ports map[string]int, envVars []compose.PortEnvVar, services []model.ComposeService) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "COMPOSE_PROJECT_NAME=vibe_%s\n", sanitizeProjectName(slug))

	byDefaultPort := make(map[int][]string, len(envVars))
	for _, v := range envVars {
		if v.DefaultPort == 0 {
			continue
		}
		byDefaultPort[v.DefaultPort] = append(byDefaultPort[v.DefaultPort], v.Name)
	}

	for _, svc := range services {
		for i, p := range svc.Ports {
			key := serviceKey(svc, i)
			port, ok := ports[key]
			if !ok {
				continue
			}
			name := popEnvVarName(byDefaultPort, p.BasePort)
			if name == "" {
				name = compose.DeriveEnvVarName(svc.Name, p.ContainerPort)
			}
			fmt.Fprintf(&sb, "%s=%d\n", name, port)
		}
	}

	return os.WriteFile(path, []byte(sb.String()), 0o644)
}

// popEnvVarName removes and returns the next discovered env-var name whose
// inline default matches basePort, or "" if none remain — a map value can
// hold more than one name when two services happen to declare the same
// default port.
func popEnvVarName(byDefaultPort map[int][]string, basePort int) string {
	names := byDefaultPort[basePort]
	if len(names) == 0 {
		return ""
	}
	byDefaultPort[basePort] = names[1:]
	return names[0]
}

func sanitizeProjectName(slug string) string {
	return strings.ReplaceAll(slug, "-", "_")
}
