package compose

import (
	"os"
	"regexp"
	"strconv"

	"github.com/vibetrees/controlplane/internal/model"
)

// portEnvVarRegex matches a `${VAR}` or `${VAR:-default}` reference
// appearing as (or as part of) the host-side of a ports: entry, e.g.
// `"${API_PORT:-3001}:3000"`. compose-go's loader resolves this to its
// current value and discards VAR; this second, independent pass over the
// raw bytes recovers the name itself (I-I2).
var portEnvVarRegex = regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*)(?::-(\d+))?\}\s*:`)

// PortEnvVar is one discovered env-var-backed port default.
type PortEnvVar struct {
	// Name is the discovered (or derived) environment variable name.
	Name string
	// DefaultPort is the numeric default found in `${VAR:-N}`, or 0 if the
	// reference had no inline default.
	DefaultPort int
	// Derived is true when no `${...}` reference was found in the file and
	// Name was instead synthesized from the service name and port.
	Derived bool
}

// PortEnvVars scans the raw compose file at path for every
// `${VAR:-default}:containerPort` occurrence, in file order, and returns
// the discovered variable names. The caller correlates these positionally
// against the structurally-parsed port list for the same file, since ports
// in a compose file are declared in the same order they appear in the
// bytes. If a service's ports entry uses a literal host port instead of a
// variable, no entry is produced here and the caller falls back to
// DeriveEnvVarName so every port still gets a stable env-var name.
func PortEnvVars(path string) ([]PortEnvVar, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, model.WrapError(model.KindNotFound, "reading compose file "+path, err)
	}

	matches := portEnvVarRegex.FindAllSubmatch(raw, -1)
	result := make([]PortEnvVar, 0, len(matches))
	for _, m := range matches {
		name := string(m[1])
		defPort := 0
		if len(m) > 2 && len(m[2]) > 0 {
			defPort, _ = strconv.Atoi(string(m[2]))
		}
		result = append(result, PortEnvVar{Name: name, DefaultPort: defPort})
	}
	return result, nil
}

// DeriveEnvVarName synthesizes a fallback env-var name for a service port
// that isn't backed by a `${VAR}` reference in the compose file.
func DeriveEnvVarName(serviceName string, containerPort int) string {
	sanitized := make([]rune, 0, len(serviceName))
	for _, r := range serviceName {
		switch {
		case r >= 'a' && r <= 'z':
			sanitized = append(sanitized, r-('a'-'A'))
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			sanitized = append(sanitized, r)
		default:
			sanitized = append(sanitized, '_')
		}
	}
	return string(sanitized) + "_" + strconv.Itoa(containerPort) + "_PORT"
}
