package worktreelifecycle

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibetrees/controlplane/internal/compose"
	"github.com/vibetrees/controlplane/internal/model"
)

// TestWriteEnvFile_CorrelatesByDefaultPortNotPosition reproduces scenario 1:
// a literal-port service (temporal) sits between two variable-backed
// services in iteration order, which previously shifted every name after
// it by one (I-I2).
func TestWriteEnvFile_CorrelatesByDefaultPortNotPosition(t *testing.T) {
	services := []model.ComposeService{
		{Name: "api", Ports: []model.ComposePort{{ContainerPort: 3000, BasePort: 3000}}},
		{Name: "temporal", Ports: []model.ComposePort{
			{ContainerPort: 7233, BasePort: 7233},
			{ContainerPort: 8233, BasePort: 8233},
		}},
		{Name: "postgres", Ports: []model.ComposePort{{ContainerPort: 5432, BasePort: 5432}}},
	}

	envVars := []compose.PortEnvVar{
		{Name: "API_PORT", DefaultPort: 3000},
		{Name: "POSTGRES_PORT", DefaultPort: 5432},
	}

	ports := map[string]int{
		"api":         3000,
		"temporal":    7233,
		"temporal-ui": 8233,
		"postgres":    5432,
	}

	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, writeEnvFile(path, "feat-login", ports, envVars, services))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)

	assert.Contains(t, content, "API_PORT=3000\n")
	assert.Contains(t, content, "POSTGRES_PORT=5432\n")
	assert.NotContains(t, content, "API_PORT=5432", "API_PORT must not pick up postgres's port")
	assert.NotContains(t, content, "POSTGRES_PORT=3000", "POSTGRES_PORT must not pick up api's port")

	// temporal's literal ports have no ${VAR} reference, so both fall back
	// to derived names rather than stealing API_PORT/POSTGRES_PORT.
	assert.Contains(t, content, "TEMPORAL_7233_PORT=7233\n")
	assert.Contains(t, content, "TEMPORAL_8233_PORT=8233\n")
}

func TestPopEnvVarName_ConsumesInOrderAndExhausts(t *testing.T) {
	byPort := map[int][]string{3000: {"API_PORT", "ALT_API_PORT"}}

	assert.Equal(t, "API_PORT", popEnvVarName(byPort, 3000))
	assert.Equal(t, "ALT_API_PORT", popEnvVarName(byPort, 3000))
	assert.Equal(t, "", popEnvVarName(byPort, 3000))
	assert.Equal(t, "", popEnvVarName(byPort, 9999))
}
