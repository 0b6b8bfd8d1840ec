package compose

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCompose = `
services:
  api:
    image: example/api
    ports:
      - "${API_PORT:-3001}:3000"
    depends_on:
      db:
        condition: service_healthy
    volumes:
      - app-data:/data
  db:
    image: postgres:16
    ports:
      - "5432:5432"
  worker:
    image: example/worker
    networks:
      - backend

volumes:
  app-data:
    external: true

networks:
  backend:
    external: true
`

func writeComposeFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "docker-compose.yml")
	require.NoError(t, os.WriteFile(path, []byte(sampleCompose), 0o644))
	return path
}

func TestServices_NormalizesPortsAndDependsOn(t *testing.T) {
	path := writeComposeFile(t)
	insp := New()

	services, err := insp.Services(path)
	require.NoError(t, err)
	require.Len(t, services, 3)

	byName := map[string]int{}
	for i, s := range services {
		byName[s.Name] = i
	}

	api := services[byName["api"]]
	require.Len(t, api.Ports, 1)
	assert.Equal(t, 3000, api.Ports[0].ContainerPort)
	assert.Equal(t, 3001, api.Ports[0].BasePort)
	assert.Contains(t, api.DependsOn, "db")
	assert.True(t, api.ExternalVolume)

	worker := services[byName["worker"]]
	assert.True(t, worker.ExternalNetwork)
}

func TestHasService(t *testing.T) {
	path := writeComposeFile(t)
	insp := New()

	has, err := insp.HasService(path, "api")
	require.NoError(t, err)
	assert.True(t, has)

	has, err = insp.HasService(path, "nonexistent")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestCacheIsReused(t *testing.T) {
	path := writeComposeFile(t)
	insp := New()

	_, err := insp.Services(path)
	require.NoError(t, err)

	// Mutate the file on disk; without ClearCache, the cached parse wins.
	require.NoError(t, os.WriteFile(path, []byte("services:\n  solo:\n    image: x\n"), 0o644))

	cached, err := insp.Services(path)
	require.NoError(t, err)
	assert.Len(t, cached, 3, "expected stale cached result before ClearCache")

	insp.ClearCache()
	fresh, err := insp.Services(path)
	require.NoError(t, err)
	assert.Len(t, fresh, 1)
}

func TestPortEnvVars_DiscoversLiteralVariableName(t *testing.T) {
	path := writeComposeFile(t)
	vars, err := PortEnvVars(path)
	require.NoError(t, err)
	require.Len(t, vars, 1)
	assert.Equal(t, "API_PORT", vars[0].Name)
	assert.Equal(t, 3001, vars[0].DefaultPort)
}

func TestDeriveEnvVarName_FallsBackForLiteralPorts(t *testing.T) {
	assert.Equal(t, "DB_5432_PORT", DeriveEnvVarName("db", 5432))
}

func TestComposeConfigError_OnInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yml")
	require.NoError(t, os.WriteFile(path, []byte("not: [valid yaml"), 0o644))

	insp := New()
	_, err := insp.Services(path)
	require.Error(t, err)
	var cfgErr *ComposeConfigError
	assert.ErrorAs(t, err, &cfgErr)
}
