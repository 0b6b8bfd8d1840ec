package devcontainer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vibetrees/controlplane/internal/model"
)

const imageSimpleJSON = `{
	// line comments are valid JSONC
	"name": "simple-node-app",
	"image": "mcr.microsoft.com/devcontainers/typescript-node:20",
	"forwardPorts": [3000, 8080],
	"appPort": ["3000:3000"],
	"portsAttributes": {
		"3000": {"label": "Application", "onAutoForward": "notify"},
		"8080": {"label": "API Server", "onAutoForward": "silent"}
	},
	"containerEnv": {"NODE_ENV": "development"},
	"runArgs": ["--cap-add=SYS_PTRACE", "--security-opt", "seccomp=unconfined"]
}
`

func writeFixture(t *testing.T, dir, rel, contents string) string {
	t.Helper()
	path := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadConfig_ImageSimple(t *testing.T) {
	dir := t.TempDir()
	path := writeFixture(t, dir, filepath.Join(".devcontainer", "devcontainer.json"), imageSimpleJSON)

	raw, err := LoadConfig(path)
	require.NoError(t, err, "LoadConfig should succeed for a valid devcontainer.json")

	assert.Equal(t, "simple-node-app", raw.Name)
	assert.Equal(t, "mcr.microsoft.com/devcontainers/typescript-node:20", raw.Image)
	assert.Nil(t, raw.Build, "Build should be nil for image pattern")
	assert.Nil(t, raw.DockerComposeFile, "DockerComposeFile should be nil for image pattern")
	assert.Empty(t, raw.Service)

	require.Len(t, raw.ForwardPorts, 2)
	assert.Equal(t, float64(3000), raw.ForwardPorts[0])
	assert.Equal(t, float64(8080), raw.ForwardPorts[1])

	require.NotNil(t, raw.AppPort)

	require.Len(t, raw.PortsAttributes, 2)
	assert.Equal(t, "Application", raw.PortsAttributes["3000"].Label)
	assert.Equal(t, "notify", raw.PortsAttributes["3000"].OnAutoForward)
	assert.Equal(t, "API Server", raw.PortsAttributes["8080"].Label)

	require.Len(t, raw.ContainerEnv, 1)
	assert.Equal(t, "development", raw.ContainerEnv["NODE_ENV"])

	require.Len(t, raw.RunArgs, 3)
	assert.Equal(t, "--cap-add=SYS_PTRACE", raw.RunArgs[0])
}

func TestLoadConfig_DockerfileBuild(t *testing.T) {
	dir := t.TempDir()
	path := writeFixture(t, dir, filepath.Join(".devcontainer", "devcontainer.json"), `{
		"name": "custom-build-app",
		"build": {"dockerfile": "Dockerfile", "context": "..", "args": {"NODE_VERSION": "20"}},
		"forwardPorts": [3000, 5432],
		"portsAttributes": {
			"3000": {"label": "Web App"},
			"5432": {"label": "PostgreSQL"}
		},
		"containerEnv": {"DATABASE_URL": "postgresql://localhost:5432/devdb"}
	}`)

	raw, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "custom-build-app", raw.Name)
	assert.Empty(t, raw.Image, "Image should be empty for dockerfile pattern")

	require.NotNil(t, raw.Build, "Build must be present for dockerfile pattern")
	assert.Equal(t, "Dockerfile", raw.Build.Dockerfile)
	assert.Equal(t, "..", raw.Build.Context)
	require.Len(t, raw.Build.Args, 1)
	assert.Equal(t, "20", raw.Build.Args["NODE_VERSION"])

	require.Len(t, raw.ForwardPorts, 2)
	assert.Equal(t, float64(3000), raw.ForwardPorts[0])
	assert.Equal(t, float64(5432), raw.ForwardPorts[1])

	assert.Equal(t, "Web App", raw.PortsAttributes["3000"].Label)
	assert.Equal(t, "PostgreSQL", raw.PortsAttributes["5432"].Label)
	assert.Equal(t, "postgresql://localhost:5432/devdb", raw.ContainerEnv["DATABASE_URL"])
}

func TestLoadConfig_ComposeSingle(t *testing.T) {
	dir := t.TempDir()
	path := writeFixture(t, dir, filepath.Join(".devcontainer", "devcontainer.json"), `{
		"name": "compose-single-app",
		"dockerComposeFile": "docker-compose.yml",
		"service": "app",
		"workspaceFolder": "/workspace",
		"shutdownAction": "stopCompose",
		"forwardPorts": [3000]
	}`)

	raw, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "compose-single-app", raw.Name)
	assert.Equal(t, "docker-compose.yml", raw.DockerComposeFile)
	assert.Equal(t, "app", raw.Service)
	assert.Equal(t, "/workspace", raw.WorkspaceFolder)
	assert.Equal(t, "stopCompose", raw.ShutdownAction)
	assert.Empty(t, raw.RunServices)

	require.Len(t, raw.ForwardPorts, 1)
	assert.Equal(t, float64(3000), raw.ForwardPorts[0])
}

func TestLoadConfig_ComposeMulti(t *testing.T) {
	dir := t.TempDir()
	path := writeFixture(t, dir, filepath.Join(".devcontainer", "devcontainer.json"), `{
		"name": "compose-multi-app",
		"dockerComposeFile": ["docker-compose.yml"],
		"service": "app",
		"workspaceFolder": "/workspace",
		"runServices": ["app", "db", "redis"],
		"forwardPorts": [3000, "db:5432", "redis:6379"]
	}`)

	raw, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "compose-multi-app", raw.Name)
	require.NotNil(t, raw.DockerComposeFile)
	assert.Equal(t, "app", raw.Service)
	assert.Equal(t, "/workspace", raw.WorkspaceFolder)

	require.Len(t, raw.RunServices, 3)
	assert.Equal(t, []string{"app", "db", "redis"}, raw.RunServices)

	require.Len(t, raw.ForwardPorts, 3)
	assert.Equal(t, float64(3000), raw.ForwardPorts[0])
	assert.Equal(t, "db:5432", raw.ForwardPorts[1])
	assert.Equal(t, "redis:6379", raw.ForwardPorts[2])
}

func TestLoadConfig_NotFound(t *testing.T) {
	_, err := LoadConfig("/nonexistent/path/devcontainer.json")
	require.Error(t, err)

	vErr := model.AsError(err)
	require.NotNil(t, vErr)
	assert.Equal(t, model.KindNotFound, vErr.Kind)
}

func TestDetectPattern_Image(t *testing.T) {
	raw := &RawDevContainer{Image: "node:20"}
	assert.Equal(t, PatternImage, DetectPattern(raw, 0))
}

func TestDetectPattern_Dockerfile(t *testing.T) {
	raw := &RawDevContainer{Build: &BuildConfig{Dockerfile: "Dockerfile"}}
	assert.Equal(t, PatternDockerfile, DetectPattern(raw, 0))
}

func TestDetectPattern_ComposeSingle(t *testing.T) {
	raw := &RawDevContainer{DockerComposeFile: "docker-compose.yml", Service: "app"}
	assert.Equal(t, PatternComposeSingle, DetectPattern(raw, 1))
}

func TestDetectPattern_ComposeMulti(t *testing.T) {
	raw := &RawDevContainer{
		DockerComposeFile: []interface{}{"docker-compose.yml"},
		Service:           "app",
		RunServices:       []string{"app", "db", "redis"},
	}
	assert.Equal(t, PatternComposeMulti, DetectPattern(raw, 3))
}

func TestExtractPorts_ForwardPorts(t *testing.T) {
	raw := &RawDevContainer{
		ForwardPorts: []interface{}{
			float64(3000),
			"db:5432",
			"redis:6379",
		},
	}

	ports := ExtractPorts(raw, "app")
	require.Len(t, ports, 3)

	assert.Equal(t, "app", ports[0].ServiceName)
	assert.Equal(t, 3000, ports[0].ContainerPort)
	assert.Equal(t, 0, ports[0].HostPort, "forwardPorts int entries should have HostPort 0")
	assert.Equal(t, "tcp", ports[0].Protocol)

	assert.Equal(t, "db", ports[1].ServiceName)
	assert.Equal(t, 5432, ports[1].ContainerPort)

	assert.Equal(t, "redis", ports[2].ServiceName)
	assert.Equal(t, 6379, ports[2].ContainerPort)
}

func TestExtractPorts_AppPort(t *testing.T) {
	raw := &RawDevContainer{
		AppPort: []interface{}{"3000:3000", "8080:80"},
	}

	ports := ExtractPorts(raw, "app")
	require.Len(t, ports, 2)

	assert.Equal(t, "app", ports[0].ServiceName)
	assert.Equal(t, 3000, ports[0].ContainerPort)
	assert.Equal(t, 3000, ports[0].HostPort)
	assert.Equal(t, "tcp", ports[0].Protocol)

	assert.Equal(t, "app", ports[1].ServiceName)
	assert.Equal(t, 80, ports[1].ContainerPort)
	assert.Equal(t, 8080, ports[1].HostPort)
}

func TestExtractPorts_WithLabels(t *testing.T) {
	raw := &RawDevContainer{
		ForwardPorts: []interface{}{float64(3000), float64(8080)},
		PortsAttributes: map[string]PortAttribute{
			"3000": {Label: "Application", OnAutoForward: "notify"},
			"8080": {Label: "API Server", OnAutoForward: "silent"},
		},
	}

	ports := ExtractPorts(raw, "app")
	require.Len(t, ports, 2)
	assert.Equal(t, "Application", ports[0].Label)
	assert.Equal(t, "API Server", ports[1].Label)
}

func TestGetComposeFiles_String(t *testing.T) {
	files := GetComposeFiles(&RawDevContainer{DockerComposeFile: "docker-compose.yml"})
	require.Len(t, files, 1)
	assert.Equal(t, "docker-compose.yml", files[0])
}

func TestGetComposeFiles_Array(t *testing.T) {
	files := GetComposeFiles(&RawDevContainer{
		DockerComposeFile: []interface{}{"docker-compose.yml", "docker-compose.override.yml"},
	})
	require.Len(t, files, 2)
	assert.Equal(t, "docker-compose.yml", files[0])
	assert.Equal(t, "docker-compose.override.yml", files[1])
}

func TestGetComposeFiles_Nil(t *testing.T) {
	assert.Nil(t, GetComposeFiles(&RawDevContainer{DockerComposeFile: nil}))
}

func TestFindDevContainerJSON(t *testing.T) {
	dir := t.TempDir()
	expected := writeFixture(t, dir, filepath.Join(".devcontainer", "devcontainer.json"), `{"name": "test"}`)

	found, err := FindDevContainerJSON(dir)
	require.NoError(t, err)
	assert.Equal(t, expected, found)
}

func TestFindDevContainerJSON_RootLevel(t *testing.T) {
	dir := t.TempDir()
	rootFile := filepath.Join(dir, ".devcontainer.json")
	require.NoError(t, os.WriteFile(rootFile, []byte(`{"name": "test"}`), 0o644))

	found, err := FindDevContainerJSON(dir)
	require.NoError(t, err)
	assert.Equal(t, rootFile, found)
}

func TestFindDevContainerJSON_NotFound(t *testing.T) {
	dir := t.TempDir()

	_, err := FindDevContainerJSON(dir)
	require.Error(t, err)

	vErr := model.AsError(err)
	require.NotNil(t, vErr)
	assert.Equal(t, model.KindNotFound, vErr.Kind)
}

func TestDiscoverServiceConfigs_WholeProject(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, filepath.Join(".devcontainer", "devcontainer.json"), `{"name": "whole"}`)

	configs := DiscoverServiceConfigs(dir)
	require.Len(t, configs, 1)
	assert.Contains(t, configs, "")
}

func TestDiscoverServiceConfigs_PerService(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, filepath.Join(".devcontainer", "api", "devcontainer.json"), `{"name": "api"}`)
	writeFixture(t, dir, filepath.Join(".devcontainer", "worker", "devcontainer.json"), `{"name": "worker"}`)

	configs := DiscoverServiceConfigs(dir)
	require.Len(t, configs, 2)
	assert.Contains(t, configs, "api")
	assert.Contains(t, configs, "worker")
}

func TestDiscoverServiceConfigs_None(t *testing.T) {
	dir := t.TempDir()
	assert.Empty(t, DiscoverServiceConfigs(dir))
}
