package validate

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vibetrees/controlplane/internal/model"
)

func asModelError(t *testing.T, err error) *model.Error {
	t.Helper()
	me, ok := err.(*model.Error)
	if !ok {
		t.Fatalf("expected *model.Error, got %T", err)
	}
	return me
}

func TestWorktreeName(t *testing.T) {
	assert.NoError(t, WorktreeName("feature-auth"))
	err := WorktreeName("..")
	assert.Error(t, err)
	assert.Equal(t, model.KindValidation, asModelError(t, err).Kind)
}

func TestBranchName(t *testing.T) {
	cases := map[string]bool{
		"feature/login":  true,
		"main":            true,
		"":                false,
		"/leading":        false,
		"trailing/":       false,
		"has..dots":       false,
		"double//slash":   false,
		"refs/x.lock":     false,
		"bad name":        false,
	}
	for name, ok := range cases {
		err := BranchName(name)
		if ok {
			assert.NoError(t, err, "expected %q valid", name)
		} else {
			assert.Error(t, err, "expected %q invalid", name)
		}
	}
}

func TestServiceName(t *testing.T) {
	assert.NoError(t, ServiceName("api"))
	assert.Error(t, ServiceName(""))
	assert.Error(t, ServiceName("has space"))
}

func TestPort(t *testing.T) {
	assert.NoError(t, Port(3000))
	assert.Error(t, Port(80))
	assert.Error(t, Port(70000))
}

func TestEnvVarName(t *testing.T) {
	assert.NoError(t, EnvVarName("API_PORT"))
	assert.Error(t, EnvVarName("apiPort"))
	assert.Error(t, EnvVarName("1STVAR"))
}

func TestEnvVarValue(t *testing.T) {
	warn, err := EnvVarValue("plain-value")
	assert.NoError(t, err)
	assert.False(t, warn)

	warn, err = EnvVarValue("has`backtick`value")
	assert.NoError(t, err)
	assert.True(t, warn)

	_, err = EnvVarValue(string([]byte{0}))
	assert.Error(t, err)
}

func TestPTYExecutable(t *testing.T) {
	assert.NoError(t, PTYExecutable("shell"))
	assert.NoError(t, PTYExecutable("claude"))
	assert.Error(t, PTYExecutable("bash"))
}

func TestGitArg(t *testing.T) {
	assert.NoError(t, GitArg("--porcelain"))
	assert.Error(t, GitArg("foo; rm -rf /"))
	assert.Error(t, GitArg("$(whoami)"))
	assert.Error(t, GitArg("`whoami`"))
}

func TestComposeSubcommand(t *testing.T) {
	assert.NoError(t, ComposeSubcommand("up"))
	assert.Error(t, ComposeSubcommand("exec"))
	assert.Error(t, ComposeSubcommand("up; rm -rf /"))
}

func TestWebSocketURL(t *testing.T) {
	assert.NoError(t, WebSocketURL("/terminal/feature-auth"))
	assert.Error(t, WebSocketURL("/terminal/../etc/passwd"))
}

func TestRegexPattern(t *testing.T) {
	assert.NoError(t, RegexPattern(`^[a-z]+$`))
	assert.Error(t, RegexPattern(`(a+)+`))
	assert.Error(t, RegexPattern(`(.*){3,}`))
	assert.Error(t, RegexPattern(`.*?.*?.*?`))
}

func TestPath_RejectsTraversal(t *testing.T) {
	base := t.TempDir()
	_, err := Path(base, "../etc/passwd")
	assert.Error(t, err)
}

func TestPath_ResolvesNestedTraversalWithinBase(t *testing.T) {
	base := t.TempDir()
	resolved, err := Path(base, filepath.Join("a", "..", "b"))
	assert.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "b"), resolved)
}

func TestPath_RejectsNullByte(t *testing.T) {
	base := t.TempDir()
	_, err := Path(base, "file\x00name")
	assert.Error(t, err)
}
