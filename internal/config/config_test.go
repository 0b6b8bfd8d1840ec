package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_AppliesDefaults(t *testing.T) {
	cfg, err := parse([]byte(`repo:
  source_path: /repo
`))
	require.NoError(t, err)
	assert.Equal(t, 10000, cfg.Ports.RangeStart)
	assert.Equal(t, 20000, cfg.Ports.RangeEnd)
	assert.Equal(t, ".worktrees", cfg.Repo.WorktreesBase)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, ":8080", cfg.API.Addr)
	assert.Equal(t, 10*time.Second, cfg.API.ShutdownGrace.Duration())
}

func TestParse_CustomPortRangeOverridesDefault(t *testing.T) {
	cfg, err := parse([]byte(`repo:
  source_path: /repo
ports:
  range_start: 30000
  range_end: 31000
diagnose:
  interval: 45s
  checks: [orphaned-ports]
`))
	require.NoError(t, err)
	assert.Equal(t, 30000, cfg.Ports.RangeStart)
	assert.Equal(t, 31000, cfg.Ports.RangeEnd)
	assert.Equal(t, 45*time.Second, cfg.Diagnose.Interval.Duration())
	assert.Equal(t, []string{"orphaned-ports"}, cfg.Diagnose.Checks)
}

func TestValidate_RequiresSourcePath(t *testing.T) {
	cfg, err := parse([]byte(`log:
  level: info
`))
	require.NoError(t, err)
	errs := Validate(cfg)
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0].Error(), "source_path")
}

func TestValidate_RejectsInvertedPortRange(t *testing.T) {
	cfg, err := parse([]byte(`repo:
  source_path: /repo
ports:
  range_start: 5000
  range_end: 4000
`))
	require.NoError(t, err)
	errs := Validate(cfg)
	found := false
	for _, e := range errs {
		if e.Error() != "" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestValidate_RejectsUnknownLogLevel(t *testing.T) {
	cfg, err := parse([]byte(`repo:
  source_path: /repo
log:
  level: verbose
`))
	require.NoError(t, err)
	errs := Validate(cfg)
	require.NotEmpty(t, errs)
}
