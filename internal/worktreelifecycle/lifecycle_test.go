package worktreelifecycle

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibetrees/controlplane/internal/model"
)

func TestSlugify_LowercasesAndCollapsesSeparators(t *testing.T) {
	assert.Equal(t, "feature-auth", Slugify("Feature/Auth"))
	assert.Equal(t, "fix-bug-123", Slugify("fix_bug--123"))
	assert.Equal(t, "trailing", Slugify("-trailing-"))
}

func TestSlugify_IsIdempotent(t *testing.T) {
	once := Slugify("Feature/Auth Flow!!")
	twice := Slugify(once)
	assert.Equal(t, once, twice)
}

func TestLockFor_ReturnsSameMutexForSameName(t *testing.T) {
	l := &Lifecycle{locks: make(map[string]*sync.Mutex)}
	a := l.lockFor("feature-a")
	b := l.lockFor("feature-a")
	assert.Same(t, a, b)

	c := l.lockFor("feature-b")
	assert.NotSame(t, a, c)
}

func TestSanitizeProjectName_ReplacesDashesWithUnderscores(t *testing.T) {
	assert.Equal(t, "feature_auth", sanitizeProjectName("feature-auth"))
}

func TestServiceKey_FirstPortUsesBareName(t *testing.T) {
	single := model.ComposeService{Name: "web", Ports: []model.ComposePort{{ContainerPort: 80, BasePort: 3000}}}
	assert.Equal(t, "web", serviceKey(single, 0))

	multi := model.ComposeService{Name: "web", Ports: []model.ComposePort{{}, {}}}
	assert.Equal(t, "web", serviceKey(multi, 0))
	assert.Equal(t, "web-port2", serviceKey(multi, 1))
}

func TestServiceKey_WellKnownSuffix(t *testing.T) {
	temporal := model.ComposeService{Name: "temporal", Ports: []model.ComposePort{{}, {}}}
	assert.Equal(t, "temporal", serviceKey(temporal, 0))
	assert.Equal(t, "temporal-ui", serviceKey(temporal, 1))
}

func TestDataServiceFor_PicksServiceWithNonExternalVolume(t *testing.T) {
	services := []model.ComposeService{
		{Name: "web"},
		{Name: "db", Volumes: []string{"pgdata:/var/lib/postgresql/data"}},
		{Name: "cache", Volumes: []string{"shared"}, ExternalVolume: true},
	}
	svc, ok := dataServiceFor(services)
	require.True(t, ok)
	assert.Equal(t, "db", svc.Name)
}

func TestDataServiceFor_NoneWhenNoVolumeOwningService(t *testing.T) {
	services := []model.ComposeService{{Name: "web"}}
	_, ok := dataServiceFor(services)
	assert.False(t, ok)
}

func TestBuildAndParseLabels_RoundTrip(t *testing.T) {
	wt := model.WorktreeLabels{
		Name:         "feature-auth",
		Branch:       "feature/auth",
		WorktreePath: "/repo/.worktrees/feature-auth",
		SourceRepo:   "/repo",
		CreatedAt:    nowRFC3339(),
		Ports:        map[string]int{"web": 13000},
	}
	labels := buildLabels(wt)
	assert.Equal(t, managedByValue, labels[labelManagedBy])

	got, err := parseLabels(labels)
	require.NoError(t, err)
	assert.Equal(t, wt.Name, got.Name)
	assert.Equal(t, wt.Branch, got.Branch)
	assert.Equal(t, 13000, got.Ports["web"])
}

func TestParseLabels_RejectsUnmanagedContainer(t *testing.T) {
	_, err := parseLabels(map[string]string{"other.label": "x"})
	assert.Error(t, err)
}

func TestDelete_RejectsRootBranch(t *testing.T) {
	l := &Lifecycle{locks: make(map[string]*sync.Mutex), WorktreesBase: "/repo/.worktrees"}
	_, err := l.Delete(context.Background(), RootBranch)
	assert.Error(t, err)
}

func TestDelete_RejectsPathOutsideWorktreesBase(t *testing.T) {
	l := &Lifecycle{locks: make(map[string]*sync.Mutex), WorktreesBase: "/repo/.worktrees"}
	_, err := l.Delete(context.Background(), "../escape")
	assert.Error(t, err)
}
