// Package changedetect implements the ChangeDetector: classifying a list of
// changed files (typically the union of files touched by a commit range)
// into the signals a sync pipeline needs — does a service need restarting,
// do dependencies need reinstalling, are there pending migrations, and
// which services are affected.
//
// There is no direct teacher precedent for this logic (the teacher is a
// one-shot CLI with no concept of "what changed since last sync"); it is
// grounded on compose-go's already-wired DependsOnConfig type for the
// restart-order graph and on spec.md's own file-classification tables.
package changedetect

import (
	"path"
	"regexp"
	"strings"

	"github.com/vibetrees/controlplane/internal/model"
)

// serviceAffectingPatterns are files whose presence in a change set means
// every service must be considered affected (compose/Dockerfile/env files
// change the shape of the whole environment, not one service).
var serviceAffectingPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(^|/)docker-compose\.ya?ml$`),
	regexp.MustCompile(`(^|/)compose\.ya?ml$`),
	regexp.MustCompile(`(^|/)podman-compose\.ya?ml$`),
	regexp.MustCompile(`(^|/)docker-compose\.[^/]+\.ya?ml$`),
	regexp.MustCompile(`(^|/)Dockerfile$`),
	regexp.MustCompile(`(^|/)\.env[^/]*$`),
}

// dependencyManifests are well-known per-ecosystem dependency manifests;
// any change to one of these sets NeedsDependencyInstall.
var dependencyManifests = []*regexp.Regexp{
	regexp.MustCompile(`(^|/)package(-lock)?\.json$`),
	regexp.MustCompile(`(^|/)yarn\.lock$`),
	regexp.MustCompile(`(^|/)pnpm-lock\.yaml$`),
	regexp.MustCompile(`(^|/)requirements.*\.txt$`),
	regexp.MustCompile(`(^|/)Pipfile(\.lock)?$`),
	regexp.MustCompile(`(^|/)pyproject\.toml$`),
	regexp.MustCompile(`(^|/)Gemfile(\.lock)?$`),
	regexp.MustCompile(`(^|/)go\.(mod|sum)$`),
	regexp.MustCompile(`(^|/)Cargo\.(toml|lock)$`),
	regexp.MustCompile(`(^|/)composer\.(json|lock)$`),
}

// migrationPatterns match files under a migrations directory or named
// according to a migration-tool convention.
var migrationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(^|/)migrations/`),
	regexp.MustCompile(`(^|/)db/migrate/`),
	regexp.MustCompile(`(^|/)database/migrations/`),
	regexp.MustCompile(`(^|/)prisma/migrations/`),
	regexp.MustCompile(`\.migration\.`),
	regexp.MustCompile(`(^|/)alembic/versions/`),
}

// pathPrefixPattern extracts a leading "services/<name>" or "apps/<name>"
// component, mapping a changed file to the service it belongs to.
var pathPrefixPattern = regexp.MustCompile(`^(?:services|apps)/([^/]+)/`)

// ServiceContext supplies the per-service build/working-dir paths the
// detector needs to additionally match changed files against, sourced from
// the ComposeInspector (I).
type ServiceContext struct {
	Name         string
	BuildContext string
	WorkingDir   string
}

// Detector is the ChangeDetector (G's change-classification half).
type Detector struct{}

// New constructs a Detector.
func New() *Detector { return &Detector{} }

// Analyze classifies changedFiles (the union of files touched across a
// commit range) into a model.ChangeAnalysis, additionally matching against
// each compose service's build context / working directory from services.
func (d *Detector) Analyze(changedFiles []string, services []ServiceContext) *model.ChangeAnalysis {
	analysis := &model.ChangeAnalysis{
		ChangedFiles: changedFiles,
		Summary:      make(map[string][]string),
	}
	if len(changedFiles) == 0 {
		return analysis
	}

	affected := make(map[string]bool)
	allAffected := false

	for _, f := range changedFiles {
		clean := path.Clean(filepathToSlash(f))

		if matchesAny(serviceAffectingPatterns, clean) {
			allAffected = true
			analysis.NeedsServiceRestart = true
			analysis.Summary["compose"] = append(analysis.Summary["compose"], f)
			continue
		}

		if matchesAny(dependencyManifests, clean) {
			analysis.NeedsDependencyInstall = true
			analysis.Summary["dependencies"] = append(analysis.Summary["dependencies"], f)
		}

		if matchesAny(migrationPatterns, clean) {
			analysis.Migrations = append(analysis.Migrations, f)
			analysis.Summary["migrations"] = append(analysis.Summary["migrations"], f)
		}

		if strings.HasPrefix(clean, "packages/") {
			allAffected = true
			analysis.Summary["packages"] = append(analysis.Summary["packages"], f)
			continue
		}

		if m := pathPrefixPattern.FindStringSubmatch(clean); m != nil {
			affected[m[1]] = true
			analysis.Summary["service:"+m[1]] = append(analysis.Summary["service:"+m[1]], f)
			continue
		}

		matchedService := false
		for _, svc := range services {
			if svc.BuildContext != "" && strings.HasPrefix(clean, path.Clean(filepathToSlash(svc.BuildContext))+"/") {
				affected[svc.Name] = true
				matchedService = true
			}
			if svc.WorkingDir != "" && strings.HasPrefix(clean, path.Clean(filepathToSlash(svc.WorkingDir))+"/") {
				affected[svc.Name] = true
				matchedService = true
			}
		}
		if matchedService {
			continue
		}

		analysis.Summary["source"] = append(analysis.Summary["source"], f)
	}

	if allAffected {
		analysis.AffectedServices = []string{model.AllSentinel}
	} else {
		for name := range affected {
			analysis.AffectedServices = append(analysis.AffectedServices, name)
		}
	}

	return analysis
}

func matchesAny(patterns []*regexp.Regexp, s string) bool {
	for _, p := range patterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

// filepathToSlash normalizes a possibly-backslashed path to forward
// slashes so the same regex set works regardless of how the caller
// obtained the path list (git always reports forward slashes, but callers
// may join paths with filepath.Join on Windows).
func filepathToSlash(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}
