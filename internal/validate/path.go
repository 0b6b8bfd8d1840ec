package validate

import (
	"fmt"
	"path/filepath"
	"strings"
)

// resolveWithinBase cleans and absolutizes candidate relative to base, then
// requires the result to have base as a path prefix. This is the one check
// that stands between a worktree name or compose-declared path and a path
// traversal outside the area the system is allowed to touch.
func resolveWithinBase(base, candidate string) (string, error) {
	absBase, err := filepath.Abs(filepath.Clean(base))
	if err != nil {
		return "", fmt.Errorf("resolving base: %w", err)
	}

	joined := candidate
	if !filepath.IsAbs(candidate) {
		joined = filepath.Join(absBase, candidate)
	}
	resolved, err := filepath.Abs(filepath.Clean(joined))
	if err != nil {
		return "", fmt.Errorf("resolving candidate: %w", err)
	}

	rel, err := filepath.Rel(absBase, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%q escapes base %q", candidate, absBase)
	}
	return resolved, nil
}
