// Package devcontainer handles parsing, rewriting, and validation of
// devcontainer.json configuration files, for worktree services that are
// described by a dev container instead of (or alongside) a plain
// docker-compose.yml.
//
// A worktree can carry one whole-project devcontainer.json, or one
// per-service devcontainer.json under .devcontainer/<service>/ — see
// DiscoverServiceConfigs. Each discovered config is classified into one of
// four patterns:
//
//   - Pattern A (image): Direct container image reference
//   - Pattern B (dockerfile): Builds from a Dockerfile
//   - Pattern C (compose-single): Docker Compose with one service
//   - Pattern D (compose-multi): Docker Compose with multiple services
//
// The original devcontainer.json is never modified. Instead, the package
// generates modified copies in the worktree directory. For Pattern A/B, it
// rewrites the JSON directly. For Pattern C/D, it generates a
// docker-compose override YAML file.
//
// JSONC (JSON with Comments) is supported via github.com/tidwall/jsonc,
// ensuring compatibility with the common practice of commenting
// devcontainer.json files.
package devcontainer
