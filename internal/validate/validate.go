// Package validate is the InputValidator: one function per precondition
// check described in the control-plane's input table, each failing fast with
// a *model.Error{Kind: model.KindValidation} rather than a bare error.
//
// Every entry point into the system — the CLI, the HTTP adapter, and the
// WebSocket control surface — runs its arguments through these functions
// before dispatching to a pipeline; nothing downstream re-validates.
package validate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/vibetrees/controlplane/internal/model"
)

// fieldError builds the standard shape every validator returns on rejection.
func fieldError(field, message string) *model.Error {
	return model.NewError(model.KindValidation, fmt.Sprintf("%s: %s", field, message))
}

// WorktreeName delegates to model.ValidateName (the single source of truth
// for I-W1's shape rule) and wraps the result in the validation error kind.
func WorktreeName(name string) error {
	if err := model.ValidateName(name); err != nil {
		return fieldError("worktreeName", err.Error())
	}
	return nil
}

var branchNameRegex = regexp.MustCompile(`^[A-Za-z0-9/_.-]+$`)

// BranchName checks a git branch/ref name against the shape git itself
// enforces for refs, plus the extra restrictions this system needs: no
// leading or trailing slash, no "..", no "//", no trailing ".lock".
func BranchName(name string) error {
	if name == "" {
		return fieldError("branchName", "must not be empty")
	}
	if !branchNameRegex.MatchString(name) {
		return fieldError("branchName", "must match "+branchNameRegex.String())
	}
	if strings.HasPrefix(name, "/") || strings.HasSuffix(name, "/") {
		return fieldError("branchName", "must not start or end with '/'")
	}
	if strings.Contains(name, "..") {
		return fieldError("branchName", "must not contain '..'")
	}
	if strings.Contains(name, "//") {
		return fieldError("branchName", "must not contain '//'")
	}
	if strings.HasSuffix(name, ".lock") {
		return fieldError("branchName", "must not end with '.lock'")
	}
	return nil
}

var serviceNameRegex = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ServiceName checks a compose service name.
func ServiceName(name string) error {
	if name == "" {
		return fieldError("serviceName", "must not be empty")
	}
	if len(name) > 100 {
		return fieldError("serviceName", "must be at most 100 characters")
	}
	if !serviceNameRegex.MatchString(name) {
		return fieldError("serviceName", "must match "+serviceNameRegex.String())
	}
	return nil
}

// Port checks that a candidate port falls in the non-privileged range this
// system allocates from.
func Port(port int) error {
	if port < 1024 || port > 65535 {
		return fieldError("port", fmt.Sprintf("%d out of range (1024-65535)", port))
	}
	return nil
}

var envVarNameRegex = regexp.MustCompile(`^[A-Z_][A-Z0-9_]*$`)

// EnvVarName checks a POSIX-shell-compatible environment variable name.
func EnvVarName(name string) error {
	if !envVarNameRegex.MatchString(name) {
		return fieldError("envVarName", "must match "+envVarNameRegex.String())
	}
	return nil
}

const maxEnvValueLen = 10000

var shellMetachars = regexp.MustCompile("[;&|`$(){}<>\n]")

// EnvVarValue checks a value destined for a worktree's .env file. Unlike the
// other checks this one only warns (via the returned bool) on shell
// metacharacters rather than rejecting outright — env values legitimately
// contain things like "$" in passwords.
func EnvVarValue(value string) (warn bool, err error) {
	if len(value) > maxEnvValueLen {
		return false, fieldError("envVarValue", fmt.Sprintf("must be at most %d characters", maxEnvValueLen))
	}
	if strings.ContainsRune(value, 0) {
		return false, fieldError("envVarValue", "must not contain a null byte")
	}
	return shellMetachars.MatchString(value), nil
}

// allowedPTYExecutables is the closed allowlist PTY sessions may launch.
var allowedPTYExecutables = map[string]bool{
	"shell": true,
	"claude": true,
	"codex":  true,
}

// PTYExecutable checks a PTYCommand against the closed allowlist.
func PTYExecutable(command string) error {
	if !allowedPTYExecutables[command] {
		return fieldError("ptyExecutable", fmt.Sprintf("%q is not in the allowed set", command))
	}
	return nil
}

// gitArgRejectRegex matches the shell-metacharacter shapes a git argument
// must never contain: command separators, substitution, backticks, NUL.
var gitArgRejectRegex = regexp.MustCompile(`;|&&|\|\||\||` + "`" + `|\$\(|\$\{|\n|\x00`)

// GitArg rejects an argument destined for a shelled-out git invocation if it
// contains any command-injection shape.
func GitArg(arg string) error {
	if gitArgRejectRegex.MatchString(arg) {
		return fieldError("gitArg", "contains a disallowed shell metacharacter sequence")
	}
	return nil
}

// allowedComposeSubcommands is the closed allowlist of subcommands the
// runtime's compose invocation wrapper accepts.
var allowedComposeSubcommands = map[string]bool{
	"up": true, "down": true, "ps": true, "logs": true,
	"stop": true, "start": true, "restart": true,
	"config": true, "version": true, "pull": true, "build": true,
}

var composeMetachars = regexp.MustCompile(`;|&&|\|\||\|`)

// ComposeSubcommand checks a subcommand name against the closed allowlist
// and rejects shell metacharacters on top of the allowlist check (belt and
// braces: a string equal to an allowed word can never itself carry a pipe).
func ComposeSubcommand(sub string) error {
	if composeMetachars.MatchString(sub) {
		return fieldError("composeSubcommand", "contains a disallowed shell metacharacter")
	}
	if !allowedComposeSubcommands[sub] {
		return fieldError("composeSubcommand", fmt.Sprintf("%q is not an allowed compose subcommand", sub))
	}
	return nil
}

const maxWebSocketURLLen = 1000

// WebSocketURL checks a relative WebSocket URL path (e.g. the path portion
// of "/terminal/{worktree}").
func WebSocketURL(url string) error {
	if len(url) > maxWebSocketURLLen {
		return fieldError("webSocketURL", fmt.Sprintf("must be at most %d characters", maxWebSocketURLLen))
	}
	if strings.Contains(url, "..") {
		return fieldError("webSocketURL", "must not contain '..'")
	}
	return nil
}

// reDoSShapes are textual patterns within a regex source that are reliable
// signs of catastrophic backtracking in backtracking regex engines: nested
// unbounded quantifiers, and a quantified-group repeated 3+ times.
var reDoSShapes = []*regexp.Regexp{
	regexp.MustCompile(`\(.*\)\{3,\}`),
	regexp.MustCompile(`\+\*|\*\+`),
	regexp.MustCompile(`(\.\*\?){2,}`),
}

// RegexPattern rejects a user-supplied regex source that matches a known
// ReDoS shape, before it is ever compiled and run against untrusted input.
func RegexPattern(pattern string) error {
	for _, shape := range reDoSShapes {
		if shape.MatchString(pattern) {
			return fieldError("regexPattern", "matches a disallowed catastrophic-backtracking shape")
		}
	}
	return nil
}

var pathTraversalNull = "\x00"

// Path normalizes candidate against base and requires the result to remain
// rooted under base; it also rejects embedded null bytes outright. Callers
// pass an absolute, already-cleaned base (typically the worktree's root or
// the project root).
func Path(base, candidate string) (string, error) {
	if strings.Contains(candidate, pathTraversalNull) {
		return "", fieldError("path", "must not contain a null byte")
	}
	resolved, err := resolveWithinBase(base, candidate)
	if err != nil {
		return "", fieldError("path", err.Error())
	}
	return resolved, nil
}
