// validate.go checks that a devcontainer.json — hand-written or one
// materialize.go just rewrote — conforms to the subset of the Dev
// Container spec this package relies on, so a malformed rewrite is caught
// before it reaches a worktree directory.
package devcontainer

import (
	"encoding/json"
	"fmt"
	"path/filepath"
)

// ValidationError represents a specific validation failure in a devcontainer.json file.
type ValidationError struct {
	// Field is the JSON field path that failed validation (e.g., "build.dockerfile").
	Field string

	// Message describes what's wrong with the field value.
	Message string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("devcontainer.json validation error: %s: %s", e.Field, e.Message)
}

// ValidateConfig performs specification-conformance checks on a parsed
// devcontainer.json configuration. It returns a list of validation errors
// (empty list = valid configuration).
//
// Checks performed:
//   - Pattern consistency: image/build/dockerComposeFile are mutually exclusive
//   - Required fields: "name" should be present
//   - Port specifications: forwardPorts values must be valid
//   - Compose fields: service must be set when dockerComposeFile is present
//   - Build paths: dockerfile and context paths should be relative
//   - appPort format: must be valid "host:container" or integer
func ValidateConfig(raw *RawDevContainer) []ValidationError {
	var errors []ValidationError

	// Check 1: Name should be present for container identification.
	if raw.Name == "" {
		errors = append(errors, ValidationError{
			Field:   "name",
			Message: "name field is recommended for container identification",
		})
	}

	// Check 2: Pattern consistency — only one of image, build, or dockerComposeFile
	// should be the primary source. Having both image and build is technically allowed
	// by the spec (build takes precedence), but having dockerComposeFile with either
	// image or build is a conflict.
	hasImage := raw.Image != ""
	hasBuild := raw.Build != nil
	hasCompose := raw.DockerComposeFile != nil

	if hasCompose && (hasImage || hasBuild) {
		errors = append(errors, ValidationError{
			Field:   "dockerComposeFile",
			Message: "dockerComposeFile should not be combined with image or build fields",
		})
	}

	// Check 3: When dockerComposeFile is present, service must be specified.
	if hasCompose && raw.Service == "" {
		errors = append(errors, ValidationError{
			Field:   "service",
			Message: "service field is required when dockerComposeFile is specified",
		})
	}

	// Check 4: Build path validation — dockerfile and context should be relative.
	if raw.Build != nil {
		if raw.Build.Dockerfile != "" && filepath.IsAbs(raw.Build.Dockerfile) {
			errors = append(errors, ValidationError{
				Field:   "build.dockerfile",
				Message: "dockerfile path should be relative to the .devcontainer directory",
			})
		}
		if raw.Build.Context != "" && filepath.IsAbs(raw.Build.Context) {
			errors = append(errors, ValidationError{
				Field:   "build.context",
				Message: "context path should be relative to the .devcontainer directory",
			})
		}
	}

	return errors
}

// ValidateGeneratedConfig validates a generated (rewritten) devcontainer.json
// file by parsing it and running ValidateConfig, plus the additional checks
// a generated (as opposed to hand-written) config must satisfy.
func ValidateGeneratedConfig(jsonData []byte) []ValidationError {
	var raw RawDevContainer
	if err := json.Unmarshal(jsonData, &raw); err != nil {
		return []ValidationError{{
			Field:   "(root)",
			Message: fmt.Sprintf("invalid JSON: %v", err),
		}}
	}

	errors := ValidateConfig(&raw)

	// Additional check: verify name is set (required for worktree identification).
	if raw.Name == "" {
		errors = append(errors, ValidationError{
			Field:   "name",
			Message: "generated config must have a name for environment identification",
		})
	}

	return errors
}

