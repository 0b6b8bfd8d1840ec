// rewrite.go rewrites a devcontainer.json for the non-Compose patterns
// (a plain image, or a build) into a worktree-specific copy: container
// name, --label runArgs, appPort/portsAttributes port shifts, and
// containerEnv additions. The original file is never modified.
//
// Rewriting goes through a generic map[string]interface{} rather than
// RawDevContainer so that fields RawDevContainer doesn't model survive
// the round trip unchanged.
package devcontainer

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/jsonc"

	"github.com/vibetrees/controlplane/internal/model"
)

// RewriteConfig parses rawJSON (JSONC comments stripped), applies the
// worktree's name, labels, port shifts, and containerEnv, and returns the
// result re-serialized with 2-space indentation.
func RewriteConfig(rawJSON []byte, envName string, worktreeIndex int, portAllocations []PortSpec, labels map[string]string) ([]byte, error) {
	cleanJSON := jsonc.ToJSON(rawJSON)

	var configMap map[string]interface{}
	if err := json.Unmarshal(cleanJSON, &configMap); err != nil {
		return nil, model.WrapError(model.KindValidation, "parsing devcontainer.json for rewriting", err)
	}

	configMap["name"] = envName
	applyRunArgsLabels(configMap, labels)
	applyAppPortShift(configMap, portAllocations)
	applyPortsAttributesShift(configMap, portAllocations)
	applyContainerEnv(configMap, envName, worktreeIndex)

	result, err := json.MarshalIndent(configMap, "", "  ")
	if err != nil {
		return nil, model.WrapError(model.KindInternal, "serializing rewritten devcontainer.json", err)
	}
	result = append(result, '\n')

	return result, nil
}

// applyRunArgsLabels appends "--label", "key=value" pairs to runArgs for
// each entry in labels, creating runArgs if absent.
func applyRunArgsLabels(configMap map[string]interface{}, labels map[string]string) {
	var runArgs []interface{}
	if existing, ok := configMap["runArgs"]; ok {
		if arr, ok := existing.([]interface{}); ok {
			runArgs = arr
		}
	}

	keys := make([]string, 0, len(labels))
	for key := range labels {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		runArgs = append(runArgs, "--label", fmt.Sprintf("%s=%s", key, labels[key]))
	}

	configMap["runArgs"] = runArgs
}

// applyAppPortShift replaces appPort with "hostPort:containerPort" entries
// for portAllocations, or removes the field entirely when there are none.
func applyAppPortShift(configMap map[string]interface{}, portAllocations []PortSpec) {
	if len(portAllocations) == 0 {
		delete(configMap, "appPort")
		return
	}

	appPorts := make([]interface{}, 0, len(portAllocations))
	for _, pa := range portAllocations {
		appPorts = append(appPorts, fmt.Sprintf("%d:%d", pa.HostPort, pa.ContainerPort))
	}

	configMap["appPort"] = appPorts
}

// applyPortsAttributesShift re-keys portsAttributes (keyed by container
// port as a string) to the shifted host ports in portAllocations, leaving
// any key with no matching allocation untouched.
func applyPortsAttributesShift(configMap map[string]interface{}, portAllocations []PortSpec) {
	existing, ok := configMap["portsAttributes"]
	if !ok {
		return
	}

	oldAttrs, ok := existing.(map[string]interface{})
	if !ok {
		return
	}

	portMapping := make(map[string]int) // containerPort(string) -> hostPort
	for _, pa := range portAllocations {
		portMapping[strconv.Itoa(pa.ContainerPort)] = pa.HostPort
	}

	newAttrs := make(map[string]interface{})
	for portKey, attrValue := range oldAttrs {
		if hostPort, found := portMapping[portKey]; found {
			newAttrs[strconv.Itoa(hostPort)] = attrValue
		} else {
			newAttrs[portKey] = attrValue
		}
	}

	configMap["portsAttributes"] = newAttrs
}

// applyContainerEnv sets WORKTREE_NAME and WORKTREE_INDEX in containerEnv,
// creating the map if absent and preserving any existing entries.
func applyContainerEnv(configMap map[string]interface{}, envName string, worktreeIndex int) {
	var envMap map[string]interface{}
	if existing, ok := configMap["containerEnv"]; ok {
		if m, ok := existing.(map[string]interface{}); ok {
			envMap = m
		} else {
			envMap = make(map[string]interface{})
		}
	} else {
		envMap = make(map[string]interface{})
	}

	// Add the worktree-specific environment variables.
	envMap["WORKTREE_NAME"] = envName
	envMap["WORKTREE_INDEX"] = strconv.Itoa(worktreeIndex)

	configMap["containerEnv"] = envMap
}

// WriteRewrittenConfig writes data to outputPath, creating parent
// directories as needed.
func WriteRewrittenConfig(outputPath string, data []byte) error {
	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return model.WrapError(model.KindInternal, "creating directory "+dir, err)
	}

	if err := os.WriteFile(outputPath, data, 0o644); err != nil {
		return model.WrapError(model.KindInternal, "writing rewritten devcontainer.json to "+outputPath, err)
	}

	return nil
}

// CopyDevContainerDir copies srcDir's tree (Dockerfiles, scripts, anything a
// devcontainer.json references) into dstDir, skipping symlinks and the
// devcontainer.json file itself — that file is rewritten separately by
// RewriteConfig/RewriteComposeConfig + WriteRewrittenConfig, and the
// original is never modified in place.
func CopyDevContainerDir(srcDir, dstDir string) error {
	return filepath.Walk(srcDir, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return model.WrapError(model.KindInternal, "walking source directory "+path, walkErr)
		}

		relPath, err := filepath.Rel(srcDir, path)
		if err != nil {
			return model.WrapError(model.KindInternal, "computing relative path for "+path, err)
		}
		dstPath := filepath.Join(dstDir, relPath)

		if info.Mode()&os.ModeSymlink != 0 {
			return nil
		}

		if info.IsDir() {
			if err := os.MkdirAll(dstPath, info.Mode()); err != nil {
				return model.WrapError(model.KindInternal, "creating directory "+dstPath, err)
			}
			return nil
		}

		if strings.EqualFold(filepath.Base(path), "devcontainer.json") {
			return nil
		}

		return copyFile(path, dstPath, info.Mode())
	})
}

// copyFile copies src to dst, preserving mode, via io.Copy so large
// Dockerfiles or scripts aren't loaded fully into memory.
func copyFile(src, dst string, mode os.FileMode) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return model.WrapError(model.KindInternal, "opening source file "+src, err)
	}
	defer func() { _ = srcFile.Close() }()

	dstFile, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return model.WrapError(model.KindInternal, "creating destination file "+dst, err)
	}
	defer func() { _ = dstFile.Close() }()

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		return model.WrapError(model.KindInternal, fmt.Sprintf("copying %s to %s", src, dst), err)
	}

	return nil
}
