package worktreelifecycle

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/vibetrees/controlplane/internal/model"
)

// manifest names one ecosystem's dependency manifest, its installed
// (vendored) directory, and the command used to (re)install it.
type manifest struct {
	file      string
	vendorDir string
	command   []string
}

var manifests = []manifest{
	{file: "package-lock.json", vendorDir: "node_modules", command: []string{"npm", "ci"}},
	{file: "package.json", vendorDir: "node_modules", command: []string{"npm", "install"}},
	{file: "requirements.txt", vendorDir: ".venv", command: []string{"pip", "install", "-r", "requirements.txt"}},
	{file: "Gemfile.lock", vendorDir: "vendor/bundle", command: []string{"bundle", "install"}},
	{file: "go.sum", vendorDir: "vendor", command: []string{"go", "mod", "download"}},
}

const bootstrapScript = "scripts/bootstrap.sh"

// installDependencies implements W-Create step 10: run a repo-declared
// bootstrap script if one exists, else find the first recognized manifest
// present in the worktree and skip it if its vendored directory already
// exists and is newer than the manifest (nothing changed since the last
// install), else run that ecosystem's install command.
func (l *Lifecycle) installDependencies(ctx context.Context, worktreePath string) error {
	bootstrapPath := filepath.Join(worktreePath, bootstrapScript)
	if info, err := os.Stat(bootstrapPath); err == nil && !info.IsDir() {
		return runHostCommand(ctx, worktreePath, []string{"sh", bootstrapScript})
	}

	for _, m := range manifests {
		manifestPath := filepath.Join(worktreePath, m.file)
		manifestInfo, err := os.Stat(manifestPath)
		if err != nil {
			continue
		}

		vendorPath := filepath.Join(worktreePath, m.vendorDir)
		if vendorInfo, err := os.Stat(vendorPath); err == nil && vendorInfo.ModTime().After(manifestInfo.ModTime()) {
			return nil
		}

		return runHostCommand(ctx, worktreePath, m.command)
	}
	return nil
}

func runHostCommand(ctx context.Context, dir string, command []string) error {
	if _, err := exec.LookPath(command[0]); err != nil {
		return model.WrapError(model.KindExternal, "dependency installer not found on PATH: "+command[0], err)
	}
	cmd := exec.CommandContext(ctx, command[0], command[1:]...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return model.WrapError(model.KindExternal, "dependency install failed: "+string(out), err)
	}
	return nil
}
