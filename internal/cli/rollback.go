// Package cli — rollback.go implements the "rollback" command.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/vibetrees/controlplane/internal/model"
)

// NewRollbackCommand creates the "rollback" cobra command.
func NewRollbackCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rollback <name> <commit>",
		Short: "Hard-reset a worktree to a specific commit",
		Long: `Hard-reset the named worktree to commit, discarding any local changes
made since.

Examples:
  vibetrees rollback feature-auth a1b2c3d`,

		Args: cobra.ExactArgs(2),

		RunE: func(cmd *cobra.Command, args []string) error {
			return runRollback(cmd.Context(), args[0], args[1])
		},
	}

	return cmd
}

func runRollback(ctx context.Context, name, commit string) error {
	if commit == "" {
		return model.NewError(model.KindValidation, "commit is required")
	}

	a, err := bootstrap()
	if err != nil {
		return err
	}

	path := filepath.Join(a.lifecycle.WorktreesBase, name)

	VerboseLog("Rolling back worktree %q to %s...", name, commit)
	if err := a.sync.Rollback(path, commit); err != nil {
		return err
	}

	if IsJSONOutput() {
		data, _ := json.MarshalIndent(map[string]any{"name": name, "commit": commit, "action": "rolled-back"}, "", "  ")
		fmt.Println(string(data))
	} else {
		fmt.Printf("Rolled back %q to %s\n", name, commit)
	}
	return nil
}
