// Package cli — sync.go implements the "sync" command.
//
// The sync command reconciles a worktree's branch against main using
// SyncManager's rebase (default) or merge strategy.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/vibetrees/controlplane/internal/gitutil"
	"github.com/vibetrees/controlplane/internal/model"
	"github.com/vibetrees/controlplane/internal/worktreelifecycle"
)

// syncFlags holds the flag values for the sync command.
type syncFlags struct {
	strategy string // --strategy: "rebase" (default) or "merge"
	force    bool   // --force: sync despite uncommitted changes
}

// NewSyncCommand creates the "sync" cobra command.
func NewSyncCommand() *cobra.Command {
	flags := &syncFlags{}

	cmd := &cobra.Command{
		Use:   "sync <name>",
		Short: "Reconcile a worktree's branch against main",
		Long: `Reconcile the named worktree's branch against main, by rebase (default)
or merge.

Refuses to run against a dirty working tree unless --force is given.

Examples:
  vibetrees sync feature-auth
  vibetrees sync --strategy merge feature-auth
  vibetrees sync --force feature-auth`,

		Args: cobra.ExactArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd.Context(), args[0], flags)
		},
	}

	cmd.Flags().StringVar(&flags.strategy, "strategy", "rebase", "Sync strategy: rebase or merge")
	cmd.Flags().BoolVar(&flags.force, "force", false, "Sync despite uncommitted changes")

	return cmd
}

func runSync(ctx context.Context, name string, flags *syncFlags) error {
	a, err := bootstrap()
	if err != nil {
		return err
	}

	strategy := gitutil.SyncStrategy(flags.strategy)
	if strategy != gitutil.SyncRebase && strategy != gitutil.SyncMerge {
		return model.NewError(model.KindValidation, fmt.Sprintf("unknown sync strategy %q", flags.strategy))
	}

	path := filepath.Join(a.lifecycle.WorktreesBase, name)
	VerboseLog("Syncing worktree %q (%s) against %s...", name, strategy, worktreelifecycle.RootBranch)

	result, err := a.sync.Sync(path, worktreelifecycle.RootBranch, strategy, flags.force)
	if err != nil {
		return err
	}

	if IsJSONOutput() {
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(data))
		return nil
	}

	if result.Conflicted {
		fmt.Printf("Sync of %q conflicted on %d file(s); rolled back.\n", name, len(result.ConflictFiles))
		for _, f := range result.ConflictFiles {
			fmt.Printf("  %s\n", f)
		}
		return nil
	}
	fmt.Printf("Synced %q against %s (%s)\n", name, worktreelifecycle.RootBranch, result.Strategy)
	return nil
}
