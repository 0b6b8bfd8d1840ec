// Package cli — remove.go implements the "remove" command.
//
// The remove command completely destroys a worktree: stops its services,
// removes the git worktree directory, and releases its ports (W-Delete).
//
// By default, the command prompts for confirmation before proceeding.
// The --force flag skips the confirmation prompt.
package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vibetrees/controlplane/internal/model"
)

// removeFlags holds the flag values for the remove command.
type removeFlags struct {
	// force skips the interactive confirmation prompt when true.
	force bool
}

// NewRemoveCommand creates the "remove" cobra command.
func NewRemoveCommand() *cobra.Command {
	flags := &removeFlags{}

	cmd := &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a worktree and its services",
		Long: `Stop every service in the named worktree, remove its git worktree
directory, and release its allocated ports.

By default this prompts for confirmation; pass --force to skip it.

Examples:
  vibetrees remove feature-auth
  vibetrees remove --force feature-auth`,

		Args: cobra.ExactArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			return runRemove(cmd.Context(), args[0], flags)
		},
	}

	cmd.Flags().BoolVarP(&flags.force, "force", "f", false, "Skip the confirmation prompt")

	return cmd
}

func runRemove(ctx context.Context, name string, flags *removeFlags) error {
	if name == "main" {
		return model.NewError(model.KindValidation, "the root checkout cannot be removed")
	}

	if !flags.force {
		if !confirmRemoval(name) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	a, err := bootstrap()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	VerboseLog("Removing worktree %q...", name)
	result, err := a.lifecycle.Delete(ctx, name)
	if err != nil {
		return err
	}
	if !result.Success {
		return model.NewError(model.KindExternal, result.Error).WithStep(result.Step)
	}

	if IsJSONOutput() {
		data, _ := json.MarshalIndent(map[string]any{"name": name, "action": "removed"}, "", "  ")
		fmt.Println(string(data))
	} else {
		fmt.Printf("Removed worktree %q\n", name)
	}
	return nil
}

// confirmRemoval prompts the user on stdin/stdout for a yes/no answer
// before a destructive remove proceeds.
func confirmRemoval(name string) bool {
	fmt.Printf("This will permanently remove worktree %q and its services. Continue? [y/N] ", name)
	reader := bufio.NewReader(os.Stdin)
	answer, _ := reader.ReadString('\n')
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}
