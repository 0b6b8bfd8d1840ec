// Package cli — create.go implements the "create" command.
//
// The create command is the primary user-facing operation: it runs
// W-Create end to end (git worktree, port allocation, env file, services
// up) via the same Lifecycle.Create pipeline the HTTP adapter's POST
// /api/worktrees calls.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vibetrees/controlplane/internal/model"
	"github.com/vibetrees/controlplane/internal/worktreelifecycle"
)

// createFlags holds the flag values for the create command.
type createFlags struct {
	fromBranch string // --base: branch the new worktree is created from
	noStart    bool   // --no-start: create the worktree but skip starting services
}

// NewCreateCommand creates the "create" cobra command.
func NewCreateCommand() *cobra.Command {
	flags := &createFlags{}

	cmd := &cobra.Command{
		Use:   "create <branch-name>",
		Short: "Create a new worktree with its services",
		Long: `Create a new Git worktree for branch-name and start its services.

The command automatically:
  - Creates a Git worktree for the specified branch (slugified for the
    directory and service naming)
  - Allocates non-conflicting host ports for every published service
  - Writes the worktree's env file
  - Starts its services (unless --no-start)

Examples:
  vibetrees create feature-auth
  vibetrees create --base main bugfix-login
  vibetrees create --no-start feature-auth`,

		Args: cobra.ExactArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			return runCreate(cmd.Context(), args[0], flags)
		},
	}

	cmd.Flags().StringVar(&flags.fromBranch, "base", "", "Branch the new worktree is created from (default: main)")
	cmd.Flags().BoolVar(&flags.noStart, "no-start", false, "Create the worktree only, don't start services")

	return cmd
}

func runCreate(ctx context.Context, branchName string, flags *createFlags) error {
	a, err := bootstrap()
	if err != nil {
		return err
	}

	fromBranch := flags.fromBranch
	if fromBranch == "" {
		fromBranch = worktreelifecycle.RootBranch
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	VerboseLog("Creating worktree for branch %q from %q...", branchName, fromBranch)
	result, err := a.lifecycle.Create(ctx, branchName, fromBranch)
	if err != nil {
		return err
	}
	if !result.Success {
		return model.NewError(model.KindExternal, result.Error).WithStep(result.Step)
	}

	name := worktreelifecycle.Slugify(branchName)

	// Create's own pipeline already starts services best-effort (its step
	// 12); --no-start stops them back down rather than threading a flag
	// through the shared pipeline the HTTP adapter also calls.
	if flags.noStart {
		VerboseLog("Stopping services started by create (--no-start)...")
		if _, err := a.lifecycle.StopServices(ctx, name); err != nil {
			VerboseLog("could not stop services: %v", err)
		}
	}

	printCreateResult(name, branchName, a.ports.PortsOf(name))
	return nil
}

func printCreateResult(name, branch string, ports map[string]int) {
	if IsJSONOutput() {
		data, _ := json.MarshalIndent(map[string]any{
			"name": name, "branch": branch, "ports": ports,
		}, "", "  ")
		fmt.Println(string(data))
		return
	}

	fmt.Printf("Created worktree %q\n", name)
	fmt.Printf("  Branch: %s\n", branch)
	if len(ports) > 0 {
		fmt.Println()
		fmt.Println("  Ports:")
		for service, port := range ports {
			fmt.Printf("    %-20s localhost:%d\n", service, port)
		}
	}
}
