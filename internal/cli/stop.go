// Package cli — stop.go implements the "stop" command.
//
// The stop command gracefully stops all services in a named worktree
// while preserving its port allocations (W's StopServices), so a later
// "start" resumes on the same ports.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vibetrees/controlplane/internal/model"
)

// NewStopCommand creates the "stop" cobra command.
func NewStopCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop <name>",
		Short: "Stop a worktree's services",
		Long: `Stop every service in the named worktree, preserving its port
allocations so a later "start" resumes on the same ports.

Examples:
  vibetrees stop feature-auth`,

		Args: cobra.ExactArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			return runStop(cmd.Context(), args[0])
		},
	}

	return cmd
}

func runStop(ctx context.Context, name string) error {
	a, err := bootstrap()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	VerboseLog("Stopping services for worktree %q...", name)
	result, err := a.lifecycle.StopServices(ctx, name)
	if err != nil {
		return err
	}
	if !result.Success {
		return model.NewError(model.KindExternal, result.Error).WithStep(result.Step)
	}

	if IsJSONOutput() {
		data, _ := json.MarshalIndent(map[string]any{"name": name, "action": "stopped"}, "", "  ")
		fmt.Println(string(data))
	} else {
		fmt.Printf("Stopped worktree %q\n", name)
	}
	return nil
}
