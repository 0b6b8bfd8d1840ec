// Package cli — start.go implements the "start" command.
//
// The start command brings up every service for a previously stopped
// worktree, reusing its existing port allocations (W's StartServices).
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vibetrees/controlplane/internal/model"
)

// NewStartCommand creates the "start" cobra command.
func NewStartCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start <name>",
		Short: "Start a stopped worktree's services",
		Long: `Start every service in a previously stopped worktree, reusing its
existing port allocations.

Examples:
  vibetrees start feature-auth
  vibetrees start --json feature-auth`,

		Args: cobra.ExactArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(cmd.Context(), args[0])
		},
	}

	return cmd
}

func runStart(ctx context.Context, name string) error {
	a, err := bootstrap()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	VerboseLog("Starting services for worktree %q...", name)
	result, err := a.lifecycle.StartServices(ctx, name)
	if err != nil {
		return err
	}
	if !result.Success {
		return model.NewError(model.KindExternal, result.Error).WithStep(result.Step)
	}

	printStartResult(name, a.ports.PortsOf(name))
	return nil
}

func printStartResult(name string, ports map[string]int) {
	if IsJSONOutput() {
		data, _ := json.MarshalIndent(map[string]any{
			"name": name, "action": "started", "ports": ports,
		}, "", "  ")
		fmt.Println(string(data))
		return
	}

	fmt.Printf("Started worktree %q\n", name)
	if len(ports) > 0 {
		fmt.Println()
		fmt.Println("  Ports:")
		for service, port := range ports {
			fmt.Printf("    %-20s %d\n", service, port)
		}
	}
}
