// Package cli — import.go implements the "import" command.
package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vibetrees/controlplane/internal/model"
)

// NewImportCommand creates the "import" cobra command.
func NewImportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <name>",
		Short: "Adopt a worktree created outside this tool's knowledge",
		Long: `Adopt a worktree that was created by a manual "git worktree add" (or
restored from a backup) into the port registry, by discovering its compose
services and allocating registry entries for any port it doesn't already
track.

Examples:
  vibetrees import feature-auth`,

		Args: cobra.ExactArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd.Context(), args[0])
		},
	}

	return cmd
}

func runImport(ctx context.Context, name string) error {
	a, err := bootstrap()
	if err != nil {
		return err
	}

	VerboseLog("Importing worktree %q...", name)
	result, err := a.diag.Import(name)
	if err != nil {
		return err
	}
	if !result.Success {
		return model.NewError(model.KindExternal, result.Error).WithStep(result.Step)
	}

	if IsJSONOutput() {
		data, _ := json.MarshalIndent(map[string]any{"name": name, "step": result.Step}, "", "  ")
		fmt.Println(string(data))
	} else if result.Step != "" {
		fmt.Printf("Imported %q: %s\n", name, result.Step)
	} else {
		fmt.Printf("Imported %q\n", name)
	}
	return nil
}
