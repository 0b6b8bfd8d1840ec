// Package cli — diagnose.go implements the "diagnose" command.
package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vibetrees/controlplane/internal/diagnostics"
)

// diagnoseFlags holds the flag values for the diagnose command.
type diagnoseFlags struct {
	checks []string // --check: run only these named checks (repeatable); empty means all
}

// NewDiagnoseCommand creates the "diagnose" cobra command.
func NewDiagnoseCommand() *cobra.Command {
	flags := &diagnoseFlags{}

	cmd := &cobra.Command{
		Use:   "diagnose",
		Short: "Run consistency checks over worktrees, ports, and containers",
		Long: `Run the registered consistency checks (git registration, orphaned
ports, compose drift, container runtime reachability) across every worktree
the port registry knows about.

Examples:
  vibetrees diagnose
  vibetrees diagnose --check git-registration --check orphaned-ports`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiagnose(cmd.Context(), flags)
		},
	}

	cmd.Flags().StringArrayVar(&flags.checks, "check", nil, "Run only this named check (repeatable); default runs all checks")

	return cmd
}

func runDiagnose(ctx context.Context, flags *diagnoseFlags) error {
	a, err := bootstrap()
	if err != nil {
		return err
	}

	VerboseLog("Running diagnostics (checks=%v)...", flags.checks)
	findings, err := a.diag.Run(ctx, flags.checks)
	if err != nil {
		return err
	}

	printDiagnoseResult(findings)
	return nil
}

func printDiagnoseResult(findings []diagnostics.Finding) {
	if IsJSONOutput() {
		data, _ := json.MarshalIndent(map[string]any{"findings": findings}, "", "  ")
		fmt.Println(string(data))
		return
	}

	if len(findings) == 0 {
		fmt.Println("No findings.")
		return
	}

	fmt.Printf("%-18s %-20s %-6s %s\n", "CHECK", "WORKTREE", "SEV", "MESSAGE")
	for _, f := range findings {
		sev := string(f.Severity)
		if f.Fixed {
			sev += "*"
		}
		fmt.Printf("%-18s %-20s %-6s %s\n", f.Check, f.Worktree, sev, f.Message)
	}
}
