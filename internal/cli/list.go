// Package cli — list.go implements the "list" command.
//
// The list command displays every managed worktree by combining the git
// worktree list with the port registry's allocations and a runtime
// container snapshot for each. Presented as a text table or JSON array,
// depending on the --json flag.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vibetrees/controlplane/internal/model"
	"github.com/vibetrees/controlplane/internal/worktreelifecycle"
)

// NewListCommand creates the "list" cobra command.
func NewListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all worktrees and their status",
		Long: `List every managed worktree and its status.

Each worktree is shown with its name, branch, git status, and allocated
host ports.

Examples:
  vibetrees list
  vibetrees list --json`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd.Context())
		},
	}

	return cmd
}

func runList(ctx context.Context) error {
	a, err := bootstrap()
	if err != nil {
		return err
	}

	entries, err := a.git.List(a.cfg.Repo.SourcePath)
	if err != nil {
		return err
	}
	VerboseLog("Found %d worktree entries", len(entries))

	worktrees := make([]model.Worktree, 0, len(entries))
	for _, e := range entries {
		if e.IsBare {
			continue
		}
		name := filepath.Base(e.Path)
		wt := model.Worktree{
			Name:   name,
			Path:   e.Path,
			Branch: e.Branch,
			IsRoot: name == worktreelifecycle.RootBranch,
			State:  model.StateReady,
			Ports:  a.ports.PortsOf(name),
		}
		if dirty, err := a.git.HasUncommittedChanges(e.Path); err == nil {
			if dirty {
				wt.GitStatus = model.GitStatusUncommitted
			} else {
				wt.GitStatus = model.GitStatusClean
			}
		} else {
			wt.GitStatus = model.GitStatusUnknown
		}
		if containers, err := a.lifecycle.ContainersForWorktree(ctx, name); err == nil {
			for _, c := range containers {
				wt.Containers = append(wt.Containers, model.ContainerStatus{Service: c.ServiceName, Name: c.ContainerName, State: c.Status})
			}
		}
		worktrees = append(worktrees, wt)
	}

	sort.Slice(worktrees, func(i, j int) bool { return worktrees[i].Name < worktrees[j].Name })

	printListResult(worktrees)
	return nil
}

func printListResult(worktrees []model.Worktree) {
	if IsJSONOutput() {
		printListResultJSON(worktrees)
	} else {
		printListResultText(worktrees)
	}
}

func printListResultJSON(worktrees []model.Worktree) {
	type resultJSON struct {
		Worktrees []model.Worktree `json:"worktrees"`
	}
	result := resultJSON{Worktrees: worktrees}
	if result.Worktrees == nil {
		result.Worktrees = []model.Worktree{}
	}
	data, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(data))
}

// printListResultText outputs the worktree list as a human-readable text
// table with aligned columns:
//
//	NAME           BRANCH          STATUS        SERVICES  PORTS
//	feature-auth   feature/auth    clean         3         13000,15432,16379
//	bugfix-login   bugfix/login    uncommitted   1         -
func printListResultText(worktrees []model.Worktree) {
	if len(worktrees) == 0 {
		fmt.Println("No worktrees found.")
		return
	}

	fmt.Printf("%-20s %-20s %-12s %-10s %s\n", "NAME", "BRANCH", "STATUS", "SERVICES", "PORTS")

	for _, wt := range worktrees {
		fmt.Printf("%-20s %-20s %-12s %-10d %s\n",
			wt.Name, wt.Branch, string(wt.GitStatus), len(wt.Containers), FormatPortsList(wt.Ports))
	}
}

// FormatPortsList converts a worktree's port map into a comma-separated,
// numerically-sorted string of host ports. Returns "-" if no ports are
// allocated.
func FormatPortsList(ports map[string]int) string {
	if len(ports) == 0 {
		return "-"
	}

	nums := make([]int, 0, len(ports))
	for _, p := range ports {
		nums = append(nums, p)
	}
	sort.Ints(nums)

	strs := make([]string, 0, len(nums))
	for _, p := range nums {
		strs = append(strs, strconv.Itoa(p))
	}
	return strings.Join(strs, ",")
}
