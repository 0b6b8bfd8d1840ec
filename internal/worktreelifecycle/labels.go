package worktreelifecycle

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vibetrees/controlplane/internal/model"
)

// Label key constants namespace every piece of worktree metadata this
// package writes onto containers, so it can be told apart from labels
// Compose or another tool sets on the same container.
const (
	labelPrefix           = "vibetrees."
	labelManagedBy        = labelPrefix + "managed-by"
	labelName             = labelPrefix + "name"
	labelBranch           = labelPrefix + "branch"
	labelWorktreePath     = labelPrefix + "worktree-path"
	labelSourceRepo       = labelPrefix + "source-repo"
	labelOriginalPortPrefix = labelPrefix + "port."
	labelCreatedAt        = labelPrefix + "created-at"

	managedByValue = "controlplane"
)

// buildLabels encodes a worktree's identity as the Docker label set applied
// to every container it owns, so R.syncFrom and W-Create's idempotency
// probe can reconstruct it purely from container inspection when the port
// registry's on-disk state and the container runtime have drifted apart.
func buildLabels(wt model.WorktreeLabels) map[string]string {
	labels := map[string]string{
		labelManagedBy:    managedByValue,
		labelName:         wt.Name,
		labelBranch:       wt.Branch,
		labelWorktreePath: wt.WorktreePath,
		labelSourceRepo:   wt.SourceRepo,
		labelCreatedAt:    wt.CreatedAt,
	}
	for key, port := range wt.Ports {
		labels[buildPortLabel(key)] = strconv.Itoa(port)
	}
	return labels
}

// parseLabels is the inverse of buildLabels. Missing required labels (the
// container predates this bookkeeping, or belongs to another tool) yield
// an error rather than a partially-populated result.
func parseLabels(labels map[string]string) (model.WorktreeLabels, error) {
	if labels[labelManagedBy] != managedByValue {
		return model.WorktreeLabels{}, model.NewError(model.KindNotFound, "container is not managed by controlplane")
	}
	required := []string{labelName, labelBranch, labelWorktreePath, labelSourceRepo, labelCreatedAt}
	var missing []string
	for _, k := range required {
		if _, ok := labels[k]; !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return model.WorktreeLabels{}, model.NewError(model.KindState, "missing required labels: "+strings.Join(missing, ", "))
	}

	ports := map[string]int{}
	for k, v := range labels {
		key, ok := strings.CutPrefix(k, labelOriginalPortPrefix)
		if !ok {
			continue
		}
		port, err := strconv.Atoi(v)
		if err != nil {
			continue
		}
		ports[key] = port
	}

	return model.WorktreeLabels{
		Name:         labels[labelName],
		Branch:       labels[labelBranch],
		WorktreePath: labels[labelWorktreePath],
		SourceRepo:   labels[labelSourceRepo],
		CreatedAt:    labels[labelCreatedAt],
		Ports:        ports,
	}, nil
}

func buildPortLabel(serviceKey string) string {
	return fmt.Sprintf("%s%s", labelOriginalPortPrefix, serviceKey)
}

// filterArgs returns the Docker API label filter that selects exactly the
// containers this package manages.
func filterArgs() map[string]string {
	return map[string]string{labelManagedBy: managedByValue}
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}
