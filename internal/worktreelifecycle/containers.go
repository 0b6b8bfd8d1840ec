package worktreelifecycle

import (
	"context"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"

	"github.com/vibetrees/controlplane/internal/dockerclient"
	"github.com/vibetrees/controlplane/internal/model"
)

// ListManagedContainers queries the container runtime for every container
// this package's labels identify as belonging to a worktree, including
// stopped ones (W-Delete and the diagnostics runner both need to see a
// worktree whose containers exist but aren't running).
func (l *Lifecycle) ListManagedContainers(ctx context.Context) ([]model.ContainerInfo, error) {
	cli, err := dockerclient.New(l.Runtime)
	if err != nil {
		return nil, err
	}
	defer cli.Close()

	args := filters.NewArgs()
	for k, v := range filterArgs() {
		args.Add("label", k+"="+v)
	}

	containers, err := cli.ContainerList(ctx, container.ListOptions{All: true, Filters: args})
	if err != nil {
		return nil, model.WrapError(model.KindExternal, "failed to list containers", err)
	}

	result := make([]model.ContainerInfo, 0, len(containers))
	for _, c := range containers {
		name := ""
		if len(c.Names) > 0 {
			name = strings.TrimPrefix(c.Names[0], "/")
		}
		result = append(result, model.ContainerInfo{
			ContainerID:   c.ID,
			ContainerName: name,
			ServiceName:   c.Labels["com.docker.compose.service"],
			Status:        c.State,
			Labels:        c.Labels,
		})
	}
	return result, nil
}

// ContainersForWorktree filters ListManagedContainers down to one worktree
// by its vibetrees.name label.
func (l *Lifecycle) ContainersForWorktree(ctx context.Context, name string) ([]model.ContainerInfo, error) {
	all, err := l.ListManagedContainers(ctx)
	if err != nil {
		return nil, err
	}
	var out []model.ContainerInfo
	for _, c := range all {
		if c.Labels[labelName] == name {
			out = append(out, c)
		}
	}
	return out, nil
}

// findContainer locates the single running container for a (worktree,
// service) pair by compose project/service naming convention, used by
// W-DbCopy to identify source and target containers without needing them
// to already carry vibetrees labels (compose sets its own service/project
// labels regardless of ours).
func findContainer(ctx context.Context, cli *client.Client, project, service string) (string, bool, error) {
	args := filters.NewArgs(
		filters.Arg("label", "com.docker.compose.project="+project),
		filters.Arg("label", "com.docker.compose.service="+service),
	)
	containers, err := cli.ContainerList(ctx, container.ListOptions{All: true, Filters: args})
	if err != nil {
		return "", false, model.WrapError(model.KindExternal, "failed to locate compose container", err)
	}
	if len(containers) == 0 {
		return "", false, nil
	}
	return containers[0].ID, containers[0].State == "running", nil
}
