// Package dockerclient constructs the Docker Engine SDK client used for
// the handful of operations the container CLI cannot express (streaming a
// directory into/out of a running container for W-DbCopy, label-filtered
// container listing for diagnostics). Everything else — compose up/down,
// health checks, socket/host autodetection — goes through internal/runtime,
// which shells out to the docker/podman binary the way the teacher's CLI
// wrapper always did; this package exists only where the typed SDK buys
// something the CLI cannot.
package dockerclient

import (
	"github.com/docker/docker/client"

	"github.com/vibetrees/controlplane/internal/model"
	"github.com/vibetrees/controlplane/internal/runtime"
)

// New builds an SDK client pointed at the same daemon internal/runtime
// already detected, so the CLI-based and SDK-based paths never disagree
// about which engine they're talking to.
func New(rt *runtime.Runtime) (*client.Client, error) {
	opts := []client.Opt{client.WithAPIVersionNegotiation()}
	if host := rt.Host(); host != "" {
		opts = append(opts, client.WithHost(host))
	} else {
		opts = append(opts, client.FromEnv)
	}
	c, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, model.WrapError(model.KindExternal, "failed to construct Docker SDK client", err)
	}
	return c, nil
}
