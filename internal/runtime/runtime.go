// Package runtime is the ambient shell-out boundary this control plane uses
// to talk to the container runtime CLI (docker or docker-compose-compatible)
// and any other external process a pipeline step needs to invoke. Every
// pipeline step, the log streamer, and the diagnostic runner go through
// here rather than calling os/exec directly, so retries, timeouts, and
// line-buffered streaming are implemented once.
package runtime

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	goruntime "runtime"
	"time"

	"github.com/vibetrees/controlplane/internal/model"
)

// defaultHealthTimeout bounds how long a runtime health probe can take.
const defaultHealthTimeout = 5 * time.Second

// Runtime locates and health-checks the container runtime CLI (docker,
// podman, or a compatible drop-in) on the host.
type Runtime struct {
	// binary is the executable name resolved against PATH (e.g. "docker").
	binary string
	// host is the daemon socket/pipe address this runtime was detected at,
	// exposed for diagnostics; empty when the runtime needs no explicit host
	// (e.g. it reads DOCKER_HOST itself).
	host string
}

// Detect locates the container runtime CLI and its daemon socket using the
// same priority order the teacher's Docker SDK client used for the Engine
// API: DOCKER_HOST if set, then platform-specific default socket paths.
// Detect does not itself verify the daemon responds — call HealthCheck for
// that.
func Detect() (*Runtime, error) {
	binary, err := exec.LookPath("docker")
	if err != nil {
		binary, err = exec.LookPath("podman")
		if err != nil {
			return nil, model.WrapError(model.KindExternal,
				"no container runtime CLI found on PATH (looked for docker, podman)", err)
		}
	}

	if host := os.Getenv("DOCKER_HOST"); host != "" {
		return &Runtime{binary: binary, host: host}, nil
	}

	host, err := detectHost()
	if err != nil {
		// Not fatal: the CLI itself may still know how to reach its daemon
		// (e.g. podman's rootless socket under XDG_RUNTIME_DIR) even when
		// our own probe misses it. HealthCheck is the real verifier.
		return &Runtime{binary: binary}, nil
	}
	return &Runtime{binary: binary, host: host}, nil
}

// detectHost probes platform-specific default daemon socket paths, mirroring
// the teacher's Docker socket autodetection: Linux and macOS check well-known
// Unix socket paths, Windows dials the named pipe.
func detectHost() (string, error) {
	switch goruntime.GOOS {
	case "linux":
		return detectUnixSocket([]string{"/var/run/docker.sock"})

	case "darwin":
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return detectUnixSocket([]string{"/var/run/docker.sock"})
		}
		return detectUnixSocket([]string{
			"/var/run/docker.sock",
			homeDir + "/.docker/run/docker.sock",
		})

	case "windows":
		pipePath := `//./pipe/docker_engine`
		conn, err := net.DialTimeout("pipe", pipePath, time.Second)
		if err != nil {
			return "", fmt.Errorf("docker named pipe not found at %s: %w", pipePath, err)
		}
		conn.Close()
		return "npipe://" + pipePath, nil

	default:
		return "", fmt.Errorf("unsupported platform: %s", goruntime.GOOS)
	}
}

func detectUnixSocket(paths []string) (string, error) {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return "unix://" + p, nil
		}
	}
	return "", fmt.Errorf("no runtime socket found at any of: %v", paths)
}

// Host returns the detected daemon address, or "" if none was found (the
// CLI is expected to know its own default in that case).
func (r *Runtime) Host() string { return r.host }

// Binary returns the resolved runtime CLI executable name.
func (r *Runtime) Binary() string { return r.binary }

// HealthCheck runs a cheap, fast subcommand ("docker version") to confirm
// the daemon is reachable and responsive, the CLI-shelling equivalent of the
// teacher's SDK-level Ping.
func (r *Runtime) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, defaultHealthTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.binary, "version", "--format", "{{.Server.Version}}")
	if r.host != "" {
		cmd.Env = append(os.Environ(), "DOCKER_HOST="+r.host)
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		return model.WrapError(model.KindExternal,
			fmt.Sprintf("container runtime is not responding — is %s running? (%s)", r.binary, string(out)), err)
	}
	return nil
}

// Options configures Run.
type Options struct {
	// Dir sets the command's working directory.
	Dir string
	// Timeout bounds the command's total runtime; zero means no bound
	// beyond ctx's own deadline.
	Timeout time.Duration
	// OnStdout, if set, is called once per line of stdout as the command
	// runs (line-buffered, not batched at exit) — used by the log streamer
	// and progress-reporting pipeline steps.
	OnStdout func(line string)
	// OnStderr is the stderr equivalent of OnStdout.
	OnStderr func(line string)
}

// Run executes the runtime CLI (docker/podman) with the given args,
// streaming stdout/stderr line-by-line to the supplied callbacks and
// returning the combined output kept for error reporting. Every compose
// invocation (`compose up`, `compose down`, `compose logs -f`) and `config`
// in this codebase goes through here rather than os/exec directly.
func (r *Runtime) Run(ctx context.Context, args []string, opts Options) error {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, r.binary, args...)
	cmd.Dir = opts.Dir
	if r.host != "" {
		cmd.Env = append(os.Environ(), "DOCKER_HOST="+r.host)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return model.WrapError(model.KindInternal, "failed to attach stdout pipe", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return model.WrapError(model.KindInternal, "failed to attach stderr pipe", err)
	}

	if err := cmd.Start(); err != nil {
		return model.WrapError(model.KindExternal, fmt.Sprintf("failed to start %s %v", r.binary, args), err)
	}

	done := make(chan struct{}, 2)
	go streamLines(stdout, opts.OnStdout, done)
	go streamLines(stderr, opts.OnStderr, done)
	<-done
	<-done

	if err := cmd.Wait(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return model.WrapError(model.KindTimeout, fmt.Sprintf("%s %v timed out", r.binary, args), err)
		}
		return model.WrapError(model.KindExternal, fmt.Sprintf("%s %v failed", r.binary, args), err)
	}
	return nil
}

// Output runs the runtime CLI and returns its combined stdout+stderr, for
// callers that just need a result value (e.g. `compose config`) rather than
// a live stream.
func (r *Runtime) Output(ctx context.Context, args []string, opts Options) (string, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, r.binary, args...)
	cmd.Dir = opts.Dir
	if r.host != "" {
		cmd.Env = append(os.Environ(), "DOCKER_HOST="+r.host)
	}
	raw, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return string(raw), model.WrapError(model.KindTimeout, fmt.Sprintf("%s %v timed out", r.binary, args), err)
		}
		return string(raw), model.WrapError(model.KindExternal, fmt.Sprintf("%s %v failed", r.binary, args), err)
	}
	return string(raw), nil
}

func streamLines(r io.Reader, onLine func(string), done chan<- struct{}) {
	defer func() { done <- struct{}{} }()
	if onLine == nil {
		io.Copy(io.Discard, r)
		return
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		onLine(scanner.Text())
	}
}
