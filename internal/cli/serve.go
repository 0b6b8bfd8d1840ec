// Package cli — serve.go implements the "serve" command: the long-running
// process that exposes the control API/WebSocket surface (internal/apiserver)
// over HTTP, backed by the same core components every other subcommand
// drives directly.
package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vibetrees/controlplane/internal/apiserver"
	"github.com/vibetrees/controlplane/internal/metrics"
	"github.com/vibetrees/controlplane/internal/model"
	"github.com/vibetrees/controlplane/internal/vtlog"
)

// NewServeCommand creates the "serve" cobra command.
func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the control API and WebSocket server",
		Long: `Start the HTTP control API and WebSocket server that the web UI and
external tooling drive, backed by the same Lifecycle/Git/Sync/Ports/
Compose/Changes/Bus/PTY/Logs components the CLI subcommands use directly.

Examples:
  vibetrees serve
  vibetrees --config /etc/vibetrees.yaml serve`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}

	return cmd
}

func runServe(ctx context.Context) error {
	a, err := bootstrap()
	if err != nil {
		return err
	}

	vtlog.Init(vtlog.Config{
		Level: vtlog.Level(a.cfg.Log.Level),
		JSON:  a.cfg.Log.JSON,
	})
	log := vtlog.WithComponent("serve")

	collector := metrics.NewCollector(a.ports, a.pty, a.bus, a.diag)
	collector.Start()
	defer collector.Stop()

	srv := &apiserver.Server{
		Lifecycle:      a.lifecycle,
		Git:            a.git,
		Sync:           a.sync,
		Ports:          a.ports,
		Compose:        a.compose,
		Changes:        a.changes,
		Bus:            a.bus,
		PTY:            a.pty,
		Logs:           a.logs,
		Sanitizer:      a.sanitizer,
		SourceRepo:     a.cfg.Repo.SourcePath,
		WorktreesBase:  a.lifecycle.WorktreesBase,
		AllowedOrigins: a.cfg.API.AllowedOrigins,
	}

	httpServer := &http.Server{
		Addr:    a.cfg.API.Addr,
		Handler: srv.Router(),
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case err := <-errCh:
		return model.WrapError(model.KindInternal, "control API server failed", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(a.cfg.API.ShutdownGrace))
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return model.WrapError(model.KindInternal, "control API server shutdown", err)
	}
	return nil
}
