package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/deepresearch/internal/api"
	"github.com/danielpatrickdp/deepresearch/internal/logging"
)

var serveFlags struct {
	addr string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the research API over HTTP",
	Long: `Starts the HTTP API:

  GET  /             health check
  POST /do-research  {"topic": "..."} -> report or {"detail": "..."}
  GET  /metrics      Prometheus metrics`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveFlags.addr, "addr", "", "Listen address (overrides http.addr)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	eng, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	addr := cfg.HTTP.Addr
	if serveFlags.addr != "" {
		addr = serveFlags.addr
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.NewServer(eng.orch, eng.metrics.Handler()).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logging.New("serve").Info("listening", "addr", addr, "source", cfg.Source.Kind)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Research.OverallTimeout+5*time.Second)
	defer cancel()
	logging.New("serve").Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}
