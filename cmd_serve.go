package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"sfstory/publisher"
	"sfstory/server"
)

var serveFlags struct {
	addr    string
	publish bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Serve the run API:

  POST /api/runs                  {"topic": "..."} starts a run in the background
  GET  /api/runs/{id}             run status, result and warnings
  GET  /api/runs/{id}/outline     compiled outline as text
  GET  /api/runs/{id}/report.html HTML report

At most max_concurrent_stories runs execute at once; the rest queue.`,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serveFlags.addr, "addr", "", "Listen address (overrides config server_addr)")
	f.BoolVar(&serveFlags.publish, "publish", false, "Write finished runs to the config output_dir")
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}

	var pub *publisher.Publisher
	if serveFlags.publish {
		sink, err := publisher.NewDirSink(a.cfg.OutputDir)
		if err != nil {
			return err
		}
		if pub, err = publisher.New(sink, rootFlags.html); err != nil {
			return err
		}
	}
	srv, err := server.New(a.pipeline, pub, a.cfg.MaxConcurrentStories)
	if err != nil {
		return err
	}
	defer srv.Close()

	listen := a.cfg.ServerAddr
	if serveFlags.addr != "" {
		listen = serveFlags.addr
	}
	if listen == "" {
		listen = ":8080"
	}
	httpSrv := &http.Server{Addr: listen, Handler: srv.Routes(), ReadHeaderTimeout: 10 * time.Second}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdown)
	}()

	a.logger.Info("starting web server", "addr", listen)
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
