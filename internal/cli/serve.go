package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/local/shasdl/internal/dispatcher"
	"github.com/local/shasdl/internal/metrics"
	"github.com/local/shasdl/internal/orchestrator"
	"github.com/local/shasdl/internal/queue"
	"github.com/local/shasdl/internal/statuscheck"
	"github.com/local/shasdl/internal/storage"
	"github.com/local/shasdl/internal/store"
)

func newServeCmd(a *app) *cobra.Command {
	var apiOnly bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP job API and the queue workers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context(), !apiOnly)
		},
	}
	f := cmd.Flags()
	f.StringVar(&a.cfg.Server.Port, "port", a.cfg.Server.Port, "HTTP port")
	f.IntVar(&a.cfg.Worker.Concurrency, "workers", a.cfg.Worker.Concurrency, "jobs processed in parallel")
	f.BoolVar(&apiOnly, "api-only", false, "serve the API without consuming the queue")
	return cmd
}

// serve runs until ctx is cancelled, then drains the HTTP server and the workers.
func (a *app) serve(ctx context.Context, runWorker bool) error {
	metrics.Init()

	rq, err := queue.NewRedisQueue(a.cfg.Queue.RedisURL, a.cfg.Queue.Stream, a.cfg.Queue.Group)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	defer rq.Close()
	rs := store.NewWithClient(rq.Client(), a.cfg.Queue.StatusTTL)

	pipe, src, err := a.pipeline(ctx, rq.Client())
	if err != nil {
		return err
	}
	orch := orchestrator.New(orchestrator.Dependencies{
		Queue:              rq,
		Status:             rs,
		Pipeline:           pipe,
		StopOnFirstFailure: a.cfg.Fetch.StopOnFirstFailure,
		PollInterval:       a.cfg.Worker.CancelPoll,
	})
	mux := http.NewServeMux()
	orch.RegisterRoutes(mux)

	ready := statuscheck.New(5*time.Second).
		Add("redis", statuscheck.Redis(rq)).
		Add("output_dir", statuscheck.WritableDir(a.cfg.Fetch.OutputDir))
	if p, ok := src.(storage.Pinger); ok {
		ready.Add("source_"+src.Name(), p.Ping)
	}
	mux.Handle("GET /ready", ready.Handler())

	var worker *dispatcher.Worker
	if runWorker {
		host, _ := os.Hostname()
		worker = dispatcher.New(dispatcher.Config{
			Concurrency:  a.cfg.Worker.Concurrency,
			Consumer:     fmt.Sprintf("%s-%d", host, os.Getpid()),
			BlockTimeout: a.cfg.Queue.PollInterval,
		}, rq, orch)
		worker.Start()
	}

	srv := &http.Server{Addr: ":" + a.cfg.Server.Port, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Bool("worker", runWorker).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errc:
		log.Error().Err(serveErr).Msg("http server error")
	}

	sctx, cancel := context.WithTimeout(context.Background(), a.cfg.Worker.ShutdownTimeout)
	defer cancel()
	_ = srv.Shutdown(sctx)
	if worker != nil {
		if err := worker.Stop(sctx); err != nil {
			log.Warn().Err(err).Msg("workers did not finish before the shutdown timeout")
		}
	}
	log.Info().Msg("shutdown complete")
	return serveErr
}
