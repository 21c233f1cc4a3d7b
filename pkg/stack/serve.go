package stack

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Run serves s's metrics on metricsAddr and blocks until ctx is
// canceled, then shuts the metrics server down and stops the stack
// (spec §9's "Treat each as a named long-lived resource with explicit
// init/teardown" applied to the process as a whole, grounded on
// runZeroInc-sockstats's promhttp.Handler wiring). A worker group runs
// the HTTP server and the shutdown watcher concurrently so a
// metrics-server fault surfaces through the same error path as a
// canceled context.
func (s *Stack) Run(ctx context.Context, metricsAddr string) error {
	reg := prometheus.NewRegistry()
	s.Metrics.MustRegister(reg)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: metricsAddr, Handler: mux}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		s.log.Info("shutting down", zap.Error(ctx.Err()))
		return srv.Shutdown(context.Background())
	})

	err := g.Wait()
	s.Close()
	return err
}
