// Package observability provides observability utilities
package observability

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

//nolint:gochecknoglobals // Singleton pattern for metrics server
var (
	metricsServer *http.Server
	metricsOnce   sync.Once
)

// StartMetricsServer starts the Prometheus metrics listener. At most one
// listener runs per process; repeat calls are no-ops.
func StartMetricsServer(log logrus.FieldLogger, addr string) {
	metricsOnce.Do(func() {
		mlog := log.WithField("component", "metrics")

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())

		metricsServer = &http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 15 * time.Second,
			Handler:           mux,
		}

		go func() {
			mlog.WithField("addr", addr).Info("Starting metrics server")

			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				mlog.WithError(err).Error("Metrics server failed")
			}
		}()
	})
}

// StopMetricsServer gracefully shuts down the metrics server if it is running
func StopMetricsServer(ctx context.Context) error {
	if metricsServer == nil {
		return nil
	}

	return metricsServer.Shutdown(ctx)
}
