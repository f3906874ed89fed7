// Package server wires the cache manager, populators and HTTP surfaces into
// one runnable lookupd process.
package server

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	//nolint:gosec // only exposed if pprofAddr config is set
	_ "net/http/pprof"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/lookupd/lookupd/pkg/api"
	"github.com/lookupd/lookupd/pkg/manager"
	"github.com/lookupd/lookupd/pkg/namespace"
	"github.com/lookupd/lookupd/pkg/observability"
	"github.com/lookupd/lookupd/pkg/populator"
	"github.com/lookupd/lookupd/pkg/populator/redissource"
	"github.com/lookupd/lookupd/pkg/populator/sqlsource"
	"github.com/lookupd/lookupd/pkg/populator/urisource"
	"github.com/lookupd/lookupd/pkg/store"
)

// Server represents the main lookupd server
type Server struct {
	log    logrus.FieldLogger
	config *Config

	manager manager.Service
	api     api.Service

	sqlPopulator   *sqlsource.Populator
	redisPopulator *redissource.Populator

	pprofServer  *http.Server
	healthServer *http.Server
}

// NewServer creates a new server instance
func NewServer(log logrus.FieldLogger, config *Config) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	sqlPopulator := sqlsource.New(log)
	redisPopulator := redissource.New(log)

	registry := populator.NewRegistry()
	registry.Register(namespace.SourceKindPostgres, sqlPopulator)
	registry.Register(namespace.SourceKindRedis, redisPopulator)
	registry.Register(namespace.SourceKindURI, urisource.New(log))

	mgr, err := manager.NewService(log, &config.Manager, store.New(), registry)
	if err != nil {
		return nil, err
	}

	return &Server{
		log:            log.WithField("service", "server"),
		config:         config,
		manager:        mgr,
		api:            api.NewService(&config.API, mgr, log),
		sqlPopulator:   sqlPopulator,
		redisPopulator: redisPopulator,
	}, nil
}

// Start starts the server and blocks until shutdown
func (s *Server) Start(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	observability.StartMetricsServer(s.log, s.config.MetricsAddr)

	if err := s.manager.Start(ctx); err != nil {
		return err
	}

	if err := s.api.Start(ctx); err != nil {
		return err
	}

	for i := range s.config.Namespaces {
		def := s.config.Namespaces[i]
		if _, err := s.manager.Schedule(&def); err != nil {
			return err
		}
	}

	s.log.WithField("namespaces", len(s.config.Namespaces)).Info("Server started")

	g, ctx := errgroup.WithContext(ctx)

	if s.config.PProfAddr != nil {
		g.Go(func() error {
			if err := s.startPProf(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}

			<-ctx.Done()

			return nil
		})
	}

	if s.config.HealthCheckAddr != nil {
		g.Go(func() error {
			if err := s.startHealthCheck(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}

			<-ctx.Done()

			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()

		// Use a fresh context for cleanup since the current one is canceled
		return s.stopServers(context.Background())
	})

	return g.Wait()
}

func (s *Server) stopServers(ctx context.Context) error {
	cleanupCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	s.log.Info("Starting graceful shutdown...")

	if err := s.api.Stop(); err != nil {
		s.log.WithError(err).Error("failed to stop API server")
	}

	// Cancel and await every namespace task before releasing connectors
	stopErr := s.manager.Stop()
	if stopErr != nil {
		s.log.WithError(stopErr).Error("failed to stop cache manager")
	}

	if err := s.sqlPopulator.Close(); err != nil {
		s.log.WithError(err).Error("failed to close SQL connections")
	}

	if err := s.redisPopulator.Close(); err != nil {
		s.log.WithError(err).Error("failed to close redis clients")
	}

	if s.pprofServer != nil {
		if err := s.pprofServer.Shutdown(cleanupCtx); err != nil {
			s.log.WithError(err).Error("failed to shutdown pprof server")
		}
	}

	if s.healthServer != nil {
		if err := s.healthServer.Shutdown(cleanupCtx); err != nil {
			s.log.WithError(err).Error("failed to shutdown health server")
		}
	}

	if err := observability.StopMetricsServer(cleanupCtx); err != nil {
		s.log.WithError(err).Error("failed to stop metrics server")
	}

	if stopErr != nil {
		// A leaked namespace task is fatal, surface it to the caller
		return stopErr
	}

	s.log.Info("Server stopped gracefully")

	return nil
}

func (s *Server) startPProf() error {
	s.log.WithField("addr", *s.config.PProfAddr).Info("Starting pprof server")

	s.pprofServer = &http.Server{
		Addr:              *s.config.PProfAddr,
		ReadHeaderTimeout: 120 * time.Second,
	}

	return s.pprofServer.ListenAndServe()
}

func (s *Server) startHealthCheck() error {
	s.log.WithField("addr", *s.config.HealthCheckAddr).Info("Starting healthcheck server")

	s.healthServer = &http.Server{
		Addr:              *s.config.HealthCheckAddr,
		ReadHeaderTimeout: 120 * time.Second,
	}

	s.healthServer.Handler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return s.healthServer.ListenAndServe()
}
