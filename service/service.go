// Package service exposes the health and prometheus endpoints of a harness
// process while a run is in progress.
package service

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"

	"github.com/ethereum-optimism/infra/op-harness/metrics"
	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
)

const (
	HealthzPath = "/healthz"
	MetricsPath = "/metrics"
)

// Config configures the Service
type Config struct {
	Log  log.Logger
	Host string
	Port int
}

// Addr returns the listen address
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

type Service struct {
	cfg    Config
	server *http.Server
	wg     sync.WaitGroup
}

func New(cfg Config) *Service {
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	return &Service{cfg: cfg}
}

// Handler serves /healthz and /metrics
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(HealthzPath, s.handleHealthz)
	mux.Handle(MetricsPath, promhttp.Handler())
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
	})
	return c.Handler(mux)
}

// Start listens in the background. The listen error, if any, is returned
// right away.
func (s *Service) Start(ctx context.Context) error {
	addr := s.cfg.Addr()
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		metrics.RecordErrorDetails("service_listen", err)
		return err
	}
	s.server = &http.Server{
		Handler: s.Handler(),
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	s.cfg.Log.Info("service starting", "addr", ln.Addr().String())
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.cfg.Log.Error("error serving metrics", "err", err)
			metrics.RecordErrorDetails("service_serve", err)
		}
	}()
	return nil
}

// Shutdown stops the server and waits for it to exit
func (s *Service) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.cfg.Log.Info("service shutting down")
	err := s.server.Shutdown(ctx)
	s.wg.Wait()
	s.cfg.Log.Info("service stopped")
	return err
}

func (s *Service) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.cfg.Log.Debug("Received health check request", "path", r.URL.Path)
	w.Write([]byte("OK")) //nolint:errcheck
}
