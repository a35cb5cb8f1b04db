// Package server is the hub's operational HTTP surface: health, metrics, the
// company listing and the OAuth connect flow.
package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-integration-hub/drive"
	"github.com/jrsteele09/go-integration-hub/governor"
	"github.com/jrsteele09/go-integration-hub/internal/config"
	"github.com/jrsteele09/go-integration-hub/sessions"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config is the configuration the server reads.
type Config interface {
	config.EnvConfig
	config.CorsConfig
	config.SecurityConfig
}

// Services are the components the handlers call. Connector and Drive are
// optional; their routes answer 503 when unset.
type Services struct {
	Governor  *governor.Governor
	Registry  *sessions.Registry
	Connector *sessions.Connector
	Drive     *drive.Service
}

type Server struct {
	env      string // Environment (e.g., "DEV", "PROD")
	mux      *http.ServeMux
	handler  http.Handler
	routes   []string
	config   Config
	services Services
	metrics  *prometheus.Registry
	logger   zerolog.Logger
}

func New(cfg Config, services Services) (*Server, error) {
	if services.Governor == nil {
		return nil, errors.New("[Server New] governor is required")
	}
	if services.Registry == nil {
		return nil, errors.New("[Server New] session registry is required")
	}

	s := &Server{
		env:      cfg.GetEnv(),
		mux:      http.NewServeMux(),
		config:   cfg,
		services: services,
		metrics:  prometheus.NewRegistry(),
		logger:   log.Logger,
	}

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hub_http_requests_total",
		Help: "HTTP requests served, by status code and method",
	}, []string{"code", "method"})

	for _, c := range []prometheus.Collector{
		services.Governor,
		requests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := s.metrics.Register(c); err != nil {
			return nil, fmt.Errorf("[Server New] registering metrics: %w", err)
		}
	}

	s.initRoutes()
	s.handler = instrument(requests, s.mux)
	s.logRoutes()
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		method, path, found := strings.Cut(route, " ")
		if !found {
			method, path = "", route
		}
		s.logger.Debug().Str("method", method).Str("path", path).Msg("route registered")
	}
}
