// Package dataapi implements the gRPC Data Plane for variable evaluation.
// It handles the read path used by dashboards and client SDKs.
package dataapi

import (
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"

	"github.com/rafaeljc/tally/internal/config"
	"github.com/rafaeljc/tally/internal/graph"
	"github.com/rafaeljc/tally/internal/validation"
)

// API implements DataPlaneServer on top of the variable graph.
type API struct {
	logger *slog.Logger
	graph  *graph.Graph
}

var _ DataPlaneServer = (*API)(nil)

// NewAPI creates a new Data Plane gRPC API instance.
func NewAPI(logger *slog.Logger, g *graph.Graph) *API {
	validation.AssertNotNil(logger, "logger")
	validation.AssertNotNil(g, "graph")

	return &API{logger: logger, graph: g}
}

// Register connects this implementation to the grpc.Server engine.
func (a *API) Register(s grpc.ServiceRegistrar) {
	RegisterDataPlaneServer(s, a)
}

// NewServer builds a gRPC server with the transport limits of cfg and the
// logging, metrics and panic recovery interceptors installed.
func NewServer(cfg *config.DataPlaneConfig, logger *slog.Logger) *grpc.Server {
	validation.AssertNotNil(cfg, "data plane config")
	validation.AssertNotNil(logger, "logger")

	return grpc.NewServer(
		grpc.MaxConcurrentStreams(cfg.MaxConcurrentStreams),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:             cfg.KeepaliveTime,
			Timeout:          cfg.KeepaliveTimeout,
			MaxConnectionAge: cfg.MaxConnectionAge,
		}),
		grpc.ChainUnaryInterceptor(
			RequestLoggerInterceptor(logger),
			ObservabilityInterceptor(),
			RecoveryInterceptor(),
		),
	)
}
