package handler

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/rl1809/stock-sync/internal/logging"
)

// StockServiceName is the health service name reported for the stock backends.
const StockServiceName = "stock.StockService"

// GRPCHandler serves the standard gRPC health protocol, tracking the
// reachability of the store of record and the cache.
type GRPCHandler struct {
	health *health.Server
	ping   func(context.Context) error
}

func NewGRPCHandler(ping func(context.Context) error) *GRPCHandler {
	h := &GRPCHandler{health: health.NewServer(), ping: ping}
	h.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
	return h
}

// Register attaches the health and reflection services to s.
func (h *GRPCHandler) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.health)
	reflection.Register(s)
}

// Probe pings the backends once and publishes the result.
func (h *GRPCHandler) Probe(ctx context.Context) error {
	err := h.ping(ctx)
	if err != nil {
		h.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
		return err
	}
	h.setStatus(healthpb.HealthCheckResponse_SERVING)
	return nil
}

// Watch probes every interval until ctx is done, then marks the server as
// shutting down.
func (h *GRPCHandler) Watch(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := h.Probe(ctx); err != nil && ctx.Err() == nil {
			logging.FromContext(ctx).WithError(err).Warn("backend probe failed")
		}

		select {
		case <-ctx.Done():
			h.health.Shutdown()
			return nil
		case <-ticker.C:
		}
	}
}

func (h *GRPCHandler) setStatus(status healthpb.HealthCheckResponse_ServingStatus) {
	h.health.SetServingStatus("", status)
	h.health.SetServingStatus(StockServiceName, status)
}
