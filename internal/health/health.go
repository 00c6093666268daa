// Package health publishes the loader state through the standard gRPC health
// service.
package health

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/cory-johannsen/palworld-lens/internal/loader"
)

// Service is the health service name reported for the save viewer.
const Service = "palworld.lens"

// Reporter maps loader transitions onto serving statuses. Service starts
// NOT_SERVING, becomes SERVING when a pass loads and goes back to NOT_SERVING
// when a pass fails. The overall ("") status is SERVING while the process is
// up.
type Reporter struct {
	logger *zap.Logger
	server *grpchealth.Server
}

// NewReporter creates a Reporter with Service marked NOT_SERVING.
func NewReporter(logger *zap.Logger) *Reporter {
	srv := grpchealth.NewServer()
	srv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	srv.SetServingStatus(Service, healthpb.HealthCheckResponse_NOT_SERVING)
	return &Reporter{logger: logger, server: srv}
}

// Register installs the health service on s.
func (r *Reporter) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, r.server)
}

// Observe is a loader.OnTransition listener.
func (r *Reporter) Observe(ev loader.Event) {
	var status healthpb.HealthCheckResponse_ServingStatus
	switch ev.To {
	case loader.StateLoaded:
		status = healthpb.HealthCheckResponse_SERVING
	case loader.StateFailed:
		status = healthpb.HealthCheckResponse_NOT_SERVING
	default:
		return
	}
	r.server.SetServingStatus(Service, status)
	r.logger.Debug("health status changed", zap.String("status", status.String()), zap.Uint64("seq", ev.Seq))
}

// Shutdown marks every service NOT_SERVING and ignores later updates.
func (r *Reporter) Shutdown() {
	r.server.Shutdown()
}

// WaitForServing polls service on conn until it reports SERVING or ctx ends.
func WaitForServing(ctx context.Context, conn grpc.ClientConnInterface, service string) error {
	client := healthpb.NewHealthClient(conn)
	backoff := 100 * time.Millisecond
	for {
		callCtx, cancel := context.WithTimeout(ctx, time.Second)
		resp, err := client.Check(callCtx, &healthpb.HealthCheckRequest{Service: service})
		cancel()
		if err == nil && resp.GetStatus() == healthpb.HealthCheckResponse_SERVING {
			return nil
		}

		select {
		case <-ctx.Done():
			if err != nil {
				return fmt.Errorf("waiting for %q health: %w (last error: %v)", service, ctx.Err(), err)
			}
			return fmt.Errorf("waiting for %q health: %w (last status: %s)", service, ctx.Err(), resp.GetStatus())
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, time.Second)
	}
}
