package health_test

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/cory-johannsen/palworld-lens/internal/health"
	"github.com/cory-johannsen/palworld-lens/internal/loader"
)

func startServer(t *testing.T, r *health.Reporter) healthpb.HealthClient {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := grpc.NewServer()
	r.Register(srv)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.GracefulStop)

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return healthpb.NewHealthClient(conn)
}

func check(t *testing.T, c healthpb.HealthClient, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := c.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.GetStatus()
}

func TestReporter_FollowsLoaderTransitions(t *testing.T) {
	r := health.NewReporter(zaptest.NewLogger(t))
	c := startServer(t, r)

	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, c, ""))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, c, health.Service))

	steps := []struct {
		to   loader.State
		want healthpb.HealthCheckResponse_ServingStatus
	}{
		{loader.StateLoading, healthpb.HealthCheckResponse_NOT_SERVING},
		{loader.StateLoaded, healthpb.HealthCheckResponse_SERVING},
		{loader.StateLoading, healthpb.HealthCheckResponse_SERVING},
		{loader.StateFailed, healthpb.HealthCheckResponse_NOT_SERVING},
		{loader.StateLoaded, healthpb.HealthCheckResponse_SERVING},
	}
	for i, step := range steps {
		r.Observe(loader.Event{To: step.to, Seq: uint64(i + 1), Err: errors.New("x")})
		assert.Equal(t, step.want, check(t, c, health.Service), "step %d (%s)", i, step.to)
	}

	r.Shutdown()
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, c, health.Service))
}

func TestWaitForServing(t *testing.T) {
	r := health.NewReporter(zaptest.NewLogger(t))
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := grpc.NewServer()
	r.Register(srv)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.GracefulStop)

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	short, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, health.WaitForServing(short, conn, health.Service), context.DeadlineExceeded)

	go func() {
		time.Sleep(150 * time.Millisecond)
		r.Observe(loader.Event{To: loader.StateLoaded, Seq: 1})
	}()
	ctx, cancel2 := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel2()
	require.NoError(t, health.WaitForServing(ctx, conn, health.Service))
}
