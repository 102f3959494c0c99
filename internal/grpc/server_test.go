package grpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/weiawesome/wes-io-live/chat-core/pkg/log"
)

func Test_Server_reports_serving_until_shutdown(t *testing.T) {
	// Given
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := Serve(lis, log.Nop())

	conn, err := grpc.Dial(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()
	client := healthpb.NewHealthClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// When
	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})

	// Then
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())

	srv.Shutdown()
	_, err = client.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	assert.Error(t, err)
}
