package inference

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/joseph-ayodele/hidden-states/internal/common"
)

// Probe asks the model server's gRPC health service whether it is SERVING.
func Probe(ctx context.Context, addr string, timeout time.Duration, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	logger.Debug("inference.health.probe", "addr", addr)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return common.UnavailableErrorf("dial %s: %v", addr, err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			logger.Warn("inference.health.close_error", "error", cerr)
		}
	}()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		logger.Error("inference.health.failed", "addr", addr, "error", err)
		return err
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		logger.Error("inference.health.not_serving", "addr", addr, "status", resp.GetStatus().String())
		return common.UnavailableErrorf("model server %s is %s", addr, resp.GetStatus())
	}
	logger.Debug("inference.health.ok", "addr", addr)
	return nil
}
