package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	grpcService        = "trainingdesk.oracle.v1.Oracle"
	grpcCompleteMethod = "/" + grpcService + "/Complete"
)

var (
	errConnectionShutdown       = errors.New("connection shutdown")
	errConnectionStateUnchanged = errors.New("connection state did not change")
)

// GRPCConfig holds configuration for the sidecar client.
type GRPCConfig struct {
	Address          string
	ConnectTimeout   time.Duration
	KeepaliveTime    time.Duration
	KeepaliveTimeout time.Duration
}

// DefaultGRPCConfig returns default configuration.
func DefaultGRPCConfig() GRPCConfig {
	return GRPCConfig{
		Address:          "localhost:50051",
		ConnectTimeout:   5 * time.Second,
		KeepaliveTime:    2 * time.Minute,
		KeepaliveTimeout: 10 * time.Second,
	}
}

// GRPCClient reaches a model sidecar over gRPC. Requests and replies travel
// as google.protobuf.Struct so the sidecar needs no generated stubs.
type GRPCClient struct {
	conn   *grpc.ClientConn
	health healthpb.HealthClient
	addr   string
	logger *slog.Logger
}

// NewGRPCClient connects to the sidecar and waits until it is ready.
func NewGRPCClient(cfg GRPCConfig, logger *slog.Logger) (*GRPCClient, error) {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultGRPCConfig()
	if cfg.Address == "" {
		cfg.Address = def.Address
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	if cfg.KeepaliveTime <= 0 {
		cfg.KeepaliveTime = def.KeepaliveTime
	}
	if cfg.KeepaliveTimeout <= 0 {
		cfg.KeepaliveTimeout = def.KeepaliveTimeout
	}

	conn, err := grpc.NewClient(cfg.Address,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:    cfg.KeepaliveTime,
			Timeout: cfg.KeepaliveTimeout,
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("dial oracle at %s: %w", cfg.Address, err)
	}

	// Fail fast on a bad sidecar address.
	connectCtx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := waitForReady(connectCtx, conn); err != nil {
		if closeErr := conn.Close(); closeErr != nil {
			logger.Warn("failed to close gRPC connection after readiness failure", "error", closeErr)
		}
		return nil, fmt.Errorf("oracle at %s not ready: %w", cfg.Address, err)
	}

	logger.Info("Connected to oracle sidecar", "address", cfg.Address)
	return newGRPCClient(conn, cfg.Address, logger), nil
}

func newGRPCClient(conn *grpc.ClientConn, addr string, logger *slog.Logger) *GRPCClient {
	return &GRPCClient{
		conn:   conn,
		health: healthpb.NewHealthClient(conn),
		addr:   addr,
		logger: logger,
	}
}

func waitForReady(ctx context.Context, conn *grpc.ClientConn) error {
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Idle:
			conn.Connect()
		case connectivity.Shutdown:
			return errConnectionShutdown
		}

		if !conn.WaitForStateChange(ctx, state) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w from %s", errConnectionStateUnchanged, state)
		}
	}
}

// Complete sends the request to the sidecar's Complete method.
func (c *GRPCClient) Complete(ctx context.Context, req Request) (string, error) {
	in, err := requestStruct(req)
	if err != nil {
		return "", fmt.Errorf("encode oracle request: %w", err)
	}

	out := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, grpcCompleteMethod, in, out); err != nil {
		c.logger.Warn("oracle call failed", "purpose", req.Purpose, "code", status.Code(err).String())
		return "", classifyGRPCError(err)
	}

	fields := out.GetFields()
	if msg := fields["error"].GetStringValue(); msg != "" {
		return "", fmt.Errorf("oracle sidecar error: %s", msg)
	}
	return fields["text"].GetStringValue(), nil
}

// Health asks the sidecar's standard health service about the oracle.
func (c *GRPCClient) Health(ctx context.Context) error {
	resp, err := c.health.Check(ctx, &healthpb.HealthCheckRequest{Service: grpcService})
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("oracle sidecar status %s", resp.GetStatus())
	}
	return nil
}

// Close closes the gRPC connection.
func (c *GRPCClient) Close() {
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			c.logger.Warn("failed to close gRPC connection", "error", err)
		}
	}
}

func requestStruct(req Request) (*structpb.Struct, error) {
	turns := make([]any, 0, len(req.Context))
	for _, t := range req.Context {
		turns = append(turns, map[string]any{
			"role":    string(t.Role),
			"content": t.Content,
		})
	}
	return structpb.NewStruct(map[string]any{
		"purpose":     string(req.Purpose),
		"system":      req.System,
		"context":     turns,
		"user":        req.User,
		"temperature": float64(req.Temperature),
	})
}

func classifyGRPCError(err error) error {
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
		return fmt.Errorf("%w: %v", ErrTransient, err)
	case codes.Canceled:
		return context.Canceled
	default:
		return fmt.Errorf("oracle rpc: %w", err)
	}
}
