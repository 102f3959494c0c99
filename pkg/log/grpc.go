package log

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

const metadataKeyRequestID = "x-request-id"

// UnaryServerInterceptor returns a gRPC unary server interceptor that
// creates a child logger with request metadata and injects it into context.
func UnaryServerInterceptor(logger zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		start := time.Now()

		child := callLogger(ctx, logger, info.FullMethod)
		resp, err := handler(WithLogger(ctx, child), req)

		completed(child, err, start).Msg("unary call completed")
		return resp, err
	}
}

// StreamServerInterceptor returns a gRPC stream server interceptor that
// creates a child logger with request metadata and injects it into context.
func StreamServerInterceptor(logger zerolog.Logger) grpc.StreamServerInterceptor {
	return func(
		srv interface{},
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		start := time.Now()

		ctx := ss.Context()
		child := callLogger(ctx, logger, info.FullMethod)

		err := handler(srv, &wrappedStream{
			ServerStream: ss,
			ctx:          WithLogger(ctx, child),
		})

		completed(child, err, start).Msg("stream call completed")
		return err
	}
}

// wrappedStream overrides Context() to inject the child logger.
type wrappedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (w *wrappedStream) Context() context.Context {
	return w.ctx
}

func callLogger(ctx context.Context, logger zerolog.Logger, method string) zerolog.Logger {
	lc := logger.With().
		Str(FieldRequestID, requestIDFromMD(ctx)).
		Str(FieldGRPCMethod, method)
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		lc = lc.Str(FieldClientIP, p.Addr.String())
	}
	return lc.Logger()
}

// completed picks the level from the status code: client-side codes are
// warnings, server-side failures are errors.
func completed(l zerolog.Logger, err error, start time.Time) *zerolog.Event {
	code := status.Code(err)

	var evt *zerolog.Event
	switch code {
	case codes.OK:
		evt = l.Debug()
	case codes.Internal, codes.Unknown, codes.DataLoss, codes.Unavailable:
		evt = l.Error().Err(err)
	default:
		evt = l.Warn().Err(err)
	}

	return evt.
		Str(FieldGRPCCode, code.String()).
		Float64(FieldLatency, float64(time.Since(start).Milliseconds()))
}

func requestIDFromMD(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		vals := md.Get(metadataKeyRequestID)
		if len(vals) > 0 && vals[0] != "" {
			return vals[0]
		}
	}
	return uuid.New().String()
}
