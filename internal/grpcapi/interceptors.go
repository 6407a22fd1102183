package grpcapi

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/fluxfaas/fluxfaas/internal/domain"
	"github.com/fluxfaas/fluxfaas/internal/logging"
	"github.com/fluxfaas/fluxfaas/internal/observability"
)

// tracingInterceptor starts a server span per RPC when tracing is
// enabled, and marks it errored or OK based on the handler's outcome.
func tracingInterceptor(
	ctx context.Context,
	req interface{},
	info *grpc.UnaryServerInfo,
	handler grpc.UnaryHandler,
) (interface{}, error) {
	if !observability.Enabled() {
		return handler(ctx, req)
	}

	ctx, span := observability.StartServerSpan(ctx, info.FullMethod)
	defer span.End()

	resp, err := handler(ctx, req)
	if err != nil {
		observability.SetSpanError(span, err)
	} else {
		observability.SetSpanOK(span)
	}
	return resp, err
}

// loggingInterceptor logs every control-plane RPC's method, duration and
// outcome.
func loggingInterceptor(
	ctx context.Context,
	req interface{},
	info *grpc.UnaryServerInfo,
	handler grpc.UnaryHandler,
) (interface{}, error) {
	start := time.Now()

	resp, err := handler(ctx, req)

	duration := time.Since(start)
	if err != nil {
		logging.Op().Error("grpc request failed",
			"method", info.FullMethod,
			"duration", duration,
			"error", err,
		)
	} else {
		logging.Op().Info("grpc request completed",
			"method", info.FullMethod,
			"duration", duration,
		)
	}

	return resp, err
}

// errorHandlingInterceptor maps a *domain.FluxError's Kind onto the
// matching gRPC status code so callers get a real status instead of a
// bare codes.Unknown.
func errorHandlingInterceptor(
	ctx context.Context,
	req interface{},
	info *grpc.UnaryServerInfo,
	handler grpc.UnaryHandler,
) (interface{}, error) {
	resp, err := handler(ctx, req)
	if err == nil {
		return resp, nil
	}
	return nil, status.Error(codeForKind(domain.KindOf(err)), err.Error())
}

func codeForKind(kind domain.ErrorKind) codes.Code {
	switch kind {
	case domain.ErrNotFound:
		return codes.NotFound
	case domain.ErrAlreadyExists:
		return codes.AlreadyExists
	case domain.ErrValidationFailed:
		return codes.InvalidArgument
	case domain.ErrTimeout:
		return codes.DeadlineExceeded
	case domain.ErrResourceExceeded, domain.ErrConcurrencyLimit:
		return codes.ResourceExhausted
	case domain.ErrNoHealthyTargets:
		return codes.Unavailable
	case domain.ErrCompileFailed, domain.ErrToolchainMissing, domain.ErrChildCrashed:
		return codes.FailedPrecondition
	default:
		return codes.Internal
	}
}
