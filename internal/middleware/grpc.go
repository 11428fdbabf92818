// Package middleware holds the gRPC interceptors and HTTP middleware wrapped
// around the orchestration transport.
package middleware

import (
	"context"
	"runtime/debug"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// UnaryLogging logs every RPC with its outcome code and duration
func UnaryLogging(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("duration", time.Since(start)),
		}
		switch status.Code(err) {
		case codes.OK:
			logger.Info("RPC completed", fields...)
		case codes.Internal, codes.Unknown, codes.DataLoss:
			logger.Error("RPC failed", append(fields, zap.Error(err))...)
		default:
			logger.Warn("RPC rejected", append(fields, zap.Error(err))...)
		}
		return resp, err
	}
}

// UnaryRecovery turns a handler panic into codes.Internal
func UnaryRecovery(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp interface{}, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("Panic recovered in RPC handler",
					zap.String("method", info.FullMethod),
					zap.Any("panic", r),
					zap.String("stack", string(debug.Stack())),
				)
				err = status.Error(codes.Internal, "internal server error")
			}
		}()
		return handler(ctx, req)
	}
}

// UnaryDeadline applies budget to calls that arrive without a deadline.
// A caller deadline is always respected.
func UnaryDeadline(budget time.Duration) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if _, ok := ctx.Deadline(); ok || budget <= 0 {
			return handler(ctx, req)
		}
		ctx, cancel := context.WithTimeout(ctx, budget)
		defer cancel()
		return handler(ctx, req)
	}
}
