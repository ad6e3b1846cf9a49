package auth

import (
	"context"
	"errors"
	"strings"

	"connectrpc.com/connect"
	"github.com/google/uuid"
)

const bearerPrefix = "Bearer "

type hostIDKey struct{}

// WithHostID returns a context carrying the authenticated host.
func WithHostID(ctx context.Context, hostID uuid.UUID) context.Context {
	return context.WithValue(ctx, hostIDKey{}, hostID)
}

// HostIDFromContext returns the host set by the interceptor.
func HostIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(hostIDKey{}).(uuid.UUID)
	return id, ok
}

// NewHostInterceptor rejects unary calls without a valid host bearer token
// and stores the token's host id in the request context.
func NewHostInterceptor(s *JWTService) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if req.Spec().IsClient {
				return next(ctx, req)
			}
			header := req.Header().Get("Authorization")
			if !strings.HasPrefix(header, bearerPrefix) {
				return nil, connect.NewError(connect.CodeUnauthenticated, errors.New("missing bearer token"))
			}
			hostID, err := s.Verify(strings.TrimPrefix(header, bearerPrefix))
			if err != nil {
				return nil, connect.NewError(connect.CodeUnauthenticated, err)
			}
			return next(WithHostID(ctx, hostID), req)
		}
	}
}

// NewTokenInterceptor attaches token to every outgoing client call.
func NewTokenInterceptor(token string) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if req.Spec().IsClient {
				req.Header().Set("Authorization", bearerPrefix+token)
			}
			return next(ctx, req)
		}
	}
}
