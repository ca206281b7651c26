package authz

import (
	"context"
	"errors"
	"log/slog"

	"gqlpipeline/internal/logging"
	"gqlpipeline/internal/observability"
)

// ErrUnauthenticated rejects a subscription connection that carries no
// authorization token while global authentication is mandatory. It is the
// only authentication failure in the pipeline that is fatal rather than
// silently degrading.
var ErrUnauthenticated = errors.New("authz: unauthenticated request")

// connectionTokenParam is the connection parameter subscriptions
// authenticate from.
const connectionTokenParam = "authorization"

// Request is the mutable per-operation record the resolver reads claims
// from and writes resolved claims back onto.
type Request interface {
	// AuthClaims returns previously resolved claims, when present.
	AuthClaims() (map[string]any, bool)
	// SetAuthClaims records resolved claims for sibling resolvers.
	SetAuthClaims(claims map[string]any)
	// BearerToken returns the raw token supplied with the request, or "".
	BearerToken() string
}

// Resolver turns request state into an authorization Context.
type Resolver struct {
	decoder     Decoder
	claimFields map[string]string
	logger      *logging.Logger
	metrics     *observability.PipelineMetrics
}

// ResolverConfig controls authorization resolution.
type ResolverConfig struct {
	// Decoder verifies and decodes tokens. Nil means authentication is not
	// enforced: every request resolves as authenticated with no claims.
	Decoder Decoder
	// ClaimFields maps claim names to schema field names for claim
	// projection in generated queries.
	ClaimFields map[string]string
	Logger      *logging.Logger
	Metrics     *observability.PipelineMetrics
}

// NewResolver creates an authorization resolver.
func NewResolver(cfg ResolverConfig) *Resolver {
	return &Resolver{
		decoder:     cfg.Decoder,
		claimFields: cfg.ClaimFields,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
	}
}

// Resolve produces the authorization context for a request/response
// operation. Decode failures are swallowed and reported as an
// unauthenticated verdict: callers gate access on IsAuthenticated, never on
// the absence of an error.
func (r *Resolver) Resolve(ctx context.Context, req Request) Context {
	if r.metrics != nil {
		r.metrics.RecordAuthAttempt(ctx, "request")
	}

	if claims, ok := req.AuthClaims(); ok {
		return newContext(true, claims, r.claimFields)
	}

	if r.decoder == nil {
		return newContext(true, nil, nil)
	}

	claims, err := r.decoder.Decode(ctx, req)
	if err != nil {
		if r.metrics != nil {
			r.metrics.RecordAuthFailure(ctx, "request", "decode_failed")
		}
		if r.logger != nil {
			r.logger.Debug("token decode failed, continuing unauthenticated",
				slog.String("error", err.Error()),
			)
		}
		return newContext(false, nil, nil)
	}

	// Sibling resolvers in the same operation tree observe the claims
	// without re-decoding.
	req.SetAuthClaims(claims)
	if r.metrics != nil {
		r.metrics.RecordAuthSuccess(ctx, "request")
	}
	return newContext(true, claims, r.claimFields)
}

// ResolveConnection produces the authorization context for a long-lived
// subscription connection, sourcing the token from connection parameters
// instead of per-request state.
//
// Unlike Resolve, failure here can be fatal: with mandatory global
// authentication a missing token returns ErrUnauthenticated and a decode
// failure propagates, rejecting the connection before any resolution.
func (r *Resolver) ResolveConnection(ctx context.Context, req Request, connectionParams map[string]any, globalAuthentication bool) (Context, error) {
	if r.metrics != nil {
		r.metrics.RecordAuthAttempt(ctx, "connection")
	}

	if claims, ok := req.AuthClaims(); ok {
		return newContext(true, claims, r.claimFields), nil
	}

	if r.decoder == nil {
		return newContext(true, nil, nil), nil
	}

	token, _ := connectionParams[connectionTokenParam].(string)
	if token == "" {
		if globalAuthentication {
			if r.metrics != nil {
				r.metrics.RecordConnectionRejected(ctx, "missing_token")
			}
			return Context{}, ErrUnauthenticated
		}
		return newContext(false, nil, nil), nil
	}

	claims, err := r.decoder.DecodeAndVerify(ctx, stripBearer(token))
	if err != nil {
		if globalAuthentication {
			if r.metrics != nil {
				r.metrics.RecordConnectionRejected(ctx, "decode_failed")
			}
			return Context{}, err
		}
		if r.logger != nil {
			r.logger.Debug("connection token decode failed, continuing without claims",
				slog.String("error", err.Error()),
			)
		}
		return newContext(false, nil, nil), nil
	}

	req.SetAuthClaims(claims)
	if r.metrics != nil {
		r.metrics.RecordAuthSuccess(ctx, "connection")
	}
	return newContext(true, claims, r.claimFields), nil
}
