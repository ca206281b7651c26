package pipeline

import (
	"context"

	"github.com/graphql-go/graphql"
	"go.opentelemetry.io/otel/attribute"
)

// WrapSubscribe wraps a subscription resolver with the connection-scoped
// pipeline. Authentication is resolved from connection parameters, not
// per-request state, and is only attempted while subscriptions are enabled.
//
// This is the one place where authentication failure can be fatal: with
// mandatory global authentication a missing or undecodable connection
// token rejects the connection before any resolution runs.
func (w *Wrapper) WrapSubscribe(next graphql.FieldResolveFn) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (result interface{}, err error) {
		ctx := p.Context
		if ctx == nil {
			ctx = context.Background()
		}

		ctx, span := startPipelineSpan(ctx, "pipeline.subscribe",
			attribute.String("graphql.field", p.Info.FieldName),
		)
		defer func() { finishPipelineSpan(span, err) }()

		req, ok := RequestFromContext(ctx)
		if !ok {
			req = NewRequest()
			ctx = WithRequest(ctx, req)
		}

		if !w.subscriptionsEnabled {
			// Pass through unchanged except for merging the connection
			// parameters into the caller's values.
			span.SetAttributes(attribute.Bool("subscriptions.enabled", false))
			req.Values = mergeValues(req.ConnectionParams, req.Values)
			p.Context = ctx
			return next(p)
		}

		authCtx, err := w.auth.ResolveConnection(ctx, req, req.ConnectionParams, w.globalAuthentication)
		if err != nil {
			return nil, err
		}
		span.SetAttributes(attribute.Bool("auth.authenticated", authCtx.IsAuthenticated))

		derived := map[string]any{
			"isAuthenticated": authCtx.IsAuthenticated,
			"jwt":             authCtx.JWT,
		}
		composed := Composed{
			Model:                w.model,
			Auth:                 authCtx,
			SubscriptionsEnabled: true,
			Features:             w.features,
			Values:               mergeValues(derived, mergeValues(req.ConnectionParams, req.Values)),
		}

		p.Context = WithComposed(ctx, composed)
		return next(p)
	}
}
