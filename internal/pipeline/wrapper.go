package pipeline

import (
	"context"
	"time"

	"gqlpipeline/internal/authz"
	"gqlpipeline/internal/dbexec"
	"gqlpipeline/internal/logging"
	"gqlpipeline/internal/observability"
	"gqlpipeline/internal/schema"

	"github.com/graphql-go/graphql"
	"go.opentelemetry.io/otel/attribute"
)

// Wrapper orchestrates per-resolution context composition. One Wrapper is
// built at startup and shared across requests; all per-request state lives
// in the Request record and the Composed snapshot.
type Wrapper struct {
	model                *schema.Model
	auth                 *authz.Resolver
	source               *dbexec.Source
	versions             *dbexec.VersionCache
	features             map[string]bool
	subscriptionsEnabled bool
	globalAuthentication bool
	logger               *logging.Logger
	metrics              *observability.PipelineMetrics
}

// Config assembles a Wrapper.
type Config struct {
	Model *schema.Model
	// Auth resolves claims; nil means authentication is not enforced.
	Auth *authz.Resolver
	// Source provides fallback executors for requests that carry none.
	Source *dbexec.Source
	// Versions caches database version metadata; a fresh cache is created
	// when nil.
	Versions *dbexec.VersionCache
	// VersionOverride short-circuits the version query entirely.
	VersionOverride *dbexec.VersionInfo
	Features        map[string]bool
	// SubscriptionsEnabled gates the subscription wrapper.
	SubscriptionsEnabled bool
	// GlobalAuthentication makes subscription authentication mandatory.
	GlobalAuthentication bool
	Logger               *logging.Logger
	Metrics              *observability.PipelineMetrics
}

// New creates a resolver wrapper.
func New(cfg Config) *Wrapper {
	auth := cfg.Auth
	if auth == nil {
		auth = authz.NewResolver(authz.ResolverConfig{})
	}
	versions := cfg.Versions
	if versions == nil {
		versions = dbexec.NewVersionCache()
	}
	if cfg.VersionOverride != nil {
		versions.Set(*cfg.VersionOverride)
	}
	return &Wrapper{
		model:                cfg.Model,
		auth:                 auth,
		source:               cfg.Source,
		versions:             versions,
		features:             cfg.Features,
		subscriptionsEnabled: cfg.SubscriptionsEnabled,
		globalAuthentication: cfg.GlobalAuthentication,
		logger:               cfg.Logger,
		metrics:              cfg.Metrics,
	}
}

// WrapResolve wraps a field resolver with the request pipeline:
// ensure-handle, resolve-authorization, ensure-version-info,
// compose-context, invoke-next.
//
// Only a provisioning failure aborts the resolution before next runs; a
// failed claim decode degrades to an unauthenticated context instead. A
// version query failure surfaces as an infrastructure error.
func (w *Wrapper) WrapResolve(next graphql.FieldResolveFn) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (result interface{}, err error) {
		start := time.Now()
		ctx := p.Context
		if ctx == nil {
			ctx = context.Background()
		}

		ctx, span := startPipelineSpan(ctx, "pipeline.resolve",
			attribute.String("graphql.field", p.Info.FieldName),
		)
		defer func() {
			finishPipelineSpan(span, err)
			if w.metrics != nil {
				outcome := "success"
				if err != nil {
					outcome = "error"
				}
				w.metrics.RecordResolution(ctx, outcome, time.Since(start))
			}
		}()

		req, shared := RequestFromContext(ctx)
		if !shared {
			req = NewRequest()
			ctx = WithRequest(ctx, req)
		}

		exec, owned, err := dbexec.Provision(ctx, req.Executor, w.source)
		if err != nil {
			// Configuration error: abort without passing any partial
			// context downstream.
			return nil, err
		}
		// A self-acquired handle lives on the record for the rest of the
		// request cycle so sibling resolvers reuse it; the request boundary
		// releases it. Only a record created here, invisible outside this
		// one resolution, is released on return.
		req.AdoptExecutor(exec, owned)
		if owned && !shared {
			defer func() { _ = req.ReleaseExecutor() }()
		}

		authCtx := w.auth.Resolve(ctx, req)
		span.SetAttributes(attribute.Bool("auth.authenticated", authCtx.IsAuthenticated))

		version, err := w.versions.Get(ctx, exec)
		if err != nil {
			return nil, err
		}

		// Propagate cancellation before invoking next. A self-acquired
		// handle stays on the record and is released when the request
		// boundary unwinds.
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		derived := map[string]any{
			"isAuthenticated": authCtx.IsAuthenticated,
			"jwt":             authCtx.JWT,
			"databaseVersion": version.Version,
		}
		composed := Composed{
			Model:                w.model,
			Auth:                 authCtx,
			Executor:             exec,
			Version:              version,
			SubscriptionsEnabled: w.subscriptionsEnabled,
			Features:             w.features,
			Values:               mergeValues(derived, req.Values),
		}

		p.Context = WithComposed(ctx, composed)
		return next(p)
	}
}
