package pipeline

import (
	"context"

	"gqlpipeline/internal/authz"
	"gqlpipeline/internal/dbexec"
	"gqlpipeline/internal/schema"
)

// Composed is the immutable context snapshot handed to the next resolver
// step. The wrapper builds a fresh Composed per resolution instead of
// mutating shared state, so the original request record stays available to
// sibling resolvers.
type Composed struct {
	Model                *schema.Model
	Auth                 authz.Context
	Executor             *dbexec.Executor
	Version              dbexec.VersionInfo
	SubscriptionsEnabled bool
	Features             map[string]bool
	// Values is the ordered merge of internally derived fields and
	// caller-supplied fields; see mergeValues for precedence.
	Values map[string]any
}

type composedKey struct{}

// WithComposed attaches the composed snapshot to a context.
func WithComposed(ctx context.Context, composed Composed) context.Context {
	return context.WithValue(ctx, composedKey{}, composed)
}

// ComposedFromContext returns the composed snapshot from a context.
func ComposedFromContext(ctx context.Context) (Composed, bool) {
	composed, ok := ctx.Value(composedKey{}).(Composed)
	return composed, ok
}

// mergeValues merges internally derived fields with caller-supplied ones.
// Derived entries are written first and caller entries last, so on a key
// conflict the caller-supplied value always wins. Neither input map is
// mutated.
func mergeValues(derived, caller map[string]any) map[string]any {
	merged := make(map[string]any, len(derived)+len(caller))
	for key, value := range derived {
		merged[key] = value
	}
	for key, value := range caller {
		merged[key] = value
	}
	return merged
}
