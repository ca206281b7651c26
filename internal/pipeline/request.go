// Package pipeline composes the per-request context handed to GraphQL
// field resolution: it provisions a database execution handle, resolves
// authorization claims once per request, consults the database version
// cache, and merges the result with caller-supplied context before
// invoking the next resolver step.
package pipeline

import (
	"context"

	"gqlpipeline/internal/dbexec"
)

// Request is the mutable per-operation record shared by all resolvers in
// one operation tree. The wrapper enriches it in place (resolved claims,
// provisioned executor) so sibling resolvers observe the same state, and
// composes an immutable snapshot for each downstream call.
type Request struct {
	// Executor is the execution handle supplied by the caller, or written
	// back by the wrapper after provisioning.
	Executor *dbexec.Executor
	// Token is the raw bearer token supplied with the request, or "".
	Token string
	// ConnectionParams carries the subscription connection-init payload.
	ConnectionParams map[string]any
	// Values holds caller-supplied context fields; they take precedence
	// over internally derived fields during composition.
	Values map[string]any

	claims       map[string]any
	hasClaims    bool
	ownsExecutor bool
}

// NewRequest creates an empty request record.
func NewRequest() *Request {
	return &Request{}
}

// AdoptExecutor writes a provisioned executor back onto the record so
// sibling resolvers reuse it. owned marks a handle the pipeline acquired
// itself; ReleaseExecutor closes only those.
func (r *Request) AdoptExecutor(exec *dbexec.Executor, owned bool) {
	r.Executor = exec
	if owned {
		r.ownsExecutor = true
	}
}

// ReleaseExecutor closes a pipeline-owned executor and detaches it from the
// record. Handles supplied by the caller are left untouched. Called at the
// end of the request cycle, after every resolver in the operation tree has
// run.
func (r *Request) ReleaseExecutor() error {
	if !r.ownsExecutor {
		return nil
	}
	exec := r.Executor
	r.Executor = nil
	r.ownsExecutor = false
	if exec == nil {
		return nil
	}
	return exec.Close()
}

// AuthClaims returns previously resolved claims, when present.
func (r *Request) AuthClaims() (map[string]any, bool) {
	return r.claims, r.hasClaims
}

// SetAuthClaims records resolved claims for sibling resolvers.
func (r *Request) SetAuthClaims(claims map[string]any) {
	r.claims = claims
	r.hasClaims = true
}

// BearerToken returns the raw token supplied with the request.
func (r *Request) BearerToken() string {
	return r.Token
}

type requestKey struct{}

// WithRequest attaches the mutable request record to a context.
func WithRequest(ctx context.Context, req *Request) context.Context {
	return context.WithValue(ctx, requestKey{}, req)
}

// RequestFromContext returns the request record from a context.
func RequestFromContext(ctx context.Context) (*Request, bool) {
	req, ok := ctx.Value(requestKey{}).(*Request)
	return req, ok
}
