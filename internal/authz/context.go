// Package authz resolves the caller's authentication claims into the
// parameterized authorization tokens consumed by query generation. Claims
// are resolved at most once per request; sibling resolvers observe the
// result through the shared request record.
package authz

import (
	"gqlpipeline/internal/queryparam"
)

// Context is the per-request authorization verdict. It is derived once and
// immutable after construction.
//
// JWTParam and IsAuthenticatedParam are always present and non-zero,
// regardless of the authentication outcome: generated queries referencing
// them must never special-case an absent parameter.
type Context struct {
	IsAuthenticated bool
	// JWT holds the resolved claims; nil when authentication produced no
	// claims (permissive fallback or decode failure).
	JWT map[string]any
	// JWTParam wraps the claims for query embedding. When JWT is nil it
	// wraps an empty mapping so $jwt.claim references resolve to a
	// defined-but-empty structure.
	JWTParam queryparam.Param
	// IsAuthenticatedParam wraps IsAuthenticated for query embedding.
	IsAuthenticatedParam queryparam.Param
	// Claims maps claim names to schema field names for downstream claim
	// projection; nil when no mapping is configured.
	Claims map[string]string
}

func newContext(authenticated bool, jwt map[string]any, claims map[string]string) Context {
	paramValue := jwt
	if paramValue == nil {
		paramValue = map[string]any{}
	}
	return Context{
		IsAuthenticated:      authenticated,
		JWT:                  jwt,
		JWTParam:             queryparam.New("jwt", paramValue),
		IsAuthenticatedParam: queryparam.New("isAuthenticated", authenticated),
		Claims:               claims,
	}
}
