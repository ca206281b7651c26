// Package queryparam provides named, referenceable query parameters for
// embedding into generated SQL. A Param keeps its logical name for
// diagnostics while rendering as a positional placeholder with a bound
// argument, matching the placeholder style used by the query planner.
package queryparam

import (
	"encoding/json"
	"fmt"

	"gqlpipeline/internal/sqlutil"

	sq "github.com/Masterminds/squirrel"
)

// Param is a named value referenceable from generated SQL.
// The zero Param is not valid; construct with New.
type Param struct {
	name  string
	value any
	valid bool
}

// New wraps a value as a named parameter.
func New(name string, value any) Param {
	return Param{name: name, value: value, valid: true}
}

// Name returns the logical parameter name (e.g. "jwt", "isAuthenticated").
func (p Param) Name() string { return p.name }

// Value returns the wrapped value.
func (p Param) Value() any { return p.value }

// IsZero reports whether the param was never constructed. Downstream query
// generation treats a zero param as a bug, never as "unauthenticated".
func (p Param) IsZero() bool { return !p.valid }

// Field returns a parameter referencing a single key of a mapping-valued
// param, named "<parent>.<key>". A missing key yields a param with a nil
// value rather than an error so that generated queries referencing absent
// claims compare against NULL instead of failing.
func (p Param) Field(key string) Param {
	child := Param{name: p.name + "." + key, valid: true}
	if mapping, ok := p.value.(map[string]any); ok {
		child.value = mapping[key]
	}
	return child
}

// ToSql renders the param as a single placeholder with its bound argument.
// Mapping and slice values are bound as JSON so they survive the driver
// round-trip into JSON-typed columns.
func (p Param) ToSql() (string, []any, error) {
	if !p.valid {
		return "", nil, fmt.Errorf("queryparam: zero param referenced in query")
	}
	arg := p.value
	switch p.value.(type) {
	case map[string]any, []any:
		encoded, err := json.Marshal(p.value)
		if err != nil {
			return "", nil, fmt.Errorf("queryparam: encode %s: %w", p.name, err)
		}
		arg = string(encoded)
	}
	return "?", []any{arg}, nil
}

// ClaimPredicate builds a column = claim predicate for authorization
// filtering inside a generated query.
func ClaimPredicate(column string, claim Param) (sq.Sqlizer, error) {
	placeholder, args, err := claim.ToSql()
	if err != nil {
		return nil, err
	}
	return sq.Expr(sqlutil.QuoteIdentifier(column)+" = "+placeholder, args...), nil
}

// RequireAuthenticated guards a predicate behind the isAuthenticated
// parameter: the predicate only matches when the request was authenticated.
func RequireAuthenticated(isAuthenticated Param, predicate sq.Sqlizer) (sq.Sqlizer, error) {
	placeholder, args, err := isAuthenticated.ToSql()
	if err != nil {
		return nil, err
	}
	gate := sq.Expr(placeholder+" = TRUE", args...)
	if predicate == nil {
		return gate, nil
	}
	return sq.And{gate, predicate}, nil
}
