package serverapp

import (
	"context"
	"fmt"
	"sync"

	"gqlpipeline/internal/authz"
	"gqlpipeline/internal/pipeline"
	"gqlpipeline/internal/queryparam"
	"gqlpipeline/internal/schema"

	sq "github.com/Masterminds/squirrel"
	"github.com/graphql-go/graphql"
)

// buildModel registers the operations served by the demo movie schema.
// Attribute and annotation uniqueness is enforced at construction, so a
// misconfigured schema fails startup instead of serving inconsistently.
func buildModel() (*schema.Model, error) {
	movieAttrs := []schema.Attribute{
		{Name: "id", Type: "Int", Column: "id"},
		{Name: "title", Type: "String", Column: "title"},
		{Name: "released", Type: "Int", Column: "released"},
		{Name: "ownerId", Type: "String", Column: "owner_id"},
	}

	movies, err := schema.NewOperation("movies", movieAttrs, []schema.Annotation{
		schema.AuthorizationAnnotation{Filters: map[string]string{"sub": "owner_id"}},
	})
	if err != nil {
		return nil, err
	}

	createMovie, err := schema.NewOperation("createMovie", movieAttrs, []schema.Annotation{
		schema.AuthenticationAnnotation{},
	})
	if err != nil {
		return nil, err
	}

	movieAdded, err := schema.NewOperation("movieAdded", movieAttrs, []schema.Annotation{
		schema.SubscriptionAnnotation{Events: []string{"created"}},
	})
	if err != nil {
		return nil, err
	}

	return schema.NewModel(movies, createMovie, movieAdded)
}

type movie struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	Released int    `json:"released"`
	OwnerID  string `json:"ownerId"`
}

// broadcaster fans created movies out to active subscription channels.
type broadcaster struct {
	mu     sync.Mutex
	subs   map[chan interface{}]struct{}
	closed bool
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[chan interface{}]struct{})}
}

func (b *broadcaster) subscribe(ctx context.Context) <-chan interface{} {
	ch := make(chan interface{}, 1)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch
	}
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		// shutdown may already have closed the channel.
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
		b.mu.Unlock()
	}()

	return ch
}

func (b *broadcaster) publish(v interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- v:
		default:
			// Slow subscriber; drop rather than block the mutation.
		}
	}
}

// shutdown closes every active subscription channel and rejects new
// subscribers. Runs during server teardown, after the HTTP server has
// stopped accepting connections.
func (b *broadcaster) shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
}

// buildGraphQLSchema assembles the executable schema. Every root field
// resolver runs behind the pipeline wrapper so it observes a composed
// context with executor, claims, and version info. The events broadcaster
// links the mutation to active subscriptions; the caller owns its shutdown.
func buildGraphQLSchema(model *schema.Model, wrapper *pipeline.Wrapper, events *broadcaster, subscriptionsEnabled bool) (graphql.Schema, error) {
	movieType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Movie",
		Fields: graphql.Fields{
			"id":       &graphql.Field{Type: graphql.NewNonNull(graphql.Int)},
			"title":    &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
			"released": &graphql.Field{Type: graphql.Int},
			"ownerId":  &graphql.Field{Type: graphql.String},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"movies": &graphql.Field{
				Type:    graphql.NewList(graphql.NewNonNull(movieType)),
				Resolve: wrapper.WrapResolve(resolveMovies),
			},
			"databaseVersion": &graphql.Field{
				Type:    graphql.String,
				Resolve: wrapper.WrapResolve(resolveDatabaseVersion),
			},
		},
	})

	mutationType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Mutation",
		Fields: graphql.Fields{
			"createMovie": &graphql.Field{
				Type: movieType,
				Args: graphql.FieldConfigArgument{
					"title":    &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"released": &graphql.ArgumentConfig{Type: graphql.Int},
				},
				Resolve: wrapper.WrapResolve(resolveCreateMovie(events)),
			},
		},
	})

	schemaConfig := graphql.SchemaConfig{
		Query:    queryType,
		Mutation: mutationType,
	}

	if subscriptionsEnabled {
		schemaConfig.Subscription = graphql.NewObject(graphql.ObjectConfig{
			Name: "Subscription",
			Fields: graphql.Fields{
				"movieAdded": &graphql.Field{
					Type: movieType,
					Resolve: func(p graphql.ResolveParams) (interface{}, error) {
						return p.Source, nil
					},
					Subscribe: wrapper.WrapSubscribe(func(p graphql.ResolveParams) (interface{}, error) {
						return events.subscribe(p.Context), nil
					}),
				},
			},
		})
	}

	return graphql.NewSchema(schemaConfig)
}

// authorizationGate builds the WHERE predicate for an operation's
// authorization annotation: each claim filter must match its column, and
// the whole predicate is gated on the authentication parameter.
func authorizationGate(op *schema.Operation, auth authz.Context) (sq.Sqlizer, error) {
	ann, ok := op.Annotation(schema.KindAuthorization)
	if !ok {
		return nil, nil
	}
	rules := ann.(schema.AuthorizationAnnotation)

	conj := sq.And{}
	for claim, column := range rules.Filters {
		pred, err := queryparam.ClaimPredicate(column, auth.JWTParam.Field(claim))
		if err != nil {
			return nil, err
		}
		conj = append(conj, pred)
	}
	switch len(conj) {
	case 0:
		return nil, nil
	case 1:
		return queryparam.RequireAuthenticated(auth.IsAuthenticatedParam, conj[0])
	default:
		return queryparam.RequireAuthenticated(auth.IsAuthenticatedParam, conj)
	}
}

func resolveMovies(p graphql.ResolveParams) (interface{}, error) {
	composed, ok := pipeline.ComposedFromContext(p.Context)
	if !ok {
		return nil, fmt.Errorf("resolution context is not composed")
	}

	op, ok := composed.Model.Operation("movies")
	if !ok {
		return nil, fmt.Errorf("operation movies is not registered")
	}

	qb := sq.Select("id", "title", "released", "owner_id").
		From("movies").
		OrderBy("id")

	gate, err := authorizationGate(op, composed.Auth)
	if err != nil {
		return nil, err
	}
	if gate != nil {
		qb = qb.Where(gate)
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build movies query: %w", err)
	}

	rows, err := composed.Executor.QueryContext(p.Context, query, args...)
	if err != nil {
		return nil, fmt.Errorf("movies query failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var movies []movie
	for rows.Next() {
		var m movie
		if err := rows.Scan(&m.ID, &m.Title, &m.Released, &m.OwnerID); err != nil {
			return nil, fmt.Errorf("failed to scan movie row: %w", err)
		}
		movies = append(movies, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("movies query failed: %w", err)
	}
	return movies, nil
}

func resolveDatabaseVersion(p graphql.ResolveParams) (interface{}, error) {
	composed, ok := pipeline.ComposedFromContext(p.Context)
	if !ok {
		return nil, fmt.Errorf("resolution context is not composed")
	}
	return composed.Version.Version, nil
}

func resolveCreateMovie(events *broadcaster) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		composed, ok := pipeline.ComposedFromContext(p.Context)
		if !ok {
			return nil, fmt.Errorf("resolution context is not composed")
		}

		op, ok := composed.Model.Operation("createMovie")
		if !ok {
			return nil, fmt.Errorf("operation createMovie is not registered")
		}
		if _, required := op.Annotation(schema.KindAuthentication); required && !composed.Auth.IsAuthenticated {
			return nil, authz.ErrUnauthenticated
		}

		title, _ := p.Args["title"].(string)
		released, _ := p.Args["released"].(int)

		owner := ""
		if sub, ok := composed.Auth.JWT["sub"].(string); ok {
			owner = sub
		}

		query, args, err := sq.Insert("movies").
			Columns("title", "released", "owner_id").
			Values(title, released, owner).
			ToSql()
		if err != nil {
			return nil, fmt.Errorf("failed to build insert: %w", err)
		}

		result, err := composed.Executor.ExecContext(p.Context, query, args...)
		if err != nil {
			return nil, fmt.Errorf("createMovie failed: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("createMovie failed: %w", err)
		}

		created := movie{ID: id, Title: title, Released: released, OwnerID: owner}
		events.publish(created)
		return created, nil
	}
}
