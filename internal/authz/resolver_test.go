package authz

import (
	"context"
	"errors"
	"testing"
)

type fakeRequest struct {
	claims map[string]any
	token  string
}

func (r *fakeRequest) AuthClaims() (map[string]any, bool) {
	return r.claims, r.claims != nil
}

func (r *fakeRequest) SetAuthClaims(claims map[string]any) {
	r.claims = claims
}

func (r *fakeRequest) BearerToken() string {
	return r.token
}

type fakeDecoder struct {
	claims  map[string]any
	err     error
	invoked int
}

func (d *fakeDecoder) Decode(ctx context.Context, req Request) (map[string]any, error) {
	token := req.BearerToken()
	if token == "" {
		d.invoked++
		return nil, ErrMissingToken
	}
	return d.DecodeAndVerify(ctx, token)
}

func (d *fakeDecoder) DecodeAndVerify(context.Context, string) (map[string]any, error) {
	d.invoked++
	if d.err != nil {
		return nil, d.err
	}
	return d.claims, nil
}

func requireParamsPresent(t *testing.T, authCtx Context) {
	t.Helper()
	if authCtx.JWTParam.IsZero() {
		t.Error("jwt param must always be present")
	}
	if authCtx.IsAuthenticatedParam.IsZero() {
		t.Error("isAuthenticated param must always be present")
	}
}

func TestResolveWithoutDecoderIsPermissive(t *testing.T) {
	resolver := NewResolver(ResolverConfig{})
	authCtx := resolver.Resolve(context.Background(), &fakeRequest{})

	if !authCtx.IsAuthenticated {
		t.Error("expected authenticated verdict when no decoder is configured")
	}
	if authCtx.JWT != nil {
		t.Errorf("expected undefined claims, got %v", authCtx.JWT)
	}
	requireParamsPresent(t, authCtx)
}

func TestResolveReusesExistingClaims(t *testing.T) {
	decoder := &fakeDecoder{claims: map[string]any{"sub": "other"}}
	resolver := NewResolver(ResolverConfig{Decoder: decoder})

	req := &fakeRequest{claims: map[string]any{"sub": "user-1"}}
	authCtx := resolver.Resolve(context.Background(), req)

	if decoder.invoked != 0 {
		t.Errorf("decoder must not be invoked when claims are already resolved, got %d calls", decoder.invoked)
	}
	if !authCtx.IsAuthenticated {
		t.Error("expected authenticated verdict")
	}
	if authCtx.JWT["sub"] != "user-1" {
		t.Errorf("expected existing claims to be reused, got %v", authCtx.JWT)
	}
}

func TestResolveDecodeFailureDegrades(t *testing.T) {
	decoder := &fakeDecoder{err: errors.New("bad signature")}
	resolver := NewResolver(ResolverConfig{Decoder: decoder})

	req := &fakeRequest{token: "Bearer not-a-token"}
	authCtx := resolver.Resolve(context.Background(), req)

	if authCtx.IsAuthenticated {
		t.Error("expected unauthenticated verdict on decode failure")
	}
	requireParamsPresent(t, authCtx)

	// The jwt param must wrap a defined-but-empty mapping, never nil.
	value, ok := authCtx.JWTParam.Value().(map[string]any)
	if !ok {
		t.Fatalf("expected mapping value, got %T", authCtx.JWTParam.Value())
	}
	if len(value) != 0 {
		t.Errorf("expected empty claims mapping, got %v", value)
	}
	if sub := authCtx.JWTParam.Field("sub"); sub.IsZero() || sub.Value() != nil {
		t.Errorf("expected claim reference into empty mapping to stay defined, got %+v", sub)
	}
	if claims, ok := req.AuthClaims(); ok {
		t.Errorf("decode failure must not write claims back, got %v", claims)
	}
}

func TestResolveDecodeSuccessWritesBack(t *testing.T) {
	decoder := &fakeDecoder{claims: map[string]any{"sub": "user-7", "roles": []any{"admin"}}}
	claimFields := map[string]string{"sub": "ownerId"}
	resolver := NewResolver(ResolverConfig{Decoder: decoder, ClaimFields: claimFields})

	req := &fakeRequest{token: "Bearer valid"}
	authCtx := resolver.Resolve(context.Background(), req)

	if !authCtx.IsAuthenticated {
		t.Error("expected authenticated verdict")
	}
	if authCtx.Claims["sub"] != "ownerId" {
		t.Errorf("expected claim-to-field mapping to be attached, got %v", authCtx.Claims)
	}
	written, ok := req.AuthClaims()
	if !ok {
		t.Fatal("expected claims to be written back onto the request")
	}
	if written["sub"] != "user-7" {
		t.Errorf("unexpected written-back claims: %v", written)
	}

	// A sibling resolver sharing the request must not trigger a re-decode.
	before := decoder.invoked
	resolver.Resolve(context.Background(), req)
	if decoder.invoked != before {
		t.Errorf("expected no duplicate decode, got %d extra calls", decoder.invoked-before)
	}
}

func TestResolveConnectionMissingTokenMandatoryAuth(t *testing.T) {
	decoder := &fakeDecoder{claims: map[string]any{"sub": "user-1"}}
	resolver := NewResolver(ResolverConfig{Decoder: decoder})

	_, err := resolver.ResolveConnection(context.Background(), &fakeRequest{}, map[string]any{}, true)
	if !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	if decoder.invoked != 0 {
		t.Error("decoder must not run when the token is absent")
	}
}

func TestResolveConnectionMissingTokenOptionalAuth(t *testing.T) {
	decoder := &fakeDecoder{claims: map[string]any{"sub": "user-1"}}
	resolver := NewResolver(ResolverConfig{Decoder: decoder})

	authCtx, err := resolver.ResolveConnection(context.Background(), &fakeRequest{}, map[string]any{}, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if authCtx.IsAuthenticated {
		t.Error("expected unauthenticated verdict without a token")
	}
	requireParamsPresent(t, authCtx)
}

func TestResolveConnectionDecodeFailure(t *testing.T) {
	decodeErr := errors.New("bad signature")

	t.Run("mandatory auth propagates", func(t *testing.T) {
		resolver := NewResolver(ResolverConfig{Decoder: &fakeDecoder{err: decodeErr}})
		params := map[string]any{"authorization": "Bearer broken"}

		_, err := resolver.ResolveConnection(context.Background(), &fakeRequest{}, params, true)
		if !errors.Is(err, decodeErr) {
			t.Fatalf("expected decode error to propagate, got %v", err)
		}
	})

	t.Run("optional auth degrades", func(t *testing.T) {
		resolver := NewResolver(ResolverConfig{Decoder: &fakeDecoder{err: decodeErr}})
		params := map[string]any{"authorization": "Bearer broken"}

		authCtx, err := resolver.ResolveConnection(context.Background(), &fakeRequest{}, params, false)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if authCtx.IsAuthenticated {
			t.Error("expected unauthenticated verdict")
		}
		requireParamsPresent(t, authCtx)
	})
}

func TestResolveConnectionSuccess(t *testing.T) {
	decoder := &fakeDecoder{claims: map[string]any{"sub": "user-9"}}
	resolver := NewResolver(ResolverConfig{Decoder: decoder})

	req := &fakeRequest{}
	params := map[string]any{"authorization": "Bearer valid"}
	authCtx, err := resolver.ResolveConnection(context.Background(), req, params, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !authCtx.IsAuthenticated {
		t.Error("expected authenticated verdict")
	}
	if claims, ok := req.AuthClaims(); !ok || claims["sub"] != "user-9" {
		t.Errorf("expected claims recorded on the connection record, got %v", claims)
	}
}

func TestResolveConnectionReusesExistingClaims(t *testing.T) {
	decoder := &fakeDecoder{err: errors.New("should not run")}
	resolver := NewResolver(ResolverConfig{Decoder: decoder})

	req := &fakeRequest{claims: map[string]any{"sub": "user-1"}}
	authCtx, err := resolver.ResolveConnection(context.Background(), req, nil, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !authCtx.IsAuthenticated {
		t.Error("expected authenticated verdict from existing claims")
	}
	if decoder.invoked != 0 {
		t.Error("decoder must not be invoked when claims already exist")
	}
}

func TestResolveConnectionWithoutDecoder(t *testing.T) {
	resolver := NewResolver(ResolverConfig{})

	authCtx, err := resolver.ResolveConnection(context.Background(), &fakeRequest{}, map[string]any{}, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !authCtx.IsAuthenticated {
		t.Error("expected permissive pass-through without a decoder")
	}
	if authCtx.JWT != nil {
		t.Errorf("expected no claims, got %v", authCtx.JWT)
	}
}
