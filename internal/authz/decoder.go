package authz

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// Decoder verifies and decodes tokens into a claims mapping.
type Decoder interface {
	// Decode extracts the request's token and verifies it.
	Decode(ctx context.Context, req Request) (map[string]any, error)
	// DecodeAndVerify verifies an out-of-band token, as supplied in
	// subscription connection parameters.
	DecodeAndVerify(ctx context.Context, token string) (map[string]any, error)
}

// ErrMissingToken indicates the request carried no bearer token.
var ErrMissingToken = errors.New("authz: missing bearer token")

// stripBearer removes an optional "Bearer " prefix from a token value.
func stripBearer(value string) string {
	parts := strings.SplitN(value, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return strings.TrimSpace(value)
}

// JWTDecoderConfig controls local JWT verification.
type JWTDecoderConfig struct {
	// Secret is the HMAC signing secret.
	Secret []byte
	// Issuer and Audience are enforced when non-empty.
	Issuer   string
	Audience string
	// ClockSkew tolerates clock drift on time claims; defaults to 2 minutes.
	ClockSkew time.Duration
}

// JWTDecoder verifies HMAC-signed JWTs with a shared secret.
type JWTDecoder struct {
	cfg JWTDecoderConfig
}

// NewJWTDecoder creates a local JWT decoder.
func NewJWTDecoder(cfg JWTDecoderConfig) (*JWTDecoder, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("authz: jwt decoder requires a signing secret")
	}
	if cfg.ClockSkew == 0 {
		cfg.ClockSkew = 2 * time.Minute
	}
	return &JWTDecoder{cfg: cfg}, nil
}

func (d *JWTDecoder) Decode(ctx context.Context, req Request) (map[string]any, error) {
	token := stripBearer(req.BearerToken())
	if token == "" {
		return nil, ErrMissingToken
	}
	return d.DecodeAndVerify(ctx, token)
}

func (d *JWTDecoder) DecodeAndVerify(_ context.Context, token string) (map[string]any, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithLeeway(d.cfg.ClockSkew),
		jwt.WithExpirationRequired(),
	}
	if d.cfg.Issuer != "" {
		options = append(options, jwt.WithIssuer(d.cfg.Issuer))
	}
	if d.cfg.Audience != "" {
		options = append(options, jwt.WithAudience(d.cfg.Audience))
	}

	claims := jwt.MapClaims{}
	if _, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return d.cfg.Secret, nil
	}, options...); err != nil {
		return nil, fmt.Errorf("authz: token verification failed: %w", err)
	}
	return map[string]any(claims), nil
}

// OIDCDecoderConfig controls OIDC/JWKS token verification.
type OIDCDecoderConfig struct {
	IssuerURL     string
	Audience      string
	ClockSkew     time.Duration
	SkipTLSVerify bool
}

// OIDCDecoder verifies tokens against an OIDC provider's published keys.
type OIDCDecoder struct {
	verifier  *oidc.IDTokenVerifier
	clockSkew time.Duration
}

// NewOIDCDecoder initializes the provider via OIDC discovery.
func NewOIDCDecoder(ctx context.Context, cfg OIDCDecoderConfig) (*OIDCDecoder, error) {
	if cfg.IssuerURL == "" || cfg.Audience == "" {
		return nil, errors.New("authz: oidc decoder requires issuer and audience")
	}
	if cfg.ClockSkew == 0 {
		cfg.ClockSkew = 2 * time.Minute
	}

	issuerURL, err := url.Parse(cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("authz: invalid oidc issuer url: %w", err)
	}
	if issuerURL.Scheme != "https" {
		return nil, errors.New("authz: oidc issuer url must use https")
	}

	httpClient := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: cfg.SkipTLSVerify},
		},
		Timeout: 10 * time.Second,
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)

	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("authz: failed to initialize oidc provider: %w", err)
	}

	return &OIDCDecoder{
		verifier: provider.Verifier(&oidc.Config{
			ClientID:        cfg.Audience,
			SkipIssuerCheck: false,
		}),
		clockSkew: cfg.ClockSkew,
	}, nil
}

func (d *OIDCDecoder) Decode(ctx context.Context, req Request) (map[string]any, error) {
	token := stripBearer(req.BearerToken())
	if token == "" {
		return nil, ErrMissingToken
	}
	return d.DecodeAndVerify(ctx, token)
}

func (d *OIDCDecoder) DecodeAndVerify(ctx context.Context, token string) (map[string]any, error) {
	idToken, err := d.verifier.Verify(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("authz: oidc token verification failed: %w", err)
	}

	claims := map[string]any{}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("authz: oidc token claims parse failed: %w", err)
	}
	if err := validateTimeClaims(claims, d.clockSkew); err != nil {
		return nil, fmt.Errorf("authz: oidc token time validation failed: %w", err)
	}
	return claims, nil
}

func validateTimeClaims(claims map[string]any, skew time.Duration) error {
	if skew <= 0 {
		return nil
	}

	now := time.Now()
	if exp, ok := numericDate(claims["exp"]); ok {
		if now.After(exp.Add(skew)) {
			return errors.New("token expired")
		}
	}
	if nbf, ok := numericDate(claims["nbf"]); ok {
		if now.Add(skew).Before(nbf) {
			return errors.New("token not valid yet")
		}
	}
	return nil
}

func numericDate(value any) (time.Time, bool) {
	switch v := value.(type) {
	case float64:
		return time.Unix(int64(v), 0), true
	case int64:
		return time.Unix(v, 0), true
	case int:
		return time.Unix(int64(v), 0), true
	default:
		return time.Time{}, false
	}
}
