package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError represents a configuration validation error with context.
type ValidationError struct {
	Field   string
	Message string
	Hint    string
}

func (e ValidationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s (hint: %s)", e.Field, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Field   string
	Message string
	Hint    string
}

// ValidationResult contains the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Error returns a combined error message if there are validation errors.
func (r *ValidationResult) Error() string {
	if !r.HasErrors() {
		return ""
	}
	var msgs []string
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the configuration for errors and returns validation results.
// It returns both errors (fatal) and warnings (non-fatal issues).
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{}

	c.Database.validate(result)
	c.Server.validate(result)
	c.Auth.validate(result, c.Subscriptions)
	c.Logging.validate(result)
	c.Observability.validate(result)

	return result
}

func (d *DatabaseConfig) validate(result *ValidationResult) {
	if strings.TrimSpace(d.Host) == "" {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.host",
			Message: "database host cannot be empty",
		})
	}
	if d.Port < 1 || d.Port > 65535 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.port",
			Message: fmt.Sprintf("port %d is out of valid range (1-65535)", d.Port),
		})
	}
	if strings.TrimSpace(d.Name) == "" {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.name",
			Message: "database name cannot be empty",
		})
	}

	switch d.TLSMode {
	case "", "off", "skip-verify", "verify-full":
	default:
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.tls_mode",
			Message: fmt.Sprintf("unsupported TLS mode %q", d.TLSMode),
			Hint:    "valid modes: off, skip-verify, verify-full",
		})
	}

	if d.Pool.MaxOpen < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.pool.max_open",
			Message: "max_open cannot be negative",
		})
	}
	if d.Pool.MaxIdle < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.pool.max_idle",
			Message: "max_idle cannot be negative",
		})
	}
	if d.Pool.MaxOpen > 0 && d.Pool.MaxIdle > d.Pool.MaxOpen {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "database.pool.max_idle",
			Message: fmt.Sprintf("max_idle (%d) exceeds max_open (%d); the pool caps idle connections at max_open", d.Pool.MaxIdle, d.Pool.MaxOpen),
		})
	}
	if d.Pool.QueryTimeout < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.pool.query_timeout",
			Message: "query_timeout cannot be negative",
		})
	}
}

func (s *ServerConfig) validate(result *ValidationResult) {
	if s.Port < 1 || s.Port > 65535 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port %d is out of valid range (1-65535)", s.Port),
		})
	}
	if s.ShutdownTimeout < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "server.shutdown_timeout",
			Message: "shutdown_timeout cannot be negative",
		})
	}
}

func (a *AuthConfig) validate(result *ValidationResult, subs SubscriptionsConfig) {
	switch a.Mode {
	case "none":
		if a.GlobalAuthentication {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "auth.global_authentication",
				Message: "global authentication requires a token verification mode",
				Hint:    "set auth.mode to jwt or oidc",
			})
		}
		if subs.Enabled {
			result.Warnings = append(result.Warnings, ValidationWarning{
				Field:   "subscriptions.enabled",
				Message: "subscriptions are enabled without token verification; connection params will not carry verified claims",
				Hint:    "set auth.mode to jwt or oidc to authenticate subscription connections",
			})
		}
	case "jwt":
		if a.Secret == "" {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "auth.secret",
				Message: "jwt mode requires a shared secret",
				Hint:    "set auth.secret, auth.secret_file, or GQLPIPE_AUTH_SECRET",
			})
		}
	case "oidc":
		issuer := strings.TrimSpace(a.Issuer)
		if issuer == "" {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "auth.issuer",
				Message: "oidc mode requires an issuer URL",
			})
		} else if u, err := url.Parse(issuer); err != nil || u.Scheme != "https" {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "auth.issuer",
				Message: fmt.Sprintf("issuer %q must be a valid https URL", issuer),
			})
		}
		if strings.TrimSpace(a.Audience) == "" {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "auth.audience",
				Message: "oidc mode requires an audience",
				Hint:    "set auth.audience to this service's client ID",
			})
		}
	default:
		result.Errors = append(result.Errors, ValidationError{
			Field:   "auth.mode",
			Message: fmt.Sprintf("unsupported auth mode %q", a.Mode),
			Hint:    "valid modes: none, jwt, oidc",
		})
	}

	if a.ClockSkew < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "auth.clock_skew",
			Message: "clock_skew cannot be negative",
		})
	}

	for name, claim := range a.ClaimFields {
		if strings.TrimSpace(name) == "" {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "auth.claim_fields",
				Message: "claim field name cannot be empty",
			})
		}
		if strings.TrimSpace(claim) == "" {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "auth.claim_fields",
				Message: fmt.Sprintf("claim path for %q cannot be empty", name),
			})
		}
	}
}

func (l *LoggingConfig) validate(result *ValidationResult) {
	switch strings.ToLower(l.Level) {
	case "debug", "info", "warn", "error":
	default:
		result.Errors = append(result.Errors, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("unsupported log level %q", l.Level),
			Hint:    "valid levels: debug, info, warn, error",
		})
	}

	switch strings.ToLower(l.Format) {
	case "json", "text":
	default:
		result.Errors = append(result.Errors, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("unsupported log format %q", l.Format),
			Hint:    "valid formats: json, text",
		})
	}
}

func (o *ObservabilityConfig) validate(result *ValidationResult) {
	if strings.TrimSpace(o.ServiceName) == "" {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "observability.service_name",
			Message: "service name cannot be empty",
		})
	}
	if o.TraceSampleRatio < 0 || o.TraceSampleRatio > 1 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "observability.trace_sample_ratio",
			Message: fmt.Sprintf("trace sample ratio %g must be between 0.0 and 1.0", o.TraceSampleRatio),
		})
	}

	if o.TracingEnabled && strings.TrimSpace(o.OTLP.Endpoint) == "" {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "observability.otlp.endpoint",
			Message: "tracing is enabled but no OTLP endpoint is configured; spans will not be exported",
		})
	}

	switch o.OTLP.Protocol {
	case "", "grpc", "http/protobuf":
	default:
		result.Errors = append(result.Errors, ValidationError{
			Field:   "observability.otlp.protocol",
			Message: fmt.Sprintf("unsupported OTLP protocol %q", o.OTLP.Protocol),
			Hint:    "valid protocols: grpc, http/protobuf",
		})
	}

	switch o.OTLP.Compression {
	case "", "none", "gzip":
	default:
		result.Errors = append(result.Errors, ValidationError{
			Field:   "observability.otlp.compression",
			Message: fmt.Sprintf("unsupported OTLP compression %q", o.OTLP.Compression),
			Hint:    "valid values: none, gzip",
		})
	}
}
