package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Host: "localhost",
			Port: 3306,
			User: "gqlpipeline",
			Name: "gqlpipeline",
			Pool: PoolConfig{
				MaxOpen:      25,
				MaxIdle:      5,
				MaxLifetime:  5 * time.Minute,
				QueryTimeout: 30 * time.Second,
			},
		},
		Server: ServerConfig{
			Port:            8080,
			ShutdownTimeout: 30 * time.Second,
		},
		Auth: AuthConfig{
			Mode:      "none",
			ClockSkew: 2 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Observability: ObservabilityConfig{
			ServiceName:      "gqlpipeline",
			TraceSampleRatio: 1.0,
		},
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	result := validConfig().Validate()
	if result.HasErrors() {
		t.Fatalf("expected no errors, got: %s", result.Error())
	}
	if len(result.Warnings) != 0 {
		t.Fatalf("expected no warnings, got %d", len(result.Warnings))
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{
			name:   "empty database host",
			mutate: func(c *Config) { c.Database.Host = "" },
			field:  "database.host",
		},
		{
			name:   "database port out of range",
			mutate: func(c *Config) { c.Database.Port = 70000 },
			field:  "database.port",
		},
		{
			name:   "unsupported database tls mode",
			mutate: func(c *Config) { c.Database.TLSMode = "verify-maybe" },
			field:  "database.tls_mode",
		},
		{
			name:   "server port zero",
			mutate: func(c *Config) { c.Server.Port = 0 },
			field:  "server.port",
		},
		{
			name:   "unknown auth mode",
			mutate: func(c *Config) { c.Auth.Mode = "basic" },
			field:  "auth.mode",
		},
		{
			name:   "jwt mode without secret",
			mutate: func(c *Config) { c.Auth.Mode = "jwt" },
			field:  "auth.secret",
		},
		{
			name: "oidc mode without issuer",
			mutate: func(c *Config) {
				c.Auth.Mode = "oidc"
				c.Auth.Audience = "client-1"
			},
			field: "auth.issuer",
		},
		{
			name: "oidc mode without audience",
			mutate: func(c *Config) {
				c.Auth.Mode = "oidc"
				c.Auth.Issuer = "https://issuer.example.com"
			},
			field: "auth.audience",
		},
		{
			name: "oidc issuer must be https",
			mutate: func(c *Config) {
				c.Auth.Mode = "oidc"
				c.Auth.Issuer = "http://issuer.example.com"
				c.Auth.Audience = "client-1"
			},
			field: "auth.issuer",
		},
		{
			name:   "global auth requires verification mode",
			mutate: func(c *Config) { c.Auth.GlobalAuthentication = true },
			field:  "auth.global_authentication",
		},
		{
			name: "empty claim path",
			mutate: func(c *Config) {
				c.Auth.Mode = "jwt"
				c.Auth.Secret = "s3cret"
				c.Auth.ClaimFields = map[string]string{"tenant": " "}
			},
			field: "auth.claim_fields",
		},
		{
			name:   "unknown log level",
			mutate: func(c *Config) { c.Logging.Level = "verbose" },
			field:  "logging.level",
		},
		{
			name:   "unknown log format",
			mutate: func(c *Config) { c.Logging.Format = "logfmt" },
			field:  "logging.format",
		},
		{
			name:   "sample ratio above one",
			mutate: func(c *Config) { c.Observability.TraceSampleRatio = 1.5 },
			field:  "observability.trace_sample_ratio",
		},
		{
			name:   "unsupported otlp protocol",
			mutate: func(c *Config) { c.Observability.OTLP.Protocol = "thrift" },
			field:  "observability.otlp.protocol",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			result := cfg.Validate()
			if !result.HasErrors() {
				t.Fatalf("expected an error for field %s", tt.field)
			}
			found := false
			for _, e := range result.Errors {
				if e.Field == tt.field {
					found = true
				}
			}
			if !found {
				t.Fatalf("expected error on field %s, got: %s", tt.field, result.Error())
			}
		})
	}
}

func TestValidateWarnings(t *testing.T) {
	t.Run("subscriptions without verification", func(t *testing.T) {
		cfg := validConfig()
		cfg.Subscriptions.Enabled = true

		result := cfg.Validate()
		if result.HasErrors() {
			t.Fatalf("unexpected errors: %s", result.Error())
		}
		if len(result.Warnings) == 0 || result.Warnings[0].Field != "subscriptions.enabled" {
			t.Fatalf("expected warning on subscriptions.enabled, got %+v", result.Warnings)
		}
	})

	t.Run("tracing without endpoint", func(t *testing.T) {
		cfg := validConfig()
		cfg.Observability.TracingEnabled = true

		result := cfg.Validate()
		if result.HasErrors() {
			t.Fatalf("unexpected errors: %s", result.Error())
		}
		if len(result.Warnings) == 0 || result.Warnings[0].Field != "observability.otlp.endpoint" {
			t.Fatalf("expected warning on observability.otlp.endpoint, got %+v", result.Warnings)
		}
	})
}

func TestValidationErrorFormatting(t *testing.T) {
	withHint := ValidationError{Field: "auth.mode", Message: "unsupported auth mode", Hint: "valid modes: none, jwt, oidc"}
	if got := withHint.Error(); !strings.Contains(got, "hint:") {
		t.Errorf("expected hint in message, got %q", got)
	}

	withoutHint := ValidationError{Field: "server.port", Message: "port out of range"}
	if got := withoutHint.Error(); strings.Contains(got, "hint") {
		t.Errorf("unexpected hint in message: %q", got)
	}
}

func TestReadSecretFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "secret")
	if err := os.WriteFile(path, []byte("  s3cret\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	secret, err := readSecretFile(path)
	if err != nil {
		t.Fatalf("readSecretFile: %v", err)
	}
	if secret != "s3cret" {
		t.Errorf("expected trimmed secret, got %q", secret)
	}

	if _, err := readSecretFile(filepath.Join(dir, "missing")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestStringToStringMapHook(t *testing.T) {
	hook := stringToStringMapHookFunc(",", "=")
	fn, ok := hook.(func(reflect.Type, reflect.Type, interface{}) (interface{}, error))
	if !ok {
		t.Fatalf("unexpected hook type %T", hook)
	}

	stringType := reflect.TypeOf("")
	mapType := reflect.TypeOf(map[string]string{})

	tests := []struct {
		name    string
		input   string
		want    map[string]string
		wantErr bool
	}{
		{name: "empty", input: "", want: map[string]string{}},
		{name: "single pair", input: "tenant=ext.tenant_id", want: map[string]string{"tenant": "ext.tenant_id"}},
		{
			name:  "multiple pairs with spaces",
			input: "tenant=ext.tenant_id, roles=realm_access.roles",
			want:  map[string]string{"tenant": "ext.tenant_id", "roles": "realm_access.roles"},
		},
		{name: "missing separator", input: "tenant", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := fn(stringType, mapType, tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}

	t.Run("non-map target passes through", func(t *testing.T) {
		got, err := fn(stringType, stringType, "tenant=abc")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != "tenant=abc" {
			t.Errorf("expected passthrough, got %v", got)
		}
	})
}
