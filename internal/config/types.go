package config

import "time"

// Config is the root configuration for the pipeline server. Values are
// populated from (highest precedence first) command-line flags, GQLPIPE_*
// environment variables, a config file, and built-in defaults.
type Config struct {
	Database      DatabaseConfig      `mapstructure:"database"`
	Server        ServerConfig        `mapstructure:"server"`
	Auth          AuthConfig          `mapstructure:"auth"`
	Subscriptions SubscriptionsConfig `mapstructure:"subscriptions"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// DatabaseConfig describes the MySQL-protocol endpoint queries execute
// against.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	// PasswordFile, when set, is read at load time and overrides Password.
	// The special value "@-" reads the password from stdin.
	PasswordFile string     `mapstructure:"password_file"`
	Name         string     `mapstructure:"name"`
	TLSMode      string     `mapstructure:"tls_mode"`
	Pool         PoolConfig `mapstructure:"pool"`
	// VersionOverride skips the server version probe and pins the cached
	// version string, e.g. "8.0.11-TiDB-v8.5.0".
	VersionOverride string `mapstructure:"version_override"`
}

// PoolConfig bounds the shared *sql.DB connection pool.
type PoolConfig struct {
	MaxOpen      int           `mapstructure:"max_open"`
	MaxIdle      int           `mapstructure:"max_idle"`
	MaxLifetime  time.Duration `mapstructure:"max_lifetime"`
	QueryTimeout time.Duration `mapstructure:"query_timeout"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	GraphiQL        bool          `mapstructure:"graphiql"`
}

// AuthConfig selects how bearer tokens on incoming requests are verified.
//
// Mode "none" disables verification entirely: every request resolves as
// authenticated with no claims. Mode "jwt" verifies HMAC-signed tokens
// against a shared secret. Mode "oidc" verifies tokens against the JWKS
// published by an OpenID Connect issuer.
type AuthConfig struct {
	Mode string `mapstructure:"mode"`

	// JWT mode.
	Secret     string `mapstructure:"secret"`
	SecretFile string `mapstructure:"secret_file"`

	// OIDC mode. Issuer is also used for issuer-claim validation in jwt
	// mode when set.
	Issuer   string `mapstructure:"issuer"`
	Audience string `mapstructure:"audience"`

	ClockSkew time.Duration `mapstructure:"clock_skew"`

	// GlobalAuthentication requires a verified token on every operation,
	// including subscription connections.
	GlobalAuthentication bool `mapstructure:"global_authentication"`

	// ClaimFields maps context value names to claim paths copied out of
	// the verified token, e.g. tenant: "ext.tenant_id".
	ClaimFields map[string]string `mapstructure:"claim_fields"`
}

// SubscriptionsConfig toggles the subscription wrapper.
type SubscriptionsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	// ExportsEnabled mirrors log records to the OTLP log exporter when an
	// endpoint is configured.
	ExportsEnabled bool `mapstructure:"exports_enabled"`
}

// ObservabilityConfig controls metrics and tracing.
type ObservabilityConfig struct {
	ServiceName      string     `mapstructure:"service_name"`
	ServiceVersion   string     `mapstructure:"service_version"`
	Environment      string     `mapstructure:"environment"`
	MetricsEnabled   bool       `mapstructure:"metrics_enabled"`
	TracingEnabled   bool       `mapstructure:"tracing_enabled"`
	TraceSampleRatio float64    `mapstructure:"trace_sample_ratio"`
	OTLP             OTLPConfig `mapstructure:"otlp"`
}

// OTLPConfig configures the OTLP exporters shared by traces and logs.
type OTLPConfig struct {
	Endpoint    string            `mapstructure:"endpoint"`
	Protocol    string            `mapstructure:"protocol"`
	Insecure    bool              `mapstructure:"insecure"`
	TLSCAFile   string            `mapstructure:"tls_ca_file"`
	Headers     map[string]string `mapstructure:"headers"`
	Timeout     time.Duration     `mapstructure:"timeout"`
	Compression string            `mapstructure:"compression"`
}
