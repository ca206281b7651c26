package serverapp

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"gqlpipeline/internal/authz"
	"gqlpipeline/internal/config"
	"gqlpipeline/internal/dbexec"
	"gqlpipeline/internal/logging"
	"gqlpipeline/internal/middleware"
	"gqlpipeline/internal/observability"
	"gqlpipeline/internal/pipeline"
	"gqlpipeline/internal/schema"

	"github.com/XSAM/otelsql"
	_ "github.com/go-sql-driver/mysql"
	gqlhandler "github.com/graphql-go/handler"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

func obsConfig(cfg *config.Config) observability.Config {
	return observability.Config{
		ServiceName:      cfg.Observability.ServiceName,
		ServiceVersion:   cfg.Observability.ServiceVersion,
		Environment:      cfg.Observability.Environment,
		TraceSampleRatio: cfg.Observability.TraceSampleRatio,
		OTLP: observability.OTLPExporterConfig{
			Endpoint:    cfg.Observability.OTLP.Endpoint,
			Protocol:    cfg.Observability.OTLP.Protocol,
			Insecure:    cfg.Observability.OTLP.Insecure,
			TLSCAFile:   cfg.Observability.OTLP.TLSCAFile,
			Headers:     cfg.Observability.OTLP.Headers,
			Timeout:     cfg.Observability.OTLP.Timeout,
			Compression: cfg.Observability.OTLP.Compression,
		},
	}
}

// InitLogger builds the process logger, optionally bridged to an OTLP log
// exporter when exports are enabled and an endpoint is configured.
func InitLogger(cfg *config.Config) (*logging.Logger, *observability.LoggerProvider, error) {
	loggerCfg := logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}
	logger := logging.NewLogger(loggerCfg)
	slog.SetDefault(logger.Logger)

	if !cfg.Logging.ExportsEnabled {
		return logger, nil, nil
	}

	logger.Info("initializing OpenTelemetry logging",
		slog.String("service_name", cfg.Observability.ServiceName),
		slog.String("otlp_endpoint", cfg.Observability.OTLP.Endpoint),
		slog.String("otlp_protocol", cfg.Observability.OTLP.Protocol),
	)

	loggerProvider, err := observability.InitLoggerProvider(obsConfig(cfg))
	if err != nil {
		return nil, nil, err
	}
	if loggerProvider == nil {
		logger.Warn("log exports enabled but no OTLP endpoint configured; logs stay on stdout")
		return logger, nil, nil
	}

	loggerCfg.LoggerProvider = loggerProvider.Provider()
	logger = logging.NewLogger(loggerCfg)
	slog.SetDefault(logger.Logger)

	return logger, loggerProvider, nil
}

func initMetrics(cfg *config.Config, logger *logging.Logger) (*observability.MeterProvider, *observability.PipelineMetrics, error) {
	if !cfg.Observability.MetricsEnabled {
		return nil, nil, nil
	}

	meterProvider, err := observability.InitMeterProvider(obsConfig(cfg))
	if err != nil {
		return nil, nil, err
	}

	pipelineMetrics, err := observability.InitPipelineMetrics()
	if err != nil {
		return nil, nil, err
	}

	logger.Info("OpenTelemetry metrics initialized",
		slog.String("service_name", cfg.Observability.ServiceName),
	)
	return meterProvider, pipelineMetrics, nil
}

func initTracing(cfg *config.Config, logger *logging.Logger) (*observability.TracerProvider, error) {
	if !cfg.Observability.TracingEnabled {
		return nil, nil
	}

	tracerProvider, err := observability.InitTracerProvider(obsConfig(cfg))
	if err != nil {
		return nil, err
	}
	if tracerProvider == nil {
		logger.Warn("tracing enabled but no OTLP endpoint configured; spans will not be exported")
		return nil, nil
	}

	logger.Info("OpenTelemetry tracing initialized",
		slog.String("otlp_endpoint", cfg.Observability.OTLP.Endpoint),
		slog.Float64("sample_ratio", cfg.Observability.TraceSampleRatio),
	)
	return tracerProvider, nil
}

func databaseDSN(cfg *config.Config) string {
	params := url.Values{}
	params.Set("parseTime", "true")
	switch cfg.Database.TLSMode {
	case "skip-verify":
		params.Set("tls", "skip-verify")
	case "verify-full":
		params.Set("tls", "true")
	}

	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s",
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.Name,
		params.Encode(),
	)
}

func connectDB(cfg *config.Config, logger *logging.Logger) (*sql.DB, interface{ Unregister() error }, error) {
	dsn := databaseDSN(cfg)

	if cfg.Observability.MetricsEnabled || cfg.Observability.TracingEnabled {
		opts := []otelsql.Option{
			otelsql.WithAttributes(semconv.DBSystemMySQL),
		}
		if cfg.Observability.TracingEnabled {
			opts = append(opts, otelsql.WithSpanOptions(otelsql.SpanOptions{
				DisableErrSkip: true,
			}))
		}

		db, err := otelsql.Open("mysql", dsn, opts...)
		if err != nil {
			return nil, nil, err
		}

		var dbStatsReg interface{ Unregister() error }
		if cfg.Observability.MetricsEnabled {
			dbStatsReg, err = otelsql.RegisterDBStatsMetrics(db, otelsql.WithAttributes(semconv.DBSystemMySQL))
			if err != nil {
				logger.Warn("failed to register DB stats metrics", slog.String("error", err.Error()))
			}
		}

		logger.Info("database instrumentation enabled",
			slog.Bool("metrics", cfg.Observability.MetricsEnabled),
			slog.Bool("tracing", cfg.Observability.TracingEnabled),
		)
		return db, dbStatsReg, nil
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, nil, err
	}
	return db, nil, nil
}

func configureDatabase(ctx context.Context, cfg *config.Config, logger *logging.Logger, db *sql.DB) error {
	if ctx == nil {
		ctx = context.Background()
	}
	db.SetMaxOpenConns(cfg.Database.Pool.MaxOpen)
	db.SetMaxIdleConns(cfg.Database.Pool.MaxIdle)
	db.SetConnMaxLifetime(cfg.Database.Pool.MaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		return err
	}

	logger.Info("connected to database",
		slog.String("database", cfg.Database.Name),
		slog.Int("pool_max_open", cfg.Database.Pool.MaxOpen),
		slog.Int("pool_max_idle", cfg.Database.Pool.MaxIdle),
		slog.Duration("pool_max_lifetime", cfg.Database.Pool.MaxLifetime),
	)
	return nil
}

// buildDecoder maps the configured auth mode onto a token decoder. Mode
// "none" returns a nil decoder, which the resolver treats as permissive.
func buildDecoder(ctx context.Context, cfg *config.Config, logger *logging.Logger) (authz.Decoder, error) {
	switch cfg.Auth.Mode {
	case "", "none":
		logger.Warn("token verification disabled; all requests resolve as authenticated")
		return nil, nil
	case "jwt":
		decoder, err := authz.NewJWTDecoder(authz.JWTDecoderConfig{
			Secret:    []byte(cfg.Auth.Secret),
			Issuer:    cfg.Auth.Issuer,
			Audience:  cfg.Auth.Audience,
			ClockSkew: cfg.Auth.ClockSkew,
		})
		if err != nil {
			return nil, err
		}
		logger.Info("JWT token verification enabled")
		return decoder, nil
	case "oidc":
		decoder, err := authz.NewOIDCDecoder(ctx, authz.OIDCDecoderConfig{
			IssuerURL: cfg.Auth.Issuer,
			Audience:  cfg.Auth.Audience,
			ClockSkew: cfg.Auth.ClockSkew,
		})
		if err != nil {
			return nil, err
		}
		logger.Info("OIDC token verification enabled", slog.String("issuer", cfg.Auth.Issuer))
		return decoder, nil
	default:
		return nil, fmt.Errorf("unsupported auth mode %q", cfg.Auth.Mode)
	}
}

func buildWrapper(cfg *config.Config, logger *logging.Logger, db *sql.DB, model *schema.Model, decoder authz.Decoder, metrics *observability.PipelineMetrics) *pipeline.Wrapper {
	opts := dbexec.Options{QueryTimeout: cfg.Database.Pool.QueryTimeout}

	var versionOverride *dbexec.VersionInfo
	if raw := strings.TrimSpace(cfg.Database.VersionOverride); raw != "" {
		info := dbexec.ParseVersion(raw)
		versionOverride = &info
		logger.Info("database version pinned",
			slog.String("version", info.Version),
			slog.String("edition", info.Edition),
		)
	}

	return pipeline.New(pipeline.Config{
		Model: model,
		Auth: authz.NewResolver(authz.ResolverConfig{
			Decoder:     decoder,
			ClaimFields: cfg.Auth.ClaimFields,
			Logger:      logger,
			Metrics:     metrics,
		}),
		Source:               dbexec.NewSource(db, opts),
		VersionOverride:      versionOverride,
		SubscriptionsEnabled: cfg.Subscriptions.Enabled,
		GlobalAuthentication: cfg.Auth.GlobalAuthentication,
		Logger:               logger,
		Metrics:              metrics,
	})
}

func buildGraphQLHandler(cfg *config.Config, logger *logging.Logger, model *schema.Model, wrapper *pipeline.Wrapper) (http.Handler, *broadcaster, error) {
	events := newBroadcaster()
	gqlSchema, err := buildGraphQLSchema(model, wrapper, events, cfg.Subscriptions.Enabled)
	if err != nil {
		return nil, nil, err
	}

	handler := gqlhandler.New(&gqlhandler.Config{
		Schema:   &gqlSchema,
		Pretty:   true,
		GraphiQL: cfg.Server.GraphiQL,
	})
	if cfg.Server.GraphiQL {
		logger.Info("GraphiQL UI enabled")
	}

	bound := middleware.RequestBindingMiddleware()(handler)
	return middleware.LoggingMiddleware(logger)(bound), events, nil
}

func buildRouter(cfg *config.Config, logger *logging.Logger, db *sql.DB, graphqlHandler http.Handler, meterProvider *observability.MeterProvider) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/graphql", graphqlHandler)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			http.Redirect(w, r, "/graphql", http.StatusFound)
			return
		}
		http.NotFound(w, r)
	})

	mux.HandleFunc("/healthz", healthHandler(db))

	if cfg.Observability.MetricsEnabled && meterProvider != nil {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info("metrics endpoint enabled", slog.String("path", "/metrics"))
	}

	return mux
}

func wrapHTTPHandler(cfg *config.Config, logger *logging.Logger, handler http.Handler) http.Handler {
	if cfg.Observability.MetricsEnabled || cfg.Observability.TracingEnabled {
		handler = otelhttp.NewHandler(handler, "http.server",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return httpRootSpanName(r)
			}),
		)
		logger.Info("HTTP instrumentation enabled")
	}
	return handler
}

func httpRootSpanName(r *http.Request) string {
	if r == nil {
		return "HTTP /*"
	}

	method := strings.TrimSpace(r.Method)
	if method == "" {
		method = "HTTP"
	}

	return method + " " + normalizeHTTPSpanRoute(r.URL.Path)
}

func normalizeHTTPSpanRoute(rawPath string) string {
	switch rawPath {
	case "/", "/graphql", "/healthz", "/metrics":
		return rawPath
	default:
		return "/*"
	}
}

func buildServer(cfg *config.Config, handler http.Handler, serverAddr string) *http.Server {
	return &http.Server{
		Addr:         serverAddr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}

func startServer(cfg *config.Config, logger *logging.Logger, srv *http.Server, serverAddr string) chan error {
	serverErrors := make(chan error, 1)
	go func() {
		logAttrs := []any{
			slog.String("address", serverAddr),
			slog.String("graphql_endpoint", "/graphql"),
			slog.String("health_endpoint", "/healthz"),
			slog.String("auth_mode", cfg.Auth.Mode),
			slog.Bool("subscriptions", cfg.Subscriptions.Enabled),
			slog.String("log_level", cfg.Logging.Level),
			slog.String("log_format", cfg.Logging.Format),
		}
		if cfg.Observability.MetricsEnabled {
			logAttrs = append(logAttrs, slog.String("metrics_endpoint", "/metrics"))
		}
		logger.Info("server starting", logAttrs...)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- fmt.Errorf("server failed: %w", err)
		}
	}()
	return serverErrors
}

// healthHandler returns an HTTP handler for health checks
func healthHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := logging.FromContext(r.Context())
		w.Header().Set("Content-Type", "application/json")

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			reqLogger.Error("health check failed",
				slog.String("error", err.Error()),
				slog.String("check", "database"),
			)
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = fmt.Fprint(w, `{"status":"unhealthy","database":"failed"}`)
			return
		}

		reqLogger.Debug("health check passed")
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprint(w, `{"status":"healthy","database":"ok"}`)
	}
}
