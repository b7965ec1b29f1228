// Package main is the entry point for the accounting API server.
//
// It loads configuration (environment, dotenv, SSM), connects the PostgreSQL
// pool, bootstraps the free plan, wires the domain services and HTTP routes,
// and runs the server alongside the CloudWatch metrics reporter until a
// shutdown signal arrives.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"accounting/internal/accounts"
	"accounting/internal/api"
	"accounting/internal/api/handlers"
	"accounting/internal/billing"
	"accounting/internal/config"
	"accounting/internal/core"
	"accounting/internal/db"
	"accounting/internal/external"
	"accounting/internal/metrics"
	"accounting/internal/notifications/email"
	"accounting/internal/quota"
	"accounting/internal/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig(config.NewSSMProvider(os.Getenv("AWS_REGION")))
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	logger.Info("accounting API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := newPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := db.EnsureFreePlan(ctx, pool); err != nil {
		return fmt.Errorf("bootstrapping free plan: %w", err)
	}

	registry := db.NewRegistry(pool)
	txm := db.NewPgxTxManager(pool, logger)
	clock := types.RealClock{}

	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("loading AWS config: %w", err)
	}

	mailer, err := newMailer(cfg, awsCfg, logger)
	if err != nil {
		return fmt.Errorf("building confirmation mailer: %w", err)
	}

	billingSvc := billing.NewService(txm, clock, logger)
	accountsSvc := accounts.NewService(txm, mailer, clock, logger)
	quotaSvc := quota.NewService(txm, logger)

	validator := core.NewValidator(logger)
	stores := api.NewStoreAdapter(registry)

	router := api.NewRouter(api.RouterConfig{
		APISecret:      cfg.Security.APISecret.Unmask(),
		RequestTimeout: cfg.Server.WriteTimeout,
		Logger:         logger,
		HealthProbes: []core.HealthProbe{
			databaseProbe{pool: pool},
		},
	}, registry.Users(), api.Handlers{
		Accounts: handlers.NewAccountsHandler(accountsSvc, stores, validator, logger),
		Billing:  handlers.NewBillingHandler(billingSvc, validator, logger),
		Block: handlers.NewBlockHandler(
			registry.Prefixes(), quotaSvc, stores, accountsSvc, billingSvc, validator, logger),
		Prefix: handlers.NewPrefixHandler(registry.Prefixes(), logger),
	})

	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("initiating graceful shutdown")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if cfg.Observability.EnableMetrics {
		reporter := metrics.NewReporter(
			cloudwatch.NewFromConfig(awsCfg),
			db.NewStatsRepository(pool),
			cfg.Observability.MetricNamespace,
			logger,
		)
		g.Go(func() error {
			err := reporter.Run(gctx, cfg.Observability.MetricInterval)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newPool creates the PostgreSQL connection pool and verifies connectivity.
func newPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL.Unmask())
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.Database.MaxConns)
	poolCfg.MinConns = int32(cfg.Database.MinConns)
	poolCfg.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolCfg.HealthCheckPeriod = cfg.Database.HealthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating database pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Database.AcquireTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}

// loadAWSConfig resolves the AWS SDK configuration used for SES and
// CloudWatch. AWS_ENDPOINT_URL redirects both to a local stack in tests.
func loadAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.AWS.Region),
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, err
	}
	if cfg.AWS.EndpointURL != "" {
		awsCfg.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
	}
	return awsCfg, nil
}

// newMailer selects the email provider and wraps it in the confirmation
// mailer. When delivery is disabled the mailer degrades to a log-only sender
// so the confirmation protocol still runs end to end.
func newMailer(cfg *config.Config, awsCfg aws.Config, logger *slog.Logger) (accounts.ConfirmationSender, error) {
	if !cfg.Email.Enabled || cfg.IsTestMode {
		logger.Warn("email delivery disabled; confirmation mails will only be logged")
		return logOnlySender{logger: logger}, nil
	}

	var provider external.EmailProvider
	switch cfg.Email.Provider {
	case "sendgrid":
		provider = external.NewSendGridClient(
			&http.Client{Timeout: cfg.Email.SendTimeout},
			external.SendGridClientConfig{
				APIKey: cfg.Email.SendGridAPIKey.Unmask(),
				Logger: logger,
			},
		)
	default:
		provider = external.NewSESClient(awsCfg, external.SESClientConfig{Logger: logger})
	}

	return email.NewConfirmationMailer(provider, email.ConfirmationMailerConfig{
		BaseURL: cfg.Server.ExternalURL,
		From: types.EmailAddress{
			Name:    cfg.Email.FromName,
			Address: cfg.Email.FromAddress,
		},
		Logger: logger,
	})
}

// logOnlySender satisfies accounts.ConfirmationSender without delivering.
type logOnlySender struct {
	logger *slog.Logger
}

func (s logOnlySender) SendConfirmation(_ context.Context, user *types.User) error {
	s.logger.Info("confirmation mail suppressed", "user_id", user.ID, "email", user.Email)
	return nil
}

// databaseProbe reports database health for /healthz.
type databaseProbe struct {
	pool *pgxpool.Pool
}

func (p databaseProbe) Name() string { return "database" }

func (p databaseProbe) Check(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// newLogger creates a structured logger for the given level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
