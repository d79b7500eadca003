package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	gcs "cloud.google.com/go/storage"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/eurocoin-catalog/api/internal/di"
	"github.com/eurocoin-catalog/api/internal/handlers"
	"github.com/eurocoin-catalog/api/internal/platform/auth"
	pbigquery "github.com/eurocoin-catalog/api/internal/platform/bigquery"
	"github.com/eurocoin-catalog/api/internal/platform/config"
	pfirestore "github.com/eurocoin-catalog/api/internal/platform/firestore"
	"github.com/eurocoin-catalog/api/internal/platform/jobs"
	"github.com/eurocoin-catalog/api/internal/platform/observability"
	"github.com/eurocoin-catalog/api/internal/platform/secrets"
	platformstorage "github.com/eurocoin-catalog/api/internal/platform/storage"
	"github.com/eurocoin-catalog/api/internal/repositories"
	bigqueryRepo "github.com/eurocoin-catalog/api/internal/repositories/bigquery"
	firestoreRepo "github.com/eurocoin-catalog/api/internal/repositories/firestore"
	"github.com/eurocoin-catalog/api/internal/services"
)

const (
	defaultSecretFallbackFile = ".secrets.local"
	secretHealthReference     = "secret://system-healthz"
	shutdownTimeout           = 10 * time.Second
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	envValues, err := config.EnvironmentValues()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read environment values: %v\n", err)
		os.Exit(1)
	}

	baseLogger, err := observability.NewLoggerAtLevel(envValues["LOG_LEVEL"])
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(fetcher),
		config.WithRequiredSecrets("Admin.APIKey"),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	var closers []di.Closer
	checks := []repositories.DependencyCheck{secretManagerCheck(fetcher)}

	catalogRepo, catalogCheck, closer, err := newCatalogRepository(cfg)
	if err != nil {
		logger.Fatal("failed to initialise catalog repository", zap.Error(err), zap.String("backend", cfg.Catalog.Backend))
	}
	closers = append(closers, closer)
	checks = append(checks, catalogCheck)

	var containerOpts []di.Option
	containerOpts = append(containerOpts,
		di.WithLogger(logger),
		di.WithMeter(otel.GetMeterProvider().Meter("github.com/eurocoin-catalog/api")),
		di.WithBuildInfo(buildInfoFromEnv(envValues, cfg, startedAt)),
	)

	if bucket := strings.TrimSpace(cfg.Storage.ExportsBucket); bucket != "" {
		store, uploader, closeStorage, err := newExportStore(ctx, logger.Named("storage"), cfg.Storage)
		if err != nil {
			logger.Fatal("failed to initialise export storage", zap.Error(err))
		}
		closers = append(closers, closeStorage)
		containerOpts = append(containerOpts, di.WithUploader(store))
		checks = append(checks, repositories.DependencyCheck{
			Name:    "storage",
			Timeout: 1500 * time.Millisecond,
			Check: func(ctx context.Context) error {
				return uploader.Ping(ctx, bucket)
			},
		})
	} else {
		logger.Info("exports bucket not configured; export uploads disabled")
	}

	if topicID := strings.TrimSpace(cfg.PubSub.CatalogTopic); topicID != "" {
		client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		topic := client.Topic(topicID)
		publisher, err := jobs.NewPubSubCatalogPublisher(topic)
		if err != nil {
			logger.Fatal("failed to initialise catalog publisher", zap.Error(err))
		}
		closers = append(closers, func(context.Context) error {
			publisher.Stop()
			return client.Close()
		})
		containerOpts = append(containerOpts, di.WithPublisher(publisher))
		checks = append(checks, repositories.DependencyCheck{
			Name:    "pubsub",
			Timeout: time.Second,
			Check: func(ctx context.Context) error {
				ok, err := topic.Exists(ctx)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("topic %s not found", topicID)
				}
				return nil
			},
		})
	}

	healthRepo, err := repositories.NewDependencyHealthRepository(checks)
	if err != nil {
		logger.Fatal("failed to initialise health repository", zap.Error(err))
	}

	container, err := di.NewContainer(ctx, cfg, di.NewRegistry(catalogRepo, healthRepo, closers...), containerOpts...)
	if err != nil {
		logger.Fatal("failed to build services", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("container close error", zap.Error(err))
		}
	}()

	guard := auth.NewAdminGuard(cfg.Admin.APIKey,
		auth.WithAllowedIPs(cfg.Admin.AllowedIPs),
		auth.WithTrustForwardedFor(cfg.Admin.TrustForwardedFor),
		auth.WithLogger(logger.Named("auth")),
	)

	catalogHandlers := handlers.NewCatalogHandlers(handlers.WithCatalogService(container.Services.Catalog))
	adminHandlers := handlers.NewAdminCatalogHandlers(
		handlers.WithAdminImportService(container.Services.Importer),
		handlers.WithAdminCatalogService(container.Services.Catalog),
		handlers.WithAdminGuard(guard),
		handlers.WithAdminRateLimit(cfg.Admin.RateLimitPerMinute, time.Now),
		handlers.WithAdminUploadMaxBytes(cfg.Admin.UploadMaxBytes),
	)
	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfoFromEnv(envValues, cfg, startedAt)),
		handlers.WithHealthSystemService(container.Services.System),
	)

	projectID := traceProjectID(cfg)
	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger.Named("http")),
			observability.TraceMiddleware(projectID),
			observability.RecoveryMiddleware(logger.Named("http")),
			observability.RequestLoggerMiddleware(projectID),
		),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithPublicRoutes(catalogHandlers.Routes),
		handlers.WithAdminRoutes(adminHandlers.Routes),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr), zap.String("backend", cfg.Catalog.Backend))
	go func() {
		serverLogger.Info("eurocoin-catalog api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// newCatalogRepository selects the catalog backend and returns its readiness probe and closer.
func newCatalogRepository(cfg config.Config) (repositories.CatalogRepository, repositories.DependencyCheck, di.Closer, error) {
	switch cfg.Catalog.Backend {
	case config.BackendFirestore:
		provider := pfirestore.NewProvider(cfg.Firestore)
		repo, err := firestoreRepo.NewCoinRepository(provider)
		if err != nil {
			return nil, repositories.DependencyCheck{}, nil, err
		}
		check := repositories.DependencyCheck{Name: "firestore", Timeout: 1500 * time.Millisecond, Critical: true, Check: repo.Ping}
		return repo, check, provider.Close, nil
	default:
		provider := pbigquery.NewProvider(cfg.BigQuery)
		repo, err := bigqueryRepo.NewCoinRepository(provider)
		if err != nil {
			return nil, repositories.DependencyCheck{}, nil, err
		}
		check := repositories.DependencyCheck{Name: "bigquery", Timeout: 2 * time.Second, Critical: true, Check: repo.Ping}
		return repo, check, func(context.Context) error { return provider.Close() }, nil
	}
}

// newExportStore signs download links with API_STORAGE_SIGNER_KEY when provided, otherwise with
// the runtime credentials of the storage client.
func newExportStore(ctx context.Context, logger *zap.Logger, cfg config.StorageConfig) (*platformstorage.ExportStore, *platformstorage.Uploader, di.Closer, error) {
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("storage client: %w", err)
	}
	closeClient := func(context.Context) error { return client.Close() }

	var urls *platformstorage.URLSigner
	if key := strings.TrimSpace(cfg.SignerKey); key != "" {
		signer, err := platformstorage.ParseServiceAccountKey(key)
		if err != nil {
			_ = client.Close()
			return nil, nil, nil, err
		}
		urls, err = platformstorage.NewKeyURLSigner(signer)
		if err != nil {
			_ = client.Close()
			return nil, nil, nil, err
		}
		logger.Info("export links signed with service account key", zap.String("signer", signer.Email()))
	} else {
		urls, err = platformstorage.NewBucketURLSigner(client)
		if err != nil {
			_ = client.Close()
			return nil, nil, nil, err
		}
		logger.Info("export links signed with runtime credentials")
	}

	uploader, err := platformstorage.NewUploader(client)
	if err != nil {
		_ = client.Close()
		return nil, nil, nil, err
	}
	store, err := platformstorage.NewExportStore(cfg.ExportsBucket, uploader, urls, cfg.SignedURLTTL)
	if err != nil {
		_ = client.Close()
		return nil, nil, nil, err
	}
	return store, uploader, closeClient, nil
}

func secretManagerCheck(fetcher *secrets.Fetcher) repositories.DependencyCheck {
	return repositories.DependencyCheck{
		Name:    "secretManager",
		Timeout: time.Second,
		Check: func(ctx context.Context) error {
			_, err := fetcher.Resolve(ctx, secretHealthReference)
			if err == nil || errors.Is(err, secrets.ErrNotFound) {
				return nil
			}
			return err
		},
	}
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		return strings.TrimSpace(env[key])
	}

	defaultProject := lookup("API_SECRET_DEFAULT_PROJECT_ID")
	if defaultProject == "" {
		defaultProject = lookup("API_BIGQUERY_PROJECT_ID")
	}
	fallbackPath := lookup("API_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = defaultSecretFallbackFile
	}

	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
		secrets.WithMeter(otel.GetMeterProvider().Meter("github.com/eurocoin-catalog/api/secrets")),
	}
	if defaultProject != "" {
		opts = append(opts, secrets.WithProject(defaultProject))
	}
	return secrets.NewFetcher(ctx, opts...)
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(env["API_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(env["API_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = "unknown"
	}
	return services.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: cfg.Environment,
		StartedAt:   started,
	}
}

func traceProjectID(cfg config.Config) string {
	if cfg.Catalog.Backend == config.BackendFirestore {
		return strings.TrimSpace(cfg.Firestore.ProjectID)
	}
	return strings.TrimSpace(cfg.BigQuery.ProjectID)
}
