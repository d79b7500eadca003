package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/eurocoin-catalog/api/internal/platform/config"
	"github.com/eurocoin-catalog/api/internal/repositories"
	"github.com/eurocoin-catalog/api/internal/series"
	"github.com/eurocoin-catalog/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Catalog  services.CatalogService
	Importer services.CatalogImportService
	System   services.SystemService
}

// Container wires repositories and services for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// Option customises container construction.
type Option func(*containerOptions)

type containerOptions struct {
	logger    *zap.Logger
	meter     metric.Meter
	publisher services.CatalogEventPublisher
	uploader  services.ExportUploader
	build     services.BuildInfo
	clock     func() time.Time
}

// WithLogger sets the base logger handed to services.
func WithLogger(logger *zap.Logger) Option {
	return func(o *containerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMeter sets the meter used for service metrics.
func WithMeter(meter metric.Meter) Option {
	return func(o *containerOptions) {
		o.meter = meter
	}
}

// WithPublisher enables catalog change notifications.
func WithPublisher(publisher services.CatalogEventPublisher) Option {
	return func(o *containerOptions) {
		o.publisher = publisher
	}
}

// WithUploader enables uploaded exports with signed download links.
func WithUploader(uploader services.ExportUploader) Option {
	return func(o *containerOptions) {
		o.uploader = uploader
	}
}

// WithBuildInfo sets the build metadata reported by health endpoints.
func WithBuildInfo(build services.BuildInfo) Option {
	return func(o *containerOptions) {
		o.build = build
	}
}

// WithClock overrides the clock shared by services.
func WithClock(clock func() time.Time) Option {
	return func(o *containerOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// NewContainer constructs the runtime dependencies from a repository registry.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, opts ...Option) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	options := containerOptions{
		logger: zap.NewNop(),
		clock:  time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	svc, err := buildServices(ctx, reg, cfg, options)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(_ context.Context, reg repositories.Registry, cfg config.Config, opts containerOptions) (Services, error) {
	var svc Services

	catalogRepo := reg.Catalog()
	if catalogRepo == nil {
		return Services{}, errors.New("catalog repository is required")
	}

	logger := opts.logger
	labeler := series.NewLabeler(series.NewCache(), series.WithLogger(logger.Named("series")))

	catalogSvc, err := services.NewCatalogService(services.CatalogServiceDeps{
		Catalog:     catalogRepo,
		Labeler:     labeler,
		SnapshotTTL: cfg.Catalog.SnapshotTTL,
		Logger:      logger.Named("catalog"),
		Meter:       opts.meter,
		Clock:       opts.clock,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build catalog service: %w", err)
	}
	svc.Catalog = catalogSvc

	importSvc, err := services.NewCatalogImportService(services.CatalogImportServiceDeps{
		Catalog:     catalogRepo,
		Invalidator: catalogSvc,
		Publisher:   opts.publisher,
		Uploader:    opts.uploader,
		Logger:      logger.Named("catalog_import"),
		Clock:       opts.clock,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build catalog import service: %w", err)
	}
	svc.Importer = importSvc

	if healthRepo := reg.Health(); healthRepo != nil {
		build := opts.build
		if build.Environment == "" {
			build.Environment = cfg.Environment
		}
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			LabelCache:       labeler,
			Clock:            opts.clock,
			Build:            build,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}
