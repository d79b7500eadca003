package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"
)

const (
	defaultEnvFile         = ".env"
	defaultPort            = "8080"
	defaultReadTimeout     = 15 * time.Second
	defaultWriteTimeout    = 30 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultEnvironment     = "local"
	defaultSnapshotTTL     = 5 * time.Minute
	defaultBigQueryProject = "coins2025"
	defaultBigQueryDataset = "db"
	defaultBigQueryTable   = "catalog"
	defaultBigQueryRegion  = "EU"
	defaultCollection      = "coins"
	defaultSignedURLTTL    = 15 * time.Minute
	defaultUploadMaxBytes  = 10 << 20
	defaultAdminRateLimit  = 30
)

const (
	// BackendBigQuery stores the catalog in a BigQuery table.
	BackendBigQuery = "bigquery"
	// BackendFirestore stores the catalog in a Firestore collection.
	BackendFirestore = "firestore"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server      ServerConfig
	Environment string
	Catalog     CatalogConfig
	BigQuery    BigQueryConfig
	Firestore   FirestoreConfig
	Storage     StorageConfig
	PubSub      PubSubConfig
	Admin       AdminConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// CatalogConfig selects the catalog backend and snapshot behaviour.
type CatalogConfig struct {
	Backend     string
	SnapshotTTL time.Duration
}

// BigQueryConfig locates the catalog table.
type BigQueryConfig struct {
	ProjectID       string
	Dataset         string
	Table           string
	Location        string
	CredentialsFile string
}

type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
	Collection   string
}

// StorageConfig configures catalog export uploads. An empty SignerKey signs with runtime credentials.
type StorageConfig struct {
	ExportsBucket string
	SignerKey     string
	SignedURLTTL  time.Duration
}

// PubSubConfig configures catalog change notifications. An empty topic disables publishing.
type PubSubConfig struct {
	ProjectID    string
	CatalogTopic string
}

// AdminConfig guards the catalog administration endpoints.
type AdminConfig struct {
	APIKey             string
	AllowedIPs         []string
	TrustForwardedFor  bool
	UploadMaxBytes     int64
	RateLimitPerMinute int
}

// ValidationError lists config fields that are missing, unparsable or out of range.
type ValidationError struct {
	fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the offending field names in detection order.
func (e *ValidationError) Fields() []string {
	return append([]string(nil), e.fields...)
}

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile               string
	envMap                map[string]string
	useSystemEnv          bool
	secret                SecretResolver
	requiredSecrets       []string
	panicOnMissingSecrets bool
}

func newLoaderOptions(opts []Option) loaderOptions {
	options := loaderOptions{envFile: defaultEnvFile, useSystemEnv: true}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	return options
}

// WithEnvFile overrides the dotenv path. An empty path disables the file.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) { o.envFile = path }
}

// WithEnvMap injects values that take precedence over the process environment.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) { o.envMap = values }
}

// WithoutSystemEnv ignores the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) { o.useSystemEnv = false }
}

// WithSecretResolver sets the resolver used for secret:// and sm:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) { o.secret = resolver }
}

// WithRequiredSecrets marks secret fields, such as "Admin.APIKey", that must resolve to a value.
func WithRequiredSecrets(names ...string) Option {
	return func(o *loaderOptions) { o.requiredSecrets = append(o.requiredSecrets, names...) }
}

// WithPanicOnMissingSecrets makes Load panic instead of returning a MissingSecretsError.
func WithPanicOnMissingSecrets() Option {
	return func(o *loaderOptions) { o.panicOnMissingSecrets = true }
}

// Load builds the configuration from defaults, the dotenv file, the process environment, explicit
// overrides and secret references, in increasing order of precedence.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := newLoaderOptions(opts)
	src, err := newSources(options)
	if err != nil {
		return Config{}, err
	}

	env := &envReader{lookup: src.lookup}
	cfg := read(env)

	resolved, err := resolveSecrets(ctx, options.secret, []secretField{
		{name: "Admin.APIKey", value: &cfg.Admin.APIKey},
		{name: "Storage.SignerKey", value: &cfg.Storage.SignerKey},
	})
	if err != nil {
		return Config{}, err
	}

	if invalid := append(env.invalid, validate(cfg)...); len(invalid) > 0 {
		return Config{}, &ValidationError{fields: invalid}
	}

	if missing := missingSecrets(options.requiredSecrets, resolved); missing != nil {
		if options.panicOnMissingSecrets {
			fmt.Fprintf(os.Stderr, "config: %s\n", missing.Error())
			panic(missing)
		}
		return Config{}, missing
	}
	return cfg, nil
}

func read(env *envReader) Config {
	cfg := Config{
		Server: ServerConfig{
			Port:         env.str("API_SERVER_PORT", defaultPort),
			ReadTimeout:  env.duration("Server.ReadTimeout", "API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: env.duration("Server.WriteTimeout", "API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  env.duration("Server.IdleTimeout", "API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Environment: strings.ToLower(env.str("API_ENVIRONMENT", defaultEnvironment)),
		Catalog: CatalogConfig{
			Backend:     strings.ToLower(env.str("API_CATALOG_BACKEND", BackendBigQuery)),
			SnapshotTTL: env.duration("Catalog.SnapshotTTL", "API_CATALOG_SNAPSHOT_TTL", defaultSnapshotTTL),
		},
		BigQuery: BigQueryConfig{
			ProjectID:       env.str("API_BIGQUERY_PROJECT_ID", defaultBigQueryProject),
			Dataset:         env.str("API_BIGQUERY_DATASET", defaultBigQueryDataset),
			Table:           env.str("API_BIGQUERY_TABLE", defaultBigQueryTable),
			Location:        env.str("API_BIGQUERY_LOCATION", defaultBigQueryRegion),
			CredentialsFile: env.str("API_BIGQUERY_CREDENTIALS_FILE", ""),
		},
		Firestore: FirestoreConfig{
			ProjectID:    env.str("API_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: env.str("API_FIRESTORE_EMULATOR_HOST", ""),
			Collection:   env.str("API_FIRESTORE_COLLECTION", defaultCollection),
		},
		Storage: StorageConfig{
			ExportsBucket: env.str("API_STORAGE_EXPORTS_BUCKET", ""),
			SignerKey:     env.str("API_STORAGE_SIGNER_KEY", ""),
			SignedURLTTL:  env.duration("Storage.SignedURLTTL", "API_STORAGE_SIGNED_URL_TTL", defaultSignedURLTTL),
		},
		PubSub: PubSubConfig{
			ProjectID:    env.str("API_PUBSUB_PROJECT_ID", ""),
			CatalogTopic: env.str("API_PUBSUB_CATALOG_TOPIC", ""),
		},
		Admin: AdminConfig{
			APIKey:             env.str("API_ADMIN_API_KEY", ""),
			AllowedIPs:         env.list("API_ADMIN_ALLOWED_IPS"),
			TrustForwardedFor:  env.boolean("Admin.TrustForwardedFor", "API_ADMIN_TRUSTED_PROXIES", false),
			UploadMaxBytes:     env.integer("Admin.UploadMaxBytes", "API_ADMIN_UPLOAD_MAX_BYTES", defaultUploadMaxBytes),
			RateLimitPerMinute: int(env.integer("Admin.RateLimitPerMinute", "API_ADMIN_RATE_LIMIT", defaultAdminRateLimit)),
		},
	}

	// Firestore and Pub/Sub share the warehouse project unless configured separately.
	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = cfg.BigQuery.ProjectID
	}
	if cfg.PubSub.ProjectID == "" {
		cfg.PubSub.ProjectID = cfg.BigQuery.ProjectID
	}
	return cfg
}

func validate(cfg Config) []string {
	var invalid []string
	require := func(field, value string) {
		if value == "" {
			invalid = append(invalid, field)
		}
	}

	require("Server.Port", cfg.Server.Port)
	switch cfg.Catalog.Backend {
	case BackendBigQuery:
		require("BigQuery.ProjectID", cfg.BigQuery.ProjectID)
		require("BigQuery.Dataset", cfg.BigQuery.Dataset)
		require("BigQuery.Table", cfg.BigQuery.Table)
	case BackendFirestore:
		require("Firestore.ProjectID", cfg.Firestore.ProjectID)
		require("Firestore.Collection", cfg.Firestore.Collection)
	default:
		invalid = append(invalid, "Catalog.Backend")
	}
	if cfg.Catalog.SnapshotTTL < 0 {
		invalid = append(invalid, "Catalog.SnapshotTTL")
	}
	if cfg.Storage.ExportsBucket != "" && cfg.Storage.SignedURLTTL <= 0 {
		invalid = append(invalid, "Storage.SignedURLTTL")
	}
	if cfg.Admin.UploadMaxBytes <= 0 {
		invalid = append(invalid, "Admin.UploadMaxBytes")
	}
	if cfg.Admin.RateLimitPerMinute < 0 {
		invalid = append(invalid, "Admin.RateLimitPerMinute")
	}
	return invalid
}
