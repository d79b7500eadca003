package services

import (
	"context"
	"io"
	"time"

	domain "github.com/eurocoin-catalog/api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination         = domain.Pagination
	Coin               = domain.Coin
	CoinFilter         = domain.CoinFilter
	CatalogStats       = domain.CatalogStats
	FilterOptions      = domain.FilterOptions
	SeriesOption       = domain.SeriesOption
	SystemHealthReport = domain.SystemHealthReport
)

// CatalogService serves the public catalog: listings, statistics, filter controls and series labels.
type CatalogService interface {
	ListCoins(ctx context.Context, req CoinListRequest) (domain.CursorPage[Coin], error)
	GetCoin(ctx context.Context, id string) (Coin, error)
	Stats(ctx context.Context) (CatalogStats, error)
	FilterOptions(ctx context.Context) (FilterOptions, error)
	// Labels renders codes in request order. Unknown codes come back verbatim.
	Labels(ctx context.Context, codes []string) ([]SeriesLabel, error)
	Dictionaries() SeriesDictionaries
	// Invalidate drops the record snapshot and every cached label.
	Invalidate(ctx context.Context)
}

// CatalogImportService manages bulk catalog maintenance for administrators.
type CatalogImportService interface {
	Preview(ctx context.Context, r io.Reader) (ImportPreview, error)
	Import(ctx context.Context, cmd ImportCommand) (ImportResult, error)
	Export(ctx context.Context, cmd ExportCommand) (ExportResult, error)
	Reset(ctx context.Context, cmd ResetCommand) (ResetResult, error)
	// InvalidateCache drops cached labels and snapshots and announces it. It returns the event id.
	InvalidateCache(ctx context.Context, cmd InvalidateCacheCommand) (string, error)
}

// SystemService aggregates utility endpoints such as health checks.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// CatalogInvalidator drops derived catalog state after writes.
type CatalogInvalidator interface {
	Invalidate(ctx context.Context)
}

// CatalogEventPublisher emits catalog change notifications.
type CatalogEventPublisher interface {
	PublishCatalogEvent(ctx context.Context, event CatalogEvent) (string, error)
}

// ExportUploader persists rendered exports and returns where they can be downloaded.
type ExportUploader interface {
	StoreExport(ctx context.Context, fileName, contentType string, data []byte) (ExportLocation, error)
}

// CoinListRequest combines listing filters with paging. IncludeTotal asks for an exact match count.
type CoinListRequest struct {
	Filter       CoinFilter
	Pagination   Pagination
	IncludeTotal bool
}

// SeriesLabel is a rendered series code.
type SeriesLabel struct {
	Code  string
	Label string
	Kind  string
}

// SeriesDictionaries exposes the lookup tables used for label rendering.
type SeriesDictionaries struct {
	Countries map[string]string
	Suffixes  map[string]string
}

// ImportRowStatus classifies a previewed CSV row.
type ImportRowStatus string

const (
	// ImportRowNew marks a row whose id is not yet in the catalog.
	ImportRowNew ImportRowStatus = "new"
	// ImportRowDuplicate marks a row whose id already exists or repeats an earlier row.
	ImportRowDuplicate ImportRowStatus = "duplicate"
	// ImportRowInvalid marks a row that failed validation.
	ImportRowInvalid ImportRowStatus = "invalid"
)

// ImportRow is one previewed CSV data row. Line is the 1-based line in the source file.
type ImportRow struct {
	Line   int
	Coin   Coin
	Status ImportRowStatus
	Reason string
}

// ImportPreview summarises an uploaded CSV before anything is written.
type ImportPreview struct {
	Rows       []ImportRow
	New        int
	Duplicates int
	Invalid    int
}

// ImportCommand imports the new rows of a CSV upload. An empty SelectedIDs imports every new row.
type ImportCommand struct {
	Data        []byte
	SelectedIDs []string
	Actor       string
}

// ImportResult reports the outcome of an import.
type ImportResult struct {
	BatchID  string
	Inserted int
	Skipped  int
	EventID  string
}

// ExportFormat selects the export encoding.
type ExportFormat string

const (
	ExportFormatCSV  ExportFormat = "csv"
	ExportFormatXLSX ExportFormat = "xlsx"
)

// ExportCommand requests a full catalog export. Upload stores the file and returns a signed link.
type ExportCommand struct {
	Format ExportFormat
	Upload bool
}

// ExportResult carries the rendered export and, when uploaded, its location.
type ExportResult struct {
	FileName    string
	ContentType string
	Data        []byte
	Rows        int
	Location    *ExportLocation
}

// ExportLocation identifies a stored export.
type ExportLocation struct {
	Bucket      string
	Object      string
	DownloadURL string
	ExpiresAt   time.Time
}

// ResetCommand recreates the catalog storage.
type ResetCommand struct {
	Actor string
}

// InvalidateCacheCommand records who asked for a cache flush.
type InvalidateCacheCommand struct {
	Actor string
}

// ResetResult reports a completed reset.
type ResetResult struct {
	EventID string
	ResetAt time.Time
}

// CatalogEventKind names a catalog change notification.
type CatalogEventKind string

const (
	CatalogEventImported         CatalogEventKind = "catalog.imported"
	CatalogEventReset            CatalogEventKind = "catalog.reset"
	CatalogEventCacheInvalidated CatalogEventKind = "catalog.cache_invalidated"
)

// CatalogEvent is the payload published on catalog changes.
type CatalogEvent struct {
	ID         string           `json:"id"`
	Kind       CatalogEventKind `json:"kind"`
	BatchID    string           `json:"batchId,omitempty"`
	Inserted   int              `json:"inserted,omitempty"`
	Skipped    int              `json:"skipped,omitempty"`
	Actor      string           `json:"actor,omitempty"`
	OccurredAt time.Time        `json:"occurredAt"`
}
