package repositories

import (
	"context"
	"errors"

	domain "github.com/eurocoin-catalog/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Catalog() CatalogRepository
	Health() HealthRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// IsNotFound reports whether err carries a not-found repository classification.
func IsNotFound(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

// IsConflict reports whether err carries a conflict repository classification.
func IsConflict(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}

// IsUnavailable reports whether err carries an unavailable repository classification.
func IsUnavailable(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsUnavailable()
}

// CatalogRepository reads and writes coin catalog records.
type CatalogRepository interface {
	// List returns one page ordered by year descending, then country and series ascending.
	List(ctx context.Context, filter domain.CoinFilter, page CatalogPage) (domain.CursorPage[domain.Coin], error)
	Count(ctx context.Context, filter domain.CoinFilter) (int, error)
	Get(ctx context.Context, id string) (domain.Coin, error)
	// All returns every record; used to build the in-memory series snapshot.
	All(ctx context.Context) ([]domain.Coin, error)
	// ExistingIDs returns the subset of ids already present.
	ExistingIDs(ctx context.Context, ids []string) (map[string]struct{}, error)
	Insert(ctx context.Context, coins []domain.Coin) (int, error)
	Stats(ctx context.Context) (domain.CatalogStats, error)
	// Reset drops every record and recreates the backing storage.
	Reset(ctx context.Context) error
}

// CatalogPage selects a window of listing results.
type CatalogPage struct {
	Offset int
	Limit  int
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
