package di

import (
	"context"
	"errors"

	"github.com/eurocoin-catalog/api/internal/repositories"
)

// Closer releases a client held by the registry.
type Closer func(ctx context.Context) error

type registry struct {
	catalog repositories.CatalogRepository
	health  repositories.HealthRepository
	closers []Closer
}

// NewRegistry bundles the catalog and health repositories. Closers run in reverse order on Close.
func NewRegistry(catalog repositories.CatalogRepository, health repositories.HealthRepository, closers ...Closer) repositories.Registry {
	return &registry{catalog: catalog, health: health, closers: closers}
}

func (r *registry) Catalog() repositories.CatalogRepository { return r.catalog }

func (r *registry) Health() repositories.HealthRepository { return r.health }

func (r *registry) Close(ctx context.Context) error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if r.closers[i] == nil {
			continue
		}
		if err := r.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
