package di

import (
	"context"
	"errors"
	"testing"

	domain "github.com/eurocoin-catalog/api/internal/domain"
	"github.com/eurocoin-catalog/api/internal/platform/config"
	"github.com/eurocoin-catalog/api/internal/repositories"
)

type memoryCatalog struct {
	coins []domain.Coin
}

func (m *memoryCatalog) List(context.Context, domain.CoinFilter, repositories.CatalogPage) (domain.CursorPage[domain.Coin], error) {
	return domain.CursorPage[domain.Coin]{Items: m.coins}, nil
}

func (m *memoryCatalog) Count(context.Context, domain.CoinFilter) (int, error) {
	return len(m.coins), nil
}

func (m *memoryCatalog) Get(_ context.Context, id string) (domain.Coin, error) {
	for _, coin := range m.coins {
		if coin.ID == id {
			return coin, nil
		}
	}
	return domain.Coin{}, errors.New("not found")
}

func (m *memoryCatalog) All(context.Context) ([]domain.Coin, error) {
	return m.coins, nil
}

func (m *memoryCatalog) ExistingIDs(context.Context, []string) (map[string]struct{}, error) {
	return map[string]struct{}{}, nil
}

func (m *memoryCatalog) Insert(_ context.Context, coins []domain.Coin) (int, error) {
	m.coins = append(m.coins, coins...)
	return len(coins), nil
}

func (m *memoryCatalog) Stats(context.Context) (domain.CatalogStats, error) {
	return domain.CatalogStats{TotalCoins: len(m.coins)}, nil
}

func (m *memoryCatalog) Reset(context.Context) error {
	m.coins = nil
	return nil
}

type staticHealth struct{}

func (staticHealth) Collect(context.Context) (domain.SystemHealthReport, error) {
	return domain.SystemHealthReport{Status: domain.HealthStatusOK}, nil
}

func TestNewContainerRequiresRegistry(t *testing.T) {
	if _, err := NewContainer(context.Background(), config.Config{}, nil); err == nil {
		t.Fatalf("expected error for nil registry")
	}
}

func TestNewContainerRequiresCatalog(t *testing.T) {
	if _, err := NewContainer(context.Background(), config.Config{}, NewRegistry(nil, nil)); err == nil {
		t.Fatalf("expected error without catalog repository")
	}
}

func TestNewContainerBuildsServices(t *testing.T) {
	catalog := &memoryCatalog{coins: []domain.Coin{
		{ID: "fr-2002-1", Type: domain.CoinTypeRegular, Year: 2002, Country: "France", Series: "FRA-01", Value: 1},
	}}
	container, err := NewContainer(context.Background(), config.Config{Environment: "test"}, NewRegistry(catalog, staticHealth{}))
	if err != nil {
		t.Fatalf("NewContainer: %v", err)
	}
	if container.Services.Catalog == nil || container.Services.Importer == nil || container.Services.System == nil {
		t.Fatalf("expected all services wired, got %+v", container.Services)
	}

	labels, err := container.Services.Catalog.Labels(context.Background(), []string{"FRA-01"})
	if err != nil {
		t.Fatalf("Labels: %v", err)
	}
	if len(labels) != 1 || labels[0].Code != "FRA-01" {
		t.Fatalf("unexpected labels %+v", labels)
	}

	report, err := container.Services.System.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("HealthReport: %v", err)
	}
	if report.Environment != "test" {
		t.Fatalf("expected environment from config, got %q", report.Environment)
	}
	if _, ok := report.Checks["seriesLabelCache"]; !ok {
		t.Fatalf("expected label cache diagnostics in report, got %+v", report.Checks)
	}
}

func TestNewContainerWithoutHealth(t *testing.T) {
	container, err := NewContainer(context.Background(), config.Config{}, NewRegistry(&memoryCatalog{}, nil))
	if err != nil {
		t.Fatalf("NewContainer: %v", err)
	}
	if container.Services.System != nil {
		t.Fatalf("expected no system service without health repository")
	}
}

func TestRegistryCloseRunsClosersInReverse(t *testing.T) {
	var order []string
	reg := NewRegistry(&memoryCatalog{}, nil,
		func(context.Context) error { order = append(order, "bigquery"); return nil },
		func(context.Context) error { order = append(order, "pubsub"); return errors.New("pubsub close") },
	)

	err := reg.Close(context.Background())
	if err == nil || err.Error() != "pubsub close" {
		t.Fatalf("expected joined close error, got %v", err)
	}
	if len(order) != 2 || order[0] != "pubsub" || order[1] != "bigquery" {
		t.Fatalf("unexpected close order %v", order)
	}
}
