package bigquery

import (
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/google/go-cmp/cmp"

	domain "github.com/eurocoin-catalog/api/internal/domain"
)

func TestWhereClauseEmptyFilter(t *testing.T) {
	where, params := whereClause(domain.CoinFilter{})
	if where != "TRUE" {
		t.Fatalf("expected TRUE predicate, got %q", where)
	}
	if len(params) != 0 {
		t.Fatalf("expected no params, got %v", params)
	}
}

func TestWhereClauseAllFilters(t *testing.T) {
	value := 2.0
	where, params := whereClause(domain.CoinFilter{
		Type:    domain.CoinTypeCommemorative,
		Country: " deu ",
		Series:  "CC-2007-TOR",
		Year:    2007,
		Value:   &value,
		Search:  "Rome_50%",
	})

	wantWhere := "coin_type = @coin_type AND country = @country AND series = @series AND year = @year AND value = @value AND " +
		"(LOWER(country) LIKE @search OR LOWER(series) LIKE @search OR LOWER(IFNULL(feature, '')) LIKE @search)"
	if where != wantWhere {
		t.Fatalf("unexpected where clause\n got: %s\nwant: %s", where, wantWhere)
	}

	want := []bigquery.QueryParameter{
		{Name: "coin_type", Value: "CC"},
		{Name: "country", Value: "DEU"},
		{Name: "series", Value: "CC-2007-TOR"},
		{Name: "year", Value: int64(2007)},
		{Name: "value", Value: 2.0},
		{Name: "search", Value: `%rome\_50\%%`},
	}
	if diff := cmp.Diff(want, params); diff != "" {
		t.Fatalf("unexpected params (-want +got):\n%s", diff)
	}
}

func TestSQLUsesTablePathAndOrdering(t *testing.T) {
	table := "`coins2025.db.catalog`"
	list := listSQL(table, "TRUE")
	if !strings.Contains(list, "FROM "+table) || !strings.Contains(list, "ORDER BY year DESC, country ASC, series ASC") {
		t.Fatalf("unexpected list sql %s", list)
	}
	if !strings.Contains(list, "LIMIT @limit OFFSET @offset") {
		t.Fatalf("expected parameterised paging in %s", list)
	}
	if all := allSQL(table); !strings.Contains(all, "ORDER BY year ASC, series ASC, country ASC") {
		t.Fatalf("unexpected export ordering %s", all)
	}
	if existing := existingSQL(table); !strings.Contains(existing, "IN UNNEST(@ids)") {
		t.Fatalf("expected array parameter in %s", existing)
	}
}

func TestRowConversionRoundTrip(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	coin := domain.Coin{
		ID:       "DEU-01-1999-2",
		Type:     domain.CoinTypeRegular,
		Year:     1999,
		Country:  "DEU",
		Series:   "DEU-01",
		Value:    2,
		ImageURL: "https://example.test/deu.png",
	}

	row := rowFromDomain(coin, now)
	if row.Feature.Valid || row.Volume.Valid {
		t.Fatalf("expected empty optional columns to be NULL, got %+v", row)
	}
	if !row.ImageURL.Valid {
		t.Fatal("expected image url to be set")
	}

	got := row.toDomain()
	coin.CreatedAt = now
	coin.UpdatedAt = now
	if diff := cmp.Diff(coin, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestCatalogTableMetadata(t *testing.T) {
	meta := catalogTableMetadata()
	if meta.TimePartitioning == nil || meta.TimePartitioning.Field != "created_at" {
		t.Fatalf("expected day partitioning on created_at, got %+v", meta.TimePartitioning)
	}
	if diff := cmp.Diff([]string{"country", "coin_type", "year"}, meta.Clustering.Fields); diff != "" {
		t.Fatalf("unexpected clustering (-want +got):\n%s", diff)
	}
	if len(meta.Schema) != 11 {
		t.Fatalf("expected 11 columns, got %d", len(meta.Schema))
	}
}
