package bigquery

import (
	"fmt"
	"strings"

	"cloud.google.com/go/bigquery"

	domain "github.com/eurocoin-catalog/api/internal/domain"
)

const coinColumns = "coin_type, year, country, series, value, coin_id, image_url, feature, volume, created_at, updated_at"

// catalogSchema mirrors the columns written by the catalog importer.
var catalogSchema = bigquery.Schema{
	{Name: "coin_type", Type: bigquery.StringFieldType, Required: true},
	{Name: "year", Type: bigquery.IntegerFieldType, Required: true},
	{Name: "country", Type: bigquery.StringFieldType, Required: true},
	{Name: "series", Type: bigquery.StringFieldType, Required: true},
	{Name: "value", Type: bigquery.FloatFieldType, Required: true},
	{Name: "coin_id", Type: bigquery.StringFieldType, Required: true},
	{Name: "image_url", Type: bigquery.StringFieldType},
	{Name: "feature", Type: bigquery.StringFieldType},
	{Name: "volume", Type: bigquery.StringFieldType},
	{Name: "created_at", Type: bigquery.TimestampFieldType, Required: true},
	{Name: "updated_at", Type: bigquery.TimestampFieldType, Required: true},
}

func catalogTableMetadata() *bigquery.TableMetadata {
	return &bigquery.TableMetadata{
		Schema: catalogSchema,
		TimePartitioning: &bigquery.TimePartitioning{
			Type:  bigquery.DayPartitioningType,
			Field: "created_at",
		},
		Clustering: &bigquery.Clustering{Fields: []string{"country", "coin_type", "year"}},
	}
}

// whereClause renders the filter as a parameterised predicate. It always returns a valid
// expression so callers can splice it after WHERE.
func whereClause(filter domain.CoinFilter) (string, []bigquery.QueryParameter) {
	var (
		clauses []string
		params  []bigquery.QueryParameter
	)
	add := func(clause, name string, value any) {
		clauses = append(clauses, clause)
		params = append(params, bigquery.QueryParameter{Name: name, Value: value})
	}

	if filter.Type != "" {
		add("coin_type = @coin_type", "coin_type", string(filter.Type))
	}
	if country := strings.TrimSpace(filter.Country); country != "" {
		add("country = @country", "country", strings.ToUpper(country))
	}
	if series := strings.TrimSpace(filter.Series); series != "" {
		add("series = @series", "series", series)
	}
	if filter.Year > 0 {
		add("year = @year", "year", int64(filter.Year))
	}
	if filter.Value != nil {
		add("value = @value", "value", *filter.Value)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		add("(LOWER(country) LIKE @search OR LOWER(series) LIKE @search OR LOWER(IFNULL(feature, '')) LIKE @search)",
			"search", "%"+escapeLike(strings.ToLower(search))+"%")
	}

	if len(clauses) == 0 {
		return "TRUE", nil
	}
	return strings.Join(clauses, " AND "), params
}

func escapeLike(raw string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(raw)
}

func listSQL(table string, where string) string {
	return fmt.Sprintf(
		"SELECT %s FROM %s WHERE %s ORDER BY year DESC, country ASC, series ASC LIMIT @limit OFFSET @offset",
		coinColumns, table, where,
	)
}

func countSQL(table string, where string) string {
	return fmt.Sprintf("SELECT COUNT(*) AS total FROM %s WHERE %s", table, where)
}

func allSQL(table string) string {
	return fmt.Sprintf("SELECT %s FROM %s ORDER BY year ASC, series ASC, country ASC", coinColumns, table)
}

func getSQL(table string) string {
	return fmt.Sprintf("SELECT %s FROM %s WHERE coin_id = @coin_id LIMIT 1", coinColumns, table)
}

func existingSQL(table string) string {
	return fmt.Sprintf("SELECT DISTINCT coin_id FROM %s WHERE coin_id IN UNNEST(@ids)", table)
}

func statsSQL(table string) string {
	return fmt.Sprintf(`SELECT
  COUNT(*) AS total_coins,
  COUNT(DISTINCT country) AS total_countries,
  COUNTIF(coin_type = 'RE') AS regular_coins,
  COUNTIF(coin_type = 'CC') AS commemorative_coins
FROM %s`, table)
}
