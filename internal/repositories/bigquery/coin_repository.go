package bigquery

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	domain "github.com/eurocoin-catalog/api/internal/domain"
	pbigquery "github.com/eurocoin-catalog/api/internal/platform/bigquery"
	"github.com/eurocoin-catalog/api/internal/repositories"
)

const insertChunkSize = 500

// CoinRepository reads and writes the catalog table in BigQuery.
type CoinRepository struct {
	provider *pbigquery.Provider
	now      func() time.Time
}

var _ repositories.CatalogRepository = (*CoinRepository)(nil)

// NewCoinRepository constructs a BigQuery backed catalog repository.
func NewCoinRepository(provider *pbigquery.Provider) (*CoinRepository, error) {
	if provider == nil {
		return nil, errors.New("coin repository: bigquery provider is required")
	}
	return &CoinRepository{
		provider: provider,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

type coinRow struct {
	CoinType  string              `bigquery:"coin_type"`
	Year      int64               `bigquery:"year"`
	Country   string              `bigquery:"country"`
	Series    string              `bigquery:"series"`
	Value     float64             `bigquery:"value"`
	CoinID    string              `bigquery:"coin_id"`
	ImageURL  bigquery.NullString `bigquery:"image_url"`
	Feature   bigquery.NullString `bigquery:"feature"`
	Volume    bigquery.NullString `bigquery:"volume"`
	CreatedAt time.Time           `bigquery:"created_at"`
	UpdatedAt time.Time           `bigquery:"updated_at"`
}

func (row coinRow) toDomain() domain.Coin {
	return domain.Coin{
		ID:        row.CoinID,
		Type:      domain.CoinType(row.CoinType),
		Year:      int(row.Year),
		Country:   row.Country,
		Series:    row.Series,
		Value:     row.Value,
		ImageURL:  row.ImageURL.StringVal,
		Feature:   row.Feature.StringVal,
		Volume:    row.Volume.StringVal,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
}

func rowFromDomain(coin domain.Coin, now time.Time) coinRow {
	created := coin.CreatedAt
	if created.IsZero() {
		created = now
	}
	updated := coin.UpdatedAt
	if updated.IsZero() {
		updated = now
	}
	return coinRow{
		CoinType:  string(coin.Type),
		Year:      int64(coin.Year),
		Country:   coin.Country,
		Series:    coin.Series,
		Value:     coin.Value,
		CoinID:    coin.ID,
		ImageURL:  nullString(coin.ImageURL),
		Feature:   nullString(coin.Feature),
		Volume:    nullString(coin.Volume),
		CreatedAt: created.UTC(),
		UpdatedAt: updated.UTC(),
	}
}

func nullString(value string) bigquery.NullString {
	value = strings.TrimSpace(value)
	return bigquery.NullString{StringVal: value, Valid: value != ""}
}

// List returns one page of coins ordered by year descending.
func (r *CoinRepository) List(ctx context.Context, filter domain.CoinFilter, page repositories.CatalogPage) (domain.CursorPage[domain.Coin], error) {
	client, err := r.client(ctx)
	if err != nil {
		return domain.CursorPage[domain.Coin]{}, err
	}
	where, params := whereClause(filter)
	limit := page.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := page.Offset
	if offset < 0 {
		offset = 0
	}

	query := client.Query(listSQL(r.provider.TablePath(), where))
	query.Parameters = append(params,
		bigquery.QueryParameter{Name: "limit", Value: int64(limit)},
		bigquery.QueryParameter{Name: "offset", Value: int64(offset)},
	)
	coins, err := readCoins(ctx, query, "catalog.list")
	if err != nil {
		return domain.CursorPage[domain.Coin]{}, err
	}
	return domain.CursorPage[domain.Coin]{Items: coins, TotalCount: -1}, nil
}

// Count returns the number of coins matching the filter.
func (r *CoinRepository) Count(ctx context.Context, filter domain.CoinFilter) (int, error) {
	client, err := r.client(ctx)
	if err != nil {
		return 0, err
	}
	where, params := whereClause(filter)
	query := client.Query(countSQL(r.provider.TablePath(), where))
	query.Parameters = params

	var row struct {
		Total int64 `bigquery:"total"`
	}
	if err := readOne(ctx, query, &row, "catalog.count"); err != nil {
		if repositories.IsNotFound(err) {
			return 0, nil
		}
		return 0, err
	}
	return int(row.Total), nil
}

// Get loads a coin by identifier.
func (r *CoinRepository) Get(ctx context.Context, id string) (domain.Coin, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Coin{}, errors.New("coin repository: id is required")
	}
	client, err := r.client(ctx)
	if err != nil {
		return domain.Coin{}, err
	}
	query := client.Query(getSQL(r.provider.TablePath()))
	query.Parameters = []bigquery.QueryParameter{{Name: "coin_id", Value: id}}

	var row coinRow
	if err := readOne(ctx, query, &row, "catalog.get"); err != nil {
		return domain.Coin{}, err
	}
	return row.toDomain(), nil
}

// All returns every coin ordered by year, series and country ascending.
func (r *CoinRepository) All(ctx context.Context) ([]domain.Coin, error) {
	client, err := r.client(ctx)
	if err != nil {
		return nil, err
	}
	return readCoins(ctx, client.Query(allSQL(r.provider.TablePath())), "catalog.all")
}

// ExistingIDs returns the subset of ids already stored.
func (r *CoinRepository) ExistingIDs(ctx context.Context, ids []string) (map[string]struct{}, error) {
	found := make(map[string]struct{})
	cleaned := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			cleaned = append(cleaned, id)
		}
	}
	if len(cleaned) == 0 {
		return found, nil
	}

	client, err := r.client(ctx)
	if err != nil {
		return nil, err
	}
	query := client.Query(existingSQL(r.provider.TablePath()))
	query.Parameters = []bigquery.QueryParameter{{Name: "ids", Value: cleaned}}

	it, err := query.Read(ctx)
	if err != nil {
		return nil, pbigquery.WrapError("catalog.existing_ids", err)
	}
	for {
		var row struct {
			CoinID string `bigquery:"coin_id"`
		}
		err := it.Next(&row)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, pbigquery.WrapError("catalog.existing_ids", err)
		}
		found[row.CoinID] = struct{}{}
	}
	return found, nil
}

// Insert streams the coins into the table. Coin ids double as insert ids so retried
// batches are de-duplicated on a best-effort basis.
func (r *CoinRepository) Insert(ctx context.Context, coins []domain.Coin) (int, error) {
	if len(coins) == 0 {
		return 0, nil
	}
	client, err := r.client(ctx)
	if err != nil {
		return 0, err
	}
	inserter := client.Dataset(r.provider.Dataset()).Table(r.provider.Table()).Inserter()
	now := r.now()

	inserted := 0
	for start := 0; start < len(coins); start += insertChunkSize {
		end := start + insertChunkSize
		if end > len(coins) {
			end = len(coins)
		}
		savers := make([]*bigquery.StructSaver, 0, end-start)
		for _, coin := range coins[start:end] {
			savers = append(savers, &bigquery.StructSaver{
				Struct:   rowFromDomain(coin, now),
				Schema:   catalogSchema,
				InsertID: coin.ID,
			})
		}
		if err := inserter.Put(ctx, savers); err != nil {
			var multi bigquery.PutMultiError
			if errors.As(err, &multi) {
				inserted += len(savers) - len(multi)
			}
			return inserted, pbigquery.WrapError("catalog.insert", err)
		}
		inserted += len(savers)
	}
	return inserted, nil
}

// Stats aggregates catalog totals.
func (r *CoinRepository) Stats(ctx context.Context) (domain.CatalogStats, error) {
	client, err := r.client(ctx)
	if err != nil {
		return domain.CatalogStats{}, err
	}
	var row struct {
		TotalCoins         int64 `bigquery:"total_coins"`
		TotalCountries     int64 `bigquery:"total_countries"`
		RegularCoins       int64 `bigquery:"regular_coins"`
		CommemorativeCoins int64 `bigquery:"commemorative_coins"`
	}
	if err := readOne(ctx, client.Query(statsSQL(r.provider.TablePath())), &row, "catalog.stats"); err != nil {
		if repositories.IsNotFound(err) {
			return domain.CatalogStats{}, nil
		}
		return domain.CatalogStats{}, err
	}
	return domain.CatalogStats{
		TotalCoins:         int(row.TotalCoins),
		TotalCountries:     int(row.TotalCountries),
		RegularCoins:       int(row.RegularCoins),
		CommemorativeCoins: int(row.CommemorativeCoins),
	}, nil
}

// Reset drops the catalog table and recreates it empty with the catalog schema.
func (r *CoinRepository) Reset(ctx context.Context) error {
	client, err := r.client(ctx)
	if err != nil {
		return err
	}
	table := client.Dataset(r.provider.Dataset()).Table(r.provider.Table())
	if err := table.Delete(ctx); err != nil {
		wrapped := pbigquery.WrapError("catalog.reset.delete", err)
		if !repositories.IsNotFound(wrapped) {
			return wrapped
		}
	}
	if err := table.Create(ctx, catalogTableMetadata()); err != nil {
		return pbigquery.WrapError("catalog.reset.create", err)
	}
	return nil
}

// Ping checks the catalog table is reachable.
func (r *CoinRepository) Ping(ctx context.Context) error {
	client, err := r.client(ctx)
	if err != nil {
		return err
	}
	_, err = client.Dataset(r.provider.Dataset()).Table(r.provider.Table()).Metadata(ctx)
	return pbigquery.WrapError("catalog.ping", err)
}

func (r *CoinRepository) client(ctx context.Context) (*bigquery.Client, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("coin repository not initialised")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, pbigquery.WrapError("catalog.client", err)
	}
	return client, nil
}

func readCoins(ctx context.Context, query *bigquery.Query, op string) ([]domain.Coin, error) {
	it, err := query.Read(ctx)
	if err != nil {
		return nil, pbigquery.WrapError(op, err)
	}
	coins := make([]domain.Coin, 0, int(it.TotalRows))
	for {
		var row coinRow
		err := it.Next(&row)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, pbigquery.WrapError(op, err)
		}
		coins = append(coins, row.toDomain())
	}
	return coins, nil
}

func readOne(ctx context.Context, query *bigquery.Query, dst any, op string) error {
	it, err := query.Read(ctx)
	if err != nil {
		return pbigquery.WrapError(op, err)
	}
	err = it.Next(dst)
	if errors.Is(err, iterator.Done) {
		return pbigquery.NotFound(op, "row")
	}
	return pbigquery.WrapError(op, err)
}
