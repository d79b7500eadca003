package firestore

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"golang.org/x/text/cases"

	domain "github.com/eurocoin-catalog/api/internal/domain"
	pfirestore "github.com/eurocoin-catalog/api/internal/platform/firestore"
	"github.com/eurocoin-catalog/api/internal/repositories"
)

const defaultCoinsCollection = "coins"

// CoinRepository stores catalog records as documents keyed by coin id.
type CoinRepository struct {
	base *pfirestore.BaseRepository[domain.Coin]
	now  func() time.Time
}

var _ repositories.CatalogRepository = (*CoinRepository)(nil)

// NewCoinRepository constructs a Firestore-backed catalog repository using the provider's collection.
func NewCoinRepository(provider *pfirestore.Provider) (*CoinRepository, error) {
	if provider == nil {
		return nil, errors.New("coin repository: firestore provider is required")
	}
	collection := provider.Collection()
	if collection == "" {
		collection = defaultCoinsCollection
	}

	encoder := func(_ context.Context, coin domain.Coin) (any, error) {
		return encodeCoinDocument(coin), nil
	}
	decoder := func(_ context.Context, snap *firestore.DocumentSnapshot) (domain.Coin, error) {
		var doc coinDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.Coin{}, err
		}
		if doc.CreatedAt.IsZero() {
			doc.CreatedAt = snap.CreateTime
		}
		if doc.UpdatedAt.IsZero() {
			doc.UpdatedAt = snap.UpdateTime
		}
		coin := decodeCoinDocument(doc)
		if coin.ID == "" {
			coin.ID = snap.Ref.ID
		}
		return coin, nil
	}

	return &CoinRepository{
		base: pfirestore.NewBaseRepository[domain.Coin](provider, collection, encoder, decoder),
		now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

type coinDocument struct {
	CoinID    string    `firestore:"coinId"`
	CoinType  string    `firestore:"coinType"`
	Year      int       `firestore:"year"`
	Country   string    `firestore:"country"`
	Series    string    `firestore:"series"`
	Value     float64   `firestore:"value"`
	ImageURL  string    `firestore:"imageUrl,omitempty"`
	Feature   string    `firestore:"feature,omitempty"`
	Volume    string    `firestore:"volume,omitempty"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

func encodeCoinDocument(coin domain.Coin) coinDocument {
	return coinDocument{
		CoinID:    coin.ID,
		CoinType:  string(coin.Type),
		Year:      coin.Year,
		Country:   coin.Country,
		Series:    coin.Series,
		Value:     coin.Value,
		ImageURL:  strings.TrimSpace(coin.ImageURL),
		Feature:   strings.TrimSpace(coin.Feature),
		Volume:    strings.TrimSpace(coin.Volume),
		CreatedAt: coin.CreatedAt.UTC(),
		UpdatedAt: coin.UpdatedAt.UTC(),
	}
}

func decodeCoinDocument(doc coinDocument) domain.Coin {
	return domain.Coin{
		ID:        doc.CoinID,
		Type:      domain.CoinType(doc.CoinType),
		Year:      doc.Year,
		Country:   doc.Country,
		Series:    doc.Series,
		Value:     doc.Value,
		ImageURL:  doc.ImageURL,
		Feature:   doc.Feature,
		Volume:    doc.Volume,
		CreatedAt: doc.CreatedAt.UTC(),
		UpdatedAt: doc.UpdatedAt.UTC(),
	}
}

// documentID maps a coin id onto a valid Firestore document id.
func documentID(coinID string) string {
	return strings.ReplaceAll(strings.TrimSpace(coinID), "/", "%2F")
}

// List returns a page of coins. Equality filters run in Firestore; free text search runs in memory.
func (r *CoinRepository) List(ctx context.Context, filter domain.CoinFilter, page repositories.CatalogPage) (domain.CursorPage[domain.Coin], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Coin]{}, errors.New("coin repository not initialised")
	}
	limit := page.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := page.Offset
	if offset < 0 {
		offset = 0
	}

	docs, err := r.base.Query(ctx, equalityFilters(filter))
	if err != nil {
		return domain.CursorPage[domain.Coin]{}, err
	}
	coins := matchSearch(documentsToCoins(docs), filter.Search)
	sortForListing(coins)

	total := len(coins)
	if offset >= total {
		return domain.CursorPage[domain.Coin]{Items: []domain.Coin{}, TotalCount: total}, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return domain.CursorPage[domain.Coin]{Items: coins[offset:end], TotalCount: total}, nil
}

// Count returns how many coins match the filter.
func (r *CoinRepository) Count(ctx context.Context, filter domain.CoinFilter) (int, error) {
	if r == nil || r.base == nil {
		return 0, errors.New("coin repository not initialised")
	}
	if strings.TrimSpace(filter.Search) == "" {
		return r.base.Count(ctx, equalityFilters(filter))
	}
	docs, err := r.base.Query(ctx, equalityFilters(filter))
	if err != nil {
		return 0, err
	}
	return len(matchSearch(documentsToCoins(docs), filter.Search)), nil
}

// Get loads a coin by identifier.
func (r *CoinRepository) Get(ctx context.Context, id string) (domain.Coin, error) {
	if r == nil || r.base == nil {
		return domain.Coin{}, errors.New("coin repository not initialised")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Coin{}, errors.New("coin repository: id is required")
	}
	doc, err := r.base.Get(ctx, documentID(id))
	if err != nil {
		return domain.Coin{}, err
	}
	return doc.Data, nil
}

// All returns every coin ordered by year, series and country ascending.
func (r *CoinRepository) All(ctx context.Context) ([]domain.Coin, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("coin repository not initialised")
	}
	docs, err := r.base.Query(ctx, nil)
	if err != nil {
		return nil, err
	}
	coins := documentsToCoins(docs)
	sort.SliceStable(coins, func(i, j int) bool {
		a, b := coins[i], coins[j]
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		if a.Series != b.Series {
			return a.Series < b.Series
		}
		return a.Country < b.Country
	})
	return coins, nil
}

// ExistingIDs returns the subset of ids already stored.
func (r *CoinRepository) ExistingIDs(ctx context.Context, ids []string) (map[string]struct{}, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("coin repository not initialised")
	}
	byDoc := make(map[string]string, len(ids))
	docIDs := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		docID := documentID(id)
		byDoc[docID] = id
		docIDs = append(docIDs, docID)
	}
	found, err := r.base.Existing(ctx, docIDs)
	if err != nil {
		return nil, err
	}
	out := make(map[string]struct{}, len(found))
	for docID := range found {
		out[byDoc[docID]] = struct{}{}
	}
	return out, nil
}

// Insert creates one document per coin. Existing documents are left untouched.
func (r *CoinRepository) Insert(ctx context.Context, coins []domain.Coin) (int, error) {
	if r == nil || r.base == nil {
		return 0, errors.New("coin repository not initialised")
	}
	now := r.now()
	ids := make([]string, 0, len(coins))
	values := make([]domain.Coin, 0, len(coins))
	for _, coin := range coins {
		if strings.TrimSpace(coin.ID) == "" {
			return 0, errors.New("coin repository: id is required")
		}
		if coin.CreatedAt.IsZero() {
			coin.CreatedAt = now
		}
		if coin.UpdatedAt.IsZero() {
			coin.UpdatedAt = now
		}
		ids = append(ids, documentID(coin.ID))
		values = append(values, coin)
	}
	return r.base.CreateAll(ctx, ids, values)
}

// Stats aggregates catalog totals from the full collection.
func (r *CoinRepository) Stats(ctx context.Context) (domain.CatalogStats, error) {
	coins, err := r.All(ctx)
	if err != nil {
		return domain.CatalogStats{}, err
	}
	return computeStats(coins), nil
}

// Reset deletes every document in the collection.
func (r *CoinRepository) Reset(ctx context.Context) error {
	if r == nil || r.base == nil {
		return errors.New("coin repository not initialised")
	}
	_, err := r.base.DeleteAll(ctx)
	return err
}

// Ping checks the collection can be queried.
func (r *CoinRepository) Ping(ctx context.Context) error {
	if r == nil || r.base == nil {
		return errors.New("coin repository not initialised")
	}
	_, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query { return q.Limit(1) })
	return err
}

func equalityFilters(filter domain.CoinFilter) pfirestore.QueryBuilder {
	return func(q firestore.Query) firestore.Query {
		if filter.Type != "" {
			q = q.Where("coinType", "==", string(filter.Type))
		}
		if country := strings.TrimSpace(filter.Country); country != "" {
			q = q.Where("country", "==", strings.ToUpper(country))
		}
		if series := strings.TrimSpace(filter.Series); series != "" {
			q = q.Where("series", "==", series)
		}
		if filter.Year > 0 {
			q = q.Where("year", "==", filter.Year)
		}
		if filter.Value != nil {
			q = q.Where("value", "==", *filter.Value)
		}
		return q
	}
}

func documentsToCoins(docs []pfirestore.Document[domain.Coin]) []domain.Coin {
	coins := make([]domain.Coin, 0, len(docs))
	for _, doc := range docs {
		coins = append(coins, doc.Data)
	}
	return coins
}

// matchSearch keeps coins whose country, series or feature contains the search term
// under Unicode case folding.
func matchSearch(coins []domain.Coin, search string) []domain.Coin {
	search = strings.TrimSpace(search)
	if search == "" {
		return coins
	}
	fold := cases.Fold()
	needle := fold.String(search)
	out := coins[:0]
	for _, coin := range coins {
		if strings.Contains(fold.String(coin.Country), needle) ||
			strings.Contains(fold.String(coin.Series), needle) ||
			strings.Contains(fold.String(coin.Feature), needle) {
			out = append(out, coin)
		}
	}
	return out
}

func sortForListing(coins []domain.Coin) {
	sort.SliceStable(coins, func(i, j int) bool {
		a, b := coins[i], coins[j]
		if a.Year != b.Year {
			return a.Year > b.Year
		}
		if a.Country != b.Country {
			return a.Country < b.Country
		}
		return a.Series < b.Series
	})
}

func computeStats(coins []domain.Coin) domain.CatalogStats {
	stats := domain.CatalogStats{TotalCoins: len(coins)}
	countries := make(map[string]struct{})
	for _, coin := range coins {
		countries[coin.Country] = struct{}{}
		switch coin.Type {
		case domain.CoinTypeRegular:
			stats.RegularCoins++
		case domain.CoinTypeCommemorative:
			stats.CommemorativeCoins++
		}
	}
	stats.TotalCountries = len(countries)
	return stats
}
