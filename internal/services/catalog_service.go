package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	domain "github.com/eurocoin-catalog/api/internal/domain"
	"github.com/eurocoin-catalog/api/internal/platform/pagination"
	"github.com/eurocoin-catalog/api/internal/repositories"
	"github.com/eurocoin-catalog/api/internal/series"
)

const (
	maxLabelCodes   = 200
	maxSearchLength = 100
	snapshotKey     = "snapshot"
	metricNamespace = "github.com/eurocoin-catalog/api/internal/services"
)

var (
	// ErrCatalogRepositoryMissing indicates the repository dependency is absent.
	ErrCatalogRepositoryMissing = errors.New("catalog service: repository is not configured")
	// ErrCatalogInvalidInput indicates the caller supplied an invalid filter, page or code list.
	ErrCatalogInvalidInput = errors.New("catalog service: invalid input")
	// ErrCatalogCoinNotFound indicates the requested coin does not exist.
	ErrCatalogCoinNotFound = errors.New("catalog service: coin not found")
	// ErrCatalogRepositoryUnavailable indicates the catalog backend could not be reached.
	ErrCatalogRepositoryUnavailable = errors.New("catalog service: repository unavailable")
)

// CatalogServiceDeps bundles constructor inputs for the catalog service.
type CatalogServiceDeps struct {
	Catalog repositories.CatalogRepository
	// Labeler renders series codes. A nil labeler gets a private cache.
	Labeler *series.Labeler
	// SnapshotTTL bounds how long the in-memory record snapshot is reused. Zero keeps it until Invalidate.
	SnapshotTTL time.Duration
	Logger      *zap.Logger
	Meter       metric.Meter
	Clock       func() time.Time
}

type catalogService struct {
	repo    repositories.CatalogRepository
	labeler *series.Labeler
	ttl     time.Duration
	logger  *zap.Logger
	clock   func() time.Time

	// session pairs the record snapshot with the label cache generation it fills.
	mu       sync.RWMutex
	session  *series.Session
	loadedAt time.Time
	epoch    uint64
	flight   singleflight.Group

	rebuilds metric.Int64Counter
}

var _ CatalogService = (*catalogService)(nil)

// NewCatalogService constructs the catalog service with the supplied dependencies.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Catalog == nil {
		return nil, ErrCatalogRepositoryMissing
	}
	if deps.SnapshotTTL < 0 {
		return nil, fmt.Errorf("catalog service: snapshot ttl must not be negative")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	labeler := deps.Labeler
	if labeler == nil {
		labeler = series.NewLabeler(series.NewCache(), series.WithLogger(logger))
	}
	meter := deps.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(metricNamespace)
	}
	rebuilds, err := meter.Int64Counter(
		"catalog.snapshot.rebuilds",
		metric.WithDescription("Count of catalog record snapshot reloads"),
	)
	if err != nil {
		return nil, fmt.Errorf("catalog service: register snapshot metric: %w", err)
	}

	return &catalogService{
		repo:     deps.Catalog,
		labeler:  labeler,
		ttl:      deps.SnapshotTTL,
		logger:   logger,
		clock:    func() time.Time { return clock().UTC() },
		rebuilds: rebuilds,
	}, nil
}

func (s *catalogService) ListCoins(ctx context.Context, req CoinListRequest) (domain.CursorPage[Coin], error) {
	filter, err := normalizeCoinFilter(req.Filter)
	if err != nil {
		return domain.CursorPage[Coin]{}, err
	}
	pageSize, offset, err := pagination.Window(req.Pagination.PageSize, req.Pagination.PageToken, pagination.DefaultMaxPageSize)
	if err != nil {
		return domain.CursorPage[Coin]{}, fmt.Errorf("%w: %v", ErrCatalogInvalidInput, err)
	}

	page, err := s.repo.List(ctx, filter, repositories.CatalogPage{Offset: offset, Limit: pageSize})
	if err != nil {
		return domain.CursorPage[Coin]{}, mapCatalogRepoError("list coins", err)
	}

	total := -1
	if req.IncludeTotal {
		total, err = s.repo.Count(ctx, filter)
		if err != nil {
			return domain.CursorPage[Coin]{}, mapCatalogRepoError("count coins", err)
		}
	}

	result := domain.CursorPage[Coin]{
		Items:         page.Items,
		NextPageToken: pagination.NextToken(offset, pageSize, len(page.Items), total),
	}
	if result.Items == nil {
		result.Items = []Coin{}
	}
	if total >= 0 {
		result.TotalCount = total
	}
	return result, nil
}

func (s *catalogService) GetCoin(ctx context.Context, id string) (Coin, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Coin{}, fmt.Errorf("%w: coin id is required", ErrCatalogInvalidInput)
	}
	coin, err := s.repo.Get(ctx, id)
	if err != nil {
		return Coin{}, mapCatalogRepoError("get coin", err)
	}
	return coin, nil
}

func (s *catalogService) Stats(ctx context.Context) (CatalogStats, error) {
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return CatalogStats{}, mapCatalogRepoError("catalog stats", err)
	}
	return stats, nil
}

func (s *catalogService) FilterOptions(ctx context.Context) (FilterOptions, error) {
	labels, err := s.records(ctx)
	if err != nil {
		return FilterOptions{}, mapCatalogRepoError("filter options", err)
	}
	records := labels.Records()

	countries := make(map[string]struct{})
	denominations := make(map[float64]struct{})
	commemoratives := make(map[string]series.Code)
	regularCountries := make(map[string]struct{})
	for _, coin := range records {
		if coin.Country != "" {
			countries[coin.Country] = struct{}{}
		}
		if coin.Value > 0 {
			denominations[coin.Value] = struct{}{}
		}
		code := series.Classify(coin.Series)
		switch code.Kind {
		case series.KindCommemorative:
			commemoratives[code.Raw] = code
		case series.KindRegular:
			if coin.Type == domain.CoinTypeRegular {
				regularCountries[code.Country] = struct{}{}
			}
		}
	}

	options := FilterOptions{
		Countries:      sortedKeys(countries),
		Denominations:  make([]float64, 0, len(denominations)),
		Commemoratives: make([]SeriesOption, 0, len(commemoratives)),
		RegularSeries:  []SeriesOption{},
	}
	for value := range denominations {
		options.Denominations = append(options.Denominations, value)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(options.Denominations)))

	for _, code := range commemoratives {
		description, ok := series.SuffixDescription(code.Suffix)
		if !ok {
			description = code.Suffix
		}
		options.Commemoratives = append(options.Commemoratives, SeriesOption{
			Code:        code.Raw,
			Label:       labels.Label(code.Raw),
			Year:        code.Year,
			Suffix:      code.Suffix,
			Description: description,
		})
	}
	sort.Slice(options.Commemoratives, func(i, j int) bool {
		a, b := options.Commemoratives[i], options.Commemoratives[j]
		if ya, yb := baseYear(a.Year), baseYear(b.Year); ya != yb {
			return ya > yb
		}
		return a.Code < b.Code
	})

	for _, country := range sortedKeys(regularCountries) {
		for _, span := range labels.Analysis(country).Series {
			option := SeriesOption{
				Code:    span.Code,
				Label:   labels.Label(span.Code),
				Country: country,
			}
			if _, ok := span.Start.Year(); ok {
				option.Year = span.Start.String()
			}
			options.RegularSeries = append(options.RegularSeries, option)
		}
	}
	return options, nil
}

func (s *catalogService) Labels(ctx context.Context, codes []string) ([]SeriesLabel, error) {
	if len(codes) == 0 {
		return []SeriesLabel{}, nil
	}
	if len(codes) > maxLabelCodes {
		return nil, fmt.Errorf("%w: at most %d codes per request", ErrCatalogInvalidInput, maxLabelCodes)
	}

	labels, err := s.records(ctx)
	if err != nil {
		// Without records every regular label degrades; keep those out of the shared cache.
		s.logger.Warn("catalog snapshot unavailable; rendering degraded labels", zap.Error(err))
		labels = series.NewLabeler(nil).Session(nil)
	}

	rendered := labels.BatchLabelOrdered(codes)
	out := make([]SeriesLabel, len(rendered))
	for i, item := range rendered {
		out[i] = SeriesLabel{Code: item.Code, Label: item.Label, Kind: item.Kind.String()}
	}
	return out, nil
}

func (s *catalogService) Dictionaries() SeriesDictionaries {
	return SeriesDictionaries{
		Countries: series.Countries(),
		Suffixes:  series.Suffixes(),
	}
}

func (s *catalogService) Invalidate(ctx context.Context) {
	s.mu.Lock()
	s.session = nil
	s.epoch++
	s.labeler.Invalidate()
	s.mu.Unlock()
	s.flight.Forget(snapshotKey)
	s.logger.Info("catalog snapshot invalidated")
}

// records returns the label session over the current record snapshot. Concurrent reloads are
// coalesced and the previous session is served when a reload fails.
func (s *catalogService) records(ctx context.Context) (*series.Session, error) {
	s.mu.RLock()
	session, loadedAt, epoch := s.session, s.loadedAt, s.epoch
	s.mu.RUnlock()
	if session != nil && (s.ttl == 0 || s.clock().Sub(loadedAt) < s.ttl) {
		return session, nil
	}

	ch := s.flight.DoChan(snapshotKey, func() (any, error) {
		start := s.clock()
		coins, err := s.repo.All(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		// Labels cached so far came from the previous records. The new session is pinned to the
		// generation opened here, so renders still holding the old session cannot write into it.
		s.mu.Lock()
		if s.epoch != epoch {
			// Invalidate ran while loading; these records may predate it.
			s.mu.Unlock()
			return series.NewLabeler(nil).Session(coins), nil
		}
		s.labeler.Invalidate()
		next := s.labeler.Session(coins)
		s.session = next
		s.loadedAt = s.clock()
		s.mu.Unlock()
		s.rebuilds.Add(ctx, 1, metric.WithAttributes(attribute.Bool("refresh", session != nil)))
		s.logger.Debug("catalog snapshot loaded",
			zap.Int("records", len(coins)),
			zap.Uint64("generation", next.Generation()),
			zap.Duration("elapsed", s.clock().Sub(start)),
		)
		return next, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			if session != nil {
				s.logger.Warn("catalog snapshot reload failed; serving stale snapshot", zap.Error(res.Err))
				return session, nil
			}
			return nil, res.Err
		}
		next, _ := res.Val.(*series.Session)
		return next, nil
	}
}

func normalizeCoinFilter(filter CoinFilter) (CoinFilter, error) {
	if filter.Type != "" {
		coinType, ok := domain.ParseCoinType(string(filter.Type))
		if !ok {
			return CoinFilter{}, fmt.Errorf("%w: coin type must be RE or CC", ErrCatalogInvalidInput)
		}
		filter.Type = coinType
	}
	if filter.Year < 0 {
		return CoinFilter{}, fmt.Errorf("%w: year must be positive", ErrCatalogInvalidInput)
	}
	if filter.Value != nil && *filter.Value <= 0 {
		return CoinFilter{}, fmt.Errorf("%w: value must be positive", ErrCatalogInvalidInput)
	}
	filter.Country = strings.ToUpper(strings.TrimSpace(filter.Country))
	filter.Series = strings.TrimSpace(filter.Series)
	filter.Search = strings.TrimSpace(filter.Search)
	if len([]rune(filter.Search)) > maxSearchLength {
		return CoinFilter{}, fmt.Errorf("%w: search must be at most %d characters", ErrCatalogInvalidInput, maxSearchLength)
	}
	return filter, nil
}

func mapCatalogRepoError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case repositories.IsNotFound(err):
		return fmt.Errorf("%w: %s", ErrCatalogCoinNotFound, op)
	case repositories.IsUnavailable(err):
		return fmt.Errorf("%w: %s: %v", ErrCatalogRepositoryUnavailable, op, err)
	default:
		return fmt.Errorf("catalog service: %s: %w", op, err)
	}
}

// baseYear parses a commemorative year segment; non-numeric years sort last.
func baseYear(raw string) int {
	year, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return year
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for key := range set {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}
