package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/eurocoin-catalog/api/internal/domain"
	"github.com/eurocoin-catalog/api/internal/platform/httpx"
	"github.com/eurocoin-catalog/api/internal/platform/pagination"
	"github.com/eurocoin-catalog/api/internal/services"
)

const (
	coinCacheControl       = "public, max-age=60"
	filtersCacheControl    = "public, max-age=300"
	dictionaryCacheControl = "public, max-age=3600"
)

// CatalogHandlers exposes the unauthenticated coin and series endpoints.
type CatalogHandlers struct {
	catalog services.CatalogService
}

// CatalogOption customises construction of CatalogHandlers.
type CatalogOption func(*CatalogHandlers)

// WithCatalogService injects the catalog service dependency.
func WithCatalogService(svc services.CatalogService) CatalogOption {
	return func(h *CatalogHandlers) {
		h.catalog = svc
	}
}

// NewCatalogHandlers constructs handlers for the public catalog endpoints.
func NewCatalogHandlers(opts ...CatalogOption) *CatalogHandlers {
	h := &CatalogHandlers{}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the coin and series endpoints against the provided router.
func (h *CatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/coins", h.listCoins)
	r.Get("/coins/stats", h.stats)
	r.Get("/coins/filters", h.filters)
	r.Get("/coins/{coinId}", h.getCoin)
	r.Get("/series/labels", h.labels)
	r.Get("/series/dictionaries", h.dictionaries)
}

type coinListResponse struct {
	Coins         []coinPayload `json:"coins"`
	NextPageToken string        `json:"next_page_token,omitempty"`
	TotalCount    *int          `json:"total_count,omitempty"`
}

type statsResponse struct {
	TotalCoins         int `json:"total_coins"`
	TotalCountries     int `json:"total_countries"`
	RegularCoins       int `json:"regular_coins"`
	CommemorativeCoins int `json:"commemorative_coins"`
}

type seriesOptionPayload struct {
	Code        string `json:"code"`
	Label       string `json:"label"`
	Country     string `json:"country"`
	Year        string `json:"year,omitempty"`
	Suffix      string `json:"suffix,omitempty"`
	Description string `json:"description,omitempty"`
}

type filtersResponse struct {
	Countries      []string              `json:"countries"`
	Denominations  []float64             `json:"denominations"`
	Commemoratives []seriesOptionPayload `json:"commemoratives"`
	RegularSeries  []seriesOptionPayload `json:"regular_series"`
}

func (h *CatalogHandlers) listCoins(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		writeServiceUnavailable(r.Context(), w, "catalog")
		return
	}

	req, err := parseCoinListRequest(r.URL.Query())
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.catalog.ListCoins(r.Context(), req)
	if err != nil {
		writeCatalogError(r.Context(), w, err)
		return
	}

	w.Header().Set("Cache-Control", coinCacheControl)
	writeJSON(w, http.StatusOK, coinListResponse{
		Coins:         newCoinPayloads(page.Items),
		NextPageToken: page.NextPageToken,
	})
}

func (h *CatalogHandlers) getCoin(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		writeServiceUnavailable(r.Context(), w, "catalog")
		return
	}

	coinID := strings.TrimSpace(chi.URLParam(r, "coinId"))
	if coinID == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "coin id is required", http.StatusBadRequest))
		return
	}

	coin, err := h.catalog.GetCoin(r.Context(), coinID)
	if err != nil {
		writeCatalogError(r.Context(), w, err)
		return
	}

	w.Header().Set("Cache-Control", coinCacheControl)
	writeJSON(w, http.StatusOK, newCoinPayload(coin))
}

func (h *CatalogHandlers) stats(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		writeServiceUnavailable(r.Context(), w, "catalog")
		return
	}

	stats, err := h.catalog.Stats(r.Context())
	if err != nil {
		writeCatalogError(r.Context(), w, err)
		return
	}

	w.Header().Set("Cache-Control", coinCacheControl)
	writeJSON(w, http.StatusOK, statsResponse{
		TotalCoins:         stats.TotalCoins,
		TotalCountries:     stats.TotalCountries,
		RegularCoins:       stats.RegularCoins,
		CommemorativeCoins: stats.CommemorativeCoins,
	})
}

func (h *CatalogHandlers) filters(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		writeServiceUnavailable(r.Context(), w, "catalog")
		return
	}

	options, err := h.catalog.FilterOptions(r.Context())
	if err != nil {
		writeCatalogError(r.Context(), w, err)
		return
	}

	resp := filtersResponse{
		Countries:      options.Countries,
		Denominations:  options.Denominations,
		Commemoratives: newSeriesOptionPayloads(options.Commemoratives),
		RegularSeries:  newSeriesOptionPayloads(options.RegularSeries),
	}
	if resp.Countries == nil {
		resp.Countries = []string{}
	}
	if resp.Denominations == nil {
		resp.Denominations = []float64{}
	}

	w.Header().Set("Cache-Control", filtersCacheControl)
	writeJSON(w, http.StatusOK, resp)
}

func newSeriesOptionPayloads(options []services.SeriesOption) []seriesOptionPayload {
	out := make([]seriesOptionPayload, 0, len(options))
	for _, opt := range options {
		out = append(out, seriesOptionPayload{
			Code:        opt.Code,
			Label:       opt.Label,
			Country:     opt.Country,
			Year:        opt.Year,
			Suffix:      opt.Suffix,
			Description: opt.Description,
		})
	}
	return out
}

// parseCoinListRequest reads listing filters from the query string. Range checks are left to the service.
func parseCoinListRequest(values url.Values) (services.CoinListRequest, error) {
	req := services.CoinListRequest{
		Filter: services.CoinFilter{
			Country: strings.TrimSpace(values.Get("country")),
			Series:  strings.TrimSpace(values.Get("series")),
			Search:  strings.TrimSpace(values.Get("search")),
		},
	}

	page, err := pagination.ParseQuery(values)
	if err != nil {
		return services.CoinListRequest{}, errors.New("pageSize must be an integer")
	}
	req.Pagination = services.Pagination{PageSize: page.PageSize, PageToken: page.PageToken}

	if raw := strings.TrimSpace(values.Get("coin_type")); raw != "" {
		coinType, ok := domain.ParseCoinType(raw)
		if !ok {
			return services.CoinListRequest{}, errors.New("coin_type must be RE or CC")
		}
		req.Filter.Type = coinType
	}

	if raw := strings.TrimSpace(values.Get("year")); raw != "" {
		year, err := strconv.Atoi(raw)
		if err != nil {
			return services.CoinListRequest{}, errors.New("year must be an integer")
		}
		req.Filter.Year = year
	}

	if raw := strings.TrimSpace(values.Get("value")); raw != "" {
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return services.CoinListRequest{}, errors.New("value must be a number")
		}
		req.Filter.Value = &value
	}

	return req, nil
}
