package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/eurocoin-catalog/api/internal/platform/httpx"
	"github.com/eurocoin-catalog/api/internal/platform/requestctx"
	"github.com/eurocoin-catalog/api/internal/services"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func formatTimestamp(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.UTC().Format(time.RFC3339)
}

type coinPayload struct {
	ID        string  `json:"id"`
	CoinType  string  `json:"coin_type"`
	Year      int     `json:"year"`
	Country   string  `json:"country"`
	Series    string  `json:"series"`
	Value     float64 `json:"value"`
	ImageURL  string  `json:"image_url,omitempty"`
	Feature   string  `json:"feature,omitempty"`
	Volume    string  `json:"volume,omitempty"`
	CreatedAt string  `json:"created_at,omitempty"`
	UpdatedAt string  `json:"updated_at,omitempty"`
}

func newCoinPayload(coin services.Coin) coinPayload {
	return coinPayload{
		ID:        coin.ID,
		CoinType:  string(coin.Type),
		Year:      coin.Year,
		Country:   coin.Country,
		Series:    coin.Series,
		Value:     coin.Value,
		ImageURL:  coin.ImageURL,
		Feature:   coin.Feature,
		Volume:    coin.Volume,
		CreatedAt: formatTimestamp(coin.CreatedAt),
		UpdatedAt: formatTimestamp(coin.UpdatedAt),
	}
}

func newCoinPayloads(coins []services.Coin) []coinPayload {
	out := make([]coinPayload, 0, len(coins))
	for _, coin := range coins {
		out = append(out, newCoinPayload(coin))
	}
	return out
}

func writeServiceUnavailable(ctx context.Context, w http.ResponseWriter, name string) {
	httpx.WriteError(ctx, w, httpx.NewError(name+"_unavailable", name+" service is unavailable", http.StatusServiceUnavailable))
}

// writeCatalogError maps catalog and import service errors onto the JSON error envelope.
func writeCatalogError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytes):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "upload exceeds the size limit", http.StatusRequestEntityTooLarge))
	case errors.Is(err, services.ErrCatalogInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCatalogCoinNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("coin_not_found", "coin not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCatalogRepositoryMissing),
		errors.Is(err, services.ErrCatalogRepositoryUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog repository unavailable", http.StatusServiceUnavailable))
	case errors.Is(err, services.ErrCatalogImportInvalidCSV):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_csv", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCatalogImportEmpty):
		httpx.WriteError(ctx, w, httpx.NewError("nothing_to_import", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrCatalogExportFormat):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_format", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCatalogExportEmpty):
		httpx.WriteError(ctx, w, httpx.NewError("catalog_empty", "catalog has no coins to export", http.StatusNotFound))
	case errors.Is(err, services.ErrCatalogExportUploadUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("export_upload_unavailable", "export uploads are not configured", http.StatusServiceUnavailable))
	default:
		requestctx.Logger(ctx).Error("catalog request failed", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("catalog_error", "internal error", http.StatusInternalServerError))
	}
}
