package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/eurocoin-catalog/api/internal/platform/auth"
	"github.com/eurocoin-catalog/api/internal/platform/httpx"
	"github.com/eurocoin-catalog/api/internal/platform/requestctx"
	"github.com/eurocoin-catalog/api/internal/services"
)

const (
	defaultUploadMaxBytes = 10 << 20
	adminRateWindow       = time.Minute
	uploadFormField       = "file"
	selectedFormField     = "selected"
)

// AdminCatalogHandlers exposes catalog maintenance endpoints behind the admin guard.
type AdminCatalogHandlers struct {
	importer       services.CatalogImportService
	catalog        services.CatalogService
	guard          *auth.AdminGuard
	limiter        rateLimiter
	uploadMaxBytes int64
}

// AdminCatalogOption customises construction of AdminCatalogHandlers.
type AdminCatalogOption func(*AdminCatalogHandlers)

// WithAdminImportService injects the import/export service.
func WithAdminImportService(svc services.CatalogImportService) AdminCatalogOption {
	return func(h *AdminCatalogHandlers) {
		h.importer = svc
	}
}

// WithAdminCatalogService injects the catalog service used for the admin listing.
func WithAdminCatalogService(svc services.CatalogService) AdminCatalogOption {
	return func(h *AdminCatalogHandlers) {
		h.catalog = svc
	}
}

// WithAdminGuard sets the guard authenticating every admin route.
func WithAdminGuard(guard *auth.AdminGuard) AdminCatalogOption {
	return func(h *AdminCatalogHandlers) {
		h.guard = guard
	}
}

// WithAdminRateLimit allows perMinute requests per client IP. Zero disables limiting.
func WithAdminRateLimit(perMinute int, clock func() time.Time) AdminCatalogOption {
	return func(h *AdminCatalogHandlers) {
		h.limiter = newWindowRateLimiter(perMinute, adminRateWindow, clock)
	}
}

// WithAdminUploadMaxBytes bounds CSV uploads.
func WithAdminUploadMaxBytes(limit int64) AdminCatalogOption {
	return func(h *AdminCatalogHandlers) {
		if limit > 0 {
			h.uploadMaxBytes = limit
		}
	}
}

// NewAdminCatalogHandlers constructs the admin catalog handlers.
func NewAdminCatalogHandlers(opts ...AdminCatalogOption) *AdminCatalogHandlers {
	h := &AdminCatalogHandlers{uploadMaxBytes: defaultUploadMaxBytes}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers admin endpoints. Every route requires the admin key.
func (h *AdminCatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Group(func(admin chi.Router) {
		// A nil guard answers 503 admin_unconfigured.
		admin.Use(h.guard.RequireAdmin())
		admin.Use(rateLimit(h.limiter, adminRateWindow, h.clientKey))

		admin.Post("/catalog:preview", h.preview)
		admin.Post("/catalog:import", h.importCoins)
		admin.Get("/catalog/export", h.export)
		admin.Post("/catalog:reset", h.reset)
		admin.Post("/catalog/cache:invalidate", h.invalidateCache)
		admin.Get("/catalog/coins", h.listCoins)
	})
}

type previewRowPayload struct {
	Line   int         `json:"line"`
	Status string      `json:"status"`
	Reason string      `json:"reason,omitempty"`
	Coin   coinPayload `json:"coin"`
}

type previewResponse struct {
	Rows       []previewRowPayload `json:"rows"`
	New        int                 `json:"new"`
	Duplicates int                 `json:"duplicates"`
	Invalid    int                 `json:"invalid"`
}

type importResponse struct {
	BatchID  string `json:"batch_id"`
	Inserted int    `json:"inserted"`
	Skipped  int    `json:"skipped"`
	EventID  string `json:"event_id,omitempty"`
}

type exportLinkResponse struct {
	FileName    string `json:"file_name"`
	Rows        int    `json:"rows"`
	Bucket      string `json:"bucket"`
	Object      string `json:"object"`
	DownloadURL string `json:"download_url"`
	ExpiresAt   string `json:"expires_at,omitempty"`
}

type resetResponse struct {
	ResetAt string `json:"reset_at"`
	EventID string `json:"event_id,omitempty"`
}

type invalidateResponse struct {
	Invalidated bool   `json:"invalidated"`
	EventID     string `json:"event_id,omitempty"`
}

func (h *AdminCatalogHandlers) preview(w http.ResponseWriter, r *http.Request) {
	if h.importer == nil {
		writeServiceUnavailable(r.Context(), w, "catalog_import")
		return
	}

	upload, err := h.readUpload(w, r)
	if err != nil {
		writeUploadError(w, r, err)
		return
	}

	preview, err := h.importer.Preview(r.Context(), bytes.NewReader(upload.data))
	if err != nil {
		writeCatalogError(r.Context(), w, err)
		return
	}

	resp := previewResponse{
		Rows:       make([]previewRowPayload, 0, len(preview.Rows)),
		New:        preview.New,
		Duplicates: preview.Duplicates,
		Invalid:    preview.Invalid,
	}
	for _, row := range preview.Rows {
		resp.Rows = append(resp.Rows, previewRowPayload{
			Line:   row.Line,
			Status: string(row.Status),
			Reason: row.Reason,
			Coin:   newCoinPayload(row.Coin),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *AdminCatalogHandlers) importCoins(w http.ResponseWriter, r *http.Request) {
	if h.importer == nil {
		writeServiceUnavailable(r.Context(), w, "catalog_import")
		return
	}

	upload, err := h.readUpload(w, r)
	if err != nil {
		writeUploadError(w, r, err)
		return
	}

	result, err := h.importer.Import(r.Context(), services.ImportCommand{
		Data:        upload.data,
		SelectedIDs: upload.selected,
		Actor:       adminActor(r),
	})
	if err != nil {
		writeCatalogError(r.Context(), w, err)
		return
	}
	requestctx.Annotate(r.Context(),
		zap.String("batch_id", result.BatchID),
		zap.Int("inserted", result.Inserted),
		zap.Int("skipped", result.Skipped),
	)

	writeJSON(w, http.StatusOK, importResponse{
		BatchID:  result.BatchID,
		Inserted: result.Inserted,
		Skipped:  result.Skipped,
		EventID:  result.EventID,
	})
}

func (h *AdminCatalogHandlers) export(w http.ResponseWriter, r *http.Request) {
	if h.importer == nil {
		writeServiceUnavailable(r.Context(), w, "catalog_import")
		return
	}

	values := r.URL.Query()
	format := services.ExportFormat(strings.ToLower(strings.TrimSpace(values.Get("format"))))
	if format == "" {
		format = services.ExportFormatCSV
	}
	upload := false
	if raw := strings.TrimSpace(values.Get("upload")); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "upload must be a boolean", http.StatusBadRequest))
			return
		}
		upload = parsed
	}

	result, err := h.importer.Export(r.Context(), services.ExportCommand{Format: format, Upload: upload})
	if err != nil {
		writeCatalogError(r.Context(), w, err)
		return
	}

	if result.Location != nil {
		writeJSON(w, http.StatusOK, exportLinkResponse{
			FileName:    result.FileName,
			Rows:        result.Rows,
			Bucket:      result.Location.Bucket,
			Object:      result.Location.Object,
			DownloadURL: result.Location.DownloadURL,
			ExpiresAt:   formatTimestamp(result.Location.ExpiresAt),
		})
		return
	}

	w.Header().Set("Content-Type", result.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": result.FileName}))
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Data)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func (h *AdminCatalogHandlers) reset(w http.ResponseWriter, r *http.Request) {
	if h.importer == nil {
		writeServiceUnavailable(r.Context(), w, "catalog_import")
		return
	}

	result, err := h.importer.Reset(r.Context(), services.ResetCommand{Actor: adminActor(r)})
	if err != nil {
		writeCatalogError(r.Context(), w, err)
		return
	}

	writeJSON(w, http.StatusOK, resetResponse{
		ResetAt: formatTimestamp(result.ResetAt),
		EventID: result.EventID,
	})
}

func (h *AdminCatalogHandlers) invalidateCache(w http.ResponseWriter, r *http.Request) {
	if h.importer == nil {
		writeServiceUnavailable(r.Context(), w, "catalog_import")
		return
	}

	eventID, err := h.importer.InvalidateCache(r.Context(), services.InvalidateCacheCommand{Actor: adminActor(r)})
	if err != nil {
		writeCatalogError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, invalidateResponse{Invalidated: true, EventID: eventID})
}

func (h *AdminCatalogHandlers) listCoins(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		writeServiceUnavailable(r.Context(), w, "catalog")
		return
	}

	req, err := parseCoinListRequest(r.URL.Query())
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	req.IncludeTotal = true

	page, err := h.catalog.ListCoins(r.Context(), req)
	if err != nil {
		writeCatalogError(r.Context(), w, err)
		return
	}

	total := page.TotalCount
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, coinListResponse{
		Coins:         newCoinPayloads(page.Items),
		NextPageToken: page.NextPageToken,
		TotalCount:    &total,
	})
}

type catalogUpload struct {
	data     []byte
	selected []string
}

var errEmptyUpload = errors.New("upload is empty")

// readUpload accepts a raw CSV body or a multipart form carrying the CSV in the "file" field.
// Selected ids come from repeated or comma separated "selected" form or query values.
func (h *AdminCatalogHandlers) readUpload(w http.ResponseWriter, r *http.Request) (catalogUpload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.uploadMaxBytes)

	selected := splitValues(r.URL.Query()[selectedFormField])

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(h.uploadMaxBytes); err != nil {
			return catalogUpload{}, err
		}
		defer func() { _ = r.MultipartForm.RemoveAll() }()

		file, _, err := r.FormFile(uploadFormField)
		if err != nil {
			return catalogUpload{}, fmt.Errorf("multipart field %q is required", uploadFormField)
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			return catalogUpload{}, err
		}
		selected = append(selected, splitValues(r.MultipartForm.Value[selectedFormField])...)
		if len(bytes.TrimSpace(data)) == 0 {
			return catalogUpload{}, errEmptyUpload
		}
		return catalogUpload{data: data, selected: selected}, nil
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		return catalogUpload{}, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return catalogUpload{}, errEmptyUpload
	}
	return catalogUpload{data: data, selected: selected}, nil
}

func writeUploadError(w http.ResponseWriter, r *http.Request, err error) {
	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		writeCatalogError(r.Context(), w, err)
		return
	}
	httpx.WriteError(r.Context(), w, httpx.NewError("invalid_upload", err.Error(), http.StatusBadRequest))
}

func (h *AdminCatalogHandlers) clientKey(r *http.Request) string {
	if identity, ok := auth.AdminFromContext(r.Context()); ok && identity.RemoteIP != "" {
		return identity.RemoteIP
	}
	return h.guard.ClientIP(r)
}

func adminActor(r *http.Request) string {
	identity, ok := auth.AdminFromContext(r.Context())
	if !ok {
		return "admin"
	}
	return "admin:" + identity.KeyFingerprint
}

func splitValues(values []string) []string {
	var out []string
	for _, raw := range values {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
