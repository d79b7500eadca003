package handlers

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/eurocoin-catalog/api/internal/platform/httpx"
)

type seriesLabelPayload struct {
	Code  string `json:"code"`
	Label string `json:"label"`
	Kind  string `json:"kind"`
}

type seriesLabelsResponse struct {
	Labels []seriesLabelPayload `json:"labels"`
}

type dictionariesResponse struct {
	Countries map[string]string `json:"countries"`
	Suffixes  map[string]string `json:"suffixes"`
}

func (h *CatalogHandlers) labels(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		writeServiceUnavailable(r.Context(), w, "catalog")
		return
	}

	codes := parseCodes(r.URL.Query())
	if len(codes) == 0 {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "codes is required", http.StatusBadRequest))
		return
	}

	labels, err := h.catalog.Labels(r.Context(), codes)
	if err != nil {
		writeCatalogError(r.Context(), w, err)
		return
	}

	resp := seriesLabelsResponse{Labels: make([]seriesLabelPayload, 0, len(labels))}
	for _, label := range labels {
		resp.Labels = append(resp.Labels, seriesLabelPayload{
			Code:  label.Code,
			Label: label.Label,
			Kind:  label.Kind,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *CatalogHandlers) dictionaries(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		writeServiceUnavailable(r.Context(), w, "catalog")
		return
	}

	dicts := h.catalog.Dictionaries()
	w.Header().Set("Cache-Control", dictionaryCacheControl)
	writeJSON(w, http.StatusOK, dictionariesResponse{
		Countries: dicts.Countries,
		Suffixes:  dicts.Suffixes,
	})
}

// parseCodes accepts codes=A,B and repeated codes parameters, preserving order and duplicates.
func parseCodes(values url.Values) []string {
	var codes []string
	for _, raw := range values["codes"] {
		for _, part := range strings.Split(raw, ",") {
			if code := strings.TrimSpace(part); code != "" {
				codes = append(codes, code)
			}
		}
	}
	return codes
}
