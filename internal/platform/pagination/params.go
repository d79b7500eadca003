package pagination

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const (
	DefaultPageSize    = 20
	DefaultMaxPageSize = 100
)

var (
	ErrInvalidPageSize  = errors.New("pagination: invalid pageSize")
	ErrInvalidPageToken = errors.New("pagination: invalid pageToken")
)

// Query holds the raw paging parameters of a listing request. The token is opaque here; the
// service decodes it with DecodeOffset.
type Query struct {
	PageSize  int
	PageToken string
}

// ParseQuery reads pageSize and pageToken, also accepting page_size and page_token. An absent
// size stays zero so the service can apply its default.
func ParseQuery(values url.Values) (Query, error) {
	q := Query{PageToken: first(values, "pageToken", "page_token")}
	raw := first(values, "pageSize", "page_size")
	if raw == "" {
		return q, nil
	}
	size, err := strconv.Atoi(raw)
	if err != nil {
		return Query{}, fmt.Errorf("%w: must be an integer", ErrInvalidPageSize)
	}
	q.PageSize = size
	return q, nil
}

// Window resolves a requested size and token into a concrete limit and offset. Zero selects
// DefaultPageSize; sizes outside 1..maxSize are rejected rather than clamped.
func Window(pageSize int, token string, maxSize int) (limit, offset int, err error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxPageSize
	}
	switch {
	case pageSize == 0:
		limit = min(DefaultPageSize, maxSize)
	case pageSize < 0 || pageSize > maxSize:
		return 0, 0, fmt.Errorf("%w: must be between 1 and %d", ErrInvalidPageSize, maxSize)
	default:
		limit = pageSize
	}
	offset, err = DecodeOffset(token)
	if err != nil {
		return 0, 0, err
	}
	return limit, offset, nil
}

// NextToken returns the token for the page after the one starting at offset, or "" when the
// listing is exhausted. A negative total means unknown.
func NextToken(offset, pageSize, returned, total int) string {
	next := offset + returned
	if returned == 0 || returned < pageSize || (total >= 0 && next >= total) {
		return ""
	}
	return EncodeOffset(next)
}

func first(values url.Values, keys ...string) string {
	for _, key := range keys {
		if v := strings.TrimSpace(values.Get(key)); v != "" {
			return v
		}
	}
	return ""
}
