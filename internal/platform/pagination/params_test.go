package pagination

import (
	"errors"
	"net/url"
	"testing"
)

func TestParseQuery(t *testing.T) {
	tests := []struct {
		raw  string
		want Query
	}{
		{raw: "", want: Query{}},
		{raw: "pageSize=10&pageToken=abc", want: Query{PageSize: 10, PageToken: "abc"}},
		{raw: "page_size=%2015%20&page_token=xyz", want: Query{PageSize: 15, PageToken: "xyz"}},
		{raw: "pageSize=5&page_size=50", want: Query{PageSize: 5}},
		{raw: "pageSize=-1", want: Query{PageSize: -1}},
	}
	for _, tc := range tests {
		t.Run(tc.raw, func(t *testing.T) {
			values, _ := url.ParseQuery(tc.raw)
			got, err := ParseQuery(values)
			if err != nil {
				t.Fatalf("ParseQuery: %v", err)
			}
			if got != tc.want {
				t.Fatalf("want %+v, got %+v", tc.want, got)
			}
		})
	}

	if _, err := ParseQuery(url.Values{"pageSize": {"many"}}); !errors.Is(err, ErrInvalidPageSize) {
		t.Fatalf("expected ErrInvalidPageSize, got %v", err)
	}
}

func TestWindow(t *testing.T) {
	tests := []struct {
		name       string
		size       int
		token      string
		max        int
		wantLimit  int
		wantOffset int
		wantErr    error
	}{
		{name: "default", wantLimit: DefaultPageSize},
		{name: "default capped by max", max: 5, wantLimit: 5},
		{name: "explicit", size: 50, token: EncodeOffset(40), wantLimit: 50, wantOffset: 40},
		{name: "too large", size: DefaultMaxPageSize + 1, wantErr: ErrInvalidPageSize},
		{name: "negative", size: -3, wantErr: ErrInvalidPageSize},
		{name: "bad token", size: 10, token: "%%%", wantErr: ErrInvalidPageToken},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			limit, offset, err := Window(tc.size, tc.token, tc.max)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("want error %v, got %v", tc.wantErr, err)
			}
			if limit != tc.wantLimit || offset != tc.wantOffset {
				t.Fatalf("want limit %d offset %d, got %d %d", tc.wantLimit, tc.wantOffset, limit, offset)
			}
		})
	}
}

func TestOffsetTokens(t *testing.T) {
	offset, err := DecodeOffset(EncodeOffset(40))
	if err != nil || offset != 40 {
		t.Fatalf("round trip gave %d, %v", offset, err)
	}
	if EncodeOffset(0) != "" || EncodeOffset(-5) != "" {
		t.Fatal("expected empty token for non-positive offsets")
	}
	if offset, err := DecodeOffset("  "); err != nil || offset != 0 {
		t.Fatalf("blank token should mean the first page, got %d, %v", offset, err)
	}
	for _, token := range []string{"bm90LWpzb24", "eyJvIjotMX0"} {
		if _, err := DecodeOffset(token); !errors.Is(err, ErrInvalidPageToken) {
			t.Fatalf("%s: expected ErrInvalidPageToken, got %v", token, err)
		}
	}
}

func TestNextToken(t *testing.T) {
	cases := []struct {
		name                          string
		offset, size, returned, total int
		wantOffset                    int
	}{
		{name: "more", offset: 0, size: 20, returned: 20, total: 45, wantOffset: 20},
		{name: "last full page", offset: 20, size: 25, returned: 25, total: 45, wantOffset: 0},
		{name: "short page", offset: 40, size: 20, returned: 5, total: -1, wantOffset: 0},
		{name: "empty page", offset: 40, size: 20, returned: 0, total: -1, wantOffset: 0},
		{name: "unknown total", offset: 0, size: 10, returned: 10, total: -1, wantOffset: 10},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DecodeOffset(NextToken(tc.offset, tc.size, tc.returned, tc.total))
			if err != nil {
				t.Fatalf("DecodeOffset: %v", err)
			}
			if got != tc.wantOffset {
				t.Fatalf("expected next offset %d got %d", tc.wantOffset, got)
			}
		})
	}
}
