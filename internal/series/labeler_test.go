package series

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/eurocoin-catalog/api/internal/domain"
)

func TestLabeler_Scenarios(t *testing.T) {
	germany := []domain.Coin{
		{Type: domain.CoinTypeRegular, Country: "DEU", Series: "DEU-01", Year: 1999},
		{Type: domain.CoinTypeRegular, Series: "DEU-01", Year: 2020},
	}
	france := []domain.Coin{
		regular("FRA-01", 1999),
		regular("FRA-01", 2021),
		regular("FRA-02", 2022),
	}

	cases := []struct {
		name    string
		code    string
		records []domain.Coin
		want    string
	}{
		{name: "single active series", code: "DEU-01", records: germany, want: "Germany 1999 - now"},
		{name: "concluded series ends at successor start", code: "FRA-01", records: france, want: "France 1999 - 2022"},
		{name: "successor is active", code: "FRA-02", records: france, want: "France 2022 - now"},
		{name: "commemorative with suffix", code: "CC-2007-TOR", want: "2007 Treaty of Rome"},
		{name: "commemorative future year", code: "CC-2031", want: "2031"},
		{name: "unknown country without records", code: "ZZZ-01", want: "ZZZ (Series 01)"},
		{name: "known country without records", code: "FIN-03", records: france, want: "Finland (Series 03)"},
		{name: "series missing from analysis", code: "FRA-05", records: france, want: "France (Series 05)"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			labeler := NewLabeler(NewCache())
			if got := labeler.Label(tc.code, tc.records); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestLabeler_InvalidCodesPassThrough(t *testing.T) {
	labeler := NewLabeler(nil)
	for _, code := range []string{"XYZ", "CC", "", "CC-", "DEU-01-02", "12-34"} {
		if got := labeler.Label(code, nil); got != code {
			t.Fatalf("expected %q unchanged, got %q", code, got)
		}
	}
}

func TestLabeler_DegradesWhenYearsMissing(t *testing.T) {
	records := []domain.Coin{
		regular("IRL-01", 0),
		regular("LUX-01", 2002),
		regular("LUX-02", 0),
	}
	labeler := NewLabeler(NewCache())

	if got := labeler.Label("IRL-01", records); got != "Ireland (Series 01)" {
		t.Fatalf("expected degraded label, got %q", got)
	}
	if got := labeler.Label("LUX-01", records); got != "Luxembourg (Series 01)" {
		t.Fatalf("expected degraded label when successor has no years, got %q", got)
	}
}

func TestLabeler_SingleSeriesAlwaysEndsNow(t *testing.T) {
	labeler := NewLabeler(NewCache())
	records := []domain.Coin{regular("VAT-04", 2005), regular("VAT-04", 2006)}
	if got := labeler.Label("VAT-04", records); got != "Vatican City 2005 - now" {
		t.Fatalf("unexpected label %q", got)
	}
}

func TestLabeler_Idempotent(t *testing.T) {
	labeler := NewLabeler(NewCache())
	records := []domain.Coin{regular("SVN-01", 2007), regular("SVN-02", 2019)}

	first := labeler.Label("SVN-01", records)
	second := labeler.Label("SVN-01", records)
	if first != second {
		t.Fatalf("expected identical labels, got %q and %q", first, second)
	}
	stats := labeler.Stats()
	if stats.Hits == 0 {
		t.Fatalf("expected second call to hit the cache, stats=%+v", stats)
	}
}

func TestLabeler_InvalidateRecomputes(t *testing.T) {
	labeler := NewLabeler(NewCache())
	before := []domain.Coin{regular("EST-01", 2011)}
	after := []domain.Coin{regular("EST-01", 2011), regular("EST-02", 2025)}

	if got := labeler.Label("EST-01", before); got != "Estonia 2011 - now" {
		t.Fatalf("unexpected label %q", got)
	}
	if got := labeler.Label("EST-01", after); got != "Estonia 2011 - now" {
		t.Fatalf("expected cached label until invalidation, got %q", got)
	}

	labeler.Invalidate()

	if got := labeler.Label("EST-01", after); got != "Estonia 2011 - 2025" {
		t.Fatalf("expected recomputed label, got %q", got)
	}
}

func TestLabeler_BatchLabel(t *testing.T) {
	labeler := NewLabeler(NewCache())
	records := []domain.Coin{
		regular("FRA-01", 1999),
		regular("FRA-02", 2022),
	}
	codes := []string{"FRA-02", "CC-2007-TOR", "XYZ", "FRA-01", "FRA-02"}

	got := labeler.BatchLabel(codes, records)
	want := map[string]string{
		"FRA-02":      "France 2022 - now",
		"CC-2007-TOR": "2007 Treaty of Rome",
		"XYZ":         "XYZ",
		"FRA-01":      "France 1999 - 2022",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected batch labels (-want +got):\n%s", diff)
	}

	ordered := labeler.BatchLabelOrdered(codes, records)
	if len(ordered) != len(codes) {
		t.Fatalf("expected %d entries, got %d", len(codes), len(ordered))
	}
	for i, entry := range ordered {
		if entry.Code != codes[i] {
			t.Fatalf("expected input order at %d, got %s", i, entry.Code)
		}
		if entry.Label != want[entry.Code] {
			t.Fatalf("expected %q for %s, got %q", want[entry.Code], entry.Code, entry.Label)
		}
	}
	if ordered[2].Kind != KindInvalid || ordered[1].Kind != KindCommemorative {
		t.Fatalf("unexpected kinds: %v %v", ordered[1].Kind, ordered[2].Kind)
	}
}

func TestLabeler_BatchAmortisesAnalysis(t *testing.T) {
	cache := NewCache()
	labeler := NewLabeler(cache)
	records := []domain.Coin{
		regular("HRV-01", 2023),
		regular("HRV-02", 2030),
	}

	labeler.BatchLabel([]string{"HRV-01", "HRV-02"}, records)

	stats := cache.Stats()
	if stats.Countries != 1 {
		t.Fatalf("expected one cached analysis, got %d", stats.Countries)
	}
	if stats.Labels != 2 {
		t.Fatalf("expected two cached labels, got %d", stats.Labels)
	}
}

func TestLabeler_SessionWritesStayInPinnedGeneration(t *testing.T) {
	cache := NewCache()
	labeler := NewLabeler(cache)
	stale := labeler.Session([]domain.Coin{regular("EST-01", 2011)})

	labeler.Invalidate()
	fresh := labeler.Session([]domain.Coin{regular("EST-01", 2011), regular("EST-02", 2025)})

	if got := stale.Label("EST-01"); got != "Estonia 2011 - now" {
		t.Fatalf("unexpected label from pinned records %q", got)
	}
	if stats := cache.Stats(); stats.Labels != 0 || stats.Countries != 0 {
		t.Fatalf("expected current generation untouched by the older session, got %+v", stats)
	}
	if got := fresh.Label("EST-01"); got != "Estonia 2011 - 2025" {
		t.Fatalf("unexpected label from current records %q", got)
	}
	if stale.Generation() != 0 || fresh.Generation() != 1 {
		t.Fatalf("unexpected generations %d and %d", stale.Generation(), fresh.Generation())
	}
}
