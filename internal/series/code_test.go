package series

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		code string
		want Code
	}{
		{name: "commemorative year", code: "CC-2031", want: Code{Raw: "CC-2031", Kind: KindCommemorative, Year: "2031"}},
		{name: "commemorative with suffix", code: "CC-2007-TOR", want: Code{Raw: "CC-2007-TOR", Kind: KindCommemorative, Year: "2007", Suffix: "TOR"}},
		{name: "year token is opaque", code: "CC-20X7", want: Code{Raw: "CC-20X7", Kind: KindCommemorative, Year: "20X7"}},
		{name: "regular", code: "DEU-01", want: Code{Raw: "DEU-01", Kind: KindRegular, Country: "DEU", Ordinal: "01"}},
		{name: "regular three letter head starting with C", code: "CYP-02", want: Code{Raw: "CYP-02", Kind: KindRegular, Country: "CYP", Ordinal: "02"}},
		{name: "bare CC", code: "CC", want: Code{Raw: "CC", Kind: KindInvalid}},
		{name: "empty", code: "", want: Code{Raw: "", Kind: KindInvalid}},
		{name: "no separator", code: "XYZ", want: Code{Raw: "XYZ", Kind: KindInvalid}},
		{name: "empty year", code: "CC-", want: Code{Raw: "CC-", Kind: KindInvalid}},
		{name: "too many segments", code: "CC-2007-TOR-X", want: Code{Raw: "CC-2007-TOR-X", Kind: KindInvalid}},
		{name: "two letter country", code: "DE-01", want: Code{Raw: "DE-01", Kind: KindInvalid}},
		{name: "numeric country", code: "D3U-01", want: Code{Raw: "D3U-01", Kind: KindInvalid}},
		{name: "regular with extra segment", code: "DEU-01-A", want: Code{Raw: "DEU-01-A", Kind: KindInvalid}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(tc.code)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatalf("unexpected classification (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCommemorativeLabel(t *testing.T) {
	cases := map[string]string{
		"CC-2007-TOR": "2007 Treaty of Rome",
		"CC-2009-EMU": "2009 Economic and Monetary Union",
		"CC-2031":     "2031",
		"CC-2015-XYZ": "2015 XYZ",
	}
	for code, want := range cases {
		if got := CommemorativeLabel(Classify(code)); got != want {
			t.Fatalf("expected %q for %s, got %q", want, code, got)
		}
	}
	if got := CommemorativeLabel(Classify("DEU-01")); got != "DEU-01" {
		t.Fatalf("expected non commemorative code to pass through, got %q", got)
	}
}

func TestDictionariesAreCopies(t *testing.T) {
	countries := Countries()
	countries["DEU"] = "changed"
	if name, _ := CountryName("DEU"); name != "Germany" {
		t.Fatalf("expected dictionary to be immutable, got %q", name)
	}
	if len(Countries()) != 24 {
		t.Fatalf("expected 24 countries, got %d", len(Countries()))
	}
	if len(Suffixes()) != 5 {
		t.Fatalf("expected 5 suffixes, got %d", len(Suffixes()))
	}
}
