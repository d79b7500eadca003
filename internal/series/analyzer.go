package series

import (
	"sort"
	"strconv"
	"strings"

	"github.com/eurocoin-catalog/api/internal/domain"
)

// BoundKind tags a Bound.
type BoundKind int

const (
	// BoundUnknown means no year could be derived from the records.
	BoundUnknown BoundKind = iota
	// BoundYear carries a concrete year.
	BoundYear
	// BoundOngoing marks a series that is still in production.
	BoundOngoing
)

// Bound is a series start or end year: a concrete year, "ongoing", or unknown.
type Bound struct {
	kind BoundKind
	year int
}

// YearBound returns a concrete-year bound.
func YearBound(year int) Bound { return Bound{kind: BoundYear, year: year} }

// OngoingBound returns the bound of an active series.
func OngoingBound() Bound { return Bound{kind: BoundOngoing} }

// UnknownBound returns the bound used when no year data exists.
func UnknownBound() Bound { return Bound{} }

// Kind reports which variant the bound holds.
func (b Bound) Kind() BoundKind { return b.kind }

// Year returns the concrete year when the bound is BoundYear.
func (b Bound) Year() (int, bool) {
	if b.kind != BoundYear {
		return 0, false
	}
	return b.year, true
}

func (b Bound) String() string {
	switch b.kind {
	case BoundYear:
		return strconv.Itoa(b.year)
	case BoundOngoing:
		return "ongoing"
	default:
		return "unknown"
	}
}

// Span is the derived production range of one regular series.
// Start is always a YearBound or UnknownBound.
type Span struct {
	Code          string
	Ordinal       string
	Start         Bound
	End           Bound
	Active        bool
	ObservedYears []int
}

// CountryAnalysis lists a country's regular series in ordinal order.
type CountryAnalysis struct {
	Country string
	Series  []Span
}

// Lookup finds the span for an exact series code.
func (a CountryAnalysis) Lookup(code string) (Span, bool) {
	for _, span := range a.Series {
		if span.Code == code {
			return span, true
		}
	}
	return Span{}, false
}

// Active returns the active series, if any.
func (a CountryAnalysis) Active() (Span, bool) {
	for _, span := range a.Series {
		if span.Active {
			return span, true
		}
	}
	return Span{}, false
}

type seriesGroup struct {
	code     string
	ordinal  string
	years    map[int]struct{}
	lastSeen int
}

// Analyze partitions the regular records of country into series and infers each series' range.
// A non-final series ends when the next series with observed years starts. The final series is
// ongoing when it has observed years. records is not modified.
func Analyze(country string, records []domain.Coin) CountryAnalysis {
	analysis := CountryAnalysis{Country: country}
	if country == "" {
		return analysis
	}
	prefix := country + codeSeparator

	groups := make(map[string]*seriesGroup)
	for i, record := range records {
		if record.Type != domain.CoinTypeRegular || !strings.HasPrefix(record.Series, prefix) {
			continue
		}
		code := Classify(record.Series)
		if code.Kind != KindRegular || code.Country != country {
			continue
		}
		group, ok := groups[record.Series]
		if !ok {
			group = &seriesGroup{code: record.Series, ordinal: code.Ordinal, years: make(map[int]struct{})}
			groups[record.Series] = group
		}
		group.lastSeen = i
		if record.Year > 0 {
			group.years[record.Year] = struct{}{}
		}
	}
	if len(groups) == 0 {
		return analysis
	}

	// Codes such as FRA-1 and FRA-01 share an ordinal; the group seen last in the input wins.
	byOrdinal := make(map[string]*seriesGroup, len(groups))
	for _, group := range groups {
		key := ordinalKey(group.ordinal)
		if existing, ok := byOrdinal[key]; ok && existing.lastSeen > group.lastSeen {
			continue
		}
		byOrdinal[key] = group
	}

	ordered := make([]*seriesGroup, 0, len(byOrdinal))
	for _, group := range byOrdinal {
		ordered = append(ordered, group)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return lessOrdinal(ordered[i].ordinal, ordered[j].ordinal)
	})

	spans := make([]Span, len(ordered))
	for i, group := range ordered {
		years := sortedYears(group.years)
		start := UnknownBound()
		if len(years) > 0 {
			start = YearBound(years[0])
		}
		spans[i] = Span{
			Code:          group.code,
			Ordinal:       group.ordinal,
			Start:         start,
			End:           UnknownBound(),
			ObservedYears: years,
		}
	}

	last := len(spans) - 1
	for i := range spans {
		if i == last {
			if spans[i].Start.Kind() == BoundYear {
				spans[i].End = OngoingBound()
				spans[i].Active = true
			}
			continue
		}
		for j := i + 1; j < len(spans); j++ {
			if year, ok := spans[j].Start.Year(); ok {
				spans[i].End = YearBound(year)
				break
			}
		}
	}

	analysis.Series = spans
	return analysis
}

func sortedYears(set map[int]struct{}) []int {
	if len(set) == 0 {
		return nil
	}
	years := make([]int, 0, len(set))
	for year := range set {
		years = append(years, year)
	}
	sort.Ints(years)
	return years
}

func ordinalKey(ordinal string) string {
	if n, err := strconv.Atoi(ordinal); err == nil && n >= 0 {
		return strconv.Itoa(n)
	}
	return ordinal
}

// lessOrdinal orders numeric ordinals numerically, ahead of any non-numeric ones.
func lessOrdinal(a, b string) bool {
	na, errA := strconv.Atoi(a)
	nb, errB := strconv.Atoi(b)
	switch {
	case errA == nil && errB == nil:
		if na != nb {
			return na < nb
		}
		return a < b
	case errA == nil:
		return true
	case errB == nil:
		return false
	default:
		return a < b
	}
}
