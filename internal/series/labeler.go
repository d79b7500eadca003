package series

import (
	"go.uber.org/zap"

	"github.com/eurocoin-catalog/api/internal/domain"
)

// Labeler is the entry point for label generation. It never fails: codes outside the
// grammar are returned unchanged and missing data yields a degraded label.
type Labeler struct {
	cache  *Cache
	logger *zap.Logger
}

// LabeledCode pairs a code with its rendered label.
type LabeledCode struct {
	Code  string
	Label string
	Kind  Kind
}

// Option configures a Labeler.
type Option func(*Labeler)

// WithLogger attaches a logger used for cache rebuild diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Labeler) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLabeler builds a labeler around cache. A nil cache gets a private one.
func NewLabeler(cache *Cache, opts ...Option) *Labeler {
	if cache == nil {
		cache = NewCache()
	}
	l := &Labeler{cache: cache, logger: zap.NewNop()}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

// Session pins records to the cache generation current at the time of the call. Callers that
// refresh records should take the session in the same step as the Invalidate that precedes them.
func (l *Labeler) Session(records []domain.Coin) *Session {
	return &Session{labeler: l, view: l.cache.View(), records: records}
}

// Label renders a single series code.
func (l *Labeler) Label(code string, records []domain.Coin) string {
	return l.Session(records).Label(code)
}

// BatchLabel renders many codes against one record collection.
func (l *Labeler) BatchLabel(codes []string, records []domain.Coin) map[string]string {
	return l.Session(records).BatchLabel(codes)
}

// BatchLabelOrdered is BatchLabel preserving input order, duplicates included.
func (l *Labeler) BatchLabelOrdered(codes []string, records []domain.Coin) []LabeledCode {
	return l.Session(records).BatchLabelOrdered(codes)
}

// Analysis returns the cached analysis for a country.
func (l *Labeler) Analysis(country string, records []domain.Coin) CountryAnalysis {
	return l.Session(records).Analysis(country)
}

// Invalidate drops every cached analysis and label.
func (l *Labeler) Invalidate() {
	generation := l.cache.Invalidate()
	l.logger.Debug("series label cache invalidated", zap.Uint64("generation", generation))
}

// Stats reports the underlying cache counters.
func (l *Labeler) Stats() CacheStats {
	return l.cache.Stats()
}

// Session renders labels from one record collection into one cache generation.
type Session struct {
	labeler *Labeler
	view    View
	records []domain.Coin
}

// Generation reports the cache generation the session writes to.
func (s *Session) Generation() uint64 {
	return s.view.Generation()
}

// Records returns the collection the session renders from.
func (s *Session) Records() []domain.Coin {
	return s.records
}

// Label renders a single series code.
func (s *Session) Label(code string) string {
	return s.label(Classify(code))
}

// BatchLabel renders each distinct code once.
func (s *Session) BatchLabel(codes []string) map[string]string {
	out := make(map[string]string, len(codes))
	for _, code := range codes {
		if _, ok := out[code]; ok {
			continue
		}
		out[code] = s.Label(code)
	}
	return out
}

// BatchLabelOrdered renders codes in input order, duplicates included.
func (s *Session) BatchLabelOrdered(codes []string) []LabeledCode {
	out := make([]LabeledCode, 0, len(codes))
	for _, raw := range codes {
		code := Classify(raw)
		out = append(out, LabeledCode{Code: raw, Label: s.label(code), Kind: code.Kind})
	}
	return out
}

// Analysis returns the analysis for a country, computed at most once per generation.
func (s *Session) Analysis(country string) CountryAnalysis {
	return s.view.Analysis(country, func() CountryAnalysis {
		analysis := Analyze(country, s.records)
		s.labeler.logger.Debug("series analysis computed",
			zap.String("country", country),
			zap.Int("series", len(analysis.Series)),
			zap.Int("records", len(s.records)),
			zap.Uint64("generation", s.view.Generation()),
		)
		return analysis
	})
}

func (s *Session) label(code Code) string {
	switch code.Kind {
	case KindCommemorative:
		return CommemorativeLabel(code)
	case KindRegular:
		return s.view.Label(code.Raw, func() string {
			return RegularLabel(code, s.Analysis(code.Country))
		})
	default:
		return code.Raw
	}
}
