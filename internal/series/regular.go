package series

import "fmt"

// RegularLabel renders a regular series code using the country analysis.
// It falls back to "{Country} (Series NN)" when no year range can be derived.
func RegularLabel(code Code, analysis CountryAnalysis) string {
	if code.Kind != KindRegular {
		return code.Raw
	}
	name := displayCountry(code.Country)
	degraded := fmt.Sprintf("%s (Series %s)", name, code.Ordinal)

	span, ok := analysis.Lookup(code.Raw)
	if !ok {
		return degraded
	}
	start, ok := span.Start.Year()
	if !ok {
		return degraded
	}
	if len(analysis.Series) == 1 || span.Active {
		return fmt.Sprintf("%s %d - now", name, start)
	}

	switch span.End.Kind() {
	case BoundYear:
		end, _ := span.End.Year()
		return fmt.Sprintf("%s %d - %d", name, start, end)
	case BoundOngoing:
		return fmt.Sprintf("%s %d - now", name, start)
	default:
		return degraded
	}
}
