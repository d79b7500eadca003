// Package series classifies catalog series codes and renders their display labels.
package series

import "strings"

// Kind tags the shape of a series code.
type Kind int

const (
	// KindInvalid marks a code that matches neither grammar; it is displayed verbatim.
	KindInvalid Kind = iota
	// KindCommemorative marks CC-YYYY and CC-YYYY-SUFFIX codes.
	KindCommemorative
	// KindRegular marks CCC-NN codes.
	KindRegular
)

func (k Kind) String() string {
	switch k {
	case KindCommemorative:
		return "commemorative"
	case KindRegular:
		return "regular"
	default:
		return "invalid"
	}
}

const (
	commemorativePrefix = "CC"
	codeSeparator       = "-"
)

// Code is the classified form of a raw series code. Only the fields for its Kind are populated.
type Code struct {
	Raw  string
	Kind Kind

	// Commemorative fields.
	Year   string
	Suffix string

	// Regular fields.
	Country string
	Ordinal string
}

// HasSuffix reports whether a commemorative code carries a theme suffix.
func (c Code) HasSuffix() bool {
	return c.Kind == KindCommemorative && c.Suffix != ""
}

// Classify parses code. It never fails: anything outside the grammar comes back as KindInvalid.
func Classify(code string) Code {
	invalid := Code{Raw: code, Kind: KindInvalid}
	if code == "" {
		return invalid
	}
	segments := strings.Split(code, codeSeparator)
	for _, segment := range segments {
		if segment == "" {
			return invalid
		}
	}

	head := segments[0]
	switch {
	case head == commemorativePrefix && len(segments) == 2:
		return Code{Raw: code, Kind: KindCommemorative, Year: segments[1]}
	case head == commemorativePrefix && len(segments) == 3:
		return Code{Raw: code, Kind: KindCommemorative, Year: segments[1], Suffix: segments[2]}
	case len(segments) == 2 && isCountryCode(head):
		return Code{Raw: code, Kind: KindRegular, Country: head, Ordinal: segments[1]}
	default:
		return invalid
	}
}

func isCountryCode(value string) bool {
	if len(value) != 3 {
		return false
	}
	for i := 0; i < len(value); i++ {
		ch := value[i]
		if (ch < 'A' || ch > 'Z') && (ch < 'a' || ch > 'z') {
			return false
		}
	}
	return true
}
