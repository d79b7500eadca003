package series

import "maps"

var countryNames = map[string]string{
	"AND": "Andorra",
	"AUT": "Austria",
	"BEL": "Belgium",
	"CYP": "Cyprus",
	"DEU": "Germany",
	"ESP": "Spain",
	"EST": "Estonia",
	"FIN": "Finland",
	"FRA": "France",
	"GRC": "Greece",
	"HRV": "Croatia",
	"IRL": "Ireland",
	"ITA": "Italy",
	"LTU": "Lithuania",
	"LUX": "Luxembourg",
	"LVA": "Latvia",
	"MCO": "Monaco",
	"MLT": "Malta",
	"NLD": "Netherlands",
	"PRT": "Portugal",
	"SMR": "San Marino",
	"SVK": "Slovakia",
	"SVN": "Slovenia",
	"VAT": "Vatican City",
}

var commemorativeSuffixes = map[string]string{
	"TOR": "Treaty of Rome",
	"EMU": "Economic and Monetary Union",
	"TYE": "Ten Years of Euro",
	"EUF": "European Flag",
	"ERA": "Erasmus Programme",
}

// CountryName returns the display name for a three letter country code.
func CountryName(code string) (string, bool) {
	name, ok := countryNames[code]
	return name, ok
}

// SuffixDescription returns the phrase for a commemorative theme suffix.
func SuffixDescription(suffix string) (string, bool) {
	desc, ok := commemorativeSuffixes[suffix]
	return desc, ok
}

// Countries returns a copy of the country dictionary.
func Countries() map[string]string {
	return maps.Clone(countryNames)
}

// Suffixes returns a copy of the commemorative suffix dictionary.
func Suffixes() map[string]string {
	return maps.Clone(commemorativeSuffixes)
}

func displayCountry(code string) string {
	if name, ok := CountryName(code); ok {
		return name
	}
	return code
}
