package domain

import (
	"strings"
	"time"
)

// CoinType distinguishes regular circulation coins from commemorative issues.
type CoinType string

const (
	// CoinTypeRegular marks a regular circulation coin (stored as "RE").
	CoinTypeRegular CoinType = "RE"
	// CoinTypeCommemorative marks a commemorative coin (stored as "CC").
	CoinTypeCommemorative CoinType = "CC"
)

// ParseCoinType normalises user input into a known coin type.
func ParseCoinType(raw string) (CoinType, bool) {
	switch CoinType(strings.ToUpper(strings.TrimSpace(raw))) {
	case CoinTypeRegular:
		return CoinTypeRegular, true
	case CoinTypeCommemorative:
		return CoinTypeCommemorative, true
	default:
		return "", false
	}
}

// Coin is a single catalog record.
type Coin struct {
	ID        string
	Type      CoinType
	Year      int
	Country   string
	Series    string
	Value     float64
	ImageURL  string
	Feature   string
	Volume    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CoinFilter narrows catalog listings. Zero values are ignored.
type CoinFilter struct {
	Type    CoinType
	Country string
	Series  string
	Year    int
	Value   *float64
	Search  string
}

// CatalogStats summarises the catalog contents.
type CatalogStats struct {
	TotalCoins         int
	TotalCountries     int
	RegularCoins       int
	CommemorativeCoins int
}

// SeriesOption is a series code paired with its display label.
type SeriesOption struct {
	Code        string
	Label       string
	Country     string
	Year        string
	Suffix      string
	Description string
}

// FilterOptions lists the values offered by catalog filter controls.
type FilterOptions struct {
	Countries      []string
	Denominations  []float64
	Commemoratives []SeriesOption
	RegularSeries  []SeriesOption
}
