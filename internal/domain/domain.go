package domain

import "time"

const (
	timestampLayout = "02/01/2006 15:04:05"
	dateKeyLayout   = "02_01_2006"
)

// SortDirection is the sort_dir value sent to the listings endpoint.
type SortDirection string

const (
	SortAscending  SortDirection = "asc"
	SortDescending SortDirection = "desc"
)

func (d SortDirection) IsValid() bool {
	return d == SortAscending || d == SortDescending
}

// PriceMode selects which basket TotalPrice sums over.
type PriceMode string

const (
	PriceModeMarketCap   PriceMode = "marketCap"
	PriceModeVolumeFloor PriceMode = "volumeFloor"
)

// AssetQuote is one listing entry expressed in the conversion currency.
type AssetQuote struct {
	Name             string  `json:"name"`
	Symbol           string  `json:"symbol"`
	Platform         *string `json:"platform"`
	Volume24h        float64 `json:"volume_24h"`
	PercentChange24h float64 `json:"percent_change_24h"`
	Price            float64 `json:"price"`
}

// RankedAsset is an AssetQuote with its 1-based position in the upstream ordering.
type RankedAsset struct {
	Position int `json:"position"`
	AssetQuote
}

// SnapshotRecord is the persisted result of one daily run.
type SnapshotRecord struct {
	Timestamp                  string        `json:"timestamp"`
	ConvertedIn                string        `json:"converted_in"`
	TopByVolume                AssetQuote    `json:"top_by_volume"`
	TopByIncrement             []RankedAsset `json:"top_by_increment"`
	WorstByIncrement           []RankedAsset `json:"worst_by_increment"`
	TotalPriceTop20ByMarketCap float64       `json:"total_price_top_20_by_market_cap"`
	TotalPriceMinVolumeBasket  float64       `json:"total_price_min_volume_basket"`
	TodayReturn                *string       `json:"today_return,omitempty"`
}

// DailyReturn is the day-over-day change of the top-20 market cap basket.
type DailyReturn struct {
	Percent   float64
	Formatted string
}

// Favorable reports whether the return should be narrated as good news.
func (r DailyReturn) Favorable() bool {
	return r.Percent >= 0
}

// FormatTimestamp renders t as DD/MM/YYYY HH:MM:SS.
func FormatTimestamp(t time.Time) string {
	return t.Format(timestampLayout)
}

// DateKey renders the calendar date of t as DD_MM_YYYY.
func DateKey(t time.Time) string {
	return t.Format(dateKeyLayout)
}

// ParseDateKey parses a DD_MM_YYYY key in the given location.
func ParseDateKey(key string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	return time.ParseInLocation(dateKeyLayout, key, loc)
}

// PreviousDay returns the same wall-clock time one calendar day earlier.
func PreviousDay(t time.Time) time.Time {
	return t.AddDate(0, 0, -1)
}
