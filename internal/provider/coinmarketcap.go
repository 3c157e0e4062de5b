package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"crypto-snapshot/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

const (
	coinMarketCapBaseURL = "https://pro-api.coinmarketcap.com"
	listingsLatestPath   = "/v1/cryptocurrency/listings/latest"
	requestTimeout       = 10 * time.Second

	rankedLimit    = 10
	marketCapLimit = 20
	// volumeFloorLimit is the largest page the API serves; without it the
	// basket would be capped at the default page of 100.
	volumeFloorLimit = 5000

	// DefaultMinVolume24h is the 24h volume floor of the volume basket.
	DefaultMinVolume24h = 76_000_000
)

// ListingParams are the query parameters of one listings/latest request.
// Zero values are omitted from the query string.
type ListingParams struct {
	Start        int
	Limit        int
	Convert      string
	Sort         string
	SortDir      domain.SortDirection
	MinVolume24h float64
}

func (p ListingParams) values() url.Values {
	v := url.Values{}
	if p.Start > 0 {
		v.Set("start", strconv.Itoa(p.Start))
	}
	if p.Limit > 0 {
		v.Set("limit", strconv.Itoa(p.Limit))
	}
	if p.Convert != "" {
		v.Set("convert", p.Convert)
	}
	if p.Sort != "" {
		v.Set("sort", p.Sort)
	}
	if p.SortDir != "" {
		v.Set("sort_dir", string(p.SortDir))
	}
	if p.MinVolume24h > 0 {
		v.Set("volume_24h_min", strconv.FormatFloat(p.MinVolume24h, 'f', -1, 64))
	}
	return v
}

// Listing is one raw record of the listings/latest response.
type Listing struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Platform *struct {
		Name string `json:"name"`
	} `json:"platform"`
	Quote map[string]*ListingQuote `json:"quote"`
}

// ListingQuote holds the per-currency fields of a listing.
type ListingQuote struct {
	Price            float64 `json:"price"`
	Volume24h        float64 `json:"volume_24h"`
	PercentChange24h float64 `json:"percent_change_24h"`
}

// toAssetQuote maps a listing into the given currency. A listing that has no
// quote for that currency is a malformed answer.
func (l Listing) toAssetQuote(currency string) (domain.AssetQuote, error) {
	q, ok := l.Quote[currency]
	if !ok || q == nil {
		return domain.AssetQuote{}, fmt.Errorf("listing %s has no %s quote", l.Symbol, currency)
	}
	aq := domain.AssetQuote{
		Name:             l.Name,
		Symbol:           l.Symbol,
		Volume24h:        q.Volume24h,
		PercentChange24h: q.PercentChange24h,
		Price:            q.Price,
	}
	if l.Platform != nil && l.Platform.Name != "" {
		name := l.Platform.Name
		aq.Platform = &name
	}
	return aq, nil
}

type listingsEnvelope struct {
	Status struct {
		ErrorCode    int    `json:"error_code"`
		ErrorMessage string `json:"error_message"`
	} `json:"status"`
	Data []Listing `json:"data"`
}

// CoinMarketCapProvider queries the CoinMarketCap listings endpoint and
// derives the aggregate views a snapshot needs.
type CoinMarketCapProvider struct {
	client       *http.Client
	baseURL      string
	apiKey       string
	minVolume24h float64
	tracer       trace.Tracer
	limiter      *rate.Limiter
}

// Option customizes a CoinMarketCapProvider.
type Option func(*CoinMarketCapProvider)

// WithBaseURL points the provider at another host, e.g. the CMC sandbox.
func WithBaseURL(baseURL string) Option {
	return func(p *CoinMarketCapProvider) {
		if baseURL != "" {
			p.baseURL = baseURL
		}
	}
}

// WithMinVolume24h overrides the volume floor used by PriceModeVolumeFloor.
func WithMinVolume24h(v float64) Option {
	return func(p *CoinMarketCapProvider) {
		if v > 0 {
			p.minVolume24h = v
		}
	}
}

// WithRatePerMinute caps outbound requests. Non-positive disables the cap.
func WithRatePerMinute(n int) Option {
	return func(p *CoinMarketCapProvider) {
		if n <= 0 {
			p.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		p.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), n)
	}
}

// NewCoinMarketCapProvider creates a provider with a fixed 10s request timeout.
func NewCoinMarketCapProvider(tracer trace.Tracer, apiKey string, opts ...Option) *CoinMarketCapProvider {
	p := &CoinMarketCapProvider{
		client:       &http.Client{Timeout: requestTimeout},
		baseURL:      coinMarketCapBaseURL,
		apiKey:       apiKey,
		minVolume24h: DefaultMinVolume24h,
		tracer:       tracer,
	}
	WithRatePerMinute(30)(p)
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// FetchListings issues one listings/latest request.
func (p *CoinMarketCapProvider) FetchListings(ctx context.Context, params ListingParams) ([]Listing, error) {
	ctx, span := p.tracer.Start(ctx, "cmc.fetch-listings")
	defer span.End()
	span.SetAttributes(
		attribute.String("convert", params.Convert),
		attribute.String("sort", params.Sort),
		attribute.Int("limit", params.Limit),
	)

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, &domain.TransportError{Err: fmt.Errorf("rate limit wait: %w", err)}
	}

	endpoint := p.baseURL + listingsLatestPath + "?" + params.values().Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accepts", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-CMC_PRO_API_KEY", p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &domain.TransportError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.TransportError{Err: fmt.Errorf("read body: %w", err)}
	}

	var env listingsEnvelope
	decodeErr := json.Unmarshal(body, &env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := env.Status.ErrorMessage
		if decodeErr != nil || msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
		return nil, &domain.UpstreamError{StatusCode: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("parse listings: %w", decodeErr)
	}

	span.SetAttributes(attribute.Int("listings", len(env.Data)))
	return env.Data, nil
}

// TopByVolume returns the asset with the largest 24h volume.
func (p *CoinMarketCapProvider) TopByVolume(ctx context.Context, currency string) (domain.AssetQuote, error) {
	listings, err := p.FetchListings(ctx, ListingParams{
		Start:   1,
		Limit:   rankedLimit,
		Convert: currency,
		Sort:    "volume_24h",
	})
	if err != nil {
		return domain.AssetQuote{}, fmt.Errorf("top by volume: %w", err)
	}
	if len(listings) == 0 {
		return domain.AssetQuote{}, fmt.Errorf("top by volume: %w", domain.ErrEmptyListing)
	}
	aq, err := listings[0].toAssetQuote(currency)
	if err != nil {
		return domain.AssetQuote{}, fmt.Errorf("top by volume: %w", err)
	}
	return aq, nil
}

// TopByChange returns the ten assets sorted by 24h percent change in the
// given direction, ranked in response order.
func (p *CoinMarketCapProvider) TopByChange(ctx context.Context, currency string, dir domain.SortDirection) ([]domain.RankedAsset, error) {
	if !dir.IsValid() {
		return nil, fmt.Errorf("top by change: invalid sort direction %q", dir)
	}
	listings, err := p.FetchListings(ctx, ListingParams{
		Start:   1,
		Limit:   rankedLimit,
		Convert: currency,
		Sort:    "percent_change_24h",
		SortDir: dir,
	})
	if err != nil {
		return nil, fmt.Errorf("top by change %s: %w", dir, err)
	}
	ranked, err := rankListings(head(listings, rankedLimit), currency)
	if err != nil {
		return nil, fmt.Errorf("top by change %s: %w", dir, err)
	}
	return ranked, nil
}

// TotalPrice sums the price of every asset in the basket selected by mode.
func (p *CoinMarketCapProvider) TotalPrice(ctx context.Context, currency string, mode domain.PriceMode) (float64, error) {
	params := ListingParams{Start: 1, Convert: currency}
	switch mode {
	case domain.PriceModeMarketCap:
		params.Limit = marketCapLimit
	case domain.PriceModeVolumeFloor:
		params.Limit = volumeFloorLimit
		params.MinVolume24h = p.minVolume24h
	default:
		return 0, fmt.Errorf("total price: unknown mode %q", mode)
	}

	listings, err := p.FetchListings(ctx, params)
	if err != nil {
		return 0, fmt.Errorf("total price %s: %w", mode, err)
	}
	if mode == domain.PriceModeMarketCap {
		listings = head(listings, marketCapLimit)
	}
	total, err := sumPrices(listings, currency)
	if err != nil {
		return 0, fmt.Errorf("total price %s: %w", mode, err)
	}
	return total, nil
}

// head trims listings to at most n records.
func head(listings []Listing, n int) []Listing {
	if len(listings) > n {
		return listings[:n]
	}
	return listings
}

func rankListings(listings []Listing, currency string) ([]domain.RankedAsset, error) {
	ranked := make([]domain.RankedAsset, 0, len(listings))
	for i, l := range listings {
		aq, err := l.toAssetQuote(currency)
		if err != nil {
			return nil, err
		}
		ranked = append(ranked, domain.RankedAsset{Position: i + 1, AssetQuote: aq})
	}
	return ranked, nil
}

func sumPrices(listings []Listing, currency string) (float64, error) {
	total := 0.0
	for _, l := range listings {
		q, ok := l.Quote[currency]
		if !ok || q == nil {
			return 0, fmt.Errorf("listing %s has no %s quote", l.Symbol, currency)
		}
		total += q.Price
	}
	return total, nil
}
