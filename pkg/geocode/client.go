// Package geocode resolves place names to coordinates with the Google
// Geocoding API.
package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/facility-enrich/internal/resilience"
)

// Endpoint is the canonical Google Geocoding endpoint. It doubles as the
// source citation for coordinates obtained through it.
const Endpoint = "https://maps.googleapis.com/maps/api/geocode/json"

// Query is a free-form place to resolve.
type Query struct {
	Locality    string
	Region      string
	Country     string
	CountryCode string // ISO alpha-2, narrows results when set
}

// Address renders the query as "locality[, region], country".
func (q Query) Address() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{q.Locality, q.Region, q.Country} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// Result holds the first match for a query.
type Result struct {
	Lat              float64 `json:"lat"`
	Lng              float64 `json:"lng"`
	FormattedAddress string  `json:"formatted_address"`
	LocationType     string  `json:"location_type"`
	Matched          bool    `json:"matched"`
}

// Client looks up places.
type Client interface {
	Geocode(ctx context.Context, q Query) (*Result, error)
}

// Option configures the client.
type Option func(*client)

// WithBaseURL overrides the API endpoint (for tests).
func WithBaseURL(u string) Option {
	return func(c *client) { c.baseURL = u }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) { c.http = hc }
}

// WithRateLimit caps requests per second.
func WithRateLimit(rps float64) Option {
	return func(c *client) {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

type client struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a Google geocoding client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &client{
		apiKey:  apiKey,
		baseURL: Endpoint,
		http:    &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(10, 10),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type googleResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Results      []struct {
		FormattedAddress string `json:"formatted_address"`
		Geometry         struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
			LocationType string `json:"location_type"`
		} `json:"geometry"`
	} `json:"results"`
}

// Geocode resolves q. No match is reported as Matched=false with a nil error.
func (c *client) Geocode(ctx context.Context, q Query) (*Result, error) {
	address := q.Address()
	if address == "" {
		return nil, eris.New("geocode: empty query")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: rate limit")
	}

	params := url.Values{
		"address": {address},
		"key":     {c.apiKey},
	}
	if cc := strings.TrimSpace(q.CountryCode); cc != "" {
		params.Set("components", "country:"+strings.ToUpper(cc))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: build request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: read body")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resilience.HTTPError("geocode", resp.StatusCode, body)
	}

	var gr googleResponse
	if err := json.Unmarshal(body, &gr); err != nil {
		return nil, eris.Wrap(err, "geocode: parse response")
	}

	switch gr.Status {
	case "OK":
	case "ZERO_RESULTS":
		return &Result{}, nil
	case "OVER_QUERY_LIMIT", "UNKNOWN_ERROR":
		return nil, resilience.NewTransientError(eris.Errorf("geocode: status %s", gr.Status), http.StatusTooManyRequests)
	default:
		return nil, eris.Errorf("geocode: status %s: %s", gr.Status, gr.ErrorMessage)
	}
	if len(gr.Results) == 0 {
		return &Result{}, nil
	}

	top := gr.Results[0]
	return &Result{
		Lat:              top.Geometry.Location.Lat,
		Lng:              top.Geometry.Location.Lng,
		FormattedAddress: top.FormattedAddress,
		LocationType:     strings.ToLower(top.Geometry.LocationType),
		Matched:          true,
	}, nil
}
