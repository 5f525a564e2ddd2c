// Package overpass queries OpenStreetMap data through the Overpass API.
package overpass

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/facility-enrich/internal/resilience"
)

const defaultBaseURL = "https://overpass-api.de/api/interpreter"

// healthcareAmenities are the amenity values treated as healthcare points.
var healthcareAmenities = []string{"hospital", "clinic", "doctors", "dentist"}

// Element is one OSM node, way or relation. Ways and relations carry their
// position in Center.
type Element struct {
	Type   string            `json:"type"`
	ID     int64             `json:"id"`
	Lat    float64           `json:"lat,omitempty"`
	Lon    float64           `json:"lon,omitempty"`
	Center *Center           `json:"center,omitempty"`
	Tags   map[string]string `json:"tags,omitempty"`
}

// Center is the computed centre of a way or relation.
type Center struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Position returns the element's coordinates, if it has any.
func (e Element) Position() (lat, lon float64, ok bool) {
	if e.Center != nil {
		return e.Center.Lat, e.Center.Lon, true
	}
	if e.Type == "node" {
		return e.Lat, e.Lon, true
	}
	return 0, 0, false
}

// URL is the element's page on openstreetmap.org.
func (e Element) URL() string {
	return fmt.Sprintf("https://www.openstreetmap.org/%s/%d", e.Type, e.ID)
}

// Tag returns a tag value, or "".
func (e Element) Tag(key string) string {
	return e.Tags[key]
}

type response struct {
	Elements []Element `json:"elements"`
	Remark   string    `json:"remark,omitempty"`
}

// Client runs healthcare lookups.
type Client interface {
	Healthcare(ctx context.Context, lat, lng float64, radiusMeters int) ([]Element, error)
}

// Option configures the client.
type Option func(*client)

// WithBaseURL overrides the interpreter endpoint.
func WithBaseURL(u string) Option {
	return func(c *client) { c.baseURL = u }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) { c.http = hc }
}

// WithRateLimit caps requests per second. The public instance asks for
// about one request per second per client.
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
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates an Overpass client.
func NewClient(opts ...Option) Client {
	c := &client{
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(1, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HealthcareQuery renders the Overpass QL for healthcare-tagged elements
// within radius meters of a point.
func HealthcareQuery(lat, lng float64, radiusMeters int) string {
	around := fmt.Sprintf("(around:%d,%.6f,%.6f)", radiusMeters, lat, lng)
	var b strings.Builder
	b.WriteString("[out:json][timeout:25];\n(\n")
	fmt.Fprintf(&b, "  nwr[\"amenity\"~\"^(%s)$\"]%s;\n", strings.Join(healthcareAmenities, "|"), around)
	fmt.Fprintf(&b, "  nwr[\"healthcare\"]%s;\n", around)
	b.WriteString(");\nout center tags;\n")
	return b.String()
}

// Healthcare returns the healthcare elements around a point.
func (c *client) Healthcare(ctx context.Context, lat, lng float64, radiusMeters int) ([]Element, error) {
	if radiusMeters <= 0 {
		return nil, eris.New("overpass: radius must be positive")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "overpass: rate limit")
	}

	form := url.Values{"data": {HealthcareQuery(lat, lng, radiusMeters)}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, eris.Wrap(err, "overpass: build request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "overpass: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "overpass: read body")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resilience.HTTPError("overpass", resp.StatusCode, body)
	}

	var out response
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, eris.Wrap(err, "overpass: parse response")
	}
	if out.Remark != "" && len(out.Elements) == 0 && strings.Contains(strings.ToLower(out.Remark), "timed out") {
		return nil, resilience.NewTransientError(eris.Errorf("overpass: %s", out.Remark), http.StatusGatewayTimeout)
	}
	return out.Elements, nil
}
