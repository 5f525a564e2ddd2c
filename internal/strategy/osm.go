package strategy

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/sells-group/facility-enrich/internal/cache"
	"github.com/sells-group/facility-enrich/internal/gaps"
	"github.com/sells-group/facility-enrich/internal/model"
	"github.com/sells-group/facility-enrich/pkg/overpass"
)

var publicOperatorKeywords = []string{
	"government", "public", "ministry", "state", "municipal", "district", "regional", "health service",
}

var privateOperatorKeywords = []string{
	"private", "religious", "mission", "ngo", "non_profit", "non-profit", "church", "catholic", "company",
}

// OSMRunner cross-references a facility against healthcare features in
// OpenStreetMap near its coordinates or locality.
type OSMRunner struct {
	client overpass.Client
	radius int
	guard  guard
}

// NewOSMRunner creates the osm-lookup runner. radius is in meters; zero or
// less uses 2000.
func NewOSMRunner(client overpass.Client, radius int, opts ...Option) *OSMRunner {
	if radius <= 0 {
		radius = 2000
	}
	return &OSMRunner{client: client, radius: radius, guard: newGuard(opts)}
}

func (r *OSMRunner) Name() model.StrategyName { return model.StrategyOSMLookup }

func (r *OSMRunner) Run(ctx context.Context, f *model.Facility) model.StrategyResult {
	if r.client == nil {
		return Empty(r.Name())
	}
	center, ok := gaps.SearchCenter(f)
	if !ok {
		return Empty(r.Name())
	}

	key := cache.Key("osm", fmt.Sprintf("%.4f,%.4f", center.Lat, center.Lng), fmt.Sprint(r.radius))
	elements, err := fetch(ctx, r.guard, key, func(ctx context.Context) ([]overpass.Element, error) {
		return r.client.Healthcare(ctx, center.Lat, center.Lng, r.radius)
	})
	if err != nil {
		logDegraded(r.Name(), f, "overpass query failed", err)
		return Empty(r.Name())
	}

	match, ok := nearestMatch(f.Name, center, elements)
	if !ok {
		return Empty(r.Name())
	}
	return model.StrategyResult{Strategy: r.Name(), Changes: proposeFromElement(f, match)}
}

// nearestMatch picks the name-matching element closest to center.
func nearestMatch(name string, center gaps.Point, elements []overpass.Element) (overpass.Element, bool) {
	var (
		best  overpass.Element
		found bool
		bestD float64
	)
	for _, e := range elements {
		if !nameMatches(name, e) {
			continue
		}
		lat, lon, ok := e.Position()
		d := math.Inf(1)
		if ok {
			d = distanceMeters(center.Lat, center.Lng, lat, lon)
		}
		if !found || d < bestD {
			best, bestD, found = e, d, true
		}
	}
	return best, found
}

// proposeFromElement proposes every mapped tag. Coordinates are proposed only
// when the record has none; other fields go to validation even when set.
func proposeFromElement(f *model.Facility, e overpass.Element) []model.ProposedChange {
	src := e.URL()
	var out []model.ProposedChange
	add := func(field model.FieldID, v model.Value, c model.Confidence) {
		out = append(out, model.ProposedChange{Field: field, Value: v, Source: src, Confidence: c})
	}

	if beds, ok := ParseNumber(e.Tag("beds")); ok {
		add(model.FieldCapacity, model.NumberValue(beds), model.ConfidenceHigh)
	}
	if spec := strings.TrimSpace(e.Tag("healthcare:speciality")); spec != "" {
		add(model.FieldSpecialties, model.StringValue(joinSemicolonList(spec)), model.ConfidenceMedium)
	}
	if lat, lon, ok := e.Position(); ok && !f.HasCoordinates() {
		add(model.FieldLat, model.NumberValue(lat), model.ConfidenceHigh)
		add(model.FieldLng, model.NumberValue(lon), model.ConfidenceHigh)
	}
	if op := operatorClass(e); op != "" {
		add(model.FieldOperatorType, model.StringValue(op), model.ConfidenceMedium)
	}
	return out
}

func joinSemicolonList(s string) string {
	parts := strings.Split(s, ";")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ", ")
}

// operatorClass maps the free-text operator tags to public or private.
// Private keywords take precedence.
func operatorClass(e overpass.Element) string {
	text := strings.ToLower(e.Tag("operator:type") + " " + e.Tag("operator"))
	if strings.TrimSpace(text) == "" {
		return ""
	}
	for _, kw := range privateOperatorKeywords {
		if strings.Contains(text, kw) {
			return "private"
		}
	}
	for _, kw := range publicOperatorKeywords {
		if strings.Contains(text, kw) {
			return "public"
		}
	}
	return ""
}
