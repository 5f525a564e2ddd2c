package strategy

import (
	"context"
	"math"

	"github.com/sells-group/facility-enrich/internal/cache"
	"github.com/sells-group/facility-enrich/internal/model"
	"github.com/sells-group/facility-enrich/pkg/geocode"
)

// GeocodeRunner resolves a facility's locality to a coordinate pair.
type GeocodeRunner struct {
	client geocode.Client
	guard  guard
}

// NewGeocodeRunner creates the geocode runner. A nil client, as when no API
// key is configured, makes every run empty.
func NewGeocodeRunner(client geocode.Client, opts ...Option) *GeocodeRunner {
	return &GeocodeRunner{client: client, guard: newGuard(opts)}
}

func (r *GeocodeRunner) Name() model.StrategyName { return model.StrategyGeocode }

func (r *GeocodeRunner) Run(ctx context.Context, f *model.Facility) model.StrategyResult {
	if r.client == nil {
		return Empty(r.Name())
	}

	q := geocode.Query{
		Locality:    f.Locality,
		Country:     f.Country,
		CountryCode: f.ISOCountry(),
	}
	if f.Region != nil {
		q.Region = *f.Region
	}
	if q.Address() == "" {
		return Empty(r.Name())
	}

	key := cache.Key("geocode", q.Address(), q.CountryCode)
	res, err := fetch(ctx, r.guard, key, func(ctx context.Context) (*geocode.Result, error) {
		return r.client.Geocode(ctx, q)
	})
	if err != nil {
		logDegraded(r.Name(), f, "geocode lookup failed", err)
		return Empty(r.Name())
	}
	if res == nil || !res.Matched || !finite(res.Lat) || !finite(res.Lng) {
		return Empty(r.Name())
	}

	return model.StrategyResult{
		Strategy: r.Name(),
		Changes: []model.ProposedChange{
			{Field: model.FieldLat, Value: model.NumberValue(res.Lat), Source: geocode.Endpoint, Confidence: model.ConfidenceHigh},
			{Field: model.FieldLng, Value: model.NumberValue(res.Lng), Source: geocode.Endpoint, Confidence: model.ConfidenceHigh},
		},
	}
}

func finite(n float64) bool {
	return !math.IsNaN(n) && !math.IsInf(n, 0)
}
